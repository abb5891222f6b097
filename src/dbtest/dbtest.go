/*
Package dbtest gives tests a real Postgres schema to work against.

Tests call Begin to get a transaction with every migration applied. The
transaction is rolled back when the test ends, so tests never see each
other's rows and the target database is left untouched. Set CDM_TEST_DATABASE
to a connection string to enable these tests; without it (or with -short)
they are skipped.
*/
package dbtest

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/migration"
	"git.cdm.community/cdm/cdm/src/models"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

const DatabaseEnv = "CDM_TEST_DATABASE"

func Begin(t *testing.T) pgx.Tx {
	t.Helper()

	dsn := os.Getenv(DatabaseEnv)
	if dsn == "" {
		t.Skipf("%s is not set", DatabaseEnv)
	}
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dsn)
	require.NoError(t, err)

	tx, err := conn.Begin(ctx)
	require.NoError(t, err)

	t.Cleanup(func() {
		tx.Rollback(ctx)
		conn.Close(ctx)
	})

	require.NoError(t, migration.ApplyAll(ctx, tx))
	return tx
}

var userCounter atomic.Int64

// CreateUser inserts an active user with the given capabilities. Usernames
// are unique within the test run.
func CreateUser(t *testing.T, conn db.ConnOrTx, permissions ...string) *models.User {
	t.Helper()

	if permissions == nil {
		permissions = []string{}
	}
	n := userCounter.Add(1)
	user, err := db.QueryOne[models.User](context.Background(), conn,
		`
		INSERT INTO auth_user (username, email, permissions, date_joined)
		VALUES ($1, $2, $3, $4)
		RETURNING $columns
		`,
		fmt.Sprintf("user%d", n),
		fmt.Sprintf("user%d@example.com", n),
		permissions,
		time.Now(),
	)
	require.NoError(t, err)
	return user
}

func DeactivateUser(t *testing.T, conn db.ConnOrTx, user *models.User) {
	t.Helper()
	_, err := conn.Exec(context.Background(), "UPDATE auth_user SET is_active = FALSE WHERE id = $1", user.ID)
	require.NoError(t, err)
	user.IsActive = false
}

func CreateForum(t *testing.T, conn db.ConnOrTx, title string) *models.Forum {
	t.Helper()
	forum, err := db.QueryOne[models.Forum](context.Background(), conn,
		`
		INSERT INTO forum (title, slug)
		VALUES ($1, $2)
		RETURNING $columns
		`,
		title, title,
	)
	require.NoError(t, err)
	return forum
}
