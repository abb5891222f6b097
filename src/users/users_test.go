package users

import (
	"context"
	"strings"
	"testing"

	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchUsers(t *testing.T) {
	tx := dbtest.Begin(t)
	ctx := context.Background()

	alice := dbtest.CreateUser(t, tx)
	bob := dbtest.CreateUser(t, tx)
	dbtest.DeactivateUser(t, tx, bob)

	u, err := FetchUser(ctx, tx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.Username, u.Username)

	u, err = FetchUserByUsername(ctx, tx, strings.ToUpper(bob.Username))
	require.NoError(t, err)
	assert.Equal(t, bob.ID, u.ID)
	assert.False(t, u.IsActive)

	_, err = FetchUser(ctx, tx, bob.ID+1000)
	assert.ErrorIs(t, err, db.NotFound)

	active, err := FetchUsers(ctx, tx, UsersQuery{UserIDs: []int{alice.ID, bob.ID}, ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, alice.ID, active[0].ID)

	names, err := FetchUsernames(ctx, tx, []int{alice.ID, bob.ID, bob.ID + 1000})
	require.NoError(t, err)
	assert.Equal(t, map[int]string{alice.ID: alice.Username, bob.ID: bob.Username}, names)
}
