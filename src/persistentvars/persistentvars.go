// Package persistentvars stores small pieces of process state that must
// survive restarts, as JSON values keyed by name.
package persistentvars

import (
	"context"
	"encoding/json"

	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/models"
	"git.cdm.community/cdm/cdm/src/oops"
)

type Name string

const (
	// The markup engine version that produced the stored HTML.
	RenderEngineVersion Name = "render_engine_version"
	// When the message cleanup job last completed.
	LastMessageCleanup Name = "last_message_cleanup"
)

// Returns db.NotFound if the variable isn't in the db.
func Fetch[T any](ctx context.Context, conn db.ConnOrTx, name Name) (*T, error) {
	pvar, err := db.QueryOne[models.PersistentVar](ctx, conn,
		`
		---- Fetch persistent var
		SELECT $columns
		FROM persistent_var
		WHERE name = $1
		`,
		name,
	)
	if err != nil {
		return nil, err
	}

	var result T
	err = json.Unmarshal([]byte(pvar.Value), &result)
	if err != nil {
		return nil, oops.New(err, "failed to unmarshal persistent var %s", name)
	}

	return &result, nil
}

func Store[T any](ctx context.Context, conn db.ConnOrTx, name Name, value T) error {
	jsonString, err := json.Marshal(value)
	if err != nil {
		return oops.New(err, "failed to marshal persistent var %s", name)
	}

	_, err = conn.Exec(ctx,
		`
		INSERT INTO persistent_var (name, value)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET
			value = EXCLUDED.value
		`,
		name,
		string(jsonString),
	)
	if err != nil {
		return oops.New(err, "failed to store persistent var %s", name)
	}
	return nil
}

func Remove(ctx context.Context, conn db.ConnOrTx, name Name) error {
	_, err := conn.Exec(ctx,
		`
		DELETE FROM persistent_var
		WHERE name = $1
		`,
		name,
	)
	if err != nil {
		return oops.New(err, "failed to delete persistent var %s", name)
	}
	return nil
}
