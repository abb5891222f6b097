package migrations

import (
	"context"
	"time"

	"git.cdm.community/cdm/cdm/src/migration/types"
	"git.cdm.community/cdm/cdm/src/oops"
	"github.com/jackc/pgx/v5"
)

func init() {
	registerMigration(AddSnippetsAndUserNotes{})
}

type AddSnippetsAndUserNotes struct{}

func (m AddSnippetsAndUserNotes) Version() types.MigrationVersion {
	return types.MigrationVersion(time.Date(2026, 2, 5, 8, 15, 0, 0, time.UTC))
}

func (m AddSnippetsAndUserNotes) Name() string {
	return "AddSnippetsAndUserNotes"
}

func (m AddSnippetsAndUserNotes) Description() string {
	return "Add code snippets and moderator notes on users"
}

func (m AddSnippetsAndUserNotes) Up(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx,
		`
		CREATE TABLE snippets_code_snippet (
			id SERIAL PRIMARY KEY,
			title VARCHAR(255) NOT NULL,
			author_id INT NOT NULL REFERENCES auth_user (id) ON DELETE CASCADE,
			filename VARCHAR(255) NOT NULL,
			code_language VARCHAR(64) NOT NULL,
			public_listing BOOLEAN NOT NULL DEFAULT TRUE,
			description TEXT NOT NULL DEFAULT '',
			description_html TEXT NOT NULL DEFAULT '',
			description_text TEXT NOT NULL DEFAULT '',
			source_code TEXT NOT NULL,
			html_for_display TEXT NOT NULL DEFAULT '',
			css_for_display TEXT NOT NULL DEFAULT '',
			display_line_numbers BOOLEAN NOT NULL DEFAULT TRUE,
			highlight_lines VARCHAR(255) NOT NULL DEFAULT '',
			tab_size INT NOT NULL DEFAULT 4,
			creation_date TIMESTAMP WITH TIME ZONE NOT NULL,
			last_modification_date TIMESTAMP WITH TIME ZONE
		);

		CREATE TABLE user_note (
			id SERIAL PRIMARY KEY,
			title VARCHAR(255) NOT NULL,
			author_id INT NOT NULL REFERENCES auth_user (id) ON DELETE CASCADE,
			target_user_id INT NOT NULL REFERENCES auth_user (id) ON DELETE CASCADE,
			description TEXT NOT NULL DEFAULT '',
			sticky BOOLEAN NOT NULL DEFAULT FALSE,
			creation_date TIMESTAMP WITH TIME ZONE NOT NULL,
			last_modification_date TIMESTAMP WITH TIME ZONE NOT NULL
		);
		CREATE INDEX user_note_target ON user_note (target_user_id);
		`,
	)
	if err != nil {
		return oops.New(err, "failed to create snippet and user note tables")
	}
	return nil
}

func (m AddSnippetsAndUserNotes) Down(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx,
		`
		DROP TABLE user_note;
		DROP TABLE snippets_code_snippet;
		`,
	)
	if err != nil {
		return oops.New(err, "failed to drop snippet and user note tables")
	}
	return nil
}
