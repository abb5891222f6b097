package migrations

import (
	"context"
	"time"

	"git.cdm.community/cdm/cdm/src/migration/types"
	"git.cdm.community/cdm/cdm/src/oops"
	"github.com/jackc/pgx/v5"
)

func init() {
	registerMigration(InitialSchema{})
}

type InitialSchema struct{}

func (m InitialSchema) Version() types.MigrationVersion {
	return types.MigrationVersion(time.Date(2026, 2, 2, 10, 15, 0, 0, time.UTC))
}

func (m InitialSchema) Name() string {
	return "InitialSchema"
}

func (m InitialSchema) Description() string {
	return "Create users, forums and persistent vars"
}

func (m InitialSchema) Up(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx,
		`
		CREATE TABLE auth_user (
			id SERIAL PRIMARY KEY,
			username VARCHAR(150) NOT NULL,
			email VARCHAR(254) NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			is_staff BOOLEAN NOT NULL DEFAULT FALSE,
			is_superuser BOOLEAN NOT NULL DEFAULT FALSE,
			permissions TEXT[] NOT NULL DEFAULT '{}',
			date_joined TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			CONSTRAINT auth_user_username_key UNIQUE (username)
		);

		CREATE TABLE forum (
			id SERIAL PRIMARY KEY,
			title VARCHAR(255) NOT NULL,
			slug VARCHAR(255) NOT NULL
		);

		CREATE TABLE forum_thread (
			id SERIAL PRIMARY KEY,
			forum_id INT NOT NULL REFERENCES forum (id) ON DELETE CASCADE,
			title VARCHAR(255) NOT NULL,
			author_id INT NOT NULL REFERENCES auth_user (id) ON DELETE CASCADE,
			pub_date TIMESTAMP WITH TIME ZONE NOT NULL,
			first_post_id INT
		);

		CREATE TABLE forum_post (
			id SERIAL PRIMARY KEY,
			thread_id INT NOT NULL REFERENCES forum_thread (id) ON DELETE CASCADE,
			author_id INT NOT NULL REFERENCES auth_user (id) ON DELETE CASCADE,
			pub_date TIMESTAMP WITH TIME ZONE NOT NULL,
			content_html TEXT NOT NULL,
			author_ip INET
		);

		ALTER TABLE forum_thread
			ADD CONSTRAINT forum_thread_first_post_id_fkey
			FOREIGN KEY (first_post_id) REFERENCES forum_post (id) ON DELETE SET NULL;

		CREATE TABLE persistent_var (
			name VARCHAR(255) NOT NULL,
			value TEXT NOT NULL
		);
		CREATE UNIQUE INDEX persistent_var_name ON persistent_var (name);
		`,
	)
	if err != nil {
		return oops.New(err, "failed to create initial tables")
	}
	return nil
}

func (m InitialSchema) Down(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx,
		`
		DROP TABLE persistent_var;
		ALTER TABLE forum_thread DROP CONSTRAINT forum_thread_first_post_id_fkey;
		DROP TABLE forum_post;
		DROP TABLE forum_thread;
		DROP TABLE forum;
		DROP TABLE auth_user;
		`,
	)
	if err != nil {
		return oops.New(err, "failed to drop initial tables")
	}
	return nil
}
