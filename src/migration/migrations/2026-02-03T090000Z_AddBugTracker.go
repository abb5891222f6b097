package migrations

import (
	"context"
	"time"

	"git.cdm.community/cdm/cdm/src/migration/types"
	"git.cdm.community/cdm/cdm/src/oops"
	"github.com/jackc/pgx/v5"
)

func init() {
	registerMigration(AddBugTracker{})
}

type AddBugTracker struct{}

func (m AddBugTracker) Version() types.MigrationVersion {
	return types.MigrationVersion(time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC))
}

func (m AddBugTracker) Name() string {
	return "AddBugTracker"
}

func (m AddBugTracker) Description() string {
	return "Add tickets, comments, change history and subscriptions"
}

func (m AddBugTracker) Up(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx,
		`
		CREATE TABLE bugtracker_issue_component (
			id SERIAL PRIMARY KEY,
			internal_name VARCHAR(255) NOT NULL,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			CONSTRAINT bugtracker_issue_component_internal_name_key UNIQUE (internal_name)
		);

		CREATE TABLE bugtracker_issue_ticket (
			id SERIAL PRIMARY KEY,
			title VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			description_html TEXT NOT NULL DEFAULT '',
			description_text TEXT NOT NULL DEFAULT '',
			component_id INT REFERENCES bugtracker_issue_component (id) ON DELETE SET NULL,
			submitter_id INT NOT NULL REFERENCES auth_user (id) ON DELETE CASCADE,
			assigned_to_id INT REFERENCES auth_user (id) ON DELETE SET NULL,
			submitter_ip_address INET,
			status VARCHAR(16) NOT NULL DEFAULT 'open',
			priority VARCHAR(16) NOT NULL DEFAULT 'needreview',
			difficulty VARCHAR(16) NOT NULL DEFAULT 'normal',
			submission_date TIMESTAMP WITH TIME ZONE NOT NULL,
			last_modification_date TIMESTAMP WITH TIME ZONE NOT NULL
		);

		CREATE TABLE bugtracker_issue_comment (
			id SERIAL PRIMARY KEY,
			issue_id INT NOT NULL REFERENCES bugtracker_issue_ticket (id) ON DELETE CASCADE,
			author_id INT NOT NULL REFERENCES auth_user (id) ON DELETE CASCADE,
			author_ip_address INET,
			pub_date TIMESTAMP WITH TIME ZONE NOT NULL,
			last_modification_date TIMESTAMP WITH TIME ZONE NOT NULL,
			body TEXT NOT NULL DEFAULT '',
			body_html TEXT NOT NULL DEFAULT '',
			body_text TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX bugtracker_issue_comment_issue ON bugtracker_issue_comment (issue_id, id);

		CREATE TABLE bugtracker_issue_change (
			id SERIAL PRIMARY KEY,
			issue_id INT NOT NULL REFERENCES bugtracker_issue_ticket (id) ON DELETE CASCADE,
			comment_id INT NOT NULL REFERENCES bugtracker_issue_comment (id) ON DELETE CASCADE,
			change_date TIMESTAMP WITH TIME ZONE NOT NULL,
			field_name VARCHAR(64) NOT NULL,
			old_value TEXT NOT NULL DEFAULT '',
			new_value TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX bugtracker_issue_change_comment ON bugtracker_issue_change (comment_id);

		CREATE TABLE bugtracker_issue_subscription (
			id SERIAL PRIMARY KEY,
			issue_id INT NOT NULL REFERENCES bugtracker_issue_ticket (id) ON DELETE CASCADE,
			user_id INT NOT NULL REFERENCES auth_user (id) ON DELETE CASCADE,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			CONSTRAINT bugtracker_issue_subscription_issue_user_key UNIQUE (issue_id, user_id)
		);

		CREATE TABLE bugtracker_user_profile (
			user_id INT PRIMARY KEY REFERENCES auth_user (id) ON DELETE CASCADE,
			notify_of_new_issue BOOLEAN NOT NULL DEFAULT FALSE,
			notify_of_reply_by_default BOOLEAN NOT NULL DEFAULT TRUE,
			last_comment_date TIMESTAMP WITH TIME ZONE
		);
		`,
	)
	if err != nil {
		return oops.New(err, "failed to create bug tracker tables")
	}
	return nil
}

func (m AddBugTracker) Down(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx,
		`
		DROP TABLE bugtracker_user_profile;
		DROP TABLE bugtracker_issue_subscription;
		DROP TABLE bugtracker_issue_change;
		DROP TABLE bugtracker_issue_comment;
		DROP TABLE bugtracker_issue_ticket;
		DROP TABLE bugtracker_issue_component;
		`,
	)
	if err != nil {
		return oops.New(err, "failed to drop bug tracker tables")
	}
	return nil
}
