package migrations

import (
	"context"
	"time"

	"git.cdm.community/cdm/cdm/src/migration/types"
	"git.cdm.community/cdm/cdm/src/oops"
	"github.com/jackc/pgx/v5"
)

func init() {
	registerMigration(AddPrivateMessages{})
}

type AddPrivateMessages struct{}

func (m AddPrivateMessages) Version() types.MigrationVersion {
	return types.MigrationVersion(time.Date(2026, 2, 4, 14, 30, 0, 0, time.UTC))
}

func (m AddPrivateMessages) Name() string {
	return "AddPrivateMessages"
}

func (m AddPrivateMessages) Description() string {
	return "Add private messages, blocked users and messaging profiles"
}

func (m AddPrivateMessages) Up(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx,
		`
		CREATE TABLE privatemsg_message (
			id SERIAL PRIMARY KEY,
			sender_id INT NOT NULL REFERENCES auth_user (id) ON DELETE CASCADE,
			recipient_id INT NOT NULL REFERENCES auth_user (id) ON DELETE CASCADE,
			parent_msg_id INT REFERENCES privatemsg_message (id) ON DELETE SET NULL,
			subject VARCHAR(255) NOT NULL DEFAULT '',
			body TEXT NOT NULL DEFAULT '',
			body_html TEXT NOT NULL DEFAULT '',
			sent_at TIMESTAMP WITH TIME ZONE NOT NULL,
			read_at TIMESTAMP WITH TIME ZONE,
			sender_deleted_at TIMESTAMP WITH TIME ZONE,
			recipient_deleted_at TIMESTAMP WITH TIME ZONE,
			sender_permanently_deleted BOOLEAN NOT NULL DEFAULT FALSE,
			recipient_permanently_deleted BOOLEAN NOT NULL DEFAULT FALSE,
			CONSTRAINT privatemsg_message_sender_purge_check
				CHECK (NOT sender_permanently_deleted OR sender_deleted_at IS NOT NULL),
			CONSTRAINT privatemsg_message_recipient_purge_check
				CHECK (NOT recipient_permanently_deleted OR recipient_deleted_at IS NOT NULL)
		);
		CREATE INDEX privatemsg_message_recipient ON privatemsg_message (recipient_id, sent_at DESC);
		CREATE INDEX privatemsg_message_sender ON privatemsg_message (sender_id, sent_at DESC);

		CREATE TABLE privatemsg_blocked_user (
			id SERIAL PRIMARY KEY,
			user_id INT NOT NULL REFERENCES auth_user (id) ON DELETE CASCADE,
			blocked_user_id INT NOT NULL REFERENCES auth_user (id) ON DELETE CASCADE,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			last_block_date TIMESTAMP WITH TIME ZONE NOT NULL,
			CONSTRAINT privatemsg_blocked_user_pair_key UNIQUE (user_id, blocked_user_id)
		);

		CREATE TABLE privatemsg_user_profile (
			user_id INT PRIMARY KEY REFERENCES auth_user (id) ON DELETE CASCADE,
			notify_on_new_privmsg BOOLEAN NOT NULL DEFAULT TRUE,
			accept_privmsg BOOLEAN NOT NULL DEFAULT TRUE,
			last_sent_private_msg_date TIMESTAMP WITH TIME ZONE
		);
		`,
	)
	if err != nil {
		return oops.New(err, "failed to create private message tables")
	}
	return nil
}

func (m AddPrivateMessages) Down(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx,
		`
		DROP TABLE privatemsg_user_profile;
		DROP TABLE privatemsg_blocked_user;
		DROP TABLE privatemsg_message;
		`,
	)
	if err != nil {
		return oops.New(err, "failed to drop private message tables")
	}
	return nil
}
