package privatemsg

import (
	"context"
	"time"

	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/models"
	"git.cdm.community/cdm/cdm/src/oops"
	"github.com/jackc/pgx/v5"
)

func ensureProfile(ctx context.Context, conn db.ConnOrTx, userID int) error {
	_, err := conn.Exec(ctx,
		`
		INSERT INTO privatemsg_user_profile (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
		`,
		userID,
	)
	if err != nil {
		return oops.New(err, "failed to create private message profile for user %d", userID)
	}
	return nil
}

func FetchOrCreateProfile(ctx context.Context, conn db.ConnOrTx, userID int) (*models.PrivateMessageUserProfile, error) {
	if err := ensureProfile(ctx, conn, userID); err != nil {
		return nil, err
	}
	p, err := db.QueryOne[models.PrivateMessageUserProfile](ctx, conn,
		`
		---- Fetch private message profile
		SELECT $columns
		FROM privatemsg_user_profile
		WHERE user_id = $1
		`,
		userID,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch private message profile for user %d", userID)
	}
	return p, nil
}

func lockProfile(ctx context.Context, tx pgx.Tx, userID int) (*models.PrivateMessageUserProfile, error) {
	if err := ensureProfile(ctx, tx, userID); err != nil {
		return nil, err
	}
	p, err := db.QueryOne[models.PrivateMessageUserProfile](ctx, tx,
		`
		---- Lock private message profile
		SELECT $columns
		FROM privatemsg_user_profile
		WHERE user_id = $1
		FOR UPDATE
		`,
		userID,
	)
	if err != nil {
		return nil, oops.New(err, "failed to lock private message profile for user %d", userID)
	}
	return p, nil
}

func touchProfile(ctx context.Context, tx pgx.Tx, userID int, now time.Time) error {
	_, err := tx.Exec(ctx,
		`
		UPDATE privatemsg_user_profile
		SET last_sent_private_msg_date = $2
		WHERE user_id = $1
		`,
		userID,
		now,
	)
	if err != nil {
		return oops.New(err, "failed to update last message date of user %d", userID)
	}
	return nil
}

func SaveProfileSettings(ctx context.Context, conn db.ConnOrTx, p *models.PrivateMessageUserProfile) error {
	if err := ensureProfile(ctx, conn, p.UserID); err != nil {
		return err
	}
	_, err := conn.Exec(ctx,
		`
		UPDATE privatemsg_user_profile
		SET
			notify_on_new_privmsg = $2,
			accept_privmsg = $3
		WHERE user_id = $1
		`,
		p.UserID,
		p.NotifyOnNewPrivmsg,
		p.AcceptPrivmsg,
	)
	if err != nil {
		return oops.New(err, "failed to save private message profile of user %d", p.UserID)
	}
	return nil
}
