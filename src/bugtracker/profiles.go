package bugtracker

import (
	"context"

	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/models"
	"git.cdm.community/cdm/cdm/src/oops"
	"github.com/jackc/pgx/v5"
)

func ensureProfile(ctx context.Context, conn db.ConnOrTx, userID int) error {
	_, err := conn.Exec(ctx,
		`
		INSERT INTO bugtracker_user_profile (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
		`,
		userID,
	)
	if err != nil {
		return oops.New(err, "failed to create bug tracker profile for user %d", userID)
	}
	return nil
}

// Profiles are created with their defaults the first time they're asked for.
func FetchOrCreateProfile(ctx context.Context, conn db.ConnOrTx, userID int) (*models.BugTrackerUserProfile, error) {
	if err := ensureProfile(ctx, conn, userID); err != nil {
		return nil, err
	}
	p, err := db.QueryOne[models.BugTrackerUserProfile](ctx, conn,
		`
		---- Fetch bug tracker profile
		SELECT $columns
		FROM bugtracker_user_profile
		WHERE user_id = $1
		`,
		userID,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch bug tracker profile for user %d", userID)
	}
	return p, nil
}

// Locks the profile row so the flood check and the timestamp update that
// follows it can't interleave with another post by the same user.
func lockProfile(ctx context.Context, tx pgx.Tx, userID int) (*models.BugTrackerUserProfile, error) {
	if err := ensureProfile(ctx, tx, userID); err != nil {
		return nil, err
	}
	p, err := db.QueryOne[models.BugTrackerUserProfile](ctx, tx,
		`
		---- Lock bug tracker profile
		SELECT $columns
		FROM bugtracker_user_profile
		WHERE user_id = $1
		FOR UPDATE
		`,
		userID,
	)
	if err != nil {
		return nil, oops.New(err, "failed to lock bug tracker profile for user %d", userID)
	}
	return p, nil
}

func touchProfile(ctx context.Context, tx pgx.Tx, p *models.BugTrackerUserProfile) error {
	_, err := tx.Exec(ctx,
		`
		UPDATE bugtracker_user_profile
		SET last_comment_date = $2
		WHERE user_id = $1
		`,
		p.UserID,
		p.LastCommentDate,
	)
	if err != nil {
		return oops.New(err, "failed to update last comment date of user %d", p.UserID)
	}
	return nil
}

// Saves the notification settings of a profile. The flood timestamp is only
// ever written by the posting paths.
func SaveProfileSettings(ctx context.Context, conn db.ConnOrTx, p *models.BugTrackerUserProfile) error {
	if err := ensureProfile(ctx, conn, p.UserID); err != nil {
		return err
	}
	_, err := conn.Exec(ctx,
		`
		UPDATE bugtracker_user_profile
		SET
			notify_of_new_issue = $2,
			notify_of_reply_by_default = $3
		WHERE user_id = $1
		`,
		p.UserID,
		p.NotifyOfNewIssue,
		p.NotifyOfReplyByDefault,
	)
	if err != nil {
		return oops.New(err, "failed to save bug tracker profile of user %d", p.UserID)
	}
	return nil
}
