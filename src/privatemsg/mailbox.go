package privatemsg

import (
	"context"
	"errors"
	"time"

	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/models"
	"git.cdm.community/cdm/cdm/src/oops"
	"github.com/jackc/pgx/v5"
)

var (
	ErrMessageNotFound  = oops.NewCoded(oops.KindNotFound, "message_not_found", "no such message")
	ErrPermissionDenied = oops.NewCoded(oops.KindPermissionDenied, "permission_denied", "that message is not yours")
)

func fetchMessage(ctx context.Context, conn db.ConnOrTx, messageID int, forUpdate bool) (*models.PrivateMessage, error) {
	var qb db.QueryBuilder
	qb.Add(
		`
		---- Fetch private message
		SELECT $columns
		FROM privatemsg_message
		WHERE id = $?
		`,
		messageID,
	)
	if forUpdate {
		qb.Add(`FOR UPDATE`)
	}
	m, err := db.QueryOne[models.PrivateMessage](ctx, conn, qb.String(), qb.Args()...)
	if errors.Is(err, db.NotFound) {
		return nil, ErrMessageNotFound
	} else if err != nil {
		return nil, oops.New(err, "failed to fetch private message %d", messageID)
	}
	return m, nil
}

/*
Fetches a message as seen by userID. Someone who is neither sender nor
recipient gets ErrPermissionDenied; a party whose every side is purged gets
ErrMessageNotFound, the same as for a message that never existed.
*/
func FetchMessageForUser(ctx context.Context, conn db.ConnOrTx, messageID, userID int) (*models.PrivateMessage, error) {
	m, err := fetchMessage(ctx, conn, messageID, false)
	if err != nil {
		return nil, err
	}
	if len(SidesOf(m, userID)) == 0 {
		return nil, ErrPermissionDenied
	}
	if !VisibleTo(m, userID) {
		return nil, ErrMessageNotFound
	}
	return m, nil
}

func saveSides(ctx context.Context, tx pgx.Tx, m *models.PrivateMessage) error {
	_, err := tx.Exec(ctx,
		`
		UPDATE privatemsg_message
		SET
			sender_deleted_at = $2,
			sender_permanently_deleted = $3,
			recipient_deleted_at = $4,
			recipient_permanently_deleted = $5
		WHERE id = $1
		`,
		m.ID,
		m.SenderDeletedAt,
		m.SenderPermanentlyDeleted,
		m.RecipientDeletedAt,
		m.RecipientPermanentlyDeleted,
	)
	if err != nil {
		return oops.New(err, "failed to save deletion state of message %d", m.ID)
	}
	return nil
}

// Locks the message, applies f to it and writes the side columns back.
func updateSides(
	ctx context.Context,
	conn db.ConnOrTx,
	messageID, userID int,
	now time.Time,
	f func(m *models.PrivateMessage) error,
) (*models.PrivateMessage, error) {
	var result *models.PrivateMessage
	err := db.WithTx(ctx, conn, func(tx pgx.Tx) error {
		m, err := fetchMessage(ctx, tx, messageID, true)
		if err != nil {
			return err
		}
		if len(SidesOf(m, userID)) == 0 {
			return ErrPermissionDenied
		}
		if err := f(m); err != nil {
			return err
		}
		Normalize(m, now)
		if err := saveSides(ctx, tx, m); err != nil {
			return err
		}
		result = m
		return nil
	})
	return result, err
}

// Moves the message to userID's trash, or purges it from their side when
// permanent is set.
func DeleteFromUserSide(ctx context.Context, conn db.ConnOrTx, messageID, userID int, permanent bool, now time.Time) (*models.PrivateMessage, error) {
	return updateSides(ctx, conn, messageID, userID, now, func(m *models.PrivateMessage) error {
		DeleteFor(m, userID, permanent, now)
		return nil
	})
}

// Takes the message back out of userID's trash. Purged messages can't be
// restored and report ErrMessageNotFound.
func UndeleteFromUserSide(ctx context.Context, conn db.ConnOrTx, messageID, userID int, now time.Time) (*models.PrivateMessage, error) {
	return updateSides(ctx, conn, messageID, userID, now, func(m *models.PrivateMessage) error {
		if !UndeleteFor(m, userID) {
			return ErrMessageNotFound
		}
		return nil
	})
}

// Purges everything in userID's trash. Returns the number of sides purged.
func EmptyTrash(ctx context.Context, conn db.ConnOrTx, userID int) (int64, error) {
	var purged int64
	err := db.WithTx(ctx, conn, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`
			UPDATE privatemsg_message
			SET sender_permanently_deleted = TRUE
			WHERE
				sender_id = $1
				AND sender_deleted_at IS NOT NULL
				AND NOT sender_permanently_deleted
			`,
			userID,
		)
		if err != nil {
			return oops.New(err, "failed to empty sent trash of user %d", userID)
		}
		purged += tag.RowsAffected()

		tag, err = tx.Exec(ctx,
			`
			UPDATE privatemsg_message
			SET recipient_permanently_deleted = TRUE
			WHERE
				recipient_id = $1
				AND recipient_deleted_at IS NOT NULL
				AND NOT recipient_permanently_deleted
			`,
			userID,
		)
		if err != nil {
			return oops.New(err, "failed to empty received trash of user %d", userID)
		}
		purged += tag.RowsAffected()
		return nil
	})
	return purged, err
}

// Marks the message read, if userID is its recipient and hasn't read it yet.
func MarkRead(ctx context.Context, conn db.ConnOrTx, messageID, userID int, now time.Time) error {
	_, err := conn.Exec(ctx,
		`
		UPDATE privatemsg_message
		SET read_at = $3
		WHERE
			id = $1
			AND recipient_id = $2
			AND read_at IS NULL
		`,
		messageID,
		userID,
		now,
	)
	if err != nil {
		return oops.New(err, "failed to mark message %d read", messageID)
	}
	return nil
}

type MailboxQuery struct {
	Limit  int
	Offset int
}

func (q MailboxQuery) apply(qb *db.QueryBuilder) {
	if q.Limit > 0 {
		qb.Add(`LIMIT $? OFFSET $?`, q.Limit, q.Offset)
	}
}

// Messages userID received and hasn't deleted, newest first.
func FetchInbox(ctx context.Context, conn db.ConnOrTx, userID int, q MailboxQuery) ([]*models.PrivateMessage, error) {
	var qb db.QueryBuilder
	qb.Add(
		`
		---- Fetch inbox
		SELECT $columns
		FROM privatemsg_message
		WHERE
			recipient_id = $?
			AND recipient_deleted_at IS NULL
			AND NOT recipient_permanently_deleted
		ORDER BY sent_at DESC, id DESC
		`,
		userID,
	)
	q.apply(&qb)
	msgs, err := db.Query[models.PrivateMessage](ctx, conn, qb.String(), qb.Args()...)
	if err != nil {
		return nil, oops.New(err, "failed to fetch inbox of user %d", userID)
	}
	return msgs, nil
}

// Messages userID sent and hasn't deleted, newest first.
func FetchOutbox(ctx context.Context, conn db.ConnOrTx, userID int, q MailboxQuery) ([]*models.PrivateMessage, error) {
	var qb db.QueryBuilder
	qb.Add(
		`
		---- Fetch outbox
		SELECT $columns
		FROM privatemsg_message
		WHERE
			sender_id = $?
			AND sender_deleted_at IS NULL
			AND NOT sender_permanently_deleted
		ORDER BY sent_at DESC, id DESC
		`,
		userID,
	)
	q.apply(&qb)
	msgs, err := db.Query[models.PrivateMessage](ctx, conn, qb.String(), qb.Args()...)
	if err != nil {
		return nil, oops.New(err, "failed to fetch outbox of user %d", userID)
	}
	return msgs, nil
}

/*
Messages userID deleted from either of their sides within the last logical
window and hasn't purged, most recently deleted first. Anything older has
been (or is about to be) purged by the cleanup job.
*/
func FetchTrash(ctx context.Context, conn db.ConnOrTx, userID int, now time.Time, logical time.Duration) ([]*models.PrivateMessage, error) {
	cutoff := now.Add(-logical)
	msgs, err := db.Query[models.PrivateMessage](ctx, conn,
		`
		---- Fetch trash
		SELECT $columns
		FROM privatemsg_message
		WHERE
			(
				sender_id = $1
				AND sender_deleted_at > $2
				AND NOT sender_permanently_deleted
			) OR (
				recipient_id = $1
				AND recipient_deleted_at > $2
				AND NOT recipient_permanently_deleted
			)
		ORDER BY
			GREATEST(
				CASE WHEN sender_id = $1 THEN sender_deleted_at END,
				CASE WHEN recipient_id = $1 THEN recipient_deleted_at END
			) DESC,
			id DESC
		`,
		userID,
		cutoff,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch trash of user %d", userID)
	}
	return msgs, nil
}

func CountUnread(ctx context.Context, conn db.ConnOrTx, userID int) (int, error) {
	count, err := db.QueryOneScalar[int](ctx, conn,
		`
		---- Count unread messages
		SELECT COUNT(*)
		FROM privatemsg_message
		WHERE
			recipient_id = $1
			AND read_at IS NULL
			AND recipient_deleted_at IS NULL
			AND NOT recipient_permanently_deleted
		`,
		userID,
	)
	if err != nil {
		return 0, oops.New(err, "failed to count unread messages of user %d", userID)
	}
	return count, nil
}
