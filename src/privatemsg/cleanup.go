package privatemsg

import (
	"context"
	"time"

	"git.cdm.community/cdm/cdm/src/config"
	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/jobs"
	"git.cdm.community/cdm/cdm/src/logging"
	"git.cdm.community/cdm/cdm/src/oops"
	"git.cdm.community/cdm/cdm/src/persistentvars"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CleanupResult struct {
	Deleted         int64
	SenderPurged    int64
	RecipientPurged int64
}

/*
Removes rows that both sides deleted more than the physical window ago, then
purges every side that has sat in the trash longer than the logical window.
Running it twice in a row changes nothing the second time.
*/
func DeleteDeletedMessages(ctx context.Context, conn db.ConnOrTx, now time.Time, logical, physical time.Duration) (CleanupResult, error) {
	var res CleanupResult
	logicalCutoff := now.Add(-logical)
	physicalCutoff := now.Add(-physical)

	err := db.WithTx(ctx, conn, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`
			DELETE FROM privatemsg_message
			WHERE
				sender_deleted_at IS NOT NULL
				AND recipient_deleted_at IS NOT NULL
				AND sender_deleted_at <= $1
				AND recipient_deleted_at <= $1
			`,
			physicalCutoff,
		)
		if err != nil {
			return oops.New(err, "failed to delete old messages")
		}
		res.Deleted = tag.RowsAffected()

		tag, err = tx.Exec(ctx,
			`
			UPDATE privatemsg_message
			SET sender_permanently_deleted = TRUE
			WHERE
				sender_deleted_at <= $1
				AND NOT sender_permanently_deleted
			`,
			logicalCutoff,
		)
		if err != nil {
			return oops.New(err, "failed to purge old sender sides")
		}
		res.SenderPurged = tag.RowsAffected()

		tag, err = tx.Exec(ctx,
			`
			UPDATE privatemsg_message
			SET recipient_permanently_deleted = TRUE
			WHERE
				recipient_deleted_at <= $1
				AND NOT recipient_permanently_deleted
			`,
			logicalCutoff,
		)
		if err != nil {
			return oops.New(err, "failed to purge old recipient sides")
		}
		res.RecipientPurged = tag.RowsAffected()

		return persistentvars.Store(ctx, tx, persistentvars.LastMessageCleanup, now)
	})
	if err != nil {
		return CleanupResult{}, err
	}
	return res, nil
}

func PeriodicallyDeleteDeletedMessages(conn *pgxpool.Pool) *jobs.Job {
	return jobs.Periodically("periodically delete deleted messages", 1*time.Hour, func(ctx context.Context) error {
		cfg := config.Config.PrivateMsg
		res, err := DeleteDeletedMessages(ctx, conn, time.Now(), cfg.LogicalWindow(), cfg.PhysicalWindow())
		if err != nil {
			return err
		}
		if res.Deleted > 0 || res.SenderPurged > 0 || res.RecipientPurged > 0 {
			logging.ExtractLogger(ctx).Info().
				Int64("num deleted messages", res.Deleted).
				Int64("num purged sender sides", res.SenderPurged).
				Int64("num purged recipient sides", res.RecipientPurged).
				Msg("Cleaned up deleted messages")
		}
		return nil
	})
}
