package privatemsg

import (
	"context"
	"time"

	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/models"
	"git.cdm.community/cdm/cdm/src/oops"
)

/*
Records that userID doesn't want messages from blockedUserID. Any pair is
accepted, including blocking yourself; the UI is where that gets discouraged.
Blocking again refreshes the block date.
*/
func BlockUser(ctx context.Context, conn db.ConnOrTx, userID, blockedUserID int, now time.Time) error {
	_, err := conn.Exec(ctx,
		`
		INSERT INTO privatemsg_blocked_user (user_id, blocked_user_id, active, last_block_date)
		VALUES ($1, $2, TRUE, $3)
		ON CONFLICT ON CONSTRAINT privatemsg_blocked_user_pair_key
		DO UPDATE SET active = TRUE, last_block_date = EXCLUDED.last_block_date
		`,
		userID,
		blockedUserID,
		now,
	)
	if err != nil {
		return oops.New(err, "failed to block user %d for user %d", blockedUserID, userID)
	}
	return nil
}

func UnblockUser(ctx context.Context, conn db.ConnOrTx, userID, blockedUserID int) error {
	_, err := conn.Exec(ctx,
		`
		UPDATE privatemsg_blocked_user
		SET active = FALSE
		WHERE user_id = $1 AND blocked_user_id = $2
		`,
		userID,
		blockedUserID,
	)
	if err != nil {
		return oops.New(err, "failed to unblock user %d for user %d", blockedUserID, userID)
	}
	return nil
}

func HasBlockedUser(ctx context.Context, conn db.ConnOrTx, userID, otherID int) (bool, error) {
	blocked, err := db.QueryOneScalar[bool](ctx, conn,
		`
		---- Check block
		SELECT EXISTS (
			SELECT 1
			FROM privatemsg_blocked_user
			WHERE user_id = $1 AND blocked_user_id = $2 AND active
		)
		`,
		userID,
		otherID,
	)
	if err != nil {
		return false, oops.New(err, "failed to check whether user %d blocked user %d", userID, otherID)
	}
	return blocked, nil
}

// The users userID currently blocks, most recently blocked first.
func FetchBlockedUsers(ctx context.Context, conn db.ConnOrTx, userID int) ([]*models.User, error) {
	blocked, err := db.Query[models.User](ctx, conn,
		`
		---- Fetch blocked users
		SELECT $columns{u}
		FROM
			privatemsg_blocked_user AS b
			JOIN auth_user AS u ON u.id = b.blocked_user_id
		WHERE
			b.user_id = $1
			AND b.active
		ORDER BY b.last_block_date DESC, u.id
		`,
		userID,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch users blocked by user %d", userID)
	}
	return blocked, nil
}
