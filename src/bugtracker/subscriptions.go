package bugtracker

import (
	"context"

	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/models"
	"git.cdm.community/cdm/cdm/src/oops"
)

// Subscribing again after unsubscribing reactivates the old row.
func Subscribe(ctx context.Context, conn db.ConnOrTx, issueID, userID int) error {
	_, err := conn.Exec(ctx,
		`
		INSERT INTO bugtracker_issue_subscription (issue_id, user_id, active)
		VALUES ($1, $2, TRUE)
		ON CONFLICT ON CONSTRAINT bugtracker_issue_subscription_issue_user_key
		DO UPDATE SET active = TRUE
		`,
		issueID,
		userID,
	)
	if err != nil {
		return oops.New(err, "failed to subscribe user %d to issue %d", userID, issueID)
	}
	return nil
}

// Deactivates the subscription, if there is one. Rows are never deleted.
func Unsubscribe(ctx context.Context, conn db.ConnOrTx, issueID, userID int) error {
	_, err := conn.Exec(ctx,
		`
		UPDATE bugtracker_issue_subscription
		SET active = FALSE
		WHERE issue_id = $1 AND user_id = $2
		`,
		issueID,
		userID,
	)
	if err != nil {
		return oops.New(err, "failed to unsubscribe user %d from issue %d", userID, issueID)
	}
	return nil
}

func IsSubscribed(ctx context.Context, conn db.ConnOrTx, issueID, userID int) (bool, error) {
	subscribed, err := db.QueryOneScalar[bool](ctx, conn,
		`
		---- Check subscription
		SELECT EXISTS (
			SELECT 1
			FROM bugtracker_issue_subscription
			WHERE issue_id = $1 AND user_id = $2 AND active
		)
		`,
		issueID,
		userID,
	)
	if err != nil {
		return false, oops.New(err, "failed to check subscription of user %d to issue %d", userID, issueID)
	}
	return subscribed, nil
}

// Users with an active subscription to the issue, by id.
func FetchSubscribers(ctx context.Context, conn db.ConnOrTx, issueID int) ([]*models.User, error) {
	subscribers, err := db.Query[models.User](ctx, conn,
		`
		---- Fetch issue subscribers
		SELECT $columns{u}
		FROM
			bugtracker_issue_subscription AS s
			JOIN auth_user AS u ON u.id = s.user_id
		WHERE
			s.issue_id = $1
			AND s.active
		ORDER BY u.id
		`,
		issueID,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch subscribers of issue %d", issueID)
	}
	return subscribers, nil
}
