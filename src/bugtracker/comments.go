package bugtracker

import (
	"context"
	"errors"
	"net/netip"
	"time"

	"git.cdm.community/cdm/cdm/src/antiflood"
	"git.cdm.community/cdm/cdm/src/changes"
	"git.cdm.community/cdm/cdm/src/config"
	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/models"
	"git.cdm.community/cdm/cdm/src/notify"
	"git.cdm.community/cdm/cdm/src/oops"
	"git.cdm.community/cdm/cdm/src/parsing"
	"git.cdm.community/cdm/cdm/src/urls"
	"git.cdm.community/cdm/cdm/src/users"
	"github.com/jackc/pgx/v5"
)

func renderComment(c *models.IssueComment, author *models.User) {
	body := parsing.Render(c.Body, parsing.TicketOptions(author))
	c.BodyHtml = body.HTML
	c.BodyText = body.Text
}

func insertComment(ctx context.Context, tx pgx.Tx, c *models.IssueComment, author *models.User, now time.Time) (*models.IssueComment, error) {
	renderComment(c, author)
	saved, err := db.QueryOne[models.IssueComment](ctx, tx,
		`
		INSERT INTO bugtracker_issue_comment (
			issue_id, author_id, author_ip_address,
			pub_date, last_modification_date,
			body, body_html, body_text
		)
		VALUES ($1, $2, $3, $4, $4, $5, $6, $7)
		RETURNING $columns
		`,
		c.IssueID, c.AuthorID, c.AuthorIPAddress,
		now,
		c.Body, c.BodyHtml, c.BodyText,
	)
	if err != nil {
		return nil, oops.New(err, "failed to insert comment on issue %d", c.IssueID)
	}
	return saved, nil
}

type CommentOptions struct {
	AuthorIP *netip.Prefix
	// Defaults to time.Now().
	Now time.Time
}

/*
Posts a comment on an issue. The flood check, the comment and the new flood
timestamp are written in one transaction, with the author's profile row
locked, so two quick posts can't both pass the check.
*/
func PostComment(
	ctx context.Context,
	conn db.ConnOrTx,
	n notify.Notifier,
	issueID int,
	author *models.User,
	body string,
	opts CommentOptions,
) (*models.IssueComment, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	var ticket *models.IssueTicket
	var saved *models.IssueComment
	err := db.Retry(ctx, db.RetryOptions{}, func(attempt int) error {
		return db.WithTx(ctx, conn, func(tx pgx.Tx) error {
			var err error
			ticket, err = FetchTicket(ctx, tx, issueID)
			if err != nil {
				return err
			}

			profile, err := lockProfile(ctx, tx, author.ID)
			if err != nil {
				return err
			}
			if err := antiflood.Check(floodModule, profile.LastCommentDate, config.Config.BugTracker.CommentWindow(), now); err != nil {
				return err
			}

			saved, err = insertComment(ctx, tx, &models.IssueComment{
				IssueID:         issueID,
				AuthorID:        author.ID,
				AuthorIPAddress: opts.AuthorIP,
				Body:            body,
			}, author, now)
			if err != nil {
				return err
			}

			profile.LastCommentDate = &now
			if err := touchProfile(ctx, tx, profile); err != nil {
				return err
			}
			if profile.NotifyOfReplyByDefault {
				if err := Subscribe(ctx, tx, issueID, author.ID); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	notifyNewComment(ctx, conn, n, ticket, saved, author)
	return saved, nil
}

// Edits the body of a comment. Only its author and users who may edit any
// ticket can do that. The body is rendered with its author's permissions,
// whoever edits it.
func EditComment(
	ctx context.Context,
	conn db.ConnOrTx,
	editor *models.User,
	edit changes.Edit[models.IssueComment],
	now time.Time,
) (*models.IssueComment, error) {
	if edit.IsNew() {
		return nil, oops.New(nil, "comments are created with PostComment")
	}
	original := edit.Original
	if editor == nil || (editor.ID != original.AuthorID && !editor.Has(models.PermEditAnyTicket)) {
		return nil, ErrPermissionDenied
	}
	if now.IsZero() {
		now = time.Now()
	}

	author, err := users.FetchUser(ctx, conn, original.AuthorID)
	if err != nil {
		return nil, oops.New(err, "failed to fetch author of comment %d", original.ID)
	}

	c := edit.Current
	renderComment(&c, author)
	saved, err := db.QueryOne[models.IssueComment](ctx, conn,
		`
		UPDATE bugtracker_issue_comment
		SET
			body = $2, body_html = $3, body_text = $4,
			last_modification_date = $5
		WHERE id = $1
		RETURNING $columns
		`,
		original.ID,
		c.Body, c.BodyHtml, c.BodyText,
		now,
	)
	if errors.Is(err, db.NotFound) {
		return nil, ErrCommentNotFound
	} else if err != nil {
		return nil, oops.New(err, "failed to update comment %d", original.ID)
	}
	return saved, nil
}

func FetchComment(ctx context.Context, conn db.ConnOrTx, id int) (*models.IssueComment, error) {
	c, err := db.QueryOne[models.IssueComment](ctx, conn,
		`
		---- Fetch comment
		SELECT $columns
		FROM bugtracker_issue_comment
		WHERE id = $1
		`,
		id,
	)
	if errors.Is(err, db.NotFound) {
		return nil, ErrCommentNotFound
	} else if err != nil {
		return nil, oops.New(err, "failed to fetch comment %d", id)
	}
	return c, nil
}

// Comments of an issue, oldest first. A zero limit fetches all of them.
func FetchComments(ctx context.Context, conn db.ConnOrTx, issueID int, limit, offset int) ([]*models.IssueComment, error) {
	var qb db.QueryBuilder
	qb.Add(
		`
		SELECT $columns
		FROM bugtracker_issue_comment
		WHERE issue_id = $?
		ORDER BY id
		`,
		issueID,
	)
	if limit > 0 {
		qb.Add(`LIMIT $? OFFSET $?`, limit, offset)
	}

	comments, err := db.Query[models.IssueComment](ctx, conn, qb.String(), qb.Args()...)
	if err != nil {
		return nil, oops.New(err, "failed to fetch comments of issue %d", issueID)
	}
	return comments, nil
}

func CountComments(ctx context.Context, conn db.ConnOrTx, issueID int) (int, error) {
	count, err := db.QueryOneScalar[int](ctx, conn,
		`
		---- Count comments
		SELECT COUNT(*)
		FROM bugtracker_issue_comment
		WHERE issue_id = $1
		`,
		issueID,
	)
	if err != nil {
		return 0, oops.New(err, "failed to count comments of issue %d", issueID)
	}
	return count, nil
}

// Every recorded change of an issue, grouped by comment and in field order
// within a comment.
func FetchChanges(ctx context.Context, conn db.ConnOrTx, issueID int) ([]*models.IssueChange, error) {
	result, err := db.Query[models.IssueChange](ctx, conn,
		`
		---- Fetch changes
		SELECT $columns
		FROM bugtracker_issue_change
		WHERE issue_id = $1
		ORDER BY comment_id, field_name
		`,
		issueID,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch changes of issue %d", issueID)
	}
	return result, nil
}

// The page a comment lands on, given its 1-based position in the thread.
func CommentPage(position, pageSize int) int {
	if position < 1 || pageSize < 1 {
		return 1
	}
	return (position-1)/pageSize + 1
}

// The permalink of a comment: its issue's page that shows it, anchored on it.
func CommentLocation(ctx context.Context, conn db.ConnOrTx, comment *models.IssueComment, pageSize int) (string, error) {
	before, err := db.QueryOneScalar[int](ctx, conn,
		`
		---- Count earlier comments
		SELECT COUNT(*)
		FROM bugtracker_issue_comment
		WHERE issue_id = $1 AND id < $2
		`,
		comment.IssueID,
		comment.ID,
	)
	if err != nil {
		return "", oops.New(err, "failed to locate comment %d", comment.ID)
	}
	return urls.BuildTicketCommentAnchor(comment.IssueID, CommentPage(before+1, pageSize), comment.ID), nil
}
