// Package forum is the small part of the forums the blog needs: creating the
// discussion thread that goes with an article.
package forum

import (
	"context"
	"errors"
	"net/netip"
	"time"

	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/models"
	"git.cdm.community/cdm/cdm/src/oops"
	"github.com/jackc/pgx/v5"
)

var ErrForumNotFound = oops.NewCoded(oops.KindMisconfigured, "forum_not_found", "the forum does not exist")

func FetchForum(ctx context.Context, conn db.ConnOrTx, forumID int) (*models.Forum, error) {
	forum, err := db.QueryOne[models.Forum](ctx, conn,
		`
		---- Fetch forum
		SELECT $columns
		FROM forum
		WHERE id = $1
		`,
		forumID,
	)
	if errors.Is(err, db.NotFound) {
		return nil, ErrForumNotFound
	} else if err != nil {
		return nil, oops.New(err, "failed to fetch forum %d", forumID)
	}
	return forum, nil
}

/*
Creates a thread in the given forum with a single first post, and returns the
new thread's id. The forum must exist; otherwise the result is
ErrForumNotFound.
*/
func CreateThread(
	ctx context.Context,
	tx pgx.Tx,
	forumID int,
	title string,
	authorID int,
	pubDate time.Time,
	contentHtml string,
	authorIP *netip.Prefix,
) (int, error) {
	if _, err := FetchForum(ctx, tx, forumID); err != nil {
		return 0, err
	}

	var threadID int
	err := tx.QueryRow(ctx,
		`
		INSERT INTO forum_thread (forum_id, title, author_id, pub_date)
		VALUES ($1, $2, $3, $4)
		RETURNING id
		`,
		forumID,
		title,
		authorID,
		pubDate,
	).Scan(&threadID)
	if err != nil {
		return 0, oops.New(err, "failed to create thread")
	}

	var postID int
	err = tx.QueryRow(ctx,
		`
		INSERT INTO forum_post (thread_id, author_id, pub_date, content_html, author_ip)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
		`,
		threadID,
		authorID,
		pubDate,
		contentHtml,
		authorIP,
	).Scan(&postID)
	if err != nil {
		return 0, oops.New(err, "failed to create first post")
	}

	_, err = tx.Exec(ctx,
		`
		UPDATE forum_thread
		SET first_post_id = $1
		WHERE id = $2
		`,
		postID,
		threadID,
	)
	if err != nil {
		return 0, oops.New(err, "failed to set first post of thread")
	}

	return threadID, nil
}

func FetchThread(ctx context.Context, conn db.ConnOrTx, threadID int) (*models.ForumThread, error) {
	thread, err := db.QueryOne[models.ForumThread](ctx, conn,
		`
		---- Fetch thread
		SELECT $columns
		FROM forum_thread
		WHERE id = $1
		`,
		threadID,
	)
	if err != nil {
		if errors.Is(err, db.NotFound) {
			return nil, err
		}
		return nil, oops.New(err, "failed to fetch thread %d", threadID)
	}
	return thread, nil
}
