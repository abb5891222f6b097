package blog

import (
	"context"
	"errors"

	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/forum"
	"git.cdm.community/cdm/cdm/src/logging"
	"git.cdm.community/cdm/cdm/src/models"
	"git.cdm.community/cdm/cdm/src/oops"
	"github.com/jackc/pgx/v5"
)

var ErrForumMisconfigured = oops.NewCoded(oops.KindMisconfigured, "forum_misconfigured", "the forum for article threads does not exist")

func wantsRelatedThread(a *models.Article, parentForumID int) bool {
	return parentForumID != 0 &&
		a.Status == models.ArticleStatusPublished &&
		a.AutoCreateRelatedForumThread &&
		a.RelatedForumThreadID == nil
}

/*
Opens the discussion thread of a published article and links it back. Does
nothing if no forum is configured or the article already has a thread. A
configured forum that doesn't exist is a deployment mistake and is reported
as ErrForumMisconfigured.
*/
func ensureRelatedThread(ctx context.Context, conn db.ConnOrTx, a *models.Article, parentForumID int) error {
	if !wantsRelatedThread(a, parentForumID) {
		return nil
	}

	err := db.WithTx(ctx, conn, func(tx pgx.Tx) error {
		threadID, err := forum.CreateThread(ctx, tx,
			parentForumID,
			a.Title,
			a.AuthorID,
			*a.PubDate,
			a.DescriptionHtml,
			nil,
		)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`
			UPDATE blog_article
			SET related_forum_thread_id = $1
			WHERE id = $2
			`,
			threadID,
			a.ID,
		)
		if err != nil {
			return oops.New(err, "failed to link thread to article")
		}
		a.RelatedForumThreadID = &threadID
		return nil
	})
	if errors.Is(err, forum.ErrForumNotFound) {
		logging.ExtractLogger(ctx).Error().
			Int("forum_id", parentForumID).
			Int("article_id", a.ID).
			Msg("forum for article threads does not exist")
		return oops.New(errors.Join(ErrForumMisconfigured, err), "failed to create thread for article %d", a.ID)
	} else if err != nil {
		return oops.New(err, "failed to create thread for article %d", a.ID)
	}
	return nil
}
