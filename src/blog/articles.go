/*
Package blog stores articles, their revisions and their taxonomies.

Articles are only ever written through SaveArticle, which keeps the slug
unique, derives the publication dates, re-renders the markup and records a
revision of the previous text, all in one transaction.
*/
package blog

import (
	"context"
	"errors"
	"time"

	"git.cdm.community/cdm/cdm/src/changes"
	"git.cdm.community/cdm/cdm/src/config"
	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/models"
	"git.cdm.community/cdm/cdm/src/oops"
	"git.cdm.community/cdm/cdm/src/parsing"
	"git.cdm.community/cdm/cdm/src/slugs"
	"github.com/jackc/pgx/v5"
)

var ErrArticleNotFound = oops.NewCoded(oops.KindNotFound, "article_not_found", "no such article")

const articleSlugConstraint = "blog_article_slug_key"

type SaveArticleOptions struct {
	// Who is saving. Recorded as the author of the revision; may be nil.
	CurrentUser         *models.User
	MinorChange         bool
	RevisionDescription string

	// Defaults to time.Now().
	Now time.Time
	// Forum that receives discussion threads for newly published articles.
	// Defaults to the configured one; 0 disables thread creation.
	ParentForumID *int
}

type articlePlan struct {
	Article  models.Article
	Diff     changes.Diff
	Revision *models.ArticleRevision
}

/*
Works out everything SaveArticle will write, short of the slug. This is where
publication dates are derived, the markup rendered and the revision built.
It touches no database.
*/
func planArticleSave(edit changes.Edit[models.Article], opts SaveArticleOptions, now time.Time) articlePlan {
	a := edit.Current
	diff := edit.Diff()
	contentChanged := diff.Has(models.ArticleRevisionFields...)

	if edit.IsNew() {
		if a.CreationDate.IsZero() {
			a.CreationDate = now
		}
	} else {
		a.ID = edit.Original.ID
		a.CreationDate = edit.Original.CreationDate
	}

	if a.Status == models.ArticleStatusPublished && a.PubDate == nil {
		pubDate := now
		a.PubDate = &pubDate
		a.LastContentModificationDate = nil
	} else if !edit.IsNew() && contentChanged {
		modified := now
		a.LastContentModificationDate = &modified
	}
	if a.LastContentModificationDate != nil {
		if a.PubDate == nil || !a.LastContentModificationDate.After(*a.PubDate) {
			a.LastContentModificationDate = nil
		}
	}

	renderArticle(&a)

	plan := articlePlan{
		Article: a,
		Diff:    diff,
	}
	if !edit.IsNew() && contentChanged {
		old := edit.Original
		plan.Revision = &models.ArticleRevision{
			RelatedArticleID:    old.ID,
			Title:               old.Title,
			Subtitle:            old.Subtitle,
			Description:         old.Description,
			Content:             old.Content,
			RevisionMinorChange: opts.MinorChange,
			RevisionDescription: opts.RevisionDescription,
			RevisionAuthorID:    opts.CurrentUser.IDOrNil(),
			RevisionDate:        now,
		}
	}
	return plan
}

func renderArticle(a *models.Article) {
	desc := parsing.Render(a.Description, parsing.ArticleDescriptionOptions)
	a.DescriptionHtml = desc.HTML
	a.DescriptionText = desc.Text

	content := parsing.Render(a.Content, parsing.ArticleContentOptions)
	a.ContentHtml = content.HTML
	a.ContentText = content.Text
	a.SummaryHtml = content.SummaryHTML
	a.FootnotesHtml = content.FootnotesHTML
}

/*
Saves an article. New articles are inserted; edits of loaded articles are
updated and, when the title, subtitle, description or content changed, the
text as it was before the save is kept as a revision.

If the article ends up published and wants a discussion thread, the thread
is created after the article is committed. An error from that step is
returned together with the saved article.
*/
func SaveArticle(
	ctx context.Context,
	conn db.ConnOrTx,
	edit changes.Edit[models.Article],
	opts SaveArticleOptions,
) (*models.Article, error) {
	if err := models.Validate(edit.Current); err != nil {
		return nil, err
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	var saved *models.Article
	err := slugs.Retry(ctx, articleSlugConstraint, func(attempt int) error {
		return db.WithTx(ctx, conn, func(tx pgx.Tx) error {
			// The revision holds the text being overwritten, which may be
			// newer than what the caller loaded.
			current := edit
			if !edit.IsNew() {
				stored, err := lockArticle(ctx, tx, edit.Original.ID)
				if err != nil {
					return err
				}
				current = edit.Rebase(stored)
			}
			plan := planArticleSave(current, opts, now)

			article := plan.Article
			slug, err := slugs.Allocate(ctx, tx, slugs.Scope{
				Table:     "blog_article",
				ExcludeID: article.ID,
			}, article.Slug, article.Title)
			if err != nil {
				return err
			}
			article.Slug = slug

			if edit.IsNew() {
				saved, err = insertArticle(ctx, tx, &article)
			} else {
				saved, err = updateArticle(ctx, tx, &article)
			}
			if err != nil {
				return err
			}

			if plan.Revision != nil {
				if err := insertRevision(ctx, tx, plan.Revision); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	parentForumID := config.Config.Blog.ParentForumIDForArticleThreads
	if opts.ParentForumID != nil {
		parentForumID = *opts.ParentForumID
	}
	if err := ensureRelatedThread(ctx, conn, saved, parentForumID); err != nil {
		return saved, err
	}
	return saved, nil
}

func insertArticle(ctx context.Context, tx pgx.Tx, a *models.Article) (*models.Article, error) {
	saved, err := db.QueryOne[models.Article](ctx, tx,
		`
		INSERT INTO blog_article (
			slug, title, subtitle, author_id, status, license_id,
			network_publish, featured, auto_create_related_forum_thread, display_img_gallery,
			heading_img, thumbnail_img,
			description, description_html, description_text,
			content, content_html, content_text, summary_html, footnotes_html,
			creation_date, last_content_modification_date, pub_date, expiration_date,
			membership_required, membership_required_expiration_date,
			related_forum_thread_id
		)
		VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12,
			$13, $14, $15,
			$16, $17, $18, $19, $20,
			$21, $22, $23, $24,
			$25, $26,
			$27
		)
		RETURNING $columns
		`,
		a.Slug, a.Title, a.Subtitle, a.AuthorID, a.Status, a.LicenseID,
		a.NetworkPublish, a.Featured, a.AutoCreateRelatedForumThread, a.DisplayImgGallery,
		a.HeadingImg, a.ThumbnailImg,
		a.Description, a.DescriptionHtml, a.DescriptionText,
		a.Content, a.ContentHtml, a.ContentText, a.SummaryHtml, a.FootnotesHtml,
		a.CreationDate, a.LastContentModificationDate, a.PubDate, a.ExpirationDate,
		a.MembershipRequired, a.MembershipRequiredExpirationDate,
		a.RelatedForumThreadID,
	)
	if err != nil {
		return nil, oops.New(err, "failed to insert article")
	}
	return saved, nil
}

func updateArticle(ctx context.Context, tx pgx.Tx, a *models.Article) (*models.Article, error) {
	saved, err := db.QueryOne[models.Article](ctx, tx,
		`
		UPDATE blog_article
		SET
			slug = $2, title = $3, subtitle = $4, author_id = $5, status = $6, license_id = $7,
			network_publish = $8, featured = $9, auto_create_related_forum_thread = $10, display_img_gallery = $11,
			heading_img = $12, thumbnail_img = $13,
			description = $14, description_html = $15, description_text = $16,
			content = $17, content_html = $18, content_text = $19, summary_html = $20, footnotes_html = $21,
			last_content_modification_date = $22, pub_date = $23, expiration_date = $24,
			membership_required = $25, membership_required_expiration_date = $26,
			related_forum_thread_id = $27
		WHERE id = $1
		RETURNING $columns
		`,
		a.ID,
		a.Slug, a.Title, a.Subtitle, a.AuthorID, a.Status, a.LicenseID,
		a.NetworkPublish, a.Featured, a.AutoCreateRelatedForumThread, a.DisplayImgGallery,
		a.HeadingImg, a.ThumbnailImg,
		a.Description, a.DescriptionHtml, a.DescriptionText,
		a.Content, a.ContentHtml, a.ContentText, a.SummaryHtml, a.FootnotesHtml,
		a.LastContentModificationDate, a.PubDate, a.ExpirationDate,
		a.MembershipRequired, a.MembershipRequiredExpirationDate,
		a.RelatedForumThreadID,
	)
	if errors.Is(err, db.NotFound) {
		return nil, ErrArticleNotFound
	} else if err != nil {
		return nil, oops.New(err, "failed to update article %d", a.ID)
	}
	return saved, nil
}

func insertRevision(ctx context.Context, tx pgx.Tx, r *models.ArticleRevision) error {
	_, err := tx.Exec(ctx,
		`
		INSERT INTO blog_article_revision (
			related_article_id, title, subtitle, description, content,
			revision_minor_change, revision_description, revision_author_id, revision_date
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
		r.RelatedArticleID, r.Title, r.Subtitle, r.Description, r.Content,
		r.RevisionMinorChange, r.RevisionDescription, r.RevisionAuthorID, r.RevisionDate,
	)
	if err != nil {
		return oops.New(err, "failed to insert revision of article %d", r.RelatedArticleID)
	}
	return nil
}

func FetchArticle(ctx context.Context, conn db.ConnOrTx, id int) (*models.Article, error) {
	article, err := db.QueryOne[models.Article](ctx, conn,
		`
		---- Fetch article
		SELECT $columns
		FROM blog_article
		WHERE id = $1
		`,
		id,
	)
	if errors.Is(err, db.NotFound) {
		return nil, ErrArticleNotFound
	} else if err != nil {
		return nil, oops.New(err, "failed to fetch article %d", id)
	}
	return article, nil
}

func lockArticle(ctx context.Context, tx pgx.Tx, id int) (*models.Article, error) {
	article, err := db.QueryOne[models.Article](ctx, tx,
		`
		---- Lock article
		SELECT $columns
		FROM blog_article
		WHERE id = $1
		FOR UPDATE
		`,
		id,
	)
	if errors.Is(err, db.NotFound) {
		return nil, ErrArticleNotFound
	} else if err != nil {
		return nil, oops.New(err, "failed to lock article %d", id)
	}
	return article, nil
}

func FetchArticleBySlug(ctx context.Context, conn db.ConnOrTx, slug string) (*models.Article, error) {
	article, err := db.QueryOne[models.Article](ctx, conn,
		`
		---- Fetch article by slug
		SELECT $columns
		FROM blog_article
		WHERE slug = $1
		`,
		slug,
	)
	if errors.Is(err, db.NotFound) {
		return nil, ErrArticleNotFound
	} else if err != nil {
		return nil, oops.New(err, "failed to fetch article %s", slug)
	}
	return article, nil
}

// Newest first.
func FetchRevisions(ctx context.Context, conn db.ConnOrTx, articleID int) ([]*models.ArticleRevision, error) {
	revisions, err := db.Query[models.ArticleRevision](ctx, conn,
		`
		---- Fetch article revisions
		SELECT $columns
		FROM blog_article_revision
		WHERE related_article_id = $1
		ORDER BY revision_date DESC, id DESC
		`,
		articleID,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch revisions of article %d", articleID)
	}
	return revisions, nil
}

func addPublishedFilter(qb *db.QueryBuilder, now time.Time) {
	qb.Add(
		`
		WHERE
			status = $?
			AND pub_date <= $?
			AND (expiration_date IS NULL OR expiration_date >= $?)
		`,
		models.ArticleStatusPublished,
		now,
		now,
	)
}

// Articles readers can see at time now, featured ones first and then the
// most recently published. A limit of 0 means no limit.
func FetchPublishedArticles(ctx context.Context, conn db.ConnOrTx, now time.Time, limit, offset int) ([]*models.Article, error) {
	var qb db.QueryBuilder
	qb.Add(`
		---- Fetch published articles
		SELECT $columns
		FROM blog_article
	`)
	addPublishedFilter(&qb, now)
	qb.Add(`ORDER BY featured DESC, pub_date DESC, id DESC`)
	qb.AddIf(limit > 0, `LIMIT $? OFFSET $?`, limit, offset)

	articles, err := db.Query[models.Article](ctx, conn, qb.String(), qb.Args()...)
	if err != nil {
		return nil, oops.New(err, "failed to fetch published articles")
	}
	return articles, nil
}

func CountPublishedArticles(ctx context.Context, conn db.ConnOrTx, now time.Time) (int, error) {
	var qb db.QueryBuilder
	qb.Add(`
		---- Count published articles
		SELECT COUNT(*)
		FROM blog_article
	`)
	addPublishedFilter(&qb, now)

	count, err := db.QueryOneScalar[int](ctx, conn, qb.String(), qb.Args()...)
	if err != nil {
		return 0, oops.New(err, "failed to count published articles")
	}
	return count, nil
}

// Every article by an author, whatever its status, featured first and then
// newest.
func FetchArticlesByAuthor(ctx context.Context, conn db.ConnOrTx, authorID int) ([]*models.Article, error) {
	articles, err := db.Query[models.Article](ctx, conn,
		`
		---- Fetch articles by author
		SELECT $columns
		FROM blog_article
		WHERE author_id = $1
		ORDER BY featured DESC, creation_date DESC, id DESC
		`,
		authorID,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch articles of user %d", authorID)
	}
	return articles, nil
}
