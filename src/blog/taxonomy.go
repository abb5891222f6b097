package blog

import (
	"context"
	"errors"

	"git.cdm.community/cdm/cdm/src/changes"
	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/models"
	"git.cdm.community/cdm/cdm/src/oops"
	"git.cdm.community/cdm/cdm/src/parsing"
	"git.cdm.community/cdm/cdm/src/slugs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	ErrTagNotFound  = oops.NewCoded(oops.KindNotFound, "tag_not_found", "no such tag")
	ErrNoteNotFound = oops.NewCoded(oops.KindNotFound, "note_not_found", "no such note")
)

const tagSlugConstraint = "blog_article_tag_slug_key"

func SaveTag(ctx context.Context, conn db.ConnOrTx, edit changes.Edit[models.ArticleTag]) (*models.ArticleTag, error) {
	if err := models.Validate(edit.Current); err != nil {
		return nil, err
	}

	tag := edit.Current
	if !edit.IsNew() {
		tag.ID = edit.Original.ID
	}
	desc := parsing.Render(tag.Description, parsing.TaxonomyDescriptionOptions)
	tag.DescriptionHtml = desc.HTML
	tag.DescriptionText = desc.Text

	var saved *models.ArticleTag
	err := slugs.Retry(ctx, tagSlugConstraint, func(attempt int) error {
		return db.WithTx(ctx, conn, func(tx pgx.Tx) error {
			t := tag
			slug, err := slugs.Allocate(ctx, tx, slugs.Scope{
				Table:     "blog_article_tag",
				ExcludeID: t.ID,
			}, t.Slug, t.Name)
			if err != nil {
				return err
			}
			t.Slug = slug

			if edit.IsNew() {
				saved, err = db.QueryOne[models.ArticleTag](ctx, tx,
					`
					INSERT INTO blog_article_tag (name, slug, description, description_html, description_text)
					VALUES ($1, $2, $3, $4, $5)
					RETURNING $columns
					`,
					t.Name, t.Slug, t.Description, t.DescriptionHtml, t.DescriptionText,
				)
				if err != nil {
					return oops.New(err, "failed to insert tag")
				}
				return nil
			}

			saved, err = db.QueryOne[models.ArticleTag](ctx, tx,
				`
				UPDATE blog_article_tag
				SET name = $2, slug = $3, description = $4, description_html = $5, description_text = $6
				WHERE id = $1
				RETURNING $columns
				`,
				t.ID, t.Name, t.Slug, t.Description, t.DescriptionHtml, t.DescriptionText,
			)
			if errors.Is(err, db.NotFound) {
				return ErrTagNotFound
			} else if err != nil {
				return oops.New(err, "failed to update tag %d", t.ID)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func FetchTagBySlug(ctx context.Context, conn db.ConnOrTx, slug string) (*models.ArticleTag, error) {
	tag, err := db.QueryOne[models.ArticleTag](ctx, conn,
		`
		---- Fetch tag by slug
		SELECT $columns
		FROM blog_article_tag
		WHERE slug = $1
		`,
		slug,
	)
	if errors.Is(err, db.NotFound) {
		return nil, ErrTagNotFound
	} else if err != nil {
		return nil, oops.New(err, "failed to fetch tag %s", slug)
	}
	return tag, nil
}

func SaveNote(ctx context.Context, conn db.ConnOrTx, edit changes.Edit[models.ArticleNote]) (*models.ArticleNote, error) {
	note := edit.Current
	if note.Type == "" {
		note.Type = models.NoteTypeDefault
	}
	if err := models.Validate(note); err != nil {
		return nil, err
	}
	if !edit.IsNew() {
		note.ID = edit.Original.ID
	}
	desc := parsing.Render(note.Description, parsing.TaxonomyDescriptionOptions)
	note.DescriptionHtml = desc.HTML
	note.DescriptionText = desc.Text

	if edit.IsNew() {
		saved, err := db.QueryOne[models.ArticleNote](ctx, conn,
			`
			INSERT INTO blog_article_note (title, type, description, description_html, description_text)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING $columns
			`,
			note.Title, note.Type, note.Description, note.DescriptionHtml, note.DescriptionText,
		)
		if err != nil {
			return nil, oops.New(err, "failed to insert note")
		}
		return saved, nil
	}

	saved, err := db.QueryOne[models.ArticleNote](ctx, conn,
		`
		UPDATE blog_article_note
		SET title = $2, type = $3, description = $4, description_html = $5, description_text = $6
		WHERE id = $1
		RETURNING $columns
		`,
		note.ID, note.Title, note.Type, note.Description, note.DescriptionHtml, note.DescriptionText,
	)
	if errors.Is(err, db.NotFound) {
		return nil, ErrNoteNotFound
	} else if err != nil {
		return nil, oops.New(err, "failed to update note %d", note.ID)
	}
	return saved, nil
}

// Tables linking articles to other things, and the column naming the other
// side.
var (
	linkTags            = articleLink{"blog_article_tags", "tag_id"}
	linkCategories      = articleLink{"blog_article_categories", "category_id"}
	linkHeadNotes       = articleLink{"blog_article_head_notes", "note_id"}
	linkFootNotes       = articleLink{"blog_article_foot_notes", "note_id"}
	linkFollowUpOf      = articleLink{"blog_article_follow_up_of", "target_id"}
	linkRelatedArticles = articleLink{"blog_article_related_articles", "target_id"}
	linkImgAttachments  = articleLink{"blog_article_img_attachments", "image"}
)

type articleLink struct {
	Table  string
	Column string
}

func dedupe[T comparable](values []T) []T {
	seen := make(map[T]bool, len(values))
	var result []T
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			result = append(result, v)
		}
	}
	return result
}

// Replaces every link of an article in one table with the given targets.
func replaceLinks[T comparable](ctx context.Context, conn db.ConnOrTx, link articleLink, articleID int, targets []T) error {
	targets = dedupe(targets)
	return db.WithTx(ctx, conn, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, "DELETE FROM "+link.Table+" WHERE article_id = $1", articleID)
		if err != nil {
			return oops.New(err, "failed to clear %s of article %d", link.Table, articleID)
		}
		if len(targets) == 0 {
			return nil
		}

		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{link.Table},
			[]string{"article_id", link.Column},
			pgx.CopyFromSlice(len(targets), func(i int) ([]any, error) {
				return []any{articleID, targets[i]}, nil
			}),
		)
		if err != nil {
			return oops.New(err, "failed to write %s of article %d", link.Table, articleID)
		}
		return nil
	})
}

func SetArticleTags(ctx context.Context, conn db.ConnOrTx, articleID int, tagIDs []int) error {
	return replaceLinks(ctx, conn, linkTags, articleID, tagIDs)
}

func SetArticleCategories(ctx context.Context, conn db.ConnOrTx, articleID int, categoryIDs []int) error {
	return replaceLinks(ctx, conn, linkCategories, articleID, categoryIDs)
}

func SetArticleHeadNotes(ctx context.Context, conn db.ConnOrTx, articleID int, noteIDs []int) error {
	return replaceLinks(ctx, conn, linkHeadNotes, articleID, noteIDs)
}

func SetArticleFootNotes(ctx context.Context, conn db.ConnOrTx, articleID int, noteIDs []int) error {
	return replaceLinks(ctx, conn, linkFootNotes, articleID, noteIDs)
}

// An article may follow up on itself; nothing here prevents it.
func SetFollowUpOf(ctx context.Context, conn db.ConnOrTx, articleID int, targetIDs []int) error {
	return replaceLinks(ctx, conn, linkFollowUpOf, articleID, targetIDs)
}

func SetRelatedArticles(ctx context.Context, conn db.ConnOrTx, articleID int, targetIDs []int) error {
	return replaceLinks(ctx, conn, linkRelatedArticles, articleID, targetIDs)
}

func SetImgAttachments(ctx context.Context, conn db.ConnOrTx, articleID int, images []uuid.UUID) error {
	return replaceLinks(ctx, conn, linkImgAttachments, articleID, images)
}

func FetchArticleTags(ctx context.Context, conn db.ConnOrTx, articleID int) ([]*models.ArticleTag, error) {
	tags, err := db.Query[models.ArticleTag](ctx, conn,
		`
		---- Fetch article tags
		SELECT $columns{tag}
		FROM
			blog_article_tags AS link
			JOIN blog_article_tag AS tag ON tag.id = link.tag_id
		WHERE link.article_id = $1
		ORDER BY tag.name
		`,
		articleID,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch tags of article %d", articleID)
	}
	return tags, nil
}

func FetchArticleCategories(ctx context.Context, conn db.ConnOrTx, articleID int) ([]*models.ArticleCategory, error) {
	categories, err := db.Query[models.ArticleCategory](ctx, conn,
		`
		---- Fetch article categories
		SELECT $columns{category}
		FROM
			blog_article_categories AS link
			JOIN blog_article_category AS category ON category.id = link.category_id
		WHERE link.article_id = $1
		ORDER BY category.slug_hierarchy
		`,
		articleID,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch categories of article %d", articleID)
	}
	return categories, nil
}

// Head notes are shown above the article, foot notes below it.
func FetchArticleNotes(ctx context.Context, conn db.ConnOrTx, articleID int) (head, foot []*models.ArticleNote, err error) {
	fetch := func(link articleLink) ([]*models.ArticleNote, error) {
		notes, err := db.Query[models.ArticleNote](ctx, conn,
			`
			---- Fetch article notes
			SELECT $columns{note}
			FROM
				`+link.Table+` AS link
				JOIN blog_article_note AS note ON note.id = link.note_id
			WHERE link.article_id = $1
			ORDER BY note.id
			`,
			articleID,
		)
		if err != nil {
			return nil, oops.New(err, "failed to fetch %s of article %d", link.Table, articleID)
		}
		return notes, nil
	}

	head, err = fetch(linkHeadNotes)
	if err != nil {
		return nil, nil, err
	}
	foot, err = fetch(linkFootNotes)
	if err != nil {
		return nil, nil, err
	}
	return head, foot, nil
}

func FetchImgAttachments(ctx context.Context, conn db.ConnOrTx, articleID int) ([]uuid.UUID, error) {
	images, err := db.QueryScalar[uuid.UUID](ctx, conn,
		`
		---- Fetch article images
		SELECT image
		FROM blog_article_img_attachments
		WHERE article_id = $1
		ORDER BY image
		`,
		articleID,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch images of article %d", articleID)
	}
	return images, nil
}

/*
Articles reachable from the given one through related-article links, up to
maxDepth links away. Links may form cycles; the depth bound keeps the walk
finite. The article itself is never part of the result.
*/
func FetchRelatedArticles(ctx context.Context, conn db.ConnOrTx, articleID int, maxDepth int) ([]*models.Article, error) {
	return fetchLinkedArticles(ctx, conn, linkRelatedArticles, articleID, maxDepth)
}

// Like FetchRelatedArticles, for follow-up links.
func FetchFollowUpOf(ctx context.Context, conn db.ConnOrTx, articleID int, maxDepth int) ([]*models.Article, error) {
	return fetchLinkedArticles(ctx, conn, linkFollowUpOf, articleID, maxDepth)
}

func fetchLinkedArticles(ctx context.Context, conn db.ConnOrTx, link articleLink, articleID int, maxDepth int) ([]*models.Article, error) {
	if maxDepth < 1 {
		return nil, nil
	}
	articles, err := db.Query[models.Article](ctx, conn,
		`
		---- Fetch linked articles
		WITH RECURSIVE linked (id, depth) AS (
			SELECT target_id, 1 FROM `+link.Table+` WHERE article_id = $1
			UNION
			SELECT l.target_id, linked.depth + 1
			FROM `+link.Table+` AS l
			JOIN linked ON l.article_id = linked.id
			WHERE linked.depth < $2
		)
		SELECT $columns
		FROM blog_article
		WHERE
			id IN (SELECT id FROM linked)
			AND id <> $1
		ORDER BY featured DESC, creation_date DESC, id DESC
		`,
		articleID,
		maxDepth,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch %s of article %d", link.Table, articleID)
	}
	return articles, nil
}
