package blog

import (
	"context"

	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/models"
	"git.cdm.community/cdm/cdm/src/oops"
	"git.cdm.community/cdm/cdm/src/parsing"
	"git.cdm.community/cdm/cdm/src/rerender"
)

// Re-render handlers for everything the blog stores rendered markup for.
var RerenderHandlers = []rerender.Handler{
	{Kind: "article", Rerender: rerenderArticles},
	{Kind: "category", Rerender: rerenderCategories},
	{Kind: "tag", Rerender: rerenderTags},
	{Kind: "note", Rerender: rerenderNotes},
}

func rerenderArticles(ctx context.Context, conn db.ConnOrTx) (rerender.Stats, error) {
	return rerender.Rows(ctx, conn, "article", "blog_article",
		func(a *models.Article) int { return a.ID },
		func(ctx context.Context, conn db.ConnOrTx, a *models.Article) error {
			renderArticle(a)
			_, err := conn.Exec(ctx,
				`
				UPDATE blog_article
				SET
					description_html = $2,
					description_text = $3,
					content_html = $4,
					content_text = $5,
					summary_html = $6,
					footnotes_html = $7
				WHERE id = $1
				`,
				a.ID,
				a.DescriptionHtml,
				a.DescriptionText,
				a.ContentHtml,
				a.ContentText,
				a.SummaryHtml,
				a.FootnotesHtml,
			)
			if err != nil {
				return oops.New(err, "failed to store re-rendered article")
			}
			return nil
		},
	)
}

// Categories, tags and notes all render a description the same way.
func rerenderDescriptions[T any](kind, table string, idOf func(*T) int, descOf func(*T) string) rerender.Func {
	return func(ctx context.Context, conn db.ConnOrTx) (rerender.Stats, error) {
		return rerender.Rows(ctx, conn, kind, table, idOf,
			func(ctx context.Context, conn db.ConnOrTx, row *T) error {
				desc := parsing.Render(descOf(row), parsing.TaxonomyDescriptionOptions)
				_, err := conn.Exec(ctx,
					`
					UPDATE `+table+`
					SET description_html = $2, description_text = $3
					WHERE id = $1
					`,
					idOf(row),
					desc.HTML,
					desc.Text,
				)
				if err != nil {
					return oops.New(err, "failed to store re-rendered %s", kind)
				}
				return nil
			},
		)
	}
}

var rerenderCategories = rerenderDescriptions("category", "blog_article_category",
	func(c *models.ArticleCategory) int { return c.ID },
	func(c *models.ArticleCategory) string { return c.Description },
)

var rerenderTags = rerenderDescriptions("tag", "blog_article_tag",
	func(t *models.ArticleTag) int { return t.ID },
	func(t *models.ArticleTag) string { return t.Description },
)

var rerenderNotes = rerenderDescriptions("note", "blog_article_note",
	func(n *models.ArticleNote) int { return n.ID },
	func(n *models.ArticleNote) string { return n.Description },
)
