package snippets

import (
	"context"

	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/models"
	"git.cdm.community/cdm/cdm/src/oops"
	"git.cdm.community/cdm/cdm/src/rerender"
)

var RerenderHandlers = []rerender.Handler{
	{Kind: "snippet", Rerender: rerenderSnippets},
}

func rerenderSnippets(ctx context.Context, conn db.ConnOrTx) (rerender.Stats, error) {
	return rerender.Rows(ctx, conn, "snippet", "snippets_code_snippet",
		func(s *models.CodeSnippet) int { return s.ID },
		func(ctx context.Context, conn db.ConnOrTx, s *models.CodeSnippet) error {
			if err := render(s); err != nil {
				return err
			}
			_, err := conn.Exec(ctx,
				`
				UPDATE snippets_code_snippet
				SET
					description_html = $2,
					description_text = $3,
					html_for_display = $4,
					css_for_display = $5
				WHERE id = $1
				`,
				s.ID,
				s.DescriptionHtml,
				s.DescriptionText,
				s.HtmlForDisplay,
				s.CssForDisplay,
			)
			if err != nil {
				return oops.New(err, "failed to store re-rendered snippet")
			}
			return nil
		},
	)
}
