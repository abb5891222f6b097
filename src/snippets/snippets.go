/*
Package snippets stores shared code snippets along with their highlighted
rendering.

The highlighted HTML and its stylesheet are derived from the source and the
display settings every time a snippet is saved, so what is stored always
matches what would be rendered now.
*/
package snippets

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
)

var (
	ErrSnippetNotFound  = oops.NewCoded(oops.KindNotFound, "snippet_not_found", "no such snippet")
	ErrUnknownLanguage  = oops.NewCoded(oops.KindValidation, "unknown_language", "snippets can't be highlighted in that language")
	ErrPermissionDenied = oops.NewCoded(oops.KindPermissionDenied, "permission_denied", "you can't edit this snippet")
)

// Editing any of these counts as modifying the snippet. Display settings
// don't.
var sourceFields = []string{"title", "filename", "description", "source_code"}

var highlighter parsing.Highlighter = parsing.ChromaHighlighter{}

// A snippet with the configured display defaults.
func NewSnippet(authorID int, title, filename, language, source string) models.CodeSnippet {
	return models.CodeSnippet{
		AuthorID:           authorID,
		Title:              title,
		Filename:           filename,
		CodeLanguage:       language,
		PublicListing:      true,
		SourceCode:         source,
		DisplayLineNumbers: config.Config.Snippets.DisplayLineNumbersByDefault,
		TabSize:            config.Config.Snippets.DefaultTabulationSize,
	}
}

func CanEditSnippet(user *models.User, s *models.CodeSnippet) bool {
	if user == nil {
		return false
	}
	return user.ID == s.AuthorID || user.IsStaff
}

// Fills in every derived field of s from its source fields.
func render(s *models.CodeSnippet) error {
	desc := parsing.Render(s.Description, parsing.SnippetDescriptionOptions)
	s.DescriptionHtml = desc.HTML
	s.DescriptionText = desc.Text

	lines, err := parsing.ParseHighlightLines(s.HighlightLines)
	if err != nil {
		return err
	}
	s.HighlightLines = parsing.FormatHighlightLines(lines)

	h, err := highlighter.Highlight(parsing.HighlightRequest{
		Source:         s.SourceCode,
		Language:       s.CodeLanguage,
		TabSize:        s.TabSize,
		LineNumbers:    s.DisplayLineNumbers,
		HighlightLines: lines,
	})
	if err != nil {
		return oops.New(err, "failed to highlight snippet")
	}
	s.HtmlForDisplay = h.HTML
	s.CssForDisplay = h.CSS
	return nil
}

/*
Saves a snippet. A new snippet is stamped with its creation date. An existing
one gets a fresh last modification date only when its title, filename,
description or source changed; tweaking how it's displayed leaves the date
alone.
*/
func SaveSnippet(ctx context.Context, conn db.ConnOrTx, edit changes.Edit[models.CodeSnippet], now time.Time) (*models.CodeSnippet, error) {
	s := edit.Current
	if s.TabSize == 0 {
		s.TabSize = config.Config.Snippets.DefaultTabulationSize
	}
	if err := models.Validate(s); err != nil {
		return nil, err
	}
	if !parsing.IsKnownLanguage(s.CodeLanguage) {
		return nil, ErrUnknownLanguage
	}

	if edit.IsNew() {
		s.CreationDate = now
		s.LastModificationDate = nil
	} else {
		s.ID = edit.Original.ID
		s.AuthorID = edit.Original.AuthorID
		s.CreationDate = edit.Original.CreationDate
		s.LastModificationDate = edit.Original.LastModificationDate
		if changes.Compute(*edit.Original, s).Has(sourceFields...) {
			s.LastModificationDate = &now
		}
	}

	if err := render(&s); err != nil {
		return nil, err
	}

	if edit.IsNew() {
		saved, err := db.QueryOne[models.CodeSnippet](ctx, conn,
			`
			INSERT INTO snippets_code_snippet (
				title, author_id, filename, code_language, public_listing,
				description, description_html, description_text,
				source_code, html_for_display, css_for_display,
				display_line_numbers, highlight_lines, tab_size,
				creation_date, last_modification_date
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			RETURNING $columns
			`,
			s.Title, s.AuthorID, s.Filename, s.CodeLanguage, s.PublicListing,
			s.Description, s.DescriptionHtml, s.DescriptionText,
			s.SourceCode, s.HtmlForDisplay, s.CssForDisplay,
			s.DisplayLineNumbers, s.HighlightLines, s.TabSize,
			s.CreationDate, s.LastModificationDate,
		)
		if err != nil {
			return nil, oops.New(err, "failed to insert snippet")
		}
		return saved, nil
	}

	saved, err := db.QueryOne[models.CodeSnippet](ctx, conn,
		`
		UPDATE snippets_code_snippet
		SET
			title = $2,
			filename = $3,
			code_language = $4,
			public_listing = $5,
			description = $6,
			description_html = $7,
			description_text = $8,
			source_code = $9,
			html_for_display = $10,
			css_for_display = $11,
			display_line_numbers = $12,
			highlight_lines = $13,
			tab_size = $14,
			last_modification_date = $15
		WHERE id = $1
		RETURNING $columns
		`,
		s.ID,
		s.Title, s.Filename, s.CodeLanguage, s.PublicListing,
		s.Description, s.DescriptionHtml, s.DescriptionText,
		s.SourceCode, s.HtmlForDisplay, s.CssForDisplay,
		s.DisplayLineNumbers, s.HighlightLines, s.TabSize,
		s.LastModificationDate,
	)
	if errors.Is(err, db.NotFound) {
		return nil, ErrSnippetNotFound
	} else if err != nil {
		return nil, oops.New(err, "failed to update snippet %d", s.ID)
	}
	return saved, nil
}

func FetchSnippet(ctx context.Context, conn db.ConnOrTx, id int) (*models.CodeSnippet, error) {
	s, err := db.QueryOne[models.CodeSnippet](ctx, conn,
		`
		---- Fetch snippet
		SELECT $columns
		FROM snippets_code_snippet
		WHERE id = $1
		`,
		id,
	)
	if errors.Is(err, db.NotFound) {
		return nil, ErrSnippetNotFound
	} else if err != nil {
		return nil, oops.New(err, "failed to fetch snippet %d", id)
	}
	return s, nil
}

type SnippetsQuery struct {
	AuthorID int
	// Include snippets left out of the public listing. Only makes sense
	// together with AuthorID, for the author's own view.
	IncludeUnlisted bool
	Language        string
	Limit           int
	Offset          int
}

// Newest first.
func FetchSnippets(ctx context.Context, conn db.ConnOrTx, q SnippetsQuery) ([]*models.CodeSnippet, error) {
	var qb db.QueryBuilder
	qb.Add(
		`
		---- Fetch snippets
		SELECT $columns
		FROM snippets_code_snippet
		WHERE TRUE
		`,
	)
	qb.AddIf(!q.IncludeUnlisted, `AND public_listing`)
	qb.AddIf(q.AuthorID != 0, `AND author_id = $?`, q.AuthorID)
	qb.AddIf(q.Language != "", `AND code_language = $?`, q.Language)
	qb.Add(`ORDER BY creation_date DESC, id DESC`)
	qb.AddIf(q.Limit > 0, `LIMIT $? OFFSET $?`, q.Limit, q.Offset)

	result, err := db.Query[models.CodeSnippet](ctx, conn, qb.String(), qb.Args()...)
	if err != nil {
		return nil, oops.New(err, "failed to fetch snippets")
	}
	return result, nil
}

func FetchPublicSnippets(ctx context.Context, conn db.ConnOrTx, limit, offset int) ([]*models.CodeSnippet, error) {
	return FetchSnippets(ctx, conn, SnippetsQuery{Limit: limit, Offset: offset})
}

func DeleteSnippet(ctx context.Context, conn db.ConnOrTx, id int) error {
	tag, err := conn.Exec(ctx, `DELETE FROM snippets_code_snippet WHERE id = $1`, id)
	if err != nil {
		return oops.New(err, "failed to delete snippet %d", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrSnippetNotFound
	}
	return nil
}
