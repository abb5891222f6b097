package models

import (
	"time"
)

type CodeSnippet struct {
	ID       int    `db:"id"`
	Title    string `db:"title" validate:"required,max=255"`
	AuthorID int    `db:"author_id"`
	Filename string `db:"filename" validate:"required,max=255"`

	CodeLanguage  string `db:"code_language" validate:"required"`
	PublicListing bool   `db:"public_listing"`

	Description     string `db:"description"`
	DescriptionHtml string `db:"description_html"`
	DescriptionText string `db:"description_text"`

	SourceCode     string `db:"source_code"`
	HtmlForDisplay string `db:"html_for_display"`
	CssForDisplay  string `db:"css_for_display"`

	DisplayLineNumbers bool   `db:"display_line_numbers"`
	HighlightLines     string `db:"highlight_lines" validate:"max=255"`
	TabSize            int    `db:"tab_size" validate:"min=1,max=16"`

	CreationDate         time.Time  `db:"creation_date"`
	LastModificationDate *time.Time `db:"last_modification_date"`
}
