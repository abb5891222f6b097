package models

import (
	"time"

	"github.com/google/uuid"
)

type License struct {
	ID   int        `db:"id"`
	Name string     `db:"name" validate:"required,max=255"`
	Slug string     `db:"slug" validate:"max=255"`
	Logo *uuid.UUID `db:"logo"`

	Description     string `db:"description"`
	DescriptionHtml string `db:"description_html"`
	DescriptionText string `db:"description_text"`

	Usage     string `db:"usage"`
	SourceUrl string `db:"source_url" validate:"omitempty,url,max=255"`

	LastModificationDate time.Time `db:"last_modification_date"`
}
