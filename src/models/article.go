package models

import (
	"time"

	"github.com/google/uuid"
)

type ArticleStatus string

const (
	ArticleStatusDraft     ArticleStatus = "draft"
	ArticleStatusPublished ArticleStatus = "published"
	ArticleStatusDeleted   ArticleStatus = "deleted"
)

type Article struct {
	ID int `db:"id"`

	Slug     string `db:"slug" validate:"max=255"`
	Title    string `db:"title" validate:"required,max=255"`
	Subtitle string `db:"subtitle" validate:"max=255"`

	AuthorID  int           `db:"author_id" validate:"required"`
	Status    ArticleStatus `db:"status" validate:"oneof=draft published deleted"`
	LicenseID *int          `db:"license_id"`

	NetworkPublish               bool `db:"network_publish"`
	Featured                     bool `db:"featured"`
	AutoCreateRelatedForumThread bool `db:"auto_create_related_forum_thread"`
	DisplayImgGallery            bool `db:"display_img_gallery"`

	HeadingImg   *uuid.UUID `db:"heading_img"`
	ThumbnailImg *uuid.UUID `db:"thumbnail_img"`

	Description     string `db:"description" validate:"max=200000"`
	DescriptionHtml string `db:"description_html"`
	DescriptionText string `db:"description_text"`
	Content         string `db:"content" validate:"max=200000"`
	ContentHtml     string `db:"content_html"`
	ContentText     string `db:"content_text"`
	SummaryHtml     string `db:"summary_html"`
	FootnotesHtml   string `db:"footnotes_html"`

	CreationDate                     time.Time  `db:"creation_date"`
	LastContentModificationDate      *time.Time `db:"last_content_modification_date"`
	PubDate                          *time.Time `db:"pub_date"`
	ExpirationDate                   *time.Time `db:"expiration_date"`
	MembershipRequired               bool       `db:"membership_required"`
	MembershipRequiredExpirationDate *time.Time `db:"membership_required_expiration_date"`

	RelatedForumThreadID *int `db:"related_forum_thread_id"`
}

// The source fields whose modification produces a revision.
var ArticleRevisionFields = []string{"title", "subtitle", "description", "content"}

type ArticleRevision struct {
	ID               int `db:"id"`
	RelatedArticleID int `db:"related_article_id"`

	Title       string `db:"title"`
	Subtitle    string `db:"subtitle"`
	Description string `db:"description"`
	Content     string `db:"content"`

	RevisionMinorChange bool      `db:"revision_minor_change"`
	RevisionDescription string    `db:"revision_description"`
	RevisionAuthorID    *int      `db:"revision_author_id"`
	RevisionDate        time.Time `db:"revision_date"`
}

type ArticleCategory struct {
	ID       int  `db:"id"`
	ParentID *int `db:"parent_id"`

	Name          string `db:"name" validate:"required,max=255"`
	Slug          string `db:"slug" validate:"max=255"`
	SlugHierarchy string `db:"slug_hierarchy"`

	Description     string `db:"description"`
	DescriptionHtml string `db:"description_html"`
	DescriptionText string `db:"description_text"`

	Logo *uuid.UUID `db:"logo"`
}

type ArticleTag struct {
	ID   int    `db:"id"`
	Name string `db:"name" validate:"required,max=255"`
	Slug string `db:"slug" validate:"max=255"`

	Description     string `db:"description"`
	DescriptionHtml string `db:"description_html"`
	DescriptionText string `db:"description_text"`
}

type NoteType string

const (
	NoteTypeDefault NoteType = "default"
	NoteTypeSuccess NoteType = "success"
	NoteTypeInfo    NoteType = "info"
	NoteTypeWarning NoteType = "warning"
	NoteTypeDanger  NoteType = "danger"
)

type ArticleNote struct {
	ID    int      `db:"id"`
	Title string   `db:"title" validate:"max=255"`
	Type  NoteType `db:"type" validate:"oneof=default success info warning danger"`

	Description     string `db:"description"`
	DescriptionHtml string `db:"description_html"`
	DescriptionText string `db:"description_text"`
}
