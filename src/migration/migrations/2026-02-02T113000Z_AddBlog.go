package migrations

import (
	"context"
	"time"

	"git.cdm.community/cdm/cdm/src/migration/types"
	"git.cdm.community/cdm/cdm/src/oops"
	"github.com/jackc/pgx/v5"
)

func init() {
	registerMigration(AddBlog{})
}

type AddBlog struct{}

func (m AddBlog) Version() types.MigrationVersion {
	return types.MigrationVersion(time.Date(2026, 2, 2, 11, 30, 0, 0, time.UTC))
}

func (m AddBlog) Name() string {
	return "AddBlog"
}

func (m AddBlog) Description() string {
	return "Add licenses, articles, revisions and taxonomies"
}

func (m AddBlog) Up(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx,
		`
		CREATE TABLE license (
			id SERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			slug VARCHAR(255) NOT NULL,
			logo UUID,
			description TEXT NOT NULL DEFAULT '',
			description_html TEXT NOT NULL DEFAULT '',
			description_text TEXT NOT NULL DEFAULT '',
			usage TEXT NOT NULL DEFAULT '',
			source_url VARCHAR(255) NOT NULL DEFAULT '',
			last_modification_date TIMESTAMP WITH TIME ZONE NOT NULL,
			CONSTRAINT license_slug_key UNIQUE (slug)
		);

		CREATE TABLE blog_article (
			id SERIAL PRIMARY KEY,
			slug VARCHAR(255) NOT NULL,
			title VARCHAR(255) NOT NULL,
			subtitle VARCHAR(255) NOT NULL DEFAULT '',
			author_id INT NOT NULL REFERENCES auth_user (id) ON DELETE CASCADE,
			status VARCHAR(16) NOT NULL DEFAULT 'draft',
			license_id INT REFERENCES license (id) ON DELETE SET NULL,
			network_publish BOOLEAN NOT NULL DEFAULT FALSE,
			featured BOOLEAN NOT NULL DEFAULT FALSE,
			auto_create_related_forum_thread BOOLEAN NOT NULL DEFAULT TRUE,
			display_img_gallery BOOLEAN NOT NULL DEFAULT FALSE,
			heading_img UUID,
			thumbnail_img UUID,
			description TEXT NOT NULL DEFAULT '',
			description_html TEXT NOT NULL DEFAULT '',
			description_text TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			content_html TEXT NOT NULL DEFAULT '',
			content_text TEXT NOT NULL DEFAULT '',
			summary_html TEXT NOT NULL DEFAULT '',
			footnotes_html TEXT NOT NULL DEFAULT '',
			creation_date TIMESTAMP WITH TIME ZONE NOT NULL,
			last_content_modification_date TIMESTAMP WITH TIME ZONE,
			pub_date TIMESTAMP WITH TIME ZONE,
			expiration_date TIMESTAMP WITH TIME ZONE,
			membership_required BOOLEAN NOT NULL DEFAULT FALSE,
			membership_required_expiration_date TIMESTAMP WITH TIME ZONE,
			related_forum_thread_id INT REFERENCES forum_thread (id) ON DELETE SET NULL,
			CONSTRAINT blog_article_slug_key UNIQUE (slug),
			CONSTRAINT blog_article_status_check CHECK (status IN ('draft', 'published', 'deleted'))
		);
		CREATE INDEX blog_article_published ON blog_article (status, pub_date);

		CREATE TABLE blog_article_revision (
			id SERIAL PRIMARY KEY,
			related_article_id INT NOT NULL REFERENCES blog_article (id) ON DELETE CASCADE,
			title VARCHAR(255) NOT NULL,
			subtitle VARCHAR(255) NOT NULL,
			description TEXT NOT NULL,
			content TEXT NOT NULL,
			revision_minor_change BOOLEAN NOT NULL DEFAULT FALSE,
			revision_description TEXT NOT NULL DEFAULT '',
			revision_author_id INT REFERENCES auth_user (id) ON DELETE SET NULL,
			revision_date TIMESTAMP WITH TIME ZONE NOT NULL
		);
		CREATE INDEX blog_article_revision_article ON blog_article_revision (related_article_id, revision_date DESC);

		CREATE TABLE blog_article_category (
			id SERIAL PRIMARY KEY,
			parent_id INT REFERENCES blog_article_category (id) ON DELETE CASCADE,
			name VARCHAR(255) NOT NULL,
			slug VARCHAR(255) NOT NULL,
			slug_hierarchy TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			description_html TEXT NOT NULL DEFAULT '',
			description_text TEXT NOT NULL DEFAULT '',
			logo UUID,
			CONSTRAINT blog_article_category_slug_hierarchy_key UNIQUE (slug_hierarchy) DEFERRABLE INITIALLY DEFERRED
		);
		CREATE UNIQUE INDEX blog_article_category_parent_slug_key ON blog_article_category (COALESCE(parent_id, 0), slug);

		CREATE TABLE blog_article_tag (
			id SERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			slug VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			description_html TEXT NOT NULL DEFAULT '',
			description_text TEXT NOT NULL DEFAULT '',
			CONSTRAINT blog_article_tag_slug_key UNIQUE (slug)
		);

		CREATE TABLE blog_article_note (
			id SERIAL PRIMARY KEY,
			title VARCHAR(255) NOT NULL DEFAULT '',
			type VARCHAR(16) NOT NULL DEFAULT 'default',
			description TEXT NOT NULL DEFAULT '',
			description_html TEXT NOT NULL DEFAULT '',
			description_text TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE blog_article_tags (
			article_id INT NOT NULL REFERENCES blog_article (id) ON DELETE CASCADE,
			tag_id INT NOT NULL REFERENCES blog_article_tag (id) ON DELETE CASCADE,
			PRIMARY KEY (article_id, tag_id)
		);
		CREATE TABLE blog_article_categories (
			article_id INT NOT NULL REFERENCES blog_article (id) ON DELETE CASCADE,
			category_id INT NOT NULL REFERENCES blog_article_category (id) ON DELETE CASCADE,
			PRIMARY KEY (article_id, category_id)
		);
		CREATE TABLE blog_article_head_notes (
			article_id INT NOT NULL REFERENCES blog_article (id) ON DELETE CASCADE,
			note_id INT NOT NULL REFERENCES blog_article_note (id) ON DELETE CASCADE,
			PRIMARY KEY (article_id, note_id)
		);
		CREATE TABLE blog_article_foot_notes (
			article_id INT NOT NULL REFERENCES blog_article (id) ON DELETE CASCADE,
			note_id INT NOT NULL REFERENCES blog_article_note (id) ON DELETE CASCADE,
			PRIMARY KEY (article_id, note_id)
		);
		CREATE TABLE blog_article_follow_up_of (
			article_id INT NOT NULL REFERENCES blog_article (id) ON DELETE CASCADE,
			target_id INT NOT NULL REFERENCES blog_article (id) ON DELETE CASCADE,
			PRIMARY KEY (article_id, target_id)
		);
		CREATE TABLE blog_article_related_articles (
			article_id INT NOT NULL REFERENCES blog_article (id) ON DELETE CASCADE,
			target_id INT NOT NULL REFERENCES blog_article (id) ON DELETE CASCADE,
			PRIMARY KEY (article_id, target_id)
		);
		CREATE TABLE blog_article_img_attachments (
			article_id INT NOT NULL REFERENCES blog_article (id) ON DELETE CASCADE,
			image UUID NOT NULL,
			PRIMARY KEY (article_id, image)
		);
		`,
	)
	if err != nil {
		return oops.New(err, "failed to create blog tables")
	}
	return nil
}

func (m AddBlog) Down(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx,
		`
		DROP TABLE blog_article_img_attachments;
		DROP TABLE blog_article_related_articles;
		DROP TABLE blog_article_follow_up_of;
		DROP TABLE blog_article_foot_notes;
		DROP TABLE blog_article_head_notes;
		DROP TABLE blog_article_categories;
		DROP TABLE blog_article_tags;
		DROP TABLE blog_article_note;
		DROP TABLE blog_article_tag;
		DROP TABLE blog_article_category;
		DROP TABLE blog_article_revision;
		DROP TABLE blog_article;
		DROP TABLE license;
		`,
	)
	if err != nil {
		return oops.New(err, "failed to drop blog tables")
	}
	return nil
}
