// Package licenses is the registry of content licenses articles can be
// published under.
package licenses

import (
	"context"
	"errors"
	"time"

	"git.cdm.community/cdm/cdm/src/changes"
	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/models"
	"git.cdm.community/cdm/cdm/src/oops"
	"git.cdm.community/cdm/cdm/src/parsing"
	"git.cdm.community/cdm/cdm/src/rerender"
	"git.cdm.community/cdm/cdm/src/slugs"
	"github.com/jackc/pgx/v5"
)

var ErrLicenseNotFound = oops.NewCoded(oops.KindNotFound, "license_not_found", "no such license")

const slugConstraint = "license_slug_key"

func renderLicense(l *models.License) {
	desc := parsing.Render(l.Description, parsing.TaxonomyDescriptionOptions)
	l.DescriptionHtml = desc.HTML
	l.DescriptionText = desc.Text
}

// Saves a license. The slug is unique across all licenses and the last
// modification date moves on every save.
func SaveLicense(ctx context.Context, conn db.ConnOrTx, edit changes.Edit[models.License], now time.Time) (*models.License, error) {
	if err := models.Validate(edit.Current); err != nil {
		return nil, err
	}

	license := edit.Current
	if !edit.IsNew() {
		license.ID = edit.Original.ID
	}
	license.LastModificationDate = now
	renderLicense(&license)

	var saved *models.License
	err := slugs.Retry(ctx, slugConstraint, func(attempt int) error {
		return db.WithTx(ctx, conn, func(tx pgx.Tx) error {
			l := license
			slug, err := slugs.Allocate(ctx, tx, slugs.Scope{
				Table:     "license",
				ExcludeID: l.ID,
			}, l.Slug, l.Name)
			if err != nil {
				return err
			}
			l.Slug = slug

			if edit.IsNew() {
				saved, err = db.QueryOne[models.License](ctx, tx,
					`
					INSERT INTO license (
						name, slug, logo, description, description_html, description_text,
						usage, source_url, last_modification_date
					)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
					RETURNING $columns
					`,
					l.Name, l.Slug, l.Logo, l.Description, l.DescriptionHtml, l.DescriptionText,
					l.Usage, l.SourceUrl, l.LastModificationDate,
				)
				if err != nil {
					return oops.New(err, "failed to insert license")
				}
				return nil
			}

			saved, err = db.QueryOne[models.License](ctx, tx,
				`
				UPDATE license
				SET
					name = $2,
					slug = $3,
					logo = $4,
					description = $5,
					description_html = $6,
					description_text = $7,
					usage = $8,
					source_url = $9,
					last_modification_date = $10
				WHERE id = $1
				RETURNING $columns
				`,
				l.ID,
				l.Name, l.Slug, l.Logo, l.Description, l.DescriptionHtml, l.DescriptionText,
				l.Usage, l.SourceUrl, l.LastModificationDate,
			)
			if errors.Is(err, db.NotFound) {
				return ErrLicenseNotFound
			} else if err != nil {
				return oops.New(err, "failed to update license %d", l.ID)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// Articles under the license are left without one.
func DeleteLicense(ctx context.Context, conn db.ConnOrTx, id int) error {
	tag, err := conn.Exec(ctx, `DELETE FROM license WHERE id = $1`, id)
	if err != nil {
		return oops.New(err, "failed to delete license %d", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrLicenseNotFound
	}
	return nil
}

func FetchLicenses(ctx context.Context, conn db.ConnOrTx) ([]*models.License, error) {
	result, err := db.Query[models.License](ctx, conn,
		`
		---- Fetch licenses
		SELECT $columns
		FROM license
		ORDER BY name, id
		`,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch licenses")
	}
	return result, nil
}

func FetchLicense(ctx context.Context, conn db.ConnOrTx, id int) (*models.License, error) {
	l, err := db.QueryOne[models.License](ctx, conn,
		`
		---- Fetch license
		SELECT $columns
		FROM license
		WHERE id = $1
		`,
		id,
	)
	if errors.Is(err, db.NotFound) {
		return nil, ErrLicenseNotFound
	} else if err != nil {
		return nil, oops.New(err, "failed to fetch license %d", id)
	}
	return l, nil
}

func FetchLicenseBySlug(ctx context.Context, conn db.ConnOrTx, slug string) (*models.License, error) {
	l, err := db.QueryOne[models.License](ctx, conn,
		`
		---- Fetch license by slug
		SELECT $columns
		FROM license
		WHERE slug = $1
		`,
		slug,
	)
	if errors.Is(err, db.NotFound) {
		return nil, ErrLicenseNotFound
	} else if err != nil {
		return nil, oops.New(err, "failed to fetch license %s", slug)
	}
	return l, nil
}

var RerenderHandlers = []rerender.Handler{
	{Kind: "license", Rerender: rerenderLicenses},
}

func rerenderLicenses(ctx context.Context, conn db.ConnOrTx) (rerender.Stats, error) {
	return rerender.Rows(ctx, conn, "license", "license",
		func(l *models.License) int { return l.ID },
		func(ctx context.Context, conn db.ConnOrTx, l *models.License) error {
			renderLicense(l)
			_, err := conn.Exec(ctx,
				`
				UPDATE license
				SET description_html = $2, description_text = $3
				WHERE id = $1
				`,
				l.ID,
				l.DescriptionHtml,
				l.DescriptionText,
			)
			if err != nil {
				return oops.New(err, "failed to store re-rendered license")
			}
			return nil
		},
	)
}
