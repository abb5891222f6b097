package licenses

import (
	"context"
	"testing"
	"time"

	"git.cdm.community/cdm/cdm/src/blog"
	"git.cdm.community/cdm/cdm/src/changes"
	"git.cdm.community/cdm/cdm/src/dbtest"
	"git.cdm.community/cdm/cdm/src/models"
	"git.cdm.community/cdm/cdm/src/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

func TestSaveLicense(t *testing.T) {
	tx := dbtest.Begin(t)
	ctx := context.Background()

	l, err := SaveLicense(ctx, tx, changes.New(models.License{
		Name:        "CC BY-SA 4.0",
		Description: "Share *alike*",
		SourceUrl:   "https://creativecommons.org/licenses/by-sa/4.0/",
	}), day)
	require.NoError(t, err)
	assert.Equal(t, "cc-by-sa-4-0", l.Slug)
	assert.Contains(t, l.DescriptionHtml, "<em>alike</em>")
	assert.True(t, day.Equal(l.LastModificationDate))

	twin, err := SaveLicense(ctx, tx, changes.New(models.License{Name: "CC BY-SA 4.0"}), day)
	require.NoError(t, err)
	assert.Equal(t, "cc-by-sa-4-0-2", twin.Slug)

	// Every save moves the date, even one that changes nothing.
	later := day.Add(24 * time.Hour)
	l, err = SaveLicense(ctx, tx, changes.Track(l), later)
	require.NoError(t, err)
	assert.Equal(t, "cc-by-sa-4-0", l.Slug, "a license keeps its own slug")
	assert.True(t, later.Equal(l.LastModificationDate))

	fetched, err := FetchLicenseBySlug(ctx, tx, "cc-by-sa-4-0-2")
	require.NoError(t, err)
	assert.Equal(t, twin.ID, fetched.ID)

	_, err = FetchLicenseBySlug(ctx, tx, "nope")
	assert.ErrorIs(t, err, ErrLicenseNotFound)

	all, err := FetchLicenses(ctx, tx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = SaveLicense(ctx, tx, changes.New(models.License{Name: "Bad", SourceUrl: "not a url"}), day)
	assert.ErrorIs(t, err, models.ErrInvalid)
}

func TestDeleteLicenseUnlinksArticles(t *testing.T) {
	tx := dbtest.Begin(t)
	ctx := context.Background()
	author := dbtest.CreateUser(t, tx)

	l, err := SaveLicense(ctx, tx, changes.New(models.License{Name: "MIT"}), day)
	require.NoError(t, err)

	article, err := blog.SaveArticle(ctx, tx, changes.New(models.Article{
		Title:     "Licensed",
		AuthorID:  author.ID,
		Status:    models.ArticleStatusDraft,
		LicenseID: &l.ID,
	}), blog.SaveArticleOptions{CurrentUser: author, ParentForumID: utils.Ptr(0)})
	require.NoError(t, err)
	require.NotNil(t, article.LicenseID)

	require.NoError(t, DeleteLicense(ctx, tx, l.ID))
	assert.ErrorIs(t, DeleteLicense(ctx, tx, l.ID), ErrLicenseNotFound)

	article, err = blog.FetchArticle(ctx, tx, article.ID)
	require.NoError(t, err)
	assert.Nil(t, article.LicenseID)
}

func TestRerenderLicenses(t *testing.T) {
	tx := dbtest.Begin(t)
	ctx := context.Background()

	l, err := SaveLicense(ctx, tx, changes.New(models.License{Name: "MIT", Description: "**Permissive**"}), day)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, `UPDATE license SET description_html = '' WHERE id = $1`, l.ID)
	require.NoError(t, err)

	stats, err := rerenderLicenses(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Rows)

	fresh, err := FetchLicenseBySlug(ctx, tx, l.Slug)
	require.NoError(t, err)
	assert.Equal(t, l.DescriptionHtml, fresh.DescriptionHtml)
	assert.True(t, day.Equal(fresh.LastModificationDate))
}
