package blog

import (
	"testing"
	"time"

	"git.cdm.community/cdm/cdm/src/changes"
	"git.cdm.community/cdm/cdm/src/models"
	"git.cdm.community/cdm/cdm/src/parsing"
	"git.cdm.community/cdm/cdm/src/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	day  = 24 * time.Hour
	base = time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)
)

func TestPublicationGate(t *testing.T) {
	published := func() *models.Article {
		return &models.Article{
			AuthorID: 7,
			Status:   models.ArticleStatusPublished,
			PubDate:  utils.Ptr(base.Add(-day)),
		}
	}

	t.Run("published", func(t *testing.T) {
		a := published()
		assert.True(t, IsPublished(a, base))
		assert.False(t, IsGone(a, base))
		assert.Equal(t, VisibilityVisible, VisibilityFor(a, nil, base))
	})

	t.Run("scheduled", func(t *testing.T) {
		a := published()
		a.PubDate = utils.Ptr(base.Add(day))
		assert.False(t, IsPublished(a, base))
		assert.Equal(t, VisibilityNotFound, VisibilityFor(a, nil, base))
		assert.Equal(t, VisibilityPreview, VisibilityFor(a, &models.User{ID: 7}, base))
	})

	t.Run("expiration is inclusive", func(t *testing.T) {
		a := published()
		a.ExpirationDate = utils.Ptr(base)
		assert.True(t, IsPublished(a, base))
		assert.False(t, IsGone(a, base))

		later := base.Add(time.Second)
		assert.False(t, IsPublished(a, later))
		assert.True(t, IsGone(a, later))
	})

	t.Run("gone wins over published", func(t *testing.T) {
		a := published()
		a.ExpirationDate = utils.Ptr(base.Add(-time.Hour))
		assert.True(t, IsGone(a, base))
		assert.Equal(t, VisibilityGone, VisibilityFor(a, &models.User{ID: 7}, base))
	})

	t.Run("deleted", func(t *testing.T) {
		a := published()
		a.Status = models.ArticleStatusDeleted
		assert.False(t, IsPublished(a, base))
		assert.True(t, IsGone(a, base))
	})

	t.Run("draft", func(t *testing.T) {
		a := &models.Article{AuthorID: 7, Status: models.ArticleStatusDraft}
		assert.False(t, IsPublished(a, base))
		assert.False(t, IsGone(a, base))
		assert.Equal(t, VisibilityNotFound, VisibilityFor(a, &models.User{ID: 8}, base))
		assert.Equal(t, VisibilityPreview, VisibilityFor(a, &models.User{ID: 8, Permissions: []string{models.PermCanSeePreview}}, base))
	})

	t.Run("membership", func(t *testing.T) {
		a := published()
		assert.False(t, RequiresMembership(a, base))
		a.MembershipRequired = true
		assert.True(t, RequiresMembership(a, base))
		a.MembershipRequiredExpirationDate = utils.Ptr(base)
		assert.True(t, RequiresMembership(a, base))
		assert.False(t, RequiresMembership(a, base.Add(time.Second)))
	})

	t.Run("preview", func(t *testing.T) {
		a := published()
		assert.False(t, CanSeePreview(a, nil))
		assert.True(t, CanSeePreview(a, &models.User{ID: 7}))
		assert.False(t, CanSeePreview(a, &models.User{ID: 8}))
		assert.True(t, CanSeePreview(a, &models.User{ID: 8, IsSuperuser: true}))
	})

	t.Run("old", func(t *testing.T) {
		threshold := 365 * day
		a := published()
		assert.False(t, IsOld(a, base, threshold))
		a.PubDate = utils.Ptr(base.Add(-400 * day))
		assert.True(t, IsOld(a, base, threshold))
		a.LastContentModificationDate = utils.Ptr(base.Add(-10 * day))
		assert.False(t, IsOld(a, base, threshold))
		assert.False(t, IsOld(&models.Article{}, base, threshold))
	})
}

func TestAggregateByMonth(t *testing.T) {
	dates := []time.Time{
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, []ArchiveYear{
		{Year: 2024, Months: []ArchiveMonth{{time.February, 1}, {time.December, 1}}},
		{Year: 2025, Months: []ArchiveMonth{{time.January, 1}, {time.March, 2}}},
	}, AggregateByMonth(dates))
	assert.Empty(t, AggregateByMonth(nil))
}

func TestPlanArticleSave(t *testing.T) {
	author := &models.User{ID: 3}

	t.Run("new draft", func(t *testing.T) {
		plan := planArticleSave(changes.New(models.Article{
			Title:   "A",
			Content: "c",
			Status:  models.ArticleStatusDraft,
		}), SaveArticleOptions{}, base)

		assert.Equal(t, base, plan.Article.CreationDate)
		assert.Nil(t, plan.Article.PubDate)
		assert.Nil(t, plan.Article.LastContentModificationDate)
		assert.Nil(t, plan.Revision, "no revision without a previous version")
		assert.Empty(t, plan.Diff)
	})

	t.Run("publishing sets the publication date", func(t *testing.T) {
		loaded := &models.Article{ID: 1, Title: "A", Status: models.ArticleStatusDraft, CreationDate: base.Add(-day)}
		edit := changes.Track(loaded)
		edit.Current.Status = models.ArticleStatusPublished
		edit.Current.LastContentModificationDate = utils.Ptr(base.Add(-time.Hour))

		plan := planArticleSave(edit, SaveArticleOptions{}, base)
		require.NotNil(t, plan.Article.PubDate)
		assert.Equal(t, base, *plan.Article.PubDate)
		assert.Nil(t, plan.Article.LastContentModificationDate)
		assert.Equal(t, base.Add(-day), plan.Article.CreationDate)
		assert.Nil(t, plan.Revision)
	})

	t.Run("content edit after publication", func(t *testing.T) {
		loaded := &models.Article{
			ID:           1,
			Title:        "A",
			Content:      "c",
			Status:       models.ArticleStatusPublished,
			PubDate:      utils.Ptr(base.Add(-day)),
			CreationDate: base.Add(-2 * day),
		}
		edit := changes.Track(loaded)
		edit.Current.Title = "B"
		edit.Current.CreationDate = base // creation date can't be rewritten

		plan := planArticleSave(edit, SaveArticleOptions{
			CurrentUser:         author,
			RevisionDescription: "x",
		}, base)

		assert.Equal(t, base.Add(-day), *plan.Article.PubDate)
		require.NotNil(t, plan.Article.LastContentModificationDate)
		assert.Equal(t, base, *plan.Article.LastContentModificationDate)
		assert.Equal(t, base.Add(-2*day), plan.Article.CreationDate)

		require.NotNil(t, plan.Revision)
		assert.Equal(t, models.ArticleRevision{
			RelatedArticleID:    1,
			Title:               "A",
			Subtitle:            "",
			Description:         "",
			Content:             "c",
			RevisionMinorChange: false,
			RevisionDescription: "x",
			RevisionAuthorID:    utils.Ptr(3),
			RevisionDate:        base,
		}, *plan.Revision)
	})

	t.Run("content edit of a draft", func(t *testing.T) {
		loaded := &models.Article{ID: 1, Title: "A", Status: models.ArticleStatusDraft}
		edit := changes.Track(loaded)
		edit.Current.Content = "new"

		plan := planArticleSave(edit, SaveArticleOptions{MinorChange: true}, base)
		assert.Nil(t, plan.Article.LastContentModificationDate, "no publication date to be newer than")
		require.NotNil(t, plan.Revision)
		assert.True(t, plan.Revision.RevisionMinorChange)
		assert.Nil(t, plan.Revision.RevisionAuthorID)
	})

	t.Run("metadata edit keeps dates and makes no revision", func(t *testing.T) {
		lastMod := base.Add(-time.Hour)
		loaded := &models.Article{
			ID:                          1,
			Title:                       "A",
			Status:                      models.ArticleStatusPublished,
			PubDate:                     utils.Ptr(base.Add(-day)),
			LastContentModificationDate: &lastMod,
		}
		edit := changes.Track(loaded)
		edit.Current.Featured = true

		plan := planArticleSave(edit, SaveArticleOptions{}, base)
		assert.Equal(t, lastMod, *plan.Article.LastContentModificationDate)
		assert.Nil(t, plan.Revision)
		assert.Equal(t, []string{"featured"}, plan.Diff.Fields())
	})

	t.Run("modification before publication is dropped", func(t *testing.T) {
		loaded := &models.Article{
			ID:                          1,
			Status:                      models.ArticleStatusPublished,
			PubDate:                     utils.Ptr(base),
			LastContentModificationDate: utils.Ptr(base.Add(-time.Hour)),
		}
		plan := planArticleSave(changes.Track(loaded), SaveArticleOptions{}, base)
		assert.Nil(t, plan.Article.LastContentModificationDate)
	})

	t.Run("markup is rendered", func(t *testing.T) {
		plan := planArticleSave(changes.New(models.Article{
			Title:       "A",
			Description: "**short**",
			Content:     "First paragraph.\n\nSecond one[^1].\n\n[^1]: A note.",
		}), SaveArticleOptions{}, base)

		desc := parsing.Render("**short**", parsing.ArticleDescriptionOptions)
		content := parsing.Render(plan.Article.Content, parsing.ArticleContentOptions)
		assert.Equal(t, desc.HTML, plan.Article.DescriptionHtml)
		assert.Equal(t, desc.Text, plan.Article.DescriptionText)
		assert.Equal(t, content.HTML, plan.Article.ContentHtml)
		assert.Equal(t, content.Text, plan.Article.ContentText)
		assert.Contains(t, plan.Article.SummaryHtml, "First paragraph.")
		assert.NotContains(t, plan.Article.SummaryHtml, "Second")
		assert.Contains(t, plan.Article.FootnotesHtml, "A note.")
	})
}

func TestSlugHierarchy(t *testing.T) {
	root := &models.ArticleCategory{ID: 1, Slug: "np", SlugHierarchy: "np"}
	assert.Equal(t, "np", BuildSlugHierarchy(nil, "np"))
	assert.Equal(t, "np/c", BuildSlugHierarchy(root, "c"))

	child := &models.ArticleCategory{ID: 2, ParentID: utils.Ptr(1), Slug: "c", SlugHierarchy: "p/c"}
	leaf := &models.ArticleCategory{ID: 3, ParentID: utils.Ptr(2), Slug: "l", SlugHierarchy: "p/c/l"}
	sibling := &models.ArticleCategory{ID: 4, ParentID: utils.Ptr(2), Slug: "s", SlugHierarchy: "p/c/s"}
	unrelated := &models.ArticleCategory{ID: 5, Slug: "u", SlugHierarchy: "u"}

	changed := RecomputeHierarchies(root, []*models.ArticleCategory{leaf, sibling, child, unrelated})
	require.Len(t, changed, 3)
	assert.Equal(t, child, changed[0], "parents come before children")
	assert.Equal(t, "np/c", child.SlugHierarchy)
	assert.Equal(t, "np/c/l", leaf.SlugHierarchy)
	assert.Equal(t, "np/c/s", sibling.SlugHierarchy)
	assert.Equal(t, "u", unrelated.SlugHierarchy)

	assert.Empty(t, RecomputeHierarchies(root, []*models.ArticleCategory{child, leaf}), "already consistent")
}

func TestWouldCycle(t *testing.T) {
	assert.False(t, wouldCycle(0, []int{1, 2}), "new categories can't be their own ancestor")
	assert.False(t, wouldCycle(5, []int{3, 2, 1}))
	assert.True(t, wouldCycle(2, []int{3, 2, 1}))
}

func TestWantsRelatedThread(t *testing.T) {
	a := &models.Article{Status: models.ArticleStatusPublished, AutoCreateRelatedForumThread: true}
	assert.True(t, wantsRelatedThread(a, 4))
	assert.False(t, wantsRelatedThread(a, 0), "no forum configured")

	a.RelatedForumThreadID = utils.Ptr(9)
	assert.False(t, wantsRelatedThread(a, 4))

	draft := &models.Article{Status: models.ArticleStatusDraft, AutoCreateRelatedForumThread: true}
	assert.False(t, wantsRelatedThread(draft, 4))
}
