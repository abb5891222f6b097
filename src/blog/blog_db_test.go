package blog

import (
	"context"
	"testing"
	"time"

	"git.cdm.community/cdm/cdm/src/changes"
	"git.cdm.community/cdm/cdm/src/dbtest"
	"git.cdm.community/cdm/cdm/src/forum"
	"git.cdm.community/cdm/cdm/src/models"
	"git.cdm.community/cdm/cdm/src/oops"
	"git.cdm.community/cdm/cdm/src/utils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var noForum = utils.Ptr(0)

func TestSaveArticleRevisions(t *testing.T) {
	tx := dbtest.Begin(t)
	ctx := context.Background()
	author := dbtest.CreateUser(t, tx)

	article, err := SaveArticle(ctx, tx, changes.New(models.Article{
		Title:    "A",
		Content:  "c",
		AuthorID: author.ID,
		Status:   models.ArticleStatusDraft,
	}), SaveArticleOptions{CurrentUser: author, ParentForumID: noForum})
	require.NoError(t, err)
	assert.Equal(t, "a", article.Slug)

	revisions, err := FetchRevisions(ctx, tx, article.ID)
	require.NoError(t, err)
	assert.Empty(t, revisions, "creating an article makes no revision")

	edit := changes.Track(article)
	edit.Current.Title = "B"
	edit.Current.Slug = article.Slug
	_, err = SaveArticle(ctx, tx, edit, SaveArticleOptions{
		CurrentUser:         author,
		RevisionDescription: "x",
		ParentForumID:       noForum,
	})
	require.NoError(t, err)

	revisions, err = FetchRevisions(ctx, tx, article.ID)
	require.NoError(t, err)
	require.Len(t, revisions, 1)
	r := revisions[0]
	assert.Equal(t, "A", r.Title)
	assert.Equal(t, "", r.Subtitle)
	assert.Equal(t, "", r.Description)
	assert.Equal(t, "c", r.Content)
	assert.False(t, r.RevisionMinorChange)
	assert.Equal(t, "x", r.RevisionDescription)
	assert.Equal(t, author.ID, *r.RevisionAuthorID)

	reloaded, err := FetchArticle(ctx, tx, article.ID)
	require.NoError(t, err)
	assert.Equal(t, "B", reloaded.Title)
	assert.Equal(t, "a", reloaded.Slug, "the slug of an existing article stays put")

	edit = changes.Track(reloaded)
	edit.Current.Content = "d"
	_, err = SaveArticle(ctx, tx, edit, SaveArticleOptions{MinorChange: true, ParentForumID: noForum})
	require.NoError(t, err)

	revisions, err = FetchRevisions(ctx, tx, article.ID)
	require.NoError(t, err)
	require.Len(t, revisions, 2)
	assert.Equal(t, "B", revisions[0].Title, "newest first")
	assert.Equal(t, "c", revisions[0].Content)
	assert.True(t, revisions[0].RevisionMinorChange)
	assert.Nil(t, revisions[0].RevisionAuthorID)
}

func TestSaveArticleFromStaleSnapshot(t *testing.T) {
	tx := dbtest.Begin(t)
	ctx := context.Background()
	author := dbtest.CreateUser(t, tx)
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	article, err := SaveArticle(ctx, tx, changes.New(models.Article{
		Title:    "t0",
		AuthorID: author.ID,
		Status:   models.ArticleStatusDraft,
	}), SaveArticleOptions{Now: now, ParentForumID: noForum})
	require.NoError(t, err)

	// Two editors load the same version.
	first := changes.Track(article)
	second := changes.Track(article)

	first.Current.Title = "t1"
	_, err = SaveArticle(ctx, tx, first, SaveArticleOptions{Now: now.Add(time.Minute), ParentForumID: noForum})
	require.NoError(t, err)

	second.Current.Title = "t2"
	_, err = SaveArticle(ctx, tx, second, SaveArticleOptions{Now: now.Add(2 * time.Minute), ParentForumID: noForum})
	require.NoError(t, err)

	revisions, err := FetchRevisions(ctx, tx, article.ID)
	require.NoError(t, err)
	require.Len(t, revisions, 2)
	assert.Equal(t, "t1", revisions[0].Title, "the second save replaced t1")
	assert.Equal(t, "t0", revisions[1].Title)

	reloaded, err := FetchArticle(ctx, tx, article.ID)
	require.NoError(t, err)
	assert.Equal(t, "t2", reloaded.Title)
}

func TestSaveArticlePublishing(t *testing.T) {
	tx := dbtest.Begin(t)
	ctx := context.Background()
	author := dbtest.CreateUser(t, tx)

	article, err := SaveArticle(ctx, tx, changes.New(models.Article{
		Title:    "Publish me",
		Content:  "c",
		AuthorID: author.ID,
		Status:   models.ArticleStatusDraft,
	}), SaveArticleOptions{Now: base, ParentForumID: noForum})
	require.NoError(t, err)
	assert.Nil(t, article.PubDate)

	edit := changes.Track(article)
	edit.Current.Status = models.ArticleStatusPublished
	published, err := SaveArticle(ctx, tx, edit, SaveArticleOptions{Now: base.Add(time.Hour), ParentForumID: noForum})
	require.NoError(t, err)
	require.NotNil(t, published.PubDate)
	assert.True(t, base.Add(time.Hour).Equal(*published.PubDate))
	assert.Nil(t, published.LastContentModificationDate)

	edit = changes.Track(published)
	edit.Current.Content = "changed"
	edited, err := SaveArticle(ctx, tx, edit, SaveArticleOptions{Now: base.Add(2 * time.Hour), ParentForumID: noForum})
	require.NoError(t, err)
	assert.True(t, published.PubDate.Equal(*edited.PubDate))
	require.NotNil(t, edited.LastContentModificationDate)
	assert.True(t, base.Add(2*time.Hour).Equal(*edited.LastContentModificationDate))

	listed, err := FetchPublishedArticles(ctx, tx, base.Add(3*time.Hour), 10, 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, article.ID, listed[0].ID)

	count, err := CountPublishedArticles(ctx, tx, base)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "not published yet at that time")

	archive, err := PublishedPerMonth(ctx, tx, base.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []ArchiveYear{{Year: 2026, Months: []ArchiveMonth{{time.April, 1}}}}, archive)
}

func TestArticleSlugsAreUnique(t *testing.T) {
	tx := dbtest.Begin(t)
	ctx := context.Background()
	author := dbtest.CreateUser(t, tx)

	var got []string
	for i := 0; i < 3; i++ {
		a, err := SaveArticle(ctx, tx, changes.New(models.Article{
			Title:    "Hello World",
			AuthorID: author.ID,
			Status:   models.ArticleStatusDraft,
		}), SaveArticleOptions{ParentForumID: noForum})
		require.NoError(t, err)
		got = append(got, a.Slug)
	}
	assert.Equal(t, []string{"hello-world", "hello-world-2", "hello-world-3"}, got)

	bySlug, err := FetchArticleBySlug(ctx, tx, "hello-world-2")
	require.NoError(t, err)
	assert.Equal(t, "hello-world-2", bySlug.Slug)

	_, err = FetchArticleBySlug(ctx, tx, "nope")
	assert.ErrorIs(t, err, ErrArticleNotFound)

	byAuthor, err := FetchArticlesByAuthor(ctx, tx, author.ID)
	require.NoError(t, err)
	require.Len(t, byAuthor, 3)
	assert.Equal(t, "hello-world-3", byAuthor[0].Slug)
}

func TestArticleForumThread(t *testing.T) {
	tx := dbtest.Begin(t)
	ctx := context.Background()
	author := dbtest.CreateUser(t, tx)
	f := dbtest.CreateForum(t, tx, "articles")

	newArticle := func() changes.Edit[models.Article] {
		return changes.New(models.Article{
			Title:                        "Discuss me",
			Description:                  "hi",
			AuthorID:                     author.ID,
			Status:                       models.ArticleStatusPublished,
			AutoCreateRelatedForumThread: true,
		})
	}

	t.Run("creates and links a thread", func(t *testing.T) {
		article, err := SaveArticle(ctx, tx, newArticle(), SaveArticleOptions{ParentForumID: &f.ID})
		require.NoError(t, err)
		require.NotNil(t, article.RelatedForumThreadID)

		thread, err := forum.FetchThread(ctx, tx, *article.RelatedForumThreadID)
		require.NoError(t, err)
		assert.Equal(t, "Discuss me", thread.Title)
		assert.NotNil(t, thread.FirstPostID)

		reloaded, err := FetchArticle(ctx, tx, article.ID)
		require.NoError(t, err)
		assert.Equal(t, article.RelatedForumThreadID, reloaded.RelatedForumThreadID)
	})

	t.Run("no forum configured", func(t *testing.T) {
		article, err := SaveArticle(ctx, tx, newArticle(), SaveArticleOptions{ParentForumID: noForum})
		require.NoError(t, err)
		assert.Nil(t, article.RelatedForumThreadID)
	})

	t.Run("missing forum", func(t *testing.T) {
		article, err := SaveArticle(ctx, tx, newArticle(), SaveArticleOptions{ParentForumID: utils.Ptr(f.ID + 1000)})
		assert.ErrorIs(t, err, ErrForumMisconfigured)
		assert.Equal(t, oops.KindMisconfigured, oops.KindOf(err))
		require.NotNil(t, article, "the article itself was saved")
		assert.Nil(t, article.RelatedForumThreadID)
	})
}

func TestCategoryTree(t *testing.T) {
	tx := dbtest.Begin(t)
	ctx := context.Background()

	save := func(edit changes.Edit[models.ArticleCategory]) *models.ArticleCategory {
		c, err := SaveCategory(ctx, tx, edit)
		require.NoError(t, err)
		return c
	}

	parent := save(changes.New(models.ArticleCategory{Name: "P", Slug: "p"}))
	child := save(changes.New(models.ArticleCategory{Name: "C", Slug: "c", ParentID: &parent.ID}))
	leaf := save(changes.New(models.ArticleCategory{Name: "L", Slug: "l", ParentID: &child.ID}))
	assert.Equal(t, "p", parent.SlugHierarchy)
	assert.Equal(t, "p/c", child.SlugHierarchy)
	assert.Equal(t, "p/c/l", leaf.SlugHierarchy)

	t.Run("siblings get distinct slugs, cousins may share", func(t *testing.T) {
		twin := save(changes.New(models.ArticleCategory{Name: "C", ParentID: &parent.ID}))
		assert.Equal(t, "c-2", twin.Slug)
		assert.Equal(t, "p/c-2", twin.SlugHierarchy)

		cousin := save(changes.New(models.ArticleCategory{Name: "C", ParentID: &child.ID}))
		assert.Equal(t, "c", cousin.Slug)
		assert.Equal(t, "p/c/c", cousin.SlugHierarchy)
	})

	t.Run("rename cascades", func(t *testing.T) {
		edit := changes.Track(parent)
		edit.Current.Slug = "np"
		save(edit)

		for id, want := range map[int]string{parent.ID: "np", child.ID: "np/c", leaf.ID: "np/c/l"} {
			c, err := FetchCategory(ctx, tx, id)
			require.NoError(t, err)
			assert.Equal(t, want, c.SlugHierarchy)
		}

		found, err := FetchCategoryByHierarchy(ctx, tx, "np/c/l")
		require.NoError(t, err)
		assert.Equal(t, leaf.ID, found.ID)
	})

	t.Run("reparent cascades", func(t *testing.T) {
		other := save(changes.New(models.ArticleCategory{Name: "O", Slug: "o"}))
		c, err := FetchCategory(ctx, tx, child.ID)
		require.NoError(t, err)
		edit := changes.Track(c)
		edit.Current.ParentID = &other.ID
		save(edit)

		l, err := FetchCategory(ctx, tx, leaf.ID)
		require.NoError(t, err)
		assert.Equal(t, "o/c/l", l.SlugHierarchy)
	})

	t.Run("stale snapshot still cascades", func(t *testing.T) {
		root := save(changes.New(models.ArticleCategory{Name: "R", Slug: "r"}))
		kid := save(changes.New(models.ArticleCategory{Name: "K", Slug: "k", ParentID: &root.ID}))
		stale := changes.Track(root)

		edit := changes.Track(root)
		edit.Current.Slug = "moved"
		save(edit)

		// The stale snapshot still says "r", so saving it moves the slug back.
		stale.Current.Name = "R again"
		saved := save(stale)
		assert.Equal(t, "r", saved.SlugHierarchy)

		k, err := FetchCategory(ctx, tx, kid.ID)
		require.NoError(t, err)
		assert.Equal(t, "r/k", k.SlugHierarchy)
	})

	t.Run("cycles are rejected", func(t *testing.T) {
		p, err := FetchCategory(ctx, tx, child.ID)
		require.NoError(t, err)

		edit := changes.Track(p)
		edit.Current.ParentID = &leaf.ID
		_, err = SaveCategory(ctx, tx, edit)
		assert.ErrorIs(t, err, ErrCategoryCycle)

		edit = changes.Track(p)
		edit.Current.ParentID = &p.ID
		_, err = SaveCategory(ctx, tx, edit)
		assert.ErrorIs(t, err, ErrCategoryCycle)
	})

	all, err := FetchCategories(ctx, tx)
	require.NoError(t, err)
	for _, c := range all {
		assert.NotEmpty(t, c.SlugHierarchy)
	}
}

func TestTaxonomiesAndLinks(t *testing.T) {
	tx := dbtest.Begin(t)
	ctx := context.Background()
	author := dbtest.CreateUser(t, tx)

	newArticle := func(title string) *models.Article {
		a, err := SaveArticle(ctx, tx, changes.New(models.Article{
			Title:    title,
			AuthorID: author.ID,
			Status:   models.ArticleStatusDraft,
		}), SaveArticleOptions{ParentForumID: noForum})
		require.NoError(t, err)
		return a
	}
	a, b, c, d := newArticle("a"), newArticle("b"), newArticle("c"), newArticle("d")

	t.Run("tags", func(t *testing.T) {
		tag, err := SaveTag(ctx, tx, changes.New(models.ArticleTag{Name: "Go Lang", Description: "*fast*"}))
		require.NoError(t, err)
		assert.Equal(t, "go-lang", tag.Slug)
		assert.Contains(t, tag.DescriptionHtml, "<em>fast</em>")

		again, err := SaveTag(ctx, tx, changes.New(models.ArticleTag{Name: "Go-Lang"}))
		require.NoError(t, err)
		assert.Equal(t, "go-lang-2", again.Slug)

		require.NoError(t, SetArticleTags(ctx, tx, a.ID, []int{tag.ID, again.ID, tag.ID}))
		tags, err := FetchArticleTags(ctx, tx, a.ID)
		require.NoError(t, err)
		assert.Len(t, tags, 2)

		require.NoError(t, SetArticleTags(ctx, tx, a.ID, nil))
		tags, err = FetchArticleTags(ctx, tx, a.ID)
		require.NoError(t, err)
		assert.Empty(t, tags)

		bySlug, err := FetchTagBySlug(ctx, tx, "go-lang")
		require.NoError(t, err)
		assert.Equal(t, tag.ID, bySlug.ID)
	})

	t.Run("notes", func(t *testing.T) {
		_, err := SaveNote(ctx, tx, changes.New(models.ArticleNote{Type: "shouting"}))
		assert.ErrorIs(t, err, models.ErrInvalid)

		head, err := SaveNote(ctx, tx, changes.New(models.ArticleNote{Title: "Careful", Type: models.NoteTypeWarning, Description: "hot"}))
		require.NoError(t, err)
		foot, err := SaveNote(ctx, tx, changes.New(models.ArticleNote{Description: "bye"}))
		require.NoError(t, err)
		assert.Equal(t, models.NoteTypeDefault, foot.Type)

		require.NoError(t, SetArticleHeadNotes(ctx, tx, a.ID, []int{head.ID}))
		require.NoError(t, SetArticleFootNotes(ctx, tx, a.ID, []int{foot.ID}))
		heads, foots, err := FetchArticleNotes(ctx, tx, a.ID)
		require.NoError(t, err)
		require.Len(t, heads, 1)
		require.Len(t, foots, 1)
		assert.Equal(t, head.ID, heads[0].ID)
		assert.Equal(t, foot.ID, foots[0].ID)
	})

	t.Run("categories", func(t *testing.T) {
		cat, err := SaveCategory(ctx, tx, changes.New(models.ArticleCategory{Name: "News"}))
		require.NoError(t, err)
		require.NoError(t, SetArticleCategories(ctx, tx, b.ID, []int{cat.ID}))
		cats, err := FetchArticleCategories(ctx, tx, b.ID)
		require.NoError(t, err)
		require.Len(t, cats, 1)
		assert.Equal(t, "news", cats[0].SlugHierarchy)
	})

	t.Run("images", func(t *testing.T) {
		img := uuid.New()
		require.NoError(t, SetImgAttachments(ctx, tx, a.ID, []uuid.UUID{img, img}))
		images, err := FetchImgAttachments(ctx, tx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{img}, images)
	})

	t.Run("related articles with cycles", func(t *testing.T) {
		require.NoError(t, SetRelatedArticles(ctx, tx, a.ID, []int{b.ID}))
		require.NoError(t, SetRelatedArticles(ctx, tx, b.ID, []int{a.ID, c.ID}))
		require.NoError(t, SetRelatedArticles(ctx, tx, c.ID, []int{d.ID}))

		ids := func(articles []*models.Article) []int {
			var res []int
			for _, x := range articles {
				res = append(res, x.ID)
			}
			return res
		}

		one, err := FetchRelatedArticles(ctx, tx, a.ID, 1)
		require.NoError(t, err)
		assert.ElementsMatch(t, []int{b.ID}, ids(one))

		two, err := FetchRelatedArticles(ctx, tx, a.ID, 2)
		require.NoError(t, err)
		assert.ElementsMatch(t, []int{b.ID, c.ID}, ids(two), "the article itself is left out")

		three, err := FetchRelatedArticles(ctx, tx, a.ID, 3)
		require.NoError(t, err)
		assert.ElementsMatch(t, []int{b.ID, c.ID, d.ID}, ids(three))

		none, err := FetchRelatedArticles(ctx, tx, a.ID, 0)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("self follow-up", func(t *testing.T) {
		require.NoError(t, SetFollowUpOf(ctx, tx, d.ID, []int{d.ID, c.ID}))
		follows, err := FetchFollowUpOf(ctx, tx, d.ID, 5)
		require.NoError(t, err)
		require.Len(t, follows, 1)
		assert.Equal(t, c.ID, follows[0].ID)
	})
}

func TestRerenderArticles(t *testing.T) {
	tx := dbtest.Begin(t)
	ctx := context.Background()
	author := dbtest.CreateUser(t, tx)

	article, err := SaveArticle(ctx, tx, changes.New(models.Article{
		Title:    "Stale",
		Content:  "**bold**",
		AuthorID: author.ID,
		Status:   models.ArticleStatusDraft,
	}), SaveArticleOptions{ParentForumID: noForum})
	require.NoError(t, err)

	_, err = tx.Exec(ctx, "UPDATE blog_article SET content_html = 'stale', content_text = 'stale' WHERE id = $1", article.ID)
	require.NoError(t, err)

	for _, h := range RerenderHandlers {
		_, err := h.Rerender(ctx, tx)
		require.NoError(t, err, h.Kind)
	}

	reloaded, err := FetchArticle(ctx, tx, article.ID)
	require.NoError(t, err)
	assert.Equal(t, article.ContentHtml, reloaded.ContentHtml)
	assert.Equal(t, article.ContentText, reloaded.ContentText)
	assert.Nil(t, reloaded.LastContentModificationDate)

	revisions, err := FetchRevisions(ctx, tx, article.ID)
	require.NoError(t, err)
	assert.Empty(t, revisions)
}
