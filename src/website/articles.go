package website

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"git.cdm.community/cdm/cdm/src/blog"
	"git.cdm.community/cdm/cdm/src/config"
	"git.cdm.community/cdm/cdm/src/licenses"
	"git.cdm.community/cdm/cdm/src/models"
	"git.cdm.community/cdm/cdm/src/urls"
)

type taxonomyJson struct {
	Name            string `json:"name"`
	Slug            string `json:"slug"`
	Url             string `json:"url"`
	DescriptionHtml string `json:"description_html,omitempty"`
}

type licenseJson struct {
	Name            string    `json:"name"`
	Slug            string    `json:"slug"`
	Url             string    `json:"url"`
	DescriptionHtml string    `json:"description_html"`
	Usage           string    `json:"usage,omitempty"`
	SourceUrl       string    `json:"source_url,omitempty"`
	LastModified    time.Time `json:"last_modified"`
}

func licenseToJson(l *models.License) licenseJson {
	return licenseJson{
		Name:            l.Name,
		Slug:            l.Slug,
		Url:             urls.BuildLicense(l.Slug),
		DescriptionHtml: l.DescriptionHtml,
		Usage:           l.Usage,
		SourceUrl:       l.SourceUrl,
		LastModified:    l.LastModificationDate,
	}
}

type articleJson struct {
	ID       int    `json:"id"`
	Url      string `json:"url"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`

	// visible or preview
	Visibility         string `json:"visibility"`
	IsOld              bool   `json:"is_old"`
	RequiresMembership bool   `json:"requires_membership"`

	PubDate      *time.Time `json:"pub_date,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty"`

	DescriptionHtml string `json:"description_html"`
	SummaryHtml     string `json:"summary_html"`
	ContentHtml     string `json:"content_html,omitempty"`
	FootnotesHtml   string `json:"footnotes_html,omitempty"`

	Categories []taxonomyJson `json:"categories"`
	Tags       []taxonomyJson `json:"tags"`
	License    *licenseJson   `json:"license,omitempty"`
}

func ArticleDetail(c *RequestContext) ResponseData {
	article, err := blog.FetchArticleBySlug(c, c.Conn, c.PathParams["slug"])
	if errors.Is(err, blog.ErrArticleNotFound) {
		return FourOhFour(c)
	} else if err != nil {
		return c.ErrorFor(err)
	}

	visibility := blog.VisibilityFor(article, c.CurrentUser, c.Now)
	switch visibility {
	case blog.VisibilityGone:
		res := ResponseData{StatusCode: http.StatusGone}
		res.MustWriteJson(errorBody{Error: visibility.String(), Message: "This article is no longer available."})
		return res
	case blog.VisibilityNotFound:
		return FourOhFour(c)
	}

	result := articleJson{
		ID:                 article.ID,
		Url:                urls.BuildArticle(article.Slug),
		Title:              article.Title,
		Subtitle:           article.Subtitle,
		Visibility:         visibility.String(),
		IsOld:              blog.IsOld(article, c.Now, config.Config.Blog.OldThreshold()),
		RequiresMembership: blog.RequiresMembership(article, c.Now),
		PubDate:            article.PubDate,
		LastModified:       article.LastContentModificationDate,
		DescriptionHtml:    article.DescriptionHtml,
		SummaryHtml:        article.SummaryHtml,
		Categories:         []taxonomyJson{},
		Tags:               []taxonomyJson{},
	}
	// Anonymous readers get the summary of members-only articles.
	if !result.RequiresMembership || c.CurrentUser != nil {
		result.ContentHtml = article.ContentHtml
		result.FootnotesHtml = article.FootnotesHtml
	}

	categories, err := blog.FetchArticleCategories(c, c.Conn, article.ID)
	if err != nil {
		return c.ErrorFor(err)
	}
	for _, cat := range categories {
		result.Categories = append(result.Categories, taxonomyJson{
			Name: cat.Name,
			Slug: cat.Slug,
			Url:  urls.BuildArticleCategory(cat.SlugHierarchy),
		})
	}

	tags, err := blog.FetchArticleTags(c, c.Conn, article.ID)
	if err != nil {
		return c.ErrorFor(err)
	}
	for _, tag := range tags {
		result.Tags = append(result.Tags, taxonomyJson{
			Name: tag.Name,
			Slug: tag.Slug,
			Url:  urls.BuildArticleTag(tag.Slug),
		})
	}

	if article.LicenseID != nil {
		license, err := licenses.FetchLicense(c, c.Conn, *article.LicenseID)
		if err != nil {
			return c.ErrorFor(err)
		}
		lj := licenseToJson(license)
		result.License = &lj
	}

	var res ResponseData
	res.MustWriteJson(result)
	return res
}

// Dated article links from the old site. The date is ignored.
func DatedArticleRedirect(c *RequestContext) ResponseData {
	return c.Redirect(urls.BuildArticle(c.PathParams["slug"]), http.StatusMovedPermanently)
}

type articleSummaryJson struct {
	Title   string     `json:"title"`
	Url     string     `json:"url"`
	PubDate *time.Time `json:"pub_date"`
}

func articleSummaries(articles []*models.Article) []articleSummaryJson {
	result := make([]articleSummaryJson, 0, len(articles))
	for _, a := range articles {
		result = append(result, articleSummaryJson{
			Title:   a.Title,
			Url:     urls.BuildArticle(a.Slug),
			PubDate: a.PubDate,
		})
	}
	return result
}

func ArticleCategory(c *RequestContext) ResponseData {
	cat, err := blog.FetchCategoryByHierarchy(c, c.Conn, c.PathParams["hierarchy"])
	if err != nil {
		return c.ErrorFor(err)
	}

	var res ResponseData
	res.MustWriteJson(taxonomyJson{
		Name:            cat.Name,
		Slug:            cat.Slug,
		Url:             urls.BuildArticleCategory(cat.SlugHierarchy),
		DescriptionHtml: cat.DescriptionHtml,
	})
	return res
}

func ArticleTag(c *RequestContext) ResponseData {
	tag, err := blog.FetchTagBySlug(c, c.Conn, c.PathParams["slug"])
	if err != nil {
		return c.ErrorFor(err)
	}

	var res ResponseData
	res.MustWriteJson(taxonomyJson{
		Name:            tag.Name,
		Slug:            tag.Slug,
		Url:             urls.BuildArticleTag(tag.Slug),
		DescriptionHtml: tag.DescriptionHtml,
	})
	return res
}

type archiveJson struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Count int `json:"count"`
}

func ArticleArchive(c *RequestContext) ResponseData {
	year, err := strconv.Atoi(c.PathParams["year"])
	if err != nil {
		return FourOhFour(c)
	}
	month, err := strconv.Atoi(c.PathParams["month"])
	if err != nil || month < 1 || month > 12 {
		return FourOhFour(c)
	}

	archive, err := blog.PublishedPerMonth(c, c.Conn, c.Now)
	if err != nil {
		return c.ErrorFor(err)
	}
	for _, ay := range archive {
		if ay.Year != year {
			continue
		}
		for _, am := range ay.Months {
			if int(am.Month) == month {
				var res ResponseData
				res.MustWriteJson(archiveJson{Year: year, Month: month, Count: am.Count})
				return res
			}
		}
	}
	return FourOhFour(c)
}

func Homepage(c *RequestContext) ResponseData {
	perPage := config.Config.Blog.ArticlesPerPage
	articles, err := blog.FetchPublishedArticles(c, c.Conn, c.Now, perPage, (c.Page()-1)*perPage)
	if err != nil {
		return c.ErrorFor(err)
	}
	total, err := blog.CountPublishedArticles(c, c.Conn, c.Now)
	if err != nil {
		return c.ErrorFor(err)
	}

	var res ResponseData
	res.MustWriteJson(struct {
		Articles []articleSummaryJson `json:"articles"`
		Total    int                  `json:"total"`
	}{
		Articles: articleSummaries(articles),
		Total:    total,
	})
	return res
}

func License(c *RequestContext) ResponseData {
	license, err := licenses.FetchLicenseBySlug(c, c.Conn, c.PathParams["slug"])
	if err != nil {
		return c.ErrorFor(err)
	}

	var res ResponseData
	res.MustWriteJson(licenseToJson(license))
	return res
}
