package website

import (
	"net/http"
	"time"

	"git.cdm.community/cdm/cdm/src/models"
	"git.cdm.community/cdm/cdm/src/snippets"
	"git.cdm.community/cdm/cdm/src/urls"
)

type snippetJson struct {
	ID              int        `json:"id"`
	Url             string     `json:"url"`
	Title           string     `json:"title"`
	Filename        string     `json:"filename"`
	Language        string     `json:"language"`
	DescriptionHtml string     `json:"description_html"`
	Html            string     `json:"html"`
	Css             string     `json:"css"`
	RawUrl          string     `json:"raw_url"`
	DownloadUrl     string     `json:"download_url"`
	ZipUrl          string     `json:"zip_url"`
	Created         time.Time  `json:"created"`
	LastModified    *time.Time `json:"last_modified,omitempty"`
}

func fetchSnippet(c *RequestContext) (*models.CodeSnippet, *ResponseData) {
	id, ok := c.IntParam("id")
	if !ok {
		res := FourOhFour(c)
		return nil, &res
	}
	s, err := snippets.FetchSnippet(c, c.Conn, id)
	if err != nil {
		res := c.ErrorFor(err)
		return nil, &res
	}
	return s, nil
}

func Snippet(c *RequestContext) ResponseData {
	s, errRes := fetchSnippet(c)
	if errRes != nil {
		return *errRes
	}

	var res ResponseData
	res.MustWriteJson(snippetJson{
		ID:              s.ID,
		Url:             urls.BuildSnippet(s.ID),
		Title:           s.Title,
		Filename:        s.Filename,
		Language:        s.CodeLanguage,
		DescriptionHtml: s.DescriptionHtml,
		Html:            s.HtmlForDisplay,
		Css:             s.CssForDisplay,
		RawUrl:          urls.BuildSnippetRaw(s.ID),
		DownloadUrl:     urls.BuildSnippetDownload(s.ID),
		ZipUrl:          urls.BuildSnippetZip(s.ID),
		Created:         s.CreationDate,
		LastModified:    s.LastModificationDate,
	})
	return res
}

func snippetRaw(asAttachment bool) Handler {
	return func(c *RequestContext) ResponseData {
		s, errRes := fetchSnippet(c)
		if errRes != nil {
			return *errRes
		}

		var res ResponseData
		if err := snippets.WriteRaw(&res, s, asAttachment); err != nil {
			return c.ErrorResponse(http.StatusInternalServerError, err)
		}
		return res
	}
}

var (
	SnippetRaw      = snippetRaw(false)
	SnippetDownload = snippetRaw(true)
)

func SnippetZip(c *RequestContext) ResponseData {
	s, errRes := fetchSnippet(c)
	if errRes != nil {
		return *errRes
	}

	var res ResponseData
	if err := snippets.WriteZip(&res, s); err != nil {
		return c.ErrorResponse(http.StatusInternalServerError, err)
	}
	return res
}
