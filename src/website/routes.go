package website

import (
	"net/http"
	"regexp"

	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/urls"
)

func NewWebsiteRoutes(conn db.ConnOrTx) http.Handler {
	router := &Router{AppendSlash: true}
	routes := RouteBuilder{
		Router: router,
		Middlewares: []Middleware{
			panicCatcherMiddleware,
			logContextErrorsMiddleware,
			trackRequestMetrics,
			withConn(conn),
		},
	}

	routes.GET(urls.RegexHomepage, Homepage)

	routes.GET(urls.RegexArticleCategory, ArticleCategory)
	routes.GET(urls.RegexArticleTag, ArticleTag)
	routes.GET(urls.RegexArticleArchive, ArticleArchive)
	routes.GET(urls.RegexDatedArticle, DatedArticleRedirect)
	routes.GET(urls.RegexArticle, ArticleDetail)
	routes.GET(urls.RegexLicense, License)

	routes.GET(urls.RegexTicketComponents, TicketComponents)
	routes.GET(urls.RegexTicketComment, TicketComment)
	routes.GET(urls.RegexTicket, Ticket)

	routes.GET(urls.RegexSnippetRaw, SnippetRaw)
	routes.GET(urls.RegexSnippetDownload, SnippetDownload)
	routes.GET(urls.RegexSnippetZip, SnippetZip)
	routes.GET(urls.RegexSnippet, Snippet)

	routes.AnyMethod(regexp.MustCompile("^"), FourOhFour)

	return router
}
