package urls

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var RegexHomepage = regexp.MustCompile(`^/$`)

func BuildHomepage() string {
	return Url("/", nil)
}

var RegexArticle = regexp.MustCompile(`^/articles/(?P<slug>[a-z0-9-]+)/$`)

func BuildArticle(slug string) string {
	return Url("/articles/"+slug+"/", nil)
}

// Old links carried the publication date in the path. They redirect to
// BuildArticle.
var RegexDatedArticle = regexp.MustCompile(`^/articles/(?P<year>\d{4})/(?P<month>\d{1,2})/(?P<day>\d{1,2})/(?P<slug>[a-z0-9-]+)/$`)

func BuildDatedArticle(pubDate time.Time, slug string) string {
	return Url(fmt.Sprintf("/articles/%04d/%02d/%02d/%s/", pubDate.Year(), pubDate.Month(), pubDate.Day(), slug), nil)
}

var RegexArticleCategory = regexp.MustCompile(`^/articles/categories/(?P<hierarchy>[a-z0-9-]+(/[a-z0-9-]+)*)/$`)

func BuildArticleCategory(slugHierarchy string) string {
	if slugHierarchy == "" || strings.Contains(slugHierarchy, "//") {
		panic(fmt.Errorf("invalid category hierarchy: %q", slugHierarchy))
	}
	return Url("/articles/categories/"+slugHierarchy+"/", nil)
}

var RegexArticleTag = regexp.MustCompile(`^/articles/tags/(?P<slug>[a-z0-9-]+)/$`)

func BuildArticleTag(slug string) string {
	return Url("/articles/tags/"+slug+"/", nil)
}

var RegexArticleArchive = regexp.MustCompile(`^/articles/archive/(?P<year>\d{4})/(?P<month>\d{1,2})/$`)

func BuildArticleArchive(year int, month time.Month) string {
	return Url(fmt.Sprintf("/articles/archive/%04d/%02d/", year, month), nil)
}

var RegexLicense = regexp.MustCompile(`^/licenses/(?P<slug>[a-z0-9-]+)/$`)

func BuildLicense(slug string) string {
	return Url("/licenses/"+slug+"/", nil)
}

var RegexTicket = regexp.MustCompile(`^/tickets/(?P<id>\d+)/$`)

func BuildTicket(id int) string {
	return Url("/tickets/"+strconv.Itoa(id)+"/", nil)
}

func BuildTicketPage(id int, page int) string {
	if page < 1 {
		panic(fmt.Errorf("invalid page number: %d", page))
	}
	var query []Q
	if page > 1 {
		query = []Q{{"page", strconv.Itoa(page)}}
	}
	return Url("/tickets/"+strconv.Itoa(id)+"/", query)
}

var RegexTicketComponents = regexp.MustCompile(`^/tickets/components/$`)

func BuildTicketComponents() string {
	return Url("/tickets/components/", nil)
}

var RegexTicketComment = regexp.MustCompile(`^/tickets/comments/(?P<id>\d+)/$`)

// A stable link to a comment. It redirects to BuildTicketCommentAnchor, which
// depends on the page size.
func BuildTicketComment(commentID int) string {
	return Url("/tickets/comments/"+strconv.Itoa(commentID)+"/", nil)
}

func CommentFragment(commentID int) string {
	return "comment-" + strconv.Itoa(commentID)
}

func BuildTicketCommentAnchor(ticketID int, page int, commentID int) string {
	if page < 1 {
		panic(fmt.Errorf("invalid page number: %d", page))
	}
	return UrlWithFragment(
		"/tickets/"+strconv.Itoa(ticketID)+"/",
		[]Q{{"page", strconv.Itoa(page)}},
		CommentFragment(commentID),
	)
}

var RegexSnippet = regexp.MustCompile(`^/snippets/(?P<id>\d+)/$`)

func BuildSnippet(id int) string {
	return Url("/snippets/"+strconv.Itoa(id)+"/", nil)
}

var RegexSnippetRaw = regexp.MustCompile(`^/snippets/(?P<id>\d+)/raw/$`)

func BuildSnippetRaw(id int) string {
	return Url("/snippets/"+strconv.Itoa(id)+"/raw/", nil)
}

var RegexSnippetDownload = regexp.MustCompile(`^/snippets/(?P<id>\d+)/download/$`)

func BuildSnippetDownload(id int) string {
	return Url("/snippets/"+strconv.Itoa(id)+"/download/", nil)
}

var RegexSnippetZip = regexp.MustCompile(`^/snippets/(?P<id>\d+)/zip/$`)

func BuildSnippetZip(id int) string {
	return Url("/snippets/"+strconv.Itoa(id)+"/zip/", nil)
}

var RegexPrivateMessage = regexp.MustCompile(`^/messages/(?P<id>\d+)/$`)

func BuildPrivateMessage(id int) string {
	return Url("/messages/"+strconv.Itoa(id)+"/", nil)
}

var RegexInbox = regexp.MustCompile(`^/messages/$`)

func BuildInbox() string {
	return Url("/messages/", nil)
}
