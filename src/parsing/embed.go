package parsing

import (
	"regexp"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

var (
	REYoutubeLong    = regexp.MustCompile(`^https://www\.youtube\.com/watch?.*v=(?P<vid>[a-zA-Z0-9_-]{11})`)
	REYoutubeShort   = regexp.MustCompile(`^https://youtu\.be/(?P<vid>[a-zA-Z0-9_-]{11})`)
	REYoutubeVidOnly = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
	REVimeo          = regexp.MustCompile(`^https://vimeo\.com/(?P<vid>\d+)`)
	REDailymotion    = regexp.MustCompile(`^https://www\.dailymotion\.com/video/(?P<vid>[a-zA-Z0-9]+)`)
)

// Returns the HTML used to embed the given url, the matched prefix, and
// whether the url could be embedded at all. Trailing content after the URL is
// ignored.
func htmlForURLEmbed(url []byte) (string, []byte, bool) {
	if m := extractMap(REYoutubeLong, url); m != nil {
		return makeYoutubeEmbed(string(m["vid"])), m["all"], true
	} else if m := extractMap(REYoutubeShort, url); m != nil {
		return makeYoutubeEmbed(string(m["vid"])), m["all"], true
	} else if m := extractMap(REVimeo, url); m != nil {
		return makeIframeEmbed("https://player.vimeo.com/video/" + string(m["vid"])), m["all"], true
	} else if m := extractMap(REDailymotion, url); m != nil {
		return makeIframeEmbed("https://www.dailymotion.com/embed/video/" + string(m["vid"])), m["all"], true
	}

	return "", nil, false
}

func youtubeVideoID(s string) string {
	if vid := extract(REYoutubeLong, []byte(s), "vid"); vid != nil {
		return string(vid)
	} else if vid := extract(REYoutubeShort, []byte(s), "vid"); vid != nil {
		return string(vid)
	} else if REYoutubeVidOnly.MatchString(s) {
		return s
	}
	return ""
}

func makeYoutubeEmbed(vid string) string {
	return makeIframeEmbed("https://www.youtube-nocookie.com/embed/" + vid)
}

func makeIframeEmbed(src string) string {
	return `<div class="media-embed"><iframe src="` + src + `" frameborder="0" allowfullscreen></iframe></div>`
}

// ----------------------
// Parser
// ----------------------

// A media URL alone on its own line becomes an embedded player.
type embedParser struct{}

var _ parser.BlockParser = embedParser{}

func (s embedParser) Trigger() []byte {
	return []byte{'h'}
}

func (s embedParser) Open(parent ast.Node, reader text.Reader, pc parser.Context) (ast.Node, parser.State) {
	restOfLine, _ := reader.PeekLine()

	if html, match, ok := htmlForURLEmbed(restOfLine); ok && len(util.TrimRightSpace(restOfLine)) == len(match) {
		reader.Advance(len(match))
		return &EmbedNode{HTML: html}, parser.NoChildren
	}
	return nil, parser.NoChildren
}

func (s embedParser) Continue(node ast.Node, reader text.Reader, pc parser.Context) parser.State {
	return parser.Close
}

func (s embedParser) Close(node ast.Node, reader text.Reader, pc parser.Context) {}

func (s embedParser) CanInterruptParagraph() bool {
	return true
}

func (s embedParser) CanAcceptIndentedLine() bool {
	return false
}

// ----------------------
// AST node
// ----------------------

type EmbedNode struct {
	ast.BaseBlock
	HTML string
}

func (n *EmbedNode) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, nil, nil)
}

var KindEmbed = ast.NewNodeKind("Embed")

func (n *EmbedNode) Kind() ast.NodeKind {
	return KindEmbed
}

// ----------------------
// Renderer
// ----------------------

type embedHTMLRenderer struct {
	html.Config
}

func newEmbedHTMLRenderer(opts ...html.Option) renderer.NodeRenderer {
	r := &embedHTMLRenderer{
		Config: html.NewConfig(),
	}
	for _, opt := range opts {
		opt.SetHTMLOption(&r.Config)
	}
	return r
}

func (r *embedHTMLRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindEmbed, r.renderEmbed)
}

func (r *embedHTMLRenderer) renderEmbed(w util.BufWriter, source []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		_, _ = w.WriteString(n.(*EmbedNode).HTML)
		_ = w.WriteByte('\n')
	}
	return ast.WalkSkipChildren, nil
}

// ----------------------
// Extension
// ----------------------

type embedExtension struct{}

func (e embedExtension) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(parser.WithBlockParsers(
		util.Prioritized(embedParser{}, 500),
	))
	m.Renderer().AddOptions(renderer.WithNodeRenderers(
		util.Prioritized(newEmbedHTMLRenderer(), 500),
	))
}
