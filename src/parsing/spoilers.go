package parsing

import (
	"github.com/yuin/goldmark"
	gast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// ||spoilers|| are a pair of double pipes around inline content.

// ----------------------
// Parser and delimiters
// ----------------------

type spoilerParser struct{}

func NewSpoilerParser() parser.InlineParser {
	return spoilerParser{}
}

func (s spoilerParser) Trigger() []byte {
	return []byte{'|'}
}

func (s spoilerParser) Parse(parent gast.Node, block text.Reader, pc parser.Context) gast.Node {
	before := block.PrecendingCharacter()
	restOfLine, segment := block.PeekLine()
	delimiter := parser.ScanDelimiter(restOfLine, before, 2, spoilerDelimiterParser{})
	if delimiter == nil {
		// A single pipe, probably part of a table or just text
		return nil
	}
	delimiter.Segment = segment.WithStop(segment.Start + delimiter.OriginalLength)
	block.Advance(delimiter.OriginalLength)
	pc.PushDelimiter(delimiter)
	return delimiter
}

type spoilerDelimiterParser struct{}

func (p spoilerDelimiterParser) IsDelimiter(b byte) bool {
	return b == '|'
}

func (p spoilerDelimiterParser) CanOpenCloser(opener, closer *parser.Delimiter) bool {
	return opener.Char == closer.Char
}

func (p spoilerDelimiterParser) OnMatch(consumes int) gast.Node {
	return &SpoilerNode{}
}

// ----------------------
// AST node
// ----------------------

type SpoilerNode struct {
	gast.BaseInline
}

var _ gast.Node = &SpoilerNode{}

func (n *SpoilerNode) Dump(source []byte, level int) {
	gast.DumpHelper(n, source, level, nil, nil)
}

var KindSpoiler = gast.NewNodeKind("Spoiler")

func (n *SpoilerNode) Kind() gast.NodeKind {
	return KindSpoiler
}

// ----------------------
// Renderer
// ----------------------

type spoilerHTMLRenderer struct {
	html.Config
}

func newSpoilerHTMLRenderer(opts ...html.Option) renderer.NodeRenderer {
	r := &spoilerHTMLRenderer{
		Config: html.NewConfig(),
	}
	for _, opt := range opts {
		opt.SetHTMLOption(&r.Config)
	}
	return r
}

func (r *spoilerHTMLRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindSpoiler, r.renderSpoiler)
}

func (r *spoilerHTMLRenderer) renderSpoiler(w util.BufWriter, source []byte, n gast.Node, entering bool) (gast.WalkStatus, error) {
	if entering {
		_, _ = w.WriteString(`<span class="spoiler">`)
	} else {
		_, _ = w.WriteString(`</span>`)
	}
	return gast.WalkContinue, nil
}

// ----------------------
// Extension
// ----------------------

type spoilerExtension struct{}

func (e spoilerExtension) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(parser.WithInlineParsers(
		util.Prioritized(NewSpoilerParser(), 500),
	))
	m.Renderer().AddOptions(renderer.WithNodeRenderers(
		util.Prioritized(newSpoilerHTMLRenderer(), 500),
	))
}
