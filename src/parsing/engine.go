package parsing

import (
	"bytes"
	"strings"
	"sync"

	"git.cdm.community/cdm/cdm/src/oops"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
	"mvdan.cc/xurls/v2"
)

// EngineVersion identifies the output of the markup pipeline. Bump it whenever
// a change here could change the HTML or text produced for existing content;
// on startup a changed version triggers a re-render of every stored field.
const EngineVersion = "cdm-markup-3"

// A Renderer turns source markup into HTML and its derived forms. Rendering is
// total: any input produces a Result.
type Renderer interface {
	Render(source string, opts Options) Result
}

// Engine is the goldmark-based Renderer. One pipeline is built per distinct
// set of allowed families and reused.
type Engine struct {
	mu        sync.Mutex
	pipelines map[Options]goldmark.Markdown
}

var _ Renderer = &Engine{}

func NewEngine() *Engine {
	return &Engine{
		pipelines: make(map[Options]goldmark.Markdown),
	}
}

var DefaultEngine = NewEngine()

func Render(source string, opts Options) Result {
	return DefaultEngine.Render(source, opts)
}

func (e *Engine) Render(source string, opts Options) Result {
	md := e.pipeline(opts)
	src := []byte(source)

	doc := md.Parser().Parse(text.NewReader(src))
	restrictLinks(doc, opts)
	footnotes := detachFootnotes(doc)

	var res Result
	res.HTML = renderNode(md, src, doc, footnotes, opts.MergeFootnotesHTML)

	if opts.RenderTextVersion {
		var buf bytes.Buffer
		if footnotes != nil && opts.MergeFootnotesText {
			doc.AppendChild(doc, footnotes)
		}
		if err := (plaintextRenderer{}).Render(&buf, src, doc); err != nil {
			panic(oops.New(err, "failed to render plain text"))
		}
		if footnotes != nil && footnotes.Parent() == doc {
			doc.RemoveChild(doc, footnotes)
		}
		res.Text = collapseSpaces(buf.String())
	}

	if opts.RenderExtraDict {
		if para := firstParagraph(doc); para != nil {
			res.SummaryHTML = renderNode(md, src, para, nil, false)
		}
		if footnotes != nil {
			res.FootnotesHTML = renderNode(md, src, ast.NewDocument(), footnotes, true)
		}
	}

	return res
}

// renderNode renders n as HTML, with the footnote list appended for the
// duration of the call when withFootnotes is set.
func renderNode(md goldmark.Markdown, src []byte, n ast.Node, footnotes ast.Node, withFootnotes bool) string {
	if footnotes != nil && withFootnotes {
		n.AppendChild(n, footnotes)
		defer n.RemoveChild(n, footnotes)
	}

	var buf bytes.Buffer
	if err := md.Renderer().Render(&buf, src, n); err != nil {
		panic(oops.New(err, "failed to render markup"))
	}
	return buf.String()
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (e *Engine) pipeline(opts Options) goldmark.Markdown {
	key := pipelineKey(opts)

	e.mu.Lock()
	defer e.mu.Unlock()

	if md, ok := e.pipelines[key]; ok {
		return md
	}
	md := newPipeline(key)
	e.pipelines[key] = md
	return md
}

// Output flags don't change how the document is parsed.
func pipelineKey(opts Options) Options {
	opts.RenderTextVersion = false
	opts.RenderExtraDict = false
	opts.MergeFootnotesText = false
	opts.MergeFootnotesHTML = false
	opts.ForceNofollow = false
	return opts
}

func newPipeline(opts Options) goldmark.Markdown {
	// Raw HTML blocks and inline HTML are never parsed, so any HTML in the
	// source is escaped.
	blockParsers := []util.PrioritizedValue{
		util.Prioritized(parser.NewThematicBreakParser(), 200),
		util.Prioritized(parser.NewParagraphParser(), 1000),
	}
	if opts.AllowTitles {
		blockParsers = append(blockParsers,
			util.Prioritized(parser.NewSetextHeadingParser(), 100),
			util.Prioritized(parser.NewATXHeadingParser(), 600),
		)
	}
	if opts.AllowLists {
		blockParsers = append(blockParsers,
			util.Prioritized(parser.NewListParser(), 300),
			util.Prioritized(parser.NewListItemParser(), 400),
		)
	}
	if opts.AllowCodeBlocks {
		blockParsers = append(blockParsers,
			util.Prioritized(parser.NewCodeBlockParser(), 500),
			util.Prioritized(parser.NewFencedCodeBlockParser(), 700),
		)
	}
	if opts.AllowQuotes {
		blockParsers = append(blockParsers, util.Prioritized(parser.NewBlockquoteParser(), 800))
	}

	var inlineParsers []util.PrioritizedValue
	if opts.AllowTextFormating {
		inlineParsers = append(inlineParsers,
			util.Prioritized(parser.NewCodeSpanParser(), 100),
			util.Prioritized(parser.NewEmphasisParser(), 500),
		)
	}
	if opts.AllowLinks || opts.AllowMedias {
		inlineParsers = append(inlineParsers, util.Prioritized(parser.NewLinkParser(), 200))
	}
	if opts.AllowLinks {
		inlineParsers = append(inlineParsers, util.Prioritized(parser.NewAutoLinkParser(), 300))
	}

	var extensions []goldmark.Extender
	if opts.AllowTextFormating {
		extensions = append(extensions, extension.Strikethrough)
	}
	if opts.AllowTables {
		extensions = append(extensions, extension.Table)
	}
	if opts.AllowLists && opts.AllowTodoLists {
		extensions = append(extensions, extension.TaskList)
	}
	if opts.AllowDefinitionLists {
		extensions = append(extensions, extension.DefinitionList)
	}
	if opts.AllowFootnotes {
		extensions = append(extensions, extension.Footnote)
	}
	if opts.AllowCdmExtra {
		extensions = append(extensions, extension.Typographer)
	}
	if opts.AllowLinks {
		extensions = append(extensions, extension.NewLinkify(
			extension.WithLinkifyURLRegexp(xurls.Strict()),
		))
	}
	if opts.AllowCodeBlocks {
		extensions = append(extensions, highlightExtension)
	}
	if opts.AllowSpoilers {
		extensions = append(extensions, spoilerExtension{})
	}
	if opts.AllowMedias {
		extensions = append(extensions, embedExtension{})
	}
	if allowed := allowedDirectives(opts); len(allowed) > 0 {
		extensions = append(extensions, directiveExtension{Allowed: allowed})
	}
	extensions = append(extensions, bbcodeExtension{Opts: opts})

	return goldmark.New(
		goldmark.WithParser(parser.NewParser(
			parser.WithBlockParsers(blockParsers...),
			parser.WithInlineParsers(inlineParsers...),
			parser.WithParagraphTransformers(parser.DefaultParagraphTransformers()...),
		)),
		goldmark.WithRenderer(renderer.NewRenderer(
			renderer.WithNodeRenderers(util.Prioritized(html.NewRenderer(), 1000)),
		)),
		goldmark.WithExtensions(extensions...),
	)
}

var highlightExtension = highlighting.NewHighlighting(
	highlighting.WithFormatOptions(CDMChromaOptions...),
	highlighting.WithWrapperRenderer(func(w util.BufWriter, context highlighting.CodeBlockContext, entering bool) {
		if entering {
			_, _ = w.WriteString(`<pre class="cdm-code">`)
		} else {
			_, _ = w.WriteString(`</pre>`)
		}
	}),
)
