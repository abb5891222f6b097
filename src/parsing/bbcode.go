package parsing

import (
	"regexp"
	"strings"

	"github.com/frustra/bbcode"
	"github.com/yuin/goldmark"
	gast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// Inline markup that plain markdown has no syntax for is written as bbcode
// tags: [sup]2[/sup], [color=#c00]red[/color], [abbr=HyperText]HTML[/abbr].
// Each tag belongs to a family that has to be allowed by the Options.

var BBCodePriority = 1

var reTag = regexp.MustCompile(`(?P<open>\[\s*(?P<opentagname>[a-zA-Z0-9]+))|(?P<close>\[\s*\/\s*(?P<closetagname>[a-zA-Z0-9]+)\s*\])`)

var reOpenTag = regexp.MustCompile(`^\[\s*([a-zA-Z0-9]+)`)

var reCSSColor = regexp.MustCompile(`^(#[0-9a-fA-F]{3}|#[0-9a-fA-F]{6}|[a-zA-Z]{3,20})$`)

// Tags registered by bbcode.NewCompiler that we never want.
var bbcodeDefaultTags = []string{"b", "i", "u", "s", "url", "img", "center", "color", "size", "quote", "code"}

type bbcodeTag struct {
	Allowed func(opts Options) bool
	Compile bbcode.TagCompilerFunc
}

var bbcodeTags = map[string]bbcodeTag{
	// Formatting that markdown emphasis doesn't cover. strike is the legacy
	// spelling of s.
	"u":      {allowFormatting, simpleTag("u")},
	"s":      {allowFormatting, simpleTag("del")},
	"strike": {allowFormatting, simpleTag("del")},

	"sup":   {allowExtra, simpleTag("sup")},
	"sub":   {allowExtra, simpleTag("sub")},
	"small": {allowExtra, simpleTag("small")},

	"left":    {allowAlignments, classTag("span", "align-left")},
	"center":  {allowAlignments, classTag("span", "align-center")},
	"right":   {allowAlignments, classTag("span", "align-right")},
	"justify": {allowAlignments, classTag("span", "align-justify")},

	"ltr": {allowDirections, attrTag("span", "dir", "ltr")},
	"rtl": {allowDirections, attrTag("span", "dir", "rtl")},

	"mark": {allowModifiers, simpleTag("mark")},
	"ins":  {allowModifiers, simpleTag("ins")},
	"kbd":  {allowModifiers, simpleTag("kbd")},
	"tt":   {allowModifiers, simpleTag("kbd")},

	"color": {allowColors, compileColor},

	"abbr":    {allowAcronyms, compileAbbr},
	"acronym": {allowAcronyms, compileAbbr},

	"youtube": {allowMedias, compileYoutube},
}

func allowFormatting(opts Options) bool { return opts.AllowTextFormating }
func allowExtra(opts Options) bool      { return opts.AllowTextExtra }
func allowAlignments(opts Options) bool { return opts.AllowTextAlignments }
func allowDirections(opts Options) bool { return opts.AllowTextDirections }
func allowModifiers(opts Options) bool  { return opts.AllowTextModifiers }
func allowColors(opts Options) bool     { return opts.AllowTextColors }
func allowAcronyms(opts Options) bool   { return opts.AllowAcronyms }
func allowMedias(opts Options) bool     { return opts.AllowMedias }

func simpleTag(name string) bbcode.TagCompilerFunc {
	return func(bn *bbcode.BBCodeNode) (*bbcode.HTMLTag, bool) {
		out := bbcode.NewHTMLTag("")
		out.Name = name
		return out, true
	}
}

func attrTag(name, attr, value string) bbcode.TagCompilerFunc {
	return func(bn *bbcode.BBCodeNode) (*bbcode.HTMLTag, bool) {
		out := bbcode.NewHTMLTag("")
		out.Name = name
		out.Attrs[attr] = value
		return out, true
	}
}

func classTag(name, class string) bbcode.TagCompilerFunc {
	return attrTag(name, "class", class)
}

func compileColor(bn *bbcode.BBCodeNode) (*bbcode.HTMLTag, bool) {
	out := bbcode.NewHTMLTag("")
	out.Name = "span"
	if color := strings.TrimSpace(bn.GetOpeningTag().Value); reCSSColor.MatchString(color) {
		out.Attrs["style"] = "color: " + color
	}
	return out, true
}

func compileAbbr(bn *bbcode.BBCodeNode) (*bbcode.HTMLTag, bool) {
	out := bbcode.NewHTMLTag("")
	out.Name = "abbr"
	if title := bn.GetOpeningTag().Value; title != "" {
		out.Attrs["title"] = title
	}
	return out, true
}

func compileYoutube(bn *bbcode.BBCodeNode) (*bbcode.HTMLTag, bool) {
	vid := youtubeVideoID(strings.TrimSpace(bbcode.CompileText(bn)))
	if vid == "" {
		return bbcode.NewHTMLTag("<bad video URL>"), false
	}
	out := bbcode.NewHTMLTag(makeYoutubeEmbed(vid))
	out.Raw = true
	return out, false
}

// newBBCodeCompiler returns a compiler that knows only the tags allowed by
// opts, and the set of those tag names.
func newBBCodeCompiler(opts Options) (bbcode.Compiler, map[string]bool) {
	compiler := bbcode.NewCompiler(false, false)
	for _, name := range bbcodeDefaultTags {
		compiler.SetTag(name, nil)
	}

	allowed := make(map[string]bool)
	for name, tag := range bbcodeTags {
		if tag.Allowed(opts) {
			compiler.SetTag(name, tag.Compile)
			allowed[name] = true
		}
	}
	return compiler, allowed
}

// ----------------------
// Parser
// ----------------------

type bbcodeParser struct {
	Compiler bbcode.Compiler
	Allowed  map[string]bool
}

var _ parser.InlineParser = &bbcodeParser{}

func (s *bbcodeParser) Trigger() []byte {
	return []byte{'['}
}

func (s *bbcodeParser) Parse(parent gast.Node, block text.Reader, pc parser.Context) gast.Node {
	_, pos := block.Position()
	source := block.Source()
	restOfSource := source[pos.Start:]

	m := reOpenTag.FindSubmatch(restOfSource)
	if m == nil || !s.Allowed[strings.ToLower(string(m[1]))] {
		// Leave it to the link parser, or to plain text
		return nil
	}

	end, balanced := bbcodePairs(source, pc)[pos.Start]
	if !balanced {
		return nil
	}

	unparsedBBCode := restOfSource[:end-pos.Start]
	block.Advance(len(unparsedBBCode))

	return &BBCodeNode{
		HTML: s.Compiler.Compile(string(unparsedBBCode)),
	}
}

var bbcodePairsKey = parser.NewContextKey()

/*
Maps the offset of every balanced opening tag in source to the offset just
past its closing tag. Tags of the same name nest; a closing tag with no open
tag of its name is ignored.

Computed once per document and kept in the parser context, so a document
full of brackets is scanned once rather than once per bracket.
*/
func bbcodePairs(source []byte, pc parser.Context) map[int]int {
	if cached, ok := pc.Get(bbcodePairsKey).(map[int]int); ok {
		return cached
	}

	otIndex := reTag.SubexpIndex("opentagname")
	ctIndex := reTag.SubexpIndex("closetagname")

	pairs := make(map[int]int)
	open := make(map[string][]int)
	for _, m := range reTag.FindAllSubmatchIndex(source, -1) {
		if name := extractStringBySubmatchIndices(source, m, otIndex); name != "" {
			name = strings.ToLower(name)
			open[name] = append(open[name], m[0])
		} else if name := extractStringBySubmatchIndices(source, m, ctIndex); name != "" {
			name = strings.ToLower(name)
			if stack := open[name]; len(stack) > 0 {
				pairs[stack[len(stack)-1]] = m[1]
				open[name] = stack[:len(stack)-1]
			}
		}
	}

	pc.Set(bbcodePairsKey, pairs)
	return pairs
}

func extractStringBySubmatchIndices(src []byte, m []int, subexpIndex int) string {
	srcIndices := m[2*subexpIndex : 2*subexpIndex+1+1]
	if srcIndices[0] < 0 {
		return ""
	}
	return string(src[srcIndices[0]:srcIndices[1]])
}

// ----------------------
// AST node
// ----------------------

type BBCodeNode struct {
	gast.BaseInline
	HTML string
}

var _ gast.Node = &BBCodeNode{}

func (n *BBCodeNode) Dump(source []byte, level int) {
	gast.DumpHelper(n, source, level, map[string]string{"HTML": n.HTML}, nil)
}

var KindBBCode = gast.NewNodeKind("BBCode")

func (n *BBCodeNode) Kind() gast.NodeKind {
	return KindBBCode
}

// ----------------------
// Renderer
// ----------------------

type bbcodeHTMLRenderer struct {
	html.Config
}

func newBBCodeHTMLRenderer(opts ...html.Option) renderer.NodeRenderer {
	r := &bbcodeHTMLRenderer{
		Config: html.NewConfig(),
	}
	for _, opt := range opts {
		opt.SetHTMLOption(&r.Config)
	}
	return r
}

func (r *bbcodeHTMLRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindBBCode, r.renderBBCode)
}

func (r *bbcodeHTMLRenderer) renderBBCode(w util.BufWriter, source []byte, n gast.Node, entering bool) (gast.WalkStatus, error) {
	if entering {
		_, _ = w.WriteString(n.(*BBCodeNode).HTML)
	}
	return gast.WalkContinue, nil
}

// ----------------------
// Extension
// ----------------------

type bbcodeExtension struct {
	Opts Options
}

func (e bbcodeExtension) Extend(m goldmark.Markdown) {
	compiler, allowed := newBBCodeCompiler(e.Opts)
	if len(allowed) == 0 {
		return
	}
	m.Parser().AddOptions(parser.WithInlineParsers(
		util.Prioritized(&bbcodeParser{Compiler: compiler, Allowed: allowed}, BBCodePriority),
	))
	m.Renderer().AddOptions(renderer.WithNodeRenderers(
		util.Prioritized(newBBCodeHTMLRenderer(), BBCodePriority),
	))
}
