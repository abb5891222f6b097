package parsing

import (
	"bytes"
	"sort"
	"strconv"
	"strings"

	"git.cdm.community/cdm/cdm/src/oops"
	"github.com/alecthomas/chroma"
	chromahtml "github.com/alecthomas/chroma/formatters/html"
	"github.com/alecthomas/chroma/lexers"
	"github.com/alecthomas/chroma/styles"
)

// Shared by fenced code blocks in markup and by the snippet highlighter, so
// one stylesheet covers both.
var CDMChromaOptions = []chromahtml.Option{
	chromahtml.WithClasses(true),
	chromahtml.WithPreWrapper(nopPreWrapper{}),
}

var HighlightStyle = styles.Monokai

type nopPreWrapper struct{}

var _ chromahtml.PreWrapper = nopPreWrapper{}

func (w nopPreWrapper) Start(code bool, styleAttr string) string {
	return ""
}

func (w nopPreWrapper) End(code bool) string {
	return ""
}

type HighlightRequest struct {
	Source         string
	Language       string
	TabSize        int
	LineNumbers    bool
	HighlightLines []int
}

type Highlighted struct {
	HTML string
	CSS  string
}

type Highlighter interface {
	Highlight(req HighlightRequest) (Highlighted, error)
}

// ChromaHighlighter renders snippets with a table layout when line numbers
// are on. Line number cells link to #L<n>.
type ChromaHighlighter struct{}

var _ Highlighter = ChromaHighlighter{}

func (h ChromaHighlighter) Highlight(req HighlightRequest) (Highlighted, error) {
	lexer := lexers.Get(req.Language)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	iterator, err := lexer.Tokenise(nil, req.Source)
	if err != nil {
		return Highlighted{}, oops.New(err, "failed to tokenize snippet as %s", req.Language)
	}

	opts := []chromahtml.Option{
		chromahtml.WithClasses(true),
		chromahtml.TabWidth(req.TabSize),
		chromahtml.WithLineNumbers(req.LineNumbers),
		chromahtml.LineNumbersInTable(req.LineNumbers),
		chromahtml.LinkableLineNumbers(req.LineNumbers, "L"),
	}
	if ranges := highlightRanges(req.HighlightLines); len(ranges) > 0 {
		opts = append(opts, chromahtml.HighlightLines(ranges))
	}
	formatter := chromahtml.New(opts...)

	var htmlBuf, cssBuf bytes.Buffer
	if err := formatter.Format(&htmlBuf, HighlightStyle, iterator); err != nil {
		return Highlighted{}, oops.New(err, "failed to format snippet")
	}
	if err := formatter.WriteCSS(&cssBuf, HighlightStyle); err != nil {
		return Highlighted{}, oops.New(err, "failed to write snippet css")
	}

	return Highlighted{
		HTML: htmlBuf.String(),
		CSS:  cssBuf.String(),
	}, nil
}

// Collapses sorted line numbers into the inclusive ranges chroma expects.
func highlightRanges(lines []int) [][2]int {
	if len(lines) == 0 {
		return nil
	}
	sorted := append([]int(nil), lines...)
	sort.Ints(sorted)

	var ranges [][2]int
	for _, l := range sorted {
		if len(ranges) > 0 && l <= ranges[len(ranges)-1][1]+1 {
			if l > ranges[len(ranges)-1][1] {
				ranges[len(ranges)-1][1] = l
			}
			continue
		}
		ranges = append(ranges, [2]int{l, l})
	}
	return ranges
}

var ErrBadHighlightLines = oops.NewCoded(oops.KindValidation, "bad_highlight_lines", "highlight lines must be a comma-separated list of positive line numbers")

// ParseHighlightLines parses the comma-joined line list stored on snippets.
// Blank entries are skipped.
func ParseHighlightLines(s string) ([]int, error) {
	var res []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 {
			return nil, ErrBadHighlightLines
		}
		res = append(res, n)
	}
	return res, nil
}

func FormatHighlightLines(lines []int) string {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = strconv.Itoa(l)
	}
	return strings.Join(parts, ",")
}

// Languages lists the names of every lexer snippets can be highlighted with.
func Languages() []string {
	return lexers.Names(false)
}

func IsKnownLanguage(name string) bool {
	return lexers.Get(name) != nil
}
