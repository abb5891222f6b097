package parsing

import (
	"html"
	"io"
	"regexp"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
)

// plaintextRenderer produces the text version stored alongside rendered HTML,
// used for search and for feed excerpts.
type plaintextRenderer struct{}

var _ renderer.Renderer = plaintextRenderer{}

var backslashRegex = regexp.MustCompile("\\\\(?P<char>[\\\\\\x60!\"#$%&'()*+,-./:;<=>?@\\[\\]^_{|}~])")
var htmlTagRegex = regexp.MustCompile(`<[^>]*>`)

func (r plaintextRenderer) Render(w io.Writer, source []byte, n ast.Node) error {
	return ast.Walk(n, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch n.Kind() {
		case ast.KindText:
			n := n.(*ast.Text)
			_, err := w.Write(backslashRegex.ReplaceAll(n.Text(source), []byte("$1")))
			if err != nil {
				return ast.WalkStop, err
			}

			if n.SoftLineBreak() || n.HardLineBreak() {
				if _, err := w.Write([]byte(" ")); err != nil {
					return ast.WalkStop, err
				}
			}
		case ast.KindString:
			// Typographer output is an HTML entity
			if _, err := io.WriteString(w, html.UnescapeString(string(n.(*ast.String).Value))); err != nil {
				return ast.WalkStop, err
			}
		case ast.KindParagraph, ast.KindHeading, ast.KindListItem:
			if _, err := w.Write([]byte(" ")); err != nil {
				return ast.WalkStop, err
			}
		case ast.KindCodeBlock, ast.KindFencedCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				line := lines.At(i)
				if _, err := w.Write(line.Value(source)); err != nil {
					return ast.WalkStop, err
				}
			}
			return ast.WalkSkipChildren, nil
		case KindBBCode:
			stripped := html.UnescapeString(htmlTagRegex.ReplaceAllString(n.(*BBCodeNode).HTML, ""))
			if _, err := io.WriteString(w, stripped); err != nil {
				return ast.WalkStop, err
			}
		case KindEmbed:
			return ast.WalkSkipChildren, nil
		}

		return ast.WalkContinue, nil
	})
}

func (r plaintextRenderer) AddOptions(...renderer.Option) {}
