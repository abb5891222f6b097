package parsing

import (
	"bytes"
	"regexp"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// Block directives are fenced by three exclamation marks, with optional named
// string arguments in braces. Quotes around argument values are mandatory.
//
//     !!!alert{type="warning"}
//     Back up your save files _before_ upgrading.
//     !!!
//
//     !!!figure{caption="The new map editor"}
//     ![editor](https://example.com/editor.png)
//     !!!

var directives = map[string]directive{
	"alert": {
		Allowed: func(opts Options) bool { return opts.AllowAlertsBox },
		Render: func(w util.BufWriter, n *directiveNode, entering bool) {
			if entering {
				alertType := n.Args["type"]
				if !alertTypes[alertType] {
					alertType = "info"
				}
				_, _ = w.WriteString(`<div class="alert alert-` + alertType + `">` + "\n")
			} else {
				_, _ = w.WriteString("</div>\n")
			}
		},
	},
	"figure": {
		Allowed: func(opts Options) bool { return opts.AllowFigures },
		Render: func(w util.BufWriter, n *directiveNode, entering bool) {
			if entering {
				_, _ = w.WriteString("<figure>\n")
			} else {
				if caption := n.Args["caption"]; caption != "" {
					_, _ = w.WriteString("<figcaption>")
					_, _ = w.Write(util.EscapeHTML([]byte(caption)))
					_, _ = w.WriteString("</figcaption>\n")
				}
				_, _ = w.WriteString("</figure>\n")
			}
		},
	},
}

var alertTypes = map[string]bool{
	"default": true,
	"success": true,
	"info":    true,
	"warning": true,
	"danger":  true,
}

type directive struct {
	Allowed func(opts Options) bool
	Render  func(w util.BufWriter, n *directiveNode, entering bool)
}

func allowedDirectives(opts Options) map[string]bool {
	res := make(map[string]bool)
	for name, d := range directives {
		if d.Allowed(opts) {
			res[name] = true
		}
	}
	return res
}

// ----------------------
// Parser
// ----------------------

var reDirectiveOpen = regexp.MustCompile(`^!!!(?P<name>[a-zA-Z0-9-_]+)(\{(?P<args>.*?)\})?$`)
var reDirectiveArgs = regexp.MustCompile(`(?P<arg>[a-zA-Z0-9-_]+)="(?P<val>.*?)"`)

type directiveBlockParser struct {
	Allowed map[string]bool
}

var _ parser.BlockParser = directiveBlockParser{}

func (s directiveBlockParser) Trigger() []byte {
	return []byte("!")
}

func (s directiveBlockParser) Open(parent ast.Node, reader text.Reader, pc parser.Context) (ast.Node, parser.State) {
	restOfLine, _ := reader.PeekLine()

	match := extractMap(reDirectiveOpen, bytes.TrimSpace(restOfLine))
	if match == nil {
		return nil, parser.NoChildren
	}
	name := string(match["name"])
	if !s.Allowed[name] {
		return nil, parser.NoChildren
	}

	args := make(map[string]string)
	if argsMatch := extractAllMap(reDirectiveArgs, match["args"]); argsMatch != nil {
		for i := range argsMatch["arg"] {
			args[string(argsMatch["arg"][i])] = string(argsMatch["val"][i])
		}
	}

	reader.Advance(len(util.TrimRightSpace(restOfLine)))
	return &directiveNode{
		Name: name,
		Args: args,
	}, parser.Continue | parser.HasChildren
}

func (s directiveBlockParser) Continue(node ast.Node, reader text.Reader, pc parser.Context) parser.State {
	line, _ := reader.PeekLine()
	if string(bytes.TrimSpace(line)) == "!!!" {
		reader.Advance(len(util.TrimRightSpace(line)))
		return parser.Close
	}
	return parser.Continue | parser.HasChildren
}

func (s directiveBlockParser) Close(node ast.Node, reader text.Reader, pc parser.Context) {}

func (s directiveBlockParser) CanInterruptParagraph() bool {
	return false
}

func (s directiveBlockParser) CanAcceptIndentedLine() bool {
	return false
}

// ----------------------
// AST node
// ----------------------

type directiveNode struct {
	ast.BaseBlock
	Name string
	Args map[string]string
}

var _ ast.Node = &directiveNode{}

func (n *directiveNode) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, n.Args, nil)
}

var KindDirective = ast.NewNodeKind("Directive")

func (n *directiveNode) Kind() ast.NodeKind {
	return KindDirective
}

// ----------------------
// Renderer
// ----------------------

type directiveHTMLRenderer struct {
	html.Config
}

func newDirectiveHTMLRenderer(opts ...html.Option) renderer.NodeRenderer {
	r := &directiveHTMLRenderer{
		Config: html.NewConfig(),
	}
	for _, opt := range opts {
		opt.SetHTMLOption(&r.Config)
	}
	return r
}

func (r *directiveHTMLRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindDirective, r.render)
}

func (r *directiveHTMLRenderer) render(w util.BufWriter, source []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	node := n.(*directiveNode)
	directives[node.Name].Render(w, node, entering)
	return ast.WalkContinue, nil
}

// ----------------------
// Extension
// ----------------------

type directiveExtension struct {
	Allowed map[string]bool
}

func (e directiveExtension) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(parser.WithBlockParsers(
		util.Prioritized(directiveBlockParser{Allowed: e.Allowed}, 500),
	))
	m.Renderer().AddOptions(renderer.WithNodeRenderers(
		util.Prioritized(newDirectiveHTMLRenderer(), 500),
	))
}
