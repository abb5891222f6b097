package parsing

import (
	"github.com/yuin/goldmark/ast"
	east "github.com/yuin/goldmark/extension/ast"
)

// Links and images share the inline link syntax, so when only one of the two
// families is allowed the parser still recognizes both and the other one is
// unwrapped here, leaving its text behind.
func restrictLinks(doc ast.Node, opts Options) {
	var unwrap []ast.Node
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindLink:
			if !opts.AllowLinks {
				unwrap = append(unwrap, n)
			} else if opts.ForceNofollow {
				n.SetAttributeString("rel", []byte("nofollow"))
			}
		case ast.KindAutoLink:
			if opts.ForceNofollow {
				n.SetAttributeString("rel", []byte("nofollow"))
			}
		case ast.KindImage:
			if !opts.AllowMedias {
				unwrap = append(unwrap, n)
			}
		}
		return ast.WalkContinue, nil
	})

	for _, n := range unwrap {
		parent := n.Parent()
		for child := n.FirstChild(); child != nil; {
			next := child.NextSibling()
			parent.InsertBefore(parent, n, child)
			child = next
		}
		parent.RemoveChild(parent, n)
	}
}

// detachFootnotes removes the footnote list the footnote extension appends
// to the end of the document, if there is one.
func detachFootnotes(doc ast.Node) ast.Node {
	last := doc.LastChild()
	if last == nil || last.Kind() != east.KindFootnoteList {
		return nil
	}
	doc.RemoveChild(doc, last)
	return last
}

func firstParagraph(doc ast.Node) ast.Node {
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if n.Kind() == ast.KindParagraph {
			return n
		}
	}
	return nil
}
