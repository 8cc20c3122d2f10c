package text

import (
	"slices"
	"strconv"
	"strings"

	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"
)

// MarkdownTokenizer parses CommonMark-ish markdown into tokens. Headings
// render bold, code blocks carry PropCode and links become link tokens.
type MarkdownTokenizer struct{}

func NewMarkdownTokenizer() *MarkdownTokenizer {
	return &MarkdownTokenizer{}
}

func (t *MarkdownTokenizer) Tokenize(md string, _ []Span) []Token {
	if md == "" {
		return nil
	}

	exts := parser.CommonExtensions | parser.NoEmptyLineBeforeBlock |
		parser.Strikethrough | parser.FencedCode | parser.Autolink
	doc := parser.NewWithExtensions(exts).Parse([]byte(md))

	state := &markdownState{}
	state.node(doc)
	return state.tokens
}

type markdownState struct {
	tokens []Token
	props  []Prop
	link   string
}

func (s *markdownState) write(v string) {
	if v == "" {
		return
	}
	kind := KindText
	if s.link != "" {
		kind = KindLink
	}

	if n := len(s.tokens); n > 0 {
		last := &s.tokens[n-1]
		if last.Kind == kind && last.URL == s.link && slices.Equal(last.Props, s.props) {
			last.Text += v
			return
		}
	}
	s.tokens = append(s.tokens, Token{
		Kind:  kind,
		Text:  v,
		URL:   s.link,
		Props: slices.Clone(s.props),
	})
}

func (s *markdownState) withProp(p Prop, fn func()) {
	if slices.Contains(s.props, p) {
		fn()
		return
	}
	s.props = append(s.props, p)
	fn()
	s.props = s.props[:len(s.props)-1]
}

func (s *markdownState) children(node ast.Node) {
	for _, child := range node.GetChildren() {
		s.node(child)
	}
}

func (s *markdownState) blockGap(node ast.Node) {
	if ast.GetNextNode(node) != nil {
		s.write("\n\n")
	}
}

func (s *markdownState) node(node ast.Node) {
	switch n := node.(type) {
	case *ast.Document:
		s.children(node)
	case *ast.Paragraph:
		s.children(node)
		if ast.GetNextNode(node) != nil {
			if _, ok := node.GetParent().(*ast.ListItem); ok {
				s.write("\n")
			} else {
				s.write("\n\n")
			}
		}
	case *ast.Heading:
		s.withProp(PropBold, func() { s.children(node) })
		s.blockGap(node)
	case *ast.BlockQuote:
		s.children(node)
		s.blockGap(node)
	case *ast.List:
		s.list(n)
		s.blockGap(node)
	case *ast.ListItem:
		s.listItem(n)
	case *ast.Strong:
		s.withProp(PropBold, func() { s.children(node) })
	case *ast.Emph:
		s.withProp(PropItalic, func() { s.children(node) })
	case *ast.Del:
		s.withProp(PropStrikethrough, func() { s.children(node) })
	case *ast.Code:
		s.withProp(PropInlineCode, func() { s.write(string(n.Literal)) })
	case *ast.CodeBlock:
		code := strings.TrimRight(string(n.Literal), "\n")
		s.withProp(PropCode, func() { s.write(code) })
		s.blockGap(node)
	case *ast.Link:
		prev := s.link
		s.link = string(n.Destination)
		before := len(s.tokens)
		s.children(node)
		if len(s.tokens) == before {
			s.write(string(n.Destination))
		}
		s.link = prev
	case *ast.Text:
		s.write(string(n.Literal))
	case *ast.Softbreak, *ast.Hardbreak:
		s.write("\n")
	case *ast.HorizontalRule:
		s.write(strings.Repeat("-", 10))
		s.blockGap(node)
	case *ast.HTMLBlock:
		s.write(string(n.Literal))
		s.blockGap(node)
	case *ast.HTMLSpan:
		s.write(string(n.Literal))
	default:
		if len(node.GetChildren()) > 0 {
			s.children(node)
			return
		}
		if leaf := node.AsLeaf(); leaf != nil && len(leaf.Literal) > 0 {
			s.write(string(leaf.Literal))
		}
	}
}

func (s *markdownState) list(list *ast.List) {
	ordered := list.ListFlags&ast.ListTypeOrdered != 0
	index := list.Start
	if index <= 0 {
		index = 1
	}

	items := list.GetChildren()
	for i, one := range items {
		item, ok := one.(*ast.ListItem)
		if !ok {
			continue
		}
		if ordered {
			s.write(strconv.Itoa(index) + ". ")
			index++
		} else {
			s.write("- ")
		}
		s.listItem(item)
		if i < len(items)-1 {
			s.write("\n")
		}
	}
}

func (s *markdownState) listItem(item *ast.ListItem) {
	children := item.GetChildren()
	for i, child := range children {
		if paragraph, ok := child.(*ast.Paragraph); ok {
			s.children(paragraph)
		} else {
			s.node(child)
		}
		if i < len(children)-1 {
			s.write("\n")
		}
	}
}
