package text

import (
	"strings"
)

type Visitor func(t Token) string

type propWrap struct {
	prop   Prop
	prefix string
	suffix string
}

// Formatter renders tokens into platform markup. It is immutable once built.
type Formatter struct {
	props    []propWrap
	visitors map[Kind]Visitor
}

type FormatterOption func(f *Formatter)

// WithProp wraps tokens carrying prop. Props registered earlier wrap closer
// to the text.
func WithProp(prop Prop, prefix, suffix string) FormatterOption {
	return func(f *Formatter) {
		for i := range f.props {
			if f.props[i].prop == prop {
				f.props[i].prefix, f.props[i].suffix = prefix, suffix
				return
			}
		}
		f.props = append(f.props, propWrap{prop: prop, prefix: prefix, suffix: suffix})
	}
}

func WithVisitor(kind Kind, v Visitor) FormatterOption {
	return func(f *Formatter) {
		f.visitors[kind] = v
	}
}

func NewFormatter(opts ...FormatterOption) *Formatter {
	f := &Formatter{visitors: make(map[Kind]Visitor)}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format folds tokens left to right. Text tokens without a visitor render
// raw; any other kind without one fails the whole call.
func (f *Formatter) Format(tokens []Token) (string, error) {
	var sb strings.Builder
	for _, tok := range tokens {
		var rendered string
		if v, ok := f.visitors[tok.Kind]; ok {
			rendered = v(tok)
		} else if tok.Kind == KindText {
			rendered = tok.Text
		} else {
			return "", &VisitorNotFoundError{Kind: tok.Kind}
		}

		for _, w := range f.props {
			if tok.Has(w.prop) {
				rendered = w.prefix + rendered + w.suffix
			}
		}
		sb.WriteString(rendered)
	}
	return sb.String(), nil
}
