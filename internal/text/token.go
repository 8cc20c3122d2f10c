package text

import (
	"strings"
)

type Kind int

const (
	KindText Kind = iota
	KindLink
	KindMention
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindLink:
		return "link"
	case KindMention:
		return "mention"
	default:
		return "unknown"
	}
}

type Prop int

const (
	PropBold Prop = iota
	PropItalic
	PropUnderline
	PropStrikethrough
	PropCode
	PropInlineCode
)

func (p Prop) String() string {
	switch p {
	case PropBold:
		return "bold"
	case PropItalic:
		return "italic"
	case PropUnderline:
		return "underline"
	case PropStrikethrough:
		return "strikethrough"
	case PropCode:
		return "code"
	case PropInlineCode:
		return "inline_code"
	default:
		return "unknown"
	}
}

// Token is one run of rich text. URL is set for links, ID and Username for
// mentions.
type Token struct {
	Kind     Kind   `json:"kind"`
	Text     string `json:"text"`
	Props    []Prop `json:"props,omitempty"`
	URL      string `json:"url,omitempty"`
	ID       string `json:"id,omitempty"`
	Username string `json:"username,omitempty"`
}

func NewText(s string, props ...Prop) Token {
	return Token{Kind: KindText, Text: s, Props: props}
}

func NewLink(s, url string, props ...Prop) Token {
	return Token{Kind: KindLink, Text: s, URL: url, Props: props}
}

func NewMention(s, id, username string, props ...Prop) Token {
	return Token{Kind: KindMention, Text: s, ID: id, Username: username, Props: props}
}

func (t Token) Has(p Prop) bool {
	for _, one := range t.Props {
		if one == p {
			return true
		}
	}
	return false
}

// WithProps returns a copy of t carrying props in addition to its own.
func (t Token) WithProps(props ...Prop) Token {
	merged := make([]Prop, 0, len(t.Props)+len(props))
	merged = append(merged, t.Props...)
	for _, p := range props {
		if !t.Has(p) {
			merged = append(merged, p)
		}
	}
	t.Props = merged
	return t
}

// PlainText concatenates the raw text of tokens.
func PlainText(tokens []Token) string {
	var sb strings.Builder
	for _, t := range tokens {
		sb.WriteString(t.Text)
	}
	return sb.String()
}

// Clone deep-copies a token slice so the result shares no backing arrays.
func Clone(tokens []Token) []Token {
	if tokens == nil {
		return nil
	}
	out := make([]Token, len(tokens))
	for i, t := range tokens {
		if t.Props != nil {
			t.Props = append([]Prop(nil), t.Props...)
		}
		out[i] = t
	}
	return out
}
