package text

import (
	"sort"
	"strings"
	"unicode/utf16"
)

// Tokenizer turns platform text plus its out-of-band spans into tokens.
// Tokenizers that read inline markup ignore spans.
type Tokenizer interface {
	Tokenize(s string, spans []Span) []Token
}

type SpanKind string

const (
	SpanBold          SpanKind = "bold"
	SpanItalic        SpanKind = "italic"
	SpanUnderline     SpanKind = "underline"
	SpanStrikethrough SpanKind = "strikethrough"
	SpanCode          SpanKind = "code"
	SpanPre           SpanKind = "pre"
	SpanTextLink      SpanKind = "text_link"
	SpanURL           SpanKind = "url"
	SpanMention       SpanKind = "mention"
	SpanTextMention   SpanKind = "text_mention"
)

// Span marks a range of the text. Offset and Length count UTF-16 code units.
type Span struct {
	Offset   int
	Length   int
	Kind     SpanKind
	URL      string
	UserID   string
	Username string
}

type SpanTokenizer struct{}

func NewSpanTokenizer() *SpanTokenizer {
	return &SpanTokenizer{}
}

// Tokenize splits s at span boundaries. Spans sharing the exact same range
// collapse into one token; a span starting inside an earlier one is dropped.
func (t *SpanTokenizer) Tokenize(s string, spans []Span) []Token {
	if s == "" {
		return nil
	}

	units := utf16.Encode([]rune(s))
	sorted := make([]Span, 0, len(spans))
	for _, sp := range spans {
		if sp.Length <= 0 || sp.Offset < 0 || sp.Offset+sp.Length > len(units) {
			continue
		}
		sorted = append(sorted, sp)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Offset != sorted[j].Offset {
			return sorted[i].Offset < sorted[j].Offset
		}
		return sorted[i].Length > sorted[j].Length
	})

	var (
		tokens []Token
		cursor int
	)
	for i := 0; i < len(sorted); {
		head := sorted[i]
		j := i + 1
		for j < len(sorted) && sorted[j].Offset == head.Offset && sorted[j].Length == head.Length {
			j++
		}
		group := sorted[i:j]
		i = j

		if head.Offset < cursor {
			continue
		}
		if head.Offset > cursor {
			tokens = append(tokens, NewText(decodeUnits(units[cursor:head.Offset])))
		}
		end := head.Offset + head.Length
		tokens = append(tokens, spanToken(decodeUnits(units[head.Offset:end]), group))
		cursor = end
	}
	if cursor < len(units) {
		tokens = append(tokens, NewText(decodeUnits(units[cursor:])))
	}
	return tokens
}

func spanToken(s string, group []Span) Token {
	tok := NewText(s)
	for _, sp := range group {
		switch sp.Kind {
		case SpanBold:
			tok = tok.WithProps(PropBold)
		case SpanItalic:
			tok = tok.WithProps(PropItalic)
		case SpanUnderline:
			tok = tok.WithProps(PropUnderline)
		case SpanStrikethrough:
			tok = tok.WithProps(PropStrikethrough)
		case SpanCode:
			tok = tok.WithProps(PropInlineCode)
		case SpanPre:
			tok = tok.WithProps(PropCode)
		case SpanTextLink:
			tok.Kind, tok.URL = KindLink, sp.URL
		case SpanURL:
			tok.Kind, tok.URL = KindLink, s
		case SpanMention:
			tok.Kind, tok.Username = KindMention, strings.TrimPrefix(s, "@")
		case SpanTextMention:
			tok.Kind, tok.ID, tok.Username = KindMention, sp.UserID, sp.Username
		}
	}
	return tok
}

// UTF16Len reports the length of s in UTF-16 code units.
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

func decodeUnits(units []uint16) string {
	return string(utf16.Decode(units))
}
