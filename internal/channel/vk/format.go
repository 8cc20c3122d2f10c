package vk

import (
	"fmt"
	"regexp"

	"github.com/tgifai/bridgekit/internal/text"
)

var (
	userMention = regexp.MustCompile(`\[id(\d+)\|([^\]]*)\]`)
	clubMention = regexp.MustCompile(`\[club(\d+)\|([^\]]*)\]`)
)

// NewTokenizer recognizes VK's inline user and community references.
func NewTokenizer() *text.RegexTokenizer {
	return text.NewRegexTokenizer(
		text.RegexRule{
			Pattern: userMention,
			Build: func(groups []string) text.Token {
				return text.NewMention(groups[2], groups[1], "")
			},
		},
		text.RegexRule{
			Pattern: clubMention,
			Build: func(groups []string) text.Token {
				return text.NewLink(groups[2], "https://vk.com/public"+groups[1])
			},
		},
	)
}

// NewFormatter renders tokens as VK plain text. VK has no inline styling.
func NewFormatter() *text.Formatter {
	return text.NewFormatter(
		text.WithVisitor(text.KindMention, func(t text.Token) string {
			return fmt.Sprintf("[id%s|%s]", t.ID, t.Text)
		}),
		text.WithVisitor(text.KindLink, func(t text.Token) string {
			if t.Text == "" || t.Text == t.URL {
				return t.URL
			}
			return fmt.Sprintf("%s (%s)", t.Text, t.URL)
		}),
	)
}
