package telegram

import (
	"fmt"
	"strings"

	"github.com/go-telegram/bot/models"

	"github.com/tgifai/bridgekit/internal/text"
)

// NewFormatter renders tokens as Telegram HTML.
func NewFormatter() *text.Formatter {
	return text.NewFormatter(
		text.WithProp(text.PropBold, "<b>", "</b>"),
		text.WithProp(text.PropItalic, "<i>", "</i>"),
		text.WithProp(text.PropUnderline, "<u>", "</u>"),
		text.WithProp(text.PropStrikethrough, "<s>", "</s>"),
		text.WithProp(text.PropCode, "<pre>", "</pre>"),
		text.WithProp(text.PropInlineCode, "<code>", "</code>"),
		text.WithVisitor(text.KindText, func(t text.Token) string {
			return escapeHTML(t.Text)
		}),
		text.WithVisitor(text.KindLink, func(t text.Token) string {
			return fmt.Sprintf(`<a href="%s">%s</a>`, escapeHTML(t.URL), escapeHTML(t.Text))
		}),
		text.WithVisitor(text.KindMention, func(t text.Token) string {
			label := t.Text
			if label == "" {
				label = "@" + t.Username
			}
			// @username mentions resolve on their own, a link needs a user id
			if t.ID == "" {
				return escapeHTML(label)
			}
			return fmt.Sprintf(`<a href="tg://user?id=%s">%s</a>`, t.ID, escapeHTML(label))
		}),
	)
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

// escapeHTML escapes the characters the Bot API HTML parser requires.
func escapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

var entityKinds = map[models.MessageEntityType]text.SpanKind{
	models.MessageEntityTypeBold:          text.SpanBold,
	models.MessageEntityTypeItalic:        text.SpanItalic,
	models.MessageEntityTypeUnderline:     text.SpanUnderline,
	models.MessageEntityTypeStrikethrough: text.SpanStrikethrough,
	models.MessageEntityTypeCode:          text.SpanCode,
	models.MessageEntityTypePre:           text.SpanPre,
	models.MessageEntityTypeTextLink:      text.SpanTextLink,
	models.MessageEntityTypeURL:           text.SpanURL,
	models.MessageEntityTypeMention:       text.SpanMention,
	models.MessageEntityTypeTextMention:   text.SpanTextMention,
}

// entitySpans converts message entities into tokenizer spans. Entity kinds
// without a token meaning (hashtags, spoilers, ...) are dropped.
func entitySpans(entities []models.MessageEntity) []text.Span {
	spans := make([]text.Span, 0, len(entities))
	for _, e := range entities {
		kind, ok := entityKinds[e.Type]
		if !ok {
			continue
		}
		span := text.Span{
			Offset: e.Offset,
			Length: e.Length,
			Kind:   kind,
			URL:    e.URL,
		}
		if e.User != nil {
			span.UserID = fmt.Sprint(e.User.ID)
			span.Username = e.User.Username
		}
		spans = append(spans, span)
	}
	return spans
}
