package message

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/bytedance/gopkg/util/xxhash3"

	"github.com/tgifai/bridgekit/internal/text"
)

var ErrNegativeRow = errors.New("button row index must not be negative")

// Builder assembles an OutMessage fluently. The first error recorded by any
// step is returned from Build.
type Builder struct {
	msg OutMessage
	err error
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) AddReply(meta Metadata) *Builder {
	m := meta.Clone()
	b.msg.Reply = &m
	return b
}

func (b *Builder) AddHeader(h Header) *Builder {
	b.msg.Header = &h
	return b
}

// UseMetadata binds the message to an already sent one, for edits.
func (b *Builder) UseMetadata(meta Metadata) *Builder {
	m := meta.Clone()
	b.msg.Metadata = &m
	return b
}

func (b *Builder) AddToken(tok text.Token) *Builder {
	b.msg.Tokens = append(b.msg.Tokens, tok)
	return b
}

func (b *Builder) AddTokens(tokens ...text.Token) *Builder {
	b.msg.Tokens = append(b.msg.Tokens, tokens...)
	return b
}

func (b *Builder) AddText(s string, props ...text.Prop) *Builder {
	return b.AddToken(text.NewText(s, props...))
}

func (b *Builder) AddCode(code string) *Builder {
	return b.AddText(code, text.PropCode)
}

func (b *Builder) AddCodeLine(line string) *Builder {
	return b.AddCode(line + "\n")
}

func (b *Builder) AddCodeLines(lines ...string) *Builder {
	return b.AddCode(strings.Join(lines, "\n") + "\n")
}

func (b *Builder) AddLine(line string) *Builder {
	return b.AddText(line + "\n")
}

func (b *Builder) AddLines(lines ...string) *Builder {
	return b.AddText(strings.Join(lines, "\n") + "\n")
}

func (b *Builder) AddMarkdown(md string) *Builder {
	return b.AddTokens(text.NewMarkdownTokenizer().Tokenize(md, nil)...)
}

func (b *Builder) AddLink(s, url string, props ...text.Prop) *Builder {
	return b.AddToken(text.NewLink(s, url, props...))
}

func (b *Builder) AddMention(s, id, username string) *Builder {
	return b.AddToken(text.NewMention(s, id, username))
}

// AddAttachmentByURL adds an attachment whose id is derived from url, so the
// same url always maps to the same attachment.
func (b *Builder) AddAttachmentByURL(typ AttachmentType, url string) *Builder {
	return b.AddAttachment(Attachment{
		ID:   strconv.FormatUint(xxhash3.HashString(url), 16),
		Type: typ,
		URL:  url,
	})
}

func (b *Builder) AddAttachment(a Attachment) *Builder {
	b.msg.Attachments = append(b.msg.Attachments, a)
	return b
}

func (b *Builder) AddAttachments(as ...Attachment) *Builder {
	b.msg.Attachments = append(b.msg.Attachments, as...)
	return b
}

func (b *Builder) AddForward(ref ForwardRef) *Builder {
	b.msg.Forwarded = append(b.msg.Forwarded, ref)
	return b
}

func (b *Builder) AddButton(btn Button) *Builder {
	return b.AddButtonRow(0, btn)
}

// AddButtonRow appends btn to row, creating empty rows up to it.
func (b *Builder) AddButtonRow(row int, btn Button) *Builder {
	if row < 0 {
		if b.err == nil {
			b.err = fmt.Errorf("add button %q to row %d: %w", btn.Text, row, ErrNegativeRow)
		}
		return b
	}
	for len(b.msg.Buttons) <= row {
		b.msg.Buttons = append(b.msg.Buttons, nil)
	}
	b.msg.Buttons[row] = append(b.msg.Buttons[row], btn)
	return b
}

// Build returns a detached copy; later builder calls do not affect it.
func (b *Builder) Build() (OutMessage, error) {
	if b.err != nil {
		return OutMessage{}, b.err
	}
	return b.msg.Clone(), nil
}

func (m OutMessage) Clone() OutMessage {
	m.Tokens = text.Clone(m.Tokens)
	m.Attachments = slices.Clone(m.Attachments)
	m.Forwarded = slices.Clone(m.Forwarded)
	if m.Buttons != nil {
		rows := make([][]Button, len(m.Buttons))
		for i, row := range m.Buttons {
			rows[i] = slices.Clone(row)
		}
		m.Buttons = rows
	}
	if m.Reply != nil {
		r := m.Reply.Clone()
		m.Reply = &r
	}
	if m.Metadata != nil {
		md := m.Metadata.Clone()
		m.Metadata = &md
	}
	if m.Header != nil {
		h := *m.Header
		m.Header = &h
	}
	return m
}
