package message

import (
	"slices"

	"github.com/tgifai/bridgekit/internal/text"
)

type ChannelType int

const (
	ChannelUnknown ChannelType = iota
	ChannelDirect
	ChannelGroup
	ChannelPost
)

func (t ChannelType) String() string {
	switch t {
	case ChannelDirect:
		return "direct"
	case ChannelGroup:
		return "group"
	case ChannelPost:
		return "post_channel"
	default:
		return "unknown"
	}
}

type Permissions struct {
	SendMessages        bool `json:"send_messages"`
	EditMessages        bool `json:"edit_messages"`
	DeleteMessages      bool `json:"delete_messages"`
	DeleteOtherMessages bool `json:"delete_other_messages"`
}

// FullPermissions is what a bot holds in a direct conversation.
var FullPermissions = Permissions{
	SendMessages:        true,
	EditMessages:        true,
	DeleteMessages:      true,
	DeleteOtherMessages: true,
}

type ChannelInfo struct {
	ID          int64       `json:"id"`
	Title       string      `json:"title,omitempty"`
	Type        ChannelType `json:"type"`
	Permissions Permissions `json:"permissions"`
}

type AccountInfo struct {
	ID        int64       `json:"id"`
	Username  string      `json:"username,omitempty"`
	FirstName string      `json:"first_name,omitempty"`
	LastName  string      `json:"last_name,omitempty"`
	Language  string      `json:"language,omitempty"`
	AvatarURL string      `json:"avatar_url,omitempty"`
	Avatar    *Attachment `json:"avatar,omitempty"`
}

// AttachmentType order is also the order attachments are sent in.
type AttachmentType int

const (
	AttachmentPhoto AttachmentType = iota
	AttachmentSticker
	AttachmentVoice
	AttachmentDocument
	AttachmentVideo
	AttachmentAnimation
)

var attachmentTypeNames = [...]string{"photo", "sticker", "voice", "document", "video", "animation"}

func (t AttachmentType) String() string {
	if t < 0 || int(t) >= len(attachmentTypeNames) {
		return "unknown"
	}
	return attachmentTypeNames[t]
}

// IsMedia reports whether the type can travel in a platform media group.
func (t AttachmentType) IsMedia() bool {
	return t == AttachmentPhoto || t == AttachmentVideo
}

// Attachment is an incoming file. ID is the platform's stable cross-call
// identifier, UploadID the per-message reference usable for re-sending.
type Attachment struct {
	ID         string         `json:"id"`
	Type       AttachmentType `json:"type"`
	URL        string         `json:"url,omitempty"`
	UploadID   string         `json:"upload_id,omitempty"`
	Controller string         `json:"controller,omitempty"`
}

type SourceKind int

const (
	SourceURL SourceKind = iota
	SourceBuffer
	SourceReuse
)

// Source is what an adapter uploads: a URL to fetch, raw bytes, or an id the
// platform already knows.
type Source struct {
	Kind     SourceKind `json:"kind"`
	URL      string     `json:"url,omitempty"`
	FileName string     `json:"file_name,omitempty"`
	Data     []byte     `json:"-"`
	ID       string     `json:"id,omitempty"`
}

func URLSource(url string) Source {
	return Source{Kind: SourceURL, URL: url}
}

func BufferSource(fileName string, data []byte) Source {
	return Source{Kind: SourceBuffer, FileName: fileName, Data: data}
}

func ReuseSource(id string) Source {
	return Source{Kind: SourceReuse, ID: id}
}

type ResolvedAttachment struct {
	Type           AttachmentType `json:"type"`
	Source         Source         `json:"source"`
	ControllerName string         `json:"controller_name"`
	Title          string         `json:"title,omitempty"`
	ID             string         `json:"id,omitempty"`
}

type SendedAttachment struct {
	ID       string             `json:"id"`
	UploadID string             `json:"upload_id,omitempty"`
	Origin   ResolvedAttachment `json:"origin"`
}

// Metadata is the composite identity of a sent message: one platform id per
// text part, attachment and forward, in send order.
type Metadata struct {
	MessageIDs []int64 `json:"message_ids"`
	HasText    bool    `json:"has_text"`
}

func NewMetadata(id int64, hasText bool) Metadata {
	return Metadata{MessageIDs: []int64{id}, HasText: hasText}
}

func (m Metadata) Clone() Metadata {
	m.MessageIDs = slices.Clone(m.MessageIDs)
	return m
}

// First returns the id of the first platform message, or 0 when empty.
func (m Metadata) First() int64 {
	if len(m.MessageIDs) == 0 {
		return 0
	}
	return m.MessageIDs[0]
}

type InMessage struct {
	Channel     ChannelInfo        `json:"channel"`
	Account     AccountInfo        `json:"account"`
	Text        string             `json:"text,omitempty"`
	Tokens      []text.Token       `json:"tokens,omitempty"`
	Attachments []Attachment       `json:"attachments"`
	Reply       *InMessage         `json:"reply,omitempty"`
	Forwarded   []ForwardedMessage `json:"forwarded"`
	Metadata    Metadata           `json:"metadata"`
}

type ForwardedMessage struct {
	InMessage
	ControllerName string `json:"controller_name"`
}

// ForwardRef points at an existing platform message to forward.
type ForwardRef struct {
	ControllerName string `json:"controller_name"`
	ChannelID      int64  `json:"channel_id"`
	MessageID      int64  `json:"message_id"`
}

// RefOf builds a ForwardRef for the first platform message of m.
func RefOf(controller string, m InMessage) ForwardRef {
	return ForwardRef{
		ControllerName: controller,
		ChannelID:      m.Channel.ID,
		MessageID:      m.Metadata.First(),
	}
}

type SwitchInline struct {
	Current bool   `json:"current"`
	Query   string `json:"query,omitempty"`
}

type Button struct {
	Text         string        `json:"text"`
	Payload      string        `json:"payload,omitempty"`
	URL          string        `json:"url,omitempty"`
	SwitchInline *SwitchInline `json:"switch_inline,omitempty"`
}

type Header struct {
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type OutMessage struct {
	Text        string       `json:"text,omitempty"`
	Tokens      []text.Token `json:"tokens,omitempty"`
	Buttons     [][]Button   `json:"buttons,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Forwarded   []ForwardRef `json:"forwarded,omitempty"`
	Reply       *Metadata    `json:"reply,omitempty"`
	Header      *Header      `json:"header,omitempty"`
	Metadata    *Metadata    `json:"metadata,omitempty"`
}

// ResolvedMessage is an OutMessage with text rendered to platform markup and
// attachments ready to upload.
type ResolvedMessage struct {
	Text        string               `json:"text,omitempty"`
	Buttons     [][]Button           `json:"buttons,omitempty"`
	Attachments []ResolvedAttachment `json:"attachments,omitempty"`
	Forwarded   []ForwardRef         `json:"forwarded,omitempty"`
	Reply       *Metadata            `json:"reply,omitempty"`
	Header      *Header              `json:"header,omitempty"`
	Metadata    *Metadata            `json:"metadata,omitempty"`
}

// Parts is the number of platform messages the content maps to.
func (m ResolvedMessage) Parts() int {
	n := len(m.Attachments) + len(m.Forwarded)
	if m.Text != "" {
		n++
	}
	return n
}

type SendedMessage struct {
	Attachments []SendedAttachment `json:"attachments"`
	Metadata    Metadata           `json:"metadata"`
}

type InlineQuery struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Offset string `json:"offset,omitempty"`
}

type ChosenInlineResult struct {
	ID    string `json:"id"`
	Query string `json:"query"`
}

type Article struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// InlineQueryResult carries exactly one of Article or Attachment. Message,
// when set, replaces the content posted on selection.
type InlineQueryResult struct {
	ID         string              `json:"id"`
	Article    *Article            `json:"article,omitempty"`
	Attachment *ResolvedAttachment `json:"attachment,omitempty"`
	Message    *ResolvedMessage    `json:"message,omitempty"`
}

type InlineQueryResponse struct {
	Results           []InlineQueryResult `json:"results"`
	CacheTime         int                 `json:"cache_time,omitempty"`
	IsPersonal        bool                `json:"is_personal,omitempty"`
	NextOffset        string              `json:"next_offset,omitempty"`
	SwitchPMText      string              `json:"switch_pm_text,omitempty"`
	SwitchPMParameter string              `json:"switch_pm_parameter,omitempty"`
}
