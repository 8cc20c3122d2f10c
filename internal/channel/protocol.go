package channel

import (
	"fmt"
	"slices"

	"github.com/tgifai/bridgekit/internal/message"
)

// Extra holds send options that may be attached to the first platform call
// of a composite send only.
type Extra[T any] struct {
	v *T
}

func NewExtra[T any](v T) *Extra[T] {
	return &Extra[T]{v: &v}
}

// Take returns the options on first call and nil afterwards.
func (e *Extra[T]) Take() *T {
	v := e.v
	e.v = nil
	return v
}

// SendAccumulator collects the result of a composite send. The first
// recorded call seeds the result; later calls append their id and
// attachment.
type SendAccumulator struct {
	result *message.SendedMessage
}

func (a *SendAccumulator) Seeded() bool {
	return a.result != nil
}

// Record adds one platform message. att may be nil for text and forwards.
func (a *SendAccumulator) Record(id int64, isText bool, att *message.SendedAttachment) {
	if a.result == nil {
		a.result = &message.SendedMessage{
			Attachments: []message.SendedAttachment{},
			Metadata:    message.NewMetadata(id, isText),
		}
		return
	}
	a.result.Metadata.MessageIDs = append(a.result.Metadata.MessageIDs, id)
	if att != nil {
		a.result.Attachments = append(a.result.Attachments, *att)
	}
}

func (a *SendAccumulator) Result() (message.SendedMessage, error) {
	if a.result == nil {
		return message.SendedMessage{}, ErrEmptyContent
	}
	return *a.result, nil
}

// CheckEditShape validates an edit before any platform call is made and
// returns the metadata being edited.
func CheckEditShape(msg message.ResolvedMessage) (message.Metadata, error) {
	if msg.Metadata == nil {
		return message.Metadata{}, ErrMissingMetadata
	}
	meta := *msg.Metadata
	if parts := msg.Parts(); parts != len(meta.MessageIDs) {
		return meta, fmt.Errorf("%w: message has %d parts, metadata has %d ids",
			ErrShapeMismatch, parts, len(meta.MessageIDs))
	}
	if msg.Text != "" && !meta.HasText {
		return meta, ErrTextEditUnsupported
	}
	return meta, nil
}

// Chunk splits items into consecutive batches of at most size.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}

// SortAttachments returns a copy stably ordered by attachment type.
func SortAttachments(atts []message.ResolvedAttachment) []message.ResolvedAttachment {
	out := slices.Clone(atts)
	slices.SortStableFunc(out, func(a, b message.ResolvedAttachment) int {
		return int(a.Type) - int(b.Type)
	})
	return out
}

// SplitMedia separates photos and videos from everything else, keeping
// relative order on both sides.
func SplitMedia(atts []message.ResolvedAttachment) (media, other []message.ResolvedAttachment) {
	for _, a := range atts {
		if a.Type.IsMedia() {
			media = append(media, a)
		} else {
			other = append(other, a)
		}
	}
	return media, other
}

// MergeMediaGroups groups items sharing a non-empty key, in order of each
// group's first arrival. Items without a key stay on their own.
func MergeMediaGroups[T any](items []T, key func(T) string) [][]T {
	var (
		out   [][]T
		index = make(map[string]int)
	)
	for _, item := range items {
		k := key(item)
		if k == "" {
			out = append(out, []T{item})
			continue
		}
		if i, ok := index[k]; ok {
			out[i] = append(out[i], item)
			continue
		}
		index[k] = len(out)
		out = append(out, []T{item})
	}
	return out
}

// AppendGroupAttachments adds attachments of later media-group items to the
// merged message: to its first forward when it is a forward, else to the
// message itself.
func AppendGroupAttachments(msg *message.InMessage, atts ...message.Attachment) {
	if len(msg.Forwarded) > 0 {
		msg.Forwarded[0].Attachments = append(msg.Forwarded[0].Attachments, atts...)
		return
	}
	msg.Attachments = append(msg.Attachments, atts...)
}
