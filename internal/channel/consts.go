package channel

import (
	"errors"
)

var (
	ErrUnsupportedOperation  = errors.New("channel operation is not supported")
	ErrEmptyContent          = errors.New("empty content")
	ErrMissingMetadata       = errors.New("missing message metadata")
	ErrShapeMismatch         = errors.New("metadata message ids length mismatch")
	ErrTextEditUnsupported   = errors.New("unable to add text to a message sent without text")
	ErrMissingMessageContext = errors.New("unable to process button click without access to message")
	ErrUnknownChannelType    = errors.New("unexpected channel type")
	ErrInvalidState          = errors.New("invalid controller state transition")
	ErrUnresolvedAttachment  = errors.New("attachment has neither url nor reusable id")
	ErrNotFound              = errors.New("controller not found")

	// ErrUnsupportedInlineResult marks an inline result the platform cannot
	// represent. Such results are left out of the answer.
	ErrUnsupportedInlineResult = errors.New("unsupported inline query result")
)

type Type string

const (
	Telegram Type = "telegram"

	VK Type = "vk"
)

var SupportedChannels = []Type{
	Telegram,
	VK,
}

// DefaultBatchSize is the platform ceiling for one grouped media send.
const DefaultBatchSize = 10

type Features struct {
	// ImplicitUpload means URL sources can be handed to the platform as is.
	ImplicitUpload bool
	InlineMode     bool
	InlineButtons  bool
}
