package channel

import (
	"context"

	"github.com/tgifai/bridgekit/internal/message"
	"github.com/tgifai/bridgekit/internal/text"
)

// Controller adapts one chat platform to the canonical message model.
// Incoming updates are published as events; outgoing canonical messages are
// turned into one or more platform calls whose ids form the returned
// metadata.
type Controller interface {
	// Name is the unique configured controller name.
	Name() string

	Type() Type

	Features() Features

	State() State

	// Start opens the update stream and blocks until ctx is canceled or Stop
	// is called.
	Start(ctx context.Context) error

	// Stop halts acceptance of new updates. In-flight sends are not aborted.
	Stop(ctx context.Context) error

	Tokenizer() text.Tokenizer

	Formatter() *text.Formatter

	SendMessage(ctx context.Context, channelID int64, msg message.OutMessage) (message.SendedMessage, error)

	SendResolvedMessage(ctx context.Context, channelID int64, msg message.ResolvedMessage) (message.SendedMessage, error)

	// EditMessage changes the text part of an already sent message. The
	// result is nil when nothing was edited.
	EditMessage(ctx context.Context, channelID int64, msg message.OutMessage) (*message.SendedMessage, error)

	EditResolvedMessage(ctx context.Context, channelID int64, msg message.ResolvedMessage) (*message.SendedMessage, error)

	// DeleteMessage deletes every platform message in meta. Ids deleted
	// before a failure stay deleted.
	DeleteMessage(ctx context.Context, channelID int64, meta message.Metadata) error

	GetChannelInfo(ctx context.Context, id int64) (message.ChannelInfo, error)

	GetAccountInfo(ctx context.Context, id int64) (message.AccountInfo, error)

	// AnswerInlineQuery returns ErrUnsupportedOperation where the platform
	// has no inline mode.
	AnswerInlineQuery(ctx context.Context, queryID string, resp message.InlineQueryResponse) error
}

// EntityResolver maps canonical accounts and channels to a persistent store.
type EntityResolver interface {
	GetOrCreateAccount(ctx context.Context, controller string, info message.AccountInfo) error
	GetOrCreateChannel(ctx context.Context, controller string, info message.ChannelInfo) error
}
