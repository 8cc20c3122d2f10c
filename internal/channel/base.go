package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/tgifai/bridgekit/internal/event"
	"github.com/tgifai/bridgekit/internal/message"
	"github.com/tgifai/bridgekit/internal/pkg/cache"
	"github.com/tgifai/bridgekit/internal/pkg/logs"
	"github.com/tgifai/bridgekit/internal/pkg/prometheus"
	"github.com/tgifai/bridgekit/internal/text"
)

type BaseOptions struct {
	Name      string
	Type      Type
	Features  Features
	Publisher event.Publisher
	Tokenizer text.Tokenizer
	Formatter *text.Formatter

	// CacheTTL applies to the channel and account caches.
	CacheTTL time.Duration
	// Resolution is the granularity of platform update timestamps.
	Resolution time.Duration
	Clock      func() time.Time

	FetchChannel cache.FetchFunc[int64, message.ChannelInfo]
	FetchAccount cache.FetchFunc[int64, message.AccountInfo]
}

// Base carries what every adapter shares: identity, lifecycle, the text
// pipeline, the info caches and event emission. Adapters embed *Base.
type Base struct {
	*Lifecycle

	name      string
	typ       Type
	features  Features
	publisher event.Publisher
	tokenizer text.Tokenizer
	formatter *text.Formatter
	now       func() time.Time

	channels *cache.Manager[int64, message.ChannelInfo]
	accounts *cache.Manager[int64, message.AccountInfo]
}

func NewBase(opts BaseOptions) *Base {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	formatter := opts.Formatter
	if formatter == nil {
		formatter = text.NewFormatter()
	}
	tokenizer := opts.Tokenizer
	if tokenizer == nil {
		tokenizer = text.NewSpanTokenizer()
	}

	b := &Base{
		Lifecycle: NewLifecycle(opts.Resolution, now),
		name:      opts.Name,
		typ:       opts.Type,
		features:  opts.Features,
		publisher: opts.Publisher,
		tokenizer: tokenizer,
		formatter: formatter,
		now:       now,
	}

	fetchChannel := opts.FetchChannel
	if fetchChannel == nil {
		fetchChannel = func(ctx context.Context, id int64) (message.ChannelInfo, error) {
			return message.ChannelInfo{}, ErrUnsupportedOperation
		}
	}
	fetchAccount := opts.FetchAccount
	if fetchAccount == nil {
		fetchAccount = func(ctx context.Context, id int64) (message.AccountInfo, error) {
			return message.AccountInfo{}, ErrUnsupportedOperation
		}
	}
	b.channels = cache.New(fetchChannel, opts.CacheTTL,
		cache.WithName(opts.Name+":channel"), cache.WithClock(now))
	b.accounts = cache.New(fetchAccount, opts.CacheTTL,
		cache.WithName(opts.Name+":account"), cache.WithClock(now))
	return b
}

func (b *Base) Name() string {
	return b.name
}

func (b *Base) Type() Type {
	return b.typ
}

func (b *Base) Features() Features {
	return b.features
}

func (b *Base) Tokenizer() text.Tokenizer {
	return b.tokenizer
}

func (b *Base) Formatter() *text.Formatter {
	return b.formatter
}

func (b *Base) Now() time.Time {
	return b.now()
}

func (b *Base) GetChannelInfo(ctx context.Context, id int64) (message.ChannelInfo, error) {
	return b.channels.Get(ctx, id)
}

func (b *Base) GetAccountInfo(ctx context.Context, id int64) (message.AccountInfo, error) {
	return b.accounts.Get(ctx, id)
}

func (b *Base) AnswerInlineQuery(context.Context, string, message.InlineQueryResponse) error {
	return ErrUnsupportedOperation
}

// Caches lists the caches owned by this controller, including extra ones the
// adapter keeps on its own.
func (b *Base) Caches(extra ...cache.Purger) []cache.Purger {
	return append([]cache.Purger{b.channels, b.accounts}, extra...)
}

// Emit stamps evt with this controller and publishes it.
func (b *Base) Emit(ctx context.Context, evt event.Event) {
	evt.Controller = b.name
	if evt.Time.IsZero() {
		evt.Time = b.now()
	}
	prometheus.ObserveEvent(b.name, string(evt.Name))
	if b.publisher == nil {
		logs.CtxWarn(ctx, "[channel:%s] no publisher, dropping %s", b.name, evt.Name)
		return
	}
	logs.CtxDebug(ctx, "[channel:%s] emit %s", b.name, evt.Name)
	b.publisher.Publish(ctx, evt)
}

// Observe records the outcome of one platform call and passes err through.
func (b *Base) Observe(method string, err error) error {
	prometheus.ObservePlatformCall(b.name, method, err)
	return err
}

// ResolveOutMessage renders the text with this controller's formatter and
// turns attachments into uploadable sources. Tokens take precedence over
// Text; plain Text is rendered as a single text token.
func (b *Base) ResolveOutMessage(msg message.OutMessage) (message.ResolvedMessage, error) {
	tokens := msg.Tokens
	if len(tokens) == 0 && msg.Text != "" {
		tokens = []text.Token{text.NewText(msg.Text)}
	}
	rendered, err := b.formatter.Format(tokens)
	if err != nil {
		return message.ResolvedMessage{}, fmt.Errorf("format text: %w", err)
	}

	out := message.ResolvedMessage{
		Text:      rendered,
		Buttons:   msg.Buttons,
		Forwarded: msg.Forwarded,
		Reply:     msg.Reply,
		Header:    msg.Header,
		Metadata:  msg.Metadata,
	}
	for i, a := range msg.Attachments {
		ra, err := b.ResolveAttachment(a)
		if err != nil {
			return message.ResolvedMessage{}, fmt.Errorf("attachment #%d: %w", i, err)
		}
		out.Attachments = append(out.Attachments, ra)
	}
	return out, nil
}

// ResolveAttachment reuses the platform id when the attachment came from
// this controller, otherwise falls back to its URL.
func (b *Base) ResolveAttachment(a message.Attachment) (message.ResolvedAttachment, error) {
	ra := message.ResolvedAttachment{
		Type:           a.Type,
		ControllerName: a.Controller,
		ID:             a.ID,
	}
	switch {
	case a.Controller == b.name && a.UploadID != "":
		ra.Source = message.ReuseSource(a.UploadID)
	case a.URL != "":
		ra.Source = message.URLSource(a.URL)
	default:
		return ra, fmt.Errorf("%s %s: %w", a.Type, a.ID, ErrUnresolvedAttachment)
	}
	return ra, nil
}
