package telegram

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/tgifai/bridgekit/internal/channel"
	"github.com/tgifai/bridgekit/internal/message"
	"github.com/tgifai/bridgekit/internal/pkg/cache"
	"github.com/tgifai/bridgekit/internal/pkg/httpx"
	"github.com/tgifai/bridgekit/internal/pkg/logs"
	"github.com/tgifai/bridgekit/internal/text"
)

// API is the part of *bot.Bot the controller talks to.
type API interface {
	GetMe(ctx context.Context) (*models.User, error)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*models.Message, error)
	SendVideo(ctx context.Context, params *bot.SendVideoParams) (*models.Message, error)
	SendSticker(ctx context.Context, params *bot.SendStickerParams) (*models.Message, error)
	SendVoice(ctx context.Context, params *bot.SendVoiceParams) (*models.Message, error)
	SendDocument(ctx context.Context, params *bot.SendDocumentParams) (*models.Message, error)
	SendAnimation(ctx context.Context, params *bot.SendAnimationParams) (*models.Message, error)
	SendMediaGroup(ctx context.Context, params *bot.SendMediaGroupParams) ([]*models.Message, error)
	ForwardMessage(ctx context.Context, params *bot.ForwardMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	DeleteMessage(ctx context.Context, params *bot.DeleteMessageParams) (bool, error)
	GetFile(ctx context.Context, params *bot.GetFileParams) (*models.File, error)
	FileDownloadLink(f *models.File) string
	GetChat(ctx context.Context, params *bot.GetChatParams) (*models.ChatFullInfo, error)
	GetChatMember(ctx context.Context, params *bot.GetChatMemberParams) (*models.ChatMember, error)
	GetUserProfilePhotos(ctx context.Context, params *bot.GetUserProfilePhotosParams) (*models.UserProfilePhotos, error)
	AnswerInlineQuery(ctx context.Context, params *bot.AnswerInlineQueryParams) (bool, error)
}

var _ API = (*bot.Bot)(nil)

// PassthroughFunc receives updates the controller does not translate.
type PassthroughFunc func(ctx context.Context, update *models.Update)

type options struct {
	api         API
	clock       func() time.Time
	passthrough PassthroughFunc
	botUser     *models.User
}

type Option func(*options)

// WithAPI replaces the Bot API client, mostly for tests. Start then waits for
// ctx instead of long polling.
func WithAPI(api API) Option {
	return func(o *options) { o.api = api }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

func WithPassthrough(fn PassthroughFunc) Option {
	return func(o *options) { o.passthrough = fn }
}

// WithBotUser presets the bot identity normally learned from getMe.
func WithBotUser(u models.User) Option {
	return func(o *options) { o.botUser = &u }
}

type Controller struct {
	*channel.Base

	config      Config
	bot         *bot.Bot
	api         API
	passthrough PassthroughFunc

	botID       atomic.Int64
	botUsername atomic.Value

	permissions *cache.Manager[int64, message.Permissions]
	avatars     *cache.Manager[int64, *message.Attachment]

	batcher  *updateBatcher
	handleMu sync.Mutex

	mu     sync.Mutex
	runCtx context.Context
	cancel context.CancelFunc
}

var _ channel.Controller = (*Controller)(nil)

// NewController is the channel.Factory for Telegram.
func NewController(_ context.Context, name string, raw map[string]interface{}, deps channel.Deps) (channel.Controller, error) {
	cfg, err := ParseConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("parse telegram config: %w", err)
	}
	return New(name, *cfg, deps)
}

func New(name string, cfg Config, deps channel.Deps, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = deps.CacheTTL
	}

	c := &Controller{
		config:      cfg,
		passthrough: o.passthrough,
	}
	c.botUsername.Store("")
	c.Base = channel.NewBase(channel.BaseOptions{
		Name: name,
		Type: channel.Telegram,
		Features: channel.Features{
			ImplicitUpload: true,
			InlineMode:     true,
			InlineButtons:  true,
		},
		Publisher:    deps.Publisher,
		Tokenizer:    text.NewSpanTokenizer(),
		Formatter:    NewFormatter(),
		CacheTTL:     ttl,
		Resolution:   time.Second,
		Clock:        o.clock,
		FetchChannel: c.fetchChannel,
		FetchAccount: c.fetchAccount,
	})
	c.permissions = cache.New(c.fetchPermissions, ttl,
		cache.WithName(name+":permissions"), cache.WithClock(c.Now))
	c.avatars = cache.New(c.fetchAvatar, ttl,
		cache.WithName(name+":avatar"), cache.WithClock(c.Now))
	c.batcher = newUpdateBatcher(cfg.BatchWindow, cfg.MaxBatchSize, c.flushBatch)
	if o.botUser != nil {
		c.setBotUser(o.botUser)
	}

	if o.api != nil {
		c.api = o.api
		return c, nil
	}

	botOpts := []bot.Option{
		bot.WithSkipGetMe(),
		bot.WithDefaultHandler(c.onUpdate),
		bot.WithHTTPClient(cfg.PollTimeout, httpx.NewClient(cfg.PollTimeout+10*time.Second)),
	}
	if cfg.ServerURL != "" {
		botOpts = append(botOpts, bot.WithServerURL(cfg.ServerURL))
	}
	if cfg.Debug {
		botOpts = append(botOpts, bot.WithDebug())
	}
	b, err := bot.New(cfg.Token, botOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	c.bot = b
	c.api = b
	return c, nil
}

// Caches lists every cache the controller owns, for periodic purging.
func (c *Controller) Caches() []cache.Purger {
	return c.Base.Caches(c.permissions, c.avatars)
}

func (c *Controller) Start(ctx context.Context) error {
	if err := c.BeginStart(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(logs.WithController(ctx, c.Name()))
	c.mu.Lock()
	c.runCtx, c.cancel = ctx, cancel
	c.mu.Unlock()
	defer func() {
		cancel()
		if dropped := c.batcher.close(); dropped > 0 {
			logs.CtxWarn(ctx, "[channel:telegram] dropped %d pending updates on stop", dropped)
		}
		c.MarkStopped()
	}()

	me, err := c.api.GetMe(ctx)
	if err := c.Observe("getMe", err); err != nil {
		return fmt.Errorf("get bot identity: %w", err)
	}
	c.setBotUser(me)
	c.batcher.reopen()

	if err := c.MarkRunning(); err != nil {
		// stopped while starting
		return nil
	}
	logs.CtxInfo(ctx, "[channel:telegram] started as @%s (id=%d), cutoff %s",
		me.Username, me.ID, c.Cutoff().Format(time.RFC3339))

	if c.bot != nil {
		c.bot.Start(ctx)
	} else {
		<-ctx.Done()
	}
	logs.CtxInfo(ctx, "[channel:telegram] polling finished")
	return nil
}

func (c *Controller) Stop(ctx context.Context) error {
	if err := c.BeginStop(); err != nil {
		return err
	}
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	logs.CtxInfo(ctx, "[channel:telegram] %s stopping", c.Name())
	return nil
}

func (c *Controller) setBotUser(u *models.User) {
	c.botID.Store(u.ID)
	c.botUsername.Store(u.Username)
}

func (c *Controller) BotUsername() string {
	return c.botUsername.Load().(string)
}

func (c *Controller) lifetime() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runCtx == nil {
		return context.Background()
	}
	return c.runCtx
}

func (c *Controller) onUpdate(_ context.Context, _ *bot.Bot, update *models.Update) {
	c.batcher.add(update)
}

func (c *Controller) flushBatch(batch []*models.Update) {
	ctx := logs.NewUpdateContext(c.lifetime(), c.Name())
	if err := c.HandleUpdates(ctx, batch); err != nil {
		logs.CtxError(ctx, "[channel:telegram] handle batch of %d updates: %v", len(batch), err)
	}
}
