package vk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/SevereCloud/vksdk/v3/api"
	"github.com/SevereCloud/vksdk/v3/events"
	longpoll "github.com/SevereCloud/vksdk/v3/longpoll-bot"

	"github.com/tgifai/bridgekit/internal/channel"
	"github.com/tgifai/bridgekit/internal/pkg/cache"
	"github.com/tgifai/bridgekit/internal/pkg/httpx"
	"github.com/tgifai/bridgekit/internal/pkg/logs"
)

const (
	apiTimeout      = 60 * time.Second
	maxDownloadSize = 50 << 20
)

// API is the part of *api.VK the controller uses.
type API interface {
	RequestUnmarshal(method string, obj interface{}, sliceParams ...api.Params) error
	Execute(code string, obj interface{}) error
	MessagesGetConversationsByID(params api.Params) (api.MessagesGetConversationsByIDResponse, error)
	UsersGet(params api.Params) (api.UsersGetResponse, error)
	UploadMessagesPhoto(peerID int, file io.Reader) (api.PhotosSaveMessagesPhotoResponse, error)
	UploadMessagesDoc(peerID int, typeDoc, title, tags string, file io.Reader) (api.DocsSaveResponse, error)
}

var _ API = (*api.VK)(nil)

// Poller reads the update stream and hands every response to handle until
// ctx is done.
type Poller func(ctx context.Context, handle func(ctx context.Context, updates []events.GroupEvent)) error

// Downloader fetches the bytes of a file that has to be uploaded to VK.
type Downloader func(ctx context.Context, rawURL string) ([]byte, error)

type options struct {
	api      API
	poller   Poller
	download Downloader
	clock    func() time.Time
}

type Option func(*options)

func WithAPI(api API) Option {
	return func(o *options) { o.api = api }
}

func WithPoller(p Poller) Option {
	return func(o *options) { o.poller = p }
}

func WithDownloader(d Downloader) Option {
	return func(o *options) { o.download = d }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

type Controller struct {
	*channel.Base

	config   Config
	api      API
	poll     Poller
	download Downloader

	handleMu sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
}

var _ channel.Controller = (*Controller)(nil)

// NewController is the channel.Factory for VK.
func NewController(_ context.Context, name string, raw map[string]interface{}, deps channel.Deps) (channel.Controller, error) {
	cfg, err := ParseConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("parse vk config: %w", err)
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

	c := &Controller{config: cfg, api: o.api, poll: o.poller, download: o.download}
	if c.api == nil {
		vk := api.NewVK(cfg.Token)
		vk.Version = cfg.APIVersion
		vk.MethodURL = cfg.BaseURL
		vk.Client = httpx.NewClient(apiTimeout)
		c.api = vk
	}
	if c.poll == nil {
		vk, ok := c.api.(*api.VK)
		if !ok {
			return nil, errors.New("vk: a custom API needs a custom poller")
		}
		c.poll = longPoller(vk, cfg)
	}
	if c.download == nil {
		client := httpx.NewClient(apiTimeout)
		c.download = func(ctx context.Context, rawURL string) ([]byte, error) {
			return httpx.Fetch(ctx, client, rawURL, maxDownloadSize)
		}
	}
	c.Base = channel.NewBase(channel.BaseOptions{
		Name:         name,
		Type:         channel.VK,
		Features:     channel.Features{},
		Publisher:    deps.Publisher,
		Tokenizer:    NewTokenizer(),
		Formatter:    NewFormatter(),
		CacheTTL:     ttl,
		Resolution:   time.Second,
		Clock:        o.clock,
		FetchChannel: c.fetchChannel,
		FetchAccount: c.fetchAccount,
	})
	return c, nil
}

// longPoller reads the Bots Long Poll stream of the configured community.
// The SDK delivers one response at a time, so batches never overlap.
func longPoller(vk *api.VK, cfg Config) Poller {
	client := httpx.NewClient(time.Duration(cfg.Wait)*time.Second + apiTimeout)
	return func(ctx context.Context, handle func(context.Context, []events.GroupEvent)) error {
		lp, err := longpoll.NewLongPoll(vk, int(cfg.GroupID))
		if err != nil {
			return fmt.Errorf("long poll server: %w", err)
		}
		lp.Wait = cfg.Wait
		lp.Client = client
		lp.FullResponse(func(resp longpoll.Response) {
			if len(resp.Updates) > 0 {
				handle(ctx, resp.Updates)
			}
		})
		err = lp.RunWithContext(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
}

func (c *Controller) Caches() []cache.Purger {
	return c.Base.Caches()
}

func (c *Controller) Start(ctx context.Context) error {
	if err := c.BeginStart(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(logs.WithController(ctx, c.Name()))
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer func() {
		cancel()
		c.MarkStopped()
	}()

	if err := c.MarkRunning(); err != nil {
		return nil
	}
	logs.CtxInfo(ctx, "[channel:vk] listening to group %d, cutoff %s",
		c.config.GroupID, c.Cutoff().Format(time.RFC3339))

	err := c.poll(ctx, func(ctx context.Context, updates []events.GroupEvent) {
		ctx = logs.NewUpdateContext(ctx, c.Name())
		if err := c.HandleUpdates(ctx, updates); err != nil {
			logs.CtxError(ctx, "[channel:vk] handle %d updates: %v", len(updates), err)
		}
	})
	if err := c.Observe("longPoll", err); err != nil {
		return fmt.Errorf("vk long poll: %w", err)
	}
	logs.CtxInfo(ctx, "[channel:vk] long poll finished")
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
	logs.CtxInfo(ctx, "[channel:vk] %s stopping", c.Name())
	return nil
}
