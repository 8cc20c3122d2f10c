package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	hzServer "github.com/cloudwego/hertz/pkg/app/server"

	"github.com/tgifai/bridgekit/internal/channel"
	"github.com/tgifai/bridgekit/internal/channel/telegram"
	"github.com/tgifai/bridgekit/internal/channel/vk"
	"github.com/tgifai/bridgekit/internal/config"
	"github.com/tgifai/bridgekit/internal/event"
	"github.com/tgifai/bridgekit/internal/pkg/logs"
)

func init() {
	channel.RegisterFactory(channel.Telegram, telegram.NewController)
	channel.RegisterFactory(channel.VK, vk.NewController)
}

// resolvedEvents carry the accounts and channels mirrored into the
// resolver.
var resolvedEvents = []event.Name{
	event.MessageReceived,
	event.MessageEdited,
	event.MemberJoined,
	event.ButtonClicked,
}

type Option func(gw *Gateway)

// WithResolver mirrors accounts and channels seen in events into r.
func WithResolver(r channel.EntityResolver) Option {
	return func(gw *Gateway) { gw.resolver = r }
}

// Gateway builds the configured controllers, runs them and serves health
// and metrics. Application logic subscribes to Bus and sends through
// Registry.
type Gateway struct {
	cfg      *config.Config
	bus      *event.Bus
	registry *channel.Registry
	resolver channel.EntityResolver
	queue    *eventQueue
	purger   *cachePurger

	httpServer *hzServer.Hertz

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
	built     bool

	stopOnce sync.Once
}

func NewGateway(cfg *config.Config, opts ...Option) *Gateway {
	gw := &Gateway{
		cfg:      cfg,
		bus:      event.NewBus(),
		registry: channel.NewRegistry(),
		queue:    newEventQueue(QueueOptions{}),
	}
	for _, opt := range opts {
		opt(gw)
	}
	gw.purger = newCachePurger(gw.registry)
	if cfg.Metrics.IsEnabled() {
		gw.httpServer = newHTTPServer(cfg.Metrics, gw.registry)
	}
	return gw
}

func (gw *Gateway) Bus() *event.Bus {
	return gw.bus
}

func (gw *Gateway) Registry() *channel.Registry {
	return gw.registry
}

// Build creates every enabled controller without starting it.
func (gw *Gateway) Build(ctx context.Context) error {
	if gw.built {
		return nil
	}
	if err := gw.initChannels(ctx); err != nil {
		return fmt.Errorf("init channels: %w", err)
	}
	gw.built = true
	return nil
}

// Start builds every enabled controller before starting any, so a bad
// channel config fails the whole gateway.
func (gw *Gateway) Start(ctx context.Context) error {
	gw.runCtx, gw.runCancel = context.WithCancel(ctx)

	if err := gw.Build(gw.runCtx); err != nil {
		return err
	}
	if gw.resolver != nil {
		gw.queue.Init(gw.runCtx, gw.resolveEntities)
		enqueue := func(ctx context.Context, evt event.Event) {
			if err := gw.queue.Enqueue(ctx, evt); err != nil {
				logs.CtxWarn(ctx, "[gateway] drop %s for entity resolution: %v", evt.Name, err)
			}
		}
		for _, name := range resolvedEvents {
			gw.bus.Subscribe(name, enqueue)
		}
	}
	if err := gw.purger.Start(gw.runCtx, gw.cfg.Cache.PurgeSchedule); err != nil {
		return fmt.Errorf("init cache purge: %w", err)
	}
	if gw.httpServer != nil {
		go gw.httpServer.Spin()
	}

	for _, ctrl := range gw.registry.List() {
		gw.wg.Add(1)
		go func(ctrl channel.Controller) {
			defer gw.wg.Done()
			logs.CtxInfo(gw.runCtx, "[gateway] starting controller #%s (%s)", ctrl.Name(), ctrl.Type())
			if err := ctrl.Start(gw.runCtx); err != nil {
				logs.CtxError(gw.runCtx, "[gateway] controller #%s stopped with error: %v", ctrl.Name(), err)
				return
			}
			logs.CtxInfo(gw.runCtx, "[gateway] controller #%s stopped", ctrl.Name())
		}(ctrl)
	}
	return nil
}

func (gw *Gateway) initChannels(ctx context.Context) error {
	ids := make([]string, 0, len(gw.cfg.Channels))
	for id := range gw.cfg.Channels {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	deps := channel.Deps{Publisher: gw.bus, CacheTTL: gw.cfg.Cache.TTL()}
	for _, id := range ids {
		cfg := gw.cfg.Channels[id]
		if !cfg.Enabled {
			logs.CtxInfo(ctx, "[gateway] channel #%s is disabled, skipping", id)
			continue
		}
		ctrl, err := NewController(ctx, id, cfg, deps)
		if err != nil {
			logs.CtxError(ctx, "[gateway] create controller #%s error: %v", id, err)
			return fmt.Errorf("create controller %s: %w", id, err)
		}
		if err := gw.registry.Register(ctrl); err != nil {
			return err
		}
	}
	return nil
}

// NewController builds one controller from its channel section.
func NewController(ctx context.Context, id string, cfg config.ChannelConfig, deps channel.Deps) (channel.Controller, error) {
	return channel.NewController(ctx, channel.Type(cfg.Type), id, cfg.Config, deps)
}

// Stop halts controllers first so nothing is published into a closed bus,
// then waits up to ctx for them and for the events already queued for
// entity resolution.
func (gw *Gateway) Stop(ctx context.Context) error {
	var stopErr error
	gw.stopOnce.Do(func() {
		for _, ctrl := range gw.registry.List() {
			if err := ctrl.Stop(ctx); err != nil && !errors.Is(err, channel.ErrInvalidState) {
				logs.CtxWarn(ctx, "[gateway] stop controller #%s error: %v", ctrl.Name(), err)
			}
		}
		if gw.runCancel != nil {
			gw.runCancel()
		}

		done := make(chan struct{})
		go func() {
			gw.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			stopErr = fmt.Errorf("wait for controllers: %w", ctx.Err())
		}

		gw.purger.Stop()
		if gw.httpServer != nil {
			if err := gw.httpServer.Shutdown(ctx); err != nil {
				logs.CtxWarn(ctx, "[gateway] shutdown http server error: %v", err)
			}
		}
		gw.bus.Close()
		if gw.resolver != nil {
			gw.queue.Close()
			drained := make(chan struct{})
			go func() {
				gw.queue.Wait()
				close(drained)
			}()
			select {
			case <-drained:
			case <-ctx.Done():
				stopErr = errors.Join(stopErr, fmt.Errorf("drain entity resolution: %w", ctx.Err()))
			}
		}
		logs.CtxInfo(ctx, "[gateway] all resources stopped")
	})
	return stopErr
}

func (gw *Gateway) resolveEntities(ctx context.Context, evt event.Event) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var errs []error
	if evt.Channel != nil && evt.Channel.ID != 0 {
		if err := gw.resolver.GetOrCreateChannel(ctx, evt.Controller, *evt.Channel); err != nil {
			errs = append(errs, fmt.Errorf("channel %d: %w", evt.Channel.ID, err))
		}
	}
	if evt.Account != nil && evt.Account.ID != 0 {
		if err := gw.resolver.GetOrCreateAccount(ctx, evt.Controller, *evt.Account); err != nil {
			errs = append(errs, fmt.Errorf("account %d: %w", evt.Account.ID, err))
		}
	}
	return errors.Join(errs...)
}
