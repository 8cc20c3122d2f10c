package gateway

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/tgifai/bridgekit/internal/channel"
	"github.com/tgifai/bridgekit/internal/pkg/cache"
	"github.com/tgifai/bridgekit/internal/pkg/logs"
)

// cacheOwner is implemented by controllers that keep TTL caches.
type cacheOwner interface {
	Caches() []cache.Purger
}

// cachePurger drops expired cache entries on a cron schedule. Entries are
// never served stale either way; purging only bounds memory.
type cachePurger struct {
	registry *channel.Registry
	cron     *cron.Cron
}

func newCachePurger(registry *channel.Registry) *cachePurger {
	return &cachePurger{registry: registry}
}

func (p *cachePurger) Start(ctx context.Context, spec string) error {
	p.cron = cron.New(cron.WithLogger(cronLogger{ctx: ctx}))
	if _, err := p.cron.AddFunc(spec, func() { p.PurgeAll(ctx) }); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	p.cron.Start()
	return nil
}

func (p *cachePurger) Stop() {
	if p.cron != nil {
		<-p.cron.Stop().Done()
	}
}

// PurgeAll returns the number of entries removed.
func (p *cachePurger) PurgeAll(ctx context.Context) int {
	total := 0
	for _, ctrl := range p.registry.List() {
		owner, ok := ctrl.(cacheOwner)
		if !ok {
			continue
		}
		for _, c := range owner.Caches() {
			if n := c.Purge(); n > 0 {
				logs.CtxDebug(ctx, "[cache] purged %d entries from %s", n, c.Name())
				total += n
			}
		}
	}
	return total
}

type cronLogger struct {
	ctx context.Context
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logs.CtxDebug(l.ctx, "[cron] %s %v", msg, keysAndValues)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logs.CtxError(l.ctx, "[cron] %s %v: %v", msg, keysAndValues, err)
}
