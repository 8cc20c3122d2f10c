package channel

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/gg/gmap"

	"github.com/tgifai/bridgekit/internal/event"
)

var (
	defaultRegistry = NewRegistry()

	Get        = defaultRegistry.Get
	Len        = defaultRegistry.Len
	List       = defaultRegistry.List
	Register   = defaultRegistry.Register
	Unregister = defaultRegistry.Unregister
)

type Registry struct {
	ctrls map[string]Controller

	cnt atomic.Int64
	mu  sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		ctrls: make(map[string]Controller, 8),
	}
}

func (r *Registry) Register(c Controller) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ctrls[c.Name()]; ok {
		return fmt.Errorf("controller %s already registered", c.Name())
	}
	r.ctrls[c.Name()] = c
	r.cnt.Add(1)
	return nil
}

func (r *Registry) Get(name string) (Controller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.ctrls[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return c, nil
}

// List returns controllers sorted by name.
func (r *Registry) List() []Controller {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := gmap.ToSlice(
		r.ctrls,
		func(k string, v Controller) Controller { return v },
	)
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

func (r *Registry) Len() int {
	return int(r.cnt.Load())
}

func (r *Registry) Unregister(name string) {
	if name == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ctrls[name]; ok {
		delete(r.ctrls, name)
		r.cnt.Add(-1)
	}
}

// Deps are the shared collaborators handed to every controller factory.
type Deps struct {
	Publisher event.Publisher
	CacheTTL  time.Duration
}

// Factory builds a controller from its raw per-channel configuration.
type Factory func(ctx context.Context, name string, cfg map[string]interface{}, deps Deps) (Controller, error)

var (
	factoryMu sync.RWMutex
	factories = make(map[Type]Factory, 4)
)

func RegisterFactory(typ Type, f Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[typ] = f
}

func NewController(ctx context.Context, typ Type, name string, cfg map[string]interface{}, deps Deps) (Controller, error) {
	factoryMu.RLock()
	f, ok := factories[typ]
	factoryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported channel type: %s", typ)
	}
	return f(ctx, name, cfg, deps)
}
