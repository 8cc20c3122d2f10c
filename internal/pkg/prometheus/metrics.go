package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "bridgekit"

var (
	platformCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "platform_calls_total",
		Help:      "Platform API calls issued by controllers.",
	}, []string{"controller", "method", "result"})

	eventsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_emitted_total",
		Help:      "Canonical events published by controllers.",
	}, []string{"controller", "event"})

	cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Cache manager lookups by outcome.",
	}, []string{"cache", "result"})
)

func init() {
	registry.MustRegister(
		platformCalls,
		eventsEmitted,
		cacheLookups,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// ObservePlatformCall counts one SDK call; err decides the result label.
func ObservePlatformCall(controller, method string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	platformCalls.WithLabelValues(controller, method, result).Inc()
}

func ObserveEvent(controller, event string) {
	eventsEmitted.WithLabelValues(controller, event).Inc()
}

const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

func ObserveCache(cache, result string) {
	cacheLookups.WithLabelValues(cache, result).Inc()
}
