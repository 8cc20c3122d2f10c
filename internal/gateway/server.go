package gateway

import (
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	hzServer "github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/adaptor"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	monitor "github.com/hertz-contrib/monitor-prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tgifai/bridgekit/internal/channel"
	"github.com/tgifai/bridgekit/internal/config"
	"github.com/tgifai/bridgekit/internal/pkg/prometheus"
)

// newHTTPServer serves /health and the metrics registry. Request metrics
// of the server itself land in the same registry.
func newHTTPServer(cfg config.MetricsConfig, registry *channel.Registry) *hzServer.Hertz {
	tracer := monitor.NewServerTracer(cfg.Bind, cfg.Path,
		monitor.WithRegistry(prometheus.GetRegistry()),
		monitor.WithDisableServer(true),
	)
	h := hzServer.New(
		hzServer.WithHostPorts(cfg.Bind),
		hzServer.WithReadTimeout(10*time.Second),
		hzServer.WithWriteTimeout(10*time.Second),
		hzServer.WithExitWaitTime(2*time.Second),
		hzServer.WithTracer(tracer),
	)

	h.GET("/health", healthHandler(registry))
	h.GET(cfg.Path, adaptor.HertzHandler(
		promhttp.HandlerFor(prometheus.GetRegistry(), promhttp.HandlerOpts{}),
	))
	return h
}

// healthHandler reports 503 when any controller is not running.
func healthHandler(registry *channel.Registry) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		status, code := "ok", consts.StatusOK
		controllers := make(utils.H, registry.Len())
		for _, ctrl := range registry.List() {
			state := ctrl.State()
			controllers[ctrl.Name()] = state.String()
			if state != channel.StateRunning {
				status, code = "degraded", consts.StatusServiceUnavailable
			}
		}
		c.JSON(code, utils.H{"status": status, "controllers": controllers})
	}
}
