package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/urfave/cli/v3"

	"github.com/tgifai/bridgekit/internal/config"
	"github.com/tgifai/bridgekit/internal/gateway"
	"github.com/tgifai/bridgekit/internal/pkg/logs"
)

var runHwd = &Runner{}

type Runner struct{}

func (r *Runner) cmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run every enabled controller until interrupted",
		Flags: []cli.Flag{
			configFlag,
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override logging.level (debug, info, warn, error)",
			},
		},
		Action: r.run,
	}
}

func (r *Runner) run(ctx context.Context, cmd *cli.Command) error {
	cfgPath := cmd.String("config")
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		fmt.Printf("No config at %s. Run \"bridgekit init\" to create one.\n", cfgPath)
		return nil
	}

	if _, err := config.Load(cfgPath); err != nil {
		return fmt.Errorf("loading config error: %w", err)
	}
	if level := cmd.String("log-level"); level != "" {
		cfg, err := config.Get()
		if err != nil {
			return err
		}
		logging := cfg.Logging
		logging.Level = level
		if err := config.Apply("logging", &logging); err != nil {
			return fmt.Errorf("apply log level: %w", err)
		}
	}
	cfg, err := config.Get()
	if err != nil {
		return err
	}

	if err = initLogger(cfg.Logging); err != nil {
		return fmt.Errorf("init logger error: %w", err)
	}
	defer logs.Flush()

	hash, _ := config.Hash()
	logs.CtxInfo(ctx, "booting bridgekit, config %s (%.12s)", cfgPath, hash)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	gw := gateway.NewGateway(cfg)
	if err = gw.Start(ctx); err != nil {
		cancel()
		_ = gw.Stop(context.Background())
		return fmt.Errorf("start gateway: %w", err)
	}
	logs.CtxInfo(ctx, "%d controllers running. Press Ctrl+C to stop.", gw.Registry().Len())

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalCh)

	select {
	case sig := <-signalCh:
		logs.CtxInfo(ctx, "received %s, stopping", sig)
	case <-ctx.Done():
		logs.CtxInfo(ctx, "context canceled, stopping")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	if err = gw.Stop(stopCtx); err != nil {
		logs.CtxError(ctx, "stop gateway error: %v", err)
	}
	logs.CtxInfo(ctx, "all stopped, good bye!")
	return nil
}

func initLogger(cfg config.LoggingConfig) error {
	err := logs.Init(logs.Options{
		Level:      cfg.Level,
		Format:     cfg.Format,
		Output:     cfg.Output,
		File:       cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
	})
	if err != nil {
		return err
	}
	hlog.SetLogger(logs.NewHlogLogger(logs.DefaultLogger()))
	return nil
}
