package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/tgifai/bridgekit/internal/config"
	"github.com/tgifai/bridgekit/internal/gateway"
)

var checkHwd = &Checker{}

type Checker struct{}

var (
	cOK   = color.New(color.FgGreen)
	cSkip = color.New(color.FgHiBlack)
	cErr  = color.New(color.FgRed)
)

func (r *Checker) cmd() *cli.Command {
	return &cli.Command{
		Name:   "check",
		Usage:  "Validate the config and build every enabled controller without connecting",
		Flags:  []cli.Flag{configFlag},
		Action: r.run,
	}
}

func (r *Checker) run(ctx context.Context, cmd *cli.Command) error {
	cfgPath := cmd.String("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		cErr.Printf("✗ %v\n", err)
		return err
	}
	cOK.Printf("✓ config %s\n", cfgPath)

	gw := gateway.NewGateway(cfg)
	if err := gw.Build(ctx); err != nil {
		cErr.Printf("✗ %v\n", err)
		return err
	}
	for id, ch := range cfg.Channels {
		if !ch.Enabled {
			cSkip.Printf("- %s (%s) disabled\n", id, ch.Type)
		}
	}
	for _, ctrl := range gw.Registry().List() {
		f := ctrl.Features()
		cOK.Printf("✓ %s (%s)", ctrl.Name(), ctrl.Type())
		fmt.Printf(" inline=%t buttons=%t upload=%t\n", f.InlineMode, f.InlineButtons, f.ImplicitUpload)
	}
	return nil
}
