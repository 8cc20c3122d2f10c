package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/tgifai/bridgekit/internal/config"
)

var initHwd = &Initializer{}

type Initializer struct{}

func (r *Initializer) cmd() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write a sample config to fill in",
		Flags: []cli.Flag{
			configFlag,
			&cli.BoolFlag{Name: "force", Usage: "overwrite an existing config (kept as .bak)"},
		},
		Action: r.run,
	}
}

func (r *Initializer) run(_ context.Context, cmd *cli.Command) error {
	path := cmd.String("config")
	if _, err := os.Stat(path); err == nil && !cmd.Bool("force") {
		return fmt.Errorf("%s already exists, pass --force to overwrite", path)
	}
	if err := config.WriteFile(path, config.Sample()); err != nil {
		return err
	}
	color.New(color.FgGreen).Printf("✓ wrote %s\n", path)
	fmt.Println("Fill in the channel tokens, set enabled: true and run \"bridgekit check\".")
	return nil
}
