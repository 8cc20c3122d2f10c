package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/tgifai/bridgekit/internal/cmd/msg"
	"github.com/tgifai/bridgekit/internal/consts"
	"github.com/tgifai/bridgekit/internal/pkg/logs"
)

var configFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "path to the YAML config",
	Value:   consts.DefaultConfigPath(),
}

func main() {
	cmd := &cli.Command{
		Name:  "bridgekit",
		Usage: "Bridge Telegram and VK chats through one message model",
		Commands: []*cli.Command{
			runHwd.cmd(),
			checkHwd.cmd(),
			initHwd.cmd(),
			msg.Command(configFlag),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logs.Error("Command execution failed: %v", err)
		logs.Flush()
		os.Exit(1)
	}
}
