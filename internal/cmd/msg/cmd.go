package msg

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/urfave/cli/v3"

	"github.com/tgifai/bridgekit/internal/channel"
	"github.com/tgifai/bridgekit/internal/config"
	"github.com/tgifai/bridgekit/internal/gateway"
	"github.com/tgifai/bridgekit/internal/message"
)

func Command(configFlag cli.Flag) *cli.Command {
	return &cli.Command{
		Name:  "msg",
		Usage: "Send a one-off message through a configured channel",
		Flags: []cli.Flag{
			configFlag,
			&cli.StringFlag{
				Name:     "channel",
				Usage:    "channel id defined in the config file",
				Required: true,
			},
			&cli.Int64Flag{
				Name:     "chat",
				Usage:    "target chat or peer id",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "markdown",
				Aliases: []string{"m"},
				Usage:   "message body in markdown",
			},
			&cli.StringSliceFlag{
				Name:  "photo",
				Usage: "photo URL to attach, repeatable",
			},
			&cli.StringSliceFlag{
				Name:  "document",
				Usage: "document URL to attach, repeatable",
			},
			&cli.StringFlag{
				Name:  "reply",
				Usage: "comma separated message ids to reply to",
			},
		},
		Action: runMessage,
	}
}

func runMessage(ctx context.Context, cmd *cli.Command) error {
	channelID := strings.TrimSpace(cmd.String("channel"))
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	chCfg, ok := cfg.Channels[channelID]
	if !ok {
		return fmt.Errorf("channel %q was not found in the configured channels", channelID)
	}

	out, err := buildMessage(cmd.String("markdown"), cmd.StringSlice("photo"), cmd.StringSlice("document"), cmd.String("reply"))
	if err != nil {
		return err
	}

	ctrl, err := gateway.NewController(ctx, channelID, chCfg, channel.Deps{CacheTTL: cfg.Cache.TTL()})
	if err != nil {
		return fmt.Errorf("create controller: %w", err)
	}
	sent, err := ctrl.SendMessage(ctx, cmd.Int64("chat"), out)
	if err != nil {
		return fmt.Errorf("send via %s: %w", channelID, err)
	}

	meta, _ := sonic.MarshalString(sent.Metadata)
	fmt.Printf("Sent via %s (%s) to %d: %s\n", channelID, chCfg.Type, cmd.Int64("chat"), meta)
	return nil
}

func buildMessage(md string, photos, documents []string, reply string) (message.OutMessage, error) {
	b := message.NewBuilder()
	if md = strings.TrimSpace(md); md != "" {
		b.AddMarkdown(md)
	}
	for _, u := range photos {
		b.AddAttachmentByURL(message.AttachmentPhoto, u)
	}
	for _, u := range documents {
		b.AddAttachmentByURL(message.AttachmentDocument, u)
	}
	if reply = strings.TrimSpace(reply); reply != "" {
		var meta message.Metadata
		for _, part := range strings.Split(reply, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return message.OutMessage{}, fmt.Errorf("--reply: %w", err)
			}
			meta.MessageIDs = append(meta.MessageIDs, id)
		}
		b.AddReply(meta)
	}

	out, err := b.Build()
	if err != nil {
		return message.OutMessage{}, err
	}
	if len(out.Tokens) == 0 && len(out.Attachments) == 0 {
		return message.OutMessage{}, errors.New("nothing to send, pass --markdown or an attachment")
	}
	return out, nil
}
