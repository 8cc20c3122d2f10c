package telegram

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/tgifai/bridgekit/internal/channel"
	"github.com/tgifai/bridgekit/internal/message"
	"github.com/tgifai/bridgekit/internal/pkg/logs"
)

// sendExtra rides on the first platform call of a send only.
type sendExtra struct {
	reply  *models.ReplyParameters
	markup models.ReplyMarkup
}

func (x *sendExtra) replyParams() *models.ReplyParameters {
	if x == nil {
		return nil
	}
	return x.reply
}

func (x *sendExtra) replyMarkup() models.ReplyMarkup {
	if x == nil {
		return nil
	}
	return x.markup
}

func newSendExtra(msg message.ResolvedMessage) sendExtra {
	x := sendExtra{markup: replyMarkup(msg.Buttons)}
	if msg.Reply != nil && len(msg.Reply.MessageIDs) > 0 {
		x.reply = &models.ReplyParameters{
			MessageID:                int(msg.Reply.First()),
			AllowSendingWithoutReply: true,
		}
	}
	return x
}

// inlineKeyboard mirrors models.InlineKeyboardMarkup but keeps the switch
// queries as pointers: an empty query is a valid button that opens inline
// mode, and the library's string fields drop it.
type inlineKeyboard struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

type inlineButton struct {
	Text                         string  `json:"text"`
	URL                          string  `json:"url,omitempty"`
	CallbackData                 string  `json:"callback_data,omitempty"`
	SwitchInlineQuery            *string `json:"switch_inline_query,omitempty"`
	SwitchInlineQueryCurrentChat *string `json:"switch_inline_query_current_chat,omitempty"`
}

// replyMarkup returns an untyped nil without buttons so the field is omitted.
func replyMarkup(buttons [][]message.Button) models.ReplyMarkup {
	if len(buttons) == 0 {
		return nil
	}
	rows := make([][]inlineButton, 0, len(buttons))
	for _, row := range buttons {
		kbRow := make([]inlineButton, 0, len(row))
		for _, b := range row {
			kb := inlineButton{
				Text:         b.Text,
				URL:          b.URL,
				CallbackData: b.Payload,
			}
			if b.SwitchInline != nil {
				query := b.SwitchInline.Query
				if b.SwitchInline.Current {
					kb.SwitchInlineQueryCurrentChat = &query
				} else {
					kb.SwitchInlineQuery = &query
				}
			}
			kbRow = append(kbRow, kb)
		}
		rows = append(rows, kbRow)
	}
	return &inlineKeyboard{InlineKeyboard: rows}
}

func linkPreviewDisabled() *models.LinkPreviewOptions {
	return &models.LinkPreviewOptions{IsDisabled: bot.True()}
}

func (c *Controller) SendMessage(ctx context.Context, chatID int64, msg message.OutMessage) (message.SendedMessage, error) {
	resolved, err := c.ResolveOutMessage(msg)
	if err != nil {
		return message.SendedMessage{}, err
	}
	return c.SendResolvedMessage(ctx, chatID, resolved)
}

// SendResolvedMessage sends text first, then photos and videos in media
// groups of at most MediaBatchSize, then the other attachments one by one,
// then forwards. A chunk of one media item goes out alone. Reply and
// buttons go with the first call.
func (c *Controller) SendResolvedMessage(ctx context.Context, chatID int64, msg message.ResolvedMessage) (message.SendedMessage, error) {
	extra := channel.NewExtra(newSendExtra(msg))
	var acc channel.SendAccumulator

	if msg.Text != "" {
		x := extra.Take()
		sent, err := c.api.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:             chatID,
			Text:               msg.Text,
			ParseMode:          models.ParseModeHTML,
			LinkPreviewOptions: linkPreviewDisabled(),
			ReplyParameters:    x.replyParams(),
			ReplyMarkup:        x.replyMarkup(),
		})
		if err := c.Observe("sendMessage", err); err != nil {
			return message.SendedMessage{}, fmt.Errorf("send text: %w", err)
		}
		acc.Record(int64(sent.ID), true, nil)
	}

	media, other := channel.SplitMedia(channel.SortAttachments(msg.Attachments))
	for _, batch := range channel.Chunk(media, c.config.MediaBatchSize) {
		// a lone item is not a group
		if len(batch) == 1 {
			sent, err := c.sendAttachment(ctx, chatID, batch[0], extra.Take())
			if err != nil {
				return message.SendedMessage{}, fmt.Errorf("send %s: %w", batch[0].Type, err)
			}
			acc.Record(int64(sent.ID), false, sendedAttachment(sent, batch[0]))
			continue
		}
		x := extra.Take()
		if x.replyMarkup() != nil {
			logs.CtxDebug(ctx, "[channel:telegram] media group carries no reply markup, %d button rows dropped", len(msg.Buttons))
		}
		sent, err := c.api.SendMediaGroup(ctx, &bot.SendMediaGroupParams{
			ChatID:          chatID,
			Media:           inputMediaGroup(batch),
			ReplyParameters: x.replyParams(),
		})
		if err := c.Observe("sendMediaGroup", err); err != nil {
			return message.SendedMessage{}, fmt.Errorf("send media group: %w", err)
		}
		for i, m := range sent {
			if i >= len(batch) {
				break
			}
			acc.Record(int64(m.ID), false, sendedAttachment(m, batch[i]))
		}
	}

	for _, a := range other {
		sent, err := c.sendAttachment(ctx, chatID, a, extra.Take())
		if err != nil {
			return message.SendedMessage{}, fmt.Errorf("send %s: %w", a.Type, err)
		}
		acc.Record(int64(sent.ID), false, sendedAttachment(sent, a))
	}

	for _, f := range msg.Forwarded {
		sent, err := c.api.ForwardMessage(ctx, &bot.ForwardMessageParams{
			ChatID:     chatID,
			FromChatID: f.ChannelID,
			MessageID:  int(f.MessageID),
		})
		if err := c.Observe("forwardMessage", err); err != nil {
			return message.SendedMessage{}, fmt.Errorf("forward %d/%d: %w", f.ChannelID, f.MessageID, err)
		}
		acc.Record(int64(sent.ID), false, nil)
	}

	return acc.Result()
}

func (c *Controller) sendAttachment(ctx context.Context, chatID int64, a message.ResolvedAttachment, x *sendExtra) (*models.Message, error) {
	file := inputFile(a.Source)
	reply, markup := x.replyParams(), x.replyMarkup()

	var (
		sent   *models.Message
		err    error
		method string
	)
	switch a.Type {
	case message.AttachmentPhoto:
		method = "sendPhoto"
		sent, err = c.api.SendPhoto(ctx, &bot.SendPhotoParams{
			ChatID: chatID, Photo: file, ReplyParameters: reply, ReplyMarkup: markup,
		})
	case message.AttachmentVideo:
		method = "sendVideo"
		sent, err = c.api.SendVideo(ctx, &bot.SendVideoParams{
			ChatID: chatID, Video: file, ReplyParameters: reply, ReplyMarkup: markup,
		})
	case message.AttachmentSticker:
		// stickers from other platforms are plain images here
		if a.ControllerName != c.Name() {
			method = "sendPhoto"
			sent, err = c.api.SendPhoto(ctx, &bot.SendPhotoParams{
				ChatID: chatID, Photo: file, ReplyParameters: reply, ReplyMarkup: markup,
			})
			break
		}
		method = "sendSticker"
		sent, err = c.api.SendSticker(ctx, &bot.SendStickerParams{
			ChatID: chatID, Sticker: file, ReplyParameters: reply, ReplyMarkup: markup,
		})
	case message.AttachmentVoice:
		method = "sendVoice"
		sent, err = c.api.SendVoice(ctx, &bot.SendVoiceParams{
			ChatID: chatID, Voice: file, ReplyParameters: reply, ReplyMarkup: markup,
		})
	case message.AttachmentDocument:
		method = "sendDocument"
		sent, err = c.api.SendDocument(ctx, &bot.SendDocumentParams{
			ChatID: chatID, Document: file, ReplyParameters: reply, ReplyMarkup: markup,
		})
	case message.AttachmentAnimation:
		method = "sendAnimation"
		sent, err = c.api.SendAnimation(ctx, &bot.SendAnimationParams{
			ChatID: chatID, Animation: file, ReplyParameters: reply, ReplyMarkup: markup,
		})
	default:
		return nil, fmt.Errorf("attachment type %d: %w", a.Type, channel.ErrUnsupportedOperation)
	}
	if err := c.Observe(method, err); err != nil {
		return nil, err
	}
	return sent, nil
}

func inputFile(src message.Source) models.InputFile {
	switch src.Kind {
	case message.SourceBuffer:
		return &models.InputFileUpload{Filename: src.FileName, Data: bytes.NewReader(src.Data)}
	case message.SourceReuse:
		return &models.InputFileString{Data: src.ID}
	default:
		return &models.InputFileString{Data: src.URL}
	}
}

func inputMediaGroup(batch []message.ResolvedAttachment) []models.InputMedia {
	out := make([]models.InputMedia, 0, len(batch))
	for i, a := range batch {
		media, upload := mediaRef(i, a.Source)
		if a.Type == message.AttachmentVideo {
			out = append(out, &models.InputMediaVideo{Media: media, MediaAttachment: upload})
			continue
		}
		out = append(out, &models.InputMediaPhoto{Media: media, MediaAttachment: upload})
	}
	return out
}

// mediaRef returns the media field of a group item and, for in-memory
// sources, the reader uploaded under attach://.
func mediaRef(i int, src message.Source) (string, io.Reader) {
	switch src.Kind {
	case message.SourceBuffer:
		name := src.FileName
		if name == "" {
			name = fmt.Sprintf("file%d", i)
		}
		return "attach://" + name, bytes.NewReader(src.Data)
	case message.SourceReuse:
		return src.ID, nil
	default:
		return src.URL, nil
	}
}

func sendedAttachment(sent *models.Message, origin message.ResolvedAttachment) *message.SendedAttachment {
	out := &message.SendedAttachment{Origin: origin}
	if ref, ok := extractFile(sent); ok {
		out.ID = ref.uniqueID
		out.UploadID = ref.id
	}
	return out
}

func (c *Controller) EditMessage(ctx context.Context, chatID int64, msg message.OutMessage) (*message.SendedMessage, error) {
	resolved, err := c.ResolveOutMessage(msg)
	if err != nil {
		return nil, err
	}
	return c.EditResolvedMessage(ctx, chatID, resolved)
}

// EditResolvedMessage edits the text part in place. Attachments and forwards
// are left as they are.
func (c *Controller) EditResolvedMessage(ctx context.Context, chatID int64, msg message.ResolvedMessage) (*message.SendedMessage, error) {
	meta, err := channel.CheckEditShape(msg)
	if err != nil {
		return nil, err
	}
	if msg.Text == "" {
		return nil, nil
	}
	_, err = c.api.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:             chatID,
		MessageID:          int(meta.First()),
		Text:               msg.Text,
		ParseMode:          models.ParseModeHTML,
		LinkPreviewOptions: linkPreviewDisabled(),
		ReplyMarkup:        replyMarkup(msg.Buttons),
	})
	if err := c.Observe("editMessageText", err); err != nil {
		return nil, fmt.Errorf("edit message %d: %w", meta.First(), err)
	}
	return &message.SendedMessage{
		Attachments: []message.SendedAttachment{},
		Metadata:    meta.Clone(),
	}, nil
}

func (c *Controller) DeleteMessage(ctx context.Context, chatID int64, meta message.Metadata) error {
	for _, id := range meta.MessageIDs {
		_, err := c.api.DeleteMessage(ctx, &bot.DeleteMessageParams{ChatID: chatID, MessageID: int(id)})
		if err := c.Observe("deleteMessage", err); err != nil {
			return fmt.Errorf("delete message %d: %w", id, err)
		}
	}
	logs.CtxDebug(ctx, "[channel:telegram] deleted %d messages in chat %d", len(meta.MessageIDs), chatID)
	return nil
}
