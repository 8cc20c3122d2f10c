package telegram

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/tgifai/bridgekit/internal/channel"
	"github.com/tgifai/bridgekit/internal/message"
	"github.com/tgifai/bridgekit/internal/pkg/logs"
)

const untitled = "Untitled"

// AnswerInlineQuery answers with every result Telegram can show. Results it
// cannot represent are logged and left out.
func (c *Controller) AnswerInlineQuery(ctx context.Context, queryID string, resp message.InlineQueryResponse) error {
	results := make([]models.InlineQueryResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		res, err := inlineResult(r)
		if err != nil {
			logs.CtxWarn(ctx, "[channel:telegram] inline result %s: %v", r.ID, err)
			continue
		}
		results = append(results, res)
	}

	params := &bot.AnswerInlineQueryParams{
		InlineQueryID: queryID,
		Results:       results,
		CacheTime:     resp.CacheTime,
		IsPersonal:    resp.IsPersonal,
		NextOffset:    resp.NextOffset,
	}
	if resp.SwitchPMText != "" {
		params.Button = &models.InlineQueryResultsButton{
			Text:           resp.SwitchPMText,
			StartParameter: resp.SwitchPMParameter,
		}
	}
	_, err := c.api.AnswerInlineQuery(ctx, params)
	if err := c.Observe("answerInlineQuery", err); err != nil {
		return fmt.Errorf("answer inline query %s: %w", queryID, err)
	}
	return nil
}

func inlineResult(r message.InlineQueryResult) (models.InlineQueryResult, error) {
	var content models.InputMessageContent
	if r.Message != nil && r.Message.Text != "" {
		content = &models.InputTextMessageContent{
			MessageText: r.Message.Text,
			ParseMode:   models.ParseModeHTML,
		}
	}

	switch {
	case r.Article != nil:
		if content == nil {
			content = &models.InputTextMessageContent{MessageText: escapeHTML(r.Article.Title), ParseMode: models.ParseModeHTML}
		}
		return &models.InlineQueryResultArticle{
			ID:                  r.ID,
			Title:               r.Article.Title,
			Description:         r.Article.Description,
			InputMessageContent: content,
		}, nil
	case r.Attachment != nil:
		return cachedResult(r.ID, *r.Attachment, content)
	default:
		return nil, fmt.Errorf("neither article nor attachment: %w", channel.ErrUnsupportedInlineResult)
	}
}

// cachedResult builds a result for a file already stored by Telegram. Only
// reused sources qualify since inline results cannot carry uploads.
func cachedResult(id string, a message.ResolvedAttachment, content models.InputMessageContent) (models.InlineQueryResult, error) {
	if a.Source.Kind != message.SourceReuse {
		return nil, fmt.Errorf("%s without a telegram file id: %w", a.Type, channel.ErrUnsupportedInlineResult)
	}
	title := a.Title
	if title == "" {
		title = untitled
	}
	fileID := a.Source.ID

	switch a.Type {
	case message.AttachmentPhoto:
		return &models.InlineQueryResultCachedPhoto{ID: id, PhotoFileID: fileID, Title: title, InputMessageContent: content}, nil
	case message.AttachmentSticker:
		return &models.InlineQueryResultCachedSticker{ID: id, StickerFileID: fileID, InputMessageContent: content}, nil
	case message.AttachmentVideo:
		return &models.InlineQueryResultCachedVideo{ID: id, VideoFileID: fileID, Title: title, InputMessageContent: content}, nil
	case message.AttachmentDocument:
		return &models.InlineQueryResultCachedDocument{ID: id, DocumentFileID: fileID, Title: title, InputMessageContent: content}, nil
	case message.AttachmentVoice:
		return &models.InlineQueryResultCachedVoice{ID: id, VoiceFileID: fileID, Title: title, InputMessageContent: content}, nil
	case message.AttachmentAnimation:
		return &models.InlineQueryResultCachedMpeg4Gif{ID: id, Mpeg4FileID: fileID, Title: title, InputMessageContent: content}, nil
	default:
		return nil, fmt.Errorf("attachment type %d: %w", a.Type, channel.ErrUnsupportedInlineResult)
	}
}
