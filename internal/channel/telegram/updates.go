package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/tgifai/bridgekit/internal/channel"
	"github.com/tgifai/bridgekit/internal/event"
	"github.com/tgifai/bridgekit/internal/message"
	"github.com/tgifai/bridgekit/internal/pkg/logs"
)

// HandleUpdates translates one batch of updates into events. Membership,
// inline and button updates are emitted as they are met; messages are
// buffered, merged by media group and emitted after the loop, received
// before edited. Calls are serialized per controller.
func (c *Controller) HandleUpdates(ctx context.Context, updates []*models.Update) error {
	c.handleMu.Lock()
	defer c.handleMu.Unlock()

	var received, edited []*models.Message
	for _, u := range updates {
		if u == nil {
			continue
		}
		switch {
		case u.Message != nil:
			if !c.Accepts(unixTime(u.Message.Date)) {
				continue
			}
			handled, err := c.handleMeta(ctx, u.Message)
			if err != nil {
				return err
			}
			if !handled {
				received = append(received, u.Message)
			}
		case u.EditedMessage != nil:
			if !c.Accepts(unixTime(u.EditedMessage.EditDate)) {
				continue
			}
			edited = append(edited, u.EditedMessage)
		case u.InlineQuery != nil:
			if c.State() != channel.StateRunning {
				continue
			}
			q := u.InlineQuery
			var acc message.AccountInfo
			if q.From != nil {
				acc = c.createAccount(ctx, q.From)
			}
			c.Emit(ctx, event.NewInlineQueryEvent(acc, message.InlineQuery{
				ID:     q.ID,
				Text:   q.Query,
				Offset: q.Offset,
			}))
		case u.ChosenInlineResult != nil:
			if c.State() != channel.StateRunning {
				continue
			}
			r := u.ChosenInlineResult
			acc := c.createAccount(ctx, &r.From)
			c.Emit(ctx, event.NewChosenResultEvent(acc, message.ChosenInlineResult{
				ID:    r.ResultID,
				Query: r.Query,
			}))
		case u.CallbackQuery != nil:
			if c.State() != channel.StateRunning {
				continue
			}
			if err := c.handleButton(ctx, u.CallbackQuery); err != nil {
				return err
			}
		default:
			if c.passthrough != nil {
				c.passthrough(ctx, u)
				continue
			}
			logs.CtxDebug(ctx, "[channel:telegram] skip update %d without handler", u.ID)
		}
	}

	if err := c.handleMessages(ctx, event.MessageReceived, received, true); err != nil {
		return err
	}
	// edits of media groups arrive one item at a time and are not merged
	return c.handleMessages(ctx, event.MessageEdited, edited, false)
}

func (c *Controller) handleButton(ctx context.Context, q *models.CallbackQuery) error {
	origin := q.Message.Message
	if origin == nil {
		return fmt.Errorf("callback query %s: %w", q.ID, channel.ErrMissingMessageContext)
	}
	msg, err := c.createMessage(ctx, origin)
	if err != nil {
		return err
	}
	acc := c.createAccount(ctx, &q.From)
	c.Emit(ctx, event.NewButtonEvent(msg, acc, q.Data))
	return nil
}

// handleMeta emits membership and channel events. It reports whether m was
// such a service message.
func (c *Controller) handleMeta(ctx context.Context, m *models.Message) (bool, error) {
	isMeta := len(m.NewChatMembers) > 0 || m.LeftChatMember != nil ||
		m.NewChatTitle != "" || len(m.NewChatPhoto) > 0 || m.DeleteChatPhoto
	if !isMeta {
		return false, nil
	}
	ch, err := c.createChannel(ctx, refOfChat(m.Chat))
	if err != nil {
		return true, err
	}

	switch {
	case len(m.NewChatMembers) > 0:
		for i := range m.NewChatMembers {
			acc := c.createAccount(ctx, &m.NewChatMembers[i])
			c.Emit(ctx, event.NewMemberEvent(event.MemberJoined, ch, acc))
		}
	case m.LeftChatMember != nil:
		acc := c.createAccount(ctx, m.LeftChatMember)
		c.Emit(ctx, event.NewMemberEvent(event.MemberLeft, ch, acc))
	case m.NewChatTitle != "":
		ch.Title = m.NewChatTitle
		c.Emit(ctx, event.NewChannelEvent(event.ChannelTitleEdited, ch))
	case len(m.NewChatPhoto) > 0:
		largest := m.NewChatPhoto[len(m.NewChatPhoto)-1]
		photo := c.resolveFile(ctx, fileRef{
			typ:      message.AttachmentPhoto,
			id:       largest.FileID,
			uniqueID: largest.FileUniqueID,
		})
		c.Emit(ctx, event.NewPhotoEvent(ch, photo))
	case m.DeleteChatPhoto:
		c.Emit(ctx, event.NewChannelEvent(event.ChannelPhotoDeleted, ch))
	}
	return true, nil
}

// handleMessages builds and emits one event per message. With merge set,
// items of a media group become one message carrying all their
// attachments.
func (c *Controller) handleMessages(ctx context.Context, name event.Name, msgs []*models.Message, merge bool) error {
	key := func(m *models.Message) string { return "" }
	if merge {
		key = func(m *models.Message) string { return m.MediaGroupID }
	}
	for _, group := range channel.MergeMediaGroups(msgs, key) {
		msg, err := c.createMessage(ctx, group[0])
		if err != nil {
			if errors.Is(err, channel.ErrUnknownChannelType) {
				return err
			}
			logs.CtxWarn(ctx, "[channel:telegram] skip message %d: %v", group[0].ID, err)
			continue
		}
		for _, item := range group[1:] {
			if att := c.resolveAttachment(ctx, item); att != nil {
				channel.AppendGroupAttachments(&msg, *att)
			}
		}
		c.Emit(ctx, event.NewMessageEvent(name, msg))
	}
	return nil
}

func (c *Controller) createMessage(ctx context.Context, m *models.Message) (message.InMessage, error) {
	ch, err := c.createChannel(ctx, refOfChat(m.Chat))
	if err != nil {
		return message.InMessage{}, err
	}
	var acc message.AccountInfo
	switch {
	case m.From != nil:
		acc = c.createAccount(ctx, m.From)
	case m.SenderChat != nil:
		acc = accountOfChat(refOfChat(*m.SenderChat))
	}

	body, entities := m.Text, m.Entities
	if body == "" {
		body, entities = m.Caption, m.CaptionEntities
	}
	tokens := c.Tokenizer().Tokenize(body, entitySpans(entities))
	attachments := []message.Attachment{}
	if att := c.resolveAttachment(ctx, m); att != nil {
		attachments = append(attachments, *att)
	}
	hasText := m.Text != ""

	out := message.InMessage{
		Channel:   ch,
		Account:   acc,
		Forwarded: []message.ForwardedMessage{},
		Metadata:  message.NewMetadata(int64(m.ID), hasText),
	}

	if m.ForwardOrigin != nil {
		fwd := message.ForwardedMessage{
			ControllerName: c.Name(),
			InMessage: message.InMessage{
				Text:        body,
				Tokens:      tokens,
				Attachments: attachments,
				Forwarded:   []message.ForwardedMessage{},
				Metadata:    message.Metadata{HasText: hasText},
			},
		}
		originID, err := c.applyOrigin(ctx, &fwd.InMessage, m.ForwardOrigin)
		if err != nil {
			return message.InMessage{}, err
		}
		if originID != 0 {
			fwd.Metadata.MessageIDs = []int64{originID}
		}
		out.Attachments = []message.Attachment{}
		out.Forwarded = append(out.Forwarded, fwd)
		return out, nil
	}

	out.Text = body
	out.Tokens = tokens
	out.Attachments = attachments
	if m.ReplyToMessage != nil {
		reply, err := c.createMessage(ctx, m.ReplyToMessage)
		if err != nil {
			logs.CtxWarn(ctx, "[channel:telegram] drop reply of message %d: %v", m.ID, err)
		} else {
			out.Reply = &reply
		}
	}
	return out, nil
}

// applyOrigin fills the author and channel of a forwarded message and
// returns the original message id when the platform exposes it.
func (c *Controller) applyOrigin(ctx context.Context, msg *message.InMessage, o *models.MessageOrigin) (int64, error) {
	switch {
	case o.MessageOriginUser != nil:
		u := o.MessageOriginUser.SenderUser
		msg.Account = c.createAccount(ctx, &u)
		msg.Channel = channelOfUser(&u)
	case o.MessageOriginHiddenUser != nil:
		msg.Account = message.AccountInfo{FirstName: o.MessageOriginHiddenUser.SenderUserName}
	case o.MessageOriginChat != nil:
		ref := refOfChat(o.MessageOriginChat.SenderChat)
		msg.Account = accountOfChat(ref)
		ch, err := c.createChannel(ctx, ref)
		if err != nil {
			return 0, err
		}
		msg.Channel = ch
	case o.MessageOriginChannel != nil:
		ref := refOfChat(o.MessageOriginChannel.Chat)
		msg.Account = accountOfChat(ref)
		ch, err := c.createChannel(ctx, ref)
		if err != nil {
			return 0, err
		}
		msg.Channel = ch
		return int64(o.MessageOriginChannel.MessageID), nil
	}
	return 0, nil
}

// chatRef is the subset of chat fields shared by models.Chat and
// models.ChatFullInfo.
type chatRef struct {
	ID        int64
	Type      models.ChatType
	Title     string
	Username  string
	FirstName string
	LastName  string
}

func refOfChat(ch models.Chat) chatRef {
	return chatRef{
		ID:        ch.ID,
		Type:      ch.Type,
		Title:     ch.Title,
		Username:  ch.Username,
		FirstName: ch.FirstName,
		LastName:  ch.LastName,
	}
}

func refOfFullChat(ch *models.ChatFullInfo) chatRef {
	return chatRef{
		ID:        ch.ID,
		Type:      ch.Type,
		Title:     ch.Title,
		Username:  ch.Username,
		FirstName: ch.FirstName,
		LastName:  ch.LastName,
	}
}

func (r chatRef) title() string {
	switch {
	case r.Title != "":
		return r.Title
	case r.Username != "":
		return r.Username
	default:
		return strings.TrimSpace(r.FirstName + " " + r.LastName)
	}
}

func resolveChatType(t models.ChatType) (message.ChannelType, error) {
	switch t {
	case models.ChatTypePrivate:
		return message.ChannelDirect, nil
	case models.ChatTypeGroup, models.ChatTypeSupergroup:
		return message.ChannelGroup, nil
	case models.ChatTypeChannel:
		return message.ChannelPost, nil
	default:
		return message.ChannelUnknown, fmt.Errorf("chat type %q: %w", t, channel.ErrUnknownChannelType)
	}
}

func (c *Controller) createChannel(ctx context.Context, ref chatRef) (message.ChannelInfo, error) {
	typ, err := resolveChatType(ref.Type)
	if err != nil {
		return message.ChannelInfo{}, err
	}
	info := message.ChannelInfo{ID: ref.ID, Title: ref.title(), Type: typ}
	if typ == message.ChannelDirect {
		info.Permissions = message.FullPermissions
		return info, nil
	}
	perms, err := c.permissions.Get(ctx, ref.ID)
	if err != nil {
		logs.CtxWarn(ctx, "[channel:telegram] permissions of chat %d: %v", ref.ID, err)
		return info, nil
	}
	info.Permissions = perms
	return info, nil
}

func channelOfUser(u *models.User) message.ChannelInfo {
	ref := chatRef{ID: u.ID, Username: u.Username, FirstName: u.FirstName, LastName: u.LastName}
	return message.ChannelInfo{
		ID:          u.ID,
		Title:       ref.title(),
		Type:        message.ChannelDirect,
		Permissions: message.FullPermissions,
	}
}

func (c *Controller) createAccount(ctx context.Context, u *models.User) message.AccountInfo {
	acc := message.AccountInfo{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Language:  u.LanguageCode,
	}
	avatar, err := c.avatars.Get(ctx, u.ID)
	if err != nil {
		logs.CtxWarn(ctx, "[channel:telegram] avatar of user %d: %v", u.ID, err)
		return acc
	}
	if avatar != nil {
		acc.Avatar = avatar
		acc.AvatarURL = avatar.URL
	}
	return acc
}

// accountOfChat describes a chat acting as a message author, e.g. an
// anonymous admin or a channel post.
func accountOfChat(ref chatRef) message.AccountInfo {
	acc := message.AccountInfo{
		ID:        ref.ID,
		Username:  ref.Username,
		FirstName: ref.FirstName,
		LastName:  ref.LastName,
	}
	if acc.FirstName == "" {
		acc.FirstName = ref.Title
	}
	return acc
}

type fileRef struct {
	typ      message.AttachmentType
	id       string
	uniqueID string
}

// extractFile picks the one attachment a message carries, by precedence
// photo, sticker, voice, document, video, animation.
func extractFile(m *models.Message) (fileRef, bool) {
	switch {
	case len(m.Photo) > 0:
		p := m.Photo[len(m.Photo)-1]
		return fileRef{message.AttachmentPhoto, p.FileID, p.FileUniqueID}, true
	case m.Sticker != nil:
		return fileRef{message.AttachmentSticker, m.Sticker.FileID, m.Sticker.FileUniqueID}, true
	case m.Voice != nil:
		return fileRef{message.AttachmentVoice, m.Voice.FileID, m.Voice.FileUniqueID}, true
	case m.Document != nil:
		return fileRef{message.AttachmentDocument, m.Document.FileID, m.Document.FileUniqueID}, true
	case m.Video != nil:
		return fileRef{message.AttachmentVideo, m.Video.FileID, m.Video.FileUniqueID}, true
	case m.Animation != nil:
		return fileRef{message.AttachmentAnimation, m.Animation.FileID, m.Animation.FileUniqueID}, true
	default:
		return fileRef{}, false
	}
}

func (c *Controller) resolveAttachment(ctx context.Context, m *models.Message) *message.Attachment {
	ref, ok := extractFile(m)
	if !ok {
		return nil
	}
	return c.resolveFile(ctx, ref)
}

// resolveFile looks up the download link of a file. Failures are logged and
// the attachment is left out.
func (c *Controller) resolveFile(ctx context.Context, ref fileRef) *message.Attachment {
	att, err := c.getAttachment(ctx, ref)
	if err != nil {
		logs.CtxWarn(ctx, "[channel:telegram] resolve %s %s: %v", ref.typ, ref.uniqueID, err)
		return nil
	}
	return att
}

func (c *Controller) getAttachment(ctx context.Context, ref fileRef) (*message.Attachment, error) {
	file, err := c.api.GetFile(ctx, &bot.GetFileParams{FileID: ref.id})
	if err := c.Observe("getFile", err); err != nil {
		return nil, err
	}
	id := file.FileUniqueID
	if id == "" {
		id = ref.uniqueID
	}
	return &message.Attachment{
		ID:         id,
		Type:       ref.typ,
		URL:        c.api.FileDownloadLink(file),
		UploadID:   ref.id,
		Controller: c.Name(),
	}, nil
}

func (c *Controller) fetchChannel(ctx context.Context, id int64) (message.ChannelInfo, error) {
	chat, err := c.api.GetChat(ctx, &bot.GetChatParams{ChatID: id})
	if err := c.Observe("getChat", err); err != nil {
		return message.ChannelInfo{}, fmt.Errorf("get chat %d: %w", id, err)
	}
	return c.createChannel(ctx, refOfFullChat(chat))
}

func (c *Controller) fetchAccount(ctx context.Context, id int64) (message.AccountInfo, error) {
	chat, err := c.api.GetChat(ctx, &bot.GetChatParams{ChatID: id})
	if err := c.Observe("getChat", err); err != nil {
		return message.AccountInfo{}, fmt.Errorf("get chat %d: %w", id, err)
	}
	ref := refOfFullChat(chat)
	if ref.Type != models.ChatTypePrivate {
		return accountOfChat(ref), nil
	}
	return c.createAccount(ctx, &models.User{
		ID:        ref.ID,
		Username:  ref.Username,
		FirstName: ref.FirstName,
		LastName:  ref.LastName,
	}), nil
}

func (c *Controller) fetchPermissions(ctx context.Context, chatID int64) (message.Permissions, error) {
	member, err := c.api.GetChatMember(ctx, &bot.GetChatMemberParams{
		ChatID: chatID,
		UserID: c.botID.Load(),
	})
	if err := c.Observe("getChatMember", err); err != nil {
		return message.Permissions{}, fmt.Errorf("get bot membership: %w", err)
	}
	return memberPermissions(member), nil
}

// memberPermissions maps the bot's membership to canonical permissions.
// Editing and deleting its own messages needs no extra right.
func memberPermissions(m *models.ChatMember) message.Permissions {
	if m == nil {
		return message.Permissions{}
	}
	perms := message.Permissions{EditMessages: true, DeleteMessages: true}
	switch m.Type {
	case models.ChatMemberTypeOwner:
		perms.SendMessages = true
		perms.DeleteOtherMessages = true
	case models.ChatMemberTypeAdministrator:
		perms.SendMessages = true
		perms.DeleteOtherMessages = m.Administrator != nil && m.Administrator.CanDeleteMessages
	case models.ChatMemberTypeMember:
		perms.SendMessages = true
	case models.ChatMemberTypeRestricted:
		perms.SendMessages = m.Restricted != nil && m.Restricted.CanSendMessages
	default:
		return message.Permissions{}
	}
	return perms
}

func (c *Controller) fetchAvatar(ctx context.Context, userID int64) (*message.Attachment, error) {
	photos, err := c.api.GetUserProfilePhotos(ctx, &bot.GetUserProfilePhotosParams{
		UserID: userID,
		Limit:  1,
	})
	if err := c.Observe("getUserProfilePhotos", err); err != nil {
		return nil, err
	}
	if photos == nil || len(photos.Photos) == 0 || len(photos.Photos[0]) == 0 {
		return nil, nil
	}
	sizes := photos.Photos[0]
	largest := sizes[len(sizes)-1]
	return c.getAttachment(ctx, fileRef{
		typ:      message.AttachmentPhoto,
		id:       largest.FileID,
		uniqueID: largest.FileUniqueID,
	})
}

func unixTime(sec int) time.Time {
	return time.Unix(int64(sec), 0)
}
