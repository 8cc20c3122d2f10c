package vk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/SevereCloud/vksdk/v3/api"
	"github.com/SevereCloud/vksdk/v3/events"
	"github.com/SevereCloud/vksdk/v3/object"
	"github.com/bytedance/sonic"

	"github.com/tgifai/bridgekit/internal/event"
	"github.com/tgifai/bridgekit/internal/message"
	"github.com/tgifai/bridgekit/internal/pkg/logs"
	"github.com/tgifai/bridgekit/internal/pkg/utils"
)

// HandleUpdates emits new and edited messages written by users. Messages
// are emitted after the loop, new ones before edits.
func (c *Controller) HandleUpdates(ctx context.Context, updates []events.GroupEvent) error {
	c.handleMu.Lock()
	defer c.handleMu.Unlock()

	var received, edited []object.MessagesMessage
	for _, u := range updates {
		m, ok, err := decodeMessage(u)
		if err != nil {
			logs.CtxWarn(ctx, "[channel:vk] decode %s: %v", u.Type, err)
			continue
		}
		if !ok {
			logs.CtxDebug(ctx, "[channel:vk] skip update %s", u.Type)
			continue
		}
		// communities and the bot itself have negative ids
		if m.FromID <= 0 {
			continue
		}
		if u.Type == events.EventMessageNew {
			if c.Accepts(time.Unix(int64(m.Date), 0)) {
				received = append(received, m)
			}
			continue
		}
		ts := m.UpdateTime
		if ts == 0 {
			ts = m.Date
		}
		if c.Accepts(time.Unix(int64(ts), 0)) {
			edited = append(edited, m)
		}
	}

	for _, m := range received {
		logs.CtxDebug(ctx, "[channel:vk] message %d from %d: %s", localID(m), m.FromID, utils.Truncate80(m.Text))
		c.Emit(ctx, event.NewMessageEvent(event.MessageReceived, c.createMessage(ctx, m)))
	}
	for _, m := range edited {
		c.Emit(ctx, event.NewMessageEvent(event.MessageEdited, c.createMessage(ctx, m)))
	}
	return nil
}

// decodeMessage returns the message carried by a message_new or
// message_edit event. ok is false for every other event type.
func decodeMessage(u events.GroupEvent) (m object.MessagesMessage, ok bool, err error) {
	switch u.Type {
	case events.EventMessageNew:
		var obj events.MessageNewObject
		err = sonic.Unmarshal(u.Object, &obj)
		return obj.Message, true, err
	case events.EventMessageEdit:
		err = sonic.Unmarshal(u.Object, &m)
		return m, true, err
	default:
		return m, false, nil
	}
}

// localID is the id a message is addressed by inside its conversation.
func localID(m object.MessagesMessage) int64 {
	if m.ConversationMessageID != 0 {
		return int64(m.ConversationMessageID)
	}
	return int64(m.ID)
}

func (c *Controller) createMessage(ctx context.Context, m object.MessagesMessage) message.InMessage {
	ch := c.resolveChannel(ctx, int64(m.PeerID))
	out := message.InMessage{
		Channel:     ch,
		Account:     c.resolveAccount(ctx, int64(m.FromID)),
		Text:        m.Text,
		Tokens:      c.Tokenizer().Tokenize(m.Text, nil),
		Attachments: c.extractAttachments(m.Attachments),
		Forwarded:   []message.ForwardedMessage{},
		Metadata:    message.NewMetadata(localID(m), m.Text != ""),
	}
	for _, f := range m.FwdMessages {
		out.Forwarded = append(out.Forwarded, c.createForwarded(ctx, f))
	}
	if r := m.ReplyMessage; r != nil {
		out.Reply = &message.InMessage{
			Channel:     ch,
			Account:     c.resolveAccount(ctx, int64(r.FromID)),
			Text:        r.Text,
			Tokens:      c.Tokenizer().Tokenize(r.Text, nil),
			Attachments: c.extractAttachments(r.Attachments),
			Forwarded:   []message.ForwardedMessage{},
			Metadata:    message.NewMetadata(localID(*r), r.Text != ""),
		}
	}
	return out
}

// createForwarded describes one directly forwarded message. Forwards nested
// inside it are not expanded. VK does not say which conversation it came
// from, so the channel is unknown.
func (c *Controller) createForwarded(ctx context.Context, m object.MessagesMessage) message.ForwardedMessage {
	meta := message.Metadata{HasText: m.Text != ""}
	if id := localID(m); id != 0 {
		meta.MessageIDs = []int64{id}
	}
	return message.ForwardedMessage{
		ControllerName: c.Name(),
		InMessage: message.InMessage{
			Channel:     message.ChannelInfo{ID: int64(m.PeerID)},
			Account:     c.resolveAccount(ctx, int64(m.FromID)),
			Text:        m.Text,
			Tokens:      c.Tokenizer().Tokenize(m.Text, nil),
			Attachments: c.extractAttachments(m.Attachments),
			Forwarded:   []message.ForwardedMessage{},
			Metadata:    meta,
		},
	}
}

// ref builds the "<type><owner>_<id>[_<key>]" attachment string.
func ref(kind string, ownerID, id int, accessKey string) string {
	s := fmt.Sprintf("%s%d_%d", kind, ownerID, id)
	if accessKey != "" {
		s += "_" + accessKey
	}
	return s
}

// stickerImage picks a mid-sized rendition; the largest ones are oversized
// for chat use.
func stickerImage(s object.BaseSticker) string {
	switch n := len(s.Images); {
	case n == 0:
		return ""
	case n >= 3:
		return s.Images[n-3].URL
	default:
		return s.Images[n-1].URL
	}
}

func (c *Controller) extractAttachments(atts []object.MessagesMessageAttachment) []message.Attachment {
	out := []message.Attachment{}
	for _, a := range atts {
		switch a.Type {
		case "photo":
			p := a.Photo
			out = append(out, message.Attachment{
				ID:         ref("photo", p.OwnerID, p.ID, ""),
				Type:       message.AttachmentPhoto,
				URL:        p.MaxSize().URL,
				UploadID:   ref("photo", p.OwnerID, p.ID, p.AccessKey),
				Controller: c.Name(),
			})
		case "audio_message":
			v := a.AudioMessage
			key := ref("doc", v.OwnerID, v.ID, "")
			out = append(out, message.Attachment{
				ID:         key,
				Type:       message.AttachmentVoice,
				URL:        v.LinkOgg,
				UploadID:   key,
				Controller: c.Name(),
			})
		case "sticker":
			id := strconv.Itoa(a.Sticker.StickerID)
			out = append(out, message.Attachment{
				ID:         id,
				Type:       message.AttachmentSticker,
				URL:        stickerImage(a.Sticker),
				UploadID:   id,
				Controller: c.Name(),
			})
		case "doc":
			d := a.Doc
			typ := message.AttachmentDocument
			if strings.EqualFold(d.Ext, "gif") {
				typ = message.AttachmentAnimation
			}
			key := ref("doc", d.OwnerID, d.ID, "")
			out = append(out, message.Attachment{
				ID:         key,
				Type:       typ,
				URL:        d.URL,
				UploadID:   key,
				Controller: c.Name(),
			})
		}
	}
	return out
}

// resolveChannel falls back to a bare channel when the lookup fails.
func (c *Controller) resolveChannel(ctx context.Context, peerID int64) message.ChannelInfo {
	info, err := c.GetChannelInfo(ctx, peerID)
	if err != nil {
		logs.CtxWarn(ctx, "[channel:vk] conversation %d: %v", peerID, err)
		return message.ChannelInfo{ID: peerID}
	}
	return info
}

func (c *Controller) resolveAccount(ctx context.Context, id int64) message.AccountInfo {
	info, err := c.GetAccountInfo(ctx, id)
	if err != nil {
		logs.CtxWarn(ctx, "[channel:vk] account %d: %v", id, err)
		return message.AccountInfo{ID: id}
	}
	return info
}

func (c *Controller) fetchChannel(ctx context.Context, peerID int64) (message.ChannelInfo, error) {
	resp, err := c.api.MessagesGetConversationsByID(api.Params{"peer_ids": peerID}.WithContext(ctx))
	if err := c.Observe("messages.getConversationsById", err); err != nil {
		return message.ChannelInfo{}, err
	}
	if len(resp.Items) == 0 {
		return message.ChannelInfo{}, fmt.Errorf("conversation %d: %w", peerID, errNotFound)
	}
	conv := resp.Items[0]
	canWrite := bool(conv.CanWrite.Allowed)

	if conv.Peer.Type == "user" {
		user, err := c.GetAccountInfo(ctx, peerID)
		if err != nil {
			return message.ChannelInfo{}, err
		}
		title := strings.TrimSpace(user.FirstName + " " + user.LastName)
		if user.Username != "" {
			title += " (" + user.Username + ")"
		}
		return message.ChannelInfo{
			ID:    peerID,
			Title: title,
			Type:  message.ChannelDirect,
			Permissions: message.Permissions{
				SendMessages:   canWrite,
				EditMessages:   canWrite,
				DeleteMessages: canWrite,
			},
		}, nil
	}

	settings := conv.ChatSettings
	canManage := int64(settings.OwnerID) == -c.config.GroupID
	return message.ChannelInfo{
		ID:    peerID,
		Title: settings.Title,
		Type:  message.ChannelGroup,
		Permissions: message.Permissions{
			SendMessages:        canWrite,
			EditMessages:        canManage,
			DeleteMessages:      canManage,
			DeleteOtherMessages: canManage,
		},
	}, nil
}

func (c *Controller) fetchAccount(ctx context.Context, id int64) (message.AccountInfo, error) {
	if id > 0 {
		users, err := c.api.UsersGet(api.Params{
			"user_ids": id,
			"fields":   "screen_name,photo_100",
		}.WithContext(ctx))
		if err := c.Observe("users.get", err); err != nil {
			return message.AccountInfo{}, err
		}
		if len(users) == 0 {
			return message.AccountInfo{}, fmt.Errorf("user %d: %w", id, errNotFound)
		}
		u := users[0]
		return message.AccountInfo{
			ID:        id,
			Username:  u.ScreenName,
			FirstName: u.FirstName,
			LastName:  u.LastName,
			AvatarURL: u.Photo100,
		}, nil
	}

	groups, err := c.getGroup(ctx, -id)
	if err := c.Observe("groups.getById", err); err != nil {
		return message.AccountInfo{}, err
	}
	if len(groups) == 0 {
		return message.AccountInfo{}, fmt.Errorf("group %d: %w", -id, errNotFound)
	}
	g := groups[0]
	return message.AccountInfo{
		ID:        id,
		Username:  g.ScreenName,
		FirstName: g.Name,
		AvatarURL: g.Photo100,
	}, nil
}

// getGroup reads groups.getById, which returns a bare list before API 5.194
// and an object with a groups list since.
func (c *Controller) getGroup(ctx context.Context, groupID int64) ([]object.GroupsGroup, error) {
	var raw json.RawMessage
	err := c.api.RequestUnmarshal("groups.getById", &raw, api.Params{
		"group_ids": groupID,
		"fields":    "screen_name,photo_100",
	}.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	var groups []object.GroupsGroup
	if len(raw) > 0 && raw[0] == '[' {
		err = sonic.Unmarshal(raw, &groups)
		return groups, err
	}
	var wrapped struct {
		Groups []object.GroupsGroup `json:"groups"`
	}
	err = sonic.Unmarshal(raw, &wrapped)
	return wrapped.Groups, err
}

var errNotFound = errors.New("not found")
