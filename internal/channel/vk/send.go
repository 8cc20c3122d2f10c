package vk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/SevereCloud/vksdk/v3/api"
	"github.com/bytedance/sonic"

	"github.com/tgifai/bridgekit/internal/channel"
	"github.com/tgifai/bridgekit/internal/message"
	"github.com/tgifai/bridgekit/internal/pkg/logs"
	"github.com/tgifai/bridgekit/internal/pkg/utils"
)

// maxAttachments is the messages.send limit per call.
const maxAttachments = 10

const (
	docTypeDoc          = "doc"
	docTypeAudioMessage = "audio_message"
)

// uploaded is an attachment ready for the attachment parameter.
type uploaded struct {
	ref    string
	origin message.ResolvedAttachment
}

// forward is the JSON value of the forward parameter. With IsReply set it
// quotes the message instead of forwarding it.
type forward struct {
	PeerID                 int64   `json:"peer_id"`
	ConversationMessageIDs []int64 `json:"conversation_message_ids"`
	IsReply                bool    `json:"is_reply,omitempty"`
}

type sendRequest struct {
	PeerID      int64
	Message     string
	Attachments []string
	StickerID   int
	Forward     *forward
}

// sendResult is one item of the messages.send response for peer_ids.
type sendResult struct {
	PeerID                int64           `json:"peer_id"`
	MessageID             int64           `json:"message_id"`
	ConversationMessageID int64           `json:"conversation_message_id"`
	Error                 json.RawMessage `json:"error"`
}

func (r sendRequest) params(ctx context.Context) (api.Params, error) {
	// peer_ids instead of peer_id, so the response carries the conversation
	// message id
	p := api.Params{
		"peer_ids":         r.PeerID,
		"random_id":        utils.RandomID(),
		"dont_parse_links": 1,
	}
	if r.Message != "" {
		p["message"] = r.Message
	}
	if len(r.Attachments) > 0 {
		p["attachment"] = strings.Join(r.Attachments, ",")
	}
	if r.StickerID != 0 {
		p["sticker_id"] = r.StickerID
	}
	if r.Forward != nil {
		fwd, err := sonic.MarshalString(r.Forward)
		if err != nil {
			return nil, fmt.Errorf("encode forward: %w", err)
		}
		p["forward"] = fwd
	}
	return p.WithContext(ctx), nil
}

// send issues one messages.send and returns the conversation message id.
func (c *Controller) send(ctx context.Context, r sendRequest) (int64, error) {
	params, err := r.params(ctx)
	if err != nil {
		return 0, err
	}
	var results []sendResult
	err = c.api.RequestUnmarshal("messages.send", &results, params)
	if err == nil {
		switch {
		case len(results) == 0:
			err = fmt.Errorf("messages.send: empty response")
		case len(results[0].Error) > 0 && string(results[0].Error) != "null":
			err = fmt.Errorf("messages.send: %s", results[0].Error)
		}
	}
	if err := c.Observe("messages.send", err); err != nil {
		return 0, err
	}
	return results[0].ConversationMessageID, nil
}

func (c *Controller) SendMessage(ctx context.Context, peerID int64, msg message.OutMessage) (message.SendedMessage, error) {
	resolved, err := c.ResolveOutMessage(msg)
	if err != nil {
		return message.SendedMessage{}, err
	}
	return c.SendResolvedMessage(ctx, peerID, resolved)
}

// SendResolvedMessage sends text together with up to ten uploaded
// attachments per call, then native stickers, then forwards. The id of a
// shared call is recorded once for every part it carries. A reply rides on
// the first call.
func (c *Controller) SendResolvedMessage(ctx context.Context, peerID int64, msg message.ResolvedMessage) (message.SendedMessage, error) {
	var reply *forward
	if msg.Reply != nil && len(msg.Reply.MessageIDs) > 0 {
		reply = &forward{
			PeerID:                 peerID,
			ConversationMessageIDs: []int64{msg.Reply.First()},
			IsReply:                true,
		}
	}
	extra := channel.NewExtra(reply)
	var acc channel.SendAccumulator

	var (
		files    []uploaded
		stickers []message.ResolvedAttachment
	)
	for _, a := range channel.SortAttachments(msg.Attachments) {
		if c.isNativeSticker(a) {
			stickers = append(stickers, a)
			continue
		}
		att, err := c.uploadAttachment(ctx, peerID, a)
		if err != nil {
			return message.SendedMessage{}, fmt.Errorf("upload %s: %w", a.Type, err)
		}
		files = append(files, uploaded{ref: att, origin: a})
	}

	chunks := channel.Chunk(files, maxAttachments)
	if msg.Text != "" && len(chunks) == 0 {
		chunks = [][]uploaded{nil}
	}
	for i, chunk := range chunks {
		r := sendRequest{PeerID: peerID}
		if x := extra.Take(); x != nil {
			r.Forward = *x
		}
		withText := i == 0 && msg.Text != ""
		if withText {
			r.Message = msg.Text
		}
		for _, f := range chunk {
			r.Attachments = append(r.Attachments, f.ref)
		}
		id, err := c.send(ctx, r)
		if err != nil {
			return message.SendedMessage{}, fmt.Errorf("send message: %w", err)
		}
		if withText {
			acc.Record(id, true, nil)
		}
		for _, f := range chunk {
			acc.Record(id, false, &message.SendedAttachment{ID: f.ref, UploadID: f.ref, Origin: f.origin})
		}
	}

	for _, st := range stickers {
		stickerID, err := strconv.Atoi(st.Source.ID)
		if err != nil {
			return message.SendedMessage{}, fmt.Errorf("sticker id %q: %w", st.Source.ID, err)
		}
		r := sendRequest{PeerID: peerID, StickerID: stickerID}
		if x := extra.Take(); x != nil {
			r.Forward = *x
		}
		id, err := c.send(ctx, r)
		if err != nil {
			return message.SendedMessage{}, fmt.Errorf("send sticker: %w", err)
		}
		acc.Record(id, false, &message.SendedAttachment{ID: st.Source.ID, UploadID: st.Source.ID, Origin: st})
	}

	for _, f := range msg.Forwarded {
		if x := extra.Take(); x != nil && *x != nil {
			logs.CtxDebug(ctx, "[channel:vk] reply dropped, message starts with a forward")
		}
		id, err := c.send(ctx, sendRequest{
			PeerID: peerID,
			Forward: &forward{
				PeerID:                 f.ChannelID,
				ConversationMessageIDs: []int64{f.MessageID},
			},
		})
		if err != nil {
			return message.SendedMessage{}, fmt.Errorf("forward %d/%d: %w", f.ChannelID, f.MessageID, err)
		}
		acc.Record(id, false, nil)
	}

	return acc.Result()
}

func (c *Controller) isNativeSticker(a message.ResolvedAttachment) bool {
	return a.Type == message.AttachmentSticker &&
		a.ControllerName == c.Name() &&
		a.Source.Kind == message.SourceReuse
}

// uploadAttachment returns the attachment string for a. Attachments already
// on VK are passed by reference.
func (c *Controller) uploadAttachment(ctx context.Context, peerID int64, a message.ResolvedAttachment) (string, error) {
	var (
		data []byte
		name = a.Source.FileName
	)
	switch a.Source.Kind {
	case message.SourceReuse:
		return a.Source.ID, nil
	case message.SourceBuffer:
		data = a.Source.Data
	default:
		var err error
		data, err = c.download(ctx, a.Source.URL)
		if err := c.Observe("download", err); err != nil {
			return "", err
		}
		if name == "" {
			name = path.Base(strings.SplitN(a.Source.URL, "?", 2)[0])
		}
	}
	if name == "" || name == "." || name == "/" {
		name = defaultFileName(a.Type)
	}

	switch a.Type {
	case message.AttachmentPhoto, message.AttachmentSticker:
		return c.uploadPhoto(peerID, data)
	case message.AttachmentVoice:
		return c.uploadDoc(peerID, docTypeAudioMessage, name, data)
	default:
		return c.uploadDoc(peerID, docTypeDoc, name, data)
	}
}

func (c *Controller) uploadPhoto(peerID int64, data []byte) (string, error) {
	photos, err := c.api.UploadMessagesPhoto(int(peerID), bytes.NewReader(data))
	if err := c.Observe("photos.saveMessagesPhoto", err); err != nil {
		return "", err
	}
	if len(photos) == 0 {
		return "", fmt.Errorf("photos.saveMessagesPhoto: empty response")
	}
	p := photos[0]
	return ref("photo", p.OwnerID, p.ID, p.AccessKey), nil
}

func (c *Controller) uploadDoc(peerID int64, docType, name string, data []byte) (string, error) {
	saved, err := c.api.UploadMessagesDoc(int(peerID), docType, name, "", bytes.NewReader(data))
	if err := c.Observe("docs.save", err); err != nil {
		return "", err
	}
	switch saved.Type {
	case docTypeAudioMessage:
		return ref("doc", saved.AudioMessage.OwnerID, saved.AudioMessage.ID, ""), nil
	case docTypeDoc:
		return ref("doc", saved.Doc.OwnerID, saved.Doc.ID, ""), nil
	default:
		return "", fmt.Errorf("docs.save: unexpected type %q", saved.Type)
	}
}

func defaultFileName(t message.AttachmentType) string {
	switch t {
	case message.AttachmentPhoto, message.AttachmentSticker:
		return "image.jpg"
	case message.AttachmentVoice:
		return "voice.ogg"
	case message.AttachmentVideo:
		return "video.mp4"
	case message.AttachmentAnimation:
		return "animation.gif"
	default:
		return "file"
	}
}

func (c *Controller) EditMessage(ctx context.Context, peerID int64, msg message.OutMessage) (*message.SendedMessage, error) {
	resolved, err := c.ResolveOutMessage(msg)
	if err != nil {
		return nil, err
	}
	return c.EditResolvedMessage(ctx, peerID, resolved)
}

// editScript resolves the conversation message id and edits it in one
// round trip. Attachments and forwards of the message are kept.
const editScript = `var m = API.messages.getByConversationMessageId({"peer_id": %d, "conversation_message_ids": %d}).items[0];
var atts = [];
var i = 0;
while (i < m.attachments.length) {
  var a = m.attachments[i];
  var o = a[a.type];
  if (o.access_key) {
    atts.push(a.type + o.owner_id + "_" + o.id + "_" + o.access_key);
  } else {
    atts.push(a.type + o.owner_id + "_" + o.id);
  }
  i = i + 1;
}
return API.messages.edit({"peer_id": %d, "message_id": m.id, "message": %s, "attachment": atts, "keep_forward_messages": 1, "keep_snippets": 1, "dont_parse_links": 1});`

// EditResolvedMessage edits the text of the first platform message.
func (c *Controller) EditResolvedMessage(ctx context.Context, peerID int64, msg message.ResolvedMessage) (*message.SendedMessage, error) {
	meta, err := channel.CheckEditShape(msg)
	if err != nil {
		return nil, err
	}
	if msg.Text == "" {
		return nil, nil
	}
	quoted, err := sonic.MarshalString(msg.Text)
	if err != nil {
		return nil, fmt.Errorf("encode text: %w", err)
	}
	code := fmt.Sprintf(editScript, peerID, meta.First(), peerID, quoted)

	var ok int
	err = c.api.Execute(code, &ok)
	if err := c.Observe("messages.edit", err); err != nil {
		return nil, fmt.Errorf("edit message %d: %w", meta.First(), err)
	}
	return &message.SendedMessage{
		Attachments: []message.SendedAttachment{},
		Metadata:    meta.Clone(),
	}, nil
}

const deleteScript = `var items = API.messages.getByConversationMessageId({"peer_id": %d, "conversation_message_ids": "%s"}).items;
return API.messages.delete({"message_ids": items@.id, "delete_for_all": 1});`

// DeleteMessage deletes all ids in one execute call. A shared call can be
// listed several times in meta, so ids are de-duplicated first.
func (c *Controller) DeleteMessage(ctx context.Context, peerID int64, meta message.Metadata) error {
	ids := slices.Clone(meta.MessageIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	if len(ids) == 0 {
		return nil
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}

	var out interface{}
	err := c.api.Execute(fmt.Sprintf(deleteScript, peerID, strings.Join(parts, ",")), &out)
	if err := c.Observe("messages.delete", err); err != nil {
		return fmt.Errorf("delete messages %v: %w", ids, err)
	}
	logs.CtxDebug(ctx, "[channel:vk] deleted %d messages in %d", len(ids), peerID)
	return nil
}
