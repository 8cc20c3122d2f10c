package vk

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/SevereCloud/vksdk/v3/api"
	"github.com/SevereCloud/vksdk/v3/events"
	"github.com/SevereCloud/vksdk/v3/object"

	"github.com/tgifai/bridgekit/internal/channel"
	"github.com/tgifai/bridgekit/internal/event"
	"github.com/tgifai/bridgekit/internal/message"
	"github.com/tgifai/bridgekit/internal/text"
)

const chatPeer = 2_000_000_001

func TestTokenizer(t *testing.T) {
	tokens := NewTokenizer().Tokenize("hi [id7|Ivan] from [club5|Bridge]", nil)
	want := []text.Token{
		text.NewText("hi "),
		text.NewMention("Ivan", "7", ""),
		text.NewText(" from "),
		text.NewLink("Bridge", "https://vk.com/public5"),
	}
	if len(tokens) != len(want) {
		t.Fatalf("tokens = %+v", tokens)
	}
	for i := range want {
		if tokens[i].Kind != want[i].Kind || tokens[i].Text != want[i].Text ||
			tokens[i].ID != want[i].ID || tokens[i].URL != want[i].URL {
			t.Errorf("token %d = %+v, want %+v", i, tokens[i], want[i])
		}
	}

	got, err := NewFormatter().Format(tokens)
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	if got != "hi [id7|Ivan] from Bridge (https://vk.com/public5)" {
		t.Errorf("formatted = %q", got)
	}
}

func TestFormatter_Link(t *testing.T) {
	tests := []struct {
		name string
		tok  text.Token
		want string
	}{
		{"labelled", text.NewLink("docs", "https://x.test"), "docs (https://x.test)"},
		{"bare", text.NewLink("https://x.test", "https://x.test"), "https://x.test"},
		{"empty label", text.NewLink("", "https://x.test"), "https://x.test"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewFormatter().Format([]text.Token{tt.tok})
			if err != nil {
				t.Fatalf("format: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSendResolvedMessage_CompositeIdentity(t *testing.T) {
	c, fake, _ := newTestController(t)
	msg := message.ResolvedMessage{
		Text: "hello",
		Attachments: []message.ResolvedAttachment{
			{Type: message.AttachmentSticker, Source: message.ReuseSource("42"), ControllerName: "vk"},
			{Type: message.AttachmentPhoto, Source: message.URLSource("https://x.test/a.png"), ControllerName: "tg"},
			{Type: message.AttachmentPhoto, Source: message.BufferSource("b.png", []byte("b")), ControllerName: "tg"},
		},
		Forwarded: []message.ForwardRef{{ControllerName: "vk", ChannelID: chatPeer, MessageID: 5}},
		Reply:     &message.Metadata{MessageIDs: []int64{9}},
	}

	sent, err := c.SendResolvedMessage(context.Background(), chatPeer, msg)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := len(sent.Metadata.MessageIDs); got != msg.Parts() {
		t.Fatalf("metadata has %d ids, message has %d parts", got, msg.Parts())
	}
	wantIDs := []int64{101, 101, 101, 102, 103}
	if !slices.Equal(sent.Metadata.MessageIDs, wantIDs) {
		t.Errorf("ids = %v, want %v", sent.Metadata.MessageIDs, wantIDs)
	}
	if !sent.Metadata.HasText {
		t.Error("HasText should be set")
	}

	wantCalls := []string{"download", "upload.photo", "upload.photo", "messages.send", "messages.send", "messages.send"}
	if calls := fake.Calls(); !slices.Equal(calls, wantCalls) {
		t.Fatalf("calls = %v, want %v", calls, wantCalls)
	}

	first := sendParams(t, fake, 0)
	if first["message"] != "hello" || first["attachment"] != "photo1_1,photo1_2" {
		t.Errorf("first send = %v", first)
	}
	if first["peer_ids"] != int64(chatPeer) || first["dont_parse_links"] != 1 {
		t.Errorf("first send = %v", first)
	}
	if fwd := sentForward(t, first); fwd == nil || !fwd.IsReply || fwd.ConversationMessageIDs[0] != 9 {
		t.Errorf("reply should ride on the first call: %+v", fwd)
	}
	sticker := sendParams(t, fake, 1)
	if sticker["sticker_id"] != 42 || sentForward(t, sticker) != nil {
		t.Errorf("sticker send = %v", sticker)
	}
	if fwd := sentForward(t, sendParams(t, fake, 2)); fwd == nil || fwd.IsReply || fwd.PeerID != chatPeer || fwd.ConversationMessageIDs[0] != 5 {
		t.Errorf("forward send = %+v", fwd)
	}
	if len(sent.Attachments) != 3 {
		t.Errorf("attachments = %+v", sent.Attachments)
	}
}

func TestSendResolvedMessage_Chunks(t *testing.T) {
	c, fake, _ := newTestController(t)
	var atts []message.ResolvedAttachment
	for i := 0; i < 12; i++ {
		atts = append(atts, message.ResolvedAttachment{
			Type:   message.AttachmentDocument,
			Source: message.BufferSource("", []byte("x")),
		})
	}
	msg := message.ResolvedMessage{Attachments: atts}

	sent, err := c.SendResolvedMessage(context.Background(), chatPeer, msg)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(fake.sends) != 2 {
		t.Fatalf("sends = %+v", fake.sends)
	}
	for i, want := range []int{10, 2} {
		refs, _ := sendParams(t, fake, i)["attachment"].(string)
		if n := len(strings.Split(refs, ",")); n != want {
			t.Errorf("send %d carries %d attachments, want %d", i, n, want)
		}
	}
	if got := len(sent.Metadata.MessageIDs); got != 12 {
		t.Fatalf("metadata has %d ids, want 12", got)
	}
	if sent.Metadata.HasText {
		t.Error("HasText should not be set")
	}
	if ids := sent.Metadata.MessageIDs; ids[9] != 101 || ids[10] != 102 {
		t.Errorf("ids = %v", ids)
	}
	if fake.uploads[0] != "file" {
		t.Errorf("default name = %q", fake.uploads[0])
	}
}

func TestSendResolvedMessage_UploadKinds(t *testing.T) {
	c, fake, _ := newTestController(t)
	msg := message.ResolvedMessage{
		Attachments: []message.ResolvedAttachment{
			{Type: message.AttachmentPhoto, Source: message.ReuseSource("photo-3_4_key"), ControllerName: "vk"},
			{Type: message.AttachmentSticker, Source: message.URLSource("https://tg.test/s.webp"), ControllerName: "tg"},
			{Type: message.AttachmentVoice, Source: message.URLSource("https://tg.test/v.ogg?x=1"), ControllerName: "tg"},
		},
	}
	if _, err := c.SendResolvedMessage(context.Background(), chatPeer, msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	want := []string{"download", "upload.photo", "download", "upload.audio_message", "messages.send"}
	if calls := fake.Calls(); !slices.Equal(calls, want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	refs, _ := sendParams(t, fake, 0)["attachment"].(string)
	if !strings.HasPrefix(refs, "photo-3_4_key,") {
		t.Errorf("reused attachment should pass through: %v", refs)
	}
	if fake.uploads[1] != "v.ogg" {
		t.Errorf("query should be stripped from the name: %q", fake.uploads[1])
	}
}

func TestSendResolvedMessage_DownloadFailure(t *testing.T) {
	c, fake, _ := newTestController(t)
	msg := message.ResolvedMessage{
		Text: "x",
		Attachments: []message.ResolvedAttachment{
			{Type: message.AttachmentPhoto, Source: message.URLSource("https://x.test/missing.png")},
		},
	}
	if _, err := c.SendResolvedMessage(context.Background(), chatPeer, msg); err == nil {
		t.Fatal("expected an error")
	}
	if len(fake.sends) != 0 {
		t.Fatalf("nothing should be sent, got %+v", fake.sends)
	}
}

func TestSendResolvedMessage_Empty(t *testing.T) {
	c, fake, _ := newTestController(t)
	_, err := c.SendResolvedMessage(context.Background(), chatPeer, message.ResolvedMessage{})
	if !errors.Is(err, channel.ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
	if n := len(fake.Calls()); n != 0 {
		t.Fatalf("expected no calls, got %d", n)
	}
}

func TestEditResolvedMessage(t *testing.T) {
	c, fake, _ := newTestController(t)
	meta := message.Metadata{MessageIDs: []int64{101, 101}, HasText: true}
	att := message.ResolvedAttachment{Type: message.AttachmentPhoto, Source: message.ReuseSource("photo1_1"), ControllerName: "vk"}

	_, err := c.EditResolvedMessage(context.Background(), chatPeer, message.ResolvedMessage{Text: "new", Metadata: &meta})
	if !errors.Is(err, channel.ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
	if n := len(fake.Calls()); n != 0 {
		t.Fatalf("shape guard must run before any call, got %d", n)
	}

	got, err := c.EditResolvedMessage(context.Background(), chatPeer, message.ResolvedMessage{
		Text:        `say "hi"`,
		Attachments: []message.ResolvedAttachment{att},
		Metadata:    &meta,
	})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if got == nil || !slices.Equal(got.Metadata.MessageIDs, meta.MessageIDs) {
		t.Fatalf("edited = %+v", got)
	}
	script := fake.scripts[0]
	if !strings.Contains(script, `"conversation_message_ids": 101`) || !strings.Contains(script, `"message": "say \"hi\""`) {
		t.Errorf("script = %s", script)
	}

	got, err = c.EditResolvedMessage(context.Background(), chatPeer, message.ResolvedMessage{
		Attachments: []message.ResolvedAttachment{att, att},
		Metadata:    &meta,
	})
	if err != nil || got != nil {
		t.Fatalf("edit without text = (%+v, %v), want nil", got, err)
	}
}

func TestDeleteMessage(t *testing.T) {
	c, fake, _ := newTestController(t)
	err := c.DeleteMessage(context.Background(), chatPeer, message.Metadata{MessageIDs: []int64{102, 101, 101}})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(fake.scripts) != 1 || !strings.Contains(fake.scripts[0], `"conversation_message_ids": "101,102"`) {
		t.Fatalf("scripts = %v", fake.scripts)
	}

	if err := c.DeleteMessage(context.Background(), chatPeer, message.Metadata{}); err != nil {
		t.Fatalf("empty delete: %v", err)
	}
	if len(fake.scripts) != 1 {
		t.Error("empty metadata should not call the platform")
	}
}

func chatConversation(t *testing.T, fake *fakeAPI) {
	fake.convs[chatPeer] = decodeJSON[object.MessagesConversation](t, obj{
		"peer":          obj{"id": chatPeer, "type": "chat", "local_id": 1},
		"can_write":     obj{"allowed": true},
		"chat_settings": obj{"title": "Room", "owner_id": -5},
	})
}

func TestHandleUpdates(t *testing.T) {
	c, fake, rec := newTestController(t)
	chatConversation(t, fake)
	startController(t, c)

	now := testNow.Unix()
	incoming := obj{
		"conversation_message_id": 11,
		"date":                    now,
		"peer_id":                 chatPeer,
		"from_id":                 7,
		"text":                    "[id7|Ivan] look",
		"attachments": []obj{{
			"type": "photo",
			"photo": obj{"id": 4, "owner_id": -3, "access_key": "key", "sizes": []obj{
				{"type": "s", "url": "https://vk.test/s.jpg", "width": 10, "height": 10},
				{"type": "x", "url": "https://vk.test/x.jpg", "width": 100, "height": 100},
			}},
		}},
		"fwd_messages": []obj{{
			"from_id":      7,
			"text":         "outer",
			"fwd_messages": []obj{{"from_id": -5, "text": "inner"}},
		}},
		"reply_message": obj{"conversation_message_id": 10, "from_id": 7, "text": "earlier"},
	}
	updates := []events.GroupEvent{
		messageUpdate(t, events.EventMessageEdit, obj{
			"conversation_message_id": 9, "date": now - 60, "update_time": now + 1,
			"peer_id": chatPeer, "from_id": 7, "text": "fixed",
		}),
		messageUpdate(t, events.EventMessageNew, incoming),
		messageUpdate(t, events.EventMessageNew, obj{"date": now, "peer_id": chatPeer, "from_id": -5, "text": "from a community"}),
		messageUpdate(t, events.EventMessageNew, obj{"date": now - 5, "peer_id": chatPeer, "from_id": 7, "text": "backlog"}),
		{Type: events.EventWallPostNew},
	}
	if err := c.HandleUpdates(context.Background(), updates); err != nil {
		t.Fatalf("handle: %v", err)
	}

	evts := rec.Events()
	if len(evts) != 2 {
		t.Fatalf("events = %+v", evts)
	}
	if evts[0].Name != event.MessageReceived || evts[1].Name != event.MessageEdited {
		t.Fatalf("received must come before edited: %s, %s", evts[0].Name, evts[1].Name)
	}

	msg := evts[0].Message
	if msg.Channel.Title != "Room" || msg.Channel.Type != message.ChannelGroup || !msg.Channel.Permissions.DeleteOtherMessages {
		t.Errorf("channel = %+v", msg.Channel)
	}
	if msg.Account.Username != "ivanp" || msg.Account.AvatarURL != "https://vk.test/7.jpg" {
		t.Errorf("account = %+v", msg.Account)
	}
	if len(msg.Tokens) != 2 || msg.Tokens[0].Kind != text.KindMention || msg.Tokens[0].ID != "7" {
		t.Errorf("tokens = %+v", msg.Tokens)
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("attachments = %+v", msg.Attachments)
	}
	if a := msg.Attachments[0]; a.ID != "photo-3_4" || a.UploadID != "photo-3_4_key" || a.URL != "https://vk.test/x.jpg" {
		t.Errorf("photo = %+v", a)
	}
	if !slices.Equal(msg.Metadata.MessageIDs, []int64{11}) || !msg.Metadata.HasText {
		t.Errorf("metadata = %+v", msg.Metadata)
	}
	if len(msg.Forwarded) != 1 || msg.Forwarded[0].Text != "outer" || msg.Forwarded[0].ControllerName != "vk" {
		t.Fatalf("forwards = %+v", msg.Forwarded)
	}
	if nested := msg.Forwarded[0].Forwarded; len(nested) != 0 {
		t.Errorf("a forward of a forward should not be expanded: %+v", nested)
	}
	if msg.Reply == nil || msg.Reply.Text != "earlier" || msg.Reply.Metadata.First() != 10 {
		t.Errorf("reply = %+v", msg.Reply)
	}
	if evts[1].Message.Text != "fixed" {
		t.Errorf("edited = %+v", evts[1].Message)
	}

	// conversation and user lookups are cached across the batch
	calls := fake.Calls()
	count := func(method string) int {
		n := 0
		for _, m := range calls {
			if m == method {
				n++
			}
		}
		return n
	}
	if count("messages.getConversationsById") != 1 || count("users.get") != 1 || count("groups.getById") != 0 {
		t.Errorf("calls = %v", calls)
	}
}

func TestHandleUpdates_Attachments(t *testing.T) {
	c, fake, rec := newTestController(t)
	chatConversation(t, fake)
	startController(t, c)

	update := messageUpdate(t, events.EventMessageNew, obj{
		"conversation_message_id": 12,
		"date":                    testNow.Unix(),
		"peer_id":                 chatPeer,
		"from_id":                 7,
		"attachments": []obj{
			{"type": "sticker", "sticker": obj{"sticker_id": 42, "product_id": 1, "images": []obj{
				{"url": "https://vk.test/64.png", "width": 64, "height": 64},
				{"url": "https://vk.test/128.png", "width": 128, "height": 128},
				{"url": "https://vk.test/256.png", "width": 256, "height": 256},
				{"url": "https://vk.test/512.png", "width": 512, "height": 512},
			}}},
			{"type": "audio_message", "audio_message": obj{"id": 8, "owner_id": 7, "link_ogg": "https://vk.test/v.ogg"}},
			{"type": "doc", "doc": obj{"id": 9, "owner_id": 7, "ext": "GIF", "url": "https://vk.test/a.gif"}},
			{"type": "wall", "wall": obj{"id": 1}},
		},
	})
	if err := c.HandleUpdates(context.Background(), []events.GroupEvent{update}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	evts := rec.Events()
	if len(evts) != 1 {
		t.Fatalf("events = %+v", evts)
	}
	msg := evts[0].Message
	want := []message.Attachment{
		{ID: "42", Type: message.AttachmentSticker, URL: "https://vk.test/128.png", UploadID: "42"},
		{ID: "doc7_8", Type: message.AttachmentVoice, URL: "https://vk.test/v.ogg", UploadID: "doc7_8"},
		{ID: "doc7_9", Type: message.AttachmentAnimation, URL: "https://vk.test/a.gif", UploadID: "doc7_9"},
	}
	if len(msg.Attachments) != len(want) {
		t.Fatalf("attachments = %+v", msg.Attachments)
	}
	for i, w := range want {
		got := msg.Attachments[i]
		if got.ID != w.ID || got.Type != w.Type || got.URL != w.URL || got.UploadID != w.UploadID || got.Controller != "vk" {
			t.Errorf("attachment %d = %+v, want %+v", i, got, w)
		}
	}
	if msg.Metadata.HasText {
		t.Error("HasText should not be set")
	}
}

func TestHandleUpdates_NotRunning(t *testing.T) {
	c, _, rec := newTestController(t)
	update := messageUpdate(t, events.EventMessageNew, obj{"date": testNow.Unix(), "peer_id": 7, "from_id": 7, "text": "x"})
	if err := c.HandleUpdates(context.Background(), []events.GroupEvent{update}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if n := len(rec.Events()); n != 0 {
		t.Fatalf("stopped controller emitted %d events", n)
	}
}

func TestStart_DeliversPolledUpdates(t *testing.T) {
	fake := newFakeAPI()
	chatConversation(t, fake)
	rec := &recorder{}
	poller := func(ctx context.Context, handle func(context.Context, []events.GroupEvent)) error {
		handle(ctx, []events.GroupEvent{messageUpdate(t, events.EventMessageNew, obj{
			"conversation_message_id": 3, "date": testNow.Unix() + 1, "peer_id": chatPeer, "from_id": 7, "text": "polled",
		})})
		<-ctx.Done()
		return nil
	}
	c, err := New("vk", Config{Token: "t", GroupID: 5}, channel.Deps{Publisher: rec},
		WithAPI(fake), WithPoller(poller), WithDownloader(fake.Download),
		WithClock(func() time.Time { return testNow }),
	)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	startController(t, c)

	deadline := time.Now().Add(2 * time.Second)
	for len(rec.Events()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("polled update was not emitted")
		}
		time.Sleep(time.Millisecond)
	}
	if got := rec.Events()[0].Message.Text; got != "polled" {
		t.Errorf("text = %q", got)
	}
}

func TestNew_CustomAPINeedsPoller(t *testing.T) {
	_, err := New("vk", Config{Token: "t", GroupID: 5}, channel.Deps{}, WithAPI(newFakeAPI()))
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestGetChannelInfo_Direct(t *testing.T) {
	c, fake, _ := newTestController(t)
	fake.convs[7] = decodeJSON[object.MessagesConversation](t, obj{
		"peer":      obj{"id": 7, "type": "user", "local_id": 7},
		"can_write": obj{"allowed": true},
	})

	info, err := c.GetChannelInfo(context.Background(), 7)
	if err != nil {
		t.Fatalf("channel info: %v", err)
	}
	if info.Type != message.ChannelDirect || info.Title != "Ivan Petrov (ivanp)" {
		t.Errorf("info = %+v", info)
	}
	if !info.Permissions.SendMessages || info.Permissions.DeleteOtherMessages {
		t.Errorf("permissions = %+v", info.Permissions)
	}

	if _, err := c.GetChannelInfo(context.Background(), 404); err == nil {
		t.Error("unknown conversation should fail")
	}
}

func TestGetAccountInfo_Community(t *testing.T) {
	c, _, _ := newTestController(t)
	info, err := c.GetAccountInfo(context.Background(), -5)
	if err != nil {
		t.Fatalf("account info: %v", err)
	}
	if info.ID != -5 || info.FirstName != "Bridge Club" || info.Username != "bridge" {
		t.Errorf("info = %+v", info)
	}
}

func TestAnswerInlineQuery_Unsupported(t *testing.T) {
	c, _, _ := newTestController(t)
	err := c.AnswerInlineQuery(context.Background(), "q", message.InlineQueryResponse{})
	if !errors.Is(err, channel.ErrUnsupportedOperation) {
		t.Fatalf("expected ErrUnsupportedOperation, got %v", err)
	}
}

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]interface{}
		wantErr bool
	}{
		{"missing token", map[string]interface{}{"group_id": 5}, true},
		{"missing group", map[string]interface{}{"token": "t"}, true},
		{"defaults", map[string]interface{}{"token": "t", "group_id": "5"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseConfig(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if cfg.GroupID != 5 || cfg.Wait != 25 || cfg.APIVersion != api.Version || cfg.BaseURL != api.MethodURL {
				t.Errorf("cfg = %+v", cfg)
			}
		})
	}
}
