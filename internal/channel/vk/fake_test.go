package vk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SevereCloud/vksdk/v3/api"
	"github.com/SevereCloud/vksdk/v3/events"
	"github.com/SevereCloud/vksdk/v3/object"
	"github.com/bytedance/sonic"

	"github.com/tgifai/bridgekit/internal/channel"
	"github.com/tgifai/bridgekit/internal/event"
)

type obj = map[string]interface{}

// fakeAPI records calls and hands out increasing conversation message ids.
type fakeAPI struct {
	mu      sync.Mutex
	nextID  int64
	calls   []string
	sends   []api.Params
	scripts []string
	uploads []string

	convs  map[int64]object.MessagesConversation
	users  map[int64]object.UsersUser
	groups map[int64]string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		nextID: 100,
		convs:  map[int64]object.MessagesConversation{},
		users: map[int64]object.UsersUser{
			7: {ID: 7, FirstName: "Ivan", LastName: "Petrov", ScreenName: "ivanp", Photo100: "https://vk.test/7.jpg"},
		},
		groups: map[int64]string{
			5: `{"id":5,"name":"Bridge Club","screen_name":"bridge"}`,
		},
	}
}

func (f *fakeAPI) record(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method)
}

func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) RequestUnmarshal(method string, out interface{}, params ...api.Params) error {
	f.record(method)
	f.mu.Lock()
	defer f.mu.Unlock()

	switch method {
	case "messages.send":
		f.sends = append(f.sends, params[0])
		f.nextID++
		*out.(*[]sendResult) = []sendResult{{
			PeerID:                params[0]["peer_ids"].(int64),
			ConversationMessageID: f.nextID,
		}}
		return nil
	case "groups.getById":
		var items []string
		if g, ok := f.groups[params[0]["group_ids"].(int64)]; ok {
			items = append(items, g)
		}
		*out.(*json.RawMessage) = json.RawMessage(`{"groups":[` + strings.Join(items, ",") + `]}`)
		return nil
	default:
		return fmt.Errorf("unexpected method %s", method)
	}
}

func (f *fakeAPI) Execute(code string, _ interface{}) error {
	f.record("execute")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts = append(f.scripts, code)
	return nil
}

func (f *fakeAPI) MessagesGetConversationsByID(params api.Params) (api.MessagesGetConversationsByIDResponse, error) {
	f.record("messages.getConversationsById")
	var resp api.MessagesGetConversationsByIDResponse
	if conv, ok := f.convs[params["peer_ids"].(int64)]; ok {
		resp.Items = append(resp.Items, conv)
		resp.Count = 1
	}
	return resp, nil
}

func (f *fakeAPI) UsersGet(params api.Params) (api.UsersGetResponse, error) {
	f.record("users.get")
	var out api.UsersGetResponse
	if u, ok := f.users[params["user_ids"].(int64)]; ok {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeAPI) UploadMessagesPhoto(_ int, _ io.Reader) (api.PhotosSaveMessagesPhotoResponse, error) {
	f.record("upload.photo")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, "photo")
	return api.PhotosSaveMessagesPhotoResponse{{ID: len(f.uploads), OwnerID: 1}}, nil
}

func (f *fakeAPI) UploadMessagesDoc(_ int, typeDoc, title, _ string, _ io.Reader) (api.DocsSaveResponse, error) {
	f.record("upload." + typeDoc)
	f.mu.Lock()
	f.uploads = append(f.uploads, title)
	n := len(f.uploads)
	f.mu.Unlock()

	var resp api.DocsSaveResponse
	raw := fmt.Sprintf(`{"type":%q,%q:{"id":%d,"owner_id":1}}`, typeDoc, typeDoc, n)
	err := sonic.UnmarshalString(raw, &resp)
	return resp, err
}

// Download fails for URLs that mention "missing".
func (f *fakeAPI) Download(_ context.Context, rawURL string) ([]byte, error) {
	f.record("download")
	if strings.Contains(rawURL, "missing") {
		return nil, fmt.Errorf("%s: 404", rawURL)
	}
	return []byte("data"), nil
}

// idlePoller delivers nothing until the controller stops.
func idlePoller(ctx context.Context, _ func(context.Context, []events.GroupEvent)) error {
	<-ctx.Done()
	return nil
}

var testNow = time.Unix(1_760_000_000, 600_000_000)

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) Publish(_ context.Context, evt event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) Events() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Event(nil), r.events...)
}

func newTestController(t *testing.T) (*Controller, *fakeAPI, *recorder) {
	t.Helper()
	fake := newFakeAPI()
	rec := &recorder{}
	c, err := New("vk", Config{Token: "test-token", GroupID: 5}, channel.Deps{Publisher: rec},
		WithAPI(fake),
		WithPoller(idlePoller),
		WithDownloader(fake.Download),
		WithClock(func() time.Time { return testNow }),
	)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	return c, fake, rec
}

func startController(t *testing.T, c *Controller) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- c.Start(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for c.State() != channel.StateRunning {
		if time.Now().After(deadline) {
			t.Fatalf("controller did not start, state %s", c.State())
		}
		time.Sleep(time.Millisecond)
	}
	t.Cleanup(func() {
		_ = c.Stop(context.Background())
		if err := <-done; err != nil {
			t.Errorf("start returned %v", err)
		}
	})
}

func decodeJSON[T any](t *testing.T, v interface{}) T {
	t.Helper()
	raw, err := sonic.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out T
	if err := sonic.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal %s: %v", raw, err)
	}
	return out
}

func messageUpdate(t *testing.T, typ events.EventType, m obj) events.GroupEvent {
	t.Helper()
	var payload interface{} = m
	if typ == events.EventMessageNew {
		payload = obj{"message": m}
	}
	raw, err := sonic.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal update: %v", err)
	}
	return events.GroupEvent{Type: typ, Object: raw, GroupID: 5}
}

func sendParams(t *testing.T, f *fakeAPI, i int) api.Params {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.sends) {
		t.Fatalf("send %d missing, have %d", i, len(f.sends))
	}
	return f.sends[i]
}

func sentForward(t *testing.T, p api.Params) *forward {
	t.Helper()
	raw, ok := p["forward"].(string)
	if !ok {
		return nil
	}
	var fwd forward
	if err := sonic.UnmarshalString(raw, &fwd); err != nil {
		t.Fatalf("decode forward %s: %v", raw, err)
	}
	return &fwd
}
