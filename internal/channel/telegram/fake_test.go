package telegram

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/tgifai/bridgekit/internal/channel"
	"github.com/tgifai/bridgekit/internal/event"
)

// fakeAPI records calls and hands out increasing message ids.
type fakeAPI struct {
	mu     sync.Mutex
	nextID int
	calls  []string

	sentText   []*bot.SendMessageParams
	mediaGroup []*bot.SendMediaGroupParams
	edits      []*bot.EditMessageTextParams
	deletes    []int
	answer     *bot.AnswerInlineQueryParams
	member     *models.ChatMember
	failFile   map[string]bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		nextID: 100,
		member: &models.ChatMember{
			Type:          models.ChatMemberTypeAdministrator,
			Administrator: &models.ChatMemberAdministrator{CanDeleteMessages: true},
		},
		failFile: map[string]bool{},
	}
}

func (f *fakeAPI) record(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method)
	f.nextID++
	return f.nextID
}

func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func photoMessage(id int, fileID string) *models.Message {
	return &models.Message{
		ID:    id,
		Photo: []models.PhotoSize{{FileID: fileID + "-small"}, {FileID: fileID, FileUniqueID: "u-" + fileID}},
	}
}

func (f *fakeAPI) GetMe(context.Context) (*models.User, error) {
	f.record("getMe")
	return &models.User{ID: 42, IsBot: true, Username: "bridge_bot"}, nil
}

func (f *fakeAPI) SendMessage(_ context.Context, p *bot.SendMessageParams) (*models.Message, error) {
	id := f.record("sendMessage")
	f.mu.Lock()
	f.sentText = append(f.sentText, p)
	f.mu.Unlock()
	return &models.Message{ID: id, Text: p.Text}, nil
}

func (f *fakeAPI) SendPhoto(context.Context, *bot.SendPhotoParams) (*models.Message, error) {
	id := f.record("sendPhoto")
	return photoMessage(id, fmt.Sprintf("sent-%d", id)), nil
}

func (f *fakeAPI) SendVideo(context.Context, *bot.SendVideoParams) (*models.Message, error) {
	id := f.record("sendVideo")
	return &models.Message{ID: id, Video: &models.Video{FileID: "v", FileUniqueID: "u-v"}}, nil
}

func (f *fakeAPI) SendSticker(context.Context, *bot.SendStickerParams) (*models.Message, error) {
	id := f.record("sendSticker")
	return &models.Message{ID: id, Sticker: &models.Sticker{FileID: "s", FileUniqueID: "u-s"}}, nil
}

func (f *fakeAPI) SendVoice(context.Context, *bot.SendVoiceParams) (*models.Message, error) {
	return &models.Message{ID: f.record("sendVoice")}, nil
}

func (f *fakeAPI) SendDocument(context.Context, *bot.SendDocumentParams) (*models.Message, error) {
	id := f.record("sendDocument")
	return &models.Message{ID: id, Document: &models.Document{FileID: "d", FileUniqueID: "u-d"}}, nil
}

func (f *fakeAPI) SendAnimation(context.Context, *bot.SendAnimationParams) (*models.Message, error) {
	return &models.Message{ID: f.record("sendAnimation")}, nil
}

func (f *fakeAPI) SendMediaGroup(_ context.Context, p *bot.SendMediaGroupParams) ([]*models.Message, error) {
	f.mu.Lock()
	f.mediaGroup = append(f.mediaGroup, p)
	f.mu.Unlock()
	out := make([]*models.Message, 0, len(p.Media))
	for i := range p.Media {
		method := "sendMediaGroup"
		if i > 0 {
			method = "sendMediaGroup+"
		}
		id := f.record(method)
		out = append(out, photoMessage(id, fmt.Sprintf("group-%d", id)))
	}
	return out, nil
}

func (f *fakeAPI) ForwardMessage(context.Context, *bot.ForwardMessageParams) (*models.Message, error) {
	return &models.Message{ID: f.record("forwardMessage")}, nil
}

func (f *fakeAPI) EditMessageText(_ context.Context, p *bot.EditMessageTextParams) (*models.Message, error) {
	f.record("editMessageText")
	f.mu.Lock()
	f.edits = append(f.edits, p)
	f.mu.Unlock()
	return &models.Message{ID: p.MessageID, Text: p.Text}, nil
}

func (f *fakeAPI) DeleteMessage(_ context.Context, p *bot.DeleteMessageParams) (bool, error) {
	f.record("deleteMessage")
	f.mu.Lock()
	f.deletes = append(f.deletes, p.MessageID)
	f.mu.Unlock()
	return true, nil
}

func (f *fakeAPI) GetFile(_ context.Context, p *bot.GetFileParams) (*models.File, error) {
	f.record("getFile")
	if f.failFile[p.FileID] {
		return nil, fmt.Errorf("file %s is gone", p.FileID)
	}
	return &models.File{FileID: p.FileID, FileUniqueID: "u-" + p.FileID, FilePath: "files/" + p.FileID}, nil
}

func (f *fakeAPI) FileDownloadLink(file *models.File) string {
	return "https://api.telegram.test/file/" + file.FilePath
}

func (f *fakeAPI) GetChat(_ context.Context, p *bot.GetChatParams) (*models.ChatFullInfo, error) {
	f.record("getChat")
	id, _ := p.ChatID.(int64)
	return &models.ChatFullInfo{ID: id, Type: models.ChatTypeSupergroup, Title: "Bridge Room"}, nil
}

func (f *fakeAPI) GetChatMember(context.Context, *bot.GetChatMemberParams) (*models.ChatMember, error) {
	f.record("getChatMember")
	return f.member, nil
}

func (f *fakeAPI) GetUserProfilePhotos(context.Context, *bot.GetUserProfilePhotosParams) (*models.UserProfilePhotos, error) {
	f.record("getUserProfilePhotos")
	return &models.UserProfilePhotos{}, nil
}

func (f *fakeAPI) AnswerInlineQuery(_ context.Context, p *bot.AnswerInlineQueryParams) (bool, error) {
	f.record("answerInlineQuery")
	f.mu.Lock()
	f.answer = p
	f.mu.Unlock()
	return true, nil
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
	api := newFakeAPI()
	rec := &recorder{}
	c, err := New("tg", Config{Token: "test-token"}, channel.Deps{Publisher: rec},
		WithAPI(api),
		WithClock(func() time.Time { return testNow }),
	)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	return c, api, rec
}

// startController runs Start in the background until the test ends.
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
