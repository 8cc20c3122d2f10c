package channel

import (
	"context"
	"errors"
	"testing"

	"github.com/tgifai/bridgekit/internal/message"
)

type stubController struct {
	*Base
}

func (s *stubController) Start(context.Context) error { return nil }
func (s *stubController) Stop(context.Context) error  { return nil }
func (s *stubController) SendMessage(ctx context.Context, id int64, msg message.OutMessage) (message.SendedMessage, error) {
	return message.SendedMessage{}, ErrUnsupportedOperation
}
func (s *stubController) SendResolvedMessage(ctx context.Context, id int64, msg message.ResolvedMessage) (message.SendedMessage, error) {
	return message.SendedMessage{}, ErrUnsupportedOperation
}
func (s *stubController) EditMessage(ctx context.Context, id int64, msg message.OutMessage) (*message.SendedMessage, error) {
	return nil, ErrUnsupportedOperation
}
func (s *stubController) EditResolvedMessage(ctx context.Context, id int64, msg message.ResolvedMessage) (*message.SendedMessage, error) {
	return nil, ErrUnsupportedOperation
}
func (s *stubController) DeleteMessage(ctx context.Context, id int64, meta message.Metadata) error {
	return ErrUnsupportedOperation
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a := &stubController{Base: NewBase(BaseOptions{Name: "b"})}
	b := &stubController{Base: NewBase(BaseOptions{Name: "a"})}
	if err := r.Register(a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register(b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register(a); err == nil {
		t.Fatal("duplicate register must fail")
	}

	list := r.List()
	if len(list) != 2 || list[0].Name() != "a" {
		t.Fatalf("unexpected list order")
	}

	r.Unregister("a")
	if _, err := r.Get("a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("len = %d", r.Len())
	}
}

func TestNewController_Factory(t *testing.T) {
	RegisterFactory("stub", func(ctx context.Context, name string, cfg map[string]interface{}, deps Deps) (Controller, error) {
		return &stubController{Base: NewBase(BaseOptions{Name: name, Type: "stub"})}, nil
	})
	c, err := NewController(context.Background(), "stub", "one", nil, Deps{})
	if err != nil || c.Name() != "one" {
		t.Fatalf("got (%v, %v)", c, err)
	}
	if _, err := NewController(context.Background(), "missing", "x", nil, Deps{}); err == nil {
		t.Fatal("unknown type must fail")
	}
}
