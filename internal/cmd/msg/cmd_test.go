package msg

import (
	"testing"

	"github.com/tgifai/bridgekit/internal/message"
	"github.com/tgifai/bridgekit/internal/text"
)

func TestBuildMessage(t *testing.T) {
	out, err := buildMessage("**hi** there", []string{"https://x.test/a.png"}, nil, "5, 6")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(out.Tokens) == 0 || !out.Tokens[0].Has(text.PropBold) {
		t.Errorf("tokens = %+v", out.Tokens)
	}
	if len(out.Attachments) != 1 || out.Attachments[0].Type != message.AttachmentPhoto {
		t.Errorf("attachments = %+v", out.Attachments)
	}
	if out.Reply == nil || len(out.Reply.MessageIDs) != 2 || out.Reply.MessageIDs[1] != 6 {
		t.Errorf("reply = %+v", out.Reply)
	}
}

func TestBuildMessage_Errors(t *testing.T) {
	tests := []struct {
		name  string
		md    string
		reply string
	}{
		{"empty", "  ", ""},
		{"bad reply", "hi", "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := buildMessage(tt.md, nil, nil, tt.reply); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}
