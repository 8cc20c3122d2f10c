package channel

import (
	"errors"
	"testing"

	"github.com/tgifai/bridgekit/internal/message"
)

func TestExtra_SingleUse(t *testing.T) {
	extra := NewExtra(struct{ ReplyTo int64 }{ReplyTo: 9})
	first := extra.Take()
	if first == nil || first.ReplyTo != 9 {
		t.Fatalf("first take = %+v", first)
	}
	if extra.Take() != nil {
		t.Fatal("second take must be nil")
	}
}

func TestSendAccumulator(t *testing.T) {
	var acc SendAccumulator
	photo := message.SendedAttachment{ID: "p"}
	video := message.SendedAttachment{ID: "v"}
	acc.Record(1, true, nil)
	acc.Record(2, false, &photo)
	acc.Record(3, false, &video)

	res, err := acc.Result()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ids := res.Metadata.MessageIDs
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Fatalf("unexpected ids: %v", ids)
	}
	if !res.Metadata.HasText {
		t.Fatal("seeded from text, HasText must be set")
	}
	if len(res.Attachments) != 2 || res.Attachments[0].ID != "p" {
		t.Fatalf("unexpected attachments: %+v", res.Attachments)
	}
}

func TestSendAccumulator_SeedSkipsAttachment(t *testing.T) {
	var acc SendAccumulator
	first := message.SendedAttachment{ID: "a"}
	acc.Record(5, false, &first)
	res, _ := acc.Result()
	if len(res.Attachments) != 0 || res.Metadata.HasText {
		t.Fatalf("seed must not record its attachment: %+v", res)
	}
}

func TestSendAccumulator_Empty(t *testing.T) {
	var acc SendAccumulator
	if _, err := acc.Result(); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
}

func TestCheckEditShape(t *testing.T) {
	twoParts := &message.Metadata{MessageIDs: []int64{1, 2}, HasText: true}
	noText := &message.Metadata{MessageIDs: []int64{1}, HasText: false}

	tests := []struct {
		name string
		msg  message.ResolvedMessage
		want error
	}{
		{"missing metadata", message.ResolvedMessage{Text: "x"}, ErrMissingMetadata},
		{"shape mismatch", message.ResolvedMessage{Text: "x", Metadata: twoParts}, ErrShapeMismatch},
		{"text added", message.ResolvedMessage{Text: "x", Metadata: noText}, ErrTextEditUnsupported},
		{"ok", message.ResolvedMessage{
			Text:        "x",
			Attachments: []message.ResolvedAttachment{{Type: message.AttachmentPhoto}},
			Metadata:    twoParts,
		}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CheckEditShape(tt.msg)
			if tt.want == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestChunk(t *testing.T) {
	items := make([]int, 23)
	chunks := Chunk(items, 10)
	if len(chunks) != 3 || len(chunks[0]) != 10 || len(chunks[2]) != 3 {
		t.Fatalf("unexpected chunks: %d", len(chunks))
	}
	if Chunk([]int{}, 10) != nil {
		t.Fatal("empty input must give no chunks")
	}
}

func TestSortAndSplit(t *testing.T) {
	in := []message.ResolvedAttachment{
		{Type: message.AttachmentVideo, ID: "v"},
		{Type: message.AttachmentDocument, ID: "d"},
		{Type: message.AttachmentPhoto, ID: "p1"},
		{Type: message.AttachmentPhoto, ID: "p2"},
	}
	sorted := SortAttachments(in)
	wantOrder := []string{"p1", "p2", "d", "v"}
	for i, id := range wantOrder {
		if sorted[i].ID != id {
			t.Fatalf("sorted[%d] = %s, want %s", i, sorted[i].ID, id)
		}
	}
	if in[0].ID != "v" {
		t.Fatal("SortAttachments must not modify its input")
	}

	media, other := SplitMedia(sorted)
	if len(media) != 3 || len(other) != 1 || other[0].ID != "d" {
		t.Fatalf("unexpected split: media=%+v other=%+v", media, other)
	}
}

type groupItem struct {
	id    int
	group string
}

func TestMergeMediaGroups(t *testing.T) {
	items := []groupItem{
		{1, "g1"},
		{2, ""},
		{3, "g1"},
		{4, "g2"},
		{5, "g1"},
	}
	groups := MergeMediaGroups(items, func(it groupItem) string { return it.group })
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %+v", groups)
	}
	g1 := groups[0]
	if len(g1) != 3 || g1[0].id != 1 || g1[1].id != 3 || g1[2].id != 5 {
		t.Fatalf("unexpected g1: %+v", g1)
	}
	if groups[1][0].id != 2 || groups[2][0].id != 4 {
		t.Fatalf("unexpected order: %+v", groups)
	}
}

func TestAppendGroupAttachments(t *testing.T) {
	plain := &message.InMessage{Attachments: []message.Attachment{{ID: "a"}}}
	AppendGroupAttachments(plain, message.Attachment{ID: "b"})
	if len(plain.Attachments) != 2 {
		t.Fatalf("unexpected attachments: %+v", plain.Attachments)
	}

	fwd := &message.InMessage{Forwarded: []message.ForwardedMessage{{}}}
	AppendGroupAttachments(fwd, message.Attachment{ID: "b"})
	if len(fwd.Attachments) != 0 || len(fwd.Forwarded[0].Attachments) != 1 {
		t.Fatalf("forward attachments not merged: %+v", fwd)
	}
}
