// Copyright 2024-2026 Aiku AI

package wameow

import (
	"testing"

	"go.mau.fi/util/ptr"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"

	"github.com/aiku/wagate/pkg/gateway"
)

// TestExtractContent verifies the coarse type tag and best-effort text for
// the common message shapes.
func TestExtractContent(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name     string
		msg      *waE2E.Message
		wantKind string
		wantText string
	}{
		{"nil", nil, "unknown", ""},
		{"conversation", &waE2E.Message{Conversation: ptr.Ptr("hi")}, "text", "hi"},
		{
			"extended text",
			&waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: ptr.Ptr("linked")}},
			"text", "linked",
		},
		{
			"image with caption",
			&waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: ptr.Ptr("look")}},
			"image", "look",
		},
		{
			"video without caption",
			&waE2E.Message{VideoMessage: &waE2E.VideoMessage{}},
			"video", "",
		},
		{
			"audio",
			&waE2E.Message{AudioMessage: &waE2E.AudioMessage{}},
			"audio", "",
		},
		{
			"document",
			&waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{Caption: ptr.Ptr("report")}},
			"document", "report",
		},
		{
			"sticker",
			&waE2E.Message{StickerMessage: &waE2E.StickerMessage{}},
			"sticker", "",
		},
		{"empty", &waE2E.Message{}, "unknown", ""},
	}
	for _, c := range cases {
		kind, text := extractContent(c.msg)
		if kind != c.wantKind || text != c.wantText {
			t.Errorf("%s: got (%q, %q), want (%q, %q)", c.name, kind, text, c.wantKind, c.wantText)
		}
	}
}

// TestReceiptLevel verifies the wire receipt types map onto the gateway's
// acknowledgment ladder, and that off-ladder types are ignored.
func TestReceiptLevel(t *testing.T) {
	t.Parallel()
	if level, ok := receiptLevel(types.ReceiptTypeDelivered); !ok || level != gateway.AckDelivered {
		t.Errorf("delivered: got (%d, %v)", level, ok)
	}
	if level, ok := receiptLevel(types.ReceiptTypeRead); !ok || level != gateway.AckRead {
		t.Errorf("read: got (%d, %v)", level, ok)
	}
	if level, ok := receiptLevel(types.ReceiptTypeReadSelf); !ok || level != gateway.AckRead {
		t.Errorf("read-self: got (%d, %v)", level, ok)
	}
	if _, ok := receiptLevel(types.ReceiptTypePlayed); ok {
		t.Error("played must not qualify as a delivery level")
	}
}

// TestDigitsOf verifies phone number cleanup for pairing requests.
func TestDigitsOf(t *testing.T) {
	t.Parallel()
	if got := digitsOf("+226 70-00-00"); got != "226700000" {
		t.Errorf("digitsOf: got %q, want %q", got, "226700000")
	}
	if got := digitsOf("abc"); got != "" {
		t.Errorf("digitsOf letters: got %q, want empty", got)
	}
}
