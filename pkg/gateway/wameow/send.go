// Copyright 2024-2026 Aiku AI

package wameow

import (
	"context"
	"fmt"
	"strings"

	"go.mau.fi/util/ptr"
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"

	"github.com/aiku/wagate/pkg/gateway"
)

func parseJID(to string) (types.JID, error) {
	jid, err := types.ParseJID(to)
	if err != nil {
		return types.EmptyJID, fmt.Errorf("parse destination %q: %w", to, err)
	}
	return jid, nil
}

func (e *Engine) send(ctx context.Context, to string, msg *waE2E.Message) (string, error) {
	jid, err := parseJID(to)
	if err != nil {
		return "", err
	}
	resp, err := e.cli.SendMessage(ctx, jid, msg)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return string(resp.ID), nil
}

// SendText sends a plain conversation message.
func (e *Engine) SendText(ctx context.Context, to, text string) (string, error) {
	return e.send(ctx, to, &waE2E.Message{Conversation: ptr.Ptr(text)})
}

// SendButtons sends an interactive quick-reply button message.
func (e *Engine) SendButtons(ctx context.Context, to, text string, buttons []gateway.Button) (string, error) {
	waButtons := make([]*waE2E.ButtonsMessage_Button, len(buttons))
	for i, b := range buttons {
		id := b.ID
		if id == "" {
			id = fmt.Sprintf("btn-%d", i+1)
		}
		waButtons[i] = &waE2E.ButtonsMessage_Button{
			ButtonID:   ptr.Ptr(id),
			ButtonText: &waE2E.ButtonsMessage_Button_ButtonText{DisplayText: ptr.Ptr(b.Text)},
			Type:       waE2E.ButtonsMessage_Button_RESPONSE.Enum(),
		}
	}
	return e.send(ctx, to, &waE2E.Message{
		ButtonsMessage: &waE2E.ButtonsMessage{
			ContentText: ptr.Ptr(text),
			HeaderType:  waE2E.ButtonsMessage_EMPTY.Enum(),
			Buttons:     waButtons,
		},
	})
}

// SendList sends a single-select list message.
func (e *Engine) SendList(ctx context.Context, to, text string, sections []gateway.ListSection) (string, error) {
	waSections := make([]*waE2E.ListMessage_Section, len(sections))
	for i, sec := range sections {
		rows := make([]*waE2E.ListMessage_Row, len(sec.Rows))
		for j, row := range sec.Rows {
			id := row.ID
			if id == "" {
				id = fmt.Sprintf("row-%d-%d", i+1, j+1)
			}
			rows[j] = &waE2E.ListMessage_Row{
				RowID:       ptr.Ptr(id),
				Title:       ptr.Ptr(row.Title),
				Description: ptr.Ptr(row.Description),
			}
		}
		waSections[i] = &waE2E.ListMessage_Section{
			Title: ptr.Ptr(sec.Title),
			Rows:  rows,
		}
	}
	return e.send(ctx, to, &waE2E.Message{
		ListMessage: &waE2E.ListMessage{
			Description: ptr.Ptr(text),
			ButtonText:  ptr.Ptr("Select"),
			ListType:    waE2E.ListMessage_SINGLE_SELECT.Enum(),
			Sections:    waSections,
		},
	})
}

// SendViewOnceMedia uploads the media and sends it as a self-destructing
// message. The mimetype decides the media class: image/* and video/* map to
// their native types, everything else goes out as a document.
func (e *Engine) SendViewOnceMedia(ctx context.Context, to string, data []byte, mimetype string) (string, error) {
	var msg *waE2E.Message
	switch {
	case strings.HasPrefix(mimetype, "image/"):
		up, err := e.cli.Upload(ctx, data, whatsmeow.MediaImage)
		if err != nil {
			return "", fmt.Errorf("upload image: %w", err)
		}
		msg = &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			URL:           ptr.Ptr(up.URL),
			DirectPath:    ptr.Ptr(up.DirectPath),
			MediaKey:      up.MediaKey,
			Mimetype:      ptr.Ptr(mimetype),
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    ptr.Ptr(up.FileLength),
			ViewOnce:      ptr.Ptr(true),
		}}
	case strings.HasPrefix(mimetype, "video/"):
		up, err := e.cli.Upload(ctx, data, whatsmeow.MediaVideo)
		if err != nil {
			return "", fmt.Errorf("upload video: %w", err)
		}
		msg = &waE2E.Message{VideoMessage: &waE2E.VideoMessage{
			URL:           ptr.Ptr(up.URL),
			DirectPath:    ptr.Ptr(up.DirectPath),
			MediaKey:      up.MediaKey,
			Mimetype:      ptr.Ptr(mimetype),
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    ptr.Ptr(up.FileLength),
			ViewOnce:      ptr.Ptr(true),
		}}
	default:
		up, err := e.cli.Upload(ctx, data, whatsmeow.MediaDocument)
		if err != nil {
			return "", fmt.Errorf("upload document: %w", err)
		}
		msg = &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
			URL:           ptr.Ptr(up.URL),
			DirectPath:    ptr.Ptr(up.DirectPath),
			MediaKey:      up.MediaKey,
			Mimetype:      ptr.Ptr(mimetype),
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    ptr.Ptr(up.FileLength),
			FileName:      ptr.Ptr("file"),
		}}
	}
	return e.send(ctx, to, msg)
}

// SendPresence announces global presence.
func (e *Engine) SendPresence(available bool) error {
	state := types.PresenceAvailable
	if !available {
		state = types.PresenceUnavailable
	}
	return e.cli.SendPresence(state)
}

// SubscribePresence subscribes to a chat's presence updates, required before
// chat presence announcements are shown to that chat.
func (e *Engine) SubscribePresence(to string) error {
	jid, err := parseJID(to)
	if err != nil {
		return err
	}
	return e.cli.SubscribePresence(jid)
}

// SendChatPresence announces composing or paused in a chat.
func (e *Engine) SendChatPresence(to string, composing bool) error {
	jid, err := parseJID(to)
	if err != nil {
		return err
	}
	state := types.ChatPresenceComposing
	if !composing {
		state = types.ChatPresencePaused
	}
	return e.cli.SendChatPresence(jid, state, types.ChatPresenceMediaText)
}

// extractContent pulls a coarse type tag and best-effort text (body or
// caption) out of an inbound message.
func extractContent(msg *waE2E.Message) (kind, text string) {
	switch {
	case msg == nil:
		return "unknown", ""
	case msg.GetConversation() != "":
		return "text", msg.GetConversation()
	case msg.GetExtendedTextMessage() != nil:
		return "text", msg.GetExtendedTextMessage().GetText()
	case msg.GetImageMessage() != nil:
		return "image", msg.GetImageMessage().GetCaption()
	case msg.GetVideoMessage() != nil:
		return "video", msg.GetVideoMessage().GetCaption()
	case msg.GetAudioMessage() != nil:
		return "audio", ""
	case msg.GetDocumentMessage() != nil:
		return "document", msg.GetDocumentMessage().GetCaption()
	case msg.GetStickerMessage() != nil:
		return "sticker", ""
	default:
		return "unknown", ""
	}
}
