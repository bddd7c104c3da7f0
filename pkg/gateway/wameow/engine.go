// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package wameow adapts go.mau.fi/whatsmeow to the gateway's Engine
// boundary. The whatsmeow client keeps its session state in a local sqlite
// database; that file is the gateway's local durable credential
// representation, and this package snapshots it into CredentialsEvents at
// each rotation point.
package wameow

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aiku/wagate/pkg/gateway"
)

// Engine implements gateway.Engine over a whatsmeow client. Auto-reconnect
// is disabled: the session's state machine owns reconnection.
type Engine struct {
	cli    *whatsmeow.Client
	dbPath string
	events chan gateway.Event
	log    zerolog.Logger
}

var _ gateway.Engine = (*Engine)(nil)

// New opens the local session database at dbPath and builds the client
// around whatever device state it holds. An empty database means the next
// Connect starts a fresh pairing.
func New(dbPath string, log zerolog.Logger) (*Engine, error) {
	dbLog := waLog.Zerolog(log.With().Str("component", "wameow_db").Logger())
	container, err := sqlstore.New("sqlite3", "file:"+dbPath+"?_foreign_keys=on", dbLog)
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}
	device, err := container.GetFirstDevice()
	if err != nil {
		return nil, fmt.Errorf("load device state: %w", err)
	}

	cli := whatsmeow.NewClient(device, waLog.Zerolog(log.With().Str("component", "wameow").Logger()))
	cli.EnableAutoReconnect = false

	e := &Engine{
		cli:    cli,
		dbPath: dbPath,
		events: make(chan gateway.Event, 64),
		log:    log.With().Str("component", "engine").Logger(),
	}
	cli.AddEventHandler(e.handleEvent)
	return e, nil
}

// Connect opens the connection. When no device is paired yet, the QR channel
// is pumped into the event stream so the gateway can expose the codes.
func (e *Engine) Connect(ctx context.Context) error {
	if e.cli.Store.ID == nil {
		qrChan, err := e.cli.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("open QR channel: %w", err)
		}
		go e.pumpQR(qrChan)
	}
	if err := e.cli.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

func (e *Engine) pumpQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			e.emit(gateway.QRCodeEvent{Code: item.Code})
		case whatsmeow.QRChannelSuccess.Event:
			e.log.Info().Msg("QR pairing succeeded")
		default:
			e.log.Debug().Str("event", item.Event).Msg("QR channel event")
		}
	}
}

// Disconnect drops the connection without logging out.
func (e *Engine) Disconnect() {
	e.cli.Disconnect()
}

// Logout invalidates the session on the network side.
func (e *Engine) Logout(_ context.Context) error {
	if err := e.cli.Logout(); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Events returns the single-consumer event channel.
func (e *Engine) Events() <-chan gateway.Event {
	return e.events
}

// RequestPairCode asks for a phone pairing code for the given number.
func (e *Engine) RequestPairCode(_ context.Context, number string) (string, error) {
	code, err := e.cli.PairPhone(digitsOf(number), true, whatsmeow.PairClientChrome, "Chrome (Linux)")
	if err != nil {
		return "", fmt.Errorf("pair phone: %w", err)
	}
	return code, nil
}

func (e *Engine) emit(evt gateway.Event) {
	e.events <- evt
}

// handleEvent maps whatsmeow's event types onto the gateway's engine events.
func (e *Engine) handleEvent(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Connected:
		e.emit(gateway.ConnectedEvent{})
		e.snapshotCredentials()
	case *events.PairSuccess:
		e.log.Info().Str("jid", evt.ID.String()).Msg("Paired with device")
		e.snapshotCredentials()
	case *events.Disconnected:
		e.emit(gateway.DisconnectedEvent{Reason: "connection closed"})
	case *events.LoggedOut:
		e.emit(gateway.DisconnectedEvent{
			Terminal: true,
			Reason:   fmt.Sprintf("logged out (reason %d)", int(evt.Reason)),
		})
	case *events.StreamReplaced:
		e.emit(gateway.DisconnectedEvent{Reason: "stream replaced by another client"})
	case *events.Message:
		kind, text := extractContent(evt.Message)
		e.emit(gateway.MessageEvent{
			ID:        evt.Info.ID,
			Chat:      evt.Info.Chat.String(),
			Sender:    evt.Info.Sender.String(),
			PushName:  evt.Info.PushName,
			FromMe:    evt.Info.IsFromMe,
			Timestamp: evt.Info.Timestamp,
			Kind:      kind,
			Text:      text,
		})
	case *events.Receipt:
		level, ok := receiptLevel(evt.Type)
		if !ok {
			return
		}
		ids := make([]string, len(evt.MessageIDs))
		for i, id := range evt.MessageIDs {
			ids[i] = string(id)
		}
		e.emit(gateway.ReceiptEvent{MessageIDs: ids, Level: level})
	}
}

// snapshotCredentials reads the session database file and emits it as the
// credential blob. Rotation points are pairing success and (re)connection;
// between those the device state does not change in ways worth mirroring.
func (e *Engine) snapshotCredentials() {
	blob, err := os.ReadFile(e.dbPath)
	if err != nil {
		e.log.Error().Err(err).Msg("Failed to snapshot session database")
		return
	}
	e.emit(gateway.CredentialsEvent{Blob: blob})
}

// receiptLevel maps a wire receipt type to an acknowledgment level. Receipt
// types outside the delivery ladder (played, sender, ...) are ignored.
func receiptLevel(t types.ReceiptType) (gateway.AckLevel, bool) {
	switch t {
	case types.ReceiptTypeDelivered:
		return gateway.AckDelivered, true
	case types.ReceiptTypeRead, types.ReceiptTypeReadSelf:
		return gateway.AckRead, true
	default:
		return 0, false
	}
}

// digitsOf strips everything but digits from a phone number input.
func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
