// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package gateway

import (
	"context"
	"time"
)

// Engine is the protocol-engine boundary. The wire protocol, cryptography
// and pairing handshake all live behind it; the gateway only issues commands
// and consumes the typed events delivered on Events(). The production
// implementation is in the wameow subpackage, tests inject a fake.
type Engine interface {
	// Connect opens (or re-opens) the network connection bound to the
	// current local credential state. Safe to call again after a drop.
	Connect(ctx context.Context) error
	// Disconnect tears down the live connection without logging out.
	Disconnect()
	// Logout invalidates the credentials on the network side.
	Logout(ctx context.Context) error
	// Events returns the single-consumer event channel. The engine closes
	// it when the engine is shut down for good.
	Events() <-chan Event

	SendText(ctx context.Context, to, text string) (string, error)
	SendButtons(ctx context.Context, to, text string, buttons []Button) (string, error)
	SendList(ctx context.Context, to, text string, sections []ListSection) (string, error)
	SendViewOnceMedia(ctx context.Context, to string, data []byte, mimetype string) (string, error)

	SendPresence(available bool) error
	SubscribePresence(to string) error
	SendChatPresence(to string, composing bool) error

	// RequestPairCode asks the network for a phone-pairing code as an
	// alternative to scanning a QR code.
	RequestPairCode(ctx context.Context, number string) (string, error)
}

// Event is a marker for the concrete event structs below. The session loop
// dispatches on the concrete type, mirroring how the engine itself delivers
// events.
type Event any

// QRCodeEvent carries a fresh QR pairing code. Each one supersedes the
// previous.
type QRCodeEvent struct {
	Code string
}

// PairCodeEvent carries a phone-pairing code issued by the network.
type PairCodeEvent struct {
	Code string
}

// ConnectedEvent signals that the connection is established and
// authenticated.
type ConnectedEvent struct{}

// DisconnectedEvent signals a transport drop. Terminal means the network
// revoked the credentials: no reconnect may be scheduled and a fresh pairing
// is required.
type DisconnectedEvent struct {
	Terminal bool
	Reason   string
}

// CredentialsEvent carries the serialized authentication material after a
// credential rotation. The receiver must write it locally and persist it
// remotely, in that order, before moving on.
type CredentialsEvent struct {
	Blob []byte
}

// MessageEvent is the normalized view of an inbound message.
type MessageEvent struct {
	ID        string
	Chat      string
	Sender    string
	PushName  string
	FromMe    bool
	Timestamp time.Time
	Kind      string
	Text      string
}

// AckLevel is a delivery acknowledgment level. The numeric values mirror the
// wire statuses so they can be compared and logged directly.
type AckLevel int

const (
	AckSent      AckLevel = 2
	AckDelivered AckLevel = 3
	AckRead      AckLevel = 4
)

// Qualifies reports whether the level triggers delete-on-delivery. Only
// device-delivered and read qualify; server-side "sent" does not.
func (l AckLevel) Qualifies() bool {
	return l == AckDelivered || l == AckRead
}

// ReceiptEvent carries a delivery acknowledgment for one or more previously
// sent messages.
type ReceiptEvent struct {
	MessageIDs []string
	Level      AckLevel
}

// Button is one tappable choice in an interactive button message. At most
// three are used by the network.
type Button struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ListRow is one selectable row of a list message section.
type ListRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// ListSection is one titled group of rows in a list message.
type ListSection struct {
	Title string    `json:"title"`
	Rows  []ListRow `json:"rows"`
}
