// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ConnState is the coarse connection state exposed over the API.
type ConnState string

const (
	StateConnecting ConnState = "connecting"
	StateOpen       ConnState = "open"
	StateClosed     ConnState = "closed"
)

// defaultReconnectDelay is the fixed backoff between a non-terminal
// disconnect and the next connection attempt. There is deliberately no
// exponential growth and no attempt ceiling: the gateway keeps trying until
// the network takes it back or the credentials are revoked.
const defaultReconnectDelay = 2 * time.Second

// PairingArtifact is the current QR or phone-pairing code, valid only while
// the connection is not open. A new artifact supersedes the previous one.
type PairingArtifact struct {
	QRCode   string
	PairCode string
}

// credentialStore is the slice of AuthStore the session needs. An interface
// so tests can inject a counting fake instead of a real database.
type credentialStore interface {
	SaveLocal(blob []byte) error
	Persist(ctx context.Context, blob []byte) error
	Reset(ctx context.Context) error
}

// Session owns the single live connection to the protocol engine. It is the
// only component that transitions connection state, always from the
// dedicated event-loop goroutine; HTTP handlers read state and issue sends,
// which move traffic but never state.
type Session struct {
	engine  Engine
	auth    credentialStore
	tracker *Tracker
	relay   *Relay
	log     zerolog.Logger

	reconnectDelay time.Duration

	mu               sync.Mutex
	state            ConnState
	authenticated    bool
	artifact         *PairingArtifact
	halted           bool
	connecting       bool
	reconnectPending bool

	stopOnce sync.Once
	stopChan chan struct{}
	loopDone chan struct{}

	// credChan serializes credential persistence: one worker drains it so
	// rotations reach the stores in emission order and the newest write
	// always lands last.
	credChan chan []byte
	credDone chan struct{}
}

// NewSession wires the connection manager to its collaborators. Call Start
// to bring the connection up.
func NewSession(engine Engine, auth credentialStore, tracker *Tracker, relay *Relay, log zerolog.Logger) *Session {
	return &Session{
		engine:         engine,
		auth:           auth,
		tracker:        tracker,
		relay:          relay,
		log:            log.With().Str("component", "session").Logger(),
		reconnectDelay: defaultReconnectDelay,
		state:          StateClosed,
		stopChan:       make(chan struct{}),
		loopDone:       make(chan struct{}),
		credChan:       make(chan []byte, 16),
		credDone:       make(chan struct{}),
	}
}

// Start launches the event loop and performs the initial connection attempt.
// An error here is the one unrecoverable bootstrap failure: the caller is
// expected to exit the process.
func (s *Session) Start(ctx context.Context) error {
	go s.loop()
	go s.persistLoop()
	if err := s.connect(ctx); err != nil {
		return fmt.Errorf("initial connect failed: %w", err)
	}
	return nil
}

// Stop tears down the event loop, the persistence worker and the engine
// connection. The event loop is the only sender on credChan, so closing it
// after the loop exits is safe.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.engine.Disconnect()
		<-s.loopDone
		close(s.credChan)
		<-s.credDone
	})
}

// connect enters a CONNECTING cycle unless one is already in flight, the
// connection is already open, or the session is halted.
func (s *Session) connect(ctx context.Context) error {
	s.mu.Lock()
	if s.halted {
		s.mu.Unlock()
		return ErrEngineHalted
	}
	if s.connecting || s.state == StateOpen {
		s.mu.Unlock()
		return nil
	}
	s.connecting = true
	s.state = StateConnecting
	s.mu.Unlock()

	s.log.Info().Msg("Connecting to WhatsApp")
	if err := s.engine.Connect(ctx); err != nil {
		s.mu.Lock()
		s.connecting = false
		s.state = StateClosed
		s.mu.Unlock()
		return err
	}
	return nil
}

// loop is the single consumer of the engine's event channel. All state
// transitions happen here.
func (s *Session) loop() {
	defer close(s.loopDone)
	for {
		select {
		case <-s.stopChan:
			return
		case evt, ok := <-s.engine.Events():
			if !ok {
				return
			}
			s.handleEvent(evt)
		}
	}
}

func (s *Session) handleEvent(evt Event) {
	switch evt := evt.(type) {
	case QRCodeEvent:
		s.mu.Lock()
		s.artifact = &PairingArtifact{QRCode: evt.Code}
		s.mu.Unlock()
		s.log.Info().Msg("New QR pairing code issued")
	case PairCodeEvent:
		s.mu.Lock()
		s.artifact = &PairingArtifact{PairCode: evt.Code}
		s.mu.Unlock()
		s.log.Info().Msg("New phone pairing code issued")
	case ConnectedEvent:
		s.mu.Lock()
		s.state = StateOpen
		s.authenticated = true
		s.artifact = nil
		s.connecting = false
		s.mu.Unlock()
		s.log.Info().Msg("Connection open")
	case DisconnectedEvent:
		s.handleDisconnect(evt)
	case CredentialsEvent:
		// Handed to the single persistence worker: rotations must not
		// stall event processing, but they must reach the stores in
		// order so the remote copy never regresses to a stale rotation.
		s.credChan <- evt.Blob
	case MessageEvent:
		// One forwarding attempt per event, overlapping with the next.
		go s.relay.Forward(context.Background(), evt)
	case ReceiptEvent:
		for _, id := range evt.MessageIDs {
			if s.tracker.OnDeliveryAck(id, evt.Level) {
				s.log.Debug().Str("message_id", id).Msg("Outbound record removed on delivery")
			}
		}
	default:
		s.log.Trace().Type("event_type", evt).Msg("Unhandled engine event")
	}
}

func (s *Session) handleDisconnect(evt DisconnectedEvent) {
	s.mu.Lock()
	s.state = StateClosed
	s.authenticated = false
	s.connecting = false
	if evt.Terminal {
		s.halted = true
		s.artifact = nil
	}
	alreadyPending := s.reconnectPending
	if !evt.Terminal && !alreadyPending {
		s.reconnectPending = true
	}
	s.mu.Unlock()

	if evt.Terminal {
		s.log.Error().Str("reason", evt.Reason).
			Msg("Credentials revoked by the network, reconnection halted until re-pairing")
		return
	}
	s.log.Warn().Str("reason", evt.Reason).
		Dur("retry_in", s.reconnectDelay).
		Msg("Disconnected, scheduling reconnect")
	if alreadyPending {
		return
	}
	time.AfterFunc(s.reconnectDelay, s.reconnect)
}

// reconnect is the fire-once deferred task armed by handleDisconnect. A
// failed attempt re-arms itself after the same delay.
func (s *Session) reconnect() {
	s.mu.Lock()
	s.reconnectPending = false
	s.mu.Unlock()

	if err := s.connect(context.Background()); err != nil {
		if err == ErrEngineHalted {
			return
		}
		s.log.Error().Err(err).Msg("Reconnect attempt failed, retrying")
		s.mu.Lock()
		again := !s.reconnectPending
		s.reconnectPending = true
		s.mu.Unlock()
		if again {
			time.AfterFunc(s.reconnectDelay, s.reconnect)
		}
	}
}

// persistLoop is the single consumer of credChan.
func (s *Session) persistLoop() {
	defer close(s.credDone)
	for blob := range s.credChan {
		s.persistCredentials(blob)
	}
}

// persistCredentials performs the local-then-remote write pair for one
// credential rotation. Failures are logged and swallowed: persistence errors
// are never fatal, the in-memory session keeps working.
func (s *Session) persistCredentials(blob []byte) {
	if err := s.auth.SaveLocal(blob); err != nil {
		s.log.Error().Err(err).Msg("Failed to write credentials locally")
	}
	if err := s.auth.Persist(context.Background(), blob); err != nil {
		s.log.Error().Err(err).Msg("Failed to persist credentials to remote store")
		return
	}
	s.log.Debug().Int("bytes", len(blob)).Msg("Credentials persisted")
}

// Status returns the current connection state snapshot.
func (s *Session) Status() (ConnState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.authenticated
}

// PairingArtifact returns the most recent pairing artifact, or nil once
// authenticated (or before any was issued).
func (s *Session) PairingArtifact() *PairingArtifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.artifact == nil {
		return nil
	}
	cp := *s.artifact
	return &cp
}

func (s *Session) isOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateOpen
}

// revertAllowed reports whether a deferred presence revert may still reach
// the engine: the session must be running and the connection still open.
func (s *Session) revertAllowed() bool {
	select {
	case <-s.stopChan:
		return false
	default:
	}
	return s.isOpen()
}

// SendText sends a plain text message and records it. With deleteOnDelivery
// the record is armed for removal on the first qualifying acknowledgment.
func (s *Session) SendText(ctx context.Context, to, text string, deleteOnDelivery bool) (string, error) {
	if !s.isOpen() {
		return "", ErrNotConnected
	}
	id, err := s.engine.SendText(ctx, to, text)
	if err != nil {
		return "", fmt.Errorf("send text: %w", err)
	}
	s.tracker.Record(id, "text", to, map[string]string{"message": text})
	if deleteOnDelivery {
		s.tracker.ArmDeleteOnDelivery(id)
	}
	return id, nil
}

// SendButtons sends an interactive button message. At most three buttons are
// passed through to the network.
func (s *Session) SendButtons(ctx context.Context, to, text string, buttons []Button) (string, error) {
	if !s.isOpen() {
		return "", ErrNotConnected
	}
	if len(buttons) > 3 {
		buttons = buttons[:3]
	}
	id, err := s.engine.SendButtons(ctx, to, text, buttons)
	if err != nil {
		return "", fmt.Errorf("send buttons: %w", err)
	}
	s.tracker.Record(id, "buttons", to, map[string]any{"text": text, "buttons": buttons})
	return id, nil
}

// SendList sends a selectable list message.
func (s *Session) SendList(ctx context.Context, to, text string, sections []ListSection) (string, error) {
	if !s.isOpen() {
		return "", ErrNotConnected
	}
	id, err := s.engine.SendList(ctx, to, text, sections)
	if err != nil {
		return "", fmt.Errorf("send list: %w", err)
	}
	s.tracker.Record(id, "list", to, map[string]any{"text": text, "sections": sections})
	return id, nil
}

// SendViewOnceMedia sends self-destructing media.
func (s *Session) SendViewOnceMedia(ctx context.Context, to string, data []byte, mimetype string) (string, error) {
	if !s.isOpen() {
		return "", ErrNotConnected
	}
	id, err := s.engine.SendViewOnceMedia(ctx, to, data, mimetype)
	if err != nil {
		return "", fmt.Errorf("send media: %w", err)
	}
	s.tracker.Record(id, "media", to, map[string]any{"mimetype": mimetype, "size": len(data)})
	return id, nil
}

// MarkOnline announces available presence, reverting to unavailable after
// the given duration.
func (s *Session) MarkOnline(duration time.Duration) error {
	if !s.isOpen() {
		return ErrNotConnected
	}
	if err := s.engine.SendPresence(true); err != nil {
		return fmt.Errorf("send presence: %w", err)
	}
	time.AfterFunc(duration, func() {
		if !s.revertAllowed() {
			return
		}
		if err := s.engine.SendPresence(false); err != nil {
			s.log.Warn().Err(err).Msg("Failed to revert presence")
		}
	})
	return nil
}

// MarkTyping subscribes to the chat's presence and announces composing,
// reverting to paused after the given duration.
func (s *Session) MarkTyping(to string, duration time.Duration) error {
	if !s.isOpen() {
		return ErrNotConnected
	}
	if err := s.engine.SubscribePresence(to); err != nil {
		s.log.Warn().Err(err).Str("to", to).Msg("Presence subscription failed")
	}
	if err := s.engine.SendChatPresence(to, true); err != nil {
		return fmt.Errorf("send chat presence: %w", err)
	}
	time.AfterFunc(duration, func() {
		if !s.revertAllowed() {
			return
		}
		if err := s.engine.SendChatPresence(to, false); err != nil {
			s.log.Warn().Err(err).Str("to", to).Msg("Failed to revert chat presence")
		}
	})
	return nil
}

// RequestPairCode asks the network for a phone-pairing code and retains it
// as the current pairing artifact.
func (s *Session) RequestPairCode(ctx context.Context, number string) (string, error) {
	code, err := s.engine.RequestPairCode(ctx, number)
	if err != nil {
		return "", fmt.Errorf("request pair code: %w", err)
	}
	s.mu.Lock()
	s.artifact = &PairingArtifact{PairCode: code}
	s.mu.Unlock()
	return code, nil
}

// Logout is the explicit session reset: it invalidates the credentials on
// the network side, halts the session, and deletes both stored copies.
func (s *Session) Logout(ctx context.Context) error {
	if err := s.engine.Logout(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Network logout failed, resetting stored session anyway")
	}
	s.mu.Lock()
	s.halted = true
	s.state = StateClosed
	s.authenticated = false
	s.artifact = nil
	s.mu.Unlock()
	if err := s.auth.Reset(ctx); err != nil {
		return fmt.Errorf("reset session store: %w", err)
	}
	return nil
}
