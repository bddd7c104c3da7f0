// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package gateway

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeEngine is a scriptable Engine. Tests push events into Emit and inspect
// the recorded calls.
type fakeEngine struct {
	mu sync.Mutex

	events chan Event

	connectCalls int
	connectErr   error

	nextID    int
	sendCalls []fakeSend
	sendErr   error

	presence     []bool
	chatPresence []fakeChatPresence
	subscribed   []string

	pairCode    string
	pairCodeErr error

	loggedOut    bool
	disconnected bool
}

type fakeSend struct {
	Kind string
	To   string
	Text string
}

type fakeChatPresence struct {
	To        string
	Composing bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{events: make(chan Event, 64)}
}

// Emit delivers an event as if the network pushed it.
func (f *fakeEngine) Emit(evt Event) {
	f.events <- evt
}

func (f *fakeEngine) Connect(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
	return f.connectErr
}

func (f *fakeEngine) ConnectCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectCalls
}

func (f *fakeEngine) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
}

func (f *fakeEngine) Logout(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedOut = true
	return nil
}

func (f *fakeEngine) Events() <-chan Event {
	return f.events
}

func (f *fakeEngine) recordSend(kind, to, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.nextID++
	f.sendCalls = append(f.sendCalls, fakeSend{Kind: kind, To: to, Text: text})
	return fmt.Sprintf("MSG-%d", f.nextID), nil
}

func (f *fakeEngine) SendCalls() []fakeSend {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]fakeSend, len(f.sendCalls))
	copy(cp, f.sendCalls)
	return cp
}

func (f *fakeEngine) SendText(_ context.Context, to, text string) (string, error) {
	return f.recordSend("text", to, text)
}

func (f *fakeEngine) SendButtons(_ context.Context, to, text string, _ []Button) (string, error) {
	return f.recordSend("buttons", to, text)
}

func (f *fakeEngine) SendList(_ context.Context, to, text string, _ []ListSection) (string, error) {
	return f.recordSend("list", to, text)
}

func (f *fakeEngine) SendViewOnceMedia(_ context.Context, to string, _ []byte, mimetype string) (string, error) {
	return f.recordSend("media", to, mimetype)
}

func (f *fakeEngine) SendPresence(available bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presence = append(f.presence, available)
	return nil
}

func (f *fakeEngine) Presence() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]bool, len(f.presence))
	copy(cp, f.presence)
	return cp
}

func (f *fakeEngine) SubscribePresence(to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, to)
	return nil
}

func (f *fakeEngine) SendChatPresence(to string, composing bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatPresence = append(f.chatPresence, fakeChatPresence{To: to, Composing: composing})
	return nil
}

func (f *fakeEngine) ChatPresence() []fakeChatPresence {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]fakeChatPresence, len(f.chatPresence))
	copy(cp, f.chatPresence)
	return cp
}

func (f *fakeEngine) RequestPairCode(_ context.Context, _ string) (string, error) {
	return f.pairCode, f.pairCodeErr
}

// fakeCredStore counts credential store calls for persistence-order tests.
type fakeCredStore struct {
	mu        sync.Mutex
	locals    [][]byte
	remotes   [][]byte
	resets    int
	localErr  error
	remoteErr error

	// persistDelay stalls the next Persist call once, simulating a slow
	// remote store.
	persistDelay time.Duration
}

func (f *fakeCredStore) setPersistDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.persistDelay = d
}

func (f *fakeCredStore) SaveLocal(blob []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.localErr != nil {
		return f.localErr
	}
	f.locals = append(f.locals, blob)
	return nil
}

func (f *fakeCredStore) Persist(_ context.Context, blob []byte) error {
	f.mu.Lock()
	delay := f.persistDelay
	f.persistDelay = 0
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remoteErr != nil {
		return f.remoteErr
	}
	// The local write for this blob must already have happened.
	f.remotes = append(f.remotes, blob)
	return nil
}

func (f *fakeCredStore) Reset(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return nil
}

func (f *fakeCredStore) Counts() (locals, remotes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.locals), len(f.remotes)
}

// remoteLog returns the remote writes in the order they landed.
func (f *fakeCredStore) remoteLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	log := make([]string, len(f.remotes))
	for i, blob := range f.remotes {
		log[i] = string(blob)
	}
	return log
}

// newTestSession builds a started session around a fake engine with a short
// reconnect delay, a fake credential store and no webhook.
func newTestSession(t *testing.T) (*Session, *fakeEngine, *fakeCredStore) {
	t.Helper()
	engine := newFakeEngine()
	creds := &fakeCredStore{}
	tracker := NewTracker()
	relay := NewRelay("", zerolog.Nop())
	s := NewSession(engine, creds, tracker, relay, zerolog.Nop())
	s.reconnectDelay = 10 * time.Millisecond
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(s.Stop)
	return s, engine, creds
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
