// Copyright 2024-2026 Aiku AI

package gateway

import "sync"

// OutboundRecord describes a message the gateway has sent, keyed by the
// message identifier the engine assigned at send time.
type OutboundRecord struct {
	Type string `json:"type"`
	To   string `json:"to"`
	// Payload is an opaque description of what was sent (text body,
	// button set, media summary).
	Payload any `json:"payload"`
}

// Tracker is the outbound message bookkeeper. It holds the sent-message
// records and the delete-on-delivery flag set under a single lock so that a
// delivery acknowledgment and an explicit delete racing on the same id have
// exactly one winner.
//
// Records never expire by time. A message whose recipient never acknowledges
// stays recorded until an explicit delete; that unbounded growth is accepted.
type Tracker struct {
	mu      sync.Mutex
	records map[string]*OutboundRecord
	armed   map[string]struct{}
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		records: make(map[string]*OutboundRecord),
		armed:   make(map[string]struct{}),
	}
}

// Record inserts or overwrites the outbound record for id.
func (t *Tracker) Record(id, msgType, to string, payload any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records[id] = &OutboundRecord{Type: msgType, To: to, Payload: payload}
}

// ArmDeleteOnDelivery flags id for removal on the next qualifying delivery
// acknowledgment. Arming an id that was never recorded is a no-op.
func (t *Tracker) ArmDeleteOnDelivery(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.records[id]; !ok {
		return
	}
	t.armed[id] = struct{}{}
}

// OnDeliveryAck applies a delivery acknowledgment. If id is armed and the
// level qualifies (delivered or read), the record and the flag are removed
// together. Returns whether a record was removed.
func (t *Tracker) OnDeliveryAck(id string, level AckLevel) bool {
	if !level.Qualifies() {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.armed[id]; !ok {
		return false
	}
	delete(t.armed, id)
	if _, ok := t.records[id]; !ok {
		return false
	}
	delete(t.records, id)
	return true
}

// Delete removes the record for id explicitly and clears any armed flag,
// regardless of whether a record still existed. Returns whether one did.
func (t *Tracker) Delete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.armed, id)
	if _, ok := t.records[id]; !ok {
		return false
	}
	delete(t.records, id)
	return true
}

// Get returns the record for id, if any.
func (t *Tracker) Get(id string) (*OutboundRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[id]
	return rec, ok
}

// Armed reports whether id is in the delete-on-delivery flag set.
func (t *Tracker) Armed(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.armed[id]
	return ok
}
