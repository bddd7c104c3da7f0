// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package gateway exposes a single WhatsApp session over an HTTP API.
//
// # Core Types
//
// [Session] is the connection manager. It owns the one live connection to
// the protocol engine, runs the reconnect state machine, and is the single
// consumer of the engine's event channel. Non-terminal drops are retried on
// a fixed delay forever; a logged-out signal halts the machine until the
// operator re-pairs.
//
// [AuthStore] reconciles the session credential blob between the engine's
// local session file and a remote key→blob table. The remote copy wins on
// cold boot; every rotation writes local first, then remote.
//
// [Tracker] keeps outbound message records and the delete-on-delivery flag
// set under one lock, so an explicit delete and a delivery acknowledgment
// racing on the same id have exactly one winner.
//
// [Relay] forwards inbound messages to the webhook with at-most-once
// semantics: one POST per message, and the envelope is discarded whether the
// POST succeeds or fails. There is deliberately no retry queue.
//
// [Engine] is the protocol-engine boundary; the production implementation
// over whatsmeow lives in the wameow subpackage, tests use a fake.
//
// # Known limitations
//
// Reconnect attempts are unbounded with a fixed delay, outbound records for
// never-acknowledged messages grow without bound, and running two instances
// against the same session races on both stores. All three are accepted
// trade-offs of the single-instance design.
package gateway
