// Copyright 2024-2026 Aiku AI

package gateway

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by send and presence operations when there is
// no open connection to the network.
var ErrNotConnected = errors.New("not connected to WhatsApp")

// ErrEngineHalted is returned after a terminal disconnect (credentials
// revoked). A fresh pairing is required before the session can be used again.
var ErrEngineHalted = errors.New("session halted, re-pairing required")

// ValidationError reports a missing or malformed request field. Handlers
// return it before any engine call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Reason)
}

// missingField builds the common "field is required" validation error.
func missingField(field string) *ValidationError {
	return &ValidationError{Field: field, Reason: "is required"}
}
