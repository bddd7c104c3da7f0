// Copyright 2024-2026 Aiku AI

package gateway

import "strings"

// DefaultUserServer is the server part of a canonical user address.
const DefaultUserServer = "s.whatsapp.net"

// NormalizeJID translates a destination input into canonical network address
// form. Inputs that already look like an address (contain '@') pass through
// unchanged; anything else is stripped down to its digits and qualified with
// the default user server. The function is idempotent:
// NormalizeJID(NormalizeJID(x)) == NormalizeJID(x).
func NormalizeJID(input string) string {
	if strings.ContainsRune(input, '@') {
		return input
	}
	var digits strings.Builder
	for _, r := range input {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	return digits.String() + "@" + DefaultUserServer
}

// destination picks the address from a request that may carry either a raw
// phone number or an already-qualified JID, preferring the JID. Inputs that
// normalize to an empty user part (no digits at all) fail validation instead
// of reaching the engine.
func destination(number, jid string) (string, error) {
	input, field := jid, "jid"
	if input == "" {
		input, field = number, "number"
	}
	if input == "" {
		return "", missingField("number or jid")
	}
	norm := NormalizeJID(input)
	if strings.HasPrefix(norm, "@") {
		return "", &ValidationError{Field: field, Reason: "contains no digits"}
	}
	return norm, nil
}
