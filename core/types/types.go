package types

import (
	"encoding/hex"
	"errors"
	"strings"
)

// Address identifies an account within the protocol. Operations are keyed by
// the raw 20-byte form; the hex rendering is only used for state keys and
// event attributes.
type Address [20]byte

// ErrInvalidAddress reports a malformed textual address.
var ErrInvalidAddress = errors.New("types: invalid address")

// Hex renders the address as a lowercase hex string without a prefix.
func (a Address) Hex() string {
	return hex.EncodeToString(a[:])
}

// IsZero reports whether the address is entirely unset.
func (a Address) IsZero() bool {
	return a == Address{}
}

// AddressFromHex parses a 40-character hex string, with or without a 0x
// prefix, into an Address.
func AddressFromHex(s string) (Address, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil || len(raw) != 20 {
		return Address{}, ErrInvalidAddress
	}
	var addr Address
	copy(addr[:], raw)
	return addr, nil
}

// Event is a typed record emitted while applying a message. Events are the
// module's observable output; they are buffered per message and surface in
// the receipt.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
