// Package editlock coordinates advisory edit leases on documents between
// independent editing contexts. Contexts share nothing but a key-value store
// and a broadcast channel; there is no lock server.
package editlock

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Record is the lease stored per document.
type Record struct {
	Owner   string `json:"owner"`
	Expires int64  `json:"expires"` // unix milliseconds
}

// ExpiresAt returns the expiry as a time.
func (r Record) ExpiresAt() time.Time {
	return time.UnixMilli(r.Expires)
}

// Live reports whether the lease is still valid at now.
func (r Record) Live(now time.Time) bool {
	return r.Expires > now.UnixMilli()
}

func encodeRecord(r Record) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode lock record: %w", err)
	}
	return string(data), nil
}

func decodeRecord(raw string) (Record, error) {
	var r Record
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return Record{}, fmt.Errorf("decode lock record: %w", err)
	}
	return r, nil
}

// State is what a context believes about a document's lease.
type State string

const (
	Unclaimed  State = "unclaimed"
	OwnedLocal State = "owned_local"
	OwnedOther State = "owned_other"
)

// Status is the observable lock state of one coordinator.
type Status struct {
	State    State  `json:"state"`
	Owner    string `json:"owner,omitempty"`
	Expires  int64  `json:"expires,omitempty"`
	Degraded bool   `json:"degraded,omitempty"`
}

// LockedByOther reports whether another context holds a live lease.
func (s Status) LockedByOther() bool {
	return s.State == OwnedOther
}

// MessageType names a broadcast notification.
type MessageType string

const (
	MessageClaim   MessageType = "claim"
	MessageRelease MessageType = "release"
)

// Message is sent on a document's channel whenever a context claims or
// releases the lease. Instance identifies the sending coordinator so it can
// ignore its own echo.
type Message struct {
	Type     MessageType `cbor:"type"`
	Owner    string      `cbor:"owner"`
	Instance string      `cbor:"instance"`
}

func encodeMessage(m Message) ([]byte, error) {
	data, err := cbor.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode lock message: %w", err)
	}
	return data, nil
}

func decodeMessage(data []byte) (Message, error) {
	var m Message
	if err := cbor.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode lock message: %w", err)
	}
	return m, nil
}

// LockKey is the storage key and broadcast channel of a document's lease.
func LockKey(docID string) string {
	return "edit-lock:" + docID
}
