// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// EventID is a validated Matrix event ID (e.g., "$abc123xyz").
//
// Server-assigned IDs start with '$'. In room version 4+ they are
// "$base64hash" (no ":server" suffix); older versions use
// "$something:server". Both are treated as opaque.
//
// Locally generated placeholders for events that have not yet been
// acknowledged by the server start with '~' and have the form
// "~<roomID>:<transactionID>". IsLocal distinguishes them.
//
// EventID is an immutable value type. The zero value is not valid;
// use IsZero to check.
type EventID struct {
	id string
}

// ParseEventID validates and wraps a raw event ID string. Both server
// ('$') and local ('~') forms are accepted.
func ParseEventID(raw string) (EventID, error) {
	if raw == "" {
		return EventID{}, fmt.Errorf("empty event ID")
	}
	if raw[0] != '$' && raw[0] != '~' {
		return EventID{}, fmt.Errorf("event ID must start with '$': %q", raw)
	}
	if len(raw) == 1 {
		return EventID{}, fmt.Errorf("event ID has no content after %q: %q", raw[0], raw)
	}
	return EventID{id: raw}, nil
}

// MustParseEventID is like ParseEventID but panics on error. Use in
// tests and for compile-time constants.
func MustParseEventID(raw string) EventID {
	e, err := ParseEventID(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseEventID(%q): %v", raw, err))
	}
	return e
}

// LocalEventID returns the placeholder ID for an event the client has
// created but the server has not yet acknowledged.
func LocalEventID(roomID RoomID, transactionID string) EventID {
	return EventID{id: "~" + roomID.String() + ":" + transactionID}
}

// String returns the event ID string.
func (e EventID) String() string { return e.id }

// IsZero reports whether the EventID is the zero value (uninitialized).
func (e EventID) IsZero() bool { return e.id == "" }

// IsLocal reports whether the ID is a client-side placeholder.
func (e EventID) IsLocal() bool { return strings.HasPrefix(e.id, "~") }

// MarshalText implements encoding.TextMarshaler for JSON and other
// text-based serialization formats.
func (e EventID) MarshalText() ([]byte, error) {
	if e.id == "" {
		return nil, nil
	}
	return []byte(e.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for JSON and other
// text-based serialization formats. Validates the event ID format.
// An empty input produces the zero value (unset event ID).
func (e *EventID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*e = EventID{}
		return nil
	}
	parsed, err := ParseEventID(string(data))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
