// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

// EventType identifies a Matrix state, timeline, ephemeral, or account
// data event type.
//
// EventType is a named string type, not a struct wrapper: event types
// are opaque identifiers that need no parsing or validation. The type
// exists purely for compile-time safety, preventing accidental use of
// a state key where an event type is expected (or vice versa).
type EventType string

// String returns the event type string (e.g., "m.room.message").
func (t EventType) String() string { return string(t) }

// Event types the sync library interprets.
const (
	EventTypeMessage           EventType = "m.room.message"
	EventTypeMember            EventType = "m.room.member"
	EventTypeCreate            EventType = "m.room.create"
	EventTypeJoinRules         EventType = "m.room.join_rules"
	EventTypePowerLevels       EventType = "m.room.power_levels"
	EventTypeAliases           EventType = "m.room.aliases"
	EventTypeHistoryVisibility EventType = "m.room.history_visibility"
	EventTypeRoomName          EventType = "m.room.name"
	EventTypeTopic             EventType = "m.room.topic"
	EventTypeRedaction         EventType = "m.room.redaction"
	EventTypeReaction          EventType = "m.reaction"
	EventTypeReceipt           EventType = "m.receipt"
	EventTypeTyping            EventType = "m.typing"
	EventTypePresence          EventType = "m.presence"
	EventTypeFullyRead         EventType = "m.fully_read"
)
