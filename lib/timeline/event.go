// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package timeline

import (
	"fmt"
	"maps"
	"sync"

	"github.com/bureau-foundation/chatsync/lib/ref"
	"github.com/bureau-foundation/chatsync/messaging"
)

// EventMapper transforms a raw event before it enters a timeline. The
// sync engine and pagination both pass every event through it, which
// is where decryption or content rewriting attaches.
type EventMapper func(messaging.Event) messaging.Event

// Member is a room member as resolved from m.room.member state.
type Member struct {
	UserID      ref.UserID
	Membership  string
	DisplayName string
}

// Name returns the display name, falling back to the user ID.
func (m Member) Name() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.UserID.String()
}

// Event is a timeline entry: the wire payload plus client-local
// annotations. The same *Event is kept for the lifetime of the entry,
// including when a local echo is replaced by its server copy, so
// callers may hold on to it.
type Event struct {
	mu             sync.RWMutex
	wire           messaging.Event
	status         Status
	forwardLooking bool
	sender         *Member
	target         *Member
}

// NewEvent wraps a wire event.
func NewEvent(wire messaging.Event) *Event {
	return &Event{wire: wire, forwardLooking: true}
}

// NewLocalEvent wraps an event the client has created but not yet
// sent, in StatusSending.
func NewLocalEvent(wire messaging.Event) *Event {
	return &Event{wire: wire, forwardLooking: true, status: StatusSending}
}

// Wire returns a copy of the wire payload. The content maps are
// shared and must not be modified.
func (e *Event) Wire() messaging.Event {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.wire
}

func (e *Event) ID() ref.EventID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.wire.EventID
}

func (e *Event) Type() ref.EventType {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.wire.Type
}

func (e *Event) Sender() ref.UserID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.wire.Sender
}

func (e *Event) RoomID() ref.RoomID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.wire.RoomID
}

func (e *Event) Timestamp() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.wire.OriginServerTS
}

// StateKey returns the state key and whether the event is a state event.
func (e *Event) StateKey() (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.wire.StateKey == nil {
		return "", false
	}
	return *e.wire.StateKey, true
}

// Content returns the event content.
func (e *Event) Content() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.wire.Content
}

// PrevContent returns unsigned.prev_content, or nil.
func (e *Event) PrevContent() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.wire.Unsigned == nil {
		return nil
	}
	return e.wire.Unsigned.PrevContent
}

// DirectionalContent returns the content that is current at the
// event's position: the content when forward looking, otherwise the
// previous content.
func (e *Event) DirectionalContent() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.forwardLooking {
		return e.wire.Content
	}
	if e.wire.Unsigned == nil {
		return nil
	}
	return e.wire.Unsigned.PrevContent
}

// ForwardLooking reports whether Content is current at this event.
func (e *Event) ForwardLooking() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.forwardLooking
}

func (e *Event) TransactionID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.wire.TransactionID()
}

// Redacts returns the target of a redaction event.
func (e *Event) Redacts() ref.EventID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.wire.Redacts
}

// IsRedacted reports whether the event has been pruned by a redaction.
func (e *Event) IsRedacted() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.wire.Unsigned != nil && e.wire.Unsigned.RedactedBecause != nil
}

// SenderMember returns the sender as resolved when the event was added.
func (e *Event) SenderMember() (Member, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.sender == nil {
		return Member{}, false
	}
	return *e.sender, true
}

// TargetMember returns the subject of an m.room.member event as
// resolved when the event was added.
func (e *Event) TargetMember() (Member, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.target == nil {
		return Member{}, false
	}
	return *e.target, true
}

func (e *Event) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// SetStatus moves the event to status. Panics if the status graph
// does not allow the move.
func (e *Event) SetStatus(status Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !CanTransition(e.status, status) {
		panic(fmt.Sprintf("timeline: invalid status transition %q -> %q for event %s", e.status, status, e.wire.EventID))
	}
	e.status = status
}

// SetID replaces the event ID, used when the server acknowledges a
// local echo.
func (e *Event) SetID(id ref.EventID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.wire.EventID = id
}

// ReplaceWire swaps in the server's copy of a local echo and clears
// its send status.
func (e *Event) ReplaceWire(wire messaging.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.wire = wire
	e.status = StatusNone
}

// SetContent replaces the content in place.
func (e *Event) SetContent(content map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.wire.Content = content
}

func (e *Event) setForwardLooking(forward bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.forwardLooking = forward
}

func (e *Event) setMembers(sender, target *Member) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sender = sender
	e.target = target
}

// redactedContentKeys lists the content keys that survive redaction.
// Types not listed lose all content.
var redactedContentKeys = map[ref.EventType][]string{
	ref.EventTypeMember:            {"membership"},
	ref.EventTypeCreate:            {"creator"},
	ref.EventTypeJoinRules:         {"join_rule"},
	ref.EventTypePowerLevels:       {"ban", "events", "events_default", "kick", "redact", "state_default", "users", "users_default"},
	ref.EventTypeAliases:           {"aliases"},
	ref.EventTypeHistoryVisibility: {"history_visibility"},
}

// Prune strips the event down to the fields that survive redaction and
// records the redaction in unsigned.redacted_because.
func (e *Event) Prune(redaction messaging.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	content := make(map[string]any)
	for _, key := range redactedContentKeys[e.wire.Type] {
		if value, ok := e.wire.Content[key]; ok {
			content[key] = value
		}
	}

	var unsigned messaging.EventUnsigned
	if e.wire.Unsigned != nil {
		unsigned = *e.wire.Unsigned
	}
	unsigned.RedactedBecause = &redaction

	e.wire = messaging.Event{
		EventID:        e.wire.EventID,
		Type:           e.wire.Type,
		Sender:         e.wire.Sender,
		OriginServerTS: e.wire.OriginServerTS,
		Content:        content,
		RoomID:         e.wire.RoomID,
		StateKey:       e.wire.StateKey,
		Unsigned:       &unsigned,
	}
}

// cloneContent copies the top level of a content map.
func cloneContent(content map[string]any) map[string]any {
	if content == nil {
		return nil
	}
	return maps.Clone(content)
}
