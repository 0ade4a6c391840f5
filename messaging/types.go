// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"github.com/bureau-foundation/chatsync/lib/ref"
)

// AuthResponse is returned by Login and guest registration.
type AuthResponse struct {
	UserID      ref.UserID `json:"user_id"`
	AccessToken string     `json:"access_token"`
	DeviceID    string     `json:"device_id"`
}

// LoginRequest is the request body for password login.
type LoginRequest struct {
	Type                     string `json:"type"`
	User                     string `json:"user"`
	Password                 string `json:"password"`
	DeviceID                 string `json:"device_id,omitempty"`
	InitialDeviceDisplayName string `json:"initial_device_display_name,omitempty"`
}

// Event represents a Matrix event as delivered by the server. The same
// shape carries timeline, state, ephemeral, account data, and presence
// events; fields that do not apply are left zero.
type Event struct {
	EventID        ref.EventID    `json:"event_id,omitempty"`
	Type           ref.EventType  `json:"type"`
	Sender         ref.UserID     `json:"sender,omitempty"`
	OriginServerTS int64          `json:"origin_server_ts,omitempty"`
	Content        map[string]any `json:"content"`
	RoomID         ref.RoomID     `json:"room_id,omitempty"`
	StateKey       *string        `json:"state_key,omitempty"`
	Redacts        ref.EventID    `json:"redacts,omitempty"`
	Unsigned       *EventUnsigned `json:"unsigned,omitempty"`
}

// EventUnsigned holds optional unsigned data attached to events.
type EventUnsigned struct {
	Age             int64          `json:"age,omitempty"`
	TransactionID   string         `json:"transaction_id,omitempty"`
	PrevContent     map[string]any `json:"prev_content,omitempty"`
	RedactedBecause *Event         `json:"redacted_because,omitempty"`
}

// IsState reports whether the event carries a state key.
func (e *Event) IsState() bool { return e.StateKey != nil }

// TransactionID returns unsigned.transaction_id, or "" when absent.
func (e *Event) TransactionID() string {
	if e.Unsigned == nil {
		return ""
	}
	return e.Unsigned.TransactionID
}

// StringPtr returns a pointer to s, for building state events.
func StringPtr(s string) *string { return &s }

// RoomMessagesOptions controls pagination for room message fetching.
type RoomMessagesOptions struct {
	From      string // pagination token; empty means "from now"
	Direction string // "b" (backward/older) or "f" (forward/newer)
	Limit     int    // max events to return; 0 uses server default
	Filter    string // optional inline RoomEventFilter JSON
}

// RoomMessagesResponse is returned by RoomMessages. Chunk is ordered in
// the direction of travel: newest first for backward pagination.
type RoomMessagesResponse struct {
	Start string  `json:"start"`
	End   string  `json:"end,omitempty"`
	Chunk []Event `json:"chunk"`
	State []Event `json:"state,omitempty"`
}

// RoomContextResponse is returned by RoomContext. EventsBefore is
// ordered newest first, EventsAfter oldest first.
type RoomContextResponse struct {
	Start        string  `json:"start"`
	End          string  `json:"end"`
	Event        Event   `json:"event"`
	EventsBefore []Event `json:"events_before"`
	EventsAfter  []Event `json:"events_after"`
	State        []Event `json:"state"`
}

// SyncOptions controls the behavior of the /sync endpoint.
type SyncOptions struct {
	Since       string // next_batch token from previous sync; empty for initial sync
	Timeout     int    // long-poll timeout in milliseconds; 0 for immediate return
	SetTimeout  bool   // if true, send the timeout parameter (needed to distinguish "not set" from "0")
	Filter      string // filter ID or inline JSON filter
	FullState   bool   // request full room state regardless of since
	SetPresence string // "online", "offline", or "unavailable"; empty leaves it unset
}

// SyncResponse is the top-level response from /sync.
type SyncResponse struct {
	NextBatch   string              `json:"next_batch"`
	Presence    EventSection        `json:"presence,omitempty"`
	AccountData EventSection        `json:"account_data,omitempty"`
	Rooms       RoomsSection        `json:"rooms"`
	ToDevice    EventSection        `json:"to_device,omitempty"`
	DeviceLists *DeviceListsSection `json:"device_lists,omitempty"`
}

// EventSection is a bare list of events, used for presence, account
// data, ephemeral, and to-device sections.
type EventSection struct {
	Events []Event `json:"events"`
}

// DeviceListsSection reports users whose device lists changed.
type DeviceListsSection struct {
	Changed []ref.UserID `json:"changed,omitempty"`
	Left    []ref.UserID `json:"left,omitempty"`
}

// RoomsSection contains per-room sync data grouped by membership state.
// Map keys are room IDs; encoding/json uses ref.RoomID's TextUnmarshaler
// for automatic validation at deserialization.
type RoomsSection struct {
	Join   map[ref.RoomID]JoinedRoom  `json:"join,omitempty"`
	Invite map[ref.RoomID]InvitedRoom `json:"invite,omitempty"`
	Leave  map[ref.RoomID]LeftRoom    `json:"leave,omitempty"`
}

// JoinedRoom contains sync data for a room the user has joined.
type JoinedRoom struct {
	Timeline            TimelineSection     `json:"timeline"`
	State               EventSection        `json:"state"`
	Ephemeral           EventSection        `json:"ephemeral"`
	AccountData         EventSection        `json:"account_data"`
	UnreadNotifications UnreadNotifications `json:"unread_notifications"`
}

// UnreadNotifications carries the server-computed notification counts.
type UnreadNotifications struct {
	NotificationCount int `json:"notification_count"`
	HighlightCount    int `json:"highlight_count"`
}

// InvitedRoom contains sync data for a room the user was invited to.
type InvitedRoom struct {
	InviteState EventSection `json:"invite_state"`
}

// LeftRoom contains sync data for a room the user has left.
type LeftRoom struct {
	Timeline    TimelineSection `json:"timeline"`
	State       EventSection    `json:"state"`
	AccountData EventSection    `json:"account_data"`
}

// TimelineSection contains timeline events from a sync response.
type TimelineSection struct {
	Events    []Event `json:"events"`
	PrevBatch string  `json:"prev_batch"`
	Limited   bool    `json:"limited"`
}

// SendEventResponse is returned by SendEvent, SendStateEvent, and Redact.
type SendEventResponse struct {
	EventID ref.EventID `json:"event_id"`
}

// CreateFilterResponse is returned by CreateFilter.
type CreateFilterResponse struct {
	FilterID string `json:"filter_id"`
}

// ServerVersionsResponse is returned by ServerVersions.
type ServerVersionsResponse struct {
	Versions         []string        `json:"versions"`
	UnstableFeatures map[string]bool `json:"unstable_features,omitempty"`
}
