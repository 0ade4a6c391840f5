// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messagingtest

import (
	"github.com/bureau-foundation/chatsync/lib/ref"
	"github.com/bureau-foundation/chatsync/messaging"
)

// Message builds an m.room.message timeline event.
func Message(eventID, sender, body string, timestamp int64) messaging.Event {
	return messaging.Event{
		EventID:        ref.MustParseEventID(eventID),
		Type:           ref.EventTypeMessage,
		Sender:         ref.MustParseUserID(sender),
		OriginServerTS: timestamp,
		Content:        map[string]any{"msgtype": "m.text", "body": body},
	}
}

// Member builds an m.room.member state event for userID.
func Member(eventID, userID, membership, displayName string) messaging.Event {
	content := map[string]any{"membership": membership}
	if displayName != "" {
		content["displayname"] = displayName
	}
	return messaging.Event{
		EventID:  ref.MustParseEventID(eventID),
		Type:     ref.EventTypeMember,
		Sender:   ref.MustParseUserID(userID),
		StateKey: messaging.StringPtr(userID),
		Content:  content,
	}
}

// State builds a generic state event.
func State(eventID, sender string, eventType ref.EventType, stateKey string, content map[string]any) messaging.Event {
	return messaging.Event{
		EventID:  ref.MustParseEventID(eventID),
		Type:     eventType,
		Sender:   ref.MustParseUserID(sender),
		StateKey: messaging.StringPtr(stateKey),
		Content:  content,
	}
}

// Redaction builds an m.room.redaction event targeting redacts.
func Redaction(eventID, sender, redacts string) messaging.Event {
	return messaging.Event{
		EventID: ref.MustParseEventID(eventID),
		Type:    ref.EventTypeRedaction,
		Sender:  ref.MustParseUserID(sender),
		Redacts: ref.MustParseEventID(redacts),
		Content: map[string]any{},
	}
}

// Receipt builds an m.receipt ephemeral event with one m.read receipt.
func Receipt(eventID, userID string, timestamp int64) messaging.Event {
	return messaging.Event{
		Type: ref.EventTypeReceipt,
		Content: map[string]any{
			eventID: map[string]any{
				"m.read": map[string]any{
					userID: map[string]any{"ts": float64(timestamp)},
				},
			},
		},
	}
}

// WithTransactionID returns event with unsigned.transaction_id set.
func WithTransactionID(event messaging.Event, transactionID string) messaging.Event {
	if event.Unsigned == nil {
		event.Unsigned = &messaging.EventUnsigned{}
	} else {
		unsigned := *event.Unsigned
		event.Unsigned = &unsigned
	}
	event.Unsigned.TransactionID = transactionID
	return event
}

// JoinedSync builds a sync response with a single joined room.
func JoinedSync(nextBatch string, roomID ref.RoomID, joined messaging.JoinedRoom) *messaging.SyncResponse {
	return &messaging.SyncResponse{
		NextBatch: nextBatch,
		Rooms: messaging.RoomsSection{
			Join: map[ref.RoomID]messaging.JoinedRoom{roomID: joined},
		},
	}
}
