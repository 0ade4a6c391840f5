// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package timeline

import (
	"github.com/bureau-foundation/chatsync/lib/ref"
	"github.com/bureau-foundation/chatsync/messaging"
)

var testRoom = ref.MustParseRoomID("!room:example.org")

func message(id, sender string) *Event {
	return NewEvent(messaging.Event{
		EventID: ref.MustParseEventID(id),
		Type:    ref.EventTypeMessage,
		Sender:  ref.MustParseUserID(sender),
		RoomID:  testRoom,
		Content: map[string]any{"msgtype": "m.text", "body": id},
	})
}

func member(id, userID, membership, displayName string, prev map[string]any) *Event {
	wire := messaging.Event{
		EventID:  ref.MustParseEventID(id),
		Type:     ref.EventTypeMember,
		Sender:   ref.MustParseUserID(userID),
		RoomID:   testRoom,
		StateKey: messaging.StringPtr(userID),
		Content:  map[string]any{"membership": membership, "displayname": displayName},
	}
	if prev != nil {
		wire.Unsigned = &messaging.EventUnsigned{PrevContent: prev}
	}
	return NewEvent(wire)
}

func ids(events []*Event) []string {
	out := make([]string, len(events))
	for i, event := range events {
		out[i] = event.ID().String()
	}
	return out
}
