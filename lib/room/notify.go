// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package room

import (
	"github.com/bureau-foundation/chatsync/lib/ref"
	"github.com/bureau-foundation/chatsync/lib/timeline"
	"github.com/bureau-foundation/chatsync/messaging"
)

// Kind identifies what changed in a Notification.
type Kind int

const (
	// KindTimeline: Event was added to Timeline, or replaced in place
	// when Replaced is set.
	KindTimeline Kind = iota
	// KindTimelineReset: the live timeline was replaced after a gap.
	KindTimelineReset
	// KindRedaction: Event was pruned by a redaction.
	KindRedaction
	// KindReceipt: Receipts were recorded.
	KindReceipt
	// KindLocalEchoUpdated: a local echo changed status or ID.
	// PreviousID holds the ID before the change.
	KindLocalEchoUpdated
	// KindAccountData: room account data of AccountData.Type changed.
	KindAccountData
	// KindTyping: the typing user list changed.
	KindTyping
	// KindMembership: the local user's membership changed.
	KindMembership
	// KindUnread: the unread notification counts changed.
	KindUnread
)

var kindNames = [...]string{
	KindTimeline:         "timeline",
	KindTimelineReset:    "timeline_reset",
	KindRedaction:        "redaction",
	KindReceipt:          "receipt",
	KindLocalEchoUpdated: "local_echo_updated",
	KindAccountData:      "account_data",
	KindTyping:           "typing",
	KindMembership:       "membership",
	KindUnread:           "unread",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Notification describes one change to a room. Only the fields that
// apply to Kind are set.
type Notification struct {
	Kind   Kind
	RoomID ref.RoomID

	Event    *timeline.Event
	Timeline timeline.ID
	AtStart  bool
	// Live is set for events appended to the live timeline.
	Live     bool
	Replaced bool

	PreviousID     ref.EventID
	PreviousStatus timeline.Status

	Receipts    []Receipt
	AccountData messaging.Event
	Typing      []ref.UserID
	Membership  string
	Unread      UnreadCounts
}

// Observer receives room notifications.
type Observer interface {
	OnRoomEvent(Notification)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Notification)

func (f ObserverFunc) OnRoomEvent(n Notification) { f(n) }

// outbox collects notifications while the room lock is held.
type outbox []Notification

func (o *outbox) add(n Notification) { *o = append(*o, n) }
