// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package room

import (
	"slices"

	"github.com/bureau-foundation/chatsync/lib/ref"
	"github.com/bureau-foundation/chatsync/messaging"
)

// AddAccountData records room account data events, keeping the latest
// per type.
func (r *Room) AddAccountData(events []messaging.Event) {
	r.mu.Lock()
	var out outbox
	for _, event := range events {
		r.accountData[event.Type] = event
		out.add(Notification{Kind: KindAccountData, RoomID: r.id, AccountData: event})
	}
	r.mu.Unlock()
	r.dispatch(out)
}

// AccountData returns the latest room account data of eventType.
func (r *Room) AccountData(eventType ref.EventType) (messaging.Event, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	event, ok := r.accountData[eventType]
	return event, ok
}

// SetTypingEvent records the user list of an m.typing ephemeral event.
func (r *Room) SetTypingEvent(wire messaging.Event) {
	raw, _ := wire.Content["user_ids"].([]any)
	users := make([]ref.UserID, 0, len(raw))
	for _, entry := range raw {
		text, ok := entry.(string)
		if !ok {
			continue
		}
		if userID, err := ref.ParseUserID(text); err == nil {
			users = append(users, userID)
		}
	}

	r.mu.Lock()
	var out outbox
	if !slices.Equal(users, r.typing) {
		r.typing = users
		out.add(Notification{Kind: KindTyping, RoomID: r.id, Typing: slices.Clone(users)})
	}
	r.mu.Unlock()
	r.dispatch(out)
}

// TypingUsers returns the users currently typing.
func (r *Room) TypingUsers() []ref.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.typing)
}

// SetUnreadCounts records the server's notification counts.
func (r *Room) SetUnreadCounts(counts UnreadCounts) {
	r.mu.Lock()
	var out outbox
	if counts != r.unread {
		r.unread = counts
		out.add(Notification{Kind: KindUnread, RoomID: r.id, Unread: counts})
	}
	r.mu.Unlock()
	r.dispatch(out)
}

// UnreadCounts returns the server's notification counts.
func (r *Room) UnreadCounts() UnreadCounts {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.unread
}
