// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package timeline

import (
	"cmp"
	"slices"

	"github.com/bureau-foundation/chatsync/lib/ref"
	"github.com/bureau-foundation/chatsync/messaging"
)

type stateKey struct {
	eventType ref.EventType
	key       string
}

// State is a snapshot of room state: the current event for each
// (type, state key) pair. A State is owned by one Timeline and guarded
// by that Timeline's lock.
type State struct {
	events map[stateKey]messaging.Event
}

// NewState returns an empty snapshot.
func NewState() *State {
	return &State{events: make(map[stateKey]messaging.Event)}
}

// Clone returns an independent copy.
func (s *State) Clone() *State {
	clone := NewState()
	for key, event := range s.events {
		event.Content = cloneContent(event.Content)
		clone.events[key] = event
	}
	return clone
}

// Apply records state events in order. Each event's directional
// content is what gets stored, so an event walked backwards restores
// the state it replaced; with no previous content the entry is removed.
func (s *State) Apply(events ...*Event) {
	for _, event := range events {
		stateKeyValue, ok := event.StateKey()
		if !ok {
			continue
		}
		key := stateKey{eventType: event.Type(), key: stateKeyValue}
		content := event.DirectionalContent()
		if content == nil {
			delete(s.events, key)
			continue
		}
		wire := event.Wire()
		wire.Content = cloneContent(content)
		s.events[key] = wire
	}
}

// Event returns the current state event for (eventType, key).
func (s *State) Event(eventType ref.EventType, key string) (messaging.Event, bool) {
	event, ok := s.events[stateKey{eventType: eventType, key: key}]
	return event, ok
}

// Events returns every state event, sorted by type then state key.
func (s *State) Events() []messaging.Event {
	keys := make([]stateKey, 0, len(s.events))
	for key := range s.events {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b stateKey) int {
		if c := cmp.Compare(a.eventType, b.eventType); c != 0 {
			return c
		}
		return cmp.Compare(a.key, b.key)
	})
	events := make([]messaging.Event, len(keys))
	for i, key := range keys {
		events[i] = s.events[key]
	}
	return events
}

// Len returns the number of state entries.
func (s *State) Len() int { return len(s.events) }

// Member resolves userID from m.room.member state.
func (s *State) Member(userID ref.UserID) (Member, bool) {
	event, ok := s.events[stateKey{eventType: ref.EventTypeMember, key: userID.String()}]
	if !ok {
		return Member{}, false
	}
	return memberFromContent(userID, event.Content), true
}

// Members returns every user with membership state, sorted by user ID.
func (s *State) Members() []Member {
	var members []Member
	for key, event := range s.events {
		if key.eventType != ref.EventTypeMember {
			continue
		}
		userID, err := ref.ParseUserID(key.key)
		if err != nil {
			continue
		}
		members = append(members, memberFromContent(userID, event.Content))
	}
	slices.SortFunc(members, func(a, b Member) int {
		return cmp.Compare(a.UserID.String(), b.UserID.String())
	})
	return members
}

func memberFromContent(userID ref.UserID, content map[string]any) Member {
	member := Member{UserID: userID}
	member.Membership, _ = content["membership"].(string)
	member.DisplayName, _ = content["displayname"].(string)
	return member
}
