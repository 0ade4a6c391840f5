// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package timeline

import (
	"sync"

	"github.com/bureau-foundation/chatsync/lib/ref"
	"github.com/bureau-foundation/chatsync/messaging"
)

// Timeline is a contiguous run of events with state snapshots at both
// ends. Create timelines with [Arena.New]; neighbour links live in the
// arena.
type Timeline struct {
	id     ID
	roomID ref.RoomID

	mu         sync.RWMutex
	events     []*Event
	baseIndex  int
	startState *State
	endState   *State
	tokens     [2]string
}

func newTimeline(id ID, roomID ref.RoomID) *Timeline {
	return &Timeline{
		id:         id,
		roomID:     roomID,
		startState: NewState(),
		endState:   NewState(),
	}
}

func (t *Timeline) ID() ID { return t.id }

func (t *Timeline) RoomID() ref.RoomID { return t.roomID }

// Len returns the number of events.
func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.events)
}

// BaseIndex returns the buffer offset of relative index 0. It grows by
// one for every event added at the start.
func (t *Timeline) BaseIndex() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.baseIndex
}

// Bounds returns the smallest relative index and one past the largest.
func (t *Timeline) Bounds() (minIndex, maxIndex int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return -t.baseIndex, len(t.events) - t.baseIndex
}

// Events returns a copy of the event list, oldest first.
func (t *Timeline) Events() []*Event {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]*Event(nil), t.events...)
}

// View returns the event list and base index read under one lock.
func (t *Timeline) View() ([]*Event, int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]*Event(nil), t.events...), t.baseIndex
}

// Slice returns the events between relative indices from (inclusive)
// and to (exclusive), clamped to the timeline.
func (t *Timeline) Slice(from, to int) []*Event {
	t.mu.RLock()
	defer t.mu.RUnlock()
	start := max(from+t.baseIndex, 0)
	end := min(to+t.baseIndex, len(t.events))
	if start >= end {
		return nil
	}
	return append([]*Event(nil), t.events[start:end]...)
}

// Last returns the newest event, or nil when empty.
func (t *Timeline) Last() *Event {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.events) == 0 {
		return nil
	}
	return t.events[len(t.events)-1]
}

// IndexOf returns the relative index of the event with the given ID.
func (t *Timeline) IndexOf(id ref.EventID) (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := len(t.events) - 1; i >= 0; i-- {
		if t.events[i].ID() == id {
			return i - t.baseIndex, true
		}
	}
	return 0, false
}

// Token returns the pagination token for direction.
func (t *Timeline) Token(direction Direction) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tokens[direction.index()]
}

// SetToken sets the pagination token for direction. An empty token
// means there is nothing more to fetch that way.
func (t *Timeline) SetToken(direction Direction, token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tokens[direction.index()] = token
}

// StartState returns a copy of the state before the first event.
func (t *Timeline) StartState() *State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.startState.Clone()
}

// EndState returns a copy of the state after the last event.
func (t *Timeline) EndState() *State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.endState.Clone()
}

// InitialiseState sets both snapshots from a list of state events.
// Panics if the timeline already holds events, since the snapshots
// would no longer describe its ends.
func (t *Timeline) InitialiseState(events []messaging.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.events) != 0 {
		panic("timeline: InitialiseState called on a timeline with events")
	}
	for _, wire := range events {
		event := NewEvent(wire)
		t.startState.Apply(event)
		t.endState.Apply(event)
	}
}

// ForkStateFrom makes both snapshots copies of other's end state. A new
// live timeline starts where the previous one ended.
func (t *Timeline) ForkStateFrom(other *Timeline) {
	state := other.EndState()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startState = state
	t.endState = state.Clone()
}

// ApplyEndState updates the end snapshot without adding events, used
// for the state section of a sync response.
func (t *Timeline) ApplyEndState(events []messaging.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, wire := range events {
		t.endState.Apply(NewEvent(wire))
	}
}

// AddEvent inserts event at the start or end. The sender (and for
// membership events the target) are resolved against the state at the
// insertion end. A state event added at the start is marked not
// forward looking and folded into the start state, so the snapshot
// reflects the state before it.
func (t *Timeline) AddEvent(event *Event, atStart bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.endState
	if atStart {
		state = t.startState
	}

	var sender, target *Member
	if member, ok := state.Member(event.Sender()); ok {
		sender = &member
	}
	stateKey, isState := event.StateKey()
	if isState && event.Type() == ref.EventTypeMember {
		if userID, err := ref.ParseUserID(stateKey); err == nil {
			if member, ok := state.Member(userID); ok {
				target = &member
			}
		}
	}
	event.setMembers(sender, target)

	if isState {
		if atStart {
			event.setForwardLooking(false)
		}
		state.Apply(event)
	}

	if atStart {
		t.events = append([]*Event{event}, t.events...)
		t.baseIndex++
	} else {
		t.events = append(t.events, event)
	}
}

// RemoveEvent removes the event with the given ID and returns it.
func (t *Timeline) RemoveEvent(id ref.EventID) (*Event, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.events) - 1; i >= 0; i-- {
		event := t.events[i]
		if event.ID() != id {
			continue
		}
		t.events = append(t.events[:i], t.events[i+1:]...)
		if i < t.baseIndex {
			t.baseIndex--
		}
		return event, true
	}
	return nil, false
}

// Truncate drops the oldest events so at most keep remain, folding
// the dropped state events into the start state.
func (t *Timeline) Truncate(keep int) []*Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	if keep < 0 || len(t.events) <= keep {
		return nil
	}
	drop := len(t.events) - keep
	dropped := append([]*Event(nil), t.events[:drop]...)
	for _, event := range dropped {
		if _, isState := event.StateKey(); isState {
			wire := event.Wire()
			t.startState.Apply(NewEvent(wire))
		}
	}
	t.events = append([]*Event(nil), t.events[drop:]...)
	t.baseIndex -= drop
	return dropped
}
