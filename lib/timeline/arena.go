// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package timeline

import (
	"cmp"
	"fmt"
	"sync"

	"github.com/bureau-foundation/chatsync/lib/ref"
)

// ID addresses a Timeline in an Arena. The zero ID is never assigned.
type ID struct {
	slot       uint32
	generation uint32
}

// IsZero reports whether the ID is unset.
func (id ID) IsZero() bool { return id.generation == 0 }

func (id ID) String() string {
	return fmt.Sprintf("t%d.%d", id.slot, id.generation)
}

type arenaSlot struct {
	generation uint32
	timeline   *Timeline
	neighbours [2]ID
}

// Arena owns the timelines of one room and the links between them.
type Arena struct {
	roomID ref.RoomID

	mu    sync.Mutex
	slots []arenaSlot
	free  []uint32
}

// NewArena returns an empty arena for roomID.
func NewArena(roomID ref.RoomID) *Arena {
	return &Arena{roomID: roomID}
}

// New allocates an empty timeline.
func (a *Arena) New() *Timeline {
	a.mu.Lock()
	defer a.mu.Unlock()

	var index uint32
	if n := len(a.free); n > 0 {
		index = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		index = uint32(len(a.slots))
		a.slots = append(a.slots, arenaSlot{})
	}
	slot := &a.slots[index]
	slot.generation++
	slot.timeline = newTimeline(ID{slot: index, generation: slot.generation}, a.roomID)
	slot.neighbours = [2]ID{}
	return slot.timeline
}

// Get resolves id, returning nil for a released or unknown ID.
func (a *Arena) Get(id ID) *Timeline {
	a.mu.Lock()
	defer a.mu.Unlock()
	slot := a.lookup(id)
	if slot == nil {
		return nil
	}
	return slot.timeline
}

// Len returns the number of live timelines.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.slots) - len(a.free)
}

// Release frees the timeline's slot and unlinks it from its
// neighbours. Later lookups of id return nil.
func (a *Arena) Release(id ID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	slot := a.lookup(id)
	if slot == nil {
		return
	}
	for direction, neighbour := range slot.neighbours {
		if other := a.lookup(neighbour); other != nil {
			other.neighbours[1-direction] = ID{}
		}
	}
	slot.timeline = nil
	slot.neighbours = [2]ID{}
	// Bumping on release as well as on allocation keeps the old ID
	// stale even before the slot is reused.
	slot.generation++
	a.free = append(a.free, id.slot)
}

// Neighbour returns the timeline linked to id in direction, or the
// zero ID.
func (a *Arena) Neighbour(id ID, direction Direction) ID {
	a.mu.Lock()
	defer a.mu.Unlock()
	slot := a.lookup(id)
	if slot == nil {
		return ID{}
	}
	return slot.neighbours[direction.index()]
}

// Link makes to the neighbour of from in direction, and from the
// neighbour of to in the opposite direction. Linking an already linked
// pair is a no-op. Panics if either side already has a different
// neighbour on that side.
func (a *Arena) Link(from, to ID, direction Direction) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fromSlot := a.lookup(from)
	toSlot := a.lookup(to)
	if fromSlot == nil || toSlot == nil {
		panic(fmt.Sprintf("timeline: linking released timeline %s -> %s", from, to))
	}
	if from == to {
		panic(fmt.Sprintf("timeline: linking %s to itself", from))
	}
	forward := direction.index()
	backward := 1 - forward
	if existing := fromSlot.neighbours[forward]; !existing.IsZero() && existing != to {
		panic(fmt.Sprintf("timeline: %s already has %s neighbour %s", from, direction, existing))
	}
	if existing := toSlot.neighbours[backward]; !existing.IsZero() && existing != from {
		panic(fmt.Sprintf("timeline: %s already has %s neighbour %s", to, direction.Opposite(), existing))
	}
	fromSlot.neighbours[forward] = to
	toSlot.neighbours[backward] = from
}

// Position is an event's place in the chain: its timeline and its
// index relative to that timeline's base index.
type Position struct {
	Timeline ID
	Index    int
}

// Compare orders two positions. It returns a negative number when a is
// older than b, zero when equal, and a positive number when newer. The
// second result is false when the positions are not connected through
// neighbour links, in which case their order is unknown.
func (a *Arena) Compare(left, right Position) (int, bool) {
	if left.Timeline == right.Timeline {
		return cmp.Compare(left.Index, right.Index), true
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.reaches(left.Timeline, right.Timeline, Forward) {
		return -1, true
	}
	if a.reaches(left.Timeline, right.Timeline, Backward) {
		return 1, true
	}
	return 0, false
}

func (a *Arena) reaches(from, to ID, direction Direction) bool {
	visited := make(map[ID]bool)
	current := from
	for !current.IsZero() && !visited[current] {
		if current == to {
			return true
		}
		visited[current] = true
		slot := a.lookup(current)
		if slot == nil {
			return false
		}
		current = slot.neighbours[direction.index()]
	}
	return false
}

// lookup requires a.mu.
func (a *Arena) lookup(id ID) *arenaSlot {
	if id.IsZero() || int(id.slot) >= len(a.slots) {
		return nil
	}
	slot := &a.slots[id.slot]
	if slot.generation != id.generation || slot.timeline == nil {
		return nil
	}
	return slot
}
