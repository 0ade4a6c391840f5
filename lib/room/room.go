// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package room

import (
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/bureau-foundation/chatsync/lib/ref"
	"github.com/bureau-foundation/chatsync/lib/timeline"
	"github.com/bureau-foundation/chatsync/messaging"
)

// DuplicateStrategy decides what happens when a live event is already
// resident.
type DuplicateStrategy int

const (
	// DuplicateIgnore leaves the resident copy untouched.
	DuplicateIgnore DuplicateStrategy = iota
	// DuplicateReplace swaps in the new payload at the same position.
	DuplicateReplace
)

// PendingOrdering decides where local echoes are kept.
type PendingOrdering int

const (
	// PendingChronological appends local echoes to the live timeline.
	PendingChronological PendingOrdering = iota
	// PendingDetached keeps local echoes in a separate list until the
	// server copy arrives.
	PendingDetached
)

// Config holds the dependencies of a Room.
type Config struct {
	// UserID is the local user.
	UserID ref.UserID
	// Session is used for pagination and /context. May be nil for
	// rooms that are only fed by sync.
	Session messaging.Session
	// Ordering selects where local echoes live.
	Ordering PendingOrdering
	// Mapper, if set, transforms every event before it is stored.
	Mapper timeline.EventMapper
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// UnreadCounts are the server-computed notification counts.
type UnreadCounts struct {
	Total     int
	Highlight int
}

// Room is the client-side model of one room.
type Room struct {
	id       ref.RoomID
	userID   ref.UserID
	session  messaging.Session
	ordering PendingOrdering
	mapper   timeline.EventMapper
	logger   *slog.Logger

	paginations singleflight.Group

	mu          sync.RWMutex
	arena       *timeline.Arena
	live        *timeline.Timeline
	eventIndex  map[ref.EventID]timeline.ID
	pending     map[string]*timeline.Event
	pendingList []*timeline.Event
	receipts    receiptStore
	accountData map[ref.EventType]messaging.Event
	typing      []ref.UserID
	unread      UnreadCounts
	membership  string

	observerMu sync.RWMutex
	observers  map[int]Observer
	nextHandle int
}

// New returns an empty room.
func New(roomID ref.RoomID, config Config) *Room {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	arena := timeline.NewArena(roomID)
	return &Room{
		id:          roomID,
		userID:      config.UserID,
		session:     config.Session,
		ordering:    config.Ordering,
		mapper:      config.Mapper,
		logger:      logger.With("room_id", roomID.String()),
		arena:       arena,
		live:        arena.New(),
		eventIndex:  make(map[ref.EventID]timeline.ID),
		pending:     make(map[string]*timeline.Event),
		receipts:    newReceiptStore(),
		accountData: make(map[ref.EventType]messaging.Event),
		observers:   make(map[int]Observer),
	}
}

func (r *Room) ID() ref.RoomID { return r.id }

// UserID returns the local user.
func (r *Room) UserID() ref.UserID { return r.userID }

// Ordering returns where local echoes are kept.
func (r *Room) Ordering() PendingOrdering { return r.ordering }

// Subscribe registers an observer and returns a function that removes it.
func (r *Room) Subscribe(observer Observer) func() {
	r.observerMu.Lock()
	defer r.observerMu.Unlock()
	handle := r.nextHandle
	r.nextHandle++
	r.observers[handle] = observer
	return func() {
		r.observerMu.Lock()
		defer r.observerMu.Unlock()
		delete(r.observers, handle)
	}
}

// dispatch delivers notifications. Must be called without r.mu held.
func (r *Room) dispatch(out outbox) {
	if len(out) == 0 {
		return
	}
	r.observerMu.RLock()
	handles := make([]int, 0, len(r.observers))
	for handle := range r.observers {
		handles = append(handles, handle)
	}
	slices.Sort(handles)
	observers := make([]Observer, len(handles))
	for i, handle := range handles {
		observers[i] = r.observers[handle]
	}
	r.observerMu.RUnlock()

	for _, notification := range out {
		for _, observer := range observers {
			observer.OnRoomEvent(notification)
		}
	}
}

// LiveTimeline returns the timeline live events are appended to.
func (r *Room) LiveTimeline() *timeline.Timeline {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.live
}

// Timeline resolves a timeline ID, returning nil for a released one.
func (r *Room) Timeline(id timeline.ID) *timeline.Timeline {
	return r.arena.Get(id)
}

// Neighbour returns the timeline linked to id in direction, or nil.
func (r *Room) Neighbour(id timeline.ID, direction timeline.Direction) *timeline.Timeline {
	neighbour := r.arena.Neighbour(id, direction)
	if neighbour.IsZero() {
		return nil
	}
	return r.arena.Get(neighbour)
}

// TimelineCount returns the number of timelines in the chain,
// including detached ones.
func (r *Room) TimelineCount() int { return r.arena.Len() }

// TimelineFor returns the timeline holding eventID.
func (r *Room) TimelineFor(eventID ref.EventID) (*timeline.Timeline, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.eventIndex[eventID]
	if !ok {
		return nil, false
	}
	tl := r.arena.Get(id)
	return tl, tl != nil
}

// FindEvent returns the resident event with eventID, including local
// echoes kept in the detached list.
func (r *Room) FindEvent(eventID ref.EventID) *timeline.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findEventLocked(eventID)
}

func (r *Room) findEventLocked(eventID ref.EventID) *timeline.Event {
	if id, ok := r.eventIndex[eventID]; ok {
		if tl := r.arena.Get(id); tl != nil {
			if index, ok := tl.IndexOf(eventID); ok {
				if events := tl.Slice(index, index+1); len(events) == 1 {
					return events[0]
				}
			}
		}
	}
	for _, event := range r.pendingList {
		if event.ID() == eventID {
			return event
		}
	}
	return nil
}

// CurrentState returns a copy of the state at the end of the live timeline.
func (r *Room) CurrentState() *timeline.State {
	return r.LiveTimeline().EndState()
}

// Name returns m.room.name, falling back to the room ID.
func (r *Room) Name() string {
	if event, ok := r.CurrentState().Event(ref.EventTypeRoomName, ""); ok {
		if name, _ := event.Content["name"].(string); name != "" {
			return name
		}
	}
	return r.id.String()
}

// MyMembership returns the local user's membership ("join", "invite",
// "leave"), or "" when unknown.
func (r *Room) MyMembership() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.membership
}

// SetMyMembership records the local user's membership.
func (r *Room) SetMyMembership(membership string) {
	r.mu.Lock()
	var out outbox
	r.setMembershipLocked(membership, &out)
	r.mu.Unlock()
	r.dispatch(out)
}

func (r *Room) setMembershipLocked(membership string, out *outbox) {
	if membership == r.membership {
		return
	}
	r.membership = membership
	out.add(Notification{Kind: KindMembership, RoomID: r.id, Membership: membership})
}

func (r *Room) mapEvent(wire messaging.Event) messaging.Event {
	if r.mapper != nil {
		wire = r.mapper(wire)
	}
	if wire.RoomID.IsZero() {
		wire.RoomID = r.id
	}
	return wire
}
