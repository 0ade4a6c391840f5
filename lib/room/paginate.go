// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package room

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/bureau-foundation/chatsync/lib/ref"
	"github.com/bureau-foundation/chatsync/lib/timeline"
	"github.com/bureau-foundation/chatsync/messaging"
)

// ErrNoSession is returned by operations that need the server when the
// room was created without a session.
var ErrNoSession = errors.New("room: no session configured")

// ContextLimit is the number of surrounding events requested when
// building a timeline around an event.
const ContextLimit = 10

// Paginate fetches up to limit events in direction from tl's
// pagination token and merges them into the chain. It returns the
// number of events that were new to the room. A timeline with no token
// in that direction has nothing more to fetch and returns 0.
//
// Concurrent calls for the same timeline and direction share a single
// request and its result.
func (r *Room) Paginate(ctx context.Context, timelineID timeline.ID, direction timeline.Direction, limit int) (int, error) {
	if r.session == nil {
		return 0, ErrNoSession
	}
	key := timelineID.String() + "/" + direction.String()
	result, err, _ := r.paginations.Do(key, func() (any, error) {
		return r.paginate(ctx, timelineID, direction, limit)
	})
	if err != nil {
		return 0, err
	}
	return result.(int), nil
}

func (r *Room) paginate(ctx context.Context, timelineID timeline.ID, direction timeline.Direction, limit int) (int, error) {
	tl := r.arena.Get(timelineID)
	if tl == nil {
		return 0, fmt.Errorf("room: timeline %s has been released", timelineID)
	}
	token := tl.Token(direction)
	if token == "" {
		return 0, nil
	}

	response, err := r.session.RoomMessages(ctx, r.id, messaging.RoomMessagesOptions{
		From:      token,
		Direction: direction.Wire(),
		Limit:     limit,
	})
	if err != nil {
		return 0, fmt.Errorf("room: paginating %s %s: %w", timelineID, direction, err)
	}

	r.mu.Lock()
	var out outbox
	before := len(r.eventIndex)
	if err := r.addEventsToTimelineLocked(response.Chunk, direction == timeline.Backward, timelineID, response.End, &out); err != nil {
		r.mu.Unlock()
		return 0, err
	}
	added := len(r.eventIndex) - before
	// An empty page or a missing end token means this end is exhausted.
	if (len(response.Chunk) == 0 || response.End == "") && !(direction == timeline.Forward && tl == r.live) {
		tl.SetToken(direction, "")
	}
	r.mu.Unlock()
	r.dispatch(out)

	r.logger.Debug("paginated",
		"timeline", timelineID.String(),
		"direction", direction.String(),
		"received", len(response.Chunk),
		"added", added,
	)
	return added, nil
}

// EventTimeline returns the timeline holding eventID, fetching the
// event and its surroundings with /context when it is not resident.
// The fetched events go into a new timeline that is merged into the
// chain wherever it overlaps.
func (r *Room) EventTimeline(ctx context.Context, eventID ref.EventID) (*timeline.Timeline, error) {
	if tl, ok := r.TimelineFor(eventID); ok {
		return tl, nil
	}
	if r.session == nil {
		return nil, ErrNoSession
	}

	response, err := r.session.RoomContext(ctx, r.id, eventID, ContextLimit)
	if err != nil {
		return nil, fmt.Errorf("room: fetching context of %s: %w", eventID, err)
	}
	if response.Event.EventID != eventID {
		return nil, fmt.Errorf("room: context response for %s returned event %s", eventID, response.Event.EventID)
	}

	r.mu.Lock()
	var out outbox
	if id, ok := r.eventIndex[eventID]; ok {
		r.mu.Unlock()
		return r.arena.Get(id), nil
	}

	tl := r.arena.New()
	tl.InitialiseState(mapEvents(r, response.State))
	tl.SetToken(timeline.Forward, response.End)

	// Newest first, as backward pagination delivers them.
	events := slices.Clone(response.EventsAfter)
	slices.Reverse(events)
	events = append(events, response.Event)
	events = append(events, response.EventsBefore...)
	if err := r.addEventsToTimelineLocked(events, true, tl.ID(), response.Start, &out); err != nil {
		r.mu.Unlock()
		return nil, err
	}

	// The merge may have moved on to an overlapping timeline.
	id, ok := r.eventIndex[eventID]
	r.mu.Unlock()
	r.dispatch(out)
	if !ok {
		return nil, fmt.Errorf("room: %s missing after merging its context", eventID)
	}
	return r.arena.Get(id), nil
}

func mapEvents(r *Room, events []messaging.Event) []messaging.Event {
	mapped := make([]messaging.Event, len(events))
	for i, event := range events {
		mapped[i] = r.mapEvent(event)
	}
	return mapped
}
