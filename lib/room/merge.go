// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package room

import (
	"fmt"

	"github.com/bureau-foundation/chatsync/lib/ref"
	"github.com/bureau-foundation/chatsync/lib/timeline"
	"github.com/bureau-foundation/chatsync/messaging"
)

// AddLiveEvents appends events from a sync batch to the live timeline.
//
// An event carrying the transaction ID of a pending local echo replaces
// the echo's payload in place. An event that is already resident is
// handled per strategy. A redaction prunes its target if resident and
// is itself appended. Each new event also moves its sender's read
// receipt forward.
func (r *Room) AddLiveEvents(events []messaging.Event, strategy DuplicateStrategy) {
	r.mu.Lock()
	var out outbox
	for _, wire := range events {
		r.addLiveEventLocked(r.mapEvent(wire), strategy, &out)
	}
	r.mu.Unlock()
	r.dispatch(out)
}

func (r *Room) addLiveEventLocked(wire messaging.Event, strategy DuplicateStrategy, out *outbox) {
	if transactionID := wire.TransactionID(); transactionID != "" {
		if local, ok := r.pending[transactionID]; ok {
			r.applyRedactionLocked(wire, out)
			r.handleRemoteEchoLocked(local, transactionID, wire, out)
			r.synthesizeReceiptLocked(wire, out)
			return
		}
	}

	if existingID, known := r.eventIndex[wire.EventID]; known {
		if strategy == DuplicateReplace {
			if existing := r.findEventLocked(wire.EventID); existing != nil {
				existing.ReplaceWire(wire)
				out.add(Notification{Kind: KindTimeline, RoomID: r.id, Event: existing, Timeline: existingID, Replaced: true})
			}
		}
		return
	}

	r.applyRedactionLocked(wire, out)
	r.addEventLocked(timeline.NewEvent(wire), r.live, false, out)
	r.synthesizeReceiptLocked(wire, out)
}

// applyRedactionLocked prunes the target of a live redaction.
func (r *Room) applyRedactionLocked(wire messaging.Event, out *outbox) {
	if wire.Type != ref.EventTypeRedaction || wire.Redacts.IsZero() {
		return
	}
	if target := r.findEventLocked(wire.Redacts); target != nil && !target.IsRedacted() {
		target.Prune(wire)
		out.add(Notification{Kind: KindRedaction, RoomID: r.id, Event: target, Timeline: r.eventIndex[wire.Redacts]})
	}
}

// handleRemoteEchoLocked reconciles a local echo with the server copy
// that sync delivered.
func (r *Room) handleRemoteEchoLocked(local *timeline.Event, transactionID string, wire messaging.Event, out *outbox) {
	oldID := local.ID()
	oldStatus := local.Status()
	delete(r.pending, transactionID)

	if r.ordering == PendingDetached {
		r.removeFromPendingListLocked(local)
		local.ReplaceWire(wire)
		r.addEventLocked(local, r.live, false, out)
	} else {
		timelineID, resident := r.eventIndex[oldID]
		delete(r.eventIndex, oldID)
		local.ReplaceWire(wire)
		if !resident {
			timelineID = r.live.ID()
			r.live.AddEvent(local, false)
		}
		r.eventIndex[wire.EventID] = timelineID
	}

	r.logger.Debug("local echo confirmed by sync",
		"transaction_id", transactionID,
		"local_id", oldID.String(),
		"event_id", wire.EventID.String(),
	)
	out.add(Notification{
		Kind:           KindLocalEchoUpdated,
		RoomID:         r.id,
		Event:          local,
		PreviousID:     oldID,
		PreviousStatus: oldStatus,
	})
}

// addEventLocked inserts event into tl and indexes it.
func (r *Room) addEventLocked(event *timeline.Event, tl *timeline.Timeline, atStart bool, out *outbox) {
	tl.AddEvent(event, atStart)
	r.eventIndex[event.ID()] = tl.ID()
	out.add(Notification{
		Kind:     KindTimeline,
		RoomID:   r.id,
		Event:    event,
		Timeline: tl.ID(),
		AtStart:  atStart,
		Live:     tl == r.live && !atStart,
	})
}

// AddEventsToTimeline merges a batch into the chain, starting at the
// timeline identified by timelineID. Events are in the order of travel:
// newest first when atStart is set (backward pagination), oldest first
// otherwise.
//
// Unknown events are inserted at the travelling end. Reaching an event
// already resident in another timeline moves the cursor to that
// timeline, linking the two when the current timeline has no neighbour
// on that side yet. The pagination token is stored on whichever
// timeline the cursor ends on, but only when the last event was new or
// nothing in the batch was already known; otherwise the old token is
// kept so the same empty page is not fetched again.
func (r *Room) AddEventsToTimeline(events []messaging.Event, atStart bool, timelineID timeline.ID, token string) error {
	r.mu.Lock()
	var out outbox
	err := r.addEventsToTimelineLocked(events, atStart, timelineID, token, &out)
	r.mu.Unlock()
	r.dispatch(out)
	return err
}

func (r *Room) addEventsToTimelineLocked(events []messaging.Event, atStart bool, timelineID timeline.ID, token string, out *outbox) error {
	current := r.arena.Get(timelineID)
	if current == nil {
		return fmt.Errorf("room: timeline %s has been released", timelineID)
	}
	direction := timeline.Forward
	if atStart {
		direction = timeline.Backward
	}

	lastEventWasNew := false
	didUpdate := false
	for _, wire := range events {
		wire = r.mapEvent(wire)
		existingID, known := r.eventIndex[wire.EventID]
		if !known {
			r.addEventLocked(timeline.NewEvent(wire), current, atStart, out)
			lastEventWasNew = true
			didUpdate = true
			continue
		}

		lastEventWasNew = false
		if existingID == current.ID() {
			continue
		}
		existing := r.arena.Get(existingID)
		if existing == nil {
			continue
		}

		if neighbour := r.arena.Neighbour(current.ID(), direction); !neighbour.IsZero() {
			if neighbour != existingID {
				r.logger.Warn("event already resident in a timeline that is not the neighbour",
					"event_id", wire.EventID.String(),
					"timeline", existingID.String(),
					"neighbour", neighbour.String(),
				)
			}
			current = existing
			continue
		}

		r.arena.Link(current.ID(), existingID, direction)
		current = existing
		didUpdate = true
	}

	if lastEventWasNew || !didUpdate {
		if direction == timeline.Forward && current == r.live {
			r.logger.Warn("refusing to set the forward token of the live timeline", "token", token)
			return nil
		}
		current.SetToken(direction, token)
	}
	return nil
}

// ResetLiveTimeline starts a new live timeline after a gap. The old
// live timeline keeps forwardToken so a caller can paginate forward
// through the gap; the new one starts from the old one's end state with
// backwardToken. An empty forwardToken discards every timeline.
//
// Local echoes still waiting for the server move to the new timeline.
func (r *Room) ResetLiveTimeline(backwardToken, forwardToken string) {
	r.mu.Lock()
	var out outbox
	r.resetLiveTimelineLocked(backwardToken, forwardToken, &out)
	r.mu.Unlock()
	r.dispatch(out)
}

func (r *Room) resetLiveTimelineLocked(backwardToken, forwardToken string, out *outbox) {
	old := r.live
	fresh := r.arena.New()
	fresh.ForkStateFrom(old)

	var carried []*timeline.Event
	if r.ordering == PendingChronological {
		for _, event := range old.Events() {
			if event.Status() != timeline.StatusNone {
				old.RemoveEvent(event.ID())
				delete(r.eventIndex, event.ID())
				carried = append(carried, event)
			}
		}
	}

	if forwardToken == "" {
		for id := range r.timelineIDsLocked() {
			if id != fresh.ID() {
				r.arena.Release(id)
			}
		}
		clear(r.eventIndex)
	} else {
		old.SetToken(timeline.Forward, forwardToken)
	}

	r.live = fresh
	fresh.SetToken(timeline.Backward, backwardToken)
	for _, event := range carried {
		fresh.AddEvent(event, false)
		r.eventIndex[event.ID()] = fresh.ID()
	}

	r.logger.Debug("live timeline reset",
		"old_timeline", old.ID().String(),
		"new_timeline", fresh.ID().String(),
		"backward_token", backwardToken,
	)
	out.add(Notification{Kind: KindTimelineReset, RoomID: r.id, Timeline: fresh.ID()})
}

// timelineIDsLocked returns every timeline reachable from the event
// index plus the live one.
func (r *Room) timelineIDsLocked() map[timeline.ID]struct{} {
	ids := map[timeline.ID]struct{}{r.live.ID(): {}}
	for _, id := range r.eventIndex {
		ids[id] = struct{}{}
	}
	for id := range ids {
		for _, direction := range []timeline.Direction{timeline.Backward, timeline.Forward} {
			for next := r.arena.Neighbour(id, direction); !next.IsZero(); next = r.arena.Neighbour(next, direction) {
				if _, seen := ids[next]; seen {
					break
				}
				ids[next] = struct{}{}
			}
		}
	}
	return ids
}

// ApplyStateEvents applies the state section of a sync response. For
// an empty live timeline both snapshots are set; otherwise only the
// end state changes.
func (r *Room) ApplyStateEvents(events []messaging.Event) {
	r.mu.Lock()
	var out outbox
	mapped := make([]messaging.Event, len(events))
	for i, wire := range events {
		mapped[i] = r.mapEvent(wire)
	}
	if r.live.Len() == 0 {
		r.live.InitialiseState(mapped)
	} else {
		r.live.ApplyEndState(mapped)
	}
	for _, wire := range mapped {
		if wire.Type == ref.EventTypeMember && wire.StateKey != nil && *wire.StateKey == r.userID.String() {
			membership, _ := wire.Content["membership"].(string)
			r.setMembershipLocked(membership, &out)
		}
	}
	r.mu.Unlock()
	r.dispatch(out)
}

// RemoveEvent removes an event from whichever timeline holds it.
func (r *Room) RemoveEvent(eventID ref.EventID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeEventLocked(eventID)
}

func (r *Room) removeEventLocked(eventID ref.EventID) bool {
	id, ok := r.eventIndex[eventID]
	if !ok {
		return false
	}
	delete(r.eventIndex, eventID)
	if tl := r.arena.Get(id); tl != nil {
		_, removed := tl.RemoveEvent(eventID)
		return removed
	}
	return false
}
