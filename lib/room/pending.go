// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package room

import (
	"fmt"

	"github.com/bureau-foundation/chatsync/lib/ref"
	"github.com/bureau-foundation/chatsync/lib/timeline"
)

// AddPendingEvent records a local echo under transactionID. With
// chronological ordering the echo is appended to the live timeline;
// with detached ordering it goes to the pending list.
func (r *Room) AddPendingEvent(event *timeline.Event, transactionID string) error {
	if event.Status() == timeline.StatusNone {
		return fmt.Errorf("room: pending event %s has no send status", event.ID())
	}
	r.mu.Lock()
	var out outbox
	if _, exists := r.pending[transactionID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("room: transaction %q is already pending", transactionID)
	}
	r.pending[transactionID] = event
	if r.ordering == PendingDetached {
		r.pendingList = append(r.pendingList, event)
		out.add(Notification{Kind: KindLocalEchoUpdated, RoomID: r.id, Event: event})
	} else {
		r.addEventLocked(event, r.live, false, &out)
	}
	r.mu.Unlock()
	r.dispatch(out)
	return nil
}

// PendingEvents returns the local echoes not yet confirmed by sync, in
// the order they were added.
func (r *Room) PendingEvents() []*timeline.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.ordering == PendingDetached {
		return append([]*timeline.Event(nil), r.pendingList...)
	}
	var pending []*timeline.Event
	for _, event := range r.live.Events() {
		if event.Status() != timeline.StatusNone {
			pending = append(pending, event)
		}
	}
	return pending
}

// PendingEvent returns the local echo waiting under transactionID.
func (r *Room) PendingEvent(transactionID string) (*timeline.Event, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	event, ok := r.pending[transactionID]
	return event, ok
}

// UpdatePendingEvent moves a local echo to status. For StatusSent,
// serverID is the ID the server assigned: if sync has already
// delivered that event the echo is dropped instead, since the synced
// copy is authoritative. For StatusCancelled the echo is removed.
// Panics if the status graph forbids the move.
//
// An event that sync has already confirmed is left alone.
func (r *Room) UpdatePendingEvent(event *timeline.Event, status timeline.Status, serverID ref.EventID) {
	r.mu.Lock()
	var out outbox
	r.updatePendingEventLocked(event, status, serverID, &out)
	r.mu.Unlock()
	r.dispatch(out)
}

func (r *Room) updatePendingEventLocked(event *timeline.Event, status timeline.Status, serverID ref.EventID, out *outbox) {
	oldStatus := event.Status()
	if oldStatus == timeline.StatusNone {
		return
	}
	if status == timeline.StatusSent && serverID.IsZero() {
		panic(fmt.Sprintf("room: event %s marked sent without a server event ID", event.ID()))
	}
	oldID := event.ID()
	transactionID := event.TransactionID()

	if status == timeline.StatusSent {
		if _, resident := r.eventIndex[serverID]; resident && serverID != oldID {
			r.dropPendingLocked(event, transactionID)
			r.logger.Debug("send response arrived after sync; dropping local echo",
				"event_id", serverID.String(),
				"local_id", oldID.String(),
			)
			out.add(Notification{Kind: KindLocalEchoUpdated, RoomID: r.id, Event: event, PreviousID: oldID, PreviousStatus: oldStatus})
			return
		}
	}

	event.SetStatus(status)
	switch status {
	case timeline.StatusSent:
		event.SetID(serverID)
		if timelineID, ok := r.eventIndex[oldID]; ok {
			delete(r.eventIndex, oldID)
			r.eventIndex[serverID] = timelineID
		}
	case timeline.StatusCancelled:
		r.dropPendingLocked(event, transactionID)
	}
	out.add(Notification{Kind: KindLocalEchoUpdated, RoomID: r.id, Event: event, PreviousID: oldID, PreviousStatus: oldStatus})
}

// dropPendingLocked removes a local echo from every structure that holds it.
func (r *Room) dropPendingLocked(event *timeline.Event, transactionID string) {
	if transactionID != "" && r.pending[transactionID] == event {
		delete(r.pending, transactionID)
	}
	if !r.removeFromPendingListLocked(event) {
		r.removeEventLocked(event.ID())
	}
}

func (r *Room) removeFromPendingListLocked(event *timeline.Event) bool {
	for i, candidate := range r.pendingList {
		if candidate == event {
			r.pendingList = append(r.pendingList[:i], r.pendingList[i+1:]...)
			return true
		}
	}
	return false
}
