// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package room

import (
	"fmt"

	"github.com/bureau-foundation/chatsync/lib/ref"
	"github.com/bureau-foundation/chatsync/lib/timeline"
	"github.com/bureau-foundation/chatsync/messaging"
)

// Snapshot is the persisted form of a room: the tail of the live
// timeline with the state before it, plus the room's side tables.
// Local echoes are not included.
type Snapshot struct {
	RoomID        ref.RoomID        `cbor:"room_id"`
	Membership    string            `cbor:"membership,omitempty"`
	StartState    []messaging.Event `cbor:"start_state"`
	Events        []messaging.Event `cbor:"events"`
	BackwardToken string            `cbor:"backward_token,omitempty"`
	AccountData   []messaging.Event `cbor:"account_data,omitempty"`
	Receipts      []Receipt         `cbor:"receipts,omitempty"`
	Unread        UnreadCounts      `cbor:"unread"`
}

// Snapshot captures the room with at most limit live events. When
// events are dropped the state they carried is folded into StartState
// and the backward token is cleared, since it pointed before the
// dropped events.
func (r *Room) Snapshot(limit int) Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var confirmed []messaging.Event
	for _, event := range r.live.Events() {
		if event.Status() == timeline.StatusNone {
			confirmed = append(confirmed, event.Wire())
		}
	}

	start := r.live.StartState()
	backwardToken := r.live.Token(timeline.Backward)
	if limit > 0 && len(confirmed) > limit {
		drop := len(confirmed) - limit
		for _, wire := range confirmed[:drop] {
			start.Apply(timeline.NewEvent(wire))
		}
		confirmed = confirmed[drop:]
		backwardToken = ""
	}

	snapshot := Snapshot{
		RoomID:        r.id,
		Membership:    r.membership,
		StartState:    start.Events(),
		Events:        confirmed,
		BackwardToken: backwardToken,
		Receipts:      r.receiptListLocked(),
		Unread:        r.unread,
	}
	for _, event := range r.accountData {
		snapshot.AccountData = append(snapshot.AccountData, event)
	}
	return snapshot
}

// Restore loads a snapshot into an empty room without notifying
// observers.
func (r *Room) Restore(snapshot Snapshot) error {
	if snapshot.RoomID != r.id {
		return fmt.Errorf("room: snapshot of %s restored into %s", snapshot.RoomID, r.id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.live.Len() != 0 || len(r.eventIndex) != 0 {
		return fmt.Errorf("room: restoring %s into a non-empty room", r.id)
	}

	r.live.InitialiseState(snapshot.StartState)
	for _, wire := range snapshot.Events {
		event := timeline.NewEvent(wire)
		r.live.AddEvent(event, false)
		r.eventIndex[wire.EventID] = r.live.ID()
	}
	r.live.SetToken(timeline.Backward, snapshot.BackwardToken)
	r.membership = snapshot.Membership
	r.unread = snapshot.Unread
	for _, event := range snapshot.AccountData {
		r.accountData[event.Type] = event
	}
	for _, receipt := range snapshot.Receipts {
		r.addReceiptLocked(receipt)
	}
	return nil
}
