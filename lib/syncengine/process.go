// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package syncengine

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"github.com/bureau-foundation/chatsync/lib/ref"
	"github.com/bureau-foundation/chatsync/lib/room"
	"github.com/bureau-foundation/chatsync/lib/timeline"
	"github.com/bureau-foundation/chatsync/messaging"
)

// apply feeds a batch into the engine and its rooms: presence, global
// account data, then invited, joined and left rooms, each group in
// room ID order. It returns the rooms it changed.
//
// A malformed batch is rejected before anything is applied. A panic
// while applying (a broken room invariant) is recovered and returned
// as an error; rooms applied before it keep their changes.
func (e *Engine) apply(response *messaging.SyncResponse, since string) (touched []*room.Room, err error) {
	if err := validate(*response); err != nil {
		return nil, err
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("syncengine: applying batch: %v", recovered)
		}
	}()

	for _, event := range response.Presence.Events {
		e.mu.Lock()
		e.presence[event.Sender] = event
		e.mu.Unlock()
		e.notify(Notification{Kind: KindPresence, Event: event})
	}
	for _, event := range response.AccountData.Events {
		e.mu.Lock()
		e.accountData[event.Type] = event
		e.mu.Unlock()
		e.notify(Notification{Kind: KindAccountData, Event: event})
	}

	var notifications []Notification
	for _, roomID := range sortedKeys(response.Rooms.Invite) {
		r, brandNew := e.rooms.GetOrCreateRoom(roomID)
		r.ApplyStateEvents(response.Rooms.Invite[roomID].InviteState.Events)
		r.SetMyMembership("invite")
		touched = append(touched, r)
		notifications = append(notifications, Notification{Kind: KindRoom, RoomID: roomID, Membership: "invite", BrandNew: brandNew})
	}
	for _, roomID := range sortedKeys(response.Rooms.Join) {
		r, brandNew := e.applyJoined(roomID, response.Rooms.Join[roomID], since)
		touched = append(touched, r)
		notifications = append(notifications, Notification{Kind: KindRoom, RoomID: roomID, Membership: "join", BrandNew: brandNew})
	}
	for _, roomID := range sortedKeys(response.Rooms.Leave) {
		r, brandNew := e.applyLeft(roomID, response.Rooms.Leave[roomID], since)
		touched = append(touched, r)
		notifications = append(notifications, Notification{Kind: KindRoom, RoomID: roomID, Membership: "leave", BrandNew: brandNew})
	}
	for _, n := range notifications {
		e.notify(n)
	}
	return touched, nil
}

func (e *Engine) applyJoined(roomID ref.RoomID, joined messaging.JoinedRoom, since string) (*room.Room, bool) {
	r, brandNew := e.rooms.GetOrCreateRoom(roomID)
	events := e.prepareTimeline(r, brandNew, joined.Timeline, since)
	r.ApplyStateEvents(joined.State.Events)
	r.AddLiveEvents(events, e.duplicates)

	for _, event := range joined.Ephemeral.Events {
		switch event.Type {
		case ref.EventTypeReceipt:
			r.AddReceiptEvent(event)
		case ref.EventTypeTyping:
			r.SetTypingEvent(event)
		}
	}
	r.SetUnreadCounts(room.UnreadCounts{
		Total:     joined.UnreadNotifications.NotificationCount,
		Highlight: joined.UnreadNotifications.HighlightCount,
	})
	r.AddAccountData(joined.AccountData.Events)
	r.SetMyMembership("join")
	return r, brandNew
}

func (e *Engine) applyLeft(roomID ref.RoomID, left messaging.LeftRoom, since string) (*room.Room, bool) {
	r, brandNew := e.rooms.GetOrCreateRoom(roomID)
	events := e.prepareTimeline(r, brandNew, left.Timeline, since)
	r.ApplyStateEvents(left.State.Events)
	r.AddLiveEvents(events, e.duplicates)
	r.AddAccountData(left.AccountData.Events)
	r.SetMyMembership("leave")
	return r, brandNew
}

// prepareTimeline handles a limited timeline section and returns the
// events still to append.
//
// If the room already holds one of the events, the gap is illusory:
// everything before the last known event is dropped. The known event
// itself is kept so the duplicate strategy decides whether the
// server's copy replaces it. Otherwise the live timeline is replaced; the old
// one keeps since as its forward token so the gap can be paginated,
// and the new one starts at prev_batch.
func (e *Engine) prepareTimeline(r *room.Room, brandNew bool, section messaging.TimelineSection, since string) []messaging.Event {
	events := section.Events
	if brandNew || !section.Limited {
		if brandNew && section.PrevBatch != "" && r.LiveTimeline().Token(timeline.Backward) == "" {
			r.LiveTimeline().SetToken(timeline.Backward, section.PrevBatch)
		}
		return events
	}

	for i := len(events) - 1; i >= 0; i-- {
		if _, known := r.TimelineFor(events[i].EventID); known {
			e.logger.Debug("limited sync overlaps the live timeline",
				"room_id", r.ID().String(),
				"event_id", events[i].EventID.String(),
				"dropped", i,
			)
			return events[i:]
		}
	}

	e.logger.Info("limited sync, starting a new live timeline",
		"room_id", r.ID().String(),
		"prev_batch", section.PrevBatch,
	)
	r.ResetLiveTimeline(section.PrevBatch, since)
	return events
}

// validate rejects batches the rooms cannot apply safely.
func validate(response messaging.SyncResponse) error {
	for roomID, joined := range response.Rooms.Join {
		if err := validateTimeline(roomID, joined.Timeline.Events); err != nil {
			return err
		}
		if err := validateState(roomID, joined.State.Events); err != nil {
			return err
		}
	}
	for roomID, left := range response.Rooms.Leave {
		if err := validateTimeline(roomID, left.Timeline.Events); err != nil {
			return err
		}
		if err := validateState(roomID, left.State.Events); err != nil {
			return err
		}
	}
	for roomID, invited := range response.Rooms.Invite {
		if err := validateState(roomID, invited.InviteState.Events); err != nil {
			return err
		}
	}
	return nil
}

func validateTimeline(roomID ref.RoomID, events []messaging.Event) error {
	for i, event := range events {
		if event.EventID.IsZero() || event.Type == "" {
			return fmt.Errorf("syncengine: room %s: timeline event %d has no event_id or type", roomID, i)
		}
	}
	return nil
}

func validateState(roomID ref.RoomID, events []messaging.Event) error {
	for i, event := range events {
		if event.Type == "" || event.StateKey == nil {
			return fmt.Errorf("syncengine: room %s: state event %d has no type or state_key", roomID, i)
		}
	}
	return nil
}

func sortedKeys[V any](rooms map[ref.RoomID]V) []ref.RoomID {
	return slices.SortedFunc(maps.Keys(rooms), func(a, b ref.RoomID) int {
		return cmp.Compare(a.String(), b.String())
	})
}
