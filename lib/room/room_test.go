// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package room

import (
	"slices"
	"testing"

	"github.com/bureau-foundation/chatsync/lib/ref"
	"github.com/bureau-foundation/chatsync/lib/timeline"
	"github.com/bureau-foundation/chatsync/messaging"
	"github.com/bureau-foundation/chatsync/messaging/messagingtest"
)

var (
	testRoomID = ref.MustParseRoomID("!room:example.org")
	alice      = ref.MustParseUserID("@alice:example.org")
	bob        = ref.MustParseUserID("@bob:example.org")
)

func newTestRoom(t *testing.T, config Config) *Room {
	t.Helper()
	if config.UserID.IsZero() {
		config.UserID = alice
	}
	return New(testRoomID, config)
}

func msg(id string, sender ref.UserID) messaging.Event {
	return messagingtest.Message(id, sender.String(), "body of "+id, 1000)
}

func timelineIDs(tl *timeline.Timeline) []string {
	var ids []string
	for _, event := range tl.Events() {
		ids = append(ids, event.ID().String())
	}
	return ids
}

type recorder struct {
	notifications []Notification
}

func (r *recorder) OnRoomEvent(n Notification) { r.notifications = append(r.notifications, n) }

func (r *recorder) kinds() []Kind {
	var kinds []Kind
	for _, n := range r.notifications {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}

func TestAddLiveEventsWithRedaction(t *testing.T) {
	room := newTestRoom(t, Config{})
	room.AddLiveEvents([]messaging.Event{
		msg("$e1", alice),
		msg("$e2", bob),
		messagingtest.Redaction("$r1", "@alice:example.org", "$e1"),
	}, DuplicateIgnore)

	if got := timelineIDs(room.LiveTimeline()); !slices.Equal(got, []string{"$e1", "$e2", "$r1"}) {
		t.Fatalf("live timeline = %v", got)
	}
	redacted := room.FindEvent(ref.MustParseEventID("$e1"))
	if !redacted.IsRedacted() {
		t.Fatal("$e1 was not pruned")
	}
	if len(redacted.Content()) != 0 {
		t.Errorf("redacted message kept content %v", redacted.Content())
	}
	if room.FindEvent(ref.MustParseEventID("$e2")).IsRedacted() {
		t.Error("unrelated event was pruned")
	}
}

func TestDuplicateStrategies(t *testing.T) {
	room := newTestRoom(t, Config{})
	room.AddLiveEvents([]messaging.Event{msg("$e1", alice), msg("$e2", alice)}, DuplicateIgnore)
	original := room.FindEvent(ref.MustParseEventID("$e1"))

	edited := msg("$e1", alice)
	edited.Content = map[string]any{"msgtype": "m.text", "body": "edited"}

	room.AddLiveEvents([]messaging.Event{edited}, DuplicateIgnore)
	if room.LiveTimeline().Len() != 2 {
		t.Fatalf("ignore strategy changed the length to %d", room.LiveTimeline().Len())
	}
	if original.Content()["body"] == "edited" {
		t.Fatal("ignore strategy replaced the content")
	}

	room.AddLiveEvents([]messaging.Event{edited}, DuplicateReplace)
	if got := timelineIDs(room.LiveTimeline()); !slices.Equal(got, []string{"$e1", "$e2"}) {
		t.Fatalf("replace strategy moved events: %v", got)
	}
	if original.Content()["body"] != "edited" {
		t.Errorf("replace strategy left body %v", original.Content()["body"])
	}
}

func TestAddEventsToTimelineLinksOnOverlap(t *testing.T) {
	room := newTestRoom(t, Config{})
	room.AddLiveEvents([]messaging.Event{msg("$e1", alice), msg("$e2", alice)}, DuplicateIgnore)
	older := room.LiveTimeline()

	room.ResetLiveTimeline("gap", "forward-1")
	room.AddLiveEvents([]messaging.Event{msg("$e5", alice)}, DuplicateIgnore)
	live := room.LiveTimeline()
	if live == older {
		t.Fatal("reset did not create a new live timeline")
	}
	if older.Token(timeline.Forward) != "forward-1" {
		t.Errorf("old live forward token = %q", older.Token(timeline.Forward))
	}
	if live.Token(timeline.Backward) != "gap" {
		t.Errorf("new live backward token = %q", live.Token(timeline.Backward))
	}
	if _, known := room.CompareEvents(ref.MustParseEventID("$e1"), ref.MustParseEventID("$e5")); known {
		t.Fatal("order across an open gap should be unknown")
	}

	// Backward page from the new live timeline: newest first, running
	// into $e2 which lives in the old timeline.
	page := []messaging.Event{msg("$e4", alice), msg("$e3", alice), msg("$e2", alice), msg("$e1", alice)}
	if err := room.AddEventsToTimeline(page, true, live.ID(), "older-token"); err != nil {
		t.Fatalf("AddEventsToTimeline failed: %v", err)
	}

	if got := timelineIDs(live); !slices.Equal(got, []string{"$e3", "$e4", "$e5"}) {
		t.Errorf("live timeline = %v", got)
	}
	if room.Neighbour(live.ID(), timeline.Backward) != older {
		t.Fatal("timelines were not linked")
	}
	if room.Neighbour(older.ID(), timeline.Forward) != live {
		t.Fatal("link is not mutual")
	}
	ordering, known := room.CompareEvents(ref.MustParseEventID("$e1"), ref.MustParseEventID("$e5"))
	if !known || ordering >= 0 {
		t.Errorf("CompareEvents($e1, $e5) = %d, %v; want negative", ordering, known)
	}
	// The last event was already known, so the older timeline keeps its
	// own (empty) backward token.
	if older.Token(timeline.Backward) != "" {
		t.Errorf("older backward token = %q, want unchanged", older.Token(timeline.Backward))
	}
}

func TestAddEventsToTimelineTokenPolicy(t *testing.T) {
	room := newTestRoom(t, Config{})
	room.AddLiveEvents([]messaging.Event{msg("$e2", alice)}, DuplicateIgnore)
	live := room.LiveTimeline()
	live.SetToken(timeline.Backward, "t0")

	if err := room.AddEventsToTimeline([]messaging.Event{msg("$e1", alice)}, true, live.ID(), "t1"); err != nil {
		t.Fatalf("AddEventsToTimeline failed: %v", err)
	}
	if live.Token(timeline.Backward) != "t1" {
		t.Errorf("token after new event = %q, want t1", live.Token(timeline.Backward))
	}

	// A page of only known events in the same timeline is no progress;
	// nothing was updated so the token still moves.
	if err := room.AddEventsToTimeline([]messaging.Event{msg("$e1", alice)}, true, live.ID(), "t2"); err != nil {
		t.Fatalf("AddEventsToTimeline failed: %v", err)
	}
	if live.Token(timeline.Backward) != "t2" {
		t.Errorf("token after empty progress = %q, want t2", live.Token(timeline.Backward))
	}

	if err := room.AddEventsToTimeline([]messaging.Event{msg("$e9", alice)}, false, live.ID(), "forward"); err != nil {
		t.Fatalf("AddEventsToTimeline failed: %v", err)
	}
	if live.Token(timeline.Forward) != "" {
		t.Error("forward token of the live timeline was set")
	}
}

func TestResetWithoutForwardTokenDropsTimelines(t *testing.T) {
	room := newTestRoom(t, Config{})
	room.AddLiveEvents([]messaging.Event{msg("$e1", alice)}, DuplicateIgnore)
	room.ResetLiveTimeline("gap", "")

	if room.TimelineCount() != 1 {
		t.Errorf("TimelineCount = %d, want 1", room.TimelineCount())
	}
	if room.FindEvent(ref.MustParseEventID("$e1")) != nil {
		t.Error("event index survived a full reset")
	}
}

func TestApplyStateEvents(t *testing.T) {
	room := newTestRoom(t, Config{})
	room.ApplyStateEvents([]messaging.Event{
		messagingtest.Member("$m1", "@alice:example.org", "join", "Alice"),
		messagingtest.State("$n1", "@alice:example.org", ref.EventTypeRoomName, "", map[string]any{"name": "Lobby"}),
	})
	if room.MyMembership() != "join" {
		t.Errorf("MyMembership = %q", room.MyMembership())
	}
	if room.Name() != "Lobby" {
		t.Errorf("Name = %q", room.Name())
	}
	if _, ok := room.LiveTimeline().StartState().Member(alice); !ok {
		t.Error("empty live timeline should initialise the start state too")
	}

	room.AddLiveEvents([]messaging.Event{msg("$e1", alice)}, DuplicateIgnore)
	room.ApplyStateEvents([]messaging.Event{messagingtest.Member("$m2", "@bob:example.org", "join", "Bob")})
	if _, ok := room.LiveTimeline().StartState().Member(bob); ok {
		t.Error("state applied to a non-empty timeline changed the start state")
	}
	if _, ok := room.CurrentState().Member(bob); !ok {
		t.Error("state was not applied to the end state")
	}
}

func TestObserversRunOutsideLock(t *testing.T) {
	room := newTestRoom(t, Config{})
	var lengths []int
	unsubscribe := room.Subscribe(ObserverFunc(func(n Notification) {
		if n.Kind == KindTimeline {
			// Reading back through the room would deadlock if the write
			// lock were still held.
			lengths = append(lengths, room.LiveTimeline().Len())
		}
	}))
	room.AddLiveEvents([]messaging.Event{msg("$e1", alice), msg("$e2", alice)}, DuplicateIgnore)
	unsubscribe()
	room.AddLiveEvents([]messaging.Event{msg("$e3", alice)}, DuplicateIgnore)

	if !slices.Equal(lengths, []int{2, 2}) {
		t.Errorf("observer saw lengths %v, want [2 2]", lengths)
	}
}
