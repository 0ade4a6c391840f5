// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package room

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/bureau-foundation/chatsync/lib/ref"
	"github.com/bureau-foundation/chatsync/lib/timeline"
	"github.com/bureau-foundation/chatsync/messaging"
	"github.com/bureau-foundation/chatsync/messaging/messagingtest"
)

func TestPaginateBackward(t *testing.T) {
	session := messagingtest.New(alice)
	session.OnMessages = func(ctx context.Context, roomID ref.RoomID, options messaging.RoomMessagesOptions) (*messaging.RoomMessagesResponse, error) {
		if options.From != "t0" || options.Direction != "b" || options.Limit != 2 {
			t.Errorf("unexpected request %+v", options)
		}
		return &messaging.RoomMessagesResponse{
			Start: "t0",
			End:   "t1",
			Chunk: []messaging.Event{msg("$e2", bob), msg("$e1", bob)},
		}, nil
	}
	room := newTestRoom(t, Config{Session: session})
	room.AddLiveEvents([]messaging.Event{msg("$e3", bob)}, DuplicateIgnore)
	live := room.LiveTimeline()
	live.SetToken(timeline.Backward, "t0")

	added, err := room.Paginate(context.Background(), live.ID(), timeline.Backward, 2)
	if err != nil {
		t.Fatalf("Paginate failed: %v", err)
	}
	if added != 2 {
		t.Errorf("added = %d, want 2", added)
	}
	if got := timelineIDs(live); !slices.Equal(got, []string{"$e1", "$e2", "$e3"}) {
		t.Errorf("live timeline = %v", got)
	}
	if live.Token(timeline.Backward) != "t1" {
		t.Errorf("backward token = %q, want t1", live.Token(timeline.Backward))
	}
}

func TestPaginateExhausted(t *testing.T) {
	session := messagingtest.New(alice)
	session.OnMessages = func(ctx context.Context, roomID ref.RoomID, options messaging.RoomMessagesOptions) (*messaging.RoomMessagesResponse, error) {
		return &messaging.RoomMessagesResponse{Start: options.From}, nil
	}
	room := newTestRoom(t, Config{Session: session})
	live := room.LiveTimeline()
	live.SetToken(timeline.Backward, "t0")

	if added, err := room.Paginate(context.Background(), live.ID(), timeline.Backward, 10); err != nil || added != 0 {
		t.Fatalf("Paginate = %d, %v", added, err)
	}
	if live.Token(timeline.Backward) != "" {
		t.Errorf("token after an empty page = %q, want cleared", live.Token(timeline.Backward))
	}
	// With no token there is no request at all.
	session.OnMessages = func(context.Context, ref.RoomID, messaging.RoomMessagesOptions) (*messaging.RoomMessagesResponse, error) {
		t.Error("request issued without a token")
		return nil, nil
	}
	if _, err := room.Paginate(context.Background(), live.ID(), timeline.Backward, 10); err != nil {
		t.Fatalf("Paginate failed: %v", err)
	}
}

func TestPaginateSharesInFlightRequest(t *testing.T) {
	release := make(chan struct{})
	var requests atomic.Int32
	session := messagingtest.New(alice)
	session.OnMessages = func(ctx context.Context, roomID ref.RoomID, options messaging.RoomMessagesOptions) (*messaging.RoomMessagesResponse, error) {
		requests.Add(1)
		<-release
		return &messaging.RoomMessagesResponse{End: "t1", Chunk: []messaging.Event{msg("$e1", bob)}}, nil
	}
	room := newTestRoom(t, Config{Session: session})
	live := room.LiveTimeline()
	live.SetToken(timeline.Backward, "t0")

	const callers = 4
	var wg sync.WaitGroup
	started := make(chan struct{}, callers)
	results := make([]int, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started <- struct{}{}
			added, err := room.Paginate(context.Background(), live.ID(), timeline.Backward, 5)
			if err != nil {
				t.Errorf("Paginate failed: %v", err)
			}
			results[i] = added
		}()
	}
	for range callers {
		<-started
	}
	close(release)
	wg.Wait()

	// Late starters may miss the shared flight and issue a second
	// request, which finds nothing new.
	if requests.Load() < 1 || live.Len() != 1 {
		t.Fatalf("requests = %d, live length = %d", requests.Load(), live.Len())
	}
	total := 0
	for _, added := range results {
		total += added
	}
	if total < 1 {
		t.Errorf("no caller saw the added event: %v", results)
	}
}

func TestEventTimelineFromContext(t *testing.T) {
	session := messagingtest.New(alice)
	session.OnContext = func(ctx context.Context, roomID ref.RoomID, eventID ref.EventID, limit int) (*messaging.RoomContextResponse, error) {
		return &messaging.RoomContextResponse{
			Start:        "ctx-start",
			End:          "ctx-end",
			Event:        msg("$e5", bob),
			EventsBefore: []messaging.Event{msg("$e4", bob), msg("$e3", bob)},
			EventsAfter:  []messaging.Event{msg("$e6", bob), msg("$e7", bob)},
			State:        []messaging.Event{messagingtest.Member("$m1", "@bob:example.org", "join", "Bob")},
		}, nil
	}
	room := newTestRoom(t, Config{Session: session})
	room.AddLiveEvents([]messaging.Event{msg("$e20", bob)}, DuplicateIgnore)

	tl, err := room.EventTimeline(context.Background(), ref.MustParseEventID("$e5"))
	if err != nil {
		t.Fatalf("EventTimeline failed: %v", err)
	}
	if tl == room.LiveTimeline() {
		t.Fatal("context events landed in the live timeline")
	}
	if got := timelineIDs(tl); !slices.Equal(got, []string{"$e3", "$e4", "$e5", "$e6", "$e7"}) {
		t.Errorf("context timeline = %v", got)
	}
	if tl.Token(timeline.Backward) != "ctx-start" || tl.Token(timeline.Forward) != "ctx-end" {
		t.Errorf("tokens = %q, %q", tl.Token(timeline.Backward), tl.Token(timeline.Forward))
	}
	sender, ok := room.FindEvent(ref.MustParseEventID("$e7")).SenderMember()
	if !ok || sender.DisplayName != "Bob" {
		t.Errorf("sender not resolved from context state: %+v", sender)
	}

	again, err := room.EventTimeline(context.Background(), ref.MustParseEventID("$e5"))
	if err != nil || again != tl {
		t.Errorf("second lookup = %v, %v; want the resident timeline", again, err)
	}
}

func TestPaginateWithoutSession(t *testing.T) {
	room := newTestRoom(t, Config{})
	if _, err := room.Paginate(context.Background(), room.LiveTimeline().ID(), timeline.Backward, 1); err != ErrNoSession {
		t.Errorf("err = %v, want ErrNoSession", err)
	}
}
