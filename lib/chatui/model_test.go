// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/chatsync/lib/client"
	"github.com/bureau-foundation/chatsync/lib/clock"
	"github.com/bureau-foundation/chatsync/lib/ref"
	"github.com/bureau-foundation/chatsync/lib/room"
	"github.com/bureau-foundation/chatsync/lib/scheduler"
	"github.com/bureau-foundation/chatsync/lib/syncengine"
	"github.com/bureau-foundation/chatsync/lib/testutil"
	"github.com/bureau-foundation/chatsync/lib/timeline"
	"github.com/bureau-foundation/chatsync/messaging"
	"github.com/bureau-foundation/chatsync/messaging/messagingtest"
)

const wait = 5 * time.Second

var (
	alice   = ref.MustParseUserID("@alice:example.org")
	bob     = ref.MustParseUserID("@bob:example.org")
	general = ref.MustParseRoomID("!general:example.org")
	random  = ref.MustParseRoomID("!random:example.org")
)

type harness struct {
	session *messagingtest.Session
	client  *client.Client
	roomCh  chan room.Notification
}

// newHarness starts a client whose first sync joins "General" (one
// message from bob) and "Random" (empty).
func newHarness(t *testing.T, configure func(*client.Config)) *harness {
	t.Helper()
	h := &harness{
		session: messagingtest.New(alice),
		roomCh:  make(chan room.Notification, 256),
	}
	config := client.Config{Session: h.session, Clock: clock.Fake(time.Unix(1700000000, 0))}
	if configure != nil {
		configure(&config)
	}
	c, err := client.New(config)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	h.client = c
	prepared := make(chan struct{}, 1)
	c.Subscribe(client.ObserverFuncs{
		Room: func(n room.Notification) { h.roomCh <- n },
		Sync: func(n syncengine.Notification) {
			if n.Kind == syncengine.KindState && n.State == syncengine.StatePrepared {
				prepared <- struct{}{}
			}
		},
	})
	t.Cleanup(c.Stop)

	named := func(eventID, name string) messaging.Event {
		return messagingtest.State(eventID, bob.String(), ref.EventTypeRoomName, "", map[string]any{"name": name})
	}
	h.session.PushSync(&messaging.SyncResponse{
		NextBatch: "s1",
		Rooms: messaging.RoomsSection{Join: map[ref.RoomID]messaging.JoinedRoom{
			general: {Timeline: messaging.TimelineSection{
				Events: []messaging.Event{
					named("$n1", "General"),
					messagingtest.Message("$e1", bob.String(), "hello from bob", 1700000000000),
				},
				PrevBatch: "p1",
			}},
			random: {Timeline: messaging.TimelineSection{
				Events: []messaging.Event{named("$n2", "Random")},
			}},
		}},
	})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	testutil.RequireReceive(t, prepared, wait, "waiting for the first sync")
	return h
}

func newModel(t *testing.T, h *harness) Model {
	t.Helper()
	model := NewModel(context.Background(), h.client, Config{})
	return update(t, model, tea.WindowSizeMsg{Width: 80, Height: 24})
}

func update(t *testing.T, model Model, message tea.Msg) Model {
	t.Helper()
	next, _ := model.Update(message)
	return next.(Model)
}

func typeText(t *testing.T, model Model, text string) Model {
	t.Helper()
	return update(t, model, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
}

// runBatch runs cmd and any commands it batches, feeding each result
// back into the model.
func runBatch(t *testing.T, model Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		return model
	}
	message := cmd()
	if batch, ok := message.(tea.BatchMsg); ok {
		for _, inner := range batch {
			model = runBatch(t, model, inner)
		}
		return model
	}
	if message == nil {
		return model
	}
	return update(t, model, message)
}

func visible(model Model) string {
	return ansi.Strip(model.View())
}

func TestPickerListsRoomsByName(t *testing.T) {
	h := newHarness(t, nil)
	model := newModel(t, h)

	view := visible(model)
	generalAt := strings.Index(view, "General")
	randomAt := strings.Index(view, "Random")
	if generalAt < 0 || randomAt < 0 {
		t.Fatalf("picker should list both rooms:\n%s", view)
	}
	if generalAt > randomAt {
		t.Errorf("rooms should be sorted by name:\n%s", view)
	}
	if !strings.Contains(view, "▸ General") {
		t.Errorf("first room should be selected:\n%s", view)
	}
}

func TestPickerFilters(t *testing.T) {
	h := newHarness(t, nil)
	model := typeText(t, newModel(t, h), "rnd")

	if len(model.matches) != 1 || model.rooms[model.matches[0].Index].ID() != random {
		t.Fatalf("filter \"rnd\" should leave only Random, got %d matches", len(model.matches))
	}
	if strings.Contains(visible(model), "General") {
		t.Errorf("filtered-out room still shown:\n%s", visible(model))
	}

	model = typeText(t, model, "zzz")
	if !strings.Contains(visible(model), "no rooms") {
		t.Errorf("expected empty-state line:\n%s", visible(model))
	}
}

func TestOpenRoomShowsTimelineAndMarksRead(t *testing.T) {
	h := newHarness(t, nil)
	model := newModel(t, h)

	next, cmd := model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	model = next.(Model)
	if model.screen != screenRoom || model.current.ID() != general {
		t.Fatalf("enter should open General")
	}
	if !strings.Contains(visible(model), "hello from bob") {
		t.Errorf("room screen should show the message:\n%s", visible(model))
	}

	model = runBatch(t, model, cmd)
	receipts := h.session.Receipts()
	if len(receipts) != 1 || receipts[0].EventID.String() != "$e1" || receipts[0].RoomID != general {
		t.Errorf("expected one read receipt for $e1, got %+v", receipts)
	}
	if model.loading {
		t.Error("history fetch should have finished")
	}
	if !strings.Contains(visible(model), "start of room") {
		t.Errorf("empty history should mark the start of the room:\n%s", visible(model))
	}

	model = update(t, model, tea.KeyMsg{Type: tea.KeyEsc})
	if model.screen != screenPicker {
		t.Error("esc should return to the picker")
	}
}

func TestSendFromComposer(t *testing.T) {
	h := newHarness(t, nil)
	model := newModel(t, h)
	model = update(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	model = typeText(t, model, "hi **all**")

	next, cmd := model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	model = next.(Model)
	if model.composer.Value() != "" {
		t.Errorf("composer should be cleared, has %q", model.composer.Value())
	}
	if !strings.Contains(visible(model), "hi all") {
		t.Errorf("local echo should be shown at once:\n%s", visible(model))
	}

	model = runBatch(t, model, cmd)
	sends := h.session.Sends()
	if len(sends) != 1 || sends[0].RoomID != general || sends[0].EventType != ref.EventTypeMessage {
		t.Fatalf("expected one message send to General, got %+v", sends)
	}
	if model.status != "" {
		t.Errorf("successful send should not set a status, got %q", model.status)
	}
}

func TestFailedSendCanBeRetried(t *testing.T) {
	h := newHarness(t, func(config *client.Config) {
		config.Retry = scheduler.NoRetry[*timeline.Event]
	})
	failures := 1
	h.session.OnSend = func(ctx context.Context, request messagingtest.SendRequest) (ref.EventID, error) {
		if failures > 0 {
			failures--
			return ref.EventID{}, errors.New("network unreachable")
		}
		return ref.MustParseEventID("$ok"), nil
	}

	model := newModel(t, h)
	model = update(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	model = typeText(t, model, "retry me")
	next, cmd := model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	model = runBatch(t, next.(Model), cmd)

	if !strings.Contains(model.status, "send failed") {
		t.Errorf("status should report the failure, got %q", model.status)
	}
	if model.newestPending(timeline.StatusNotSent) == nil {
		t.Fatal("failed echo should be in not_sent")
	}

	next, cmd = model.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
	model = runBatch(t, next.(Model), cmd)
	if model.newestPending(timeline.StatusNotSent) != nil {
		t.Error("retried echo should have left not_sent")
	}
	if sends := h.session.Sends(); len(sends) != 2 {
		t.Errorf("expected two send attempts, got %d", len(sends))
	}
}

func TestLiveEventsFollowTheBottom(t *testing.T) {
	h := newHarness(t, nil)
	model := newModel(t, h)
	model = update(t, model, tea.KeyMsg{Type: tea.KeyEnter})

	h.session.PushSync(messagingtest.JoinedSync("s2", general, messaging.JoinedRoom{
		Timeline: messaging.TimelineSection{
			Events: []messaging.Event{messagingtest.Message("$e2", bob.String(), "a newer message", 1700000060000)},
		},
	}))
	for {
		n := testutil.RequireReceive(t, h.roomCh, wait, "waiting for $e2")
		if n.Kind == room.KindTimeline && n.Event.ID().String() == "$e2" {
			break
		}
	}

	model = update(t, model, roomUpdateMsg{roomID: general, kind: room.KindTimeline})
	if !strings.Contains(visible(model), "a newer message") {
		t.Errorf("live event should be appended:\n%s", visible(model))
	}
	if !model.viewport.AtBottom() {
		t.Error("view should stay at the bottom while following")
	}
	if model.lastRead.String() != "$e2" {
		t.Errorf("lastRead = %s, want $e2", model.lastRead)
	}
}

func TestPendingRoomOpensAfterFirstSync(t *testing.T) {
	h := newHarness(t, nil)
	model := NewModel(context.Background(), h.client, Config{Room: "random"})
	model = update(t, model, tea.WindowSizeMsg{Width: 80, Height: 24})
	model = update(t, model, syncUpdateMsg{notification: syncengine.Notification{
		Kind:  syncengine.KindState,
		State: syncengine.StatePrepared,
	}})
	if model.screen != screenRoom || model.current.ID() != random {
		t.Errorf("--room should open Random once prepared")
	}
}

func TestStatusFades(t *testing.T) {
	h := newHarness(t, nil)
	model := newModel(t, h)
	model = update(t, model, logRecordMsg{Summary: "sync slow", Level: slog.LevelWarn})
	if !strings.Contains(visible(model), "sync slow") {
		t.Fatalf("status should be shown:\n%s", visible(model))
	}
	model = update(t, model, logRecordFadeMsg{generation: model.statusGeneration - 1})
	if model.status == "" {
		t.Error("a stale fade must not clear a newer status")
	}
	model = update(t, model, logRecordFadeMsg{generation: model.statusGeneration})
	if model.status != "" {
		t.Error("matching fade should clear the status")
	}
}
