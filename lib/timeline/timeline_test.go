// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package timeline

import (
	"slices"
	"testing"

	"github.com/bureau-foundation/chatsync/lib/ref"
)

func TestBaseIndexStableAcrossPrepends(t *testing.T) {
	tl := NewArena(testRoom).New()
	tl.AddEvent(message("$e3", "@alice:example.org"), false)
	tl.AddEvent(message("$e4", "@alice:example.org"), false)

	index, ok := tl.IndexOf(ref.MustParseEventID("$e4"))
	if !ok || index != 1 {
		t.Fatalf("IndexOf($e4) = %d, %v; want 1, true", index, ok)
	}

	tl.AddEvent(message("$e2", "@alice:example.org"), true)
	tl.AddEvent(message("$e1", "@alice:example.org"), true)

	if got := ids(tl.Events()); !slices.Equal(got, []string{"$e1", "$e2", "$e3", "$e4"}) {
		t.Fatalf("events = %v", got)
	}
	if tl.BaseIndex() != 2 {
		t.Errorf("BaseIndex = %d, want 2", tl.BaseIndex())
	}
	index, _ = tl.IndexOf(ref.MustParseEventID("$e4"))
	if index != 1 {
		t.Errorf("IndexOf($e4) after prepends = %d, want 1", index)
	}
	index, _ = tl.IndexOf(ref.MustParseEventID("$e1"))
	if index != -2 {
		t.Errorf("IndexOf($e1) = %d, want -2", index)
	}
	minIndex, maxIndex := tl.Bounds()
	if minIndex != -2 || maxIndex != 2 {
		t.Errorf("Bounds = (%d, %d), want (-2, 2)", minIndex, maxIndex)
	}
	if got := ids(tl.Slice(-1, 1)); !slices.Equal(got, []string{"$e2", "$e3"}) {
		t.Errorf("Slice(-1, 1) = %v", got)
	}
}

func TestRemoveEventAdjustsBaseIndex(t *testing.T) {
	tl := NewArena(testRoom).New()
	tl.AddEvent(message("$e2", "@alice:example.org"), false)
	tl.AddEvent(message("$e1", "@alice:example.org"), true)

	if _, ok := tl.RemoveEvent(ref.MustParseEventID("$e1")); !ok {
		t.Fatal("RemoveEvent($e1) found nothing")
	}
	if tl.BaseIndex() != 0 {
		t.Errorf("BaseIndex = %d, want 0", tl.BaseIndex())
	}
	if index, _ := tl.IndexOf(ref.MustParseEventID("$e2")); index != 0 {
		t.Errorf("IndexOf($e2) = %d, want 0", index)
	}
	if _, ok := tl.RemoveEvent(ref.MustParseEventID("$missing")); ok {
		t.Error("RemoveEvent of unknown ID reported success")
	}
}

func TestAddEventStampsSenderFromInsertionEnd(t *testing.T) {
	tl := NewArena(testRoom).New()
	tl.AddEvent(member("$m1", "@alice:example.org", "join", "Alice", nil), false)
	msg := message("$e1", "@alice:example.org")
	tl.AddEvent(msg, false)

	sender, ok := msg.SenderMember()
	if !ok || sender.DisplayName != "Alice" {
		t.Fatalf("SenderMember = %+v, %v; want Alice", sender, ok)
	}
	if sender.Name() != "Alice" {
		t.Errorf("Name = %q", sender.Name())
	}
}

func TestBackwardStateUsesPrevContent(t *testing.T) {
	tl := NewArena(testRoom).New()
	rename := member("$m2", "@alice:example.org", "join", "Alice Two",
		map[string]any{"membership": "join", "displayname": "Alice One"})
	tl.AddEvent(rename, true)

	if rename.ForwardLooking() {
		t.Fatal("state event added at the start should not be forward looking")
	}
	if name := rename.DirectionalContent()["displayname"]; name != "Alice One" {
		t.Errorf("DirectionalContent displayname = %v, want Alice One", name)
	}
	start, ok := tl.StartState().Member(ref.MustParseUserID("@alice:example.org"))
	if !ok || start.DisplayName != "Alice One" {
		t.Errorf("start state member = %+v, %v; want Alice One", start, ok)
	}

	joined := member("$m1", "@bob:example.org", "join", "Bob", nil)
	tl.AddEvent(joined, true)
	if _, ok := tl.StartState().Member(ref.MustParseUserID("@bob:example.org")); ok {
		t.Error("membership with no prev_content should be absent from the start state")
	}
}

func TestInitialiseStatePanicsWithEvents(t *testing.T) {
	tl := NewArena(testRoom).New()
	tl.AddEvent(message("$e1", "@alice:example.org"), false)
	defer func() {
		if recover() == nil {
			t.Fatal("InitialiseState on a non-empty timeline did not panic")
		}
	}()
	tl.InitialiseState(nil)
}

func TestForkStateFrom(t *testing.T) {
	arena := NewArena(testRoom)
	old := arena.New()
	old.AddEvent(member("$m1", "@alice:example.org", "join", "Alice", nil), false)

	fresh := arena.New()
	fresh.ForkStateFrom(old)
	for name, state := range map[string]*State{"start": fresh.StartState(), "end": fresh.EndState()} {
		if _, ok := state.Member(ref.MustParseUserID("@alice:example.org")); !ok {
			t.Errorf("%s state did not inherit alice", name)
		}
	}

	fresh.AddEvent(member("$m2", "@bob:example.org", "join", "Bob", nil), false)
	if _, ok := old.EndState().Member(ref.MustParseUserID("@bob:example.org")); ok {
		t.Error("forked state is shared with the source timeline")
	}
}

func TestTruncateKeepsStateAndIndices(t *testing.T) {
	tl := NewArena(testRoom).New()
	tl.AddEvent(member("$m1", "@alice:example.org", "join", "Alice", nil), false)
	tl.AddEvent(message("$e1", "@alice:example.org"), false)
	tl.AddEvent(message("$e2", "@alice:example.org"), false)

	before, _ := tl.IndexOf(ref.MustParseEventID("$e2"))
	dropped := tl.Truncate(1)
	if got := ids(dropped); !slices.Equal(got, []string{"$m1", "$e1"}) {
		t.Fatalf("dropped = %v", got)
	}
	after, _ := tl.IndexOf(ref.MustParseEventID("$e2"))
	if before != after {
		t.Errorf("IndexOf($e2) changed from %d to %d", before, after)
	}
	if _, ok := tl.StartState().Member(ref.MustParseUserID("@alice:example.org")); !ok {
		t.Error("dropped membership was not folded into the start state")
	}
}

func TestTokens(t *testing.T) {
	tl := NewArena(testRoom).New()
	tl.SetToken(Backward, "b1")
	tl.SetToken(Forward, "f1")
	if tl.Token(Backward) != "b1" || tl.Token(Forward) != "f1" {
		t.Errorf("tokens = %q, %q", tl.Token(Backward), tl.Token(Forward))
	}
}

func TestInvalidDirectionPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("invalid direction did not panic")
		}
	}()
	NewArena(testRoom).New().Token(Direction(7))
}
