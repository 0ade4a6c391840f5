// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package timeline

import "testing"

func TestArenaReleaseInvalidatesID(t *testing.T) {
	arena := NewArena(testRoom)
	first := arena.New()
	id := first.ID()
	arena.Release(id)

	if arena.Get(id) != nil {
		t.Fatal("released ID still resolves")
	}
	reused := arena.New()
	if reused.ID() == id {
		t.Fatal("reused slot returned the stale ID")
	}
	if arena.Get(id) != nil {
		t.Error("stale ID resolves to the slot's new timeline")
	}
	if arena.Len() != 1 {
		t.Errorf("Len = %d, want 1", arena.Len())
	}
}

func TestArenaLink(t *testing.T) {
	arena := NewArena(testRoom)
	older := arena.New()
	newer := arena.New()

	arena.Link(older.ID(), newer.ID(), Forward)
	if arena.Neighbour(older.ID(), Forward) != newer.ID() {
		t.Error("forward neighbour not set")
	}
	if arena.Neighbour(newer.ID(), Backward) != older.ID() {
		t.Error("backward neighbour not set")
	}

	// Relinking the same pair from the other side is a no-op.
	arena.Link(newer.ID(), older.ID(), Backward)

	arena.Release(newer.ID())
	if !arena.Neighbour(older.ID(), Forward).IsZero() {
		t.Error("release left a dangling neighbour link")
	}
}

func TestArenaDoubleLinkPanics(t *testing.T) {
	arena := NewArena(testRoom)
	a := arena.New()
	b := arena.New()
	c := arena.New()
	arena.Link(a.ID(), b.ID(), Forward)

	defer func() {
		if recover() == nil {
			t.Fatal("linking a second forward neighbour did not panic")
		}
	}()
	arena.Link(a.ID(), c.ID(), Forward)
}

func TestArenaCompare(t *testing.T) {
	arena := NewArena(testRoom)
	a := arena.New()
	b := arena.New()
	c := arena.New()
	detached := arena.New()
	arena.Link(a.ID(), b.ID(), Forward)
	arena.Link(b.ID(), c.ID(), Forward)

	positions := []Position{
		{Timeline: a.ID(), Index: 0},
		{Timeline: a.ID(), Index: 3},
		{Timeline: b.ID(), Index: -5},
		{Timeline: c.ID(), Index: 1},
	}
	for i, left := range positions {
		if result, ok := arena.Compare(left, left); !ok || result != 0 {
			t.Errorf("Compare(p%d, p%d) = %d, %v; want 0, true", i, i, result, ok)
		}
		for j := i + 1; j < len(positions); j++ {
			right := positions[j]
			forward, ok := arena.Compare(left, right)
			if !ok || forward >= 0 {
				t.Errorf("Compare(p%d, p%d) = %d, %v; want negative", i, j, forward, ok)
			}
			backward, ok := arena.Compare(right, left)
			if !ok || backward <= 0 {
				t.Errorf("Compare(p%d, p%d) = %d, %v; want positive", j, i, backward, ok)
			}
		}
	}

	if _, ok := arena.Compare(positions[0], Position{Timeline: detached.ID()}); ok {
		t.Error("Compare across unlinked timelines should be unknown")
	}
}
