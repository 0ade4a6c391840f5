// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/chatsync/lib/clock"
	"github.com/bureau-foundation/chatsync/lib/codec"
	"github.com/bureau-foundation/chatsync/lib/ref"
	"github.com/bureau-foundation/chatsync/lib/room"
	"github.com/bureau-foundation/chatsync/messaging"
	"github.com/bureau-foundation/chatsync/messaging/messagingtest"
)

var (
	general = ref.MustParseRoomID("!general:example.org")
	random  = ref.MustParseRoomID("!random:example.org")
)

func snapshotOf(roomID ref.RoomID, bodies ...string) room.Snapshot {
	snapshot := room.Snapshot{
		RoomID:        roomID,
		Membership:    "join",
		BackwardToken: "t0",
		StartState: []messaging.Event{
			messagingtest.Member("$m0", "@alice:example.org", "join", "Alice"),
		},
		Receipts: []room.Receipt{{
			UserID:    ref.MustParseUserID("@alice:example.org"),
			Type:      room.ReceiptTypeRead,
			EventID:   ref.MustParseEventID("$e0"),
			Timestamp: 7,
		}},
		Unread: room.UnreadCounts{Total: 2},
	}
	for i, body := range bodies {
		snapshot.Events = append(snapshot.Events,
			messagingtest.Message("$e"+string(rune('0'+i)), "@alice:example.org", body, int64(i)))
	}
	return snapshot
}

// testStores runs fn against every Store implementation.
func testStores(t *testing.T, fn func(t *testing.T, store Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemory())
	})
	for _, compression := range []codec.Compression{codec.CompressionNone, codec.CompressionLZ4, codec.CompressionZstd} {
		t.Run("sqlite/"+compression.String(), func(t *testing.T) {
			store, err := OpenSQLite(context.Background(), SQLiteConfig{
				Path:        filepath.Join(t.TempDir(), "chat.db"),
				Compression: compression,
				Clock:       clock.Fake(time.Unix(1700000000, 0)),
			})
			if err != nil {
				t.Fatalf("OpenSQLite failed: %v", err)
			}
			t.Cleanup(func() { store.Close() })
			fn(t, store)
		})
	}
}

func TestSyncToken(t *testing.T) {
	testStores(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		token, err := store.SyncToken(ctx)
		if err != nil || token != "" {
			t.Fatalf("initial SyncToken = %q, %v", token, err)
		}
		for _, want := range []string{"s1", "s2"} {
			if err := store.SetSyncToken(ctx, want); err != nil {
				t.Fatalf("SetSyncToken failed: %v", err)
			}
			if token, _ := store.SyncToken(ctx); token != want {
				t.Errorf("SyncToken = %q, want %q", token, want)
			}
		}
	})
}

func TestFilterIDs(t *testing.T) {
	testStores(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		if id, err := store.FilterID(ctx, "default#abc"); err != nil || id != "" {
			t.Fatalf("unknown FilterID = %q, %v", id, err)
		}
		store.SetFilterID(ctx, "default#abc", "1")
		store.SetFilterID(ctx, "guest#def", "2")
		store.SetFilterID(ctx, "default#abc", "3")
		if id, _ := store.FilterID(ctx, "default#abc"); id != "3" {
			t.Errorf("FilterID(default) = %q, want 3", id)
		}
		if id, _ := store.FilterID(ctx, "guest#def"); id != "2" {
			t.Errorf("FilterID(guest) = %q, want 2", id)
		}
	})
}

func TestRoomSnapshots(t *testing.T) {
	testStores(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		if _, ok, err := store.Room(ctx, general); ok || err != nil {
			t.Fatalf("Room before store = %v, %v", ok, err)
		}

		if err := store.StoreRoom(ctx, snapshotOf(random, "r")); err != nil {
			t.Fatalf("StoreRoom failed: %v", err)
		}
		if err := store.StoreRoom(ctx, snapshotOf(general, "a")); err != nil {
			t.Fatalf("StoreRoom failed: %v", err)
		}
		if err := store.StoreRoom(ctx, snapshotOf(general, "a", "b")); err != nil {
			t.Fatalf("StoreRoom failed: %v", err)
		}

		snapshot, ok, err := store.Room(ctx, general)
		if err != nil || !ok {
			t.Fatalf("Room = %v, %v", ok, err)
		}
		if len(snapshot.Events) != 2 || snapshot.Events[1].Content["body"] != "b" {
			t.Errorf("stored events = %+v", snapshot.Events)
		}
		if snapshot.BackwardToken != "t0" || snapshot.Membership != "join" || snapshot.Unread.Total != 2 {
			t.Errorf("stored snapshot = %+v", snapshot)
		}
		if len(snapshot.Receipts) != 1 || snapshot.Receipts[0].EventID.String() != "$e0" {
			t.Errorf("stored receipts = %+v", snapshot.Receipts)
		}
		if key := snapshot.StartState[0].StateKey; key == nil || *key != "@alice:example.org" {
			t.Errorf("stored state key = %v", key)
		}

		snapshots, err := store.Rooms(ctx)
		if err != nil {
			t.Fatalf("Rooms failed: %v", err)
		}
		if len(snapshots) != 2 || snapshots[0].RoomID != general || snapshots[1].RoomID != random {
			t.Errorf("Rooms = %v", snapshots)
		}

		if err := store.DeleteRoom(ctx, random); err != nil {
			t.Fatalf("DeleteRoom failed: %v", err)
		}
		if err := store.DeleteRoom(ctx, random); err != nil {
			t.Fatalf("second DeleteRoom failed: %v", err)
		}
		if _, ok, _ := store.Room(ctx, random); ok {
			t.Error("deleted room still stored")
		}
	})
}

func TestSnapshotRestoresIntoRoom(t *testing.T) {
	testStores(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		source := room.New(general, room.Config{UserID: ref.MustParseUserID("@alice:example.org")})
		source.ApplyStateEvents([]messaging.Event{messagingtest.Member("$m0", "@alice:example.org", "join", "Alice")})
		source.AddLiveEvents([]messaging.Event{
			messagingtest.Message("$e1", "@alice:example.org", "hello", 1),
			messagingtest.Message("$e2", "@alice:example.org", "again", 2),
		}, room.DuplicateIgnore)
		source.AddReceiptEvent(messagingtest.Receipt("$e1", "@bob:example.org", 5))
		if err := store.StoreRoom(ctx, source.Snapshot(10)); err != nil {
			t.Fatalf("StoreRoom failed: %v", err)
		}

		snapshot, _, err := store.Room(ctx, general)
		if err != nil {
			t.Fatalf("Room failed: %v", err)
		}
		restored := room.New(general, room.Config{UserID: ref.MustParseUserID("@alice:example.org")})
		if err := restored.Restore(snapshot); err != nil {
			t.Fatalf("Restore failed: %v", err)
		}
		if restored.LiveTimeline().Len() != 2 {
			t.Errorf("restored %d events", restored.LiveTimeline().Len())
		}
		if eventID, ok := restored.ReadUpTo(ref.MustParseUserID("@bob:example.org"), true); !ok || eventID.String() != "$e1" {
			t.Errorf("restored receipt = %v, %v", eventID, ok)
		}
	})
}

func TestClosedStore(t *testing.T) {
	testStores(t, func(t *testing.T, store Store) {
		store.Close()
		if _, err := store.SyncToken(context.Background()); !errors.Is(err, ErrClosed) {
			t.Errorf("SyncToken after Close = %v", err)
		}
		if err := store.StoreRoom(context.Background(), snapshotOf(general)); !errors.Is(err, ErrClosed) {
			t.Errorf("StoreRoom after Close = %v", err)
		}
	})
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")
	ctx := context.Background()

	first, err := OpenSQLite(ctx, SQLiteConfig{Path: path, Compression: codec.CompressionZstd})
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	first.SetSyncToken(ctx, "s42")
	first.StoreRoom(ctx, snapshotOf(general, "persisted"))
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// A different compression setting still reads the old blobs.
	second, err := OpenSQLite(ctx, SQLiteConfig{Path: path, Compression: codec.CompressionLZ4})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer second.Close()
	if token, _ := second.SyncToken(ctx); token != "s42" {
		t.Errorf("SyncToken after reopen = %q", token)
	}
	snapshot, ok, err := second.Room(ctx, general)
	if err != nil || !ok {
		t.Fatalf("Room after reopen = %v, %v", ok, err)
	}
	if snapshot.Events[0].Content["body"] != "persisted" {
		t.Errorf("body = %v", snapshot.Events[0].Content["body"])
	}
}
