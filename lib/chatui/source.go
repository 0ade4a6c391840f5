// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bureau-foundation/chatsync/lib/client"
	"github.com/bureau-foundation/chatsync/lib/ref"
	"github.com/bureau-foundation/chatsync/lib/room"
	"github.com/bureau-foundation/chatsync/lib/syncengine"
	"github.com/bureau-foundation/chatsync/lib/timeline"
	"github.com/bureau-foundation/chatsync/lib/window"
)

// Source is what the viewer needs from a client. *client.Client
// implements it.
type Source interface {
	Rooms() []*room.Room
	Room(roomID ref.RoomID) (*room.Room, bool)
	State() syncengine.State
	Subscribe(observer client.Observer) func()

	NewWindow(roomID ref.RoomID) (*window.Window, error)

	SendMessage(roomID ref.RoomID, body string) (*client.Send, error)
	ResendEvent(event *timeline.Event) (*client.Send, error)
	CancelPendingEvent(event *timeline.Event) error
	SendReadReceipt(ctx context.Context, roomID ref.RoomID, eventID ref.EventID) error
}

var _ Source = (*client.Client)(nil)

// roomUpdateMsg reports that something visible changed in a room.
type roomUpdateMsg struct {
	roomID ref.RoomID
	kind   room.Kind
}

// syncUpdateMsg carries one sync engine notification.
type syncUpdateMsg struct {
	notification syncengine.Notification
}

// Attach forwards source's notifications to program and returns a
// function that stops forwarding.
func Attach(source Source, program *tea.Program) func() {
	// Sending from the model (a local echo) notifies synchronously
	// from inside Update, so delivery must not wait for the event loop.
	return source.Subscribe(client.ObserverFuncs{
		Room: func(n room.Notification) {
			switch n.Kind {
			case room.KindTimeline, room.KindTimelineReset, room.KindRedaction,
				room.KindLocalEchoUpdated, room.KindUnread, room.KindMembership:
				go program.Send(roomUpdateMsg{roomID: n.RoomID, kind: n.Kind})
			}
		},
		Sync: func(n syncengine.Notification) {
			switch n.Kind {
			case syncengine.KindState, syncengine.KindRoom, syncengine.KindSessionInvalidated:
				go program.Send(syncUpdateMsg{notification: n})
			}
		},
	})
}
