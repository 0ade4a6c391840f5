// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package syncengine

import (
	"fmt"

	"github.com/bureau-foundation/chatsync/lib/ref"
	"github.com/bureau-foundation/chatsync/messaging"
)

// State is the engine's connection state.
type State int

const (
	// StateUnset is the state before the first successful sync.
	StateUnset State = iota
	// StatePrepared is entered once, after the first successful sync
	// has been processed.
	StatePrepared
	// StateSyncing means the long-poll loop is healthy.
	StateSyncing
	// StateError means the last request failed and the engine is
	// probing the server until it answers again.
	StateError
	// StateStopped is final.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnset:
		return "unset"
	case StatePrepared:
		return "prepared"
	case StateSyncing:
		return "syncing"
	case StateError:
		return "error"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Kind identifies what a Notification reports.
type Kind int

const (
	// KindState reports a state transition in State and Previous,
	// with Err set on a move to StateError.
	KindState Kind = iota
	// KindSessionInvalidated reports that the server no longer
	// accepts the access token. The engine stops after sending it.
	KindSessionInvalidated
	// KindRoom reports that a room appeared in a batch under
	// Membership ("invite", "join" or "leave").
	KindRoom
	// KindPresence carries one m.presence event.
	KindPresence
	// KindAccountData carries one global account data event.
	KindAccountData
)

func (k Kind) String() string {
	switch k {
	case KindState:
		return "state"
	case KindSessionInvalidated:
		return "session_invalidated"
	case KindRoom:
		return "room"
	case KindPresence:
		return "presence"
	case KindAccountData:
		return "account_data"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Notification is delivered to observers. Which fields are set
// depends on Kind.
type Notification struct {
	Kind Kind

	State    State
	Previous State
	Err      error

	RoomID     ref.RoomID
	Membership string
	// BrandNew is set the first time the engine sees a room.
	BrandNew bool

	Event messaging.Event
}

// Observer receives engine notifications on the sync goroutine, after
// the batch they belong to has been applied. Implementations must not
// block.
type Observer interface {
	OnSync(Notification)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Notification)

func (f ObserverFunc) OnSync(n Notification) { f(n) }
