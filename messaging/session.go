// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"

	"github.com/bureau-foundation/chatsync/lib/ref"
)

// Session is the set of authenticated homeserver operations the sync
// library needs. *DirectSession is the production implementation;
// messagingtest.Session is an in-memory fake for tests.
type Session interface {
	// UserID returns the fully-qualified Matrix user ID of the session.
	UserID() ref.UserID

	// IsGuest reports whether the session belongs to a guest account.
	IsGuest() bool

	// Sync performs one /sync request.
	Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error)

	// Versions checks the homeserver with the unauthenticated
	// /versions endpoint.
	Versions(ctx context.Context) (*ServerVersionsResponse, error)

	// CreateFilter uploads a filter definition and returns its ID.
	CreateFilter(ctx context.Context, definition json.RawMessage) (string, error)

	// GetFilter downloads a previously uploaded filter. Returns a
	// *MatrixError with M_NOT_FOUND when the server no longer has it.
	GetFilter(ctx context.Context, filterID string) (json.RawMessage, error)

	// SendEvent sends a timeline event under the caller's transaction
	// ID. Retrying with the same transaction ID is idempotent.
	SendEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, transactionID string, content any) (ref.EventID, error)

	// SendStateEvent sets a piece of room state.
	SendStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string, content any) (ref.EventID, error)

	// Redact redacts eventID under the caller's transaction ID.
	Redact(ctx context.Context, roomID ref.RoomID, eventID ref.EventID, transactionID, reason string) (ref.EventID, error)

	// SendReceipt posts a receipt of receiptType (e.g. "m.read") for eventID.
	SendReceipt(ctx context.Context, roomID ref.RoomID, receiptType string, eventID ref.EventID) error

	// RoomMessages fetches a page of room history.
	RoomMessages(ctx context.Context, roomID ref.RoomID, options RoomMessagesOptions) (*RoomMessagesResponse, error)

	// RoomContext fetches an event with limit events of surrounding context.
	RoomContext(ctx context.Context, roomID ref.RoomID, eventID ref.EventID, limit int) (*RoomContextResponse, error)
}

// Compile-time check: *DirectSession implements Session.
var _ Session = (*DirectSession)(nil)
