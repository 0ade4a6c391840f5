// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messagingtest provides an in-memory messaging.Session for
// tests. Sync responses are scripted by the test; sends, redactions,
// and receipts are recorded and answered by optional hooks.
package messagingtest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/bureau-foundation/chatsync/lib/ref"
	"github.com/bureau-foundation/chatsync/messaging"
)

// SendRequest records one SendEvent, SendStateEvent, or Redact call.
type SendRequest struct {
	RoomID        ref.RoomID
	EventType     ref.EventType
	TransactionID string
	StateKey      *string
	Redacts       ref.EventID
	Content       any
}

// ReceiptRequest records one SendReceipt call.
type ReceiptRequest struct {
	RoomID      ref.RoomID
	ReceiptType string
	EventID     ref.EventID
}

type syncResult struct {
	response *messaging.SyncResponse
	err      error
}

// Session is a scriptable messaging.Session.
type Session struct {
	userID ref.UserID
	guest  bool

	syncResults  chan syncResult
	syncRequests chan messaging.SyncOptions

	mu           sync.Mutex
	syncCalls    []messaging.SyncOptions
	versionsErr  error
	versionCalls int
	filters      map[string]json.RawMessage
	nextFilter   int
	sends        []SendRequest
	receipts     []ReceiptRequest
	nextEvent    int

	// OnSend answers SendEvent, SendStateEvent, and Redact. When nil
	// every send succeeds with a fresh "$sent-N" event ID.
	OnSend func(ctx context.Context, request SendRequest) (ref.EventID, error)

	// OnMessages answers RoomMessages. When nil an empty chunk with no
	// end token is returned.
	OnMessages func(ctx context.Context, roomID ref.RoomID, options messaging.RoomMessagesOptions) (*messaging.RoomMessagesResponse, error)

	// OnContext answers RoomContext. When nil M_NOT_FOUND is returned.
	OnContext func(ctx context.Context, roomID ref.RoomID, eventID ref.EventID, limit int) (*messaging.RoomContextResponse, error)
}

var _ messaging.Session = (*Session)(nil)

// New returns a Session for userID.
func New(userID ref.UserID) *Session {
	return &Session{
		userID:       userID,
		syncResults:  make(chan syncResult, 64),
		syncRequests: make(chan messaging.SyncOptions, 64),
		filters:      make(map[string]json.RawMessage),
	}
}

// NewGuest returns a Session that reports itself as a guest.
func NewGuest(userID ref.UserID) *Session {
	session := New(userID)
	session.guest = true
	return session
}

func (s *Session) UserID() ref.UserID { return s.userID }

func (s *Session) IsGuest() bool { return s.guest }

// PushSync queues a response for the next Sync call.
func (s *Session) PushSync(response *messaging.SyncResponse) {
	s.syncResults <- syncResult{response: response}
}

// PushSyncError queues a failure for the next Sync call.
func (s *Session) PushSyncError(err error) {
	s.syncResults <- syncResult{err: err}
}

// SyncRequests delivers the options of every Sync call as it starts.
func (s *Session) SyncRequests() <-chan messaging.SyncOptions {
	return s.syncRequests
}

// SyncCalls returns the options of every Sync call so far.
func (s *Session) SyncCalls() []messaging.SyncOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]messaging.SyncOptions(nil), s.syncCalls...)
}

// Sync returns the next scripted result, blocking until one is pushed
// or ctx is done.
func (s *Session) Sync(ctx context.Context, options messaging.SyncOptions) (*messaging.SyncResponse, error) {
	s.mu.Lock()
	s.syncCalls = append(s.syncCalls, options)
	s.mu.Unlock()
	select {
	case s.syncRequests <- options:
	default:
	}

	select {
	case result := <-s.syncResults:
		return result.response, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SetVersionsError makes Versions fail with err until cleared with nil.
func (s *Session) SetVersionsError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versionsErr = err
}

// VersionCalls returns how many times Versions was called.
func (s *Session) VersionCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versionCalls
}

func (s *Session) Versions(ctx context.Context) (*messaging.ServerVersionsResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versionCalls++
	if s.versionsErr != nil {
		return nil, s.versionsErr
	}
	return &messaging.ServerVersionsResponse{Versions: []string{"v1.11"}}, nil
}

func (s *Session) CreateFilter(ctx context.Context, definition json.RawMessage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextFilter++
	filterID := strconv.Itoa(s.nextFilter)
	s.filters[filterID] = append(json.RawMessage(nil), definition...)
	return filterID, nil
}

func (s *Session) GetFilter(ctx context.Context, filterID string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	definition, ok := s.filters[filterID]
	if !ok {
		return nil, notFound("filter " + filterID)
	}
	return definition, nil
}

// ForgetFilters drops every uploaded filter, as a server does after a
// database reset.
func (s *Session) ForgetFilters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = make(map[string]json.RawMessage)
}

// FilterCount returns how many filters the server currently holds.
func (s *Session) FilterCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.filters)
}

func (s *Session) SendEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, transactionID string, content any) (ref.EventID, error) {
	return s.send(ctx, SendRequest{RoomID: roomID, EventType: eventType, TransactionID: transactionID, Content: content})
}

func (s *Session) SendStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string, content any) (ref.EventID, error) {
	return s.send(ctx, SendRequest{RoomID: roomID, EventType: eventType, StateKey: &stateKey, Content: content})
}

func (s *Session) Redact(ctx context.Context, roomID ref.RoomID, eventID ref.EventID, transactionID, reason string) (ref.EventID, error) {
	return s.send(ctx, SendRequest{
		RoomID:        roomID,
		EventType:     ref.EventTypeRedaction,
		TransactionID: transactionID,
		Redacts:       eventID,
		Content:       map[string]any{"reason": reason},
	})
}

func (s *Session) send(ctx context.Context, request SendRequest) (ref.EventID, error) {
	s.mu.Lock()
	s.sends = append(s.sends, request)
	hook := s.OnSend
	s.nextEvent++
	fallback := ref.MustParseEventID("$sent-" + strconv.Itoa(s.nextEvent))
	s.mu.Unlock()

	if hook != nil {
		return hook(ctx, request)
	}
	return fallback, nil
}

// Sends returns every recorded send, redaction, and state request.
func (s *Session) Sends() []SendRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SendRequest(nil), s.sends...)
}

func (s *Session) SendReceipt(ctx context.Context, roomID ref.RoomID, receiptType string, eventID ref.EventID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, ReceiptRequest{RoomID: roomID, ReceiptType: receiptType, EventID: eventID})
	return nil
}

// Receipts returns every recorded receipt.
func (s *Session) Receipts() []ReceiptRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ReceiptRequest(nil), s.receipts...)
}

func (s *Session) RoomMessages(ctx context.Context, roomID ref.RoomID, options messaging.RoomMessagesOptions) (*messaging.RoomMessagesResponse, error) {
	if s.OnMessages != nil {
		return s.OnMessages(ctx, roomID, options)
	}
	return &messaging.RoomMessagesResponse{Start: options.From}, nil
}

func (s *Session) RoomContext(ctx context.Context, roomID ref.RoomID, eventID ref.EventID, limit int) (*messaging.RoomContextResponse, error) {
	if s.OnContext != nil {
		return s.OnContext(ctx, roomID, eventID, limit)
	}
	return nil, notFound("event " + eventID.String())
}

func notFound(what string) error {
	return &messaging.MatrixError{
		Code:       messaging.ErrCodeNotFound,
		Message:    fmt.Sprintf("%s not found", what),
		StatusCode: http.StatusNotFound,
	}
}
