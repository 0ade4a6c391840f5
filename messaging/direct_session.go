// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bureau-foundation/chatsync/lib/ref"
	"github.com/bureau-foundation/chatsync/lib/secret"
)

// DirectSession is an authenticated Matrix session.
// It wraps a Client with an access token for making authenticated API calls.
//
// The access token is stored in a secret.Buffer (mmap-backed, locked against
// swap, excluded from core dumps). The caller must call Close when the
// DirectSession is no longer needed.
type DirectSession struct {
	client      *Client
	accessToken *secret.Buffer
	userID      ref.UserID
	deviceID    string
	guest       bool
}

// UserID returns the fully-qualified Matrix user ID.
func (s *DirectSession) UserID() ref.UserID {
	return s.userID
}

// DeviceID returns the device ID for this session, if known.
func (s *DirectSession) DeviceID() string {
	return s.deviceID
}

// IsGuest reports whether the session was created by RegisterGuest.
func (s *DirectSession) IsGuest() bool {
	return s.guest
}

// AccessToken returns the access token buffer. The session keeps
// ownership; callers that persist it must not close it.
func (s *DirectSession) AccessToken() *secret.Buffer {
	return s.accessToken
}

// CloseIdleConnections closes idle HTTP connections in the underlying
// transport's connection pool. Call this after a sync error to force
// the next request to establish a fresh TCP connection.
func (s *DirectSession) CloseIdleConnections() {
	s.client.CloseIdleConnections()
}

// Close releases the access token memory (zeros, unlocks, unmaps).
// Idempotent.
func (s *DirectSession) Close() error {
	if s.accessToken != nil {
		return s.accessToken.Close()
	}
	return nil
}

// WhoAmI validates the access token and returns the user ID.
func (s *DirectSession) WhoAmI(ctx context.Context) (ref.UserID, error) {
	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/account/whoami", s.accessToken, nil)
	if err != nil {
		return ref.UserID{}, fmt.Errorf("messaging: whoami failed: %w", err)
	}

	var response struct {
		UserID ref.UserID `json:"user_id"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.UserID{}, fmt.Errorf("messaging: failed to parse whoami response: %w", err)
	}
	return response.UserID, nil
}

// Versions checks the homeserver's /versions endpoint.
func (s *DirectSession) Versions(ctx context.Context) (*ServerVersionsResponse, error) {
	return s.client.ServerVersions(ctx)
}

// Sync performs one /sync request. The context bounds the whole
// request; long-poll callers set a deadline a little past the
// server-side timeout.
func (s *DirectSession) Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error) {
	query := url.Values{}
	if options.Since != "" {
		query.Set("since", options.Since)
	}
	if options.SetTimeout {
		query.Set("timeout", strconv.Itoa(options.Timeout))
	}
	if options.Filter != "" {
		query.Set("filter", options.Filter)
	}
	if options.FullState {
		query.Set("full_state", "true")
	}
	if options.SetPresence != "" {
		query.Set("set_presence", options.SetPresence)
	}

	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/sync", s.accessToken, nil, query)
	if err != nil {
		return nil, fmt.Errorf("messaging: sync failed: %w", err)
	}

	var response SyncResponse
	if err := json.Unmarshal(body, &response); err != nil {
		var cursor struct {
			NextBatch string `json:"next_batch"`
		}
		json.Unmarshal(body, &cursor)
		return nil, &MalformedSyncError{NextBatch: cursor.NextBatch, Err: err}
	}
	return &response, nil
}

// CreateFilter uploads a filter definition for this user.
func (s *DirectSession) CreateFilter(ctx context.Context, definition json.RawMessage) (string, error) {
	path := "/_matrix/client/v3/user/" + url.PathEscape(s.userID.String()) + "/filter"
	body, err := s.client.doRequest(ctx, http.MethodPost, path, s.accessToken, definition)
	if err != nil {
		return "", fmt.Errorf("messaging: create filter failed: %w", err)
	}

	var response CreateFilterResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("messaging: failed to parse filter response: %w", err)
	}
	if response.FilterID == "" {
		return "", fmt.Errorf("messaging: create filter returned an empty filter_id")
	}
	return response.FilterID, nil
}

// GetFilter downloads a filter definition by ID.
func (s *DirectSession) GetFilter(ctx context.Context, filterID string) (json.RawMessage, error) {
	path := "/_matrix/client/v3/user/" + url.PathEscape(s.userID.String()) + "/filter/" + url.PathEscape(filterID)
	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: get filter %s failed: %w", filterID, err)
	}
	return json.RawMessage(body), nil
}

// SendEvent sends an event of any type to a room with Matrix's
// idempotent PUT under the given transaction ID.
func (s *DirectSession) SendEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, transactionID string, content any) (ref.EventID, error) {
	if transactionID == "" {
		return ref.EventID{}, fmt.Errorf("messaging: send event requires a transaction ID")
	}
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/%s/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(eventType.String()),
		url.PathEscape(transactionID),
	)

	body, err := s.client.doRequest(ctx, http.MethodPut, path, s.accessToken, content)
	if err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: send event to %q failed: %w", roomID, err)
	}
	return parseEventID(body)
}

// SendStateEvent sends a state event to a room.
// State events use PUT with the event type and state key in the path.
func (s *DirectSession) SendStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string, content any) (ref.EventID, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/state/%s/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(eventType.String()),
		url.PathEscape(stateKey),
	)

	body, err := s.client.doRequest(ctx, http.MethodPut, path, s.accessToken, content)
	if err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: send state event to %q failed: %w", roomID, err)
	}
	return parseEventID(body)
}

// Redact redacts an event.
func (s *DirectSession) Redact(ctx context.Context, roomID ref.RoomID, eventID ref.EventID, transactionID, reason string) (ref.EventID, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/redact/%s/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(eventID.String()),
		url.PathEscape(transactionID),
	)
	request := map[string]any{}
	if reason != "" {
		request["reason"] = reason
	}

	body, err := s.client.doRequest(ctx, http.MethodPut, path, s.accessToken, request)
	if err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: redact %s in %q failed: %w", eventID, roomID, err)
	}
	return parseEventID(body)
}

// SendReceipt posts a receipt for an event.
func (s *DirectSession) SendReceipt(ctx context.Context, roomID ref.RoomID, receiptType string, eventID ref.EventID) error {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/receipt/%s/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(receiptType),
		url.PathEscape(eventID.String()),
	)
	if _, err := s.client.doRequest(ctx, http.MethodPost, path, s.accessToken, struct{}{}); err != nil {
		return fmt.Errorf("messaging: receipt for %s in %q failed: %w", eventID, roomID, err)
	}
	return nil
}

// RoomMessages fetches paginated messages from a room.
func (s *DirectSession) RoomMessages(ctx context.Context, roomID ref.RoomID, options RoomMessagesOptions) (*RoomMessagesResponse, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/messages", url.PathEscape(roomID.String()))

	query := url.Values{}
	if options.From != "" {
		query.Set("from", options.From)
	}
	direction := options.Direction
	if direction == "" {
		direction = "b"
	}
	query.Set("dir", direction)
	if options.Limit > 0 {
		query.Set("limit", strconv.Itoa(options.Limit))
	}
	if options.Filter != "" {
		query.Set("filter", options.Filter)
	}

	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil, query)
	if err != nil {
		return nil, fmt.Errorf("messaging: room messages for %q failed: %w", roomID, err)
	}

	var response RoomMessagesResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse messages response: %w", err)
	}
	return &response, nil
}

// RoomContext fetches an event and the events around it.
func (s *DirectSession) RoomContext(ctx context.Context, roomID ref.RoomID, eventID ref.EventID, limit int) (*RoomContextResponse, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/context/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(eventID.String()),
	)
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil, query)
	if err != nil {
		return nil, fmt.Errorf("messaging: context for %s in %q failed: %w", eventID, roomID, err)
	}

	var response RoomContextResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse context response: %w", err)
	}
	return &response, nil
}

func parseEventID(body []byte) (ref.EventID, error) {
	var response SendEventResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: failed to parse send response: %w", err)
	}
	if response.EventID.IsZero() {
		return ref.EventID{}, fmt.Errorf("messaging: send response missing event_id")
	}
	return response.EventID, nil
}
