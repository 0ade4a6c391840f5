// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bureau-foundation/chatsync/lib/ref"
	"github.com/bureau-foundation/chatsync/lib/room"
	"github.com/bureau-foundation/chatsync/lib/scheduler"
	"github.com/bureau-foundation/chatsync/lib/timeline"
	"github.com/bureau-foundation/chatsync/messaging"
)

// MessageQueue is the scheduler queue DefaultQueue uses for messages
// and for events that refer to another event.
const MessageQueue = "message"

var (
	// ErrCancelled resolves a Send whose event was cancelled before
	// it reached the server.
	ErrCancelled = errors.New("client: send cancelled")

	// errTargetUnsent fails a redaction whose target never got a
	// server event ID. Retrying cannot help.
	errTargetUnsent = errors.New("client: redaction target was never sent")
)

// DefaultQueue puts m.room.message events, redactions, and events with
// an m.relates_to relation on MessageQueue so they reach the server in
// the order they were sent. Everything else is dispatched at once.
func DefaultQueue(event *timeline.Event) string {
	switch event.Type() {
	case ref.EventTypeMessage, ref.EventTypeRedaction:
		return MessageQueue
	}
	if _, ok := event.Content()["m.relates_to"]; ok {
		return MessageQueue
	}
	return ""
}

func unsentTargetRetry(policy scheduler.RetryPolicy[*timeline.Event]) scheduler.RetryPolicy[*timeline.Event] {
	return func(event *timeline.Event, attempts int, err error) (time.Duration, bool) {
		if errors.Is(err, errTargetUnsent) {
			return 0, false
		}
		return policy(event, attempts, err)
	}
}

// Send tracks one outgoing event from local echo to server response.
type Send struct {
	// Event is the local echo. Its ID becomes the server's event ID
	// once the send succeeds.
	Event *timeline.Event

	room *room.Room
	// target is the local echo a redaction refers to, resolved to its
	// server ID when the redaction is dispatched.
	target *timeline.Event

	done    chan struct{}
	eventID ref.EventID
	err     error
}

// Done is closed when the send has succeeded, failed, or been
// cancelled.
func (s *Send) Done() <-chan struct{} { return s.done }

// Wait blocks until the send finishes and returns the server's event
// ID.
func (s *Send) Wait(ctx context.Context) (ref.EventID, error) {
	select {
	case <-s.done:
		return s.eventID, s.err
	case <-ctx.Done():
		return ref.EventID{}, ctx.Err()
	}
}

// SendEvent posts an event to a room. The local echo is in the room
// before SendEvent returns; the request itself happens in the
// background.
func (c *Client) SendEvent(roomID ref.RoomID, eventType ref.EventType, content map[string]any) (*Send, error) {
	r, err := c.room(roomID)
	if err != nil {
		return nil, err
	}
	return c.send(r, messaging.Event{Type: eventType, Content: content}, nil)
}

// SendMessage posts an m.text message. Markdown in body is rendered to
// an HTML formatted_body.
func (c *Client) SendMessage(roomID ref.RoomID, body string) (*Send, error) {
	content, err := messaging.NewMarkdownMessage(body)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	return c.SendEvent(roomID, ref.EventTypeMessage, content.Map())
}

// SendStateEvent sets a piece of room state. State is not echoed
// locally; the change shows up when sync delivers it.
func (c *Client) SendStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string, content map[string]any) (ref.EventID, error) {
	eventID, err := c.session.SendStateEvent(ctx, roomID, eventType, stateKey, content)
	if err != nil {
		return ref.EventID{}, fmt.Errorf("client: sending %s state to %s: %w", eventType, roomID, err)
	}
	return eventID, nil
}

// RedactEvent redacts eventID. When eventID is a local echo that has
// not reached the server the echo is cancelled instead and the
// returned Send is nil.
func (c *Client) RedactEvent(roomID ref.RoomID, eventID ref.EventID, reason string) (*Send, error) {
	r, err := c.room(roomID)
	if err != nil {
		return nil, err
	}
	var target *timeline.Event
	if found := r.FindEvent(eventID); found != nil {
		switch found.Status() {
		case timeline.StatusQueued, timeline.StatusNotSent:
			return nil, c.CancelPendingEvent(found)
		case timeline.StatusSending:
			target = found
		}
	}
	if target == nil && eventID.IsLocal() {
		return nil, fmt.Errorf("client: %s is not a pending event in %s", eventID, roomID)
	}
	content := map[string]any{}
	if reason != "" {
		content["reason"] = reason
	}
	return c.send(r, messaging.Event{Type: ref.EventTypeRedaction, Redacts: eventID, Content: content}, target)
}

// SendReadReceipt moves the local user's read receipt to eventID. The
// room reflects the receipt immediately.
func (c *Client) SendReadReceipt(ctx context.Context, roomID ref.RoomID, eventID ref.EventID) error {
	if eventID.IsLocal() {
		return fmt.Errorf("client: cannot send a receipt for local echo %s", eventID)
	}
	r, err := c.room(roomID)
	if err != nil {
		return err
	}
	r.AddLocalReceipt(eventID, c.clock.Now().UnixMilli())
	if err := c.session.SendReceipt(ctx, roomID, room.ReceiptTypeRead, eventID); err != nil {
		return fmt.Errorf("client: sending read receipt for %s: %w", eventID, err)
	}
	return nil
}

// ResendEvent retries an event whose send failed.
func (c *Client) ResendEvent(event *timeline.Event) (*Send, error) {
	if status := event.Status(); status != timeline.StatusNotSent {
		return nil, fmt.Errorf("client: cannot resend %s with status %q", event.ID(), status)
	}
	r, err := c.room(event.RoomID())
	if err != nil {
		return nil, err
	}
	var target *timeline.Event
	c.sendMu.Lock()
	if previous, ok := c.sends[event]; ok {
		target = previous.target
	}
	c.sendMu.Unlock()

	r.UpdatePendingEvent(event, timeline.StatusSending, ref.EventID{})
	return c.enqueue(&Send{Event: event, room: r, target: target}), nil
}

// CancelPendingEvent withdraws a queued or failed local echo and
// removes it from the room.
func (c *Client) CancelPendingEvent(event *timeline.Event) error {
	status := event.Status()
	switch status {
	case timeline.StatusQueued, timeline.StatusNotSent:
	default:
		return fmt.Errorf("client: cannot cancel %s with status %q", event.ID(), status)
	}
	r, err := c.room(event.RoomID())
	if err != nil {
		return err
	}
	if status == timeline.StatusQueued && !c.sender.Remove(event) {
		return fmt.Errorf("client: %s is already being sent", event.ID())
	}
	r.UpdatePendingEvent(event, timeline.StatusCancelled, ref.EventID{})

	c.sendMu.Lock()
	delete(c.sends, event)
	c.sendMu.Unlock()
	c.logger.Debug("cancelled pending event", "room_id", event.RoomID().String(), "event_id", event.ID().String())
	return nil
}

// send creates the local echo for wire and hands it to the scheduler.
func (c *Client) send(r *room.Room, wire messaging.Event, target *timeline.Event) (*Send, error) {
	transactionID := messaging.NewTransactionID()
	wire.EventID = ref.LocalEventID(r.ID(), transactionID)
	wire.RoomID = r.ID()
	wire.Sender = c.session.UserID()
	wire.OriginServerTS = c.clock.Now().UnixMilli()
	wire.Unsigned = &messaging.EventUnsigned{TransactionID: transactionID}

	event := timeline.NewLocalEvent(wire)
	if err := r.AddPendingEvent(event, transactionID); err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	return c.enqueue(&Send{Event: event, room: r, target: target}), nil
}

func (c *Client) enqueue(s *Send) *Send {
	s.done = make(chan struct{})
	c.sendMu.Lock()
	c.sends[s.Event] = s
	c.sendMu.Unlock()

	result := c.sender.Queue(s.Event)
	go c.await(s, result)
	return s
}

// await records the scheduler's verdict on s.
func (c *Client) await(s *Send, result *scheduler.Result) {
	err := result.Wait(context.Background())
	keep := false
	switch {
	case err == nil:
	case errors.Is(err, scheduler.ErrRemoved):
		err = ErrCancelled
	default:
		keep = true
		if timeline.CanTransition(s.Event.Status(), timeline.StatusNotSent) {
			s.room.UpdatePendingEvent(s.Event, timeline.StatusNotSent, ref.EventID{})
		}
		c.logger.Warn("event not sent",
			"room_id", s.room.ID().String(),
			"transaction_id", s.Event.TransactionID(),
			"event_type", string(s.Event.Type()),
			"error", err,
		)
		err = fmt.Errorf("client: sending %s: %w", s.Event.Type(), err)
	}

	c.sendMu.Lock()
	if !keep && c.sends[s.Event] == s {
		delete(c.sends, s.Event)
	}
	c.sendMu.Unlock()
	s.err = err
	close(s.done)
}

// markQueued runs from Scheduler.Queue, outside its lock, for an
// event that has to wait its turn. Observers told about the QUEUED
// status may cancel it straight away. An event that stopped being
// SENDING in the meantime (the scheduler closed) is left alone.
func (c *Client) markQueued(event *timeline.Event) {
	if event.Status() != timeline.StatusSending {
		return
	}
	if r, ok := c.rooms.Room(event.RoomID()); ok {
		r.UpdatePendingEvent(event, timeline.StatusQueued, ref.EventID{})
	}
}

// process makes one delivery attempt for event.
func (c *Client) process(ctx context.Context, event *timeline.Event) error {
	c.sendMu.Lock()
	s := c.sends[event]
	c.sendMu.Unlock()
	if s == nil {
		return fmt.Errorf("client: no send recorded for %s", event.ID())
	}

	switch event.Status() {
	case timeline.StatusNone:
		// Sync delivered the server's copy while a retry was pending.
		s.eventID = event.ID()
		return nil
	case timeline.StatusSending:
	default:
		s.room.UpdatePendingEvent(event, timeline.StatusSending, ref.EventID{})
	}

	wire := event.Wire()
	transactionID := event.TransactionID()
	var (
		eventID ref.EventID
		err     error
	)
	if wire.Type == ref.EventTypeRedaction {
		redacts := wire.Redacts
		if s.target != nil {
			redacts = s.target.ID()
		}
		if redacts.IsLocal() {
			return fmt.Errorf("%w: %s", errTargetUnsent, redacts)
		}
		reason, _ := wire.Content["reason"].(string)
		eventID, err = c.session.Redact(ctx, wire.RoomID, redacts, transactionID, reason)
	} else {
		eventID, err = c.session.SendEvent(ctx, wire.RoomID, wire.Type, transactionID, wire.Content)
	}
	if err != nil {
		return err
	}

	s.eventID = eventID
	s.room.UpdatePendingEvent(event, timeline.StatusSent, eventID)
	c.logger.Debug("event sent",
		"room_id", wire.RoomID.String(),
		"transaction_id", transactionID,
		"event_id", eventID.String(),
	)
	return nil
}
