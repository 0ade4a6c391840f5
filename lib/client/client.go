// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package client ties the chatsync pieces together for an application.
//
// A [Client] owns the rooms, the sync engine that feeds them, and the
// scheduler that delivers outgoing events. Observers registered with
// [Client.Subscribe] see every room notification and every sync
// notification through one interface, so an application never has to
// track rooms as they appear.
//
// Sends are asynchronous: [Client.SendEvent] places a local echo in the
// room at once and returns a [Send] handle whose Wait reports the
// outcome. The echo's status moves through sending, queued, not sent,
// and sent as the scheduler works, and is cleared when sync delivers
// the server's copy.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/chatsync/lib/clock"
	"github.com/bureau-foundation/chatsync/lib/filter"
	"github.com/bureau-foundation/chatsync/lib/ref"
	"github.com/bureau-foundation/chatsync/lib/room"
	"github.com/bureau-foundation/chatsync/lib/scheduler"
	"github.com/bureau-foundation/chatsync/lib/store"
	"github.com/bureau-foundation/chatsync/lib/syncengine"
	"github.com/bureau-foundation/chatsync/lib/timeline"
	"github.com/bureau-foundation/chatsync/lib/window"
	"github.com/bureau-foundation/chatsync/messaging"
)

// ErrUnknownRoom is returned for operations on a room sync has not
// delivered.
var ErrUnknownRoom = errors.New("client: unknown room")

// Config configures a Client.
type Config struct {
	// Session talks to the homeserver. Required.
	Session messaging.Session
	// Store holds the sync cursor, filter IDs, and room snapshots.
	// Defaults to an in-memory store.
	Store store.Store
	// Filter overrides the default sync filter.
	Filter *filter.Filter

	// Ordering selects where local echoes are kept.
	Ordering room.PendingOrdering
	// Duplicates selects what happens when sync repeats a resident
	// event.
	Duplicates room.DuplicateStrategy
	// Mapper, if set, transforms every event before a room stores it.
	Mapper timeline.EventMapper

	// Queue assigns outgoing events to scheduler queues. Defaults to
	// DefaultQueue.
	Queue scheduler.QueueFunc[*timeline.Event]
	// Retry decides whether a failed send is retried. Defaults to
	// scheduler.DefaultRetryPolicy.
	Retry scheduler.RetryPolicy[*timeline.Event]

	// PollTimeout and RequestMargin override the sync engine's
	// long-poll timing.
	PollTimeout   time.Duration
	RequestMargin time.Duration
	// SnapshotEvents is passed to the sync engine.
	SnapshotEvents int
	// WindowLimit bounds windows made by NewWindow. Defaults to
	// window.DefaultLimit.
	WindowLimit int

	// Clock times retries, keep-alives, and local timestamps. Defaults
	// to clock.Real().
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Observer receives everything a Client reports.
type Observer interface {
	room.Observer
	syncengine.Observer
}

// ObserverFuncs adapts a pair of functions to Observer. Either may be
// nil.
type ObserverFuncs struct {
	Room func(room.Notification)
	Sync func(syncengine.Notification)
}

func (f ObserverFuncs) OnRoomEvent(n room.Notification) {
	if f.Room != nil {
		f.Room(n)
	}
}

func (f ObserverFuncs) OnSync(n syncengine.Notification) {
	if f.Sync != nil {
		f.Sync(n)
	}
}

// Client is a synced view of a user's rooms plus an outgoing event
// pipeline. Create one with New.
type Client struct {
	session     messaging.Session
	rooms       *syncengine.RoomMap
	engine      *syncengine.Engine
	sender      *scheduler.Scheduler[*timeline.Event]
	windowLimit int
	clock       clock.Clock
	logger      *slog.Logger

	observerMu sync.RWMutex
	observers  map[int]Observer
	nextHandle int

	sendMu sync.Mutex
	sends  map[*timeline.Event]*Send
}

// New returns a client that is not yet syncing. Call Start to begin.
func New(config Config) (*Client, error) {
	if config.Session == nil {
		return nil, fmt.Errorf("client: Config.Session is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	queue := config.Queue
	if queue == nil {
		queue = DefaultQueue
	}
	retry := config.Retry
	if retry == nil {
		retry = scheduler.DefaultRetryPolicy[*timeline.Event]
	}

	c := &Client{
		session:     config.Session,
		windowLimit: config.WindowLimit,
		clock:       clk,
		logger:      logger,
		observers:   make(map[int]Observer),
		sends:       make(map[*timeline.Event]*Send),
	}
	c.rooms = syncengine.NewRoomMap(room.Config{
		UserID:   config.Session.UserID(),
		Session:  config.Session,
		Ordering: config.Ordering,
		Mapper:   config.Mapper,
		Logger:   logger,
	}, func(r *room.Room) {
		r.Subscribe(room.ObserverFunc(c.fanOutRoom))
	})
	c.engine = syncengine.New(syncengine.Config{
		Session:        config.Session,
		Store:          config.Store,
		Rooms:          c.rooms,
		Filter:         config.Filter,
		PollTimeout:    config.PollTimeout,
		RequestMargin:  config.RequestMargin,
		Duplicates:     config.Duplicates,
		SnapshotEvents: config.SnapshotEvents,
		Clock:          clk,
		Logger:         logger,
	})
	c.engine.Subscribe(syncengine.ObserverFunc(c.fanOutSync))
	c.sender = scheduler.New(scheduler.Config[*timeline.Event]{
		Queue:     queue,
		Retry:     unsentTargetRetry(retry),
		Processor: c.process,
		OnQueued:  c.markQueued,
		Clock:     clk,
		Logger:    logger,
	})
	return c, nil
}

// Start begins syncing. The loop runs until Stop or until ctx is
// cancelled.
func (c *Client) Start(ctx context.Context) error {
	return c.engine.Start(ctx)
}

// Stop ends the sync loop and the sender. An event whose send was
// interrupted is marked not sent.
func (c *Client) Stop() {
	c.engine.Stop()
	c.sender.Close()
}

// State returns the sync engine's connection state.
func (c *Client) State() syncengine.State {
	return c.engine.State()
}

// Engine exposes the sync engine for presence and account data.
func (c *Client) Engine() *syncengine.Engine {
	return c.engine
}

// SyncLeftRooms fetches rooms the user has left. It runs once per
// client; later calls return the first result.
func (c *Client) SyncLeftRooms(ctx context.Context) ([]ref.RoomID, error) {
	return c.engine.SyncLeftRooms(ctx)
}

// Room returns a room sync has delivered.
func (c *Client) Room(roomID ref.RoomID) (*room.Room, bool) {
	return c.rooms.Room(roomID)
}

// Rooms returns every known room ordered by ID.
func (c *Client) Rooms() []*room.Room {
	return c.rooms.Rooms()
}

func (c *Client) room(roomID ref.RoomID) (*room.Room, error) {
	r, ok := c.rooms.Room(roomID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoom, roomID)
	}
	return r, nil
}

// Subscribe registers an observer for every room, including rooms
// created later, and for sync notifications. It returns a function
// removing the observer. Observers run synchronously on the goroutine
// that caused the notification.
func (c *Client) Subscribe(observer Observer) func() {
	c.observerMu.Lock()
	defer c.observerMu.Unlock()
	handle := c.nextHandle
	c.nextHandle++
	c.observers[handle] = observer
	return func() {
		c.observerMu.Lock()
		defer c.observerMu.Unlock()
		delete(c.observers, handle)
	}
}

func (c *Client) snapshotObservers() []Observer {
	c.observerMu.RLock()
	defer c.observerMu.RUnlock()
	observers := make([]Observer, 0, len(c.observers))
	for _, observer := range c.observers {
		observers = append(observers, observer)
	}
	return observers
}

func (c *Client) fanOutRoom(n room.Notification) {
	for _, observer := range c.snapshotObservers() {
		observer.OnRoomEvent(n)
	}
}

func (c *Client) fanOutSync(n syncengine.Notification) {
	for _, observer := range c.snapshotObservers() {
		observer.OnSync(n)
	}
}

// Scrollback fetches up to limit older events into the live timeline
// and returns how many were new.
func (c *Client) Scrollback(ctx context.Context, roomID ref.RoomID, limit int) (int, error) {
	r, err := c.room(roomID)
	if err != nil {
		return 0, err
	}
	return r.Paginate(ctx, r.LiveTimeline().ID(), timeline.Backward, limit)
}

// EventTimeline returns the timeline holding eventID, loading it from
// the server's /context endpoint when it is not resident.
func (c *Client) EventTimeline(ctx context.Context, roomID ref.RoomID, eventID ref.EventID) (*timeline.Timeline, error) {
	r, err := c.room(roomID)
	if err != nil {
		return nil, err
	}
	return r.EventTimeline(ctx, eventID)
}

// NewWindow returns an unloaded window over the room's timelines.
func (c *Client) NewWindow(roomID ref.RoomID) (*window.Window, error) {
	r, err := c.room(roomID)
	if err != nil {
		return nil, err
	}
	return window.New(r, window.Config{Limit: c.windowLimit, Logger: c.logger}), nil
}
