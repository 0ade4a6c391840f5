// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package syncengine drives the Matrix /sync long-poll loop and feeds
// each batch into the rooms it belongs to.
//
// One request is in flight at a time. The cursor from each response
// is persisted before the batch is applied, so a crash mid-batch
// resumes after it rather than replaying it. When a request fails the
// engine enters [StateError] and polls /versions with jittered
// exponential backoff until the server answers, then catches up with
// an immediate (timeout=0) sync. An M_UNKNOWN_TOKEN error stops the
// engine and is reported as [KindSessionInvalidated].
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/chatsync/lib/clock"
	"github.com/bureau-foundation/chatsync/lib/filter"
	"github.com/bureau-foundation/chatsync/lib/ref"
	"github.com/bureau-foundation/chatsync/lib/room"
	"github.com/bureau-foundation/chatsync/lib/store"
	"github.com/bureau-foundation/chatsync/messaging"
)

const (
	// PollTimeout is how long the server may hold a /sync request
	// open when it has nothing to send.
	PollTimeout = 80 * time.Second
	// RequestMargin is added to the poll timeout for the local
	// deadline on each request.
	RequestMargin = 10 * time.Second

	// KeepAliveMin and KeepAliveJitter bound the first /versions
	// retry delay after a failure. Later delays double up to
	// KeepAliveMax.
	KeepAliveMin    = 5 * time.Second
	KeepAliveJitter = 5 * time.Second
	KeepAliveMax    = 5 * time.Minute

	// DefaultSnapshotEvents is the number of live events kept per
	// room snapshot.
	DefaultSnapshotEvents = 50
)

var (
	// ErrStopped is returned by Start once the engine has stopped.
	ErrStopped = errors.New("syncengine: stopped")
	// ErrRunning is returned by Start while the loop is running.
	ErrRunning = errors.New("syncengine: already running")
)

// Config configures an Engine.
type Config struct {
	Session messaging.Session
	// Store holds the cursor, filter IDs and room snapshots.
	// Defaults to an in-memory store.
	Store store.Store
	// Rooms receives the rooms named in each batch.
	Rooms RoomRegistry

	// Filter restricts what the server sends. Defaults to
	// filter.Default(), or filter.Guest() for guest sessions.
	Filter *filter.Filter

	// PollTimeout and RequestMargin override the package defaults.
	PollTimeout   time.Duration
	RequestMargin time.Duration

	// Duplicates selects what happens when a live event is already
	// resident.
	Duplicates room.DuplicateStrategy

	// SnapshotEvents is the number of live events stored per room
	// after each batch. Negative disables snapshots.
	SnapshotEvents int

	// Clock is used for keep-alive delays. Defaults to clock.Real().
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Engine runs the sync loop. Create one with New.
type Engine struct {
	session        messaging.Session
	store          store.Store
	rooms          RoomRegistry
	filter         filter.Filter
	pollTimeout    time.Duration
	requestMargin  time.Duration
	duplicates     room.DuplicateStrategy
	snapshotEvents int
	clock          clock.Clock
	logger         *slog.Logger

	mu          sync.Mutex
	state       State
	cancel      context.CancelFunc
	done        chan struct{}
	stopped     bool
	observers   map[int]Observer
	nextHandle  int
	delivering  atomic.Int32
	presence    map[ref.UserID]messaging.Event
	accountData map[ref.EventType]messaging.Event

	// Touched only by the sync goroutine.
	syncToken string
	catchUp   bool
	preloaded bool

	filterMu  sync.Mutex
	filterIDs map[string]string

	leftRooms    sync.Once
	leftRoomIDs  []ref.RoomID
	leftRoomsErr error
}

// New returns a stopped engine. Call Start to begin syncing.
func New(config Config) *Engine {
	if config.Session == nil {
		panic("syncengine: Config.Session is required")
	}
	if config.Rooms == nil {
		panic("syncengine: Config.Rooms is required")
	}
	engine := &Engine{
		session:        config.Session,
		store:          config.Store,
		rooms:          config.Rooms,
		pollTimeout:    config.PollTimeout,
		requestMargin:  config.RequestMargin,
		duplicates:     config.Duplicates,
		snapshotEvents: config.SnapshotEvents,
		clock:          config.Clock,
		logger:         config.Logger,
		observers:      make(map[int]Observer),
		presence:       make(map[ref.UserID]messaging.Event),
		accountData:    make(map[ref.EventType]messaging.Event),
		filterIDs:      make(map[string]string),
	}
	if engine.store == nil {
		engine.store = store.NewMemory()
	}
	switch {
	case config.Filter != nil:
		engine.filter = *config.Filter
	case config.Session.IsGuest():
		engine.filter = filter.Guest()
	default:
		engine.filter = filter.Default()
	}
	if engine.pollTimeout <= 0 {
		engine.pollTimeout = PollTimeout
	}
	if engine.requestMargin <= 0 {
		engine.requestMargin = RequestMargin
	}
	if engine.snapshotEvents == 0 {
		engine.snapshotEvents = DefaultSnapshotEvents
	}
	if engine.clock == nil {
		engine.clock = clock.Real()
	}
	if engine.logger == nil {
		engine.logger = slog.Default()
	}
	return engine
}

// Subscribe registers an observer and returns a function removing it.
func (e *Engine) Subscribe(observer Observer) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	handle := e.nextHandle
	e.nextHandle++
	e.observers[handle] = observer
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.observers, handle)
	}
}

func (e *Engine) notify(n Notification) {
	e.mu.Lock()
	observers := make([]Observer, 0, len(e.observers))
	for _, observer := range e.observers {
		observers = append(observers, observer)
	}
	e.mu.Unlock()
	e.delivering.Add(1)
	defer e.delivering.Add(-1)
	for _, observer := range observers {
		observer.OnSync(n)
	}
}

// State returns the current connection state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(state State, err error) {
	e.mu.Lock()
	previous := e.state
	if previous == state || previous == StateStopped {
		e.mu.Unlock()
		return
	}
	e.state = state
	e.mu.Unlock()

	e.logger.Info("sync state changed", "state", state.String(), "previous", previous.String(), "error", err)
	e.notify(Notification{Kind: KindState, State: state, Previous: previous, Err: err})
}

// Presence returns the latest m.presence event for userID.
func (e *Engine) Presence(userID ref.UserID) (messaging.Event, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	event, ok := e.presence[userID]
	return event, ok
}

// AccountData returns the latest global account data event of
// eventType.
func (e *Engine) AccountData(eventType ref.EventType) (messaging.Event, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	event, ok := e.accountData[eventType]
	return event, ok
}

// Start launches the sync loop. It returns immediately; progress is
// reported to observers. Cancelling ctx has the same effect as Stop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrStopped
	}
	if e.cancel != nil {
		return ErrRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.run(ctx, e.done)
	return nil
}

// Stop aborts any request in flight, waits for the loop to exit and
// moves to StateStopped. The engine cannot be restarted.
//
// Observers may call Stop. While a notification is being delivered
// Stop cannot wait for the loop, which is the goroutine delivering it;
// it cancels the loop and returns, and Done closes once the observer
// returns.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.stopped = true
	e.mu.Unlock()
	if cancel != nil {
		cancel()
		if e.delivering.Load() == 0 {
			<-done
		}
	}
	e.setState(StateStopped, nil)
}

// Done is closed when the loop exits, whether through Stop, context
// cancellation or an invalidated session. It is nil before Start.
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		if ctx.Err() != nil {
			return
		}
		err := e.syncOnce(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if messaging.IsSessionInvalidated(err) {
			e.logger.Error("access token rejected, stopping sync", "error", err)
			e.setState(StateError, err)
			e.notify(Notification{Kind: KindSessionInvalidated, Err: err})
			e.mu.Lock()
			e.stopped = true
			e.mu.Unlock()
			e.setState(StateStopped, nil)
			return
		}

		e.logger.Warn("sync failed", "error", err)
		e.setState(StateError, err)
		if !e.keepAlive(ctx) {
			return
		}
		e.catchUp = true
	}
}

// keepAlive polls /versions until it succeeds. It returns false when
// ctx ends first.
func (e *Engine) keepAlive(ctx context.Context) bool {
	delay := KeepAliveMin + rand.N(KeepAliveJitter)
	for {
		select {
		case <-ctx.Done():
			return false
		case <-e.clock.After(delay):
		}
		_, err := e.session.Versions(ctx)
		if err == nil {
			e.logger.Info("server reachable again, resuming sync")
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		delay = min(delay*2, KeepAliveMax)
		e.logger.Debug("server still unreachable", "error", err, "next_check", delay)
	}
}

// syncOnce performs one /sync request and applies its batch. Errors
// applying the batch are logged, not returned: the cursor has already
// moved past it. A response body that does not decode is skipped the
// same way when its next_batch can still be read.
func (e *Engine) syncOnce(ctx context.Context) error {
	if !e.preloaded {
		if err := e.preload(ctx); err != nil {
			return err
		}
	}
	filterParam, err := e.filterParam(ctx, e.filter)
	if err != nil {
		return err
	}

	timeout := e.pollTimeout
	if e.catchUp || e.syncToken == "" {
		timeout = 0
	}
	requestCtx, cancel := context.WithTimeout(ctx, timeout+e.requestMargin)
	response, err := e.session.Sync(requestCtx, messaging.SyncOptions{
		Since:      e.syncToken,
		Timeout:    int(timeout / time.Millisecond),
		SetTimeout: true,
		Filter:     filterParam,
	})
	cancel()
	var malformed *messaging.MalformedSyncError
	if errors.As(err, &malformed) && malformed.NextBatch != "" {
		e.logger.Error("abandoning undecodable sync batch", "next_batch", malformed.NextBatch, "error", err)
		e.advance(ctx, malformed.NextBatch)
		e.markSynced()
		return nil
	}
	if err != nil {
		return fmt.Errorf("syncengine: sync: %w", err)
	}

	since := e.syncToken
	e.advance(ctx, response.NextBatch)

	touched, err := e.apply(response, since)
	if err != nil {
		e.logger.Error("abandoning sync batch", "next_batch", response.NextBatch, "error", err)
	}
	e.storeRooms(ctx, touched)
	e.markSynced()
	return nil
}

// advance moves the cursor to nextBatch and persists it before the
// batch is processed.
func (e *Engine) advance(ctx context.Context, nextBatch string) {
	e.syncToken = nextBatch
	e.catchUp = false
	if err := e.store.SetSyncToken(ctx, nextBatch); err != nil {
		e.logger.Error("persisting sync token failed", "next_batch", nextBatch, "error", err)
	}
}

func (e *Engine) markSynced() {
	switch e.State() {
	case StateUnset:
		e.setState(StatePrepared, nil)
		e.setState(StateSyncing, nil)
	case StateError:
		e.setState(StateSyncing, nil)
	}
}

// preload restores the stored cursor and the rooms stored with it.
func (e *Engine) preload(ctx context.Context) error {
	token, err := e.store.SyncToken(ctx)
	if err != nil {
		return fmt.Errorf("syncengine: loading sync token: %w", err)
	}
	if token != "" {
		snapshots, err := e.store.Rooms(ctx)
		if err != nil {
			return fmt.Errorf("syncengine: loading stored rooms: %w", err)
		}
		for _, snapshot := range snapshots {
			r, created := e.rooms.GetOrCreateRoom(snapshot.RoomID)
			if !created {
				continue
			}
			if err := r.Restore(snapshot); err != nil {
				e.logger.Warn("discarding stored room", "room_id", snapshot.RoomID.String(), "error", err)
			}
		}
		e.logger.Info("resuming from stored sync token", "since", token, "rooms", len(snapshots))
	}
	e.syncToken = token
	e.preloaded = true
	return nil
}

// storeRooms snapshots joined and invited rooms. Left rooms are
// dropped from the store so a restart does not resurrect them.
func (e *Engine) storeRooms(ctx context.Context, rooms []*room.Room) {
	if e.snapshotEvents < 0 {
		return
	}
	for _, r := range rooms {
		if r.MyMembership() == "leave" {
			if err := e.store.DeleteRoom(ctx, r.ID()); err != nil {
				e.logger.Error("deleting left room failed", "room_id", r.ID().String(), "error", err)
			}
			continue
		}
		if err := e.store.StoreRoom(ctx, r.Snapshot(e.snapshotEvents)); err != nil {
			e.logger.Error("storing room snapshot failed", "room_id", r.ID().String(), "error", err)
		}
	}
}

// filterParam returns the filter argument for /sync: the inline
// definition for guests, otherwise a server filter ID created on
// first use and remembered in the store.
func (e *Engine) filterParam(ctx context.Context, f filter.Filter) (string, error) {
	if e.session.IsGuest() {
		return string(f.Definition()), nil
	}
	key := f.StoreKey()
	e.filterMu.Lock()
	defer e.filterMu.Unlock()
	if id, ok := e.filterIDs[key]; ok {
		return id, nil
	}

	id, err := e.store.FilterID(ctx, key)
	if err != nil {
		return "", fmt.Errorf("syncengine: loading filter %s: %w", key, err)
	}
	if id != "" {
		_, err := e.session.GetFilter(ctx, id)
		switch {
		case err == nil:
			e.filterIDs[key] = id
			return id, nil
		case messaging.IsMatrixError(err, messaging.ErrCodeNotFound):
			e.logger.Info("server forgot filter, recreating", "filter", key, "filter_id", id)
		default:
			return "", fmt.Errorf("syncengine: checking filter %s: %w", id, err)
		}
	}

	id, err = e.session.CreateFilter(ctx, f.Definition())
	if err != nil {
		return "", fmt.Errorf("syncengine: creating filter %s: %w", key, err)
	}
	if err := e.store.SetFilterID(ctx, key, id); err != nil {
		e.logger.Warn("persisting filter ID failed", "filter", key, "error", err)
	}
	e.filterIDs[key] = id
	return id, nil
}

// SyncLeftRooms fetches the rooms the user has left with a one-off
// include_leave sync and applies them. Only the first call talks to
// the server; later calls return its result.
func (e *Engine) SyncLeftRooms(ctx context.Context) ([]ref.RoomID, error) {
	e.leftRooms.Do(func() {
		e.leftRoomIDs, e.leftRoomsErr = e.syncLeftRooms(ctx)
	})
	return e.leftRoomIDs, e.leftRoomsErr
}

func (e *Engine) syncLeftRooms(ctx context.Context) ([]ref.RoomID, error) {
	leaveFilter := e.filter.WithName(e.filter.Name() + "-leave").WithIncludeLeave(true)
	filterParam, err := e.filterParam(ctx, leaveFilter)
	if err != nil {
		return nil, err
	}
	response, err := e.session.Sync(ctx, messaging.SyncOptions{
		Timeout:    0,
		SetTimeout: true,
		Filter:     filterParam,
	})
	if err != nil {
		return nil, fmt.Errorf("syncengine: syncing left rooms: %w", err)
	}
	if err := validate(messaging.SyncResponse{Rooms: messaging.RoomsSection{Leave: response.Rooms.Leave}}); err != nil {
		return nil, fmt.Errorf("syncengine: left rooms: %w", err)
	}

	var roomIDs []ref.RoomID
	var touched []*room.Room
	for _, roomID := range sortedKeys(response.Rooms.Leave) {
		r, brandNew := e.applyLeft(roomID, response.Rooms.Leave[roomID], "")
		roomIDs = append(roomIDs, roomID)
		touched = append(touched, r)
		e.notify(Notification{Kind: KindRoom, RoomID: roomID, Membership: "leave", BrandNew: brandNew})
	}
	e.storeRooms(ctx, touched)
	return roomIDs, nil
}
