// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package window presents a bounded slice of a room's unbounded
// timeline chain.
//
// A [Window] tracks its two ends as (timeline, position) pairs. Moving
// an end first uses events already held in the chain, hopping across
// linked timelines; only when the chain is exhausted does it ask the
// server for more. The window never holds more than its limit: growing
// one end past it trims the other.
package window

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/bureau-foundation/chatsync/lib/ref"
	"github.com/bureau-foundation/chatsync/lib/timeline"
)

// DefaultLimit is the window size limit when none is configured.
const DefaultLimit = 1000

// DefaultRequestLimit bounds the number of server requests one
// Paginate call makes while the server keeps returning only events
// the room already has.
const DefaultRequestLimit = 5

// ErrNotLoaded is returned by operations on a window before Load.
var ErrNotLoaded = errors.New("window: not loaded")

// ErrNoMoreEvents is returned by Unpaginate when the window cannot
// shrink by the requested amount.
var ErrNoMoreEvents = errors.New("window: no more events")

// Source is the timeline chain a window walks. *room.Room implements it.
type Source interface {
	LiveTimeline() *timeline.Timeline
	EventTimeline(ctx context.Context, eventID ref.EventID) (*timeline.Timeline, error)
	Neighbour(id timeline.ID, direction timeline.Direction) *timeline.Timeline
	Paginate(ctx context.Context, id timeline.ID, direction timeline.Direction, limit int) (int, error)
}

// Config holds the window's options.
type Config struct {
	// Limit is the maximum number of events held. Defaults to DefaultLimit.
	Limit int
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Window is a bounded view over a timeline chain.
type Window struct {
	source Source
	limit  int
	logger *slog.Logger

	flights singleflight.Group

	mu         sync.Mutex
	start      *Index
	end        *Index
	eventCount int
}

// New returns an unloaded window over source.
func New(source Source, config Config) *Window {
	limit := config.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Window{source: source, limit: limit, logger: logger}
}

// Limit returns the maximum number of events the window holds.
func (w *Window) Limit() int { return w.limit }

// Load positions the window around eventID, fetching its context if
// needed, or at the live end when eventID is zero. About half of
// initialSize falls after the event and the rest before it, clamped
// to what the timeline holds.
func (w *Window) Load(ctx context.Context, eventID ref.EventID, initialSize int) error {
	initialSize = min(max(initialSize, 0), w.limit)

	var tl *timeline.Timeline
	if eventID.IsZero() {
		tl = w.source.LiveTimeline()
	} else {
		var err error
		tl, err = w.source.EventTimeline(ctx, eventID)
		if err != nil {
			return fmt.Errorf("window: loading around %s: %w", eventID, err)
		}
	}

	events, baseIndex := tl.View()
	eventIndex := len(events)
	if !eventID.IsZero() {
		eventIndex = -1
		for i, event := range events {
			if event.ID() == eventID {
				eventIndex = i
				break
			}
		}
		if eventIndex < 0 {
			return fmt.Errorf("window: timeline for %s does not contain it", eventID)
		}
	}

	endIndex := min(len(events), eventIndex+(initialSize+1)/2)
	startIndex := max(0, endIndex-initialSize)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.start = &Index{Timeline: tl, Position: startIndex - baseIndex}
	w.end = &Index{Timeline: tl, Position: endIndex - baseIndex}
	w.eventCount = endIndex - startIndex
	return nil
}

// EventCount returns the number of events in the window.
func (w *Window) EventCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.eventCount
}

// Ends returns copies of the window's two ends.
func (w *Window) Ends() (start, end Index, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.start == nil {
		return Index{}, Index{}, false
	}
	return *w.start, *w.end, true
}

// CanPaginate reports whether the window might grow in direction:
// there are held events past that end, a linked neighbour, or a
// pagination token to fetch more with.
func (w *Window) CanPaginate(direction timeline.Direction) bool {
	w.mu.Lock()
	index := w.indexLocked(direction)
	if index == nil {
		w.mu.Unlock()
		return false
	}
	tl := index.Timeline
	position := index.Position
	w.mu.Unlock()

	minIndex, maxIndex := tl.Bounds()
	if direction == timeline.Backward && position > minIndex {
		return true
	}
	if direction == timeline.Forward && position < maxIndex {
		return true
	}
	return w.source.Neighbour(tl.ID(), direction) != nil || tl.Token(direction) != ""
}

// Paginate grows the window by up to size events in direction. Events
// already in the chain are used first; otherwise, when makeRequest is
// set, up to requestLimit server requests are made until some new
// events arrive or the server has nothing more. Reports whether the
// window grew.
//
// Concurrent calls in the same direction share one pagination.
func (w *Window) Paginate(ctx context.Context, direction timeline.Direction, size int, makeRequest bool, requestLimit int) (bool, error) {
	result, err, _ := w.flights.Do(direction.String(), func() (any, error) {
		return w.paginate(ctx, direction, size, makeRequest, requestLimit)
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

func (w *Window) paginate(ctx context.Context, direction timeline.Direction, size int, makeRequest bool, requestLimit int) (bool, error) {
	for {
		w.mu.Lock()
		index := w.indexLocked(direction)
		if index == nil {
			w.mu.Unlock()
			return false, ErrNotLoaded
		}

		var count int
		if direction == timeline.Backward {
			count = index.retreat(size, w.source.Neighbour)
		} else {
			count = index.advance(size, w.source.Neighbour)
		}
		if count > 0 {
			w.eventCount += count
			if excess := w.eventCount - w.limit; excess > 0 {
				if err := w.unpaginateLocked(excess, direction != timeline.Backward); err != nil {
					w.mu.Unlock()
					return true, err
				}
			}
			w.mu.Unlock()
			return true, nil
		}

		tl := index.Timeline
		w.mu.Unlock()

		if !makeRequest || requestLimit <= 0 || tl.Token(direction) == "" {
			return false, nil
		}
		if _, err := w.source.Paginate(ctx, tl.ID(), direction, size); err != nil {
			return false, fmt.Errorf("window: paginating %s: %w", direction, err)
		}
		requestLimit--
	}
}

// Unpaginate shrinks the window by delta events from the start when
// startOfWindow is set, otherwise from the end.
func (w *Window) Unpaginate(delta int, startOfWindow bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.start == nil {
		return ErrNotLoaded
	}
	return w.unpaginateLocked(delta, startOfWindow)
}

func (w *Window) unpaginateLocked(delta int, startOfWindow bool) error {
	if delta < 0 || delta > w.eventCount {
		return fmt.Errorf("window: cannot remove %d of %d events", delta, w.eventCount)
	}
	index := w.end
	if startOfWindow {
		index = w.start
	}
	for delta > 0 {
		var count int
		if startOfWindow {
			count = index.advance(delta, w.source.Neighbour)
		} else {
			count = index.retreat(delta, w.source.Neighbour)
		}
		if count <= 0 {
			return fmt.Errorf("%w: %d events left to remove of %d", ErrNoMoreEvents, delta, w.eventCount)
		}
		delta -= count
		w.eventCount -= count
	}
	return nil
}

// Events returns the events in the window, oldest first.
func (w *Window) Events() []*timeline.Event {
	w.mu.Lock()
	if w.start == nil {
		w.mu.Unlock()
		return nil
	}
	start, end := *w.start, *w.end
	w.mu.Unlock()

	var events []*timeline.Event
	tl := start.Timeline
	visited := make(map[timeline.ID]bool)
	for tl != nil && !visited[tl.ID()] {
		visited[tl.ID()] = true
		from, to := tl.Bounds()
		if tl == start.Timeline {
			from = start.Position
		}
		if tl == end.Timeline {
			to = end.Position
		}
		events = append(events, tl.Slice(from, to)...)
		if tl == end.Timeline {
			break
		}
		tl = w.source.Neighbour(tl.ID(), timeline.Forward)
	}
	return events
}

func (w *Window) indexLocked(direction timeline.Direction) *Index {
	if direction == timeline.Backward {
		return w.start
	}
	return w.end
}
