// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// Fake returns a clock frozen at start. It moves only on Advance.
func Fake(start time.Time) *FakeClock {
	c := &FakeClock{now: start}
	c.registered = sync.NewCond(&c.mu)
	return c
}

// FakeClock is a Clock for tests. Due timers fire on the goroutine
// calling Advance, earliest first; timers due at the same instant fire
// in registration order. Callbacks must not call Advance.
type FakeClock struct {
	mu         sync.Mutex
	now        time.Time
	timers     []*fakeTimer
	sequence   uint64
	registered *sync.Cond
}

type fakeTimer struct {
	due      time.Time
	sequence uint64
	fire     func(now time.Time)
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.Now()
		return ch
	}
	c.schedule(d, func(now time.Time) { ch <- now })
	return ch
}

// AfterFunc runs f before returning when d <= 0.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stop: func() bool { return false }}
	}
	timer := c.schedule(d, func(time.Time) { f() })
	return &Timer{stop: func() bool { return c.cancel(timer) }}
}

func (c *FakeClock) schedule(d time.Duration, fire func(time.Time)) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sequence++
	timer := &fakeTimer{due: c.now.Add(d), sequence: c.sequence, fire: fire}
	c.timers = append(c.timers, timer)
	c.registered.Broadcast()
	return timer
}

func (c *FakeClock) cancel(timer *fakeTimer) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	index := slices.Index(c.timers, timer)
	if index < 0 {
		return false
	}
	c.timers = slices.Delete(c.timers, index, index+1)
	return true
}

// Advance moves the clock forward by d, then fires every timer due by
// the new time. A timer registered by a callback fires in the same
// call if it is already due.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	for {
		timer, now, ok := c.popDue()
		if !ok {
			return
		}
		timer.fire(now)
	}
}

func (c *FakeClock) popDue() (*fakeTimer, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := -1
	for i, timer := range c.timers {
		if timer.due.After(c.now) {
			continue
		}
		if next < 0 || timer.due.Before(c.timers[next].due) ||
			(timer.due.Equal(c.timers[next].due) && timer.sequence < c.timers[next].sequence) {
			next = i
		}
	}
	if next < 0 {
		return nil, time.Time{}, false
	}
	timer := c.timers[next]
	c.timers = slices.Delete(c.timers, next, next+1)
	return timer, c.now, true
}

// WaitForTimers blocks until at least n timers are pending.
//
//	go scheduler.Queue(item)
//	fakeClock.WaitForTimers(1)
//	fakeClock.Advance(time.Second)
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.timers) < n {
		c.registered.Wait()
	}
}
