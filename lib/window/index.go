// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package window

import "github.com/bureau-foundation/chatsync/lib/timeline"

// Index is one end of a window: a timeline and a position relative to
// that timeline's base index. The position is a gap between events:
// position p sits just before the event at relative index p.
type Index struct {
	Timeline *timeline.Timeline
	Position int
}

func (i *Index) minIndex() int {
	minIndex, _ := i.Timeline.Bounds()
	return minIndex
}

func (i *Index) maxIndex() int {
	_, maxIndex := i.Timeline.Bounds()
	return maxIndex
}

// advance moves the index by delta events, forward when positive and
// backward when negative. Once the current timeline is exhausted it
// hops to the neighbour on that side, if any. Returns the signed
// number of events actually moved.
func (i *Index) advance(delta int, neighbours neighbourFunc) int {
	moved := 0
	for delta != 0 {
		var step int
		if delta < 0 {
			step = max(delta, i.minIndex()-i.Position)
		} else {
			step = min(delta, i.maxIndex()-i.Position)
		}
		if step != 0 {
			i.Position += step
			moved += step
			delta -= step
			continue
		}

		direction := timeline.Forward
		if delta < 0 {
			direction = timeline.Backward
		}
		neighbour := neighbours(i.Timeline.ID(), direction)
		if neighbour == nil {
			break
		}
		i.Timeline = neighbour
		if delta < 0 {
			i.Position = i.maxIndex()
		} else {
			i.Position = i.minIndex()
		}
	}
	return moved
}

// retreat is advance in the other direction, returning a positive count.
func (i *Index) retreat(delta int, neighbours neighbourFunc) int {
	return -i.advance(-delta, neighbours)
}

type neighbourFunc func(timeline.ID, timeline.Direction) *timeline.Timeline
