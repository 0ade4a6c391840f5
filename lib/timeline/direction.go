// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package timeline

import "fmt"

// Direction selects one end of a timeline: Backward is the start
// (older events), Forward is the end (newer events).
type Direction int

const (
	Backward Direction = 0
	Forward  Direction = 1
)

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	return Direction(1 - d.index())
}

// Wire returns the "b" or "f" form used by /messages.
func (d Direction) Wire() string {
	if d.index() == 0 {
		return "b"
	}
	return "f"
}

func (d Direction) String() string {
	if d.index() == 0 {
		return "backward"
	}
	return "forward"
}

// index panics on anything but the two defined constants.
func (d Direction) index() int {
	if d != Backward && d != Forward {
		panic(fmt.Sprintf("timeline: invalid direction %d", int(d)))
	}
	return int(d)
}
