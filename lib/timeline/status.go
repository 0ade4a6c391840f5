// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package timeline

// Status is the send status of a locally created event. Events that
// came from the server, and local echoes that the server has
// confirmed, have StatusNone.
type Status string

const (
	StatusNone      Status = ""
	StatusSending   Status = "sending"
	StatusQueued    Status = "queued"
	StatusNotSent   Status = "not_sent"
	StatusSent      Status = "sent"
	StatusCancelled Status = "cancelled"
)

var statusTransitions = map[Status][]Status{
	StatusNone:      {StatusSending},
	StatusSending:   {StatusQueued, StatusNotSent, StatusSent},
	StatusQueued:    {StatusSending, StatusCancelled},
	StatusNotSent:   {StatusSending, StatusQueued, StatusCancelled},
	StatusSent:      {},
	StatusCancelled: {},
}

// CanTransition reports whether an event may move from one status to
// another. Clearing to StatusNone (server confirmation) is allowed
// from every status except StatusCancelled.
func CanTransition(from, to Status) bool {
	if to == StatusNone {
		return from != StatusCancelled && from != StatusNone
	}
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition other than
// confirmation is possible.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusCancelled
}
