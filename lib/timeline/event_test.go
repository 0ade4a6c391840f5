// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package timeline

import (
	"testing"

	"github.com/bureau-foundation/chatsync/lib/ref"
	"github.com/bureau-foundation/chatsync/messaging"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusNone, StatusSending, true},
		{StatusSending, StatusQueued, true},
		{StatusSending, StatusNotSent, true},
		{StatusSending, StatusSent, true},
		{StatusSending, StatusCancelled, false},
		{StatusQueued, StatusSending, true},
		{StatusQueued, StatusCancelled, true},
		{StatusQueued, StatusSent, false},
		{StatusNotSent, StatusSending, true},
		{StatusNotSent, StatusQueued, true},
		{StatusNotSent, StatusCancelled, true},
		{StatusSent, StatusSending, false},
		{StatusCancelled, StatusSending, false},
		{StatusSent, StatusNone, true},
		{StatusQueued, StatusNone, true},
		{StatusCancelled, StatusNone, false},
	}
	for _, test := range tests {
		if got := CanTransition(test.from, test.to); got != test.want {
			t.Errorf("CanTransition(%q, %q) = %v, want %v", test.from, test.to, got, test.want)
		}
	}
}

func TestSetStatusPanicsOnInvalidTransition(t *testing.T) {
	event := NewLocalEvent(messaging.Event{EventID: ref.MustParseEventID("~!room:example.org:t1")})
	event.SetStatus(StatusSent)
	defer func() {
		if recover() == nil {
			t.Fatal("SENT -> SENDING did not panic")
		}
	}()
	event.SetStatus(StatusSending)
}

func TestPruneKeepsAllowListedFields(t *testing.T) {
	event := NewEvent(messaging.Event{
		EventID:  ref.MustParseEventID("$power"),
		Type:     ref.EventTypePowerLevels,
		Sender:   ref.MustParseUserID("@alice:example.org"),
		RoomID:   testRoom,
		StateKey: messaging.StringPtr(""),
		Content: map[string]any{
			"ban":           float64(50),
			"users":         map[string]any{"@alice:example.org": float64(100)},
			"notifications": map[string]any{"room": float64(50)},
		},
	})
	redaction := messaging.Event{
		EventID: ref.MustParseEventID("$redact"),
		Type:    ref.EventTypeRedaction,
		Redacts: ref.MustParseEventID("$power"),
	}
	event.Prune(redaction)

	content := event.Content()
	if _, ok := content["notifications"]; ok {
		t.Error("notifications survived redaction")
	}
	if content["ban"] != float64(50) || content["users"] == nil {
		t.Errorf("allow-listed keys lost: %v", content)
	}
	if !event.IsRedacted() {
		t.Error("IsRedacted = false after Prune")
	}
	if event.Wire().Unsigned.RedactedBecause.EventID != redaction.EventID {
		t.Error("redacted_because does not record the redaction")
	}
	if key, ok := event.StateKey(); !ok || key != "" {
		t.Errorf("state key lost: %q, %v", key, ok)
	}
}

func TestPruneMessageDropsAllContent(t *testing.T) {
	event := message("$e1", "@alice:example.org")
	event.Prune(messaging.Event{EventID: ref.MustParseEventID("$r")})
	if len(event.Content()) != 0 {
		t.Errorf("message content after redaction = %v", event.Content())
	}
	if event.Sender().String() != "@alice:example.org" || event.ID().String() != "$e1" {
		t.Error("redaction dropped the envelope")
	}
}
