// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"strings"
	"testing"

	"github.com/bureau-foundation/chatsync/lib/ref"
)

func TestNewMarkdownMessage(t *testing.T) {
	plain, err := NewMarkdownMessage(`it's "plain" & simple`)
	if err != nil {
		t.Fatalf("NewMarkdownMessage failed: %v", err)
	}
	if plain.Format != "" || plain.FormattedBody != "" {
		t.Errorf("plain text produced formatted body %q", plain.FormattedBody)
	}

	formatted, err := NewMarkdownMessage("**bold** and `code`")
	if err != nil {
		t.Fatalf("NewMarkdownMessage failed: %v", err)
	}
	if formatted.Format != "org.matrix.custom.html" {
		t.Errorf("Format = %q", formatted.Format)
	}
	if !strings.Contains(formatted.FormattedBody, "<strong>bold</strong>") ||
		!strings.Contains(formatted.FormattedBody, "<code>code</code>") {
		t.Errorf("FormattedBody = %q", formatted.FormattedBody)
	}
	if formatted.Body != "**bold** and `code`" {
		t.Errorf("Body = %q, want markdown source", formatted.Body)
	}
}

func TestContentMap(t *testing.T) {
	reaction := NewReaction(ref.MustParseEventID("$target"), "👍")
	relation, ok := reaction["m.relates_to"].(map[string]any)
	if !ok {
		t.Fatalf("m.relates_to missing: %v", reaction)
	}
	if relation["rel_type"] != "m.annotation" || relation["event_id"] != "$target" || relation["key"] != "👍" {
		t.Errorf("relation = %v", relation)
	}

	content := NewThreadReply(ref.MustParseEventID("$root"), "reply").Map()
	if content["msgtype"] != "m.text" || content["body"] != "reply" {
		t.Errorf("content = %v", content)
	}
}

func TestNewTransactionIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := NewTransactionID()
		if seen[id] {
			t.Fatalf("duplicate transaction ID %q", id)
		}
		if strings.Contains(id, "-") {
			t.Fatalf("transaction ID %q contains '-'", id)
		}
		seen[id] = true
	}
}
