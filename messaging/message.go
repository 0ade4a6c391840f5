// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/bureau-foundation/chatsync/lib/ref"
)

// MessageContent is the content body of an m.room.message event.
type MessageContent struct {
	MsgType       string     `json:"msgtype"`
	Body          string     `json:"body"`
	Format        string     `json:"format,omitempty"`
	FormattedBody string     `json:"formatted_body,omitempty"`
	RelatesTo     *RelatesTo `json:"m.relates_to,omitempty"`
}

// RelatesTo expresses relationships between events: thread replies,
// annotations (reactions), and replacements (edits).
type RelatesTo struct {
	RelType       string      `json:"rel_type,omitempty"`
	EventID       ref.EventID `json:"event_id,omitempty"`
	Key           string      `json:"key,omitempty"`
	IsFallingBack bool        `json:"is_falling_back,omitempty"`
	InReplyTo     *InReplyTo  `json:"m.in_reply_to,omitempty"`
}

// InReplyTo references a specific event being replied to.
type InReplyTo struct {
	EventID ref.EventID `json:"event_id"`
}

// Map converts the content to the generic form stored on events.
func (c MessageContent) Map() map[string]any {
	return ContentMap(c)
}

// ContentMap converts any JSON-serializable content value into the
// map form events carry. Panics if v does not encode to a JSON object.
func ContentMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("messaging: content is not JSON-serializable: %v", err))
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		panic(fmt.Sprintf("messaging: content is not a JSON object: %v", err))
	}
	return m
}

// NewTextMessage creates a plain text message.
func NewTextMessage(body string) MessageContent {
	return MessageContent{
		MsgType: "m.text",
		Body:    body,
	}
}

var (
	markdownRenderer     goldmark.Markdown
	markdownRendererOnce sync.Once
)

func getMarkdownRenderer() goldmark.Markdown {
	markdownRendererOnce.Do(func() {
		markdownRenderer = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		)
	})
	return markdownRenderer
}

// htmlEscaper matches the escaping goldmark applies to plain text.
var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

// NewMarkdownMessage creates a text message whose body is the markdown
// source and whose formatted_body is the rendered HTML. When the
// markdown has no formatting the message is sent as plain text.
func NewMarkdownMessage(markdown string) (MessageContent, error) {
	var rendered bytes.Buffer
	if err := getMarkdownRenderer().Convert([]byte(markdown), &rendered); err != nil {
		return MessageContent{}, fmt.Errorf("messaging: rendering markdown: %w", err)
	}
	formatted := strings.TrimSpace(rendered.String())
	if formatted == "<p>"+htmlEscaper.Replace(markdown)+"</p>" {
		return NewTextMessage(markdown), nil
	}
	return MessageContent{
		MsgType:       "m.text",
		Body:          markdown,
		Format:        "org.matrix.custom.html",
		FormattedBody: formatted,
	}, nil
}

// NewThreadReply creates a message that replies within an existing thread.
func NewThreadReply(threadRootID ref.EventID, body string) MessageContent {
	return MessageContent{
		MsgType: "m.text",
		Body:    body,
		RelatesTo: &RelatesTo{
			RelType:       "m.thread",
			EventID:       threadRootID,
			IsFallingBack: true,
			InReplyTo:     &InReplyTo{EventID: threadRootID},
		},
	}
}

// NewReaction creates m.reaction content annotating eventID with key.
func NewReaction(eventID ref.EventID, key string) map[string]any {
	return ContentMap(struct {
		RelatesTo RelatesTo `json:"m.relates_to"`
	}{RelatesTo{RelType: "m.annotation", EventID: eventID, Key: key}})
}

// NewTransactionID returns a fresh client transaction ID. Transaction
// IDs make sends idempotent and let the client match its own events
// when they come back through /sync.
func NewTransactionID() string {
	return "m" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
