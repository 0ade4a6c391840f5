// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/chatsync/lib/ref"
	"github.com/bureau-foundation/chatsync/lib/timeline"
)

// EventOptions controls how FormatEvent lays out one event.
type EventOptions struct {
	// Width is the terminal width to wrap to.
	Width int
	// Location is used for timestamps. Defaults to time.Local.
	Location *time.Location
	// HideTimestamp drops the leading HH:MM column.
	HideTimestamp bool
}

// FormatEvent renders one timeline event as terminal lines: a
// timestamp, the sender, and the message body or a one-line summary
// of what the event did. Local echoes carry their send status.
func FormatEvent(event *timeline.Event, theme Theme, options EventOptions) string {
	location := options.Location
	if location == nil {
		location = time.Local
	}
	styles := newStyles().NewStyle()

	var header strings.Builder
	if !options.HideTimestamp && event.Timestamp() > 0 {
		stamp := time.UnixMilli(event.Timestamp()).In(location).Format("15:04")
		header.WriteString(styles.Foreground(theme.FaintText).Render(stamp) + " ")
	}
	name := senderName(event)
	headerWidth := lipgloss.Width(header.String())

	body, isMessage := describe(event, name, theme, max(options.Width-headerWidth-len(name)-2, minWidth))
	if isMessage {
		header.WriteString(styles.Foreground(theme.SenderColor(event.Sender())).Bold(true).Render(name) + ": ")
	} else {
		header.WriteString(styles.Foreground(theme.FaintText).Render("* "))
	}
	if status := event.Status(); status != timeline.StatusNone {
		body += " " + styles.Foreground(theme.StatusColor(status)).Render("("+statusLabel(status)+")")
	}

	indent := strings.Repeat(" ", lipgloss.Width(header.String()))
	return prefixLines(body, header.String(), indent)
}

// describe returns the rendered body and whether the event is a
// message (rendered after "sender:") rather than a summary line that
// names the sender itself.
func describe(event *timeline.Event, name string, theme Theme, width int) (string, bool) {
	faint := newStyles().NewStyle().Foreground(theme.FaintText)
	content := event.Content()

	if event.IsRedacted() {
		return faint.Render("(message deleted)"), true
	}

	switch event.Type() {
	case ref.EventTypeMessage:
		body, _ := content["body"].(string)
		switch msgtype, _ := content["msgtype"].(string); msgtype {
		case "m.emote":
			return ansi.Wrap(name+" "+body, width, wrapBreakpoints), false
		case "m.notice":
			return faint.Render(ansi.Wrap(body, width, wrapBreakpoints)), true
		case "m.image", "m.file", "m.video", "m.audio":
			return faint.Render(fmt.Sprintf("[%s: %s]", strings.TrimPrefix(msgtype, "m."), body)), true
		default:
			return Markdown(body, theme, width), true
		}

	case ref.EventTypeMember:
		return faint.Render(describeMembership(event, name)), false

	case ref.EventTypeRoomName:
		roomName, _ := content["name"].(string)
		return faint.Render(fmt.Sprintf("%s renamed the room to %q", name, roomName)), false

	case ref.EventTypeTopic:
		topic, _ := content["topic"].(string)
		return faint.Render(ansi.Wrap(fmt.Sprintf("%s changed the topic to %q", name, topic), width, wrapBreakpoints)), false

	case ref.EventTypeCreate:
		return faint.Render(name + " created the room"), false

	case ref.EventTypeReaction:
		key := ""
		if relation, ok := content["m.relates_to"].(map[string]any); ok {
			key, _ = relation["key"].(string)
		}
		return faint.Render(fmt.Sprintf("%s reacted with %s", name, key)), false

	case ref.EventTypeRedaction:
		return faint.Render(name + " deleted a message"), false
	}

	if _, isState := event.StateKey(); isState {
		return faint.Render(fmt.Sprintf("%s set %s", name, event.Type())), false
	}
	return faint.Render(fmt.Sprintf("[%s]", event.Type())), true
}

func describeMembership(event *timeline.Event, name string) string {
	membership, _ := event.Content()["membership"].(string)
	previous, _ := event.PrevContent()["membership"].(string)
	target := name
	if member, ok := event.TargetMember(); ok {
		target = member.Name()
	} else if stateKey, ok := event.StateKey(); ok && stateKey != "" {
		target = stateKey
	}

	switch membership {
	case "join":
		if previous == "join" {
			displayName, _ := event.Content()["displayname"].(string)
			return fmt.Sprintf("%s is now known as %s", target, displayName)
		}
		return target + " joined"
	case "leave":
		if event.Sender().String() != target && name != target {
			return fmt.Sprintf("%s removed %s", name, target)
		}
		return target + " left"
	case "invite":
		return fmt.Sprintf("%s invited %s", name, target)
	case "ban":
		return fmt.Sprintf("%s banned %s", name, target)
	case "knock":
		return target + " asked to join"
	default:
		return fmt.Sprintf("%s changed membership of %s", name, target)
	}
}

func senderName(event *timeline.Event) string {
	if member, ok := event.SenderMember(); ok {
		return member.Name()
	}
	return event.Sender().String()
}

func statusLabel(status timeline.Status) string {
	return strings.ReplaceAll(string(status), "_", " ")
}
