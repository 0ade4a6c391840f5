// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"encoding/binary"

	"github.com/charmbracelet/lipgloss"
	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/chatsync/lib/ref"
	"github.com/bureau-foundation/chatsync/lib/timeline"
)

// Theme is the palette for rendered timelines. Colors are ANSI 256
// codes.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	LinkForeground   lipgloss.Color

	// SenderColors are assigned to senders by a hash of their user ID
	// so a user keeps one color everywhere.
	SenderColors []lipgloss.Color

	// Local echo status colors.
	StatusPending lipgloss.Color
	StatusFailed  lipgloss.Color

	// Match highlighting in the room picker.
	MatchForeground lipgloss.Color

	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color
}

// DefaultTheme is the built-in dark-terminal color scheme.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	HeaderForeground: lipgloss.Color("255"),
	BorderColor:      lipgloss.Color("240"),
	LinkForeground:   lipgloss.Color("75"),

	SenderColors: []lipgloss.Color{
		lipgloss.Color("114"), // green
		lipgloss.Color("75"),  // blue
		lipgloss.Color("141"), // light purple
		lipgloss.Color("208"), // orange
		lipgloss.Color("220"), // amber
		lipgloss.Color("80"),  // teal
		lipgloss.Color("204"), // pink
	},

	StatusPending: lipgloss.Color("220"),
	StatusFailed:  lipgloss.Color("196"),

	MatchForeground: lipgloss.Color("220"),

	SelectedBackground: lipgloss.Color("236"),
	SelectedForeground: lipgloss.Color("255"),
}

// SenderColor returns the stable color for userID.
func (theme Theme) SenderColor(userID ref.UserID) lipgloss.Color {
	if len(theme.SenderColors) == 0 {
		return theme.NormalText
	}
	sum := blake3.Sum256([]byte(userID.String()))
	return theme.SenderColors[binary.BigEndian.Uint32(sum[:4])%uint32(len(theme.SenderColors))]
}

// StatusColor returns the color for a local echo status. Confirmed
// events use NormalText.
func (theme Theme) StatusColor(status timeline.Status) lipgloss.Color {
	switch status {
	case timeline.StatusSending, timeline.StatusQueued, timeline.StatusSent:
		return theme.StatusPending
	case timeline.StatusNotSent, timeline.StatusCancelled:
		return theme.StatusFailed
	default:
		return theme.NormalText
	}
}
