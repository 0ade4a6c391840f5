// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/chatsync/lib/client"
	"github.com/bureau-foundation/chatsync/lib/ref"
	"github.com/bureau-foundation/chatsync/lib/render"
	"github.com/bureau-foundation/chatsync/lib/room"
	"github.com/bureau-foundation/chatsync/lib/syncengine"
	"github.com/bureau-foundation/chatsync/lib/timeline"
	"github.com/bureau-foundation/chatsync/lib/window"
)

// DefaultInitialSize is how many events a room loads when opened.
const DefaultInitialSize = 20

type screen int

const (
	screenPicker screen = iota
	screenRoom
)

// Config configures the viewer model.
type Config struct {
	// Theme defaults to render.DefaultTheme.
	Theme *render.Theme
	// Keys defaults to DefaultKeyMap.
	Keys *KeyMap
	// InitialSize is how many events a room loads when opened, and
	// how many each history fetch asks for. Defaults to
	// DefaultInitialSize.
	InitialSize int
	// Room, if set, is opened as soon as the first sync completes. It
	// matches a room ID or a room name.
	Room string
}

// paginatedMsg reports the end of a history fetch.
type paginatedMsg struct {
	window *window.Window
	grew   bool
	err    error
}

// sendResultMsg reports the outcome of a send.
type sendResultMsg struct {
	err error
}

// receiptResultMsg reports the outcome of a read receipt.
type receiptResultMsg struct {
	err error
}

// Model is the viewer's bubbletea model.
type Model struct {
	ctx         context.Context
	source      Source
	theme       render.Theme
	keys        KeyMap
	initialSize int
	pendingRoom string

	width, height int
	ready         bool
	screen        screen
	syncState     syncengine.State

	// Room picker.
	filter  textinput.Model
	rooms   []*room.Room
	matches []render.Match
	cursor  int

	// Room screen.
	current  *room.Room
	window   *window.Window
	viewport viewport.Model
	composer textinput.Model
	follow   bool
	loading  bool
	lastRead ref.EventID

	status           string
	statusLevel      slog.Level
	statusGeneration int
}

// NewModel returns the model showing the room picker. ctx bounds every
// request the model makes.
func NewModel(ctx context.Context, source Source, config Config) Model {
	theme := render.DefaultTheme
	if config.Theme != nil {
		theme = *config.Theme
	}
	keys := DefaultKeyMap
	if config.Keys != nil {
		keys = *config.Keys
	}
	initialSize := config.InitialSize
	if initialSize <= 0 {
		initialSize = DefaultInitialSize
	}

	filter := textinput.New()
	filter.Prompt = "› "
	filter.Placeholder = "filter rooms"
	filter.Focus()

	composer := textinput.New()
	composer.Prompt = "> "
	composer.Placeholder = "message"

	model := Model{
		ctx:         ctx,
		source:      source,
		theme:       theme,
		keys:        keys,
		initialSize: initialSize,
		pendingRoom: config.Room,
		syncState:   source.State(),
		filter:      filter,
		composer:    composer,
		viewport:    viewport.New(0, 0),
	}
	model.refreshRooms()
	return model
}

func (model Model) Init() tea.Cmd {
	return textinput.Blink
}

func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.ready = true
		model.resize()
		if model.screen == screenRoom {
			model.renderTimeline()
		}
		return model, nil

	case tea.KeyMsg:
		return model.handleKey(message)

	case syncUpdateMsg:
		return model.handleSync(message.notification)

	case roomUpdateMsg:
		if model.screen == screenPicker {
			model.refreshRooms()
			return model, nil
		}
		if model.current != nil && model.current.ID() == message.roomID {
			next := model.roomChanged(message.kind)
			return model, next
		}
		return model, nil

	case paginatedMsg:
		if message.window != model.window {
			return model, nil
		}
		model.loading = false
		if message.err != nil {
			next := model.setStatus("fetching history failed: "+message.err.Error(), slog.LevelWarn)
			return model, next
		}
		model.renderTimeline()
		return model, nil

	case sendResultMsg:
		if message.err != nil && !errors.Is(message.err, client.ErrCancelled) {
			next := model.setStatus("send failed: "+message.err.Error()+" (ctrl+r to retry)", slog.LevelError)
			return model, next
		}
		return model, nil

	case receiptResultMsg:
		if message.err != nil {
			next := model.setStatus("read receipt failed: "+message.err.Error(), slog.LevelWarn)
			return model, next
		}
		return model, nil

	case logRecordMsg:
		next := model.setStatus(message.Summary, message.Level)
		return model, next

	case logRecordFadeMsg:
		if message.generation == model.statusGeneration {
			model.status = ""
		}
		return model, nil
	}

	var cmd tea.Cmd
	if model.screen == screenRoom {
		model.composer, cmd = model.composer.Update(message)
	} else {
		model.filter, cmd = model.filter.Update(message)
	}
	return model, cmd
}

func (model Model) handleSync(n syncengine.Notification) (tea.Model, tea.Cmd) {
	switch n.Kind {
	case syncengine.KindState:
		model.syncState = n.State
		if n.State == syncengine.StateError && n.Err != nil {
			next := model.setStatus("sync: "+n.Err.Error(), slog.LevelWarn)
			return model, next
		}
		if n.State == syncengine.StatePrepared && model.pendingRoom != "" {
			name := model.pendingRoom
			model.pendingRoom = ""
			model.refreshRooms()
			if r := model.findRoom(name); r != nil {
				return model.openRoom(r)
			}
			next := model.setStatus(fmt.Sprintf("no room matches %q", name), slog.LevelWarn)
			return model, next
		}
	case syncengine.KindRoom:
		model.refreshRooms()
	case syncengine.KindSessionInvalidated:
		next := model.setStatus("the homeserver rejected the access token; log in again", slog.LevelError)
		return model, next
	}
	return model, nil
}

func (model Model) handleKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(message, model.keys.Quit) {
		return model, tea.Quit
	}
	if model.screen == screenPicker {
		return model.handlePickerKey(message)
	}
	return model.handleRoomKey(message)
}

func (model Model) handlePickerKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Up):
		model.cursor = max(model.cursor-1, 0)
		return model, nil
	case key.Matches(message, model.keys.Down):
		model.cursor = min(model.cursor+1, max(len(model.matches)-1, 0))
		return model, nil
	case key.Matches(message, model.keys.Open):
		if len(model.matches) == 0 {
			return model, nil
		}
		return model.openRoom(model.rooms[model.matches[model.cursor].Index])
	}

	var cmd tea.Cmd
	previous := model.filter.Value()
	model.filter, cmd = model.filter.Update(message)
	if model.filter.Value() != previous {
		model.cursor = 0
		model.rankRooms()
	}
	return model, cmd
}

func (model Model) handleRoomKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Back):
		model.closeRoom()
		return model, nil

	case key.Matches(message, model.keys.Send):
		body := strings.TrimSpace(model.composer.Value())
		if body == "" {
			return model, nil
		}
		model.composer.Reset()
		send, err := model.source.SendMessage(model.current.ID(), body)
		if err != nil {
			next := model.setStatus("send failed: "+err.Error(), slog.LevelError)
			return model, next
		}
		model.follow = true
		model.renderTimeline()
		return model, model.waitSend(send)

	case key.Matches(message, model.keys.Resend):
		event := model.newestPending(timeline.StatusNotSent)
		if event == nil {
			return model, nil
		}
		send, err := model.source.ResendEvent(event)
		if err != nil {
			next := model.setStatus("retry failed: "+err.Error(), slog.LevelError)
			return model, next
		}
		return model, model.waitSend(send)

	case key.Matches(message, model.keys.Cancel):
		event := model.newestPending(timeline.StatusNotSent, timeline.StatusQueued)
		if event == nil {
			return model, nil
		}
		if err := model.source.CancelPendingEvent(event); err != nil {
			next := model.setStatus("cancel failed: "+err.Error(), slog.LevelWarn)
			return model, next
		}
		model.renderTimeline()
		return model, nil

	case key.Matches(message, model.keys.PageUp):
		model.viewport.HalfViewUp()
		model.follow = model.viewport.AtBottom()
		if model.viewport.AtTop() && !model.loading && model.window.CanPaginate(timeline.Backward) {
			model.loading = true
			model.renderTimeline()
			return model, model.paginateBackward()
		}
		return model, nil

	case key.Matches(message, model.keys.PageDown):
		model.viewport.HalfViewDown()
		model.follow = model.viewport.AtBottom()
		if model.follow {
			model.catchUp()
			model.renderTimeline()
			next := model.markRead()
			return model, next
		}
		return model, nil

	case key.Matches(message, model.keys.Up):
		model.viewport.SetYOffset(model.viewport.YOffset - 1)
		model.follow = model.viewport.AtBottom()
		return model, nil

	case key.Matches(message, model.keys.Down):
		model.viewport.SetYOffset(model.viewport.YOffset + 1)
		model.follow = model.viewport.AtBottom()
		return model, nil
	}

	var cmd tea.Cmd
	model.composer, cmd = model.composer.Update(message)
	return model, cmd
}

// openRoom switches to r, positioning a new window at the live end.
func (model Model) openRoom(r *room.Room) (tea.Model, tea.Cmd) {
	w, err := model.source.NewWindow(r.ID())
	if err != nil {
		next := model.setStatus(err.Error(), slog.LevelError)
		return model, next
	}
	if err := w.Load(model.ctx, ref.EventID{}, model.initialSize); err != nil {
		next := model.setStatus(err.Error(), slog.LevelError)
		return model, next
	}

	model.screen = screenRoom
	model.current = r
	model.window = w
	model.follow = true
	model.loading = false
	model.lastRead = ref.EventID{}
	model.filter.Blur()
	model.composer.Focus()
	model.resize()

	cmds := []tea.Cmd{model.markRead()}
	if w.EventCount() < model.initialSize && w.CanPaginate(timeline.Backward) {
		model.loading = true
		cmds = append(cmds, model.paginateBackward())
	}
	model.renderTimeline()
	return model, tea.Batch(cmds...)
}

func (model *Model) closeRoom() {
	model.screen = screenPicker
	model.current = nil
	model.window = nil
	model.composer.Blur()
	model.filter.Focus()
	model.refreshRooms()
}

// roomChanged brings the open room's view up to date.
func (model *Model) roomChanged(kind room.Kind) tea.Cmd {
	if kind == room.KindTimelineReset {
		// The live timeline the window was walking is no longer live.
		if err := model.window.Load(model.ctx, ref.EventID{}, model.initialSize); err != nil {
			return model.setStatus(err.Error(), slog.LevelError)
		}
		model.follow = true
	}
	if model.follow {
		model.catchUp()
	}
	model.renderTimeline()
	return model.markRead()
}

// catchUp extends the window over live events that arrived since it
// was last rendered. No requests are made.
func (model *Model) catchUp() {
	for model.window.CanPaginate(timeline.Forward) {
		grew, err := model.window.Paginate(model.ctx, timeline.Forward, model.initialSize, false, 0)
		if err != nil || !grew {
			return
		}
	}
}

func (model Model) paginateBackward() tea.Cmd {
	ctx, w, size := model.ctx, model.window, model.initialSize
	return func() tea.Msg {
		grew, err := w.Paginate(ctx, timeline.Backward, size, true, window.DefaultRequestLimit)
		return paginatedMsg{window: w, grew: grew, err: err}
	}
}

func (model Model) waitSend(send *client.Send) tea.Cmd {
	ctx := model.ctx
	return func() tea.Msg {
		_, err := send.Wait(ctx)
		return sendResultMsg{err: err}
	}
}

// markRead sends a read receipt for the newest confirmed event when the
// view is following the live end and the receipt would move.
func (model *Model) markRead() tea.Cmd {
	if !model.follow || model.window == nil {
		return nil
	}
	events := model.window.Events()
	for i := len(events) - 1; i >= 0; i-- {
		event := events[i]
		if event.ID().IsLocal() || event.Status() != timeline.StatusNone {
			continue
		}
		if event.ID() == model.lastRead {
			return nil
		}
		model.lastRead = event.ID()
		ctx, source, roomID, eventID := model.ctx, model.source, model.current.ID(), event.ID()
		return func() tea.Msg {
			return receiptResultMsg{err: source.SendReadReceipt(ctx, roomID, eventID)}
		}
	}
	return nil
}

// visibleEvents returns the window's events followed by detached local
// echoes, if the room keeps them apart.
func (model Model) visibleEvents() []*timeline.Event {
	events := model.window.Events()
	if model.current.Ordering() == room.PendingDetached {
		events = append(events, model.current.PendingEvents()...)
	}
	return events
}

func (model Model) newestPending(statuses ...timeline.Status) *timeline.Event {
	events := model.visibleEvents()
	for i := len(events) - 1; i >= 0; i-- {
		if slices.Contains(statuses, events[i].Status()) {
			return events[i]
		}
	}
	return nil
}

// renderTimeline redraws the room screen. While following, the view
// sticks to the bottom; otherwise it keeps its distance from the
// bottom so history added above does not move what is on screen.
func (model *Model) renderTimeline() {
	if model.window == nil {
		return
	}
	fromBottom := model.viewport.TotalLineCount() - model.viewport.YOffset

	faint := lipgloss.NewStyle().Foreground(model.theme.FaintText)
	var blocks []string
	switch {
	case model.loading:
		blocks = append(blocks, faint.Render("loading older messages…"))
	case model.window.CanPaginate(timeline.Backward):
		blocks = append(blocks, faint.Render("pgup for older messages"))
	default:
		blocks = append(blocks, faint.Render("start of room"))
	}
	options := render.EventOptions{Width: model.viewport.Width}
	for _, event := range model.visibleEvents() {
		blocks = append(blocks, render.FormatEvent(event, model.theme, options))
	}
	model.viewport.SetContent(strings.Join(blocks, "\n"))

	if model.follow {
		model.viewport.GotoBottom()
	} else {
		model.viewport.SetYOffset(model.viewport.TotalLineCount() - fromBottom)
	}
}

// refreshRooms reloads the picker's room list, sorted by name.
func (model *Model) refreshRooms() {
	rooms := model.source.Rooms()
	rooms = slices.DeleteFunc(rooms, func(r *room.Room) bool { return r.MyMembership() == "leave" })
	slices.SortStableFunc(rooms, func(a, b *room.Room) int {
		return strings.Compare(strings.ToLower(a.Name()), strings.ToLower(b.Name()))
	})
	model.rooms = rooms
	model.rankRooms()
}

func (model *Model) rankRooms() {
	names := make([]string, len(model.rooms))
	for i, r := range model.rooms {
		names[i] = r.Name()
	}
	model.matches = render.FuzzyRank(model.filter.Value(), names)
	model.cursor = min(model.cursor, max(len(model.matches)-1, 0))
}

func (model Model) findRoom(query string) *room.Room {
	if roomID, err := ref.ParseRoomID(query); err == nil {
		if r, ok := model.source.Room(roomID); ok {
			return r
		}
	}
	for _, r := range model.rooms {
		if r.ID().String() == query || strings.EqualFold(r.Name(), query) {
			return r
		}
	}
	return nil
}

func (model *Model) resize() {
	model.viewport.Width = model.width
	model.viewport.Height = max(model.height-3, 1)
	model.composer.Width = max(model.width-len(model.composer.Prompt)-1, 1)
	model.filter.Width = max(model.width-len(model.filter.Prompt)-1, 1)
}

// setStatus shows text in the status line until it fades.
func (model *Model) setStatus(text string, level slog.Level) tea.Cmd {
	model.statusGeneration++
	model.status = text
	model.statusLevel = level
	generation := model.statusGeneration
	return tea.Tick(logRecordFadeDelay, func(time.Time) tea.Msg {
		return logRecordFadeMsg{generation: generation}
	})
}

func (model Model) View() string {
	if !model.ready {
		return "starting…"
	}
	var body string
	if model.screen == screenRoom {
		body = model.viewport.View() + "\n" + model.composer.View()
	} else {
		body = model.pickerView()
	}
	return lipgloss.JoinVertical(lipgloss.Left, model.headerView(), body, model.footerView())
}

func (model Model) headerView() string {
	title := "Rooms"
	if model.screen == screenRoom {
		title = model.current.Name()
		if topic, ok := model.current.CurrentState().Event(ref.EventTypeTopic, ""); ok {
			if text, _ := topic.Content["topic"].(string); text != "" {
				title += " · " + text
			}
		}
	}
	state := model.syncState.String()
	style := lipgloss.NewStyle().Bold(true).Foreground(model.theme.HeaderForeground)
	stateStyle := lipgloss.NewStyle().Foreground(model.theme.FaintText)
	if model.syncState == syncengine.StateError {
		stateStyle = stateStyle.Foreground(model.theme.StatusFailed)
	}
	right := stateStyle.Render(state)
	left := style.Render(truncate(title, max(model.width-lipgloss.Width(right)-1, 1)))
	gap := max(model.width-lipgloss.Width(left)-lipgloss.Width(right), 1)
	return left + strings.Repeat(" ", gap) + right
}

func (model Model) pickerView() string {
	lines := []string{model.filter.View()}
	listHeight := max(model.height-3, 1)
	offset := max(model.cursor-listHeight+1, 0)
	for i := offset; i < len(model.matches) && i < offset+listHeight; i++ {
		match := model.matches[i]
		r := model.rooms[match.Index]
		label := render.Highlight(r.Name(), match.Positions, model.theme)
		if unread := r.UnreadCounts(); unread.Total > 0 {
			label += lipgloss.NewStyle().Foreground(model.theme.StatusPending).Render(fmt.Sprintf(" (%d)", unread.Total))
		}
		if r.MyMembership() == "invite" {
			label += lipgloss.NewStyle().Foreground(model.theme.FaintText).Render(" [invited]")
		}
		if i == model.cursor {
			label = lipgloss.NewStyle().
				Background(model.theme.SelectedBackground).
				Foreground(model.theme.SelectedForeground).
				Width(model.width).
				Render("▸ " + label)
		} else {
			label = "  " + label
		}
		lines = append(lines, label)
	}
	if len(model.matches) == 0 {
		lines = append(lines, lipgloss.NewStyle().Foreground(model.theme.FaintText).Render("  no rooms"))
	}
	return strings.Join(lines, "\n")
}

func (model Model) footerView() string {
	if model.status != "" {
		color := model.theme.FaintText
		if model.statusLevel >= slog.LevelError {
			color = model.theme.StatusFailed
		} else if model.statusLevel >= slog.LevelWarn {
			color = model.theme.StatusPending
		}
		return lipgloss.NewStyle().Foreground(color).Render(truncate(model.status, model.width))
	}
	bindings := []key.Binding{model.keys.Open, model.keys.Up, model.keys.Down, model.keys.Quit}
	if model.screen == screenRoom {
		bindings = []key.Binding{model.keys.Send, model.keys.PageUp, model.keys.Resend, model.keys.Cancel, model.keys.Back, model.keys.Quit}
	}
	var parts []string
	for _, binding := range bindings {
		help := binding.Help()
		parts = append(parts, help.Key+" "+help.Desc)
	}
	return lipgloss.NewStyle().Foreground(model.theme.FaintText).Render(truncate(strings.Join(parts, " · "), model.width))
}

func truncate(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	return lipgloss.NewStyle().MaxWidth(width).Render(s)
}
