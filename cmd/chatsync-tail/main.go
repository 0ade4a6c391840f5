// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// chatsync-tail follows a Matrix account from the terminal. It syncs
// every room the account is in and prints each new event as it
// arrives, one formatted block per event.
//
// Subcommands:
//
//	chatsync-tail [flags]                 follow all rooms (or --room)
//	chatsync-tail send --room R message   send one message and wait for it
//	chatsync-tail seal-token --recipient age1...
//	                                      encrypt an access token for token_file
//
// Configuration comes from the file named by --config or
// CHATSYNC_CONFIG. The sync cursor and room snapshots persist in the
// configured store, so a restart resumes where the last run stopped.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/chatsync/lib/cli"
	"github.com/bureau-foundation/chatsync/lib/client"
	"github.com/bureau-foundation/chatsync/lib/config"
	"github.com/bureau-foundation/chatsync/lib/render"
	"github.com/bureau-foundation/chatsync/lib/room"
	"github.com/bureau-foundation/chatsync/lib/secret"
	"github.com/bureau-foundation/chatsync/lib/syncengine"
	"github.com/bureau-foundation/chatsync/lib/timeline"
	"github.com/bureau-foundation/chatsync/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			if _, silent := err.(*cli.ExitError); !silent {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) > 0 {
		switch args[0] {
		case "--version":
			version.Print(os.Stdout, "chatsync-tail")
			return nil
		case "seal-token":
			return runSealToken(args[1:])
		case "send":
			return runSend(args[1:])
		}
	}
	return runTail(args)
}

// commonFlags are shared by the subcommands that connect.
type commonFlags struct {
	configPath string
	logLevel   string
}

func (f *commonFlags) add(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.configPath, "config", "", "path to chatsync.yaml (default: $CHATSYNC_CONFIG)")
	flagSet.StringVar(&f.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
}

func (f *commonFlags) load() (*config.Config, *slog.Logger, error) {
	level, err := cli.ParseLevel(f.logLevel)
	if err != nil {
		return nil, nil, err
	}
	logger := cli.NewCommandLogger(level)

	var cfg *config.Config
	if f.configPath != "" {
		cfg, err = config.LoadFile(f.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, cli.Usage("%w", err)
	}
	return cfg, logger, nil
}

func parseFlags(flagSet *pflag.FlagSet, args []string, usage string) (bool, error) {
	flagSet.BoolP("help", "h", false, "show help")
	flagSet.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flagSet.SetOutput(os.Stderr)
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return true, nil
		}
		return false, cli.Usage("%w", err)
	}
	if help, _ := flagSet.GetBool("help"); help {
		flagSet.Usage()
		return true, nil
	}
	return false, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

const tailUsage = `chatsync-tail: print events from a Matrix account as they arrive.

Usage:
  chatsync-tail [flags]

Flags:
`

func runTail(args []string) error {
	var common commonFlags
	var rooms []string
	var history int
	var includeLeft, noTimestamps bool

	flagSet := pflag.NewFlagSet("chatsync-tail", pflag.ContinueOnError)
	common.add(flagSet)
	flagSet.StringSliceVar(&rooms, "room", nil, "only print these rooms (ID or name; repeatable)")
	flagSet.IntVar(&history, "history", 0, "fetch this many older events per room once the first sync completes")
	flagSet.BoolVar(&includeLeft, "include-left", false, "also fetch rooms the account has left")
	flagSet.BoolVar(&noTimestamps, "no-timestamps", false, "omit the HH:MM column")
	if done, err := parseFlags(flagSet, args, tailUsage); done || err != nil {
		return err
	}
	if flagSet.NArg() > 0 {
		return cli.Usage("unexpected argument: %s", flagSet.Arg(0))
	}

	cfg, logger, err := common.load()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	connection, err := cli.Connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer connection.Close()

	printer := &printer{
		out:     os.Stdout,
		client:  connection.Client,
		rooms:   rooms,
		options: render.EventOptions{Width: terminalWidth(), HideTimestamp: noTimestamps},
	}
	prepared := make(chan struct{})
	invalidated := make(chan struct{})
	var prepareOnce, invalidateOnce sync.Once
	unsubscribe := connection.Client.Subscribe(client.ObserverFuncs{
		Room: printer.onRoomEvent,
		Sync: func(n syncengine.Notification) {
			switch n.Kind {
			case syncengine.KindState:
				logger.Info("sync state changed", "state", n.State, "previous", n.Previous, "error", n.Err)
				if n.State == syncengine.StatePrepared {
					prepareOnce.Do(func() { close(prepared) })
				}
			case syncengine.KindSessionInvalidated:
				invalidateOnce.Do(func() { close(invalidated) })
			}
		},
	})
	defer unsubscribe()

	if err := connection.Client.Start(ctx); err != nil {
		return err
	}

	select {
	case <-prepared:
	case <-invalidated:
		return sessionInvalidated()
	case <-ctx.Done():
		return nil
	}

	if includeLeft {
		left, err := connection.Client.SyncLeftRooms(ctx)
		if err != nil {
			logger.Warn("fetching left rooms failed", "error", err)
		} else {
			logger.Info("fetched left rooms", "count", len(left))
		}
	}
	if history > 0 {
		for _, r := range connection.Client.Rooms() {
			if !printer.wants(r) {
				continue
			}
			if _, err := connection.Client.Scrollback(ctx, r.ID(), history); err != nil {
				logger.Warn("fetching history failed", "room_id", r.ID(), "error", err)
			}
		}
	}

	select {
	case <-invalidated:
		return sessionInvalidated()
	case <-ctx.Done():
		return nil
	}
}

func sessionInvalidated() error {
	return cli.Usage("the homeserver rejected the access token").
		WithHint("Log in again and replace homeserver.token_file.")
}

// printer writes timeline notifications for the selected rooms.
type printer struct {
	out     io.Writer
	client  *client.Client
	rooms   []string
	options render.EventOptions

	mu sync.Mutex
}

func (p *printer) wants(r *room.Room) bool {
	if len(p.rooms) == 0 {
		return true
	}
	for _, want := range p.rooms {
		if want == r.ID().String() || strings.EqualFold(want, r.Name()) {
			return true
		}
	}
	return false
}

func (p *printer) onRoomEvent(n room.Notification) {
	var event *timeline.Event
	switch n.Kind {
	case room.KindTimeline:
		if n.Replaced {
			return
		}
		event = n.Event
	case room.KindLocalEchoUpdated:
		// Failed sends are worth showing; the rest of an echo's
		// lifecycle is noise in a log-style view.
		if n.Event.Status() != timeline.StatusNotSent {
			return
		}
		event = n.Event
	default:
		return
	}

	r, ok := p.client.Room(n.RoomID)
	if !ok || !p.wants(r) {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "[%s] %s\n", r.Name(), render.FormatEvent(event, render.DefaultTheme, p.options))
}

func terminalWidth() int {
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}
	return 100
}

const sendUsage = `chatsync-tail send: send one markdown message and wait until the
homeserver accepts it. Prints the event ID; exits 3 if the message
could not be sent.

Usage:
  chatsync-tail send --room ROOM [flags] MESSAGE...

Flags:
`

// exitNotSent is the send subcommand's exit code when the homeserver
// never accepted the message.
const exitNotSent = 3

func runSend(args []string) error {
	var common commonFlags
	var roomName string
	var timeout time.Duration

	flagSet := pflag.NewFlagSet("chatsync-tail send", pflag.ContinueOnError)
	common.add(flagSet)
	flagSet.StringVar(&roomName, "room", "", "room ID or name (required)")
	flagSet.DurationVar(&timeout, "timeout", 2*time.Minute, "give up after this long")
	if done, err := parseFlags(flagSet, args, sendUsage); done || err != nil {
		return err
	}
	if roomName == "" {
		return cli.Usage("--room is required")
	}
	body := strings.Join(flagSet.Args(), " ")
	if strings.TrimSpace(body) == "" {
		return cli.Usage("message is required")
	}

	cfg, logger, err := common.load()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	connection, err := cli.Connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer connection.Close()

	prepared := make(chan struct{})
	var prepareOnce sync.Once
	unsubscribe := connection.Client.Subscribe(client.ObserverFuncs{
		Sync: func(n syncengine.Notification) {
			if n.Kind == syncengine.KindState && n.State == syncengine.StatePrepared {
				prepareOnce.Do(func() { close(prepared) })
			}
		},
	})
	defer unsubscribe()

	if err := connection.Client.Start(ctx); err != nil {
		return err
	}
	select {
	case <-prepared:
	case <-ctx.Done():
		return fmt.Errorf("waiting for first sync: %w", ctx.Err())
	}

	target := findRoom(connection.Client, roomName)
	if target == nil {
		return cli.Usage("no joined room matches %q", roomName)
	}
	send, err := connection.Client.SendMessage(target.ID(), body)
	if err != nil {
		return err
	}
	eventID, err := send.Wait(ctx)
	if err != nil {
		logger.Error("message not sent", "room_id", target.ID().String(), "error", err)
		return &cli.ExitError{Code: exitNotSent}
	}
	fmt.Println(eventID)
	return nil
}

func findRoom(c *client.Client, query string) *room.Room {
	for _, r := range c.Rooms() {
		if r.ID().String() == query {
			return r
		}
	}
	for _, r := range c.Rooms() {
		if strings.EqualFold(r.Name(), query) {
			return r
		}
	}
	return nil
}

const sealUsage = `chatsync-tail seal-token: encrypt an access token for homeserver.token_file.

Reads the token from the terminal without echo and prints the sealed
file content. Point homeserver.identity_file at the matching age
identity.

Usage:
  chatsync-tail seal-token --recipient age1... [--output FILE]

Flags:
`

func runSealToken(args []string) error {
	var recipients []string
	var output string

	flagSet := pflag.NewFlagSet("chatsync-tail seal-token", pflag.ContinueOnError)
	flagSet.StringSliceVar(&recipients, "recipient", nil, "age public key to encrypt to (repeatable)")
	flagSet.StringVarP(&output, "output", "o", "", "write to this file instead of stdout")
	if done, err := parseFlags(flagSet, args, sealUsage); done || err != nil {
		return err
	}
	if len(recipients) == 0 {
		return cli.Usage("at least one --recipient is required")
	}

	token, err := secret.Prompt("Access token: ")
	if err != nil {
		return err
	}
	defer token.Close()

	sealed, err := secret.SealToken(token, recipients)
	if err != nil {
		return err
	}
	if output == "" {
		fmt.Println(sealed)
		return nil
	}
	return os.WriteFile(output, []byte(sealed+"\n"), 0600)
}
