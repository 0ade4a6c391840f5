// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// chatsync-viewer is a terminal UI for reading and writing in the
// rooms of a Matrix account.
//
// It opens on a room picker; type to filter, enter to open. Inside a
// room the timeline follows new events, pgup fetches older history,
// and enter sends what is typed in the composer. Failed sends stay in
// the timeline marked "not sent" until retried (ctrl+r) or cancelled
// (ctrl+x).
//
// Configuration is shared with chatsync-tail: --config or
// CHATSYNC_CONFIG. Background log records are shown in the status line;
// --log-output also writes them to a file.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/chatsync/lib/chatui"
	"github.com/bureau-foundation/chatsync/lib/cli"
	"github.com/bureau-foundation/chatsync/lib/config"
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
	var configPath, roomFlag, logOutput string

	flagSet := pflag.NewFlagSet("chatsync-viewer", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to chatsync.yaml (default: $CHATSYNC_CONFIG)")
	flagSet.StringVar(&roomFlag, "room", "", "open this room (ID or name) once the first sync completes")
	flagSet.StringVar(&logOutput, "log-output", "", "write JSON log records to this file (in addition to the status line)")
	flagSet.BoolP("help", "h", false, "show help")

	if len(args) > 0 && args[0] == "--version" {
		version.Print(os.Stdout, "chatsync-viewer")
		return nil
	}
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return cli.Usage("%w", err)
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if flagSet.NArg() > 0 {
		return cli.Usage("unexpected argument: %s", flagSet.Arg(0))
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return cli.Usage("%w", err)
	}

	// Log records must not reach stderr once the alt screen is up, so
	// they go to the status line and optionally a file.
	statusHandler := chatui.NewLogHandler(slog.LevelWarn)
	var handler slog.Handler = statusHandler
	if logOutput != "" {
		fileHandler, closeFile, err := cli.OpenLogFile(logOutput)
		if err != nil {
			return cli.Usage("cannot open log file %s: %w", logOutput, err)
		}
		defer closeFile()
		handler = cli.FanoutHandler{statusHandler, fileHandler}
	}
	logger := slog.New(handler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connection, err := cli.Connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer connection.Close()

	model := chatui.NewModel(ctx, connection.Client, chatui.Config{
		InitialSize: cfg.Window.InitialSize,
		Room:        roomFlag,
	})
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	statusHandler.SetProgram(program)
	detach := chatui.Attach(connection.Client, program)
	defer detach()

	if err := connection.Client.Start(ctx); err != nil {
		return err
	}
	_, err = program.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `chatsync-viewer: terminal UI for a Matrix account.

Usage:
  chatsync-viewer [flags]

Examples:
  # Open the room picker
  chatsync-viewer --config ~/.config/chatsync/chatsync.yaml

  # Jump straight into a room, keeping a debug log
  chatsync-viewer --room General --log-output /tmp/chatsync.log

Keys:
  enter    open room / send message
  pgup     scroll up, fetching older history at the top
  ctrl+r   retry the newest failed send
  ctrl+x   cancel the newest queued or failed send
  esc      back to the room picker
  ctrl+c   quit

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
