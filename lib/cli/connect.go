// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/chatsync/lib/client"
	"github.com/bureau-foundation/chatsync/lib/codec"
	"github.com/bureau-foundation/chatsync/lib/config"
	"github.com/bureau-foundation/chatsync/lib/filter"
	"github.com/bureau-foundation/chatsync/lib/ref"
	"github.com/bureau-foundation/chatsync/lib/room"
	"github.com/bureau-foundation/chatsync/lib/scheduler"
	"github.com/bureau-foundation/chatsync/lib/secret"
	"github.com/bureau-foundation/chatsync/lib/store"
	"github.com/bureau-foundation/chatsync/lib/timeline"
	"github.com/bureau-foundation/chatsync/messaging"
)

// Connection is a client built from configuration, plus the resources
// it owns.
type Connection struct {
	Client  *client.Client
	Session *messaging.DirectSession
	Store   store.Store
}

// Close stops the client and releases the session and store.
func (c *Connection) Close() error {
	c.Client.Stop()
	return errors.Join(c.Session.Close(), c.Store.Close())
}

// Connect validates cfg, authenticates, opens the store, and builds a
// client. The client is not started.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Connection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, Usage("invalid configuration: %w", err).
			WithHint("Set CHATSYNC_CONFIG or pass --config with a valid chatsync.yaml.")
	}
	options, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}

	matrix, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: cfg.Homeserver.URL,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	session, err := openSession(ctx, matrix, cfg.Homeserver)
	if err != nil {
		return nil, err
	}

	chatStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		session.Close()
		return nil, err
	}

	syncFilter, err := buildFilter(cfg.Sync, cfg.Homeserver.Guest)
	if err != nil {
		session.Close()
		chatStore.Close()
		return nil, err
	}

	options.Session = session
	options.Store = chatStore
	options.Filter = &syncFilter
	options.Logger = logger
	chatClient, err := client.New(options)
	if err != nil {
		session.Close()
		chatStore.Close()
		return nil, err
	}

	logger.Info("connected",
		"homeserver", cfg.Homeserver.URL,
		"user_id", session.UserID(),
		"guest", session.IsGuest(),
		"store", cfg.Store.Path,
	)
	return &Connection{Client: chatClient, Session: session, Store: chatStore}, nil
}

// clientOptions maps the parts of cfg that do not need I/O onto a
// client.Config.
func clientOptions(cfg *config.Config) (client.Config, error) {
	pollTimeout, err := cfg.PollTimeout()
	if err != nil {
		return client.Config{}, err
	}
	requestMargin, err := cfg.RequestMargin()
	if err != nil {
		return client.Config{}, err
	}
	ordering, err := ParsePendingOrdering(cfg.Sync.PendingEventOrdering)
	if err != nil {
		return client.Config{}, err
	}
	duplicates, err := ParseDuplicateStrategy(cfg.Sync.DuplicateStrategy)
	if err != nil {
		return client.Config{}, err
	}
	return client.Config{
		Ordering:      ordering,
		Duplicates:    duplicates,
		Retry:         scheduler.LimitAttempts(scheduler.DefaultRetryPolicy[*timeline.Event], cfg.Sender.MaxAttempts),
		PollTimeout:   pollTimeout,
		RequestMargin: requestMargin,
		WindowLimit:   cfg.Window.MaxEvents,
	}, nil
}

func openSession(ctx context.Context, matrix *messaging.Client, homeserver config.HomeserverConfig) (*messaging.DirectSession, error) {
	if homeserver.Guest {
		return matrix.RegisterGuest(ctx)
	}
	userID, err := ref.ParseUserID(homeserver.UserID)
	if err != nil {
		return nil, Usage("homeserver.user_id: %w", err)
	}
	token, err := secret.ReadToken(homeserver.TokenFile, homeserver.IdentityFile)
	if err != nil {
		return nil, Usage("cannot read access token: %w", err).
			WithHint("Write the token to homeserver.token_file, or seal it with 'chatsync-tail seal-token'.")
	}
	return matrix.SessionFromToken(userID, token), nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.Store.Path == "" {
		return store.NewMemory(), nil
	}
	compression, err := codec.ParseCompression(cfg.Store.Compression)
	if err != nil {
		return nil, Usage("store.compression: %w", err)
	}
	if err := cfg.EnsureStoreDir(); err != nil {
		return nil, err
	}
	chatStore, err := store.OpenSQLite(ctx, store.SQLiteConfig{
		Path:        cfg.Store.Path,
		Compression: compression,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", cfg.Store.Path, err)
	}
	return chatStore, nil
}

// buildFilter starts from the filter file, or the built-in filter for
// the session kind, and applies the sync section's settings on top.
func buildFilter(sync config.SyncConfig, guest bool) (filter.Filter, error) {
	base := filter.Default()
	if guest {
		base = filter.Guest()
	}
	if sync.FilterFile != "" {
		loaded, err := filter.LoadFile(sync.FilterFile)
		if err != nil {
			return filter.Filter{}, Usage("sync.filter_file: %w", err)
		}
		base = loaded
	}
	if sync.TimelineLimit > 0 {
		base = base.WithTimelineLimit(sync.TimelineLimit)
	}
	if sync.IncludeLeave {
		base = base.WithIncludeLeave(true)
	}
	if sync.LazyLoadMembers {
		base = base.WithLazyLoadMembers(true)
	}
	return base, nil
}

// ParsePendingOrdering maps a sync.pending_event_ordering value.
func ParsePendingOrdering(name string) (room.PendingOrdering, error) {
	switch name {
	case "chronological", "":
		return room.PendingChronological, nil
	case "detached":
		return room.PendingDetached, nil
	default:
		return 0, Usage("unknown pending event ordering %q (want chronological or detached)", name)
	}
}

// ParseDuplicateStrategy maps a sync.duplicate_strategy value.
func ParseDuplicateStrategy(name string) (room.DuplicateStrategy, error) {
	switch name {
	case "ignore", "":
		return room.DuplicateIgnore, nil
	case "replace":
		return room.DuplicateReplace, nil
	default:
		return 0, Usage("unknown duplicate strategy %q (want ignore or replace)", name)
	}
}
