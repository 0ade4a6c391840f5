// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/chatsync/lib/clock"
	"github.com/bureau-foundation/chatsync/lib/codec"
	"github.com/bureau-foundation/chatsync/lib/ref"
	"github.com/bureau-foundation/chatsync/lib/room"
	"github.com/bureau-foundation/chatsync/lib/sqlitepool"
)

var migrations = []string{
	`
	CREATE TABLE sync_state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	CREATE TABLE filters (
		store_key TEXT PRIMARY KEY,
		filter_id TEXT NOT NULL
	);
	CREATE TABLE rooms (
		room_id    TEXT PRIMARY KEY,
		snapshot   BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`,
}

const syncTokenKey = "next_batch"

// SQLiteConfig configures OpenSQLite.
type SQLiteConfig struct {
	// Path is the database file.
	Path string
	// Compression is applied to room snapshots. Stored blobs record
	// their own compression, so changing this only affects new writes.
	Compression codec.Compression
	// Clock stamps updated_at. Defaults to clock.Real().
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// SQLite is a Store backed by a SQLite database.
type SQLite struct {
	pool        *sqlitepool.Pool
	compression codec.Compression
	clock       clock.Clock
	logger      *slog.Logger
	closed      atomic.Bool
}

// OpenSQLite opens or creates the database at config.Path.
func OpenSQLite(ctx context.Context, config SQLiteConfig) (*SQLite, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	pool, err := sqlitepool.Open(ctx, sqlitepool.Config{
		Path:       config.Path,
		PoolSize:   2,
		Migrations: migrations,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return &SQLite{pool: pool, compression: config.Compression, clock: config.Clock, logger: logger}, nil
}

func (s *SQLite) read(ctx context.Context, fn func(*sqlite.Conn) error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.pool.Read(ctx, fn)
}

func (s *SQLite) write(ctx context.Context, fn func(*sqlite.Conn) error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.pool.Write(ctx, fn)
}

func (s *SQLite) SyncToken(ctx context.Context) (string, error) {
	var token string
	err := s.read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT value FROM sync_state WHERE key = ?", &sqlitex.ExecOptions{
			Args: []any{syncTokenKey},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				token = stmt.ColumnText(0)
				return nil
			},
		})
	})
	if err != nil {
		return "", fmt.Errorf("store: reading sync token: %w", err)
	}
	return token, nil
}

func (s *SQLite) SetSyncToken(ctx context.Context, token string) error {
	err := s.write(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT INTO sync_state (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			&sqlitex.ExecOptions{Args: []any{syncTokenKey, token}})
	})
	if err != nil {
		return fmt.Errorf("store: saving sync token: %w", err)
	}
	return nil
}

func (s *SQLite) FilterID(ctx context.Context, key string) (string, error) {
	var filterID string
	err := s.read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT filter_id FROM filters WHERE store_key = ?", &sqlitex.ExecOptions{
			Args: []any{key},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				filterID = stmt.ColumnText(0)
				return nil
			},
		})
	})
	if err != nil {
		return "", fmt.Errorf("store: reading filter %s: %w", key, err)
	}
	return filterID, nil
}

func (s *SQLite) SetFilterID(ctx context.Context, key, filterID string) error {
	err := s.write(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT INTO filters (store_key, filter_id) VALUES (?, ?)
			 ON CONFLICT(store_key) DO UPDATE SET filter_id = excluded.filter_id`,
			&sqlitex.ExecOptions{Args: []any{key, filterID}})
	})
	if err != nil {
		return fmt.Errorf("store: saving filter %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Room(ctx context.Context, roomID ref.RoomID) (room.Snapshot, bool, error) {
	var blob []byte
	err := s.read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT snapshot FROM rooms WHERE room_id = ?", &sqlitex.ExecOptions{
			Args: []any{roomID.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				blob = columnBlob(stmt, 0)
				return nil
			},
		})
	})
	if err != nil {
		return room.Snapshot{}, false, fmt.Errorf("store: reading room %s: %w", roomID, err)
	}
	if blob == nil {
		return room.Snapshot{}, false, nil
	}
	snapshot, err := decodeSnapshot(blob)
	if err != nil {
		return room.Snapshot{}, false, fmt.Errorf("store: room %s: %w", roomID, err)
	}
	return snapshot, true, nil
}

func (s *SQLite) StoreRoom(ctx context.Context, snapshot room.Snapshot) error {
	data, err := codec.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("store: encoding room %s: %w", snapshot.RoomID, err)
	}
	blob, err := codec.Compress(data, s.compression)
	if err != nil {
		return fmt.Errorf("store: compressing room %s: %w", snapshot.RoomID, err)
	}
	err = s.write(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT INTO rooms (room_id, snapshot, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(room_id) DO UPDATE SET snapshot = excluded.snapshot, updated_at = excluded.updated_at`,
			&sqlitex.ExecOptions{Args: []any{snapshot.RoomID.String(), blob, s.clock.Now().UnixMilli()}})
	})
	if err != nil {
		return fmt.Errorf("store: saving room %s: %w", snapshot.RoomID, err)
	}
	s.logger.Debug("room snapshot stored",
		"room_id", snapshot.RoomID.String(),
		"events", len(snapshot.Events),
		"encoded_bytes", len(data),
		"stored_bytes", len(blob),
	)
	return nil
}

func (s *SQLite) Rooms(ctx context.Context) ([]room.Snapshot, error) {
	var snapshots []room.Snapshot
	err := s.read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT room_id, snapshot FROM rooms ORDER BY room_id", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				snapshot, err := decodeSnapshot(columnBlob(stmt, 1))
				if err != nil {
					return fmt.Errorf("room %s: %w", stmt.ColumnText(0), err)
				}
				snapshots = append(snapshots, snapshot)
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store: reading rooms: %w", err)
	}
	return snapshots, nil
}

func (s *SQLite) DeleteRoom(ctx context.Context, roomID ref.RoomID) error {
	err := s.write(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "DELETE FROM rooms WHERE room_id = ?", &sqlitex.ExecOptions{
			Args: []any{roomID.String()},
		})
	})
	if err != nil {
		return fmt.Errorf("store: deleting room %s: %w", roomID, err)
	}
	return nil
}

// Close closes the database. Later calls return ErrClosed.
func (s *SQLite) Close() error {
	if s.closed.Swap(true) {
		return ErrClosed
	}
	return s.pool.Close()
}

func columnBlob(stmt *sqlite.Stmt, column int) []byte {
	blob := make([]byte, stmt.ColumnLen(column))
	stmt.ColumnBytes(column, blob)
	return blob
}

func decodeSnapshot(blob []byte) (room.Snapshot, error) {
	data, err := codec.Decompress(blob)
	if err != nil {
		return room.Snapshot{}, err
	}
	var snapshot room.Snapshot
	if err := codec.Unmarshal(data, &snapshot); err != nil {
		return room.Snapshot{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	return snapshot, nil
}
