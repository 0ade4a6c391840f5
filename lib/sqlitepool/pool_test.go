// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/chatsync/lib/sqlitepool"
)

var migrations = []string{
	`CREATE TABLE cursor (id INTEGER PRIMARY KEY CHECK (id = 0), token TEXT NOT NULL);`,
	`CREATE TABLE rooms (room_id TEXT PRIMARY KEY, snapshot BLOB NOT NULL);`,
}

func open(t *testing.T, path string, migrations []string) *sqlitepool.Pool {
	t.Helper()
	pool, err := sqlitepool.Open(context.Background(), sqlitepool.Config{
		Path:       path,
		Migrations: migrations,
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		if err := pool.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return pool
}

func queryInt(t *testing.T, pool *sqlitepool.Pool, query string) int {
	t.Helper()
	var value int
	err := pool.Read(context.Background(), func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteTransient(conn, query, &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				value = stmt.ColumnInt(0)
				return nil
			},
		})
	})
	if err != nil {
		t.Fatalf("%s failed: %v", query, err)
	}
	return value
}

func TestPragmas(t *testing.T) {
	pool := open(t, filepath.Join(t.TempDir(), "chat.db"), nil)
	var journalMode string
	err := pool.Read(context.Background(), func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteTransient(conn, "PRAGMA journal_mode", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				journalMode = stmt.ColumnText(0)
				return nil
			},
		})
	})
	if err != nil {
		t.Fatalf("PRAGMA journal_mode failed: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want wal", journalMode)
	}
	if synchronous := queryInt(t, pool, "PRAGMA synchronous"); synchronous != 1 {
		t.Errorf("synchronous = %d, want 1 (NORMAL)", synchronous)
	}
}

func TestMigrationsRunOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")

	first, err := sqlitepool.Open(context.Background(), sqlitepool.Config{Path: path, Migrations: migrations[:1]})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Reopening applies only the new migration; rerunning the first
	// would fail because the table exists.
	pool := open(t, path, migrations)
	if version := queryInt(t, pool, "PRAGMA user_version"); version != 2 {
		t.Errorf("user_version = %d, want 2", version)
	}
	if count := queryInt(t, pool, "SELECT count(*) FROM rooms"); count != 0 {
		t.Errorf("rooms has %d rows", count)
	}
}

func TestNewerSchemaRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")
	pool, err := sqlitepool.Open(context.Background(), sqlitepool.Config{Path: path, Migrations: migrations})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	pool.Close()

	if _, err := sqlitepool.Open(context.Background(), sqlitepool.Config{Path: path, Migrations: migrations[:1]}); err == nil {
		t.Fatal("opening a newer schema succeeded")
	}
}

func TestFailedMigrationRollsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")
	broken := []string{migrations[0], `CREATE TABLE rooms (x); NOT SQL;`}
	if _, err := sqlitepool.Open(context.Background(), sqlitepool.Config{Path: path, Migrations: broken}); err == nil {
		t.Fatal("broken migration succeeded")
	}

	pool := open(t, path, migrations)
	if version := queryInt(t, pool, "PRAGMA user_version"); version != 2 {
		t.Errorf("user_version = %d, want 2", version)
	}
}

func TestWriteRollsBackOnError(t *testing.T) {
	pool := open(t, filepath.Join(t.TempDir(), "chat.db"), migrations)
	failure := errors.New("abandon")

	err := pool.Write(context.Background(), func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, "INSERT INTO cursor (id, token) VALUES (0, 's1')", nil); err != nil {
			return err
		}
		return failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("Write = %v, want %v", err, failure)
	}
	if count := queryInt(t, pool, "SELECT count(*) FROM cursor"); count != 0 {
		t.Errorf("rolled back insert left %d rows", count)
	}

	err = pool.Write(context.Background(), func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "INSERT INTO cursor (id, token) VALUES (0, 's1')", nil)
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if count := queryInt(t, pool, "SELECT count(*) FROM cursor"); count != 1 {
		t.Errorf("committed insert left %d rows", count)
	}
}

func TestConcurrentReads(t *testing.T) {
	pool := open(t, filepath.Join(t.TempDir(), "chat.db"), migrations)
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- pool.Read(context.Background(), func(conn *sqlite.Conn) error {
				return sqlitex.Execute(conn, "SELECT count(*) FROM rooms", nil)
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Error(err)
		}
	}
}

func TestEmptyPathRejected(t *testing.T) {
	if _, err := sqlitepool.Open(context.Background(), sqlitepool.Config{}); err == nil {
		t.Fatal("Open without a path succeeded")
	}
}
