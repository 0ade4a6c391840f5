// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens SQLite databases the way chatsync's
// persistent store needs them: a zombiezen sqlitex.Pool whose
// connections all carry the same pragmas, with the schema brought up
// to date by numbered migrations before the pool is handed out.
//
// Every connection gets journal_mode=WAL (readers never block the
// writer), synchronous=NORMAL (a process crash loses nothing that was
// committed; a power cut may lose the last transactions, which the
// next sync recovers), busy_timeout=5000 and a small in-memory temp
// store.
//
// Migrations are SQL scripts applied in order; PRAGMA user_version
// records how many have run.
//
//	pool, err := sqlitepool.Open(ctx, sqlitepool.Config{
//	    Path:       path,
//	    Migrations: []string{schemaV1, schemaV2},
//	})
//	...
//	err = pool.Write(ctx, func(conn *sqlite.Conn) error {
//	    return sqlitex.Execute(conn, "INSERT ...", &sqlitex.ExecOptions{Args: args})
//	})
package sqlitepool
