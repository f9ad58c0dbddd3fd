// Copyright 2025 Tagstore Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package storage owns the relational model of the index: contents, tags,
// associations, queues, bookmarks, saved queries, and the content_history
// transaction log, all in one SQLite store per user profile.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	sqlite3 "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"tagstore/internal/common"
	"tagstore/internal/sqlfunc"
)

// historyTable is the table whose writes wake the reconciliation engine.
const historyTable = "content_history"

// One driver for every store in the process. The update hook resolves the
// connection's database file to the open stores on it, so opening many
// stores over a process lifetime never grows the driver registry.
const driverName = "sqlite3_tagstore"

var (
	driverOnce sync.Once
	openMu     sync.RWMutex
	openStores = make(map[string][]*Store)
)

// Store is one profile's relational store. It embeds *bun.DB so callers
// compose queries directly; entity helpers live in records.go, extras.go,
// and history.go.
type Store struct {
	*bun.DB

	path      string
	notifyKey string
	sqlDB     *sql.DB
	lock      *flock.Flock
	changes   chan struct{}
}

// Create initializes a new store file. Fails if the file already exists.
func Create(path string) (*Store, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", common.ErrExists, path)
	}
	return open(path)
}

// Open opens an existing store, creating the schema objects if missing
// (idempotent, CREATE IF NOT EXISTS throughout).
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrNotFound, path)
	}
	return open(path)
}

func open(path string) (*Store, error) {
	// A broken function table must fail at open, not at first query.
	if err := sqlfunc.Validate(); err != nil {
		return nil, fmt.Errorf("embedded function registry: %w", err)
	}

	s := &Store{
		path:      path,
		notifyKey: storeKey(path),
		lock:      flock.New(path + ".lock"),
		changes:   make(chan struct{}, 1),
	}

	registerDriver()
	// Registered before the first connection so no history write between
	// open and first notification is lost.
	addOpenStore(s)
	sqlDB, err := sql.Open(driverName, BuildDSN(path))
	if err != nil {
		removeOpenStore(s)
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	// One writer at a time; the busy_timeout rides out WAL contention from
	// concurrent readers.
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetMaxIdleConns(2)

	if err := execStatements(sqlDB, storeSchema); err != nil {
		sqlDB.Close()
		removeOpenStore(s)
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := execStatements(sqlDB, initStore, SchemaVersion); err != nil {
		sqlDB.Close()
		removeOpenStore(s)
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	s.sqlDB = sqlDB
	s.DB = bun.NewDB(sqlDB, sqlitedialect.New())
	log.WithField("path", path).Debug("store opened")
	return s, nil
}

// registerDriver registers the shared sqlite3 driver once per process. The
// ConnectHook installs the embedded function library on every pooled
// connection and an update hook that routes history-table writes to the
// stores holding that connection's database file open.
func registerDriver() {
	driverOnce.Do(func() {
		sql.Register(driverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				if err := sqlfunc.RegisterAll(conn); err != nil {
					return err
				}
				file := conn.GetFilename("main")
				conn.RegisterUpdateHook(func(op int, db, table string, rowid int64) {
					if table != historyTable {
						return
					}
					openMu.RLock()
					targets := openStores[file]
					openMu.RUnlock()
					for _, s := range targets {
						s.notifyHistoryChange()
					}
				})
				return nil
			},
		})
	})
}

// storeKey canonicalizes a store path the way sqlite reports it from an
// open connection: absolute, with symlinks resolved.
func storeKey(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	// The file itself may not exist yet (Create); resolve its directory.
	if dir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		return filepath.Join(dir, filepath.Base(abs))
	}
	return abs
}

func addOpenStore(s *Store) {
	openMu.Lock()
	openStores[s.notifyKey] = append(openStores[s.notifyKey], s)
	openMu.Unlock()
}

func removeOpenStore(s *Store) {
	openMu.Lock()
	defer openMu.Unlock()
	list := openStores[s.notifyKey]
	for i, candidate := range list {
		if candidate == s {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(openStores, s.notifyKey)
		return
	}
	openStores[s.notifyKey] = list
}

// notifyHistoryChange wakes the reconciliation engine. The channel is a
// coalescing signal: many commits between wakeups collapse into one, and
// the engine drains the whole batch per wakeup.
func (s *Store) notifyHistoryChange() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// Changes is the history-change notification channel consumed by the
// reconciliation engine. It never delivers per-row events, only "something
// changed" wakeups.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

// AcquireReconcilerLock takes the store's exclusive reconciler lock. At
// most one reconciliation engine may own a store; a second process gets
// ErrStoreLocked immediately.
func (s *Store) AcquireReconcilerLock() error {
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("reconciler lock: %w", err)
	}
	if !ok {
		return common.ErrStoreLocked
	}
	return nil
}

// ReleaseReconcilerLock releases the reconciler lock if held.
func (s *Store) ReleaseReconcilerLock() error {
	return s.lock.Unlock()
}

// Path returns the store file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the store and releases the reconciler lock if held.
func (s *Store) Close() error {
	removeOpenStore(s)
	if err := s.lock.Unlock(); err != nil {
		log.WithError(err).Debug("unlock on close")
	}
	return s.DB.Close()
}

// RunInTx runs fn inside a transaction with database-locked retry applied
// by the caller where needed.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	return s.DB.RunInTx(ctx, nil, fn)
}

// execStatements executes multiple SQL statements separated by semicolons,
// distributing args across placeholders in order.
func execStatements(db *sql.DB, sqlScript string, args ...interface{}) error {
	statements := splitStatements(sqlScript)
	argIdx := 0
	for _, stmt := range statements {
		if stmt == "" {
			continue
		}
		placeholders := strings.Count(stmt, "?")
		stmtArgs := args[argIdx : argIdx+placeholders]
		argIdx += placeholders
		if _, err := db.Exec(stmt, stmtArgs...); err != nil {
			return err
		}
	}
	return nil
}

// splitStatements splits a SQL script into individual statements
func splitStatements(script string) []string {
	var statements []string
	var current strings.Builder

	lines := strings.Split(script, "\n")
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		// Skip comments and empty lines
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			statements = append(statements, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if current.Len() > 0 {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}
