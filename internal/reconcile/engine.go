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

// Package reconcile applies pending index mutations to the filesystem. The
// engine is the single consumer of the store's change notifications: one
// goroutine drains the whole pending batch per wakeup and never polls.
package reconcile

import (
	"context"
	"fmt"
	"os"

	"github.com/go-git/go-billy/v5"
	"github.com/sirupsen/logrus"

	"tagstore/internal/common"
	"tagstore/internal/storage"
)

// RenameTask is the filesystem operation derived from one history entry.
type RenameTask struct {
	Prev    string
	Updated string
}

// taskFor derives the rename from the entry and the content row's current
// (speculative) state. Under the single-unresolved-entry invariant the only
// difference between the row and the filesystem is this entry's column.
func taskFor(entry *storage.HistoryEntry, rec *storage.IndexRecord) RenameTask {
	switch entry.Column {
	case storage.ColumnLocation:
		return RenameTask{
			Prev:    common.JoinLocation(entry.Previous, rec.Name),
			Updated: common.JoinLocation(entry.Updated, rec.Name),
		}
	default: // storage.ColumnName
		return RenameTask{
			Prev:    common.JoinLocation(rec.Location, entry.Previous),
			Updated: common.JoinLocation(rec.Location, entry.Updated),
		}
	}
}

// Engine owns reconciliation for one store.
type Engine struct {
	store *storage.Store
	fs    billy.Filesystem
	log   *logrus.Entry

	// Entries whose revert failed. Fatal to the entry: it is never
	// retried while this engine runs, and it keeps blocking only its own
	// ContentId. Touched from the sweep path only, which is single
	// threaded.
	abandoned map[int64]struct{}

	stop chan struct{}
	done chan struct{}
}

// New returns an engine over the given store and filesystem. Production
// callers pass an osfs root; tests pass a memfs.
func New(store *storage.Store, fs billy.Filesystem) *Engine {
	return &Engine{
		store:     store,
		fs:        fs,
		log:       logrus.WithField("component", "reconcile"),
		abandoned: make(map[int64]struct{}),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start acquires the reconciler lock, runs the startup sweep, and spawns
// the notification loop. Fails with ErrStoreLocked when another process
// already reconciles this store.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.AcquireReconcilerLock(); err != nil {
		return err
	}
	// Entries left over from a previous run are processed before any new
	// notification is honored.
	if err := e.Sweep(ctx); err != nil {
		e.store.ReleaseReconcilerLock()
		return fmt.Errorf("startup sweep: %w", err)
	}
	go e.run(ctx)
	return nil
}

// Stop shuts the loop down. In-flight entry processing completes; entries
// still pending afterwards are picked up by the next Start's sweep.
func (e *Engine) Stop() {
	close(e.stop)
	<-e.done
	e.store.ReleaseReconcilerLock()
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)
	for {
		select {
		case <-e.stop:
			return
		case <-ctx.Done():
			return
		case <-e.store.Changes():
			if err := e.Sweep(ctx); err != nil {
				e.log.WithError(err).Error("sweep failed")
			}
		}
	}
}

// Sweep reverts any failed entries awaiting compensation, then processes
// the pending batch in order. Safe to call repeatedly; already-resolved
// entries are skipped by the status guards in the store.
func (e *Engine) Sweep(ctx context.Context) error {
	failed, err := e.store.FailedUnreverted(ctx)
	if err != nil {
		return err
	}
	for i := range failed {
		if _, skip := e.abandoned[failed[i].ID]; skip {
			continue
		}
		if err := e.store.ApplyRevert(ctx, &failed[i]); err != nil {
			// Fatal to this entry only; the rest of the batch proceeds.
			e.abandoned[failed[i].ID] = struct{}{}
			e.log.WithError(err).WithField("entry", failed[i].ID).Error("revert failed, entry abandoned")
			continue
		}
		e.log.WithField("entry", failed[i].ID).Debug("reverted failed entry")
	}

	pending, err := e.store.PendingEntries(ctx)
	if err != nil {
		return err
	}
	for i := range pending {
		if err := e.processEntry(ctx, &pending[i]); err != nil {
			return err
		}
	}
	return nil
}

// processEntry applies one entry's rename to the filesystem and resolves
// its status. Filesystem failure is not an error here: the entry is marked
// failed and immediately compensated.
func (e *Engine) processEntry(ctx context.Context, entry *storage.HistoryEntry) error {
	rec, err := e.store.GetContent(ctx, entry.ContentID)
	if err != nil {
		// Content de-indexed while the entry was in flight.
		if err == common.ErrNotFound {
			_, err = e.store.MarkFailed(ctx, entry.ID, "content no longer indexed")
			return err
		}
		return err
	}

	task := taskFor(entry, rec)
	log := e.log.WithFields(logrus.Fields{
		"entry": entry.ID,
		"prev":  task.Prev,
		"next":  task.Updated,
	})

	// A proposal that changes nothing needs no filesystem call.
	if task.Prev == task.Updated {
		_, err := e.store.MarkSynced(ctx, entry.ID)
		log.Debug("no-op entry synced")
		return err
	}

	if err := e.rename(task); err != nil {
		rerr := &common.ReconcileError{EntryID: entry.ID, Op: "rename", Err: err}
		log.WithError(err).Warn("filesystem rename failed")
		done, merr := e.store.MarkFailed(ctx, entry.ID, rerr.Error())
		if merr != nil {
			return merr
		}
		if !done {
			return nil
		}
		failed, merr := e.store.GetHistoryEntry(ctx, entry.ID)
		if merr != nil {
			return merr
		}
		return e.store.ApplyRevert(ctx, failed)
	}

	if entry.Kind == storage.KindFolder {
		// Descendant locations must be rewritten before the entry reads
		// as synced, in the same transaction.
		_, err = e.store.MarkSyncedWithRewrite(ctx, entry.ID, task.Prev, task.Updated)
	} else {
		_, err = e.store.MarkSynced(ctx, entry.ID)
	}
	if err != nil {
		return err
	}
	log.Debug("entry synced")
	return nil
}

// rename moves the file, treating an already-applied move (source absent,
// target present) as success so crash-recovery sweeps are idempotent.
func (e *Engine) rename(task RenameTask) error {
	if _, err := e.fs.Stat(task.Prev); os.IsNotExist(err) {
		if _, terr := e.fs.Stat(task.Updated); terr == nil {
			return nil
		}
		return err
	}
	return e.fs.Rename(task.Prev, task.Updated)
}
