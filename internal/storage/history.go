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

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"tagstore/internal/common"
	"tagstore/internal/identity"
	"tagstore/internal/util"
)

// The transaction log is the sole coordination point between proposers and
// the reconciliation engine. A proposal commits the speculative contents
// update and the pending log entry in one transaction; the engine later
// applies the filesystem operation and resolves the entry's status.
//
// Concurrency control is the single-unresolved-entry invariant: at most one
// pending (or failed-but-not-reverted) entry may exist per ContentId, and it
// is enforced here at the proposal boundary, never by the reconciler.

// ProposeLocationChange proposes moving one content item to a new parent
// location. Returns the created pending entry, or ErrPendingExists while a
// previous change for the same content is unresolved.
func (s *Store) ProposeLocationChange(ctx context.Context, id identity.ContentID, newLocation string) (*HistoryEntry, error) {
	return s.proposeChange(ctx, id, ColumnLocation, common.NormalizePath(newLocation))
}

// ProposeRename proposes changing one content item's name in place.
func (s *Store) ProposeRename(ctx context.Context, id identity.ContentID, newName string) (*HistoryEntry, error) {
	if newName == "" || newName != common.BaseName(newName) {
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidPath, newName)
	}
	return s.proposeChange(ctx, id, ColumnName, newName)
}

func (s *Store) proposeChange(ctx context.Context, id identity.ContentID, column HistoryColumn, newValue string) (*HistoryEntry, error) {
	return util.RetryWithResult(ctx, func() (*HistoryEntry, error) {
		return s.proposeChangeOnce(ctx, id, column, newValue)
	}, util.DatabaseRetryOptions(ctx)...)
}

func (s *Store) proposeChangeOnce(ctx context.Context, id identity.ContentID, column HistoryColumn, newValue string) (*HistoryEntry, error) {
	var entry *HistoryEntry
	err := s.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var c ContentModel
		err := tx.NewSelect().Model(&c).Where("id = ?", string(id)).Scan(ctx)
		if err == sql.ErrNoRows {
			return common.ErrNotFound
		}
		if err != nil {
			return err
		}

		unresolved, err := unresolvedExists(ctx, tx, string(id))
		if err != nil {
			return err
		}
		if unresolved {
			return fmt.Errorf("%w: %s", common.ErrPendingExists, id)
		}

		var previous string
		switch column {
		case ColumnLocation:
			previous = c.Location
			c.Location = newValue
		case ColumnName:
			previous = c.Name
			c.Name = newValue
		default:
			return fmt.Errorf("unsupported history column %q", column)
		}
		c.Path = common.JoinLocation(c.Location, c.Name)

		// Speculative write: the index reflects the proposed state before
		// the filesystem does. A failed reconciliation reverts it.
		if _, err := tx.NewUpdate().
			Model(&c).
			Column("location", "name", "path").
			WherePK().
			Exec(ctx); err != nil {
			return err
		}

		now := time.Now().Unix()
		m := &HistoryModel{
			ContentID: string(id),
			Kind:      c.Kind,
			Column:    string(column),
			Previous:  previous,
			Updated:   newValue,
			Status:    string(StatusPending),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if _, err := tx.NewInsert().Model(m).Returning("id").Exec(ctx); err != nil {
			return err
		}
		entry = m.ToEntry()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// unresolvedExists checks for a pending entry or a failed entry whose
// revert has not been applied yet.
func unresolvedExists(ctx context.Context, idb bun.IDB, contentID string) (bool, error) {
	var exists int
	err := idb.NewRaw(`
		SELECT EXISTS(
			SELECT 1 FROM content_history
			WHERE content_id = ?
			  AND (status = 'pending' OR (status = 'failed' AND reverted = 0))
		)
	`, contentID).Scan(ctx, &exists)
	return exists == 1, err
}

// UnresolvedExists reports whether a content item has an unresolved entry.
func (s *Store) UnresolvedExists(ctx context.Context, id identity.ContentID) (bool, error) {
	return unresolvedExists(ctx, s.DB, string(id))
}

// GetHistoryEntry retrieves one entry by id.
func (s *Store) GetHistoryEntry(ctx context.Context, entryID int64) (*HistoryEntry, error) {
	var m HistoryModel
	err := s.NewSelect().Model(&m).Where("id = ?", entryID).Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m.ToEntry(), nil
}

// PendingEntries returns all pending entries in commit order. Within one
// ContentId this is also proposal order; across ContentIds order carries no
// guarantee and the engine may interleave freely.
func (s *Store) PendingEntries(ctx context.Context) ([]HistoryEntry, error) {
	return s.historyWhere(ctx, `status = 'pending'`)
}

// FailedUnreverted returns failed entries whose compensating revert has not
// been applied yet.
func (s *Store) FailedUnreverted(ctx context.Context) ([]HistoryEntry, error) {
	return s.historyWhere(ctx, `status = 'failed' AND reverted = 0`)
}

func (s *Store) historyWhere(ctx context.Context, cond string) ([]HistoryEntry, error) {
	var models []HistoryModel
	err := s.NewSelect().
		Model(&models).
		Where(cond).
		Order("id").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]HistoryEntry, len(models))
	for i := range models {
		entries[i] = *models[i].ToEntry()
	}
	return entries, nil
}

// ListHistory returns the newest limit entries for inspection.
func (s *Store) ListHistory(ctx context.Context, limit int) ([]HistoryEntry, error) {
	var models []HistoryModel
	q := s.NewSelect().Model(&models).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	entries := make([]HistoryEntry, len(models))
	for i := range models {
		entries[i] = *models[i].ToEntry()
	}
	return entries, nil
}

// MarkSynced transitions a pending entry to synced. The status guard makes
// re-processing an already-resolved entry a no-op; the return value reports
// whether this call performed the transition.
func (s *Store) MarkSynced(ctx context.Context, entryID int64) (bool, error) {
	res, err := s.NewUpdate().
		Model((*HistoryModel)(nil)).
		Set("status = ?", string(StatusSynced)).
		Set("updated_at = ?", time.Now().Unix()).
		Where("id = ?", entryID).
		Where("status = ?", string(StatusPending)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkSyncedWithRewrite completes a folder entry: rewrites the stale
// location prefix of every descendant, then marks the entry synced, in one
// transaction so no reader observes the folder moved but its children not.
func (s *Store) MarkSyncedWithRewrite(ctx context.Context, entryID int64, oldPath, newPath string) (bool, error) {
	var transitioned bool
	err := s.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*HistoryModel)(nil)).
			Set("status = ?", string(StatusSynced)).
			Set("updated_at = ?", time.Now().Unix()).
			Where("id = ?", entryID).
			Where("status = ?", string(StatusPending)).
			Exec(ctx)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return nil // already resolved; idempotent re-processing
		}
		transitioned = true
		return rewriteDescendants(ctx, tx, oldPath, newPath)
	})
	return transitioned, err
}

// rewriteDescendants rewrites the location prefix of everything indexed
// under oldPath to live under newPath.
func rewriteDescendants(ctx context.Context, idb bun.IDB, oldPath, newPath string) error {
	oldPath = common.NormalizePath(oldPath)
	newPath = common.NormalizePath(newPath)
	if oldPath == newPath {
		return nil
	}
	// substr offsets count characters, not bytes, so the prefix length is
	// computed by SQLite's own length() rather than Go's len.
	_, err := idb.NewRaw(`
		UPDATE contents
		SET location = ? || substr(location, length(?) + 1),
		    path = ? || substr(path, length(?) + 1)
		WHERE location = ? OR location LIKE ? || '/%'
	`, newPath, oldPath, newPath, oldPath, oldPath, oldPath).Exec(ctx)
	return err
}

// MarkFailed transitions a pending entry to failed, recording the
// filesystem error message. Same idempotency contract as MarkSynced.
func (s *Store) MarkFailed(ctx context.Context, entryID int64, message string) (bool, error) {
	res, err := s.NewUpdate().
		Model((*HistoryModel)(nil)).
		Set("status = ?", string(StatusFailed)).
		Set("error = ?", message).
		Set("updated_at = ?", time.Now().Unix()).
		Where("id = ?", entryID).
		Where("status = ?", string(StatusPending)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ApplyRevert compensates a failed entry: restores the previous value of
// the affected column in the index (the filesystem was never changed),
// records a compensating synced entry pointing back at the failed one, and
// flags the failed entry as reverted. Per-column dispatch is typed; an
// unknown column is an error, not a generic string update.
func (s *Store) ApplyRevert(ctx context.Context, entry *HistoryEntry) error {
	if entry.Status != StatusFailed {
		return fmt.Errorf("revert of entry %d: status is %s, not failed", entry.ID, entry.Status)
	}
	if entry.Reverted {
		return nil
	}

	return s.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		// Re-check under the transaction; another pass may have won.
		var m HistoryModel
		err := tx.NewSelect().Model(&m).Where("id = ?", entry.ID).Scan(ctx)
		if err == sql.ErrNoRows {
			return common.ErrNotFound
		}
		if err != nil {
			return err
		}
		if m.Reverted {
			return nil
		}

		var c ContentModel
		err = tx.NewSelect().Model(&c).Where("id = ?", m.ContentID).Scan(ctx)
		if err == sql.ErrNoRows {
			return common.ErrNotFound
		}
		if err != nil {
			return err
		}

		switch HistoryColumn(m.Column) {
		case ColumnLocation:
			c.Location = m.Previous
		case ColumnName:
			c.Name = m.Previous
		default:
			return fmt.Errorf("revert of entry %d: unsupported column %q", m.ID, m.Column)
		}
		c.Path = common.JoinLocation(c.Location, c.Name)

		if _, err := tx.NewUpdate().
			Model(&c).
			Column("location", "name", "path").
			WherePK().
			Exec(ctx); err != nil {
			return err
		}

		if _, err := tx.NewUpdate().
			Model((*HistoryModel)(nil)).
			Set("reverted = 1").
			Set("updated_at = ?", time.Now().Unix()).
			Where("id = ?", m.ID).
			Exec(ctx); err != nil {
			return err
		}

		// The compensating record is index-only and born synced.
		now := time.Now().Unix()
		revert := &HistoryModel{
			ContentID: m.ContentID,
			Kind:      m.Kind,
			Column:    m.Column,
			Previous:  m.Updated,
			Updated:   m.Previous,
			Status:    string(StatusSynced),
			RevertOf:  m.ID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		_, err = tx.NewInsert().Model(revert).Exec(ctx)
		return err
	})
}
