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

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"tagstore/internal/common"
	"tagstore/internal/identity"
)

// --- Queue Operations ---

// CreateQueue creates a named work queue. tagValue and watchFolder are
// optional ("" means unset).
func (s *Store) CreateQueue(ctx context.Context, name, tagValue, watchFolder string) (*QueueRecord, error) {
	m := &QueueModel{
		Name:        name,
		TagValue:    tagValue,
		WatchFolder: watchFolder,
		CreatedAt:   time.Now().Unix(),
	}
	if _, err := s.NewInsert().Model(m).Returning("id").Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: queue %q", common.ErrExists, name)
		}
		return nil, err
	}
	return m.ToRecord(), nil
}

// GetQueue retrieves a queue by name.
func (s *Store) GetQueue(ctx context.Context, name string) (*QueueRecord, error) {
	var m QueueModel
	err := s.NewSelect().Model(&m).Where("name = ?", name).Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m.ToRecord(), nil
}

// ListQueues returns all queues ordered by name.
func (s *Store) ListQueues(ctx context.Context) ([]QueueRecord, error) {
	var models []QueueModel
	if err := s.NewSelect().Model(&models).Order("name").Scan(ctx); err != nil {
		return nil, err
	}
	records := make([]QueueRecord, len(models))
	for i := range models {
		records[i] = *models[i].ToRecord()
	}
	return records, nil
}

// Enqueue appends content items to a queue, in order, after the current
// tail. Items already queued are skipped.
func (s *Store) Enqueue(ctx context.Context, queueID int64, contentIDs ...identity.ContentID) error {
	return s.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var maxPos sql.NullInt64
		err := tx.NewRaw(`SELECT MAX(position) FROM queue_items WHERE queue_id = ?`, queueID).Scan(ctx, &maxPos)
		if err != nil {
			return err
		}
		pos := maxPos.Int64
		now := time.Now().Unix()
		for _, id := range contentIDs {
			pos++
			_, err := tx.NewInsert().
				Model(&QueueItemModel{
					QueueID:   queueID,
					ContentID: string(id),
					Position:  pos,
					CreatedAt: now,
				}).
				On("CONFLICT (queue_id, content_id) DO NOTHING").
				Exec(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// SetQueueItemDone flips one item's completion flag.
func (s *Store) SetQueueItemDone(ctx context.Context, itemID int64, done bool) error {
	res, err := s.NewUpdate().
		Model((*QueueItemModel)(nil)).
		Set("done = ?", done).
		Where("id = ?", itemID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// ListQueueItems returns a queue's explicit items in queue order.
func (s *Store) ListQueueItems(ctx context.Context, queueID int64) ([]QueueItemRecord, error) {
	var models []QueueItemModel
	err := s.NewSelect().
		Model(&models).
		Where("queue_id = ?", queueID).
		Order("position").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]QueueItemRecord, len(models))
	for i := range models {
		records[i] = *models[i].ToRecord()
	}
	return records, nil
}

// QueueMemberInfos returns the joined read model of everything in a queue:
// explicit items plus content implicitly tagged with the queue's tag value.
func (s *Store) QueueMemberInfos(ctx context.Context, q *QueueRecord) ([]IndexInfoRecord, error) {
	var rows []ContentInfoRow
	err := s.NewRaw(`
		SELECT ci.* FROM content_info ci
		WHERE ci.id IN (SELECT content_id FROM queue_items WHERE queue_id = ?)
		   OR (? != '' AND ci.id IN (
			SELECT ct.content_id FROM content_tags ct
			INNER JOIN tags t ON t.id = ct.tag_id
			WHERE t.value = ? AND t.tag_type = ?
		   ))
		ORDER BY ci.path
	`, q.ID, q.TagValue, q.TagValue, string(TagTypeQueue)).Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	infos := make([]IndexInfoRecord, len(rows))
	for i := range rows {
		infos[i] = rows[i].ToInfo()
	}
	return infos, nil
}

// --- Bookmark Operations ---

// CreateBookmark saves a shortcut to one content item. Uniqueness per
// content is meaningful but deliberately not enforced.
func (s *Store) CreateBookmark(ctx context.Context, contentID identity.ContentID, label string) (*BookmarkRecord, error) {
	m := &BookmarkModel{
		ContentID: string(contentID),
		Label:     label,
		CreatedAt: time.Now().Unix(),
	}
	if _, err := s.NewInsert().Model(m).Returning("id").Exec(ctx); err != nil {
		return nil, err
	}
	return m.ToRecord(), nil
}

// ListBookmarks returns all bookmarks, newest first.
func (s *Store) ListBookmarks(ctx context.Context) ([]BookmarkRecord, error) {
	var models []BookmarkModel
	if err := s.NewSelect().Model(&models).Order("created_at DESC").Scan(ctx); err != nil {
		return nil, err
	}
	records := make([]BookmarkRecord, len(models))
	for i := range models {
		records[i] = *models[i].ToRecord()
	}
	return records, nil
}

// DeleteBookmark removes one bookmark.
func (s *Store) DeleteBookmark(ctx context.Context, id int64) error {
	res, err := s.NewDelete().Model((*BookmarkModel)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// --- Saved Query Operations ---

// CreateSavedQuery persists a serialized query parameter bundle under a
// user-visible name.
func (s *Store) CreateSavedQuery(ctx context.Context, name, paramsJSON string) (*SavedQueryRecord, error) {
	now := time.Now().Unix()
	m := &SavedQueryModel{
		ID:        uuid.NewString(),
		Name:      name,
		Params:    paramsJSON,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.NewInsert().Model(m).Exec(ctx); err != nil {
		return nil, err
	}
	return m.ToRecord(), nil
}

// GetSavedQuery retrieves a saved query by id.
func (s *Store) GetSavedQuery(ctx context.Context, id string) (*SavedQueryRecord, error) {
	var m SavedQueryModel
	err := s.NewSelect().Model(&m).Where("id = ?", id).Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m.ToRecord(), nil
}

// UpdateSavedQuery replaces a saved query's params and/or name.
func (s *Store) UpdateSavedQuery(ctx context.Context, id, name, paramsJSON string) error {
	res, err := s.NewUpdate().
		Model((*SavedQueryModel)(nil)).
		Set("name = ?", name).
		Set("params = ?", paramsJSON).
		Set("updated_at = ?", time.Now().Unix()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// ListSavedQueries returns all saved queries ordered by name.
func (s *Store) ListSavedQueries(ctx context.Context) ([]SavedQueryRecord, error) {
	var models []SavedQueryModel
	if err := s.NewSelect().Model(&models).Order("name").Scan(ctx); err != nil {
		return nil, err
	}
	records := make([]SavedQueryRecord, len(models))
	for i := range models {
		records[i] = *models[i].ToRecord()
	}
	return records, nil
}
