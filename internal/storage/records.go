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
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"

	"tagstore/internal/common"
	"tagstore/internal/identity"
)

// --- Content Operations ---

// InsertContent indexes one filesystem entry. The id must already be
// assigned on the filesystem by the identity service.
func (s *Store) InsertContent(ctx context.Context, rec *IndexRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.NewInsert().Model(ContentModelFromRecord(rec)).Exec(ctx)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", common.ErrExists, rec.Path)
	}
	return err
}

// GetContent retrieves an IndexRecord by ContentID.
func (s *Store) GetContent(ctx context.Context, id identity.ContentID) (*IndexRecord, error) {
	var m ContentModel
	err := s.NewSelect().
		Model(&m).
		Where("id = ?", string(id)).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m.ToRecord(), nil
}

// GetContentByPath retrieves an IndexRecord by its current full path.
func (s *Store) GetContentByPath(ctx context.Context, path string) (*IndexRecord, error) {
	var m ContentModel
	err := s.NewSelect().
		Model(&m).
		Where("path = ?", common.NormalizePath(path)).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m.ToRecord(), nil
}

// ListContentsUnder returns records at root, or the whole subtree when
// recursive is set.
func (s *Store) ListContentsUnder(ctx context.Context, root string, recursive bool) ([]IndexRecord, error) {
	root = common.NormalizePath(root)
	q := s.NewSelect().Model((*ContentModel)(nil)).Order("path")
	if recursive {
		q = q.Where("location = ? OR location LIKE ?", root, root+"/%")
	} else {
		q = q.Where("location = ?", root)
	}
	var models []ContentModel
	if err := q.Scan(ctx, &models); err != nil {
		return nil, err
	}
	records := make([]IndexRecord, len(models))
	for i := range models {
		records[i] = *models[i].ToRecord()
	}
	return records, nil
}

// GetContentInfo returns the joined read model for one content id.
func (s *Store) GetContentInfo(ctx context.Context, id identity.ContentID) (*IndexInfoRecord, error) {
	var row ContentInfoRow
	err := s.NewRaw(`SELECT * FROM content_info WHERE id = ?`, string(id)).Scan(ctx, &row)
	if err == sql.ErrNoRows {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	info := row.ToInfo()
	return &info, nil
}

// DistinctLocations returns every unique parent-location value currently
// indexed, for location suggestion without a filesystem scan.
func (s *Store) DistinctLocations(ctx context.Context) ([]string, error) {
	var locations []string
	err := s.NewRaw(`SELECT DISTINCT location FROM contents ORDER BY location`).Scan(ctx, &locations)
	return locations, err
}

// DeleteContent de-indexes one content item: its tag associations, queue
// items, bookmarks, and history go with it. The identity attribute on the
// filesystem is the caller's business (identity.Service.Remove).
func (s *Store) DeleteContent(ctx context.Context, id identity.ContentID) error {
	return s.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		cid := string(id)
		if _, err := tx.NewDelete().Model((*ContentTagModel)(nil)).Where("content_id = ?", cid).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*QueueItemModel)(nil)).Where("content_id = ?", cid).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*BookmarkModel)(nil)).Where("content_id = ?", cid).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*HistoryModel)(nil)).Where("content_id = ?", cid).Exec(ctx); err != nil {
			return err
		}
		res, err := tx.NewDelete().Model((*ContentModel)(nil)).Where("id = ?", cid).Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return common.ErrNotFound
		}
		return nil
	})
}

// --- Tag Operations ---

// EnsureTag returns the normal tag for (value, type), creating it if
// needed. Tag identity is the (value, type) pair; a second create of the
// same pair returns the existing record.
func (s *Store) EnsureTag(ctx context.Context, value string, typ TagType) (*TagRecord, error) {
	existing, err := s.GetTag(ctx, value, typ)
	if err == nil {
		return existing, nil
	}
	if err != common.ErrNotFound {
		return nil, err
	}

	m := &TagModel{
		Value:     value,
		TagType:   string(typ),
		EntryType: string(EntryNormal),
		CreatedAt: time.Now().Unix(),
	}
	_, err = s.NewInsert().Model(m).Returning("id").Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost a race with a concurrent insert; the row exists now.
			return s.GetTag(ctx, value, typ)
		}
		return nil, err
	}
	return m.ToRecord(), nil
}

// GetTag retrieves a tag by its (value, type) identity.
func (s *Store) GetTag(ctx context.Context, value string, typ TagType) (*TagRecord, error) {
	var m TagModel
	err := s.NewSelect().
		Model(&m).
		Where("value = ?", value).
		Where("tag_type = ?", string(typ)).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m.ToRecord(), nil
}

// CreateAlias creates an alias record pointing at a canonical tag.
func (s *Store) CreateAlias(ctx context.Context, value string, typ TagType, canonicalID int64) (*TagRecord, error) {
	var canonical TagModel
	err := s.NewSelect().Model(&canonical).Where("id = ?", canonicalID).Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("canonical tag %d: %w", canonicalID, common.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if canonical.EntryType != string(EntryNormal) {
		return nil, fmt.Errorf("tag %d is not a normal entry", canonicalID)
	}

	m := &TagModel{
		Value:     value,
		TagType:   string(typ),
		EntryType: string(EntryAlias),
		RelatedID: canonicalID,
		CreatedAt: time.Now().Unix(),
	}
	if _, err := s.NewInsert().Model(m).Returning("id").Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: tag (%s, %s)", common.ErrExists, value, typ)
		}
		return nil, err
	}
	return m.ToRecord(), nil
}

// ResolveTag looks up (value, type) and follows one alias hop to the
// canonical record. Aliases of aliases are not allowed at creation, so one
// hop is always enough.
func (s *Store) ResolveTag(ctx context.Context, value string, typ TagType) (*TagRecord, error) {
	tag, err := s.GetTag(ctx, value, typ)
	if err != nil {
		return nil, err
	}
	if tag.EntryType != EntryAlias {
		return tag, nil
	}
	var m TagModel
	err = s.NewSelect().Model(&m).Where("id = ?", tag.RelatedID).Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("alias %q: canonical tag %d: %w", value, tag.RelatedID, common.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return m.ToRecord(), nil
}

// RenameTag updates a single tag's value in place, keeping every
// association. This is a metadata rename, not a content move: it never
// touches the history log.
func (s *Store) RenameTag(ctx context.Context, tagID int64, newValue string) error {
	res, err := s.NewUpdate().
		Model((*TagModel)(nil)).
		Set("value = ?", newValue).
		Where("id = ?", tagID).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: tag value %q", common.ErrExists, newValue)
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// ListTags returns all tags, optionally restricted to one domain.
func (s *Store) ListTags(ctx context.Context, domain TagDomain) ([]TagRecord, error) {
	q := s.NewSelect().Model((*TagModel)(nil)).Order("tag_type", "value")
	if domain != "" {
		types := TypesForDomain(domain)
		values := make([]string, len(types))
		for i, t := range types {
			values[i] = string(t)
		}
		q = q.Where("tag_type IN (?)", bun.In(values))
	}
	var models []TagModel
	if err := q.Scan(ctx, &models); err != nil {
		return nil, err
	}
	records := make([]TagRecord, len(models))
	for i := range models {
		records[i] = *models[i].ToRecord()
	}
	return records, nil
}

// TagContent applies a tag to a content item. Already-applied is a no-op.
func (s *Store) TagContent(ctx context.Context, tagID int64, contentID identity.ContentID) error {
	_, err := s.NewInsert().
		Model(&ContentTagModel{TagID: tagID, ContentID: string(contentID), CreatedAt: time.Now().Unix()}).
		On("CONFLICT (tag_id, content_id) DO NOTHING").
		Exec(ctx)
	return err
}

// UntagContent removes one tag application.
func (s *Store) UntagContent(ctx context.Context, tagID int64, contentID identity.ContentID) error {
	_, err := s.NewDelete().
		Model((*ContentTagModel)(nil)).
		Where("tag_id = ?", tagID).
		Where("content_id = ?", string(contentID)).
		Exec(ctx)
	return err
}

// TagsForContent returns all tags applied to one content item. The filter
// value projection (value, type) round-trips through here.
func (s *Store) TagsForContent(ctx context.Context, contentID identity.ContentID) ([]TagRecord, error) {
	var models []TagModel
	err := s.NewRaw(`
		SELECT t.id, t.value, t.tag_type, t.entry_type, t.related_id, t.created_at
		FROM tags t
		INNER JOIN content_tags ct ON ct.tag_id = t.id
		WHERE ct.content_id = ?
		ORDER BY t.tag_type, t.value
	`, string(contentID)).Scan(ctx, &models)
	if err != nil {
		return nil, err
	}
	records := make([]TagRecord, len(models))
	for i := range models {
		records[i] = *models[i].ToRecord()
	}
	return records, nil
}

// isUniqueViolation reports whether err is a SQLite uniqueness failure.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
