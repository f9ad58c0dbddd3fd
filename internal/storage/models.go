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
	"time"

	"github.com/uptrace/bun"

	"tagstore/internal/identity"
)

// Bun ORM models for tagstore database tables. Times are stored as Unix
// timestamps in the database; the domain structs carry time.Time.

// SchemaInfoModel represents the schema_info table
type SchemaInfoModel struct {
	bun.BaseModel `bun:"table:schema_info"`

	Key   string `bun:"key,pk"`
	Value string `bun:"value,notnull"`
}

// ContentModel represents the contents table
type ContentModel struct {
	bun.BaseModel `bun:"table:contents"`

	ID        string `bun:"id,pk"`
	Name      string `bun:"name,notnull"`
	Location  string `bun:"location,notnull"`
	Path      string `bun:"path,notnull"`
	Kind      string `bun:"kind,notnull"`
	CreatedAt int64  `bun:"created_at,notnull"` // Unix timestamp
}

// IndexRecord is one indexed filesystem entry.
type IndexRecord struct {
	ID        identity.ContentID
	Name      string
	Location  string // parent path
	Path      string // full path
	Kind      Kind
	CreatedAt time.Time
}

// ToRecord converts a ContentModel to an IndexRecord
func (m *ContentModel) ToRecord() *IndexRecord {
	return &IndexRecord{
		ID:        identity.ContentID(m.ID),
		Name:      m.Name,
		Location:  m.Location,
		Path:      m.Path,
		Kind:      Kind(m.Kind),
		CreatedAt: time.Unix(m.CreatedAt, 0),
	}
}

// ContentModelFromRecord converts an IndexRecord to ContentModel
func ContentModelFromRecord(r *IndexRecord) *ContentModel {
	return &ContentModel{
		ID:        string(r.ID),
		Name:      r.Name,
		Location:  r.Location,
		Path:      r.Path,
		Kind:      string(r.Kind),
		CreatedAt: r.CreatedAt.Unix(),
	}
}

// TagModel represents the tags table
type TagModel struct {
	bun.BaseModel `bun:"table:tags"`

	ID        int64  `bun:"id,pk,autoincrement"`
	Value     string `bun:"value,notnull"`
	TagType   string `bun:"tag_type,notnull"`
	EntryType string `bun:"entry_type,notnull"`
	RelatedID int64  `bun:"related_id,nullzero"` // canonical tag for aliases
	CreatedAt int64  `bun:"created_at,notnull"`
}

// TagRecord is one distinct (value, type) pair.
type TagRecord struct {
	ID        int64
	Value     string
	Type      TagType
	EntryType EntryType
	RelatedID int64
	CreatedAt time.Time
}

// Domain returns the tag's domain via the static type mapping.
func (t *TagRecord) Domain() TagDomain {
	return t.Type.Domain()
}

// ToRecord converts a TagModel to a TagRecord
func (m *TagModel) ToRecord() *TagRecord {
	return &TagRecord{
		ID:        m.ID,
		Value:     m.Value,
		Type:      TagType(m.TagType),
		EntryType: EntryType(m.EntryType),
		RelatedID: m.RelatedID,
		CreatedAt: time.Unix(m.CreatedAt, 0),
	}
}

// ContentTagModel represents the content_tags association table
type ContentTagModel struct {
	bun.BaseModel `bun:"table:content_tags"`

	TagID     int64  `bun:"tag_id,pk"`
	ContentID string `bun:"content_id,pk"`
	CreatedAt int64  `bun:"created_at,notnull"`
}

// QueueModel represents the queues table
type QueueModel struct {
	bun.BaseModel `bun:"table:queues"`

	ID          int64  `bun:"id,pk,autoincrement"`
	Name        string `bun:"name,notnull,unique"`
	TagValue    string `bun:"tag_value,nullzero"`
	WatchFolder string `bun:"watch_folder,nullzero"`
	CreatedAt   int64  `bun:"created_at,notnull"`
}

// QueueRecord is a named, ordered work queue. Content tagged with TagValue
// is implicitly part of the queue in addition to explicit items.
type QueueRecord struct {
	ID          int64
	Name        string
	TagValue    string
	WatchFolder string
	CreatedAt   time.Time
}

// ToRecord converts a QueueModel to a QueueRecord
func (m *QueueModel) ToRecord() *QueueRecord {
	return &QueueRecord{
		ID:          m.ID,
		Name:        m.Name,
		TagValue:    m.TagValue,
		WatchFolder: m.WatchFolder,
		CreatedAt:   time.Unix(m.CreatedAt, 0),
	}
}

// QueueItemModel represents the queue_items table
type QueueItemModel struct {
	bun.BaseModel `bun:"table:queue_items"`

	ID        int64  `bun:"id,pk,autoincrement"`
	QueueID   int64  `bun:"queue_id,notnull"`
	ContentID string `bun:"content_id,notnull"`
	Position  int64  `bun:"position,notnull"`
	Done      bool   `bun:"done,notnull"`
	CreatedAt int64  `bun:"created_at,notnull"`
}

// QueueItemRecord is one item in a queue.
type QueueItemRecord struct {
	ID        int64
	QueueID   int64
	ContentID identity.ContentID
	Position  int64
	Done      bool
	CreatedAt time.Time
}

// ToRecord converts a QueueItemModel to a QueueItemRecord
func (m *QueueItemModel) ToRecord() *QueueItemRecord {
	return &QueueItemRecord{
		ID:        m.ID,
		QueueID:   m.QueueID,
		ContentID: identity.ContentID(m.ContentID),
		Position:  m.Position,
		Done:      m.Done,
		CreatedAt: time.Unix(m.CreatedAt, 0),
	}
}

// BookmarkModel represents the bookmarks table
type BookmarkModel struct {
	bun.BaseModel `bun:"table:bookmarks"`

	ID        int64  `bun:"id,pk,autoincrement"`
	ContentID string `bun:"content_id,notnull"`
	Label     string `bun:"label"`
	CreatedAt int64  `bun:"created_at,notnull"`
}

// BookmarkRecord is a saved shortcut to one content item.
type BookmarkRecord struct {
	ID        int64
	ContentID identity.ContentID
	Label     string
	CreatedAt time.Time
}

// ToRecord converts a BookmarkModel to a BookmarkRecord
func (m *BookmarkModel) ToRecord() *BookmarkRecord {
	return &BookmarkRecord{
		ID:        m.ID,
		ContentID: identity.ContentID(m.ContentID),
		Label:     m.Label,
		CreatedAt: time.Unix(m.CreatedAt, 0),
	}
}

// SavedQueryModel represents the saved_queries table
type SavedQueryModel struct {
	bun.BaseModel `bun:"table:saved_queries"`

	ID        string `bun:"id,pk"`
	Name      string `bun:"name,notnull"`
	Params    string `bun:"params,notnull"` // JSON-encoded parameter bundle
	CreatedAt int64  `bun:"created_at,notnull"`
	UpdatedAt int64  `bun:"updated_at,notnull"`
}

// SavedQueryRecord is a persisted query parameter bundle.
type SavedQueryRecord struct {
	ID        string
	Name      string
	Params    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ToRecord converts a SavedQueryModel to a SavedQueryRecord
func (m *SavedQueryModel) ToRecord() *SavedQueryRecord {
	return &SavedQueryRecord{
		ID:        m.ID,
		Name:      m.Name,
		Params:    m.Params,
		CreatedAt: time.Unix(m.CreatedAt, 0),
		UpdatedAt: time.Unix(m.UpdatedAt, 0),
	}
}

// HistoryModel represents the content_history table
type HistoryModel struct {
	bun.BaseModel `bun:"table:content_history"`

	ID        int64  `bun:"id,pk,autoincrement"`
	ContentID string `bun:"content_id,notnull"`
	Kind      string `bun:"kind,notnull"`
	Column    string `bun:"column_name,notnull"`
	Previous  string `bun:"previous,notnull"`
	Updated   string `bun:"updated,notnull"`
	Status    string `bun:"status,notnull"`
	Error     string `bun:"error"`
	Reverted  bool   `bun:"reverted,notnull"`
	RevertOf  int64  `bun:"revert_of,nullzero"`
	CreatedAt int64  `bun:"created_at,notnull"`
	UpdatedAt int64  `bun:"updated_at,notnull"`
}

// HistoryEntry is one proposed mutation to an IndexRecord's path columns.
type HistoryEntry struct {
	ID        int64
	ContentID identity.ContentID
	Kind      Kind
	Column    HistoryColumn
	Previous  string
	Updated   string
	Status    Status
	Error     string
	Reverted  bool
	RevertOf  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ToEntry converts a HistoryModel to a HistoryEntry
func (m *HistoryModel) ToEntry() *HistoryEntry {
	return &HistoryEntry{
		ID:        m.ID,
		ContentID: identity.ContentID(m.ContentID),
		Kind:      Kind(m.Kind),
		Column:    HistoryColumn(m.Column),
		Previous:  m.Previous,
		Updated:   m.Updated,
		Status:    Status(m.Status),
		Error:     m.Error,
		Reverted:  m.Reverted,
		RevertOf:  m.RevertOf,
		CreatedAt: time.Unix(m.CreatedAt, 0),
		UpdatedAt: time.Unix(m.UpdatedAt, 0),
	}
}

// IndexInfoRecord is the joined read model: an IndexRecord plus its
// aggregated tag string and tag count (the content_info view).
type IndexInfoRecord struct {
	IndexRecord
	TagList  string
	TagCount int
}

// ContentInfoRow scans one row of the content_info view.
type ContentInfoRow struct {
	ID        string `bun:"id"`
	Name      string `bun:"name"`
	Location  string `bun:"location"`
	Path      string `bun:"path"`
	Kind      string `bun:"kind"`
	CreatedAt int64  `bun:"created_at"`
	TagList   string `bun:"tag_list"`
	TagCount  int    `bun:"tag_count"`
}

// ToInfo converts a view row to the joined read model.
func (r *ContentInfoRow) ToInfo() IndexInfoRecord {
	return IndexInfoRecord{
		IndexRecord: IndexRecord{
			ID:        identity.ContentID(r.ID),
			Name:      r.Name,
			Location:  r.Location,
			Path:      r.Path,
			Kind:      Kind(r.Kind),
			CreatedAt: time.Unix(r.CreatedAt, 0),
		},
		TagList:  r.TagList,
		TagCount: r.TagCount,
	}
}
