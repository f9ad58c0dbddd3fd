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
	"fmt"
	"os"
	"strconv"
)

const SchemaVersion = "1"

// Default busy_timeout in milliseconds (30 seconds)
const DefaultBusyTimeout = 30000

// EnvBusyTimeout overrides the SQLite busy_timeout for all store opens.
const EnvBusyTimeout = "TAGSTORE_BUSY_TIMEOUT"

// Package-level config value (set via SetConfigBusyTimeout after the
// profile config is loaded).
var configBusyTimeout int

// SetConfigBusyTimeout sets the config-based busy_timeout value.
// A value of 0 is ignored (use env var or default).
func SetConfigBusyTimeout(timeout int) {
	configBusyTimeout = timeout
}

// GetBusyTimeout returns the busy_timeout to use.
// Priority: env var > config file > default.
func GetBusyTimeout() int {
	if val := os.Getenv(EnvBusyTimeout); val != "" {
		if timeout, err := strconv.Atoi(val); err == nil && timeout > 0 {
			return timeout
		}
	}
	if configBusyTimeout > 0 {
		return configBusyTimeout
	}
	return DefaultBusyTimeout
}

// BuildDSN builds the SQLite DSN with WAL mode and the configured busy_timeout.
func BuildDSN(path string) string {
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=%d",
		path, GetBusyTimeout())
}

// Kind distinguishes indexed files from indexed folders.
type Kind string

const (
	KindFile   Kind = "file"
	KindFolder Kind = "folder"
)

// Status is the lifecycle state of a history entry.
type Status string

const (
	StatusPending Status = "pending"
	StatusSynced  Status = "synced"
	StatusFailed  Status = "failed"
)

// HistoryColumn names the contents column a history entry proposes to
// change. Only path-bearing columns go through the history log; everything
// else is a plain metadata update.
type HistoryColumn string

const (
	ColumnLocation HistoryColumn = "location"
	ColumnName     HistoryColumn = "name"
)

// EntryType distinguishes normal tags from aliases.
type EntryType string

const (
	EntryNormal EntryType = "normal"
	EntryAlias  EntryType = "alias"
)

// TagType is the concrete type of a tag value.
type TagType string

const (
	TagTypeGeneral TagType = "general"
	TagTypeGenre   TagType = "genre"
	TagTypeAuthor  TagType = "author"
	TagTypeArtist  TagType = "artist"
	TagTypeCreated TagType = "created"
	TagTypeYear    TagType = "year"
	TagTypeQueue   TagType = "queue"
)

// TagDomain groups tag types for domain-scoped filtering.
type TagDomain string

const (
	DomainDescriptive TagDomain = "descriptive"
	DomainAttribution TagDomain = "attribution"
	DomainCreation    TagDomain = "creation"
	DomainQueue       TagDomain = "queue"
)

// tagDomains is the static TagType → TagDomain mapping.
var tagDomains = map[TagType]TagDomain{
	TagTypeGeneral: DomainDescriptive,
	TagTypeGenre:   DomainDescriptive,
	TagTypeAuthor:  DomainAttribution,
	TagTypeArtist:  DomainAttribution,
	TagTypeCreated: DomainCreation,
	TagTypeYear:    DomainCreation,
	TagTypeQueue:   DomainQueue,
}

// Domain returns the domain a tag type belongs to. Unknown types fall into
// the descriptive domain.
func (t TagType) Domain() TagDomain {
	if d, ok := tagDomains[t]; ok {
		return d
	}
	return DomainDescriptive
}

// TypesForDomain returns all tag types mapped to the given domain, in a
// stable order.
func TypesForDomain(d TagDomain) []TagType {
	ordered := []TagType{
		TagTypeGeneral, TagTypeGenre,
		TagTypeAuthor, TagTypeArtist,
		TagTypeCreated, TagTypeYear,
		TagTypeQueue,
	}
	var types []TagType
	for _, t := range ordered {
		if tagDomains[t] == d {
			types = append(types, t)
		}
	}
	return types
}

// storeSchema creates every table, index, and view of one profile store.
const storeSchema = `
CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Indexed filesystem entries. id is the ContentId mirrored from the
-- extended attribute on the file/folder itself.
CREATE TABLE IF NOT EXISTS contents (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    location TEXT NOT NULL,
    path TEXT NOT NULL UNIQUE,
    kind TEXT NOT NULL CHECK (kind IN ('file', 'folder')),
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contents_location ON contents(location);
CREATE INDEX IF NOT EXISTS idx_contents_name ON contents(name COLLATE NOCASE);

-- Tag identity is the (value, tag_type) pair.
CREATE TABLE IF NOT EXISTS tags (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    value TEXT NOT NULL,
    tag_type TEXT NOT NULL,
    entry_type TEXT NOT NULL DEFAULT 'normal' CHECK (entry_type IN ('normal', 'alias')),
    related_id INTEGER REFERENCES tags(id),
    created_at INTEGER NOT NULL,
    UNIQUE (value, tag_type)
);

CREATE INDEX IF NOT EXISTS idx_tags_type ON tags(tag_type);

CREATE TABLE IF NOT EXISTS content_tags (
    tag_id INTEGER NOT NULL REFERENCES tags(id),
    content_id TEXT NOT NULL REFERENCES contents(id),
    created_at INTEGER NOT NULL,
    PRIMARY KEY (tag_id, content_id)
);

CREATE INDEX IF NOT EXISTS idx_content_tags_content ON content_tags(content_id);

CREATE TABLE IF NOT EXISTS queues (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    tag_value TEXT,
    watch_folder TEXT,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS queue_items (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    queue_id INTEGER NOT NULL REFERENCES queues(id),
    content_id TEXT NOT NULL REFERENCES contents(id),
    position INTEGER NOT NULL,
    done INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    UNIQUE (queue_id, content_id)
);

CREATE INDEX IF NOT EXISTS idx_queue_items_queue ON queue_items(queue_id, position);

CREATE TABLE IF NOT EXISTS bookmarks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    content_id TEXT NOT NULL REFERENCES contents(id),
    label TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_bookmarks_content ON bookmarks(content_id);

CREATE TABLE IF NOT EXISTS saved_queries (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    params TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

-- Append-only log of proposed path mutations. status transitions are owned
-- by the reconciliation engine; failed entries are compensated by a revert
-- record (revert_of) rather than deleted.
CREATE TABLE IF NOT EXISTS content_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    content_id TEXT NOT NULL REFERENCES contents(id),
    kind TEXT NOT NULL CHECK (kind IN ('file', 'folder')),
    column_name TEXT NOT NULL CHECK (column_name IN ('location', 'name')),
    previous TEXT NOT NULL,
    updated TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'synced', 'failed')),
    error TEXT NOT NULL DEFAULT '',
    reverted INTEGER NOT NULL DEFAULT 0,
    revert_of INTEGER REFERENCES content_history(id),
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_status ON content_history(status);
CREATE INDEX IF NOT EXISTS idx_history_content ON content_history(content_id, status, reverted);

-- Joined read model: one row per content with its aggregated tag string and
-- tag count. concat_group is an embedded aggregate registered on every
-- connection at open time.
CREATE VIEW IF NOT EXISTS content_info AS
SELECT c.id, c.name, c.location, c.path, c.kind, c.created_at,
       COALESCE(concat_group(t.value, ', '), '') AS tag_list,
       COUNT(t.id) AS tag_count
FROM contents c
LEFT JOIN content_tags ct ON ct.content_id = c.id
LEFT JOIN tags t ON t.id = ct.tag_id
GROUP BY c.id;

-- Unresolved work for the reconciliation engine.
CREATE VIEW IF NOT EXISTS pending_changes AS
SELECT * FROM content_history WHERE status = 'pending';
`

const initStore = `
INSERT OR IGNORE INTO schema_info (key, value) VALUES ('version', ?);
INSERT OR IGNORE INTO schema_info (key, value) VALUES ('created_at', datetime('now'));
`
