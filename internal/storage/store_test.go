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
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagstore/internal/common"
	"tagstore/internal/identity"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Create(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func insertFile(t *testing.T, s *Store, location, name string) *IndexRecord {
	t.Helper()
	rec := &IndexRecord{
		ID:        identity.ContentID(uuid.NewString()),
		Name:      name,
		Location:  location,
		Path:      common.JoinLocation(location, name),
		Kind:      KindFile,
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.InsertContent(context.Background(), rec))
	return rec
}

func TestCreateRejectsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Create(path)
	assert.ErrorIs(t, err, common.ErrExists)

	s, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestOpenRejectsMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.db"))
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestContentRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := insertFile(t, s, "/tmp/photos", "cat.png")

	got, err := s.GetContent(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "/tmp/photos/cat.png", got.Path)
	assert.Equal(t, KindFile, got.Kind)

	byPath, err := s.GetContentByPath(ctx, "/tmp/photos/cat.png")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, byPath.ID)

	_, err = s.GetContent(ctx, identity.ContentID(uuid.NewString()))
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestInsertContentDuplicatePath(t *testing.T) {
	s := newTestStore(t)
	insertFile(t, s, "/tmp/photos", "cat.png")

	dup := &IndexRecord{
		ID:       identity.ContentID(uuid.NewString()),
		Name:     "cat.png",
		Location: "/tmp/photos",
		Path:     "/tmp/photos/cat.png",
		Kind:     KindFile,
	}
	err := s.InsertContent(context.Background(), dup)
	assert.ErrorIs(t, err, common.ErrExists)
}

func TestListContentsUnder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertFile(t, s, "/tmp/photos", "cat.png")
	insertFile(t, s, "/tmp/photos/raw", "cat.raw")
	insertFile(t, s, "/tmp/docs", "notes.txt")

	direct, err := s.ListContentsUnder(ctx, "/tmp/photos", false)
	require.NoError(t, err)
	assert.Len(t, direct, 1)

	deep, err := s.ListContentsUnder(ctx, "/tmp/photos", true)
	require.NoError(t, err)
	assert.Len(t, deep, 2)

	// A sibling whose name shares the prefix must not leak in.
	insertFile(t, s, "/tmp/photoshoot", "other.png")
	deep, err = s.ListContentsUnder(ctx, "/tmp/photos", true)
	require.NoError(t, err)
	assert.Len(t, deep, 2)
}

func TestDistinctLocations(t *testing.T) {
	s := newTestStore(t)

	insertFile(t, s, "/tmp/photos", "a.png")
	insertFile(t, s, "/tmp/photos", "b.png")
	insertFile(t, s, "/tmp/docs", "c.txt")

	locs, err := s.DistinctLocations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"/tmp/docs", "/tmp/photos"}, locs)
}

func TestTagLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tag, err := s.EnsureTag(ctx, "vacation", TagTypeGeneral)
	require.NoError(t, err)
	assert.Equal(t, DomainDescriptive, tag.Domain())

	// EnsureTag is get-or-insert.
	again, err := s.EnsureTag(ctx, "vacation", TagTypeGeneral)
	require.NoError(t, err)
	assert.Equal(t, tag.ID, again.ID)

	// Same value under another type is a distinct tag.
	other, err := s.EnsureTag(ctx, "vacation", TagTypeGenre)
	require.NoError(t, err)
	assert.NotEqual(t, tag.ID, other.ID)

	rec := insertFile(t, s, "/tmp/photos", "cat.png")
	require.NoError(t, s.TagContent(ctx, tag.ID, rec.ID))
	// Re-tagging is a no-op.
	require.NoError(t, s.TagContent(ctx, tag.ID, rec.ID))

	tags, err := s.TagsForContent(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "vacation", tags[0].Value)

	require.NoError(t, s.UntagContent(ctx, tag.ID, rec.ID))
	tags, err = s.TagsForContent(ctx, rec.ID)
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestRenameTagKeepsAssociations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tag, err := s.EnsureTag(ctx, "holday", TagTypeGeneral)
	require.NoError(t, err)
	rec := insertFile(t, s, "/tmp/photos", "cat.png")
	require.NoError(t, s.TagContent(ctx, tag.ID, rec.ID))

	require.NoError(t, s.RenameTag(ctx, tag.ID, "holiday"))

	tags, err := s.TagsForContent(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "holiday", tags[0].Value)

	// Renaming onto an existing value is rejected.
	_, err = s.EnsureTag(ctx, "beach", TagTypeGeneral)
	require.NoError(t, err)
	err = s.RenameTag(ctx, tag.ID, "beach")
	assert.ErrorIs(t, err, common.ErrExists)
}

func TestTagAliasResolution(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	canonical, err := s.EnsureTag(ctx, "new york city", TagTypeGeneral)
	require.NoError(t, err)

	alias, err := s.CreateAlias(ctx, "nyc", TagTypeGeneral, canonical.ID)
	require.NoError(t, err)
	assert.Equal(t, EntryAlias, alias.EntryType)

	resolved, err := s.ResolveTag(ctx, "nyc", TagTypeGeneral)
	require.NoError(t, err)
	assert.Equal(t, canonical.ID, resolved.ID)

	// An alias cannot point at another alias.
	_, err = s.CreateAlias(ctx, "the city", TagTypeGeneral, alias.ID)
	assert.Error(t, err)
}

func TestListTagsByDomain(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.EnsureTag(ctx, "vacation", TagTypeGeneral)
	require.NoError(t, err)
	_, err = s.EnsureTag(ctx, "jazz", TagTypeGenre)
	require.NoError(t, err)
	_, err = s.EnsureTag(ctx, "coltrane", TagTypeArtist)
	require.NoError(t, err)

	descriptive, err := s.ListTags(ctx, DomainDescriptive)
	require.NoError(t, err)
	assert.Len(t, descriptive, 2)

	attribution, err := s.ListTags(ctx, DomainAttribution)
	require.NoError(t, err)
	require.Len(t, attribution, 1)
	assert.Equal(t, "coltrane", attribution[0].Value)

	all, err := s.ListTags(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestContentInfoViewAggregatesTags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := insertFile(t, s, "/tmp/photos", "cat.png")
	for _, v := range []string{"vacation", "pets"} {
		tag, err := s.EnsureTag(ctx, v, TagTypeGeneral)
		require.NoError(t, err)
		require.NoError(t, s.TagContent(ctx, tag.ID, rec.ID))
	}

	info, err := s.GetContentInfo(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, info.TagCount)
	assert.Contains(t, info.TagList, "vacation")
	assert.Contains(t, info.TagList, "pets")

	// Untagged content still appears, with an empty list.
	bare := insertFile(t, s, "/tmp/photos", "dog.png")
	info, err = s.GetContentInfo(ctx, bare.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, info.TagCount)
	assert.Equal(t, "", info.TagList)
}

func TestDeleteContentCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := insertFile(t, s, "/tmp/photos", "cat.png")
	tag, err := s.EnsureTag(ctx, "vacation", TagTypeGeneral)
	require.NoError(t, err)
	require.NoError(t, s.TagContent(ctx, tag.ID, rec.ID))
	_, err = s.CreateBookmark(ctx, rec.ID, "favorite")
	require.NoError(t, err)

	require.NoError(t, s.DeleteContent(ctx, rec.ID))

	_, err = s.GetContent(ctx, rec.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	marks, err := s.ListBookmarks(ctx)
	require.NoError(t, err)
	assert.Empty(t, marks)

	// The tag itself survives.
	_, err = s.GetTag(ctx, "vacation", TagTypeGeneral)
	assert.NoError(t, err)
}

// Embedded functions are exercised through SQL, not by calling the Go
// implementations, so registration on the pooled connections is covered.
func TestEmbeddedFunctionsAvailableInQueries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var hex string
	err := s.NewRaw(`SELECT hash_id('a', 'b')`).Scan(ctx, &hex)
	require.NoError(t, err)
	assert.Len(t, hex, 64)

	var replaced string
	err = s.NewRaw(`SELECT regexp_replace('cat.png', '(.*)\.png', '$1.jpg')`).Scan(ctx, &replaced)
	require.NoError(t, err)
	assert.Equal(t, "cat.jpg", replaced)

	// An invalid pattern yields NULL for the row, never a query error.
	var matched *int64
	err = s.NewRaw(`SELECT regexp_match('[', 'x')`).Scan(ctx, &matched)
	require.NoError(t, err)

	var conforms int64
	err = s.NewRaw(`SELECT conforms_to('image/png', 'image/*')`).Scan(ctx, &conforms)
	require.NoError(t, err)
	assert.Equal(t, int64(1), conforms)
}

func TestReconcilerLockIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	s1, err := Create(path)
	require.NoError(t, err)
	defer s1.Close()

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	require.NoError(t, s1.AcquireReconcilerLock())
	err = s2.AcquireReconcilerLock()
	assert.ErrorIs(t, err, common.ErrStoreLocked)

	require.NoError(t, s1.ReleaseReconcilerLock())
	assert.NoError(t, s2.AcquireReconcilerLock())
	require.NoError(t, s2.ReleaseReconcilerLock())
}

func TestQueueMembership(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	q, err := s.CreateQueue(ctx, "reading", "to-read", "")
	require.NoError(t, err)

	a := insertFile(t, s, "/tmp/docs", "a.pdf")
	b := insertFile(t, s, "/tmp/docs", "b.pdf")
	require.NoError(t, s.Enqueue(ctx, q.ID, a.ID, b.ID))
	// Re-enqueueing an existing member is a no-op.
	require.NoError(t, s.Enqueue(ctx, q.ID, a.ID))

	items, err := s.ListQueueItems(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Less(t, items[0].Position, items[1].Position)

	// Implicit membership through the queue tag.
	c := insertFile(t, s, "/tmp/docs", "c.pdf")
	tag, err := s.EnsureTag(ctx, "to-read", TagTypeQueue)
	require.NoError(t, err)
	require.NoError(t, s.TagContent(ctx, tag.ID, c.ID))

	members, err := s.QueueMemberInfos(ctx, q)
	require.NoError(t, err)
	assert.Len(t, members, 3)
}

func TestSavedQueryRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sq, err := s.CreateSavedQuery(ctx, "recent pets", `{"root":"/tmp/photos"}`)
	require.NoError(t, err)
	require.NotEmpty(t, sq.ID)

	got, err := s.GetSavedQuery(ctx, sq.ID)
	require.NoError(t, err)
	assert.Equal(t, "recent pets", got.Name)

	require.NoError(t, s.UpdateSavedQuery(ctx, sq.ID, "all pets", `{"root":"/tmp"}`))
	got, err = s.GetSavedQuery(ctx, sq.ID)
	require.NoError(t, err)
	assert.Equal(t, "all pets", got.Name)
	assert.Equal(t, `{"root":"/tmp"}`, got.Params)

	err = s.UpdateSavedQuery(ctx, uuid.NewString(), "x", "{}")
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestSharedDriverRoutesNotificationsPerStore(t *testing.T) {
	ctx := context.Background()
	s1 := newTestStore(t)
	s2 := newTestStore(t)
	drain(s1.Changes())
	drain(s2.Changes())

	// All stores in a process share one driver registration.
	count := 0
	for _, name := range sql.Drivers() {
		if strings.HasPrefix(name, "sqlite3_tagstore") {
			count++
		}
	}
	assert.Equal(t, 1, count)

	// A history write wakes its own store only.
	rec := insertFile(t, s1, "/tmp/photos", "cat.png")
	_, err := s1.ProposeLocationChange(ctx, rec.ID, "/tmp/archive")
	require.NoError(t, err)

	select {
	case <-s1.Changes():
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification on the writing store")
	}
	select {
	case <-s2.Changes():
		t.Fatal("notification leaked to an unrelated store")
	default:
	}

	// Closing one store leaves the other's notifications intact.
	other := insertFile(t, s2, "/tmp/photos", "dog.png")
	require.NoError(t, s1.Close())
	_, err = s2.ProposeLocationChange(ctx, other.ID, "/tmp/archive")
	require.NoError(t, err)
	select {
	case <-s2.Changes():
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification after sibling store closed")
	}
}
