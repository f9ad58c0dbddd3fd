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
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagstore/internal/common"
	"tagstore/internal/identity"
)

func TestProposeLocationChangeWritesSpeculatively(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := insertFile(t, s, "/tmp/photos", "cat.png")

	entry, err := s.ProposeLocationChange(ctx, rec.ID, "/tmp/archive")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, entry.Status)
	assert.Equal(t, ColumnLocation, entry.Column)
	assert.Equal(t, "/tmp/photos", entry.Previous)
	assert.Equal(t, "/tmp/archive", entry.Updated)

	// The index already reflects the proposed state.
	got, err := s.GetContent(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/archive/cat.png", got.Path)
}

func TestProposeRejectsUnresolvedEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := insertFile(t, s, "/tmp/photos", "cat.png")

	entry, err := s.ProposeLocationChange(ctx, rec.ID, "/tmp/archive")
	require.NoError(t, err)

	_, err = s.ProposeRename(ctx, rec.ID, "kitten.png")
	assert.ErrorIs(t, err, common.ErrPendingExists)

	// Resolution unblocks the next proposal.
	done, err := s.MarkSynced(ctx, entry.ID)
	require.NoError(t, err)
	require.True(t, done)

	next, err := s.ProposeRename(ctx, rec.ID, "kitten.png")
	require.NoError(t, err)
	assert.Equal(t, ColumnName, next.Column)
}

func TestProposeUnknownContent(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ProposeRename(context.Background(), identity.ContentID(uuid.NewString()), "x.png")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestProposeRenameRejectsPathSeparators(t *testing.T) {
	s := newTestStore(t)
	rec := insertFile(t, s, "/tmp/photos", "cat.png")
	_, err := s.ProposeRename(context.Background(), rec.ID, "sub/cat.png")
	assert.ErrorIs(t, err, common.ErrInvalidPath)
}

func TestMarkTransitionsAreGuarded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := insertFile(t, s, "/tmp/photos", "cat.png")
	entry, err := s.ProposeLocationChange(ctx, rec.ID, "/tmp/archive")
	require.NoError(t, err)

	done, err := s.MarkSynced(ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, done)

	// Re-processing a resolved entry is a no-op, not an error.
	done, err = s.MarkSynced(ctx, entry.ID)
	require.NoError(t, err)
	assert.False(t, done)

	done, err = s.MarkFailed(ctx, entry.ID, "boom")
	require.NoError(t, err)
	assert.False(t, done)

	got, err := s.GetHistoryEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSynced, got.Status)
	assert.Empty(t, got.Error)
}

func TestFailedEntryBlocksUntilReverted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := insertFile(t, s, "/tmp/photos", "cat.png")
	entry, err := s.ProposeLocationChange(ctx, rec.ID, "/tmp/archive")
	require.NoError(t, err)

	done, err := s.MarkFailed(ctx, entry.ID, "no such directory")
	require.NoError(t, err)
	require.True(t, done)

	// Still unresolved: failed but not yet reverted.
	_, err = s.ProposeRename(ctx, rec.ID, "kitten.png")
	assert.ErrorIs(t, err, common.ErrPendingExists)

	failed, err := s.FailedUnreverted(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.NoError(t, s.ApplyRevert(ctx, &failed[0]))

	// Reverting restores the index to the pre-proposal state.
	got, err := s.GetContent(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/photos/cat.png", got.Path)

	// The compensating record is born synced and points back.
	history, err := s.ListHistory(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	revert := history[0]
	assert.Equal(t, StatusSynced, revert.Status)
	assert.Equal(t, entry.ID, revert.RevertOf)
	assert.Equal(t, "/tmp/archive", revert.Previous)
	assert.Equal(t, "/tmp/photos", revert.Updated)

	// ApplyRevert is idempotent.
	require.NoError(t, s.ApplyRevert(ctx, &failed[0]))
	history, err = s.ListHistory(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	// The slate is clean for the next proposal.
	_, err = s.ProposeRename(ctx, rec.ID, "kitten.png")
	assert.NoError(t, err)
}

func TestMarkSyncedWithRewriteMovesDescendants(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	folder := &IndexRecord{
		ID:        identity.ContentID(uuid.NewString()),
		Name:      "photos",
		Location:  "/tmp",
		Path:      "/tmp/photos",
		Kind:      KindFolder,
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.InsertContent(ctx, folder))
	child := insertFile(t, s, "/tmp/photos", "cat.png")
	nested := insertFile(t, s, "/tmp/photos/raw", "cat.raw")
	sibling := insertFile(t, s, "/tmp/photoshoot", "other.png")

	entry, err := s.ProposeRename(ctx, folder.ID, "pictures")
	require.NoError(t, err)

	done, err := s.MarkSyncedWithRewrite(ctx, entry.ID, "/tmp/photos", "/tmp/pictures")
	require.NoError(t, err)
	require.True(t, done)

	got, err := s.GetContent(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/pictures/cat.png", got.Path)

	got, err = s.GetContent(ctx, nested.ID)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/pictures/raw", got.Location)
	assert.Equal(t, "/tmp/pictures/raw/cat.raw", got.Path)

	// Prefix match is path-segment aware.
	got, err = s.GetContent(ctx, sibling.ID)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/photoshoot/other.png", got.Path)

	// Re-processing does not rewrite twice.
	done, err = s.MarkSyncedWithRewrite(ctx, entry.ID, "/tmp/photos", "/tmp/pictures")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestMarkSyncedWithRewriteMultibytePrefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// The rewrite offset must count characters, not bytes, or a prefix
	// with multibyte runes strips its descendants' separators.
	folder := &IndexRecord{
		ID:        identity.ContentID(uuid.NewString()),
		Name:      "phötos",
		Location:  "/tmp",
		Path:      "/tmp/phötos",
		Kind:      KindFolder,
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.InsertContent(ctx, folder))
	child := insertFile(t, s, "/tmp/phötos", "cat.png")

	entry, err := s.ProposeRename(ctx, folder.ID, "pictures")
	require.NoError(t, err)

	done, err := s.MarkSyncedWithRewrite(ctx, entry.ID, "/tmp/phötos", "/tmp/pictures")
	require.NoError(t, err)
	require.True(t, done)

	got, err := s.GetContent(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/pictures", got.Location)
	assert.Equal(t, "/tmp/pictures/cat.png", got.Path)
}

func TestChangeNotificationOnHistoryWrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	drain(s.Changes())

	rec := insertFile(t, s, "/tmp/photos", "cat.png")
	entry, err := s.ProposeLocationChange(ctx, rec.ID, "/tmp/archive")
	require.NoError(t, err)

	select {
	case <-s.Changes():
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification after proposal")
	}

	// Status transitions notify too.
	_, err = s.MarkSynced(ctx, entry.ID)
	require.NoError(t, err)
	select {
	case <-s.Changes():
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification after transition")
	}
}

func drain(ch <-chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
