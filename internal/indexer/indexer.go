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

// Package indexer brings filesystem trees under index management: each
// visited entry gets a stable identity attribute and an IndexRecord.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	ignore "github.com/sabhiram/go-gitignore"
	"github.com/sirupsen/logrus"

	"tagstore/internal/common"
	"tagstore/internal/identity"
	"tagstore/internal/storage"
)

// Result summarizes one indexing run.
type Result struct {
	Indexed int
	Skipped int // already indexed
	Ignored int // matched an ignore pattern
}

type Indexer struct {
	store  *storage.Store
	ids    *identity.Service
	ignore *ignore.GitIgnore
	log    *logrus.Entry
}

// New returns an indexer. patterns are gitignore-style lines; nil means
// nothing is ignored.
func New(store *storage.Store, ids *identity.Service, patterns []string) *Indexer {
	return &Indexer{
		store:  store,
		ids:    ids,
		ignore: ignore.CompileIgnoreLines(patterns...),
		log:    logrus.WithField("component", "indexer"),
	}
}

// IndexTree walks root depth-first and indexes every file and folder not
// matching an ignore pattern. The root folder itself is indexed too.
// Already-indexed entries are counted, not failed.
func (ix *Indexer) IndexTree(ctx context.Context, root string) (*Result, error) {
	root = common.NormalizePath(root)
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a folder", common.ErrInvalidPath, root)
	}

	result := &Result{}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		if rel != "." && ix.matchesIgnore(rel, d.IsDir()) {
			result.Ignored++
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		_, err = ix.IndexOne(ctx, path)
		switch {
		case errors.Is(err, common.ErrExists):
			result.Skipped++
			return nil
		case err != nil:
			return err
		default:
			result.Indexed++
			return nil
		}
	})
	if err != nil {
		return nil, err
	}
	ix.log.WithFields(logrus.Fields{
		"root":    root,
		"indexed": result.Indexed,
		"skipped": result.Skipped,
		"ignored": result.Ignored,
	}).Info("index run complete")
	return result, nil
}

// matchesIgnore tests a root-relative path against the ignore rules.
// Directory patterns like "cache/" only match paths carrying the trailing
// slash, so folders are tested in both forms.
func (ix *Indexer) matchesIgnore(rel string, isDir bool) bool {
	if ix.ignore.MatchesPath(rel) {
		return true
	}
	return isDir && ix.ignore.MatchesPath(rel+"/")
}

// IndexOne indexes a single path: assigns (or re-reads) the identity
// attribute and inserts the record. Returns ErrExists when the path or its
// ContentId is already indexed.
func (ix *Indexer) IndexOne(ctx context.Context, path string) (*storage.IndexRecord, error) {
	path = common.NormalizePath(path)
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	id, err := ix.ids.Assign(path)
	if err != nil {
		return nil, err
	}

	kind := storage.KindFile
	if info.IsDir() {
		kind = storage.KindFolder
	}
	rec := &storage.IndexRecord{
		ID:        id,
		Name:      common.BaseName(path),
		Location:  common.ParentPath(path),
		Path:      path,
		Kind:      kind,
		CreatedAt: time.Now(),
	}
	if err := ix.store.InsertContent(ctx, rec); err != nil {
		return nil, err
	}
	ix.log.WithFields(logrus.Fields{"path": path, "id": id}).Debug("indexed")
	return rec, nil
}

// Deindex removes a path from the index and strips its identity attribute.
// The attribute removal is best-effort; a path already gone from the
// filesystem still gets its record deleted.
func (ix *Indexer) Deindex(ctx context.Context, path string) error {
	path = common.NormalizePath(path)
	rec, err := ix.store.GetContentByPath(ctx, path)
	if err != nil {
		return err
	}
	if err := ix.store.DeleteContent(ctx, rec.ID); err != nil {
		return err
	}
	if err := ix.ids.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		ix.log.WithError(err).WithField("path", path).Warn("identity attribute not removed")
	}
	return nil
}
