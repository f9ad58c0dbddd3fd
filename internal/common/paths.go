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

package common

import (
	"path/filepath"
	"strings"
)

// NormalizePath cleans a path and strips any trailing slash. Absolute paths
// stay absolute; "." collapses to the empty string.
func NormalizePath(path string) string {
	if path == "" {
		return ""
	}
	path = filepath.Clean(path)
	if path == "." {
		return ""
	}
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}

// JoinLocation joins a parent location and an entry name into a full path.
func JoinLocation(location, name string) string {
	return filepath.Join(location, name)
}

// ParentPath returns the parent directory of a path (empty for the root).
func ParentPath(path string) string {
	path = NormalizePath(path)
	if path == "" || path == "/" {
		return ""
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return ""
	}
	return dir
}

// BaseName returns the last component of a path.
func BaseName(path string) string {
	path = NormalizePath(path)
	if path == "" {
		return ""
	}
	return filepath.Base(path)
}

// IsUnder reports whether path lives at or below root.
func IsUnder(path, root string) bool {
	path = NormalizePath(path)
	root = NormalizePath(root)
	if root == "" {
		return true
	}
	return path == root || strings.HasPrefix(path, root+"/")
}

// ReplacePrefix rewrites the leading oldPrefix of path with newPrefix.
// Used when a folder rename invalidates the locations of everything below
// it. Returns path unchanged if it is not under oldPrefix.
func ReplacePrefix(path, oldPrefix, newPrefix string) string {
	path = NormalizePath(path)
	oldPrefix = NormalizePath(oldPrefix)
	newPrefix = NormalizePath(newPrefix)
	if path == oldPrefix {
		return newPrefix
	}
	if strings.HasPrefix(path, oldPrefix+"/") {
		return newPrefix + strings.TrimPrefix(path, oldPrefix)
	}
	return path
}
