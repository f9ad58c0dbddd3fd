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

package sqlfunc

import (
	"mime"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// maxContentsSize caps file_contents reads. Larger files yield NULL rather
// than dragging megabytes through a query plan.
const maxContentsSize = 1 << 20

// fileExists(path) -> bool
func fileExists(path any) bool {
	p, ok := asString(path)
	if !ok {
		return false
	}
	_, err := os.Stat(p)
	return err == nil
}

// fileExistsIn(folder, name) -> bool
func fileExistsIn(folder, name any) bool {
	f, ok1 := asString(folder)
	n, ok2 := asString(name)
	if !ok1 || !ok2 {
		return false
	}
	_, err := os.Stat(filepath.Join(f, n))
	return err == nil
}

// fileSize(path) -> int or NULL
func fileSize(path any) any {
	p, ok := asString(path)
	if !ok {
		return nil
	}
	info, err := os.Stat(p)
	if err != nil {
		log.WithField("path", p).WithError(err).Debug("file_size: stat failed")
		return nil
	}
	return info.Size()
}

// fileContentType(path) -> string. Folders report "inode/directory";
// unknown extensions fall back to application/octet-stream.
func fileContentType(path any) any {
	p, ok := asString(path)
	if !ok {
		return nil
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil
	}
	if info.IsDir() {
		return "inode/directory"
	}
	if ct := mime.TypeByExtension(filepath.Ext(p)); ct != "" {
		// Strip charset parameters; callers compare bare types.
		if i := strings.IndexByte(ct, ';'); i >= 0 {
			ct = strings.TrimSpace(ct[:i])
		}
		return ct
	}
	return "application/octet-stream"
}

// conformsTo(typeA, typeB) -> bool. A content type conforms to another when
// it equals it, or typeB names its major class ("image/png" conforms to
// "image" and to "image/*").
func conformsTo(typeA, typeB any) bool {
	a, ok1 := asString(typeA)
	b, ok2 := asString(typeB)
	if !ok1 || !ok2 {
		return false
	}
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	major := a
	if i := strings.IndexByte(a, '/'); i >= 0 {
		major = a[:i]
	}
	return b == major || b == major+"/*"
}

// fileConformsTo(path, type) -> bool
func fileConformsTo(path, typ any) bool {
	ct := fileContentType(path)
	if ct == nil {
		return false
	}
	return conformsTo(ct, typ)
}

// xattrGet(path, key) -> string or NULL
func xattrGet(path, key any) any {
	p, ok1 := asString(path)
	k, ok2 := asString(key)
	if !ok1 || !ok2 {
		return nil
	}
	buf := make([]byte, 256)
	n, err := unix.Getxattr(p, k, buf)
	if err == unix.ERANGE {
		sz, err2 := unix.Getxattr(p, k, nil)
		if err2 != nil || sz < 0 {
			return nil
		}
		buf = make([]byte, sz)
		n, err = unix.Getxattr(p, k, buf)
	}
	if err != nil {
		return nil
	}
	return string(buf[:n])
}

// fileContents(path) -> blob or NULL
func fileContents(path any) any {
	p, ok := asString(path)
	if !ok {
		return nil
	}
	info, err := os.Stat(p)
	if err != nil || info.IsDir() || info.Size() > maxContentsSize {
		return nil
	}
	data, err := os.ReadFile(p)
	if err != nil {
		log.WithField("path", p).WithError(err).Debug("file_contents: read failed")
		return nil
	}
	return data
}
