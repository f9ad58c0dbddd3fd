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

// Package identity assigns and retrieves stable content identifiers.
//
// A ContentID lives in one extended attribute on the file or folder itself,
// so it survives renames and moves that happen outside the index. Identity
// creation is always explicit: Retrieve never fabricates an id for a path
// that does not carry one.
package identity

import (
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"tagstore/internal/common"
)

// AttrName is the fixed extended attribute key holding the ContentID.
const AttrName = "user.tagstore.id"

// ContentID is the stable identifier for one piece of indexed content,
// independent of its current path.
type ContentID string

// Service reads and writes identity attributes. The zero value is not
// usable; construct with NewService.
type Service struct {
	attr string
}

// NewService returns an identity service using the default attribute key.
func NewService() *Service {
	return &Service{attr: AttrName}
}

// Assign ensures path carries a ContentID and returns it. If the path is
// already identified the existing id is returned unchanged; a fresh id is
// generated and written otherwise.
func (s *Service) Assign(path string) (ContentID, error) {
	existing, err := s.Retrieve(path)
	if err != nil {
		return "", err
	}
	if existing != "" {
		return existing, nil
	}

	id := ContentID(uuid.NewString())
	if err := unix.Setxattr(path, s.attr, []byte(id), 0); err != nil {
		return "", fmt.Errorf("%w: setxattr %s on %s: %v", common.ErrAttrWrite, s.attr, path, err)
	}
	log.WithFields(log.Fields{"path": path, "id": id}).Debug("assigned content id")
	return id, nil
}

// Retrieve reads the ContentID from path. A path that carries no identity
// attribute yields ("", nil); I/O failures yield a non-nil error.
func (s *Service) Retrieve(path string) (ContentID, error) {
	buf := make([]byte, 64)
	n, err := unix.Getxattr(path, s.attr, buf)
	if err != nil {
		if isAttrAbsent(err) {
			return "", nil
		}
		if err == unix.ERANGE {
			return "", fmt.Errorf("%w: oversized value at %s", common.ErrAttrDecode, path)
		}
		return "", fmt.Errorf("%w: getxattr %s on %s: %v", common.ErrAttrRead, s.attr, path, err)
	}

	id := string(buf[:n])
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("%w: %q at %s", common.ErrAttrDecode, id, path)
	}
	return ContentID(id), nil
}

// Remove strips the identity attribute from path. Called only on explicit
// de-indexing. Removing an attribute that is already absent is a no-op.
func (s *Service) Remove(path string) error {
	if err := unix.Removexattr(path, s.attr); err != nil {
		if isAttrAbsent(err) {
			return nil
		}
		return fmt.Errorf("%w: removexattr %s on %s: %v", common.ErrAttrWrite, s.attr, path, err)
	}
	return nil
}
