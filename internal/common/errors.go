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
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrExists        = errors.New("already exists")
	ErrInvalidPath   = errors.New("invalid path")
	ErrNotIndexed    = errors.New("path is not indexed")
	ErrStoreLocked   = errors.New("store is locked by another process")
	ErrAttrRead      = errors.New("identity attribute read failed")
	ErrAttrWrite     = errors.New("identity attribute write failed")
	ErrAttrDecode    = errors.New("identity attribute is not a valid id")
	ErrPendingExists = errors.New("a change is already pending for this content")
	ErrBadFilter     = errors.New("malformed filter parameter")
)

// ReconcileError carries the OS-level message of a failed filesystem
// operation. It is recorded into the history entry's failed state and is
// never returned to the original proposer.
type ReconcileError struct {
	EntryID int64
	Op      string // "rename"
	Err     error
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("reconcile %s (entry %d): %v", e.Op, e.EntryID, e.Err)
}

func (e *ReconcileError) Unwrap() error {
	return e.Err
}
