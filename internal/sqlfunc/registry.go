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

// Package sqlfunc is the embedded function library callable from compiled
// query text.
//
// Every function is total over its declared argument types: absent or
// mistyped arguments yield NULL (or false for predicates), never an
// engine-level error, because these run per-row inside a query plan where
// one bad row must not abort the whole query. Failures are logged at debug
// level and swallowed.
package sqlfunc

import (
	"fmt"
	"reflect"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// Function declares one embedded scalar function: its SQL name, arity
// (NArgs < 0 means variadic), purity, and executable body.
type Function struct {
	Name  string
	NArgs int
	Pure  bool
	Impl  any
}

// Registry returns the full scalar function table. The set is fixed at
// startup; Validate checks it before any connection registers it.
func Registry() []Function {
	return []Function{
		{Name: "file_exists", NArgs: 1, Pure: false, Impl: fileExists},
		{Name: "file_exists_in", NArgs: 2, Pure: false, Impl: fileExistsIn},
		{Name: "file_size", NArgs: 1, Pure: false, Impl: fileSize},
		{Name: "file_content_type", NArgs: 1, Pure: false, Impl: fileContentType},
		{Name: "conforms_to", NArgs: 2, Pure: true, Impl: conformsTo},
		{Name: "file_conforms_to", NArgs: 2, Pure: false, Impl: fileConformsTo},
		{Name: "xattr", NArgs: 2, Pure: false, Impl: xattrGet},
		{Name: "file_contents", NArgs: 1, Pure: false, Impl: fileContents},
		{Name: "regexp_match", NArgs: 2, Pure: true, Impl: regexpMatch},
		{Name: "regexp_capture", NArgs: 3, Pure: true, Impl: regexpCapture},
		{Name: "regexp_replace", NArgs: 3, Pure: true, Impl: regexpReplace},
		{Name: "text_concat", NArgs: -1, Pure: true, Impl: textConcat},
		{Name: "text_join", NArgs: -1, Pure: true, Impl: textJoin},
		{Name: "hash_id", NArgs: -1, Pure: true, Impl: hashID},
	}
}

// Validate checks the registry for duplicate names and non-function bodies.
// Called once at store-open time so a bad table fails fast instead of at
// first query.
func Validate() error {
	seen := make(map[string]bool)
	for _, f := range Registry() {
		if f.Name == "" {
			return fmt.Errorf("embedded function with empty name")
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate embedded function %q", f.Name)
		}
		seen[f.Name] = true
		t := reflect.TypeOf(f.Impl)
		if t == nil || t.Kind() != reflect.Func {
			return fmt.Errorf("embedded function %q has a non-function body", f.Name)
		}
		if f.NArgs >= 0 && t.NumIn() != f.NArgs {
			return fmt.Errorf("embedded function %q declares %d args but takes %d", f.Name, f.NArgs, t.NumIn())
		}
		if f.NArgs < 0 && !t.IsVariadic() {
			return fmt.Errorf("embedded function %q declared variadic but is not", f.Name)
		}
	}
	return nil
}

// RegisterAll installs every scalar function and the concat_group aggregate
// on one SQLite connection. Called from the driver's ConnectHook so every
// pooled connection carries the full library.
func RegisterAll(conn *sqlite3.SQLiteConn) error {
	for _, f := range Registry() {
		if err := conn.RegisterFunc(f.Name, f.Impl, f.Pure); err != nil {
			return fmt.Errorf("register %s: %w", f.Name, err)
		}
	}
	if err := conn.RegisterAggregator("concat_group", newConcatGroup, true); err != nil {
		return fmt.Errorf("register concat_group: %w", err)
	}
	return nil
}
