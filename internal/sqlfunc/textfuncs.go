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
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Compiled patterns are cached per process; query plans evaluate the same
// pattern once per row.
var (
	regexCacheMu sync.RWMutex
	regexCache   = make(map[string]*regexp.Regexp)
)

// compilePattern returns a compiled regexp, or nil for invalid patterns.
// Invalid patterns are logged and never raised into the query engine.
func compilePattern(pattern string) *regexp.Regexp {
	regexCacheMu.RLock()
	re, ok := regexCache[pattern]
	regexCacheMu.RUnlock()
	if ok {
		return re
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		log.WithField("pattern", pattern).WithError(err).Warn("invalid regexp in query")
		re = nil
	}
	regexCacheMu.Lock()
	regexCache[pattern] = re
	regexCacheMu.Unlock()
	return re
}

// regexpMatch(value, pattern) -> bool
func regexpMatch(value, pattern any) bool {
	v, ok1 := asString(value)
	p, ok2 := asString(pattern)
	if !ok1 || !ok2 {
		return false
	}
	re := compilePattern(p)
	if re == nil {
		return false
	}
	return re.MatchString(v)
}

// regexpCapture(value, pattern, groupIndex) -> string or NULL
func regexpCapture(value, pattern, group any) any {
	v, ok1 := asString(value)
	p, ok2 := asString(pattern)
	g, ok3 := asInt(group)
	if !ok1 || !ok2 || !ok3 || g < 0 {
		return nil
	}
	re := compilePattern(p)
	if re == nil {
		return nil
	}
	m := re.FindStringSubmatch(v)
	if m == nil || int(g) >= len(m) {
		return nil
	}
	return m[g]
}

// regexpReplace(value, pattern, replacement) -> string or NULL.
// The replacement template supports $1-style capture references.
func regexpReplace(value, pattern, replacement any) any {
	v, ok1 := asString(value)
	p, ok2 := asString(pattern)
	r, ok3 := asString(replacement)
	if !ok1 || !ok2 || !ok3 {
		return nil
	}
	re := compilePattern(p)
	if re == nil {
		return nil
	}
	return re.ReplaceAllString(v, r)
}

// textConcat(...) -> string. NULL arguments contribute nothing.
func textConcat(vals ...any) string {
	var b strings.Builder
	for _, v := range vals {
		if v == nil {
			continue
		}
		if s, ok := asString(v); ok {
			b.WriteString(s)
		}
	}
	return b.String()
}

// textJoin(sep, ...) -> string. NULL arguments are skipped, not rendered
// as empty fields.
func textJoin(sep any, vals ...any) string {
	s, ok := asString(sep)
	if !ok {
		s = ""
	}
	var parts []string
	for _, v := range vals {
		if v == nil {
			continue
		}
		if str, ok := asString(v); ok {
			parts = append(parts, str)
		}
	}
	return strings.Join(parts, s)
}

// hashID(...) -> string: deterministic hex digest of the concatenated
// inputs, usable as a synthetic row identity in projections.
func hashID(vals ...any) string {
	h := sha256.New()
	for _, v := range vals {
		if v == nil {
			h.Write([]byte{0})
			continue
		}
		if s, ok := asString(v); ok {
			h.Write([]byte(s))
			h.Write([]byte{0})
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// concatGroup is the concat_group(value, sep) aggregate: joins all values
// in a group with the separator, in scan order.
type concatGroup struct {
	parts []string
	sep   string
}

func newConcatGroup() *concatGroup {
	return &concatGroup{}
}

// Step accumulates one row. NULL values are skipped so LEFT JOINs with no
// matches aggregate to the empty result.
func (g *concatGroup) Step(value, sep any) {
	if s, ok := asString(sep); ok {
		g.sep = s
	}
	if value == nil {
		return
	}
	if v, ok := asString(value); ok {
		g.parts = append(g.parts, v)
	}
}

func (g *concatGroup) Done() string {
	return strings.Join(g.parts, g.sep)
}
