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

// Package query builds SQL predicates from composable, typed filter
// parameters. Params are plain values: every transform returns a new param
// and never mutates the receiver, so callers can keep old versions for
// undo or compare params with ==-style equality via Key.
package query

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"tagstore/internal/storage"
)

// FilterOperator selects how values of the same effect combine.
type FilterOperator string

const (
	OperatorAnd FilterOperator = "AND"
	OperatorOr  FilterOperator = "OR"
)

// Toggled returns the other operator.
func (o FilterOperator) Toggled() FilterOperator {
	if o == OperatorAnd {
		return OperatorOr
	}
	return OperatorAnd
}

// FilterEffect is the role a tag plays in a filter set.
type FilterEffect string

const (
	EffectInclusive FilterEffect = "inclusive"
	EffectExclusive FilterEffect = "exclusive"
)

// Inverted flips inclusive and exclusive.
func (e FilterEffect) Inverted() FilterEffect {
	if e == EffectInclusive {
		return EffectExclusive
	}
	return EffectInclusive
}

// TagFilterValue is one (tag, effect) entry in a tag filter.
type TagFilterValue struct {
	Value  string          `json:"value"`
	Type   storage.TagType `json:"type"`
	Effect FilterEffect    `json:"effect"`
}

// TagFilterParam is an ordered list of tag filter values plus the operator
// governing the inclusive subset. Exclusive entries always combine
// conjunctively; the operator has no bearing on them.
type TagFilterParam struct {
	Values   []TagFilterValue `json:"values"`
	Operator FilterOperator   `json:"operator"`
	Enabled  bool             `json:"enabled"`
}

// NewTagFilter returns an enabled, empty AND filter.
func NewTagFilter() TagFilterParam {
	return TagFilterParam{Operator: OperatorAnd, Enabled: true}
}

func (p TagFilterParam) cloneValues() []TagFilterValue {
	out := make([]TagFilterValue, len(p.Values))
	copy(out, p.Values)
	return out
}

// Appending returns a copy with v added at the end. Appending a (value,
// type) pair already present replaces its effect in place instead of
// duplicating it.
func (p TagFilterParam) Appending(v TagFilterValue) TagFilterParam {
	values := p.cloneValues()
	for i := range values {
		if values[i].Value == v.Value && values[i].Type == v.Type {
			values[i].Effect = v.Effect
			p.Values = values
			return p
		}
	}
	p.Values = append(values, v)
	return p
}

// Remove returns a copy without the given (value, type) entry.
func (p TagFilterParam) Remove(value string, typ storage.TagType) TagFilterParam {
	values := make([]TagFilterValue, 0, len(p.Values))
	for _, v := range p.Values {
		if v.Value == value && v.Type == typ {
			continue
		}
		values = append(values, v)
	}
	p.Values = values
	return p
}

// Replace returns a copy with the old entry swapped for v at the same
// position. If the old entry is absent, v is appended.
func (p TagFilterParam) Replace(oldValue string, oldType storage.TagType, v TagFilterValue) TagFilterParam {
	values := p.cloneValues()
	for i := range values {
		if values[i].Value == oldValue && values[i].Type == oldType {
			values[i] = v
			p.Values = values
			return p
		}
	}
	p.Values = append(values, v)
	return p
}

// InvertFilter returns a copy with the given entry's effect flipped,
// preserving its position. A missing entry is a no-op.
func (p TagFilterParam) InvertFilter(value string, typ storage.TagType) TagFilterParam {
	values := p.cloneValues()
	for i := range values {
		if values[i].Value == value && values[i].Type == typ {
			values[i].Effect = values[i].Effect.Inverted()
			break
		}
	}
	p.Values = values
	return p
}

// ToggleOperator returns a copy with the operator flipped.
func (p TagFilterParam) ToggleOperator() TagFilterParam {
	p.Operator = p.Operator.Toggled()
	return p
}

// WithEnabled returns a copy with the enabled flag set.
func (p TagFilterParam) WithEnabled(enabled bool) TagFilterParam {
	p.Enabled = enabled
	return p
}

// Key is a canonical encoding of the param's functional fields. Two params
// built independently from the same filters, operator, and enabled flag
// produce identical keys.
func (p TagFilterParam) Key() string {
	var b strings.Builder
	fmt.Fprintf(&b, "tags|%s|%t", p.Operator, p.Enabled)
	for _, v := range p.Values {
		fmt.Fprintf(&b, "|%s\x00%s\x00%s", v.Value, v.Type, v.Effect)
	}
	return b.String()
}

// StringFilterParam matches substrings against the content name.
type StringFilterParam struct {
	Values   []string       `json:"values"`
	Operator FilterOperator `json:"operator"`
	Enabled  bool           `json:"enabled"`
}

// NewStringFilter returns an enabled, empty AND filter.
func NewStringFilter() StringFilterParam {
	return StringFilterParam{Operator: OperatorAnd, Enabled: true}
}

// Appending returns a copy with v added; duplicates are skipped.
func (p StringFilterParam) Appending(v string) StringFilterParam {
	for _, existing := range p.Values {
		if existing == v {
			return p
		}
	}
	values := make([]string, len(p.Values), len(p.Values)+1)
	copy(values, p.Values)
	p.Values = append(values, v)
	return p
}

// Remove returns a copy without v.
func (p StringFilterParam) Remove(v string) StringFilterParam {
	values := make([]string, 0, len(p.Values))
	for _, existing := range p.Values {
		if existing != v {
			values = append(values, existing)
		}
	}
	p.Values = values
	return p
}

// ToggleOperator returns a copy with the operator flipped.
func (p StringFilterParam) ToggleOperator() StringFilterParam {
	p.Operator = p.Operator.Toggled()
	return p
}

// WithEnabled returns a copy with the enabled flag set.
func (p StringFilterParam) WithEnabled(enabled bool) StringFilterParam {
	p.Enabled = enabled
	return p
}

// Key is the canonical encoding of the param's functional fields.
func (p StringFilterParam) Key() string {
	var b strings.Builder
	fmt.Fprintf(&b, "strings|%s|%t", p.Operator, p.Enabled)
	for _, v := range p.Values {
		b.WriteString("|")
		b.WriteString(v)
	}
	return b.String()
}

// SortKey orders query results.
type SortKey string

const (
	SortByName    SortKey = "name"
	SortByPath    SortKey = "path"
	SortByCreated SortKey = "created"
	SortByTags    SortKey = "tags"
)

// Visibility filters dot-prefixed names.
type Visibility string

const (
	VisibilityAll     Visibility = "all"
	VisibilityVisible Visibility = "visible"
	VisibilityHidden  Visibility = "hidden"
)

// IndexQueryParameters is the full query bundle handed to Compile.
type IndexQueryParameters struct {
	Root       string            `json:"root"`
	Recursive  bool              `json:"recursive"`
	Tags       TagFilterParam    `json:"tags"`
	Strings    StringFilterParam `json:"strings"`
	Domain     storage.TagDomain `json:"domain,omitempty"`
	Sort       SortKey           `json:"sort,omitempty"`
	Visibility Visibility        `json:"visibility,omitempty"`
}

// Key is the canonical encoding of the whole bundle.
func (p IndexQueryParameters) Key() string {
	return fmt.Sprintf("query|%s|%t|%s|%s|%s|%s|%s",
		p.Root, p.Recursive, p.Domain, p.Sort, p.Visibility,
		p.Tags.Key(), p.Strings.Key())
}

// Hash is the cache key for compiled results.
func (p IndexQueryParameters) Hash() string {
	sum := sha256.Sum256([]byte(p.Key()))
	return hex.EncodeToString(sum[:])
}
