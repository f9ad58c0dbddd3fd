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

package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/uptrace/bun"

	"tagstore/internal/common"
	"tagstore/internal/storage"
)

// Compiled is an executable query: a WHERE clause plus bound args over the
// content_info view. Compiled values are immutable and safe to cache and
// share across goroutines.
type Compiled struct {
	where string
	args  []any
	order string
}

const tagMatchSubquery = `EXISTS (
	SELECT 1 FROM content_tags ct
	JOIN tags t ON t.id = ct.tag_id
	WHERE ct.content_id = ci.id AND t.value = ? AND t.tag_type IN (%s)
)`

// Compile turns a parameter bundle into an executable query. Malformed
// bundles (empty filter values, unknown sort keys) return ErrBadFilter.
func Compile(p IndexQueryParameters) (*Compiled, error) {
	var (
		conds []string
		args  []any
	)

	if root := common.NormalizePath(p.Root); root != "" {
		if p.Recursive {
			conds = append(conds, `(ci.location = ? OR ci.location LIKE ? || '/%')`)
			args = append(args, root, root)
		} else {
			conds = append(conds, `ci.location = ?`)
			args = append(args, root)
		}
	}

	switch p.Visibility {
	case VisibilityAll, "":
	case VisibilityVisible:
		conds = append(conds, `ci.name NOT LIKE '.%'`)
	case VisibilityHidden:
		conds = append(conds, `ci.name LIKE '.%'`)
	default:
		return nil, fmt.Errorf("%w: visibility %q", common.ErrBadFilter, p.Visibility)
	}

	if p.Tags.Enabled && len(p.Tags.Values) > 0 {
		tagConds, tagArgs, err := compileTagFilter(p.Tags, p.Domain)
		if err != nil {
			return nil, err
		}
		conds = append(conds, tagConds...)
		args = append(args, tagArgs...)
	}

	if p.Strings.Enabled && len(p.Strings.Values) > 0 {
		cond, sArgs, err := compileStringFilter(p.Strings)
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
		args = append(args, sArgs...)
	}

	order, err := orderClause(p.Sort)
	if err != nil {
		return nil, err
	}

	where := "1=1"
	if len(conds) > 0 {
		where = strings.Join(conds, " AND ")
	}
	return &Compiled{where: where, args: args, order: order}, nil
}

// compileTagFilter emits one predicate per exclusive entry (always
// conjunctive) and one combined predicate for the inclusive subset, whose
// internal combinator is the configured operator. Entries are evaluated in
// domain order first, insertion order within a domain.
func compileTagFilter(p TagFilterParam, domain storage.TagDomain) ([]string, []any, error) {
	values := make([]TagFilterValue, len(p.Values))
	copy(values, p.Values)
	sort.SliceStable(values, func(i, j int) bool {
		return values[i].Type.Domain() < values[j].Type.Domain()
	})

	// Each predicate keeps its own args so the bind order always matches
	// the order the conditions end up joined in: exclusive entries first,
	// then the combined inclusive group.
	var (
		conds         []string
		args          []any
		inclusive     []string
		inclusiveArgs []any
	)
	for _, v := range values {
		if v.Value == "" {
			return nil, nil, fmt.Errorf("%w: empty tag filter value", common.ErrBadFilter)
		}
		types := candidateTypes(v.Type, domain)
		if len(types) == 0 {
			return nil, nil, fmt.Errorf("%w: tag type %q outside domain %q", common.ErrBadFilter, v.Type, domain)
		}
		sub := fmt.Sprintf(tagMatchSubquery, placeholders(len(types)))
		entryArgs := make([]any, 0, len(types)+1)
		entryArgs = append(entryArgs, v.Value)
		for _, t := range types {
			entryArgs = append(entryArgs, string(t))
		}
		switch v.Effect {
		case EffectExclusive:
			conds = append(conds, "NOT "+sub)
			args = append(args, entryArgs...)
		case EffectInclusive:
			inclusive = append(inclusive, sub)
			inclusiveArgs = append(inclusiveArgs, entryArgs...)
		default:
			return nil, nil, fmt.Errorf("%w: effect %q", common.ErrBadFilter, v.Effect)
		}
	}
	if len(inclusive) > 0 {
		sep := " AND "
		if p.Operator == OperatorOr {
			sep = " OR "
		}
		conds = append(conds, "("+strings.Join(inclusive, sep)+")")
		args = append(args, inclusiveArgs...)
	}
	return conds, args, nil
}

// candidateTypes narrows a filter entry's tag type by the requested domain.
// An untyped entry matches every type of the domain, or every type at all
// when no domain is set.
func candidateTypes(typ storage.TagType, domain storage.TagDomain) []storage.TagType {
	if typ != "" {
		if domain != "" && typ.Domain() != domain {
			return nil
		}
		return []storage.TagType{typ}
	}
	if domain != "" {
		return storage.TypesForDomain(domain)
	}
	all := make([]storage.TagType, 0)
	for _, d := range []storage.TagDomain{
		storage.DomainDescriptive,
		storage.DomainAttribution,
		storage.DomainCreation,
		storage.DomainQueue,
	} {
		all = append(all, storage.TypesForDomain(d)...)
	}
	return all
}

func compileStringFilter(p StringFilterParam) (string, []any, error) {
	var (
		parts []string
		args  []any
	)
	for _, v := range p.Values {
		if v == "" {
			return "", nil, fmt.Errorf("%w: empty string filter value", common.ErrBadFilter)
		}
		parts = append(parts, `ci.name LIKE '%' || ? || '%'`)
		args = append(args, v)
	}
	sep := " AND "
	if p.Operator == OperatorOr {
		sep = " OR "
	}
	return "(" + strings.Join(parts, sep) + ")", args, nil
}

func orderClause(key SortKey) (string, error) {
	switch key {
	case SortByName, "":
		return "ci.name, ci.path", nil
	case SortByPath:
		return "ci.path", nil
	case SortByCreated:
		return "ci.created_at DESC, ci.path", nil
	case SortByTags:
		return "ci.tag_count DESC, ci.path", nil
	default:
		return "", fmt.Errorf("%w: sort key %q", common.ErrBadFilter, key)
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// Count returns the number of matching rows.
func (c *Compiled) Count(ctx context.Context, idb bun.IDB) (int, error) {
	var n int
	q := fmt.Sprintf(`SELECT COUNT(*) FROM content_info ci WHERE %s`, c.where)
	err := idb.NewRaw(q, c.args...).Scan(ctx, &n)
	return n, err
}

// Fetch returns one page of matching rows joined with their aggregated tag
// data. limit <= 0 means no limit.
func (c *Compiled) Fetch(ctx context.Context, idb bun.IDB, limit, offset int) ([]storage.IndexInfoRecord, error) {
	q := fmt.Sprintf(`SELECT ci.* FROM content_info ci WHERE %s ORDER BY %s`, c.where, c.order)
	args := append([]any{}, c.args...)
	if limit > 0 {
		q += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}

	var rows []storage.ContentInfoRow
	if err := idb.NewRaw(q, args...).Scan(ctx, &rows); err != nil {
		return nil, err
	}
	records := make([]storage.IndexInfoRecord, len(rows))
	for i := range rows {
		records[i] = rows[i].ToInfo()
	}
	return records, nil
}
