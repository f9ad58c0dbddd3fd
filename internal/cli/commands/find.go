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

package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tagstore/internal/query"
	"tagstore/internal/storage"
)

var findFlags struct {
	root      string
	recursive bool
	tags      []string
	strings   []string
	useOr     bool
	domain    string
	sortKey   string
	hidden    bool
	count     bool
	limit     int
	offset    int
	saveAs    string
	savedID   string
}

var findCmd = &cobra.Command{
	Use:   "find",
	Short: "Query the index with tag and name filters",
	Long: `Queries indexed content. Tag filters are inclusive by default; prefix a
value with '!' to exclude it. A 'type:value' form pins a filter to one tag
type (for example artist:coltrane). Inclusive filters combine with AND
unless --any is given; exclusions always apply to every result.

Saved queries: --save stores the current filter bundle under a name,
--saved re-runs a stored bundle by id.`,
	Args: cobra.NoArgs,
	RunE: runFind,
}

// One compiler per process; repeated --saved runs and the count+fetch pair
// of a single invocation reuse the compilation.
var queryCompiler = query.NewCompiler(0)

func init() {
	f := findCmd.Flags()
	f.StringVar(&findFlags.root, "root", "", "restrict results to this folder")
	f.BoolVarP(&findFlags.recursive, "recursive", "r", true, "include subfolders of --root")
	f.StringArrayVarP(&findFlags.tags, "tag", "t", nil, "tag filter ('value', '!value', or 'type:value')")
	f.StringArrayVarP(&findFlags.strings, "name", "n", nil, "substring filter on the content name")
	f.BoolVar(&findFlags.useOr, "any", false, "match any inclusive filter instead of all")
	f.StringVar(&findFlags.domain, "domain", "", "restrict tag matching to one domain")
	f.StringVar(&findFlags.sortKey, "sort", "name", "sort key: name, path, created, tags")
	f.BoolVar(&findFlags.hidden, "hidden", false, "include dot-prefixed names")
	f.BoolVar(&findFlags.count, "count", false, "print the match count only")
	f.IntVar(&findFlags.limit, "limit", 0, "page size (0 = everything)")
	f.IntVar(&findFlags.offset, "offset", 0, "page offset")
	f.StringVar(&findFlags.saveAs, "save", "", "save this query under a name")
	f.StringVar(&findFlags.savedID, "saved", "", "run a saved query by id")
	rootCmd.AddCommand(findCmd)
}

// parseTagFilter turns CLI tag arguments into a filter param.
func parseTagFilter(args []string, operator query.FilterOperator) query.TagFilterParam {
	p := query.NewTagFilter()
	if operator == query.OperatorOr {
		p = p.ToggleOperator()
	}
	for _, arg := range args {
		effect := query.EffectInclusive
		if strings.HasPrefix(arg, "!") {
			effect = query.EffectExclusive
			arg = arg[1:]
		}
		var typ storage.TagType
		if typeName, value, ok := strings.Cut(arg, ":"); ok {
			typ = storage.TagType(typeName)
			arg = value
		}
		p = p.Appending(query.TagFilterValue{Value: arg, Type: typ, Effect: effect})
	}
	return p
}

func buildParameters() query.IndexQueryParameters {
	strFilter := query.NewStringFilter()
	for _, v := range findFlags.strings {
		strFilter = strFilter.Appending(v)
	}
	operator := query.OperatorAnd
	if findFlags.useOr {
		operator = query.OperatorOr
	}
	visibility := query.VisibilityVisible
	if findFlags.hidden {
		visibility = query.VisibilityAll
	}
	return query.IndexQueryParameters{
		Root:       findFlags.root,
		Recursive:  findFlags.recursive,
		Tags:       parseTagFilter(findFlags.tags, operator),
		Strings:    strFilter,
		Domain:     storage.TagDomain(findFlags.domain),
		Sort:       query.SortKey(findFlags.sortKey),
		Visibility: visibility,
	}
}

func runFind(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := cmd.Context()

	var params query.IndexQueryParameters
	if findFlags.savedID != "" {
		saved, err := s.GetSavedQuery(ctx, findFlags.savedID)
		if err != nil {
			return fmt.Errorf("saved query %q: %w", findFlags.savedID, err)
		}
		if err := json.Unmarshal([]byte(saved.Params), &params); err != nil {
			return fmt.Errorf("saved query %q: %w", findFlags.savedID, err)
		}
	} else {
		params = buildParameters()
	}

	if findFlags.saveAs != "" {
		data, err := json.Marshal(params)
		if err != nil {
			return err
		}
		saved, err := s.CreateSavedQuery(ctx, findFlags.saveAs, string(data))
		if err != nil {
			return err
		}
		fmt.Printf("Saved query %q (%s)\n", saved.Name, saved.ID)
	}

	compiled, err := queryCompiler.Compile(params)
	if err != nil {
		return err
	}

	if findFlags.count {
		n, err := compiled.Count(ctx, s.DB)
		if err != nil {
			return err
		}
		fmt.Println(n)
		return nil
	}

	records, err := compiled.Fetch(ctx, s.DB, findFlags.limit, findFlags.offset)
	if err != nil {
		return err
	}
	for _, r := range records {
		if r.TagList != "" {
			fmt.Printf("%s\t[%s]\n", r.Path, r.TagList)
		} else {
			fmt.Println(r.Path)
		}
	}
	return nil
}
