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
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"tagstore/internal/identity"
	"tagstore/internal/indexer"
)

var indexCmd = &cobra.Command{
	Use:   "index <folder>",
	Short: "Bring a folder tree under index management",
	Long: `Walks the folder, assigns each file and subfolder a stable identity
attribute, and records them in the store. Re-running on the same tree is
safe: already-indexed entries are skipped. Patterns from the profile's
ignore list are not indexed.`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

var deindexCmd = &cobra.Command{
	Use:   "deindex <path>",
	Short: "Remove a path from the index",
	Long: `Deletes the index record, tag associations, queue items, and bookmarks
for the path and strips its identity attribute. The file itself is not
touched.`,
	Args: cobra.ExactArgs(1),
	RunE: runDeindex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(deindexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	root, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ix := indexer.New(s, identity.NewService(), currentProfile.Ignores)
	result, err := ix.IndexTree(cmd.Context(), root)
	if err != nil {
		return err
	}
	fmt.Printf("Indexed %d entries (%d already indexed, %d ignored)\n",
		result.Indexed, result.Skipped, result.Ignored)
	return nil
}

func runDeindex(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ix := indexer.New(s, identity.NewService(), nil)
	if err := ix.Deindex(cmd.Context(), path); err != nil {
		return err
	}
	fmt.Printf("Removed %s from the index\n", path)
	return nil
}
