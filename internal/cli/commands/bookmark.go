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
	"strconv"

	"github.com/spf13/cobra"
)

var bookmarkCmd = &cobra.Command{
	Use:   "bookmark",
	Short: "Manage bookmarks",
}

var bookmarkAddCmd = &cobra.Command{
	Use:   "add <path> [label]",
	Short: "Bookmark indexed content",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runBookmarkAdd,
}

var bookmarkListCmd = &cobra.Command{
	Use:   "list",
	Short: "List bookmarks",
	Args:  cobra.NoArgs,
	RunE:  runBookmarkList,
}

var bookmarkRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a bookmark by id",
	Args:  cobra.ExactArgs(1),
	RunE:  runBookmarkRm,
}

func init() {
	bookmarkCmd.AddCommand(bookmarkAddCmd, bookmarkListCmd, bookmarkRmCmd)
	rootCmd.AddCommand(bookmarkCmd)
}

func runBookmarkAdd(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	rec, err := resolveContent(cmd, s, args[0])
	if err != nil {
		return err
	}
	label := rec.Name
	if len(args) > 1 {
		label = args[1]
	}
	b, err := s.CreateBookmark(cmd.Context(), rec.ID, label)
	if err != nil {
		return err
	}
	fmt.Printf("Bookmark %d: %s\n", b.ID, rec.Path)
	return nil
}

func runBookmarkList(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := cmd.Context()

	marks, err := s.ListBookmarks(ctx)
	if err != nil {
		return err
	}
	for _, b := range marks {
		rec, err := s.GetContent(ctx, b.ContentID)
		if err != nil {
			fmt.Printf("%d\t%s\t(content gone)\n", b.ID, b.Label)
			continue
		}
		fmt.Printf("%d\t%s\t%s\n", b.ID, b.Label, rec.Path)
	}
	return nil
}

func runBookmarkRm(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("bookmark id %q: %w", args[0], err)
	}
	if err := s.DeleteBookmark(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Printf("Deleted bookmark %d\n", id)
	return nil
}
