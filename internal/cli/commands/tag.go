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

	"github.com/spf13/cobra"

	"tagstore/internal/storage"
)

var tagType string

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Manage tags and tag assignments",
}

var tagAddCmd = &cobra.Command{
	Use:   "add <path> <value>...",
	Short: "Tag indexed content",
	Long: `Assigns one or more tag values to the content at path, creating the tags
when needed. Alias values resolve to their canonical tag before
assignment.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runTagAdd,
}

var tagRmCmd = &cobra.Command{
	Use:   "rm <path> <value>...",
	Short: "Remove tags from indexed content",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runTagRm,
}

var tagRenameCmd = &cobra.Command{
	Use:   "rename <old-value> <new-value>",
	Short: "Rename a tag, keeping its assignments",
	Args:  cobra.ExactArgs(2),
	RunE:  runTagRename,
}

var tagAliasCmd = &cobra.Command{
	Use:   "alias <alias-value> <canonical-value>",
	Short: "Create an alias for an existing tag",
	Args:  cobra.ExactArgs(2),
	RunE:  runTagAlias,
}

var tagListCmd = &cobra.Command{
	Use:   "list [domain]",
	Short: "List tags, optionally restricted to a domain",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTagList,
}

func init() {
	tagCmd.PersistentFlags().StringVar(&tagType, "type", string(storage.TagTypeGeneral), "tag type")
	tagCmd.AddCommand(tagAddCmd, tagRmCmd, tagRenameCmd, tagAliasCmd, tagListCmd)
	rootCmd.AddCommand(tagCmd)
}

func runTagAdd(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := cmd.Context()

	rec, err := resolveContent(cmd, s, args[0])
	if err != nil {
		return err
	}
	typ := storage.TagType(tagType)
	for _, value := range args[1:] {
		tag, err := s.ResolveTag(ctx, value, typ)
		if err != nil {
			tag, err = s.EnsureTag(ctx, value, typ)
			if err != nil {
				return err
			}
		}
		if err := s.TagContent(ctx, tag.ID, rec.ID); err != nil {
			return err
		}
	}
	fmt.Printf("Tagged %s with %d value(s)\n", rec.Path, len(args)-1)
	return nil
}

func runTagRm(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := cmd.Context()

	rec, err := resolveContent(cmd, s, args[0])
	if err != nil {
		return err
	}
	typ := storage.TagType(tagType)
	for _, value := range args[1:] {
		tag, err := s.ResolveTag(ctx, value, typ)
		if err != nil {
			return fmt.Errorf("tag %q: %w", value, err)
		}
		if err := s.UntagContent(ctx, tag.ID, rec.ID); err != nil {
			return err
		}
	}
	fmt.Printf("Untagged %s\n", rec.Path)
	return nil
}

func runTagRename(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := cmd.Context()

	tag, err := s.GetTag(ctx, args[0], storage.TagType(tagType))
	if err != nil {
		return fmt.Errorf("tag %q: %w", args[0], err)
	}
	if err := s.RenameTag(ctx, tag.ID, args[1]); err != nil {
		return err
	}
	fmt.Printf("Renamed tag %q -> %q\n", args[0], args[1])
	return nil
}

func runTagAlias(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := cmd.Context()

	typ := storage.TagType(tagType)
	canonical, err := s.GetTag(ctx, args[1], typ)
	if err != nil {
		return fmt.Errorf("tag %q: %w", args[1], err)
	}
	if _, err := s.CreateAlias(ctx, args[0], typ, canonical.ID); err != nil {
		return err
	}
	fmt.Printf("Aliased %q -> %q\n", args[0], args[1])
	return nil
}

func runTagList(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	var domain storage.TagDomain
	if len(args) > 0 {
		domain = storage.TagDomain(args[0])
	}
	tags, err := s.ListTags(cmd.Context(), domain)
	if err != nil {
		return err
	}
	for _, t := range tags {
		marker := ""
		if t.EntryType == storage.EntryAlias {
			marker = " (alias)"
		}
		fmt.Printf("%s\t%s%s\n", t.Type, t.Value, marker)
	}
	return nil
}
