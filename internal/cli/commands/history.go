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

var historyFlags struct {
	limit  int
	failed bool
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the transaction log",
	Long: `Lists logged index changes, newest first. --failed restricts output to
failed entries awaiting compensation; an empty list there means the index
and the filesystem agree.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyFlags.limit, "limit", 20, "number of entries (0 = all)")
	historyCmd.Flags().BoolVar(&historyFlags.failed, "failed", false, "show unreverted failures only")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := cmd.Context()

	var entries []storage.HistoryEntry
	if historyFlags.failed {
		entries, err = s.FailedUnreverted(ctx)
	} else {
		entries, err = s.ListHistory(ctx, historyFlags.limit)
	}
	if err != nil {
		return err
	}

	for _, e := range entries {
		line := fmt.Sprintf("%d\t%s\t%s\t%s: %q -> %q",
			e.ID, e.CreatedAt.Format("2006-01-02 15:04:05"), e.Status, e.Column, e.Previous, e.Updated)
		if e.Reverted {
			line += "\t(reverted)"
		}
		if e.RevertOf != 0 {
			line += fmt.Sprintf("\t(revert of %d)", e.RevertOf)
		}
		if e.Error != "" {
			line += "\t" + e.Error
		}
		fmt.Println(line)
	}
	return nil
}
