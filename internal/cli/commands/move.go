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
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"tagstore/internal/common"
	"tagstore/internal/reconcile"
	"tagstore/internal/storage"
	"tagstore/internal/util"
)

var moveCmd = &cobra.Command{
	Use:   "move <path> <new-folder>",
	Short: "Propose moving indexed content to another folder",
	Long: `Records the move in the index immediately and logs a pending entry; a
running 'tagstore watch' applies it to the filesystem. The proposal is
rejected while an earlier change for the same content is unresolved.`,
	Args: cobra.ExactArgs(2),
	RunE: runMove,
}

var renameCmd = &cobra.Command{
	Use:   "rename <path> <new-name>",
	Short: "Propose renaming indexed content in place",
	Args:  cobra.ExactArgs(2),
	RunE:  runRename,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the reconciliation engine",
	Long: `Applies pending index changes to the filesystem as they are proposed,
until interrupted. At most one watcher may run per store.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Apply pending changes once and exit",
	Args:  cobra.NoArgs,
	RunE:  runSync,
}

var waitForApply bool

func init() {
	moveCmd.Flags().BoolVar(&waitForApply, "wait", false, "wait for a running watcher to apply the change")
	renameCmd.Flags().BoolVar(&waitForApply, "wait", false, "wait for a running watcher to apply the change")
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(syncCmd)
}

func resolveContent(cmd *cobra.Command, s *storage.Store, arg string) (*storage.IndexRecord, error) {
	path, err := filepath.Abs(arg)
	if err != nil {
		return nil, err
	}
	rec, err := s.GetContentByPath(cmd.Context(), path)
	if errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("%s is not indexed (run 'tagstore index'?)", path)
	}
	return rec, err
}

// waitForEntry blocks until a watcher resolves the entry, then reports
// the outcome. Requires a running 'tagstore watch' on the same store.
func waitForEntry(cmd *cobra.Command, s *storage.Store, id int64) error {
	var last *storage.HistoryEntry
	cfg := util.PollConfig{Timeout: 30 * time.Second}
	err := util.PollUntil(cmd.Context(), cfg, func() bool {
		entry, err := s.GetHistoryEntry(cmd.Context(), id)
		if err != nil {
			return false
		}
		last = entry
		return entry.Status != storage.StatusPending
	})
	if err != nil {
		return fmt.Errorf("change not applied yet; is 'tagstore watch' running?")
	}
	if last.Status == storage.StatusFailed {
		return fmt.Errorf("change failed: %s", last.Error)
	}
	fmt.Println("Applied")
	return nil
}

func runMove(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	rec, err := resolveContent(cmd, s, args[0])
	if err != nil {
		return err
	}
	target, err := filepath.Abs(args[1])
	if err != nil {
		return err
	}

	entry, err := s.ProposeLocationChange(cmd.Context(), rec.ID, target)
	if errors.Is(err, common.ErrPendingExists) {
		return fmt.Errorf("%s has an unresolved change; run 'tagstore sync' first", rec.Path)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Proposed move %s -> %s (entry %d)\n", rec.Path, target, entry.ID)
	if waitForApply {
		return waitForEntry(cmd, s, entry.ID)
	}
	return nil
}

func runRename(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	rec, err := resolveContent(cmd, s, args[0])
	if err != nil {
		return err
	}

	entry, err := s.ProposeRename(cmd.Context(), rec.ID, args[1])
	if errors.Is(err, common.ErrPendingExists) {
		return fmt.Errorf("%s has an unresolved change; run 'tagstore sync' first", rec.Path)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Proposed rename %s -> %s (entry %d)\n", rec.Name, args[1], entry.ID)
	if waitForApply {
		return waitForEntry(cmd, s, entry.ID)
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	engine := reconcile.New(s, osfs.New("/"))
	if err := engine.Start(cmd.Context()); err != nil {
		if errors.Is(err, common.ErrStoreLocked) {
			return fmt.Errorf("another watcher already owns this store")
		}
		return err
	}

	fmt.Printf("Watching store %s (ctrl-c to stop)\n", s.Path())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	engine.Stop()
	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.AcquireReconcilerLock(); err != nil {
		if errors.Is(err, common.ErrStoreLocked) {
			return fmt.Errorf("a watcher owns this store; it applies changes itself")
		}
		return err
	}
	defer s.ReleaseReconcilerLock()

	engine := reconcile.New(s, osfs.New("/"))
	if err := engine.Sweep(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("Sync complete")
	return nil
}
