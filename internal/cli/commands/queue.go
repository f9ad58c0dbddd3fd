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
)

var queueTagValue string

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage content queues",
	Long: `A queue is an ordered worklist of content. Items join a queue explicitly
('queue add') or implicitly, by carrying the queue's tag.`,
}

var queueCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a queue",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueCreate,
}

var queueAddCmd = &cobra.Command{
	Use:   "add <name> <path>...",
	Short: "Append indexed content to a queue",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runQueueAdd,
}

var queueDoneCmd = &cobra.Command{
	Use:   "done <name> <path>",
	Short: "Mark a queue item complete",
	Args:  cobra.ExactArgs(2),
	RunE:  runQueueDone,
}

var queueListCmd = &cobra.Command{
	Use:   "list [name]",
	Short: "List queues, or the members of one queue",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runQueueList,
}

func init() {
	queueCreateCmd.Flags().StringVar(&queueTagValue, "tag", "", "queue tag for implicit membership (default: the queue name)")
	queueCmd.AddCommand(queueCreateCmd, queueAddCmd, queueDoneCmd, queueListCmd)
	rootCmd.AddCommand(queueCmd)
}

func runQueueCreate(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	tagValue := queueTagValue
	if tagValue == "" {
		tagValue = args[0]
	}
	q, err := s.CreateQueue(cmd.Context(), args[0], tagValue, "")
	if err != nil {
		return err
	}
	fmt.Printf("Created queue %q (tag %q)\n", q.Name, q.TagValue)
	return nil
}

func runQueueAdd(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := cmd.Context()

	q, err := s.GetQueue(ctx, args[0])
	if err != nil {
		return fmt.Errorf("queue %q: %w", args[0], err)
	}
	for _, arg := range args[1:] {
		rec, err := resolveContent(cmd, s, arg)
		if err != nil {
			return err
		}
		if err := s.Enqueue(ctx, q.ID, rec.ID); err != nil {
			return err
		}
	}
	fmt.Printf("Added %d item(s) to %q\n", len(args)-1, q.Name)
	return nil
}

func runQueueDone(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := cmd.Context()

	q, err := s.GetQueue(ctx, args[0])
	if err != nil {
		return fmt.Errorf("queue %q: %w", args[0], err)
	}
	rec, err := resolveContent(cmd, s, args[1])
	if err != nil {
		return err
	}
	items, err := s.ListQueueItems(ctx, q.ID)
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.ContentID == rec.ID {
			if err := s.SetQueueItemDone(ctx, item.ID, true); err != nil {
				return err
			}
			fmt.Printf("Done: %s\n", rec.Path)
			return nil
		}
	}
	return fmt.Errorf("%s is not in queue %q", rec.Path, q.Name)
}

func runQueueList(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := cmd.Context()

	if len(args) == 0 {
		queues, err := s.ListQueues(ctx)
		if err != nil {
			return err
		}
		for _, q := range queues {
			fmt.Printf("%s\t(tag %s)\n", q.Name, q.TagValue)
		}
		return nil
	}

	q, err := s.GetQueue(ctx, args[0])
	if err != nil {
		return fmt.Errorf("queue %q: %w", args[0], err)
	}
	members, err := s.QueueMemberInfos(ctx, q)
	if err != nil {
		return err
	}
	items, err := s.ListQueueItems(ctx, q.ID)
	if err != nil {
		return err
	}
	doneByID := make(map[string]bool, len(items))
	for _, item := range items {
		doneByID[string(item.ContentID)] = item.Done
	}
	for _, m := range members {
		marker := " "
		if doneByID[string(m.ID)] {
			marker = "x"
		}
		fmt.Printf("[%s] %s\n", marker, m.Path)
	}
	return nil
}
