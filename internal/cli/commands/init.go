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

	"github.com/spf13/cobra"

	"tagstore/internal/common"
	"tagstore/internal/profile"
	"tagstore/internal/storage"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a profile and its store",
	Long: `Creates the profile configuration file and an empty store for it.
Profiles are independent: each has its own store, ignore patterns, and
settings. Select one with --profile; the default profile is "default".`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	p, err := profile.Create(profileName)
	if errors.Is(err, common.ErrExists) {
		return fmt.Errorf("profile %q already exists at %s", profileName, profile.Path(profileName))
	}
	if err != nil {
		return err
	}

	s, err := storage.Create(p.StorePath)
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	defer s.Close()

	fmt.Printf("Initialized profile %q\n", p.Name)
	fmt.Printf("  config: %s\n", profile.Path(p.Name))
	fmt.Printf("  store:  %s\n", p.StorePath)
	return nil
}
