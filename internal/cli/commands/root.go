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
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tagstore/internal/profile"
	"tagstore/internal/storage"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// SetVersion sets the version info for --version flag
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

// getVersionString returns the version string with build info
func getVersionString() string {
	buildDate := formatBuildDate(date)
	if strings.HasSuffix(version, "-dev") {
		return fmt.Sprintf("%s (%s, commit: %s)", version, buildDate, commit)
	}
	return fmt.Sprintf("%s (%s)", version, buildDate)
}

// formatBuildDate converts epoch timestamp to readable date
func formatBuildDate(epoch string) string {
	ts, err := strconv.ParseInt(epoch, 10, 64)
	if err != nil {
		return epoch
	}
	return time.Unix(ts, 0).Format("2006-01-02")
}

var (
	profileName    string
	currentProfile *profile.Profile
)

var rootCmd = &cobra.Command{
	Use:   "tagstore",
	Short: "Content indexing and tagging for the filesystem",
	Long: `Indexes filesystem content into a relational store with stable identities,
multi-domain tagging, and filter-based queries. Moves and renames issued
against the index are reconciled back to the filesystem.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		// init creates the profile; loading it beforehand would fail.
		if cmd.Name() == "init" {
			return nil
		}

		p, err := profile.Load(profileName)
		if err != nil {
			return fmt.Errorf("load profile %q (run 'tagstore init'?): %w", profileName, err)
		}
		currentProfile = p
		logrus.SetLevel(p.LogLevel())
		storage.SetConfigBusyTimeout(p.BusyTimeout)
		return nil
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate("tagstore version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVarP(&profileName, "profile", "p", profile.DefaultName, "profile to operate on")
}

// openStore opens the current profile's store.
func openStore() (*storage.Store, error) {
	return storage.Open(currentProfile.StorePath)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
