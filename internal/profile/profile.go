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

// Package profile manages per-user profiles. Each profile owns exactly one
// store file plus its indexing and logging preferences.
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"tagstore/internal/common"
)

// DefaultName is the profile used when the CLI is given none.
const DefaultName = "default"

// getConfigDir returns the config directory path.
// Uses TAGSTORE_CONFIG_DIR env var if set, otherwise defaults to ~/.tagstore.
// This is computed dynamically to support test isolation.
func getConfigDir() string {
	if dir := os.Getenv("TAGSTORE_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tagstore")
}

// ConfigDir returns the configuration directory path
func ConfigDir() string {
	return getConfigDir()
}

// Path returns the profile file path for a profile name
func Path(name string) string {
	return filepath.Join(getConfigDir(), name+".yaml")
}

// EnsureConfigDir creates the config directory if it doesn't exist
func EnsureConfigDir() error {
	return os.MkdirAll(getConfigDir(), 0700)
}

// Profile is the per-profile configuration file.
type Profile struct {
	Name        string   `yaml:"-"`
	StorePath   string   `yaml:"store"`        // default: {config_dir}/{name}.db
	Logging     string   `yaml:"logging"`      // logging level: none, error, info, debug (case insensitive)
	Ignores     []string `yaml:"ignores"`      // gitignore-style patterns skipped during indexing
	BusyTimeout int      `yaml:"busy_timeout"` // SQLite busy_timeout (ms), 0 = use default
}

var defaultIgnores = []string{".DS_Store", "Thumbs.db", "*.tmp", ".git/"}

// ApplyDefaults fills zero-value fields with their defaults.
func (p *Profile) ApplyDefaults() {
	if p.StorePath == "" {
		p.StorePath = filepath.Join(getConfigDir(), p.Name+".db")
	}
	if p.Logging == "" {
		p.Logging = "error"
	}
	if p.Ignores == nil {
		p.Ignores = append([]string{}, defaultIgnores...)
	}
}

// LogLevel returns the logrus level for the configured logging string.
// "none" and unknown values disable logging via PanicLevel.
func (p *Profile) LogLevel() logrus.Level {
	switch strings.ToLower(p.Logging) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.PanicLevel
	}
}

// Load reads a profile by name. A missing profile is ErrNotFound so the
// CLI can distinguish "never initialized" from a read failure.
func Load(name string) (*Profile, error) {
	data, err := os.ReadFile(Path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: profile %q", common.ErrNotFound, name)
		}
		return nil, err
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("profile %q: %w", name, err)
	}
	p.Name = name
	p.ApplyDefaults()
	return &p, nil
}

// Save writes the profile file, creating the config directory if needed.
func (p *Profile) Save() error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	header := []byte("# tagstore profile\n\n")
	return os.WriteFile(Path(p.Name), append(header, data...), 0600)
}

// Create initializes a new profile with defaults. Fails if it exists.
func Create(name string) (*Profile, error) {
	if _, err := os.Stat(Path(name)); err == nil {
		return nil, fmt.Errorf("%w: profile %q", common.ErrExists, name)
	}
	p := &Profile{Name: name}
	p.ApplyDefaults()
	if err := p.Save(); err != nil {
		return nil, err
	}
	return p, nil
}

// List returns the names of every profile in the config directory.
func List() ([]string, error) {
	entries, err := os.ReadDir(getConfigDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	return names, nil
}
