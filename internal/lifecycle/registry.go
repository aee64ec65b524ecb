// Copyright 2026 Relaymesh
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lifecycle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/relaymesh/conductor/internal/log"
	"github.com/relaymesh/conductor/internal/sessionhost"
	"github.com/titanous/json5"
	"go.uber.org/zap"
)

// agentConfigFile is the on-disk, comment-tolerant shape an AgentConfig is
// loaded from (§6: "model/agent configs live in a separate user-editable
// file"). JSON5 allows the trailing commas and `//` comments operators
// actually leave in these files.
type agentConfigFile struct {
	ID          string   `json:"id"`
	Role        string   `json:"role"`
	BestRole    string   `json:"bestRole"`
	Kind        string   `json:"kind"`
	Roles       []string `json:"roles"`
	RunCommand  []string `json:"runCommand"`
	TokenLimits struct {
		Daily   int `json:"daily"`
		Weekly  int `json:"weekly"`
		Monthly int `json:"monthly"`
	} `json:"tokenLimits"`
	Capabilities struct {
		ToolsSupported     bool     `json:"toolsSupported"`
		ImagesSupported    bool     `json:"imagesSupported"`
		SubAgentsSupported bool     `json:"subAgentsSupported"`
		ParallelSupported  bool     `json:"parallelSupported"`
		CodeExecution      bool     `json:"codeExecution"`
		FSAccess           bool     `json:"fsAccess"`
		NetAccess          bool     `json:"netAccess"`
		ContextWindow      int      `json:"contextWindow"`
		SupportedModels    []string `json:"supportedModels"`
		SupportedFileTypes []string `json:"supportedFileTypes"`
	} `json:"capabilities"`
}

func (f agentConfigFile) toConfig() AgentConfig {
	roles := make([]Role, 0, len(f.Roles))
	for _, r := range f.Roles {
		roles = append(roles, Role(r))
	}
	return AgentConfig{
		ID:         f.ID,
		Role:       Role(f.Role),
		BestRole:   Role(f.BestRole),
		Kind:       sessionhost.VendorKind(f.Kind),
		Roles:      roles,
		RunCommand: f.RunCommand,
		TokenLimits: TokenLimits{
			Daily:   f.TokenLimits.Daily,
			Weekly:  f.TokenLimits.Weekly,
			Monthly: f.TokenLimits.Monthly,
		},
		Capabilities: Capabilities{
			ToolsSupported:     f.Capabilities.ToolsSupported,
			ImagesSupported:    f.Capabilities.ImagesSupported,
			SubAgentsSupported: f.Capabilities.SubAgentsSupported,
			ParallelSupported:  f.Capabilities.ParallelSupported,
			CodeExecution:      f.Capabilities.CodeExecution,
			FSAccess:           f.Capabilities.FSAccess,
			NetAccess:          f.Capabilities.NetAccess,
			ContextWindow:      f.Capabilities.ContextWindow,
			SupportedModels:    f.Capabilities.SupportedModels,
			SupportedFileTypes: f.Capabilities.SupportedFileTypes,
		},
	}
}

// LoadConfigFile parses a single JSON5 AgentConfig file.
func LoadConfigFile(path string) (AgentConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return AgentConfig{}, fmt.Errorf("lifecycle: read config %s: %w", path, err)
	}
	var f agentConfigFile
	if err := json5.Unmarshal(raw, &f); err != nil {
		return AgentConfig{}, fmt.Errorf("lifecycle: parse config %s: %w", path, err)
	}
	cfg := f.toConfig()
	if err := cfg.Validate(); err != nil {
		return AgentConfig{}, err
	}
	return cfg, nil
}

// LoadConfigDir registers every *.json5/*.json agent config file found
// directly under dir.
func (m *Manager) LoadConfigDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("lifecycle: read config dir %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".json5" && ext != ".json" {
			continue
		}
		cfg, err := LoadConfigFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			log.Warn("lifecycle: skipping invalid agent config",
				zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		if err := m.RegisterAgent(cfg); err != nil {
			log.Warn("lifecycle: rejecting agent config",
				zap.String("file", entry.Name()), zap.Error(err))
		}
	}
	return nil
}

// WatchConfigDir hot-reloads agent config files under dir as they change,
// mirroring the teacher registry's fsnotify loop: writes and creates of
// recognized extensions trigger a reload of that one file; removals are
// ignored (an agent with running sessions should be retired explicitly,
// not by deleting its file out from under it). Runs until ctx is done.
func (m *Manager) WatchConfigDir(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("lifecycle: create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("lifecycle: watch %s: %w", dir, err)
	}
	log.Info("lifecycle: watching agent config directory", zap.String("dir", dir))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			ext := filepath.Ext(event.Name)
			if ext != ".json5" && ext != ".json" || strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue
			}
			cfg, err := LoadConfigFile(event.Name)
			if err != nil {
				log.Warn("lifecycle: hot-reload failed", zap.String("file", event.Name), zap.Error(err))
				continue
			}
			if err := m.RegisterAgent(cfg); err != nil {
				log.Warn("lifecycle: hot-reload rejected", zap.String("file", event.Name), zap.Error(err))
				continue
			}
			log.Info("lifecycle: hot-reloaded agent config", zap.String("agent", cfg.ID))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("lifecycle: watcher error", zap.Error(err))
		}
	}
}
