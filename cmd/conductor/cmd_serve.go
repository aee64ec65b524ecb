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
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/relaymesh/conductor/internal/guidelines"
	"github.com/relaymesh/conductor/internal/lifecycle"
	"github.com/relaymesh/conductor/internal/log"
	"github.com/relaymesh/conductor/internal/logstream"
	"github.com/relaymesh/conductor/internal/orchestrator"
	"github.com/relaymesh/conductor/internal/sessionhost"
	"github.com/relaymesh/conductor/internal/sessionhost/subprocess"
	"github.com/relaymesh/conductor/internal/sessionhost/tmux"
	agentsignal "github.com/relaymesh/conductor/internal/signal"
	"github.com/relaymesh/conductor/internal/warroom"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestration loop",
	Long: `serve starts the Session Host, Log Streamer, Lifecycle Manager, Guidelines
Registry, and Orchestrator Core, and blocks, processing detected signals
until interrupted.

Press Ctrl+C to shut down gracefully.`,
	Run: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func buildLogger(cfg LoggingConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level := zap.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			fmt.Fprintf(os.Stderr, "invalid log level %q, using info: %v\n", cfg.Level, err)
		}
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	if cfg.File != "" {
		zapCfg.OutputPaths = []string{cfg.File}
		zapCfg.ErrorOutputPaths = []string{cfg.File}
	}

	return zapCfg.Build()
}

func buildHost(cfg HostConfig) (sessionhost.Host, error) {
	switch cfg.Kind {
	case "tmux":
		binary := cfg.TmuxBinary
		if binary == "" {
			binary = "tmux"
		}
		return tmux.New(binary), nil
	case "subprocess", "":
		return subprocess.New(), nil
	default:
		return nil, fmt.Errorf("unsupported host.kind: %s", cfg.Kind)
	}
}

func runServe(cmd *cobra.Command, args []string) {
	if err := config.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration invalid: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(config.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	log.SetLogger(logger)

	log.Info("conductor starting", zap.String("version", rootCmd.Version), zap.String("dataDir", config.DataDir))
	if used := viper.ConfigFileUsed(); used != "" {
		log.Info("config file loaded", zap.String("path", used))
	} else {
		log.Info("no config file found, using defaults + environment variables")
	}

	if err := os.MkdirAll(config.DataDir, 0o750); err != nil {
		log.Error("failed to create data directory", zap.Error(err))
		os.Exit(1)
	}

	host, err := buildHost(config.Host)
	if err != nil {
		log.Error("failed to create session host", zap.Error(err))
		os.Exit(1)
	}
	log.Info("session host ready", zap.String("kind", config.Host.Kind))

	streamer := logstream.New(host, agentsignal.DefaultCatalog, logstream.Config{
		BufferSize:             config.LogStream.BufferSize,
		MaxLogLineLength:       config.LogStream.MaxLogLineLength,
		AutoDiscovery:          config.LogStream.AutoDiscovery,
		MonitorInterval:        config.LogStream.MonitorInterval,
		SignalDetectionTimeout: config.LogStream.SignalDetectionTimeout,
		DrainGrace:             config.LogStream.DrainGrace,
		AgentNameMarkers:       config.LogStream.AgentNameMarkers,
	})

	workDir := filepath.Join(config.DataDir, "sessions")
	if err := os.MkdirAll(workDir, 0o750); err != nil {
		log.Error("failed to create sessions directory", zap.Error(err))
		os.Exit(1)
	}
	lifecycleMgr := lifecycle.New(host, streamer.Responses, workDir)

	if config.Lifecycle.AgentsDir != "" {
		if err := os.MkdirAll(config.Lifecycle.AgentsDir, 0o750); err != nil {
			log.Warn("failed to create agents directory", zap.Error(err))
		} else if err := lifecycleMgr.LoadConfigDir(config.Lifecycle.AgentsDir); err != nil {
			log.Warn("failed to load agent configs", zap.String("dir", config.Lifecycle.AgentsDir), zap.Error(err))
		} else {
			log.Info("agent configs loaded", zap.Int("count", len(lifecycleMgr.Agents())), zap.String("dir", config.Lifecycle.AgentsDir))
		}
	}

	memo := warroom.NewMemo(config.WarRoom.MaxItems)

	registry := guidelines.NewRegistry()
	if config.Guidelines.Dir != "" {
		if err := os.MkdirAll(config.Guidelines.Dir, 0o750); err != nil {
			log.Warn("failed to create guidelines directory", zap.Error(err))
		} else if loaded, err := guidelines.LoadDirectory(registry, config.Guidelines.Dir); err != nil {
			log.Warn("failed to load guidelines", zap.String("dir", config.Guidelines.Dir), zap.Error(err))
		} else {
			log.Info("guidelines loaded", zap.Int("count", len(loaded)), zap.String("dir", config.Guidelines.Dir))
		}
	}

	orch := orchestrator.New(lifecycleMgr, memo, registry, orchestrator.Config{
		ModelWindow:     config.Orchestrator.ModelWindow,
		DegradedWindow:  config.Orchestrator.DegradedWindow,
		DegradedRatio:   config.Orchestrator.DegradedRatio,
		HistoryLookback: config.Orchestrator.HistoryLookback,
		DefaultRole:     lifecycle.Role(config.Orchestrator.DefaultRole),
	})
	orch.Watch(context.Background(), streamer.Signals)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := lifecycleMgr.Start(ctx); err != nil {
		log.Error("failed to start lifecycle manager", zap.Error(err))
		os.Exit(1)
	}

	if config.Lifecycle.WatchDir && config.Lifecycle.AgentsDir != "" {
		go func() {
			if err := lifecycleMgr.WatchConfigDir(ctx, config.Lifecycle.AgentsDir); err != nil {
				log.Warn("agent config watcher stopped", zap.Error(err))
			}
		}()
	}

	if config.LogStream.AutoDiscovery {
		discoverer := logstream.NewDiscoverer(streamer, host, logstream.Config{
			AutoDiscovery:    true,
			MonitorInterval:  config.LogStream.MonitorInterval,
			AgentNameMarkers: config.LogStream.AgentNameMarkers,
		})
		if err := discoverer.Start(ctx); err != nil {
			log.Warn("failed to start session discovery", zap.Error(err))
		} else {
			defer discoverer.Stop()
		}
	}

	var snapStore *warroom.SnapshotStore
	if config.WarRoom.SnapshotPath != "" {
		snapStore, err = warroom.OpenSnapshotStore(config.WarRoom.SnapshotPath)
		if err != nil {
			log.Warn("failed to open war-room snapshot store, continuing without persistence", zap.Error(err))
		} else {
			defer snapStore.Close()
			go runArchiveSweep(ctx, memo, snapStore, config.WarRoom.ArchiveDays)
		}
	}

	go logOrchestratorEvents(ctx, orch)

	log.Info("conductor ready")
	orch.Run(ctx)

	log.Info("shutting down")
	lifecycleMgr.Stop()
}

// runArchiveSweep periodically moves aged war-room entries to the archive
// and persists newly archived entries to the snapshot store (§4.G, §6).
func runArchiveSweep(ctx context.Context, memo *warroom.Memo, store *warroom.SnapshotStore, archiveDays int) {
	if archiveDays <= 0 {
		archiveDays = 7
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	lastFlush := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := memo.ArchiveWarRoomItems(archiveDays)
			if n > 0 {
				log.Debug("war-room archive sweep", zap.Int("archived", n))
			}
			since := lastFlush
			lastFlush = time.Now()
			var toSave []warroom.ArchivedItem
			for _, section := range warroom.Sections {
				toSave = append(toSave, memo.ArchivedItems(section, since)...)
			}
			if len(toSave) == 0 {
				continue
			}
			if err := store.SaveArchive(toSave); err != nil {
				log.Warn("failed to persist war-room archive", zap.Error(err))
			}
		}
	}
}

// logOrchestratorEvents logs every orchestrator outcome, the minimal
// observability surface a headless runtime needs.
func logOrchestratorEvents(ctx context.Context, orch *orchestrator.Orchestrator) {
	ch, unsubscribe := orch.Events.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			e := evt.Payload
			switch e.Kind {
			case orchestrator.EventSignalProcessed:
				log.Debug("signal processed", zap.String("signal", e.SignalID))
			case orchestrator.EventSignalError:
				log.Warn("signal failed", zap.String("signal", e.SignalID), zap.String("error", e.Err))
			case orchestrator.EventDegradedMode:
				log.Warn("orchestrator entered degraded mode", zap.String("signal", e.SignalID))
			}
		}
	}
}
