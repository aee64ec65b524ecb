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
	"fmt"
	"os"

	"github.com/relaymesh/conductor/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	config  *Config
)

var rootCmd = &cobra.Command{
	Use:     "conductor",
	Short:   "Agent orchestration runtime",
	Long:    `conductor watches agent session output for signals, dispatches them through guideline workflows, and drives a priority-ordered queue of agent tasks.`,
	Version: version.Get(),
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.SetHelpTemplate(`{{with (or .Long .Short)}}{{. | trimTrailingWhitespaces}}

{{end}}{{if or .Runnable .HasSubCommands}}{{.UsageString}}{{end}}
`)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $CONDUCTOR_DATA_DIR/conductor.yaml)")

	rootCmd.PersistentFlags().String("host-kind", "subprocess", "session host backend (subprocess, tmux)")
	rootCmd.PersistentFlags().String("agents-dir", "", "directory of agent config files (default: $CONDUCTOR_DATA_DIR/agents)")
	rootCmd.PersistentFlags().String("guidelines-dir", "", "directory of guideline definition files (default: $CONDUCTOR_DATA_DIR/guidelines)")
	rootCmd.PersistentFlags().Int("model-window", 200000, "model context window in tokens, used by the token distributor")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")

	_ = viper.BindPFlag("host.kind", rootCmd.PersistentFlags().Lookup("host-kind"))
	_ = viper.BindPFlag("lifecycle.agents_dir", rootCmd.PersistentFlags().Lookup("agents-dir"))
	_ = viper.BindPFlag("guidelines.dir", rootCmd.PersistentFlags().Lookup("guidelines-dir"))
	_ = viper.BindPFlag("orchestrator.model_window", rootCmd.PersistentFlags().Lookup("model-window"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	var err error
	config, err = LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
}
