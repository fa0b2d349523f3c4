// cmd/stratumctl/main.go
//
// stratumctl - Interactive shell for stratum key-value storages.
//
// Usage:
//
//	stratumctl [--config FILE] [repl]
//
// The store is entirely in-memory; every invocation starts empty.
// Use .help inside the shell for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"stratum/pkg/cli"
	"stratum/pkg/config"
	"stratum/pkg/kvstore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "stratumctl",
		Short:        "Interactive shell for stratum key-value storages",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runREPL(configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file")

	replCmd := &cobra.Command{
		Use:   "repl",
		Short: "Start the interactive shell (the default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runREPL(configPath)
		},
	}
	root.AddCommand(replCmd)

	return root
}

func runREPL(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := buildLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	store := kvstore.Init(cfg, nil, log)
	defer store.Fin()

	repl, err := cli.NewREPL(store, os.Stdout, os.Stderr)
	if err != nil {
		return err
	}
	defer repl.Close()

	repl.Run()
	return nil
}

func buildLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.OutputPaths = []string{"stderr"}
	return zcfg.Build()
}
