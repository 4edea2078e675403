//-------------------------------------------------------------------------
//
// pgEdge Sales Ingest
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package cli implements the command-line interface for pgedge-salesingest.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-salesingest/internal/config"
	"github.com/pgEdge/pgedge-salesingest/internal/logging"
	"github.com/pgEdge/pgedge-salesingest/internal/store"
	"github.com/pgEdge/pgedge-salesingest/pkg/version"
)

var (
	// Global flags
	cfgFile    string
	backend    string
	connection string
	logLevel   string

	// Global config
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "pgedge-salesingest",
		Short: "Ingestion and validation pipeline for retail sales data",
		Long: `pgedge-salesingest loads point-of-sale exports (sales headers and line
items) together with store, product, customer, promotion and loyalty master
data, splits line items that carry several product ids, validates every
record against a fixed ordered rule set, and routes records into staging
(accepted) or quarantine (rejected) tables.

Line items are only staged when their transaction header was staged, so the
staging tables are always referentially consistent.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ./pgedge-salesingest.yaml)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "",
		"record store backend (postgres, sqlite, memory)")
	rootCmd.PersistentFlags().StringVar(&connection, "connection", "",
		"PostgreSQL connection string or SQLite database file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level (debug, info, warn, error)")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(backendsCmd)
}

func initConfig() error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}

	// Override with CLI flags
	if backend != "" {
		cfg.Backend = backend
	}
	if connection != "" {
		cfg.Connection = connection
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	// Reinitialize logger with config
	logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	return nil
}

// schemaChecker is implemented by backends that need init to have run.
type schemaChecker interface {
	CheckSchema(ctx context.Context) error
}

// openStore validates the store configuration and opens it. With
// checkSchema set, backends that support it verify init has been run.
func openStore(ctx context.Context, checkSchema bool) (store.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, cfg.Backend, cfg.Connection)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Backend, err)
	}
	if checkSchema {
		if c, ok := st.(schemaChecker); ok {
			if err := c.CheckSchema(ctx); err != nil {
				st.Close()
				return nil, err
			}
		}
	}
	return st, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			logging.Info().
				Str("signal", sig.String()).
				Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(version.Info())
	},
}

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List available record store backends",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println("Available backends:")
		cmd.Println()
		for _, name := range store.List() {
			cmd.Printf("  %s\n", name)
		}
		cmd.Println()
		cmd.Println("Select one with --backend or the 'backend' config key.")
	},
}
