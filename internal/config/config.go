//-------------------------------------------------------------------------
//
// pgEdge Sales Ingest
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package config handles configuration management for pgedge-salesingest.
// Configuration is loaded from config files and CLI flags (no environment variables).
// CLI flags take precedence over config file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all configuration for pgedge-salesingest.
type Config struct {
	// Backend selects the record store: postgres, sqlite or memory.
	Backend string `mapstructure:"backend"`

	// Connection is the PostgreSQL connection string or the SQLite file path.
	Connection string `mapstructure:"connection"`

	// LogLevel controls logging verbosity (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level"`

	// Ingest holds configuration for the ingest subcommand.
	Ingest IngestConfig `mapstructure:"ingest"`

	// Generate holds configuration for the generate subcommand.
	Generate GenerateConfig `mapstructure:"generate"`

	// Report holds configuration for the report subcommand.
	Report ReportConfig `mapstructure:"report"`
}

// IngestConfig holds configuration for a pipeline run.
type IngestConfig struct {
	// DataDir is the directory holding the input CSV files.
	DataDir string `mapstructure:"data_dir"`

	// AmountTolerance is the largest accepted difference between a header
	// total and the sum of its line items, as a decimal string. Zero or
	// empty selects the pipeline default of 0.01.
	AmountTolerance string `mapstructure:"amount_tolerance"`

	// KeepQuarantine retains rejections from earlier runs instead of
	// replacing the quarantine tables.
	KeepQuarantine bool `mapstructure:"keep_quarantine"`

	// MetricsFile is where run metrics are written in Prometheus text
	// format. Empty disables the export.
	MetricsFile string `mapstructure:"metrics_file"`
}

// GenerateConfig holds configuration for sample data generation.
type GenerateConfig struct {
	// OutputDir is where the CSV files are written.
	OutputDir string `mapstructure:"output_dir"`

	// Headers is the number of sales transactions to generate.
	Headers int `mapstructure:"headers"`

	// Seed makes generation reproducible. Zero picks a random seed.
	Seed int64 `mapstructure:"seed"`

	// DefectRate is the fraction of transactions given a defect (0..1).
	DefectRate float64 `mapstructure:"defect_rate"`
}

// ReportConfig holds configuration for the report subcommand.
type ReportConfig struct {
	// OutputDir receives CSV exports of every table. Empty prints the
	// summary only.
	OutputDir string `mapstructure:"output_dir"`
}

// Backend names accepted in configuration.
var backends = map[string]bool{
	"postgres": true,
	"sqlite":   true,
	"memory":   true,
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Backend:    "sqlite",
		Connection: "salesingest.db",
		LogLevel:   "info",
		Ingest: IngestConfig{
			DataDir:         "data",
			AmountTolerance: "0.01",
		},
		Generate: GenerateConfig{
			OutputDir:  "data",
			Headers:    100,
			DefectRate: 0.1,
		},
	}
}

// Load reads configuration from config files.
// Config file locations (in order of precedence):
// 1. Path specified by configFile parameter
// 2. ./pgedge-salesingest.yaml
// 3. ~/.config/pgedge-salesingest/pgedge-salesingest.yaml
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("pgedge-salesingest")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "pgedge-salesingest"))
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

// Validate checks that the store is configured.
func (c *Config) Validate() error {
	if c.Backend == "" {
		return fmt.Errorf("backend is required")
	}
	if !backends[c.Backend] {
		return fmt.Errorf("unknown backend %q (expected postgres, sqlite or memory)", c.Backend)
	}
	if c.Backend != "memory" && c.Connection == "" {
		return fmt.Errorf("connection is required for the %s backend", c.Backend)
	}
	return nil
}

// ValidateIngest checks configuration required for the ingest command.
func (c *Config) ValidateIngest() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Ingest.DataDir == "" {
		return fmt.Errorf("data_dir is required for ingest")
	}
	if _, err := c.Ingest.Tolerance(); err != nil {
		return err
	}
	return nil
}

// ValidateGenerate checks configuration required for the generate command.
// Generation does not touch the store, so the backend is not checked.
func (c *Config) ValidateGenerate() error {
	if c.Generate.OutputDir == "" {
		return fmt.Errorf("output_dir is required for generate")
	}
	if c.Generate.Headers < 1 {
		return fmt.Errorf("headers must be at least 1")
	}
	if c.Generate.DefectRate < 0 || c.Generate.DefectRate > 1 {
		return fmt.Errorf("defect_rate must be between 0 and 1")
	}
	return nil
}

// Tolerance parses AmountTolerance. An empty value yields zero.
func (c IngestConfig) Tolerance() (decimal.Decimal, error) {
	if c.AmountTolerance == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(c.AmountTolerance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount_tolerance %q: %w", c.AmountTolerance, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount_tolerance must not be negative")
	}
	return d, nil
}
