package cli

import (
	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-salesingest/internal/datagen"
	"github.com/pgEdge/pgedge-salesingest/internal/logging"
)

var (
	generateOutputDir  string
	generateHeaders    int
	generateSeed       int64
	generateDefectRate float64
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write a sample set of input CSV files",
	Long: `Generate master data and a raw sales feed in the layout 'ingest'
reads. A share of the transactions (--defect-rate) is given exactly one
defect, cycling through every validation rule plus multi-valued product ids,
so a subsequent ingest exercises the whole rule set.

Example:
  pgedge-salesingest generate --output-dir ./data --headers 1000
  pgedge-salesingest generate --output-dir ./data --seed 42 --defect-rate 0.25`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&generateOutputDir, "output-dir", "",
		"directory to write the CSV files into")
	generateCmd.Flags().IntVar(&generateHeaders, "headers", 0,
		"number of sales transactions (default: 100)")
	generateCmd.Flags().Int64Var(&generateSeed, "seed", 0,
		"random seed for reproducible output (0 = random)")
	generateCmd.Flags().Float64Var(&generateDefectRate, "defect-rate", -1,
		"fraction of transactions with a defect, 0 to 1 (default: 0.1)")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	// Override config with CLI flags
	if generateOutputDir != "" {
		cfg.Generate.OutputDir = generateOutputDir
	}
	if generateHeaders > 0 {
		cfg.Generate.Headers = generateHeaders
	}
	if generateSeed != 0 {
		cfg.Generate.Seed = generateSeed
	}
	if generateDefectRate >= 0 {
		cfg.Generate.DefectRate = generateDefectRate
	}

	// Validate configuration
	if err := cfg.ValidateGenerate(); err != nil {
		return err
	}

	opts := datagen.DefaultOptions()
	opts.Headers = cfg.Generate.Headers
	opts.Seed = cfg.Generate.Seed
	opts.DefectRate = cfg.Generate.DefectRate

	ds := datagen.NewGenerator(opts).Generate()
	if err := datagen.WriteCSV(cfg.Generate.OutputDir, ds); err != nil {
		return err
	}

	ev := logging.Info().
		Str("output_dir", cfg.Generate.OutputDir).
		Int("headers", ds.Stats.Headers).
		Int("line_items", ds.Stats.LineItems)
	for _, d := range datagen.Defects {
		if n := ds.Stats.Defects[d]; n > 0 {
			ev = ev.Int(string(d), n)
		}
	}
	ev.Msg("Sample data generated")
	return nil
}
