package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-salesingest/internal/csvload"
	"github.com/pgEdge/pgedge-salesingest/internal/logging"
	"github.com/pgEdge/pgedge-salesingest/internal/metrics"
	"github.com/pgEdge/pgedge-salesingest/internal/pipeline"
	"github.com/pgEdge/pgedge-salesingest/internal/report"
)

var (
	ingestDataDir        string
	ingestTolerance      string
	ingestKeepQuarantine bool
	ingestMetricsFile    string
	ingestSkipMaster     bool
	ingestFromStore      bool
	ingestReport         bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load, normalize, validate and route a batch of sales data",
	Long: `Run the ingestion pipeline once. The stages are:

  load-master       replace the master tables from the CSV files
  load-raw          replace the raw sales tables from the CSV files
  normalize         split line items with several product ids
  validate-headers  quarantine headers failing a rule
  validate-items    quarantine line items failing a rule
  route             rebuild staging from raw minus quarantine

Each stage is committed on its own. A failing stage stops the run and is
reported with its name; earlier stages stay committed. Running the same
input twice produces the same staging and quarantine contents.

Example:
  pgedge-salesingest ingest --data-dir ./data
  pgedge-salesingest ingest --data-dir ./data --metrics-file /var/lib/node_exporter/salesingest.prom
  pgedge-salesingest ingest --from-store --tolerance 0.05`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDataDir, "data-dir", "",
		"directory containing the input CSV files")
	ingestCmd.Flags().StringVar(&ingestTolerance, "tolerance", "",
		"allowed difference between a header total and its line items (default: 0.01)")
	ingestCmd.Flags().BoolVar(&ingestKeepQuarantine, "keep-quarantine", false,
		"keep rejections from earlier runs instead of replacing them")
	ingestCmd.Flags().StringVar(&ingestMetricsFile, "metrics-file", "",
		"write run metrics to this file in Prometheus text format")
	ingestCmd.Flags().BoolVar(&ingestSkipMaster, "skip-master-load", false,
		"validate against the master tables already in the store")
	ingestCmd.Flags().BoolVar(&ingestFromStore, "from-store", false,
		"re-run validation on the raw and master data already in the store")
	ingestCmd.Flags().BoolVar(&ingestReport, "report", false,
		"print the validation summary after the run")
}

func runIngest(cmd *cobra.Command, args []string) error {
	// Override config with CLI flags
	if ingestDataDir != "" {
		cfg.Ingest.DataDir = ingestDataDir
	}
	if ingestTolerance != "" {
		cfg.Ingest.AmountTolerance = ingestTolerance
	}
	if ingestKeepQuarantine {
		cfg.Ingest.KeepQuarantine = true
	}
	if ingestMetricsFile != "" {
		cfg.Ingest.MetricsFile = ingestMetricsFile
	}

	// Validate configuration
	if err := cfg.ValidateIngest(); err != nil {
		return err
	}
	tolerance, err := cfg.Ingest.Tolerance()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	st, err := openStore(ctx, true)
	if err != nil {
		return err
	}
	defer st.Close()

	var src pipeline.Source = csvload.NewLoader(cfg.Ingest.DataDir)
	if ingestFromStore {
		src = pipeline.StoreSource{Store: st}
	}

	logging.Info().
		Str("backend", st.Backend()).
		Str("data_dir", cfg.Ingest.DataDir).
		Bool("from_store", ingestFromStore).
		Bool("keep_quarantine", cfg.Ingest.KeepQuarantine).
		Msg("Starting ingestion")

	m := metrics.NewRegistry()
	p := pipeline.New(src, st, pipeline.Config{
		Tolerance:      tolerance,
		KeepQuarantine: cfg.Ingest.KeepQuarantine,
		SkipMasterLoad: ingestSkipMaster || ingestFromStore,
	}, m)

	res, runErr := p.Run(ctx)

	if cfg.Ingest.MetricsFile != "" {
		if err := m.WriteFile(cfg.Ingest.MetricsFile); err != nil {
			logging.Error().Err(err).Msg("Failed to write metrics file")
		} else {
			logging.Debug().
				Str("file", cfg.Ingest.MetricsFile).
				Msg("Wrote metrics")
		}
	}
	if runErr != nil {
		return fmt.Errorf("ingestion failed: %w", runErr)
	}

	logging.Info().
		Str("run_id", res.RunID.String()).
		Int("new_header_rejections", len(res.HeaderRejections)).
		Int("new_line_item_rejections", len(res.LineItemRejections)).
		Msg("Ingestion complete")

	if ingestReport {
		_, summary, err := report.Build(ctx, st)
		if err != nil {
			return err
		}
		return summary.Write(cmd.OutOrStdout())
	}
	return nil
}
