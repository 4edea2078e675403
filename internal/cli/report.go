package cli

import (
	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-salesingest/internal/report"
)

var reportOutputDir string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize the staging and quarantine tables",
	Long: `Print the validation summary of the record store: totals, valid and
rejected counts and the validation rate per record type, followed by the
rejection reasons. With --output-dir every table and the summary are also
exported as numbered CSV files.

Example:
  pgedge-salesingest report
  pgedge-salesingest report --output-dir ./outputs`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportOutputDir, "output-dir", "",
		"export tables and summary as CSV files into this directory")
}

func runReport(cmd *cobra.Command, args []string) error {
	if reportOutputDir != "" {
		cfg.Report.OutputDir = reportOutputDir
	}

	ctx, cancel := signalContext()
	defer cancel()

	st, err := openStore(ctx, true)
	if err != nil {
		return err
	}
	defer st.Close()

	tables, summary, err := report.Build(ctx, st)
	if err != nil {
		return err
	}

	if err := summary.Write(cmd.OutOrStdout()); err != nil {
		return err
	}

	if cfg.Report.OutputDir != "" {
		return report.Export(cfg.Report.OutputDir, tables, summary)
	}
	return nil
}
