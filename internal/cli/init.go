package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-salesingest/internal/logging"
)

var initDropExisting bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the master, raw, quarantine and staging tables",
	Long: `Create every table the pipeline reads and writes in the configured
record store. Existing tables are kept unless --drop-existing is given.

Example:
  pgedge-salesingest init --backend postgres --connection "postgres://..."
  pgedge-salesingest init --backend sqlite --connection ./sales.db --drop-existing`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initDropExisting, "drop-existing", false,
		"drop existing tables before initialization")
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	st, err := openStore(ctx, false)
	if err != nil {
		return err
	}
	defer st.Close()

	logging.Info().
		Str("backend", st.Backend()).
		Msg("Initializing record store")

	if initDropExisting {
		logging.Info().Msg("Dropping existing schema")
		if err := st.DropSchema(ctx); err != nil {
			return fmt.Errorf("failed to drop schema: %w", err)
		}
	}

	logging.Info().Msg("Creating schema")
	if err := st.CreateSchema(ctx); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	logging.Info().
		Str("backend", st.Backend()).
		Msg("Record store initialization complete")
	return nil
}
