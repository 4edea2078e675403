package cli

import (
	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-salesingest/internal/pipeline"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the validation rules in evaluation order",
	Long: `List the header and line item validation rules in the order they are
applied. A record matching several rules is quarantined with the reason of
the first one.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println("Header rules:")
		for i, r := range pipeline.HeaderRules() {
			cmd.Printf("  %d. %-20s %s\n", i+1, r.Name, r.Reason)
		}
		cmd.Println()
		cmd.Println("Line item rules:")
		for i, r := range pipeline.LineItemRules() {
			cmd.Printf("  %d. %-20s %s\n", i+1, r.Name, r.Reason)
		}
	},
}
