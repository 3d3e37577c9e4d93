package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var conflictsOperation string

var conflictsCmd = &cobra.Command{
	Use:   "conflicts <candidate>",
	Short: "List the conflicts applying a candidate would produce",
	Long: `Compute the conflicts between the installation and the candidate without
changing anything. The candidate is validated the same way apply does.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildRequest(args[0], conflictsOperation)
		if err != nil {
			return err
		}

		conflicts, err := newEngine().GetConflicts(context.Background(), req)
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(map[string]interface{}{
				"conflicts": conflicts,
			})
		}

		PrintConflicts(conflicts)
		return nil
	},
}

func init() {
	addInstallationFlag(conflictsCmd)
	addOperationFlag(conflictsCmd, &conflictsOperation)
}
