package cli

import (
	"github.com/spf13/cobra"
)

var changesCmd = &cobra.Command{
	Use:   "changes <candidate>",
	Short: "List the artifact versions a candidate changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		installation, err := resolveInstallation()
		if err != nil {
			return err
		}
		candidate, err := absDir(args[0])
		if err != nil {
			return err
		}

		updates, err := newEngine().FindUpdates(installation, candidate)
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(updates)
		}

		PrintUpdates(updates)
		return nil
	},
}

func init() {
	addInstallationFlag(changesCmd)
}
