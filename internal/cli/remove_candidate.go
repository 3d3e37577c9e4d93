package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/stagemerge/internal/fsops"
	"github.com/danieljhkim/stagemerge/internal/metadata"
)

var removeCandidateForce bool

var removeCandidateCmd = &cobra.Command{
	Use:   "remove-candidate <candidate>",
	Short: "Delete a prepared candidate directory",
	Long: `Delete a candidate directory once it has been applied or abandoned.

Directories without a candidate marker are refused unless --force is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		candidate, err := absDir(args[0])
		if err != nil {
			return err
		}

		if !removeCandidateForce {
			if _, err := metadata.ReadMarker(fsops.NewRealFS(), candidate); err != nil {
				if errors.Is(err, metadata.ErrNoMarker) {
					return fmt.Errorf("%s is not a candidate (use --force to remove it anyway)", candidate)
				}
				return err
			}
		}

		if err := newEngine().RemoveCandidate(candidate); err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(map[string]interface{}{
				"removed": candidate,
			})
		}

		PrintSuccess(fmt.Sprintf("Removed candidate %s", candidate))
		return nil
	},
}

func init() {
	removeCandidateCmd.Flags().BoolVarP(&removeCandidateForce, "force", "f", false, "Remove even if the directory has no candidate marker")
}
