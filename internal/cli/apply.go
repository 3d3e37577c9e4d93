package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/stagemerge/internal/engine"
	"github.com/danieljhkim/stagemerge/internal/metadata"
)

var (
	applyOperation  string
	applyFullBackup bool
)

var applyCmd = &cobra.Command{
	Use:   "apply <candidate>",
	Short: "Merge a prepared candidate into the installation",
	Long: `Merge the candidate directory into the installation.

User changes are preserved unless they are on a system path. Conflicting content
is kept as a .glnew (candidate content not applied) or .glold (user content
replaced) sidecar next to the file. The installation is restored if anything
fails.

The server must be stopped and --operation must match the operation the
candidate was prepared for.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildRequest(args[0], applyOperation)
		if err != nil {
			return err
		}
		req.FullBackup = applyFullBackup

		result, err := newEngine().ApplyUpdate(context.Background(), req)
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(result)
		}

		PrintSuccess(fmt.Sprintf("Applied %s candidate to %s", req.Operation, req.Installation))
		PrintLabelValue("Revision", result.Revision)
		PrintUpdates(result.Updates)
		PrintConflicts(result.Conflicts)
		return nil
	},
}

// buildRequest resolves the installation and candidate directories.
func buildRequest(candidate, operation string) (*engine.ApplyRequest, error) {
	op, err := metadata.ParseOperation(operation)
	if err != nil {
		return nil, err
	}
	installation, err := resolveInstallation()
	if err != nil {
		return nil, err
	}
	candidateRoot, err := absDir(candidate)
	if err != nil {
		return nil, err
	}
	return &engine.ApplyRequest{
		Installation: installation,
		Candidate:    candidateRoot,
		Operation:    op,
	}, nil
}

func addInstallationFlag(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&installationDir, "dir", "d", "", "Installation root (default: current directory)")
}

func addOperationFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, "operation", "o", string(metadata.OperationUpdate), "Candidate operation: UPDATE, REVERT or FEATURE_ADD")
}

func init() {
	addInstallationFlag(applyCmd)
	addOperationFlag(applyCmd, &applyOperation)
	applyCmd.Flags().BoolVar(&applyFullBackup, "full-backup", false, "Snapshot the whole installation before merging")
}
