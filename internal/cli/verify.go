package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/stagemerge/internal/engine"
)

var verifyOperation string

var verifyCmd = &cobra.Command{
	Use:   "verify <candidate>",
	Short: "Check that a candidate can be applied to the installation",
	Long: `Check the candidate marker against the installation.

Prints one of OK, NOT_CANDIDATE, STALE, WRONG_TYPE or NO_CHANGES. Any result other
than OK exits with a non-zero status.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildRequest(args[0], verifyOperation)
		if err != nil {
			return err
		}

		result, err := newEngine().VerifyCandidate(req.Installation, req.Candidate, req.Operation)
		if err != nil {
			return err
		}

		if jsonOutput {
			if err := outputJSON(map[string]interface{}{
				"candidate": req.Candidate,
				"operation": req.Operation,
				"result":    result,
			}); err != nil {
				return err
			}
		} else if result == engine.ValidationOK {
			PrintSuccess(fmt.Sprintf("Candidate can be applied as %s", req.Operation))
		} else {
			PrintWarning(fmt.Sprintf("Candidate cannot be applied: %s", result))
		}

		if result != engine.ValidationOK {
			return &engine.Error{
				Kind:         engine.KindValidation,
				Message:      fmt.Sprintf("candidate rejected: %s", result),
				Installation: req.Installation,
				Candidate:    req.Candidate,
				Status:       result,
			}
		}
		return nil
	},
}

func init() {
	addInstallationFlag(verifyCmd)
	addOperationFlag(verifyCmd, &verifyOperation)
}
