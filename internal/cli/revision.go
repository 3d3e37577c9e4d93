package cli

import (
	"time"

	"github.com/spf13/cobra"
)

var revisionCmd = &cobra.Command{
	Use:   "revision <candidate>",
	Short: "Show the revision a candidate was prepared at",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		candidate, err := absDir(args[0])
		if err != nil {
			return err
		}

		rev, err := newEngine().CandidateRevision(candidate)
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(rev)
		}

		PrintSection("Candidate Revision")
		PrintLabelValue("ID", rev.ID)
		PrintLabelValue("Type", string(rev.Type))
		PrintLabelValue("Time", rev.Timestamp.Format(time.RFC3339))
		if len(rev.Artifacts) == 0 {
			PrintEmptyState("No artifacts recorded")
			return nil
		}
		PrintSubsection("Artifacts")
		PrintList(rev.Artifacts, 2)
		return nil
	},
}
