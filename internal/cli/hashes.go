package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/stagemerge/internal/fsdiff"
	"github.com/danieljhkim/stagemerge/internal/fsops"
	"github.com/danieljhkim/stagemerge/internal/hash"
)

var hashesAlgorithm string

var hashesCmd = &cobra.Command{
	Use:   "record-hashes <dir>",
	Short: "Record the provisioned state of a tree",
	Long: `Hash every file of the tree and write the result to .galleon/hashes/files.yaml.

This marks the current content as provisioned: later edits show up as user
changes when a candidate is applied. The algorithm defaults to hash.algorithm
from the settings.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := absDir(args[0])
		if err != nil {
			return err
		}

		algorithm := hashesAlgorithm
		if algorithm == "" && settings != nil {
			algorithm = settings.Hash.Algorithm
		}
		hasher, err := hash.New(algorithm)
		if err != nil {
			return err
		}

		m, err := fsdiff.WriteManifest(fsops.NewRealFS(), hasher, root)
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(map[string]interface{}{
				"root":      root,
				"algorithm": m.Algorithm,
				"files":     len(m.Files),
			})
		}

		PrintSuccess(fmt.Sprintf("Recorded %s (%s)", PrintCount(len(m.Files), "file", "files"), m.Algorithm))
		return nil
	},
}

func init() {
	hashesCmd.Flags().StringVar(&hashesAlgorithm, "algorithm", "", "Hash algorithm: sha256 or xxh3")
}
