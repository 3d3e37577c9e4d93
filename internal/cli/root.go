package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/danieljhkim/stagemerge/internal/config"
	"github.com/danieljhkim/stagemerge/internal/engine"
	"github.com/danieljhkim/stagemerge/internal/logging"
)

var (
	// Global flags
	jsonOutput   bool
	verbosity    int
	settingsPath string

	// settings is loaded once per invocation by the root PersistentPreRunE.
	settings *config.Settings

	// Colors for help output sections
	groupTitleColor   = color.New(color.FgCyan, color.Bold)
	sectionTitleColor = color.New(color.FgBlue, color.Bold)
)

// rootCmd is the root command for stagemerge.
var rootCmd = &cobra.Command{
	Use:     "stagemerge",
	Version: "dev",
	Short:   "Apply prepared update candidates to a server installation",
	Long: `stagemerge applies a prepared candidate tree to a live server installation.

Files the operator changed since the installation was provisioned are preserved,
distribution-owned system paths are always overwritten, and conflicting content is
kept next to the winner as .glnew/.glold sidecars. Every change is staged so a
failed apply leaves the installation exactly as it was.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadSettings,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

func SetVersion(v string) {
	if v == "" {
		return
	}
	rootCmd.Version = v
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

// loadSettings layers the settings file and environment, then sets up logging.
// An explicit -v wins over log.verbosity.
func loadSettings(cmd *cobra.Command, args []string) error {
	path := settingsPath
	if path == "" {
		path = config.DefaultSettingsPath()
	}

	s, err := config.LoadSettings(path)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("verbose") {
		s.Log.Verbosity = verbosity
	}
	settings = s

	logging.Setup(s.Log.Verbosity, os.Stderr)
	return nil
}

// customHelpFunc returns a custom help function that colors group titles
func customHelpFunc(cmd *cobra.Command, args []string) {
	var help strings.Builder

	if cmd.Long != "" {
		help.WriteString(cmd.Long)
		help.WriteString("\n\n")
	}

	help.WriteString(sectionTitleColor.Sprint("Usage:"))
	help.WriteString("\n")
	fmt.Fprintf(&help, "  %s\n\n", cmd.UseLine())

	for _, group := range cmd.Groups() {
		help.WriteString(groupTitleColor.Sprint(group.Title))
		help.WriteString("\n")

		for _, c := range cmd.Commands() {
			if c.GroupID == group.ID && !c.Hidden {
				fmt.Fprintf(&help, "  %-17s %s\n", c.Name(), c.Short)
			}
		}
		help.WriteString("\n")
	}

	hasUngrouped := false
	for _, c := range cmd.Commands() {
		if c.GroupID == "" && !c.Hidden {
			if !hasUngrouped {
				help.WriteString(sectionTitleColor.Sprint("Additional Commands:"))
				help.WriteString("\n")
				hasUngrouped = true
			}
			fmt.Fprintf(&help, "  %-17s %s\n", c.Name(), c.Short)
		}
	}
	if hasUngrouped {
		help.WriteString("\n")
	}

	if cmd.HasAvailableLocalFlags() || cmd.HasAvailablePersistentFlags() {
		help.WriteString(sectionTitleColor.Sprint("Flags:"))
		help.WriteString("\n")
		help.WriteString(cmd.LocalFlags().FlagUsages())
		help.WriteString(cmd.InheritedFlags().FlagUsages())
		help.WriteString("\n")
	}

	fmt.Fprintf(&help, "Use \"%s [command] --help\" for more information about a command.\n", cmd.CommandPath())

	fmt.Fprint(cmd.OutOrStdout(), help.String())
}

func init() {
	rootCmd.SetHelpFunc(customHelpFunc)

	// Global flags
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (-v info, -vv debug, -vvv trace)")
	rootCmd.PersistentFlags().StringVar(&settingsPath, "config", "", "Settings file (default $XDG_CONFIG_HOME/stagemerge/config.yaml)")

	rootCmd.AddGroup(&cobra.Group{
		ID:    "candidate",
		Title: "Candidate Operations:",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "inspection",
		Title: "Inspection:",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "provisioning",
		Title: "Provisioning:",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "cli-tooling",
		Title: "CLI & Tooling:",
	})

	versionCmd := &cobra.Command{
		Use:     "version",
		Short:   "Print the stagemerge CLI version",
		Args:    cobra.NoArgs,
		GroupID: "cli-tooling",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), rootCmd.Version)
		},
	}
	rootCmd.AddCommand(versionCmd)

	helpCmd := &cobra.Command{
		Use:     "help [command]",
		Short:   "Help about any command",
		GroupID: "cli-tooling",
		Run: func(cmd *cobra.Command, args []string) {
			target, _, err := cmd.Root().Find(args)
			if err != nil || target == nil {
				target = cmd.Root()
			}
			_ = target.Help()
		},
	}
	rootCmd.SetHelpCommand(helpCmd)

	completionCmd := &cobra.Command{
		Use:     "completion",
		Short:   "Generate the autocompletion script for the specified shell",
		GroupID: "cli-tooling",
		Long: `Generate the autocompletion script for stagemerge for the specified shell.
See each sub-command's help for details on how to use the generated script.`,
	}
	completionCmd.AddCommand(&cobra.Command{
		Use:                   "bash",
		Short:                 "Generate the autocompletion script for bash",
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.GenBashCompletion(os.Stdout)
		},
	})
	completionCmd.AddCommand(&cobra.Command{
		Use:                   "zsh",
		Short:                 "Generate the autocompletion script for zsh",
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.GenZshCompletion(os.Stdout)
		},
	})
	completionCmd.AddCommand(&cobra.Command{
		Use:                   "fish",
		Short:                 "Generate the autocompletion script for fish",
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.GenFishCompletion(os.Stdout, true)
		},
	})
	rootCmd.AddCommand(completionCmd)

	// Candidate Operations
	applyCmd.GroupID = "candidate"
	conflictsCmd.GroupID = "candidate"
	verifyCmd.GroupID = "candidate"
	removeCandidateCmd.GroupID = "candidate"
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(conflictsCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(removeCandidateCmd)

	// Inspection
	changesCmd.GroupID = "inspection"
	revisionCmd.GroupID = "inspection"
	rootCmd.AddCommand(changesCmd)
	rootCmd.AddCommand(revisionCmd)

	// Provisioning
	hashesCmd.GroupID = "provisioning"
	rootCmd.AddCommand(hashesCmd)
}

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

// Exit codes by engine error kind.
const (
	ExitFailure       = 1
	ExitRejected      = 2
	ExitPrecondition  = 3
	ExitApplyFailed   = 4
	ExitRestoreFailed = 5
)

// ExitCode maps err to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, engine.ErrValidation):
		return ExitRejected
	case errors.Is(err, engine.ErrPrecondition):
		return ExitPrecondition
	case errors.Is(err, engine.ErrRestoreFailed):
		return ExitRestoreFailed
	case errors.Is(err, engine.ErrApplyFailed):
		return ExitApplyFailed
	default:
		return ExitFailure
	}
}

// Report prints err to w and returns its exit code.
func Report(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	_, _ = fmt.Fprintln(w, formatError(err))
	if errors.Is(err, engine.ErrRestoreFailed) {
		PrintError(w, "the installation could not be restored and needs manual recovery")
	}
	return ExitCode(err)
}
