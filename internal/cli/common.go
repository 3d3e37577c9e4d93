package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/danieljhkim/stagemerge/internal/clock"
	"github.com/danieljhkim/stagemerge/internal/config"
	"github.com/danieljhkim/stagemerge/internal/engine"
	"github.com/danieljhkim/stagemerge/internal/fsdiff"
	"github.com/danieljhkim/stagemerge/internal/fsops"
	"github.com/danieljhkim/stagemerge/internal/logging"
)

// installationDir is shared by every command that targets an installation.
var installationDir string

// newEngine creates a new engine with real implementations of all dependencies.
func newEngine() *engine.Engine {
	s := settings
	if s == nil {
		s = &config.Settings{}
	}

	fs := fsops.NewRealFS()
	return engine.New(fs, fsdiff.NewManifestProvider(fs), clock.RealClock{}, s, logging.GetLogger("engine"))
}

// resolveInstallation returns the absolute installation root, defaulting to
// the current directory.
func resolveInstallation() (string, error) {
	dir := installationDir
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get current directory: %w", err)
		}
		dir = cwd
	}
	return absDir(dir)
}

// absDir makes dir absolute and checks that it is a directory.
func absDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("failed to access %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", abs)
	}
	return abs, nil
}

// formatJSON formats a value as JSON.
func formatJSON(v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// formatError formats an error for display.
func formatError(err error) string {
	return errorColor.Sprintf("Error: %v", err)
}

// outputJSON outputs a value as JSON to stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
