// Package engine applies prepared candidate trees to live installations.
//
// The engine is the orchestration layer between the CLI and the lower-level
// packages. An apply validates the candidate, computes the user's changes
// with an fsdiff.Provider, resolves them against the candidate with the
// planner, and records every touched path in a backup.Session so a failed
// merge can be rolled back. Installation metadata is only replaced once the
// content tree has been merged.
//
// Key components:
//   - VerifyCandidate: marker, freshness and operation checks
//   - ApplyUpdate / GetConflicts: merge, or preview the conflicts of a merge
//   - FindUpdates: artifact changes between installation and candidate
//   - CandidateRevision / RemoveCandidate: candidate housekeeping
package engine

import (
	"github.com/rs/zerolog"

	"github.com/danieljhkim/stagemerge/internal/clock"
	"github.com/danieljhkim/stagemerge/internal/config"
	"github.com/danieljhkim/stagemerge/internal/fsdiff"
	"github.com/danieljhkim/stagemerge/internal/fsops"
)

// Engine orchestrates candidate operations.
// It is the main API surface called by the CLI.
type Engine struct {
	fs       fsops.FS
	provider fsdiff.Provider
	clock    clock.Clock
	settings *config.Settings
	logger   zerolog.Logger
}

// New creates a new Engine with the given dependencies.
func New(
	fs fsops.FS,
	provider fsdiff.Provider,
	clk clock.Clock,
	settings *config.Settings,
	logger zerolog.Logger,
) *Engine {
	if settings == nil {
		settings = &config.Settings{}
	}
	return &Engine{
		fs:       fs,
		provider: provider,
		clock:    clk,
		settings: settings,
		logger:   logger,
	}
}
