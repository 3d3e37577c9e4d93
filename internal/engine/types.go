package engine

import (
	"fmt"
	"strings"

	"github.com/danieljhkim/stagemerge/internal/metadata"
	"github.com/danieljhkim/stagemerge/internal/planner"
)

// ValidationResult is the outcome of VerifyCandidate.
type ValidationResult string

const (
	ValidationOK           ValidationResult = "OK"
	ValidationNotCandidate ValidationResult = "NOT_CANDIDATE"
	ValidationStale        ValidationResult = "STALE"
	ValidationWrongType    ValidationResult = "WRONG_TYPE"
	ValidationNoChanges    ValidationResult = "NO_CHANGES"
)

// candidateRef names an installation and a candidate directory.
type candidateRef struct {
	// Installation is the live installation root.
	Installation string

	// Candidate is the prepared candidate root.
	Candidate string
}

// ApplyRequest represents a request to merge a candidate into an installation.
type ApplyRequest struct {
	Installation string
	Candidate    string

	// Operation must match the operation recorded in the candidate marker.
	Operation metadata.Operation

	// FullBackup snapshots the whole installation before merging instead of
	// only the paths the merge touches.
	FullBackup bool
}

func (r *ApplyRequest) ref() candidateRef {
	return candidateRef{Installation: r.Installation, Candidate: r.Candidate}
}

// ApplyResult represents the result of a successful apply.
type ApplyResult struct {
	// Conflicts lists the paths changed on both sides, in resolution order.
	Conflicts []planner.FileConflict `json:"conflicts"`

	// Updates lists the artifact changes brought by the candidate.
	Updates *UpdateSet `json:"updates"`

	// Revision is the history revision recorded for the apply.
	Revision string `json:"revision"`
}

// ChangeStatus describes an artifact change.
type ChangeStatus string

const (
	ChangeAdded   ChangeStatus = "added"
	ChangeRemoved ChangeStatus = "removed"
	ChangeUpdated ChangeStatus = "updated"
)

// ArtifactChange is one artifact that differs between installation and candidate.
type ArtifactChange struct {
	// Artifact is groupId:artifactId.
	Artifact   string       `json:"artifact"`
	Status     ChangeStatus `json:"status"`
	OldVersion string       `json:"oldVersion,omitempty"`
	NewVersion string       `json:"newVersion,omitempty"`

	// Channel is the channel an update was resolved from, if known.
	Channel string `json:"channel,omitempty"`
}

// String renders the change on one line.
func (c ArtifactChange) String() string {
	switch c.Status {
	case ChangeAdded:
		return fmt.Sprintf("%s: [] ==> %s", c.Artifact, c.NewVersion)
	case ChangeRemoved:
		return fmt.Sprintf("%s: %s ==> []", c.Artifact, c.OldVersion)
	default:
		s := fmt.Sprintf("%s: %s ==> %s", c.Artifact, c.OldVersion, c.NewVersion)
		if c.Channel != "" {
			s += " [" + c.Channel + "]"
		}
		return s
	}
}

// UpdateSet is the list of artifact changes, sorted by artifact.
type UpdateSet struct {
	Changes []ArtifactChange `json:"changes"`
}

// IsEmpty reports whether there are no changes.
func (u *UpdateSet) IsEmpty() bool {
	return u == nil || len(u.Changes) == 0
}

// String joins the changes with "; ".
func (u *UpdateSet) String() string {
	if u.IsEmpty() {
		return ""
	}
	parts := make([]string, len(u.Changes))
	for i, c := range u.Changes {
		parts[i] = c.String()
	}
	return strings.Join(parts, "; ")
}
