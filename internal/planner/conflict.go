package planner

import (
	"fmt"
)

// Status describes how one side of the merge changed a path.
type Status string

const (
	StatusAdded    Status = "added"
	StatusModified Status = "modified"
	StatusRemoved  Status = "removed"
)

// Resolution is the outcome of a conflict.
type Resolution string

const (
	// ResolutionOverwritten means the candidate's content replaced the user's.
	ResolutionOverwritten Resolution = "overwritten"

	// ResolutionUserPreserved means the user's content was kept in place.
	ResolutionUserPreserved Resolution = "user-preserved"
)

// FileConflict records a path changed by both the user and the candidate.
type FileConflict struct {
	// Path is relative to the installation root, with '/' separators.
	Path string `json:"path"`

	// User is how the user changed the path relative to the base.
	User Status `json:"user"`

	// Candidate is how the candidate changed the path.
	Candidate Status `json:"candidate"`

	Resolution Resolution `json:"resolution"`
}

// String returns a one-line description, e.g.
// "conf/x.txt: user modified, candidate modified -> user-preserved".
func (c FileConflict) String() string {
	return fmt.Sprintf("%s: user %s, candidate %s -> %s", c.Path, c.User, c.Candidate, c.Resolution)
}

// HashError reports a file whose content could not be hashed.
// A merge never proceeds on a partial comparison.
type HashError struct {
	Path string
	Err  error
}

func (e *HashError) Error() string {
	return fmt.Sprintf("failed to hash %s: %v", e.Path, e.Err)
}

func (e *HashError) Unwrap() error {
	return e.Err
}
