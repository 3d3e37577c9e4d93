package metadata

import (
	"fmt"
	"strings"
)

// Operation is the kind of change a candidate was prepared for.
type Operation string

const (
	// OperationUpdate moves the installation to newer artifact versions.
	OperationUpdate Operation = "UPDATE"

	// OperationRevert rolls the installation back to an earlier revision.
	OperationRevert Operation = "REVERT"

	// OperationFeatureAdd installs an additional feature pack.
	OperationFeatureAdd Operation = "FEATURE_ADD"
)

// ParseOperation converts a string (case-insensitive) to an Operation.
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(strings.ToUpper(strings.TrimSpace(s))); op {
	case OperationUpdate, OperationRevert, OperationFeatureAdd:
		return op, nil
	default:
		return "", fmt.Errorf("unknown operation %q (expected UPDATE, REVERT or FEATURE_ADD)", s)
	}
}

// ChangeType returns the history entry type recorded when a candidate of
// this operation is applied.
func (o Operation) ChangeType() ChangeType {
	switch o {
	case OperationRevert:
		return ChangeRollback
	case OperationFeatureAdd:
		return ChangeFeaturePack
	default:
		return ChangeUpdate
	}
}
