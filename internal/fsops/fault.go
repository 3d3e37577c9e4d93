package fsops

import (
	"errors"
	"os"
	"strings"
)

// ErrInjectedFault is returned by FaultFS when a fault triggers.
var ErrInjectedFault = errors.New("injected filesystem fault")

// FaultFS wraps an FS and fails mutating operations for testing.
// A fault triggers once FailAfter mutations have succeeded (when FailAfter >= 0),
// or when the destination path contains FailOnPath (when non-empty).
// Unless Persistent is set, only the first fault is injected and later calls
// pass through, which models a transient failure a restore can recover from.
type FaultFS struct {
	FS

	FailAfter  int
	FailOnPath string

	// Persistent keeps failing every matching call once the first fault fired.
	Persistent bool

	// Mutations counts successful mutating calls.
	Mutations int

	// Fired reports whether a fault has been injected.
	Fired bool
}

// NewFaultFS creates a FaultFS that fails after n successful mutations.
// Use n < 0 to disable the counter.
func NewFaultFS(inner FS, n int) *FaultFS {
	return &FaultFS{FS: inner, FailAfter: n}
}

func (f *FaultFS) check(path string) error {
	if f.Fired && !f.Persistent {
		f.Mutations++
		return nil
	}
	if (f.FailOnPath != "" && strings.Contains(path, f.FailOnPath)) ||
		(f.FailAfter >= 0 && f.Mutations >= f.FailAfter) {
		f.Fired = true
		return &os.PathError{Op: "write", Path: path, Err: ErrInjectedFault}
	}
	f.Mutations++
	return nil
}

// Copy fails when a fault triggers, otherwise delegates.
func (f *FaultFS) Copy(src, dst string) error {
	if err := f.check(dst); err != nil {
		return err
	}
	return f.FS.Copy(src, dst)
}

// Remove fails when a fault triggers, otherwise delegates.
func (f *FaultFS) Remove(path string) error {
	if err := f.check(path); err != nil {
		return err
	}
	return f.FS.Remove(path)
}

// RemoveAll fails when a fault triggers, otherwise delegates.
func (f *FaultFS) RemoveAll(path string) error {
	if err := f.check(path); err != nil {
		return err
	}
	return f.FS.RemoveAll(path)
}

// AtomicWrite fails when a fault triggers, otherwise delegates.
func (f *FaultFS) AtomicWrite(path string, data []byte, perm os.FileMode) error {
	if err := f.check(path); err != nil {
		return err
	}
	return f.FS.AtomicWrite(path, data, perm)
}
