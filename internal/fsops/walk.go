package fsops

import (
	"fmt"
	"path/filepath"
)

// WalkAction tells WalkTree how to proceed after a directory pre-visit.
type WalkAction int

const (
	// WalkContinue descends into the directory.
	WalkContinue WalkAction = iota

	// WalkSkipSubtree skips the directory's children and its post-visit.
	WalkSkipSubtree
)

// Visitor holds the callbacks invoked by WalkTree. Nil callbacks are skipped.
// rel is the path relative to the walk root ("." for the root itself).
type Visitor struct {
	// PreDir is called before a directory's children are visited.
	PreDir func(path, rel string) (WalkAction, error)

	// File is called for every non-directory entry.
	File func(path, rel string) error

	// PostDir is called after a directory's children have been visited.
	// Children are listed before PostDir runs, so it may remove the directory.
	PostDir func(path, rel string) error
}

// WalkTree walks the tree rooted at root depth-first in lexical order.
// Symlinks are reported to File and never followed.
func WalkTree(fs FS, root string, v Visitor) error {
	return walkDir(fs, root, ".", v)
}

func walkDir(fs FS, path, rel string, v Visitor) error {
	if v.PreDir != nil {
		action, err := v.PreDir(path, rel)
		if err != nil {
			return err
		}
		if action == WalkSkipSubtree {
			return nil
		}
	}

	entries, err := fs.ReadDir(path)
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", path, err)
	}

	for _, entry := range entries {
		childPath := filepath.Join(path, entry.Name())
		childRel := entry.Name()
		if rel != "." {
			childRel = filepath.Join(rel, entry.Name())
		}

		if entry.IsDir() {
			if err := walkDir(fs, childPath, childRel, v); err != nil {
				return err
			}
			continue
		}
		if v.File != nil {
			if err := v.File(childPath, childRel); err != nil {
				return err
			}
		}
	}

	if v.PostDir != nil {
		return v.PostDir(path, rel)
	}
	return nil
}
