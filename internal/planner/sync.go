package planner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/danieljhkim/stagemerge/internal/config"
	"github.com/danieljhkim/stagemerge/internal/fsdiff"
	"github.com/danieljhkim/stagemerge/internal/fsops"
)

// Sync brings the installation in line with the candidate after conflicts
// have been resolved. A forward pass copies candidate files that are new or
// differ, leaving alone paths the user added or modified. A reverse pass
// deletes installation files the candidate does not ship and prunes emptied
// directories, leaving alone user additions and sidecars.
// Every path is recorded into rec before it is written or deleted.
func (r *Resolver) Sync(diff *fsdiff.Diff, installation, candidate string, rec Recorder) error {
	if err := r.copyForward(diff, installation, candidate, rec); err != nil {
		return err
	}
	return r.deleteReverse(diff, installation, candidate, rec)
}

func skipReserved(_ string, rel string) (fsops.WalkAction, error) {
	if rel != "." && config.IsReserved(rel) {
		return fsops.WalkSkipSubtree, nil
	}
	return fsops.WalkContinue, nil
}

func (r *Resolver) copyForward(diff *fsdiff.Diff, installation, candidate string, rec Recorder) error {
	return fsops.WalkTree(r.fs, candidate, fsops.Visitor{
		PreDir: func(path, rel string) (fsops.WalkAction, error) {
			if action, _ := skipReserved(path, rel); action == fsops.WalkSkipSubtree || rel == "." {
				return action, nil
			}
			if diff.AddedEntry(fsdiff.Key(rel, false)) != nil {
				r.logger.Debug().Str("path", rel).Msg("keeping file added by user in place of a candidate directory")
				return fsops.WalkSkipSubtree, nil
			}
			return fsops.WalkContinue, nil
		},
		File: func(src, rel string) error {
			key := fsdiff.Key(rel, false)
			if diff.ModifiedEntry(key) != nil || diff.AddedEntry(key) != nil || parentAdded(diff, key) {
				return nil
			}
			if diff.ChangedUnder(fsdiff.Key(rel, true)) {
				r.logger.Debug().Str("path", key).Msg("keeping directory with user changes in place of a candidate file")
				return nil
			}

			dst := filepath.Join(installation, rel)
			same, err := r.sameFile(src, dst)
			if err != nil {
				return err
			}
			if same {
				return nil
			}

			r.logger.Debug().Str("path", key).Msg("copying candidate file")
			if err := rec.Record(dst); err != nil {
				return err
			}
			if err := r.fs.Copy(src, dst); err != nil {
				return fmt.Errorf("failed to copy %s: %w", key, err)
			}
			return nil
		},
	})
}

// sameFile reports whether dst is a regular file with the content of src.
func (r *Resolver) sameFile(src, dst string) (bool, error) {
	info, err := r.fs.Lstat(dst)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", dst, err)
	}
	if !info.Mode().IsRegular() {
		return false, nil
	}

	same, err := r.fs.ContentEquals(src, dst)
	if err != nil {
		return false, &HashError{Path: dst, Err: err}
	}
	return same, nil
}

func (r *Resolver) deleteReverse(diff *fsdiff.Diff, installation, candidate string, rec Recorder) error {
	inCandidate := func(rel string) (bool, error) {
		exists, err := r.fs.Exists(filepath.Join(candidate, rel))
		if err != nil {
			return false, fmt.Errorf("failed to check %s in candidate: %w", rel, err)
		}
		return exists, nil
	}

	return fsops.WalkTree(r.fs, installation, fsops.Visitor{
		PreDir: func(path, rel string) (fsops.WalkAction, error) {
			if action, _ := skipReserved(path, rel); action == fsops.WalkSkipSubtree || rel == "." {
				return action, nil
			}
			if diff.AddedEntry(fsdiff.Key(rel, true)) == nil {
				return fsops.WalkContinue, nil
			}
			exists, err := inCandidate(rel)
			if err != nil {
				return fsops.WalkContinue, err
			}
			if !exists {
				r.logger.Debug().Str("path", rel).Msg("keeping directory added by user")
				return fsops.WalkSkipSubtree, nil
			}
			return fsops.WalkContinue, nil
		},
		File: func(path, rel string) error {
			key := fsdiff.Key(rel, false)
			if diff.AddedEntry(key) != nil || diff.ModifiedEntry(key) != nil || isSidecar(rel) {
				return nil
			}
			exists, err := inCandidate(rel)
			if err != nil || exists {
				return err
			}

			r.logger.Debug().Str("path", key).Msg("deleting file absent from candidate")
			if err := rec.Record(path); err != nil {
				return err
			}
			if err := r.fs.RemoveAll(path); err != nil {
				return fmt.Errorf("failed to delete %s: %w", key, err)
			}
			return nil
		},
		PostDir: func(path, rel string) error {
			if rel == "." || diff.AddedEntry(fsdiff.Key(rel, true)) != nil {
				return nil
			}
			exists, err := inCandidate(rel)
			if err != nil || exists {
				return err
			}
			children, err := r.fs.ReadDir(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			if len(children) > 0 {
				return nil
			}

			r.logger.Debug().Str("path", rel).Msg("deleting directory absent from candidate")
			if err := rec.Record(path); err != nil {
				return err
			}
			if err := r.fs.RemoveAll(path); err != nil {
				return fmt.Errorf("failed to delete %s: %w", rel, err)
			}
			return nil
		},
	})
}

func parentAdded(diff *fsdiff.Diff, key string) bool {
	for _, pk := range fsdiff.ParentKeys(key) {
		if diff.AddedEntry(pk) != nil {
			return true
		}
	}
	return false
}

func isSidecar(rel string) bool {
	return strings.HasSuffix(rel, config.GlnewSuffix) || strings.HasSuffix(rel, config.GloldSuffix)
}
