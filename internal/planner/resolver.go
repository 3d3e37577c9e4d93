package planner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/danieljhkim/stagemerge/internal/config"
	"github.com/danieljhkim/stagemerge/internal/fsdiff"
	"github.com/danieljhkim/stagemerge/internal/fsops"
	"github.com/danieljhkim/stagemerge/internal/hash"
)

// Recorder snapshots a path before it is mutated.
type Recorder interface {
	Record(path string) error
}

// SystemPaths classifies relative paths.
type SystemPaths interface {
	IsSystemPath(rel string) bool
}

// Resolver resolves user changes against a candidate tree.
type Resolver struct {
	fs          fsops.FS
	systemPaths SystemPaths
	logger      zerolog.Logger
}

// NewResolver creates a new Resolver.
func NewResolver(fs fsops.FS, systemPaths SystemPaths, logger zerolog.Logger) *Resolver {
	return &Resolver{
		fs:          fs,
		systemPaths: systemPaths,
		logger:      logger,
	}
}

// Resolve handles the removed, then added, then modified entries of diff and
// returns the conflicts in that order. With a nil rec nothing is written.
func (r *Resolver) Resolve(diff *fsdiff.Diff, installation, candidate string, rec Recorder) ([]FileConflict, error) {
	hasher, err := hash.New(diff.Algorithm)
	if err != nil {
		return nil, err
	}

	rs := &resolution{
		Resolver:     r,
		hasher:       hasher,
		installation: installation,
		candidate:    candidate,
		rec:          rec,
		conflicts:    []FileConflict{},
	}

	for _, e := range diff.Removed {
		if err := rs.removed(e); err != nil {
			return nil, err
		}
	}
	for _, e := range diff.Added {
		if config.IsReserved(e.RelPath()) {
			continue
		}
		if err := rs.added(e); err != nil {
			return nil, err
		}
	}
	for _, m := range diff.Modified {
		if err := rs.modified(m); err != nil {
			return nil, err
		}
	}

	return rs.conflicts, nil
}

// resolution holds the state of one Resolve call.
type resolution struct {
	*Resolver
	hasher       hash.Hasher
	installation string
	candidate    string
	rec          Recorder
	conflicts    []FileConflict
}

func (rs *resolution) dryRun() bool {
	return rs.rec == nil
}

func (rs *resolution) conflict(e *fsdiff.Entry, user, candidate Status, res Resolution) {
	c := FileConflict{
		Path:       strings.TrimSuffix(e.Key, "/"),
		User:       user,
		Candidate:  candidate,
		Resolution: res,
	}
	rs.conflicts = append(rs.conflicts, c)
	rs.logger.Debug().
		Str("path", c.Path).
		Str("user", string(user)).
		Str("candidate", string(candidate)).
		Str("resolution", string(res)).
		Msg("conflict")
}

// removed restores system paths the user deleted but the candidate still ships.
// Non-system paths are left to the tree sync.
func (rs *resolution) removed(e *fsdiff.Entry) error {
	rel := e.RelPath()
	src := filepath.Join(rs.candidate, rel)

	exists, err := rs.fs.Exists(src)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", src, err)
	}
	if !exists {
		rs.logger.Debug().Str("path", e.Key).Msg("removed by user and candidate")
		return nil
	}
	if !rs.systemPaths.IsSystemPath(rel) {
		rs.logger.Debug().Str("path", e.Key).Msg("removed by user, kept removed")
		return nil
	}

	rs.conflict(e, StatusRemoved, StatusModified, ResolutionOverwritten)
	if rs.dryRun() {
		return nil
	}

	dst := filepath.Join(rs.installation, rel)
	if err := rs.rec.Record(dst); err != nil {
		return err
	}
	if err := rs.fs.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create parent of %s: %w", rel, err)
	}
	if err := rs.fs.Copy(src, dst); err != nil {
		return fmt.Errorf("failed to restore %s: %w", rel, err)
	}

	return nil
}

func (rs *resolution) added(e *fsdiff.Entry) error {
	rel := e.RelPath()
	src := filepath.Join(rs.candidate, rel)

	info, err := rs.fs.Lstat(src)
	if err != nil {
		if os.IsNotExist(err) || errors.Is(err, syscall.ENOTDIR) {
			rs.logger.Debug().Str("path", e.Key).Msg("added by user only")
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}

	if e.Dir != info.IsDir() {
		// A file and a directory cannot share the path: the user's side stays
		// and a candidate file is parked next to the user's directory.
		rs.conflict(e, StatusAdded, StatusAdded, ResolutionUserPreserved)
		if e.Dir {
			return rs.glnew(rel)
		}
		return nil
	}
	if e.Dir {
		for _, child := range e.Children {
			if err := rs.added(child); err != nil {
				return err
			}
		}
		return nil
	}

	candidateHash, err := rs.hash(src, rel)
	if err != nil {
		return err
	}
	if candidateHash == e.Hash {
		rs.logger.Debug().Str("path", e.Key).Msg("added file matches the candidate")
		return nil
	}

	if rs.systemPaths.IsSystemPath(rel) {
		rs.conflict(e, StatusAdded, StatusAdded, ResolutionOverwritten)
		return rs.glold(rel)
	}
	rs.conflict(e, StatusAdded, StatusAdded, ResolutionUserPreserved)
	return rs.glnew(rel)
}

func (rs *resolution) modified(m fsdiff.Modified) error {
	e := m.Installation
	rel := e.RelPath()
	src := filepath.Join(rs.candidate, rel)

	exists, err := rs.fs.Exists(src)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", src, err)
	}
	if !exists {
		rs.conflict(e, StatusModified, StatusRemoved, ResolutionUserPreserved)
		return nil
	}

	candidateHash, err := rs.hash(src, rel)
	if err != nil {
		return err
	}
	if candidateHash == e.Hash {
		rs.logger.Debug().Str("path", e.Key).Msg("modified file matches the candidate")
		return nil
	}
	if candidateHash == m.Original.Hash {
		// the candidate did not change the file: the user's edit stands
		return nil
	}

	if rs.systemPaths.IsSystemPath(rel) {
		rs.conflict(e, StatusModified, StatusModified, ResolutionOverwritten)
		return rs.glold(rel)
	}
	rs.conflict(e, StatusModified, StatusModified, ResolutionUserPreserved)
	return rs.glnew(rel)
}

// glnew parks the candidate's version next to the user's file.
func (rs *resolution) glnew(rel string) error {
	if rs.dryRun() {
		return nil
	}

	sidecar := filepath.Join(rs.installation, rel+config.GlnewSuffix)
	if err := rs.rec.Record(sidecar); err != nil {
		return err
	}
	if err := rs.fs.Copy(filepath.Join(rs.candidate, rel), sidecar); err != nil {
		return fmt.Errorf("failed to persist %s: %w", sidecar, err)
	}

	return nil
}

// glold parks the user's version and replaces it with the candidate's.
func (rs *resolution) glold(rel string) error {
	if rs.dryRun() {
		return nil
	}

	dst := filepath.Join(rs.installation, rel)
	sidecar := dst + config.GloldSuffix
	if err := rs.rec.Record(sidecar); err != nil {
		return err
	}
	if err := rs.fs.Copy(dst, sidecar); err != nil {
		return fmt.Errorf("failed to persist %s: %w", sidecar, err)
	}
	if err := rs.rec.Record(dst); err != nil {
		return err
	}
	if err := rs.fs.Copy(filepath.Join(rs.candidate, rel), dst); err != nil {
		return fmt.Errorf("failed to replace %s: %w", dst, err)
	}

	return nil
}

func (rs *resolution) hash(path, rel string) (string, error) {
	h, err := rs.hasher.HashFile(path)
	if err != nil {
		return "", &HashError{Path: rel, Err: err}
	}
	return h, nil
}
