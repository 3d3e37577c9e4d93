// Package backup snapshots installation paths before they are mutated and
// restores them when an apply fails.
//
// A Session owns a staging directory. Every path is recorded before its
// first mutation: files are hard-linked (or copied) into the staging area,
// directories are recorded together with their children, and paths that do
// not exist yet are remembered as absent. Restore puts recorded files back and
// removes everything that was created after it was recorded.
package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/danieljhkim/stagemerge/internal/fsops"
)

var (
	// ErrSessionClosed is returned when a closed session is used.
	ErrSessionClosed = errors.New("backup session is closed")

	// ErrAlreadyRestored is returned when a session is restored twice, or
	// recorded into after a restore.
	ErrAlreadyRestored = errors.New("backup session already restored")

	// ErrOutsideRoot is returned when a recorded path is not inside the installation.
	ErrOutsideRoot = errors.New("path is outside the installation")
)

type entryKind int

const (
	kindFile entryKind = iota
	kindDir
	kindAbsent
)

// Session is a staged backup of one installation for the duration of one apply.
// It is not safe for concurrent use.
type Session struct {
	fs      fsops.FS
	root    string
	stage   string
	logger  zerolog.Logger
	entries map[string]entryKind

	restored bool
	closed   bool
}

// Open creates a session for the installation at root with a fresh staging
// directory inside tmpParent ("" means the default temp directory).
func Open(fs fsops.FS, root, tmpParent string, logger zerolog.Logger) (*Session, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve installation path: %w", err)
	}

	stage, err := fs.MkdirTemp(tmpParent, "stagemerge-backup-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create backup staging directory: %w", err)
	}

	logger.Debug().Str("stage", stage).Str("installation", absRoot).Msg("backup opened")

	return &Session{
		fs:      fs,
		root:    absRoot,
		stage:   stage,
		logger:  logger,
		entries: make(map[string]entryKind),
	}, nil
}

// Root returns the installation root the session protects.
func (s *Session) Root() string {
	return s.root
}

// Stage returns the staging directory.
func (s *Session) Stage() string {
	return s.stage
}

// Len returns the number of recorded paths.
func (s *Session) Len() int {
	return len(s.entries)
}

// Record snapshots path, an absolute path inside the installation, before it
// is mutated. Recording the same path again is a no-op, so the snapshot always
// holds the state before the first mutation. A path that does not exist is
// recorded as absent, together with its missing parent directories.
func (s *Session) Record(path string) error {
	if err := s.usable(); err != nil {
		return err
	}

	rel, err := s.rel(path)
	if err != nil {
		return err
	}
	if rel == "." {
		return s.RecordAll()
	}

	return s.record(rel)
}

// RecordAll snapshots the whole installation.
func (s *Session) RecordAll() error {
	if err := s.usable(); err != nil {
		return err
	}
	if _, ok := s.entries["."]; ok {
		return nil
	}

	s.entries["."] = kindDir
	children, err := s.fs.ReadDir(s.root)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", s.root, err)
	}
	for _, c := range children {
		if err := s.record(c.Name()); err != nil {
			return err
		}
	}

	return nil
}

func (s *Session) record(rel string) error {
	if _, ok := s.entries[rel]; ok {
		return nil
	}
	// Anything below a path that did not exist is new as well.
	if s.underAbsent(rel) {
		s.entries[rel] = kindAbsent
		return nil
	}

	full := filepath.Join(s.root, rel)
	info, err := s.fs.Lstat(full)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat %s: %w", full, err)
		}
		return s.recordAbsent(rel)
	}

	staged := filepath.Join(s.stage, rel)

	if info.IsDir() {
		s.entries[rel] = kindDir
		if err := s.fs.MkdirAll(staged, 0755); err != nil {
			return fmt.Errorf("failed to stage directory %s: %w", rel, err)
		}
		children, err := s.fs.ReadDir(full)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", full, err)
		}
		for _, c := range children {
			if err := s.record(filepath.Join(rel, c.Name())); err != nil {
				return err
			}
		}
		return nil
	}

	if err := s.fs.MkdirAll(filepath.Dir(staged), 0755); err != nil {
		return fmt.Errorf("failed to stage %s: %w", rel, err)
	}
	if err := s.fs.Link(full, staged); err != nil {
		// cross-device or unsupported: fall back to a copy
		if err := s.fs.Copy(full, staged); err != nil {
			return fmt.Errorf("failed to stage %s: %w", rel, err)
		}
	}
	s.entries[rel] = kindFile
	s.logger.Trace().Str("path", rel).Msg("recorded")

	return nil
}

func (s *Session) recordAbsent(rel string) error {
	s.entries[rel] = kindAbsent
	s.logger.Trace().Str("path", rel).Msg("recorded absent")

	for dir := filepath.Dir(rel); dir != "."; dir = filepath.Dir(dir) {
		if _, ok := s.entries[dir]; ok {
			return nil
		}
		exists, err := s.fs.Exists(filepath.Join(s.root, dir))
		if err != nil {
			return fmt.Errorf("failed to check %s: %w", dir, err)
		}
		if exists {
			return nil
		}
		s.entries[dir] = kindAbsent
	}

	return nil
}

func (s *Session) underAbsent(rel string) bool {
	for dir := filepath.Dir(rel); dir != "."; dir = filepath.Dir(dir) {
		if kind, ok := s.entries[dir]; ok {
			return kind == kindAbsent
		}
	}
	return false
}

// Restore returns every recorded path to its recorded state: staged files are
// copied back where their content differs, recorded directories are recreated,
// paths recorded as absent are removed, and children created inside recorded
// directories are removed. It keeps going after errors and returns them joined.
// Restore may be called once.
func (s *Session) Restore() error {
	if err := s.usable(); err != nil {
		return err
	}
	s.restored = true

	s.logger.Debug().Int("entries", len(s.entries)).Msg("restoring installation from backup")

	var files, dirs, absent []string
	for rel, kind := range s.entries {
		switch kind {
		case kindFile:
			files = append(files, rel)
		case kindDir:
			dirs = append(dirs, rel)
		case kindAbsent:
			absent = append(absent, rel)
		}
	}
	sort.Strings(files)
	sort.Strings(dirs)
	// deepest first
	sort.Slice(absent, func(i, j int) bool { return len(absent[i]) > len(absent[j]) })

	var errs []error

	for _, rel := range absent {
		full := filepath.Join(s.root, rel)
		if err := s.fs.RemoveAll(full); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", rel, err))
			continue
		}
		s.logger.Trace().Str("path", rel).Msg("removed created path")
	}

	for _, rel := range dirs {
		full := filepath.Join(s.root, rel)
		if info, err := s.fs.Lstat(full); err == nil && !info.IsDir() {
			if err := s.fs.RemoveAll(full); err != nil {
				errs = append(errs, fmt.Errorf("failed to remove %s: %w", rel, err))
				continue
			}
		}
		if err := s.fs.MkdirAll(full, 0755); err != nil {
			errs = append(errs, fmt.Errorf("failed to recreate %s: %w", rel, err))
		}
	}

	for _, rel := range files {
		if err := s.restoreFile(rel); err != nil {
			errs = append(errs, err)
		}
	}

	for _, rel := range dirs {
		if err := s.pruneCreated(rel); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (s *Session) restoreFile(rel string) error {
	full := filepath.Join(s.root, rel)
	staged := filepath.Join(s.stage, rel)

	info, err := s.fs.Lstat(full)
	switch {
	case err == nil && info.IsDir():
		if err := s.fs.RemoveAll(full); err != nil {
			return fmt.Errorf("failed to remove %s: %w", rel, err)
		}
	case err == nil && info.Mode().IsRegular():
		same, err := s.fs.ContentEquals(staged, full)
		if err != nil {
			return fmt.Errorf("failed to compare %s: %w", rel, err)
		}
		if same {
			return nil
		}
	case err != nil && !os.IsNotExist(err):
		return fmt.Errorf("failed to stat %s: %w", rel, err)
	}

	if err := s.fs.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("failed to recreate parent of %s: %w", rel, err)
	}
	if err := s.fs.Copy(staged, full); err != nil {
		return fmt.Errorf("failed to restore %s: %w", rel, err)
	}
	s.logger.Trace().Str("path", rel).Msg("restored")

	return nil
}

// pruneCreated removes children of a recorded directory that were not recorded.
func (s *Session) pruneCreated(rel string) error {
	full := filepath.Join(s.root, rel)
	children, err := s.fs.ReadDir(full)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", rel, err)
	}

	for _, c := range children {
		childRel := filepath.Join(rel, c.Name())
		if _, ok := s.entries[childRel]; ok {
			continue
		}
		if err := s.fs.RemoveAll(filepath.Join(full, c.Name())); err != nil {
			return fmt.Errorf("failed to remove %s: %w", childRel, err)
		}
		s.logger.Trace().Str("path", childRel).Msg("removed created path")
	}

	return nil
}

// Close removes the staging directory. It never fails; cleanup errors are
// logged. Close is idempotent.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true

	if err := s.fs.RemoveAll(s.stage); err != nil {
		s.logger.Warn().Err(err).Str("stage", s.stage).Msg("failed to remove backup staging directory")
		return
	}
	s.logger.Debug().Str("stage", s.stage).Msg("backup closed")
}

func (s *Session) usable() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.restored {
		return ErrAlreadyRestored
	}
	return nil
}

func (s *Session) rel(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	rel, err := filepath.Rel(s.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return rel, nil
}
