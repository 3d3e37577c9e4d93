package fsdiff

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/danieljhkim/stagemerge/internal/config"
	"github.com/danieljhkim/stagemerge/internal/fsops"
	"github.com/danieljhkim/stagemerge/internal/hash"
)

// Provider computes the user's changes to an installation.
type Provider interface {
	// Compute returns the base-vs-live diff of the installation at root.
	Compute(root string) (*Diff, error)
}

// ManifestProvider computes diffs against the provisioned hash manifest.
// It only reads local state.
type ManifestProvider struct {
	fs fsops.FS
}

// NewManifestProvider creates a new ManifestProvider.
func NewManifestProvider(fs fsops.FS) *ManifestProvider {
	return &ManifestProvider{fs: fs}
}

// Compute walks the live tree and compares it with the hash manifest.
// A directory absent from the base is reported as a single added entry with
// its children; a base directory that no longer exists is reported as a
// single removed entry with the base files it held.
func (p *ManifestProvider) Compute(root string) (*Diff, error) {
	m, err := ReadManifest(p.fs, root)
	if err != nil {
		return nil, err
	}
	hasher, err := hash.New(m.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("hash manifest of %s: %w", root, err)
	}

	baseDirs := make(map[string]bool)
	for key := range m.Files {
		for _, pk := range ParentKeys(key) {
			baseDirs[pk] = true
		}
	}

	s := &scanner{
		fs:       p.fs,
		hasher:   hasher,
		manifest: m,
		baseDirs: baseDirs,
		seen:     make(map[string]bool),
		diff:     NewDiff(m.Algorithm),
	}
	if err := s.scanDir(root, ""); err != nil {
		return nil, err
	}
	if err := s.collectRemoved(root); err != nil {
		return nil, err
	}

	return s.diff, nil
}

type scanner struct {
	fs       fsops.FS
	hasher   hash.Hasher
	manifest *HashManifest
	baseDirs map[string]bool
	seen     map[string]bool
	diff     *Diff
}

func (s *scanner) scanDir(dir, prefix string) error {
	entries, err := s.fs.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	for _, e := range entries {
		if prefix == "" && config.IsReserved(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		key := prefix + e.Name()

		if e.IsDir() {
			dirKey := key + "/"
			if s.baseDirs[dirKey] {
				if err := s.scanDir(path, dirKey); err != nil {
					return err
				}
				continue
			}
			added, err := s.liveTree(path, dirKey)
			if err != nil {
				return err
			}
			s.diff.AddAdded(added)
			continue
		}

		h, err := s.hasher.HashFile(path)
		if err != nil {
			return fmt.Errorf("failed to hash %s: %w", key, err)
		}
		s.seen[key] = true

		base, ok := s.manifest.Files[key]
		switch {
		case !ok:
			s.diff.AddAdded(&Entry{Key: key, Hash: h})
		case base != h:
			s.diff.AddModified(&Entry{Key: key, Hash: base}, &Entry{Key: key, Hash: h})
		}
	}

	return nil
}

// liveTree builds the entry of a directory that does not exist in the base.
func (s *scanner) liveTree(dir, dirKey string) (*Entry, error) {
	entry := &Entry{Key: dirKey, Dir: true}

	children, err := s.fs.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	for _, c := range children {
		path := filepath.Join(dir, c.Name())
		if c.IsDir() {
			child, err := s.liveTree(path, dirKey+c.Name()+"/")
			if err != nil {
				return nil, err
			}
			entry.Children = append(entry.Children, child)
			continue
		}
		key := dirKey + c.Name()
		h, err := s.hasher.HashFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to hash %s: %w", key, err)
		}
		entry.Children = append(entry.Children, &Entry{Key: key, Hash: h})
	}

	return entry, nil
}

func (s *scanner) collectRemoved(root string) error {
	var missing []string
	for key := range s.manifest.Files {
		if !s.seen[key] {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)

	emitted := make(map[string]bool)
	for _, key := range missing {
		top, err := s.topMissingDir(root, key)
		if err != nil {
			return err
		}
		if top == "" {
			s.diff.AddRemoved(&Entry{Key: key, Hash: s.manifest.Files[key]})
			continue
		}
		if emitted[top] {
			continue
		}
		emitted[top] = true
		s.diff.AddRemoved(baseTree(top, s.manifest.Files))
	}

	return nil
}

// topMissingDir returns the outermost ancestor directory of key that no
// longer exists, or "" when the parent directory is still present.
func (s *scanner) topMissingDir(root, key string) (string, error) {
	parents := ParentKeys(key)
	for i := len(parents) - 1; i >= 0; i-- {
		exists, err := s.fs.Exists(filepath.Join(root, FromKey(parents[i])))
		if err != nil {
			return "", fmt.Errorf("failed to check %s: %w", parents[i], err)
		}
		if !exists {
			return parents[i], nil
		}
	}
	return "", nil
}

// baseTree builds a directory entry holding every base file under dirKey.
func baseTree(dirKey string, files map[string]string) *Entry {
	root := &Entry{Key: dirKey, Dir: true}
	dirs := map[string]*Entry{dirKey: root}

	var ensureDir func(key string) *Entry
	ensureDir = func(key string) *Entry {
		if e, ok := dirs[key]; ok {
			return e
		}
		e := &Entry{Key: key, Dir: true}
		dirs[key] = e
		parent := ensureDir(ParentKeys(key)[0])
		parent.Children = append(parent.Children, e)
		return e
	}

	var keys []string
	for key := range files {
		if strings.HasPrefix(key, dirKey) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		parent := ensureDir(ParentKeys(key)[0])
		parent.Children = append(parent.Children, &Entry{Key: key, Hash: files[key]})
	}

	return root
}
