package fsdiff

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/danieljhkim/stagemerge/internal/config"
	"github.com/danieljhkim/stagemerge/internal/fsops"
	"github.com/danieljhkim/stagemerge/internal/hash"
)

// ErrNoManifest indicates the tree has no provisioned hash manifest.
var ErrNoManifest = errors.New("no provisioned hash manifest")

// HashManifest records the content hashes of a tree as provisioned.
type HashManifest struct {
	// Algorithm is the hash function the entries were computed with.
	Algorithm string `yaml:"algorithm"`

	// Files maps file diff keys to hex digests.
	Files map[string]string `yaml:"files"`
}

// ReadManifest loads the hash manifest of the tree rooted at root.
func ReadManifest(fs fsops.FS, root string) (*HashManifest, error) {
	path := config.NewLayout(root).HashManifestFile()

	data, err := fs.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrNoManifest, path)
		}
		return nil, fmt.Errorf("failed to read hash manifest: %w", err)
	}

	var m HashManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse hash manifest %s: %w", path, err)
	}
	if m.Files == nil {
		m.Files = make(map[string]string)
	}
	for key := range m.Files {
		if err := fs.ValidateRelPath(FromKey(key)); err != nil {
			return nil, fmt.Errorf("invalid key %q in hash manifest %s: %w", key, path, err)
		}
	}
	if m.Algorithm == "" {
		m.Algorithm = hash.AlgorithmSHA256
	}

	return &m, nil
}

// WriteManifest hashes every file of the tree rooted at root, outside the
// reserved metadata subtrees, and records the result as its provisioned state.
func WriteManifest(fs fsops.FS, hasher hash.Hasher, root string) (*HashManifest, error) {
	m := &HashManifest{
		Algorithm: hasher.Algorithm(),
		Files:     make(map[string]string),
	}

	err := fsops.WalkTree(fs, root, fsops.Visitor{
		PreDir: func(path, rel string) (fsops.WalkAction, error) {
			if rel != "." && config.IsReserved(rel) {
				return fsops.WalkSkipSubtree, nil
			}
			return fsops.WalkContinue, nil
		},
		File: func(path, rel string) error {
			h, err := hasher.HashFile(path)
			if err != nil {
				return fmt.Errorf("failed to hash %s: %w", rel, err)
			}
			m.Files[Key(rel, false)] = h
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal hash manifest: %w", err)
	}
	if err := fs.AtomicWrite(config.NewLayout(root).HashManifestFile(), data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write hash manifest: %w", err)
	}

	return m, nil
}
