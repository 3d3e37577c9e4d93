package metadata

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/danieljhkim/stagemerge/internal/config"
	"github.com/danieljhkim/stagemerge/internal/fsops"
)

// Manifest is the channel manifest of an installation: the artifact versions
// it was provisioned from.
type Manifest struct {
	// Name is an optional human-readable manifest name.
	Name string `yaml:"name,omitempty"`

	// Streams lists the resolved artifacts.
	Streams []Stream `yaml:"streams"`
}

// Stream is one artifact of a manifest.
type Stream struct {
	GroupID    string `yaml:"groupId"`
	ArtifactID string `yaml:"artifactId"`
	Version    string `yaml:"version"`
}

// Key identifies the artifact independently of its version.
func (s Stream) Key() string {
	return s.GroupID + ":" + s.ArtifactID
}

// String returns groupId:artifactId:version.
func (s Stream) String() string {
	return s.Key() + ":" + s.Version
}

// ReadManifest loads the channel manifest of the tree rooted at root.
// A missing manifest yields an empty one.
func ReadManifest(fs fsops.FS, root string) (*Manifest, error) {
	path := config.NewLayout(root).ManifestFile()

	data, err := fs.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Manifest{}, nil
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}

	return &m, nil
}

// WriteManifest writes the channel manifest of the tree rooted at root.
func WriteManifest(fs fsops.FS, root string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := fs.AtomicWrite(config.NewLayout(root).ManifestFile(), data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	return nil
}
