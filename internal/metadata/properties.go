package metadata

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/danieljhkim/stagemerge/internal/config"
	"github.com/danieljhkim/stagemerge/internal/fsops"
)

// CandidateProperties carries information about how a candidate was resolved.
type CandidateProperties struct {
	Updates []ComponentUpdate `yaml:"updates"`
}

// ComponentUpdate names the channel an artifact update was resolved from.
type ComponentUpdate struct {
	// Artifact is the groupId:artifactId key.
	Artifact string `yaml:"artifact"`
	Channel  string `yaml:"channel"`
}

// UpdateChannel returns the channel that supplied the artifact, or "".
func (p *CandidateProperties) UpdateChannel(key string) string {
	if p == nil {
		return ""
	}
	for _, u := range p.Updates {
		if u.Artifact == key {
			return u.Channel
		}
	}
	return ""
}

// ReadCandidateProperties loads the properties of the candidate rooted at root.
// Returns an error wrapping os.ErrNotExist when the file is absent.
func ReadCandidateProperties(fs fsops.FS, root string) (*CandidateProperties, error) {
	path := config.NewLayout(root).CandidatePropertiesFile()

	data, err := fs.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("candidate properties %s: %w", path, os.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to read candidate properties: %w", err)
	}

	var p CandidateProperties
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse candidate properties %s: %w", path, err)
	}

	return &p, nil
}

// WriteCandidateProperties writes the properties of the candidate rooted at root.
func WriteCandidateProperties(fs fsops.FS, root string, p *CandidateProperties) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal candidate properties: %w", err)
	}

	if err := fs.AtomicWrite(config.NewLayout(root).CandidatePropertiesFile(), data, 0644); err != nil {
		return fmt.Errorf("failed to write candidate properties: %w", err)
	}

	return nil
}
