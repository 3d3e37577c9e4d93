package metadata

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/danieljhkim/stagemerge/internal/config"
	"github.com/danieljhkim/stagemerge/internal/fsops"
)

// ErrNoMarker indicates the directory carries no candidate marker.
var ErrNoMarker = errors.New("candidate marker not found")

// Marker identifies the installation state and operation a candidate was
// prepared for.
type Marker struct {
	// State is the installation revision ID the candidate was derived from.
	State string `yaml:"state"`

	// Operation is the operation the candidate was prepared for.
	Operation Operation `yaml:"operation"`
}

// ReadMarker loads the marker of the candidate rooted at root.
// Returns ErrNoMarker if the marker file does not exist.
func ReadMarker(fs fsops.FS, root string) (*Marker, error) {
	path := config.NewLayout(root).MarkerFile()

	data, err := fs.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoMarker
		}
		return nil, fmt.Errorf("failed to read marker: %w", err)
	}

	var m Marker
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse marker %s: %w", path, err)
	}
	op, err := ParseOperation(string(m.Operation))
	if err != nil {
		return nil, fmt.Errorf("invalid marker %s: %w", path, err)
	}
	m.Operation = op

	return &m, nil
}

// WriteMarker writes the marker of the candidate rooted at root.
func WriteMarker(fs fsops.FS, root string, m *Marker) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal marker: %w", err)
	}

	if err := fs.AtomicWrite(config.NewLayout(root).MarkerFile(), data, 0644); err != nil {
		return fmt.Errorf("failed to write marker: %w", err)
	}

	return nil
}
