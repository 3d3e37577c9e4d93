package metadata

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/danieljhkim/stagemerge/internal/clock"
	"github.com/danieljhkim/stagemerge/internal/config"
	"github.com/danieljhkim/stagemerge/internal/fsops"
)

// ChangeType describes why a history revision was recorded.
type ChangeType string

const (
	ChangeInstall     ChangeType = "INSTALL"
	ChangeUpdate      ChangeType = "UPDATE"
	ChangeRollback    ChangeType = "ROLLBACK"
	ChangeFeaturePack ChangeType = "FEATURE_PACK"
)

// Revision is one entry of the history log.
type Revision struct {
	ID        string     `yaml:"id" json:"id"`
	Type      ChangeType `yaml:"type" json:"type"`
	Timestamp time.Time  `yaml:"timestamp" json:"timestamp"`

	// Artifacts snapshots the manifest streams at this revision.
	Artifacts []string `yaml:"artifacts,omitempty" json:"artifacts,omitempty"`
}

// History is the revision log of an installation, newest first.
type History struct {
	Revisions []Revision `yaml:"revisions"`
}

// Head returns the most recent revision, or nil for an empty log.
func (h *History) Head() *Revision {
	if len(h.Revisions) == 0 {
		return nil
	}
	return &h.Revisions[0]
}

// ReadHistory loads the history log of the tree rooted at root.
// A missing log yields an empty history.
func ReadHistory(fs fsops.FS, root string) (*History, error) {
	path := config.NewLayout(root).HistoryFile()

	data, err := fs.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &History{}, nil
		}
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	var h History
	if err := yaml.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to parse history %s: %w", path, err)
	}

	return &h, nil
}

// WriteHistory writes the history log of the tree rooted at root.
func WriteHistory(fs fsops.FS, root string, h *History) error {
	data, err := yaml.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	if err := fs.AtomicWrite(config.NewLayout(root).HistoryFile(), data, 0644); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}

	return nil
}

// AppendRevision records a new head revision of the given type, snapshotting
// the current manifest of root. It returns the new revision.
func AppendRevision(fs fsops.FS, clk clock.Clock, root string, changeType ChangeType) (*Revision, error) {
	h, err := ReadHistory(fs, root)
	if err != nil {
		return nil, err
	}
	m, err := ReadManifest(fs, root)
	if err != nil {
		return nil, err
	}

	rev := Revision{
		ID:        uuid.NewString(),
		Type:      changeType,
		Timestamp: clk.Now().UTC(),
	}
	for _, s := range m.Streams {
		rev.Artifacts = append(rev.Artifacts, s.String())
	}

	h.Revisions = append([]Revision{rev}, h.Revisions...)
	if err := WriteHistory(fs, root, h); err != nil {
		return nil, err
	}

	return &rev, nil
}
