package metadata

import (
	"fmt"

	"github.com/danieljhkim/stagemerge/internal/fsops"
)

// Installation is the metadata of an installation or candidate tree.
type Installation struct {
	Root     string
	Manifest *Manifest
	History  *History
}

// LoadInstallation reads the manifest and history log of the tree rooted at root.
func LoadInstallation(fs fsops.FS, root string) (*Installation, error) {
	m, err := ReadManifest(fs, root)
	if err != nil {
		return nil, fmt.Errorf("load installation %s: %w", root, err)
	}
	h, err := ReadHistory(fs, root)
	if err != nil {
		return nil, fmt.Errorf("load installation %s: %w", root, err)
	}

	return &Installation{Root: root, Manifest: m, History: h}, nil
}

// RevisionID returns the ID of the head revision, or "" for an empty history.
func (i *Installation) RevisionID() string {
	if head := i.History.Head(); head != nil {
		return head.ID
	}
	return ""
}

// Artifacts returns the manifest streams keyed by groupId:artifactId.
func (i *Installation) Artifacts() map[string]Stream {
	out := make(map[string]Stream, len(i.Manifest.Streams))
	for _, s := range i.Manifest.Streams {
		out[s.Key()] = s
	}
	return out
}
