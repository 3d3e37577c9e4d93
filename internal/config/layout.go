// Package config holds the fixed installation layout and the user settings.
//
// The layout describes where metadata lives inside an installation or a
// candidate tree; it is part of the on-disk format and is not configurable.
// Settings (settings.go) cover the tool's own behaviour and are loaded from
// defaults, an optional YAML file and STAGEMERGE_* environment variables.
package config

import (
	"path/filepath"
)

// Reserved top-level directories excluded from generic tree walks.
const (
	// MetadataDir holds the manifest, history log and installer configuration.
	MetadataDir = ".installation"

	// ProvisionedStateDir holds the provisioning layer's own state.
	ProvisionedStateDir = ".galleon"
)

// Files inside MetadataDir.
const (
	MarkerFileName              = ".update.txt"
	ManifestFileName            = "manifest.yaml"
	InstallerChannelsFileName   = "installer-channels.yaml"
	CurrentVersionFileName      = "manifest_version.yaml"
	HistoryFileName             = "history.yaml"
	CandidatePropertiesFileName = "candidate_properties.yaml"
	CacheDirName                = ".cache"
	LicensesDirName             = "licenses"
)

// Files inside ProvisionedStateDir.
const (
	HashesDirName       = "hashes"
	HashManifestName    = "files.yaml"
	SystemPathsFileName = "systempaths.txt"
)

// Sidecar suffixes for the losing side of a conflict.
const (
	GlnewSuffix = ".glnew"
	GloldSuffix = ".glold"
)

// StartupMarkers are created by a running server, relative to the installation root.
var StartupMarkers = []string{
	filepath.Join("standalone", "tmp", "startup-marker"),
	filepath.Join("domain", "tmp", "startup-marker"),
}

// Layout resolves metadata locations for an installation or candidate root.
type Layout struct {
	Root string
}

// NewLayout returns the Layout of the tree rooted at root.
func NewLayout(root string) Layout {
	return Layout{Root: root}
}

// MetadataDir returns the metadata subtree.
func (l Layout) MetadataDir() string {
	return filepath.Join(l.Root, MetadataDir)
}

// ProvisionedStateDir returns the provisioning layer's state subtree.
func (l Layout) ProvisionedStateDir() string {
	return filepath.Join(l.Root, ProvisionedStateDir)
}

// MarkerFile returns the candidate marker file.
func (l Layout) MarkerFile() string {
	return filepath.Join(l.MetadataDir(), MarkerFileName)
}

// ManifestFile returns the channel manifest.
func (l Layout) ManifestFile() string {
	return filepath.Join(l.MetadataDir(), ManifestFileName)
}

// InstallerChannelsFile returns the persisted installer configuration.
func (l Layout) InstallerChannelsFile() string {
	return filepath.Join(l.MetadataDir(), InstallerChannelsFileName)
}

// CurrentVersionFile returns the current versions record.
func (l Layout) CurrentVersionFile() string {
	return filepath.Join(l.MetadataDir(), CurrentVersionFileName)
}

// HistoryFile returns the history log.
func (l Layout) HistoryFile() string {
	return filepath.Join(l.MetadataDir(), HistoryFileName)
}

// CandidatePropertiesFile returns the candidate's channel name list.
func (l Layout) CandidatePropertiesFile() string {
	return filepath.Join(l.MetadataDir(), CandidatePropertiesFileName)
}

// CacheDir returns the artifact cache.
func (l Layout) CacheDir() string {
	return filepath.Join(l.MetadataDir(), CacheDirName)
}

// LicensesDir returns the accepted license records.
func (l Layout) LicensesDir() string {
	return filepath.Join(l.MetadataDir(), LicensesDirName)
}

// HashesDir returns the provisioned hash manifest directory.
func (l Layout) HashesDir() string {
	return filepath.Join(l.ProvisionedStateDir(), HashesDirName)
}

// HashManifestFile returns the provisioned hash manifest.
func (l Layout) HashManifestFile() string {
	return filepath.Join(l.HashesDir(), HashManifestName)
}

// SystemPathsFile returns the system path pattern list.
func (l Layout) SystemPathsFile() string {
	return filepath.Join(l.ProvisionedStateDir(), SystemPathsFileName)
}

// IsReserved reports whether a root-relative path lies in a reserved subtree.
func IsReserved(rel string) bool {
	first := rel
	if i := indexSeparator(rel); i >= 0 {
		first = rel[:i]
	}
	return first == MetadataDir || first == ProvisionedStateDir
}

func indexSeparator(p string) int {
	for i := 0; i < len(p); i++ {
		if p[i] == '/' || p[i] == filepath.Separator {
			return i
		}
	}
	return -1
}
