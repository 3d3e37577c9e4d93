// Package fsdiff models the difference between the originally provisioned
// state of an installation and its live content.
//
// Entries are keyed by diff keys: root-relative paths using '/' separators,
// with a trailing '/' for directories. The ManifestProvider computes a Diff
// from the hash manifest recorded at provisioning time.
package fsdiff

import (
	"path/filepath"
	"strings"
)

// Entry is one path in a diff.
type Entry struct {
	// Key is the diff key ("a/b.txt" or "a/b/").
	Key string

	// Dir is true for directories.
	Dir bool

	// Hash is the content hash of a file; empty for directories.
	Hash string

	// Children holds the entries of a directory.
	Children []*Entry
}

// RelPath returns the entry's path in host form without a trailing separator.
func (e *Entry) RelPath() string {
	return FromKey(e.Key)
}

// Modified pairs the provisioned and live states of a changed file.
type Modified struct {
	Original     *Entry
	Installation *Entry
}

// Diff holds the user's changes relative to the provisioned base.
type Diff struct {
	// Algorithm names the hash function used for every Entry hash.
	Algorithm string

	Added    []*Entry
	Removed  []*Entry
	Modified []Modified

	added    map[string]*Entry
	modified map[string]int
}

// NewDiff creates an empty Diff whose hashes use algorithm.
func NewDiff(algorithm string) *Diff {
	return &Diff{
		Algorithm: algorithm,
		added:    make(map[string]*Entry),
		modified: make(map[string]int),
	}
}

// AddAdded appends a user-added entry. Directory children are indexed too,
// so lookups find any path inside an added tree.
func (d *Diff) AddAdded(e *Entry) {
	d.Added = append(d.Added, e)
	d.indexAdded(e)
}

func (d *Diff) indexAdded(e *Entry) {
	d.added[e.Key] = e
	for _, c := range e.Children {
		d.indexAdded(c)
	}
}

// AddRemoved appends a user-removed entry.
func (d *Diff) AddRemoved(e *Entry) {
	d.Removed = append(d.Removed, e)
}

// AddModified appends a user-modified file.
func (d *Diff) AddModified(original, installation *Entry) {
	d.Modified = append(d.Modified, Modified{Original: original, Installation: installation})
	d.modified[installation.Key] = len(d.Modified) - 1
}

// AddedEntry returns the added entry for key, or nil.
func (d *Diff) AddedEntry(key string) *Entry {
	return d.added[key]
}

// ModifiedEntry returns the modified pair for key, or nil.
func (d *Diff) ModifiedEntry(key string) *Modified {
	if i, ok := d.modified[key]; ok {
		return &d.Modified[i]
	}
	return nil
}

// ChangedUnder reports whether the user added or modified dirKey itself or
// any path below it.
func (d *Diff) ChangedUnder(dirKey string) bool {
	for key := range d.added {
		if strings.HasPrefix(key, dirKey) {
			return true
		}
	}
	for key := range d.modified {
		if strings.HasPrefix(key, dirKey) {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the user changed nothing.
func (d *Diff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// Key converts a host relative path to its diff key.
func Key(rel string, dir bool) string {
	key := filepath.ToSlash(filepath.Clean(rel))
	if key == "." {
		key = ""
	}
	if dir && !strings.HasSuffix(key, "/") {
		key += "/"
	}
	return key
}

// FromKey converts a diff key back to a host relative path.
func FromKey(key string) string {
	return filepath.FromSlash(strings.TrimSuffix(key, "/"))
}

// ParentKeys returns the directory keys of every ancestor of key, nearest first.
func ParentKeys(key string) []string {
	trimmed := strings.TrimSuffix(key, "/")
	var parents []string
	for {
		i := strings.LastIndex(trimmed, "/")
		if i < 0 {
			return parents
		}
		trimmed = trimmed[:i]
		parents = append(parents, trimmed+"/")
	}
}
