// Package metadata reads and writes the installation metadata subtree:
// the candidate marker, the channel manifest, the history log and the
// candidate properties.
//
// All files are YAML and are written with fsops.AtomicWrite, so a reader
// sees either the old or the new version of a file, never a partial one.
package metadata
