// Package syspaths classifies installation paths as system paths, whose
// content is dictated by the distribution, or user paths, whose content is
// owned by the operator.
//
// Patterns come from the candidate's systempaths.txt, one per line, relative to
// the installation root with '/' separators. A pattern matches the path itself
// and everything below it; patterns may use doublestar globs ("bin/*.sh",
// "modules/**/module.xml"). Blank lines and lines starting with '#' are ignored.
package syspaths

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/danieljhkim/stagemerge/internal/config"
	"github.com/danieljhkim/stagemerge/internal/fsops"
)

// Matcher decides whether a relative path is a system path.
type Matcher struct {
	patterns []string
}

// New creates a Matcher from patterns. Invalid glob patterns are rejected.
func New(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		p = strings.TrimSuffix(filepath.ToSlash(p), "/")
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid system path pattern %q", p)
		}
		m.patterns = append(m.patterns, p)
	}
	return m, nil
}

// Load reads the system path list of the tree rooted at root.
// A missing list yields a Matcher that matches nothing.
func Load(fs fsops.FS, root string) (*Matcher, error) {
	path := config.NewLayout(root).SystemPathsFile()

	data, err := fs.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Matcher{}, nil
		}
		return nil, fmt.Errorf("failed to read system paths: %w", err)
	}

	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse system paths %s: %w", path, err)
	}

	return New(lines)
}

// IsSystemPath reports whether rel, or one of its ancestors, matches a pattern.
func (m *Matcher) IsSystemPath(rel string) bool {
	key := strings.TrimSuffix(filepath.ToSlash(filepath.Clean(rel)), "/")
	if key == "." || key == "" {
		return false
	}

	for candidate := key; ; {
		for _, pattern := range m.patterns {
			if ok, _ := doublestar.Match(pattern, candidate); ok {
				return true
			}
		}
		i := strings.LastIndex(candidate, "/")
		if i < 0 {
			return false
		}
		candidate = candidate[:i]
	}
}

// Patterns returns the loaded patterns.
func (m *Matcher) Patterns() []string {
	return append([]string(nil), m.patterns...)
}
