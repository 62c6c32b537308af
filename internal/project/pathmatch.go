package project

import (
	"github.com/bmatcuk/doublestar/v4"
)

// PathMatcher decides which repository paths affect a project. A matcher is
// built from the project's prefix and accumulates exclusions for any
// sub-projects anchored below that prefix, so that a commit touching only a
// sub-project does not count against its parent.
type PathMatcher struct {
	includes []string
	excludes []string
}

// NewPrefixMatcher creates a matcher covering everything under the given
// repo-relative prefix. An empty prefix covers the whole repository.
func NewPrefixMatcher(prefix string) *PathMatcher {
	return &PathMatcher{includes: []string{prefix + "**"}}
}

// Exclude removes everything under the given prefix from the matcher.
func (m *PathMatcher) Exclude(prefix string) {
	m.excludes = append(m.excludes, prefix+"**")
}

// Matches reports whether a repo-relative path is relevant to the project.
func (m *PathMatcher) Matches(path string) bool {
	for _, pattern := range m.excludes {
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return false
		}
	}
	for _, pattern := range m.includes {
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return true
		}
	}
	return false
}
