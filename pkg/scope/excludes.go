package scope

import (
	"fmt"
	"path/filepath"

	"github.com/gobwas/glob"

	"github.com/ritzau/build-state/pkg/fsstate"
)

// GlobExcludes matches files against project-level exclusion globs, e.g.
// "**/*.tmp" or "**/testdata/**". A file matching any pattern is never
// compiled and has its stamps removed.
type GlobExcludes struct {
	patterns []glob.Glob
}

var _ fsstate.ExcludePatterns = (*GlobExcludes)(nil)

// NewGlobExcludes compiles the given patterns. Separator-aware: `*` does not
// cross path boundaries, `**` does.
func NewGlobExcludes(patterns ...string) (*GlobExcludes, error) {
	e := &GlobExcludes{}
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("compiling exclude pattern %q: %w", p, err)
		}
		e.patterns = append(e.patterns, g)
	}
	return e, nil
}

// IsExcluded reports whether file matches any exclusion pattern.
func (e *GlobExcludes) IsExcluded(file string) bool {
	f := filepath.ToSlash(file)
	for _, g := range e.patterns {
		if g.Match(f) {
			return true
		}
	}
	return false
}
