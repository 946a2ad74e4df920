// Package scope provides concrete compile-scope and exclude-pattern
// implementations for the contracts the file-system state consults before
// recompiling or stamping files.
package scope

import (
	"path/filepath"
	"strings"

	"github.com/ritzau/build-state/pkg/fsstate"
)

// All is a compile scope covering everything.
type All struct{}

var _ fsstate.CompileScope = All{}

func (All) IsAffected(fsstate.Target, string) bool { return true }

// Targets limits the build to an explicit set of targets; every file of an
// included target is affected.
type Targets struct {
	included map[fsstate.Target]struct{}
}

var _ fsstate.CompileScope = (*Targets)(nil)

// NewTargets creates a target-subset scope.
func NewTargets(targets ...fsstate.Target) *Targets {
	included := make(map[fsstate.Target]struct{}, len(targets))
	for _, t := range targets {
		included[t] = struct{}{}
	}
	return &Targets{included: included}
}

func (s *Targets) IsAffected(t fsstate.Target, _ string) bool {
	_, ok := s.included[t]
	return ok
}

// Paths limits the build to files under any of the given directory
// prefixes, regardless of target.
type Paths struct {
	prefixes []string
}

var _ fsstate.CompileScope = (*Paths)(nil)

// NewPaths creates a path-prefix scope. Prefixes are normalized to
// slash-separated cleaned paths.
func NewPaths(prefixes ...string) *Paths {
	s := &Paths{}
	for _, p := range prefixes {
		s.prefixes = append(s.prefixes, filepath.ToSlash(filepath.Clean(p)))
	}
	return s
}

func (s *Paths) IsAffected(_ fsstate.Target, file string) bool {
	f := filepath.ToSlash(filepath.Clean(file))
	for _, p := range s.prefixes {
		if f == p || strings.HasPrefix(f, p+"/") {
			return true
		}
	}
	return false
}
