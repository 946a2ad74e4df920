package fsstate

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// RootDescriptor describes one physical source root: its directory, the
// target that owns it, and its flags. Immutable once created; comparable, so
// it can key the per-root dirty sets directly.
type RootDescriptor struct {
	Root        string // absolute path to the root directory
	Target      Target
	IsTestRoot  bool
	IsGenerated bool
	IsTemp      bool
}

// NewRootDescriptor normalizes root to an absolute, slash-separated path.
func NewRootDescriptor(root string, target Target, isTestRoot, isGenerated, isTemp bool) RootDescriptor {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	return RootDescriptor{
		Root:        filepath.ToSlash(filepath.Clean(abs)),
		Target:      target,
		IsTestRoot:  isTestRoot,
		IsGenerated: isGenerated,
		IsTemp:      isTemp,
	}
}

// RootID returns the slash-normalized root path, the stable identity of this
// root across platforms.
func (rd RootDescriptor) RootID() string {
	return rd.Root
}

// Contains reports whether path lies under this root.
func (rd RootDescriptor) Contains(path string) bool {
	p := filepath.ToSlash(filepath.Clean(path))
	return p == rd.Root || strings.HasPrefix(p, rd.Root+"/")
}

func (rd RootDescriptor) String() string {
	return fmt.Sprintf("root{target=%s, root=%s, test=%t, generated=%t}",
		rd.Target, rd.Root, rd.IsTestRoot, rd.IsGenerated)
}

// RootSet indexes the registered source roots so a changed file can be
// attributed to the most specific root containing it. Roots may nest (e.g. a
// generated-sources root inside a module root); FindRoot always picks the
// deepest match.
type RootSet struct {
	roots []RootDescriptor
}

// NewRootSet creates a root set from the given descriptors.
func NewRootSet(roots ...RootDescriptor) *RootSet {
	s := &RootSet{}
	for _, rd := range roots {
		s.Add(rd)
	}
	return s
}

// Add registers a root descriptor. Roots are kept sorted by descending path
// length so the first containing root is the most specific one.
func (s *RootSet) Add(rd RootDescriptor) {
	s.roots = append(s.roots, rd)
	sort.Slice(s.roots, func(i, j int) bool {
		return len(s.roots[i].Root) > len(s.roots[j].Root)
	})
}

// Roots returns all registered roots.
func (s *RootSet) Roots() []RootDescriptor {
	return s.roots
}

// ByTarget returns the roots owned by the given target.
func (s *RootSet) ByTarget(t Target) []RootDescriptor {
	var out []RootDescriptor
	for _, rd := range s.roots {
		if rd.Target == t {
			out = append(out, rd)
		}
	}
	return out
}

// Targets returns the distinct targets that own at least one root.
func (s *RootSet) Targets() []Target {
	seen := make(map[Target]struct{})
	var out []Target
	for _, rd := range s.roots {
		if _, ok := seen[rd.Target]; ok {
			continue
		}
		seen[rd.Target] = struct{}{}
		out = append(out, rd.Target)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// FindRoot returns the most specific root containing path, if any.
func (s *RootSet) FindRoot(path string) (RootDescriptor, bool) {
	for _, rd := range s.roots {
		if rd.Contains(path) {
			return rd, true
		}
	}
	return RootDescriptor{}, false
}
