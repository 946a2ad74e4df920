package config

import (
	"fmt"
	"path/filepath"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/ritzau/build-state/pkg/fsstate"
)

// Manifest describes the build targets and source roots to track. It is the
// project model handed to this tool; target ordering and dependencies are
// the build driver's business, not ours.
type Manifest struct {
	Excludes []string         `koanf:"excludes"` // glob patterns, e.g. "**/*.tmp"
	Targets  []ManifestTarget `koanf:"target"`
}

// ManifestTarget declares one compilation unit and its roots
type ManifestTarget struct {
	ID    string         `koanf:"id"`
	Kind  string         `koanf:"kind"` // "production" (default) or "test"
	Roots []ManifestRoot `koanf:"root"`
}

// ManifestRoot declares one source root, relative to the workspace
type ManifestRoot struct {
	Path      string `koanf:"path"`
	Test      bool   `koanf:"test"`
	Generated bool   `koanf:"generated"`
	Temp      bool   `koanf:"temp"`
}

// LoadManifest reads and validates a TOML roots manifest
func LoadManifest(path string) (*Manifest, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load manifest %s: %w", path, err)
	}

	var m Manifest
	if err := k.Unmarshal("", &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}

	if len(m.Targets) == 0 {
		return nil, fmt.Errorf("manifest %s declares no targets", path)
	}
	for i, t := range m.Targets {
		if t.ID == "" {
			return nil, fmt.Errorf("manifest target %d has no id", i)
		}
		switch t.Kind {
		case "", string(fsstate.KindProduction), string(fsstate.KindTest):
		default:
			return nil, fmt.Errorf("target %s: unknown kind %q", t.ID, t.Kind)
		}
		if len(t.Roots) == 0 {
			return nil, fmt.Errorf("target %s declares no roots", t.ID)
		}
	}
	return &m, nil
}

// RootSet builds the root index from the manifest, resolving root paths
// against the workspace directory
func (m *Manifest) RootSet(workspace string) *fsstate.RootSet {
	roots := fsstate.NewRootSet()
	for _, mt := range m.Targets {
		kind := fsstate.TargetKind(mt.Kind)
		if mt.Kind == "" {
			kind = fsstate.KindProduction
		}
		target := fsstate.Target{ID: mt.ID, Kind: kind}
		for _, mr := range mt.Roots {
			path := mr.Path
			if !filepath.IsAbs(path) {
				path = filepath.Join(workspace, path)
			}
			roots.Add(fsstate.NewRootDescriptor(path, target, mr.Test, mr.Generated, mr.Temp))
		}
	}
	return roots
}
