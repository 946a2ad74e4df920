package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config holds all configuration for the build-state tool
type Config struct {
	Workspace    string `koanf:"workspace"`     // workspace root the manifest paths are relative to
	Manifest     string `koanf:"manifest"`      // path to the roots manifest (TOML)
	CacheDir     string `koanf:"cache_dir"`     // build cache directory holding the stamp database
	NoPersist    bool   `koanf:"no_persist"`    // keep stamps in memory only
	AlwaysRescan bool   `koanf:"always_rescan"` // re-derive dirtiness from disk on every build
	Watch        bool   `koanf:"watch"`         // keep running and apply filesystem notifications
	Web          bool   `koanf:"web"`           // serve the debug HTTP API
	Port         int    `koanf:"port"`          // debug server port
	Verbosity    string `koanf:"verbosity"`     // debug, info, warn or error
	QuietMillis  int    `koanf:"quiet_millis"`  // watcher debounce quiet period
	MaxWaitMs    int    `koanf:"max_wait_ms"`   // watcher debounce upper bound
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults
func Load(f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	defaults := map[string]interface{}{
		"workspace":     ".",
		"manifest":      "build-state.toml",
		"cache_dir":     ".build-state",
		"no_persist":    false,
		"always_rescan": false,
		"watch":         false,
		"web":           false,
		"port":          8080,
		"verbosity":     "info",
		"quiet_millis":  300,
		"max_wait_ms":   2000,
	}
	if err := k.Load(makeMapProvider(defaults), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config File (optional) - build-state.toml carries config keys next
	// to the roots manifest; resolved against the workspace so runs from
	// outside it still pick the file up. Ignore a missing file.
	_ = k.Load(file.Provider(filepath.Join(workspaceHint(f), "build-state.toml")), toml.Parser())

	// 3. Environment Variables
	// Prefix: BUILD_STATE_ (e.g., BUILD_STATE_PORT=9090)
	if err := k.Load(env.Provider("BUILD_STATE_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "BUILD_STATE_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// Unmarshal into struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// workspaceHint resolves the workspace directory before the full config is
// loaded, honoring the same precedence (flag over env over default) for just
// this one value.
func workspaceHint(f *pflag.FlagSet) string {
	workspace := "."
	if v := os.Getenv("BUILD_STATE_WORKSPACE"); v != "" {
		workspace = v
	}
	if f != nil && f.Changed("workspace") {
		if ws, err := f.GetString("workspace"); err == nil {
			workspace = ws
		}
	}
	return workspace
}

// Helper to use map as a provider
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
