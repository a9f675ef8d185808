// Package config loads ragrep's project configuration: a small, closed
// set of TOML keys layered from a global user file, a project file, and
// environment overrides, in that order of increasing precedence.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"ragrep/internal/errkit"
)

// DataDirName is the project-relative directory holding all persisted
// state: the store, socket, PID file, logs and config, per spec.md §6.1.
const DataDirName = ".data"

// WatchConfig controls the incremental refresh controller.
type WatchConfig struct {
	Enabled    bool `toml:"enabled"`
	DebounceMs int  `toml:"debounce_ms"`
}

// RetrievalConfig controls the Retriever's query pipeline.
type RetrievalConfig struct {
	TopNDefault      int `toml:"top_n_default"`
	OversampleFactor int `toml:"oversample_factor"`
	QueryTimeoutMs   int `toml:"query_timeout_ms"`
}

// StoreConfig locates the persisted index.
type StoreConfig struct {
	Path string `toml:"path"`
}

// Config is the plain configuration record the core operates on. It is
// the closed six-key set from spec §6.4; nothing else is recognized.
type Config struct {
	Watch     WatchConfig     `toml:"watch"`
	Retrieval RetrievalConfig `toml:"retrieval"`
	Store     StoreConfig     `toml:"store"`
}

// Default returns the documented defaults for all six keys.
func Default() Config {
	return Config{
		Watch: WatchConfig{
			Enabled:    true,
			DebounceMs: 1000,
		},
		Retrieval: RetrievalConfig{
			TopNDefault:      10,
			OversampleFactor: 5,
			QueryTimeoutMs:   30000,
		},
		Store: StoreConfig{
			Path: filepath.Join(DataDirName, "index.db"),
		},
	}
}

// GlobalPath returns the layered global config path,
// $XDG_CONFIG_HOME/ragrep/config.toml or ~/.config/ragrep/config.toml.
func GlobalPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ragrep", "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "ragrep", "config.toml")
	}
	return filepath.Join(home, ".config", "ragrep", "config.toml")
}

// ProjectPath returns the project-local config path under dataDir
// (<project>/.data/config.toml per §6.1).
func ProjectPath(dataDir string) string {
	return filepath.Join(dataDir, "config.toml")
}

// Load builds the effective configuration for a project rooted at
// projectRoot with persisted state under dataDir: defaults, overridden by
// the global user config (if present), overridden by the project config
// (if present), overridden by RAGREP_* environment variables.
func Load(projectRoot, dataDir string) (Config, error) {
	cfg := Default()

	if err := mergeFile(&cfg, GlobalPath()); err != nil {
		return Config{}, err
	}
	if err := mergeFile(&cfg, ProjectPath(dataDir)); err != nil {
		return Config{}, err
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}

	if !filepath.IsAbs(cfg.Store.Path) {
		cfg.Store.Path = filepath.Join(projectRoot, cfg.Store.Path)
	}

	return cfg, nil
}

// mergeFile decodes path (if it exists) on top of cfg, rejecting any key
// not part of the closed six-key set.
func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errkit.Wrap(errkit.IoError, err, "reading config %s", path)
	}

	meta, err := toml.Decode(string(data), cfg)
	if err != nil {
		return errkit.Wrap(errkit.InvalidConfig, err, "parsing config %s", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return errkit.New(errkit.InvalidConfig, "unrecognized key(s) in %s: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// applyEnvOverrides reads RAGREP_* environment variables, taking highest
// precedence over both config files.
func applyEnvOverrides(cfg *Config) error {
	if v, ok := os.LookupEnv("RAGREP_WATCH_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errkit.Wrap(errkit.InvalidConfig, err, "RAGREP_WATCH_ENABLED=%q", v)
		}
		cfg.Watch.Enabled = b
	}
	if v, ok := os.LookupEnv("RAGREP_WATCH_DEBOUNCE_MS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errkit.Wrap(errkit.InvalidConfig, err, "RAGREP_WATCH_DEBOUNCE_MS=%q", v)
		}
		cfg.Watch.DebounceMs = n
	}
	if v, ok := os.LookupEnv("RAGREP_RETRIEVAL_TOP_N_DEFAULT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errkit.Wrap(errkit.InvalidConfig, err, "RAGREP_RETRIEVAL_TOP_N_DEFAULT=%q", v)
		}
		cfg.Retrieval.TopNDefault = n
	}
	if v, ok := os.LookupEnv("RAGREP_RETRIEVAL_OVERSAMPLE_FACTOR"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errkit.Wrap(errkit.InvalidConfig, err, "RAGREP_RETRIEVAL_OVERSAMPLE_FACTOR=%q", v)
		}
		cfg.Retrieval.OversampleFactor = n
	}
	if v, ok := os.LookupEnv("RAGREP_RETRIEVAL_QUERY_TIMEOUT_MS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errkit.Wrap(errkit.InvalidConfig, err, "RAGREP_RETRIEVAL_QUERY_TIMEOUT_MS=%q", v)
		}
		cfg.Retrieval.QueryTimeoutMs = n
	}
	if v, ok := os.LookupEnv("RAGREP_STORE_PATH"); ok {
		cfg.Store.Path = v
	}
	return nil
}

// Validate rejects out-of-range values for the six keys.
func Validate(cfg Config) error {
	if cfg.Watch.DebounceMs <= 0 {
		return errkit.New(errkit.InvalidConfig, "watch.debounce_ms must be positive, got %d", cfg.Watch.DebounceMs)
	}
	if cfg.Retrieval.TopNDefault < 1 || cfg.Retrieval.TopNDefault > 100 {
		return errkit.New(errkit.InvalidConfig, "retrieval.top_n_default must be in [1, 100], got %d", cfg.Retrieval.TopNDefault)
	}
	if cfg.Retrieval.OversampleFactor < 1 {
		return errkit.New(errkit.InvalidConfig, "retrieval.oversample_factor must be >= 1, got %d", cfg.Retrieval.OversampleFactor)
	}
	if cfg.Retrieval.QueryTimeoutMs <= 0 {
		return errkit.New(errkit.InvalidConfig, "retrieval.query_timeout_ms must be positive, got %d", cfg.Retrieval.QueryTimeoutMs)
	}
	if strings.TrimSpace(cfg.Store.Path) == "" {
		return errkit.New(errkit.InvalidConfig, "store.path must not be empty")
	}
	return nil
}

// WriteTOML persists cfg to path, creating parent directories as needed.
// Used by the CLI's bootstrap to materialize a starter project config.
func WriteTOML(cfg Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errkit.Wrap(errkit.IoError, err, "creating config directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return errkit.Wrap(errkit.IoError, err, "creating config file %s", path)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return errkit.Wrap(errkit.IoError, err, "writing config file %s", path)
	}
	return nil
}
