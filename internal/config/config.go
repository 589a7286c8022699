// Package config loads the MessageStorage engine's runtime configuration,
// layering defaults, a global user file, a project file, and CLI
// overrides (spec §6's constant table, made loadable instead of
// compiled-in).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/spacepost/internal/storage"
)

// Config holds every tunable the storage engine needs.
type Config struct {
	StorageDir string `json:"storage_dir"` //nolint:tagliatelle // snake_case for config file
	FileExt    string `json:"file_ext,omitempty"`
	HistoryCap uint32 `json:"history_cap,omitempty"`
	BatchCap   uint32 `json:"batch_cap,omitempty"`
	MaxTextLen uint32 `json:"max_text_len,omitempty"`
}

// Sources tracks which config files actually contributed to the loaded
// Config, for diagnostics.
type Sources struct {
	Global  string
	Project string
}

// DefaultConfig mirrors spec §6's default constant table.
func DefaultConfig() Config {
	return Config{
		StorageDir: "/home/spaceposts",
		FileExt:    storage.DefaultFileExt,
		HistoryCap: storage.DefaultHistoryCap,
		BatchCap:   storage.DefaultBatchCap,
		MaxTextLen: storage.DefaultMaxTextLen,
	}
}

// ConfigFileName is the default project config file name.
const ConfigFileName = ".spacepost.json"

var (
	errConfigFileNotFound = errors.New("config: file not found")
	errConfigFileRead     = errors.New("config: failed to read file")
	errConfigInvalid      = errors.New("config: invalid")
	errStorageDirEmpty    = errors.New("config: storage_dir must not be empty")
)

// getGlobalConfigPath returns $XDG_CONFIG_HOME/spacepost/config.json, or
// ~/.config/spacepost/config.json if XDG_CONFIG_HOME is unset.
func getGlobalConfigPath(env []string) string {
	for _, e := range env {
		if after, ok := strings.CutPrefix(e, "XDG_CONFIG_HOME="); ok {
			return filepath.Join(after, "spacepost", "config.json")
		}
	}

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "spacepost", "config.json")
	}

	home, err := os.UserHomeDir()
	if err == nil {
		return filepath.Join(home, ".config", "spacepost", "config.json")
	}

	return ""
}

// Load loads configuration with the following precedence (highest wins):
//  1. Defaults
//  2. Global user config
//  3. Project config file (.spacepost.json) or an explicit configPath
//  4. CLI overrides
func Load(workDir, configPath string, cliOverrides Config, hasStorageDirOverride bool, env []string) (Config, Sources, error) {
	cfg := DefaultConfig()

	var sources Sources

	globalCfg, globalPath, err := loadGlobalConfig(env)
	if err != nil {
		return Config{}, Sources{}, err
	}

	sources.Global = globalPath
	cfg = mergeConfig(cfg, globalCfg)

	projectCfg, projectPath, err := loadProjectConfig(workDir, configPath)
	if err != nil {
		return Config{}, Sources{}, err
	}

	sources.Project = projectPath
	cfg = mergeConfig(cfg, projectCfg)

	if hasStorageDirOverride {
		cfg.StorageDir = cliOverrides.StorageDir
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, Sources{}, err
	}

	return cfg, sources, nil
}

func loadGlobalConfig(env []string) (Config, string, error) {
	path := getGlobalConfigPath(env)
	if path == "" {
		return Config{}, "", nil
	}

	cfg, explicitEmpty, loaded, err := loadConfigFile(path, false)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	if explicitEmpty["storage_dir"] {
		return Config{}, "", fmt.Errorf("%w %s: %w", errConfigInvalid, path, errStorageDirEmpty)
	}

	return cfg, path, nil
}

func loadProjectConfig(workDir, configPath string) (Config, string, error) {
	var cfgFile string

	var mustExist bool

	if configPath != "" {
		cfgFile = configPath
		if !filepath.IsAbs(cfgFile) {
			cfgFile = filepath.Join(workDir, cfgFile)
		}

		mustExist = true

		if _, err := os.Stat(cfgFile); err != nil {
			return Config{}, "", fmt.Errorf("%w: %s", errConfigFileNotFound, configPath)
		}
	} else {
		cfgFile = filepath.Join(workDir, ConfigFileName)
		mustExist = false
	}

	cfg, explicitEmpty, loaded, err := loadConfigFile(cfgFile, mustExist)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	if explicitEmpty["storage_dir"] {
		return Config{}, "", fmt.Errorf("%w %s: %w", errConfigInvalid, cfgFile, errStorageDirEmpty)
	}

	return cfg, cfgFile, nil
}

func loadConfigFile(path string, mustExist bool) (Config, map[string]bool, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is intentionally user-controlled
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, nil, false, nil
		}

		if mustExist {
			return Config{}, nil, false, fmt.Errorf("%w: %s", errConfigFileRead, path)
		}

		return Config{}, nil, false, nil
	}

	cfg, explicitEmpty, parseErr := parseConfig(data)
	if parseErr != nil {
		return Config{}, nil, false, fmt.Errorf("%w %s: %w", errConfigInvalid, path, parseErr)
	}

	return cfg, explicitEmpty, true, nil
}

func parseConfig(data []byte) (Config, map[string]bool, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, nil, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, nil, fmt.Errorf("invalid JSON: %w", err)
	}

	var raw map[string]any

	_ = json.Unmarshal(standardized, &raw)

	explicitEmpty := make(map[string]bool)

	if val, exists := raw["storage_dir"]; exists {
		if str, ok := val.(string); ok && str == "" {
			explicitEmpty["storage_dir"] = true
		}
	}

	return cfg, explicitEmpty, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.StorageDir != "" {
		base.StorageDir = overlay.StorageDir
	}

	if overlay.FileExt != "" {
		base.FileExt = overlay.FileExt
	}

	if overlay.HistoryCap != 0 {
		base.HistoryCap = overlay.HistoryCap
	}

	if overlay.BatchCap != 0 {
		base.BatchCap = overlay.BatchCap
	}

	if overlay.MaxTextLen != 0 {
		base.MaxTextLen = overlay.MaxTextLen
	}

	return base
}

func validateConfig(cfg Config) error {
	if cfg.StorageDir == "" {
		return errStorageDirEmpty
	}

	if cfg.BatchCap > cfg.HistoryCap {
		return fmt.Errorf("%w: batch_cap (%d) exceeds history_cap (%d)", errConfigInvalid, cfg.BatchCap, cfg.HistoryCap)
	}

	return nil
}

// Format renders cfg as indented JSON, for `spacepostctl config`-style
// inspection commands.
func Format(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format config: %w", err)
	}

	return string(data), nil
}

// EngineConfig adapts cfg to the storage.Config the Engine constructor
// expects.
func (c Config) EngineConfig() storage.Config {
	engineCfg := storage.DefaultConfig()
	engineCfg.FileExt = c.FileExt
	engineCfg.HistoryCap = c.HistoryCap
	engineCfg.BatchCap = c.BatchCap
	engineCfg.MaxTextLen = c.MaxTextLen

	return engineCfg
}
