package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/danieljhkim/stagemerge/internal/hash"
)

// EnvPrefix prefixes every environment variable read by LoadSettings.
const EnvPrefix = "STAGEMERGE_"

// Settings configures the tool itself.
type Settings struct {
	Log    LogSettings    `koanf:"log"`
	Hash   HashSettings   `koanf:"hash"`
	Backup BackupSettings `koanf:"backup"`
}

// LogSettings configures logging.
type LogSettings struct {
	// Verbosity maps to zerolog levels: 0 warn, 1 info, 2 debug, 3+ trace.
	Verbosity int `koanf:"verbosity"`
}

// HashSettings configures content hashing.
type HashSettings struct {
	// Algorithm is used when writing new hash manifests ("sha256" or "xxh3").
	Algorithm string `koanf:"algorithm"`
}

// BackupSettings configures the apply backup.
type BackupSettings struct {
	// TmpDir is where staging directories are created. Empty means os.TempDir().
	// Hard links are only possible when it shares a filesystem with the installation.
	TmpDir string `koanf:"tmpdir"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"log.verbosity":  0,
		"hash.algorithm": hash.AlgorithmSHA256,
		"backup.tmpdir":  "",
	}
}

// DefaultSettingsPath returns $XDG_CONFIG_HOME/stagemerge/config.yaml,
// falling back to ~/.config.
func DefaultSettingsPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "stagemerge.yaml"
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "stagemerge", "config.yaml")
}

// LoadSettings layers defaults, the YAML file at path (skipped when it does
// not exist) and STAGEMERGE_* environment variables, in that order.
// STAGEMERGE_HASH_ALGORITHM maps to hash.algorithm.
func LoadSettings(path string) (*Settings, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load settings from %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat settings file %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var s Settings
	if err := k.Unmarshal("", &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	if _, err := hash.New(s.Hash.Algorithm); err != nil {
		return nil, fmt.Errorf("invalid hash.algorithm: %w", err)
	}

	return &s, nil
}
