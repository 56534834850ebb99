// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the environment variable prefix layered over the
// YAML file and the built-in defaults.
const DefaultEnvPrefix = "FNQ"

// KoanfConfig loads fnq's configuration from, in increasing precedence:
// built-in defaults, an optional YAML file, and FNQ_* environment
// variables.
type KoanfConfig struct {
	k         *koanf.Koanf
	mu        sync.RWMutex
	filePath  string
	envPrefix string
}

// Option configures a KoanfConfig.
type Option func(*KoanfConfig) error

// WithYAMLFile sets the YAML configuration file path. An empty path (the
// zero value) skips the file layer entirely.
func WithYAMLFile(path string) Option {
	return func(kc *KoanfConfig) error {
		kc.filePath = path
		return nil
	}
}

// WithEnvPrefix overrides the environment variable prefix (default "FNQ").
func WithEnvPrefix(prefix string) Option {
	return func(kc *KoanfConfig) error {
		kc.envPrefix = prefix
		return nil
	}
}

// DefaultConfigPath returns the YAML file fnq probes for configuration when
// $FNQ_CONFIG is unset: $XDG_CONFIG_HOME/fnq/config.yaml, falling back to
// ~/.config/fnq/config.yaml. It returns "" if neither can be determined.
func DefaultConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "fnq", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "fnq", "config.yaml")
}

// Load builds a Config from defaults, an optional YAML file, and the
// environment, applying opts in order. A missing YAML file is not an
// error — it simply contributes nothing.
func Load(opts ...Option) (Config, error) {
	kc := &KoanfConfig{
		k:         koanf.New("."),
		envPrefix: DefaultEnvPrefix,
	}
	for _, opt := range opts {
		if err := opt(kc); err != nil {
			return Config{}, fmt.Errorf("apply config option: %w", err)
		}
	}
	if err := kc.reload(); err != nil {
		return Config{}, err
	}
	return kc.snapshot()
}

func (kc *KoanfConfig) reload() error {
	newK := koanf.New(".")

	if kc.filePath != "" {
		if _, err := os.Stat(kc.filePath); err == nil {
			if loadErr := newK.Load(file.Provider(kc.filePath), yaml.Parser()); loadErr != nil {
				return fmt.Errorf("load YAML config %s: %w", kc.filePath, loadErr)
			}
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("stat YAML config %s: %w", kc.filePath, err)
		}
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix: kc.envPrefix + "_",
		TransformFunc: func(k, v string) (string, any) {
			return toDottedKey(k, kc.envPrefix), v
		},
	})
	if err := newK.Load(envProvider, nil); err != nil {
		return fmt.Errorf("load environment config: %w", err)
	}

	kc.mu.Lock()
	kc.k = newK
	kc.mu.Unlock()
	return nil
}

// toDottedKey turns FNQ_WATCH_POLL_INTERVAL into watch.poll_interval.
// env.Provider hands over the full variable name, so the prefix and its
// trailing underscore are stripped first (a name without the prefix is
// used as is). Only the first remaining underscore becomes the separator
// between the top-level section and its field, matching Config's
// one-level-deep yaml/koanf struct tags, which themselves use underscores
// (e.g. poll_interval).
func toDottedKey(raw, prefix string) string {
	k := strings.ToLower(strings.TrimPrefix(raw, prefix+"_"))
	if idx := strings.IndexByte(k, '_'); idx >= 0 {
		return k[:idx] + "." + k[idx+1:]
	}
	return k
}

func (kc *KoanfConfig) snapshot() (Config, error) {
	cfg := Defaults()

	kc.mu.RLock()
	k := kc.k
	kc.mu.RUnlock()

	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}
