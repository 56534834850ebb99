// SPDX-License-Identifier: MIT

package config

import "time"

// Config holds the settings the fnq binary reads before dispatching to a
// core operation. Every field has a usable zero/default value, so a
// missing config file and unset environment are a normal, supported state.
type Config struct {
	Queue QueueConfig `yaml:"queue" koanf:"queue"`
	Watch WatchConfig `yaml:"watch" koanf:"watch"`
	Log   LogConfig   `yaml:"log" koanf:"log"`
}

// QueueConfig holds defaults for the enqueue operation's flags.
type QueueConfig struct {
	// Dir is the queue directory used when $FNQ_DIR is unset. The
	// environment variable always takes precedence over this value.
	Dir string `yaml:"dir" koanf:"dir"`
	// Quiet and Clean mirror the -q/-c command-line flags' defaults; an
	// explicit flag on the command line always overrides these.
	Quiet bool `yaml:"quiet" koanf:"quiet"`
	Clean bool `yaml:"clean" koanf:"clean"`
}

// WatchConfig holds tunables for the watch observer's completion heuristic.
type WatchConfig struct {
	// PollInterval is the debounce window used to decide a watched task has
	// actually finished (lock released and size stable across two probes).
	PollInterval time.Duration `yaml:"poll_interval" koanf:"poll_interval"`
}

// LogConfig holds settings for internal/logging.
type LogConfig struct {
	Level string `yaml:"level" koanf:"level"`
}

// Defaults returns the built-in configuration used when no YAML file is
// present and no environment overrides are set.
func Defaults() Config {
	return Config{
		Queue: QueueConfig{Dir: "."},
		Watch: WatchConfig{PollInterval: 100 * time.Millisecond},
		Log:   LogConfig{Level: "info"},
	}
}
