// Package config parses the key/value configuration file that supplies the
// tape size, RAM budget, per-operation latencies and the two file paths,
// the way cmd/init.go parses the node repo's config: os.ReadFile plus
// github.com/goccy/go-yaml.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/maladetska/tapesorter/pkg/tape"
)

// LoggerConfig controls the ambient slog setup — not part of the sorting
// core, which treats logging as an external collaborator rather than
// something it depends on directly.
type LoggerConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Config is the full contents of the configuration file.
type Config struct {
	N             tape.TapeSize   `yaml:"n"`
	M             tape.MemorySize `yaml:"m"`
	DelayForRead  int64           `yaml:"delay_for_read"`
	DelayForWrite int64           `yaml:"delay_for_write"`
	DelayForShift int64           `yaml:"delay_for_shift"`
	PathIn        string          `yaml:"path_in"`
	PathOut       string          `yaml:"path_out"`
	TmpDir        string          `yaml:"tmp_dir"`
	Logger        LoggerConfig    `yaml:"logger"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	var keys map[string]interface{}
	if err := yaml.Unmarshal(data, &keys); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	for _, k := range []string{"n", "m"} {
		if _, ok := keys[k]; !ok {
			return cfg, fmt.Errorf("config: %s is required", k)
		}
	}
	if err := cfg.applyDefaults(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.PathIn == "" {
		return fmt.Errorf("config: path_in is required")
	}
	if c.PathOut == "" {
		return fmt.Errorf("config: path_out is required")
	}
	if c.TmpDir == "" {
		c.TmpDir = "./tmp"
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "INFO"
	}
	return nil
}

func (c Config) ReadDelay() time.Duration  { return time.Duration(c.DelayForRead) * time.Millisecond }
func (c Config) WriteDelay() time.Duration { return time.Duration(c.DelayForWrite) * time.Millisecond }
func (c Config) ShiftDelay() time.Duration { return time.Duration(c.DelayForShift) * time.Millisecond }
