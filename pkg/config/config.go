// Package config handles svm.toml run configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gitlab.com/efronlicht/enve"

	"github.com/svmLang/svm/pkg/svm"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "svm.toml"

// DefaultMemSize is the arena size used when nothing else is configured.
const DefaultMemSize = 10000

// Config holds the settings for one VM run.
type Config struct {
	MemSize  int    `toml:"mem-size"`
	Trace    string `toml:"trace"`
	LogLevel string `toml:"log-level"`
	TraceDB  string `toml:"trace-db"`

	// Dir is the directory containing the svm.toml file (set at load time).
	Dir string `toml:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		MemSize:  DefaultMemSize,
		Trace:    svm.TraceOff.String(),
		LogLevel: "info",
	}
}

// Load parses an svm.toml file from the given directory.
// Keys missing from the file keep their defaults.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	if _, err := toml.Decode(string(data), c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	if c.TraceDB != "" && !filepath.IsAbs(c.TraceDB) {
		c.TraceDB = filepath.Join(c.Dir, c.TraceDB)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find an svm.toml file and loads it.
// Returns Default() if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return Load(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// ApplyEnv overrides settings from SVM_MEM_SIZE, SVM_TRACE, SVM_LOG_LEVEL
// and SVM_TRACE_DB.
func (c *Config) ApplyEnv() {
	c.MemSize = enve.IntOr("SVM_MEM_SIZE", c.MemSize)
	c.Trace = enve.StringOr("SVM_TRACE", c.Trace)
	c.LogLevel = enve.StringOr("SVM_LOG_LEVEL", c.LogLevel)
	c.TraceDB = enve.StringOr("SVM_TRACE_DB", c.TraceDB)
}

// TraceMode returns the configured dump mode.
func (c *Config) TraceMode() (svm.TraceMode, error) {
	return svm.ParseTraceMode(c.Trace)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.MemSize < 0 {
		return fmt.Errorf("mem-size must not be negative, got %d", c.MemSize)
	}
	if _, err := c.TraceMode(); err != nil {
		return err
	}
	return nil
}
