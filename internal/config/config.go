package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"comb/internal/meta"
)

type Config struct {
	Project struct {
		Root string `yaml:"root"`
	} `yaml:"project"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Load reads the configuration file and applies environment overrides. A
// missing file is fine; the environment and defaults carry it.
func Load(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	var cfg Config

	// 2. Load YAML config when present
	file, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(file, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Environment-only configuration
	default:
		return nil, err
	}

	// 3. Override with Environment Variables if present
	if root := os.Getenv("COMB_ROOT"); root != "" {
		cfg.Project.Root = root
	}
	if level := os.Getenv("COMB_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}

	// 4. Defaults and validation
	if cfg.Project.Root == "" {
		cfg.Project.Root = "."
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if _, err := parseLevel(cfg.Log.Level); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// RootMetaDir returns the metadata directory of the configured workspace.
func (c *Config) RootMetaDir() string {
	return filepath.Join(c.Project.Root, meta.RootDirName)
}

// Logger builds the process logger at the configured level.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func parseLevel(s string) (zapcore.Level, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}
