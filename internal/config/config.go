package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds the evaluation and service settings.
// Values come from an optional YAML file and are overridden by environment variables.
// Unset fields keep the values from Default; an explicit zero value in the
// YAML file (missing_text: "", top_n: 0) is kept as written.
type Config struct {
	KeyColumn   string `yaml:"key_column" env:"EVAL_KEY_COLUMN"`
	MissingText string `yaml:"missing_text" env:"EVAL_MISSING_TEXT"`

	// Comma separated overlap thresholds, e.g. "0.5,0.7,0.9"
	ThresholdsStr string    `yaml:"thresholds" env:"EVAL_THRESHOLDS"`
	Thresholds    []float64 `yaml:"-" env:"-"`

	TopN        int `yaml:"top_n" env:"EVAL_TOP_N"`
	Concurrency int `yaml:"concurrency" env:"EVAL_CONCURRENCY"`

	// Remote reference or hypothesis tables are cached here
	CacheDir      string `yaml:"cache_dir" env:"EVAL_CACHE_DIR"`
	DownloadToken string `yaml:"-" env:"EVAL_DOWNLOAD_TOKEN"`

	DatabasePath string `yaml:"database_path" env:"EVAL_DATABASE_PATH"`
	Port         string `yaml:"port" env:"PORT"`
}

// Default returns the settings used when neither the file nor the environment sets a value
func Default() *Config {
	return &Config{
		KeyColumn:     "filename",
		MissingText:   "nan",
		ThresholdsStr: "0.5,0.7,0.9",
		TopN:          5,
		Concurrency:   4,
		CacheDir:      "~/.cache/inventar-eval",
		DatabasePath:  "evals/history.db",
		Port:          "8888",
	}
}

// Load reads path if it exists, otherwise only the environment.
// An empty path means environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, cfg); err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		} else {
			path = ""
		}
	}
	if path == "" {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.parseComplexFields(); err != nil {
		return nil, fmt.Errorf("failed to parse config fields: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) parseComplexFields() error {
	thresholds, err := ParseThresholds(c.ThresholdsStr)
	if err != nil {
		return err
	}
	c.Thresholds = thresholds
	return nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.KeyColumn) == "" {
		return fmt.Errorf("key_column must not be empty")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	return nil
}

// ParseThresholds parses a comma separated list of finite floats. Empty entries are skipped.
func ParseThresholds(value string) ([]float64, error) {
	thresholds := []float64{}
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		t, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid threshold %q: %w", part, err)
		}
		if math.IsInf(t, 0) || math.IsNaN(t) {
			return nil, fmt.Errorf("invalid threshold %q: must be finite", part)
		}
		thresholds = append(thresholds, t)
	}
	return thresholds, nil
}
