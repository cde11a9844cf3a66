// internal/appconfig/appconfig.go
// Package appconfig manages loading and interpreting application configuration.
package appconfig

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// DefaultConfigPath is the default path to the application's configuration file.
	DefaultConfigPath = "config/config.json"
	// defaultOutputDir is where results land when the config omits outputDir.
	defaultOutputDir = "modrecData/recovery"
	// defaultParticipants is the synthetic design size when no design file is given.
	defaultParticipants = 10
	// defaultTrials is the number of trials per synthetic participant.
	defaultTrials = 100
	// defaultWorkers is how many repetitions run at once.
	defaultWorkers = 1
)

// Config represents the top-level application configuration.
type Config struct {
	Models              []string  `json:"models"`
	Profile             string    `json:"profile,omitempty"`
	Repetitions         int       `json:"repetitions"`
	Participants        int       `json:"participants"`
	Trials              int       `json:"trials"`
	RewardProbabilities []float64 `json:"rewardProbabilities,omitempty"`
	DesignPath          string    `json:"designPath,omitempty"`
	NumberOfStarts      int       `json:"numberOfStarts"`
	MaxIterations       int       `json:"maxIterations"`
	Parallel            bool      `json:"parallel"`
	Workers             int       `json:"workers"`
	Seed                uint64    `json:"seed,omitempty"`
	OutputDir           string    `json:"outputDir,omitempty"`
	SQLitePath          string    `json:"sqlitePath,omitempty"`
	LogFile             string    `json:"logFile,omitempty"`
	Debug               bool      `json:"debug"`
	ConfigPath          string    `json:"-"`
}

// ApplyDefaults fills every unset field from the selected profile and the
// package defaults. Explicit values always win.
func (c *Config) ApplyDefaults() {
	p := ParamsForProfile(c.Profile)
	if c.Repetitions <= 0 {
		c.Repetitions = p.Repetitions
	}
	if c.NumberOfStarts <= 0 {
		c.NumberOfStarts = p.NumberOfStarts
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = p.MaxIterations
	}
	if c.Participants <= 0 {
		c.Participants = defaultParticipants
	}
	if c.Trials <= 0 {
		c.Trials = defaultTrials
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
}

// SeedPtr returns the configured seed, or nil when runs should be unseeded.
func (c Config) SeedPtr() *uint64 {
	if c.Seed == 0 {
		return nil
	}
	s := c.Seed
	return &s
}

// ResultsDir returns the output directory, applying a default if not set.
func (c Config) ResultsDir() string {
	if dir := strings.TrimSpace(c.OutputDir); dir != "" {
		return dir
	}
	return defaultOutputDir
}

// LogFilePath returns the path to the application log file, applying a default if not set.
func (c Config) LogFilePath() string {
	if path := c.LogFile; strings.TrimSpace(path) != "" {
		return path
	}
	return "modrec.log"
}

// Validate checks semantic constraints the schema cannot express.
func (c Config) Validate() error {
	if len(c.Models) == 0 {
		return errors.New("config must list at least one model")
	}
	seen := make(map[string]bool, len(c.Models))
	for _, m := range c.Models {
		if strings.TrimSpace(m) == "" {
			return errors.New("model names must not be empty")
		}
		if seen[m] {
			return fmt.Errorf("model %q is listed twice", m)
		}
		seen[m] = true
	}
	if c.Repetitions < 1 {
		return fmt.Errorf("repetitions must be positive, got %d", c.Repetitions)
	}
	if c.NumberOfStarts < 1 {
		return fmt.Errorf("numberOfStarts must be positive, got %d", c.NumberOfStarts)
	}
	if c.DesignPath == "" && c.Participants < 1 {
		return fmt.Errorf("participants must be positive, got %d", c.Participants)
	}
	return nil
}

// ReadConfig schema-checks the configuration file at path, loads it into v and
// returns the path it read. An empty path means DefaultConfigPath. A missing
// file is reported with an error wrapping fs.ErrNotExist.
func ReadConfig(v *viper.Viper, path string) (string, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("could not read config file %q: %w", path, err)
	}
	ext := filepath.Ext(path)
	if err := ValidateDocument(ext, data); err != nil {
		return "", fmt.Errorf("config file %q: %w", path, err)
	}

	v.SetConfigType("json")
	if isYAML(ext) {
		v.SetConfigType("yaml")
	}
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("could not decode config file %q: %w", path, err)
	}
	return path, nil
}

// FromViper decodes the settings held by v (file values overlaid by any bound
// flags) and applies defaults. Callers still run Validate.
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}
