// Package config provides configuration loading and management for micobias.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"micobias/pkg/driver"
	"micobias/pkg/mico"
	"micobias/pkg/roi"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Estimator parameters
	Mico struct {
		// Classes is the number of tissue classes
		Classes int `yaml:"classes"`

		// Fuzzifier is q: 1 for hard memberships, greater than 1 for soft
		Fuzzifier float64 `yaml:"fuzzifier"`

		OuterIters int `yaml:"outerIters"`
		InnerIters int `yaml:"innerIters"`

		// Init is "random" or "percentile"
		Init string `yaml:"init"`
		Seed int64  `yaml:"seed"`

		// ConsistentC weights the class-constant update by M^q
		ConsistentC bool `yaml:"consistentC"`

		// EnergyTolerance enables early exit when positive
		EnergyTolerance float64 `yaml:"energyTolerance"`

		Ridge        float64 `yaml:"ridge"`
		MaxCondition float64 `yaml:"maxCondition"`

		// SingularPolicy is "ridge" or "skip"
		SingularPolicy string `yaml:"singularPolicy"`

		// FallbackROI uses intensity > 0 when a mask is empty
		FallbackROI bool `yaml:"fallbackROI"`
	} `yaml:"mico"`

	// Region of interest parameters
	ROI struct {
		// Threshold is "auto" or a number
		Threshold string `yaml:"threshold"`
	} `yaml:"roi"`

	// Processing parameters
	Processing struct {
		// NumWorkers is how many slices run concurrently
		NumWorkers int `yaml:"numWorkers"`

		// OnSliceError is "abort" or "identity"
		OnSliceError string `yaml:"onSliceError"`

		// NormalizeTo rescales the volume so its maximum equals this value; 0 disables
		NormalizeTo float64 `yaml:"normalizeTo"`

		// ClampMax caps corrected intensities when positive
		ClampMax float64 `yaml:"clampMax"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		BiasFile     string  `yaml:"biasFile"`
		LabelsFile   string  `yaml:"labelsFile"`
		ReportFile   string  `yaml:"reportFile"`
		PreviewDir   string  `yaml:"previewDir"`
		PreviewScale float64 `yaml:"previewScale"`
		LogLevel     string  `yaml:"logLevel"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}
	opts := mico.DefaultOptions()

	cfg.Mico.Classes = opts.Classes
	cfg.Mico.Fuzzifier = opts.Fuzzifier
	cfg.Mico.OuterIters = opts.OuterIters
	cfg.Mico.InnerIters = opts.InnerIters
	cfg.Mico.Init = string(opts.Init)
	cfg.Mico.Seed = opts.Seed
	cfg.Mico.Ridge = opts.Ridge
	cfg.Mico.MaxCondition = opts.MaxCondition
	cfg.Mico.SingularPolicy = string(opts.Singular)
	cfg.Mico.FallbackROI = opts.FallbackROI

	cfg.ROI.Threshold = "auto"

	cfg.Processing.NumWorkers = runtime.NumCPU() // Use all available cores by default
	cfg.Processing.OnSliceError = string(driver.OnErrorIdentity)
	cfg.Processing.NormalizeTo = 255

	cfg.Output.PreviewScale = 1
	cfg.Output.LogLevel = "info"

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

// MicoOptions converts the estimator section into mico.Options
func (c *Config) MicoOptions() mico.Options {
	return mico.Options{
		Classes:         c.Mico.Classes,
		Fuzzifier:       c.Mico.Fuzzifier,
		OuterIters:      c.Mico.OuterIters,
		InnerIters:      c.Mico.InnerIters,
		Init:            mico.InitMethod(c.Mico.Init),
		Seed:            c.Mico.Seed,
		ConsistentC:     c.Mico.ConsistentC,
		EnergyTolerance: c.Mico.EnergyTolerance,
		Ridge:           c.Mico.Ridge,
		MaxCondition:    c.Mico.MaxCondition,
		Singular:        mico.SingularPolicy(c.Mico.SingularPolicy),
		FallbackROI:     c.Mico.FallbackROI,
	}
}

// DriverOptions converts the configuration into driver.Options
func (c *Config) DriverOptions() (driver.Options, error) {
	policy, err := roi.ParsePolicy(c.ROI.Threshold)
	if err != nil {
		return driver.Options{}, err
	}
	return driver.Options{
		Mico:       c.MicoOptions(),
		Threshold:  policy,
		NumWorkers: c.Processing.NumWorkers,
		OnError:    driver.ErrorPolicy(c.Processing.OnSliceError),
		ClampMax:   c.Processing.ClampMax,
	}, nil
}

// Validate checks every section and returns the first problem found
func (c *Config) Validate() error {
	opts, err := c.DriverOptions()
	if err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	if c.Processing.NormalizeTo < 0 {
		return fmt.Errorf("normalizeTo must be non-negative, got %g", c.Processing.NormalizeTo)
	}
	if c.Output.PreviewScale <= 0 {
		return fmt.Errorf("previewScale must be positive, got %g", c.Output.PreviewScale)
	}
	return nil
}
