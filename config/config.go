// Copyright (c) 2020 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// Author(s): Jonas Plum

// Package config loads the analysis settings from an optional YAML file,
// APPTIMELINE_* environment variables and command line overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/imdario/mergo"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/forensicanalysis/apptimeline/correlator"
	"github.com/forensicanalysis/apptimeline/gotimeline"
	"github.com/forensicanalysis/apptimeline/normalizer"
)

// EnvPrefix of the environment overrides, e.g. APPTIMELINE_LOGGING_LEVEL.
const EnvPrefix = "APPTIMELINE"

// Config contains the settings of one analysis run.
type Config struct {
	Store          string          `yaml:"store" mapstructure:"store"`
	DeviceOffset   time.Duration   `yaml:"device_offset" mapstructure:"device_offset"`
	PlausibleFrom  string          `yaml:"plausible_from" mapstructure:"plausible_from"`
	Tolerance      time.Duration   `yaml:"tolerance" mapstructure:"tolerance"`
	PairTolerances []PairTolerance `yaml:"pair_tolerances" mapstructure:"pair_tolerances"`
	Workers        int             `yaml:"workers" mapstructure:"workers"`
	Equivalences   string          `yaml:"equivalences" mapstructure:"equivalences"`
	TaskMap        string          `yaml:"task_map" mapstructure:"task_map"`
	MetricsFile    string          `yaml:"metrics_file" mapstructure:"metrics_file"`
	Logging        LoggingConfig   `yaml:"logging" mapstructure:"logging"`
}

// PairTolerance overrides the correlation tolerance for two source kinds.
type PairTolerance struct {
	A         string        `yaml:"a" mapstructure:"a"`
	B         string        `yaml:"b" mapstructure:"b"`
	Tolerance time.Duration `yaml:"tolerance" mapstructure:"tolerance"`
}

// LoggingConfig captures logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
}

// Default returns Config with sane defaults.
func Default() Config {
	return Config{
		Store:         "timeline.sqlite",
		PlausibleFrom: normalizer.DefaultPlausibleFrom.Format(time.RFC3339),
		Tolerance:     correlator.DefaultTolerance,
		Workers:       4,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from the provided path and environment variables.
// Without a path, apptimeline.yaml in the working directory is used if present.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	defaults := Default()
	v.SetDefault("store", defaults.Store)
	v.SetDefault("device_offset", defaults.DeviceOffset)
	v.SetDefault("plausible_from", defaults.PlausibleFrom)
	v.SetDefault("tolerance", defaults.Tolerance)
	v.SetDefault("pair_tolerances", []PairTolerance{})
	v.SetDefault("workers", defaults.Workers)
	v.SetDefault("equivalences", "")
	v.SetDefault("task_map", "")
	v.SetDefault("metrics_file", "")
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("apptimeline")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Merge applies the non-zero fields of overrides, e.g. command line flags.
func (c *Config) Merge(overrides Config) error {
	if err := mergo.Merge(c, overrides, mergo.WithOverride); err != nil {
		return errors.Wrap(err, "could not merge config")
	}
	return c.Validate()
}

// Validate checks value ranges and source kind names.
func (c *Config) Validate() error {
	if c.Tolerance < 0 {
		return fmt.Errorf("tolerance must not be negative: %s", c.Tolerance)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative: %d", c.Workers)
	}
	if _, err := c.PlausibleFromTime(); err != nil {
		return err
	}
	for _, p := range c.PairTolerances {
		for _, kind := range []string{p.A, p.B} {
			if _, err := gotimeline.ParseSourceKind(kind); err != nil {
				return errors.Wrap(err, "pair_tolerances")
			}
		}
		if p.Tolerance < 0 {
			return fmt.Errorf("pair tolerance %s/%s must not be negative", p.A, p.B)
		}
	}
	return nil
}

// PlausibleFromTime parses the lower bound of the plausibility window.
func (c *Config) PlausibleFromTime() (time.Time, error) {
	if c.PlausibleFrom == "" {
		return normalizer.DefaultPlausibleFrom, nil
	}
	t, err := time.Parse(time.RFC3339, c.PlausibleFrom)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "invalid plausible_from")
	}
	return t.UTC(), nil
}

// Normalizer returns the normalizer settings for a run started at runTime.
func (c *Config) Normalizer(runTime time.Time) normalizer.Config {
	from, err := c.PlausibleFromTime()
	if err != nil {
		from = normalizer.DefaultPlausibleFrom
	}
	return normalizer.Config{
		DeviceOffset:   c.DeviceOffset,
		PlausibleFrom:  from,
		PlausibleUntil: runTime,
	}
}

// Correlator returns the correlator settings.
func (c *Config) Correlator() correlator.Config {
	pairs := make([]correlator.PairTolerance, 0, len(c.PairTolerances))
	for _, p := range c.PairTolerances {
		a, _ := gotimeline.ParseSourceKind(p.A)
		b, _ := gotimeline.ParseSourceKind(p.B)
		pairs = append(pairs, correlator.PairTolerance{A: a, B: b, Tolerance: p.Tolerance})
	}
	return correlator.Config{
		Tolerance:      c.Tolerance,
		PairTolerances: pairs,
		Workers:        c.Workers,
	}
}
