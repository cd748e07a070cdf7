// Package config loads ftrp settings from flags, FTRP_* environment
// variables and an optional ftrp.yaml.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/chriserin/ftrp/internal/correlator"
	"github.com/chriserin/ftrp/internal/reporting"
)

// EnvPrefix prefixes every environment override, e.g. FTRP_LAUNCH_NAME.
const EnvPrefix = "FTRP"

// Config holds the complete application configuration.
type Config struct {
	Launch    LaunchConfig    `mapstructure:"launch"`
	Reporting ReportingConfig `mapstructure:"reporting"`
	Store     StoreConfig     `mapstructure:"store"`
	Log       LogConfig       `mapstructure:"log"`
}

type LaunchConfig struct {
	Name         string `mapstructure:"name"`
	Description  string `mapstructure:"description"`
	Mode         string `mapstructure:"mode"`
	Attributes   string `mapstructure:"attributes"` // "k:v;k2:v2;tag"
	Rerun        bool   `mapstructure:"rerun"`
	RerunOf      string `mapstructure:"rerun_of"`
	SkippedIssue *bool  `mapstructure:"skipped_issue"`
}

type ReportingConfig struct {
	Shape      string `mapstructure:"shape"`    // step or scenario
	Callback   bool   `mapstructure:"callback"` // keep the item-tree index
	SourceRoot string `mapstructure:"source_root"`
	IOPoolSize int    `mapstructure:"io_pool_size"`
	Workers    int    `mapstructure:"workers"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("launch.name", "ftrp")
	v.SetDefault("launch.description", "")
	v.SetDefault("launch.mode", string(reporting.ModeDefault))
	v.SetDefault("launch.attributes", "")
	v.SetDefault("launch.rerun", false)
	v.SetDefault("launch.rerun_of", "")

	v.SetDefault("reporting.shape", "step")
	v.SetDefault("reporting.callback", false)
	v.SetDefault("reporting.source_root", "")
	v.SetDefault("reporting.io_pool_size", 10)
	v.SetDefault("reporting.workers", 4)

	v.SetDefault("store.path", ".ftrp/ftrp.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// NewViper returns a viper instance with defaults and environment binding.
// file, when set, is read as the config file; otherwise ftrp.yaml is looked
// up in the working directory and a missing file is not an error.
func NewViper(file string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("ftrp")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	return v, nil
}

// New decodes and validates the configuration held by v.
func New(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	// skipped_issue is tri-state; only an explicit setting counts.
	cfg.Launch.SkippedIssue = nil
	if v.IsSet("launch.skipped_issue") {
		b := v.GetBool("launch.skipped_issue")
		cfg.Launch.SkippedIssue = &b
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Launch.Name) == "" {
		return errors.New("launch.name is required")
	}
	switch reporting.Mode(strings.ToUpper(c.Launch.Mode)) {
	case reporting.ModeDefault, reporting.ModeDebug:
	default:
		return fmt.Errorf("launch.mode must be DEFAULT or DEBUG, got %q", c.Launch.Mode)
	}
	if _, ok := correlator.ShapeByName(c.Reporting.Shape); !ok {
		return fmt.Errorf("reporting.shape must be step or scenario, got %q", c.Reporting.Shape)
	}
	if c.Reporting.IOPoolSize < 1 {
		return errors.New("reporting.io_pool_size must be positive")
	}
	if c.Reporting.Workers < 1 {
		return errors.New("reporting.workers must be positive")
	}
	if c.Store.Path == "" {
		return errors.New("store.path is required")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}

// Shape returns the configured hierarchy shape.
func (c *Config) Shape() correlator.Shape {
	s, _ := correlator.ShapeByName(c.Reporting.Shape)
	return s
}

// LaunchRequest builds the launch start request, system attributes
// included. The start time is filled in when the run starts.
func (c *Config) LaunchRequest(agentVersion string) reporting.StartLaunchRQ {
	attrs := correlator.ParseAttributes(c.Launch.Attributes)
	attrs = append(attrs, correlator.SystemAttributes(agentVersion, c.Launch.SkippedIssue)...)
	return reporting.StartLaunchRQ{
		Name:        c.Launch.Name,
		Description: c.Launch.Description,
		Mode:        reporting.Mode(strings.ToUpper(c.Launch.Mode)),
		Attributes:  attrs,
		Rerun:       c.Launch.Rerun,
		RerunOf:     c.Launch.RerunOf,
	}
}
