// Package config provides configuration management.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"gopkg.in/yaml.v3"

	"bonita/core/types"
	"bonita/internal/errors"
	"bonita/internal/logging"
)

// Environment variables consulted after the config file is read.
const (
	EnvAPIKey        = "BONITA_API_KEY"
	EnvCadastralArea = "BONITA_CADASTRAL_AREA"
)

// Config is the main application configuration
type Config struct {
	// Version is the configuration version
	Version string `json:"version" yaml:"version"`

	// Cadastre configures the parcel search API
	Cadastre CadastreConfig `json:"cadastre" yaml:"cadastre"`

	// Pricing configures the price cache and the remote price source
	Pricing PricingConfig `json:"pricing" yaml:"pricing"`

	// Run holds the inputs of a single valuation run
	Run RunConfig `json:"run" yaml:"run"`

	// Logging contains logging configuration
	Logging logging.Config `json:"logging" yaml:"logging"`
}

// CadastreConfig contains cadastre API settings
type CadastreConfig struct {
	// APIKey is sent in the ApiKey header
	APIKey string `json:"api_key" yaml:"api_key"`

	// BaseURL is the parcel search endpoint
	BaseURL string `json:"base_url" yaml:"base_url"`

	// CadastralAreaCode scopes parcel numbering
	CadastralAreaCode int `json:"cadastral_area_code" yaml:"cadastral_area_code"`

	// TimeoutSeconds bounds a single parcel request
	TimeoutSeconds int `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// PricingConfig contains pricing-related settings
type PricingConfig struct {
	// CacheFile is the flat code -> price JSON file
	CacheFile string `json:"cache_file" yaml:"cache_file"`

	// MaxAgeHours is how old the cache file may get before a refresh is offered
	MaxAgeHours int `json:"max_age_hours" yaml:"max_age_hours"`

	// PageBaseURL is the per-code price page prefix; the code is appended
	PageBaseURL string `json:"page_base_url" yaml:"page_base_url"`

	// TableURL is the page carrying the full price table
	TableURL string `json:"table_url" yaml:"table_url"`

	// RetryIntervalSeconds is the fixed wait between price page attempts
	RetryIntervalSeconds int `json:"retry_interval_seconds" yaml:"retry_interval_seconds"`

	// TimeoutSeconds bounds a single price request
	TimeoutSeconds int `json:"timeout_seconds" yaml:"timeout_seconds"`

	// UserAgent is sent with price page requests
	UserAgent string `json:"user_agent" yaml:"user_agent"`

	// RefreshCommand replaces the built-in table scraper when set
	RefreshCommand []string `json:"refresh_command,omitempty" yaml:"refresh_command,omitempty"`
}

// RunConfig contains the inputs of a valuation run
type RunConfig struct {
	// Parcels lists "N" or "N/M" parcel numbers
	Parcels []string `json:"parcels" yaml:"parcels"`

	// UseLocalCache consults the cache file before the remote source
	UseLocalCache bool `json:"use_local_cache" yaml:"use_local_cache"`

	// ForceFreshCache rebuilds the cache without asking
	ForceFreshCache bool `json:"force_fresh_cache" yaml:"force_fresh_cache"`

	// OnParcelFailure is "abort" or "skip"
	OnParcelFailure string `json:"on_parcel_failure" yaml:"on_parcel_failure"`

	// Format is the report format (cli, json)
	Format string `json:"format" yaml:"format"`

	// AssumeYes answers every prompt affirmatively
	AssumeYes bool `json:"assume_yes" yaml:"assume_yes"`
}

// Default returns a default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	cachePath := filepath.Join(homeDir, ".bonita", "bpej.json")

	return &Config{
		Version: "1.0",
		Cadastre: CadastreConfig{
			BaseURL:        "https://api-kn.cuzk.gov.cz/api/v1/Parcely/Vyhledani",
			TimeoutSeconds: 15,
		},
		Pricing: PricingConfig{
			CacheFile:            cachePath,
			MaxAgeHours:          24,
			PageBaseURL:          "https://bpej.vumop.cz/",
			TableURL:             "https://bpej.vumop.cz/",
			RetryIntervalSeconds: 5,
			TimeoutSeconds:       15,
			UserAgent:            "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36",
		},
		Run: RunConfig{
			UseLocalCache:   true,
			OnParcelFailure: string(types.FailureAbort),
			Format:          "cli",
		},
		Logging: logging.DefaultConfig(),
	}
}

// DefaultPath is where the CLI looks for a config file when --config is not
// given.
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".bonita", "config.hcl")
}

// Load loads configuration from a file. A missing file yields defaults.
// .yaml/.yml files are read as YAML; .hcl and .json as HCL.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, errors.Wrap(errors.TypeConfig, "read config", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(errors.TypeConfig, err, "parse %s", path)
		}
	case ".hcl", ".json":
		var file hclFile
		if err := hclsimple.Decode(path, data, nil, &file); err != nil {
			return nil, errors.Wrapf(errors.TypeConfig, err, "parse %s", path)
		}
		file.apply(cfg)
	default:
		return nil, errors.Config("unsupported config extension: " + filepath.Ext(path))
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides fills credentials and the default area from the environment.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv(EnvAPIKey); key != "" {
		c.Cadastre.APIKey = key
	}
	if raw := os.Getenv(EnvCadastralArea); raw != "" {
		if code, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			c.Cadastre.CadastralAreaCode = code
		} else {
			logging.Sugar.Warnf("ignoring %s=%q: not a number", EnvCadastralArea, raw)
		}
	}
}

// Validate checks settings that do not depend on the run inputs.
func (c *Config) Validate() error {
	if _, err := types.ParseFailurePolicy(c.Run.OnParcelFailure); err != nil {
		return err
	}
	switch c.Run.Format {
	case "cli", "json":
	default:
		return errors.Config("unknown report format: " + c.Run.Format)
	}
	if c.Run.UseLocalCache && c.Pricing.CacheFile == "" {
		return errors.Config("pricing.cache_file is required when the local cache is used")
	}
	if c.Pricing.RetryIntervalSeconds < 0 {
		return errors.Config("pricing.retry_interval_seconds must not be negative")
	}
	return nil
}

// ValidateRun checks what a valuation run needs on top of Validate.
func (c *Config) ValidateRun() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Cadastre.APIKey == "" {
		return errors.Config("cadastre API key is not set (use --api-key or " + EnvAPIKey + ")")
	}
	if c.Cadastre.CadastralAreaCode <= 0 {
		return errors.Config("cadastral area code is not set")
	}
	if len(c.Run.Parcels) == 0 {
		return errors.Input("no parcels to value")
	}
	return nil
}

// CacheMaxAge returns the refresh threshold
func (p PricingConfig) CacheMaxAge() time.Duration {
	return time.Duration(p.MaxAgeHours) * time.Hour
}

// RetryInterval returns the wait between price page attempts
func (p PricingConfig) RetryInterval() time.Duration {
	return time.Duration(p.RetryIntervalSeconds) * time.Second
}

// Timeout returns the per-request timeout for price requests
func (p PricingConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// Timeout returns the per-request timeout for parcel requests
func (c CadastreConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Cadastre.APIKey != "" {
		out.Cadastre.APIKey = "********"
	}
	out.Run.Parcels = append([]string(nil), c.Run.Parcels...)
	return &out
}

// Global configuration instance
var globalConfig = Default()

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// Set sets the global configuration
func Set(config *Config) {
	globalConfig = config
}
