package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Form resolution strategies.
const (
	FormsBySlug     = "slug"
	FormsPositional = "positional"
)

// Config defines configuration for the harvester.
type Config struct {
	API         APIConfig     `yaml:"api"`
	Generations int           `yaml:"generations"`
	OutputDir   string        `yaml:"output_dir"`
	DatasetFile string        `yaml:"dataset_file"`
	ImagesDir   string        `yaml:"images_dir"`
	Dataset     DatasetConfig `yaml:"dataset"`
	Assets      AssetsConfig  `yaml:"assets"`
	Forms       FormsConfig   `yaml:"forms"`
	Redis       RedisConfig   `yaml:"redis"`
	Log         LogConfig     `yaml:"log"`
	Metrics     MetricsConfig `yaml:"metrics"`
}

// APIConfig configures the PokeAPI transport.
type APIConfig struct {
	BaseURL    string        `yaml:"base_url"`
	UserAgent  string        `yaml:"user_agent"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	Backoff    time.Duration `yaml:"backoff"`
}

// DatasetConfig configures the dataset stage.
type DatasetConfig struct {
	// Concurrency bounds in-flight requests; 0 means unbounded.
	Concurrency int `yaml:"concurrency"`
}

// AssetsConfig configures sprite downloads.
type AssetsConfig struct {
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	Backoff     time.Duration `yaml:"backoff"`
}

// FormsConfig selects how form sprites are located.
type FormsConfig struct {
	Resolution string `yaml:"resolution"`
	Offset     int    `yaml:"offset"`
}

// RedisConfig enables the response cache when URL is set.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// MetricsConfig enables the /metrics endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL:    "https://pokeapi.co/api/v2/",
			UserAgent:  "pokeapi-harvester/1.0",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			Backoff:    2 * time.Second,
		},
		Generations: 9,
		OutputDir:   ".",
		DatasetFile: "data/pokemon_data.json",
		ImagesDir:   "images",
		Dataset:     DatasetConfig{Concurrency: 20},
		Assets: AssetsConfig{
			Concurrency: 10,
			Timeout:     10 * time.Second,
			MaxRetries:  3,
			Backoff:     2 * time.Second,
		},
		Forms: FormsConfig{
			Resolution: FormsBySlug,
			Offset:     10001,
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadFromFile loads configuration from a YAML file on top of Default.
// Unknown keys are rejected.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv overrides fields from environment variables.
// Environment variables use the HARVESTER_ prefix.
func (c *Config) LoadFromEnv() error {
	var errs []error
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("parse %s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("parse %s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("parse %s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("HARVESTER_BASE_URL", &c.API.BaseURL)
	str("HARVESTER_USER_AGENT", &c.API.UserAgent)
	dur("HARVESTER_API_TIMEOUT", &c.API.Timeout)
	num("HARVESTER_API_MAX_RETRIES", &c.API.MaxRetries)
	dur("HARVESTER_API_BACKOFF", &c.API.Backoff)

	num("HARVESTER_GENERATIONS", &c.Generations)
	str("HARVESTER_OUTPUT_DIR", &c.OutputDir)
	str("HARVESTER_DATASET_FILE", &c.DatasetFile)
	str("HARVESTER_IMAGES_DIR", &c.ImagesDir)
	num("HARVESTER_DATASET_CONCURRENCY", &c.Dataset.Concurrency)

	num("HARVESTER_ASSET_CONCURRENCY", &c.Assets.Concurrency)
	dur("HARVESTER_ASSET_TIMEOUT", &c.Assets.Timeout)
	num("HARVESTER_ASSET_MAX_RETRIES", &c.Assets.MaxRetries)
	dur("HARVESTER_ASSET_BACKOFF", &c.Assets.Backoff)

	str("HARVESTER_FORM_RESOLUTION", &c.Forms.Resolution)
	num("HARVESTER_FORM_OFFSET", &c.Forms.Offset)

	str("HARVESTER_REDIS_URL", &c.Redis.URL)
	str("HARVESTER_LOG_LEVEL", &c.Log.Level)
	flag("HARVESTER_LOG_PRETTY", &c.Log.Pretty)
	str("HARVESTER_METRICS_ADDR", &c.Metrics.Addr)

	return errors.Join(errs...)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.API.BaseURL) == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	}
	if strings.TrimSpace(c.API.UserAgent) == "" {
		errs = append(errs, errors.New("api.user_agent is required"))
	}
	if c.Generations < 1 {
		errs = append(errs, fmt.Errorf("generations must be >= 1, got %d", c.Generations))
	}
	if c.DatasetFile == "" {
		errs = append(errs, errors.New("dataset_file is required"))
	}
	if c.ImagesDir == "" {
		errs = append(errs, errors.New("images_dir is required"))
	}

	for name, v := range map[string]int{
		"api.max_retries":     c.API.MaxRetries,
		"dataset.concurrency": c.Dataset.Concurrency,
		"assets.concurrency":  c.Assets.Concurrency,
		"assets.max_retries":  c.Assets.MaxRetries,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %d", name, v))
		}
	}
	for name, d := range map[string]time.Duration{
		"api.timeout":    c.API.Timeout,
		"api.backoff":    c.API.Backoff,
		"assets.timeout": c.Assets.Timeout,
		"assets.backoff": c.Assets.Backoff,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", name, d))
		}
	}

	switch c.Forms.Resolution {
	case FormsBySlug, FormsPositional:
	default:
		errs = append(errs, fmt.Errorf("forms.resolution must be %q or %q, got %q", FormsBySlug, FormsPositional, c.Forms.Resolution))
	}
	if c.Forms.Resolution == FormsPositional && c.Forms.Offset < 1 {
		errs = append(errs, fmt.Errorf("forms.offset must be >= 1, got %d", c.Forms.Offset))
	}

	return errors.Join(errs...)
}
