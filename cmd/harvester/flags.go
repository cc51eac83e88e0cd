package main

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/Sternrassler/pokeapi-harvester/internal/config"
)

// options holds the flag values of a subcommand. Only flags given on the
// command line override the file and environment configuration.
type options struct {
	configPath string

	baseURL            string
	generations        int
	output             string
	datasetFile        string
	imagesDir          string
	datasetConcurrency int
	concurrency        int
	timeout            time.Duration
	retries            int
	backoff            time.Duration
	forms              string
	redisURL           string
	logLevel           string
	pretty             bool
	metricsAddr        string
}

// parseConfig parses args for the named subcommand and returns the
// effective configuration. A non-nil error means invalid arguments.
func parseConfig(name, description string, args []string, stderr io.Writer) (config.Config, error) {
	var o options
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&o.configPath, "config", "", "YAML config file")
	fs.StringVar(&o.baseURL, "base-url", "", "PokeAPI base URL")
	fs.IntVar(&o.generations, "generations", 0, "Number of generations to harvest")
	fs.StringVar(&o.output, "output", "", "Output root directory")
	fs.StringVar(&o.datasetFile, "dataset-file", "", "Dataset path relative to the output root")
	fs.StringVar(&o.imagesDir, "images-dir", "", "Sprite directory relative to the output root")
	fs.IntVar(&o.datasetConcurrency, "dataset-concurrency", 0, "Max in-flight dataset requests (0 = unbounded)")
	fs.IntVar(&o.concurrency, "concurrency", 0, "Max in-flight sprite operations")
	fs.DurationVar(&o.timeout, "timeout", 0, "Per-attempt sprite download timeout")
	fs.IntVar(&o.retries, "retries", 0, "Retries after a transient sprite failure")
	fs.DurationVar(&o.backoff, "backoff", 0, "Constant wait between sprite attempts")
	fs.StringVar(&o.forms, "forms", "", "Form resolution: slug or positional")
	fs.StringVar(&o.redisURL, "redis", "", "Redis URL for the response cache")
	fs.StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.BoolVar(&o.pretty, "pretty", false, "Human-readable console logs")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: harvester %s [options]\n\n%s\n\nOptions:\n", name, description)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}
	if fs.NArg() > 0 {
		return config.Config{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.LoadFromFile(o.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "base-url":
			cfg.API.BaseURL = o.baseURL
		case "generations":
			cfg.Generations = o.generations
		case "output":
			cfg.OutputDir = o.output
		case "dataset-file":
			cfg.DatasetFile = o.datasetFile
		case "images-dir":
			cfg.ImagesDir = o.imagesDir
		case "dataset-concurrency":
			cfg.Dataset.Concurrency = o.datasetConcurrency
		case "concurrency":
			cfg.Assets.Concurrency = o.concurrency
		case "timeout":
			cfg.Assets.Timeout = o.timeout
		case "retries":
			cfg.Assets.MaxRetries = o.retries
		case "backoff":
			cfg.Assets.Backoff = o.backoff
		case "forms":
			cfg.Forms.Resolution = o.forms
		case "redis":
			cfg.Redis.URL = o.redisURL
		case "log-level":
			cfg.Log.Level = o.logLevel
		case "pretty":
			cfg.Log.Pretty = o.pretty
		case "metrics-addr":
			cfg.Metrics.Addr = o.metricsAddr
		}
	})

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
