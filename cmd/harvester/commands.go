package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/pokeapi-harvester/internal/config"
	"github.com/Sternrassler/pokeapi-harvester/pkg/assets"
	"github.com/Sternrassler/pokeapi-harvester/pkg/client"
	"github.com/Sternrassler/pokeapi-harvester/pkg/dataset"
	"github.com/Sternrassler/pokeapi-harvester/pkg/logging"
	"github.com/Sternrassler/pokeapi-harvester/pkg/metrics"
	"github.com/Sternrassler/pokeapi-harvester/pkg/scheduler"
	"github.com/Sternrassler/pokeapi-harvester/pkg/sprites"
	"github.com/Sternrassler/pokeapi-harvester/pkg/storage"
	"github.com/go-git/go-billy/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	datasetDescription = "Build the species dataset for generations 1..N and write it atomically."
	spritesDescription = "Download primary and form sprites for every record of the dataset file."
	allDescription     = "Build the dataset, then download its sprites."
)

func runDataset(args []string, stderr io.Writer) int {
	return execute("dataset", datasetDescription, args, stderr, func(ctx context.Context, h *harvester) error {
		_, err := h.buildDataset(ctx)
		return err
	})
}

func runSprites(args []string, stderr io.Writer) int {
	return execute("sprites", spritesDescription, args, stderr, func(ctx context.Context, h *harvester) error {
		ds, err := dataset.Read(h.fs, h.cfg.DatasetFile)
		if err != nil {
			return fmt.Errorf("load dataset (run 'harvester dataset' first): %w", err)
		}
		return h.downloadSprites(ctx, ds)
	})
}

func runAll(args []string, stderr io.Writer) int {
	return execute("all", allDescription, args, stderr, func(ctx context.Context, h *harvester) error {
		ds, err := h.buildDataset(ctx)
		if err != nil {
			return err
		}
		return h.downloadSprites(ctx, ds)
	})
}

// execute parses flags, wires the harvester and runs stage until it
// returns or the process is interrupted.
func execute(name, description string, args []string, stderr io.Writer, stage func(context.Context, *harvester) error) int {
	cfg, err := parseConfig(name, description, args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return ExitSuccess
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h, err := newHarvester(ctx, cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitGeneralError
	}
	defer h.Close()

	if err := stage(ctx, h); err != nil {
		h.logger.Error().Err(err).Str("command", name).Msg("Harvest failed")
		return ExitGeneralError
	}

	h.logger.Info().Str("command", name).Msg("Harvest complete")
	return ExitSuccess
}

// harvester holds the per-run wiring shared by both stages.
type harvester struct {
	cfg    config.Config
	api    *client.Client
	redis  *redis.Client
	fs     billy.Filesystem
	logger zerolog.Logger
}

func newHarvester(ctx context.Context, cfg config.Config, stderr io.Writer) (*harvester, error) {
	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: stderr,
	})
	logging.WithRunID(uuid.NewString())
	logger := logging.NewLogger("harvester")

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr); err != nil {
				logger.Warn().Err(err).Str("addr", cfg.Metrics.Addr).Msg("Metrics endpoint failed")
			}
		}()
	}

	h := &harvester{
		cfg:    cfg,
		fs:     storage.NewOS(cfg.OutputDir),
		logger: logger,
	}

	apiCfg := client.DefaultConfig(cfg.API.UserAgent)
	apiCfg.BaseURL = cfg.API.BaseURL
	apiCfg.Timeout = cfg.API.Timeout
	apiCfg.Retry = client.RetryPolicy{MaxRetries: cfg.API.MaxRetries, Backoff: cfg.API.Backoff}

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", opts.Addr).Msg("Redis unavailable, running without response cache")
			rdb.Close()
		} else {
			logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
			h.redis = rdb
			apiCfg.Redis = rdb
		}
	}

	api, err := client.New(apiCfg)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("create api client: %w", err)
	}
	h.api = api

	return h, nil
}

func (h *harvester) buildDataset(ctx context.Context) (dataset.Dataset, error) {
	limiter := scheduler.New("dataset", h.cfg.Dataset.Concurrency)
	agg := dataset.NewAggregator(h.api, limiter, h.fs)

	ds, stats, err := agg.Run(ctx, h.cfg.Generations, h.cfg.DatasetFile)
	if err != nil {
		return nil, err
	}

	h.logger.Info().
		Int("records", stats.Records).
		Int("record_errors", stats.RecordErrors).
		Int("generation_errors", stats.GenerationErrors).
		Str("path", h.cfg.DatasetFile).
		Msg("Dataset stage finished")
	return ds, nil
}

func (h *harvester) downloadSprites(ctx context.Context, ds dataset.Dataset) error {
	sched := scheduler.New("assets", h.cfg.Assets.Concurrency)
	fetcher := assets.NewFetcher(h.api.HTTPClient(), sched, h.fs, assets.Options{
		Timeout:    h.cfg.Assets.Timeout,
		MaxRetries: h.cfg.Assets.MaxRetries,
		Backoff:    h.cfg.Assets.Backoff,
		UserAgent:  h.cfg.API.UserAgent,
	})

	orch := sprites.New(h.api, fetcher, sched, h.fs, sprites.Options{
		ImagesDir:      h.cfg.ImagesDir,
		FormResolution: sprites.FormResolution(h.cfg.Forms.Resolution),
		FormOffset:     h.cfg.Forms.Offset,
	})

	summaries, err := orch.Run(ctx, ds)
	for _, s := range summaries {
		h.logger.Info().
			Str("mode", string(s.Mode)).
			Int("success", s.Success).
			Int("skipped", s.Skipped).
			Int("failed", s.Failed).
			Int("detail_errors", s.DetailErrors).
			Msg("Sprite stage finished")
	}
	return err
}

// Close releases network resources.
func (h *harvester) Close() {
	if h.api != nil {
		h.api.Close()
	}
	if h.redis != nil {
		h.redis.Close()
	}
}
