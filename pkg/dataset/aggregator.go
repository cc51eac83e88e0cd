package dataset

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/pokeapi-harvester/pkg/scheduler"
	"github.com/go-git/go-billy/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var datasetRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "harvester_dataset_records_total",
	Help: "Species processed by the dataset stage by result",
}, []string{"result"})

// DefaultConcurrency bounds dataset-stage requests.
const DefaultConcurrency = 20

// Stats summarizes one Build.
type Stats struct {
	Generations      int
	GenerationErrors int
	Species          int
	RecordErrors     int
	Duplicates       int
	Records          int
}

// Aggregator builds the dataset across generations.
type Aggregator struct {
	resolver *Resolver
	fetcher  *Fetcher
	limiter  *scheduler.Scheduler
	fs       billy.Filesystem
	logger   zerolog.Logger
}

// NewAggregator creates an aggregator. Every network call acquires a slot
// on limiter; a nil limiter means no ceiling.
func NewAggregator(api Getter, limiter *scheduler.Scheduler, fs billy.Filesystem) *Aggregator {
	if limiter == nil {
		limiter = scheduler.New("dataset", 0)
	}
	return &Aggregator{
		resolver: NewResolver(api),
		fetcher:  NewFetcher(api),
		limiter:  limiter,
		fs:       fs,
		logger:   log.With().Str("component", "dataset-aggregator").Logger(),
	}
}

// genResult is the slot one generation task fills.
type genResult struct {
	records []Record
	species int
	failed  int
	err     error
}

// Build resolves generations 1..n concurrently, fetches every species of
// each generation concurrently and returns the sorted dataset. Per-species
// and per-generation failures are logged and leave records out. Build only
// fails when ctx is done.
func (a *Aggregator) Build(ctx context.Context, n int) (Dataset, Stats, error) {
	if n < 1 {
		return nil, Stats{}, fmt.Errorf("generation count must be >= 1 (got %d)", n)
	}

	start := time.Now()
	a.logger.Info().
		Int("generations", n).
		Int("concurrency", a.limiter.Capacity()).
		Msg("Building dataset")

	results := make([]genResult, n)
	var wg sync.WaitGroup
	for gen := 1; gen <= n; gen++ {
		wg.Add(1)
		go func(gen int) {
			defer wg.Done()
			results[gen-1] = a.collectGeneration(ctx, gen)
		}(gen)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, Stats{}, fmt.Errorf("build dataset: %w", err)
	}

	stats := Stats{Generations: n}
	var flat []Record
	for _, r := range results {
		if r.err != nil {
			stats.GenerationErrors++
		}
		stats.Species += r.species
		stats.RecordErrors += r.failed
		flat = append(flat, r.records...)
	}

	ds, dropped := Canonicalize(flat)
	for _, id := range dropped {
		a.logger.Warn().Int("species_id", id).Msg("Duplicate species id, keeping first occurrence")
	}
	stats.Duplicates = len(dropped)
	stats.Records = len(ds)

	a.logger.Info().
		Int("records", stats.Records).
		Int("species", stats.Species).
		Int("record_errors", stats.RecordErrors).
		Int("generation_errors", stats.GenerationErrors).
		Dur("duration", time.Since(start)).
		Msg("Dataset built")

	return ds, stats, nil
}

// collectGeneration resolves one generation and fetches its species. Each
// species task writes only its own index of the slot slice.
func (a *Aggregator) collectGeneration(ctx context.Context, gen int) genResult {
	var refs []SpeciesRef
	err := a.limiter.Do(ctx, func() error {
		var err error
		refs, err = a.resolver.Resolve(ctx, gen)
		return err
	})
	if err != nil {
		a.logger.Warn().Err(err).Int("generation", gen).Msg("Generation dropped")
		return genResult{err: err}
	}

	slots := make([]*Record, len(refs))
	var wg sync.WaitGroup
	for i, ref := range refs {
		wg.Add(1)
		go func(i int, ref SpeciesRef) {
			defer wg.Done()

			var rec Record
			err := a.limiter.Do(ctx, func() error {
				var err error
				rec, err = a.fetcher.Fetch(ctx, ref, gen)
				return err
			})
			if err != nil {
				datasetRecordsTotal.WithLabelValues("dropped").Inc()
				a.logger.Warn().
					Err(err).
					Int("generation", gen).
					Str("url", ref.URL).
					Msg("Species dropped from dataset")
				return
			}

			datasetRecordsTotal.WithLabelValues("ok").Inc()
			slots[i] = &rec
		}(i, ref)
	}
	wg.Wait()

	out := genResult{species: len(refs)}
	for _, rec := range slots {
		if rec == nil {
			out.failed++
			continue
		}
		out.records = append(out.records, *rec)
	}
	return out
}

// Run builds the dataset and writes it to path. Only a write failure or a
// cancelled ctx is returned.
func (a *Aggregator) Run(ctx context.Context, n int, path string) (Dataset, Stats, error) {
	ds, stats, err := a.Build(ctx, n)
	if err != nil {
		return nil, stats, err
	}
	if err := Write(a.fs, path, ds); err != nil {
		return nil, stats, err
	}

	a.logger.Info().
		Str("path", path).
		Int("records", len(ds)).
		Msg("Dataset written")
	return ds, stats, nil
}
