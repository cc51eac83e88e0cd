// Package sprites turns a dataset into sprite download jobs and runs them.
//
// Primary mode looks up every record's pokemon document by id and files its
// sprites under the record slug. Form mode does the same for every
// non-default form, named after the fetched pokemon. Both modes share one
// scheduler: detail lookups and downloads compete for the same slots.
package sprites

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/pokeapi-harvester/pkg/assets"
	"github.com/Sternrassler/pokeapi-harvester/pkg/dataset"
	"github.com/Sternrassler/pokeapi-harvester/pkg/scheduler"
	"github.com/Sternrassler/pokeapi-harvester/pkg/storage"
	"github.com/go-git/go-billy/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Mode names an orchestrator pass.
type Mode string

const (
	ModePrimary Mode = "primary"
	ModeForms   Mode = "forms"
)

// FormResolution selects how form pokemon are located.
type FormResolution string

const (
	// ResolveBySlug fetches pokemon/{slug}/ for every form slug in the dataset.
	ResolveBySlug FormResolution = "slug"

	// ResolvePositional fetches pokemon/{id}/ for ids offset..offset+total-1,
	// assuming form ids are assigned contiguously.
	ResolvePositional FormResolution = "positional"
)

// DefaultFormOffset is the first id of non-default forms.
const DefaultFormOffset = 10001

// ErrInvalidName is returned when a fetched name cannot be used as a file stem.
var ErrInvalidName = errors.New("invalid sprite name")

// Options configures an Orchestrator.
type Options struct {
	ImagesDir      string
	FormResolution FormResolution
	FormOffset     int
}

// DefaultOptions returns the default layout and form policy.
func DefaultOptions() Options {
	return Options{
		ImagesDir:      "images",
		FormResolution: ResolveBySlug,
		FormOffset:     DefaultFormOffset,
	}
}

// Summary counts what one mode did.
type Summary struct {
	Mode         Mode
	Records      int
	DetailErrors int
	Jobs         int
	Success      int
	Skipped      int
	Failed       int
	Duration     time.Duration
}

type pokemonDoc struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Sprites struct {
		BackDefault  *string `json:"back_default"`
		BackShiny    *string `json:"back_shiny"`
		FrontDefault *string `json:"front_default"`
		FrontShiny   *string `json:"front_shiny"`
	} `json:"sprites"`
}

// spriteURLs returns the non-empty sprite URLs by category.
func (d pokemonDoc) spriteURLs() map[assets.Category]string {
	urls := make(map[assets.Category]string, len(assets.Categories))
	for cat, u := range map[assets.Category]*string{
		assets.BackDefault:  d.Sprites.BackDefault,
		assets.BackShiny:    d.Sprites.BackShiny,
		assets.FrontDefault: d.Sprites.FrontDefault,
		assets.FrontShiny:   d.Sprites.FrontShiny,
	} {
		if u != nil && *u != "" {
			urls[cat] = *u
		}
	}
	return urls
}

// target is one pokemon document to look up. stem names the files; an
// empty stem means the fetched name is used.
type target struct {
	ref  string
	stem string
}

// Orchestrator drives sprite downloads for a dataset.
type Orchestrator struct {
	api     dataset.Getter
	fetcher *assets.Fetcher
	sched   *scheduler.Scheduler
	fs      billy.Filesystem
	opts    Options
	logger  zerolog.Logger
}

// New creates an orchestrator. sched must be the scheduler fetcher was
// built with so lookups and downloads share one ceiling.
func New(api dataset.Getter, fetcher *assets.Fetcher, sched *scheduler.Scheduler, fs billy.Filesystem, opts Options) *Orchestrator {
	if opts.ImagesDir == "" {
		opts.ImagesDir = "images"
	}
	if opts.FormResolution == "" {
		opts.FormResolution = ResolveBySlug
	}
	if opts.FormOffset <= 0 {
		opts.FormOffset = DefaultFormOffset
	}
	return &Orchestrator{
		api:     api,
		fetcher: fetcher,
		sched:   sched,
		fs:      fs,
		opts:    opts,
		logger:  log.With().Str("component", "sprite-orchestrator").Logger(),
	}
}

// EnsureFolders creates the directory of every category. It is idempotent.
func (o *Orchestrator) EnsureFolders() error {
	dirs := make([]string, 0, len(assets.Categories))
	for _, cat := range assets.Categories {
		dirs = append(dirs, filepath.Join(o.opts.ImagesDir, string(cat)))
	}
	return storage.EnsureDirs(o.fs, dirs...)
}

// DownloadPrimary downloads the sprites of every record, named by slug.
func (o *Orchestrator) DownloadPrimary(ctx context.Context, ds dataset.Dataset) (Summary, error) {
	targets := make([]target, 0, len(ds))
	for _, rec := range ds {
		targets = append(targets, target{ref: fmt.Sprintf("pokemon/%d/", rec.ID), stem: rec.Slug})
	}
	return o.download(ctx, ModePrimary, targets)
}

// DownloadForms downloads the sprites of every non-default form, named by
// the fetched pokemon name.
func (o *Orchestrator) DownloadForms(ctx context.Context, ds dataset.Dataset) (Summary, error) {
	var targets []target
	switch o.opts.FormResolution {
	case ResolvePositional:
		total := ds.TotalForms()
		for id := o.opts.FormOffset; id < o.opts.FormOffset+total; id++ {
			targets = append(targets, target{ref: fmt.Sprintf("pokemon/%d/", id)})
		}
	case ResolveBySlug:
		for _, rec := range ds {
			for _, form := range rec.Forms {
				targets = append(targets, target{ref: fmt.Sprintf("pokemon/%s/", form)})
			}
		}
	default:
		return Summary{Mode: ModeForms}, fmt.Errorf("unknown form resolution %q", o.opts.FormResolution)
	}
	return o.download(ctx, ModeForms, targets)
}

// Run downloads primary sprites, then form sprites.
func (o *Orchestrator) Run(ctx context.Context, ds dataset.Dataset) ([]Summary, error) {
	primary, err := o.DownloadPrimary(ctx, ds)
	if err != nil {
		return []Summary{primary}, err
	}
	forms, err := o.DownloadForms(ctx, ds)
	return []Summary{primary, forms}, err
}

// download looks up every target concurrently and dispatches its jobs as
// soon as the lookup returns. It waits for every job.
func (o *Orchestrator) download(ctx context.Context, mode Mode, targets []target) (Summary, error) {
	start := time.Now()
	if err := o.EnsureFolders(); err != nil {
		return Summary{Mode: mode}, err
	}

	o.logger.Info().
		Str("mode", string(mode)).
		Int("targets", len(targets)).
		Msg("Downloading sprites")

	type slot struct {
		results []assets.Result
		err     error
	}
	slots := make([]slot, len(targets))

	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func(i int, t target) {
			defer wg.Done()

			jobs, err := o.jobsFor(ctx, t)
			if err != nil {
				o.logger.Warn().
					Err(err).
					Str("mode", string(mode)).
					Str("ref", t.ref).
					Msg("Pokemon lookup failed")
				slots[i].err = err
				return
			}
			slots[i].results = o.fetcher.FetchAll(ctx, jobs)
		}(i, t)
	}
	wg.Wait()

	sum := Summary{Mode: mode, Records: len(targets)}
	for _, s := range slots {
		if s.err != nil {
			sum.DetailErrors++
			continue
		}
		sum.Jobs += len(s.results)
		success, skipped, failed := assets.Tally(s.results)
		sum.Success += success
		sum.Skipped += skipped
		sum.Failed += failed
	}
	sum.Duration = time.Since(start)

	o.logger.Info().
		Str("mode", string(mode)).
		Int("records", sum.Records).
		Int("detail_errors", sum.DetailErrors).
		Int("jobs", sum.Jobs).
		Int("success", sum.Success).
		Int("skipped", sum.Skipped).
		Int("failed", sum.Failed).
		Dur("duration", sum.Duration).
		Msg("Sprites done")

	if err := ctx.Err(); err != nil {
		return sum, fmt.Errorf("%s sprites: %w", mode, err)
	}
	return sum, nil
}

// jobsFor fetches the pokemon document of t while holding a slot and turns
// its sprite URLs into jobs. The slot is released before the jobs run.
func (o *Orchestrator) jobsFor(ctx context.Context, t target) ([]assets.Job, error) {
	var doc pokemonDoc
	if err := o.sched.Do(ctx, func() error {
		return o.api.GetJSON(ctx, t.ref, &doc)
	}); err != nil {
		return nil, err
	}

	stem := t.stem
	if stem == "" {
		stem = doc.Name
	}
	if stem == "" || strings.ContainsAny(stem, `/\`) || stem == "." || stem == ".." {
		return nil, fmt.Errorf("%w: %q from %s", ErrInvalidName, stem, t.ref)
	}

	urls := doc.spriteURLs()
	jobs := make([]assets.Job, 0, len(urls))
	for _, cat := range assets.Categories {
		u, ok := urls[cat]
		if !ok {
			continue
		}
		jobs = append(jobs, assets.Job{
			SourceURL:       u,
			DestinationPath: filepath.Join(o.opts.ImagesDir, string(cat), stem+".png"),
			Category:        cat,
		})
	}
	return jobs, nil
}
