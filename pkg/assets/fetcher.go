package assets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Sternrassler/pokeapi-harvester/pkg/scheduler"
	"github.com/Sternrassler/pokeapi-harvester/pkg/storage"
	"github.com/go-git/go-billy/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	assetDownloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_asset_downloads_total",
		Help: "Sprite jobs by terminal outcome",
	}, []string{"outcome"})

	assetRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_asset_retries_total",
		Help: "Sprite download attempts retried after a transient failure",
	})

	assetDownloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "harvester_asset_download_duration_seconds",
		Help:    "Sprite job duration including retries",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	})
)

var (
	// ErrRetriesExhausted is returned when every attempt failed transiently.
	ErrRetriesExhausted = errors.New("asset retries exhausted")

	// ErrUnexpectedStatus is returned for a status other than 200 or 404.
	ErrUnexpectedStatus = errors.New("unexpected status")
)

// Doer sends HTTP requests. *http.Client implements it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Observer is notified of every state transition of a job.
type Observer func(job Job, state State)

// Options configures a Fetcher.
type Options struct {
	// Timeout bounds one attempt, body included.
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// Backoff is the constant wait between attempts.
	Backoff time.Duration

	// UserAgent is sent when set.
	UserAgent string

	// Observer is optional.
	Observer Observer
}

// DefaultOptions returns the default download policy.
func DefaultOptions() Options {
	return Options{
		Timeout:    10 * time.Second,
		MaxRetries: 3,
		Backoff:    2 * time.Second,
	}
}

// Fetcher downloads jobs. It is safe for concurrent use.
type Fetcher struct {
	http   Doer
	sched  *scheduler.Scheduler
	fs     billy.Filesystem
	opts   Options
	logger zerolog.Logger
}

// NewFetcher creates a fetcher. Every attempt holds one slot of sched.
func NewFetcher(httpClient Doer, sched *scheduler.Scheduler, fs billy.Filesystem, opts Options) *Fetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if sched == nil {
		sched = scheduler.New("assets", scheduler.DefaultCapacity)
	}
	return &Fetcher{
		http:   httpClient,
		sched:  sched,
		fs:     fs,
		opts:   opts,
		logger: log.With().Str("component", "asset-fetcher").Logger(),
	}
}

type attemptResult struct {
	outcome   Outcome
	transient bool
	err       error
}

// Fetch runs job to a terminal outcome. Transient failures (timeouts,
// connection errors, broken bodies) are retried up to MaxRetries times
// with a constant backoff. The scheduler slot is released during the
// backoff. Fetch never panics on failure and the result is never fatal.
func (f *Fetcher) Fetch(ctx context.Context, job Job) Result {
	start := time.Now()
	f.notify(job, StatePending)

	attempts := 0
	for {
		f.notify(job, StateInFlight)
		attempts++

		var res attemptResult
		if err := f.sched.Do(ctx, func() error {
			res = f.attempt(ctx, job)
			return nil
		}); err != nil {
			return f.finish(job, start, attempts, OutcomeFailed, fmt.Errorf("wait for slot: %w", err))
		}

		if !res.transient {
			return f.finish(job, start, attempts, res.outcome, res.err)
		}
		if ctx.Err() != nil {
			return f.finish(job, start, attempts, OutcomeFailed, res.err)
		}

		job.Attempt++
		if job.Attempt > f.opts.MaxRetries {
			return f.finish(job, start, attempts, OutcomeFailed,
				fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, res.err))
		}

		assetRetriesTotal.Inc()
		f.notify(job, StateRetrying)
		f.logger.Warn().
			Err(res.err).
			Str("url", job.SourceURL).
			Str("category", string(job.Category)).
			Int("attempt", job.Attempt).
			Dur("backoff", f.opts.Backoff).
			Msg("Sprite download failed, retrying")

		select {
		case <-time.After(f.opts.Backoff):
		case <-ctx.Done():
			return f.finish(job, start, attempts, OutcomeFailed, ctx.Err())
		}
	}
}

// attempt performs one GET under the attempt timeout and streams a 200
// body to the destination.
func (f *Fetcher) attempt(ctx context.Context, job Job) attemptResult {
	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.SourceURL, nil)
	if err != nil {
		return attemptResult{outcome: OutcomeFailed, err: fmt.Errorf("create request: %w", err)}
	}
	if f.opts.UserAgent != "" {
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return attemptResult{transient: true, err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		_, err := storage.CreateAtomic(f.fs, job.DestinationPath, resp.Body)
		var srcErr *storage.SourceError
		switch {
		case errors.As(err, &srcErr):
			return attemptResult{transient: true, err: err}
		case err != nil:
			return attemptResult{outcome: OutcomeFailed, err: err}
		}
		return attemptResult{outcome: OutcomeSuccess}

	case http.StatusNotFound:
		return attemptResult{outcome: OutcomeSkipped}

	default:
		return attemptResult{
			outcome: OutcomeFailed,
			err:     fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode),
		}
	}
}

func (f *Fetcher) finish(job Job, start time.Time, attempts int, outcome Outcome, err error) Result {
	assetDownloadsTotal.WithLabelValues(string(outcome)).Inc()
	assetDownloadDuration.Observe(time.Since(start).Seconds())
	f.notify(job, outcome.state())

	switch outcome {
	case OutcomeSuccess:
		f.logger.Debug().
			Str("path", job.DestinationPath).
			Int("attempts", attempts).
			Msg("Sprite downloaded")
	case OutcomeSkipped:
		f.logger.Info().
			Str("url", job.SourceURL).
			Str("category", string(job.Category)).
			Msg("Sprite not found, skipping")
	default:
		f.logger.Warn().
			Err(err).
			Str("url", job.SourceURL).
			Str("category", string(job.Category)).
			Int("attempts", attempts).
			Msg("Sprite download failed")
	}

	return Result{Job: job, Outcome: outcome, Attempts: attempts, Err: err}
}

func (f *Fetcher) notify(job Job, state State) {
	if f.opts.Observer != nil {
		f.opts.Observer(job, state)
	}
}

// FetchAll runs every job concurrently and waits for all of them. The
// result at index i belongs to jobs[i].
func (f *Fetcher) FetchAll(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))
	var wg sync.WaitGroup
	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job Job) {
			defer wg.Done()
			results[i] = f.Fetch(ctx, job)
		}(i, job)
	}
	wg.Wait()
	return results
}

// Tally counts results by outcome.
func Tally(results []Result) (success, skipped, failed int) {
	for _, r := range results {
		switch r.Outcome {
		case OutcomeSuccess:
			success++
		case OutcomeSkipped:
			skipped++
		default:
			failed++
		}
	}
	return success, skipped, failed
}
