// Package syncer downloads a list of assets into a destination directory.
//
// Assets are processed one at a time, in input order. Files already present
// are skipped unless overwriting is requested, every write is atomic, and
// per-asset failures are recorded in the report instead of aborting the run.
package syncer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/time/rate"

	"github.com/cbout22/assetsync/internal/config"
	"github.com/cbout22/assetsync/internal/fetch"
)

// DefaultFetchTimeout bounds a single fetch invocation.
const DefaultFetchTimeout = 30 * time.Second

// Options tune a synchronization run.
type Options struct {
	OverwriteExisting   bool
	DelayBetweenFetches time.Duration // minimum spacing between fetch starts
	MaxRetries          int           // extra attempts for transient failures
	FetchTimeout        time.Duration
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{FetchTimeout: DefaultFetchTimeout}
}

// Recorder is notified of every successful transfer.
type Recorder interface {
	Record(res Result, data []byte) error
}

// Synchronizer fetches descriptors into a destination directory.
type Synchronizer struct {
	fetcher  fetch.Fetcher
	fs       FileSystem
	opts     Options
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithOptions sets the run options.
func WithOptions(o Options) Option {
	return func(s *Synchronizer) { s.opts = o }
}

// WithFileSystem replaces the OS filesystem.
func WithFileSystem(fs FileSystem) Option {
	return func(s *Synchronizer) { s.fs = fs }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Synchronizer) { s.logger = l }
}

// WithRecorder sets the recorder notified on success.
func WithRecorder(r Recorder) Option {
	return func(s *Synchronizer) { s.recorder = r }
}

// WithClock overrides time.Now for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) { s.now = now }
}

// New creates a Synchronizer fetching through f.
func New(f fetch.Fetcher, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		fetcher: f,
		fs:      OSFileSystem{},
		opts:    DefaultOptions(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.opts.FetchTimeout <= 0 {
		s.opts.FetchTimeout = DefaultFetchTimeout
	}
	if s.opts.MaxRetries < 0 {
		s.opts.MaxRetries = 0
	}
	return s
}

// Synchronize fetches every descriptor into dest and returns one result per
// descriptor, in input order.
//
// The only errors are a malformed descriptor list, a *SetupError when dest
// cannot be created, and the context error when ctx is done before every
// descriptor was processed. In the last case the report is returned too,
// with the unprocessed descriptors marked failed (canceled).
func (s *Synchronizer) Synchronize(ctx context.Context, descriptors []config.Descriptor, dest string) (*Report, error) {
	started := s.now()

	names, err := config.PlanNames(descriptors)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid descriptor list")
	}
	if err := checkUnique(names); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(dest)
	if err != nil {
		return nil, &SetupError{Destination: dest, Err: err}
	}
	if err := s.fs.MkdirAll(abs); err != nil {
		return nil, &SetupError{Destination: abs, Err: err}
	}

	report := &Report{
		RunID:       uuid.NewString(),
		Destination: abs,
		StartedAt:   started,
		Results:     make([]Result, len(descriptors)),
	}
	logger := s.logger.With("run_id", report.RunID)
	logger.Info("synchronization started",
		"destination", abs,
		"assets", len(descriptors),
		"overwrite", s.opts.OverwriteExisting,
		"delay", s.opts.DelayBetweenFetches,
		"max_retries", s.opts.MaxRetries,
	)

	pacer := newPacer(s.opts.DelayBetweenFetches)

	for i, d := range descriptors {
		res := Result{
			Descriptor: d,
			Name:       names[i],
			Path:       filepath.Join(abs, names[i]),
		}

		if err := ctx.Err(); err != nil {
			for j := i; j < len(descriptors); j++ {
				report.Results[j] = Result{
					Descriptor: descriptors[j],
					Name:       names[j],
					Path:       filepath.Join(abs, names[j]),
					Outcome:    OutcomeFailed,
					Reason:     fetch.ReasonCanceled,
					Err:        err,
				}
			}
			report.Duration = s.now().Sub(started)
			logger.Warn("synchronization interrupted", "processed", i, "remaining", len(descriptors)-i)
			return report, err
		}

		report.Results[i] = s.transfer(ctx, logger, pacer, res)
	}

	report.Duration = s.now().Sub(started)
	c := report.Counts()
	logger.Info("synchronization finished",
		"success", c.Success,
		"skipped", c.Skipped,
		"failed", c.Failed,
		"bytes", report.Bytes(),
		"duration", report.Duration,
	)
	return report, nil
}

func checkUnique(names []string) error {
	seen := make(map[string]int, len(names))
	for i, n := range names {
		if first, ok := seen[n]; ok {
			return &NamingConflictError{Name: n, First: first, Second: i}
		}
		seen[n] = i
	}
	return nil
}

func (s *Synchronizer) transfer(ctx context.Context, logger *slog.Logger, pacer *rate.Limiter, res Result) Result {
	logger = logger.With("name", res.Name, "source", res.Descriptor.Source)

	if !s.opts.OverwriteExisting && s.fs.Exists(res.Path) {
		res.Outcome = OutcomeSkipped
		res.Reason = ReasonAlreadyPresent
		logger.Debug("already present")
		return res
	}

	data, attempts, err := s.fetchWithRetry(ctx, logger, pacer, res.Descriptor.Source)
	res.Attempts = attempts
	if err != nil {
		fe := fetch.Classify(res.Descriptor.Source, err)
		res.Outcome = OutcomeFailed
		res.Reason = fe.Reason
		res.Err = fe
		logger.Warn("fetch failed", "reason", fe.Reason, "attempts", attempts, "error", err)
		return res
	}

	if err := s.fs.WriteAtomic(res.Path, data); err != nil {
		res.Outcome = OutcomeFailed
		res.Reason = ReasonWriteFailed
		res.Err = goerr.Wrap(err, "failed to write asset", goerr.V("path", res.Path))
		logger.Error("write failed", "path", res.Path, "error", err)
		return res
	}

	res.Outcome = OutcomeSuccess
	res.Size = int64(len(data))
	logger.Info("asset saved", "size", res.Size, "attempts", attempts)

	if s.recorder != nil {
		if err := s.recorder.Record(res, data); err != nil {
			logger.Warn("failed to record asset", "error", err)
		}
	}
	return res
}

// fetchWithRetry invokes the fetcher until it succeeds, fails permanently or
// MaxRetries extra attempts are spent. Attempts are spaced by the pacer only.
func (s *Synchronizer) fetchWithRetry(ctx context.Context, logger *slog.Logger, pacer *rate.Limiter, source string) ([]byte, int, error) {
	var (
		data     []byte
		attempts int
	)

	op := func() error {
		if err := pacer.Wait(ctx); err != nil {
			return backoff.Permanent(fetch.NewError(fetch.ReasonCanceled, source, err))
		}
		attempts++

		d, err := s.fetchOnce(ctx, source)
		if err != nil {
			fe := fetch.Classify(source, err)
			if !fe.Transient() || ctx.Err() != nil {
				return backoff.Permanent(fe)
			}
			return fe
		}
		data = d
		return nil
	}

	notify := func(err error, _ time.Duration) {
		logger.Debug("retrying fetch", "attempt", attempts, "error", err)
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(s.opts.MaxRetries)),
		ctx,
	)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, attempts, err
	}
	return data, attempts, nil
}

// fetchOnce runs one fetch bounded by FetchTimeout. A fetcher that ignores
// its context still cannot hold the run longer than the timeout.
func (s *Synchronizer) fetchOnce(ctx context.Context, source string) ([]byte, error) {
	fctx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	defer cancel()

	type outcome struct {
		data []byte
		err  error
	}
	ch := make(chan outcome, 1)
	go func() {
		d, err := s.fetcher.Fetch(fctx, source)
		ch <- outcome{data: d, err: err}
	}()

	select {
	case o := <-ch:
		if o.err != nil && ctx.Err() == nil && errors.Is(fctx.Err(), context.DeadlineExceeded) {
			return nil, fetch.NewError(fetch.ReasonTimeout, source, o.err)
		}
		return o.data, o.err
	case <-fctx.Done():
		if err := ctx.Err(); err != nil {
			return nil, fetch.NewError(fetch.ReasonCanceled, source, err)
		}
		return nil, fetch.NewError(fetch.ReasonTimeout, source, fctx.Err())
	}
}

// newPacer returns a limiter spacing fetch starts by delay. The first fetch
// is never delayed.
func newPacer(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}
