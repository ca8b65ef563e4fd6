package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"

	"github.com/ironsheep/lipid-tools-mcp/internal/imaging"
	"github.com/ironsheep/lipid-tools-mcp/internal/stats"
)

var (
	// ErrCanceled is recorded for images that were never started because
	// the batch was cancelled or stopped.
	ErrCanceled = errors.New("canceled")

	// ErrStopped is returned by RunBatch when the Stop hook ended the run.
	ErrStopped = errors.New("batch stopped")
)

// Source supplies one decoded image and its group label.
type Source interface {
	ID() string
	Group() string
	Open() (*imaging.Image, error)
}

// Releaser is implemented by sources holding resources, such as a cached
// decode, that RunBatch can drop once the image is finished.
type Releaser interface {
	Release()
}

// MemorySource is a Source backed by an in-memory image.
type MemorySource struct {
	Name  string
	Label string
	Image *imaging.Image
	Err   error
}

func (s MemorySource) ID() string    { return s.Name }
func (s MemorySource) Group() string { return s.Label }

// Open returns the image, or Err when set.
func (s MemorySource) Open() (*imaging.Image, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Image, nil
}

// Progress is reported after each image finishes.
type Progress struct {
	Done  int
	Total int
	ID    string
	Err   error
}

// BatchOptions control RunBatch.
type BatchOptions struct {
	// Workers is the number of images analysed in parallel.
	// Zero selects runtime.NumCPU().
	Workers int

	// RunID names the batch; empty generates a UUID.
	RunID string

	// Progress, when set, is called from a single goroutine after every
	// image, including failed and cancelled ones.
	Progress func(Progress)

	// Stop is polled before each image is dispatched; returning true
	// ends the run early.
	Stop func() bool

	// Logger receives one line per failed image and a completion line.
	// Nil disables logging.
	Logger *log.Logger

	// OnResult, when set, receives every successful analysis. It is called
	// from the worker goroutines and must be safe for concurrent use.
	OnResult func(src Source, res *Result)
}

type outcome struct {
	id      string
	group   string
	summary stats.ImageSummary
	err     error
}

// RunBatch analyses sources on a pool of workers and folds the results
// into a BatchSummary.
//
// Each image is an independent task: a failing image is recorded in
// Failures and never affects the others. Cancellation (ctx or Stop) is
// only observed between images; images already running complete, and
// images never started are recorded as failures with reason "canceled".
// The partial summary is returned together with ctx.Err() or ErrStopped.
func (a *Analyzer) RunBatch(ctx context.Context, sources []Source, opts BatchOptions) (stats.BatchSummary, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(sources) {
		workers = len(sources)
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan Source)
	results := make(chan outcome, workers)
	var stopped bool

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for src := range jobs {
				results <- a.runOne(src, opts.OnResult)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, src := range sources {
			if ctx.Err() != nil || (opts.Stop != nil && opts.Stop()) {
				stopped = ctx.Err() == nil
				cancelRemaining(results, sources[i:])
				return
			}
			select {
			case jobs <- src:
			case <-ctx.Done():
				cancelRemaining(results, sources[i:])
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	batch := stats.NewBatch(opts.RunID)
	done := 0
	for o := range results {
		done++
		if o.err != nil {
			batch.AddFailure(o.id, o.group, o.err)
			if opts.Logger != nil && !errors.Is(o.err, ErrCanceled) {
				opts.Logger.Printf("image %s: analysis failed: %v", o.id, o.err)
			}
		} else {
			batch.Add(o.summary)
		}
		if opts.Progress != nil {
			opts.Progress(Progress{Done: done, Total: len(sources), ID: o.id, Err: o.err})
		}
	}

	summary := batch.Finalize()
	if opts.Logger != nil {
		opts.Logger.Printf("batch %s: %d succeeded, %d failed", summary.RunID, summary.Succeeded, summary.Failed)
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	if stopped {
		return summary, ErrStopped
	}
	return summary, nil
}

func cancelRemaining(results chan<- outcome, rest []Source) {
	for _, src := range rest {
		results <- outcome{id: src.ID(), group: src.Group(), err: ErrCanceled}
	}
}

// runOne analyses a single source, converting panics into failures.
func (a *Analyzer) runOne(src Source, onResult func(Source, *Result)) (out outcome) {
	out.id, out.group = src.ID(), src.Group()
	defer func() {
		if r := recover(); r != nil {
			out.err = fmt.Errorf("analysis panicked: %v", r)
		}
	}()
	if r, ok := src.(Releaser); ok {
		// Runs after onResult, which may still read the decoded image.
		defer r.Release()
	}

	img, err := src.Open()
	if err != nil {
		out.err = fmt.Errorf("open image: %w", err)
		return out
	}
	res, err := a.Analyze(out.id, out.group, img)
	if err != nil {
		out.err = err
		return out
	}
	out.summary = res.Summary
	if onResult != nil {
		onResult(src, res)
	}
	return out
}
