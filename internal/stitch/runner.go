package stitch

import (
	"context"
	"errors"
	"image"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/kiesman99/tilestitch/internal/stitcher"
)

// ErrClosed is returned for jobs submitted after Close
var ErrClosed = errors.New("runner closed")

// Outcome carries the result of a job run on the Runner
type Outcome[T any] struct {
	Value T
	Err   error
}

// Runner executes split, merge, crop and resize jobs on a fixed set of
// worker goroutines so the submitting goroutine only waits on a channel.
// A started job always runs to completion; callers that give up simply
// stop listening.
type Runner struct {
	engine *stitcher.Stitcher
	jobs   chan func()
	wait   sync.WaitGroup
	log    log.FieldLogger

	// mu guards closed; submitters hold the read lock while sending
	mu     sync.RWMutex
	closed bool
}

// NewRunner starts n workers in front of engine
func NewRunner(engine *stitcher.Stitcher, n int, logger log.FieldLogger) *Runner {
	if n <= 0 {
		n = 1
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	r := &Runner{
		engine: engine,
		jobs:   make(chan func(), n),
		log:    logger,
	}
	for i := 0; i < n; i++ {
		r.wait.Add(1)
		go func() {
			defer r.wait.Done()
			for job := range r.jobs {
				job()
			}
		}()
	}
	return r
}

// Close stops accepting jobs and waits for queued ones to finish. Later
// submissions fail with ErrClosed.
func (r *Runner) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.jobs)
	r.mu.Unlock()
	r.wait.Wait()
}

func submit[T any](ctx context.Context, r *Runner, name string, fn func() (T, error)) <-chan Outcome[T] {
	out := make(chan Outcome[T], 1)
	job := func() {
		v, err := fn()
		if err != nil {
			r.log.WithError(err).WithField("job", name).Debug("job failed")
		}
		out <- Outcome[T]{Value: v, Err: err}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		out <- Outcome[T]{Err: ErrClosed}
		return out
	}
	select {
	case r.jobs <- job:
	case <-ctx.Done():
		out <- Outcome[T]{Err: ctx.Err()}
	}
	return out
}

// Await blocks until the outcome arrives or ctx is done
func Await[T any](ctx context.Context, ch <-chan Outcome[T]) (T, error) {
	select {
	case o := <-ch:
		return o.Value, o.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Split queues a split of source into destDir
func (r *Runner) Split(ctx context.Context, source, destDir string, opts stitcher.SplitOptions) <-chan Outcome[*stitcher.SplitResult] {
	return submit(ctx, r, "split", func() (*stitcher.SplitResult, error) {
		return r.engine.Split(source, destDir, opts)
	})
}

// Merge queues a merge
func (r *Runner) Merge(ctx context.Context, req stitcher.MergeRequest) <-chan Outcome[*stitcher.MergeResult] {
	return submit(ctx, r, "merge", func() (*stitcher.MergeResult, error) {
		return r.engine.Merge(req)
	})
}

// Crop queues a crop of source into destDir
func (r *Runner) Crop(ctx context.Context, source string, rect image.Rectangle, destDir string) <-chan Outcome[string] {
	return submit(ctx, r, "crop", func() (string, error) {
		return r.engine.Crop(source, rect, destDir)
	})
}

// ResizeAndSave queues a resample-and-write of raw image bytes
func (r *Runner) ResizeAndSave(ctx context.Context, data []byte, width, height int, dest string) <-chan Outcome[struct{}] {
	return submit(ctx, r, "resize", func() (struct{}, error) {
		return struct{}{}, r.engine.ResizeAndSave(data, width, height, dest)
	})
}
