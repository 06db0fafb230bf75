// Package inference implements the memoized inference engine: a bounded LRU
// of predictions in front of a classifier, with single-flight coalescing so
// that each distinct text is classified at most once at a time.
//
// A lookup takes one of three paths:
//
//	hit        completed entry in the LRU        → returned immediately
//	coalesced  computation already in flight     → wait for it, share its outcome
//	miss       nothing cached, nothing in flight → classify on a pool worker
//
// Pending computations live in the singleflight group, never in the LRU, so
// eviction only ever removes completed entries. Failures are not cached.
package inference

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/singleflight"

	"github.com/ferro-labs/ferroinfer/internal/cache"
	"github.com/ferro-labs/ferroinfer/internal/logging"
	"github.com/ferro-labs/ferroinfer/internal/metrics"
	"github.com/ferro-labs/ferroinfer/model"
)

// ErrClosed is returned when a computation is needed after Close.
var ErrClosed = errors.New("inference engine closed")

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	// Capacity is the maximum number of cached predictions (default 128).
	Capacity int
	// Workers bounds concurrent classifier calls (default runtime.NumCPU()).
	Workers int
}

// Engine is the memoized inference engine. It is safe for concurrent use.
type Engine struct {
	classifier model.Classifier
	cache      cache.Cache
	group      singleflight.Group
	pool       *ants.Pool
}

// New builds an Engine over classifier.
func New(classifier model.Classifier, opts Options) (*Engine, error) {
	if classifier == nil {
		return nil, errors.New("inference: classifier is required")
	}
	if opts.Capacity == 0 {
		opts.Capacity = cache.DefaultCapacity
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}

	lru, err := cache.NewLRU(opts.Capacity)
	if err != nil {
		return nil, err
	}
	pool, err := ants.NewPool(opts.Workers)
	if err != nil {
		return nil, fmt.Errorf("create inference worker pool: %w", err)
	}

	return &Engine{
		classifier: classifier,
		cache:      lru,
		pool:       pool,
	}, nil
}

// GetOrCompute returns the prediction for text, computing it at most once
// across concurrent callers. Errors from the classifier are returned
// unchanged to every caller waiting on the same text and are never cached.
//
// The computation is detached from ctx: if ctx ends first, this caller gets
// ctx.Err() while the computation runs on and still fills the cache.
func (e *Engine) GetOrCompute(ctx context.Context, text string) (model.Prediction, error) {
	if pred, ok := e.cache.Get(text); ok {
		metrics.CacheLookups.WithLabelValues(metrics.LookupHit).Inc()
		return pred, nil
	}

	detached := context.WithoutCancel(ctx)
	// Set only if this caller's function runs, i.e. it leads the flight.
	// The write happens before the result is sent on ch.
	leader := false
	ch := e.group.DoChan(text, func() (interface{}, error) {
		leader = true
		// A caller that missed just before the previous computation stored
		// its result lands here; serve it instead of classifying again.
		if pred, ok := e.cache.Get(text); ok {
			metrics.CacheLookups.WithLabelValues(metrics.LookupHit).Inc()
			return pred, nil
		}
		metrics.CacheLookups.WithLabelValues(metrics.LookupMiss).Inc()
		return e.compute(detached, text)
	})

	select {
	case res := <-ch:
		if !leader {
			metrics.CacheLookups.WithLabelValues(metrics.LookupCoalesced).Inc()
		}
		if res.Err != nil {
			return model.Prediction{}, res.Err
		}
		return res.Val.(model.Prediction), nil
	case <-ctx.Done():
		return model.Prediction{}, ctx.Err()
	}
}

type outcome struct {
	pred model.Prediction
	err  error
}

// compute runs one classifier call on a pool worker and stores a successful
// result. It is only ever called from inside the singleflight group.
func (e *Engine) compute(ctx context.Context, text string) (model.Prediction, error) {
	metrics.InflightComputations.Inc()
	defer metrics.InflightComputations.Dec()

	done := make(chan outcome, 1)
	start := time.Now()
	err := e.pool.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: &model.InferenceError{Err: fmt.Errorf("classifier panic: %v", r)}}
			}
		}()
		pred, err := e.classifier.Classify(ctx, text)
		done <- outcome{pred: pred, err: err}
	})
	if err != nil {
		metrics.InferenceErrors.WithLabelValues("dispatch").Inc()
		if errors.Is(err, ants.ErrPoolClosed) {
			return model.Prediction{}, ErrClosed
		}
		return model.Prediction{}, fmt.Errorf("dispatch inference: %w", err)
	}

	out := <-done
	metrics.InferenceDuration.Observe(time.Since(start).Seconds())
	if out.err != nil {
		metrics.InferenceErrors.WithLabelValues(errorKind(out.err)).Inc()
		logging.FromContext(ctx).Warn("inference failed", "text_length", len(text), "error", out.err)
		return model.Prediction{}, out.err
	}

	if e.cache.Set(text, out.pred) {
		metrics.CacheEvictions.Inc()
	}
	metrics.CacheEntries.Set(float64(e.cache.Len()))
	return out.pred, nil
}

func errorKind(err error) string {
	var infErr *model.InferenceError
	switch {
	case errors.Is(err, model.ErrNotInitialized):
		return "not_initialized"
	case errors.As(err, &infErr):
		return "inference"
	default:
		return "other"
	}
}

// Cached reports whether a completed prediction for text is cached. It does
// not affect eviction order.
func (e *Engine) Cached(text string) bool {
	return e.cache.Contains(text)
}

// Len returns the number of cached predictions.
func (e *Engine) Len() int { return e.cache.Len() }

// Capacity returns the maximum number of cached predictions.
func (e *Engine) Capacity() int { return e.cache.Capacity() }

// Close stops the worker pool. Cache hits keep being served; anything that
// needs the classifier returns ErrClosed.
func (e *Engine) Close() {
	e.pool.Release()
}
