package model

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ferro-labs/ferroinfer/internal/logging"
)

// State is the lifecycle position of a Handle.
type State int32

const (
	// StateAbsent: created, not yet initialised.
	StateAbsent State = iota
	// StateLoaded: pipeline ready, Classify is valid.
	StateLoaded
	// StateCleared: torn down, Classify is no longer valid.
	StateCleared
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateLoaded:
		return "loaded"
	case StateCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// DefaultInitTimeout bounds the retries Initialize performs on a failing load.
const DefaultInitTimeout = 5 * time.Minute

// HandleOption configures a Handle.
type HandleOption func(*Handle)

// WithInitTimeout sets the total time Initialize may spend retrying a load.
func WithInitTimeout(d time.Duration) HandleOption {
	return func(h *Handle) {
		if d > 0 {
			h.initTimeout = d
		}
	}
}

// WithBackOff replaces the exponential retry policy used by Initialize.
// The factory is called once per Initialize.
func WithBackOff(newBackOff func() backoff.BackOff) HandleOption {
	return func(h *Handle) {
		if newBackOff != nil {
			h.newBackOff = newBackOff
		}
	}
}

// Handle owns the single classifier instance of the process.
//
// State moves absent → loaded (Initialize) → cleared (Teardown) and never
// back. The pipeline is read-only while loaded; mu only guards the two
// transitions so that Teardown never closes a pipeline under a running
// Classify.
type Handle struct {
	loader      Loader
	spec        Spec
	initTimeout time.Duration
	newBackOff  func() backoff.BackOff

	initMu   sync.Mutex
	mu       sync.RWMutex
	state    atomic.Int32
	pipeline Pipeline
}

// NewHandle returns an absent Handle that will load spec through loader.
func NewHandle(loader Loader, spec Spec, opts ...HandleOption) *Handle {
	if spec.ModelID == "" {
		spec.ModelID = DefaultModelID
	}
	h := &Handle{
		loader:      loader,
		spec:        spec,
		initTimeout: DefaultInitTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.newBackOff == nil {
		h.newBackOff = h.defaultBackOff
	}
	return h
}

func (h *Handle) defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = h.initTimeout
	return b
}

// ModelID returns the identifier of the model this handle serves.
func (h *Handle) ModelID() string { return h.spec.ModelID }

// State returns the current lifecycle state.
func (h *Handle) State() State { return State(h.state.Load()) }

// Loaded reports whether the handle can serve Classify calls.
func (h *Handle) Loaded() bool { return h.State() == StateLoaded }

// Initialize loads the model. It must succeed exactly once before serving.
// Failed loads are retried with backoff until the init timeout elapses or ctx
// is done; errors wrapped with Permanent are not retried. The final failure
// is returned as *InitializationError.
func (h *Handle) Initialize(ctx context.Context) error {
	h.initMu.Lock()
	defer h.initMu.Unlock()

	switch h.State() {
	case StateLoaded:
		return ErrAlreadyInitialized
	case StateCleared:
		return ErrHandleCleared
	}
	if h.loader == nil {
		return &InitializationError{ModelID: h.spec.ModelID, Err: errors.New("no model loader configured")}
	}

	log := logging.FromContext(ctx).With("model", h.spec.ModelID)
	log.Info("loading model", "path", h.spec.Path, "cache_dir", h.spec.CacheDir)
	start := time.Now()

	var pipeline Pipeline
	attempt := 0
	operation := func() error {
		attempt++
		p, err := h.loader.Load(ctx, h.spec)
		if err != nil {
			return err
		}
		pipeline = p
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("model load failed, retrying", "attempt", attempt, "retry_in", wait.String(), "error", err)
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(h.newBackOff(), ctx), notify); err != nil {
		log.Error("model load failed", "attempts", attempt, "error", err)
		return &InitializationError{ModelID: h.spec.ModelID, Err: err}
	}

	h.mu.Lock()
	h.pipeline = pipeline
	h.state.Store(int32(StateLoaded))
	h.mu.Unlock()

	log.Info("model loaded", "attempts", attempt, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// Classify runs the model on text and returns its top-scoring label.
// It blocks for the duration of the model call.
func (h *Handle) Classify(_ context.Context, text string) (Prediction, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.State() != StateLoaded || h.pipeline == nil {
		return Prediction{}, ErrNotInitialized
	}
	preds, err := h.pipeline.Classify(text)
	if err != nil {
		return Prediction{}, &InferenceError{Err: err}
	}
	top, ok := Top(preds)
	if !ok {
		return Prediction{}, &InferenceError{Err: errors.New("classifier returned no labels")}
	}
	return top, nil
}

// Teardown releases the pipeline. It waits for running Classify calls and is
// a no-op unless the handle is loaded.
func (h *Handle) Teardown() error {
	h.initMu.Lock()
	defer h.initMu.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.State() != StateLoaded {
		return nil
	}
	pipeline := h.pipeline
	h.pipeline = nil
	h.state.Store(int32(StateCleared))
	if pipeline == nil {
		return nil
	}
	return pipeline.Close()
}

// Permanent marks a load error as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
