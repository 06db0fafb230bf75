package model

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type fakePipeline struct {
	preds  []Prediction
	err    error
	closed atomic.Int32
}

func (p *fakePipeline) Classify(_ string) ([]Prediction, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.preds, nil
}

func (p *fakePipeline) Close() error {
	p.closed.Add(1)
	return nil
}

func loaderFor(p Pipeline) Loader {
	return LoaderFunc(func(_ context.Context, _ Spec) (Pipeline, error) {
		return p, nil
	})
}

func noRetry() backoff.BackOff {
	return &backoff.StopBackOff{}
}

func TestHandle_ClassifyBeforeInitialize(t *testing.T) {
	h := NewHandle(loaderFor(&fakePipeline{}), Spec{})
	if h.Loaded() {
		t.Fatal("expected handle to start absent")
	}
	_, err := h.Classify(context.Background(), "hello")
	if !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestHandle_Lifecycle(t *testing.T) {
	p := &fakePipeline{preds: []Prediction{{Label: "Real", Score: 0.2}, {Label: "Fake", Score: 0.8}}}
	h := NewHandle(loaderFor(p), Spec{})

	if h.State() != StateAbsent {
		t.Fatalf("state = %s, want absent", h.State())
	}
	if err := h.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if !h.Loaded() {
		t.Fatal("expected handle to be loaded")
	}

	got, err := h.Classify(context.Background(), "Breaking: sky is green")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if got.Label != "Fake" || got.Score != 0.8 {
		t.Errorf("got %+v, want Fake/0.8", got)
	}

	if err := h.Teardown(); err != nil {
		t.Fatalf("teardown: %v", err)
	}
	if h.State() != StateCleared {
		t.Fatalf("state = %s, want cleared", h.State())
	}
	if p.closed.Load() != 1 {
		t.Errorf("pipeline closed %d times, want 1", p.closed.Load())
	}

	_, err = h.Classify(context.Background(), "again")
	if !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized after teardown, got %v", err)
	}
}

func TestHandle_TeardownIdempotent(t *testing.T) {
	p := &fakePipeline{preds: []Prediction{{Label: "Real", Score: 1}}}
	h := NewHandle(loaderFor(p), Spec{})

	// Before Initialize: nothing to release, state must not move.
	if err := h.Teardown(); err != nil {
		t.Fatalf("teardown before init: %v", err)
	}
	if h.State() != StateAbsent {
		t.Fatalf("state = %s, want absent", h.State())
	}

	if err := h.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := h.Teardown(); err != nil {
			t.Fatalf("teardown #%d: %v", i, err)
		}
	}
	if p.closed.Load() != 1 {
		t.Errorf("pipeline closed %d times, want 1", p.closed.Load())
	}
}

func TestHandle_InitializeTwice(t *testing.T) {
	h := NewHandle(loaderFor(&fakePipeline{}), Spec{})
	if err := h.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := h.Initialize(context.Background()); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
	_ = h.Teardown()
	if err := h.Initialize(context.Background()); !errors.Is(err, ErrHandleCleared) {
		t.Fatalf("expected ErrHandleCleared, got %v", err)
	}
}

func TestHandle_InitializeFailure(t *testing.T) {
	loadErr := errors.New("artifact missing")
	var calls atomic.Int32
	loader := LoaderFunc(func(_ context.Context, _ Spec) (Pipeline, error) {
		calls.Add(1)
		return nil, loadErr
	})
	h := NewHandle(loader, Spec{ModelID: "org/missing"}, WithBackOff(func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
	}))

	err := h.Initialize(context.Background())
	var initErr *InitializationError
	if !errors.As(err, &initErr) {
		t.Fatalf("expected *InitializationError, got %T (%v)", err, err)
	}
	if initErr.ModelID != "org/missing" {
		t.Errorf("model id = %q", initErr.ModelID)
	}
	if !errors.Is(err, loadErr) {
		t.Errorf("expected error to wrap the load error, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("loader called %d times, want 3 (1 + 2 retries)", calls.Load())
	}
	if h.Loaded() {
		t.Error("handle must stay absent after a failed load")
	}
}

func TestHandle_InitializeRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	loader := LoaderFunc(func(_ context.Context, _ Spec) (Pipeline, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("hub unavailable")
		}
		return &fakePipeline{preds: []Prediction{{Label: "Real", Score: 0.6}}}, nil
	})
	h := NewHandle(loader, Spec{}, WithBackOff(func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 5)
	}))

	if err := h.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("loader called %d times, want 3", calls.Load())
	}
}

func TestHandle_PermanentLoadErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	loader := LoaderFunc(func(_ context.Context, _ Spec) (Pipeline, error) {
		calls.Add(1)
		return nil, Permanent(errors.New("bad export"))
	})
	h := NewHandle(loader, Spec{}, WithBackOff(func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 5)
	}))

	if err := h.Initialize(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("loader called %d times, want 1", calls.Load())
	}
}

func TestHandle_NilLoader(t *testing.T) {
	h := NewHandle(nil, Spec{}, WithBackOff(noRetry))
	var initErr *InitializationError
	if err := h.Initialize(context.Background()); !errors.As(err, &initErr) {
		t.Fatalf("expected *InitializationError, got %v", err)
	}
}

func TestHandle_ClassifyErrors(t *testing.T) {
	pipeErr := errors.New("sequence too long")
	tests := []struct {
		name     string
		pipeline *fakePipeline
		wantErr  error
	}{
		{name: "pipeline error", pipeline: &fakePipeline{err: pipeErr}, wantErr: pipeErr},
		{name: "no labels", pipeline: &fakePipeline{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandle(loaderFor(tt.pipeline), Spec{})
			if err := h.Initialize(context.Background()); err != nil {
				t.Fatalf("initialize: %v", err)
			}
			_, err := h.Classify(context.Background(), "x")
			var infErr *InferenceError
			if !errors.As(err, &infErr) {
				t.Fatalf("expected *InferenceError, got %T (%v)", err, err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected wrapped %v, got %v", tt.wantErr, err)
			}
		})
	}
}

type blockingPipeline struct {
	entered chan struct{}
	release chan struct{}
	closed  atomic.Bool
}

func (p *blockingPipeline) Classify(_ string) ([]Prediction, error) {
	close(p.entered)
	<-p.release
	if p.closed.Load() {
		return nil, errors.New("classify ran on a closed pipeline")
	}
	return []Prediction{{Label: "Real", Score: 0.5}}, nil
}

func (p *blockingPipeline) Close() error {
	p.closed.Store(true)
	return nil
}

func TestHandle_TeardownWaitsForClassify(t *testing.T) {
	p := &blockingPipeline{entered: make(chan struct{}), release: make(chan struct{})}
	h := NewHandle(loaderFor(p), Spec{})
	if err := h.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	var wg sync.WaitGroup
	var classifyErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, classifyErr = h.Classify(context.Background(), "slow")
	}()
	<-p.entered

	done := make(chan struct{})
	go func() {
		_ = h.Teardown()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("teardown returned while classify was still running")
	case <-time.After(20 * time.Millisecond):
	}

	close(p.release)
	wg.Wait()
	<-done
	if classifyErr != nil {
		t.Fatalf("classify: %v", classifyErr)
	}
}

func TestTop(t *testing.T) {
	if _, ok := Top(nil); ok {
		t.Error("expected no result for empty input")
	}
	got, _ := Top([]Prediction{{Label: "a", Score: 0.5}, {Label: "b", Score: 0.5}, {Label: "c", Score: 0.1}})
	if got.Label != "a" {
		t.Errorf("tie should keep first label, got %s", got.Label)
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{StateAbsent: "absent", StateLoaded: "loaded", StateCleared: "cleared", State(9): "unknown"}
	for s, want := range cases {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}
