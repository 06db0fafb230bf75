package ferroinfer

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/ferro-labs/ferroinfer/internal/inference"
	"github.com/ferro-labs/ferroinfer/internal/requestlog"
	"github.com/ferro-labs/ferroinfer/model"
)

type countingPipeline struct {
	calls  *atomic.Int32
	closed *atomic.Bool
}

func (p countingPipeline) Classify(string) ([]model.Prediction, error) {
	p.calls.Add(1)
	return []model.Prediction{{Label: "Fake", Score: 0.97}, {Label: "Real", Score: 0.03}}, nil
}

func (p countingPipeline) Close() error {
	p.closed.Store(true)
	return nil
}

func newTestService(t *testing.T, cfg Config) (*Service, *atomic.Int32, *atomic.Bool) {
	t.Helper()
	calls, closed := &atomic.Int32{}, &atomic.Bool{}
	loader := model.LoaderFunc(func(context.Context, model.Spec) (model.Pipeline, error) {
		return countingPipeline{calls: calls, closed: closed}, nil
	})
	svc, err := New(cfg, loader)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })
	return svc, calls, closed
}

func TestService_Lifecycle(t *testing.T) {
	svc, calls, closed := newTestService(t, DefaultConfig())
	ctx := context.Background()

	if svc.Loaded() {
		t.Fatal("expected model not loaded before Start")
	}
	if _, err := svc.GetOrCompute(ctx, "x"); !errors.Is(err, model.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized before Start, got %v", err)
	}

	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !svc.Loaded() {
		t.Fatal("expected model loaded after Start")
	}

	for i := 0; i < 3; i++ {
		pred, err := svc.GetOrCompute(ctx, "Breaking: sky is green")
		if err != nil {
			t.Fatalf("predict: %v", err)
		}
		if pred.Label != "Fake" || pred.Score != 0.97 {
			t.Errorf("prediction = %+v", pred)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("classifier called %d times, want 1", n)
	}

	if err := svc.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !closed.Load() {
		t.Error("expected pipeline closed on shutdown")
	}
	if svc.Loaded() {
		t.Error("expected model unloaded after shutdown")
	}
	if _, err := svc.GetOrCompute(ctx, "new text"); !errors.Is(err, inference.ErrClosed) {
		t.Errorf("expected ErrClosed after shutdown, got %v", err)
	}
	if err := svc.Shutdown(ctx); err != nil {
		t.Errorf("second shutdown: %v", err)
	}
}

func TestService_StartFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model.InitTimeoutSeconds = 1
	loader := model.LoaderFunc(func(context.Context, model.Spec) (model.Pipeline, error) {
		return nil, model.Permanent(errors.New("no such model"))
	})
	svc, err := New(cfg, loader)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

	err = svc.Start(context.Background())
	var initErr *model.InitializationError
	if !errors.As(err, &initErr) {
		t.Fatalf("expected InitializationError, got %v", err)
	}
	if initErr.ModelID != model.DefaultModelID {
		t.Errorf("model id = %q", initErr.ModelID)
	}
	if svc.Loaded() {
		t.Error("model must not be loaded after failed start")
	}
}

func TestService_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cache.Capacity = 0
	if _, err := New(cfg, nil); err == nil {
		t.Fatal("expected error for invalid config")
	}

	cfg = DefaultConfig()
	cfg.RequestLog.Driver = "postgres"
	if _, err := New(cfg, nil); err == nil {
		t.Fatal("expected error for postgres without dsn")
	}
}

func TestService_CacheCapacityFromConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cache.Capacity = 7
	svc, _, _ := newTestService(t, cfg)
	if got := svc.engine.Capacity(); got != 7 {
		t.Errorf("capacity = %d, want 7", got)
	}
}

func TestService_RequestLog(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequestLog = RequestLogConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "p.db")}
	svc, _, _ := newTestService(t, cfg)

	w, ok := svc.log.(*requestlog.SQLWriter)
	if !ok {
		t.Fatalf("expected sqlite writer, got %T", svc.log)
	}
	h := svc.Handlers()
	if h.Log == nil || h.Engine == nil || h.Model == nil {
		t.Fatalf("handlers not wired: %+v", h)
	}
	if err := h.Log.Write(context.Background(), requestlog.Entry{TextHash: requestlog.HashText("a"), Status: 200}); err != nil {
		t.Fatalf("write: %v", err)
	}
	res, err := w.List(context.Background(), requestlog.Query{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if res.Total != 1 {
		t.Errorf("expected 1 entry, got %d", res.Total)
	}
}
