// Package ferroinfer serves a single text-classification model over HTTP with
// a bounded, memoized inference layer in front of it.
//
// The Service type is the main entry point: create one with New, load the
// model with Start before serving, route predictions through GetOrCompute,
// and release everything with Shutdown once traffic has drained.
//
// Settings are described by [Config], which can be loaded from a YAML or JSON
// file using [LoadConfig] and overlaid from the environment with [ApplyEnv].
package ferroinfer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ferro-labs/ferroinfer/internal/api"
	"github.com/ferro-labs/ferroinfer/internal/inference"
	"github.com/ferro-labs/ferroinfer/internal/logging"
	"github.com/ferro-labs/ferroinfer/internal/metrics"
	"github.com/ferro-labs/ferroinfer/internal/requestlog"
	"github.com/ferro-labs/ferroinfer/model"
)

// Service owns the model handle, the inference engine and the prediction log.
type Service struct {
	config Config
	handle *model.Handle
	engine *inference.Engine
	log    requestlog.WriteCloser

	shutdownOnce sync.Once
	shutdownErr  error
}

// New wires a Service from cfg. The model is not loaded until Start. A nil
// loader selects the hugot runtime.
func New(cfg Config, loader model.Loader) (*Service, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if loader == nil {
		loader = model.HugotLoader{}
	}

	handle := model.NewHandle(loader, cfg.Model.Spec(), model.WithInitTimeout(cfg.Model.InitTimeout()))
	engine, err := inference.New(handle, inference.Options{
		Capacity: cfg.Cache.Capacity,
		Workers:  cfg.Inference.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("create inference engine: %w", err)
	}

	reqLog, err := requestlog.Open(cfg.RequestLog.Driver, cfg.RequestLog.DSN)
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("open prediction log: %w", err)
	}

	return &Service{config: cfg, handle: handle, engine: engine, log: reqLog}, nil
}

// Config returns the configuration the service was built with.
func (s *Service) Config() Config { return s.config }

// Start loads the model. It must succeed before the HTTP server accepts
// traffic; a failure is an *model.InitializationError.
func (s *Service) Start(ctx context.Context) error {
	if err := s.handle.Initialize(ctx); err != nil {
		return err
	}
	metrics.ModelLoaded.Set(1)
	logging.FromContext(ctx).Info("service ready",
		"model", s.handle.ModelID(),
		"cache_capacity", s.engine.Capacity(),
	)
	return nil
}

// Shutdown stops the worker pool, releases the model and closes the
// prediction log. Call it after the HTTP server has drained. It is safe to
// call more than once.
func (s *Service) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.engine.Close()
		var errs []error
		if err := s.handle.Teardown(); err != nil {
			errs = append(errs, fmt.Errorf("teardown model: %w", err))
		}
		metrics.ModelLoaded.Set(0)
		if err := s.log.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close prediction log: %w", err))
		}
		s.shutdownErr = errors.Join(errs...)
		logging.FromContext(ctx).Info("model released", "model", s.handle.ModelID())
	})
	return s.shutdownErr
}

// GetOrCompute returns the prediction for text, classifying it at most once
// while it stays cached.
func (s *Service) GetOrCompute(ctx context.Context, text string) (model.Prediction, error) {
	return s.engine.GetOrCompute(ctx, text)
}

// Loaded reports whether the model is ready to classify.
func (s *Service) Loaded() bool { return s.handle.Loaded() }

// Handlers returns the HTTP handlers bound to this service.
func (s *Service) Handlers() *api.Handlers {
	return &api.Handlers{Engine: s, Model: s, Log: s.log}
}
