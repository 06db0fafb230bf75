package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ferro-labs/ferroinfer"
	"github.com/ferro-labs/ferroinfer/internal/logging"
	"github.com/ferro-labs/ferroinfer/internal/metrics"
	"github.com/ferro-labs/ferroinfer/internal/version"
	"github.com/ferro-labs/ferroinfer/model"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load the model and start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			logging.Setup(cfg.Log.Level, cfg.Log.Format)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, *cfg, model.HugotLoader{})
		},
	}

	cmd.Flags().String("host", "", "listen address (default 0.0.0.0)")
	cmd.Flags().Int("port", 0, "listen port (default 5000)")
	cmd.Flags().String("model", "", "Hugging Face model id")
	cmd.Flags().String("model-path", "", "local ONNX model directory; skips the download")
	cmd.Flags().Int("cache-capacity", 0, "number of predictions to keep cached (default 128)")
	cmd.Flags().Int("workers", 0, "classifier worker goroutines (default: one per CPU)")
	return cmd
}

// resolveConfig layers defaults, the config file, the environment and the
// command-line flags, in that order, and validates the result.
func resolveConfig(cmd *cobra.Command) (*ferroinfer.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv("FERROINFER_CONFIG")
	}

	cfg := ferroinfer.DefaultConfig()
	if path != "" {
		loaded, err := ferroinfer.LoadConfig(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = *loaded
	}
	if err := ferroinfer.ApplyEnv(&cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	flags := cmd.Flags()
	setString := func(name string, dst *string) {
		if f := flags.Lookup(name); f != nil && f.Changed {
			*dst, _ = flags.GetString(name)
		}
	}
	setInt := func(name string, dst *int) {
		if f := flags.Lookup(name); f != nil && f.Changed {
			*dst, _ = flags.GetInt(name)
		}
	}
	setString("host", &cfg.Server.Host)
	setInt("port", &cfg.Server.Port)
	setString("model", &cfg.Model.ID)
	setString("model-path", &cfg.Model.Path)
	setInt("cache-capacity", &cfg.Cache.Capacity)
	setInt("workers", &cfg.Inference.Workers)

	if err := ferroinfer.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// serve runs the service until ctx is cancelled. The model is loaded before
// the listener opens, and released only after in-flight requests drained.
func serve(ctx context.Context, cfg ferroinfer.Config, loader model.Loader) error {
	log := logging.Logger
	metrics.BuildInfo.WithLabelValues(version.Short(), version.Commit).Set(1)

	svc, err := ferroinfer.New(cfg, loader)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		_ = svc.Shutdown(context.Background())
		log.Error("model initialization failed", "error", err)
		return err
	}

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	srv := &http.Server{
		Addr:         addr,
		Handler:      newRouter(svc.Handlers(), cfg.Server.CORSOrigins),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("ferroinfer listening", "addr", addr, "version", version.Short(), "model", cfg.Model.ID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down gracefully")
	case serveErr = <-errCh:
		log.Error("server error", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		log.Warn("service shutdown", "error", err)
	}
	log.Info("server stopped")
	return serveErr
}
