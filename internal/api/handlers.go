// Package api provides the HTTP handlers of the classification service:
// a liveness check reporting whether the model is loaded, and the predict
// endpoint backed by the memoized inference engine.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ferro-labs/ferroinfer/internal/logging"
	"github.com/ferro-labs/ferroinfer/internal/requestlog"
	"github.com/ferro-labs/ferroinfer/model"
	"github.com/go-chi/chi/v5"
)

// maxBodyBytes caps the /predict request body.
const maxBodyBytes = 1 << 20

// StatusClientClosedRequest is recorded when the client disconnects before
// its prediction is ready. It follows the nginx convention.
const StatusClientClosedRequest = 499

// Predictor returns the prediction for a text, computing it at most once.
type Predictor interface {
	GetOrCompute(ctx context.Context, text string) (model.Prediction, error)
}

// ModelStatus reports whether the classifier is ready.
type ModelStatus interface {
	Loaded() bool
}

// Handlers holds dependencies for the HTTP handlers.
type Handlers struct {
	Engine Predictor
	Model  ModelStatus
	// Log records every /predict outcome. Nil disables it.
	Log requestlog.Writer
}

// PredictRequest is the /predict request body.
type PredictRequest struct {
	Text string `json:"text"`
}

// PredictResponse is the /predict success body.
type PredictResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

// Routes returns a chi.Router with /health and /predict mounted.
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})
	r.Get("/health", h.health)
	r.Post("/predict", h.predict)
	return r
}

func (h *Handlers) health(w http.ResponseWriter, _ *http.Request) {
	loaded := h.Model != nil && h.Model.Loaded()
	writeJSON(w, http.StatusOK, HealthResponse{Status: "running", ModelLoaded: loaded})
}

func (h *Handlers) predict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	text, err := decodePredictRequest(w, r)
	if err != nil {
		h.record(ctx, text, model.Prediction{}, err, start)
		writeError(w, err)
		return
	}

	pred, err := h.Engine.GetOrCompute(ctx, text)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			// Nobody reads this body, but logs and metrics see the status.
			logging.FromContext(ctx).Debug("predict abandoned by client")
			h.recordStatus(ctx, text, StatusClientClosedRequest, err, start)
			writeDetail(w, StatusClientClosedRequest, "client closed request")
			return
		}
		logging.FromContext(ctx).Error("prediction failed", "error", err, "text_length", len(text))
		h.record(ctx, text, model.Prediction{}, err, start)
		writeError(w, err)
		return
	}

	h.record(ctx, text, pred, nil, start)
	writeJSON(w, http.StatusOK, PredictResponse{Label: pred.Label, Confidence: pred.Score})
}

func decodePredictRequest(w http.ResponseWriter, r *http.Request) (string, error) {
	var req PredictRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return "", errEmptyText
		}
		return "", &ValidationError{Message: fmt.Sprintf("invalid request body: %v", err)}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return "", &ValidationError{Message: "invalid request body: unexpected data after JSON object"}
	}
	if req.Text == "" {
		return "", errEmptyText
	}
	return req.Text, nil
}

func (h *Handlers) record(ctx context.Context, text string, pred model.Prediction, err error, start time.Time) {
	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
	}
	h.write(ctx, text, pred, status, err, start)
}

func (h *Handlers) recordStatus(ctx context.Context, text string, status int, err error, start time.Time) {
	h.write(ctx, text, model.Prediction{}, status, err, start)
}

func (h *Handlers) write(ctx context.Context, text string, pred model.Prediction, status int, err error, start time.Time) {
	if h.Log == nil {
		return
	}
	entry := requestlog.Entry{
		TraceID:    logging.TraceIDFromContext(ctx),
		TextHash:   requestlog.HashText(text),
		TextLength: len(text),
		Label:      pred.Label,
		Confidence: pred.Score,
		Status:     status,
		LatencyMs:  time.Since(start).Milliseconds(),
	}
	if err != nil {
		entry.ErrorMessage = err.Error()
	}
	// Detached so a disconnecting client does not drop its own audit row.
	if werr := h.Log.Write(context.WithoutCancel(ctx), entry); werr != nil {
		logging.FromContext(ctx).Warn("prediction log write failed", "error", werr)
	}
}
