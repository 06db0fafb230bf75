package model

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
)

// DefaultCacheDir is where HugotLoader stores downloaded models.
const DefaultCacheDir = "./models"

// HugotLoader loads a Hugging Face text-classification model through hugot's
// pure-Go backend. Spec.Path wins over Spec.ModelID: when it is set the
// export on disk is used as is and nothing is downloaded.
type HugotLoader struct{}

// Load implements Loader.
func (HugotLoader) Load(ctx context.Context, spec Spec) (Pipeline, error) {
	if err := ctx.Err(); err != nil {
		return nil, Permanent(err)
	}

	modelPath := spec.Path
	if modelPath != "" {
		if _, err := os.Stat(modelPath); err != nil {
			return nil, Permanent(fmt.Errorf("model path: %w", err))
		}
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, Permanent(fmt.Errorf("create hugot session: %w", err))
	}

	if modelPath == "" {
		dir := spec.CacheDir
		if dir == "" {
			dir = DefaultCacheDir
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			_ = session.Destroy()
			return nil, Permanent(fmt.Errorf("create model cache dir: %w", err))
		}
		// Hub downloads fail transiently; leave these retryable.
		modelPath, err = hugot.DownloadModel(spec.ModelID, dir, hugot.NewDownloadOptions())
		if err != nil {
			_ = session.Destroy()
			return nil, fmt.Errorf("download %s: %w", spec.ModelID, err)
		}
	}

	pipeline, err := hugot.NewPipeline(session, hugot.TextClassificationConfig{
		ModelPath:    modelPath,
		Name:         "ferroinfer-classifier",
		OnnxFilename: spec.OnnxFilename,
	})
	if err != nil {
		_ = session.Destroy()
		return nil, Permanent(fmt.Errorf("build text-classification pipeline: %w", err))
	}

	return &hugotPipeline{session: session, pipeline: pipeline}, nil
}

type hugotPipeline struct {
	session  *hugot.Session
	pipeline *pipelines.TextClassificationPipeline
}

func (p *hugotPipeline) Classify(text string) ([]Prediction, error) {
	out, err := p.pipeline.RunPipeline([]string{text})
	if err != nil {
		return nil, err
	}
	if out == nil || len(out.ClassificationOutputs) == 0 {
		return nil, errors.New("empty pipeline output")
	}
	labels := out.ClassificationOutputs[0]
	preds := make([]Prediction, 0, len(labels))
	for _, l := range labels {
		preds = append(preds, Prediction{Label: l.Label, Score: float64(l.Score)})
	}
	return preds, nil
}

func (p *hugotPipeline) Close() error {
	return p.session.Destroy()
}
