// Package model owns the text classifier served by ferroinfer.
//
// A Handle wraps one loaded Pipeline for the lifetime of the process. It is
// created with NewHandle, made ready with Initialize before traffic is
// accepted, and released with Teardown once traffic has stopped. The
// production Pipeline comes from HugotLoader; tests inject their own Loader.
package model

import "context"

// DefaultModelID is the pretrained classifier loaded when no model is configured.
const DefaultModelID = "lusamaki/distilbert_fine_tuned_fake_news_detection_model"

// Prediction is a single label/score pair produced by the classifier.
// Score is the model confidence in [0, 1].
type Prediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Classifier is anything that maps a text to its top-scoring Prediction.
// *Handle implements it.
type Classifier interface {
	Classify(ctx context.Context, text string) (Prediction, error)
}

// Pipeline is a loaded model + tokenizer. Classify is blocking and may be
// CPU or GPU bound; it returns every label the model emitted for text.
type Pipeline interface {
	Classify(text string) ([]Prediction, error)
	Close() error
}

// Spec identifies the model artifact a Loader should load.
type Spec struct {
	// ModelID is the Hugging Face hub identifier, e.g. "org/name".
	ModelID string
	// Path points at a local model export. When set, no download happens.
	Path string
	// CacheDir is where downloaded models are stored.
	CacheDir string
	// OnnxFilename selects one .onnx file when the export contains several.
	OnnxFilename string
}

// Loader turns a Spec into a ready Pipeline.
type Loader interface {
	Load(ctx context.Context, spec Spec) (Pipeline, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, spec Spec) (Pipeline, error)

// Load calls f(ctx, spec).
func (f LoaderFunc) Load(ctx context.Context, spec Spec) (Pipeline, error) {
	return f(ctx, spec)
}

// Top returns the highest-scoring prediction in preds. The first one wins on
// ties, matching the order the model emitted them in.
func Top(preds []Prediction) (Prediction, bool) {
	if len(preds) == 0 {
		return Prediction{}, false
	}
	best := preds[0]
	for _, p := range preds[1:] {
		if p.Score > best.Score {
			best = p
		}
	}
	return best, true
}
