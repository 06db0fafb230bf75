package ferroinfer

import (
	"time"

	"github.com/ferro-labs/ferroinfer/model"
)

// Config holds the configuration for the classification service.
type Config struct {
	Model      ModelConfig      `json:"model" yaml:"model"`
	Cache      CacheConfig      `json:"cache" yaml:"cache"`
	Inference  InferenceConfig  `json:"inference" yaml:"inference"`
	Server     ServerConfig     `json:"server" yaml:"server"`
	Log        LogConfig        `json:"log" yaml:"log"`
	RequestLog RequestLogConfig `json:"request_log" yaml:"request_log"`
}

// ModelConfig selects the classifier artifact.
type ModelConfig struct {
	// ID is the Hugging Face model identifier.
	ID string `json:"id" yaml:"id"`
	// Path points at a local ONNX export. When set, nothing is downloaded.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
	// CacheDir is where downloaded models are stored.
	CacheDir string `json:"cache_dir,omitempty" yaml:"cache_dir,omitempty"`
	// OnnxFilename picks one file when the export contains several.
	OnnxFilename       string `json:"onnx_filename,omitempty" yaml:"onnx_filename,omitempty"`
	InitTimeoutSeconds int    `json:"init_timeout_seconds,omitempty" yaml:"init_timeout_seconds,omitempty"`
}

// Spec converts the config into a model.Spec.
func (m ModelConfig) Spec() model.Spec {
	return model.Spec{
		ModelID:      m.ID,
		Path:         m.Path,
		CacheDir:     m.CacheDir,
		OnnxFilename: m.OnnxFilename,
	}
}

// InitTimeout is the retry budget for loading the model.
func (m ModelConfig) InitTimeout() time.Duration {
	if m.InitTimeoutSeconds <= 0 {
		return model.DefaultInitTimeout
	}
	return time.Duration(m.InitTimeoutSeconds) * time.Second
}

// CacheConfig bounds the prediction cache.
type CacheConfig struct {
	Capacity int `json:"capacity" yaml:"capacity"`
}

// InferenceConfig sizes the classifier worker pool. Zero means one worker per CPU.
type InferenceConfig struct {
	Workers int `json:"workers" yaml:"workers"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host                   string   `json:"host" yaml:"host"`
	Port                   int      `json:"port" yaml:"port"`
	CORSOrigins            []string `json:"cors_origins,omitempty" yaml:"cors_origins,omitempty"`
	ShutdownTimeoutSeconds int      `json:"shutdown_timeout_seconds,omitempty" yaml:"shutdown_timeout_seconds,omitempty"`
}

// ShutdownTimeout is how long in-flight requests get to drain.
func (s ServerConfig) ShutdownTimeout() time.Duration {
	if s.ShutdownTimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// RequestLogConfig enables the prediction audit log. An empty driver disables it.
type RequestLogConfig struct {
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty"`
	DSN    string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}
