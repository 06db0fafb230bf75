package ferroinfer

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/ferro-labs/ferroinfer/internal/cache"
	"github.com/ferro-labs/ferroinfer/model"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// Defaults for the HTTP listener.
const (
	DefaultHost = "0.0.0.0"
	DefaultPort = 5000
)

//go:embed config.schema.json
var configSchemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func configSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("config.schema.json", strings.NewReader(configSchemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add config schema resource: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("config.schema.json")
	})
	return schema, schemaErr
}

// decodeSchemaDoc decodes a JSON document the way the schema validator
// expects it: generic values with numbers kept as json.Number.
func decodeSchemaDoc(data []byte) (interface{}, error) {
	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// DefaultConfig returns the configuration used when no file or override is given.
func DefaultConfig() Config {
	return Config{
		Model: ModelConfig{
			ID:                 model.DefaultModelID,
			CacheDir:           model.DefaultCacheDir,
			InitTimeoutSeconds: int(model.DefaultInitTimeout.Seconds()),
		},
		Cache:  CacheConfig{Capacity: cache.DefaultCapacity},
		Server: ServerConfig{Host: DefaultHost, Port: DefaultPort, ShutdownTimeoutSeconds: 15},
		Log:    LogConfig{Level: "info", Format: "json"},
	}
}

// LoadConfig reads and parses a config file from the given path on top of
// DefaultConfig. Supported formats: JSON (.json), YAML (.yaml, .yml). The
// document is checked against the embedded JSON Schema before decoding.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	var doc interface{}
	switch ext {
	case ".yaml", ".yml":
		var raw interface{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
		if raw == nil {
			raw = map[string]interface{}{}
		}
		// Round-trip through JSON so the validator sees JSON types.
		js, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
		if doc, err = decodeSchemaDoc(js); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".json":
		if doc, err = decodeSchemaDoc(data); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q: use .json, .yaml, or .yml", ext)
	}

	s, err := configSchema()
	if err != nil {
		return nil, err
	}
	if err := s.Validate(doc); err != nil {
		return nil, fmt.Errorf("config does not match schema: %w", err)
	}

	cfg := DefaultConfig()
	if ext == ".json" {
		err = json.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

// ApplyEnv overlays environment variables on cfg. Unset variables leave the
// current value alone.
func ApplyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) error {
		v, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %q is not an integer", key, v)
		}
		*dst = n
		return nil
	}

	str("MODEL_ID", &cfg.Model.ID)
	str("MODEL_PATH", &cfg.Model.Path)
	str("MODEL_CACHE_DIR", &cfg.Model.CacheDir)
	str("HOST", &cfg.Server.Host)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("REQUEST_LOG_DRIVER", &cfg.RequestLog.Driver)
	str("REQUEST_LOG_DSN", &cfg.RequestLog.DSN)

	if err := num("CACHE_CAPACITY", &cfg.Cache.Capacity); err != nil {
		return err
	}
	if err := num("INFERENCE_WORKERS", &cfg.Inference.Workers); err != nil {
		return err
	}
	if err := num("PORT", &cfg.Server.Port); err != nil {
		return err
	}

	if v := os.Getenv("CORS_ORIGINS"); strings.TrimSpace(v) != "" {
		cfg.Server.CORSOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.Server.CORSOrigins = append(cfg.Server.CORSOrigins, o)
			}
		}
	}
	return nil
}

// ValidateConfig validates a Config for correctness.
func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Model.ID) == "" && strings.TrimSpace(cfg.Model.Path) == "" {
		return fmt.Errorf("model.id or model.path is required")
	}
	if cfg.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity must be positive, got %d", cfg.Cache.Capacity)
	}
	if cfg.Inference.Workers < 0 {
		return fmt.Errorf("inference.workers must not be negative, got %d", cfg.Inference.Workers)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", cfg.Server.Port)
	}

	switch strings.ToLower(cfg.RequestLog.Driver) {
	case "", "none":
	case "sqlite":
	case "postgres":
		if strings.TrimSpace(cfg.RequestLog.DSN) == "" {
			return fmt.Errorf("request_log.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown request_log.driver: %q", cfg.RequestLog.Driver)
	}

	switch strings.ToLower(cfg.Log.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("unknown log.format: %q", cfg.Log.Format)
	}
	return nil
}
