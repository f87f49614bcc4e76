// Package config loads runtime configuration from CONVOGRAPH_* environment
// variables. Command-line flags override the parsed values.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Prefix is prepended to every environment variable name.
const Prefix = "CONVOGRAPH_"

// Config is the complete runtime configuration.
type Config struct {
	GraphPath string `env:"GRAPH"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn warning error"`

	Oracle  OracleConfig  `envPrefix:"ORACLE_"`
	Scoring ScoringConfig `envPrefix:"SCORING_"`
	HTTP    HTTPConfig    `envPrefix:"HTTP_"`
	Redis   RedisConfig   `envPrefix:"REDIS_"`
	State   StateConfig   `envPrefix:"STATE_"`

	OTelEndpoint string `env:"OTEL_ENDPOINT"`
	MaxInputSize int    `env:"MAX_INPUT_SIZE" envDefault:"4096" validate:"gt=0"`
}

// OracleConfig selects and tunes the similarity oracle.
type OracleConfig struct {
	Provider string        `env:"PROVIDER" envDefault:"lexical" validate:"oneof=lexical ollama genai process"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"10s" validate:"gte=0"`

	OllamaEndpoint string `env:"OLLAMA_ENDPOINT" envDefault:"http://localhost:11434" validate:"omitempty,url"`
	OllamaModel    string `env:"OLLAMA_MODEL" envDefault:"nomic-embed-text"`

	GenAIAPIKey   string `env:"GENAI_API_KEY" validate:"required_if=Provider genai"`
	GenAIModel    string `env:"GENAI_MODEL" envDefault:"gemini-embedding-001"`
	GenAITaskType string `env:"GENAI_TASK_TYPE" envDefault:"SEMANTIC_SIMILARITY"`

	// WorkerCommand is a command line or a path to a YAML/JSON worker definition.
	WorkerCommand string `env:"WORKER" validate:"required_if=Provider process"`

	BreakerFailureRatio float64       `env:"BREAKER_FAILURE_RATIO" envDefault:"0.6" validate:"gt=0,lte=1"`
	BreakerMinRequests  uint32        `env:"BREAKER_MIN_REQUESTS" envDefault:"5"`
	BreakerOpenTimeout  time.Duration `env:"BREAKER_OPEN_TIMEOUT" envDefault:"30s"`
}

// ScoringConfig tunes the traversal engine.
type ScoringConfig struct {
	Policy       string        `env:"POLICY" envDefault:"difficulty" validate:"oneof=difficulty percentage"`
	Threshold    float64       `env:"THRESHOLD" envDefault:"0.5" validate:"gte=0,lt=1"`
	HighlightTTL time.Duration `env:"HIGHLIGHT_TTL" envDefault:"2s" validate:"gte=0"`
}

// HTTPConfig configures the REST/SSE adapter.
type HTTPConfig struct {
	Port           int      `env:"PORT" envDefault:"8080" validate:"gte=0,lte=65535"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
}

// RedisConfig enables the redis session store when Addr is set.
type RedisConfig struct {
	Addr     string        `env:"ADDR"`
	Password string        `env:"PASSWORD"`
	DB       int           `env:"DB" envDefault:"0" validate:"gte=0"`
	Prefix   string        `env:"PREFIX" envDefault:"convograph:session:"`
	TTL      time.Duration `env:"TTL" envDefault:"24h" validate:"gte=0"`
}

// StateConfig selects the local session directory and protects the utterance
// text persisted with each session.
type StateConfig struct {
	// Dir stores sessions as JSON files when redis is not configured.
	Dir string `env:"DIR"`

	// EncryptionKey is a base64 AES-256 key; empty disables encryption.
	EncryptionKey string `env:"ENCRYPTION_KEY" validate:"omitempty,base64"`
	// FallbackKeys decrypt states written before a key rotation.
	FallbackKeys []string `env:"FALLBACK_KEYS" envSeparator:"," validate:"dive,base64"`

	Redact         bool     `env:"REDACT" envDefault:"false"`
	RedactPatterns []string `env:"REDACT_PATTERNS" envSeparator:";"`
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	return LoadFrom(nil)
}

// LoadFrom parses the given environment map (or the process environment when
// nil) and validates the result.
func LoadFrom(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	opts := env.Options{Prefix: Prefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints. Call it again after applying flag overrides.
func (c *Config) Validate() error {
	c.Oracle.Provider = strings.ToLower(strings.TrimSpace(c.Oracle.Provider))
	c.Scoring.Policy = strings.ToLower(strings.TrimSpace(c.Scoring.Policy))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))

	if err := validator.New().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			problems := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				problems = append(problems, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// UseRedis reports whether sessions should be stored in redis.
func (c *Config) UseRedis() bool {
	return c.Redis.Addr != ""
}
