// Package config loads WaddleBot's runtime configuration from environment
// variables (spec.md §6) and broadcasts ConfigChanged events when it is
// re-bound at runtime, per the "global mutable config" redesign note
// (spec.md §9): components hold a `*Config` and subscribe to its change
// feed rather than re-reading a package-level mutable on every access.
//
// Grounded on the teacher's `cmd/tarsy/main.go` env-loading idiom
// (`godotenv.Load` + a `getEnv` fallback helper) and `pkg/database/
// config.go`'s `LoadConfigFromEnv` shape, generalized from one component's
// settings to the full flat list spec.md §6 names.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"github.com/penguintechinc/waddlebot-core/pkg/models"
)

// Config holds every environment-sourced setting named in spec.md §6.
type Config struct {
	ModuleName    string
	ModuleVersion string
	ModulePort    int
	LogLevel      string

	DatabaseURL string
	CacheURL    string

	StreamPrefix     string
	StreamDLQPrefix  string
	StreamMaxRetries int
	StreamBatchSize  int
	StreamBlockMS    int
	StreamEnabled    bool

	RouterURL string

	JWTSecret             string
	JWTAlgorithm          string
	JWTExpirationSeconds  int

	TranslationMinWords           int
	TranslationConfidenceThreshold float64
	AIDecisionMode                models.AIDecisionMode

	WorkflowMaxNodes       int
	WorkflowMaxConnections int
	WorkflowMaxDepth       int

	WebhookDefaultTimeoutMS int
	HMACDefaultAlgorithm    string

	mu         sync.RWMutex
	subscribers []chan ConfigChanged
}

// ConfigChanged is broadcast on every Reload. Old is the Config that Reload
// was called on; New is the freshly loaded one. Load itself broadcasts
// nothing.
type ConfigChanged struct {
	Old *Config
	New *Config
}

// Load reads every variable named in spec.md §6 from the process
// environment, applying the documented defaults where the teacher's
// pattern calls for one. envFile is loaded first via godotenv if non-empty
// and present; missing or absent env files are non-fatal, matching the
// teacher's own "continue with existing environment" tolerance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			fmt.Fprintf(os.Stderr, "config: could not load %s, continuing with existing environment: %v\n", envFile, err)
		}
	}

	modulePort, err := strconv.Atoi(getEnv("MODULE_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid MODULE_PORT: %w", err)
	}

	streamMaxRetries, err := strconv.Atoi(getEnv("STREAM_MAX_RETRIES", "3"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid STREAM_MAX_RETRIES: %w", err)
	}
	streamBatchSize, err := strconv.Atoi(getEnv("STREAM_BATCH_SIZE", "10"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid STREAM_BATCH_SIZE: %w", err)
	}
	streamBlockMS, err := strconv.Atoi(getEnv("STREAM_BLOCK_MS", "5000"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid STREAM_BLOCK_MS: %w", err)
	}
	streamEnabled, err := strconv.ParseBool(getEnv("STREAM_ENABLED", "true"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid STREAM_ENABLED: %w", err)
	}

	jwtExpiration, err := strconv.Atoi(getEnv("JWT_EXPIRATION_SECONDS", "3600"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid JWT_EXPIRATION_SECONDS: %w", err)
	}

	translationMinWords, err := strconv.Atoi(getEnv("TRANSLATION_MIN_WORDS", "5"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid TRANSLATION_MIN_WORDS: %w", err)
	}
	translationConfidence, err := strconv.ParseFloat(getEnv("TRANSLATION_CONFIDENCE_THRESHOLD", "0.70"), 64)
	if err != nil {
		return nil, fmt.Errorf("config: invalid TRANSLATION_CONFIDENCE_THRESHOLD: %w", err)
	}

	workflowMaxNodes, err := strconv.Atoi(getEnv("WORKFLOW_MAX_NODES", "100"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid WORKFLOW_MAX_NODES: %w", err)
	}
	workflowMaxConnections, err := strconv.Atoi(getEnv("WORKFLOW_MAX_CONNECTIONS", "200"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid WORKFLOW_MAX_CONNECTIONS: %w", err)
	}
	workflowMaxDepth, err := strconv.Atoi(getEnv("WORKFLOW_MAX_DEPTH", "20"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid WORKFLOW_MAX_DEPTH: %w", err)
	}

	webhookTimeout, err := strconv.Atoi(getEnv("WEBHOOK_DEFAULT_TIMEOUT_MS", "10000"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid WEBHOOK_DEFAULT_TIMEOUT_MS: %w", err)
	}

	cfg := &Config{
		ModuleName:    getEnv("MODULE_NAME", "waddlebot-core"),
		ModuleVersion: getEnv("MODULE_VERSION", "dev"),
		ModulePort:    modulePort,
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		CacheURL:    getEnv("CACHE_URL", "redis://localhost:6379/0"),

		StreamPrefix:     getEnv("STREAM_PREFIX", "events"),
		StreamDLQPrefix:  getEnv("STREAM_DLQ_PREFIX", "dlq"),
		StreamMaxRetries: streamMaxRetries,
		StreamBatchSize:  streamBatchSize,
		StreamBlockMS:    streamBlockMS,
		StreamEnabled:    streamEnabled,

		RouterURL: getEnv("ROUTER_URL", "http://localhost:8080"),

		JWTSecret:            os.Getenv("JWT_SECRET"),
		JWTAlgorithm:         getEnv("JWT_ALGORITHM", "HS256"),
		JWTExpirationSeconds: jwtExpiration,

		TranslationMinWords:            translationMinWords,
		TranslationConfidenceThreshold: translationConfidence,
		AIDecisionMode:                 models.AIDecisionMode(getEnv("AI_DECISION_MODE", string(models.AIDecisionUncertain))),

		WorkflowMaxNodes:       workflowMaxNodes,
		WorkflowMaxConnections: workflowMaxConnections,
		WorkflowMaxDepth:       workflowMaxDepth,

		WebhookDefaultTimeoutMS: webhookTimeout,
		HMACDefaultAlgorithm:    getEnv("HMAC_DEFAULT_ALGORITHM", "sha256"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromConfigDir is a convenience wrapper matching the teacher's
// `-config-dir` flag convention: it loads `<dir>/.env` if present.
func LoadFromConfigDir(dir string) (*Config, error) {
	return Load(filepath.Join(dir, ".env"))
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("config: JWT_SECRET is required")
	}
	if c.TranslationConfidenceThreshold < 0 || c.TranslationConfidenceThreshold > 1 {
		return fmt.Errorf("config: TRANSLATION_CONFIDENCE_THRESHOLD must be in [0,1]")
	}
	if c.WorkflowMaxNodes < 1 || c.WorkflowMaxConnections < 1 || c.WorkflowMaxDepth < 1 {
		return fmt.Errorf("config: WORKFLOW_MAX_* settings must be positive")
	}
	switch c.AIDecisionMode {
	case models.AIDecisionNever, models.AIDecisionUncertain, models.AIDecisionAlways:
	default:
		return fmt.Errorf("config: invalid AI_DECISION_MODE %q", c.AIDecisionMode)
	}
	return nil
}

// BlockDuration converts StreamBlockMS to a time.Duration for streambus
// consumers.
func (c *Config) BlockDuration() time.Duration {
	return time.Duration(c.StreamBlockMS) * time.Millisecond
}

// Subscribe registers for ConfigChanged notifications. The returned
// channel is buffered (size 1) so a slow subscriber cannot block Reload;
// it receives only the latest change if it falls behind.
func (c *Config) Subscribe() <-chan ConfigChanged {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan ConfigChanged, 1)
	c.subscribers = append(c.subscribers, ch)
	return ch
}

// Reload re-reads the environment into a new Config and broadcasts
// ConfigChanged to every subscriber registered on the old value. Callers
// swap their held `*Config` for the returned value; the old value is left
// untouched (never mutated in place), satisfying spec.md §9's redesign
// note.
func (c *Config) Reload(envFile string) (*Config, error) {
	next, err := Load(envFile)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	subscribers := append([]chan ConfigChanged(nil), c.subscribers...)
	c.mu.RUnlock()

	event := ConfigChanged{Old: c, New: next}
	for _, ch := range subscribers {
		select {
		case ch <- event:
		default:
			// Drain the stale pending event and replace it with the latest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- event:
			default:
			}
		}
	}
	next.subscribers = subscribers
	return next, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
