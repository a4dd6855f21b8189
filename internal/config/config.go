// Package config implements the process-wide Configuration the
// external transport loads once at startup (spec §6: "defaultModelId,
// requestCostCapUSD, tokenCap, emergencyCostThresholdUSD,
// promptArchive{...}, promptLogSampleRate, vector-store credentials and
// index name, data-layer endpoint and region"). It is read once and
// never mutated afterward, following the teacher's Options/functional-
// option pattern (graph/options.go's Option func(*engineConfig) error)
// rather than a struct tag-driven loader.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// PromptArchive mirrors spec §6's promptArchive{enabled, maxLines,
// maxChars, redact} knob. Nothing in this module currently archives
// prompts; the field exists so a future Prompt Engine extension has
// somewhere to read the setting from without a config shape change.
type PromptArchive struct {
	Enabled  bool
	MaxLines int
	MaxChars int
	Redact   bool
}

// Config is the immutable, process-wide configuration spec §6 describes.
// It is built once via Load and never mutated afterward (spec §5's
// "Shared-resource policy": "The Model Registry is read-only
// process-wide state loaded at startup; never mutated" applies equally
// to the configuration that builds it).
type Config struct {
	DefaultModelID            string
	RequestCostCapUSD         float64
	TokenCap                  int
	EmergencyCostThresholdUSD float64
	PromptArchive             PromptArchive
	PromptLogSampleRate       float64

	// StateStoreDriver selects the executor.StateStore/node.ConversationStore/
	// progress.Sink backend: "memory", "sqlite", or "mysql".
	StateStoreDriver string
	SQLitePath       string
	MySQLDSN         string

	// VectorStoreDriver selects the node.VectorIndex backend: "mock" or
	// "chromem".
	VectorStoreDriver  string
	ChromemPersistDir  string
	OpenAIEmbeddingKey string

	// ProgressSinkDriver selects the progress.Sink the Progress Channel
	// dual-writes to when it is not already satisfied by the state
	// store: "store", "log", "buffered", "otel", or "null".
	ProgressSinkDriver string

	AnthropicAPIKey string
	OpenAIAPIKey    string
	GoogleAPIKey    string

	StepCap            int
	WallClockBudget    time.Duration
	DefaultNodeTimeout time.Duration
}

// Option configures a Config during Load, following the teacher's
// functional-option convention.
type Option func(*Config) error

// WithDefaultModelID overrides the model id ModelInvoke/IntentClassifier
// fall back to when a node's config leaves modelId empty.
func WithDefaultModelID(id string) Option {
	return func(c *Config) error { c.DefaultModelID = id; return nil }
}

// WithStateStoreDriver overrides the persistence backend ("memory",
// "sqlite", "mysql").
func WithStateStoreDriver(driver string) Option {
	return func(c *Config) error { c.StateStoreDriver = driver; return nil }
}

// WithVectorStoreDriver overrides the vector index backend ("mock",
// "chromem").
func WithVectorStoreDriver(driver string) Option {
	return func(c *Config) error { c.VectorStoreDriver = driver; return nil }
}

// WithProgressSinkDriver overrides the Progress Channel's sink
// ("store", "log", "buffered", "otel", "null").
func WithProgressSinkDriver(driver string) Option {
	return func(c *Config) error { c.ProgressSinkDriver = driver; return nil }
}

// WithStepCap overrides the executor's step cap.
func WithStepCap(n int) Option {
	return func(c *Config) error { c.StepCap = n; return nil }
}

// Load builds a Config from environment variables, optionally preceded
// by loading a .env file at envPath (pass "" to skip), then applies opts
// on top. envPath loading and the surrounding os.Getenv reads are the
// only place this module touches environment variables directly — spec
// §1 lists "environment-variable loading" itself as an out-of-scope
// external collaborator; this function is the cmd/ entry point's own
// glue, not a library concern, and no non-cmd package imports it.
func Load(envPath string, opts ...Option) (Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: load %s: %w", envPath, err)
		}
	}

	cfg := Config{
		DefaultModelID:            getEnv("WORKFLOWRUNNER_DEFAULT_MODEL_ID", "gpt-4o-mini"),
		RequestCostCapUSD:         getEnvFloat("WORKFLOWRUNNER_REQUEST_COST_CAP_USD", 0.50),
		TokenCap:                  getEnvInt("WORKFLOWRUNNER_TOKEN_CAP", 0),
		EmergencyCostThresholdUSD: getEnvFloat("WORKFLOWRUNNER_EMERGENCY_COST_THRESHOLD_USD", 5.00),
		PromptArchive: PromptArchive{
			Enabled:  getEnvBool("WORKFLOWRUNNER_PROMPT_ARCHIVE_ENABLED", false),
			MaxLines: getEnvInt("WORKFLOWRUNNER_PROMPT_ARCHIVE_MAX_LINES", 200),
			MaxChars: getEnvInt("WORKFLOWRUNNER_PROMPT_ARCHIVE_MAX_CHARS", 20_000),
			Redact:   getEnvBool("WORKFLOWRUNNER_PROMPT_ARCHIVE_REDACT", true),
		},
		PromptLogSampleRate: getEnvFloat("WORKFLOWRUNNER_PROMPT_LOG_SAMPLE_RATE", 0.0),

		StateStoreDriver: getEnv("WORKFLOWRUNNER_STATE_STORE_DRIVER", "memory"),
		SQLitePath:       getEnv("WORKFLOWRUNNER_SQLITE_PATH", "./workflowrunner.db"),
		MySQLDSN:         getEnv("WORKFLOWRUNNER_MYSQL_DSN", ""),

		VectorStoreDriver:  getEnv("WORKFLOWRUNNER_VECTOR_STORE_DRIVER", "mock"),
		ChromemPersistDir:  getEnv("WORKFLOWRUNNER_CHROMEM_PERSIST_DIR", ""),
		OpenAIEmbeddingKey: getEnv("OPENAI_API_KEY", ""),

		ProgressSinkDriver: getEnv("WORKFLOWRUNNER_PROGRESS_SINK_DRIVER", "store"),

		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		GoogleAPIKey:    getEnv("GOOGLE_API_KEY", ""),

		StepCap:            getEnvInt("WORKFLOWRUNNER_STEP_CAP", 64),
		WallClockBudget:    getEnvDuration("WORKFLOWRUNNER_WALL_CLOCK_BUDGET", 60*time.Second),
		DefaultNodeTimeout: getEnvDuration("WORKFLOWRUNNER_NODE_TIMEOUT", 20*time.Second),
	}

	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return Config{}, fmt.Errorf("config: apply option: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.StateStoreDriver {
	case "memory", "sqlite", "mysql":
	default:
		return fmt.Errorf("config: unknown state store driver %q", c.StateStoreDriver)
	}
	if c.StateStoreDriver == "mysql" && c.MySQLDSN == "" {
		return fmt.Errorf("config: WORKFLOWRUNNER_MYSQL_DSN is required when the mysql state store driver is selected")
	}
	switch c.VectorStoreDriver {
	case "mock", "chromem":
	default:
		return fmt.Errorf("config: unknown vector store driver %q", c.VectorStoreDriver)
	}
	switch c.ProgressSinkDriver {
	case "store", "log", "buffered", "otel", "null":
	default:
		return fmt.Errorf("config: unknown progress sink driver %q", c.ProgressSinkDriver)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
