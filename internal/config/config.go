package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the code service
type Config struct {
	// Server
	Port        string
	Environment string
	LogLevel    string

	// Database; empty URLs disable the backing service
	DatabaseURL   string
	RedisURL      string
	RunMigrations bool

	// Messaging and orchestration
	NATSURL           string
	TemporalAddress   string
	TemporalNamespace string
	TemporalTaskQueue string

	// Tracing
	OTelEndpoint    string
	OTelInsecure    bool
	OTelSampleRatio float64

	// Security
	JWTSecret    string
	SigningKey   string
	SigningKeyID string
	CORSOrigins  []string

	// HTTP limits
	RateLimitPerMinute int
	RequestTimeout     time.Duration

	// LLM
	LLM LLMConfig

	// Code service
	DetailConcurrency int
	TaskStore         string
	TaskTTL           time.Duration
	SelfModRoot       string
	OutputRoot        string
}

// LLMConfig selects and tunes the model gateway
type LLMConfig struct {
	Provider     string
	OllamaURL    string
	GeminiAPIKey string
	DefaultModel string
	TaskModels   map[string]string

	Timeout          time.Duration
	Retries          int
	RetryBase        time.Duration
	RatePerSecond    float64
	Burst            int
	BreakerThreshold int
	BreakerTimeout   time.Duration
}

// Load reads configuration from environment variables, after loading an
// optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("GO_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisURL:      getEnv("REDIS_URL", ""),
		RunMigrations: getEnvBool("RUN_MIGRATIONS", true),

		NATSURL:           getEnv("NATS_URL", ""),
		TemporalAddress:   getEnv("TEMPORAL_ADDRESS", ""),
		TemporalNamespace: getEnv("TEMPORAL_NAMESPACE", "default"),
		TemporalTaskQueue: getEnv("TEMPORAL_TASK_QUEUE", "ucws-code-jobs"),

		OTelEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTelInsecure:    getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTelSampleRatio: getEnvFloat("OTEL_SAMPLE_RATIO", 1),

		JWTSecret:    getEnv("JWT_SECRET", ""),
		SigningKey:   getEnv("SIGNING_KEY", "dev-signing-key-change-in-production"),
		SigningKeyID: getEnv("SIGNING_KEY_ID", "dev"),
		CORSOrigins:  getEnvList("CORS_ORIGINS", []string{"*"}),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		RequestTimeout:     getEnvDuration("REQUEST_TIMEOUT", 5*time.Minute),

		LLM: LLMConfig{
			Provider:         strings.ToLower(getEnv("LLM_PROVIDER", "ollama")),
			OllamaURL:        getEnv("OLLAMA_URL", "http://localhost:11434"),
			GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
			DefaultModel:     getEnv("DEFAULT_MODEL", "qwen3:8B"),
			Timeout:          getEnvDuration("LLM_TIMEOUT", 120*time.Second),
			Retries:          getEnvInt("LLM_RETRIES", 2),
			RetryBase:        getEnvDuration("LLM_RETRY_BASE", 500*time.Millisecond),
			RatePerSecond:    getEnvFloat("LLM_RATE_PER_SECOND", 0),
			Burst:            getEnvInt("LLM_BURST", 4),
			BreakerThreshold: getEnvInt("LLM_BREAKER_THRESHOLD", 5),
			BreakerTimeout:   getEnvDuration("LLM_BREAKER_TIMEOUT", 30*time.Second),
		},

		DetailConcurrency: getEnvInt("DETAIL_CONCURRENCY", 4),
		TaskStore:         strings.ToLower(getEnv("TASK_STORE", "memory")),
		TaskTTL:           getEnvDuration("TASK_TTL", 7*24*time.Hour),
		SelfModRoot:       getEnv("SELFMOD_ROOT", "."),
		OutputRoot:        getEnv("OUTPUT_ROOT", "./generated"),
	}

	models, err := LoadTaskModels(getEnv("TASK_MODELS_FILE", ""))
	if err != nil {
		return nil, err
	}
	cfg.LLM.TaskModels = models

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "ollama", "gemini", "fake", "none":
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLM.Provider)
	}
	if c.LLM.Provider == "gemini" && c.LLM.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required for the gemini provider")
	}
	switch c.TaskStore {
	case "memory", "none":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("TASK_STORE=postgres requires DATABASE_URL")
		}
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("TASK_STORE=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("unsupported TASK_STORE %q", c.TaskStore)
	}
	if c.DetailConcurrency < 1 {
		return fmt.Errorf("DETAIL_CONCURRENCY must be at least 1")
	}
	return nil
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// taskModelsFile is the YAML layout of TASK_MODELS_FILE:
//
//	models:
//	  code_outline: qwen3:14B
//	  code_detail: qwen3:8B
type taskModelsFile struct {
	Models map[string]string `yaml:"models"`
}

// LoadTaskModels reads the per-task model map; an empty path yields an empty map
func LoadTaskModels(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task models file: %w", err)
	}
	var f taskModelsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse task models file %s: %w", path, err)
	}
	if f.Models == nil {
		f.Models = map[string]string{}
	}
	return f.Models, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
