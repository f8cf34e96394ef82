package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server struct {
		Port     string
		Env      string
		Timeout  time.Duration
		GRPCPort string
	}

	// Database configuration
	Database struct {
		DSN      string
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		SSLMode  string
		MaxConns int
		Timeout  time.Duration
	}

	// Inference is the OpenAI-compatible chat-completion endpoint used for analysis
	Inference struct {
		BaseURL     string
		APIKey      string
		Model       string
		Timeout     time.Duration
		MaxTokens   int
		Temperature float64
	}

	// Embedding is the endpoint used to embed retrieval queries
	Embedding struct {
		BaseURL string
		APIKey  string
		Model   string
	}

	// VectorIndex configuration
	VectorIndex struct {
		Path      string
		TopK      int
		CacheSize int
	}

	// Worker pool configuration
	Worker struct {
		PoolSize        int
		MaxPending      int
		ShutdownTimeout time.Duration
	}

	// Redis backs the dead letter list
	Redis struct {
		URL           string
		Password      string
		DeadLetterKey string
		DeadLetterMax int64
	}

	// Security configuration
	Security struct {
		RateLimit      float64
		RateLimitBurst int
		AllowedOrigins []string
		TrustedProxies []string
		MaxBodySize    int64
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}

	// Observability toggles
	Observability struct {
		MetricsEnabled bool
		TracingEnabled bool
	}

	// Prompt overrides
	Prompt struct {
		AnalystPromptPath string
	}

	// OpenAPI request validation
	OpenAPI struct {
		Validation bool
	}
}

var (
	instance *Config
	once     sync.Once
)

// New creates a new Config instance with values from environment variables
// Uses singleton pattern to ensure only one instance exists
func New() *Config {
	once.Do(func() {
		// Load .env file if exists
		godotenv.Load()

		instance = Load()
	})

	return instance
}

// Load reads a fresh Config from the environment without touching the singleton.
func Load() *Config {
	cfg := &Config{}

	// Server config
	cfg.Server.Port = getEnvString("PORT", "8081")
	cfg.Server.Env = getEnvString("APP_ENV", "development")
	cfg.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", 30*time.Second)
	cfg.Server.GRPCPort = getEnvString("GRPC_PORT", "")

	// Database config
	cfg.Database.DSN = getEnvString("DATABASE_DSN", "")
	cfg.Database.Host = getEnvString("DB_HOST", "localhost")
	cfg.Database.Port = getEnvString("DB_PORT", "5432")
	cfg.Database.User = getEnvString("DB_USER", "postgres")
	cfg.Database.Password = getEnvString("DB_PASSWORD", "postgres")
	cfg.Database.Name = getEnvString("DB_NAME", "chat_analysis")
	cfg.Database.SSLMode = getEnvString("DB_SSL_MODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
	cfg.Database.Timeout = getEnvDuration("DB_TIMEOUT", 5*time.Second)

	// Inference config. The RUNPOD_* names are accepted for existing deployments.
	cfg.Inference.BaseURL = getEnvString("INFERENCE_BASE_URL", "")
	if cfg.Inference.BaseURL == "" {
		if endpoint := getEnvString("RUNPOD_ENDPOINT_ID", ""); endpoint != "" {
			cfg.Inference.BaseURL = fmt.Sprintf("https://api.runpod.ai/v2/%s/openai/v1", endpoint)
		}
	}
	cfg.Inference.APIKey = getEnvString("INFERENCE_API_KEY", getEnvString("RUNPOD_API_KEY", ""))
	cfg.Inference.Model = getEnvString("INFERENCE_MODEL", getEnvString("RUNPOD_MODEL_NAME", ""))
	cfg.Inference.Timeout = getEnvDuration("INFERENCE_TIMEOUT", 120*time.Second)
	cfg.Inference.MaxTokens = getEnvInt("ANALYSIS_MAX_TOKENS", 3000)
	cfg.Inference.Temperature = getEnvFloat("ANALYSIS_TEMPERATURE", 0.3)

	// Embedding config
	cfg.Embedding.BaseURL = getEnvString("EMBEDDING_BASE_URL", "")
	cfg.Embedding.APIKey = getEnvString("OPENAI_API_KEY", "")
	cfg.Embedding.Model = getEnvString("EMBEDDING_MODEL", "text-embedding-3-small")

	// Vector index config
	cfg.VectorIndex.Path = getEnvString("VECTOR_INDEX_PATH", "data/vector_index")
	cfg.VectorIndex.TopK = getEnvInt("RETRIEVAL_TOP_K", 3)
	cfg.VectorIndex.CacheSize = getEnvInt("EMBEDDING_CACHE_SIZE", 256)

	// Worker config
	cfg.Worker.PoolSize = getEnvInt("WORKER_POOL_SIZE", 8)
	cfg.Worker.MaxPending = getEnvInt("WORKER_MAX_PENDING", 64)
	cfg.Worker.ShutdownTimeout = getEnvDuration("WORKER_SHUTDOWN_TIMEOUT", 30*time.Second)

	// Redis config
	cfg.Redis.URL = getEnvString("REDIS_URL", "")
	cfg.Redis.Password = getEnvString("REDIS_PASSWORD", "")
	cfg.Redis.DeadLetterKey = getEnvString("DEAD_LETTER_KEY", "analysis:dead_letter")
	cfg.Redis.DeadLetterMax = getEnvInt64("DEAD_LETTER_MAX", 10000)

	// Security config
	cfg.Security.RateLimit = float64(getEnvInt("RATE_LIMIT", 5))
	cfg.Security.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 10)
	cfg.Security.AllowedOrigins = getEnvStringSlice("ALLOWED_ORIGINS", []string{"*"})
	cfg.Security.TrustedProxies = getEnvStringSlice("TRUSTED_PROXIES", []string{"127.0.0.1"})
	cfg.Security.MaxBodySize = getEnvInt64("MAX_BODY_SIZE", 10<<20) // 10MB

	// Logging config
	cfg.Logging.Level = getEnvString("LOG_LEVEL", "info")
	cfg.Logging.Format = getEnvString("LOG_FORMAT", "json")

	// Observability
	cfg.Observability.MetricsEnabled = getEnvBool("METRICS_ENABLED", true)
	cfg.Observability.TracingEnabled = getEnvBool("TRACING_ENABLED", false)

	// Prompt
	cfg.Prompt.AnalystPromptPath = getEnvString("ANALYST_PROMPT_PATH", "")

	// OpenAPI
	cfg.OpenAPI.Validation = getEnvBool("OPENAPI_VALIDATION", true)

	return cfg
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

// IsDevelopment reports whether the service runs with APP_ENV=development.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// Helper functions to read environment variables with default values

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
