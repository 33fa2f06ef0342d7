package config

import (
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
		Port    string
		Env     string
		Timeout time.Duration
		BaseURL string
	}

	// Database configuration
	Database struct {
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		SSLMode  string
		MaxConns int
		Timeout  time.Duration
	}

	// Redis configuration (message read cache)
	Redis struct {
		Enabled bool
		Addr    string
		DB      int
		TTL     time.Duration
	}

	// JWT configuration
	JWT struct {
		Secret      string
		ExpiryHours time.Duration
	}

	// Security configuration
	Security struct {
		RateLimit      float64
		RateLimitBurst int
		AllowedOrigins []string
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}

	// Chat configuration
	Chat struct {
		DefaultHistoryLimit int
		MaxHistoryLimit     int
		WSIdleTimeout       time.Duration
		WSWriteTimeout      time.Duration
		MaxMessageSize      int64
		BroadcastRetryWait  time.Duration
	}

	// Agent configuration
	Agent struct {
		MaxIterations int
		TurnTimeout   time.Duration
		DeciderURL    string
		DecideTimeout time.Duration
	}

	// Sandbox configuration
	Sandbox struct {
		Timeout        time.Duration
		PythonBin      string
		NodeBin        string
		WorkDir        string
		MaxOutputBytes int64
	}

	// Cache settings (tool descriptor resolution)
	Cache struct {
		Enabled     bool
		TTL         time.Duration
		MaxSize     int
		PurgeWindow time.Duration
	}
}

var (
	instance *Config
	once     sync.Once
)

// New creates a new Config instance with values from environment variables.
// Uses singleton pattern to ensure only one instance exists.
func New() *Config {
	once.Do(func() {
		// Load .env file if exists
		godotenv.Load()

		instance = &Config{}

		// Server config
		instance.Server.Port = getEnvString("PORT", "8081")
		instance.Server.Env = getEnvString("APP_ENV", "development")
		instance.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", 30*time.Second)
		instance.Server.BaseURL = getEnvString("BASE_URL", "http://localhost:"+instance.Server.Port)

		// Database config
		instance.Database.Host = getEnvString("DB_HOST", "localhost")
		instance.Database.Port = getEnvString("DB_PORT", "5432")
		instance.Database.User = getEnvString("DB_USER", "postgres")
		instance.Database.Password = getEnvString("DB_PASSWORD", "postgres")
		instance.Database.Name = getEnvString("DB_NAME", "insanuschat")
		instance.Database.SSLMode = getEnvString("DB_SSL_MODE", "disable")
		instance.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
		instance.Database.Timeout = getEnvDuration("DB_TIMEOUT", 5*time.Second)

		// Redis config
		instance.Redis.Enabled = getEnvBool("REDIS_ENABLED", false)
		instance.Redis.Addr = getEnvString("REDIS_URL", "localhost:6379")
		instance.Redis.DB = getEnvInt("REDIS_DB", 0)
		instance.Redis.TTL = getEnvDuration("REDIS_TTL", 5*time.Minute)

		// JWT config
		instance.JWT.Secret = getEnvString("JWT_SECRET", "default-jwt-secret-do-not-use-in-production")
		instance.JWT.ExpiryHours = getEnvDuration("JWT_EXPIRY", 24*time.Hour)

		// Security config
		instance.Security.RateLimit = float64(getEnvInt("RATE_LIMIT", 5))
		instance.Security.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 10)
		instance.Security.AllowedOrigins = getEnvStringSlice("ALLOWED_ORIGINS", []string{"*"})

		// Logging config
		instance.Logging.Level = getEnvString("LOG_LEVEL", "info")
		instance.Logging.Format = getEnvString("LOG_FORMAT", "json")

		// Chat config
		instance.Chat.DefaultHistoryLimit = getEnvInt("CHAT_HISTORY_LIMIT", 16)
		instance.Chat.MaxHistoryLimit = getEnvInt("CHAT_HISTORY_MAX_LIMIT", 128)
		instance.Chat.WSIdleTimeout = getEnvDuration("WS_IDLE_TIMEOUT", 5*time.Minute)
		instance.Chat.WSWriteTimeout = getEnvDuration("WS_WRITE_TIMEOUT", 10*time.Second)
		instance.Chat.MaxMessageSize = getEnvInt64("WS_MAX_MESSAGE_SIZE", 512*1024) // 512KB
		instance.Chat.BroadcastRetryWait = getEnvDuration("BROADCAST_RETRY_WAIT", 100*time.Millisecond)

		// Agent config
		instance.Agent.MaxIterations = getEnvInt("AGENT_MAX_ITERATIONS", 8)
		instance.Agent.TurnTimeout = getEnvDuration("AGENT_TURN_TIMEOUT", 2*time.Minute)
		instance.Agent.DeciderURL = getEnvString("AGENT_DECIDER_URL", "")
		instance.Agent.DecideTimeout = getEnvDuration("AGENT_DECIDE_TIMEOUT", 30*time.Second)

		// Sandbox config
		instance.Sandbox.Timeout = getEnvDuration("SANDBOX_TIMEOUT", 8*time.Second)
		instance.Sandbox.PythonBin = getEnvString("SANDBOX_PYTHON_BIN", "python3")
		instance.Sandbox.NodeBin = getEnvString("SANDBOX_NODE_BIN", "node")
		instance.Sandbox.WorkDir = getEnvString("SANDBOX_WORKDIR", "")
		instance.Sandbox.MaxOutputBytes = getEnvInt64("SANDBOX_MAX_OUTPUT", 1<<20) // 1MB

		// Cache settings
		instance.Cache.Enabled = getEnvBool("CACHE_ENABLED", true)
		instance.Cache.TTL = getEnvDuration("CACHE_TTL", 5*time.Minute)
		instance.Cache.MaxSize = getEnvInt("CACHE_MAX_SIZE", 1000)
		instance.Cache.PurgeWindow = getEnvDuration("CACHE_PURGE_WINDOW", 10*time.Minute)
	})

	return instance
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
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
		return strings.Split(value, ",")
	}
	return defaultValue
}
