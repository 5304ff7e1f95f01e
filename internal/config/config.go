package config

import (
	"os"      // For environment variables
	"strconv" // For string to int conversion
	"time"    // For TTL durations

	"github.com/joho/godotenv" // For loading .env files
)

// Config holds the application configuration
type Config struct {
	AppPort        string        // Application port
	DBUser         string        // Database user
	DBPassword     string        // Database password
	DBHost         string        // Database host
	DBPort         string        // Database port
	DBName         string        // Database name
	JWTSecret      string        // JWT secret key
	JWTIssuer      string        // Expected token issuer, empty disables the check
	RedisAddr      string        // Redis server address
	RedisPass      string        // Redis password
	RedisDB        int           // Redis database number
	RabbitMQURL    string        // AMQP URL for notifications, empty logs only
	NotifyExchange string        // Topic exchange for notification events
	NotifyBuffer   int           // Pending notification capacity
	TxMaxRetries   int           // Retries on lock contention
	CacheTTL       time.Duration // Redis response cache TTL
	SyncAPIURL     string        // Base URL the sync client reads and patches /account on
	SyncToken      string        // Bearer token of the signed-in user
	SyncAccountID  int           // Canonical id of the signed-in user
	SyncUID        string        // External UID of the signed-in user, may be empty
	DocumentPrefix string        // Redis key prefix of user documents
	LogLevel       string        // logrus level name
	LogFormat      string        // text or json
	IsProd         bool          // Is production environment
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	_ = godotenv.Load() // Load .env file if present
	return &Config{
		AppPort:        envOr("APP_PORT", "8080"),
		DBUser:         os.Getenv("DB_USER"),
		DBPassword:     os.Getenv("DB_PASSWORD"),
		DBHost:         envOr("DB_HOST", "127.0.0.1"),
		DBPort:         envOr("DB_PORT", "3306"),
		DBName:         os.Getenv("DB_NAME"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		JWTIssuer:      os.Getenv("JWT_ISSUER"),
		RedisAddr:      envOr("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPass:      os.Getenv("REDIS_PASS"),
		RedisDB:        envInt("REDIS_DB", 0),
		RabbitMQURL:    os.Getenv("RABBITMQ_URL"),
		NotifyExchange: envOr("NOTIFY_EXCHANGE", "storefront_events"),
		NotifyBuffer:   envInt("NOTIFY_BUFFER", 256),
		TxMaxRetries:   envInt("TX_MAX_RETRIES", 3),
		CacheTTL:       time.Duration(envInt("CACHE_TTL_SECONDS", 60)) * time.Second,
		SyncAPIURL:     envOr("SYNC_API_URL", "http://127.0.0.1:8080"),
		SyncToken:      os.Getenv("SYNC_TOKEN"),
		SyncAccountID:  envInt("SYNC_ACCOUNT_ID", 0),
		SyncUID:        os.Getenv("SYNC_UID"),
		DocumentPrefix: envOr("DOCUMENT_PREFIX", "userdoc:"),
		LogLevel:       envOr("LOG_LEVEL", "info"),
		LogFormat:      envOr("LOG_FORMAT", "text"),
		IsProd:         os.Getenv("IS_PROD") == "true",
	}
}

// DSN builds the MySQL Data Source Name
func (c *Config) DSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?parseTime=true&loc=UTC"
}

// envOr returns the variable or a fallback when unset
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt parses an integer variable, falling back on absence or parse error
func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}
