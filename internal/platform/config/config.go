package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	DatabaseURL  string
	Port         string
	IsProduction bool

	// Kafka
	KafkaBrokers       string
	EventTopic         string
	CommandTopic       string
	EventConsumerGroup string
	CommandGroup       string
	CommandConsumer    bool

	// Rate lookup collaborator
	RateServiceURL    string
	RateLookupTimeout time.Duration
	RateCacheTTL      time.Duration

	// Batch engine
	ChunkSize  int
	SkipLimit  int
	RetryLimit int

	// Content store
	ContentStoreMaxEntries    int
	ContentStoreTTL           time.Duration
	ContentStoreSweepInterval time.Duration

	// Async worker pool
	WorkerPoolSize  int
	WorkerQueueSize int
}

// LoadConfig loads configuration from environment variables and .env file if present.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file, ignore error if it doesn't exist
	_ = godotenv.Load()

	viper.SetDefault("PGSQL_URL", "")
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("IS_PRODUCTION", false)

	viper.SetDefault("KAFKA_BROKERS", "localhost:9092")
	viper.SetDefault("CONVERSION_EVENT_TOPIC", "fx.event.conversion")
	viper.SetDefault("CONVERSION_COMMAND_TOPIC", "fx.command.conversion")
	viper.SetDefault("EVENT_HANDLER_GROUP", "event-handler-group")
	viper.SetDefault("COMMAND_HANDLER_GROUP", "command-handler-group")
	viper.SetDefault("ENABLE_COMMAND_CONSUMER", false)

	viper.SetDefault("RATE_SERVICE_URL", "http://localhost:8081")
	viper.SetDefault("RATE_LOOKUP_TIMEOUT", "5s")
	viper.SetDefault("RATE_CACHE_TTL", "1m")

	viper.SetDefault("BATCH_CHUNK_SIZE", 100)
	viper.SetDefault("BATCH_SKIP_LIMIT", 1000)
	viper.SetDefault("BATCH_RETRY_LIMIT", 3)

	viper.SetDefault("CONTENT_STORE_MAX_ENTRIES", 100)
	viper.SetDefault("CONTENT_STORE_TTL", "1h")
	viper.SetDefault("CONTENT_STORE_SWEEP_INTERVAL", "5m")

	viper.SetDefault("WORKER_POOL_SIZE", 2)
	viper.SetDefault("WORKER_QUEUE_SIZE", 100)

	viper.AutomaticEnv()

	cfg := &Config{}

	cfg.DatabaseURL = viper.GetString("PGSQL_URL")
	if cfg.DatabaseURL == "" {
		log.Println("Warning: PGSQL_URL environment variable not set.")
	}

	cfg.Port = viper.GetString("PORT")
	cfg.IsProduction = viper.GetBool("IS_PRODUCTION")

	cfg.KafkaBrokers = viper.GetString("KAFKA_BROKERS")
	cfg.EventTopic = viper.GetString("CONVERSION_EVENT_TOPIC")
	cfg.CommandTopic = viper.GetString("CONVERSION_COMMAND_TOPIC")
	cfg.EventConsumerGroup = viper.GetString("EVENT_HANDLER_GROUP")
	cfg.CommandGroup = viper.GetString("COMMAND_HANDLER_GROUP")
	cfg.CommandConsumer = viper.GetBool("ENABLE_COMMAND_CONSUMER")

	cfg.RateServiceURL = viper.GetString("RATE_SERVICE_URL")
	cfg.RateLookupTimeout = parseDurationOr("RATE_LOOKUP_TIMEOUT", 5*time.Second)
	cfg.RateCacheTTL = parseDurationOr("RATE_CACHE_TTL", time.Minute)

	cfg.ChunkSize = viper.GetInt("BATCH_CHUNK_SIZE")
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 100
	}
	cfg.SkipLimit = viper.GetInt("BATCH_SKIP_LIMIT")
	cfg.RetryLimit = viper.GetInt("BATCH_RETRY_LIMIT")

	cfg.ContentStoreMaxEntries = viper.GetInt("CONTENT_STORE_MAX_ENTRIES")
	if cfg.ContentStoreMaxEntries <= 0 {
		cfg.ContentStoreMaxEntries = 100
	}
	cfg.ContentStoreTTL = parseDurationOr("CONTENT_STORE_TTL", time.Hour)
	cfg.ContentStoreSweepInterval = parseDurationOr("CONTENT_STORE_SWEEP_INTERVAL", 5*time.Minute)

	cfg.WorkerPoolSize = viper.GetInt("WORKER_POOL_SIZE")
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 2
	}
	cfg.WorkerQueueSize = viper.GetInt("WORKER_QUEUE_SIZE")
	if cfg.WorkerQueueSize <= 0 {
		cfg.WorkerQueueSize = 100
	}

	return cfg, nil
}

func parseDurationOr(key string, fallback time.Duration) time.Duration {
	raw := viper.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil {
		if raw != "" {
			log.Printf("Warning: Invalid value for %s ('%s'). Defaulting to %s.\n", key, raw, fallback)
		}
		return fallback
	}
	return d
}
