package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers     []string
	KafkaGroupID     string
	EventsTopic      string
	PipelineDLQTopic string

	// Generation API
	GenerationAPIKey  string
	GenerationBaseURL string
	GenerationModel   string
	GenerationTimeout time.Duration

	// File storage
	DataDir string

	// Consultant profile override
	ProfilePath string

	// Batch processing
	BatchMaxWorkers int
	ItemTimeout     time.Duration

	// Conversation status cache
	StatusCacheTTL time.Duration

	// Normalization
	MinEnrichedBytes int

	// Bulk enrichment
	BulkMaxConversations int
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 4*1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "convoforge"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "convoforge123"),
		PostgresDB:       getEnv("POSTGRES_DB", "convoforge"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:     getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:     getEnv("KAFKA_GROUP_ID", "convoforge-platform"),
		EventsTopic:      getEnv("KAFKA_EVENTS_TOPIC", "convoforge.events"),
		PipelineDLQTopic: getEnv("KAFKA_PIPELINE_DLQ_TOPIC", ""),

		GenerationAPIKey:  getEnv("GENERATION_API_KEY", ""),
		GenerationBaseURL: getEnv("GENERATION_BASE_URL", "https://api.openai.com/v1"),
		GenerationModel:   getEnv("GENERATION_MODEL", "gpt-4"),
		GenerationTimeout: getDuration("GENERATION_TIMEOUT", 60*time.Second),

		DataDir:     getEnv("DATA_DIR", "./data"),
		ProfilePath: getEnv("CONSULTANT_PROFILE_PATH", ""),

		BatchMaxWorkers: getIntEnv("BATCH_MAX_WORKERS", 4),
		ItemTimeout:     getDuration("BATCH_ITEM_TIMEOUT", 2*time.Minute),

		StatusCacheTTL: getDuration("STATUS_CACHE_TTL", 30*time.Second),

		MinEnrichedBytes: getIntEnv("MIN_ENRICHED_BYTES", 512),

		BulkMaxConversations: getIntEnv("BULK_MAX_CONVERSATIONS", 100),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return []string{value}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
