package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for pos-sync-service.
type Config struct {
	Port           string
	RedisURL       string
	KafkaBrokers   []string
	KafkaTopic     string
	BufferCapacity int           // notification replay buffer size per topic
	ActorIdleTTL   time.Duration // idle partitions are evicted after this
}

// Load reads configuration from the environment. A local .env file is applied
// first if present.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port:           getEnv("PORT", "8090"),
		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379"),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "pos.transaction.events"),
		BufferCapacity: getEnvInt("NOTIFICATION_BUFFER_SIZE", 100),
		ActorIdleTTL:   getEnvDuration("ACTOR_IDLE_TTL", 15*time.Minute),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			return d
		}
	}
	return defaultVal
}
