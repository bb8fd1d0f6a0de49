package main

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	lfconfig "github.com/thenexusengine/tne_leadflow/internal/config"
)

// WorkerConfig holds all worker configuration
type WorkerConfig struct {
	// Health/metrics HTTP server
	Port string

	// Database
	DatabaseConfig *DatabaseConfig

	// Redis
	RedisURL string

	// Kafka
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// Auction
	AuctionTimeout      time.Duration
	MaxConcurrentBuyers int
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// ParseConfig parses configuration from flags and environment variables
func ParseConfig() *WorkerConfig {
	port := flag.String("port", getEnvOrDefault("WORKER_PORT", "8090"), "Health/metrics server port")
	brokers := flag.String("kafka-brokers", getEnvOrDefault("KAFKA_BROKERS", "localhost:9092"), "Comma-separated Kafka brokers")
	topic := flag.String("kafka-topic", getEnvOrDefault("KAFKA_TOPIC", lfconfig.DefaultLeadTopic), "Lead submission topic")
	group := flag.String("kafka-group", getEnvOrDefault("KAFKA_GROUP_ID", lfconfig.DefaultConsumerGroup), "Consumer group ID")
	auctionTimeout := flag.Duration("auction-timeout", lfconfig.DefaultAuctionTimeout, "Overall auction timeout")
	maxConcurrent := flag.Int("max-concurrent-buyers", getEnvIntOrDefault("MAX_CONCURRENT_BUYERS", lfconfig.DefaultMaxConcurrentBuyers), "Concurrent buyer calls per auction")
	flag.Parse()

	cfg := &WorkerConfig{
		Port:                *port,
		RedisURL:            os.Getenv("REDIS_URL"),
		KafkaBrokers:        splitBrokers(*brokers),
		KafkaTopic:          *topic,
		KafkaGroupID:        *group,
		AuctionTimeout:      *auctionTimeout,
		MaxConcurrentBuyers: *maxConcurrent,
	}

	cfg.DatabaseConfig = &DatabaseConfig{
		Host:     getEnvOrDefault("DB_HOST", "localhost"),
		Port:     getEnvOrDefault("DB_PORT", "5432"),
		User:     getEnvOrDefault("DB_USER", "leadflow"),
		Password: getEnvOrDefault("DB_PASSWORD", ""),
		Name:     getEnvOrDefault("DB_NAME", "leadflow"),
		SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
	}

	return cfg
}

func splitBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// getEnvOrDefault returns the environment variable value or a default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvIntOrDefault returns the environment variable as int or a default
func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
