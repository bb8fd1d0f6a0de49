// Package config provides shared configuration constants for the lead auction worker
package config

import "time"

// Auction defaults
const (
	// DefaultBuyerTimeout bounds a single buyer PING or POST call
	DefaultBuyerTimeout = 5 * time.Second

	// DefaultAuctionTimeout bounds the whole PING fan-out for one lead
	DefaultAuctionTimeout = 8 * time.Second

	// DefaultMaxConcurrentBuyers limits concurrent buyer goroutines per auction
	DefaultMaxConcurrentBuyers = 10
)

// Buyer HTTP client defaults
const (
	// MaxBuyerResponseSize limits buyer response bodies (1MB)
	MaxBuyerResponseSize = 1024 * 1024
)

// Queue defaults
const (
	// DefaultLeadTopic is the Kafka topic carrying lead job payloads
	DefaultLeadTopic = "leads.submitted"

	// DefaultConsumerGroup is the Kafka consumer group for auction workers
	DefaultConsumerGroup = "leadflow-auction-workers"
)

// HTTP sidecar defaults
const (
	// ServerReadTimeout is the maximum duration for reading the entire request
	ServerReadTimeout = 5 * time.Second

	// ServerWriteTimeout is the maximum duration before timing out writes of the response
	ServerWriteTimeout = 10 * time.Second

	// ServerIdleTimeout is the maximum time to wait for the next request when keep-alives are enabled
	ServerIdleTimeout = 120 * time.Second

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout = 30 * time.Second
)

// Redis defaults
const (
	// LeadCapKeyPrefix namespaces daily lead-cap counter keys
	LeadCapKeyPrefix = "leadflow:cap"

	// LeadCapTTL keeps cap counters around past midnight for inspection
	LeadCapTTL = 48 * time.Hour
)
