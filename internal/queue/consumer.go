// Package queue consumes lead submission messages from Kafka and hands
// them to the auction engine.
package queue

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/segmentio/kafka-go"

	"github.com/thenexusengine/tne_leadflow/pkg/logger"
)

// LeadJob is the wire format of a lead submission message
type LeadJob struct {
	LeadID string `json:"lead_id"`
}

// Handler processes one lead. A returned error leaves the message
// uncommitted so the group redelivers it.
type Handler func(ctx context.Context, leadID string) error

// MetricsRecorder records consumed message outcomes
type MetricsRecorder interface {
	RecordMessage(result string)
}

// messageReader is the slice of kafka.Reader the consumer uses. Commits are
// explicit so a failed handler leaves the offset for redelivery.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer wraps a Kafka group reader over the lead submission topic
type Consumer struct {
	reader  messageReader
	metrics MetricsRecorder
}

// Config holds consumer settings
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// NewConsumer creates a consumer joined to the worker consumer group
func NewConsumer(cfg Config) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader}
}

// SetMetrics sets the metrics recorder
func (c *Consumer) SetMetrics(m MetricsRecorder) {
	c.metrics = m
}

// Consume fetches messages until ctx is cancelled. Malformed messages are
// committed and skipped; handler failures leave the offset uncommitted for
// redelivery. At-least-once delivery is expected: the engine's claim makes
// duplicate processing a no-op.
func (c *Consumer) Consume(ctx context.Context, handler Handler) error {
	log := logger.Queue()
	for {
		message, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			log.Error().Err(err).Msg("failed to fetch message")
			continue
		}

		leadID, ok := decodeLeadJob(message.Value)
		if !ok {
			log.Error().
				Int64("offset", message.Offset).
				Msg("malformed lead message, skipping")
			c.record("skipped")
			c.commit(ctx, message)
			continue
		}

		if err := handler(logger.WithLeadID(ctx, leadID), leadID); err != nil {
			log.Error().
				Err(err).
				Str("lead_id", leadID).
				Msg("failed to process lead, message will be redelivered")
			c.record("failed")
			continue
		}

		c.record("processed")
		c.commit(ctx, message)
	}
}

// decodeLeadJob parses a message body into a lead ID
func decodeLeadJob(value []byte) (string, bool) {
	var job LeadJob
	if err := json.Unmarshal(value, &job); err != nil {
		return "", false
	}
	if job.LeadID == "" {
		return "", false
	}
	return job.LeadID, true
}

func (c *Consumer) commit(ctx context.Context, message kafka.Message) {
	if err := c.reader.CommitMessages(ctx, message); err != nil {
		log := logger.Queue()
		log.Error().Err(err).Int64("offset", message.Offset).Msg("failed to commit message")
	}
}

func (c *Consumer) record(result string) {
	if c.metrics != nil {
		c.metrics.RecordMessage(result)
	}
}

// Close shuts the reader down and leaves the consumer group
func (c *Consumer) Close() error {
	return c.reader.Close()
}
