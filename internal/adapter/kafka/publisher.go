package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/flood-extent-service/internal/config"
	"github.com/couchcryptid/flood-extent-service/internal/domain"
)

const (
	maxAttempts    = 3
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 2 * time.Second
)

// messageWriter is the part of kafkago.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces command batches to a Kafka topic.
// It implements session.CommandSink.
type Publisher struct {
	writer messageWriter
	key    []byte
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured command topic.
// Every batch is keyed by the region name, so a session's batches land on one
// partition and stay in order.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaCommandTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
	return newPublisher(w, cfg.Region.Name, logger)
}

func newPublisher(w messageWriter, key string, logger *slog.Logger) *Publisher {
	return &Publisher{writer: w, key: []byte(key), logger: logger}
}

// Publish writes one batch, retrying transient failures with backoff.
func (p *Publisher) Publish(ctx context.Context, batch domain.CommandBatch) error {
	msg, err := serializeToMessage(p.key, batch)
	if err != nil {
		return err
	}

	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		err = p.writer.WriteMessages(ctx, msg)
		if err == nil {
			return nil
		}
		if attempt == maxAttempts || ctx.Err() != nil {
			return fmt.Errorf("publish batch %d: %w", batch.Seq, err)
		}
		p.logger.Warn("publish batch failed, retrying",
			"seq", batch.Seq,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)
		if !retry.SleepWithContext(ctx, backoff) {
			return fmt.Errorf("publish batch %d: %w", batch.Seq, ctx.Err())
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a CommandBatch into a Kafka message.
func serializeToMessage(key []byte, batch domain.CommandBatch) (kafkago.Message, error) {
	data, err := json.Marshal(batch)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize command batch: %w", err)
	}
	return kafkago.Message{
		Key:   key,
		Value: data,
		Headers: []kafkago.Header{
			{Key: "batch_id", Value: []byte(batch.ID)},
			{Key: "seq", Value: []byte(strconv.FormatUint(batch.Seq, 10))},
			{Key: "reason", Value: []byte(batch.Reason)},
			{Key: "emitted_at", Value: []byte(batch.EmittedAt.Format(time.RFC3339))},
		},
	}, nil
}
