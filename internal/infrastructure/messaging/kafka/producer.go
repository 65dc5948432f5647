// Package kafka publishes pipeline progress events so external job-slot
// schedulers can track modeling batches and screening runs without polling
// the filesystem store.  Publishing is fire-and-forget from the pipeline's
// point of view: event failures are logged, never fatal.
package kafka

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/standardseed/pharmscreen/internal/config"
	"github.com/standardseed/pharmscreen/internal/infrastructure/monitoring/logging"
	"github.com/standardseed/pharmscreen/pkg/errors"
)

// ErrProducerClosed is returned by Publish after Close.
var ErrProducerClosed = errors.New(errors.ErrCodeEventError, "producer closed")

// Event topics, suffixed onto the configured topic prefix.
const (
	TopicModelCompleted = "model.completed"
	TopicPairCompleted  = "pair.completed"
	TopicBatchSummary   = "batch.summary"
	TopicRunCompleted   = "run.completed"
)

// Event is the envelope of every published progress event.
type Event struct {
	RunID      string    `json:"run_id"`
	Kind       string    `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// writerInterface abstracts kafka.Writer for testing.
type writerInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes progress events.  Nil-safe: a nil *Producer silently
// drops every event, so callers need no enabled-check at publish sites.
type Producer struct {
	writer      writerInterface
	topicPrefix string
	logger      logging.Logger
	closed      atomic.Bool
}

// NewProducer creates a Producer for the configured brokers.
func NewProducer(cfg config.KafkaConfig, logger logging.Logger) *Producer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
		// Pipeline runs publish bursts at stage boundaries; creating topics on
		// first use avoids an operational pre-provisioning step.
		AllowAutoTopicCreation: true,
	}
	return &Producer{
		writer:      w,
		topicPrefix: cfg.TopicPrefix,
		logger:      logger.Named("kafka"),
	}
}

// Publish sends one event to the topic derived from kind.  The event key is
// the run ID so all events of a run land in one partition, preserving order.
func (p *Producer) Publish(ctx context.Context, runID, kind string, payload any) error {
	if p == nil {
		return nil
	}
	if p.closed.Load() {
		return ErrProducerClosed
	}

	ev := Event{RunID: runID, Kind: kind, OccurredAt: time.Now().UTC(), Payload: payload}
	data, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeEventError, "failed to marshal event")
	}

	msg := kafka.Message{
		Topic: p.topicPrefix + "." + kind,
		Key:   []byte(runID),
		Value: data,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, errors.ErrCodeEventError, "failed to publish event").
			WithDetail("kind=" + kind)
	}
	return nil
}

// TryPublish publishes and downgrades any failure to a warning log.  Progress
// events are advisory; a broker outage must never fail a unit of work.
func (p *Producer) TryPublish(ctx context.Context, runID, kind string, payload any) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, runID, kind, payload); err != nil {
		p.logger.Warn("progress event dropped",
			logging.String("kind", kind),
			logging.String("run_id", runID),
			logging.Err(err))
	}
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	if p == nil || !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.writer.Close()
}
