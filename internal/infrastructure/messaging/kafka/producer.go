package kafka

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/SMARTSexplore/internal/application/ports"
	"github.com/turtacn/SMARTSexplore/internal/config"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

var ErrProducerClosed = errors.New(errors.ErrCodeServiceUnavailable, "producer closed")

const maxMessageBytes = 1024 * 1024

// WriterInterface abstracts kafka.Writer for testing.
type WriterInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes pipeline events. It implements ports.EventPort.
type Producer struct {
	writer WriterInterface
	prefix string
	source string
	logger logging.Logger
	closed atomic.Bool
	sent   atomic.Int64
}

var _ ports.EventPort = (*Producer)(nil)

// NewProducer builds a producer for cfg. source names the publishing
// binary in every envelope.
func NewProducer(cfg config.KafkaConfig, source string, log logging.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "kafka brokers required")
	}
	maxAttempts := cfg.MaxRetries + 1
	if cfg.MaxRetries <= 0 {
		maxAttempts = 4
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		MaxAttempts:            maxAttempts,
		BatchTimeout:           50 * time.Millisecond,
		WriteTimeout:           10 * time.Second,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		Transport:              &kafka.Transport{DialTimeout: 10 * time.Second},
	}
	return newProducer(writer, cfg.TopicPrefix, source, log), nil
}

func newProducer(w WriterInterface, prefix, source string, log logging.Logger) *Producer {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Producer{writer: w, prefix: prefix, source: source, logger: log.Named("kafka")}
}

// Publish wraps evt in an EventEnvelope and writes it synchronously.
func (p *Producer) Publish(ctx context.Context, evt ports.Event) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if evt.Type == "" {
		return errors.New(errors.ErrCodeValidation, "event type required")
	}
	env, err := NewEventEnvelope(evt.Type, p.source, evt.Payload)
	if err != nil {
		return err
	}
	value, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal envelope")
	}
	if len(value) > maxMessageBytes {
		return errors.Newf(errors.ErrCodeValidation, "event %s exceeds %d bytes", evt.Type, maxMessageBytes)
	}

	msg := kafka.Message{
		Topic: TopicName(p.prefix, evt.Type),
		Key:   []byte(evt.Key),
		Value: value,
		Time:  env.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(env.EventType)},
			{Key: "schema_version", Value: []byte(env.SchemaVersion)},
		},
	}
	start := time.Now()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "publish failed").WithDetail(msg.Topic)
	}
	p.sent.Add(1)
	p.logger.Debug("event published",
		logging.String("topic", msg.Topic),
		logging.String("event_id", env.EventID),
		logging.Duration("latency", time.Since(start)),
	)
	return nil
}

// write forwards raw messages, used for dead lettering.
func (p *Producer) write(ctx context.Context, msgs ...kafka.Message) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := p.writer.Close()
	p.logger.Info("kafka producer closed", logging.Int64("sent", p.sent.Load()))
	return err
}
