package kafka

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/SMARTSexplore/internal/config"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

var ErrAlreadyRunning = errors.New(errors.ErrCodeConflict, "consumer already running")

// Handler processes one decoded event.
type Handler func(ctx context.Context, env *EventEnvelope) error

// ReaderInterface abstracts kafka.Reader for testing.
type ReaderInterface interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerMetrics counts consumer outcomes.
type ConsumerMetrics struct {
	Consumed     atomic.Int64
	Processed    atomic.Int64
	Failed       atomic.Int64
	Retried      atomic.Int64
	DeadLettered atomic.Int64
}

// Consumer dispatches events of a consumer group to handlers by event type.
// A message is committed once its handler succeeded, or once it was dead
// lettered after the retries ran out.
type Consumer struct {
	reader     ReaderInterface
	deadLetter *Producer
	prefix     string
	logger     logging.Logger

	maxRetries   int
	retryBackoff time.Duration
	maxBackoff   time.Duration

	mu       sync.RWMutex
	handlers map[string]Handler
	running  atomic.Bool
	metrics  ConsumerMetrics
}

// NewConsumer subscribes the configured group to the topics of eventTypes.
func NewConsumer(cfg config.KafkaConfig, eventTypes []string, log logging.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "kafka brokers required")
	}
	if cfg.GroupID == "" {
		return nil, errors.New(errors.ErrCodeValidation, "kafka group id required")
	}
	if len(eventTypes) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "at least one event type required")
	}
	topics := make([]string, len(eventTypes))
	for i, t := range eventTypes {
		topics[i] = TopicName(cfg.TopicPrefix, t)
	}

	start := kafka.FirstOffset
	if cfg.AutoOffsetReset == "latest" {
		start = kafka.LastOffset
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           cfg.Brokers,
		GroupID:           cfg.GroupID,
		GroupTopics:       topics,
		MinBytes:          1,
		MaxBytes:          10 * 1024 * 1024,
		MaxWait:           time.Second,
		SessionTimeout:    30 * time.Second,
		HeartbeatInterval: 3 * time.Second,
		StartOffset:       start,
	})

	dl, err := NewProducer(cfg, "dead-letter", log)
	if err != nil {
		reader.Close()
		return nil, err
	}
	c := newConsumer(reader, dl, cfg.TopicPrefix, log)
	if cfg.MaxRetries > 0 {
		c.maxRetries = cfg.MaxRetries
	}
	return c, nil
}

func newConsumer(r ReaderInterface, deadLetter *Producer, prefix string, log logging.Logger) *Consumer {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Consumer{
		reader:       r,
		deadLetter:   deadLetter,
		prefix:       prefix,
		logger:       log.Named("kafka"),
		maxRetries:   3,
		retryBackoff: time.Second,
		maxBackoff:   30 * time.Second,
		handlers:     make(map[string]Handler),
	}
}

// Handle registers h for eventType, replacing any previous handler.
func (c *Consumer) Handle(eventType string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[eventType] = h
}

// Run consumes until ctx is cancelled and returns nil then.
func (c *Consumer) Run(ctx context.Context) error {
	if c.running.Swap(true) {
		return ErrAlreadyRunning
	}
	defer c.running.Store(false)
	c.logger.Info("kafka consumer started")

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("fetch failed", logging.Err(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		c.metrics.Consumed.Add(1)

		if err := c.process(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.metrics.Failed.Add(1)
			c.logger.Error("message failed", logging.String("topic", m.Topic), logging.Int64("offset", m.Offset), logging.Err(err))
		} else {
			c.metrics.Processed.Add(1)
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.Error("commit failed", logging.Err(err))
		}
	}
}

// process decodes m and runs its handler with exponential backoff between
// attempts. Undecodable messages and exhausted retries are dead lettered and
// still reported as failures.
func (c *Consumer) process(ctx context.Context, m kafka.Message) error {
	env, err := decodeEnvelope(m.Value)
	if err != nil {
		return c.deadLetterMessage(ctx, m, err)
	}

	c.mu.RLock()
	h, ok := c.handlers[env.EventType]
	c.mu.RUnlock()
	if !ok {
		c.logger.Warn("no handler for event", logging.String("event_type", env.EventType), logging.String("topic", m.Topic))
		return nil
	}

	backoff := c.retryBackoff
	for attempt := 0; ; attempt++ {
		err = h(ctx, env)
		if err == nil {
			return nil
		}
		if attempt >= c.maxRetries {
			break
		}
		c.metrics.Retried.Add(1)
		c.logger.Warn("handler failed, retrying",
			logging.String("event_type", env.EventType),
			logging.Int("attempt", attempt+1),
			logging.Err(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
	return c.deadLetterMessage(ctx, m, err)
}

func (c *Consumer) deadLetterMessage(ctx context.Context, m kafka.Message, cause error) error {
	if c.deadLetter == nil {
		return cause
	}
	dl := kafka.Message{
		Topic: DeadLetterTopic(c.prefix),
		Key:   m.Key,
		Value: m.Value,
		Headers: append(append([]kafka.Header{}, m.Headers...),
			kafka.Header{Key: "original_topic", Value: []byte(m.Topic)},
			kafka.Header{Key: "error_message", Value: []byte(cause.Error())},
		),
	}
	if err := c.deadLetter.write(ctx, dl); err != nil {
		c.logger.Error("failed to dead letter message", logging.Err(err))
		return cause
	}
	c.metrics.DeadLettered.Add(1)
	return cause
}

// Metrics returns the live counters.
func (c *Consumer) Metrics() *ConsumerMetrics {
	return &c.metrics
}

func (c *Consumer) Close() error {
	err := c.reader.Close()
	if c.deadLetter != nil {
		c.deadLetter.Close()
	}
	c.logger.Info("kafka consumer closed", logging.Int64("consumed", c.metrics.Consumed.Load()))
	return err
}
