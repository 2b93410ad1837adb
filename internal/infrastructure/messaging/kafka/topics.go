// Package kafka publishes pipeline events and feeds them to the render
// worker. Every event travels as a JSON EventEnvelope on the topic
// "<prefix><event type>", e.g. "smartsx.edges.calculated".
package kafka

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/turtacn/SMARTSexplore/internal/application/ports"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

const (
	DefaultTopicPrefix = "smartsx."
	SchemaVersion      = "v1"

	deadLetterType = "dead_letter"
)

// EventTypes lists every event type the application publishes.
var EventTypes = []string{
	ports.EventLibraryImported,
	ports.EventEdgesCalculated,
	ports.EventMoleculesMatched,
}

// TopicName maps an event type to its topic under prefix. An empty prefix
// selects DefaultTopicPrefix; a missing trailing dot is added.
func TopicName(prefix, eventType string) string {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	if !strings.HasSuffix(prefix, ".") {
		prefix += "."
	}
	return prefix + eventType
}

// DeadLetterTopic receives messages whose handler kept failing.
func DeadLetterTopic(prefix string) string {
	return TopicName(prefix, deadLetterType)
}

// EventEnvelope is the wire format of every event.
type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	SchemaVersion string          `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

func NewEventEnvelope(eventType, source string, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal payload")
	}
	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: SchemaVersion,
		Payload:       data,
	}, nil
}

// DecodePayload unmarshals the payload into target. An absent payload leaves
// target untouched.
func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode event payload").WithDetail(e.EventType)
	}
	return nil
}

func decodeEnvelope(value []byte) (*EventEnvelope, error) {
	if len(value) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "empty message value")
	}
	var env EventEnvelope
	if err := json.Unmarshal(value, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal envelope")
	}
	return &env, nil
}

// ConnInterface abstracts kafka.Conn for testing.
type ConnInterface interface {
	CreateTopics(topics ...kafka.TopicConfig) error
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	Close() error
}

// TopicManager creates the event topics on brokers that do not
// auto-create them.
type TopicManager struct {
	conn              ConnInterface
	logger            logging.Logger
	numPartitions     int
	replicationFactor int
}

func NewTopicManager(brokers []string, log logging.Logger) (*TopicManager, error) {
	if len(brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "brokers required")
	}
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to dial kafka").WithDetail(brokers[0])
	}
	return newTopicManager(conn, log), nil
}

func newTopicManager(conn ConnInterface, log logging.Logger) *TopicManager {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &TopicManager{conn: conn, logger: log.Named("kafka"), numPartitions: 3, replicationFactor: 1}
}

// EnsureTopics creates the topic of every event type plus the dead letter
// topic. Existing topics are left alone.
func (m *TopicManager) EnsureTopics(ctx context.Context, prefix string) error {
	names := make([]string, 0, len(EventTypes)+1)
	for _, t := range EventTypes {
		names = append(names, TopicName(prefix, t))
	}
	names = append(names, DeadLetterTopic(prefix))

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		if m.topicExists(name) {
			continue
		}
		err := m.conn.CreateTopics(kafka.TopicConfig{
			Topic:             name,
			NumPartitions:     m.numPartitions,
			ReplicationFactor: m.replicationFactor,
		})
		if err != nil && !m.topicExists(name) {
			return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to create topic").WithDetail(name)
		}
		m.logger.Info("topic created", logging.String("topic", name))
	}
	return nil
}

func (m *TopicManager) topicExists(name string) bool {
	partitions, err := m.conn.ReadPartitions(name)
	return err == nil && len(partitions) > 0
}

func (m *TopicManager) Close() error {
	return m.conn.Close()
}
