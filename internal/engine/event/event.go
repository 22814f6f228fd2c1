// Package event publishes a small lifecycle envelope onto Kafka for
// downstream observers. It is a secondary, best-effort observability
// channel: publish failures are logged and swallowed, and the publisher
// is a no-op when no brokers are configured so the engine runs without
// Kafka in local/test environments.
package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/flowengine/engine/pkg/logger"
)

type envelope struct {
	ExecutionID string `json:"execution_id"`
	Event       string `json:"event"`
	Timestamp   int64  `json:"timestamp"`
}

type Publisher struct {
	writer *kafka.Writer
	log    logger.Logger
}

// New returns a Publisher. If brokers is empty, Publish is a no-op.
func New(brokers []string, topic string, log logger.Logger) *Publisher {
	if len(brokers) == 0 {
		return &Publisher{log: log}
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Publisher{writer: writer, log: log}
}

func (p *Publisher) Publish(ctx context.Context, executionID, eventName string) {
	if p.writer == nil {
		return
	}
	data, err := json.Marshal(envelope{ExecutionID: executionID, Event: eventName, Timestamp: time.Now().Unix()})
	if err != nil {
		p.log.Error("event: marshal failed", "error", err)
		return
	}
	msg := kafka.Message{Key: []byte(executionID), Value: data}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Warn("event: publish failed, continuing", "execution_id", executionID, "event", eventName, "error", err)
	}
}

func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
