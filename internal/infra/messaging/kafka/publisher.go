// Package kafka publishes fetched transactions to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gabapcia/txhistory/internal/export"
	"github.com/gabapcia/txhistory/internal/pkg/logger"

	"github.com/segmentio/kafka-go"
)

const (
	headerChain   = "chain"
	headerAddress = "address"
)

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type publisher struct {
	mu     sync.Mutex
	writer messageWriter
	topic  string
}

var _ export.Publisher = (*publisher)(nil)

// Publish writes one message per record in a single batch. Messages are keyed
// by the record key, so every record of a transaction lands on the same
// partition, and carry the chain and address as headers.
func (p *publisher) Publish(ctx context.Context, batch export.Batch) error {
	if len(batch.Records) == 0 {
		return nil
	}

	headers := []kafka.Header{
		{Key: headerChain, Value: []byte(batch.Chain)},
		{Key: headerAddress, Value: []byte(batch.Address)},
	}

	msgs := make([]kafka.Message, len(batch.Records))
	for i, record := range batch.Records {
		value, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("encode record %q: %w", record.Key(), err)
		}

		msgs[i] = kafka.Message{
			Key:     []byte(record.Key()),
			Value:   value,
			Headers: headers,
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writer == nil {
		return ErrClosed
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write messages to kafka: %w", err)
	}

	logger.Info(ctx, "batch published to kafka",
		"kafka.topic", p.topic,
		"kafka.messages", len(msgs),
		"chain", batch.Chain,
	)

	return nil
}

func (p *publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writer == nil {
		return nil
	}

	err := p.writer.Close()
	p.writer = nil
	return err
}

// NewPublisher creates a publisher writing to topic on the given brokers.
// Connections are opened lazily on the first Publish.
func NewPublisher(brokers []string, topic string) *publisher {
	return &publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
		topic: topic,
	}
}
