package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// writerBatchTimeout bounds how long a toggle event waits in the writer before it is flushed.
const writerBatchTimeout = 10 * time.Millisecond

// KafkaProducer holds one writer per topic in the habit event catalog.
type KafkaProducer struct {
	writers map[string]*kafka.Writer
}

// NewKafkaProducer creates writers for every topic returned by Topics. No connection is made until the first write.
func NewKafkaProducer(brokers []string) *KafkaProducer {
	writers := make(map[string]*kafka.Writer, len(catalog))
	for _, topic := range Topics() {
		writers[topic] = &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{}, // keyed by habit id
			RequiredAcks:           kafka.RequireAll,
			Compression:            kafka.Snappy,
			BatchTimeout:           writerBatchTimeout,
			AllowAutoTopicCreation: true,
		}
	}
	return &KafkaProducer{writers: writers}
}

// WriteMessages writes msgs to topic. Topics outside the catalog are rejected.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	writer, ok := p.writers[topic]
	if !ok {
		return fmt.Errorf("no writer for topic %q", topic)
	}
	return writer.WriteMessages(ctx, msgs...)
}

// Close flushes and closes every writer.
func (p *KafkaProducer) Close() error {
	var errs []error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close writer %s: %w", topic, err))
		}
	}
	return errors.Join(errs...)
}
