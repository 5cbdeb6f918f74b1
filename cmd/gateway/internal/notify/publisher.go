package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-tracker/pkg/models"
)

// KafkaWriter abstracts the output stream
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher forwards alertTriggered events to a topic keyed by symbol,
// so one symbol's events stay ordered on one partition.
type KafkaPublisher struct {
	writer KafkaWriter
	logger *zap.Logger
}

func NewKafkaPublisher(writer KafkaWriter, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, logger: logger}
}

// NewKafkaWriter returns an async writer; Publish never waits on the brokers.
func NewKafkaWriter(brokers []string, topic string, logger *zap.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("Kafka Write Error", zap.Error(err), zap.Int("messages", len(messages)))
			}
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev models.AlertEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal alert event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Symbol),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("write alert event: %w", err)
	}
	p.logger.Debug("Published alert", zap.String("symbol", ev.Symbol), zap.Int64("seq_id", ev.SeqID))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
