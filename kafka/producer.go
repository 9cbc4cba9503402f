package kafka

import (
	"context"
	"encoding/json"

	"pos-sync-service/models"

	"github.com/segmentio/kafka-go"
)

// Producer publishes terminal transaction events for downstream consumers
// (reporting, the relational history store).
type Producer struct {
	writer *kafka.Writer
	topic  string
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}

	return &Producer{writer: writer, topic: topic}
}

// SendTransactionEvent writes one event keyed by store id so events of the
// same store stay ordered within a partition.
func (p *Producer) SendTransactionEvent(ctx context.Context, event models.TransactionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.Transaction.StoreID),
		Value: data,
	}

	return p.writer.WriteMessages(ctx, msg)
}

func (p *Producer) Close() {
	_ = p.writer.Close()
}
