// README: Kafka transport; one topic, keyed by room so a room's events stay ordered.
package notify

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaTransport struct {
	writer messageWriter
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaTransport(w *kafka.Writer) *KafkaTransport {
	return &KafkaTransport{writer: w}
}

func (t *KafkaTransport) Send(ctx context.Context, e Envelope) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return t.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.Room),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(e.Event)},
		},
		Time: e.PublishedAt,
	})
}

func (t *KafkaTransport) Close() error {
	return t.writer.Close()
}
