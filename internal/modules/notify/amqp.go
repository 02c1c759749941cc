// README: RabbitMQ transport; topic exchange with the room as routing key.
package notify

import (
	"context"
	"encoding/json"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

const DefaultExchange = "streeteats_events"

type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type AMQPTransport struct {
	mu       sync.Mutex
	ch       amqpPublisher
	exchange string
}

// NewAMQPTransport opens a channel on conn and declares the durable topic exchange.
func NewAMQPTransport(conn *amqp.Connection, exchange string) (*AMQPTransport, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	return &AMQPTransport{ch: ch, exchange: exchange}, nil
}

func (t *AMQPTransport) Send(ctx context.Context, e Envelope) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	// amqp channels are not safe for concurrent publishing
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ch.PublishWithContext(ctx,
		t.exchange, // exchange
		e.Room,     // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    e.ID,
			Type:         e.Event,
			Body:         body,
			Timestamp:    e.PublishedAt,
		})
}

func (t *AMQPTransport) Close() error {
	return t.ch.Close()
}
