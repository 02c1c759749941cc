// README: RabbitMQ connection for the AMQP event transport.
package infra

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

func DialAMQP(url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	return conn, nil
}
