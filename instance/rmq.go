package instance

import "github.com/streadway/amqp"

// RabbitMQ is a dialed AMQP connection. Display receivers open their own
// channels on RawClient; RawChannel is shared.
type RabbitMQ interface {
	RawClient() *amqp.Connection
	RawChannel() *amqp.Channel
	Close() error
}
