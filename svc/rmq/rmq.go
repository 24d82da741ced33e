package rmq

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
	"github.com/viderstv/displaysync/instance"
)

type RmqInst struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func New(ctx context.Context, opts SetupOptions) (instance.RabbitMQ, error) {
	conn, err := amqp.Dial(opts.URI)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if opts.QueueName != "" {
		_, err = ch.QueueDeclare(opts.QueueName, true, false, false, false, nil)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	logrus.Info("rmq, ok")

	return &RmqInst{
		conn: conn,
		ch:   ch,
	}, nil
}

func (r *RmqInst) RawClient() *amqp.Connection {
	return r.conn
}

func (r *RmqInst) RawChannel() *amqp.Channel {
	return r.ch
}

// Close closes the shared channel and the connection, which kills every
// receiver opened on it.
func (r *RmqInst) Close() error {
	_ = r.ch.Close()
	return r.conn.Close()
}

type SetupOptions struct {
	URI string
	// QueueName declares a durable queue on connect when set.
	QueueName string
}
