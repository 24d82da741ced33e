package rmq

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
	"github.com/viderstv/displaysync/errors"
	"github.com/viderstv/displaysync/instance"
	"github.com/viderstv/displaysync/structures"
	"github.com/viderstv/displaysync/utils/uid"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	DefaultDisplayExchange = "display.vsync"
	rateSuffix             = ".rate"
	contentType            = "application/msgpack"
)

type DisplayOptions struct {
	// Exchange is the fanout exchange display events are published on.
	Exchange string
	Logger   logrus.FieldLogger
}

func (o DisplayOptions) fill() DisplayOptions {
	if o.Exchange == "" {
		o.Exchange = DefaultDisplayExchange
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return o
}

// channel is the part of *amqp.Channel a receiver uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// DisplayService consumes msgpack encoded display events from a fanout
// exchange through an exclusive, auto-deleted queue per receiver.
type DisplayService struct {
	opts        DisplayOptions
	open        func() (channel, error)
	notifyClose func(chan *amqp.Error) chan *amqp.Error
}

func NewDisplayService(inst instance.RabbitMQ, opts DisplayOptions) *DisplayService {
	conn := inst.RawClient()
	return &DisplayService{
		opts: opts.fill(),
		open: func() (channel, error) {
			return conn.Channel()
		},
		notifyClose: conn.NotifyClose,
	}
}

func (s *DisplayService) GetEventReceiver(ctx context.Context) (instance.DisplayEventReceiver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch, err := s.open()
	if err != nil {
		return nil, err
	}

	queue, err := declare(ch, s.opts.Exchange)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}

	return &eventReceiver{
		ch:       ch,
		id:       uid.NewId(),
		exchange: s.opts.Exchange,
		queue:    queue,
		logger:   s.opts.Logger.WithField("exchange", s.opts.Exchange),
	}, nil
}

func declare(ch channel, exchange string) (string, error) {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, false, false, false, false, nil); err != nil {
		return "", err
	}
	if err := ch.ExchangeDeclare(exchange+rateSuffix, amqp.ExchangeFanout, false, false, false, false, nil); err != nil {
		return "", err
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return "", err
	}
	if err := ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		return "", err
	}
	return q.Name, nil
}

// LinkToDeath runs fn when the AMQP connection closes.
func (s *DisplayService) LinkToDeath(fn func()) (func(), error) {
	closed := s.notifyClose(make(chan *amqp.Error, 1))
	stop := make(chan struct{})
	var once sync.Once

	go func() {
		select {
		case <-stop:
			return
		case err := <-closed:
			select {
			case <-stop:
				return
			default:
			}
			if err != nil {
				s.opts.Logger.WithError(err).Warn("rmq connection closed")
			}
			fn()
		}
	}()

	return func() { once.Do(func() { close(stop) }) }, nil
}

type eventReceiver struct {
	ch       channel
	id       string
	exchange string
	queue    string
	logger   logrus.FieldLogger
	rate     atomic.Int32
	started  atomic.Bool
}

func (r *eventReceiver) Init(callback instance.EventCallback) error {
	if callback == nil {
		return fmt.Errorf("nil event callback")
	}
	if !r.started.CompareAndSwap(false, true) {
		return fmt.Errorf("receiver already initialized")
	}

	deliveries, err := r.ch.Consume(r.queue, r.id, true, true, false, false, nil)
	if err != nil {
		r.started.Store(false)
		return err
	}

	go func() {
		for d := range deliveries {
			ev, err := DecodeEvent(d.Body)
			if err != nil {
				r.logger.WithError(err).Warn("bad display event")
				continue
			}
			instance.Dispatch(ev, r.rate.Load(), callback)
		}
	}()

	return nil
}

func (r *eventReceiver) SetVsyncRate(count int32) error {
	if count < 0 {
		return fmt.Errorf("invalid vsync rate %d", count)
	}

	body, err := msgpack.Marshal(structures.DisplayRateRequest{
		Receiver: r.id,
		Count:    count,
	})
	if err != nil {
		return err
	}

	if err := r.ch.Publish(r.exchange+rateSuffix, "", false, false, amqp.Publishing{
		ContentType: contentType,
		Body:        body,
	}); err != nil {
		return err
	}

	r.rate.Store(count)
	return nil
}

func (r *eventReceiver) Close() error {
	return r.ch.Close()
}

func EncodeEvent(ev structures.DisplayEvent) ([]byte, error) {
	return msgpack.Marshal(ev)
}

func DecodeEvent(body []byte) (structures.DisplayEvent, error) {
	ev := structures.DisplayEvent{}
	if err := msgpack.Unmarshal(body, &ev); err != nil {
		return ev, err
	}

	switch ev.Type {
	case structures.DisplayEventTypeVsync, structures.DisplayEventTypeHotplug:
		return ev, nil
	}
	return ev, fmt.Errorf("%w: %q", errors.ErrUnknownEventType, ev.Type)
}
