package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/viderstv/displaysync/errors"
	"github.com/viderstv/displaysync/instance"
	"github.com/viderstv/displaysync/structures"
	"github.com/viderstv/displaysync/utils/uid"
)

const (
	DefaultDisplayChannel = "display:vsync"
	rateSuffix            = ":rate"
	eventQueueSize        = 64
)

type DisplayOptions struct {
	// Channel carries JSON encoded structures.DisplayEvent values.
	Channel string
	// JwtKey, when set, requires Token to be a structures.JwtDisplayPayload
	// signed with it; the grant's channel replaces Channel.
	JwtKey string
	Token  string
	// HealthInterval is how often the service is pinged to detect its death.
	HealthInterval time.Duration
	PublishTimeout time.Duration
	Logger         logrus.FieldLogger
}

func (o DisplayOptions) fill() DisplayOptions {
	if o.Channel == "" {
		o.Channel = DefaultDisplayChannel
	}
	if o.HealthInterval <= 0 {
		o.HealthInterval = time.Second
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = time.Second
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return o
}

// DisplayService reads vsync events published on a Redis channel.
type DisplayService struct {
	inst instance.Redis
	opts DisplayOptions
}

func NewDisplayService(inst instance.Redis, opts DisplayOptions) *DisplayService {
	return &DisplayService{
		inst: inst,
		opts: opts.fill(),
	}
}

// channel resolves the channel this service may subscribe to.
func (s *DisplayService) channel() (string, error) {
	if s.opts.JwtKey == "" {
		return s.opts.Channel, nil
	}

	payload := structures.JwtDisplayPayload{}
	if err := structures.DecodeJwt(&payload, s.opts.JwtKey, s.opts.Token); err != nil {
		return "", fmt.Errorf("display grant: %w", err)
	}
	if payload.Channel == "" {
		return "", errors.ErrJwtTokenInvalid
	}
	return payload.Channel, nil
}

func (s *DisplayService) GetEventReceiver(ctx context.Context) (instance.DisplayEventReceiver, error) {
	channel, err := s.channel()
	if err != nil {
		return nil, err
	}
	if err := s.inst.Ping(ctx); err != nil {
		return nil, err
	}

	return &eventReceiver{
		inst:    s.inst,
		opts:    s.opts,
		id:      uid.NewId(),
		channel: channel,
		logger:  s.opts.Logger.WithField("channel", channel),
	}, nil
}

// LinkToDeath watches the Redis connection. fn runs once when a ping fails
// or the shared subscription stops.
func (s *DisplayService) LinkToDeath(fn func()) (func(), error) {
	stop := make(chan struct{})
	var once sync.Once

	died := func() {
		select {
		case <-stop:
		default:
			fn()
		}
	}

	go func() {
		tk := time.NewTicker(s.opts.HealthInterval)
		defer tk.Stop()

		for {
			select {
			case <-stop:
				return
			case <-s.inst.Done():
				died()
				return
			case <-tk.C:
				ctx, cancel := context.WithTimeout(context.Background(), s.opts.HealthInterval)
				err := s.inst.Ping(ctx)
				cancel()
				if err != nil {
					s.opts.Logger.WithError(err).Warn("display service ping failed")
					died()
					return
				}
			}
		}
	}()

	return func() { once.Do(func() { close(stop) }) }, nil
}

type eventReceiver struct {
	inst    instance.Redis
	opts    DisplayOptions
	id      string
	channel string
	logger  logrus.FieldLogger
	rate    atomic.Int32

	mtx    sync.Mutex
	cancel context.CancelFunc
}

func (r *eventReceiver) Init(callback instance.EventCallback) error {
	if callback == nil {
		return fmt.Errorf("nil event callback")
	}

	r.mtx.Lock()
	defer r.mtx.Unlock()
	if r.cancel != nil {
		return fmt.Errorf("receiver already initialized")
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	ch := make(chan string, eventQueueSize)
	r.inst.Subscribe(ctx, ch, r.channel)
	go r.read(ctx, ch, callback)

	return nil
}

func (r *eventReceiver) read(ctx context.Context, ch chan string, callback instance.EventCallback) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-ch:
			ev, err := DecodeEvent(payload)
			if err != nil {
				r.logger.WithError(err).Warn("bad display event")
				continue
			}
			instance.Dispatch(ev, r.rate.Load(), callback)
		}
	}
}

func (r *eventReceiver) SetVsyncRate(count int32) error {
	if count < 0 {
		return fmt.Errorf("invalid vsync rate %d", count)
	}

	data, err := json.Marshal(structures.DisplayRateRequest{
		Receiver: r.id,
		Count:    count,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.opts.PublishTimeout)
	defer cancel()
	if err := r.inst.Publish(ctx, r.channel+rateSuffix, string(data)); err != nil {
		return err
	}

	r.rate.Store(count)
	return nil
}

func (r *eventReceiver) Close() error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
	return nil
}

// DecodeEvent parses one JSON display event.
func DecodeEvent(payload string) (structures.DisplayEvent, error) {
	ev := structures.DisplayEvent{}
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return ev, err
	}

	switch ev.Type {
	case structures.DisplayEventTypeVsync, structures.DisplayEventTypeHotplug:
		return ev, nil
	}
	return ev, fmt.Errorf("%w: %q", errors.ErrUnknownEventType, ev.Type)
}
