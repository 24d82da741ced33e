package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/viderstv/displaysync/instance"
)

type RedisInst struct {
	client  *redis.Client
	sub     *redis.PubSub
	subsMtx sync.Mutex
	subs    map[string][]*redisSub
	done    chan struct{}
	logger  logrus.FieldLogger
}

type SetupOptions struct {
	Username   string
	Password   string
	MasterName string
	Database   int

	Addresses []string
	Sentinel  bool

	Logger logrus.FieldLogger
}

func New(ctx context.Context, opts SetupOptions) (instance.Redis, error) {
	if len(opts.Addresses) == 0 {
		return nil, fmt.Errorf("you must provide at least one redis address")
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	var rc *redis.Client
	if opts.Sentinel {
		rc = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:       opts.MasterName,
			SentinelAddrs:    opts.Addresses,
			SentinelUsername: opts.Username,
			SentinelPassword: opts.Password,
			Username:         opts.Username,
			Password:         opts.Password,
			DB:               opts.Database,
		})
	} else {
		rc = redis.NewClient(&redis.Options{
			Addr:     opts.Addresses[0],
			Username: opts.Username,
			Password: opts.Password,
			DB:       opts.Database,
		})
	}

	if err := rc.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	inst := &RedisInst{
		client: rc,
		sub:    rc.Subscribe(context.Background()),
		subs:   map[string][]*redisSub{},
		done:   make(chan struct{}),
		logger: opts.Logger,
	}
	go inst.fanout()

	opts.Logger.Info("redis, ok")

	return inst, nil
}

func (r *RedisInst) fanout() {
	defer close(r.done)
	defer func() {
		if err := recover(); err != nil {
			r.logger.WithField("err", err).Error("panic in subs")
		}
	}()

	for msg := range r.sub.Channel() {
		payload := msg.Payload // dont change we want to copy the memory due to concurrency.
		r.subsMtx.Lock()
		for _, s := range r.subs[msg.Channel] {
			select {
			case s.ch <- payload:
			default:
				r.logger.Warn("channel blocked dropping message: ", msg.Channel)
			}
		}
		r.subsMtx.Unlock()
	}
	r.logger.Warn("redis subscription closed")
}

type redisSub struct {
	ch chan string
}

// Subscribe to a channel on Redis until ctx is done.
func (r *RedisInst) Subscribe(ctx context.Context, ch chan string, subscribeTo ...string) {
	r.subsMtx.Lock()
	defer r.subsMtx.Unlock()
	localSub := &redisSub{ch}
	for _, e := range subscribeTo {
		if _, ok := r.subs[e]; !ok {
			_ = r.sub.Subscribe(ctx, e)
		}
		r.subs[e] = append(r.subs[e], localSub)
	}

	go func() {
		<-ctx.Done()
		r.subsMtx.Lock()
		defer r.subsMtx.Unlock()
		for _, e := range subscribeTo {
			r.unsubscribe(e, localSub)
		}
	}()
}

func (r *RedisInst) unsubscribe(channel string, localSub *redisSub) {
	subs := r.subs[channel]
	for i, v := range subs {
		if v != localSub {
			continue
		}
		subs[i] = subs[len(subs)-1]
		r.subs[channel] = subs[:len(subs)-1]
		if len(r.subs[channel]) == 0 {
			delete(r.subs, channel)
			if err := r.sub.Unsubscribe(context.Background(), channel); err != nil {
				r.logger.WithError(err).Error("failed to unsubscribe")
			}
		}
		return
	}
}

func (r *RedisInst) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisInst) Publish(ctx context.Context, channel string, content string) error {
	return r.client.Publish(ctx, channel, content).Err()
}

func (r *RedisInst) Done() <-chan struct{} {
	return r.done
}

func (r *RedisInst) RawClient() *redis.Client {
	return r.client
}
