package instance

import (
	"context"

	"github.com/go-redis/redis/v8"
)

type Redis interface {
	Subscribe(ctx context.Context, ch chan string, subscribeTo ...string)
	Ping(ctx context.Context) error
	Publish(ctx context.Context, channel string, content string) error
	// Done is closed once the shared subscription has stopped.
	Done() <-chan struct{}
	RawClient() *redis.Client
}
