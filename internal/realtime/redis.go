package realtime

import (
	"context"
	"encoding/json"
	"log"

	"github.com/go-redis/redis/v8"
)

// RedisRouter publishes events over redis pub/sub. The socket gateway
// subscribes to the channel names and relays to connected terminals.
type RedisRouter struct {
	rdb *redis.Client
}

func NewRedisRouter(rdb *redis.Client) *RedisRouter {
	return &RedisRouter{rdb: rdb}
}

// Publish marshals the event and pushes it to the channel. Failures are
// logged and swallowed: the order state is already committed and real-time
// delivery is best effort.
func (r *RedisRouter) Publish(ctx context.Context, channel string, event interface{}) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("realtime: marshal event for %s failed: %v", channel, err)
		return
	}
	if err := r.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		log.Printf("realtime: publish to %s failed: %v", channel, err)
	}
}
