package realtime

import (
	"context"

	"github.com/go-redis/redis/v8"

	rediscommon "owl-restaurant/internal/common/redis"
)

// StreamSink 事件追加到 Redis Stream，供其他实例 / 下游消费者读取
type StreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewStreamSink(client *redis.Client, stream string, maxLen int64) *StreamSink {
	return &StreamSink{client: client, stream: stream, maxLen: maxLen}
}

var _ Sink = (*StreamSink)(nil)

func (s *StreamSink) Name() string { return "redis-stream" }

func (s *StreamSink) Deliver(ctx context.Context, ev Event) error {
	_, err := rediscommon.PublishJSONToStream(ctx, s.client, s.stream, s.maxLen, ev)
	return err
}
