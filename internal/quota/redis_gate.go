package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGate shares the fixed-window counters across dispatcher instances.
// Keys are bucketed by window start and expire shortly after the window
// closes, so no sweeper is needed.
type RedisGate struct {
	client *redis.Client
	limits Limits
	now    func() time.Time
}

func NewRedisGate(client *redis.Client, limits Limits) *RedisGate {
	return &RedisGate{client: client, limits: limits, now: time.Now}
}

func (g *RedisGate) keys(ownerID int64) (minute, hour, day string) {
	now := g.now()
	minute = fmt.Sprintf("quota:%d:m:%d", ownerID, now.Truncate(time.Minute).Unix())
	hour = fmt.Sprintf("quota:%d:h:%d", ownerID, now.Truncate(time.Hour).Unix())
	day = fmt.Sprintf("quota:%d:d:%d", ownerID, now.Truncate(24*time.Hour).Unix())
	return
}

func (g *RedisGate) Allow(ctx context.Context, ownerID int64) (bool, error) {
	usage, err := g.Usage(ctx, ownerID)
	if err != nil {
		return false, err
	}
	if g.limits.PerMinute > 0 && usage.Minute >= g.limits.PerMinute {
		return false, nil
	}
	if g.limits.PerHour > 0 && usage.Hour >= g.limits.PerHour {
		return false, nil
	}
	if g.limits.PerDay > 0 && usage.Day >= g.limits.PerDay {
		return false, nil
	}
	return true, nil
}

func (g *RedisGate) Record(ctx context.Context, ownerID int64) error {
	minuteKey, hourKey, dayKey := g.keys(ownerID)

	pipe := g.client.Pipeline()
	pipe.Incr(ctx, minuteKey)
	pipe.Expire(ctx, minuteKey, 2*time.Minute)
	pipe.Incr(ctx, hourKey)
	pipe.Expire(ctx, hourKey, 2*time.Hour)
	pipe.Incr(ctx, dayKey)
	pipe.Expire(ctx, dayKey, 48*time.Hour)

	if _, err := pipe.Exec(ctx); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (g *RedisGate) Usage(ctx context.Context, ownerID int64) (Usage, error) {
	minuteKey, hourKey, dayKey := g.keys(ownerID)

	values, err := g.client.MGet(ctx, minuteKey, hourKey, dayKey).Result()
	if err != nil {
		slog.Info(err.Error())
		return Usage{}, err
	}

	return Usage{
		Minute: toInt(values[0]),
		Hour:   toInt(values[1]),
		Day:    toInt(values[2]),
	}, nil
}

func toInt(v any) int {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	var n int
	fmt.Sscanf(s, "%d", &n)
	return n
}
