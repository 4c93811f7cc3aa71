// Package metrics keeps small per-day operational counters in Redis.
// Counters are injected into the services that increment them; nothing here
// is process-global, so several instances share one consistent view.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	CounterBookings      = "bookings"
	CounterCancellations = "cancellations"
	CounterCompletions   = "completions"
	CounterReminders     = "reminders"
	CounterReviews       = "reviews"
)

// Counters increments and reads day-scoped counters. A nil Counters is a
// valid no-op so services can run without Redis configured.
type Counters struct {
	rdb    *redis.Client
	prefix string
	logger *slog.Logger
	ttl    time.Duration
}

func NewCounters(rdb *redis.Client, prefix string, logger *slog.Logger) *Counters {
	if prefix == "" {
		prefix = "metrics"
	}
	return &Counters{
		rdb:    rdb,
		prefix: prefix,
		logger: logger,
		// Keys expire on their own a week out; the explicit daily reset is
		// for the reporting cycle, not for storage hygiene.
		ttl: 7 * 24 * time.Hour,
	}
}

// Enabled reports whether a Redis backend is configured.
func (c *Counters) Enabled() bool {
	return c != nil && c.rdb != nil
}

func (c *Counters) key(day time.Time, name string) string {
	return fmt.Sprintf("%s:%s:%s", c.prefix, day.Format("2006-01-02"), name)
}

// Incr bumps a counter for the given wall-clock day. Failures are logged and
// swallowed: metrics must never fail a booking.
func (c *Counters) Incr(ctx context.Context, day time.Time, name string) {
	if c == nil || c.rdb == nil {
		return
	}
	key := c.key(day, name)
	pipe := c.rdb.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil && c.logger != nil {
		c.logger.Warn("metrics incr failed", "counter", name, "err", err)
	}
}

func (c *Counters) Get(ctx context.Context, day time.Time, name string) (int64, error) {
	if c == nil || c.rdb == nil {
		return 0, nil
	}
	n, err := c.rdb.Get(ctx, c.key(day, name)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// Snapshot reads every known counter for a day.
func (c *Counters) Snapshot(ctx context.Context, day time.Time) (map[string]int64, error) {
	names := []string{CounterBookings, CounterCancellations, CounterCompletions, CounterReminders, CounterReviews}
	out := make(map[string]int64, len(names))
	for _, name := range names {
		n, err := c.Get(ctx, day, name)
		if err != nil {
			return nil, err
		}
		out[name] = n
	}
	return out, nil
}

// Reset deletes a day's counters. Used by the midnight reset cycle.
func (c *Counters) Reset(ctx context.Context, day time.Time) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	names := []string{CounterBookings, CounterCancellations, CounterCompletions, CounterReminders, CounterReviews}
	keys := make([]string, 0, len(names))
	for _, name := range names {
		keys = append(keys, c.key(day, name))
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// Once returns true the first time it is called for (day, task) across all
// instances, using SETNX. Guards once-per-day work such as the daily report.
func (c *Counters) Once(ctx context.Context, day time.Time, task string) bool {
	if c == nil || c.rdb == nil {
		return true
	}
	key := fmt.Sprintf("%s:%s:once:%s", c.prefix, day.Format("2006-01-02"), task)
	ok, err := c.rdb.SetNX(ctx, key, 1, 48*time.Hour).Result()
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("metrics once guard failed", "task", task, "err", err)
		}
		return false
	}
	return ok
}

func ReadyCheck(rdb *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if rdb == nil {
			return errors.New("redis not configured")
		}
		return rdb.Ping(ctx).Err()
	}
}
