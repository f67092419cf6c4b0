package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Sequencer hands out the next value of the daily order-number sequence.
// The read-modify-write on the sequence is the one place in the ledger that
// needs a stronger guarantee than idempotent field writes, so production
// uses a Redis atomic INCR and the create path still retries on a unique
// violation in case two instances race on different sequencers.
type Sequencer interface {
	Next(ctx context.Context, day string) (int64, error)
}

// RedisSequencer backs the sequence with one INCR key per calendar day.
type RedisSequencer struct {
	Client *redis.Client
}

func (s *RedisSequencer) Next(ctx context.Context, day string) (int64, error) {
	key := "order_seq:" + day
	n, err := s.Client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		// Stale day keys expire on their own.
		s.Client.Expire(ctx, key, 48*time.Hour)
	}
	return n, nil
}

// LocalSequencer is a process-local fallback used by tests and by degraded
// single-instance deployments. The unique index on order_number remains the
// backstop against collisions across processes.
type LocalSequencer struct {
	mu  sync.Mutex
	day string
	n   int64
}

func (s *LocalSequencer) Next(_ context.Context, day string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.day != day {
		s.day = day
		s.n = 0
	}
	s.n++
	return s.n, nil
}

// FormatOrderNumber renders the date-coded human-readable order number,
// e.g. LUM-20260831-0042.
func FormatOrderNumber(day string, seq int64) string {
	return fmt.Sprintf("LUM-%s-%04d", day, seq)
}

// DayKey returns the calendar-day component of an order number.
func DayKey(t time.Time) string {
	return t.UTC().Format("20060102")
}
