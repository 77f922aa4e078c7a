package strava

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Strava rate limits:
// - 100 requests per 15 minutes
// - 1000 requests per day
const (
	defaultShortLimit = 100
	defaultDailyLimit = 1000
	shortPeriod       = 15 * time.Minute
	minInterval       = 150 * time.Millisecond
)

// window counts requests until resetsAt
type window struct {
	limit    int
	usage    int
	resetsAt time.Time
	next     func(now time.Time) time.Time
}

func (w *window) roll(now time.Time) {
	if now.After(w.resetsAt) {
		w.usage = 0
		w.resetsAt = w.next(now)
	}
}

func (w *window) full() bool { return w.usage >= w.limit }

func nextShort(now time.Time) time.Time { return now.Add(shortPeriod) }

func nextDay(now time.Time) time.Time { return now.Truncate(24 * time.Hour).Add(24 * time.Hour) }

// RateLimiter manages Strava API rate limits
type RateLimiter struct {
	mu          sync.Mutex
	short       window
	daily       window
	lastRequest time.Time
	now         func() time.Time
}

// NewRateLimiter creates a new rate limiter with Strava's limits
func NewRateLimiter() *RateLimiter {
	now := time.Now()
	return &RateLimiter{
		short: window{limit: defaultShortLimit, resetsAt: nextShort(now), next: nextShort},
		daily: window{limit: defaultDailyLimit, resetsAt: nextDay(now), next: nextDay},
		now:   time.Now,
	}
}

// Wait blocks until a request can be made without exceeding rate limits
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, w := range []*window{&r.short, &r.daily} {
		w.roll(r.now())
		if !w.full() {
			continue
		}
		if err := r.sleep(ctx, w.resetsAt.Sub(r.now())); err != nil {
			return err
		}
		w.roll(r.now())
	}

	if elapsed := r.now().Sub(r.lastRequest); elapsed < minInterval {
		if err := r.sleep(ctx, minInterval-elapsed); err != nil {
			return err
		}
	}

	r.short.usage++
	r.daily.usage++
	r.lastRequest = r.now()
	return nil
}

// sleep waits for d with the lock released. The caller holds r.mu.
func (r *RateLimiter) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	r.mu.Unlock()
	defer r.mu.Lock()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpdateFromHeaders updates rate limit state from Strava response headers.
// Strava returns X-RateLimit-Limit: "100,1000" and X-RateLimit-Usage: "34,512".
func (r *RateLimiter) UpdateFromHeaders(h http.Header) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if short, daily, ok := parsePair(h.Get("X-RateLimit-Usage")); ok {
		r.short.usage, r.daily.usage = short, daily
	}
	if short, daily, ok := parsePair(h.Get("X-RateLimit-Limit")); ok {
		r.short.limit, r.daily.limit = short, daily
	}
}

func parsePair(v string) (int, int, bool) {
	first, second, found := strings.Cut(v, ",")
	if !found {
		return 0, 0, false
	}
	a, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil {
		return 0, 0, false
	}
	b, err := strconv.Atoi(strings.TrimSpace(second))
	if err != nil {
		return 0, 0, false
	}
	return a, b, true
}

// Status returns current rate limit status
func (r *RateLimiter) Status() (shortRemaining, dailyRemaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.short.limit - r.short.usage, r.daily.limit - r.daily.usage
}

// Usage returns current usage counts
func (r *RateLimiter) Usage() (shortUsage, dailyUsage int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.short.usage, r.daily.usage
}
