// Package ratelimit bounds requests per API credential with fixed-window
// counters in Redis, evaluated independently over minute, hour and day
// windows. The limiter runs before credit reservation so rejected requests
// never touch the ledger, and it fails open: a Redis error or missing counter
// admits the request.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
	WindowDay    Window = "day"
)

func (w Window) Duration() time.Duration {
	switch w {
	case WindowHour:
		return time.Hour
	case WindowDay:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// Limits holds the ceilings for one credential. Zero values fall back to the
// limiter defaults.
type Limits struct {
	PerMinute int
	PerHour   int
	PerDay    int
}

func (l Limits) ceiling(w Window) int {
	switch w {
	case WindowHour:
		return l.PerHour
	case WindowDay:
		return l.PerDay
	default:
		return l.PerMinute
	}
}

// LimitedError names the offending window and how long until it resets.
type LimitedError struct {
	Window     Window
	RetryAfter time.Duration
}

func (e *LimitedError) Error() string {
	return fmt.Sprintf("rate limited: %s window exceeded, retry in %s", e.Window, e.RetryAfter.Round(time.Second))
}

type Limiter struct {
	rds       *redis.Client
	defaults  Limits
	keyPrefix string
	log       *zap.Logger
}

func New(rds *redis.Client, defaults Limits, log *zap.Logger) *Limiter {
	return &Limiter{
		rds:       rds,
		defaults:  defaults,
		keyPrefix: "rl:cred:",
		log:       log,
	}
}

// windows checked in ascending size; when several are violated the largest
// (most restrictive in retry terms) is reported.
var windows = []Window{WindowMinute, WindowHour, WindowDay}

// Check atomically counts the request against all three windows. If any
// window is at its ceiling the increments are undone and a *LimitedError for
// the longest violated window is returned, so a rejected request is never
// double-counted.
func (l *Limiter) Check(ctx context.Context, credentialID string, overrides *Limits) error {
	limits := l.resolve(overrides)
	now := time.Now()

	pipe := l.rds.Pipeline()
	incrs := make([]*redis.IntCmd, len(windows))
	for i, w := range windows {
		incrs[i] = pipe.Incr(ctx, l.key(credentialID, w, now))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		// fail open
		l.log.Warn("rate limiter unavailable, admitting request", zap.Error(err))
		return nil
	}

	// first increment of a window sets its expiry
	expPipe := l.rds.Pipeline()
	for i, w := range windows {
		if incrs[i].Val() == 1 {
			expPipe.Expire(ctx, l.key(credentialID, w, now), w.Duration())
		}
	}
	if _, err := expPipe.Exec(ctx); err != nil {
		l.log.Warn("rate limiter could not arm window expiry", zap.Error(err))
	}

	var limited *LimitedError
	for i, w := range windows {
		max := limits.ceiling(w)
		if max > 0 && incrs[i].Val() > int64(max) {
			limited = &LimitedError{Window: w, RetryAfter: l.retryAfter(w, now)}
		}
	}
	if limited == nil {
		return nil
	}

	// Decr can recreate a key whose window just expired, and a recreated key
	// has no TTL, so every undone key gets its expiry re-armed.
	undo := l.rds.Pipeline()
	for _, w := range windows {
		key := l.key(credentialID, w, now)
		undo.Decr(ctx, key)
		undo.Expire(ctx, key, w.Duration())
	}
	if _, err := undo.Exec(ctx); err != nil {
		l.log.Warn("rate limiter could not undo rejected increments", zap.Error(err))
	}

	return limited
}

func (l *Limiter) resolve(overrides *Limits) Limits {
	limits := l.defaults
	if overrides == nil {
		return limits
	}
	if overrides.PerMinute > 0 {
		limits.PerMinute = overrides.PerMinute
	}
	if overrides.PerHour > 0 {
		limits.PerHour = overrides.PerHour
	}
	if overrides.PerDay > 0 {
		limits.PerDay = overrides.PerDay
	}
	return limits
}

// key buckets time into fixed windows: rl:cred:<id>:<window>:<bucket>.
func (l *Limiter) key(credentialID string, w Window, now time.Time) string {
	bucket := now.Unix() / int64(w.Duration()/time.Second)
	return l.keyPrefix + credentialID + ":" + string(w)[:1] + ":" + strconv.FormatInt(bucket, 10)
}

func (l *Limiter) retryAfter(w Window, now time.Time) time.Duration {
	size := int64(w.Duration() / time.Second)
	elapsed := now.Unix() % size
	return time.Duration(size-elapsed) * time.Second
}
