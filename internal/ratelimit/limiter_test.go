package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLimiter(t *testing.T, defaults Limits) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rds := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rds.Close() })
	return New(rds, defaults, zap.NewNop()), mr
}

func TestCheckAllowsUpToCeilingThenRejects(t *testing.T) {
	l, _ := newTestLimiter(t, Limits{PerMinute: 100, PerHour: 100, PerDay: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Check(ctx, "cred-1", nil))
	}

	err := l.Check(ctx, "cred-1", nil)
	var le *LimitedError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, WindowDay, le.Window)
	assert.Greater(t, le.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, le.RetryAfter, 24*time.Hour)

	// other credentials keep their own counters
	require.NoError(t, l.Check(ctx, "cred-2", nil))
}

func TestCheckUndoesRejectedIncrements(t *testing.T) {
	l, mr := newTestLimiter(t, Limits{PerMinute: 100, PerHour: 100, PerDay: 3})
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Check(ctx, "cred-1", nil))
	}
	var le *LimitedError
	require.ErrorAs(t, l.Check(ctx, "cred-1", nil), &le)

	// the rejected request is decremented back out of every window
	dayKey := l.key("cred-1", WindowDay, now)
	got, err := mr.Get(dayKey)
	require.NoError(t, err)
	assert.Equal(t, "3", got)

	// a later rejection still leaves the counter at the ceiling
	require.ErrorAs(t, l.Check(ctx, "cred-1", nil), &le)
	got, err = mr.Get(dayKey)
	require.NoError(t, err)
	assert.Equal(t, "3", got)

	// the undo re-arms the expiry so the bucket key cannot leak
	assert.Greater(t, mr.TTL(dayKey), time.Duration(0))
}

func TestCheckSetsWindowExpiryOnFirstIncrement(t *testing.T) {
	l, mr := newTestLimiter(t, Limits{PerMinute: 100, PerHour: 100, PerDay: 1000})
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, l.Check(ctx, "cred-1", nil))

	minTTL := mr.TTL(l.key("cred-1", WindowMinute, now))
	assert.Greater(t, minTTL, time.Duration(0))
	assert.LessOrEqual(t, minTTL, time.Minute)
	assert.Equal(t, 24*time.Hour, mr.TTL(l.key("cred-1", WindowDay, now)))
}

func TestCheckReportsLargestViolatedWindow(t *testing.T) {
	l, _ := newTestLimiter(t, Limits{PerMinute: 1, PerHour: 100, PerDay: 1})
	ctx := context.Background()

	require.NoError(t, l.Check(ctx, "cred-1", nil))

	var le *LimitedError
	require.ErrorAs(t, l.Check(ctx, "cred-1", nil), &le)
	assert.Equal(t, WindowDay, le.Window)
}

func TestCheckAppliesCredentialOverrides(t *testing.T) {
	l, _ := newTestLimiter(t, Limits{PerMinute: 100, PerHour: 100, PerDay: 1000})
	ctx := context.Background()

	require.NoError(t, l.Check(ctx, "cred-1", &Limits{PerDay: 1}))

	var le *LimitedError
	require.ErrorAs(t, l.Check(ctx, "cred-1", &Limits{PerDay: 1}), &le)
	assert.Equal(t, WindowDay, le.Window)
}

func TestCheckFailsOpenWhenRedisDown(t *testing.T) {
	l, mr := newTestLimiter(t, Limits{PerMinute: 1, PerHour: 1, PerDay: 1})
	mr.Close()

	assert.NoError(t, l.Check(context.Background(), "cred-1", nil))
}

func TestResolveOverrides(t *testing.T) {
	l := New(nil, Limits{PerMinute: 100, PerHour: 1000, PerDay: 10000}, zap.NewNop())

	assert.Equal(t, Limits{100, 1000, 10000}, l.resolve(nil))
	assert.Equal(t, Limits{5, 1000, 10000}, l.resolve(&Limits{PerMinute: 5}))
	assert.Equal(t, Limits{5, 50, 500}, l.resolve(&Limits{PerMinute: 5, PerHour: 50, PerDay: 500}))
	// zero-valued overrides keep the defaults
	assert.Equal(t, Limits{100, 1000, 10000}, l.resolve(&Limits{}))
}

func TestWindowKeysBucketTime(t *testing.T) {
	l := New(nil, Limits{}, zap.NewNop())
	base := time.Date(2025, 6, 1, 12, 30, 15, 0, time.UTC)

	// same minute bucket
	assert.Equal(t,
		l.key("k1", WindowMinute, base),
		l.key("k1", WindowMinute, base.Add(40*time.Second)),
	)
	// next minute is a new bucket
	assert.NotEqual(t,
		l.key("k1", WindowMinute, base),
		l.key("k1", WindowMinute, base.Add(time.Minute)),
	)
	// hour bucket survives minute rollover
	assert.Equal(t,
		l.key("k1", WindowHour, base),
		l.key("k1", WindowHour, base.Add(20*time.Minute)),
	)
	// distinct credentials never share counters
	assert.NotEqual(t, l.key("k1", WindowDay, base), l.key("k2", WindowDay, base))
}

func TestRetryAfterBounded(t *testing.T) {
	l := New(nil, Limits{}, zap.NewNop())
	now := time.Date(2025, 6, 1, 12, 30, 15, 0, time.UTC)

	ra := l.retryAfter(WindowMinute, now)
	assert.Greater(t, ra, time.Duration(0))
	assert.LessOrEqual(t, ra, time.Minute)
	assert.Equal(t, 45*time.Second, ra)

	ra = l.retryAfter(WindowHour, now)
	assert.Equal(t, 29*time.Minute+45*time.Second, ra)
}

func TestLimitedErrorMessage(t *testing.T) {
	err := &LimitedError{Window: WindowMinute, RetryAfter: 12 * time.Second}
	assert.Contains(t, err.Error(), "minute")
	assert.Contains(t, err.Error(), "12s")
}

func TestWindowDurations(t *testing.T) {
	assert.Equal(t, time.Minute, WindowMinute.Duration())
	assert.Equal(t, time.Hour, WindowHour.Duration())
	assert.Equal(t, 24*time.Hour, WindowDay.Duration())
}
