package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, max int) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return New(rdb, Config{MaxFailedSignIns: max, Cooldown: time.Minute, Prefix: "thr", Namespace: "pool:client"}), mr
}

func TestLimiterBlocksAfterBudget(t *testing.T) {
	l, mr := newTestLimiter(t, 3)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		if err := l.Check(ctx, "alice"); err != nil {
			t.Fatalf("check %d: unexpected error %v", i, err)
		}
		if n, err := l.RecordFailure(ctx, "alice"); err != nil || n != i {
			t.Fatalf("record %d: got (%d, %v)", i, n, err)
		}
	}
	if n, err := l.RecordFailure(ctx, "alice"); !errors.Is(err, ErrRateLimited) || n != 3 {
		t.Fatalf("expected limit on third failure, got (%d, %v)", n, err)
	}
	if err := l.Check(ctx, "alice"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.Check(ctx, "bob"); err != nil {
		t.Fatalf("other users must not be limited: %v", err)
	}

	if ttl := mr.TTL("thr:pool:client:alice"); ttl != time.Minute {
		t.Fatalf("expected window TTL of one minute, got %v", ttl)
	}
	mr.FastForward(time.Minute + time.Second)
	if err := l.Check(ctx, "alice"); err != nil {
		t.Fatalf("expected window to expire, got %v", err)
	}
}

func TestLimiterResetClearsCounter(t *testing.T) {
	l, _ := newTestLimiter(t, 2)
	ctx := context.Background()

	if _, err := l.RecordFailure(ctx, "alice"); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if err := l.Reset(ctx, "alice"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if n, err := l.Failures(ctx, "alice"); err != nil || n != 0 {
		t.Fatalf("expected zero failures, got (%d, %v)", n, err)
	}
}

func TestLimiterReportsRedisFailure(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	l := New(rdb, Config{MaxFailedSignIns: 2, Cooldown: time.Minute, Prefix: "thr", Namespace: "pool:client"})
	mr.Close()

	if err := l.Check(context.Background(), "alice"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
	if _, err := l.RecordFailure(context.Background(), "alice"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestNilLimiterAllows(t *testing.T) {
	var l *Limiter
	ctx := context.Background()
	if err := l.Check(ctx, "alice"); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if _, err := l.RecordFailure(ctx, "alice"); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if err := l.Reset(ctx, "alice"); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}
