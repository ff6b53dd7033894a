package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewLimiter(client, zap.NewNop()), mr
}

func TestAllowWithinLimit(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:test:", Limit: 3, Window: time.Minute}

	for i := 1; i <= 3; i++ {
		ok, err := l.Allow(ctx, "user-1", rule)
		if err != nil {
			t.Fatalf("Allow() #%d error: %v", i, err)
		}
		if !ok {
			t.Fatalf("Allow() #%d = false, want true", i)
		}
	}

	ok, _ := l.Allow(ctx, "user-1", rule)
	if ok {
		t.Fatal("4th call should be rate limited")
	}

	// Other identifiers have their own window.
	if ok, _ := l.Allow(ctx, "user-2", rule); !ok {
		t.Fatal("separate identifier should be allowed")
	}
}

func TestWindowExpires(t *testing.T) {
	l, mr := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:test:", Limit: 1, Window: 10 * time.Second}

	l.Allow(ctx, "a", rule)
	if ok, _ := l.Allow(ctx, "a", rule); ok {
		t.Fatal("expected limit")
	}

	mr.FastForward(11 * time.Second)

	if ok, _ := l.Allow(ctx, "a", rule); !ok {
		t.Fatal("expected window to reset after TTL")
	}
}

func TestReset(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:test:", Limit: 2, Window: time.Minute}

	l.Allow(ctx, "x", rule)
	l.Allow(ctx, "x", rule)
	if ok, _ := l.Allow(ctx, "x", rule); ok {
		t.Fatal("third call should be limited")
	}
	if err := l.Reset(ctx, "x", rule); err != nil {
		t.Fatal(err)
	}
	if ok, _ := l.Allow(ctx, "x", rule); !ok {
		t.Fatal("expected a fresh window after Reset")
	}
}

func TestAllowFailsOpen(t *testing.T) {
	l, mr := newTestLimiter(t)
	mr.Close()

	ok, err := l.Allow(context.Background(), "y", RuleChatMessage)
	if !ok {
		t.Fatal("limiter must fail open when Redis is down")
	}
	if err == nil {
		t.Fatal("expected the Redis error to be returned")
	}
}
