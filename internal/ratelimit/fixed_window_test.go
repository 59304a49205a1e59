package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestFixedWindowLimiterBlocksOverQuota(t *testing.T) {
	_, client := testClient(t)
	limiter, err := NewFixedWindowLimiter(client, "test:ratelimit", 2, time.Second)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	if !limiter.Allow("ip-1") {
		t.Fatalf("first request should pass")
	}
	if !limiter.Allow("ip-1") {
		t.Fatalf("second request should pass")
	}
	if limiter.Allow("ip-1") {
		t.Fatalf("third request should be blocked")
	}
	// Other keys keep their own window.
	if !limiter.Allow("ip-2") {
		t.Fatalf("unrelated key should pass")
	}
}

func TestFixedWindowLimiterSharedClientSeparatePrefixes(t *testing.T) {
	_, client := testClient(t)
	login, err := NewFixedWindowLimiter(client, "test:login", 1, time.Second)
	if err != nil {
		t.Fatalf("new login limiter: %v", err)
	}
	register, err := NewFixedWindowLimiter(client, "test:register", 1, time.Second)
	if err != nil {
		t.Fatalf("new register limiter: %v", err)
	}
	if !login.Allow("ip-1") {
		t.Fatalf("login request should pass")
	}
	if !register.Allow("ip-1") {
		t.Fatalf("register limiter must not share login counts")
	}
}

func TestFixedWindowLimiterFailClosed(t *testing.T) {
	mr, client := testClient(t)
	limiter, err := NewFixedWindowLimiter(client, "test:ratelimit", 1, time.Second)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	mr.Close()
	if limiter.Allow("ip-1") {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestFixedWindowLimiterNilAllows(t *testing.T) {
	var limiter *FixedWindowLimiter
	if !limiter.Allow("ip-1") {
		t.Fatalf("nil limiter should allow everything")
	}
}

func TestFixedWindowLimiterValidation(t *testing.T) {
	_, client := testClient(t)
	if _, err := NewFixedWindowLimiter(nil, "p", 1, time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if _, err := NewFixedWindowLimiter(client, "p", 0, time.Second); err == nil {
		t.Fatalf("expected error for zero limit")
	}
	if _, err := NewFixedWindowLimiter(client, "p", 1, 0); err == nil {
		t.Fatalf("expected error for zero window")
	}
}
