package utils

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestAcquireConcurrencyCap_EnforcesLimit(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := AcquireConcurrencyCap(ctx, rdb, "calls:w1", 2, time.Minute)
		if err != nil {
			t.Fatalf("acquire %d failed: %v", i, err)
		}
		if !ok {
			t.Fatalf("expected acquire %d to succeed", i)
		}
	}

	ok, err := AcquireConcurrencyCap(ctx, rdb, "calls:w1", 2, time.Minute)
	if err != nil {
		t.Fatalf("acquire over limit errored: %v", err)
	}
	if ok {
		t.Fatalf("expected acquire over limit to be rejected")
	}

	// Different keys do not contend.
	ok, err = AcquireConcurrencyCap(ctx, rdb, "calls:w2", 2, time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected independent key to acquire, ok=%v err=%v", ok, err)
	}
}

func TestReleaseConcurrencyCap_FreesSlot(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()

	if ok, err := AcquireConcurrencyCap(ctx, rdb, "calls:w1", 1, time.Minute); err != nil || !ok {
		t.Fatalf("expected first acquire, ok=%v err=%v", ok, err)
	}
	if ok, _ := AcquireConcurrencyCap(ctx, rdb, "calls:w1", 1, time.Minute); ok {
		t.Fatalf("expected second acquire to be rejected")
	}

	if err := ReleaseConcurrencyCap(ctx, rdb, "calls:w1"); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	if ok, err := AcquireConcurrencyCap(ctx, rdb, "calls:w1", 1, time.Minute); err != nil || !ok {
		t.Fatalf("expected acquire after release, ok=%v err=%v", ok, err)
	}
}

func TestAcquireConcurrencyCap_ValidatesArgs(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()

	if _, err := AcquireConcurrencyCap(ctx, nil, "k", 1, time.Minute); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if _, err := AcquireConcurrencyCap(ctx, rdb, "", 1, time.Minute); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if _, err := AcquireConcurrencyCap(ctx, rdb, "k", 0, time.Minute); err == nil {
		t.Fatalf("expected error for zero limit")
	}
	if _, err := AcquireConcurrencyCap(ctx, rdb, "k", 1, 0); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
}
