package redis

import (
	"context"
	"testing"
	"time"
)

func TestLockIsExclusiveUntilReleased(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	key := client.OrderLockKey("order-1")

	first, err := NewLock(client, key, time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	second, _ := NewLock(client, key, time.Minute)

	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first acquire should win, ok=%v err=%v", ok, err)
	}
	if ok, err := second.Acquire(ctx); err != nil || ok {
		t.Fatalf("second acquire should lose, ok=%v err=%v", ok, err)
	}
	if err := second.Release(ctx); err != nil {
		t.Fatalf("release by non-owner: %v", err)
	}
	if _, err := client.Get(ctx, key); err != nil {
		t.Fatalf("non-owner release must not delete the key: %v", err)
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, err := second.Acquire(ctx); err != nil || !ok {
		t.Fatalf("acquire after release should win, ok=%v err=%v", ok, err)
	}
}

func TestLockReleaseSkipsForeignOwner(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	lock, _ := NewLock(client, "ks:lock:job", time.Minute)
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatalf("expected acquire")
	}
	// simulate expiry followed by another owner
	if err := client.Set(ctx, "ks:lock:job", "someone-else", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if got, _ := client.Get(ctx, "ks:lock:job"); got != "someone-else" {
		t.Fatalf("foreign owner key must survive, got %q", got)
	}
}

func TestNewLockValidation(t *testing.T) {
	client := &Client{store: newMockCmdable()}
	if _, err := NewLock(nil, "k", time.Second); err == nil {
		t.Fatalf("expected error for nil store")
	}
	if _, err := NewLock(client, "", time.Second); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if _, err := NewLock(client, "k", 0); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
}
