package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"quiz-match-service/internal/domain"
)

func TestDirectoryPutGetDel(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	d := NewDirectory(newClient(mr), 0)
	ctx := context.Background()

	if err := d.Put(ctx, "match:m1", "payload", time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	value, ok, err := d.Get(ctx, "match:m1")
	if err != nil || !ok || value != "payload" {
		t.Fatalf("get: value=%q ok=%v err=%v", value, ok, err)
	}

	if err := d.Del(ctx, "match:m1"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, ok, _ := d.Get(ctx, "match:m1"); ok {
		t.Fatalf("key survived deletion")
	}
}

func TestDirectoryMissingKey(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	d := NewDirectory(newClient(mr), 0)
	_, ok, err := d.Get(context.Background(), "joinCode:NOSUCH")
	if err != nil {
		t.Fatalf("a missing key is not an error: %v", err)
	}
	if ok {
		t.Fatalf("missing key reported present")
	}
}

func TestDirectoryTTLExpiry(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	d := NewDirectory(newClient(mr), 0)
	ctx := context.Background()

	if err := d.Put(ctx, "joinCode:ABC123", "m1", time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, ok, _ := d.Get(ctx, "joinCode:ABC123"); ok {
		t.Fatalf("key survived its TTL")
	}
}

func TestDirectoryUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}

	d := NewDirectory(newClient(mr), time.Second)
	mr.Close()

	if _, _, err := d.Get(context.Background(), "match:m1"); !errors.Is(err, domain.ErrDirectoryUnavailable) {
		t.Fatalf("expected ErrDirectoryUnavailable, got %v", err)
	}
	if err := d.Put(context.Background(), "match:m1", "x", time.Minute); !errors.Is(err, domain.ErrDirectoryUnavailable) {
		t.Fatalf("expected ErrDirectoryUnavailable on put, got %v", err)
	}
}
