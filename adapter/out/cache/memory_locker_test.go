package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryLockerSingleFlight(t *testing.T) {
	l := NewMemoryLocker()
	user := uuid.New()
	ctx := context.Background()

	ok, err := l.Acquire(ctx, user, time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire = (%v, %v), want (true, nil)", ok, err)
	}

	ok, err = l.Acquire(ctx, user, time.Minute)
	if err != nil || ok {
		t.Fatalf("second acquire = (%v, %v), want (false, nil)", ok, err)
	}

	other := uuid.New()
	ok, _ = l.Acquire(ctx, other, time.Minute)
	if !ok {
		t.Error("lock for one user blocked another user")
	}

	if err := l.Release(ctx, user); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, _ = l.Acquire(ctx, user, time.Minute)
	if !ok {
		t.Error("acquire after release = false, want true")
	}
}

func TestMemoryLockerTTLExpiry(t *testing.T) {
	l := NewMemoryLocker()
	user := uuid.New()
	ctx := context.Background()

	now := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	l.clock = func() time.Time { return now }

	if ok, _ := l.Acquire(ctx, user, time.Minute); !ok {
		t.Fatal("initial acquire failed")
	}

	now = now.Add(30 * time.Second)
	if ok, _ := l.Acquire(ctx, user, time.Minute); ok {
		t.Error("acquire before expiry = true, want false")
	}

	now = now.Add(31 * time.Second)
	if ok, _ := l.Acquire(ctx, user, time.Minute); !ok {
		t.Error("acquire after expiry = false, want true")
	}
}
