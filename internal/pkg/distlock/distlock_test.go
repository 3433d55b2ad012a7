package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLocalLockMutualExclusion(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLock()

	ok, err := l.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("first Acquire = (%v, %v), want (true, nil)", ok, err)
	}

	ok, _ = l.Acquire(ctx)
	if ok {
		t.Error("second Acquire succeeded while lock held")
	}

	if err := l.Release(ctx); err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	ok, _ = l.Acquire(ctx)
	if !ok {
		t.Error("Acquire after Release should succeed")
	}
}

func TestRedisLockAcquireRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	l1 := NewRedisLock(client, "reminder-batch", time.Minute)
	l2 := NewRedisLock(client, "reminder-batch", time.Minute)

	ok, err := l1.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("l1.Acquire = (%v, %v), want (true, nil)", ok, err)
	}

	ok, err = l2.Acquire(ctx)
	if err != nil {
		t.Fatalf("l2.Acquire error: %v", err)
	}
	if ok {
		t.Error("l2 acquired a lock already held by l1")
	}

	// l2 must not be able to release l1's lock
	if err := l2.Release(ctx); err != nil {
		t.Fatalf("l2.Release error: %v", err)
	}
	ok, _ = l2.Acquire(ctx)
	if ok {
		t.Error("l2 acquired after releasing a lock it did not own")
	}

	if err := l1.Release(ctx); err != nil {
		t.Fatalf("l1.Release error: %v", err)
	}
	ok, _ = l2.Acquire(ctx)
	if !ok {
		t.Error("l2 should acquire after l1 released")
	}
}

func TestRedisLockExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	l1 := NewRedisLock(client, "reminder-batch", time.Second)
	if ok, _ := l1.Acquire(ctx); !ok {
		t.Fatal("l1.Acquire failed")
	}

	mr.FastForward(2 * time.Second)

	l2 := NewRedisLock(client, "reminder-batch", time.Second)
	if ok, _ := l2.Acquire(ctx); !ok {
		t.Error("l2 should acquire after TTL expiry")
	}
}
