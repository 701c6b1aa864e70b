package intake

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisLockerExcludesAndReleases(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	locker := NewRedisLocker(client, time.Second)
	locker.retry = 5 * time.Millisecond

	release, err := locker.Lock(context.Background(), "5511999990000")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if !mr.Exists(lockKeyPrefix + "5511999990000") {
		t.Fatal("expected lease key")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(ctx, "5511999990000"); err == nil {
		t.Fatal("expected second lock to time out")
	}

	release()
	release()
	if mr.Exists(lockKeyPrefix + "5511999990000") {
		t.Fatal("expected lease key to be deleted")
	}

	release2, err := locker.Lock(context.Background(), "5511999990000")
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	release2()
}

func TestRedisLockerReleaseKeepsForeignLease(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	locker := NewRedisLocker(client, time.Second)

	release, err := locker.Lock(context.Background(), "p")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	// Simulate expiry and takeover by another holder.
	mr.Set(lockKeyPrefix+"p", "someone-else")
	release()

	got, err := mr.Get(lockKeyPrefix + "p")
	if err != nil || got != "someone-else" {
		t.Fatalf("foreign lease was released: %q %v", got, err)
	}
}

func TestLocalLockerSerializesPerPhone(t *testing.T) {
	locker := NewLocalLocker()
	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Lock(context.Background(), "same")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			release()
		}()
	}
	wg.Wait()
	if maxActive != 1 {
		t.Fatalf("expected at most one holder, saw %d", maxActive)
	}
	if len(locker.slots) != 0 {
		t.Fatalf("expected slots to be cleaned up, got %d", len(locker.slots))
	}
}

func TestLocalLockerHonorsContext(t *testing.T) {
	locker := NewLocalLocker()
	release, _ := locker.Lock(context.Background(), "p")
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := locker.Lock(ctx, "p"); err == nil {
		t.Fatal("expected cancelled context to fail")
	}

	other, err := locker.Lock(context.Background(), "q")
	if err != nil {
		t.Fatalf("different phone should not block: %v", err)
	}
	other()
}
