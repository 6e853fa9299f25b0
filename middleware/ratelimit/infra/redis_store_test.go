package infra

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/kruger4712/MealPrep-sub003/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// Testes de integração: rodam só com um Redis de verdade apontado por
// REDIS_ADDR (ex: REDIS_ADDR=localhost:6379 go test ./...).
func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping redis integration test")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis at %s not reachable: %v", addr, err)
	}

	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func testKey(t *testing.T) string {
	return fmt.Sprintf("test:%s:%d", t.Name(), time.Now().UnixNano())
}

func TestRedisWindowStore_AdmitsUpToLimitThenDenies(t *testing.T) {
	rdb := newTestRedis(t)
	store := NewRedisWindowStore(rdb, WithCallTimeout(500*time.Millisecond))
	ctx := context.Background()
	key := testKey(t)

	for i := 0; i < 3; i++ {
		res, err := store.CheckAndRecord(ctx, key, 3, time.Minute, time.Now())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.Admitted {
			t.Fatalf("request %d should be admitted", i+1)
		}
		if res.Member == "" {
			t.Fatalf("admitted result must carry a member for rollback")
		}
	}

	res, err := store.CheckAndRecord(ctx, key, 3, time.Minute, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Admitted {
		t.Fatalf("fourth request must be denied")
	}
	if res.Count != 3 {
		t.Fatalf("denied request must not be recorded, count=%d", res.Count)
	}
	if res.Earliest.IsZero() {
		t.Fatalf("denial must report the earliest live entry")
	}
	if res.StoreNow.IsZero() {
		t.Fatalf("result must carry the store's time")
	}
}

func TestRedisWindowStore_RemoveReopensSlot(t *testing.T) {
	rdb := newTestRedis(t)
	store := NewRedisWindowStore(rdb, WithCallTimeout(500*time.Millisecond))
	ctx := context.Background()
	key := testKey(t)

	res, err := store.CheckAndRecord(ctx, key, 1, time.Minute, time.Now())
	if err != nil || !res.Admitted {
		t.Fatalf("expected admission, got %+v (%v)", res, err)
	}

	if err := store.Remove(ctx, key, res.Member); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err = store.CheckAndRecord(ctx, key, 1, time.Minute, time.Now())
	if err != nil || !res.Admitted {
		t.Fatalf("expected admission after rollback, got %+v (%v)", res, err)
	}
}

func TestRedisWindowStore_UnreachableServerWrapsStoreError(t *testing.T) {
	// porta sem ninguém escutando
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	t.Cleanup(func() { _ = rdb.Close() })

	store := NewRedisWindowStore(rdb, WithCallTimeout(200*time.Millisecond))
	_, err := store.CheckAndRecord(context.Background(), "k", 1, time.Minute, time.Now())
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestRedisWindowStore_EmptyKeyIsRejected(t *testing.T) {
	store := NewRedisWindowStore(nil)
	if _, err := store.CheckAndRecord(context.Background(), "", 1, time.Minute, time.Now()); !errors.Is(err, domain.ErrEmptyKey) {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
	if err := store.Remove(context.Background(), "", "m"); !errors.Is(err, domain.ErrEmptyKey) {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
}

func TestParseWindowReply(t *testing.T) {
	admitted, count, earliest, now, err := parseWindowReply([]interface{}{int64(1), int64(4), int64(1000), int64(2000)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !admitted || count != 4 || earliest != 1000 || now != 2000 {
		t.Fatalf("unexpected parse: %v %d %d %d", admitted, count, earliest, now)
	}

	if _, _, _, _, err := parseWindowReply("nope"); err == nil {
		t.Fatalf("expected error for malformed reply")
	}
	if _, _, _, _, err := parseWindowReply([]interface{}{int64(1)}); err == nil {
		t.Fatalf("expected error for short reply")
	}
}
