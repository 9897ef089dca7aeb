package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"serotonyl.ru/hacker-bot/internal/common"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, "test:"), mr
}

func TestRedisStoreAllowsExactlyLimit(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	key := Key{AccountID: 1, Command: "exploit"}
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 1; i <= 5; i++ {
		d, err := store.CheckAndRecord(ctx, key, 5, 24*time.Hour, start.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if !d.Allowed || d.Count != i {
			t.Fatalf("call %d: %+v", i, d)
		}
		if !d.WindowStart.Equal(start.Add(time.Minute)) {
			t.Fatalf("call %d: window start = %v", i, d.WindowStart)
		}
	}

	d, err := store.CheckAndRecord(ctx, key, 5, 24*time.Hour, start.Add(6*time.Minute))
	if err != nil {
		t.Fatalf("sixth call: %v", err)
	}
	if d.Allowed {
		t.Fatalf("sixth call allowed: %+v", d)
	}
	if want := 24*time.Hour - 5*time.Minute; d.RetryAfter != want {
		t.Fatalf("retry after = %v, want %v", d.RetryAfter, want)
	}

	w, ok, err := store.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Get: %v, ok=%v", err, ok)
	}
	if w.Count != 5 {
		t.Fatalf("denied call was recorded: count = %d", w.Count)
	}
}

func TestRedisStoreWindowResets(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	key := Key{AccountID: 2, Command: "quiz"}
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if _, err := store.CheckAndRecord(ctx, key, 3, time.Hour, start); err != nil {
			t.Fatal(err)
		}
	}
	if d, _ := store.CheckAndRecord(ctx, key, 3, time.Hour, start.Add(59*time.Minute)); d.Allowed {
		t.Fatalf("allowed before the period ended: %+v", d)
	}

	d, err := store.CheckAndRecord(ctx, key, 3, time.Hour, start.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed || d.Count != 1 || !d.WindowStart.Equal(start.Add(time.Hour)) {
		t.Fatalf("after period: %+v", d)
	}
}

func TestRedisStoreRelease(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	key := Key{AccountID: 3, Command: "spam"}
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	first, _ := store.CheckAndRecord(ctx, key, 5, time.Hour, start)
	if _, err := store.CheckAndRecord(ctx, key, 5, time.Hour, start.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := store.Release(ctx, key, first.WindowStart, start.Add(2*time.Minute)); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if w, _, _ := store.Get(ctx, key); w.Count != 1 {
		t.Fatalf("count after release = %d, want 1", w.Count)
	}

	// окно сменилось: возврат для старого окна игнорируется
	fresh, _ := store.CheckAndRecord(ctx, key, 5, time.Hour, start.Add(2*time.Hour))
	if err := store.Release(ctx, key, first.WindowStart, start.Add(2*time.Hour)); err != nil {
		t.Fatalf("stale Release: %v", err)
	}
	w, _, _ := store.Get(ctx, key)
	if w.Count != 1 || !w.Start.Equal(fresh.WindowStart) {
		t.Fatalf("stale release touched the new window: %+v", w)
	}

	// возврат в пустое окно не уводит счётчик в минус
	if err := store.Release(ctx, key, fresh.WindowStart, start.Add(2*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := store.Release(ctx, key, fresh.WindowStart, start.Add(2*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if w, _, _ := store.Get(ctx, key); w.Count != 0 {
		t.Fatalf("count = %d, want 0", w.Count)
	}
}

func TestRedisStoreKeyExpires(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	key := Key{AccountID: 4, Command: "boost"}

	if _, err := store.CheckAndRecord(ctx, key, 2, time.Hour, time.Now()); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL(store.key(key)); ttl != time.Hour {
		t.Fatalf("ttl = %v, want 1h", ttl)
	}
	mr.FastForward(time.Hour)
	if _, ok, err := store.Get(ctx, key); err != nil || ok {
		t.Fatalf("window still present after ttl: ok=%v err=%v", ok, err)
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()

	_, err := store.CheckAndRecord(context.Background(), Key{AccountID: 5, Command: "quiz"}, 3, time.Hour, time.Now())
	if !errors.Is(err, common.ErrStorageUnavailable) {
		t.Fatalf("err = %v, want ErrStorageUnavailable", err)
	}
}
