package quota

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"serotonyl.ru/hacker-bot/internal/common"
)

// memStore — окна в памяти. Чтение и запись окна разнесены по разным
// критическим секциям, так что атомарность даёт только блокировка сервиса.
type memStore struct {
	mu      sync.Mutex
	windows map[Key]Window
	events  int
	fail    int

	releasedAt []time.Time
}

func newMemStore() *memStore {
	return &memStore{windows: make(map[Key]Window)}
}

func (m *memStore) CheckAndRecord(_ context.Context, key Key, limit int, period time.Duration, now time.Time) (Decision, error) {
	m.mu.Lock()
	if m.fail > 0 {
		m.fail--
		m.mu.Unlock()
		return Decision{}, common.ErrStorageUnavailable
	}
	w := m.windows[key]
	m.mu.Unlock()

	runtime.Gosched()
	next, d := w.Advance(now, limit, period)

	m.mu.Lock()
	defer m.mu.Unlock()
	if d.Allowed {
		m.windows[key] = next
		m.events++
	}
	return d, nil
}

func (m *memStore) Release(_ context.Context, key Key, windowStart, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[key]
	if !ok || !w.Start.Equal(windowStart) || w.Count == 0 {
		return nil
	}
	m.releasedAt = append(m.releasedAt, now)
	w.Count--
	m.windows[key] = w
	return nil
}

func (m *memStore) Get(_ context.Context, key Key) (Window, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[key]
	return w, ok, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(store Store) (*Service, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewService(store, common.NewKeyedMutex[string](), Options{
		Timeout: time.Second,
		Retry:   common.RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond},
		Clock:   clock.Now,
	})
	return svc, clock
}

func TestQuotaDeniesAfterLimit(t *testing.T) {
	svc, clock := newTestService(newMemStore())
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		d, err := svc.CheckAndRecord(ctx, 1, "exploit", 5, 24*time.Hour)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if !d.Allowed || d.Count != i {
			t.Fatalf("call %d: decision = %+v", i, d)
		}
		clock.Advance(time.Minute)
	}

	d, err := svc.CheckAndRecord(ctx, 1, "exploit", 5, 24*time.Hour)
	if err != nil {
		t.Fatalf("6th call: %v", err)
	}
	if d.Allowed {
		t.Fatal("6th call allowed")
	}
	if want := 24*time.Hour - 5*time.Minute; d.RetryAfter != want {
		t.Fatalf("retry_after = %s, want %s", d.RetryAfter, want)
	}
}

func TestQuotaResetsAfterPeriod(t *testing.T) {
	svc, clock := newTestService(newMemStore())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := svc.CheckAndRecord(ctx, 1, "exploit", 5, 24*time.Hour); err != nil {
			t.Fatalf("CheckAndRecord: %v", err)
		}
	}
	if d, _ := svc.CheckAndRecord(ctx, 1, "exploit", 5, 24*time.Hour); d.Allowed {
		t.Fatal("call over limit allowed")
	}

	clock.Advance(24 * time.Hour)
	d, err := svc.CheckAndRecord(ctx, 1, "exploit", 5, 24*time.Hour)
	if err != nil {
		t.Fatalf("CheckAndRecord: %v", err)
	}
	if !d.Allowed || d.Count != 1 || !d.WindowStart.Equal(clock.Now()) {
		t.Fatalf("decision after period = %+v", d)
	}
}

func TestWindowIsRollingNotCalendar(t *testing.T) {
	svc, clock := newTestService(newMemStore())
	ctx := context.Background()
	clock.now = time.Date(2024, 5, 1, 23, 50, 0, 0, time.UTC)

	if _, err := svc.CheckAndRecord(ctx, 1, "spam", 1, 24*time.Hour); err != nil {
		t.Fatalf("CheckAndRecord: %v", err)
	}

	// полночь прошла, но 24 часа с начала окна ещё нет
	clock.Advance(20 * time.Minute)
	d, _ := svc.CheckAndRecord(ctx, 1, "spam", 1, 24*time.Hour)
	if d.Allowed {
		t.Fatal("window reset at midnight")
	}
	if want := 24*time.Hour - 20*time.Minute; d.RetryAfter != want {
		t.Fatalf("retry_after = %s, want %s", d.RetryAfter, want)
	}
}

func TestConcurrentCallsAllowExactlyLimit(t *testing.T) {
	const (
		limit   = 5
		callers = 40
	)
	svc, _ := newTestService(newMemStore())
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			d, err := svc.CheckAndRecord(ctx, 3, "quiz", limit, time.Hour)
			if err != nil {
				t.Errorf("CheckAndRecord: %v", err)
				return
			}
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	if allowed != limit {
		t.Fatalf("allowed = %d, want %d", allowed, limit)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	svc, _ := newTestService(newMemStore())
	ctx := context.Background()

	if _, err := svc.CheckAndRecord(ctx, 1, "spam", 1, time.Hour); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		account int64
		command string
		allowed bool
	}{
		{"same key", 1, "spam", false},
		{"other command", 1, "exploit", true},
		{"other account", 2, "spam", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := svc.CheckAndRecord(ctx, tt.account, tt.command, 1, time.Hour)
			if err != nil {
				t.Fatalf("CheckAndRecord: %v", err)
			}
			if d.Allowed != tt.allowed {
				t.Fatalf("allowed = %v, want %v", d.Allowed, tt.allowed)
			}
		})
	}
}

func TestRequireReturnsExceededError(t *testing.T) {
	svc, _ := newTestService(newMemStore())
	ctx := context.Background()

	if _, err := svc.Require(ctx, 1, "cryptohack", 1, time.Hour); err != nil {
		t.Fatalf("first Require: %v", err)
	}
	_, err := svc.Require(ctx, 1, "cryptohack", 1, time.Hour)
	if !errors.Is(err, common.ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}
	var exceeded *ExceededError
	if !errors.As(err, &exceeded) || exceeded.RetryAfter != time.Hour {
		t.Fatalf("exceeded = %+v", exceeded)
	}
	if !strings.Contains(FormatExceeded(exceeded), "1h 00m") {
		t.Errorf("message = %q", FormatExceeded(exceeded))
	}
}

func TestReleaseReturnsSlot(t *testing.T) {
	store := newMemStore()
	svc, clock := newTestService(store)
	ctx := context.Background()

	d, err := svc.CheckAndRecord(ctx, 1, "exploit", 1, time.Hour)
	if err != nil || !d.Allowed {
		t.Fatalf("first call: %+v, %v", d, err)
	}
	if err := svc.Release(ctx, 1, "exploit", d.WindowStart); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if again, _ := svc.CheckAndRecord(ctx, 1, "exploit", 1, time.Hour); !again.Allowed {
		t.Fatal("slot was not returned")
	}
	if len(store.releasedAt) != 1 || !store.releasedAt[0].Equal(clock.Now()) {
		t.Fatalf("release stamped with %v, want service clock %v", store.releasedAt, clock.Now())
	}

	// Release старого окна не трогает новое
	clock.Advance(2 * time.Hour)
	fresh, _ := svc.CheckAndRecord(ctx, 1, "exploit", 1, time.Hour)
	if err := svc.Release(ctx, 1, "exploit", d.WindowStart); err != nil {
		t.Fatalf("stale Release: %v", err)
	}
	st, _ := svc.Status(ctx, 1, "exploit", 1, time.Hour)
	if st.Used != 1 || !fresh.Allowed {
		t.Fatalf("status after stale release = %+v", st)
	}
}

func TestStatusDoesNotRecord(t *testing.T) {
	store := newMemStore()
	svc, clock := newTestService(store)
	ctx := context.Background()

	st, err := svc.Status(ctx, 1, "quiz", 3, 24*time.Hour)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Remaining() != 3 || st.ResetIn != 0 {
		t.Fatalf("empty status = %+v", st)
	}

	if _, err := svc.CheckAndRecord(ctx, 1, "quiz", 3, 24*time.Hour); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Hour)
	st, _ = svc.Status(ctx, 1, "quiz", 3, 24*time.Hour)
	if st.Remaining() != 2 || st.ResetIn != 23*time.Hour {
		t.Fatalf("status = %+v", st)
	}
	if store.events != 1 {
		t.Fatalf("events = %d, want 1", store.events)
	}
}

func TestCheckAndRecordRetriesStorageFaults(t *testing.T) {
	store := newMemStore()
	store.fail = 2
	svc, _ := newTestService(store)

	d, err := svc.CheckAndRecord(context.Background(), 1, "spam", 2, time.Hour)
	if err != nil || !d.Allowed {
		t.Fatalf("decision = %+v, err = %v", d, err)
	}

	store.fail = 10
	_, err = svc.CheckAndRecord(context.Background(), 1, "spam", 2, time.Hour)
	if !errors.Is(err, common.ErrStorageUnavailable) {
		t.Fatalf("err = %v, want ErrStorageUnavailable", err)
	}
}

func TestCheckAndRecordRejectsInvalidQuota(t *testing.T) {
	svc, _ := newTestService(newMemStore())
	if _, err := svc.CheckAndRecord(context.Background(), 1, "spam", 0, time.Hour); !errors.Is(err, common.ErrInvalidQuota) {
		t.Fatalf("err = %v, want ErrInvalidQuota", err)
	}
}

func TestWindowAdvance(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		window    Window
		now       time.Time
		allowed   bool
		count     int
		start     time.Time
		retryWant time.Duration
	}{
		{"no window", Window{}, base, true, 1, base, 0},
		{"inside window", Window{Start: base, Count: 2}, base.Add(time.Hour), true, 3, base, 0},
		{"at limit", Window{Start: base, Count: 3}, base.Add(time.Hour), false, 3, base, 23 * time.Hour},
		{"exactly at period", Window{Start: base, Count: 3}, base.Add(24 * time.Hour), true, 1, base.Add(24 * time.Hour), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, d := tt.window.Advance(tt.now, 3, 24*time.Hour)
			if d.Allowed != tt.allowed || d.Count != tt.count || !d.WindowStart.Equal(tt.start) || d.RetryAfter != tt.retryWant {
				t.Fatalf("decision = %+v", d)
			}
			if d.Allowed && (next.Count != tt.count || !next.Start.Equal(tt.start)) {
				t.Fatalf("next window = %+v", next)
			}
		})
	}
}
