package common

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRetryPolicyRetriesOnlyStorageFaults(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCalls int
	}{
		{"storage fault is retried", fmt.Errorf("select: %w", ErrStorageUnavailable), 3},
		{"insufficient funds is returned at once", ErrInsufficientFunds, 1},
		{"quota exceeded is returned at once", ErrQuotaExceeded, 1},
		{"success stops immediately", nil, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond}
			calls := 0
			err := p.Do(context.Background(), "test", func(context.Context) error {
				calls++
				return tt.err
			})
			if calls != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if !errors.Is(err, tt.err) && !(err == nil && tt.err == nil) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
		})
	}
}

func TestRetryPolicyRecoversAfterTransientFault(t *testing.T) {
	var retries []int
	p := RetryPolicy{
		Attempts:  3,
		BaseDelay: time.Millisecond,
		OnRetry:   func(_ string, attempt int, _ error) { retries = append(retries, attempt) },
	}

	calls := 0
	err := p.Do(context.Background(), "test", func(context.Context) error {
		calls++
		if calls < 2 {
			return ErrStorageUnavailable
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
	if len(retries) != 1 || retries[0] != 1 {
		t.Fatalf("retries = %v, want [1]", retries)
	}
}

func TestRetryPolicyStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{Attempts: 5, BaseDelay: time.Hour}

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, "test", func(context.Context) error {
			calls++
			return ErrStorageUnavailable
		})
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrStorageUnavailable) {
			t.Fatalf("err = %v, want ErrStorageUnavailable", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancel")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	m := NewKeyedMutex[int64]()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock(42)
			defer unlock()

			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(100 * time.Microsecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Fatalf("max concurrent holders = %d, want 1", maxInside)
	}
	if m.Len() != 0 {
		t.Fatalf("lock map not cleaned up: %d keys", m.Len())
	}
}

func TestKeyedMutexDisjointKeysDoNotBlock(t *testing.T) {
	m := NewKeyedMutex[string]()

	unlockA := m.Lock("a")
	defer unlockA()

	acquired := make(chan struct{})
	go func() {
		unlock := m.Lock("b")
		unlock()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock on key b blocked by key a")
	}
}

func TestKeyedMutexLockManyIsOrderIndependent(t *testing.T) {
	m := NewKeyedMutex[int64]()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.LockMany(1, 2)()
		}()
		go func() {
			defer wg.Done()
			m.LockMany(2, 1, 2)()
		}()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("LockMany deadlocked")
	}
}

func TestFormatWait(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "1s"},
		{45 * time.Second, "45s"},
		{3*time.Minute + 5*time.Second, "3m 05s"},
		{23*time.Hour + 59*time.Minute + 30*time.Second, "23h 59m"},
	}
	for _, tt := range tests {
		if got := FormatWait(tt.in); got != tt.want {
			t.Errorf("FormatWait(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatCredits(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{1, "1 credit"},
		{0, "0 credits"},
		{2350, "2,350 credits"},
		{-50, "-50 credits"},
	}
	for _, tt := range tests {
		if got := FormatCredits(tt.in); got != tt.want {
			t.Errorf("FormatCredits(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := FormatCreditsDelta(10); got != "+10 credits" {
		t.Errorf("FormatCreditsDelta(10) = %q", got)
	}
}
