package ledger

import (
	"context"
	"errors"
	"math/rand"
	"runtime"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"serotonyl.ru/hacker-bot/internal/common"
)

// memStore — хранилище в памяти. Проверка баланса и запись намеренно
// разнесены по разным критическим секциям: без внешней сериализации по
// аккаунту параллельные списания могли бы увести баланс в минус.
type memStore struct {
	mu       sync.Mutex
	balances map[int64]int64
	entries  map[int64][]*Entry

	failApply int // столько ближайших Apply вернут ErrStorageUnavailable
	calls     int
	block     map[int64]chan struct{}
	extra     []*Discrepancy
}

func newMemStore() *memStore {
	return &memStore{
		balances: make(map[int64]int64),
		entries:  make(map[int64][]*Entry),
		block:    make(map[int64]chan struct{}),
	}
}

func (m *memStore) Apply(ctx context.Context, accountID, amount int64, reason Reason, ref string) (*Entry, error) {
	m.mu.Lock()
	m.calls++
	if m.failApply > 0 {
		m.failApply--
		m.mu.Unlock()
		return nil, common.ErrStorageUnavailable
	}
	wait := m.block[accountID]
	balance := m.balances[accountID]
	m.mu.Unlock()

	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, common.ErrStorageUnavailable
		}
	}
	runtime.Gosched()

	next := balance + amount
	if next < 0 {
		return nil, common.ErrInsufficientFunds
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[accountID] = next
	e := &Entry{
		ID:           uuid.New(),
		AccountID:    accountID,
		Amount:       amount,
		Reason:       reason,
		Ref:          ref,
		BalanceAfter: next,
		CreatedAt:    time.Now(),
	}
	m.entries[accountID] = append(m.entries[accountID], e)
	return e, nil
}

func (m *memStore) Balance(_ context.Context, accountID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[accountID], nil
}

func (m *memStore) Entries(_ context.Context, accountID int64, limit int) ([]*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.entries[accountID]
	out := make([]*Entry, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (m *memStore) Top(_ context.Context, limit int) ([]*Holder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Holder
	for id, b := range m.balances {
		out = append(out, &Holder{UserID: id, Balance: b})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Balance > out[j].Balance })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) Discrepancies(context.Context) ([]*Discrepancy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]*Discrepancy(nil), m.extra...)
	for id, b := range m.balances {
		var sum int64
		for _, e := range m.entries[id] {
			sum += e.Amount
		}
		if sum != b || b < 0 {
			out = append(out, &Discrepancy{AccountID: id, Balance: b, EntriesSum: sum})
		}
	}
	return out, nil
}

func (m *memStore) sum(accountID int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, e := range m.entries[accountID] {
		sum += e.Amount
	}
	return sum
}

func newTestService(store Store) *Service {
	return NewService(store, common.NewKeyedMutex[int64](), Options{
		Timeout: time.Second,
		Retry:   common.RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond},
	})
}

func TestApplyCreditFromZero(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ctx := context.Background()

	balance, err := svc.Apply(ctx, 1, 10, ReasonDailyBonus, "")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if balance != 10 {
		t.Fatalf("balance = %d, want 10", balance)
	}

	entries, _ := svc.History(ctx, 1, 10)
	if len(entries) != 1 || entries[0].Amount != 10 || entries[0].Reason != ReasonDailyBonus {
		t.Fatalf("entries = %+v, want one +10 daily_bonus", entries)
	}
}

func TestApplyOverdraftIsRejected(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ctx := context.Background()

	if _, err := svc.Apply(ctx, 1, 30, ReasonAdminAdjust, "seed"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := svc.Apply(ctx, 1, -50, ReasonExploitPurchase, "")
	if !errors.Is(err, common.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	balance, _ := svc.BalanceOf(ctx, 1)
	if balance != 30 {
		t.Fatalf("balance = %d, want 30", balance)
	}
	if entries, _ := svc.History(ctx, 1, 10); len(entries) != 1 {
		t.Fatalf("rejected spend left an entry: %d entries", len(entries))
	}
}

func TestConcurrentSpendsNeverOverdraw(t *testing.T) {
	const (
		startBalance = 20
		spenders     = 50
	)
	store := newMemStore()
	svc := newTestService(store)
	ctx := context.Background()

	if _, err := svc.Apply(ctx, 7, startBalance, ReasonAdminAdjust, "seed"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		ok, declined int
	)
	start := make(chan struct{})
	for i := 0; i < spenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Apply(ctx, 7, -1, ReasonSpamBlast, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, common.ErrInsufficientFunds):
				declined++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if ok != startBalance || declined != spenders-startBalance {
		t.Fatalf("successes=%d declined=%d, want %d/%d", ok, declined, startBalance, spenders-startBalance)
	}
	balance, _ := svc.BalanceOf(ctx, 7)
	if balance != 0 {
		t.Fatalf("balance = %d, want 0", balance)
	}
	if sum := store.sum(7); sum != balance {
		t.Fatalf("sum(entries) = %d, balance = %d", sum, balance)
	}
}

func TestBalanceEqualsSumOfEntries(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	reasons := []Reason{ReasonDailyBonus, ReasonCryptoHack, ReasonExploitPurchase, ReasonFollowerBoost}
	for i := 0; i < 500; i++ {
		account := int64(rng.Intn(3) + 1)
		amount := int64(rng.Intn(41) - 20)
		if amount == 0 {
			continue
		}
		_, err := svc.Apply(ctx, account, amount, reasons[rng.Intn(len(reasons))], "")
		if err != nil && !errors.Is(err, common.ErrInsufficientFunds) {
			t.Fatalf("Apply: %v", err)
		}

		balance, _ := svc.BalanceOf(ctx, account)
		if balance < 0 {
			t.Fatalf("balance went negative: %d", balance)
		}
		if sum := store.sum(account); sum != balance {
			t.Fatalf("step %d: sum(entries) = %d, balance = %d", i, sum, balance)
		}
	}

	found, err := svc.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("unexpected discrepancies: %+v", found)
	}
}

func TestApplyRetriesStorageFaults(t *testing.T) {
	t.Run("recovers within attempts", func(t *testing.T) {
		store := newMemStore()
		store.failApply = 2
		svc := newTestService(store)

		balance, err := svc.Apply(context.Background(), 1, 5, ReasonQuizReward, "")
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		if balance != 5 || store.calls != 3 {
			t.Fatalf("balance=%d calls=%d, want 5/3", balance, store.calls)
		}
	})

	t.Run("gives up after attempts", func(t *testing.T) {
		store := newMemStore()
		store.failApply = 10
		svc := newTestService(store)

		_, err := svc.Apply(context.Background(), 1, 5, ReasonQuizReward, "")
		if !errors.Is(err, common.ErrStorageUnavailable) {
			t.Fatalf("err = %v, want ErrStorageUnavailable", err)
		}
		if store.calls != 3 {
			t.Fatalf("calls = %d, want 3", store.calls)
		}
		if b, _ := svc.BalanceOf(context.Background(), 1); b != 0 {
			t.Fatalf("balance = %d after failed apply", b)
		}
	})

	t.Run("insufficient funds is not retried", func(t *testing.T) {
		store := newMemStore()
		svc := newTestService(store)

		_, err := svc.Apply(context.Background(), 1, -1, ReasonSpamBlast, "")
		if !errors.Is(err, common.ErrInsufficientFunds) {
			t.Fatalf("err = %v", err)
		}
		if store.calls != 1 {
			t.Fatalf("calls = %d, want 1", store.calls)
		}
	})
}

func TestApplyValidatesInput(t *testing.T) {
	svc := newTestService(newMemStore())

	if _, err := svc.Apply(context.Background(), 1, 0, ReasonDailyBonus, ""); !errors.Is(err, common.ErrInvalidAmount) {
		t.Errorf("zero amount: err = %v", err)
	}
	if _, err := svc.Apply(context.Background(), 1, 5, Reason("lottery"), ""); !errors.Is(err, common.ErrInvalidReason) {
		t.Errorf("unknown reason: err = %v", err)
	}
}

func TestDifferentAccountsDoNotBlock(t *testing.T) {
	store := newMemStore()
	release := make(chan struct{})
	store.block[1] = release
	svc := newTestService(store)
	ctx := context.Background()

	blocked := make(chan error, 1)
	go func() {
		_, err := svc.Apply(ctx, 1, 10, ReasonDailyBonus, "")
		blocked <- err
	}()

	done := make(chan error, 1)
	go func() {
		_, err := svc.Apply(ctx, 2, 10, ReasonDailyBonus, "")
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Apply on account 2: %v", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Apply on account 2 waited for account 1")
	}

	close(release)
	if err := <-blocked; err != nil {
		t.Fatalf("Apply on account 1: %v", err)
	}
}

func TestReconcileReportsDiscrepancies(t *testing.T) {
	store := newMemStore()
	store.extra = []*Discrepancy{{AccountID: 9, Balance: 100, EntriesSum: 90}}
	svc := newTestService(store)

	found, err := svc.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(found) != 1 || found[0].AccountID != 9 {
		t.Fatalf("found = %+v", found)
	}
}

func TestBalanceOfRejectsNegativeBalance(t *testing.T) {
	store := newMemStore()
	store.balances[3] = -5
	svc := newTestService(store)

	if _, err := svc.BalanceOf(context.Background(), 3); !errors.Is(err, common.ErrInvariantViolation) {
		t.Fatalf("err = %v, want ErrInvariantViolation", err)
	}
}

func TestFormatLeaderboard(t *testing.T) {
	out := FormatLeaderboard([]*Holder{
		{UserID: 1, Username: "neo", Balance: 1200},
		{UserID: 2, Balance: 1},
	})
	for _, want := range []string{"1. @neo: 1,200 credits", "2. n/a: 1 credit"} {
		if !strings.Contains(out, want) {
			t.Errorf("leaderboard missing %q:\n%s", want, out)
		}
	}
	if got := FormatLeaderboard(nil); !strings.Contains(got, "empty") {
		t.Errorf("empty leaderboard = %q", got)
	}
}
