package social

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"serotonyl.ru/hacker-bot/internal/common"
)

// memStore держит профили, подписки и балансы. Boost меняет баланс и
// подписчиков вместе или не меняет ничего.
type memStore struct {
	mu       sync.Mutex
	profiles map[int64]*Profile
	follows  map[[2]int64]bool
	balances map[int64]int64
	taken    map[string]bool // ники, занятые вне профилей
}

func newMemStore() *memStore {
	return &memStore{
		profiles: make(map[int64]*Profile),
		follows:  make(map[[2]int64]bool),
		balances: make(map[int64]int64),
		taken:    make(map[string]bool),
	}
}

func (m *memStore) Upsert(_ context.Context, userID int64, handle string, d Draft) (*Profile, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.profiles[userID]; ok {
		p.Bio, p.Avatar, p.ThemeColor = d.Bio, d.Avatar, d.ThemeColor
		cp := *p
		return &cp, false, nil
	}
	if m.taken[strings.ToLower(handle)] {
		return nil, false, &pgconn.PgError{Code: "23505"}
	}
	for _, p := range m.profiles {
		if strings.EqualFold(p.Handle, handle) {
			return nil, false, &pgconn.PgError{Code: "23505"}
		}
	}
	p := &Profile{UserID: userID, Handle: handle, Bio: d.Bio, Avatar: d.Avatar, ThemeColor: d.ThemeColor}
	m.profiles[userID] = p
	cp := *p
	return &cp, true, nil
}

func (m *memStore) Get(_ context.Context, userID int64) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, common.ErrNoSocialProfile
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) ByHandle(_ context.Context, handle string) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if strings.EqualFold(p.Handle, handle) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, common.ErrProfileNotFound
}

func (m *memStore) Follow(_ context.Context, followerID, followedID int64) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pair := [2]int64{followerID, followedID}
	if m.follows[pair] {
		return nil, common.ErrAlreadyFollowing
	}
	p, ok := m.profiles[followedID]
	if !ok {
		return nil, common.ErrProfileNotFound
	}
	m.follows[pair] = true
	p.Followers++
	cp := *p
	return &cp, nil
}

func (m *memStore) Boost(_ context.Context, userID int64, count int, cost int64) (*BoostResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, common.ErrNoSocialProfile
	}
	if m.balances[userID] < cost {
		return nil, common.ErrInsufficientFunds
	}
	m.balances[userID] -= cost
	p.Followers += int64(count)
	return &BoostResult{Handle: p.Handle, Followers: p.Followers, Balance: m.balances[userID]}, nil
}

func newTestService(store Store) *Service {
	return NewService(store, common.NewKeyedMutex[int64](), Options{
		Timeout: time.Second,
		Retry:   common.RetryPolicy{Attempts: 2, BaseDelay: time.Millisecond},
		Rand:    rand.New(rand.NewSource(7)),
	})
}

func TestParseDraft(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		want    Draft
		wantErr bool
	}{
		{"defaults", "", Draft{Bio: DefaultBio, ThemeColor: DefaultThemeColor}, false},
		{"bio only", "root of all evil", Draft{Bio: "root of all evil", ThemeColor: DefaultThemeColor}, false},
		{"all fields", "pwn | https://img.example/a.png | #FF00AA",
			Draft{Bio: "pwn", Avatar: "https://img.example/a.png", ThemeColor: "#ff00aa"}, false},
		{"skip avatar", "pwn | | #00ff00", Draft{Bio: "pwn", ThemeColor: "#00ff00"}, false},
		{"bad color", "pwn | | red", Draft{}, true},
		{"bad avatar", "pwn | ftp://x/y.png", Draft{}, true},
		{"too many fields", "a | b | c | d", Draft{}, true},
		{"long bio", strings.Repeat("x", maxBioLength+1), Draft{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDraft(tt.args)
			if tt.wantErr {
				if !errors.Is(err, common.ErrInvalidProfile) {
					t.Fatalf("err = %v, want ErrInvalidProfile", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("err = %v", err)
			}
			if got != tt.want {
				t.Fatalf("draft = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCreateKeepsHandleAndFollowers(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ctx := context.Background()

	p, created, err := svc.Create(ctx, 1, "neo", "Thomas", Draft{Bio: "a", ThemeColor: DefaultThemeColor})
	if err != nil || !created {
		t.Fatalf("Create: %v, created=%v", err, created)
	}
	if !strings.HasPrefix(p.Handle, "@neo_") || len(p.Handle) != len("@neo_1234") {
		t.Fatalf("handle = %q", p.Handle)
	}
	store.profiles[1].Followers = 40

	again, created, err := svc.Create(ctx, 1, "neo", "Thomas", Draft{Bio: "b", ThemeColor: "#000000"})
	if err != nil || created {
		t.Fatalf("second Create: %v, created=%v", err, created)
	}
	if again.Handle != p.Handle || again.Followers != 40 || again.Bio != "b" {
		t.Fatalf("updated profile = %+v", again)
	}
}

func TestCreateRetriesTakenHandle(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	// первый суффикс из того же зерна уже занят
	first := NewService(store, common.NewKeyedMutex[int64](), Options{Rand: rand.New(rand.NewSource(7))}).newHandle("", "Trinity")
	store.taken[strings.ToLower(first)] = true

	p, _, err := svc.Create(context.Background(), 2, "", "Trinity", Draft{Bio: DefaultBio, ThemeColor: DefaultThemeColor})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Handle == first || !strings.HasPrefix(p.Handle, "@Trinity_") {
		t.Fatalf("handle = %q, taken %q", p.Handle, first)
	}
}

func TestFollowCountsOnce(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ctx := context.Background()

	target, _, _ := svc.Create(ctx, 1, "morpheus", "", Draft{Bio: DefaultBio, ThemeColor: DefaultThemeColor})

	p, err := svc.Follow(ctx, 2, strings.TrimPrefix(target.Handle, "@"))
	if err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if p.Followers != 1 {
		t.Fatalf("followers = %d, want 1", p.Followers)
	}
	if _, err := svc.Follow(ctx, 2, target.Handle); !errors.Is(err, common.ErrAlreadyFollowing) {
		t.Fatalf("second follow err = %v", err)
	}
	if _, err := svc.Follow(ctx, 1, target.Handle); !errors.Is(err, common.ErrSelfFollow) {
		t.Fatalf("self follow err = %v", err)
	}
	if _, err := svc.Follow(ctx, 2, "@nobody_0000"); !errors.Is(err, common.ErrProfileNotFound) {
		t.Fatalf("unknown handle err = %v", err)
	}
	if got, _ := svc.Get(ctx, 1); got.Followers != 1 {
		t.Fatalf("followers after repeat = %d", got.Followers)
	}
}

func TestBoostIsAllOrNothing(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ctx := context.Background()

	if _, err := svc.Boost(ctx, 1, 100, 10); !errors.Is(err, common.ErrNoSocialProfile) {
		t.Fatalf("no profile err = %v", err)
	}

	svc.Create(ctx, 1, "neo", "", Draft{Bio: DefaultBio, ThemeColor: DefaultThemeColor})
	store.balances[1] = 30

	res, err := svc.Boost(ctx, 1, 250, 25)
	if err != nil {
		t.Fatalf("Boost: %v", err)
	}
	if res.Followers != 250 || res.Balance != 5 {
		t.Fatalf("result = %+v", res)
	}

	if _, err := svc.Boost(ctx, 1, 100, 10); !errors.Is(err, common.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if p, _ := svc.Get(ctx, 1); p.Followers != 250 || store.balances[1] != 5 {
		t.Fatalf("failed boost changed state: followers %d balance %d", p.Followers, store.balances[1])
	}

	if _, err := svc.Boost(ctx, 1, 0, 0); !errors.Is(err, common.ErrInvalidAmount) {
		t.Fatalf("zero boost err = %v", err)
	}
}

func TestConcurrentBoostsNeverOverspend(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ctx := context.Background()
	svc.Create(ctx, 1, "neo", "", Draft{Bio: DefaultBio, ThemeColor: DefaultThemeColor})
	store.balances[1] = 50

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Boost(ctx, 1, 100, 10); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	p, _ := svc.Get(ctx, 1)
	if ok != 5 || store.balances[1] != 0 || p.Followers != 500 {
		t.Fatalf("ok=%d balance=%d followers=%d", ok, store.balances[1], p.Followers)
	}
}
