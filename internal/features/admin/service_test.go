package admin

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"serotonyl.ru/hacker-bot/internal/common"
	"serotonyl.ru/hacker-bot/internal/features/accounts"
	"serotonyl.ru/hacker-bot/internal/features/ledger"
	"serotonyl.ru/hacker-bot/internal/features/market"
)

type memStore struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	attempts []LoginAttempt
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[int64]*Session)}
}

func (m *memStore) CreateSession(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.UserID] = &cp
	return nil
}

func (m *memStore) ActiveSession(_ context.Context, userID int64, now time.Time) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok || !s.IsActive || !s.ExpiresAt.After(now) {
		return nil, nil
	}
	return s, nil
}

func (m *memStore) Deactivate(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[userID]; ok {
		s.IsActive = false
	}
	return nil
}

func (m *memStore) Touch(_ context.Context, userID int64, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[userID]; ok {
		s.LastActivity = now
	}
	return nil
}

func (m *memStore) LogAttempt(_ context.Context, userID int64, success bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, LoginAttempt{UserID: userID, Success: success, AttemptTime: at})
	return nil
}

func (m *memStore) FailedAttemptsSince(_ context.Context, userID int64, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.attempts {
		if a.UserID == userID && !a.Success && !a.AttemptTime.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) Dashboard(context.Context, time.Time) (*Dashboard, error) {
	return &Dashboard{
		Accounts:      12,
		PremiumActive: 2,
		Circulation:   1500,
		Revenue:       []Revenue{{Currency: "XTR", Amount: 350, Payments: 3}},
	}, nil
}

type fakeMarket struct {
	scripts map[int64]*market.Script
}

func (m *fakeMarket) Approve(_ context.Context, id int64) (*market.Script, error) {
	s, ok := m.scripts[id]
	if !ok {
		return nil, common.ErrScriptNotFound
	}
	s.Approved = true
	return s, nil
}

func (m *fakeMarket) Top(context.Context) (*market.Script, error) {
	var top *market.Script
	for _, s := range m.scripts {
		if s.Approved && (top == nil || s.ID < top.ID) {
			top = s
		}
	}
	return top, nil
}

func (m *fakeMarket) Pending(context.Context) (int, error) {
	n := 0
	for _, s := range m.scripts {
		if !s.Approved {
			n++
		}
	}
	return n, nil
}

type fakeLedger struct {
	balances map[int64]int64
	refs     []string
}

func (l *fakeLedger) Apply(_ context.Context, accountID, amount int64, reason ledger.Reason, ref string) (int64, error) {
	if reason != ledger.ReasonAdminAdjust {
		return 0, common.ErrInvalidReason
	}
	if l.balances[accountID]+amount < 0 {
		return 0, common.ErrInsufficientFunds
	}
	l.balances[accountID] += amount
	l.refs = append(l.refs, ref)
	return l.balances[accountID], nil
}

func (l *fakeLedger) Reconcile(context.Context) ([]*ledger.Discrepancy, error) {
	return []*ledger.Discrepancy{{AccountID: 7, Balance: 10, EntriesSum: 5}}, nil
}

type fakeAccounts map[string]*accounts.Account

func (f fakeAccounts) Resolve(_ context.Context, target string) (*accounts.Account, error) {
	if a, ok := f[target]; ok {
		return a, nil
	}
	return nil, common.ErrAccountNotFound
}

const (
	adminID  = int64(42)
	password = "correct horse battery staple"
)

type fixture struct {
	svc    *Service
	store  *memStore
	ledger *fakeLedger
	market *fakeMarket
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  newMemStore(),
		ledger: &fakeLedger{balances: map[int64]int64{100: 30}},
		market: &fakeMarket{scripts: map[int64]*market.Script{
			5: {ID: 5, Title: "Aimbot"},
			6: {ID: 6, Title: "Wallhack"},
		}},
		now: time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	hash := encodeArgon2id(password, []byte("0123456789abcdef"), 64, 1, 1)
	accs := fakeAccounts{
		"100":  {UserID: 100, Username: "neo"},
		"@neo": {UserID: 100, Username: "neo"},
	}
	f.svc = NewService(f.store, f.ledger, accs, f.market, Options{
		AdminIDs:     []int64{adminID},
		PasswordHash: hash,
		Retry:        common.RetryPolicy{Attempts: 1},
		Clock:        func() time.Time { return f.now },
	})
	return f
}

func TestVerifyArgon2id(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=2$") {
		t.Fatalf("hash = %s", hash)
	}

	tests := []struct {
		name     string
		password string
		hash     string
		want     bool
	}{
		{"match", "s3cret", hash, true},
		{"wrong password", "s3cret!", hash, false},
		{"garbage hash", "s3cret", "not-a-hash", false},
		{"wrong algorithm", "s3cret", strings.Replace(hash, "argon2id", "argon2i", 1), false},
		{"bad params", "s3cret", strings.Replace(hash, "m=65536", "m=x", 1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := verifyArgon2id(tt.password, tt.hash); got != tt.want {
				t.Fatalf("verifyArgon2id = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoginOpensSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.svc.Login(ctx, adminID, password); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !f.svc.HasActiveSession(ctx, adminID) {
		t.Fatal("no session after login")
	}

	f.now = f.now.Add(SessionTTL)
	if f.svc.HasActiveSession(ctx, adminID) {
		t.Fatal("session outlived its TTL")
	}
}

func TestLoginRejectsNonAdmin(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.Login(context.Background(), 7, password); !errors.Is(err, common.ErrNotAdmin) {
		t.Fatalf("err = %v, want ErrNotAdmin", err)
	}
	if len(f.store.attempts) != 0 {
		t.Fatal("attempt logged for non-admin")
	}
}

func TestLoginLockout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < MaxFailedAttempts; i++ {
		if err := f.svc.Login(ctx, adminID, "nope"); !errors.Is(err, common.ErrWrongPassword) {
			t.Fatalf("attempt %d: err = %v", i+1, err)
		}
		f.now = f.now.Add(time.Minute)
	}
	if err := f.svc.Login(ctx, adminID, password); !errors.Is(err, common.ErrTooManyAttempts) {
		t.Fatalf("locked login: err = %v", err)
	}

	f.now = f.now.Add(LockoutWindow)
	if err := f.svc.Login(ctx, adminID, password); err != nil {
		t.Fatalf("login after lockout: %v", err)
	}
}

func TestAdjustRequiresSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Adjust(ctx, adminID, "100", 50, ""); !errors.Is(err, common.ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
	if _, err := f.svc.Adjust(ctx, 7, "100", 50, ""); !errors.Is(err, common.ErrNotAdmin) {
		t.Fatalf("err = %v, want ErrNotAdmin", err)
	}

	if err := f.svc.Login(ctx, adminID, password); err != nil {
		t.Fatal(err)
	}
	adj, err := f.svc.Adjust(ctx, adminID, "@neo", -20, "chargeback")
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if adj.Balance != 10 || adj.AccountID != 100 || adj.Target != "@neo" {
		t.Fatalf("adjustment = %+v", adj)
	}
	if got := f.ledger.refs[0]; got != "admin:42 chargeback" {
		t.Fatalf("ref = %q", got)
	}

	if _, err := f.svc.Adjust(ctx, adminID, "100", -11, ""); !errors.Is(err, common.ErrInsufficientFunds) {
		t.Fatalf("overdraw: err = %v", err)
	}
	if _, err := f.svc.Adjust(ctx, adminID, "@ghost", 5, ""); !errors.Is(err, common.ErrAccountNotFound) {
		t.Fatalf("unknown account: err = %v", err)
	}

	if err := f.svc.Logout(ctx, adminID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Audit(ctx, adminID); !errors.Is(err, common.ErrSessionExpired) {
		t.Fatalf("audit after logout: err = %v", err)
	}
}

func TestAudit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.svc.Login(ctx, adminID, password); err != nil {
		t.Fatal(err)
	}
	found, err := f.svc.Audit(ctx, adminID)
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if len(found) != 1 || found[0].AccountID != 7 {
		t.Fatalf("found = %+v", found)
	}
}

func TestParseAdjust(t *testing.T) {
	tests := []struct {
		args    string
		target  string
		amount  int64
		note    string
		wantErr bool
	}{
		{"123 +50", "123", 50, "", false},
		{"@neo -20 bad behaviour", "@neo", -20, "bad behaviour", false},
		{"@neo 15", "@neo", 15, "", false},
		{"@neo", "", 0, "", true},
		{"@neo 0", "", 0, "", true},
		{"@neo abc", "", 0, "", true},
		{"", "", 0, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.args, func(t *testing.T) {
			target, amount, note, err := ParseAdjust(tt.args)
			if tt.wantErr {
				if !errors.Is(err, common.ErrInvalidAmount) {
					t.Fatalf("err = %v, want ErrInvalidAmount", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("err = %v", err)
			}
			if target != tt.target || amount != tt.amount || note != tt.note {
				t.Fatalf("got (%q, %d, %q)", target, amount, note)
			}
		})
	}
}

func TestPasswordState(t *testing.T) {
	f := newFixture(t)
	f.svc.SetState(adminID, StateAwaitingPassword)
	if st := f.svc.GetState(adminID); st == nil || st.Name != StateAwaitingPassword {
		t.Fatalf("state = %+v", st)
	}
	f.now = f.now.Add(stateTTL + time.Second)
	if st := f.svc.GetState(adminID); st != nil {
		t.Fatalf("expired state returned: %+v", st)
	}
}

func TestApproveAndDashboardRequireSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Approve(ctx, adminID, 5); !errors.Is(err, common.ErrSessionExpired) {
		t.Fatalf("approve without session err = %v", err)
	}
	if _, err := f.svc.Dashboard(ctx, 7); !errors.Is(err, common.ErrNotAdmin) {
		t.Fatalf("dashboard by non-admin err = %v", err)
	}
	if err := f.svc.Login(ctx, adminID, password); err != nil {
		t.Fatalf("Login: %v", err)
	}

	if _, err := f.svc.Approve(ctx, adminID, 99); !errors.Is(err, common.ErrScriptNotFound) {
		t.Fatalf("approve unknown err = %v", err)
	}
	script, err := f.svc.Approve(ctx, adminID, 6)
	if err != nil || !script.Approved {
		t.Fatalf("Approve: %+v, %v", script, err)
	}

	d, err := f.svc.Dashboard(ctx, adminID)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if d.Accounts != 12 || d.PendingScripts != 1 || d.TopScript == nil || d.TopScript.ID != 6 {
		t.Fatalf("dashboard = %+v", d)
	}
	text := FormatDashboard(d)
	for _, want := range []string{"Аккаунтов: 12", "350 ⭐ (3 платежей)", "#6 «Wallhack» ⭐ N/A"} {
		if !strings.Contains(text, want) {
			t.Fatalf("dashboard text %q lacks %q", text, want)
		}
	}
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		amount   int64
		currency string
		want     string
	}{
		{250, "XTR", "250 ⭐"},
		{49900, "RUB", "499.00 RUB"},
		{1205, "USD", "12.05 USD"},
	}
	for _, tt := range tests {
		if got := formatMoney(tt.amount, tt.currency); got != tt.want {
			t.Errorf("formatMoney(%d, %s) = %q, want %q", tt.amount, tt.currency, got, tt.want)
		}
	}
}
