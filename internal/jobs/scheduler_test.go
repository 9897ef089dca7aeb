package jobs

import (
	"context"
	"testing"
	"time"

	"serotonyl.ru/hacker-bot/internal/common"
	"serotonyl.ru/hacker-bot/internal/features/ledger"
)

type fakeLedger struct {
	calls int
	err   error
}

func (f *fakeLedger) Reconcile(context.Context) ([]*ledger.Discrepancy, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []*ledger.Discrepancy{{AccountID: 1, Balance: 5, EntriesSum: 4}}, nil
}

type fakeExpirer struct {
	at time.Time
}

func (f *fakeExpirer) ExpirePremium(_ context.Context, now time.Time) (int64, error) {
	f.at = now
	return 2, nil
}

type fakeSweeper struct{ calls int }

func (f *fakeSweeper) SweepQuizzes() int {
	f.calls++
	return 0
}

func TestStartRegistersJobs(t *testing.T) {
	s := NewScheduler(time.UTC, &fakeLedger{}, &fakeExpirer{}, &fakeSweeper{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if n := len(s.cron.Entries()); n != 3 {
		t.Fatalf("entries = %d, want 3", n)
	}
}

func TestJobsCallServices(t *testing.T) {
	l := &fakeLedger{}
	e := &fakeExpirer{}
	q := &fakeSweeper{}
	s := NewScheduler(nil, l, e, q)
	now := time.Date(2024, 8, 1, 0, 5, 0, 0, time.UTC)
	s.clock = func() time.Time { return now }

	ctx := context.Background()
	s.reconcile(ctx)
	l.err = common.ErrStorageUnavailable
	s.reconcile(ctx)
	s.expirePremium(ctx)
	s.sweepQuizzes(ctx)

	if l.calls != 2 || !e.at.Equal(now) || q.calls != 1 {
		t.Fatalf("calls: ledger=%d premium=%v quizzes=%d", l.calls, e.at, q.calls)
	}
}
