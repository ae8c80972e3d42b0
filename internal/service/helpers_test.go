package service

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/coopledger/internal/domain"
	"github.com/punchamoorthee/coopledger/internal/store"
)

var t0 = time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)

// stepClock returns t0, t0+step, t0+2*step, ... on successive calls.
type stepClock struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.next
	c.next = c.next.Add(c.step)
	return now
}

type fixture struct {
	svc   *Service
	store store.Store
	path  string
	clock *stepClock
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	st, err := store.OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(st.Close)

	clock := &stepClock{next: t0, step: time.Hour}
	base := []Option{
		WithNow(clock.Now),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return &fixture{
		svc:   New(st, append(base, opts...)...),
		store: st,
		path:  path,
		clock: clock,
	}
}

func (f *fixture) member(t *testing.T, number string) domain.AccountRef {
	t.Helper()
	acct, err := f.svc.OpenAccount(context.Background(), domain.NewAccount{Kind: domain.KindMember, Number: number, Name: "Member " + number})
	require.NoError(t, err)
	return acct.Ref
}

func (f *fixture) coop(t *testing.T, number string) domain.AccountRef {
	t.Helper()
	acct, err := f.svc.OpenAccount(context.Background(), domain.NewAccount{Kind: domain.KindCooperative, Number: number, Name: "Cash " + number, BankName: "Bank"})
	require.NoError(t, err)
	return acct.Ref
}

func (f *fixture) post(t *testing.T, ref domain.AccountRef, amount string, typ domain.TransactionType) domain.Transaction {
	t.Helper()
	row, err := f.svc.Post(context.Background(), posting(ref, amount, typ))
	require.NoError(t, err)
	return row
}

func posting(ref domain.AccountRef, amount string, typ domain.TransactionType) domain.PostingRequest {
	return domain.PostingRequest{
		Account:     ref,
		Amount:      decimal.RequireFromString(amount),
		Type:        typ,
		Description: string(typ),
		CreatedBy:   1,
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// requireDecimal compares by value so that 700 and 700.00 are equal.
func requireDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got, msgAndArgs)
}

// requireChain checks the before/after chain over the account's whole log.
func requireChain(t *testing.T, f *fixture, ref domain.AccountRef) {
	t.Helper()
	report, err := f.svc.VerifyAccount(context.Background(), ref)
	require.NoError(t, err)
	require.Empty(t, report.Issues)
}
