package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/coopledger/internal/domain"
)

func TestStatementSavingThenWithdrawal(t *testing.T) {
	f := newFixture(t)
	acct := f.member(t, "M-001")
	f.post(t, acct, "1000", domain.TypeSaving)
	f.post(t, acct, "-300", domain.TypeWithdrawal)

	stmt, err := f.svc.Statement(context.Background(), acct, t0.AddDate(0, 0, -1), t0.AddDate(0, 0, 1))
	require.NoError(t, err)

	requireDecimal(t, "0", stmt.OpeningBalance)
	requireDecimal(t, "700", stmt.ClosingBalance)
	requireDecimal(t, "1000", stmt.TotalCredits)
	requireDecimal(t, "300", stmt.TotalDebits)
	require.Len(t, stmt.Lines, 2)

	assert.True(t, stmt.Lines[0].Credit.Valid)
	assert.False(t, stmt.Lines[0].Debit.Valid)
	requireDecimal(t, "1000", stmt.Lines[0].Credit.Decimal)
	requireDecimal(t, "1000", stmt.Lines[0].Balance)

	assert.True(t, stmt.Lines[1].Debit.Valid)
	assert.False(t, stmt.Lines[1].Credit.Valid)
	requireDecimal(t, "300", stmt.Lines[1].Debit.Decimal)
	requireDecimal(t, "700", stmt.Lines[1].Balance)
}

func TestStatementShowsReversalPair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.member(t, "M-001")
	original := f.post(t, acct, "500", domain.TypeSaving)
	_, err := f.svc.Reverse(ctx, original.ID, "duplicate", 1)
	require.NoError(t, err)

	balance, err := f.svc.CurrentBalance(ctx, acct)
	require.NoError(t, err)
	requireDecimal(t, "0", balance)

	stmt, err := f.svc.Statement(ctx, acct, t0, t0.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, stmt.Lines, 2)

	assert.Equal(t, original.ID, stmt.Lines[0].TransactionID)
	assert.True(t, stmt.Lines[0].Reversed)
	requireDecimal(t, "500", stmt.Lines[0].Credit.Decimal)

	assert.Equal(t, domain.TypeReversal, stmt.Lines[1].Type)
	assert.False(t, stmt.Lines[1].Reversed)
	requireDecimal(t, "500", stmt.Lines[1].Debit.Decimal)
	assert.Equal(t, "Reversal: duplicate", stmt.Lines[1].Description)

	requireDecimal(t, "0", stmt.OpeningBalance)
	requireDecimal(t, "0", stmt.ClosingBalance)
	requireDecimal(t, "500", stmt.TotalCredits)
	requireDecimal(t, "500", stmt.TotalDebits)
}

func TestStatementOpeningBalanceAndBounds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.member(t, "M-001")
	f.post(t, acct, "100", domain.TypeSaving)     // 08:00
	f.post(t, acct, "50", domain.TypeSaving)      // 09:00
	f.post(t, acct, "-30", domain.TypeWithdrawal) // 10:00

	stmt, err := f.svc.Statement(ctx, acct, t0.Add(time.Hour), t0.Add(time.Hour))
	require.NoError(t, err)
	requireDecimal(t, "100", stmt.OpeningBalance)
	require.Len(t, stmt.Lines, 1, "both bounds are inclusive")
	requireDecimal(t, "150", stmt.ClosingBalance)

	stmt, err = f.svc.Statement(ctx, acct, t0.Add(3*time.Hour), t0.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, stmt.Lines)
	requireDecimal(t, "120", stmt.OpeningBalance)
	requireDecimal(t, "120", stmt.ClosingBalance, "closing falls back to opening")
	requireDecimal(t, "0", stmt.TotalDebits)

	stmt, err = f.svc.Statement(ctx, acct, t0.AddDate(-1, 0, 0), t0.Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, stmt.Lines)
	requireDecimal(t, "0", stmt.OpeningBalance)
}

func TestStatementRejectsBadRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.member(t, "M-001")

	_, err := f.svc.Statement(ctx, acct, t0, t0.Add(-time.Second))
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = f.svc.Statement(ctx, domain.MemberAccount(acct.ID+1), t0, t0)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

// recordingCache stands in for the Redis cache.
type recordingCache struct {
	mu          sync.Mutex
	fetches     int
	invalidated []domain.AccountRef
}

func (c *recordingCache) Fetch(ctx context.Context, _ domain.AccountRef, _, _ time.Time,
	load func(context.Context) (domain.Statement, error)) (domain.Statement, error) {
	c.mu.Lock()
	c.fetches++
	c.mu.Unlock()
	return load(ctx)
}

func (c *recordingCache) Invalidate(_ context.Context, refs ...domain.AccountRef) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, refs...)
	return nil
}

func TestStatementCacheIsInvalidatedOnCommit(t *testing.T) {
	cache := &recordingCache{}
	f := newFixture(t, WithStatementCache(cache))
	ctx := context.Background()
	member := f.member(t, "M-001")
	coop := f.coop(t, "C-001")

	f.post(t, member, "10", domain.TypeSaving)
	_, err := f.svc.PostDoubleEntry(ctx, doubleEntry(coop, member, "5", "5"))
	require.NoError(t, err)
	_, err = f.svc.Post(ctx, posting(member, "0", domain.TypeSaving))
	require.Error(t, err)

	_, err = f.svc.Statement(ctx, member, t0, t0.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 1, cache.fetches)
	assert.Equal(t, []domain.AccountRef{member, coop, member}, cache.invalidated)
}

type brokenCache struct{ recordingCache }

func (c *brokenCache) Fetch(context.Context, domain.AccountRef, time.Time, time.Time,
	func(context.Context) (domain.Statement, error)) (domain.Statement, error) {
	return domain.Statement{}, errors.New("redis: connection refused")
}

func TestStatementFallsBackWhenCacheFails(t *testing.T) {
	f := newFixture(t, WithStatementCache(&brokenCache{}))
	acct := f.member(t, "M-001")
	f.post(t, acct, "80", domain.TypeSaving)

	stmt, err := f.svc.Statement(context.Background(), acct, t0, t0.Add(time.Hour))
	require.NoError(t, err)
	requireDecimal(t, "80", stmt.ClosingBalance)

	_, err = f.svc.Statement(context.Background(), domain.MemberAccount(acct.ID+1), t0, t0)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}
