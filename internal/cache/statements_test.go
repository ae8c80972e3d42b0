package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/coopledger/internal/domain"
)

var (
	start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end   = time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)
)

func newTestCache(t *testing.T) (*Statements, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStatements(client, time.Minute), mr
}

type countingLoader struct {
	calls   atomic.Int32
	closing decimal.Decimal
}

func (l *countingLoader) load(context.Context) (domain.Statement, error) {
	l.calls.Add(1)
	return domain.Statement{
		Account:        domain.MemberAccount(1),
		Start:          start,
		End:            end,
		ClosingBalance: l.closing,
		Lines: []domain.StatementLine{{
			TransactionID: 1,
			Date:          start,
			Type:          domain.TypeSaving,
			Credit:        decimal.NewNullDecimal(l.closing),
			Balance:       l.closing,
		}},
	}, nil
}

func TestFetchCachesUntilInvalidated(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	ref := domain.MemberAccount(1)
	loader := &countingLoader{closing: decimal.RequireFromString("700.00")}

	first, err := c.Fetch(ctx, ref, start, end, loader.load)
	require.NoError(t, err)
	second, err := c.Fetch(ctx, ref, start, end, loader.load)
	require.NoError(t, err)

	assert.Equal(t, int32(1), loader.calls.Load())
	assert.True(t, first.ClosingBalance.Equal(second.ClosingBalance))
	require.Len(t, second.Lines, 1)
	assert.True(t, second.Lines[0].Credit.Valid)
	assert.False(t, second.Lines[0].Debit.Valid)
	assert.True(t, second.Start.Equal(start))

	require.NoError(t, c.Invalidate(ctx, ref))
	_, err = c.Fetch(ctx, ref, start, end, loader.load)
	require.NoError(t, err)
	assert.Equal(t, int32(2), loader.calls.Load())
}

func TestInvalidateIsPerAccount(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	member := domain.MemberAccount(1)
	coop := domain.CooperativeAccount(1)
	loader := &countingLoader{closing: decimal.NewFromInt(5)}

	_, err := c.Fetch(ctx, member, start, end, loader.load)
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx, coop))
	_, err = c.Fetch(ctx, member, start, end, loader.load)
	require.NoError(t, err)
	assert.Equal(t, int32(1), loader.calls.Load())

	ver, err := c.Version(ctx, coop)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ver)
	ver, err = c.Version(ctx, member)
	require.NoError(t, err)
	assert.Zero(t, ver)
}

func TestFetchKeysByRange(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	ref := domain.MemberAccount(1)
	loader := &countingLoader{closing: decimal.NewFromInt(1)}

	_, err := c.Fetch(ctx, ref, start, end, loader.load)
	require.NoError(t, err)
	_, err = c.Fetch(ctx, ref, start, end.Add(time.Second), loader.load)
	require.NoError(t, err)
	assert.Equal(t, int32(2), loader.calls.Load())
}

func TestFetchDoesNotCacheFailures(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	ref := domain.MemberAccount(1)
	boom := errors.New("boom")

	_, err := c.Fetch(ctx, ref, start, end, func(context.Context) (domain.Statement, error) {
		return domain.Statement{}, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Empty(t, mr.Keys())
}

func TestFetchEntriesExpire(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	ref := domain.MemberAccount(1)
	loader := &countingLoader{closing: decimal.NewFromInt(1)}

	_, err := c.Fetch(ctx, ref, start, end, loader.load)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)
	_, err = c.Fetch(ctx, ref, start, end, loader.load)
	require.NoError(t, err)
	assert.Equal(t, int32(2), loader.calls.Load())
}

func TestNilCacheLoadsDirectly(t *testing.T) {
	var c *Statements
	loader := &countingLoader{closing: decimal.NewFromInt(1)}
	_, err := c.Fetch(context.Background(), domain.MemberAccount(1), start, end, loader.load)
	require.NoError(t, err)
	assert.NoError(t, c.Invalidate(context.Background(), domain.MemberAccount(1)))
	assert.Equal(t, int32(1), loader.calls.Load())
}
