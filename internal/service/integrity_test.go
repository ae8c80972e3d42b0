package service

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/coopledger/internal/domain"
)

func TestVerifyAccountCleanLog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.member(t, "M-001")
	f.post(t, acct, "40", domain.TypeSaving)
	fee := f.post(t, acct, "-15", domain.TypeFee)
	_, err := f.svc.Reverse(ctx, fee.ID, "fee waived", 1)
	require.NoError(t, err)

	report, err := f.svc.VerifyAccount(ctx, acct)
	require.NoError(t, err)
	assert.True(t, report.OK(), report.Issues)
	assert.Equal(t, 3, report.Transactions)
	requireDecimal(t, "40", report.LogBalance)
	requireDecimal(t, "40", report.CachedBalance)
}

func TestVerifyAccountFindsTampering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.member(t, "M-001")
	f.post(t, acct, "100", domain.TypeSaving)
	second := f.post(t, acct, "20", domain.TypeSaving)

	raw, err := sql.Open("sqlite3", "file:"+f.path+"?_busy_timeout=5000")
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.Exec("UPDATE member_accounts SET balance = '999.00' WHERE id = ?", acct.ID)
	require.NoError(t, err)
	_, err = raw.Exec("UPDATE transactions SET balance_before = '90.00' WHERE id = ?", second.ID)
	require.NoError(t, err)

	report, err := f.svc.VerifyAccount(ctx, acct)
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.Len(t, report.Issues, 3, report.Issues)
	requireDecimal(t, "999", report.CachedBalance)
	requireDecimal(t, "120", report.LogBalance)
}

func TestVerifyAccountUnknown(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.VerifyAccount(context.Background(), domain.CooperativeAccount(3))
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}
