package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/coopledger/internal/domain"
	"github.com/punchamoorthee/coopledger/internal/store"
)

// VerifyAccount rebuilds the account's balance chain from its full log and compares it with the
// cached balance. Defects are reported, never repaired.
func (s *Service) VerifyAccount(ctx context.Context, ref domain.AccountRef) (domain.IntegrityReport, error) {
	if err := ref.Validate(); err != nil {
		return domain.IntegrityReport{}, err
	}
	acct, err := s.store.GetAccount(ctx, ref)
	if err != nil {
		return domain.IntegrityReport{}, persistenceErr(err)
	}
	rows, err := s.store.ListTransactions(ctx, store.TransactionFilter{Account: ref})
	if err != nil {
		return domain.IntegrityReport{}, persistenceErr(err)
	}

	report := domain.IntegrityReport{
		Account:       ref,
		Transactions:  len(rows),
		CachedBalance: acct.Balance,
		Issues:        []string{},
	}
	issue := func(format string, args ...any) {
		report.Issues = append(report.Issues, fmt.Sprintf(format, args...))
	}

	byID := make(map[int64]domain.Transaction, len(rows))
	reversedBy := make(map[int64]int64)
	running := decimal.Zero
	for _, row := range rows {
		byID[row.ID] = row
		if !row.BalanceBefore.Equal(running) {
			issue("transaction %d: balance_before %s does not continue from %s", row.ID, row.BalanceBefore, running)
		}
		if !row.BalanceBefore.Add(row.Amount).Equal(row.BalanceAfter) {
			issue("transaction %d: %s + %s != balance_after %s", row.ID, row.BalanceBefore, row.Amount, row.BalanceAfter)
		}
		if ref.Kind == domain.KindMember && row.BalanceAfter.IsNegative() {
			issue("transaction %d: member balance went negative (%s)", row.ID, row.BalanceAfter)
		}
		if row.ReversalOf != nil {
			reversedBy[*row.ReversalOf] = row.ID
		}
		running = row.BalanceAfter
	}
	report.LogBalance = running

	for originalID, reversalID := range reversedBy {
		original, ok := byID[originalID]
		switch {
		case !ok:
			issue("reversal %d points at transaction %d outside this account", reversalID, originalID)
		case !original.IsReversed:
			issue("transaction %d has reversal %d but is not flagged reversed", originalID, reversalID)
		case !original.Amount.Neg().Equal(byID[reversalID].Amount):
			issue("reversal %d does not negate transaction %d", reversalID, originalID)
		}
	}
	for _, row := range rows {
		if _, ok := reversedBy[row.ID]; row.IsReversed && !ok {
			issue("transaction %d is flagged reversed without a reversal", row.ID)
		}
	}
	if !acct.Balance.Equal(running) {
		issue("cached balance %s differs from log balance %s", acct.Balance, running)
	}

	s.metrics.ObserveIntegrity(ref.Kind, len(report.Issues))
	if !report.OK() {
		s.logger.Error("ledger integrity defects found",
			slog.String("account", ref.String()),
			slog.Int("issues", len(report.Issues)),
			slog.Any("details", report.Issues))
	}
	return report, nil
}
