package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/coopledger/internal/domain"
	"github.com/punchamoorthee/coopledger/internal/store"
)

// Statement lists an account's transactions dated within [start, end] with the balance carried in
// from before start. Reversed originals stay on the statement, flagged, next to their reversal line.
func (s *Service) Statement(ctx context.Context, ref domain.AccountRef, start, end time.Time) (domain.Statement, error) {
	if err := ref.Validate(); err != nil {
		return domain.Statement{}, err
	}
	if end.Before(start) {
		return domain.Statement{}, fmt.Errorf("%w: end date %s is before start date %s",
			domain.ErrInvalidRequest, end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	start, end = start.UTC(), end.UTC()
	if s.cache == nil {
		return s.buildStatement(ctx, ref, start, end)
	}
	stmt, err := s.cache.Fetch(ctx, ref, start, end, func(ctx context.Context) (domain.Statement, error) {
		return s.buildStatement(ctx, ref, start, end)
	})
	if err != nil && !domain.IsLedgerError(err) {
		// The cache itself failed; statements are still served from the store.
		s.logger.Warn("statement cache unavailable", slog.String("account", ref.String()), slog.Any("error", err))
		return s.buildStatement(ctx, ref, start, end)
	}
	return stmt, err
}

func (s *Service) buildStatement(ctx context.Context, ref domain.AccountRef, start, end time.Time) (domain.Statement, error) {
	if _, err := s.store.GetAccount(ctx, ref); err != nil {
		return domain.Statement{}, persistenceErr(err)
	}

	stmt := domain.Statement{
		Account:        ref,
		Start:          start,
		End:            end,
		OpeningBalance: decimal.Zero,
		TotalDebits:    decimal.Zero,
		TotalCredits:   decimal.Zero,
		Lines:          []domain.StatementLine{},
	}

	opening, found, err := s.store.LastTransactionBefore(ctx, ref, start)
	if err != nil {
		return domain.Statement{}, persistenceErr(err)
	}
	if found {
		stmt.OpeningBalance = opening.BalanceAfter
	}

	rows, err := s.store.ListTransactions(ctx, store.TransactionFilter{Account: ref, From: start, To: end})
	if err != nil {
		return domain.Statement{}, persistenceErr(err)
	}

	stmt.ClosingBalance = stmt.OpeningBalance
	for _, row := range rows {
		line := domain.StatementLine{
			TransactionID:   row.ID,
			Date:            row.TransactionDate,
			Type:            row.Type,
			Description:     row.Description,
			ReferenceNumber: row.ReferenceNumber,
			Balance:         row.BalanceAfter,
			Reversed:        row.IsReversed,
		}
		if row.IsDebit() {
			line.Debit = decimal.NewNullDecimal(row.Amount.Abs())
			stmt.TotalDebits = stmt.TotalDebits.Add(row.Amount.Abs())
		} else {
			line.Credit = decimal.NewNullDecimal(row.Amount)
			stmt.TotalCredits = stmt.TotalCredits.Add(row.Amount)
		}
		stmt.Lines = append(stmt.Lines, line)
		stmt.ClosingBalance = row.BalanceAfter
	}
	return stmt, nil
}
