package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/coopledger/internal/domain"
	"github.com/punchamoorthee/coopledger/internal/observability"
	"github.com/punchamoorthee/coopledger/internal/store"
)

// Post appends one signed amount to an account. The read of the current balance, the insert and
// the balance cache update happen under the account lock in one unit of work.
func (s *Service) Post(ctx context.Context, req domain.PostingRequest) (domain.Transaction, error) {
	start := time.Now()
	var posted domain.Transaction

	err := req.Validate()
	if err == nil {
		err = s.inTx(ctx, func(ctx context.Context, tx store.Tx) error {
			if _, err := tx.LockAccounts(ctx, req.Account); err != nil {
				return err
			}
			var err error
			posted, err = s.appendLocked(ctx, tx, req, nil)
			return err
		})
	}

	s.metrics.ObservePosting(observability.OpPost, start, err)
	if err != nil {
		s.logFailure(observability.OpPost, err, slog.String("account", req.Account.String()))
		return domain.Transaction{}, err
	}
	s.committed(ctx, posted)
	return posted, nil
}

// PostDoubleEntry books a debit leg and a credit leg of the same magnitude. Both account locks are
// held for the whole unit of work and either both rows commit or neither does.
func (s *Service) PostDoubleEntry(ctx context.Context, req domain.DoubleEntryRequest) (domain.DoubleEntryResult, error) {
	start := time.Now()
	var result domain.DoubleEntryResult

	debit, credit, err := normalizeLegs(req)
	if err == nil {
		err = s.inTx(ctx, func(ctx context.Context, tx store.Tx) error {
			if _, err := tx.LockAccounts(ctx, debit.Account, credit.Account); err != nil {
				return err
			}
			var err error
			if result.Debit, err = s.appendLocked(ctx, tx, debit, nil); err != nil {
				return err
			}
			if result.Credit, err = s.appendLocked(ctx, tx, credit, nil); err != nil {
				return err
			}
			if sum := result.Debit.Amount.Add(result.Credit.Amount); !sum.IsZero() {
				return fmt.Errorf("%w: legs sum to %s", domain.ErrUnbalancedDoubleEntry, sum)
			}
			return nil
		})
	}

	s.metrics.ObservePosting(observability.OpDoubleEntry, start, err)
	if err != nil {
		s.logFailure(observability.OpDoubleEntry, err,
			slog.String("debit_account", req.Debit.Account.String()),
			slog.String("credit_account", req.Credit.Account.String()),
			slog.String("debit_amount", req.Debit.Amount.String()),
			slog.String("credit_amount", req.Credit.Amount.String()))
		return domain.DoubleEntryResult{}, err
	}
	s.committed(ctx, result.Debit, result.Credit)
	return result, nil
}

// normalizeLegs forces the debit leg negative and the credit leg positive, then checks they cancel.
func normalizeLegs(req domain.DoubleEntryRequest) (domain.PostingRequest, domain.PostingRequest, error) {
	debit, credit := req.Debit, req.Credit
	debit.Amount = debit.Amount.Abs().Neg()
	credit.Amount = credit.Amount.Abs()

	if err := debit.Validate(); err != nil {
		return debit, credit, fmt.Errorf("debit leg: %w", err)
	}
	if err := credit.Validate(); err != nil {
		return debit, credit, fmt.Errorf("credit leg: %w", err)
	}
	if debit.Account == credit.Account {
		return debit, credit, fmt.Errorf("%w: debit and credit legs target the same account %s", domain.ErrInvalidRequest, debit.Account)
	}
	if !debit.Amount.Add(credit.Amount).IsZero() {
		return debit, credit, fmt.Errorf("%w: debit %s against credit %s", domain.ErrUnbalancedDoubleEntry, debit.Amount.Abs(), credit.Amount)
	}
	if debit.ReferenceNumber != "" && debit.ReferenceNumber == credit.ReferenceNumber {
		debit.ReferenceNumber += "-DR"
		credit.ReferenceNumber += "-CR"
	}
	return debit, credit, nil
}

// appendLocked writes the next row of the account's balance chain. The caller holds the account lock.
func (s *Service) appendLocked(ctx context.Context, tx store.Tx, req domain.PostingRequest, reversalOf *int64) (domain.Transaction, error) {
	now := s.now()
	current := decimal.Zero
	date, createdAt := now, now

	last, found, err := tx.LastTransaction(ctx, req.Account)
	if err != nil {
		return domain.Transaction{}, err
	}
	if found {
		current = last.BalanceAfter
		// The new row must sort after the last one even if the clock went backwards.
		if last.TransactionDate.After(date) {
			date = last.TransactionDate
		}
		if last.CreatedAt.After(createdAt) {
			createdAt = last.CreatedAt
		}
	}

	next := current.Add(req.Amount)
	if req.Account.Kind == domain.KindMember && next.IsNegative() {
		return domain.Transaction{}, fmt.Errorf("%w: %s holds %s, posting %s",
			domain.ErrInsufficientFunds, req.Account, current.StringFixed(domain.AmountScale), req.Amount.StringFixed(domain.AmountScale))
	}

	refNo := req.ReferenceNumber
	if refNo == "" {
		refNo = s.newRef()
	}

	row, err := tx.InsertTransaction(ctx, domain.Transaction{
		TransactionDate: date,
		Type:            req.Type,
		Reference:       req.Reference,
		Account:         req.Account,
		Amount:          req.Amount,
		BalanceBefore:   current,
		BalanceAfter:    next,
		Description:     req.Description,
		ReferenceNumber: refNo,
		CreatedBy:       req.CreatedBy,
		ReversalOf:      reversalOf,
		CreatedAt:       createdAt,
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	if err := tx.UpdateAccountBalance(ctx, req.Account, next, now); err != nil {
		return domain.Transaction{}, err
	}
	return row, nil
}
