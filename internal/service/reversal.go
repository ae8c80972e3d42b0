package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/punchamoorthee/coopledger/internal/domain"
	"github.com/punchamoorthee/coopledger/internal/observability"
	"github.com/punchamoorthee/coopledger/internal/store"
)

// Reverse posts the exact negation of a transaction and flags the original as reversed.
// Later postings on the account keep their recorded balances; only the compensating row is added.
func (s *Service) Reverse(ctx context.Context, transactionID int64, reason string, actor int64) (domain.Transaction, error) {
	start := time.Now()
	var reversal domain.Transaction

	var err error
	if actor <= 0 {
		err = fmt.Errorf("%w: actor is required", domain.ErrInvalidRequest)
	} else {
		err = s.inTx(ctx, func(ctx context.Context, tx store.Tx) error {
			original, err := tx.LockTransaction(ctx, transactionID)
			if err != nil {
				return err
			}
			if original.IsReversed {
				return fmt.Errorf("%w: transaction %d", domain.ErrAlreadyReversed, transactionID)
			}
			if _, err := tx.LockAccounts(ctx, original.Account); err != nil {
				return err
			}

			reversal, err = s.appendLocked(ctx, tx, domain.PostingRequest{
				Account:         original.Account,
				Amount:          original.Amount.Neg(),
				Type:            domain.TypeReversal,
				Reference:       original.Reference,
				Description:     reversalDescription(original, reason),
				ReferenceNumber: "REV-" + original.ReferenceNumber,
				CreatedBy:       actor,
			}, &original.ID)
			if err != nil {
				return err
			}
			return tx.MarkReversed(ctx, original.ID, reversal.CreatedAt)
		})
	}

	s.metrics.ObservePosting(observability.OpReversal, start, err)
	if err != nil {
		s.logFailure(observability.OpReversal, err, slog.Int64("transaction_id", transactionID))
		return domain.Transaction{}, err
	}
	s.logger.Info("transaction reversed",
		slog.Int64("transaction_id", transactionID),
		slog.Int64("reversal_id", reversal.ID),
		slog.Int64("actor", actor),
		slog.String("reason", reason))
	s.committed(ctx, reversal)
	return reversal, nil
}

func reversalDescription(original domain.Transaction, reason string) string {
	if reason == "" {
		return "Reversal of " + original.ReferenceNumber
	}
	return "Reversal: " + reason
}
