// Package operations books the cooperative's business events onto the ledger. Each operation
// only decides accounts, signs, types and references; posting itself belongs to the ledger core.
package operations

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/coopledger/internal/domain"
)

// Ledger is the part of the ledger core that operations post through.
type Ledger interface {
	Post(ctx context.Context, req domain.PostingRequest) (domain.Transaction, error)
	PostDoubleEntry(ctx context.Context, req domain.DoubleEntryRequest) (domain.DoubleEntryResult, error)
}

type Operations struct {
	ledger Ledger
	logger *slog.Logger
}

func New(ledger Ledger, logger *slog.Logger) *Operations {
	if logger == nil {
		logger = slog.Default()
	}
	return &Operations{ledger: ledger, logger: logger}
}

// Saving is an approved member deposit.
type Saving struct {
	ID              string
	MemberAccountID int64
	Amount          decimal.Decimal
	ReferenceNumber string
	Description     string
}

// Withdrawal is an approved withdrawal request being paid out.
type Withdrawal struct {
	RequestID       string
	MemberAccountID int64
	Amount          decimal.Decimal
	ReferenceNumber string
	Description     string
}

// LoanMovement is money moving between a member and the cooperative account that funds a loan,
// either as a disbursement or as a repayment.
type LoanMovement struct {
	LoanID          string
	MemberAccountID int64
	CoopAccountID   int64
	Amount          decimal.Decimal
	ReferenceNumber string
	Description     string
}

type JournalEntry struct {
	ID              string
	Debit           domain.AccountRef
	Credit          domain.AccountRef
	Amount          decimal.Decimal
	ReferenceNumber string
	Description     string
}

type Fee struct {
	MemberAccountID int64
	Amount          decimal.Decimal
	Reference       domain.ReferenceRef
	ReferenceNumber string
	Description     string
}

// magnitude rejects non-positive amounts; operations take amounts unsigned and apply the sign.
func magnitude(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", domain.ErrInvalidAmount, amount)
	}
	return domain.ValidateAmount(amount)
}

func describe(given, fallback string, args ...any) string {
	if given != "" {
		return given
	}
	return fmt.Sprintf(fallback, args...)
}

// ApproveSaving credits the member's account with an approved saving.
func (o *Operations) ApproveSaving(ctx context.Context, s Saving, approvedBy int64) (domain.Transaction, error) {
	if err := magnitude(s.Amount); err != nil {
		return domain.Transaction{}, err
	}
	row, err := o.ledger.Post(ctx, domain.PostingRequest{
		Account:         domain.MemberAccount(s.MemberAccountID),
		Amount:          s.Amount,
		Type:            domain.TypeSaving,
		Reference:       domain.ReferenceRef{Type: domain.RefSaving, ID: s.ID},
		Description:     describe(s.Description, "Saving approved #%s", s.ID),
		ReferenceNumber: s.ReferenceNumber,
		CreatedBy:       approvedBy,
	})
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("approve saving %s: %w", s.ID, err)
	}
	o.logger.Info("saving approved", slog.String("saving_id", s.ID), slog.Int64("transaction_id", row.ID))
	return row, nil
}

// DisburseWithdrawal debits the member's account for an approved withdrawal request.
func (o *Operations) DisburseWithdrawal(ctx context.Context, w Withdrawal, disbursedBy int64) (domain.Transaction, error) {
	if err := magnitude(w.Amount); err != nil {
		return domain.Transaction{}, err
	}
	row, err := o.ledger.Post(ctx, domain.PostingRequest{
		Account:         domain.MemberAccount(w.MemberAccountID),
		Amount:          w.Amount.Neg(),
		Type:            domain.TypeWithdrawal,
		Reference:       domain.ReferenceRef{Type: domain.RefWithdrawalRequest, ID: w.RequestID},
		Description:     describe(w.Description, "Withdrawal disbursed #%s", w.RequestID),
		ReferenceNumber: w.ReferenceNumber,
		CreatedBy:       disbursedBy,
	})
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("disburse withdrawal %s: %w", w.RequestID, err)
	}
	o.logger.Info("withdrawal disbursed", slog.String("request_id", w.RequestID), slog.Int64("transaction_id", row.ID))
	return row, nil
}

// DisburseLoan moves the principal from the cooperative account to the member.
func (o *Operations) DisburseLoan(ctx context.Context, l LoanMovement, disbursedBy int64) (domain.DoubleEntryResult, error) {
	if err := magnitude(l.Amount); err != nil {
		return domain.DoubleEntryResult{}, err
	}
	desc := describe(l.Description, "Loan disbursement #%s", l.LoanID)
	res, err := o.ledger.PostDoubleEntry(ctx, o.loanLegs(l,
		domain.CooperativeAccount(l.CoopAccountID), domain.MemberAccount(l.MemberAccountID),
		domain.TypeLoanDisbursement, desc, disbursedBy))
	if err != nil {
		return domain.DoubleEntryResult{}, fmt.Errorf("disburse loan %s: %w", l.LoanID, err)
	}
	o.logger.Info("loan disbursed", slog.String("loan_id", l.LoanID),
		slog.Int64("debit_transaction_id", res.Debit.ID), slog.Int64("credit_transaction_id", res.Credit.ID))
	return res, nil
}

// RecordLoanRepayment moves a repayment from the member back to the cooperative account.
func (o *Operations) RecordLoanRepayment(ctx context.Context, l LoanMovement, recordedBy int64) (domain.DoubleEntryResult, error) {
	if err := magnitude(l.Amount); err != nil {
		return domain.DoubleEntryResult{}, err
	}
	desc := describe(l.Description, "Loan repayment #%s", l.LoanID)
	res, err := o.ledger.PostDoubleEntry(ctx, o.loanLegs(l,
		domain.MemberAccount(l.MemberAccountID), domain.CooperativeAccount(l.CoopAccountID),
		domain.TypeLoanRepayment, desc, recordedBy))
	if err != nil {
		return domain.DoubleEntryResult{}, fmt.Errorf("record loan repayment %s: %w", l.LoanID, err)
	}
	o.logger.Info("loan repayment recorded", slog.String("loan_id", l.LoanID),
		slog.Int64("debit_transaction_id", res.Debit.ID), slog.Int64("credit_transaction_id", res.Credit.ID))
	return res, nil
}

func (o *Operations) loanLegs(l LoanMovement, debit, credit domain.AccountRef, typ domain.TransactionType, desc string, by int64) domain.DoubleEntryRequest {
	leg := func(ref domain.AccountRef) domain.PostingRequest {
		return domain.PostingRequest{
			Account:         ref,
			Amount:          l.Amount,
			Type:            typ,
			Reference:       domain.ReferenceRef{Type: domain.RefLoan, ID: l.LoanID},
			Description:     desc,
			ReferenceNumber: l.ReferenceNumber,
			CreatedBy:       by,
		}
	}
	return domain.DoubleEntryRequest{Debit: leg(debit), Credit: leg(credit)}
}

// PostJournalEntry books a manual adjustment between any two accounts.
func (o *Operations) PostJournalEntry(ctx context.Context, j JournalEntry, postedBy int64) (domain.DoubleEntryResult, error) {
	if err := magnitude(j.Amount); err != nil {
		return domain.DoubleEntryResult{}, err
	}
	var ref domain.ReferenceRef
	if j.ID != "" {
		ref = domain.ReferenceRef{Type: domain.RefJournalEntry, ID: j.ID}
	}
	desc := describe(j.Description, "Journal entry %s to %s", j.Debit, j.Credit)
	leg := func(acct domain.AccountRef) domain.PostingRequest {
		return domain.PostingRequest{
			Account:         acct,
			Amount:          j.Amount,
			Type:            domain.TypeJournalEntry,
			Reference:       ref,
			Description:     desc,
			ReferenceNumber: j.ReferenceNumber,
			CreatedBy:       postedBy,
		}
	}
	res, err := o.ledger.PostDoubleEntry(ctx, domain.DoubleEntryRequest{Debit: leg(j.Debit), Credit: leg(j.Credit)})
	if err != nil {
		return domain.DoubleEntryResult{}, fmt.Errorf("post journal entry: %w", err)
	}
	o.logger.Info("journal entry posted", slog.String("debit", j.Debit.String()), slog.String("credit", j.Credit.String()),
		slog.String("amount", j.Amount.StringFixed(domain.AmountScale)))
	return res, nil
}

// ChargeFee debits a fee from the member's account.
func (o *Operations) ChargeFee(ctx context.Context, f Fee, chargedBy int64) (domain.Transaction, error) {
	if err := magnitude(f.Amount); err != nil {
		return domain.Transaction{}, err
	}
	row, err := o.ledger.Post(ctx, domain.PostingRequest{
		Account:         domain.MemberAccount(f.MemberAccountID),
		Amount:          f.Amount.Neg(),
		Type:            domain.TypeFee,
		Reference:       f.Reference,
		Description:     describe(f.Description, "Fee"),
		ReferenceNumber: f.ReferenceNumber,
		CreatedBy:       chargedBy,
	})
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("charge fee: %w", err)
	}
	o.logger.Info("fee charged", slog.Int64("member_account_id", f.MemberAccountID), slog.Int64("transaction_id", row.ID))
	return row, nil
}
