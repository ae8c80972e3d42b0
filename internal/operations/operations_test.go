package operations

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/coopledger/internal/domain"
	"github.com/punchamoorthee/coopledger/internal/service"
	"github.com/punchamoorthee/coopledger/internal/store"
)

type recordingLedger struct {
	posts   []domain.PostingRequest
	doubles []domain.DoubleEntryRequest
	err     error
}

func (l *recordingLedger) Post(_ context.Context, req domain.PostingRequest) (domain.Transaction, error) {
	l.posts = append(l.posts, req)
	return domain.Transaction{ID: int64(len(l.posts)), Account: req.Account, Amount: req.Amount}, l.err
}

func (l *recordingLedger) PostDoubleEntry(_ context.Context, req domain.DoubleEntryRequest) (domain.DoubleEntryResult, error) {
	l.doubles = append(l.doubles, req)
	return domain.DoubleEntryResult{}, l.err
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSingleEntryOperations(t *testing.T) {
	ledger := &recordingLedger{}
	ops := New(ledger, quiet())
	ctx := context.Background()

	_, err := ops.ApproveSaving(ctx, Saving{ID: "31", MemberAccountID: 4, Amount: amount("250"), ReferenceNumber: "SAV-31"}, 9)
	require.NoError(t, err)
	_, err = ops.DisburseWithdrawal(ctx, Withdrawal{RequestID: "12", MemberAccountID: 4, Amount: amount("100")}, 9)
	require.NoError(t, err)
	_, err = ops.ChargeFee(ctx, Fee{MemberAccountID: 4, Amount: amount("2.50"), Description: "Card fee"}, 9)
	require.NoError(t, err)

	require.Len(t, ledger.posts, 3)
	saving, withdrawal, fee := ledger.posts[0], ledger.posts[1], ledger.posts[2]

	assert.Equal(t, domain.MemberAccount(4), saving.Account)
	assert.True(t, saving.Amount.Equal(amount("250")))
	assert.Equal(t, domain.TypeSaving, saving.Type)
	assert.Equal(t, domain.ReferenceRef{Type: domain.RefSaving, ID: "31"}, saving.Reference)
	assert.Equal(t, "SAV-31", saving.ReferenceNumber)
	assert.Equal(t, "Saving approved #31", saving.Description)
	assert.Equal(t, int64(9), saving.CreatedBy)

	assert.True(t, withdrawal.Amount.Equal(amount("-100")))
	assert.Equal(t, domain.TypeWithdrawal, withdrawal.Type)
	assert.Equal(t, domain.ReferenceRef{Type: domain.RefWithdrawalRequest, ID: "12"}, withdrawal.Reference)

	assert.True(t, fee.Amount.Equal(amount("-2.50")))
	assert.Equal(t, domain.TypeFee, fee.Type)
	assert.Equal(t, "Card fee", fee.Description)
}

func TestLoanOperationsPickLegs(t *testing.T) {
	ledger := &recordingLedger{}
	ops := New(ledger, quiet())
	ctx := context.Background()
	loan := LoanMovement{LoanID: "L-7", MemberAccountID: 4, CoopAccountID: 1, Amount: amount("1500"), ReferenceNumber: "LN-7"}

	_, err := ops.DisburseLoan(ctx, loan, 2)
	require.NoError(t, err)
	_, err = ops.RecordLoanRepayment(ctx, loan, 2)
	require.NoError(t, err)

	require.Len(t, ledger.doubles, 2)
	disbursement, repayment := ledger.doubles[0], ledger.doubles[1]

	assert.Equal(t, domain.CooperativeAccount(1), disbursement.Debit.Account)
	assert.Equal(t, domain.MemberAccount(4), disbursement.Credit.Account)
	assert.Equal(t, domain.TypeLoanDisbursement, disbursement.Debit.Type)
	assert.Equal(t, domain.ReferenceRef{Type: domain.RefLoan, ID: "L-7"}, disbursement.Credit.Reference)

	assert.Equal(t, domain.MemberAccount(4), repayment.Debit.Account)
	assert.Equal(t, domain.CooperativeAccount(1), repayment.Credit.Account)
	assert.Equal(t, domain.TypeLoanRepayment, repayment.Credit.Type)
	assert.Equal(t, "Loan repayment #L-7", repayment.Debit.Description)
}

func TestOperationsRejectNonPositiveAmounts(t *testing.T) {
	ledger := &recordingLedger{}
	ops := New(ledger, quiet())
	ctx := context.Background()

	_, err := ops.ApproveSaving(ctx, Saving{ID: "1", MemberAccountID: 1, Amount: amount("-5")}, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = ops.ChargeFee(ctx, Fee{MemberAccountID: 1, Amount: decimal.Zero}, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = ops.DisburseLoan(ctx, LoanMovement{LoanID: "1", MemberAccountID: 1, CoopAccountID: 1, Amount: amount("0.001")}, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	assert.Empty(t, ledger.posts)
	assert.Empty(t, ledger.doubles)
}

func TestOperationsWrapLedgerErrors(t *testing.T) {
	ledger := &recordingLedger{err: domain.ErrInsufficientFunds}
	ops := New(ledger, quiet())

	_, err := ops.DisburseWithdrawal(context.Background(), Withdrawal{RequestID: "3", MemberAccountID: 1, Amount: amount("10")}, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientFunds))
	assert.Contains(t, err.Error(), "disburse withdrawal 3")
}

func TestLoanLifecycleAgainstLedger(t *testing.T) {
	ctx := context.Background()
	st, err := store.OpenSQLite(ctx, filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))
	t.Cleanup(st.Close)

	svc := service.New(st, service.WithLogger(quiet()))
	ops := New(svc, quiet())

	member, err := svc.OpenAccount(ctx, domain.NewAccount{Kind: domain.KindMember, Number: "M-001", Name: "Ana"})
	require.NoError(t, err)
	coop, err := svc.OpenAccount(ctx, domain.NewAccount{Kind: domain.KindCooperative, Number: "C-001", Name: "Loan fund", BankName: "Bank"})
	require.NoError(t, err)

	_, err = ops.PostJournalEntry(ctx, JournalEntry{
		ID: "J-1", Debit: domain.CooperativeAccount(coop.Ref.ID + 99), Credit: coop.Ref, Amount: amount("10"),
	}, 1)
	require.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = ops.ApproveSaving(ctx, Saving{ID: "1", MemberAccountID: member.Ref.ID, Amount: amount("200"), ReferenceNumber: "SAV-1"}, 1)
	require.NoError(t, err)
	res, err := ops.DisburseLoan(ctx, LoanMovement{LoanID: "1", MemberAccountID: member.Ref.ID, CoopAccountID: coop.Ref.ID, Amount: amount("1000"), ReferenceNumber: "LN-1"}, 1)
	require.NoError(t, err)
	assert.Equal(t, "LN-1-DR", res.Debit.ReferenceNumber)
	assert.Equal(t, "LN-1-CR", res.Credit.ReferenceNumber)

	_, err = ops.RecordLoanRepayment(ctx, LoanMovement{LoanID: "1", MemberAccountID: member.Ref.ID, CoopAccountID: coop.Ref.ID, Amount: amount("400"), ReferenceNumber: "LN-1-P1"}, 1)
	require.NoError(t, err)
	_, err = ops.ChargeFee(ctx, Fee{MemberAccountID: member.Ref.ID, Amount: amount("5"), Reference: domain.ReferenceRef{Type: domain.RefLoan, ID: "1"}}, 1)
	require.NoError(t, err)

	memberBalance, err := svc.CurrentBalance(ctx, member.Ref)
	require.NoError(t, err)
	assert.True(t, memberBalance.Equal(amount("795")), memberBalance.String())
	coopBalance, err := svc.CurrentBalance(ctx, coop.Ref)
	require.NoError(t, err)
	assert.True(t, coopBalance.Equal(amount("-600")), coopBalance.String())

	rows, err := svc.TransactionsByReference(ctx, domain.ReferenceRef{Type: domain.RefLoan, ID: "1"})
	require.NoError(t, err)
	assert.Len(t, rows, 5)
}
