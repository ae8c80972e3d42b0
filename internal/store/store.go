package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/coopledger/internal/domain"
)

// Store is the durable ledger: two account tables and one append-only transactions table.
type Store interface {
	Reader

	// WithTx runs fn inside one atomic unit of work. Any error from fn rolls everything back.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	CreateAccount(ctx context.Context, in domain.NewAccount) (domain.Account, error)
	Migrate(ctx context.Context) error
	Close()
}

// Reader holds the read paths. Reads see whatever has committed at query time.
type Reader interface {
	GetAccount(ctx context.Context, ref domain.AccountRef) (domain.Account, error)
	// ListAccounts returns accounts of the given kind, or of every kind when kind is empty.
	ListAccounts(ctx context.Context, kind domain.AccountKind) ([]domain.Account, error)
	GetTransaction(ctx context.Context, id int64) (domain.Transaction, error)
	// LastTransaction returns the newest non-reversed transaction of the account.
	LastTransaction(ctx context.Context, ref domain.AccountRef) (domain.Transaction, bool, error)
	// LastTransactionBefore returns the newest transaction dated strictly before t.
	LastTransactionBefore(ctx context.Context, ref domain.AccountRef, t time.Time) (domain.Transaction, bool, error)
	// ListTransactions returns the account's log in ledger order.
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]domain.Transaction, error)
	TransactionsByReference(ctx context.Context, ref domain.ReferenceRef) ([]domain.Transaction, error)
}

// Tx is one unit of work. Account rows stay locked until it ends.
type Tx interface {
	// LockAccounts takes an exclusive lock on every distinct account in LockOrder.
	LockAccounts(ctx context.Context, refs ...domain.AccountRef) (map[domain.AccountRef]domain.Account, error)
	LastTransaction(ctx context.Context, ref domain.AccountRef) (domain.Transaction, bool, error)
	// InsertTransaction appends t and returns it with its id set.
	InsertTransaction(ctx context.Context, t domain.Transaction) (domain.Transaction, error)
	UpdateAccountBalance(ctx context.Context, ref domain.AccountRef, balance decimal.Decimal, at time.Time) error
	LockTransaction(ctx context.Context, id int64) (domain.Transaction, error)
	// MarkReversed flips is_reversed once. A second call fails with domain.ErrAlreadyReversed.
	MarkReversed(ctx context.Context, id int64, at time.Time) error
}

// TransactionFilter selects one account's transactions. From and To are inclusive; zero means unbounded.
type TransactionFilter struct {
	Account domain.AccountRef
	From    time.Time
	To      time.Time
}

// LockOrder returns the distinct refs sorted into the global lock order.
func LockOrder(refs []domain.AccountRef) []domain.AccountRef {
	seen := make(map[domain.AccountRef]struct{}, len(refs))
	out := make([]domain.AccountRef, 0, len(refs))
	for _, ref := range refs {
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func accountTable(kind domain.AccountKind) (string, error) {
	switch kind {
	case domain.KindMember:
		return "member_accounts", nil
	case domain.KindCooperative:
		return "cooperative_accounts", nil
	}
	return "", fmt.Errorf("%w: unknown account type %q", domain.ErrInvalidRequest, kind)
}

const accountColumns = "id, account_number, name, bank_name, user_id, balance, status, created_at, updated_at"

const transactionColumns = `id, transaction_date, transaction_type, reference_type, reference_id,
	account_type, account_id, amount, balance_before, balance_after, description, reference_number,
	created_by, is_reversed, reversal_of_transaction_id, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// timeTarget adapts a *time.Time to whatever the driver can scan timestamps into.
type timeTarget func(*time.Time) any

func scanAccount(row rowScanner, kind domain.AccountKind, ts timeTarget) (domain.Account, error) {
	var a domain.Account
	var status string
	a.Ref.Kind = kind
	err := row.Scan(&a.Ref.ID, &a.Number, &a.Name, &a.BankName, &a.UserID, &a.Balance, &status,
		ts(&a.CreatedAt), ts(&a.UpdatedAt))
	a.Status = domain.AccountStatus(status)
	a.CreatedAt, a.UpdatedAt = a.CreatedAt.UTC(), a.UpdatedAt.UTC()
	return a, err
}

func scanTransaction(row rowScanner, ts timeTarget) (domain.Transaction, error) {
	var t domain.Transaction
	var txType, accountType string
	var refType, refID *string
	err := row.Scan(&t.ID, ts(&t.TransactionDate), &txType, &refType, &refID,
		&accountType, &t.Account.ID, &t.Amount, &t.BalanceBefore, &t.BalanceAfter, &t.Description,
		&t.ReferenceNumber, &t.CreatedBy, &t.IsReversed, &t.ReversalOf, ts(&t.CreatedAt))
	if err != nil {
		return domain.Transaction{}, err
	}
	t.Type = domain.TransactionType(txType)
	t.Account.Kind = domain.AccountKind(accountType)
	t.TransactionDate, t.CreatedAt = t.TransactionDate.UTC(), t.CreatedAt.UTC()
	if refType != nil {
		t.Reference.Type = domain.ReferenceType(*refType)
	}
	if refID != nil {
		t.Reference.ID = *refID
	}
	return t, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
