package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AccountKind discriminates the concrete account tables a posting can target.
type AccountKind string

const (
	KindMember      AccountKind = "member_account"
	KindCooperative AccountKind = "coop_account"
)

// Valid reports whether k names a known account kind.
func (k AccountKind) Valid() bool {
	return k == KindMember || k == KindCooperative
}

// rank fixes the global lock order between kinds.
func (k AccountKind) rank() int {
	switch k {
	case KindMember:
		return 0
	case KindCooperative:
		return 1
	default:
		return 2
	}
}

// AccountRef identifies one account across both account tables.
type AccountRef struct {
	Kind AccountKind `json:"account_type"`
	ID   int64       `json:"account_id"`
}

func MemberAccount(id int64) AccountRef      { return AccountRef{Kind: KindMember, ID: id} }
func CooperativeAccount(id int64) AccountRef { return AccountRef{Kind: KindCooperative, ID: id} }

func (r AccountRef) String() string {
	return string(r.Kind) + ":" + strconv.FormatInt(r.ID, 10)
}

// Less orders refs by kind, then id. Every multi-account lock is taken in this order.
func (r AccountRef) Less(o AccountRef) bool {
	if r.Kind != o.Kind {
		return r.Kind.rank() < o.Kind.rank()
	}
	return r.ID < o.ID
}

func (r AccountRef) Validate() error {
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: unknown account type %q", ErrInvalidRequest, r.Kind)
	}
	if r.ID <= 0 {
		return fmt.Errorf("%w: account id must be positive", ErrInvalidRequest)
	}
	return nil
}

// ParseAccountRef accepts the "kind:id" form produced by String.
func ParseAccountRef(s string) (AccountRef, error) {
	kind, rawID, ok := strings.Cut(s, ":")
	if !ok {
		return AccountRef{}, fmt.Errorf("%w: malformed account reference %q", ErrInvalidRequest, s)
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return AccountRef{}, fmt.Errorf("%w: malformed account id %q", ErrInvalidRequest, rawID)
	}
	ref := AccountRef{Kind: AccountKind(kind), ID: id}
	return ref, ref.Validate()
}

type AccountStatus string

const (
	StatusActive    AccountStatus = "active"
	StatusInactive  AccountStatus = "inactive"
	StatusSuspended AccountStatus = "suspended"
)

// Account is either a member's savings account or one of the cooperative's own accounts.
// Balance mirrors the balance_after of the account's newest transaction.
type Account struct {
	Ref       AccountRef      `json:"ref"`
	Number    string          `json:"account_number"`
	Name      string          `json:"name"`
	BankName  string          `json:"bank_name,omitempty"`
	UserID    *int64          `json:"user_id,omitempty"`
	Balance   decimal.Decimal `json:"balance"`
	Status    AccountStatus   `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewAccount carries the fields needed to open an account. Accounts always open at zero.
type NewAccount struct {
	Kind     AccountKind
	Number   string
	Name     string
	BankName string
	UserID   *int64
}

type TransactionType string

const (
	TypeSaving           TransactionType = "saving"
	TypeWithdrawal       TransactionType = "withdrawal"
	TypeLoanDisbursement TransactionType = "loan_disbursement"
	TypeLoanRepayment    TransactionType = "loan_repayment"
	TypeInterestAccrual  TransactionType = "interest_accrual"
	TypeFee              TransactionType = "fee"
	TypeJournalEntry     TransactionType = "journal_entry"
	TypeReversal         TransactionType = "reversal"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TypeSaving, TypeWithdrawal, TypeLoanDisbursement, TypeLoanRepayment,
		TypeInterestAccrual, TypeFee, TypeJournalEntry, TypeReversal:
		return true
	}
	return false
}

type ReferenceType string

const (
	RefSaving            ReferenceType = "saving"
	RefLoan              ReferenceType = "loan"
	RefWithdrawalRequest ReferenceType = "withdrawal_request"
	RefJournalEntry      ReferenceType = "journal_entry"
)

func (t ReferenceType) Valid() bool {
	switch t {
	case RefSaving, RefLoan, RefWithdrawalRequest, RefJournalEntry:
		return true
	}
	return false
}

// ReferenceRef points back at the business record that caused a posting.
// The zero value means no originating record.
type ReferenceRef struct {
	Type ReferenceType `json:"reference_type,omitempty"`
	ID   string        `json:"reference_id,omitempty"`
}

func (r ReferenceRef) IsZero() bool { return r.Type == "" && r.ID == "" }

func (r ReferenceRef) Validate() error {
	if r.IsZero() {
		return nil
	}
	if !r.Type.Valid() || r.ID == "" {
		return fmt.Errorf("%w: invalid reference %s/%s", ErrInvalidRequest, r.Type, r.ID)
	}
	return nil
}

// Transaction is one immutable row of the ledger log. Only IsReversed may change after insert.
// Amount is positive for credits and negative for debits.
type Transaction struct {
	ID              int64           `json:"id"`
	TransactionDate time.Time       `json:"transaction_date"`
	Type            TransactionType `json:"transaction_type"`
	Reference       ReferenceRef    `json:"reference"`
	Account         AccountRef      `json:"account"`
	Amount          decimal.Decimal `json:"amount"`
	BalanceBefore   decimal.Decimal `json:"balance_before"`
	BalanceAfter    decimal.Decimal `json:"balance_after"`
	Description     string          `json:"description"`
	ReferenceNumber string          `json:"reference_number"`
	CreatedBy       int64           `json:"created_by"`
	IsReversed      bool            `json:"is_reversed"`
	ReversalOf      *int64          `json:"reversal_of_transaction_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (t Transaction) IsCredit() bool { return t.Amount.IsPositive() }
func (t Transaction) IsDebit() bool  { return t.Amount.IsNegative() }

// PostingRequest is the input of a single posting.
type PostingRequest struct {
	Account     AccountRef
	Amount      decimal.Decimal
	Type        TransactionType
	Reference   ReferenceRef
	Description string
	// ReferenceNumber is generated when empty.
	ReferenceNumber string
	CreatedBy       int64
}

// Validate checks everything that can be checked without touching storage.
func (r PostingRequest) Validate() error {
	if err := ValidateAmount(r.Amount); err != nil {
		return err
	}
	if err := r.Account.Validate(); err != nil {
		return err
	}
	if !r.Type.Valid() {
		return fmt.Errorf("%w: unknown transaction type %q", ErrInvalidRequest, r.Type)
	}
	if err := r.Reference.Validate(); err != nil {
		return err
	}
	if r.CreatedBy <= 0 {
		return fmt.Errorf("%w: created_by is required", ErrInvalidRequest)
	}
	return nil
}

// DoubleEntryRequest pairs a debit leg and a credit leg of the same magnitude.
// Leg amounts are taken as magnitudes; their sign is forced by the leg role.
type DoubleEntryRequest struct {
	Debit  PostingRequest
	Credit PostingRequest
}

type DoubleEntryResult struct {
	Debit  Transaction `json:"debit"`
	Credit Transaction `json:"credit"`
}

// StatementLine is one transaction as it appears on a statement. Exactly one of Debit and Credit is set.
type StatementLine struct {
	TransactionID   int64               `json:"transaction_id"`
	Date            time.Time           `json:"date"`
	Type            TransactionType     `json:"transaction_type"`
	Description     string              `json:"description"`
	ReferenceNumber string              `json:"reference_number"`
	Debit           decimal.NullDecimal `json:"debit"`
	Credit          decimal.NullDecimal `json:"credit"`
	Balance         decimal.Decimal     `json:"balance"`
	Reversed        bool                `json:"reversed"`
}

type Statement struct {
	Account        AccountRef      `json:"account"`
	Start          time.Time       `json:"start_date"`
	End            time.Time       `json:"end_date"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
	TotalDebits    decimal.Decimal `json:"total_debits"`
	TotalCredits   decimal.Decimal `json:"total_credits"`
	Lines          []StatementLine `json:"lines"`
}

// IntegrityReport is the result of rebuilding an account's balance chain from its log.
type IntegrityReport struct {
	Account       AccountRef      `json:"account"`
	Transactions  int             `json:"transactions"`
	LogBalance    decimal.Decimal `json:"log_balance"`
	CachedBalance decimal.Decimal `json:"cached_balance"`
	Issues        []string        `json:"issues"`
}

func (r IntegrityReport) OK() bool { return len(r.Issues) == 0 }
