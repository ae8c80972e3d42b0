// Package models holds the JSON request bodies of the HTTP API and their validation rules.
package models

import (
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/coopledger/internal/domain"
)

type CreateAccountRequest struct {
	AccountType   string `json:"account_type" validate:"required,oneof=member_account coop_account"`
	AccountNumber string `json:"account_number" validate:"required,max=64"`
	Name          string `json:"name" validate:"required,max=255"`
	BankName      string `json:"bank_name" validate:"required_if=AccountType coop_account,max=255"`
	UserID        *int64 `json:"user_id" validate:"omitempty,gt=0"`
}

func (r CreateAccountRequest) ToDomain() domain.NewAccount {
	return domain.NewAccount{
		Kind:     domain.AccountKind(r.AccountType),
		Number:   r.AccountNumber,
		Name:     r.Name,
		BankName: r.BankName,
		UserID:   r.UserID,
	}
}

// PostingRequest is one signed amount against one account. As a double-entry leg the sign is ignored.
type PostingRequest struct {
	AccountType     string          `json:"account_type" validate:"required,oneof=member_account coop_account"`
	AccountID       int64           `json:"account_id" validate:"required,gt=0"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionType string          `json:"transaction_type" validate:"required"`
	ReferenceType   string          `json:"reference_type" validate:"required_with=ReferenceID"`
	ReferenceID     string          `json:"reference_id" validate:"required_with=ReferenceType,max=64"`
	Description     string          `json:"description" validate:"max=1000"`
	ReferenceNumber string          `json:"reference_number" validate:"max=255"`
	CreatedBy       int64           `json:"created_by" validate:"required,gt=0"`
}

func (r PostingRequest) ToDomain() domain.PostingRequest {
	return domain.PostingRequest{
		Account:         domain.AccountRef{Kind: domain.AccountKind(r.AccountType), ID: r.AccountID},
		Amount:          r.Amount,
		Type:            domain.TransactionType(r.TransactionType),
		Reference:       domain.ReferenceRef{Type: domain.ReferenceType(r.ReferenceType), ID: r.ReferenceID},
		Description:     r.Description,
		ReferenceNumber: r.ReferenceNumber,
		CreatedBy:       r.CreatedBy,
	}
}

type DoubleEntryRequest struct {
	Debit  PostingRequest `json:"debit"`
	Credit PostingRequest `json:"credit"`
}

func (r DoubleEntryRequest) ToDomain() domain.DoubleEntryRequest {
	return domain.DoubleEntryRequest{Debit: r.Debit.ToDomain(), Credit: r.Credit.ToDomain()}
}

type ReverseRequest struct {
	Reason     string `json:"reason" validate:"max=500"`
	ReversedBy int64  `json:"reversed_by" validate:"required,gt=0"`
}

type SavingApprovalRequest struct {
	SavingID        string          `json:"saving_id" validate:"required,max=64"`
	MemberAccountID int64           `json:"member_account_id" validate:"required,gt=0"`
	Amount          decimal.Decimal `json:"amount"`
	ReferenceNumber string          `json:"reference_number" validate:"max=255"`
	Description     string          `json:"description" validate:"max=1000"`
	ApprovedBy      int64           `json:"approved_by" validate:"required,gt=0"`
}

type WithdrawalRequest struct {
	RequestID       string          `json:"request_id" validate:"required,max=64"`
	MemberAccountID int64           `json:"member_account_id" validate:"required,gt=0"`
	Amount          decimal.Decimal `json:"amount"`
	ReferenceNumber string          `json:"reference_number" validate:"max=255"`
	Description     string          `json:"description" validate:"max=1000"`
	DisbursedBy     int64           `json:"disbursed_by" validate:"required,gt=0"`
}

type LoanMovementRequest struct {
	LoanID          string          `json:"loan_id" validate:"required,max=64"`
	MemberAccountID int64           `json:"member_account_id" validate:"required,gt=0"`
	CoopAccountID   int64           `json:"coop_account_id" validate:"required,gt=0"`
	Amount          decimal.Decimal `json:"amount"`
	ReferenceNumber string          `json:"reference_number" validate:"max=255"`
	Description     string          `json:"description" validate:"max=1000"`
	RecordedBy      int64           `json:"recorded_by" validate:"required,gt=0"`
}

type JournalEntryRequest struct {
	EntryID         string            `json:"entry_id" validate:"max=64"`
	Debit           domain.AccountRef `json:"debit"`
	Credit          domain.AccountRef `json:"credit"`
	Amount          decimal.Decimal   `json:"amount"`
	ReferenceNumber string            `json:"reference_number" validate:"max=255"`
	Description     string            `json:"description" validate:"max=1000"`
	PostedBy        int64             `json:"posted_by" validate:"required,gt=0"`
}

type FeeRequest struct {
	MemberAccountID int64           `json:"member_account_id" validate:"required,gt=0"`
	Amount          decimal.Decimal `json:"amount"`
	ReferenceType   string          `json:"reference_type" validate:"required_with=ReferenceID"`
	ReferenceID     string          `json:"reference_id" validate:"required_with=ReferenceType,max=64"`
	ReferenceNumber string          `json:"reference_number" validate:"max=255"`
	Description     string          `json:"description" validate:"max=1000"`
	ChargedBy       int64           `json:"charged_by" validate:"required,gt=0"`
}

// IntegrityRunRequest selects the accounts a queued verification covers. Empty means all.
type IntegrityRunRequest struct {
	AccountType string `json:"account_type" validate:"omitempty,oneof=member_account coop_account"`
	Account     string `json:"account" validate:"max=64"`
}

type BalanceResponse struct {
	Account domain.AccountRef `json:"account"`
	Balance decimal.Decimal   `json:"balance"`
}

type QueuedResponse struct {
	TaskID string `json:"task_id"`
	Queue  string `json:"queue"`
}

type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}
