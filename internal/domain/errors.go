package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrAccountNotFound       = errors.New("account not found")
	ErrTransactionNotFound   = errors.New("transaction not found")
	ErrAlreadyReversed       = errors.New("transaction already reversed")
	ErrUnbalancedDoubleEntry = errors.New("unbalanced double entry")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrDuplicateReference    = errors.New("duplicate reference number")
	ErrAccountExists         = errors.New("account number already in use")
	ErrInvalidRequest        = errors.New("invalid request")
	ErrPersistence           = errors.New("persistence failure")
)

// AmountScale is the number of fraction digits every stored amount carries.
const AmountScale = 2

// ValidateAmount rejects zero and anything finer than a cent.
func ValidateAmount(amount decimal.Decimal) error {
	if amount.IsZero() {
		return fmt.Errorf("%w: amount must be non-zero", ErrInvalidAmount)
	}
	if !amount.Equal(amount.Truncate(AmountScale)) {
		return fmt.Errorf("%w: %s has more than %d fraction digits", ErrInvalidAmount, amount, AmountScale)
	}
	return nil
}

// IsLedgerError reports whether err is one of the ledger's own outcomes, as opposed to a
// storage failure that still needs wrapping.
func IsLedgerError(err error) bool {
	for _, target := range []error{
		ErrInvalidAmount, ErrAccountNotFound, ErrTransactionNotFound, ErrAlreadyReversed,
		ErrUnbalancedDoubleEntry, ErrInsufficientFunds, ErrDuplicateReference, ErrAccountExists, ErrInvalidRequest,
		ErrPersistence,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
