package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/punchamoorthee/coopledger/internal/domain"
)

const (
	// QueueDefault is the queue every ledger task runs on.
	QueueDefault = "default"
	// TaskLedgerVerify rebuilds balance chains and compares them with cached balances.
	TaskLedgerVerify = "ledger:verify"
)

// LedgerVerifyPayload selects the accounts to verify. An empty Kind with no Account means all accounts.
type LedgerVerifyPayload struct {
	Kind    domain.AccountKind `json:"kind,omitempty"`
	Account string             `json:"account,omitempty"`
}

func (p LedgerVerifyPayload) validate() error {
	if p.Account != "" {
		_, err := domain.ParseAccountRef(p.Account)
		return err
	}
	if p.Kind != "" && !p.Kind.Valid() {
		return fmt.Errorf("%w: unknown account type %q", domain.ErrInvalidRequest, p.Kind)
	}
	return nil
}

// NewLedgerVerifyTask constructs the verification task.
func NewLedgerVerifyTask(payload LedgerVerifyPayload) (*asynq.Task, error) {
	if err := payload.validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerVerify, data), nil
}
