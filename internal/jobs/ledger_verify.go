package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/punchamoorthee/coopledger/internal/domain"
	"github.com/punchamoorthee/coopledger/internal/observability"
)

// Verifier is the part of the ledger service the verification job needs.
type Verifier interface {
	ListAccounts(ctx context.Context, kind domain.AccountKind) ([]domain.Account, error)
	VerifyAccount(ctx context.Context, ref domain.AccountRef) (domain.IntegrityReport, error)
}

// VerifySummary totals one verification run.
type VerifySummary struct {
	Accounts  int
	Defective []domain.AccountRef
	Issues    int
}

// LedgerVerifyJob checks every selected account's balance chain. Defects are logged and counted;
// the job only fails when the ledger cannot be read.
type LedgerVerifyJob struct {
	Ledger  Verifier
	Logger  *slog.Logger
	Metrics *observability.JobMetrics
}

func NewLedgerVerifyJob(ledger Verifier, logger *slog.Logger, metrics *observability.JobMetrics) *LedgerVerifyJob {
	return &LedgerVerifyJob{Ledger: ledger, Logger: logger, Metrics: metrics}
}

// Handle is the asynq entry point.
func (j *LedgerVerifyJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Ledger == nil {
		return errors.New("ledger verify: handler not configured")
	}
	var payload LedgerVerifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("ledger verify: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := payload.validate(); err != nil {
		return fmt.Errorf("ledger verify: %v: %w", err, asynq.SkipRetry)
	}
	_, err := j.Run(ctx, payload)
	return err
}

// Run verifies the accounts selected by payload.
func (j *LedgerVerifyJob) Run(ctx context.Context, payload LedgerVerifyPayload) (summary VerifySummary, err error) {
	tracker := j.Metrics.Track(TaskLedgerVerify)
	defer func() { err = tracker.End(err) }()

	start := time.Now()
	logger := j.logger().With(slog.String("kind", string(payload.Kind)), slog.String("account", payload.Account))
	logger.Info("starting ledger verification")

	refs, err := j.targets(ctx, payload)
	if err != nil {
		logger.Error("list accounts failed", slog.Any("error", err))
		return summary, err
	}
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		report, err := j.Ledger.VerifyAccount(ctx, ref)
		if err != nil {
			logger.Error("verify account failed", slog.String("ref", ref.String()), slog.Any("error", err))
			return summary, err
		}
		summary.Accounts++
		if !report.OK() {
			summary.Defective = append(summary.Defective, ref)
			summary.Issues += len(report.Issues)
		}
	}

	logger.Info("completed ledger verification",
		slog.Int("accounts", summary.Accounts),
		slog.Int("defective", len(summary.Defective)),
		slog.Int("issues", summary.Issues),
		slog.Duration("duration", time.Since(start)))
	return summary, nil
}

func (j *LedgerVerifyJob) targets(ctx context.Context, payload LedgerVerifyPayload) ([]domain.AccountRef, error) {
	if payload.Account != "" {
		ref, err := domain.ParseAccountRef(payload.Account)
		if err != nil {
			return nil, err
		}
		return []domain.AccountRef{ref}, nil
	}
	accounts, err := j.Ledger.ListAccounts(ctx, payload.Kind)
	if err != nil {
		return nil, err
	}
	refs := make([]domain.AccountRef, 0, len(accounts))
	for _, acct := range accounts {
		refs = append(refs, acct.Ref)
	}
	return refs, nil
}

func (j *LedgerVerifyJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
