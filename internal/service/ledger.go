package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/coopledger/internal/domain"
	"github.com/punchamoorthee/coopledger/internal/observability"
	"github.com/punchamoorthee/coopledger/internal/store"
)

// StatementCache memoises statements per account and range. Invalidate is called after every
// commit that touches one of the accounts.
type StatementCache interface {
	Fetch(ctx context.Context, ref domain.AccountRef, start, end time.Time,
		load func(context.Context) (domain.Statement, error)) (domain.Statement, error)
	Invalidate(ctx context.Context, refs ...domain.AccountRef) error
}

// Service is the ledger core: posting, reversal, balances and statements over a Store.
type Service struct {
	store   store.Store
	logger  *slog.Logger
	metrics *observability.LedgerMetrics
	cache   StatementCache
	clock   func() time.Time
	newRef  func() string
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *observability.LedgerMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithStatementCache(c StatementCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithNow overrides the clock used for transaction dates.
func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.clock = now
		}
	}
}

// WithReferenceGenerator overrides how missing reference numbers are generated.
func WithReferenceGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newRef = fn
		}
	}
}

func New(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:  st,
		logger: slog.Default(),
		clock:  time.Now,
		newRef: func() string { return "TRX-" + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// now is truncated to microseconds, the finest precision every store keeps.
func (s *Service) now() time.Time {
	return s.clock().UTC().Truncate(time.Microsecond)
}

// inTx runs fn as one unit of work and folds storage failures into domain.ErrPersistence.
func (s *Service) inTx(ctx context.Context, fn func(context.Context, store.Tx) error) error {
	return persistenceErr(s.store.WithTx(ctx, fn))
}

func persistenceErr(err error) error {
	if err == nil || domain.IsLedgerError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
}

// committed runs after a successful commit. Cache failures only cost freshness, so they are logged.
func (s *Service) committed(ctx context.Context, rows ...domain.Transaction) {
	refs := make([]domain.AccountRef, 0, len(rows))
	for _, row := range rows {
		refs = append(refs, row.Account)
		s.logger.Debug("ledger posting committed",
			slog.Int64("transaction_id", row.ID),
			slog.String("account", row.Account.String()),
			slog.String("type", string(row.Type)),
			slog.String("amount", row.Amount.StringFixed(domain.AmountScale)),
			slog.String("balance_after", row.BalanceAfter.StringFixed(domain.AmountScale)))
	}
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, refs...); err != nil {
		s.logger.Warn("statement cache invalidation failed", slog.Any("error", err))
	}
}

func (s *Service) logFailure(operation string, err error, attrs ...any) {
	attrs = append(attrs, slog.String("operation", operation), slog.Any("error", err))
	switch observability.Outcome(err) {
	case "failed":
		s.logger.Error("ledger unit of work failed", attrs...)
	default:
		s.logger.Info("ledger request rejected", attrs...)
	}
}

// CurrentBalance returns the balance_after of the account's newest non-reversed transaction, or zero.
func (s *Service) CurrentBalance(ctx context.Context, ref domain.AccountRef) (decimal.Decimal, error) {
	if err := ref.Validate(); err != nil {
		return decimal.Zero, err
	}
	if _, err := s.store.GetAccount(ctx, ref); err != nil {
		return decimal.Zero, persistenceErr(err)
	}
	last, found, err := s.store.LastTransaction(ctx, ref)
	if err != nil {
		return decimal.Zero, persistenceErr(err)
	}
	if !found {
		return decimal.Zero, nil
	}
	return last.BalanceAfter, nil
}

func (s *Service) OpenAccount(ctx context.Context, in domain.NewAccount) (domain.Account, error) {
	if !in.Kind.Valid() {
		return domain.Account{}, fmt.Errorf("%w: unknown account type %q", domain.ErrInvalidRequest, in.Kind)
	}
	if in.Number == "" {
		return domain.Account{}, fmt.Errorf("%w: account number is required", domain.ErrInvalidRequest)
	}
	acct, err := s.store.CreateAccount(ctx, in)
	if err != nil {
		return domain.Account{}, persistenceErr(err)
	}
	s.logger.Info("account opened", slog.String("account", acct.Ref.String()), slog.String("number", acct.Number))
	return acct, nil
}

// GetAccount reads the account with its cached balance.
func (s *Service) GetAccount(ctx context.Context, ref domain.AccountRef) (domain.Account, error) {
	if err := ref.Validate(); err != nil {
		return domain.Account{}, err
	}
	acct, err := s.store.GetAccount(ctx, ref)
	return acct, persistenceErr(err)
}

func (s *Service) ListAccounts(ctx context.Context, kind domain.AccountKind) ([]domain.Account, error) {
	accts, err := s.store.ListAccounts(ctx, kind)
	return accts, persistenceErr(err)
}

func (s *Service) GetTransaction(ctx context.Context, id int64) (domain.Transaction, error) {
	t, err := s.store.GetTransaction(ctx, id)
	return t, persistenceErr(err)
}

func (s *Service) TransactionsByReference(ctx context.Context, ref domain.ReferenceRef) ([]domain.Transaction, error) {
	if ref.IsZero() {
		return nil, fmt.Errorf("%w: reference is required", domain.ErrInvalidRequest)
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	rows, err := s.store.TransactionsByReference(ctx, ref)
	return rows, persistenceErr(err)
}
