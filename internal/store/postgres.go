package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/coopledger/internal/domain"
)

//go:embed schema/postgres.sql
var postgresSchema string

const pgUniqueViolation = "23505"

func pgTime(t *time.Time) any { return t }

type PostgresStore struct {
	Db *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(ctx context.Context, connString string, maxConns int32) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresStore{Db: pool}, nil
}

func (s *PostgresStore) Close() {
	s.Db.Close()
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.Db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// WithTx runs fn under READ COMMITTED. Per-account serialization comes from the FOR UPDATE row
// locks taken in LockAccounts, and every statement after the lock sees rows committed before it.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAccount(ctx context.Context, in domain.NewAccount) (domain.Account, error) {
	table, err := accountTable(in.Kind)
	if err != nil {
		return domain.Account{}, err
	}
	row := s.Db.QueryRow(ctx,
		"INSERT INTO "+table+" (account_number, name, bank_name, user_id) VALUES ($1, $2, $3, $4) RETURNING "+accountColumns,
		in.Number, in.Name, in.BankName, nullInt64(in.UserID))
	acct, err := scanAccount(row, in.Kind, pgTime)
	if err != nil {
		if isPgUniqueViolation(err) {
			return domain.Account{}, fmt.Errorf("%w: %s", domain.ErrAccountExists, in.Number)
		}
		return domain.Account{}, fmt.Errorf("create account: %w", err)
	}
	return acct, nil
}

// BulkCreateMemberAccounts opens n empty member accounts numbered prefix-1..prefix-n with COPY.
func (s *PostgresStore) BulkCreateMemberAccounts(ctx context.Context, prefix string, n int) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, n)
	for i := 1; i <= n; i++ {
		rows = append(rows, []any{fmt.Sprintf("%s-%06d", prefix, i), fmt.Sprintf("Member %d", i), now, now})
	}
	return s.Db.CopyFrom(ctx,
		pgx.Identifier{"member_accounts"},
		[]string{"account_number", "name", "created_at", "updated_at"},
		pgx.CopyFromRows(rows),
	)
}

func (s *PostgresStore) GetAccount(ctx context.Context, ref domain.AccountRef) (domain.Account, error) {
	table, err := accountTable(ref.Kind)
	if err != nil {
		return domain.Account{}, err
	}
	row := s.Db.QueryRow(ctx, "SELECT "+accountColumns+" FROM "+table+" WHERE id = $1 AND deleted_at IS NULL", ref.ID)
	acct, err := scanAccount(row, ref.Kind, pgTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, ref)
		}
		return domain.Account{}, err
	}
	return acct, nil
}

func (s *PostgresStore) ListAccounts(ctx context.Context, kind domain.AccountKind) ([]domain.Account, error) {
	kinds := []domain.AccountKind{domain.KindMember, domain.KindCooperative}
	if kind != "" {
		kinds = []domain.AccountKind{kind}
	}
	var out []domain.Account
	for _, k := range kinds {
		table, err := accountTable(k)
		if err != nil {
			return nil, err
		}
		rows, err := s.Db.Query(ctx, "SELECT "+accountColumns+" FROM "+table+" WHERE deleted_at IS NULL ORDER BY id")
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			acct, err := scanAccount(rows, k, pgTime)
			if err != nil {
				rows.Close()
				return nil, err
			}
			out = append(out, acct)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PostgresStore) GetTransaction(ctx context.Context, id int64) (domain.Transaction, error) {
	return pgGetTransaction(ctx, s.Db, id, "")
}

func (s *PostgresStore) LastTransaction(ctx context.Context, ref domain.AccountRef) (domain.Transaction, bool, error) {
	return pgLastTransaction(ctx, s.Db, ref)
}

func (s *PostgresStore) LastTransactionBefore(ctx context.Context, ref domain.AccountRef, t time.Time) (domain.Transaction, bool, error) {
	row := s.Db.QueryRow(ctx,
		"SELECT "+transactionColumns+` FROM transactions
		 WHERE account_type = $1 AND account_id = $2 AND transaction_date < $3 AND deleted_at IS NULL
		 ORDER BY transaction_date DESC, created_at DESC, id DESC LIMIT 1`,
		string(ref.Kind), ref.ID, t)
	return pgOptionalTransaction(row)
}

func (s *PostgresStore) ListTransactions(ctx context.Context, f TransactionFilter) ([]domain.Transaction, error) {
	query := "SELECT " + transactionColumns + ` FROM transactions
		WHERE account_type = $1 AND account_id = $2 AND deleted_at IS NULL`
	args := []any{string(f.Account.Kind), f.Account.ID}
	if !f.From.IsZero() {
		args = append(args, f.From)
		query += fmt.Sprintf(" AND transaction_date >= $%d", len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		query += fmt.Sprintf(" AND transaction_date <= $%d", len(args))
	}
	query += " ORDER BY transaction_date, created_at, id"
	return pgCollect(ctx, s.Db, query, args...)
}

func (s *PostgresStore) TransactionsByReference(ctx context.Context, ref domain.ReferenceRef) ([]domain.Transaction, error) {
	return pgCollect(ctx, s.Db, "SELECT "+transactionColumns+` FROM transactions
		WHERE reference_type = $1 AND reference_id = $2 AND deleted_at IS NULL ORDER BY id`,
		string(ref.Type), ref.ID)
}

type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockAccounts(ctx context.Context, refs ...domain.AccountRef) (map[domain.AccountRef]domain.Account, error) {
	locked := make(map[domain.AccountRef]domain.Account, len(refs))
	for _, ref := range LockOrder(refs) {
		table, err := accountTable(ref.Kind)
		if err != nil {
			return nil, err
		}
		row := t.tx.QueryRow(ctx,
			"SELECT "+accountColumns+" FROM "+table+" WHERE id = $1 AND deleted_at IS NULL FOR UPDATE", ref.ID)
		acct, err := scanAccount(row, ref.Kind, pgTime)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, ref)
			}
			return nil, fmt.Errorf("lock acquisition failed: %w", err)
		}
		locked[ref] = acct
	}
	return locked, nil
}

func (t *pgTx) LastTransaction(ctx context.Context, ref domain.AccountRef) (domain.Transaction, bool, error) {
	return pgLastTransaction(ctx, t.tx, ref)
}

func (t *pgTx) InsertTransaction(ctx context.Context, in domain.Transaction) (domain.Transaction, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO transactions (
			transaction_date, transaction_type, reference_type, reference_id, account_type, account_id,
			amount, balance_before, balance_after, description, reference_number, created_by,
			reversal_of_transaction_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
		RETURNING id`,
		in.TransactionDate, string(in.Type), nullString(string(in.Reference.Type)), nullString(in.Reference.ID),
		string(in.Account.Kind), in.Account.ID, in.Amount, in.BalanceBefore, in.BalanceAfter, in.Description,
		in.ReferenceNumber, in.CreatedBy, nullInt64(in.ReversalOf), in.CreatedAt,
	).Scan(&in.ID)
	if err != nil {
		if isPgUniqueViolation(err) {
			return domain.Transaction{}, fmt.Errorf("%w: %s", domain.ErrDuplicateReference, in.ReferenceNumber)
		}
		return domain.Transaction{}, fmt.Errorf("transaction insert failed: %w", err)
	}
	return in, nil
}

func (t *pgTx) UpdateAccountBalance(ctx context.Context, ref domain.AccountRef, balance decimal.Decimal, at time.Time) error {
	table, err := accountTable(ref.Kind)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, "UPDATE "+table+" SET balance = $1, updated_at = $2 WHERE id = $3", balance, at, ref.ID)
	if err != nil {
		return fmt.Errorf("balance update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, ref)
	}
	return nil
}

func (t *pgTx) LockTransaction(ctx context.Context, id int64) (domain.Transaction, error) {
	return pgGetTransaction(ctx, t.tx, id, " FOR UPDATE")
}

func (t *pgTx) MarkReversed(ctx context.Context, id int64, at time.Time) error {
	tag, err := t.tx.Exec(ctx,
		"UPDATE transactions SET is_reversed = TRUE, updated_at = $2 WHERE id = $1 AND is_reversed = FALSE", id, at)
	if err != nil {
		return fmt.Errorf("reversal flag update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: transaction %d", domain.ErrAlreadyReversed, id)
	}
	return nil
}

func pgGetTransaction(ctx context.Context, q pgQuerier, id int64, suffix string) (domain.Transaction, error) {
	row := q.QueryRow(ctx, "SELECT "+transactionColumns+" FROM transactions WHERE id = $1 AND deleted_at IS NULL"+suffix, id)
	t, err := scanTransaction(row, pgTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Transaction{}, fmt.Errorf("%w: %d", domain.ErrTransactionNotFound, id)
		}
		return domain.Transaction{}, err
	}
	return t, nil
}

func pgLastTransaction(ctx context.Context, q pgQuerier, ref domain.AccountRef) (domain.Transaction, bool, error) {
	row := q.QueryRow(ctx, "SELECT "+transactionColumns+` FROM transactions
		WHERE account_type = $1 AND account_id = $2 AND is_reversed = FALSE AND deleted_at IS NULL
		ORDER BY transaction_date DESC, created_at DESC, id DESC LIMIT 1`,
		string(ref.Kind), ref.ID)
	return pgOptionalTransaction(row)
}

func pgOptionalTransaction(row pgx.Row) (domain.Transaction, bool, error) {
	t, err := scanTransaction(row, pgTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Transaction{}, false, nil
	}
	if err != nil {
		return domain.Transaction{}, false, err
	}
	return t, true, nil
}

func pgCollect(ctx context.Context, q pgQuerier, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows, pgTime)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
