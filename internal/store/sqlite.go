package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/coopledger/internal/domain"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

const sqliteTimeLayout = "2006-01-02 15:04:05.000000000"

// sqliteTime reads the fixed-width UTC text timestamps written by sqliteTimeArg.
type sqliteTime time.Time

func (t *sqliteTime) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	case time.Time:
		*t = sqliteTime(v.UTC())
		return nil
	default:
		return fmt.Errorf("sqlite: cannot scan %T into time", src)
	}
	parsed, err := time.ParseInLocation(sqliteTimeLayout, raw, time.UTC)
	if err != nil {
		return err
	}
	*t = sqliteTime(parsed)
	return nil
}

func liteTime(t *time.Time) any { return (*sqliteTime)(t) }

func sqliteTimeArg(t time.Time) string { return t.UTC().Format(sqliteTimeLayout) }

func sqliteDecimalArg(d decimal.Decimal) string { return d.StringFixed(domain.AmountScale) }

// SQLiteStore keeps the ledger in a single SQLite file. Every unit of work starts with
// BEGIN IMMEDIATE, so writers are serialized database-wide.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=10000&_txlock=immediate", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() {
	s.db.Close()
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(context.Context, Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, &liteTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateAccount(ctx context.Context, in domain.NewAccount) (domain.Account, error) {
	table, err := accountTable(in.Kind)
	if err != nil {
		return domain.Account{}, err
	}
	now := sqliteTimeArg(time.Now())
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO "+table+" (account_number, name, bank_name, user_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		in.Number, in.Name, in.BankName, nullInt64(in.UserID), now, now)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return domain.Account{}, fmt.Errorf("%w: %s", domain.ErrAccountExists, in.Number)
		}
		return domain.Account{}, fmt.Errorf("create account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Account{}, err
	}
	return s.GetAccount(ctx, domain.AccountRef{Kind: in.Kind, ID: id})
}

func (s *SQLiteStore) GetAccount(ctx context.Context, ref domain.AccountRef) (domain.Account, error) {
	return liteGetAccount(ctx, s.db, ref)
}

func (s *SQLiteStore) ListAccounts(ctx context.Context, kind domain.AccountKind) ([]domain.Account, error) {
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
		rows, err := s.db.QueryContext(ctx, "SELECT "+accountColumns+" FROM "+table+" WHERE deleted_at IS NULL ORDER BY id")
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			acct, err := scanAccount(rows, k, liteTime)
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

func (s *SQLiteStore) GetTransaction(ctx context.Context, id int64) (domain.Transaction, error) {
	return liteGetTransaction(ctx, s.db, id)
}

func (s *SQLiteStore) LastTransaction(ctx context.Context, ref domain.AccountRef) (domain.Transaction, bool, error) {
	return liteLastTransaction(ctx, s.db, ref)
}

func (s *SQLiteStore) LastTransactionBefore(ctx context.Context, ref domain.AccountRef, t time.Time) (domain.Transaction, bool, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+transactionColumns+` FROM transactions
		 WHERE account_type = ? AND account_id = ? AND transaction_date < ? AND deleted_at IS NULL
		 ORDER BY transaction_date DESC, created_at DESC, id DESC LIMIT 1`,
		string(ref.Kind), ref.ID, sqliteTimeArg(t))
	return liteOptionalTransaction(row)
}

func (s *SQLiteStore) ListTransactions(ctx context.Context, f TransactionFilter) ([]domain.Transaction, error) {
	query := "SELECT " + transactionColumns + ` FROM transactions
		WHERE account_type = ? AND account_id = ? AND deleted_at IS NULL`
	args := []any{string(f.Account.Kind), f.Account.ID}
	if !f.From.IsZero() {
		query += " AND transaction_date >= ?"
		args = append(args, sqliteTimeArg(f.From))
	}
	if !f.To.IsZero() {
		query += " AND transaction_date <= ?"
		args = append(args, sqliteTimeArg(f.To))
	}
	query += " ORDER BY transaction_date, created_at, id"
	return liteCollect(ctx, s.db, query, args...)
}

func (s *SQLiteStore) TransactionsByReference(ctx context.Context, ref domain.ReferenceRef) ([]domain.Transaction, error) {
	return liteCollect(ctx, s.db, "SELECT "+transactionColumns+` FROM transactions
		WHERE reference_type = ? AND reference_id = ? AND deleted_at IS NULL ORDER BY id`,
		string(ref.Type), ref.ID)
}

type liteQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type liteTx struct {
	tx *sql.Tx
}

// LockAccounts only checks existence: BEGIN IMMEDIATE already holds the database write lock.
func (t *liteTx) LockAccounts(ctx context.Context, refs ...domain.AccountRef) (map[domain.AccountRef]domain.Account, error) {
	locked := make(map[domain.AccountRef]domain.Account, len(refs))
	for _, ref := range LockOrder(refs) {
		acct, err := liteGetAccount(ctx, t.tx, ref)
		if err != nil {
			return nil, err
		}
		locked[ref] = acct
	}
	return locked, nil
}

func (t *liteTx) LastTransaction(ctx context.Context, ref domain.AccountRef) (domain.Transaction, bool, error) {
	return liteLastTransaction(ctx, t.tx, ref)
}

func (t *liteTx) InsertTransaction(ctx context.Context, in domain.Transaction) (domain.Transaction, error) {
	res, err := t.tx.ExecContext(ctx, `INSERT INTO transactions (
			transaction_date, transaction_type, reference_type, reference_id, account_type, account_id,
			amount, balance_before, balance_after, description, reference_number, created_by,
			reversal_of_transaction_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sqliteTimeArg(in.TransactionDate), string(in.Type), nullString(string(in.Reference.Type)),
		nullString(in.Reference.ID), string(in.Account.Kind), in.Account.ID,
		sqliteDecimalArg(in.Amount), sqliteDecimalArg(in.BalanceBefore), sqliteDecimalArg(in.BalanceAfter),
		in.Description, in.ReferenceNumber, in.CreatedBy, nullInt64(in.ReversalOf),
		sqliteTimeArg(in.CreatedAt), sqliteTimeArg(in.CreatedAt),
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return domain.Transaction{}, fmt.Errorf("%w: %s", domain.ErrDuplicateReference, in.ReferenceNumber)
		}
		return domain.Transaction{}, fmt.Errorf("transaction insert failed: %w", err)
	}
	if in.ID, err = res.LastInsertId(); err != nil {
		return domain.Transaction{}, err
	}
	return in, nil
}

func (t *liteTx) UpdateAccountBalance(ctx context.Context, ref domain.AccountRef, balance decimal.Decimal, at time.Time) error {
	table, err := accountTable(ref.Kind)
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, "UPDATE "+table+" SET balance = ?, updated_at = ? WHERE id = ?",
		sqliteDecimalArg(balance), sqliteTimeArg(at), ref.ID)
	if err != nil {
		return fmt.Errorf("balance update failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, ref)
	}
	return nil
}

func (t *liteTx) LockTransaction(ctx context.Context, id int64) (domain.Transaction, error) {
	return liteGetTransaction(ctx, t.tx, id)
}

func (t *liteTx) MarkReversed(ctx context.Context, id int64, at time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE transactions SET is_reversed = 1, updated_at = ? WHERE id = ? AND is_reversed = 0", sqliteTimeArg(at), id)
	if err != nil {
		return fmt.Errorf("reversal flag update failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: transaction %d", domain.ErrAlreadyReversed, id)
	}
	return nil
}

func liteGetAccount(ctx context.Context, q liteQuerier, ref domain.AccountRef) (domain.Account, error) {
	table, err := accountTable(ref.Kind)
	if err != nil {
		return domain.Account{}, err
	}
	row := q.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM "+table+" WHERE id = ? AND deleted_at IS NULL", ref.ID)
	acct, err := scanAccount(row, ref.Kind, liteTime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Account{}, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, ref)
		}
		return domain.Account{}, err
	}
	return acct, nil
}

func liteGetTransaction(ctx context.Context, q liteQuerier, id int64) (domain.Transaction, error) {
	row := q.QueryRowContext(ctx, "SELECT "+transactionColumns+" FROM transactions WHERE id = ? AND deleted_at IS NULL", id)
	t, err := scanTransaction(row, liteTime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Transaction{}, fmt.Errorf("%w: %d", domain.ErrTransactionNotFound, id)
		}
		return domain.Transaction{}, err
	}
	return t, nil
}

func liteLastTransaction(ctx context.Context, q liteQuerier, ref domain.AccountRef) (domain.Transaction, bool, error) {
	row := q.QueryRowContext(ctx, "SELECT "+transactionColumns+` FROM transactions
		WHERE account_type = ? AND account_id = ? AND is_reversed = 0 AND deleted_at IS NULL
		ORDER BY transaction_date DESC, created_at DESC, id DESC LIMIT 1`,
		string(ref.Kind), ref.ID)
	return liteOptionalTransaction(row)
}

func liteOptionalTransaction(row *sql.Row) (domain.Transaction, bool, error) {
	t, err := scanTransaction(row, liteTime)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Transaction{}, false, nil
	}
	if err != nil {
		return domain.Transaction{}, false, err
	}
	return t, true, nil
}

func liteCollect(ctx context.Context, q liteQuerier, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows, liteTime)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func isSQLiteUniqueViolation(err error) bool {
	var liteErr sqlite3.Error
	return errors.As(err, &liteErr) && liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
