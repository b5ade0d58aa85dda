// Package storage is the SQLite implementation of the ledger store.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"gofinances/internal/core"
	"gofinances/internal/ledger"
)

// maxParams keeps IN lists below SQLite's bound-variable limit.
const maxParams = 500

const selectTransactions = `
SELECT t.id, t.title, t.value, t.type, t.category_id, t.created_at, t.updated_at,
       c.id, c.title, c.created_at, c.updated_at
FROM transactions t
JOIN categories c ON c.id = t.category_id`

type SQLiteRepository struct {
	db *sql.DB
}

var _ ledger.Store = (*SQLiteRepository)(nil)

// DSN builds the connection string for dbPath. Write transactions take the
// database lock at BEGIN so the balance read inside them cannot go stale.
func DSN(dbPath string) string {
	return "file:" + dbPath +
		"?_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_txlock=immediate"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) FindTransactions(ctx context.Context, filter ledger.TransactionFilter) ([]core.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if filter.Type != "" {
		where = append(where, "t.type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.CategoryID != "" {
		where = append(where, "t.category_id = ?")
		args = append(args, filter.CategoryID)
	}

	query := selectTransactions
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY t.rowid"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) FindTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, selectTransactions+" WHERE t.id = ?", id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	return t, err
}

func (r *SQLiteRepository) SaveTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	saved, err := r.SaveTransactions(ctx, []core.Transaction{t})
	if err != nil {
		return core.Transaction{}, err
	}
	return saved[0], nil
}

// SaveTransactions inserts the batch in one transaction after re-reading the
// balance under the write lock. If any outcome of the batch is no longer
// covered the whole batch is refused with core.ErrLedgerConflict.
func (r *SQLiteRepository) SaveTransactions(ctx context.Context, ts []core.Transaction) ([]core.Transaction, error) {
	if len(ts) == 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	balance, err := currentBalance(ctx, tx)
	if err != nil {
		return nil, err
	}
	if _, err := balance.VerifyAppend(ts); err != nil {
		return nil, err
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO transactions (id, title, value, type, category_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range ts {
		if _, err := stmt.ExecContext(ctx,
			t.ID, t.Title, t.Value.String(), string(t.Type), t.CategoryID,
			formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
		); err != nil {
			return nil, fmt.Errorf("insert transaction %s: %w", t.ID, err)
		}
	}

	categories, err := categoriesByID(ctx, tx, ts)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transactions: %w", err)
	}

	saved := make([]core.Transaction, len(ts))
	for i, t := range ts {
		if c, ok := categories[t.CategoryID]; ok {
			t.Category = &c
		}
		saved[i] = t
	}

	slog.InfoContext(ctx, "Transactions saved to SQLite",
		"count", len(ts),
		"total", balance.Total.String())

	return saved, nil
}

// DeleteTransaction removes a transaction unless doing so would leave the
// total negative, which returns core.ErrLedgerConflict.
func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var typ, value string
	err = tx.QueryRowContext(ctx, `SELECT type, value FROM transactions WHERE id = ?`, id).Scan(&typ, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get transaction %s: %w", id, err)
	}

	amount, err := decimal.NewFromString(value)
	if err != nil {
		return fmt.Errorf("transaction %s: bad stored value %q: %w", id, value, err)
	}
	balance, err := currentBalance(ctx, tx)
	if err != nil {
		return err
	}
	after := balance.Revert(core.Entry{Type: core.TransactionType(typ), Value: amount})
	if after.Total.IsNegative() {
		return fmt.Errorf("delete transaction %s: %w", id, core.ErrLedgerConflict)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}

	slog.InfoContext(ctx, "Transaction deleted from SQLite", "id", id)
	return nil
}

func (r *SQLiteRepository) FindCategoriesByTitles(ctx context.Context, titles []string) ([]core.Category, error) {
	var out []core.Category
	for start := 0; start < len(titles); start += maxParams {
		end := min(start+maxParams, len(titles))
		chunk := titles[start:end]

		args := make([]any, len(chunk))
		for i, t := range chunk {
			args[i] = t
		}
		query := `SELECT id, title, created_at, updated_at FROM categories WHERE title IN (` +
			placeholders(len(chunk)) + `)`

		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("query categories: %w", err)
		}
		for rows.Next() {
			c, err := scanCategory(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			out = append(out, c)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("iterate categories: %w", err)
		}
	}
	return out, nil
}

func (r *SQLiteRepository) SaveCategory(ctx context.Context, c core.Category) (core.Category, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.Title, formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return core.Category{}, fmt.Errorf("category %q: %w", c.Title, core.ErrUniqueViolation)
		}
		return core.Category{}, fmt.Errorf("insert category: %w", err)
	}

	slog.InfoContext(ctx, "Category saved to SQLite", "id", c.ID, "title", c.Title)
	return c, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func currentBalance(ctx context.Context, q queryer) (core.Balance, error) {
	rows, err := q.QueryContext(ctx, `SELECT type, value FROM transactions`)
	if err != nil {
		return core.Balance{}, fmt.Errorf("query balance: %w", err)
	}
	defer rows.Close()

	var b core.Balance
	for rows.Next() {
		var typ, value string
		if err := rows.Scan(&typ, &value); err != nil {
			return core.Balance{}, fmt.Errorf("scan balance row: %w", err)
		}
		amount, err := decimal.NewFromString(value)
		if err != nil {
			return core.Balance{}, fmt.Errorf("bad stored value %q: %w", value, err)
		}
		b = b.Apply(core.Entry{Type: core.TransactionType(typ), Value: amount})
	}
	if err := rows.Err(); err != nil {
		return core.Balance{}, fmt.Errorf("iterate balance rows: %w", err)
	}
	return b, nil
}

func categoriesByID(ctx context.Context, q queryer, ts []core.Transaction) (map[string]core.Category, error) {
	seen := make(map[string]struct{})
	var ids []any
	for _, t := range ts {
		if _, ok := seen[t.CategoryID]; ok {
			continue
		}
		seen[t.CategoryID] = struct{}{}
		ids = append(ids, t.CategoryID)
	}

	out := make(map[string]core.Category, len(ids))
	for start := 0; start < len(ids); start += maxParams {
		chunk := ids[start:min(start+maxParams, len(ids))]
		rows, err := q.QueryContext(ctx,
			`SELECT id, title, created_at, updated_at FROM categories WHERE id IN (`+placeholders(len(chunk))+`)`,
			chunk...)
		if err != nil {
			return nil, fmt.Errorf("query categories: %w", err)
		}
		for rows.Next() {
			c, err := scanCategory(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			out[c.ID] = c
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("iterate categories: %w", err)
		}
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		t                  core.Transaction
		c                  core.Category
		value, typ         string
		tCreated, tUpdated string
		cCreated, cUpdated string
	)
	err := s.Scan(&t.ID, &t.Title, &value, &typ, &t.CategoryID, &tCreated, &tUpdated,
		&c.ID, &c.Title, &cCreated, &cUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, err
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}

	if t.Value, err = decimal.NewFromString(value); err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s: bad stored value %q: %w", t.ID, value, err)
	}
	t.Type = core.TransactionType(typ)
	t.CreatedAt = parseTime(tCreated)
	t.UpdatedAt = parseTime(tUpdated)
	c.CreatedAt = parseTime(cCreated)
	c.UpdatedAt = parseTime(cUpdated)
	t.Category = &c
	return t, nil
}

func scanCategory(s scanner) (core.Category, error) {
	var (
		c                core.Category
		created, updated string
	)
	if err := s.Scan(&c.ID, &c.Title, &created, &updated); err != nil {
		return core.Category{}, fmt.Errorf("scan category: %w", err)
	}
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(updated)
	return c, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	if code != sqlite3.SQLITE_CONSTRAINT_UNIQUE && code&0xff != sqlite3.SQLITE_CONSTRAINT {
		return false
	}
	return strings.Contains(se.Error(), "categories.title")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
