// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
//
// The default DSN is an in-memory database, which lives as long as the store
// does. A file path DSN keeps the ledger on disk instead.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/ledger/internal/models"
	"github.com/mmynk/ledger/internal/storage"
)

// MemoryDSN opens a private in-memory database.
const MemoryDSN = "file::memory:"

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// txKey marks the context handed to WithInvoices callbacks.
type txKey struct{}

// SQLiteStore implements storage.Store using SQLite.
//
// The pool is limited to one connection: an in-memory database exists per
// connection, and SQLite admits a single writer anyway. Store calls inside a
// WithInvoices callback must use the callback's context, or they wait for
// the connection the transaction holds.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the database at dsn and runs migrations.
// For file paths the parent directories are created first.
func New(dsn string) (*SQLiteStore, error) {
	if path := filePath(dsn); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Foreign keys on every connection; writes take the lock at BEGIN.
	db, err := sql.Open("sqlite", withParams(dsn, "_pragma=foreign_keys(1)", "_txlock=immediate"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// WithInvoices loads the requested invoices inside a transaction, runs fn
// and writes changed balances back before committing. Any error rolls the
// whole transaction back, including store calls fn made with its context.
func (s *SQLiteStore) WithInvoices(ctx context.Context, invoiceIDs []string, fn func(context.Context, map[string]*models.Invoice) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	live := make(map[string]*models.Invoice, len(invoiceIDs))
	loaded := make(map[string]float64, len(invoiceIDs))
	for _, id := range invoiceIDs {
		if _, seen := live[id]; seen {
			continue
		}
		inv, err := getInvoice(ctx, tx, id)
		if errors.Is(err, models.ErrInvoiceNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		live[id] = inv
		loaded[id] = inv.Outstanding
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx), live); err != nil {
		return err
	}

	for id, inv := range live {
		if inv.Outstanding == loaded[id] {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE invoices SET outstanding = ? WHERE id = ?",
			inv.Outstanding, id,
		); err != nil {
			return fmt.Errorf("failed to update invoice: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// conn returns the transaction carried by ctx, or the database.
func (s *SQLiteStore) conn(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// filePath returns the on-disk path of dsn, or "" for in-memory databases.
func filePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || strings.Contains(path, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return ""
	}
	return path
}

func withParams(dsn string, params ...string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}
