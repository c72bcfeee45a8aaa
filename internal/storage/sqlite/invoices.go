package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/ledger/internal/models"
)

// CreateInvoice persists a new invoice to the database.
func (s *SQLiteStore) CreateInvoice(ctx context.Context, invoice *models.Invoice) error {
	// Generate ID if not set
	if invoice.ID == "" {
		invoice.ID = uuid.New().String()
	}
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = time.Now().UTC()
	}

	_, err := s.conn(ctx).ExecContext(ctx,
		"INSERT INTO invoices (id, amount, outstanding, created_at) VALUES (?, ?, ?, ?)",
		invoice.ID, invoice.Amount, invoice.Outstanding, invoice.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert invoice: %w", err)
	}

	return nil
}

// GetInvoice retrieves an invoice by ID.
func (s *SQLiteStore) GetInvoice(ctx context.Context, invoiceID string) (*models.Invoice, error) {
	return getInvoice(ctx, s.conn(ctx), invoiceID)
}

// ListInvoices retrieves all invoices in creation order.
func (s *SQLiteStore) ListInvoices(ctx context.Context) ([]*models.Invoice, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		"SELECT id, amount, outstanding, created_at FROM invoices ORDER BY seq",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*models.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invoices: %w", err)
	}

	return invoices, nil
}

func getInvoice(ctx context.Context, q querier, invoiceID string) (*models.Invoice, error) {
	inv, err := scanInvoice(q.QueryRowContext(ctx,
		"SELECT id, amount, outstanding, created_at FROM invoices WHERE id = ?",
		invoiceID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrInvoiceNotFound, invoiceID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return inv, nil
}

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row scanner) (*models.Invoice, error) {
	inv := &models.Invoice{}
	var createdAt int64
	if err := row.Scan(&inv.ID, &inv.Amount, &inv.Outstanding, &createdAt); err != nil {
		return nil, err
	}
	inv.CreatedAt = time.Unix(0, createdAt).UTC()
	return inv, nil
}
