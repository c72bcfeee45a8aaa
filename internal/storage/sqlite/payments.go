package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/ledger/internal/models"
)

const selectPayment = "SELECT id, payee, status, created_at, executed_at, failure_reason FROM payments"

// CreatePayment persists a new payment and its transactions.
func (s *SQLiteStore) CreatePayment(ctx context.Context, payment *models.Payment) error {
	// Generate ID if not set
	if payment.ID == "" {
		payment.ID = uuid.New().String()
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}

	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return insertPayment(ctx, tx, payment)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertPayment(ctx, tx, payment); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func insertPayment(ctx context.Context, tx *sql.Tx, payment *models.Payment) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO payments (id, payee, status, created_at, executed_at, failure_reason)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		payment.ID, payment.Payee, string(payment.Status), payment.CreatedAt.UnixNano(),
		nullTime(payment.ExecutedAt), payment.FailureReason,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}

	for i, t := range payment.Transactions {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO payment_transactions (payment_id, position, invoice_id, amount, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			payment.ID, i, t.InvoiceID, t.Amount, t.CreatedAt.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert transaction: %w", err)
		}
	}

	return nil
}

// GetPayment retrieves a payment by ID, including its transactions.
func (s *SQLiteStore) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	q := s.conn(ctx)

	payment, err := scanPayment(q.QueryRowContext(ctx, selectPayment+" WHERE id = ?", paymentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrPaymentNotFound, paymentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	byPayment, err := loadTransactions(ctx, q, "WHERE payment_id = ?", paymentID)
	if err != nil {
		return nil, err
	}
	payment.Transactions = byPayment[payment.ID]

	return payment, nil
}

// ListPayments retrieves all payments in creation order.
func (s *SQLiteStore) ListPayments(ctx context.Context) ([]*models.Payment, error) {
	q := s.conn(ctx)

	rows, err := q.QueryContext(ctx, selectPayment+" ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}

	var payments []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payments: %w", err)
	}

	// The payment rows are closed first: the pool has a single connection.
	byPayment, err := loadTransactions(ctx, q, "")
	if err != nil {
		return nil, err
	}
	for _, p := range payments {
		p.Transactions = byPayment[p.ID]
	}

	return payments, nil
}

// UpdatePaymentStatus stores the outcome of payment if its status is still from.
func (s *SQLiteStore) UpdatePaymentStatus(ctx context.Context, payment *models.Payment, from models.PaymentStatus) error {
	q := s.conn(ctx)

	res, err := q.ExecContext(ctx,
		`UPDATE payments SET status = ?, executed_at = ?, failure_reason = ?
		 WHERE id = ? AND status = ?`,
		string(payment.Status), nullTime(payment.ExecutedAt), payment.FailureReason,
		payment.ID, string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if n == 1 {
		return nil
	}

	var current string
	err = q.QueryRowContext(ctx, "SELECT status FROM payments WHERE id = ?", payment.ID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", models.ErrPaymentNotFound, payment.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to get payment status: %w", err)
	}
	return fmt.Errorf("%w: %s is %s", models.ErrPaymentNotPending, payment.ID, current)
}

// loadTransactions returns transactions grouped by payment ID, in input order.
func loadTransactions(ctx context.Context, q querier, where string, args ...any) (map[string][]models.Transaction, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT payment_id, invoice_id, amount, created_at FROM payment_transactions "+where+" ORDER BY payment_id, position",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	byPayment := make(map[string][]models.Transaction)
	for rows.Next() {
		var (
			paymentID string
			t         models.Transaction
			amount    sql.NullFloat64
			createdAt int64
		)
		if err := rows.Scan(&paymentID, &t.InvoiceID, &amount, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.Amount = math.NaN()
		if amount.Valid {
			t.Amount = amount.Float64
		}
		t.CreatedAt = time.Unix(0, createdAt).UTC()
		byPayment[paymentID] = append(byPayment[paymentID], t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}

	return byPayment, nil
}

func scanPayment(row scanner) (*models.Payment, error) {
	p := &models.Payment{}
	var (
		status     string
		createdAt  int64
		executedAt sql.NullInt64
	)
	if err := row.Scan(&p.ID, &p.Payee, &status, &createdAt, &executedAt, &p.FailureReason); err != nil {
		return nil, err
	}
	p.Status = models.PaymentStatus(status)
	p.CreatedAt = time.Unix(0, createdAt).UTC()
	if executedAt.Valid {
		at := time.Unix(0, executedAt.Int64).UTC()
		p.ExecutedAt = &at
	}
	return p, nil
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}
