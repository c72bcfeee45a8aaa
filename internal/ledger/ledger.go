// Package ledger settles payments against invoices.
//
// Settlement is two-phase. Every transaction of a payment is first checked
// against a scratch copy of its invoice; only when all of them pass are the
// live invoices mutated. A failed payment therefore leaves every invoice as
// it was, without any rollback step.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmynk/ledger/internal/calculator"
	"github.com/mmynk/ledger/internal/metrics"
	"github.com/mmynk/ledger/internal/models"
	"github.com/mmynk/ledger/internal/storage"
)

// Service is the in-process API of the ledger.
type Service struct {
	store   storage.Store
	metrics *metrics.LedgerMetrics
}

// NewService creates a Service over the given storage backend.
// A nil m gets a fresh, unexposed set of collectors.
func NewService(store storage.Store, m *metrics.LedgerMetrics) *Service {
	if m == nil {
		m = metrics.New()
	}
	return &Service{store: store, metrics: m}
}

// CreateInvoice creates and stores an invoice for amount.
func (s *Service) CreateInvoice(ctx context.Context, amount float64) (*models.Invoice, error) {
	slog.Debug("CreateInvoice request received", "amount", amount)

	invoice, err := models.NewInvoice(amount)
	if err != nil {
		slog.Info("CreateInvoice rejected", "amount", amount, "error", err)
		return nil, err
	}

	if err := s.store.CreateInvoice(ctx, invoice); err != nil {
		slog.Error("CreateInvoice failed", "error", err)
		return nil, fmt.Errorf("failed to store invoice: %w", err)
	}
	s.metrics.InvoicesCreated.Inc()

	slog.Info("Invoice created", "invoice_id", invoice.ID, "amount", invoice.Amount)
	return invoice, nil
}

// GetInvoice returns a snapshot of an invoice.
func (s *Service) GetInvoice(ctx context.Context, invoiceID string) (*models.Invoice, error) {
	return s.store.GetInvoice(ctx, invoiceID)
}

// ListInvoices returns snapshots of all invoices in creation order.
func (s *Service) ListInvoices(ctx context.Context) ([]*models.Invoice, error) {
	return s.store.ListInvoices(ctx)
}

// CreatePayment builds and stores a payment. Allocations are not checked
// against invoice state until the payment is executed.
func (s *Service) CreatePayment(ctx context.Context, payee string, allocations []models.Allocation) (*models.Payment, error) {
	slog.Debug("CreatePayment request received",
		"payee", payee,
		"transactions_count", len(allocations),
	)

	payment := models.NewPayment(payee, allocations)
	if err := s.store.CreatePayment(ctx, payment); err != nil {
		slog.Error("CreatePayment failed", "error", err)
		return nil, fmt.Errorf("failed to store payment: %w", err)
	}
	s.metrics.PaymentsCreated.Inc()

	slog.Info("Payment created",
		"payment_id", payment.ID,
		"payee", payment.Payee,
		"transactions_count", len(payment.Transactions),
	)
	return payment, nil
}

// GetPayment returns a snapshot of a payment.
func (s *Service) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	return s.store.GetPayment(ctx, paymentID)
}

// ListPayments returns snapshots of all payments in creation order.
func (s *Service) ListPayments(ctx context.Context) ([]*models.Payment, error) {
	return s.store.ListPayments(ctx)
}

// ExecutePayment settles a CREATED payment.
//
// All invoices referenced by the payment are locked for the whole
// settlement. Transactions are validated in order, each one against the
// balance left by the earlier transactions of the same payment, so two
// transactions on one invoice can never overdraw it. The first failure is
// returned as a *models.TransactionError, the payment is marked FAILED and no
// invoice changes. On success every transaction is applied and the payment
// is marked EXECUTED.
//
// The returned payment is nil only when the payment could not be settled at
// all (unknown ID, not pending, storage failure).
func (s *Service) ExecutePayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	slog.Debug("ExecutePayment request received", "payment_id", paymentID)
	start := time.Now()
	defer func() {
		s.metrics.SettlementLatency.Observe(time.Since(start).Seconds())
	}()

	payment, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		slog.Error("ExecutePayment failed", "payment_id", paymentID, "error", err)
		return nil, err
	}
	if payment.Status != models.PaymentStatusCreated {
		s.metrics.PaymentsExecuted.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %s is %s", models.ErrPaymentNotPending, payment.ID, payment.Status)
	}

	var settled *models.Payment
	var validationErr error

	err = s.store.WithInvoices(ctx, payment.InvoiceIDs(), func(txCtx context.Context, live map[string]*models.Invoice) error {
		now := time.Now().UTC()
		next := payment.Clone()
		next.ExecutedAt = &now

		if validationErr = validate(payment.Transactions, live); validationErr != nil {
			next.Status = models.PaymentStatusFailed
			next.FailureReason = validationErr.Error()
			if err := s.store.UpdatePaymentStatus(txCtx, next, models.PaymentStatusCreated); err != nil {
				return err
			}
			settled = next
			return nil
		}

		next.Status = models.PaymentStatusExecuted
		if err := s.store.UpdatePaymentStatus(txCtx, next, models.PaymentStatusCreated); err != nil {
			return err
		}
		for i, t := range payment.Transactions {
			// Cannot fail: validate ran the same steps on copies under the same locks.
			if _, err := live[t.InvoiceID].PayIn(t.Amount); err != nil {
				return fmt.Errorf("failed to apply transaction %d: %w", i, err)
			}
		}
		settled = next
		return nil
	})
	if err != nil {
		s.metrics.PaymentsExecuted.WithLabelValues("rejected").Inc()
		slog.Error("ExecutePayment failed", "payment_id", paymentID, "error", err)
		return nil, err
	}

	if validationErr != nil {
		s.metrics.PaymentsExecuted.WithLabelValues("failed").Inc()
		slog.Info("Payment failed validation", "payment_id", paymentID, "error", validationErr)
		return settled, validationErr
	}

	s.metrics.PaymentsExecuted.WithLabelValues("executed").Inc()
	s.metrics.AmountSettled.Add(payment.Total())
	slog.Info("Payment executed",
		"payment_id", paymentID,
		"payee", payment.Payee,
		"total", payment.Total(),
	)
	return settled, nil
}

// validate dry-runs the transactions on copies of the live invoices and
// returns the first failure.
func validate(transactions []models.Transaction, live map[string]*models.Invoice) error {
	scratch := make(map[string]*models.Invoice, len(live))
	for id, inv := range live {
		c := *inv
		scratch[id] = &c
	}

	for i, t := range transactions {
		inv, ok := scratch[t.InvoiceID]
		if !ok {
			return &models.TransactionError{
				Index:     i,
				InvoiceID: t.InvoiceID,
				Err:       fmt.Errorf("%w: %s", models.ErrInvoiceNotFound, t.InvoiceID),
			}
		}
		if _, err := inv.PayIn(t.Amount); err != nil {
			return &models.TransactionError{Index: i, InvoiceID: t.InvoiceID, Err: err}
		}
	}
	return nil
}

// Summary aggregates the current invoices and payments.
func (s *Service) Summary(ctx context.Context) (calculator.Summary, error) {
	invoices, err := s.store.ListInvoices(ctx)
	if err != nil {
		return calculator.Summary{}, fmt.Errorf("failed to list invoices: %w", err)
	}
	payments, err := s.store.ListPayments(ctx)
	if err != nil {
		return calculator.Summary{}, fmt.Errorf("failed to list payments: %w", err)
	}
	return calculator.Summarize(invoices, payments), nil
}
