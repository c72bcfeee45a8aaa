// Package storage provides abstractions for ledger data storage.
package storage

import (
	"context"

	"github.com/mmynk/ledger/internal/models"
)

// Store defines the interface for invoice and payment storage.
// Invoices and payments are addressed by generated IDs; callers never hold
// pointers into the store except inside WithInvoices.
type Store interface {
	// CreateInvoice stores a new invoice.
	// The invoice.ID field will be populated by the store.
	CreateInvoice(ctx context.Context, invoice *models.Invoice) error

	// GetInvoice returns a snapshot of the invoice.
	// Returns models.ErrInvoiceNotFound if there is no such invoice.
	GetInvoice(ctx context.Context, invoiceID string) (*models.Invoice, error)

	// ListInvoices returns snapshots of all invoices in creation order.
	ListInvoices(ctx context.Context) ([]*models.Invoice, error)

	// WithInvoices locks the given invoices and calls fn with live pointers
	// to them, keyed by ID. Unknown IDs are absent from the map. Locks are
	// taken in a stable order and held until fn returns, so two calls with
	// overlapping IDs never deadlock.
	//
	// Store calls made with the context passed to fn are part of the same
	// unit of work: if fn returns an error, neither the invoice changes nor
	// those calls take effect, on stores that support rollback. Changes to
	// the live invoices are only kept when fn returns nil.
	WithInvoices(ctx context.Context, invoiceIDs []string, fn func(ctx context.Context, invoices map[string]*models.Invoice) error) error

	// CreatePayment stores a new payment.
	// The payment.ID field will be populated by the store.
	CreatePayment(ctx context.Context, payment *models.Payment) error

	// GetPayment returns a snapshot of the payment.
	// Returns models.ErrPaymentNotFound if there is no such payment.
	GetPayment(ctx context.Context, paymentID string) (*models.Payment, error)

	// ListPayments returns snapshots of all payments in creation order.
	ListPayments(ctx context.Context) ([]*models.Payment, error)

	// UpdatePaymentStatus replaces the stored payment with payment, but only
	// if the stored status is still from. Otherwise it returns
	// models.ErrPaymentNotPending and changes nothing.
	UpdatePaymentStatus(ctx context.Context, payment *models.Payment, from models.PaymentStatus) error

	// Close releases any resources held by the store.
	Close() error
}
