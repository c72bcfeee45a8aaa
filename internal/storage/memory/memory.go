// Package memory provides an in-memory implementation of the storage.Store
// interface. Data lives for the lifetime of the process only.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/mmynk/ledger/internal/models"
	"github.com/mmynk/ledger/internal/storage"
)

// Ensure Store implements storage.Store
var _ storage.Store = (*Store)(nil)

// invoiceEntry pairs an invoice with the lock that guards its balance.
type invoiceEntry struct {
	mu      sync.Mutex
	invoice models.Invoice
}

// Store implements storage.Store with maps keyed by generated IDs.
//
// mu guards the maps and ordering slices. Each invoice balance is guarded by
// its own entry mutex, so settlements on disjoint invoices do not block each
// other.
type Store struct {
	mu           sync.RWMutex
	invoices     map[string]*invoiceEntry
	invoiceOrder []string
	payments     map[string]*models.Payment
	paymentOrder []string
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		invoices: make(map[string]*invoiceEntry),
		payments: make(map[string]*models.Payment),
	}
}

// Close is a no-op; there is nothing to release.
func (s *Store) Close() error {
	return nil
}

// CreateInvoice stores a copy of invoice and assigns its ID.
func (s *Store) CreateInvoice(ctx context.Context, invoice *models.Invoice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if invoice.ID == "" {
		invoice.ID = uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.invoices[invoice.ID]; exists {
		return fmt.Errorf("invoice already exists: %s", invoice.ID)
	}
	s.invoices[invoice.ID] = &invoiceEntry{invoice: *invoice}
	s.invoiceOrder = append(s.invoiceOrder, invoice.ID)
	return nil
}

// GetInvoice returns a snapshot of the invoice.
func (s *Store) GetInvoice(ctx context.Context, invoiceID string) (*models.Invoice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	entry, ok := s.invoices[invoiceID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrInvoiceNotFound, invoiceID)
	}
	return entry.snapshot(), nil
}

// ListInvoices returns snapshots of all invoices in creation order.
func (s *Store) ListInvoices(ctx context.Context) ([]*models.Invoice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	entries := make([]*invoiceEntry, len(s.invoiceOrder))
	for i, id := range s.invoiceOrder {
		entries[i] = s.invoices[id]
	}
	s.mu.RUnlock()

	invoices := make([]*models.Invoice, len(entries))
	for i, entry := range entries {
		invoices[i] = entry.snapshot()
	}
	return invoices, nil
}

// WithInvoices locks the requested invoices in ascending ID order and
// hands fn copies of them. The copies are written back only if fn returns
// nil.
func (s *Store) WithInvoices(ctx context.Context, invoiceIDs []string, fn func(context.Context, map[string]*models.Invoice) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ids := dedupeSorted(invoiceIDs)

	s.mu.RLock()
	entries := make([]*invoiceEntry, 0, len(ids))
	for _, id := range ids {
		if entry, ok := s.invoices[id]; ok {
			entries = append(entries, entry)
		}
	}
	s.mu.RUnlock()

	live := make(map[string]*models.Invoice, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		inv := entry.invoice
		live[inv.ID] = &inv
	}
	defer func() {
		for i := len(entries) - 1; i >= 0; i-- {
			entries[i].mu.Unlock()
		}
	}()

	if err := fn(ctx, live); err != nil {
		return err
	}
	for _, entry := range entries {
		entry.invoice = *live[entry.invoice.ID]
	}
	return nil
}

// CreatePayment stores a copy of payment and assigns its ID.
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if payment.ID == "" {
		payment.ID = uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payments[payment.ID]; exists {
		return fmt.Errorf("payment already exists: %s", payment.ID)
	}
	s.payments[payment.ID] = payment.Clone()
	s.paymentOrder = append(s.paymentOrder, payment.ID)
	return nil
}

// GetPayment returns a snapshot of the payment.
func (s *Store) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	payment, ok := s.payments[paymentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrPaymentNotFound, paymentID)
	}
	return payment.Clone(), nil
}

// ListPayments returns snapshots of all payments in creation order.
func (s *Store) ListPayments(ctx context.Context) ([]*models.Payment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	payments := make([]*models.Payment, len(s.paymentOrder))
	for i, id := range s.paymentOrder {
		payments[i] = s.payments[id].Clone()
	}
	return payments, nil
}

// UpdatePaymentStatus swaps in payment if the stored status still equals from.
func (s *Store) UpdatePaymentStatus(ctx context.Context, payment *models.Payment, from models.PaymentStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.payments[payment.ID]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrPaymentNotFound, payment.ID)
	}
	if current.Status != from {
		return fmt.Errorf("%w: %s is %s", models.ErrPaymentNotPending, payment.ID, current.Status)
	}
	s.payments[payment.ID] = payment.Clone()
	return nil
}

func (e *invoiceEntry) snapshot() *models.Invoice {
	e.mu.Lock()
	defer e.mu.Unlock()
	inv := e.invoice
	return &inv
}

func dedupeSorted(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	n := 0
	for i, id := range out {
		if i > 0 && id == out[n-1] {
			continue
		}
		out[n] = id
		n++
	}
	return out[:n]
}
