package models

import "time"

// PaymentStatus tracks whether a payment has been settled.
type PaymentStatus string

const (
	PaymentStatusCreated  PaymentStatus = "CREATED"
	PaymentStatusExecuted PaymentStatus = "EXECUTED"
	PaymentStatusFailed   PaymentStatus = "FAILED"
)

// Allocation is the input pair used to build a payment: how much of the
// payment goes to which invoice.
type Allocation struct {
	InvoiceID string
	Amount    float64
}

// Transaction applies part of a payment to a single invoice.
// Transactions are only created by NewPayment and never change afterwards.
type Transaction struct {
	// Amount is the portion of the payment applied to the invoice.
	// Not validated until the payment is executed.
	Amount float64

	// InvoiceID references the target invoice. Several transactions,
	// in the same or different payments, may share an invoice.
	InvoiceID string

	// CreatedAt is when the transaction was built.
	CreatedAt time.Time
}

// SameAllocation compares the amount and target invoice, ignoring timestamps.
func (t Transaction) SameAllocation(other Transaction) bool {
	return t.Amount == other.Amount && t.InvoiceID == other.InvoiceID
}

// Payment is a named batch of transactions that is settled all at once.
type Payment struct {
	// ID is the unique identifier for the payment (UUID format).
	ID string

	// Payee is a free-form name for whoever is paying.
	Payee string

	// Transactions are kept in input order. The list is never modified
	// after NewPayment returns.
	Transactions []Transaction

	// Status starts as CREATED and moves once, to EXECUTED or FAILED.
	Status PaymentStatus

	// CreatedAt is when the payment was built.
	CreatedAt time.Time

	// ExecutedAt is set when the payment leaves CREATED, successfully or not.
	ExecutedAt *time.Time

	// FailureReason holds the settlement error for FAILED payments.
	FailureReason string
}

// NewPayment builds a payment with one transaction per allocation, in order.
// An empty allocation list is accepted and yields a payment that settles
// nothing.
func NewPayment(payee string, allocations []Allocation) *Payment {
	now := time.Now().UTC()
	p := &Payment{
		Payee:        payee,
		Transactions: make([]Transaction, 0, len(allocations)),
		Status:       PaymentStatusCreated,
		CreatedAt:    now,
	}
	for _, a := range allocations {
		p.Transactions = append(p.Transactions, Transaction{
			Amount:    a.Amount,
			InvoiceID: a.InvoiceID,
			CreatedAt: now,
		})
	}
	return p
}

// InvoiceIDs returns the distinct invoices targeted by the payment, in
// first-seen order.
func (p *Payment) InvoiceIDs() []string {
	seen := make(map[string]bool, len(p.Transactions))
	var ids []string
	for _, t := range p.Transactions {
		if seen[t.InvoiceID] {
			continue
		}
		seen[t.InvoiceID] = true
		ids = append(ids, t.InvoiceID)
	}
	return ids
}

// Total is the sum of all transaction amounts.
func (p *Payment) Total() float64 {
	var total float64
	for _, t := range p.Transactions {
		total += t.Amount
	}
	return total
}

// Clone returns a deep copy that shares no memory with p.
func (p *Payment) Clone() *Payment {
	c := *p
	c.Transactions = append([]Transaction(nil), p.Transactions...)
	if p.ExecutedAt != nil {
		at := *p.ExecutedAt
		c.ExecutedAt = &at
	}
	return &c
}
