package models

import (
	"math"
	"time"
)

// Invoice represents a billable amount and what is still owed on it.
type Invoice struct {
	// ID is the unique identifier for the invoice (UUID format).
	// Assigned by the store when the invoice is created.
	ID string

	// Amount is the original invoice total. Never changes after creation.
	Amount float64

	// Outstanding is the unpaid remainder of Amount.
	// Starts equal to Amount and only decreases, through PayIn.
	Outstanding float64

	// CreatedAt is when the invoice was created.
	CreatedAt time.Time
}

// NewInvoice creates an invoice for the given total with nothing paid yet.
// Negative and non-finite totals are rejected. A zero total is allowed and
// produces an invoice that is already paid.
func NewInvoice(amount float64) (*Invoice, error) {
	if !isFinite(amount) || amount < 0 {
		return nil, &InvalidAmountError{Amount: amount}
	}
	return &Invoice{
		Amount:      amount,
		Outstanding: amount,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// IsPaid reports whether nothing is left to pay.
func (i *Invoice) IsPaid() bool {
	return i.Outstanding <= 0
}

// ValidatePaymentAmount checks that amount can be paid in without mutating
// the invoice. A paid invoice rejects every amount.
func (i *Invoice) ValidatePaymentAmount(amount float64) error {
	if i.IsPaid() {
		return &AlreadyPaidError{InvoiceID: i.ID}
	}
	if !isFinite(amount) || amount <= 0 {
		return &InvalidAmountError{InvoiceID: i.ID, Amount: amount}
	}
	if amount > i.Outstanding {
		return &ExceedsOutstandingError{InvoiceID: i.ID, Amount: amount, Outstanding: i.Outstanding}
	}
	return nil
}

// PayIn applies amount to the invoice and returns the new outstanding
// balance. On error the invoice is left untouched.
func (i *Invoice) PayIn(amount float64) (float64, error) {
	if err := i.ValidatePaymentAmount(amount); err != nil {
		return i.Outstanding, err
	}
	i.Outstanding -= amount
	return i.Outstanding, nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
