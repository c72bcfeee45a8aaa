package models

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyPaid        = errors.New("invoice is already paid")
	ErrExceedsOutstanding = errors.New("payment amount exceeds outstanding balance")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvoiceNotFound    = errors.New("invoice not found")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrPaymentNotPending  = errors.New("payment is not pending execution")
)

// AlreadyPaidError is returned when money is applied to an invoice whose
// outstanding balance is already zero or below.
type AlreadyPaidError struct {
	InvoiceID string
}

func (e *AlreadyPaidError) Error() string {
	return fmt.Sprintf("invoice %s is fully paid already", e.InvoiceID)
}

func (e *AlreadyPaidError) Is(target error) bool { return target == ErrAlreadyPaid }

// ExceedsOutstandingError is returned when a payment amount is larger than
// what is left to pay on the invoice.
type ExceedsOutstandingError struct {
	InvoiceID   string
	Amount      float64
	Outstanding float64
}

func (e *ExceedsOutstandingError) Error() string {
	return fmt.Sprintf("invoice %s has %.2f outstanding, cannot pay %.2f", e.InvoiceID, e.Outstanding, e.Amount)
}

func (e *ExceedsOutstandingError) Is(target error) bool { return target == ErrExceedsOutstanding }

// InvalidAmountError is returned for negative, zero (payments only), NaN or
// infinite amounts. InvoiceID is empty when the invoice does not exist yet.
type InvalidAmountError struct {
	InvoiceID string
	Amount    float64
}

func (e *InvalidAmountError) Error() string {
	if e.InvoiceID == "" {
		return fmt.Sprintf("invalid invoice amount %v", e.Amount)
	}
	return fmt.Sprintf("invalid payment amount %v for invoice %s", e.Amount, e.InvoiceID)
}

func (e *InvalidAmountError) Is(target error) bool { return target == ErrInvalidAmount }

// TransactionError identifies which transaction of a payment failed
// validation. Index is 0-based, in payment order.
type TransactionError struct {
	Index     int
	InvoiceID string
	Err       error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction %d: %v", e.Index, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }
