package calculator

import "github.com/mmynk/ledger/internal/models"

// Summary aggregates the state of the ledger at a point in time.
type Summary struct {
	InvoiceCount     int     `json:"invoice_count"`
	PaidCount        int     `json:"paid_count"`        // Invoices with nothing outstanding
	TotalBilled      float64 `json:"total_billed"`      // Sum of invoice amounts
	TotalOutstanding float64 `json:"total_outstanding"` // Sum of outstanding balances
	TotalCollected   float64 `json:"total_collected"`   // TotalBilled - TotalOutstanding

	PaymentCount  int     `json:"payment_count"`
	PendingCount  int     `json:"pending_count"`
	ExecutedCount int     `json:"executed_count"`
	FailedCount   int     `json:"failed_count"`
	TotalSettled  float64 `json:"total_settled"` // Sum of executed payment totals
}

// Summarize computes a Summary from invoice and payment snapshots.
//
// TotalCollected and TotalSettled are computed independently: the first from
// invoice balances, the second from executed payments. They agree as long as
// every balance change went through a payment.
func Summarize(invoices []*models.Invoice, payments []*models.Payment) Summary {
	var s Summary

	for _, inv := range invoices {
		s.InvoiceCount++
		s.TotalBilled += inv.Amount
		s.TotalOutstanding += inv.Outstanding
		if inv.IsPaid() {
			s.PaidCount++
		}
	}
	s.TotalCollected = s.TotalBilled - s.TotalOutstanding

	for _, p := range payments {
		s.PaymentCount++
		switch p.Status {
		case models.PaymentStatusExecuted:
			s.ExecutedCount++
			s.TotalSettled += p.Total()
		case models.PaymentStatusFailed:
			s.FailedCount++
		default:
			s.PendingCount++
		}
	}

	return s
}
