// Package models defines the core domain models for the ledger.
//
// # Models
//
//   - Invoice: a billable amount with a shrinking outstanding balance
//   - Transaction: one allocation of money from a payment to one invoice
//   - Payment: a named, ordered batch of transactions settled atomically
//
// # Design Principles
//
// 1. **Invoices own their balance**: Outstanding only changes through Invoice.PayIn
// 2. **Validate before mutate**: ValidatePaymentAmount is a pure check, so a batch
// can validate every member before touching any invoice
// 3. **Avoid shared pointers**: Transactions reference invoices by ID, and all
// mutation goes through the store that owns the invoices
// 4. **Errors carry identity**: payment errors expose the invoice ID as a field,
// not only inside the message
//
// The package has no I/O and never logs; callers decide what to report.
package models
