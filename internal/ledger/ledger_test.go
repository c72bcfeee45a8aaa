package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/ledger/internal/metrics"
	"github.com/mmynk/ledger/internal/models"
	"github.com/mmynk/ledger/internal/storage"
	"github.com/mmynk/ledger/internal/storage/memory"
	"github.com/mmynk/ledger/internal/storage/sqlite"
	"github.com/mmynk/ledger/internal/storage/storetest"
)

// stores lists the backends every service test runs against.
var stores = []struct {
	name     string
	newStore storetest.Factory
}{
	{"memory", func(t *testing.T) storage.Store {
		store := memory.New()
		t.Cleanup(func() { store.Close() })
		return store
	}},
	{"sqlite", func(t *testing.T) storage.Store {
		store, err := sqlite.New(sqlite.MemoryDSN)
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		return store
	}},
}

func forEachStore(t *testing.T, fn func(t *testing.T, newStore storetest.Factory)) {
	t.Helper()
	for _, s := range stores {
		t.Run(s.name, func(t *testing.T) {
			fn(t, s.newStore)
		})
	}
}

func setupService(t *testing.T, newStore storetest.Factory) (*Service, *metrics.LedgerMetrics) {
	t.Helper()
	m := metrics.New()
	return NewService(newStore(t), m), m
}

func createInvoices(t *testing.T, svc *Service, amounts ...float64) []*models.Invoice {
	t.Helper()
	invoices := make([]*models.Invoice, len(amounts))
	for i, amount := range amounts {
		inv, err := svc.CreateInvoice(context.Background(), amount)
		require.NoError(t, err)
		invoices[i] = inv
	}
	return invoices
}

func outstanding(t *testing.T, svc *Service, invoices []*models.Invoice) []float64 {
	t.Helper()
	out := make([]float64, len(invoices))
	for i, inv := range invoices {
		got, err := svc.GetInvoice(context.Background(), inv.ID)
		require.NoError(t, err)
		out[i] = got.Outstanding
	}
	return out
}

func pay(t *testing.T, svc *Service, allocations ...models.Allocation) (*models.Payment, error) {
	t.Helper()
	p, err := svc.CreatePayment(context.Background(), "John Doe", allocations)
	require.NoError(t, err)
	return svc.ExecutePayment(context.Background(), p.ID)
}

func TestCreateInvoice(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storetest.Factory) {
		svc, m := setupService(t, newStore)
		ctx := context.Background()

		inv, err := svc.CreateInvoice(ctx, 100)
		require.NoError(t, err)
		assert.NotEmpty(t, inv.ID)
		assert.Equal(t, 100.0, inv.Outstanding)

		_, err = svc.CreateInvoice(ctx, -5)
		assert.ErrorIs(t, err, models.ErrInvalidAmount)

		list, err := svc.ListInvoices(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.InvoicesCreated))
	})
}

func TestExecutePayment_SingleInvoice(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storetest.Factory) {
		svc, _ := setupService(t, newStore)
		invoices := createInvoices(t, svc, 100)
		id := invoices[0].ID

		p, err := pay(t, svc,
			models.Allocation{InvoiceID: id, Amount: 10},
			models.Allocation{InvoiceID: id, Amount: 30},
			models.Allocation{InvoiceID: id, Amount: 40},
		)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusExecuted, p.Status)
		assert.NotNil(t, p.ExecutedAt)
		assert.Equal(t, []float64{20}, outstanding(t, svc, invoices))
	})
}

func TestExecutePayment_MultipleInvoices(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storetest.Factory) {
		svc, m := setupService(t, newStore)
		invoices := createInvoices(t, svc, 100, 999, 5553)

		_, err := pay(t, svc,
			models.Allocation{InvoiceID: invoices[0].ID, Amount: 50},
			models.Allocation{InvoiceID: invoices[1].ID, Amount: 66},
			models.Allocation{InvoiceID: invoices[2].ID, Amount: 999},
		)
		require.NoError(t, err)
		assert.Equal(t, []float64{50, 933, 4554}, outstanding(t, svc, invoices))
		assert.Equal(t, 1115.0, testutil.ToFloat64(m.AmountSettled))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.PaymentsExecuted.WithLabelValues("executed")))
	})
}

func TestExecutePayment_ContinuousPayments(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storetest.Factory) {
		svc, _ := setupService(t, newStore)
		invoices := createInvoices(t, svc, 100, 999, 5553)

		_, err := pay(t, svc,
			models.Allocation{InvoiceID: invoices[0].ID, Amount: 100},
			models.Allocation{InvoiceID: invoices[1].ID, Amount: 66},
			models.Allocation{InvoiceID: invoices[2].ID, Amount: 999},
		)
		require.NoError(t, err)

		_, err = pay(t, svc,
			models.Allocation{InvoiceID: invoices[1].ID, Amount: 933},
			models.Allocation{InvoiceID: invoices[2].ID, Amount: 4554},
		)
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 0, 0}, outstanding(t, svc, invoices))
	})
}

func TestExecutePayment_InvalidTransactionLeavesInvoicesUntouched(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storetest.Factory) {
		svc, m := setupService(t, newStore)
		invoices := createInvoices(t, svc, 100)
		id := invoices[0].ID

		p, err := pay(t, svc,
			models.Allocation{InvoiceID: id, Amount: 10},
			models.Allocation{InvoiceID: id, Amount: 30},
			models.Allocation{InvoiceID: id, Amount: 940},
		)
		require.Error(t, err)
		assert.ErrorIs(t, err, models.ErrExceedsOutstanding)

		var txErr *models.TransactionError
		require.True(t, errors.As(err, &txErr))
		assert.Equal(t, 2, txErr.Index)
		assert.Equal(t, id, txErr.InvoiceID)

		require.NotNil(t, p)
		assert.Equal(t, models.PaymentStatusFailed, p.Status)
		assert.NotEmpty(t, p.FailureReason)
		assert.Equal(t, []float64{100}, outstanding(t, svc, invoices))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.PaymentsExecuted.WithLabelValues("failed")))
	})
}

func TestExecutePayment_AtomicAcrossDistinctInvoices(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storetest.Factory) {
		for k := 0; k < 3; k++ {
			svc, _ := setupService(t, newStore)
			invoices := createInvoices(t, svc, 100, 200, 300)

			allocations := []models.Allocation{
				{InvoiceID: invoices[0].ID, Amount: 10},
				{InvoiceID: invoices[1].ID, Amount: 20},
				{InvoiceID: invoices[2].ID, Amount: 30},
			}
			allocations[k].Amount = 1000

			_, err := pay(t, svc, allocations...)
			var txErr *models.TransactionError
			require.True(t, errors.As(err, &txErr), "k=%d", k)
			assert.Equal(t, k, txErr.Index)
			assert.Equal(t, []float64{100, 200, 300}, outstanding(t, svc, invoices), "k=%d", k)
		}
	})
}

// Two transactions on one invoice that each fit the balance but together
// exceed it are rejected; the balance never goes negative.
func TestExecutePayment_SameInvoiceCumulativeOverdraw(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storetest.Factory) {
		svc, _ := setupService(t, newStore)
		invoices := createInvoices(t, svc, 100)
		id := invoices[0].ID

		p, err := pay(t, svc,
			models.Allocation{InvoiceID: id, Amount: 60},
			models.Allocation{InvoiceID: id, Amount: 60},
		)
		require.Error(t, err)
		assert.ErrorIs(t, err, models.ErrExceedsOutstanding)

		var exceeds *models.ExceedsOutstandingError
		require.True(t, errors.As(err, &exceeds))
		assert.Equal(t, 40.0, exceeds.Outstanding)

		assert.Equal(t, models.PaymentStatusFailed, p.Status)
		assert.Equal(t, []float64{100}, outstanding(t, svc, invoices))
	})
}

func TestExecutePayment_SameInvoiceExactTotal(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storetest.Factory) {
		svc, _ := setupService(t, newStore)
		invoices := createInvoices(t, svc, 100)
		id := invoices[0].ID

		_, err := pay(t, svc,
			models.Allocation{InvoiceID: id, Amount: 10},
			models.Allocation{InvoiceID: id, Amount: 90},
		)
		require.NoError(t, err)
		assert.Equal(t, []float64{0}, outstanding(t, svc, invoices))

		_, err = pay(t, svc, models.Allocation{InvoiceID: id, Amount: 1})
		assert.ErrorIs(t, err, models.ErrAlreadyPaid)
	})
}

func TestExecutePayment_Empty(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storetest.Factory) {
		svc, _ := setupService(t, newStore)
		invoices := createInvoices(t, svc, 100)

		p, err := pay(t, svc)
		require.NoError(t, err)
		assert.Empty(t, p.Transactions)
		assert.Equal(t, models.PaymentStatusExecuted, p.Status)
		assert.Equal(t, []float64{100}, outstanding(t, svc, invoices))
	})
}

func TestExecutePayment_UnknownInvoice(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storetest.Factory) {
		svc, _ := setupService(t, newStore)
		invoices := createInvoices(t, svc, 100)

		_, err := pay(t, svc,
			models.Allocation{InvoiceID: invoices[0].ID, Amount: 10},
			models.Allocation{InvoiceID: "missing", Amount: 10},
		)
		assert.ErrorIs(t, err, models.ErrInvoiceNotFound)
		assert.Equal(t, []float64{100}, outstanding(t, svc, invoices))
	})
}

func TestExecutePayment_NonPositiveAmount(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storetest.Factory) {
		svc, _ := setupService(t, newStore)
		invoices := createInvoices(t, svc, 100)

		_, err := pay(t, svc, models.Allocation{InvoiceID: invoices[0].ID, Amount: -10})
		assert.ErrorIs(t, err, models.ErrInvalidAmount)
		assert.Equal(t, []float64{100}, outstanding(t, svc, invoices))
	})
}

func TestExecutePayment_OnlyOnce(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storetest.Factory) {
		svc, m := setupService(t, newStore)
		ctx := context.Background()
		invoices := createInvoices(t, svc, 100)

		p, err := svc.CreatePayment(ctx, "John Doe", []models.Allocation{{InvoiceID: invoices[0].ID, Amount: 10}})
		require.NoError(t, err)

		_, err = svc.ExecutePayment(ctx, p.ID)
		require.NoError(t, err)

		_, err = svc.ExecutePayment(ctx, p.ID)
		assert.ErrorIs(t, err, models.ErrPaymentNotPending)
		assert.Equal(t, []float64{90}, outstanding(t, svc, invoices))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.PaymentsExecuted.WithLabelValues("rejected")))

		_, err = svc.ExecutePayment(ctx, "nonexistent-id")
		assert.ErrorIs(t, err, models.ErrPaymentNotFound)
	})
}

func TestExecutePayment_FailedIsTerminal(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storetest.Factory) {
		svc, _ := setupService(t, newStore)
		ctx := context.Background()
		invoices := createInvoices(t, svc, 100)

		p, err := pay(t, svc, models.Allocation{InvoiceID: invoices[0].ID, Amount: 500})
		require.Error(t, err)

		_, err = svc.ExecutePayment(ctx, p.ID)
		assert.ErrorIs(t, err, models.ErrPaymentNotPending)
	})
}

func TestExecutePayment_ConcurrentPaymentsNeverOverdraw(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storetest.Factory) {
		svc, _ := setupService(t, newStore)
		ctx := context.Background()
		invoices := createInvoices(t, svc, 100, 100)

		var payments []*models.Payment
		for i := 0; i < 40; i++ {
			p, err := svc.CreatePayment(ctx, "payee", []models.Allocation{
				{InvoiceID: invoices[i%2].ID, Amount: 5},
				{InvoiceID: invoices[(i+1)%2].ID, Amount: 5},
			})
			require.NoError(t, err)
			payments = append(payments, p)
		}

		var wg sync.WaitGroup
		for _, p := range payments {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, _ = svc.ExecutePayment(ctx, id)
			}(p.ID)
		}
		wg.Wait()

		// 20 payments fit exactly; the rest must fail with AlreadyPaid.
		assert.Equal(t, []float64{0, 0}, outstanding(t, svc, invoices))

		summary, err := svc.Summary(ctx)
		require.NoError(t, err)
		assert.Equal(t, 20, summary.ExecutedCount)
		assert.Equal(t, 20, summary.FailedCount)
		assert.Equal(t, 200.0, summary.TotalSettled)
	})
}

func TestExecutePayment_ConcurrentSamePayment(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storetest.Factory) {
		svc, _ := setupService(t, newStore)
		ctx := context.Background()
		invoices := createInvoices(t, svc, 100)

		p, err := svc.CreatePayment(ctx, "payee", []models.Allocation{{InvoiceID: invoices[0].ID, Amount: 10}})
		require.NoError(t, err)

		var wg sync.WaitGroup
		var mu sync.Mutex
		succeeded := 0
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := svc.ExecutePayment(ctx, p.ID); err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, succeeded)
		assert.Equal(t, []float64{90}, outstanding(t, svc, invoices))
	})
}

func TestListPayments(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storetest.Factory) {
		svc, _ := setupService(t, newStore)
		ctx := context.Background()

		first, err := svc.CreatePayment(ctx, "a", nil)
		require.NoError(t, err)
		second, err := svc.CreatePayment(ctx, "b", nil)
		require.NoError(t, err)

		list, err := svc.ListPayments(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, first.ID, list[0].ID)
		assert.Equal(t, second.ID, list[1].ID)

		got, err := svc.GetPayment(ctx, second.ID)
		require.NoError(t, err)
		assert.Equal(t, "b", got.Payee)
	})
}
