// Package storetest holds the behaviour every storage.Store implementation
// must share. Implementations call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/ledger/internal/models"
	"github.com/mmynk/ledger/internal/storage"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) storage.Store

var errAbort = errors.New("abort")

// MustInvoice creates and stores an invoice for amount.
func MustInvoice(t *testing.T, store storage.Store, amount float64) *models.Invoice {
	t.Helper()
	inv, err := models.NewInvoice(amount)
	require.NoError(t, err)
	require.NoError(t, store.CreateInvoice(context.Background(), inv))
	return inv
}

// Run exercises the storage.Store contract against stores from newStore.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("CreateInvoice generates ID", func(t *testing.T) {
		store := newStore(t)
		inv := MustInvoice(t, store, 100)
		assert.NotEmpty(t, inv.ID)
	})

	t.Run("GetInvoice returns a snapshot", func(t *testing.T) {
		store := newStore(t)
		inv := MustInvoice(t, store, 50)

		got, err := store.GetInvoice(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, 50.0, got.Amount)
		assert.Equal(t, inv.CreatedAt.UnixNano(), got.CreatedAt.UnixNano())
		got.Outstanding = 0

		again, err := store.GetInvoice(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, 50.0, again.Outstanding)
	})

	t.Run("GetInvoice returns error for nonexistent invoice", func(t *testing.T) {
		store := newStore(t)
		_, err := store.GetInvoice(ctx, "nonexistent-id")
		assert.ErrorIs(t, err, models.ErrInvoiceNotFound)
	})

	t.Run("CreateInvoice rejects duplicate ID", func(t *testing.T) {
		store := newStore(t)
		inv := MustInvoice(t, store, 1)
		dup := &models.Invoice{ID: inv.ID, Amount: 2, Outstanding: 2}
		assert.Error(t, store.CreateInvoice(ctx, dup))
	})

	t.Run("ListInvoices keeps creation order", func(t *testing.T) {
		store := newStore(t)
		a := MustInvoice(t, store, 1)
		b := MustInvoice(t, store, 2)
		c := MustInvoice(t, store, 3)

		list, err := store.ListInvoices(ctx)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, []string{a.ID, b.ID, c.ID}, []string{list[0].ID, list[1].ID, list[2].ID})
	})

	t.Run("WithInvoices keeps changes when fn succeeds", func(t *testing.T) {
		store := newStore(t)
		inv := MustInvoice(t, store, 100)

		err := store.WithInvoices(ctx, []string{inv.ID, inv.ID, "missing"}, func(_ context.Context, live map[string]*models.Invoice) error {
			assert.Len(t, live, 1)
			_, err := live[inv.ID].PayIn(40)
			return err
		})
		require.NoError(t, err)

		got, err := store.GetInvoice(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, 60.0, got.Outstanding)
	})

	t.Run("WithInvoices discards changes when fn fails", func(t *testing.T) {
		store := newStore(t)
		inv := MustInvoice(t, store, 100)

		err := store.WithInvoices(ctx, []string{inv.ID}, func(_ context.Context, live map[string]*models.Invoice) error {
			if _, err := live[inv.ID].PayIn(40); err != nil {
				return err
			}
			return errAbort
		})
		assert.ErrorIs(t, err, errAbort)

		got, err := store.GetInvoice(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, 100.0, got.Outstanding)
	})

	t.Run("payments round trip", func(t *testing.T) {
		store := newStore(t)
		p := models.NewPayment("John Doe", []models.Allocation{
			{InvoiceID: "a", Amount: 1},
			{InvoiceID: "b", Amount: 2.5},
		})
		require.NoError(t, store.CreatePayment(ctx, p))
		assert.NotEmpty(t, p.ID)

		got, err := store.GetPayment(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.Payee, got.Payee)
		assert.Equal(t, models.PaymentStatusCreated, got.Status)
		assert.Nil(t, got.ExecutedAt)
		require.Len(t, got.Transactions, 2)
		assert.True(t, got.Transactions[0].SameAllocation(p.Transactions[0]))
		assert.True(t, got.Transactions[1].SameAllocation(p.Transactions[1]))

		list, err := store.ListPayments(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		_, err = store.GetPayment(ctx, "nonexistent-id")
		assert.ErrorIs(t, err, models.ErrPaymentNotFound)
	})

	t.Run("ListPayments keeps creation order", func(t *testing.T) {
		store := newStore(t)
		first := models.NewPayment("a", nil)
		second := models.NewPayment("b", nil)
		require.NoError(t, store.CreatePayment(ctx, first))
		require.NoError(t, store.CreatePayment(ctx, second))

		list, err := store.ListPayments(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, first.ID, list[0].ID)
		assert.Equal(t, second.ID, list[1].ID)
		assert.Empty(t, list[0].Transactions)
	})

	t.Run("UpdatePaymentStatus compares status", func(t *testing.T) {
		store := newStore(t)
		p := models.NewPayment("Jane", nil)
		require.NoError(t, store.CreatePayment(ctx, p))

		executed := p.Clone()
		executed.Status = models.PaymentStatusExecuted
		at := p.CreatedAt.Add(1000)
		executed.ExecutedAt = &at
		require.NoError(t, store.UpdatePaymentStatus(ctx, executed, models.PaymentStatusCreated))

		failed := p.Clone()
		failed.Status = models.PaymentStatusFailed
		failed.FailureReason = "late"
		err := store.UpdatePaymentStatus(ctx, failed, models.PaymentStatusCreated)
		assert.ErrorIs(t, err, models.ErrPaymentNotPending)

		got, err := store.GetPayment(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusExecuted, got.Status)
		require.NotNil(t, got.ExecutedAt)
		assert.Equal(t, at.UnixNano(), got.ExecutedAt.UnixNano())
		assert.Empty(t, got.FailureReason)

		missing := p.Clone()
		missing.ID = "nonexistent-id"
		err = store.UpdatePaymentStatus(ctx, missing, models.PaymentStatusCreated)
		assert.ErrorIs(t, err, models.ErrPaymentNotFound)
	})

	t.Run("UpdatePaymentStatus inside WithInvoices", func(t *testing.T) {
		store := newStore(t)
		inv := MustInvoice(t, store, 10)
		p := models.NewPayment("Jo", []models.Allocation{{InvoiceID: inv.ID, Amount: 10}})
		require.NoError(t, store.CreatePayment(ctx, p))

		err := store.WithInvoices(ctx, []string{inv.ID}, func(txCtx context.Context, live map[string]*models.Invoice) error {
			next := p.Clone()
			next.Status = models.PaymentStatusExecuted
			if err := store.UpdatePaymentStatus(txCtx, next, models.PaymentStatusCreated); err != nil {
				return err
			}
			_, err := live[inv.ID].PayIn(10)
			return err
		})
		require.NoError(t, err)

		got, err := store.GetPayment(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusExecuted, got.Status)

		paid, err := store.GetInvoice(ctx, inv.ID)
		require.NoError(t, err)
		assert.True(t, paid.IsPaid())
	})

	t.Run("canceled context", func(t *testing.T) {
		store := newStore(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := store.ListInvoices(cctx)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("overlapping WithInvoices calls", func(t *testing.T) {
		store := newStore(t)
		a := MustInvoice(t, store, 1000)
		b := MustInvoice(t, store, 1000)

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			ids := []string{a.ID, b.ID}
			if i%2 == 1 {
				ids = []string{b.ID, a.ID}
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := store.WithInvoices(ctx, ids, func(_ context.Context, live map[string]*models.Invoice) error {
					for _, inv := range live {
						if _, err := inv.PayIn(1); err != nil {
							return err
						}
					}
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		for _, id := range []string{a.ID, b.ID} {
			got, err := store.GetInvoice(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, 950.0, got.Outstanding)
		}
	})
}
