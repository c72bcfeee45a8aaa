package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/ledger/internal/models"
	"github.com/mmynk/ledger/internal/storage"
	"github.com/mmynk/ledger/internal/storage/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storage.Store {
		store := New()
		t.Cleanup(func() { store.Close() })
		return store
	})
}

func TestWithInvoicesHandsOutCopies(t *testing.T) {
	store := New()
	ctx := context.Background()
	inv := storetest.MustInvoice(t, store, 100)

	var leaked *models.Invoice
	err := store.WithInvoices(ctx, []string{inv.ID}, func(_ context.Context, live map[string]*models.Invoice) error {
		leaked = live[inv.ID]
		return nil
	})
	require.NoError(t, err)

	leaked.Outstanding = 0
	got, err := store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, got.Outstanding)
}

func TestDedupeSorted(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, dedupeSorted([]string{"c", "a", "b", "a", "c"}))
	assert.Empty(t, dedupeSorted(nil))
}
