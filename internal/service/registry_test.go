package service

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pshannon/claimspay/internal/domain"
	"github.com/pshannon/claimspay/internal/identity"
)

func newTestRegistry(t *testing.T, store *memStore) domain.Registry {
	t.Helper()
	idgen, err := identity.NewGenerator(identity.DefaultIDOffset)
	require.NoError(t, err)
	ledger := NewLedgerService(store, nil, nil)
	return NewRegistryService(store, ledger, idgen, nil)
}

func TestRegistryRegisterInvoicePayment(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	registry := newTestRegistry(t, store)

	rec := testRecord(100007, "ML-202504-0007", domain.StatusPaid)
	require.NoError(t, registry.RegisterInvoicePayment(ctx, 100007, "ML-202504-0007", rec))

	t.Run("number appears in user set", func(t *testing.T) {
		numbers, err := registry.UserInvoices(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, []string{"ML-202504-0007"}, numbers)
	})

	t.Run("record is in the ledger", func(t *testing.T) {
		got, err := registry.InvoicePayment(ctx, "ML-202504-0007")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, domain.StatusPaid, got.Status)
	})

	t.Run("re-registering does not duplicate", func(t *testing.T) {
		require.NoError(t, registry.RegisterInvoicePayment(ctx, 100007, "ML-202504-0007", rec))
		numbers, err := registry.UserInvoices(ctx, 7)
		require.NoError(t, err)
		assert.Len(t, numbers, 1)
	})

	t.Run("other users see nothing", func(t *testing.T) {
		numbers, err := registry.UserInvoices(ctx, 8)
		require.NoError(t, err)
		assert.Empty(t, numbers)
	})
}

func TestRegistryUpdateInvoiceStatus(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	registry := newTestRegistry(t, store)

	inv := domain.Invoice{
		ID:            100007,
		InvoiceNumber: "ML-202504-0007",
		UserID:        7,
		TotalAmount:   decimal.NewFromInt(200),
		Status:        domain.StatusIssued,
		InvoiceType:   domain.TypeMLUsage,
	}
	require.NoError(t, registry.CacheInvoice(ctx, inv))

	t.Run("without ledger record still succeeds", func(t *testing.T) {
		assert.NoError(t, registry.UpdateInvoiceStatus(ctx, 100007, "ML-202504-0007", domain.StatusSent))
	})

	t.Run("mirrors into ledger when a record exists", func(t *testing.T) {
		rec := testRecord(100007, "ML-202504-0007", domain.StatusPaymentPending)
		require.NoError(t, registry.RegisterInvoicePayment(ctx, 100007, "ML-202504-0007", rec))

		require.NoError(t, registry.UpdateInvoiceStatus(ctx, 100007, "ML-202504-0007", domain.StatusPaid))

		got, err := registry.InvoicePayment(ctx, "ML-202504-0007")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, domain.StatusPaid, got.Status)
	})
}

func TestRegistryCanonicalMLInvoiceNumber(t *testing.T) {
	registry := newTestRegistry(t, newMemStore())

	first, err := registry.CanonicalMLInvoiceNumber(7)
	require.NoError(t, err)
	second, err := registry.CanonicalMLInvoiceNumber(7)
	require.NoError(t, err)

	// Canonical within a billing period, not random.
	assert.Equal(t, first, second)
	assert.True(t, strings.HasPrefix(first, "ML-"))
	assert.True(t, strings.HasSuffix(first, "-0007"))

	_, err = registry.CanonicalMLInvoiceNumber(0)
	assert.Error(t, err)
}

func TestRegistrySurvivesReload(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	registry := newTestRegistry(t, store)

	rec := testRecord(100007, "ML-202504-0007", domain.StatusPaid)
	require.NoError(t, registry.RegisterInvoicePayment(ctx, 100007, "ML-202504-0007", rec))

	// A fresh service over the same medium sees the registered state.
	reloaded := newTestRegistry(t, store)
	numbers, err := reloaded.UserInvoices(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"ML-202504-0007"}, numbers)
}
