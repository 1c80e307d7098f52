package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pshannon/claimspay/internal/domain"
)

// fakeReconciler lets tests control when a resolution completes.
type fakeReconciler struct {
	mu      sync.Mutex
	results map[int64][]domain.Invoice

	// release, when set, blocks ResolveInvoicesForUser until it is closed.
	release chan struct{}
}

func newFakeReconciler() *fakeReconciler {
	return &fakeReconciler{results: map[int64][]domain.Invoice{}}
}

func (f *fakeReconciler) setResult(userID int64, invoices []domain.Invoice) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[userID] = invoices
}

func (f *fakeReconciler) ResolveInvoicesForUser(ctx context.Context, userID int64) ([]domain.Invoice, error) {
	f.mu.Lock()
	release := f.release
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results[userID], nil
}

func (f *fakeReconciler) ResolveInvoiceList(ctx context.Context, candidates []domain.Invoice) []domain.Invoice {
	return candidates
}

func TestRefreshUserAppliesSnapshot(t *testing.T) {
	rec := newFakeReconciler()
	rec.setResult(7, []domain.Invoice{{InvoiceNumber: "ML-202504-0007"}})

	w := NewRefreshWorker(rec, nil, nil, 0, 0)
	w.Watch(7)

	require.NoError(t, w.RefreshUser(context.Background(), 7))

	snap, ok := w.Snapshot(7)
	require.True(t, ok)
	require.Len(t, snap.Invoices, 1)
	assert.Equal(t, "ML-202504-0007", snap.Invoices[0].InvoiceNumber)
	assert.False(t, snap.RefreshedAt.IsZero())
}

func TestSnapshotMissingBeforeFirstRefresh(t *testing.T) {
	w := NewRefreshWorker(newFakeReconciler(), nil, nil, 0, 0)
	w.Watch(7)

	_, ok := w.Snapshot(7)
	assert.False(t, ok)
}

func TestStaleRefreshDiscarded(t *testing.T) {
	rec := newFakeReconciler()
	w := NewRefreshWorker(rec, nil, nil, 0, 0)
	w.Watch(7)

	// First refresh blocks in flight.
	release := make(chan struct{})
	rec.release = release
	rec.setResult(7, []domain.Invoice{{InvoiceNumber: "STALE"}})

	done := make(chan error, 1)
	go func() {
		done <- w.RefreshUser(context.Background(), 7)
	}()

	// Give the first refresh time to claim its generation.
	time.Sleep(20 * time.Millisecond)

	// A second refresh starts and finishes while the first is stuck.
	rec.mu.Lock()
	rec.release = nil
	rec.results[7] = []domain.Invoice{{InvoiceNumber: "FRESH"}}
	rec.mu.Unlock()
	require.NoError(t, w.RefreshUser(context.Background(), 7))

	// The first refresh completes late with the stale result.
	rec.setResult(7, []domain.Invoice{{InvoiceNumber: "STALE"}})
	close(release)
	require.NoError(t, <-done)

	snap, ok := w.Snapshot(7)
	require.True(t, ok)
	require.Len(t, snap.Invoices, 1)
	assert.Equal(t, "FRESH", snap.Invoices[0].InvoiceNumber)
}

func TestUnwatchDropsSnapshot(t *testing.T) {
	rec := newFakeReconciler()
	rec.setResult(7, []domain.Invoice{{InvoiceNumber: "ML-202504-0007"}})

	w := NewRefreshWorker(rec, nil, nil, 0, 0)
	w.Watch(7)
	require.NoError(t, w.RefreshUser(context.Background(), 7))

	w.Unwatch(7)
	_, ok := w.Snapshot(7)
	assert.False(t, ok)
}

func TestUnwatchWhileInFlightDiscardsResult(t *testing.T) {
	rec := newFakeReconciler()
	release := make(chan struct{})
	rec.release = release
	rec.setResult(7, []domain.Invoice{{InvoiceNumber: "LATE"}})

	w := NewRefreshWorker(rec, nil, nil, 0, 0)
	w.Watch(7)

	done := make(chan error, 1)
	go func() {
		done <- w.RefreshUser(context.Background(), 7)
	}()
	time.Sleep(20 * time.Millisecond)

	w.Unwatch(7)
	close(release)
	require.NoError(t, <-done)

	_, ok := w.Snapshot(7)
	assert.False(t, ok)
}

func TestWatchIsIdempotent(t *testing.T) {
	rec := newFakeReconciler()
	rec.setResult(7, []domain.Invoice{{InvoiceNumber: "KEEP"}})

	w := NewRefreshWorker(rec, nil, nil, 0, 0)
	w.Watch(7)
	require.NoError(t, w.RefreshUser(context.Background(), 7))

	// Re-watching keeps the existing snapshot.
	w.Watch(7)
	snap, ok := w.Snapshot(7)
	require.True(t, ok)
	assert.Equal(t, "KEEP", snap.Invoices[0].InvoiceNumber)
}
