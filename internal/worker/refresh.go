// Package worker runs the periodic invoice refresh loop. Each watched user's
// invoice list is re-resolved on an interval; results superseded by a newer
// refresh for the same user are discarded, never applied out of order.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pshannon/claimspay/internal/domain"
	"github.com/pshannon/claimspay/internal/telemetry"
)

const (
	// DefaultInterval matches the polling cadence of the invoice surfaces.
	DefaultInterval = 30 * time.Second

	// DefaultConcurrency bounds simultaneous refreshes across users.
	DefaultConcurrency = 4
)

// Snapshot is the last applied resolution for a watched user.
type Snapshot struct {
	Invoices    []domain.Invoice
	RefreshedAt time.Time
}

type userState struct {
	generation uint64
	snapshot   *Snapshot
}

// RefreshWorker keeps a fresh invoice snapshot per watched user.
type RefreshWorker struct {
	reconciler  domain.Reconciler
	logger      *slog.Logger
	metrics     *telemetry.Metrics
	interval    time.Duration
	concurrency int

	mu    sync.Mutex
	users map[int64]*userState
}

// NewRefreshWorker creates a refresh worker. Zero interval and concurrency
// fall back to the defaults.
func NewRefreshWorker(reconciler domain.Reconciler, logger *slog.Logger, metrics *telemetry.Metrics, interval time.Duration, concurrency int) *RefreshWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &RefreshWorker{
		reconciler:  reconciler,
		logger:      logger,
		metrics:     metrics,
		interval:    interval,
		concurrency: concurrency,
		users:       map[int64]*userState{},
	}
}

// Watch adds userID to the refresh set. Watching an already watched user is a
// no-op and keeps the existing snapshot.
func (w *RefreshWorker) Watch(userID int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.users[userID]; !ok {
		w.users[userID] = &userState{}
	}
}

// Unwatch removes userID and drops its snapshot.
func (w *RefreshWorker) Unwatch(userID int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.users, userID)
}

// Snapshot returns the last applied resolution for userID, if any.
func (w *RefreshWorker) Snapshot(userID int64) (*Snapshot, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	state, ok := w.users[userID]
	if !ok || state.snapshot == nil {
		return nil, false
	}
	return state.snapshot, true
}

// RefreshUser resolves userID's invoices now and applies the result unless a
// newer refresh started in the meantime. Each call bumps the user's
// generation; a result is applied only if its generation is still current, so
// a slow in-flight resolution can never overwrite a fresher one.
func (w *RefreshWorker) RefreshUser(ctx context.Context, userID int64) error {
	w.mu.Lock()
	state, ok := w.users[userID]
	if !ok {
		state = &userState{}
		w.users[userID] = state
	}
	state.generation++
	generation := state.generation
	w.mu.Unlock()

	invoices, err := w.reconciler.ResolveInvoicesForUser(ctx, userID)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	current, ok := w.users[userID]
	if !ok {
		// Unwatched while in flight.
		return nil
	}
	if current.generation != generation {
		w.metrics.StaleRefreshDiscarded()
		w.logger.Debug("discarding stale refresh", "user_id", userID, "generation", generation)
		return nil
	}

	current.snapshot = &Snapshot{Invoices: invoices, RefreshedAt: time.Now()}
	return nil
}

// Start runs the refresh loop until ctx is cancelled. Each tick refreshes
// every watched user, bounded by the concurrency limit, and waits for the
// batch to finish before the next tick is honored.
func (w *RefreshWorker) Start(ctx context.Context) {
	w.logger.Info("refresh worker started", "interval", w.interval, "concurrency", w.concurrency)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("refresh worker stopped")
			return
		case <-ticker.C:
			w.refreshAll(ctx)
		}
	}
}

func (w *RefreshWorker) refreshAll(ctx context.Context) {
	w.mu.Lock()
	ids := make([]int64, 0, len(w.users))
	for id := range w.users {
		ids = append(ids, id)
	}
	w.mu.Unlock()

	sem := make(chan struct{}, w.concurrency)
	var wg sync.WaitGroup
	for _, id := range ids {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := w.RefreshUser(ctx, userID); err != nil {
				w.logger.Warn("refresh failed", "user_id", userID, "error", err)
			}
		}(id)
	}
	wg.Wait()
}
