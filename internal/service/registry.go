package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"

	"github.com/pshannon/claimspay/internal/domain"
	"github.com/pshannon/claimspay/internal/identity"
	"github.com/pshannon/claimspay/internal/kv"
)

// registryKey is the namespaced blob holding the cross-surface invoice index.
const registryKey = "claimspay:registry"

// registryState is the wire shape of the registry blob: per-user invoice
// number sets plus cached invoice detail records keyed by invoice number.
type registryState struct {
	Users   map[string][]string       `json:"users"`
	Details map[string]domain.Invoice `json:"details"`
}

func newRegistryState() registryState {
	return registryState{
		Users:   map[string][]string{},
		Details: map[string]domain.Invoice{},
	}
}

type registryService struct {
	store  kv.Store
	ledger domain.Ledger
	idgen  *identity.Generator
	logger *slog.Logger

	mu sync.Mutex
}

// NewRegistryService creates the shared invoice registry over a kv store.
// Payment records registered here are also written through to the ledger.
func NewRegistryService(store kv.Store, ledger domain.Ledger, idgen *identity.Generator, logger *slog.Logger) domain.Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &registryService{
		store:  store,
		ledger: ledger,
		idgen:  idgen,
		logger: logger,
	}
}

// RegisterInvoicePayment adds invoiceNumber to the payer's known set and
// writes the record into the ledger. The registry write is best-effort; the
// ledger write is the one that must succeed.
func (s *registryService) RegisterInvoicePayment(ctx context.Context, invoiceID int64, invoiceNumber string, rec domain.PaymentRecord) error {
	if err := s.ledger.RecordPayment(ctx, invoiceID, invoiceNumber, rec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.load(ctx)
	userKey := strconv.FormatInt(rec.UserID, 10)

	for _, existing := range state.Users[userKey] {
		if existing == invoiceNumber {
			return nil
		}
	}
	state.Users[userKey] = append(state.Users[userKey], invoiceNumber)

	if err := s.save(ctx, state); err != nil {
		// The payment is safe in the ledger; discovery degrades until the
		// next successful registry write.
		s.logger.Warn("invoice registry write failed", "invoice_number", invoiceNumber, "error", err)
	}
	return nil
}

// CacheInvoice stores a detail record under its invoice number, last write wins.
func (s *registryService) CacheInvoice(ctx context.Context, inv domain.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.load(ctx)
	state.Details[inv.InvoiceNumber] = inv
	return s.save(ctx, state)
}

// UpdateInvoiceStatus updates the cached detail record when one exists and
// mirrors the status into the ledger. A missing ledger record is fine: the
// invoice may be known to the registry before any payment exists.
func (s *registryService) UpdateInvoiceStatus(ctx context.Context, invoiceID int64, invoiceNumber string, status domain.InvoiceStatus) error {
	s.mu.Lock()
	state := s.load(ctx)
	if inv, ok := state.Details[invoiceNumber]; ok {
		inv.Status = status
		state.Details[invoiceNumber] = inv
		if err := s.save(ctx, state); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.mu.Unlock()

	err := s.ledger.UpdateStatus(ctx, invoiceNumber, status)
	if err != nil && domain.IsCode(err, domain.ENOTFOUND) {
		return nil
	}
	return err
}

// UserInvoices returns the user's registered invoice numbers, de-duplicated.
func (s *registryService) UserInvoices(ctx context.Context, userID int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.load(ctx)
	numbers := state.Users[strconv.FormatInt(userID, 10)]

	seen := make(map[string]struct{}, len(numbers))
	out := make([]string, 0, len(numbers))
	for _, n := range numbers {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out, nil
}

// InvoicePayment delegates to the ledger lookup.
func (s *registryService) InvoicePayment(ctx context.Context, identifier string) (*domain.PaymentRecord, error) {
	return s.ledger.Payment(ctx, identifier)
}

// CanonicalMLInvoiceNumber derives the deterministic ML invoice number for
// the user's current billing period.
func (s *registryService) CanonicalMLInvoiceNumber(userID int64) (string, error) {
	ident, err := s.idgen.Generate(userID, identity.CurrentPeriod())
	if err != nil {
		return "", err
	}
	return ident.Number, nil
}

func (s *registryService) load(ctx context.Context) registryState {
	data, err := s.store.Get(ctx, registryKey)
	if err != nil {
		if !kv.IsNotFound(err) {
			s.logger.Warn("invoice registry unavailable, degrading to empty", "error", err)
		}
		return newRegistryState()
	}

	var state registryState
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn("invoice registry corrupt, degrading to empty", "error", err)
		return newRegistryState()
	}
	if state.Users == nil {
		state.Users = map[string][]string{}
	}
	if state.Details == nil {
		state.Details = map[string]domain.Invoice{}
	}
	return state
}

func (s *registryService) save(ctx context.Context, state registryState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return domain.Internal(err, "registry.save", "failed to encode registry state")
	}
	if err := s.store.Put(ctx, registryKey, data); err != nil {
		return domain.Unavailable(err, "registry.save", domain.ErrStorageUnavailable.Message)
	}
	return nil
}
