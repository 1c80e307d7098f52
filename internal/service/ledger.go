package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"

	"github.com/pshannon/claimspay/internal/domain"
	"github.com/pshannon/claimspay/internal/kv"
	"github.com/pshannon/claimspay/internal/telemetry"
)

// paymentsKey is the single namespaced blob holding every payment record,
// keyed by invoice id and by "number-"+invoice_number.
const paymentsKey = "claimspay:payments"

// numberKeyPrefix prefixes invoice-number keys inside the payments blob.
const numberKeyPrefix = "number-"

type ledgerService struct {
	store   kv.Store
	logger  *slog.Logger
	metrics *telemetry.Metrics

	// mu serializes the read-modify-write cycle on the payments blob.
	// Single-writer within this process; cross-process writers are a
	// documented last-write-wins limitation.
	mu sync.Mutex
}

// NewLedgerService creates the durable payment ledger over a kv store.
func NewLedgerService(store kv.Store, logger *slog.Logger, metrics *telemetry.Metrics) domain.Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &ledgerService{
		store:   store,
		logger:  logger,
		metrics: metrics,
	}
}

// RecordPayment writes rec under both the id and the number key as one blob
// write, so lookup succeeds regardless of which identifier the caller holds.
func (s *ledgerService) RecordPayment(ctx context.Context, invoiceID int64, invoiceNumber string, rec domain.PaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.load(ctx)

	rec.InvoiceID = invoiceID
	rec.InvoiceNumber = invoiceNumber
	records[strconv.FormatInt(invoiceID, 10)] = rec
	records[numberKeyPrefix+invoiceNumber] = rec

	if err := s.save(ctx, records); err != nil {
		return err
	}

	s.metrics.PaymentRecorded(string(rec.Status))
	return nil
}

// Payment looks a record up by id key, then number key, then by scanning for
// a matching invoice number. Absent records and unavailable storage both
// resolve to (nil, nil): the reconciler must stay usable without the ledger.
func (s *ledgerService) Payment(ctx context.Context, identifier string) (*domain.PaymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.lookup(s.load(ctx), identifier)
	return rec, nil
}

// UpdateStatus sets the status of the record found under identifier.
// Idempotent: re-setting the current status is a no-op. PAID is one-way.
func (s *ledgerService) UpdateStatus(ctx context.Context, identifier string, status domain.InvoiceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.load(ctx)
	rec := s.lookup(records, identifier)
	if rec == nil {
		return domain.NotFound("ledger.update_status", "payment", identifier)
	}

	if rec.Status == status {
		return nil
	}
	if rec.Status == domain.StatusPaid {
		return domain.WrapError(domain.ErrInvalidTransition, domain.EINVALID, "ledger.update_status", domain.ErrInvalidTransition.Message)
	}

	// Every alias of this record moves together so the id and number views
	// never disagree.
	for key, stored := range records {
		if stored.InvoiceNumber == rec.InvoiceNumber && stored.InvoiceID == rec.InvoiceID {
			stored.Status = status
			records[key] = stored
		}
	}

	return s.save(ctx, records)
}

// load reads the payments blob. Missing, unavailable, or corrupt storage all
// degrade to an empty map: reads never propagate persistence failures.
func (s *ledgerService) load(ctx context.Context) map[string]domain.PaymentRecord {
	data, err := s.store.Get(ctx, paymentsKey)
	if err != nil {
		if !kv.IsNotFound(err) {
			s.logger.Warn("payment ledger unavailable, degrading to empty", "error", err)
		}
		return map[string]domain.PaymentRecord{}
	}

	var records map[string]domain.PaymentRecord
	if err := json.Unmarshal(data, &records); err != nil {
		s.logger.Warn("payment ledger corrupt, degrading to empty", "error", err)
		return map[string]domain.PaymentRecord{}
	}
	return records
}

// save writes the payments blob. Unlike reads, write failures surface: a
// payment that cannot be durably recorded must be reported to the caller.
func (s *ledgerService) save(ctx context.Context, records map[string]domain.PaymentRecord) error {
	data, err := json.Marshal(records)
	if err != nil {
		return domain.Internal(err, "ledger.save", "failed to encode payment records")
	}
	if err := s.store.Put(ctx, paymentsKey, data); err != nil {
		s.logger.Error("payment ledger write failed", "error", err)
		return domain.Unavailable(err, "ledger.save", domain.ErrStorageUnavailable.Message)
	}
	return nil
}

// lookup resolves an identifier to a record: id key, number key, then scan.
func (s *ledgerService) lookup(records map[string]domain.PaymentRecord, identifier string) *domain.PaymentRecord {
	if rec, ok := records[identifier]; ok {
		return &rec
	}
	if rec, ok := records[numberKeyPrefix+identifier]; ok {
		return &rec
	}
	for _, rec := range records {
		if rec.InvoiceNumber == identifier {
			return &rec
		}
	}
	return nil
}
