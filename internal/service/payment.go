package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/pshannon/claimspay/internal/domain"
	"github.com/pshannon/claimspay/internal/finance"
	"github.com/pshannon/claimspay/internal/identity"
	"github.com/pshannon/claimspay/internal/telemetry"
)

type paymentService struct {
	registry domain.Registry
	ledger   domain.Ledger
	finance  finance.Client
	idgen    *identity.Generator
	validate *validator.Validate
	logger   *slog.Logger
	metrics  *telemetry.Metrics

	now func() time.Time
}

// NewPaymentService creates the payment state machine.
func NewPaymentService(registry domain.Registry, ledger domain.Ledger, fc finance.Client, idgen *identity.Generator, logger *slog.Logger, metrics *telemetry.Metrics) domain.PaymentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &paymentService{
		registry: registry,
		ledger:   ledger,
		finance:  fc,
		idgen:    idgen,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// SubmitPayment records a self-service bank-transfer payment. The record is
// written as PAID immediately: the payer's word is trusted, verification is a
// back-office concern. Resubmitting an already-PAID invoice returns the
// existing record unchanged.
func (s *paymentService) SubmitPayment(ctx context.Context, inv domain.Invoice, details domain.BankDetails) (*domain.PaymentRecord, error) {
	const op = "payment.submit"

	existing, err := s.precheck(ctx, op, inv, details)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Status == domain.StatusPaid {
			return existing, nil
		}
		// A pending back-office record owns this invoice now.
		return nil, domain.WrapError(domain.ErrInvalidTransition, domain.EINVALID, op, domain.ErrInvalidTransition.Message)
	}

	rec := s.buildRecord(inv, details, domain.StatusPaid)
	if err := s.register(ctx, inv, rec); err != nil {
		return nil, err
	}

	s.mirrorPaid(ctx, inv, rec)
	return &rec, nil
}

// RecordPendingPayment records a back-office payment that still needs
// verification. The invoice shows PAYMENT_PENDING until VerifyPayment runs.
func (s *paymentService) RecordPendingPayment(ctx context.Context, inv domain.Invoice, details domain.BankDetails) (*domain.PaymentRecord, error) {
	const op = "payment.record_pending"

	existing, err := s.precheck(ctx, op, inv, details)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Status == domain.StatusPaid {
			return nil, domain.WrapError(domain.ErrInvoiceAlreadyPaid, domain.ECONFLICT, op, domain.ErrInvoiceAlreadyPaid.Message)
		}
		// Re-recording a pending payment replaces the details below.
	}

	rec := s.buildRecord(inv, details, domain.StatusPaymentPending)
	if err := s.register(ctx, inv, rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// VerifyPayment confirms a PAYMENT_PENDING record, stamping the confirmation
// date and flipping it to PAID. Any other starting status leaves the record
// untouched and returns ErrInvalidTransition.
func (s *paymentService) VerifyPayment(ctx context.Context, identifier string) (*domain.PaymentRecord, error) {
	const op = "payment.verify"

	rec, err := s.ledger.Payment(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, domain.WrapError(domain.ErrPaymentNotFound, domain.ENOTFOUND, op, domain.ErrPaymentNotFound.Message)
	}
	if rec.Status != domain.StatusPaymentPending {
		return nil, domain.WrapError(domain.ErrInvalidTransition, domain.EINVALID, op, domain.ErrInvalidTransition.Message)
	}

	confirmed := s.now()
	rec.Status = domain.StatusPaid
	rec.ConfirmationDate = &confirmed

	if err := s.ledger.RecordPayment(ctx, rec.InvoiceID, rec.InvoiceNumber, *rec); err != nil {
		return nil, err
	}
	if err := s.registry.UpdateInvoiceStatus(ctx, rec.InvoiceID, rec.InvoiceNumber, domain.StatusPaid); err != nil {
		s.logger.Warn("registry status update failed after verification", "invoice_number", rec.InvoiceNumber, "error", err)
	}

	// Synthesized ML invoices live inside the identity range and have no
	// server-side row to flag.
	if !s.idgen.Collides(rec.InvoiceID) {
		if err := s.finance.MarkInvoicePaid(ctx, rec.InvoiceID); err != nil {
			s.logger.Warn("finance mark-as-paid failed", "invoice_id", rec.InvoiceID, "error", err)
		}
	}

	s.logger.Info("payment verified", "invoice_number", rec.InvoiceNumber, "user_id", rec.UserID)
	return rec, nil
}

// precheck validates the bank details and resolves any existing record for
// the invoice. An API-reported PAID invoice with no local record is a
// conflict: somebody already settled it elsewhere.
func (s *paymentService) precheck(ctx context.Context, op string, inv domain.Invoice, details domain.BankDetails) (*domain.PaymentRecord, error) {
	if err := s.validate.Struct(details); err != nil {
		return nil, domain.WrapError(err, domain.EINVALID, op, "Invalid bank details")
	}
	if inv.InvoiceNumber == "" {
		return nil, domain.Invalid(op, "invoice number is required")
	}

	existing, err := s.registry.InvoicePayment(ctx, inv.InvoiceNumber)
	if err != nil {
		return nil, err
	}
	if existing == nil && inv.Status == domain.StatusPaid {
		return nil, domain.WrapError(domain.ErrInvoiceAlreadyPaid, domain.ECONFLICT, op, domain.ErrInvoiceAlreadyPaid.Message)
	}
	return existing, nil
}

func (s *paymentService) buildRecord(inv domain.Invoice, details domain.BankDetails, status domain.InvoiceStatus) domain.PaymentRecord {
	return domain.PaymentRecord{
		AttemptID:     uuid.NewString(),
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		Amount:        inv.TotalAmount,
		SortCode:      details.SortCode,
		AccountNumber: details.AccountNumber,
		Reference:     details.Reference,
		Status:        status,
		PaymentDate:   s.now(),
		UserID:        inv.UserID,
	}
}

// register writes the record through the registry (and ledger) and caches the
// invoice detail for later status updates. The cache write is best-effort.
func (s *paymentService) register(ctx context.Context, inv domain.Invoice, rec domain.PaymentRecord) error {
	if err := s.registry.RegisterInvoicePayment(ctx, inv.ID, inv.InvoiceNumber, rec); err != nil {
		return err
	}

	inv.Status = rec.Status
	if err := s.registry.CacheInvoice(ctx, inv); err != nil {
		s.logger.Warn("invoice cache write failed", "invoice_number", inv.InvoiceNumber, "error", err)
	}

	s.logger.Info("payment recorded",
		"invoice_number", inv.InvoiceNumber,
		"user_id", inv.UserID,
		"status", rec.Status)
	return nil
}

// mirrorPaid pushes a settled payment to the finance service, best effort.
// Synthesized invoices have no server-side row, so only the payment record
// itself is mirrored for them.
func (s *paymentService) mirrorPaid(ctx context.Context, inv domain.Invoice, rec domain.PaymentRecord) {
	if !inv.Synthesized {
		if err := s.finance.MarkInvoicePaid(ctx, inv.ID); err != nil {
			s.logger.Warn("finance mark-as-paid failed", "invoice_id", inv.ID, "error", err)
		}
	}
	if err := s.finance.CreateInvoicePayment(ctx, rec); err != nil {
		s.logger.Warn("finance payment mirror failed", "invoice_number", rec.InvoiceNumber, "error", err)
	}
}
