package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Invoice-related domain errors.
var (
	ErrInvoiceNotFound      = &Error{Code: ENOTFOUND, Message: "Invoice not found"}
	ErrPaymentNotFound      = &Error{Code: ENOTFOUND, Message: "Payment record not found"}
	ErrInvoiceAlreadyPaid   = &Error{Code: ECONFLICT, Message: "Invoice already paid"}
	ErrInvalidTransition    = &Error{Code: EINVALID, Message: "Invalid payment status transition"}
	ErrInvalidIdentityInput = &Error{Code: EINVALID, Message: "Invalid invoice identity input"}
	ErrSourceUnavailable    = &Error{Code: EUNAVAILABLE, Message: "Invoice source unavailable"}
	ErrStorageUnavailable   = &Error{Code: EUNAVAILABLE, Message: "Payment storage unavailable"}
)

// InvoiceStatus is the lifecycle status of an invoice.
// DRAFT -> ISSUED -> PAYMENT_PENDING -> PAID, with SENT and OVERDUE as
// display states reachable from DRAFT/ISSUED via back-office actions.
type InvoiceStatus string

const (
	StatusDraft          InvoiceStatus = "DRAFT"
	StatusIssued         InvoiceStatus = "ISSUED"
	StatusSent           InvoiceStatus = "SENT"
	StatusOverdue        InvoiceStatus = "OVERDUE"
	StatusPaymentPending InvoiceStatus = "PAYMENT_PENDING"
	StatusPaid           InvoiceStatus = "PAID"
)

// StatusRank orders statuses for conflict resolution between sources.
// PAID outranks everything; PAYMENT_PENDING outranks the display states.
func StatusRank(s InvoiceStatus) int {
	switch s {
	case StatusPaid:
		return 3
	case StatusPaymentPending:
		return 2
	case StatusIssued, StatusSent, StatusOverdue:
		return 1
	default:
		return 0
	}
}

// ResolveStatus returns the outranking status of the two.
// When sources disagree, the higher-ranked status wins: a PAID record in any
// source makes the invoice PAID regardless of what the other sources report.
func ResolveStatus(a, b InvoiceStatus) InvoiceStatus {
	if StatusRank(b) > StatusRank(a) {
		return b
	}
	return a
}

// InvoiceType distinguishes ML-usage invoices from regular insurance invoices.
type InvoiceType string

const (
	TypeRegular InvoiceType = "regular"
	TypeMLUsage InvoiceType = "ml_usage"
)

// Invoice is one invoice as seen by either surface after reconciliation.
//
// For ml_usage invoices (user_id, billing period) uniquely determines both ID
// and InvoiceNumber: the identity is recomputable, so independent surfaces
// never mint duplicates for the same period.
type Invoice struct {
	ID                 int64           `json:"id"`
	InvoiceNumber      string          `json:"invoice_number"`
	UserID             int64           `json:"user_id"`
	InsuranceCompanyID *int64          `json:"insurance_company_id,omitempty"`
	Title              string          `json:"title"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	CreatedAt          time.Time       `json:"created_at"`
	IssuedDate         time.Time       `json:"issued_date"`
	DueDate            time.Time       `json:"due_date"`
	Status             InvoiceStatus   `json:"status"`
	InvoiceType        InvoiceType     `json:"invoice_type"`

	// Key is a stable render key; synthesized fallback invoices carry a
	// distinguishing prefix so the UI can tell them from server records.
	Key         string `json:"key,omitempty"`
	Synthesized bool   `json:"synthesized,omitempty"`

	// Payment is the overlaid payment record, when one exists in the ledger.
	Payment *PaymentRecord `json:"payment,omitempty"`
}

// PaymentRecord is one payment attempt against an invoice.
// Created once per attempt, never deleted, superseded by later writes.
type PaymentRecord struct {
	// AttemptID uniquely identifies this payment attempt across supersessions.
	AttemptID     string          `json:"attempt_id"`
	InvoiceID     int64           `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	Amount        decimal.Decimal `json:"amount"`
	SortCode      string          `json:"sort_code"`
	AccountNumber string          `json:"account_number"`
	Reference     string          `json:"reference"`
	Status        InvoiceStatus   `json:"status"` // PAYMENT_PENDING or PAID
	PaymentDate   time.Time       `json:"payment_date"`
	// ConfirmationDate is set when a pending payment is verified.
	ConfirmationDate *time.Time `json:"payment_confirmation_date,omitempty"`
	UserID           int64      `json:"user_id"`
}

// BankDetails are the payer-supplied details for a bank-transfer payment.
type BankDetails struct {
	SortCode      string `json:"sort_code" validate:"required,len=6,numeric"`
	AccountNumber string `json:"account_number" validate:"required,len=8,numeric"`
	Reference     string `json:"reference" validate:"required,max=64"`
}

// Ledger is the durable local store of payment records. Each record is
// reachable by invoice id and by "number-"+invoice_number, written together
// as one blob so the pair can never diverge.
type Ledger interface {
	// RecordPayment writes rec under both the id key and the number key.
	RecordPayment(ctx context.Context, invoiceID int64, invoiceNumber string, rec PaymentRecord) error

	// Payment looks a record up by id, then by "number-"+identifier, then by
	// scanning stored records for a matching invoice number.
	// Returns (nil, nil) when no record exists; storage failures degrade to
	// the same "not found" answer so reads never fail the caller.
	Payment(ctx context.Context, identifier string) (*PaymentRecord, error)

	// UpdateStatus sets a record's status. Idempotent: re-setting the current
	// status is a no-op. PAID is one-way; downgrades are ErrInvalidTransition.
	UpdateStatus(ctx context.Context, identifier string, status InvoiceStatus) error
}

// Registry is the cross-surface discovery index: which invoice numbers a user
// is known to have, and a cached detail record per number. It lets the
// back-office surface discover invoices that so far only exist in the
// end-user flow.
type Registry interface {
	// RegisterInvoicePayment adds invoiceNumber to the payer's invoice set
	// (payer inferred from rec.UserID) and writes rec into the Ledger.
	RegisterInvoicePayment(ctx context.Context, invoiceID int64, invoiceNumber string, rec PaymentRecord) error

	// CacheInvoice stores a detail record for later status updates.
	// Last write wins.
	CacheInvoice(ctx context.Context, inv Invoice) error

	// UpdateInvoiceStatus updates the cached detail record if present and
	// mirrors the status into the Ledger.
	UpdateInvoiceStatus(ctx context.Context, invoiceID int64, invoiceNumber string, status InvoiceStatus) error

	// UserInvoices returns every invoice number ever registered for the
	// user, de-duplicated, order irrelevant.
	UserInvoices(ctx context.Context, userID int64) ([]string, error)

	// InvoicePayment delegates to the Ledger lookup.
	InvoicePayment(ctx context.Context, identifier string) (*PaymentRecord, error)

	// CanonicalMLInvoiceNumber returns the deterministic ML invoice number
	// for the user's current billing period. Repeated calls within one
	// period return the same number: canonical, not random.
	CanonicalMLInvoiceNumber(userID int64) (string, error)
}

// Reconciler merges the ML-invoice API, the finance API, the registry and the
// ledger into one de-duplicated, status-resolved invoice list.
type Reconciler interface {
	// ResolveInvoicesForUser runs the full multi-source merge for a user.
	ResolveInvoicesForUser(ctx context.Context, userID int64) ([]Invoice, error)

	// ResolveInvoiceList de-duplicates an already-fetched candidate list and
	// applies the payment overlay. Used by the back-office list, which
	// fetches its own candidates.
	ResolveInvoiceList(ctx context.Context, candidates []Invoice) []Invoice
}

// PaymentService governs payment status transitions.
type PaymentService interface {
	// SubmitPayment records a self-service payment. Valid from ISSUED or
	// when no prior record exists; the resulting record is PAID immediately.
	// Submitting against an already-PAID record is a no-op returning the
	// existing record.
	SubmitPayment(ctx context.Context, inv Invoice, details BankDetails) (*PaymentRecord, error)

	// RecordPendingPayment records a back-office payment awaiting
	// verification (PAYMENT_PENDING).
	RecordPendingPayment(ctx context.Context, inv Invoice, details BankDetails) (*PaymentRecord, error)

	// VerifyPayment confirms a PAYMENT_PENDING record, transitioning it to
	// PAID and stamping the confirmation date. Any other starting status is
	// ErrInvalidTransition and the record is left untouched.
	VerifyPayment(ctx context.Context, identifier string) (*PaymentRecord, error)
}
