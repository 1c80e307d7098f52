// Package finance holds the clients for the external invoice sources: the
// finance invoice API, the ML-invoice API, and the claims/billing-rate API
// used to compute fallback totals. The reconciler only sees the Client
// interface; implementations can be the real HTTP services or the in-package
// mock.
package finance

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/pshannon/claimspay/internal/domain"
)

// Client is the interface over the external finance and claims services.
type Client interface {
	// MLInvoicesForUser lists the user's ML-usage invoices from the
	// dedicated ML-invoice endpoint.
	MLInvoicesForUser(ctx context.Context, userID int64) ([]domain.Invoice, error)

	// ListInvoices queries the general finance invoice index with optional
	// filters. An empty result is not an error.
	ListInvoices(ctx context.Context, params ListInvoicesParams) ([]domain.Invoice, error)

	// MarkInvoicePaid flags an invoice paid on the finance service.
	MarkInvoicePaid(ctx context.Context, invoiceID int64) error

	// CreateInvoicePayment records a payment on the finance service.
	CreateInvoicePayment(ctx context.Context, rec domain.PaymentRecord) error

	// BillableMLUsageTotal sums the user's billable ML-usage claims at the
	// current billing rate, used as the fallback invoice total.
	BillableMLUsageTotal(ctx context.Context, userID int64) (decimal.Decimal, error)
}

// ListInvoicesParams filters the finance invoice index.
// Zero values mean "no filter".
type ListInvoicesParams struct {
	InvoiceType   domain.InvoiceType
	UserID        int64
	InvoiceNumber string
}
