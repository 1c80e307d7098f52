package finance

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/pshannon/claimspay/internal/domain"
)

// MockClient is a mock finance client for testing.
// Each method can be customized via its Func field; unset methods return the
// corresponding canned fixture.
type MockClient struct {
	// MLInvoicesForUserFunc allows customizing the ML-invoice response.
	MLInvoicesForUserFunc func(ctx context.Context, userID int64) ([]domain.Invoice, error)

	// ListInvoicesFunc allows customizing the finance index response.
	ListInvoicesFunc func(ctx context.Context, params ListInvoicesParams) ([]domain.Invoice, error)

	// MarkInvoicePaidFunc allows customizing mark-as-paid behavior.
	MarkInvoicePaidFunc func(ctx context.Context, invoiceID int64) error

	// CreateInvoicePaymentFunc allows customizing payment recording behavior.
	CreateInvoicePaymentFunc func(ctx context.Context, rec domain.PaymentRecord) error

	// BillableMLUsageTotalFunc allows customizing the fallback total.
	BillableMLUsageTotalFunc func(ctx context.Context, userID int64) (decimal.Decimal, error)

	// MLInvoices is the canned ML-invoice fixture.
	MLInvoices []domain.Invoice

	// Invoices is the canned finance-index fixture; ListInvoices filters it.
	Invoices []domain.Invoice

	// UsageTotal is the canned fallback total.
	UsageTotal decimal.Decimal

	// CallLog tracks method calls for test assertions.
	CallLog []string
}

// NewMockClient creates a mock finance client with empty fixtures.
func NewMockClient() *MockClient {
	return &MockClient{CallLog: []string{}}
}

// MLInvoicesForUser returns the canned ML invoices belonging to userID.
func (m *MockClient) MLInvoicesForUser(ctx context.Context, userID int64) ([]domain.Invoice, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("MLInvoicesForUser(%d)", userID))

	if m.MLInvoicesForUserFunc != nil {
		return m.MLInvoicesForUserFunc(ctx, userID)
	}

	var out []domain.Invoice
	for _, inv := range m.MLInvoices {
		if inv.UserID == userID {
			out = append(out, inv)
		}
	}
	return out, nil
}

// ListInvoices filters the canned finance index the way the real endpoint does.
func (m *MockClient) ListInvoices(ctx context.Context, params ListInvoicesParams) ([]domain.Invoice, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("ListInvoices(%s,%d,%s)", params.InvoiceType, params.UserID, params.InvoiceNumber))

	if m.ListInvoicesFunc != nil {
		return m.ListInvoicesFunc(ctx, params)
	}

	var out []domain.Invoice
	for _, inv := range m.Invoices {
		if params.InvoiceType != "" && inv.InvoiceType != params.InvoiceType {
			continue
		}
		if params.UserID != 0 && inv.UserID != params.UserID {
			continue
		}
		if params.InvoiceNumber != "" && inv.InvoiceNumber != params.InvoiceNumber {
			continue
		}
		out = append(out, inv)
	}
	return out, nil
}

// MarkInvoicePaid records the call and succeeds.
func (m *MockClient) MarkInvoicePaid(ctx context.Context, invoiceID int64) error {
	m.CallLog = append(m.CallLog, fmt.Sprintf("MarkInvoicePaid(%d)", invoiceID))

	if m.MarkInvoicePaidFunc != nil {
		return m.MarkInvoicePaidFunc(ctx, invoiceID)
	}
	return nil
}

// CreateInvoicePayment records the call and succeeds.
func (m *MockClient) CreateInvoicePayment(ctx context.Context, rec domain.PaymentRecord) error {
	m.CallLog = append(m.CallLog, fmt.Sprintf("CreateInvoicePayment(%s)", rec.InvoiceNumber))

	if m.CreateInvoicePaymentFunc != nil {
		return m.CreateInvoicePaymentFunc(ctx, rec)
	}
	return nil
}

// BillableMLUsageTotal returns the canned usage total.
func (m *MockClient) BillableMLUsageTotal(ctx context.Context, userID int64) (decimal.Decimal, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("BillableMLUsageTotal(%d)", userID))

	if m.BillableMLUsageTotalFunc != nil {
		return m.BillableMLUsageTotalFunc(ctx, userID)
	}
	return m.UsageTotal, nil
}
