package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pshannon/claimspay/internal/domain"
)

type mockReconciler struct {
	ResolveInvoicesForUserFunc func(ctx context.Context, userID int64) ([]domain.Invoice, error)
}

func (m *mockReconciler) ResolveInvoicesForUser(ctx context.Context, userID int64) ([]domain.Invoice, error) {
	return m.ResolveInvoicesForUserFunc(ctx, userID)
}

func (m *mockReconciler) ResolveInvoiceList(ctx context.Context, candidates []domain.Invoice) []domain.Invoice {
	return candidates
}

type mockPayments struct {
	SubmitPaymentFunc        func(ctx context.Context, inv domain.Invoice, details domain.BankDetails) (*domain.PaymentRecord, error)
	RecordPendingPaymentFunc func(ctx context.Context, inv domain.Invoice, details domain.BankDetails) (*domain.PaymentRecord, error)
	VerifyPaymentFunc        func(ctx context.Context, identifier string) (*domain.PaymentRecord, error)
}

func (m *mockPayments) SubmitPayment(ctx context.Context, inv domain.Invoice, details domain.BankDetails) (*domain.PaymentRecord, error) {
	return m.SubmitPaymentFunc(ctx, inv, details)
}

func (m *mockPayments) RecordPendingPayment(ctx context.Context, inv domain.Invoice, details domain.BankDetails) (*domain.PaymentRecord, error) {
	return m.RecordPendingPaymentFunc(ctx, inv, details)
}

func (m *mockPayments) VerifyPayment(ctx context.Context, identifier string) (*domain.PaymentRecord, error) {
	return m.VerifyPaymentFunc(ctx, identifier)
}

type mockRegistry struct {
	InvoicePaymentFunc           func(ctx context.Context, identifier string) (*domain.PaymentRecord, error)
	CanonicalMLInvoiceNumberFunc func(userID int64) (string, error)
}

func (m *mockRegistry) RegisterInvoicePayment(ctx context.Context, invoiceID int64, invoiceNumber string, rec domain.PaymentRecord) error {
	return nil
}

func (m *mockRegistry) CacheInvoice(ctx context.Context, inv domain.Invoice) error { return nil }

func (m *mockRegistry) UpdateInvoiceStatus(ctx context.Context, invoiceID int64, invoiceNumber string, status domain.InvoiceStatus) error {
	return nil
}

func (m *mockRegistry) UserInvoices(ctx context.Context, userID int64) ([]string, error) {
	return nil, nil
}

func (m *mockRegistry) InvoicePayment(ctx context.Context, identifier string) (*domain.PaymentRecord, error) {
	return m.InvoicePaymentFunc(ctx, identifier)
}

func (m *mockRegistry) CanonicalMLInvoiceNumber(userID int64) (string, error) {
	return m.CanonicalMLInvoiceNumberFunc(userID)
}

func doRequest(t *testing.T, h *Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	h.Register(e.Group("/api"))

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestListUserInvoices(t *testing.T) {
	t.Run("returns reconciled invoices", func(t *testing.T) {
		reconciler := &mockReconciler{
			ResolveInvoicesForUserFunc: func(ctx context.Context, userID int64) ([]domain.Invoice, error) {
				assert.Equal(t, int64(7), userID)
				return []domain.Invoice{{InvoiceNumber: "ML-202504-0007", Status: domain.StatusPaid}}, nil
			},
		}
		h := NewHandler(reconciler, &mockPayments{}, &mockRegistry{}, nil, nil)

		rec := doRequest(t, h, http.MethodGet, "/api/users/7/invoices", "")
		assert.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Invoices []domain.Invoice `json:"invoices"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Invoices, 1)
		assert.Equal(t, "ML-202504-0007", body.Invoices[0].InvoiceNumber)
	})

	t.Run("invalid user id is 400", func(t *testing.T) {
		h := NewHandler(&mockReconciler{}, &mockPayments{}, &mockRegistry{}, nil, nil)

		rec := doRequest(t, h, http.MethodGet, "/api/users/bogus/invoices", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetPayment(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		registry := &mockRegistry{
			InvoicePaymentFunc: func(ctx context.Context, identifier string) (*domain.PaymentRecord, error) {
				assert.Equal(t, "ML-202504-0007", identifier)
				return &domain.PaymentRecord{InvoiceNumber: identifier, Status: domain.StatusPaid}, nil
			},
		}
		h := NewHandler(&mockReconciler{}, &mockPayments{}, registry, nil, nil)

		rec := doRequest(t, h, http.MethodGet, "/api/invoices/ML-202504-0007/payment", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("absent record is 404", func(t *testing.T) {
		registry := &mockRegistry{
			InvoicePaymentFunc: func(ctx context.Context, identifier string) (*domain.PaymentRecord, error) {
				return nil, nil
			},
		}
		h := NewHandler(&mockReconciler{}, &mockPayments{}, registry, nil, nil)

		rec := doRequest(t, h, http.MethodGet, "/api/invoices/unknown/payment", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)

		var body struct {
			Code string `json:"code"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, domain.ENOTFOUND, body.Code)
	})
}

func TestSubmitPaymentEndpoint(t *testing.T) {
	body := `{
		"invoice": {"id": 55, "invoice_number": "INV-055", "user_id": 7, "total_amount": "199.99", "status": "ISSUED"},
		"bank_details": {"sort_code": "123456", "account_number": "12345678", "reference": "CLAIM-REF"}
	}`

	t.Run("created", func(t *testing.T) {
		payments := &mockPayments{
			SubmitPaymentFunc: func(ctx context.Context, inv domain.Invoice, details domain.BankDetails) (*domain.PaymentRecord, error) {
				assert.Equal(t, "INV-055", inv.InvoiceNumber)
				assert.Equal(t, "123456", details.SortCode)
				return &domain.PaymentRecord{
					InvoiceID:     inv.ID,
					InvoiceNumber: inv.InvoiceNumber,
					Amount:        decimal.NewFromFloat(199.99),
					Status:        domain.StatusPaid,
				}, nil
			},
		}
		h := NewHandler(&mockReconciler{}, payments, &mockRegistry{}, nil, nil)

		rec := doRequest(t, h, http.MethodPost, "/api/invoices/INV-055/payments", body)
		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("pending flag routes to back-office flow", func(t *testing.T) {
		called := false
		payments := &mockPayments{
			RecordPendingPaymentFunc: func(ctx context.Context, inv domain.Invoice, details domain.BankDetails) (*domain.PaymentRecord, error) {
				called = true
				return &domain.PaymentRecord{InvoiceNumber: inv.InvoiceNumber, Status: domain.StatusPaymentPending}, nil
			},
		}
		h := NewHandler(&mockReconciler{}, payments, &mockRegistry{}, nil, nil)

		pendingBody := strings.Replace(body, `"bank_details"`, `"pending": true, "bank_details"`, 1)
		rec := doRequest(t, h, http.MethodPost, "/api/invoices/INV-055/payments", pendingBody)
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.True(t, called)
	})

	t.Run("conflict maps to 409", func(t *testing.T) {
		payments := &mockPayments{
			SubmitPaymentFunc: func(ctx context.Context, inv domain.Invoice, details domain.BankDetails) (*domain.PaymentRecord, error) {
				return nil, domain.Conflict("payment.submit", "invoice already paid")
			},
		}
		h := NewHandler(&mockReconciler{}, payments, &mockRegistry{}, nil, nil)

		rec := doRequest(t, h, http.MethodPost, "/api/invoices/INV-055/payments", body)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("validation error maps to 400", func(t *testing.T) {
		payments := &mockPayments{
			SubmitPaymentFunc: func(ctx context.Context, inv domain.Invoice, details domain.BankDetails) (*domain.PaymentRecord, error) {
				return nil, domain.Invalid("payment.submit", "sort code must be 6 digits")
			},
		}
		h := NewHandler(&mockReconciler{}, payments, &mockRegistry{}, nil, nil)

		rec := doRequest(t, h, http.MethodPost, "/api/invoices/INV-055/payments", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestVerifyPaymentEndpoint(t *testing.T) {
	t.Run("verified", func(t *testing.T) {
		payments := &mockPayments{
			VerifyPaymentFunc: func(ctx context.Context, identifier string) (*domain.PaymentRecord, error) {
				assert.Equal(t, "INV-055", identifier)
				return &domain.PaymentRecord{InvoiceNumber: identifier, Status: domain.StatusPaid}, nil
			},
		}
		h := NewHandler(&mockReconciler{}, payments, &mockRegistry{}, nil, nil)

		rec := doRequest(t, h, http.MethodPost, "/api/invoices/INV-055/verify", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unknown payment maps to 404", func(t *testing.T) {
		payments := &mockPayments{
			VerifyPaymentFunc: func(ctx context.Context, identifier string) (*domain.PaymentRecord, error) {
				return nil, domain.WrapError(domain.ErrPaymentNotFound, domain.ENOTFOUND, "payment.verify", domain.ErrPaymentNotFound.Message)
			},
		}
		h := NewHandler(&mockReconciler{}, payments, &mockRegistry{}, nil, nil)

		rec := doRequest(t, h, http.MethodPost, "/api/invoices/unknown/verify", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestCanonicalInvoiceNumber(t *testing.T) {
	registry := &mockRegistry{
		CanonicalMLInvoiceNumberFunc: func(userID int64) (string, error) {
			assert.Equal(t, int64(7), userID)
			return "ML-202504-0007", nil
		},
	}
	h := NewHandler(&mockReconciler{}, &mockPayments{}, registry, nil, nil)

	rec := doRequest(t, h, http.MethodGet, "/api/users/7/invoice-number", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ML-202504-0007", body["invoice_number"])
}
