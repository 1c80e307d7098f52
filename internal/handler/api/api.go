// Package api exposes the reconciliation core over JSON HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/pshannon/claimspay/internal/domain"
	"github.com/pshannon/claimspay/internal/middleware"
	"github.com/pshannon/claimspay/internal/worker"
)

// Handler serves the invoice and payment API.
type Handler struct {
	reconciler domain.Reconciler
	payments   domain.PaymentService
	registry   domain.Registry
	refresher  *worker.RefreshWorker
	logger     *slog.Logger
}

// NewHandler creates the API handler.
func NewHandler(reconciler domain.Reconciler, payments domain.PaymentService, registry domain.Registry, refresher *worker.RefreshWorker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		reconciler: reconciler,
		payments:   payments,
		registry:   registry,
		refresher:  refresher,
		logger:     logger,
	}
}

// Register mounts the API routes on g.
func (h *Handler) Register(g *echo.Group) {
	g.GET("/users/:id/invoices", h.ListUserInvoices)
	g.GET("/users/:id/invoice-number", h.CanonicalInvoiceNumber)
	g.GET("/invoices/:identifier/payment", h.GetPayment)
	g.POST("/invoices/:identifier/payments", h.SubmitPayment)
	g.POST("/invoices/:identifier/verify", h.VerifyPayment)
}

// ListUserInvoices returns the reconciled invoice list for a user and
// enrolls the user in the background refresh loop.
// GET /api/users/:id/invoices
func (h *Handler) ListUserInvoices(c echo.Context) error {
	userID, err := pathInt64(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	ctx := c.Request().Context()
	invoices, err := h.reconciler.ResolveInvoicesForUser(ctx, userID)
	if err != nil {
		middleware.GetLogger(ctx, h.logger).Error("invoice resolution failed", "user_id", userID, "error", err)
		return respondError(c, err)
	}

	if h.refresher != nil {
		h.refresher.Watch(userID)
	}

	return c.JSON(http.StatusOK, map[string]any{"invoices": invoices})
}

// CanonicalInvoiceNumber returns the deterministic ML invoice number for the
// user's current billing period.
// GET /api/users/:id/invoice-number
func (h *Handler) CanonicalInvoiceNumber(c echo.Context) error {
	userID, err := pathInt64(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	number, err := h.registry.CanonicalMLInvoiceNumber(userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"invoice_number": number})
}

// GetPayment returns the payment record for an invoice id or number.
// GET /api/invoices/:identifier/payment
func (h *Handler) GetPayment(c echo.Context) error {
	identifier := c.Param("identifier")

	rec, err := h.registry.InvoicePayment(c.Request().Context(), identifier)
	if err != nil {
		return respondError(c, err)
	}
	if rec == nil {
		return respondError(c, domain.NotFound("api.get_payment", "payment", identifier))
	}
	return c.JSON(http.StatusOK, rec)
}

// submitPaymentRequest is the body of POST /api/invoices/:identifier/payments.
// The invoice snapshot comes from the caller's reconciled list; Pending
// selects the back-office flow that records PAYMENT_PENDING instead of PAID.
type submitPaymentRequest struct {
	Invoice     domain.Invoice     `json:"invoice"`
	BankDetails domain.BankDetails `json:"bank_details"`
	Pending     bool               `json:"pending"`
}

// SubmitPayment records a payment against an invoice.
// POST /api/invoices/:identifier/payments
func (h *Handler) SubmitPayment(c echo.Context) error {
	var req submitPaymentRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, domain.Invalid("api.submit_payment", "malformed request body"))
	}

	identifier := c.Param("identifier")
	if req.Invoice.InvoiceNumber == "" {
		req.Invoice.InvoiceNumber = identifier
	}

	ctx := c.Request().Context()
	var (
		rec *domain.PaymentRecord
		err error
	)
	if req.Pending {
		rec, err = h.payments.RecordPendingPayment(ctx, req.Invoice, req.BankDetails)
	} else {
		rec, err = h.payments.SubmitPayment(ctx, req.Invoice, req.BankDetails)
	}
	if err != nil {
		return respondError(c, err)
	}

	if h.refresher != nil && req.Invoice.UserID != 0 {
		// The caller's next poll should see the new record immediately.
		// Detached from the request context: the refresh outlives the response.
		go func(userID int64) {
			if err := h.refresher.RefreshUser(context.Background(), userID); err != nil {
				h.logger.Debug("post-payment refresh failed", "user_id", userID, "error", err)
			}
		}(req.Invoice.UserID)
	}

	return c.JSON(http.StatusCreated, rec)
}

// VerifyPayment confirms a pending payment.
// POST /api/invoices/:identifier/verify
func (h *Handler) VerifyPayment(c echo.Context) error {
	identifier := c.Param("identifier")

	rec, err := h.payments.VerifyPayment(c.Request().Context(), identifier)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func pathInt64(c echo.Context, name string) (int64, error) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		return 0, domain.Invalid("api.path_param", name+" must be a positive integer")
	}
	return v, nil
}
