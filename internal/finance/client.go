package finance

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/pshannon/claimspay/internal/domain"
)

// HTTPConfig configures the HTTP finance client.
type HTTPConfig struct {
	BaseURL string
	// Token is sent as a bearer token when set.
	Token   string
	Timeout time.Duration
	Retries int
}

// HTTPClient implements Client against the real finance and claims services.
type HTTPClient struct {
	rc *resty.Client
}

// NewHTTPClient creates an HTTP finance client.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, ErrBaseURLRequired
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetHeader("Accept", "application/json")
	if cfg.Token != "" {
		rc.SetAuthToken(cfg.Token)
	}

	return &HTTPClient{rc: rc}, nil
}

// invoicePayload is the wire shape of an invoice on both invoice endpoints.
type invoicePayload struct {
	ID                 int64   `json:"id"`
	InvoiceNumber      string  `json:"invoice_number"`
	UserID             int64   `json:"user_id"`
	InsuranceCompanyID *int64  `json:"insurance_company_id"`
	Title              string  `json:"title"`
	TotalAmount        string  `json:"total_amount"`
	CreatedAt          string  `json:"created_at"`
	IssuedDate         string  `json:"issued_date"`
	DueDate            string  `json:"due_date"`
	Status             string  `json:"status"`
	InvoiceType        string  `json:"invoice_type"`
}

// paymentPayload is the wire shape of POST /finance/invoice-payments/.
type paymentPayload struct {
	InvoiceID     int64  `json:"invoice_id"`
	InvoiceNumber string `json:"invoice_number"`
	Amount        string `json:"amount"`
	SortCode      string `json:"sort_code"`
	AccountNumber string `json:"account_number"`
	Reference     string `json:"reference"`
	Status        string `json:"status"`
	PaymentDate   string `json:"payment_date"`
	UserID        int64  `json:"user_id"`
}

// MLInvoicesForUser lists the user's ML-usage invoices.
// GET /claims/my-ml-invoices/
func (c *HTTPClient) MLInvoicesForUser(ctx context.Context, userID int64) ([]domain.Invoice, error) {
	var payload []invoicePayload
	resp, err := c.rc.R().
		SetContext(ctx).
		SetQueryParam("user_id", strconv.FormatInt(userID, 10)).
		SetResult(&payload).
		Get("/claims/my-ml-invoices/")
	if err := c.check(resp, err, "my-ml-invoices"); err != nil {
		return nil, err
	}
	return toInvoices(payload)
}

// ListInvoices queries the finance invoice index.
// GET /finance/invoices/?invoice_type=&user_id=&invoice_number=
func (c *HTTPClient) ListInvoices(ctx context.Context, params ListInvoicesParams) ([]domain.Invoice, error) {
	req := c.rc.R().SetContext(ctx)
	if params.InvoiceType != "" {
		req.SetQueryParam("invoice_type", string(params.InvoiceType))
	}
	if params.UserID != 0 {
		req.SetQueryParam("user_id", strconv.FormatInt(params.UserID, 10))
	}
	if params.InvoiceNumber != "" {
		req.SetQueryParam("invoice_number", params.InvoiceNumber)
	}

	var payload []invoicePayload
	resp, err := req.SetResult(&payload).Get("/finance/invoices/")
	if err := c.check(resp, err, "invoices"); err != nil {
		return nil, err
	}
	return toInvoices(payload)
}

// MarkInvoicePaid flags an invoice paid on the finance service.
// POST /finance/invoices/{id}/mark_as_paid/
func (c *HTTPClient) MarkInvoicePaid(ctx context.Context, invoiceID int64) error {
	resp, err := c.rc.R().
		SetContext(ctx).
		Post(fmt.Sprintf("/finance/invoices/%d/mark_as_paid/", invoiceID))
	return c.check(resp, err, "mark_as_paid")
}

// CreateInvoicePayment records a payment on the finance service.
// POST /finance/invoice-payments/
func (c *HTTPClient) CreateInvoicePayment(ctx context.Context, rec domain.PaymentRecord) error {
	resp, err := c.rc.R().
		SetContext(ctx).
		SetBody(paymentPayload{
			InvoiceID:     rec.InvoiceID,
			InvoiceNumber: rec.InvoiceNumber,
			Amount:        rec.Amount.StringFixed(2),
			SortCode:      rec.SortCode,
			AccountNumber: rec.AccountNumber,
			Reference:     rec.Reference,
			Status:        string(rec.Status),
			PaymentDate:   rec.PaymentDate.Format(time.RFC3339),
			UserID:        rec.UserID,
		}).
		Post("/finance/invoice-payments/")
	return c.check(resp, err, "invoice-payments")
}

// BillableMLUsageTotal sums the user's billable ML-usage claims.
// GET /claims/billing-summary/?user_id=
func (c *HTTPClient) BillableMLUsageTotal(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var payload struct {
		Total string `json:"total"`
	}
	resp, err := c.rc.R().
		SetContext(ctx).
		SetQueryParam("user_id", strconv.FormatInt(userID, 10)).
		SetResult(&payload).
		Get("/claims/billing-summary/")
	if err := c.check(resp, err, "billing-summary"); err != nil {
		return decimal.Zero, err
	}

	total, err := decimal.NewFromString(payload.Total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("finance: bad billing total %q: %w", payload.Total, err)
	}
	return total, nil
}

// check folds transport errors and non-2xx responses into one error shape.
func (c *HTTPClient) check(resp *resty.Response, err error, endpoint string) error {
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, endpoint, err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return &APIError{
			StatusCode: resp.StatusCode(),
			Endpoint:   endpoint,
			Body:       resp.String(),
		}
	}
	return nil
}

func toInvoices(payload []invoicePayload) ([]domain.Invoice, error) {
	out := make([]domain.Invoice, 0, len(payload))
	for _, p := range payload {
		inv, err := p.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}

func (p invoicePayload) toDomain() (domain.Invoice, error) {
	amount, err := decimal.NewFromString(p.TotalAmount)
	if err != nil {
		return domain.Invoice{}, fmt.Errorf("finance: invoice %s has bad amount %q: %w", p.InvoiceNumber, p.TotalAmount, err)
	}

	return domain.Invoice{
		ID:                 p.ID,
		InvoiceNumber:      p.InvoiceNumber,
		UserID:             p.UserID,
		InsuranceCompanyID: p.InsuranceCompanyID,
		Title:              p.Title,
		TotalAmount:        amount,
		CreatedAt:          parseTime(p.CreatedAt),
		IssuedDate:         parseTime(p.IssuedDate),
		DueDate:            parseTime(p.DueDate),
		Status:             domain.InvoiceStatus(p.Status),
		InvoiceType:        domain.InvoiceType(p.InvoiceType),
		Key:                p.InvoiceNumber,
	}, nil
}

// parseTime accepts the two timestamp shapes the finance service emits.
// Unparseable values become the zero time rather than failing the merge.
func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
