package service

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pshannon/claimspay/internal/domain"
	"github.com/pshannon/claimspay/internal/finance"
	"github.com/pshannon/claimspay/internal/identity"
	"github.com/pshannon/claimspay/internal/telemetry"
)

// fallbackDueDays is how far out a synthesized fallback invoice is due.
const fallbackDueDays = 14

type reconcilerService struct {
	finance  finance.Client
	registry domain.Registry
	ledger   domain.Ledger
	idgen    *identity.Generator
	logger   *slog.Logger
	metrics  *telemetry.Metrics

	// now is injectable for deterministic period and due-date tests.
	now func() time.Time
}

// NewReconcilerService creates the multi-source invoice reconciler.
func NewReconcilerService(fc finance.Client, registry domain.Registry, ledger domain.Ledger, idgen *identity.Generator, logger *slog.Logger, metrics *telemetry.Metrics) domain.Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &reconcilerService{
		finance:  fc,
		registry: registry,
		ledger:   ledger,
		idgen:    idgen,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// ResolveInvoicesForUser fans out to the ML-invoice API, the finance invoice
// index and the registry in parallel, merges the results, synthesizes a
// fallback invoice when every source came back empty, and overlays the local
// payment ledger.
//
// A failed source contributes an empty list, never a failed resolution: one
// surface being down must not blank the other.
func (s *reconcilerService) ResolveInvoicesForUser(ctx context.Context, userID int64) ([]domain.Invoice, error) {
	var (
		mlInvoices    []domain.Invoice
		indexInvoices []domain.Invoice
		numbers       []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		invoices, err := s.finance.MLInvoicesForUser(gctx, userID)
		if err != nil {
			s.logger.Warn("ml invoice source failed", "user_id", userID, "error", err)
			s.metrics.SourceFailure("ml_invoices")
			return nil
		}
		mlInvoices = invoices
		return nil
	})
	g.Go(func() error {
		invoices, err := s.finance.ListInvoices(gctx, finance.ListInvoicesParams{
			InvoiceType: domain.TypeMLUsage,
			UserID:      userID,
		})
		if err != nil {
			s.logger.Warn("finance index source failed", "user_id", userID, "error", err)
			s.metrics.SourceFailure("finance_index")
			return nil
		}
		indexInvoices = invoices
		return nil
	})
	g.Go(func() error {
		registered, err := s.registry.UserInvoices(gctx, userID)
		if err != nil {
			s.logger.Warn("registry source failed", "user_id", userID, "error", err)
			s.metrics.SourceFailure("registry")
			return nil
		}
		numbers = registered
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	candidates := make([]domain.Invoice, 0, len(mlInvoices)+len(indexInvoices))
	candidates = append(candidates, mlInvoices...)
	candidates = append(candidates, indexInvoices...)

	// Registry numbers the fan-out already produced need no second lookup.
	seen := make(map[string]struct{}, len(candidates))
	for _, inv := range candidates {
		seen[inv.InvoiceNumber] = struct{}{}
	}
	missing := numbers[:0:0]
	for _, number := range numbers {
		if _, ok := seen[number]; !ok {
			missing = append(missing, number)
		}
	}
	candidates = append(candidates, s.registeredInvoices(ctx, missing)...)

	if len(candidates) == 0 {
		if fallback, ok := s.synthesizeFallback(ctx, userID); ok {
			candidates = append(candidates, fallback)
		}
	}

	resolved := s.ResolveInvoiceList(ctx, candidates)
	s.metrics.Resolution()
	return resolved, nil
}

// ResolveInvoiceList de-duplicates candidates by invoice number, resolves
// status conflicts by rank, overlays the payment ledger and sorts newest
// first. Safe on any candidate list, including one fetched by the caller.
func (s *reconcilerService) ResolveInvoiceList(ctx context.Context, candidates []domain.Invoice) []domain.Invoice {
	merged := make([]domain.Invoice, 0, len(candidates))
	index := make(map[string]int, len(candidates))

	for _, inv := range candidates {
		if pos, ok := index[inv.InvoiceNumber]; ok {
			// First source wins on fields; status resolves by rank.
			merged[pos].Status = domain.ResolveStatus(merged[pos].Status, inv.Status)
			continue
		}
		index[inv.InvoiceNumber] = len(merged)
		merged = append(merged, inv)
	}

	for i := range merged {
		s.overlayPayment(ctx, &merged[i])

		if !merged[i].Synthesized && merged[i].InvoiceType == domain.TypeRegular && s.idgen.Collides(merged[i].ID) {
			s.logger.Warn("regular invoice id inside ml identity range",
				"invoice_id", merged[i].ID,
				"invoice_number", merged[i].InvoiceNumber,
				"offset", s.idgen.Offset())
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})
	return merged
}

// registeredInvoices resolves registry-known invoice numbers into full
// invoices via the finance index. Numbers the finance service does not
// return are reconstructed from their ledger record, so an invoice that only
// ever existed in the self-service flow still shows up in the back office.
func (s *reconcilerService) registeredInvoices(ctx context.Context, numbers []string) []domain.Invoice {
	var out []domain.Invoice
	for _, number := range numbers {
		invoices, err := s.finance.ListInvoices(ctx, finance.ListInvoicesParams{InvoiceNumber: number})
		if err != nil {
			s.logger.Warn("finance lookup failed for registered invoice", "invoice_number", number, "error", err)
			s.metrics.SourceFailure("finance_index")
			continue
		}
		if len(invoices) > 0 {
			out = append(out, invoices...)
			continue
		}

		rec, err := s.ledger.Payment(ctx, number)
		if err != nil || rec == nil {
			continue
		}
		out = append(out, domain.Invoice{
			ID:            rec.InvoiceID,
			InvoiceNumber: rec.InvoiceNumber,
			UserID:        rec.UserID,
			TotalAmount:   rec.Amount,
			CreatedAt:     rec.PaymentDate,
			IssuedDate:    rec.PaymentDate,
			Status:        rec.Status,
			InvoiceType:   domain.TypeMLUsage,
			Key:           rec.InvoiceNumber,
		})
	}
	return out
}

// synthesizeFallback builds the deterministic current-period ML invoice used
// when no source knows anything about the user yet. Its identity is the
// canonical one, so a later server-side record merges instead of duplicating.
func (s *reconcilerService) synthesizeFallback(ctx context.Context, userID int64) (domain.Invoice, bool) {
	now := s.now()
	ident, err := s.idgen.Generate(userID, identity.PeriodOf(now))
	if err != nil {
		s.logger.Warn("fallback identity generation failed", "user_id", userID, "error", err)
		return domain.Invoice{}, false
	}

	total, err := s.finance.BillableMLUsageTotal(ctx, userID)
	if err != nil {
		s.logger.Warn("billable usage total unavailable, synthesizing zero-amount invoice", "user_id", userID, "error", err)
		s.metrics.SourceFailure("billing_summary")
	}

	s.metrics.FallbackSynthesized()
	return domain.Invoice{
		ID:            ident.ID,
		InvoiceNumber: ident.Number,
		UserID:        userID,
		Title:         "ML usage " + identity.PeriodOf(now).String(),
		TotalAmount:   total,
		CreatedAt:     now,
		IssuedDate:    now,
		DueDate:       now.AddDate(0, 0, fallbackDueDays),
		Status:        domain.StatusIssued,
		InvoiceType:   domain.TypeMLUsage,
		Key:           "synthesized-" + ident.Number,
		Synthesized:   true,
	}, true
}

// overlayPayment attaches the ledger record for inv, if any, and resolves the
// displayed status against the record's. A PAID record outranks whatever the
// remote sources claim.
func (s *reconcilerService) overlayPayment(ctx context.Context, inv *domain.Invoice) {
	rec, err := s.ledger.Payment(ctx, strconv.FormatInt(inv.ID, 10))
	if err == nil && rec == nil {
		rec, err = s.ledger.Payment(ctx, inv.InvoiceNumber)
	}
	if err != nil || rec == nil {
		return
	}

	inv.Payment = rec
	inv.Status = domain.ResolveStatus(inv.Status, rec.Status)
}
