package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusRank(t *testing.T) {
	tests := []struct {
		name   string
		status InvoiceStatus
		want   int
	}{
		{"paid outranks everything", StatusPaid, 3},
		{"pending outranks display states", StatusPaymentPending, 2},
		{"issued is a display state", StatusIssued, 1},
		{"sent is a display state", StatusSent, 1},
		{"overdue is a display state", StatusOverdue, 1},
		{"draft ranks lowest", StatusDraft, 0},
		{"unknown ranks lowest", InvoiceStatus("BOGUS"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusRank(tt.status))
		})
	}
}

func TestResolveStatus(t *testing.T) {
	tests := []struct {
		name string
		a, b InvoiceStatus
		want InvoiceStatus
	}{
		{"paid wins over issued", StatusIssued, StatusPaid, StatusPaid},
		{"paid wins regardless of order", StatusPaid, StatusIssued, StatusPaid},
		{"pending wins over overdue", StatusOverdue, StatusPaymentPending, StatusPaymentPending},
		{"equal rank keeps first", StatusSent, StatusOverdue, StatusSent},
		{"paid wins over pending", StatusPaymentPending, StatusPaid, StatusPaid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveStatus(tt.a, tt.b))
		})
	}
}

func TestErrorSentinelMatching(t *testing.T) {
	wrapped := WrapError(ErrInvoiceAlreadyPaid, ECONFLICT, "payment.submit", ErrInvoiceAlreadyPaid.Message)

	assert.True(t, errors.Is(wrapped, ErrInvoiceAlreadyPaid))
	assert.Equal(t, ECONFLICT, ErrorCode(wrapped))
	assert.Equal(t, "payment.submit", ErrorOp(wrapped))
}

func TestErrorMessageHidesInternalDetails(t *testing.T) {
	err := Internal(errors.New("pq: connection refused"), "ledger.save", "failed to encode")

	msg := ErrorMessage(err)
	assert.NotContains(t, msg, "pq:")
	assert.Contains(t, msg, "internal error")
}
