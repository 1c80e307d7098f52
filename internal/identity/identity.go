// Package identity derives deterministic invoice identities for ML-usage
// billing. Two surfaces that never coordinate must compute the same invoice
// number and id for the same (user, billing period), so generation is a pure
// function of its inputs.
package identity

import (
	"fmt"
	"time"

	"github.com/pshannon/claimspay/internal/domain"
)

// DefaultIDOffset is the offset added to a user id to form a synthetic
// invoice id. Database-assigned invoice ids are assumed to stay below it;
// the assumption is validated rather than silently carried: NewGenerator
// rejects non-positive offsets and Collides lets callers check real ids
// against the synthetic range.
const DefaultIDOffset int64 = 100000

// Period is one billing cycle, a year-month pair.
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the billing period containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// CurrentPeriod returns the billing period containing the current time.
func CurrentPeriod() Period {
	return PeriodOf(time.Now())
}

// IsZero reports whether p is the zero period (unspecified).
func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

// String formats the period as YYYYMM.
func (p Period) String() string {
	return fmt.Sprintf("%04d%02d", p.Year, int(p.Month))
}

// Identity is a derived invoice identity.
type Identity struct {
	ID     int64
	Number string
}

// Generator derives invoice identities with a configured id offset.
type Generator struct {
	offset int64
}

// NewGenerator creates a Generator. The offset must be positive; it is the
// boundary between database-assigned ids and synthetic ids.
func NewGenerator(offset int64) (*Generator, error) {
	if offset <= 0 {
		return nil, domain.Errorf(domain.EINVALID, "identity.new", "id offset must be positive, got %d", offset)
	}
	return &Generator{offset: offset}, nil
}

// Offset returns the configured id offset.
func (g *Generator) Offset() int64 {
	return g.offset
}

// Collides reports whether a database-assigned invoice id falls inside the
// synthetic id range, which would break the "real ids stay below the offset"
// assumption.
func (g *Generator) Collides(id int64) bool {
	return id >= g.offset
}

// Generate derives the invoice identity for a user and billing period.
// A zero period defaults to the current year/month. The same inputs always
// produce the same identity; no I/O, no side effects.
//
// Number has the form "ML-YYYYMM-UUUU" with the user id zero-padded to four
// digits, and ID is offset+userID.
func (g *Generator) Generate(userID int64, period Period) (Identity, error) {
	if userID <= 0 {
		return Identity{}, &domain.Error{
			Code:    domain.EINVALID,
			Op:      "identity.generate",
			Message: domain.ErrInvalidIdentityInput.Message,
			Err:     fmt.Errorf("user id must be a positive integer, got %d", userID),
		}
	}
	if period.IsZero() {
		period = CurrentPeriod()
	}

	return Identity{
		ID:     g.offset + userID,
		Number: fmt.Sprintf("ML-%s-%04d", period, userID),
	}, nil
}
