package periods

import (
	"strings"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Period represents one accounting period scoped to a company. Periods
// for a company never overlap and are mutated only through Close/Reopen.
type Period struct {
	ID            int64
	CompanyID     int64
	Name          string
	StartDate     time.Time
	EndDate       time.Time
	FinancialYear int
	IsClosed      bool
	CreatedAt     time.Time
}

// Contains reports whether date falls inside the period, boundaries included.
func (p Period) Contains(date time.Time) bool {
	return !date.Before(p.StartDate) && !date.After(p.EndDate)
}

// CreatePeriodInput captures validation rules for new periods.
type CreatePeriodInput struct {
	CompanyID     int64
	Name          string
	StartDate     time.Time
	EndDate       time.Time
	FinancialYear int
	ActorID       int64
}

// Validate ensures the create period input is coherent.
func (in CreatePeriodInput) Validate() error {
	if in.CompanyID == 0 {
		return shared.Validation("periods: company id required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return shared.Validation("periods: name required")
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return shared.Validation("periods: start and end date required")
	}
	if !in.StartDate.Before(in.EndDate) {
		return ErrDatesReversed
	}
	if in.FinancialYear == 0 {
		return shared.Validation("periods: financial year required")
	}
	return nil
}

// ReferenceCounts tallies posted activity that pins a period in place.
type ReferenceCounts struct {
	Ledger    int64
	Subledger int64
	Inventory int64
}

// Total sums all referencing rows.
func (c ReferenceCounts) Total() int64 {
	return c.Ledger + c.Subledger + c.Inventory
}

var (
	// ErrDatesReversed indicates start >= end.
	ErrDatesReversed = shared.Validation("periods: start date must precede end date")
	// ErrOverlap indicates the requested range conflicts with an existing period.
	ErrOverlap = shared.Validation("periods: range overlaps an existing period")
	// ErrNotFound indicates no period matches.
	ErrNotFound = shared.NotFound("periods: period not found")
	// ErrAlreadyClosed indicates a close on a closed period.
	ErrAlreadyClosed = shared.State("periods: period already closed")
	// ErrNotClosed indicates a reopen on an open period.
	ErrNotClosed = shared.State("periods: period is not closed")
	// ErrClosed blocks postings dated into a closed period.
	ErrClosed = shared.State("periods: period is closed")
	// ErrReferenced blocks deletion of a period with posted activity.
	ErrReferenced = shared.State("periods: period is referenced by posted transactions")
)
