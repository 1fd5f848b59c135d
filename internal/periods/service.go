package periods

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPeriod(ctx context.Context, companyID, id int64) (Period, error)
	ListPeriods(ctx context.Context, companyID int64) ([]Period, error)
	ResolvePeriod(ctx context.Context, companyID int64, date time.Time) (Period, error)
}

// AuditPort records period lifecycle events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the accounting period lifecycle and date resolution.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the period service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create inserts a new period after checking range overlap in both directions.
func (s *Service) Create(ctx context.Context, in CreatePeriodInput) (Period, error) {
	if err := in.Validate(); err != nil {
		return Period{}, err
	}
	var period Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		conflict, err := tx.RangeConflict(ctx, in.CompanyID, in.StartDate, in.EndDate)
		if err != nil {
			return err
		}
		if conflict {
			return ErrOverlap
		}
		period, err = tx.InsertPeriod(ctx, in)
		return err
	})
	if err != nil {
		return Period{}, err
	}
	s.record(ctx, in.ActorID, "period.create", period)
	return period, nil
}

// Get returns a single period.
func (s *Service) Get(ctx context.Context, companyID, id int64) (Period, error) {
	return s.repo.GetPeriod(ctx, companyID, id)
}

// List returns the company's periods ordered by start date.
func (s *Service) List(ctx context.Context, companyID int64) ([]Period, error) {
	return s.repo.ListPeriods(ctx, companyID)
}

// Resolve returns the unique period containing date.
func (s *Service) Resolve(ctx context.Context, companyID int64, date time.Time) (Period, error) {
	return s.repo.ResolvePeriod(ctx, companyID, date)
}

// Close transitions OPEN -> CLOSED.
func (s *Service) Close(ctx context.Context, companyID, id, actorID int64) (Period, error) {
	return s.transition(ctx, companyID, id, actorID, true)
}

// Reopen transitions CLOSED -> OPEN. Closed is not a terminal state.
func (s *Service) Reopen(ctx context.Context, companyID, id, actorID int64) (Period, error) {
	return s.transition(ctx, companyID, id, actorID, false)
}

func (s *Service) transition(ctx context.Context, companyID, id, actorID int64, close bool) (Period, error) {
	var period Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetPeriodForUpdate(ctx, companyID, id)
		if err != nil {
			return err
		}
		if close && current.IsClosed {
			return ErrAlreadyClosed
		}
		if !close && !current.IsClosed {
			return ErrNotClosed
		}
		if err := tx.SetClosed(ctx, id, close); err != nil {
			return err
		}
		current.IsClosed = close
		period = current
		return nil
	})
	if err != nil {
		return Period{}, err
	}
	action := "period.close"
	if !close {
		action = "period.reopen"
	}
	s.record(ctx, actorID, action, period)
	return period, nil
}

// Delete removes a period only when nothing references it. A period with
// posted GL, subledger, or inventory rows can never be deleted.
func (s *Service) Delete(ctx context.Context, companyID, id, actorID int64) error {
	var deleted Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetPeriodForUpdate(ctx, companyID, id)
		if err != nil {
			return err
		}
		refs, err := tx.CountReferences(ctx, id)
		if err != nil {
			return err
		}
		if refs.Total() > 0 {
			return ErrReferenced
		}
		if err := tx.DeletePeriod(ctx, id); err != nil {
			return err
		}
		deleted = current
		return nil
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "period.delete", deleted)
	return nil
}

// EnsureOpenForPosting validates that the period exists and accepts postings.
// Ledger, subledger, and inventory posting all route through this guard.
func (s *Service) EnsureOpenForPosting(ctx context.Context, companyID, periodID int64) error {
	period, err := s.repo.GetPeriod(ctx, companyID, periodID)
	if err != nil {
		return err
	}
	if period.IsClosed {
		return ErrClosed
	}
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, period Period) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		CompanyID: period.CompanyID,
		ActorID:   actorID,
		Action:    action,
		Entity:    "accounting_period",
		EntityID:  fmt.Sprintf("%d", period.ID),
		Meta: map[string]any{
			"name":           period.Name,
			"financial_year": period.FinancialYear,
		},
		At: s.now(),
	})
}
