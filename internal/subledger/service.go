package subledger

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/periods"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// lockKindCounterpart scopes entity locks to counterpart balances.
const lockKindCounterpart = "counterpart"

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetCounterpart(ctx context.Context, companyID, id int64) (Counterpart, error)
	ListCounterparts(ctx context.Context, companyID int64, filter CounterpartFilter) ([]Counterpart, error)
	GetType(ctx context.Context, companyID, id int64) (TransactionType, error)
	ListTypes(ctx context.Context, companyID int64, side Side) ([]TransactionType, error)
	GetTransaction(ctx context.Context, companyID, id int64) (Transaction, error)
	ListTransactions(ctx context.Context, companyID int64, filter TransactionFilter) ([]Transaction, error)
	Outstanding(ctx context.Context, companyID int64, side Side, counterpartID int64) ([]Transaction, error)
	AllocationsFor(ctx context.Context, companyID, transactionID int64) ([]Allocation, error)
}

// PeriodGuard gates postings on the accounting period state.
type PeriodGuard interface {
	EnsureOpenForPosting(ctx context.Context, companyID, periodID int64) error
	Get(ctx context.Context, companyID, periodID int64) (periods.Period, error)
}

// AuditPort records subledger events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the AR/AP transaction lifecycle, counterpart balances
// and allocation matching.
type Service struct {
	repo    RepositoryPort
	guard   PeriodGuard
	locker  *shared.EntityLocker
	audit   AuditPort
	metrics *observability.Metrics
	now     func() time.Time
}

// NewService constructs the subledger service.
func NewService(repo RepositoryPort, guard PeriodGuard, locker *shared.EntityLocker, audit AuditPort, metrics *observability.Metrics) *Service {
	return &Service{
		repo:    repo,
		guard:   guard,
		locker:  locker,
		audit:   audit,
		metrics: metrics,
		now:     time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateCounterpart registers a customer or supplier.
func (s *Service) CreateCounterpart(ctx context.Context, in CreateCounterpartInput) (Counterpart, error) {
	if err := in.Validate(); err != nil {
		return Counterpart{}, err
	}
	var cp Counterpart
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		cp, err = tx.InsertCounterpart(ctx, in)
		return err
	})
	if err != nil {
		return Counterpart{}, err
	}
	return cp, nil
}

// GetCounterpart loads one counterpart.
func (s *Service) GetCounterpart(ctx context.Context, companyID, id int64) (Counterpart, error) {
	return s.repo.GetCounterpart(ctx, companyID, id)
}

// ListCounterparts returns counterparts filtered by side and active state.
func (s *Service) ListCounterparts(ctx context.Context, companyID int64, filter CounterpartFilter) ([]Counterpart, error) {
	return s.repo.ListCounterparts(ctx, companyID, filter)
}

// CreateTransactionType registers a document classification.
func (s *Service) CreateTransactionType(ctx context.Context, in CreateTypeInput) (TransactionType, error) {
	if err := in.Validate(); err != nil {
		return TransactionType{}, err
	}
	var typ TransactionType
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		typ, err = tx.InsertType(ctx, in)
		return err
	})
	if err != nil {
		return TransactionType{}, err
	}
	return typ, nil
}

// ListTransactionTypes returns types for one side of the subledger.
func (s *Service) ListTransactionTypes(ctx context.Context, companyID int64, side Side) ([]TransactionType, error) {
	return s.repo.ListTypes(ctx, companyID, side)
}

// CreateTransaction persists an unposted draft. Net and outstanding are
// derived from gross, tax and discount; outstanding starts equal to net.
func (s *Service) CreateTransaction(ctx context.Context, in CreateTransactionInput) (Transaction, error) {
	if err := in.Validate(); err != nil {
		return Transaction{}, err
	}
	cp, err := s.repo.GetCounterpart(ctx, in.CompanyID, in.CounterpartID)
	if err != nil {
		return Transaction{}, err
	}
	if !cp.IsActive {
		return Transaction{}, ErrCounterpartInactive
	}
	typ, err := s.repo.GetType(ctx, in.CompanyID, in.TypeID)
	if err != nil {
		return Transaction{}, err
	}
	if !typ.IsActive {
		return Transaction{}, ErrTypeInactive
	}
	if typ.Side != cp.Side {
		return Transaction{}, ErrSideMismatch
	}
	if _, err := s.guard.Get(ctx, in.CompanyID, in.PeriodID); err != nil {
		return Transaction{}, err
	}

	var txn Transaction
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		txn, err = tx.InsertTransaction(ctx, in)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	return txn, nil
}

// GetTransaction loads one transaction.
func (s *Service) GetTransaction(ctx context.Context, companyID, id int64) (Transaction, error) {
	return s.repo.GetTransaction(ctx, companyID, id)
}

// ListTransactions returns transactions matching the filter.
func (s *Service) ListTransactions(ctx context.Context, companyID int64, filter TransactionFilter) ([]Transaction, error) {
	return s.repo.ListTransactions(ctx, companyID, filter)
}

// UpdateTransaction patches a draft. Posted transactions reject every
// edit; amount changes recompute net and outstanding from the patched
// values in one step, never partially.
func (s *Service) UpdateTransaction(ctx context.Context, companyID, id int64, patch UpdateTransactionInput) (Transaction, error) {
	var txn Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetTransactionForUpdate(ctx, companyID, id)
		if err != nil {
			return err
		}
		if current.IsPosted {
			return ErrImmutableOncePosted
		}
		if patch.TransactionDate != nil {
			current.TransactionDate = *patch.TransactionDate
		}
		if patch.DueDate != nil {
			current.DueDate = *patch.DueDate
		}
		if patch.ReferenceNumber != nil {
			current.ReferenceNumber = *patch.ReferenceNumber
		}
		if patch.Description != nil {
			current.Description = *patch.Description
		}
		if patch.touchesAmounts() {
			if patch.GrossAmount != nil {
				current.GrossAmount = *patch.GrossAmount
			}
			if patch.TaxAmount != nil {
				current.TaxAmount = *patch.TaxAmount
			}
			if patch.DiscountAmount != nil {
				current.DiscountAmount = *patch.DiscountAmount
			}
			if current.GrossAmount < 0 || current.TaxAmount < 0 || current.DiscountAmount < 0 {
				return shared.Validation("subledger: amounts cannot be negative")
			}
			net := current.GrossAmount + current.TaxAmount - current.DiscountAmount
			if net <= 0 {
				return ErrNonPositiveAmount
			}
			current.NetAmount = net
			current.OutstandingAmount = net
		}
		if err := tx.UpdateDraft(ctx, current); err != nil {
			return err
		}
		txn = current
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	return txn, nil
}

// Post commits a draft. It flips the posted flag and applies the signed
// net amount to the counterpart balance in one atomic unit, with the
// sign taken solely from the type's balance effect. Posting is
// serialized per (company, counterpart).
func (s *Service) Post(ctx context.Context, companyID, id, postedBy int64) (Transaction, error) {
	txn, err := s.repo.GetTransaction(ctx, companyID, id)
	if err != nil {
		s.fail()
		return Transaction{}, err
	}
	if txn.IsPosted {
		s.fail()
		return Transaction{}, ErrAlreadyPosted
	}
	typ, err := s.repo.GetType(ctx, companyID, txn.TypeID)
	if err != nil {
		s.fail()
		return Transaction{}, err
	}
	if err := s.guard.EnsureOpenForPosting(ctx, companyID, txn.PeriodID); err != nil {
		s.fail()
		return Transaction{}, err
	}

	sign := 1.0
	if typ.AffectsBalance != typ.Side.IncreasingEffect() {
		sign = -1
	}
	postedAt := s.now()

	var delta float64
	err = s.locker.WithLock(ctx, lockKindCounterpart, companyID, txn.CounterpartID, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			current, err := tx.GetTransactionForUpdate(ctx, companyID, id)
			if err != nil {
				return err
			}
			if current.IsPosted {
				return ErrAlreadyPosted
			}
			// The net comes from the row-locked read: a draft edit that
			// commits after the unlocked check above must post with its
			// final amount, not the stale one.
			delta = sign * current.NetAmount
			if err := tx.MarkPosted(ctx, id, postedBy, postedAt); err != nil {
				return err
			}
			return tx.AdjustCounterpartBalance(ctx, companyID, current.CounterpartID, delta)
		})
	})
	if err != nil {
		s.fail()
		return Transaction{}, err
	}
	s.metrics.RecordPosting("subledger")
	s.record(ctx, companyID, postedBy, "subledger.post", "subledger_transaction", id, map[string]any{
		"type_id":       txn.TypeID,
		"balance_delta": delta,
	})
	return s.repo.GetTransaction(ctx, companyID, id)
}

// Outstanding lists posted, balance-increasing transactions that still
// carry an unsettled amount, oldest transaction date first. A zero
// counterpart id spans the whole side.
func (s *Service) Outstanding(ctx context.Context, companyID int64, side Side, counterpartID int64) ([]Transaction, error) {
	if !validSide(side) {
		return nil, ErrUnknownSide
	}
	return s.repo.Outstanding(ctx, companyID, side, counterpartID)
}

func (s *Service) record(ctx context.Context, companyID, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		CompanyID: companyID,
		ActorID:   actorID,
		Action:    action,
		Entity:    entity,
		EntityID:  fmt.Sprintf("%d", entityID),
		Meta:      meta,
		At:        s.now(),
	})
}

func (s *Service) fail() {
	s.metrics.RecordPostingFailure("subledger")
}
