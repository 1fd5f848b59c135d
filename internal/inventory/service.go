package inventory

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/periods"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// lockKindItem scopes entity locks to item stock levels.
const lockKindItem = "item"

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, companyID, id int64) (Item, error)
	ListItems(ctx context.Context, companyID int64, activeOnly bool) ([]Item, error)
	GetMovementType(ctx context.Context, companyID, id int64) (MovementType, error)
	ListMovements(ctx context.Context, companyID int64, filter MovementFilter) ([]Movement, error)
}

// PeriodGuard gates movements on the accounting period state.
type PeriodGuard interface {
	EnsureOpenForPosting(ctx context.Context, companyID, periodID int64) error
	Get(ctx context.Context, companyID, periodID int64) (periods.Period, error)
}

// AuditPort records inventory events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service maintains stock quantities and weighted-average costs, and
// emits the journal pair for movements it originates.
type Service struct {
	repo    RepositoryPort
	guard   PeriodGuard
	locker  *shared.EntityLocker
	audit   AuditPort
	metrics *observability.Metrics
	now     func() time.Time
}

// NewService constructs the inventory service.
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

// CreateItem registers a stocked item starting at zero quantity.
func (s *Service) CreateItem(ctx context.Context, in CreateItemInput) (Item, error) {
	if err := in.Validate(); err != nil {
		return Item{}, err
	}
	var item Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		item, err = tx.InsertItem(ctx, in)
		return err
	})
	if err != nil {
		return Item{}, err
	}
	return item, nil
}

// GetItem loads one item.
func (s *Service) GetItem(ctx context.Context, companyID, id int64) (Item, error) {
	return s.repo.GetItem(ctx, companyID, id)
}

// ListItems returns items ordered by code.
func (s *Service) ListItems(ctx context.Context, companyID int64, activeOnly bool) ([]Item, error) {
	return s.repo.ListItems(ctx, companyID, activeOnly)
}

// UpdateItem patches descriptive fields and GL links.
func (s *Service) UpdateItem(ctx context.Context, companyID, id int64, patch UpdateItemInput) (Item, error) {
	var item Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetItemForUpdate(ctx, companyID, id)
		if err != nil {
			return err
		}
		if patch.Description != nil {
			current.Description = *patch.Description
		}
		if patch.UnitOfMeasure != nil {
			current.UnitOfMeasure = *patch.UnitOfMeasure
		}
		if patch.AssetAccountID != nil {
			current.AssetAccountID = *patch.AssetAccountID
		}
		if patch.ExpenseAccountID != nil {
			current.ExpenseAccountID = *patch.ExpenseAccountID
		}
		if patch.RevenueAccountID != nil {
			current.RevenueAccountID = *patch.RevenueAccountID
		}
		if patch.ReorderLevel != nil {
			current.ReorderLevel = *patch.ReorderLevel
		}
		if patch.IsActive != nil {
			current.IsActive = *patch.IsActive
		}
		if err := tx.UpdateItem(ctx, current); err != nil {
			return err
		}
		item = current
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	return item, nil
}

// CreateMovementType registers a movement classification.
func (s *Service) CreateMovementType(ctx context.Context, in CreateMovementTypeInput) (MovementType, error) {
	if err := in.Validate(); err != nil {
		return MovementType{}, err
	}
	var typ MovementType
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		typ, err = tx.InsertMovementType(ctx, in)
		return err
	})
	if err != nil {
		return MovementType{}, err
	}
	return typ, nil
}

// PostMovement applies one stock mutation. Increases fold the incoming
// cost into the weighted average; decreases issue at the current
// average and never drive quantity below zero. Quantity, cost, the
// movement row and any journal pair commit as one atomic unit,
// serialized per (company, item).
func (s *Service) PostMovement(ctx context.Context, in PostMovementInput) (Movement, error) {
	if err := in.Validate(); err != nil {
		s.fail()
		return Movement{}, err
	}
	typ, err := s.repo.GetMovementType(ctx, in.CompanyID, in.TypeID)
	if err != nil {
		s.fail()
		return Movement{}, err
	}
	if !typ.IsActive {
		s.fail()
		return Movement{}, ErrTypeInactive
	}
	if err := s.guard.EnsureOpenForPosting(ctx, in.CompanyID, in.PeriodID); err != nil {
		s.fail()
		return Movement{}, err
	}
	period, err := s.guard.Get(ctx, in.CompanyID, in.PeriodID)
	if err != nil {
		s.fail()
		return Movement{}, err
	}
	if !period.Contains(in.Date) {
		s.fail()
		return Movement{}, ErrDateOutsidePeriod
	}
	if in.SourceDocumentID == uuid.Nil {
		in.SourceDocumentID = uuid.New()
	}

	postedAt := s.now()
	var movement Movement
	err = s.locker.WithLock(ctx, lockKindItem, in.CompanyID, in.ItemID, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			item, err := tx.GetItemForUpdate(ctx, in.CompanyID, in.ItemID)
			if err != nil {
				return err
			}
			if !item.IsActive {
				return ErrItemInactive
			}

			unitCost := in.UnitCost
			if typ.AffectsQuantity == DirectionDecrease {
				unitCost = item.CostPrice
			}
			totalCost := math.Abs(in.Quantity * unitCost)

			switch typ.AffectsQuantity {
			case DirectionIncrease:
				newQty := item.QuantityOnHand + in.Quantity
				if newQty == 0 {
					item.CostPrice = unitCost
				} else {
					item.CostPrice = (item.QuantityOnHand*item.CostPrice + in.Quantity*unitCost) / newQty
				}
				item.QuantityOnHand = newQty
			case DirectionDecrease:
				newQty := item.QuantityOnHand - in.Quantity
				if newQty < 0 {
					return ErrInsufficientStock
				}
				item.QuantityOnHand = newQty
			}
			if err := tx.UpdateItemStock(ctx, item.ID, item.QuantityOnHand, item.CostPrice); err != nil {
				return err
			}

			movement, err = tx.InsertMovement(ctx, in, unitCost, totalCost, postedAt)
			if err != nil {
				return err
			}
			if in.SourceModule == SourceInventory {
				return tx.InsertGLEntries(ctx, s.journalPair(in, item, typ.AffectsQuantity, totalCost), postedAt)
			}
			return nil
		})
	})
	if err != nil {
		s.fail()
		return Movement{}, err
	}
	s.metrics.RecordPosting("inventory")
	s.record(ctx, in.CompanyID, in.PostedBy, "inventory.post", "inventory_movement", movement.ID, map[string]any{
		"item_id":    in.ItemID,
		"direction":  typ.AffectsQuantity,
		"total_cost": movement.TotalCost,
	})
	return movement, nil
}

// journalPair builds the balanced asset/expense entries for a
// self-sourced movement. Increases debit the asset account; decreases
// debit expense and relieve the asset.
func (s *Service) journalPair(in PostMovementInput, item Item, direction Direction, totalCost float64) []ledger.EntryInput {
	debitAccount, creditAccount := item.AssetAccountID, item.ExpenseAccountID
	if direction == DirectionDecrease {
		debitAccount, creditAccount = item.ExpenseAccountID, item.AssetAccountID
	}
	base := ledger.EntryInput{
		CompanyID:        in.CompanyID,
		PeriodID:         in.PeriodID,
		Date:             in.Date,
		ReferenceNumber:  in.ReferenceNumber,
		Description:      in.Description,
		SourceModule:     SourceInventory,
		SourceDocumentID: in.SourceDocumentID,
		PostedBy:         in.PostedBy,
	}
	debit := base
	debit.AccountID = debitAccount
	debit.DebitAmount = totalCost
	credit := base
	credit.AccountID = creditAccount
	credit.CreditAmount = totalCost
	return []ledger.EntryInput{debit, credit}
}

// ListMovements returns movements matching the filter.
func (s *Service) ListMovements(ctx context.Context, companyID int64, filter MovementFilter) ([]Movement, error) {
	return s.repo.ListMovements(ctx, companyID, filter)
}

// MovementHistory returns an item's movements oldest first with running
// quantity and value after each one.
func (s *Service) MovementHistory(ctx context.Context, companyID, itemID int64, from, to time.Time) ([]HistoryRow, error) {
	if _, err := s.repo.GetItem(ctx, companyID, itemID); err != nil {
		return nil, err
	}
	movements, err := s.repo.ListMovements(ctx, companyID, MovementFilter{ItemID: itemID, DateFrom: from, DateTo: to})
	if err != nil {
		return nil, err
	}
	// ListMovements returns newest first; history reads forwards.
	directions := make(map[int64]Direction)
	rows := make([]HistoryRow, 0, len(movements))
	var qty, value float64
	for i := len(movements) - 1; i >= 0; i-- {
		m := movements[i]
		direction, ok := directions[m.TypeID]
		if !ok {
			typ, err := s.repo.GetMovementType(ctx, companyID, m.TypeID)
			if err != nil {
				return nil, err
			}
			direction = typ.AffectsQuantity
			directions[m.TypeID] = direction
		}
		delta := m.Quantity
		costDelta := m.TotalCost
		if direction == DirectionDecrease {
			delta = -delta
			costDelta = -costDelta
		}
		qty += delta
		value += costDelta
		rows = append(rows, HistoryRow{Movement: m, RunningQuantity: qty, RunningValue: value})
	}
	return rows, nil
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
	s.metrics.RecordPostingFailure("inventory")
}
