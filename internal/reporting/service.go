package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/subledger"
)

// AgeingRow holds one counterpart's outstanding value bucketed by
// elapsed days since the transaction date.
type AgeingRow struct {
	CounterpartID   int64
	CounterpartCode string
	CounterpartName string
	Current         float64
	Days30          float64
	Days60          float64
	Days90          float64
	Over120         float64
	Total           float64
}

// AgeingReport is one side's ageing as at a reporting date.
type AgeingReport struct {
	CompanyID int64
	Side      subledger.Side
	AsAt      time.Time
	Rows      []AgeingRow
	Summary   AgeingRow
}

// ActivityRow is one posted transaction with its age in days.
type ActivityRow struct {
	Transaction     subledger.Transaction
	DaysOutstanding int
}

// StockLevel is one item's on-hand position valued at average cost.
type StockLevel struct {
	ItemID         int64
	Code           string
	Description    string
	UnitOfMeasure  string
	QuantityOnHand float64
	CostPrice      float64
	TotalValue     float64
	BelowReorder   bool
}

// SubledgerReader is the read surface reporting needs from the subledger.
type SubledgerReader interface {
	Outstanding(ctx context.Context, companyID int64, side subledger.Side, counterpartID int64) ([]subledger.Transaction, error)
	ListCounterparts(ctx context.Context, companyID int64, filter subledger.CounterpartFilter) ([]subledger.Counterpart, error)
	ListTransactions(ctx context.Context, companyID int64, filter subledger.TransactionFilter) ([]subledger.Transaction, error)
	GetCounterpart(ctx context.Context, companyID, id int64) (subledger.Counterpart, error)
}

// InventoryReader is the read surface reporting needs from inventory.
type InventoryReader interface {
	ListItems(ctx context.Context, companyID int64, activeOnly bool) ([]inventory.Item, error)
}

// Service derives read-only reports over committed state. Concurrent
// identical requests are deduped so one build serves all callers.
type Service struct {
	subledger SubledgerReader
	inventory InventoryReader
	group     singleflight.Group
	now       func() time.Time
}

// NewService constructs the reporting service.
func NewService(sl SubledgerReader, inv InventoryReader) *Service {
	return &Service{
		subledger: sl,
		inventory: inv,
		now:       time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CounterpartAgeing buckets outstanding posted transactions per
// counterpart into 30-day bands and totals them.
func (s *Service) CounterpartAgeing(ctx context.Context, companyID int64, side subledger.Side, asAt time.Time) (AgeingReport, error) {
	if asAt.IsZero() {
		asAt = s.now()
	}
	key := fmt.Sprintf("ageing:%d:%s:%s", companyID, side, asAt.Format("2006-01-02"))
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.buildAgeing(ctx, companyID, side, asAt)
	})
	if err != nil {
		return AgeingReport{}, err
	}
	return v.(AgeingReport), nil
}

func (s *Service) buildAgeing(ctx context.Context, companyID int64, side subledger.Side, asAt time.Time) (AgeingReport, error) {
	open, err := s.subledger.Outstanding(ctx, companyID, side, 0)
	if err != nil {
		return AgeingReport{}, err
	}
	counterparts, err := s.subledger.ListCounterparts(ctx, companyID, subledger.CounterpartFilter{Side: side})
	if err != nil {
		return AgeingReport{}, err
	}
	names := make(map[int64]subledger.Counterpart, len(counterparts))
	for _, cp := range counterparts {
		names[cp.ID] = cp
	}

	byCounterpart := make(map[int64]*AgeingRow)
	report := AgeingReport{CompanyID: companyID, Side: side, AsAt: asAt}
	for _, txn := range open {
		row, ok := byCounterpart[txn.CounterpartID]
		if !ok {
			cp := names[txn.CounterpartID]
			row = &AgeingRow{
				CounterpartID:   txn.CounterpartID,
				CounterpartCode: cp.Code,
				CounterpartName: cp.Name,
			}
			byCounterpart[txn.CounterpartID] = row
		}
		bucket(row, daysBetween(txn.TransactionDate, asAt), txn.OutstandingAmount)
		bucket(&report.Summary, daysBetween(txn.TransactionDate, asAt), txn.OutstandingAmount)
	}

	for _, row := range byCounterpart {
		report.Rows = append(report.Rows, *row)
	}
	sort.Slice(report.Rows, func(i, j int) bool {
		return report.Rows[i].CounterpartCode < report.Rows[j].CounterpartCode
	})
	return report, nil
}

func bucket(row *AgeingRow, days int, amount float64) {
	switch {
	case days < 30:
		row.Current += amount
	case days < 60:
		row.Days30 += amount
	case days < 90:
		row.Days60 += amount
	case days < 120:
		row.Days90 += amount
	default:
		row.Over120 += amount
	}
	row.Total += amount
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

// CounterpartActivity returns one counterpart's posted history in the
// window, oldest first, with the age of each document.
func (s *Service) CounterpartActivity(ctx context.Context, companyID, counterpartID int64, from, to time.Time) ([]ActivityRow, error) {
	if _, err := s.subledger.GetCounterpart(ctx, companyID, counterpartID); err != nil {
		return nil, err
	}
	posted := true
	txns, err := s.subledger.ListTransactions(ctx, companyID, subledger.TransactionFilter{
		CounterpartID: counterpartID,
		Posted:        &posted,
	})
	if err != nil {
		return nil, err
	}
	asAt := s.now()
	var rows []ActivityRow
	for _, txn := range txns {
		if !from.IsZero() && txn.TransactionDate.Before(from) {
			continue
		}
		if !to.IsZero() && txn.TransactionDate.After(to) {
			continue
		}
		rows = append(rows, ActivityRow{
			Transaction:     txn,
			DaysOutstanding: daysBetween(txn.TransactionDate, asAt),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Transaction.TransactionDate.Equal(rows[j].Transaction.TransactionDate) {
			return rows[i].Transaction.ID < rows[j].Transaction.ID
		}
		return rows[i].Transaction.TransactionDate.Before(rows[j].Transaction.TransactionDate)
	})
	return rows, nil
}

// StockLevels values every active item's on-hand quantity at its
// weighted-average cost.
func (s *Service) StockLevels(ctx context.Context, companyID int64) ([]StockLevel, error) {
	key := fmt.Sprintf("stock:%d", companyID)
	v, err, _ := s.group.Do(key, func() (any, error) {
		items, err := s.inventory.ListItems(ctx, companyID, true)
		if err != nil {
			return nil, err
		}
		levels := make([]StockLevel, 0, len(items))
		for _, item := range items {
			levels = append(levels, StockLevel{
				ItemID:         item.ID,
				Code:           item.Code,
				Description:    item.Description,
				UnitOfMeasure:  item.UnitOfMeasure,
				QuantityOnHand: item.QuantityOnHand,
				CostPrice:      item.CostPrice,
				TotalValue:     item.QuantityOnHand * item.CostPrice,
				BelowReorder:   item.QuantityOnHand < item.ReorderLevel,
			})
		}
		sort.Slice(levels, func(i, j int) bool { return levels[i].Code < levels[j].Code })
		return levels, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]StockLevel), nil
}
