package reporting

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/subledger"
)

type fakeSubledger struct {
	counterparts []subledger.Counterpart
	transactions []subledger.Transaction
	outstanding  atomic.Int32
	release      chan struct{}
}

func (f *fakeSubledger) Outstanding(ctx context.Context, companyID int64, side subledger.Side, counterpartID int64) ([]subledger.Transaction, error) {
	f.outstanding.Add(1)
	if f.release != nil {
		<-f.release
	}
	var out []subledger.Transaction
	for _, t := range f.transactions {
		if t.CompanyID == companyID && t.IsPosted && t.OutstandingAmount > 0 {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeSubledger) ListCounterparts(ctx context.Context, companyID int64, filter subledger.CounterpartFilter) ([]subledger.Counterpart, error) {
	return f.counterparts, nil
}

func (f *fakeSubledger) ListTransactions(ctx context.Context, companyID int64, filter subledger.TransactionFilter) ([]subledger.Transaction, error) {
	var out []subledger.Transaction
	for _, t := range f.transactions {
		if t.CompanyID != companyID {
			continue
		}
		if filter.CounterpartID != 0 && t.CounterpartID != filter.CounterpartID {
			continue
		}
		if filter.Posted != nil && t.IsPosted != *filter.Posted {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeSubledger) GetCounterpart(ctx context.Context, companyID, id int64) (subledger.Counterpart, error) {
	for _, cp := range f.counterparts {
		if cp.CompanyID == companyID && cp.ID == id {
			return cp, nil
		}
	}
	return subledger.Counterpart{}, subledger.ErrCounterpartNotFound
}

type fakeInventory struct {
	items []inventory.Item
}

func (f *fakeInventory) ListItems(ctx context.Context, companyID int64, activeOnly bool) ([]inventory.Item, error) {
	return f.items, nil
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func openTxn(id, counterpartID int64, day time.Time, outstanding float64) subledger.Transaction {
	return subledger.Transaction{
		ID:                id,
		CompanyID:         1,
		CounterpartID:     counterpartID,
		TransactionDate:   day,
		NetAmount:         outstanding,
		OutstandingAmount: outstanding,
		IsPosted:          true,
	}
}

func TestCounterpartAgeingBucketsByElapsedDays(t *testing.T) {
	asAt := date(2025, time.June, 30)
	sl := &fakeSubledger{
		counterparts: []subledger.Counterpart{
			{ID: 1, CompanyID: 1, Side: subledger.SideReceivable, Code: "CP-001", Name: "Acme"},
			{ID: 2, CompanyID: 1, Side: subledger.SideReceivable, Code: "CP-002", Name: "Globex"},
		},
		transactions: []subledger.Transaction{
			openTxn(1, 1, asAt.AddDate(0, 0, -10), 100),  // current
			openTxn(2, 1, asAt.AddDate(0, 0, -45), 200),  // 30-59
			openTxn(3, 1, asAt.AddDate(0, 0, -75), 300),  // 60-89
			openTxn(4, 2, asAt.AddDate(0, 0, -100), 400), // 90-119
			openTxn(5, 2, asAt.AddDate(0, 0, -365), 500), // over 120
		},
	}
	svc := NewService(sl, &fakeInventory{})

	report, err := svc.CounterpartAgeing(context.Background(), 1, subledger.SideReceivable, asAt)
	require.NoError(t, err)
	require.Len(t, report.Rows, 2)

	acme := report.Rows[0]
	require.Equal(t, "CP-001", acme.CounterpartCode)
	require.Equal(t, 100.0, acme.Current)
	require.Equal(t, 200.0, acme.Days30)
	require.Equal(t, 300.0, acme.Days60)
	require.Equal(t, 600.0, acme.Total)

	globex := report.Rows[1]
	require.Equal(t, 400.0, globex.Days90)
	require.Equal(t, 500.0, globex.Over120)
	require.Equal(t, 900.0, globex.Total)

	require.Equal(t, 1500.0, report.Summary.Total)
	require.Equal(t, 100.0, report.Summary.Current)
	require.Equal(t, 500.0, report.Summary.Over120)
}

func TestCounterpartAgeingDedupesConcurrentBuilds(t *testing.T) {
	asAt := date(2025, time.June, 30)
	sl := &fakeSubledger{
		counterparts: []subledger.Counterpart{{ID: 1, CompanyID: 1, Code: "CP-001"}},
		transactions: []subledger.Transaction{openTxn(1, 1, asAt.AddDate(0, 0, -5), 100)},
		release:      make(chan struct{}),
	}
	svc := NewService(sl, &fakeInventory{})

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CounterpartAgeing(context.Background(), 1, subledger.SideReceivable, asAt)
			errs <- err
		}()
	}
	// The first build blocks on release, so every caller joins the same
	// in-flight computation.
	time.Sleep(100 * time.Millisecond)
	close(sl.release)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, int32(1), sl.outstanding.Load())
}

func TestCounterpartActivityFiltersWindowAndAges(t *testing.T) {
	sl := &fakeSubledger{
		counterparts: []subledger.Counterpart{{ID: 1, CompanyID: 1, Code: "CP-001"}},
		transactions: []subledger.Transaction{
			openTxn(1, 1, date(2025, time.January, 10), 100),
			openTxn(2, 1, date(2025, time.March, 10), 200),
			openTxn(3, 1, date(2025, time.June, 10), 300),
		},
	}
	svc := NewService(sl, &fakeInventory{})
	svc.WithNow(func() time.Time { return date(2025, time.June, 30) })

	rows, err := svc.CounterpartActivity(context.Background(), 1, 1,
		date(2025, time.February, 1), date(2025, time.June, 30))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, int64(2), rows[0].Transaction.ID)
	require.Equal(t, 112, rows[0].DaysOutstanding)
	require.Equal(t, int64(3), rows[1].Transaction.ID)
	require.Equal(t, 20, rows[1].DaysOutstanding)

	_, err = svc.CounterpartActivity(context.Background(), 1, 99, time.Time{}, time.Time{})
	require.ErrorIs(t, err, subledger.ErrCounterpartNotFound)
}

func TestStockLevelsValueOnHandAtAverageCost(t *testing.T) {
	inv := &fakeInventory{items: []inventory.Item{
		{ID: 1, CompanyID: 1, Code: "WIDGET", Description: "Widget", UnitOfMeasure: "EA", QuantityOnHand: 20, CostPrice: 60, ReorderLevel: 5, IsActive: true},
		{ID: 2, CompanyID: 1, Code: "BOLT", Description: "Bolt", UnitOfMeasure: "EA", QuantityOnHand: 2, CostPrice: 1.5, ReorderLevel: 10, IsActive: true},
	}}
	svc := NewService(&fakeSubledger{}, inv)

	levels, err := svc.StockLevels(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, levels, 2)

	require.Equal(t, "BOLT", levels[0].Code)
	require.Equal(t, 3.0, levels[0].TotalValue)
	require.True(t, levels[0].BelowReorder)

	require.Equal(t, "WIDGET", levels[1].Code)
	require.Equal(t, 1200.0, levels[1].TotalValue)
	require.False(t, levels[1].BelowReorder)
}
