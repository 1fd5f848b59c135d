package subledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

func postedPair(t *testing.T, f *fixture) (invoice, payment Transaction) {
	t.Helper()
	ctx := context.Background()
	invoice = f.draft(t, f.invoice.ID, 10, 1100, 100, 0)
	payment = f.draft(t, f.payment.ID, 15, 500, 0, 0)
	var err error
	invoice, err = f.svc.Post(ctx, 1, invoice.ID, 9)
	require.NoError(t, err)
	payment, err = f.svc.Post(ctx, 1, payment.ID, 9)
	require.NoError(t, err)
	return invoice, payment
}

func TestAllocateSettlesPaymentAgainstInvoice(t *testing.T) {
	f := newFixture(t, SideReceivable)
	ctx := context.Background()
	invoice, payment := postedPair(t, f)

	alloc, err := f.svc.Allocate(ctx, AllocateInput{
		CompanyID:  1,
		SettlingID: payment.ID,
		SettledID:  invoice.ID,
		Amount:     500,
		Date:       date(2025, time.January, 16),
		PostedBy:   9,
	})
	require.NoError(t, err)
	require.Equal(t, f.account.ID, alloc.CounterpartID)
	require.Equal(t, 500.0, alloc.Amount)

	settledInvoice, err := f.svc.GetTransaction(ctx, 1, invoice.ID)
	require.NoError(t, err)
	require.Equal(t, 700.0, settledInvoice.OutstandingAmount)
	require.Equal(t, 1200.0, settledInvoice.NetAmount)

	settlingPayment, err := f.svc.GetTransaction(ctx, 1, payment.ID)
	require.NoError(t, err)
	require.Zero(t, settlingPayment.OutstandingAmount)
}

func TestAllocateRejectsOverAllocationLeavingBothSidesUntouched(t *testing.T) {
	f := newFixture(t, SideReceivable)
	ctx := context.Background()
	invoice, payment := postedPair(t, f)

	// Drain the invoice down to 700 first.
	_, err := f.svc.Allocate(ctx, AllocateInput{
		CompanyID: 1, SettlingID: payment.ID, SettledID: invoice.ID,
		Amount: 500, Date: date(2025, time.January, 16), PostedBy: 9,
	})
	require.NoError(t, err)

	extra := f.draft(t, f.payment.ID, 18, 900, 0, 0)
	extra, err = f.svc.Post(ctx, 1, extra.ID, 9)
	require.NoError(t, err)

	_, err = f.svc.Allocate(ctx, AllocateInput{
		CompanyID: 1, SettlingID: extra.ID, SettledID: invoice.ID,
		Amount: 800, Date: date(2025, time.January, 19), PostedBy: 9,
	})
	require.ErrorIs(t, err, ErrOverAllocation)
	require.True(t, shared.IsState(err))

	settled, err := f.svc.GetTransaction(ctx, 1, invoice.ID)
	require.NoError(t, err)
	require.Equal(t, 700.0, settled.OutstandingAmount)
	settling, err := f.svc.GetTransaction(ctx, 1, extra.ID)
	require.NoError(t, err)
	require.Equal(t, 900.0, settling.OutstandingAmount)
}

func TestAllocateRejectsUnpostedSides(t *testing.T) {
	f := newFixture(t, SideReceivable)
	ctx := context.Background()

	invoice := f.draft(t, f.invoice.ID, 10, 1000, 0, 0)
	payment := f.draft(t, f.payment.ID, 15, 500, 0, 0)
	_, err := f.svc.Post(ctx, 1, invoice.ID, 9)
	require.NoError(t, err)

	_, err = f.svc.Allocate(ctx, AllocateInput{
		CompanyID: 1, SettlingID: payment.ID, SettledID: invoice.ID,
		Amount: 500, Date: date(2025, time.January, 16), PostedBy: 9,
	})
	require.ErrorIs(t, err, ErrNotPosted)
}

func TestAllocateRejectsCounterpartMismatch(t *testing.T) {
	f := newFixture(t, SideReceivable)
	ctx := context.Background()
	invoice, _ := postedPair(t, f)

	other, err := f.svc.CreateCounterpart(ctx, CreateCounterpartInput{
		CompanyID: 1, Side: SideReceivable, Code: "CP-002", Name: "Globex",
	})
	require.NoError(t, err)
	foreign, err := f.svc.CreateTransaction(ctx, CreateTransactionInput{
		CompanyID:       1,
		CounterpartID:   other.ID,
		TypeID:          f.payment.ID,
		PeriodID:        1,
		TransactionDate: date(2025, time.January, 12),
		GrossAmount:     300,
		CreatedBy:       9,
	})
	require.NoError(t, err)
	foreign, err = f.svc.Post(ctx, 1, foreign.ID, 9)
	require.NoError(t, err)

	_, err = f.svc.Allocate(ctx, AllocateInput{
		CompanyID: 1, SettlingID: foreign.ID, SettledID: invoice.ID,
		Amount: 300, Date: date(2025, time.January, 16), PostedBy: 9,
	})
	require.ErrorIs(t, err, ErrCounterpartMismatch)
}

func TestAllocateValidatesInput(t *testing.T) {
	f := newFixture(t, SideReceivable)
	ctx := context.Background()
	invoice, payment := postedPair(t, f)

	_, err := f.svc.Allocate(ctx, AllocateInput{
		CompanyID: 1, SettlingID: payment.ID, SettledID: invoice.ID,
		Amount: 0, Date: date(2025, time.January, 16), PostedBy: 9,
	})
	require.True(t, shared.IsValidation(err))

	_, err = f.svc.Allocate(ctx, AllocateInput{
		CompanyID: 1, SettlingID: invoice.ID, SettledID: invoice.ID,
		Amount: 100, Date: date(2025, time.January, 16), PostedBy: 9,
	})
	require.ErrorIs(t, err, ErrSelfAllocation)
}

func TestAllocationsForReturnsBothSides(t *testing.T) {
	f := newFixture(t, SideReceivable)
	ctx := context.Background()
	invoice, payment := postedPair(t, f)

	first, err := f.svc.Allocate(ctx, AllocateInput{
		CompanyID: 1, SettlingID: payment.ID, SettledID: invoice.ID,
		Amount: 300, Date: date(2025, time.January, 16), PostedBy: 9,
	})
	require.NoError(t, err)
	second, err := f.svc.Allocate(ctx, AllocateInput{
		CompanyID: 1, SettlingID: payment.ID, SettledID: invoice.ID,
		Amount: 200, Date: date(2025, time.January, 17), PostedBy: 9,
	})
	require.NoError(t, err)

	forInvoice, err := f.svc.AllocationsFor(ctx, 1, invoice.ID)
	require.NoError(t, err)
	require.Len(t, forInvoice, 2)
	require.Equal(t, first.ID, forInvoice[0].ID)
	require.Equal(t, second.ID, forInvoice[1].ID)

	forPayment, err := f.svc.AllocationsFor(ctx, 1, payment.ID)
	require.NoError(t, err)
	require.Len(t, forPayment, 2)

	_, err = f.svc.AllocationsFor(ctx, 1, 9999)
	require.ErrorIs(t, err, ErrTransactionNotFound)
}
