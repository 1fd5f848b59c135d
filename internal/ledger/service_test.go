package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/periods"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryLedgerRepo struct {
	accounts    map[int64]Account
	entries     map[int64]Entry
	nextAccID   int64
	nextEntryID int64
}

type memoryLedgerTx struct {
	repo *memoryLedgerRepo
}

func newMemoryLedgerRepo() *memoryLedgerRepo {
	return &memoryLedgerRepo{
		accounts: make(map[int64]Account),
		entries:  make(map[int64]Entry),
	}
}

func (r *memoryLedgerRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryLedgerTx{repo: r})
}

func (r *memoryLedgerRepo) GetAccount(ctx context.Context, companyID, id int64) (Account, error) {
	a, ok := r.accounts[id]
	if !ok || a.CompanyID != companyID {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (r *memoryLedgerRepo) GetAccountByCode(ctx context.Context, companyID int64, code string) (Account, error) {
	for _, a := range r.accounts {
		if a.CompanyID == companyID && a.Code == code {
			return a, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (r *memoryLedgerRepo) ListAccounts(ctx context.Context, companyID int64, filter AccountFilter) ([]Account, error) {
	var out []Account
	for _, a := range r.accounts {
		if a.CompanyID != companyID {
			continue
		}
		if filter.Type != "" && a.Type != filter.Type {
			continue
		}
		if filter.IsActive != nil && a.IsActive != *filter.IsActive {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *memoryLedgerRepo) ListEntries(ctx context.Context, companyID int64, filter EntryFilter) ([]Entry, error) {
	var out []Entry
	for _, e := range r.entries {
		if e.CompanyID != companyID {
			continue
		}
		if filter.AccountID != 0 && e.AccountID != filter.AccountID {
			continue
		}
		if filter.PeriodID != 0 && e.PeriodID != filter.PeriodID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *memoryLedgerRepo) AccountTotals(ctx context.Context, companyID, periodID int64) ([]AccountTotals, error) {
	byAccount := make(map[int64]*AccountTotals)
	var order []int64
	for _, a := range r.accounts {
		if a.CompanyID != companyID || !a.IsActive {
			continue
		}
		byAccount[a.ID] = &AccountTotals{
			AccountID:     a.ID,
			AccountCode:   a.Code,
			AccountName:   a.Name,
			AccountType:   a.Type,
			NormalBalance: a.NormalBalance,
		}
		order = append(order, a.ID)
	}
	touched := make(map[int64]bool)
	for _, e := range r.entries {
		if e.CompanyID != companyID || e.PeriodID != periodID {
			continue
		}
		t, ok := byAccount[e.AccountID]
		if !ok {
			continue
		}
		t.TotalDebits += e.DebitAmount
		t.TotalCredits += e.CreditAmount
		touched[e.AccountID] = true
	}
	var out []AccountTotals
	for _, id := range order {
		if touched[id] {
			out = append(out, *byAccount[id])
		}
	}
	return out, nil
}

func (tx *memoryLedgerTx) AccountCodeExists(ctx context.Context, companyID int64, code string) (bool, error) {
	_, err := tx.repo.GetAccountByCode(ctx, companyID, code)
	return err == nil, nil
}

func (tx *memoryLedgerTx) InsertAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	tx.repo.nextAccID++
	a := Account{
		ID:               tx.repo.nextAccID,
		CompanyID:        in.CompanyID,
		Code:             in.Code,
		Name:             in.Name,
		Type:             in.Type,
		NormalBalance:    in.NormalBalance,
		ParentID:         in.ParentID,
		IsControlAccount: in.IsControlAccount,
		IsActive:         true,
		CreatedAt:        time.Now(),
	}
	tx.repo.accounts[a.ID] = a
	return a, nil
}

func (tx *memoryLedgerTx) GetAccountForUpdate(ctx context.Context, companyID, id int64) (Account, error) {
	return tx.repo.GetAccount(ctx, companyID, id)
}

func (tx *memoryLedgerTx) UpdateAccount(ctx context.Context, account Account) error {
	tx.repo.accounts[account.ID] = account
	return nil
}

func (tx *memoryLedgerTx) DeleteAccount(ctx context.Context, id int64) error {
	delete(tx.repo.accounts, id)
	return nil
}

func (tx *memoryLedgerTx) CountEntriesForAccount(ctx context.Context, accountID int64) (int64, error) {
	var count int64
	for _, e := range tx.repo.entries {
		if e.AccountID == accountID {
			count++
		}
	}
	return count, nil
}

func (tx *memoryLedgerTx) InsertEntry(ctx context.Context, in EntryInput, postedAt time.Time) (Entry, error) {
	tx.repo.nextEntryID++
	e := Entry{
		ID:               tx.repo.nextEntryID,
		CompanyID:        in.CompanyID,
		PeriodID:         in.PeriodID,
		AccountID:        in.AccountID,
		Date:             in.Date,
		ReferenceNumber:  in.ReferenceNumber,
		Description:      in.Description,
		DebitAmount:      in.DebitAmount,
		CreditAmount:     in.CreditAmount,
		SourceModule:     in.SourceModule,
		SourceDocumentID: in.SourceDocumentID,
		PostedBy:         in.PostedBy,
		PostedAt:         postedAt,
	}
	tx.repo.entries[e.ID] = e
	return e, nil
}

type fakePeriodGuard struct {
	periods map[int64]periods.Period
}

func (g *fakePeriodGuard) EnsureOpenForPosting(ctx context.Context, companyID, periodID int64) error {
	p, ok := g.periods[periodID]
	if !ok || p.CompanyID != companyID {
		return periods.ErrNotFound
	}
	if p.IsClosed {
		return periods.ErrClosed
	}
	return nil
}

func (g *fakePeriodGuard) Get(ctx context.Context, companyID, periodID int64) (periods.Period, error) {
	p, ok := g.periods[periodID]
	if !ok || p.CompanyID != companyID {
		return periods.Period{}, periods.ErrNotFound
	}
	return p, nil
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newLedgerFixture(t *testing.T) (*Service, *memoryLedgerRepo, *fakePeriodGuard) {
	t.Helper()
	repo := newMemoryLedgerRepo()
	guard := &fakePeriodGuard{periods: map[int64]periods.Period{
		1: {ID: 1, CompanyID: 1, Name: "January 2025", StartDate: date(2025, time.January, 1), EndDate: date(2025, time.January, 31)},
	}}
	return NewService(repo, guard, nil, nil), repo, guard
}

func mustAccount(t *testing.T, svc *Service, code string, typ AccountType, normal BalanceSide) Account {
	t.Helper()
	a, err := svc.CreateAccount(context.Background(), CreateAccountInput{
		CompanyID:     1,
		Code:          code,
		Name:          code,
		Type:          typ,
		NormalBalance: normal,
	})
	require.NoError(t, err)
	return a
}

func TestCreateAccountRejectsDuplicateCode(t *testing.T) {
	svc, _, _ := newLedgerFixture(t)
	mustAccount(t, svc, "1000", AccountTypeAssets, BalanceSideDebit)

	_, err := svc.CreateAccount(context.Background(), CreateAccountInput{
		CompanyID:     1,
		Code:          "1000",
		Name:          "Duplicate",
		Type:          AccountTypeAssets,
		NormalBalance: BalanceSideDebit,
	})
	require.ErrorIs(t, err, ErrDuplicateCode)
	require.True(t, shared.IsConflict(err))
}

func TestPostEntryEnforcesSingleSide(t *testing.T) {
	svc, repo, _ := newLedgerFixture(t)
	acc := mustAccount(t, svc, "1000", AccountTypeAssets, BalanceSideDebit)

	base := EntryInput{
		CompanyID: 1,
		PeriodID:  1,
		AccountID: acc.ID,
		Date:      date(2025, time.January, 10),
		PostedBy:  9,
	}

	in := base
	in.DebitAmount = 100
	in.CreditAmount = 100
	_, err := svc.PostEntry(context.Background(), in)
	require.ErrorIs(t, err, ErrDebitCreditExclusive)

	in = base
	_, err = svc.PostEntry(context.Background(), in)
	require.ErrorIs(t, err, ErrDebitCreditExclusive)

	in = base
	in.DebitAmount = -5
	_, err = svc.PostEntry(context.Background(), in)
	require.ErrorIs(t, err, ErrNegativeAmount)

	require.Empty(t, repo.entries)

	in = base
	in.DebitAmount = 100
	entry, err := svc.PostEntry(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, 100.0, entry.DebitAmount)
	require.Zero(t, entry.CreditAmount)
}

func TestPostEntryRejectsClosedPeriod(t *testing.T) {
	svc, repo, guard := newLedgerFixture(t)
	acc := mustAccount(t, svc, "1000", AccountTypeAssets, BalanceSideDebit)

	p := guard.periods[1]
	p.IsClosed = true
	guard.periods[1] = p

	_, err := svc.PostEntry(context.Background(), EntryInput{
		CompanyID:   1,
		PeriodID:    1,
		AccountID:   acc.ID,
		Date:        date(2025, time.January, 10),
		DebitAmount: 50,
		PostedBy:    9,
	})
	require.ErrorIs(t, err, periods.ErrClosed)
	require.True(t, shared.IsState(err))
	require.Empty(t, repo.entries)
}

func TestPostEntryRejectsDateOutsidePeriod(t *testing.T) {
	svc, _, _ := newLedgerFixture(t)
	acc := mustAccount(t, svc, "1000", AccountTypeAssets, BalanceSideDebit)

	_, err := svc.PostEntry(context.Background(), EntryInput{
		CompanyID:   1,
		PeriodID:    1,
		AccountID:   acc.ID,
		Date:        date(2025, time.February, 2),
		DebitAmount: 50,
		PostedBy:    9,
	})
	require.ErrorIs(t, err, ErrDateOutsidePeriod)
}

func TestPostEntriesRejectsUnbalancedBatch(t *testing.T) {
	svc, repo, _ := newLedgerFixture(t)
	asset := mustAccount(t, svc, "1200", AccountTypeAssets, BalanceSideDebit)
	expense := mustAccount(t, svc, "5000", AccountTypeExpenses, BalanceSideDebit)

	docID := uuid.New()
	batch := []EntryInput{
		{CompanyID: 1, PeriodID: 1, AccountID: asset.ID, Date: date(2025, time.January, 5), DebitAmount: 500, SourceModule: "INV", SourceDocumentID: docID, PostedBy: 9},
		{CompanyID: 1, PeriodID: 1, AccountID: expense.ID, Date: date(2025, time.January, 5), CreditAmount: 300, SourceModule: "INV", SourceDocumentID: docID, PostedBy: 9},
	}
	_, err := svc.PostEntries(context.Background(), batch)
	require.ErrorIs(t, err, ErrUnbalancedBatch)
	require.Empty(t, repo.entries)

	batch[1].CreditAmount = 500
	entries, err := svc.PostEntries(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestTrialBalanceFoldsByNormalBalance(t *testing.T) {
	svc, _, _ := newLedgerFixture(t)
	ctx := context.Background()

	cash := mustAccount(t, svc, "1000", AccountTypeAssets, BalanceSideDebit)
	sales := mustAccount(t, svc, "4000", AccountTypeRevenue, BalanceSideCredit)

	post := func(accountID int64, debit, credit float64) {
		t.Helper()
		_, err := svc.PostEntry(ctx, EntryInput{
			CompanyID:    1,
			PeriodID:     1,
			AccountID:    accountID,
			Date:         date(2025, time.January, 12),
			DebitAmount:  debit,
			CreditAmount: credit,
			PostedBy:     9,
		})
		require.NoError(t, err)
	}

	post(cash.ID, 1200, 0)
	post(cash.ID, 0, 200)
	post(sales.ID, 0, 1200)
	post(sales.ID, 200, 0)

	tb, err := svc.TrialBalance(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, tb.Rows, 2)

	require.Equal(t, 1000.0, tb.Rows[0].DebitBalance)
	require.Zero(t, tb.Rows[0].CreditBalance)
	require.Equal(t, 1000.0, tb.Rows[1].CreditBalance)
	require.Zero(t, tb.Rows[1].DebitBalance)
	require.Equal(t, tb.TotalDebits, tb.TotalCredits)
	require.True(t, tb.IsBalanced)
}

func TestTrialBalanceDetectsImbalance(t *testing.T) {
	svc, _, _ := newLedgerFixture(t)
	ctx := context.Background()

	cash := mustAccount(t, svc, "1000", AccountTypeAssets, BalanceSideDebit)
	_, err := svc.PostEntry(ctx, EntryInput{
		CompanyID:   1,
		PeriodID:    1,
		AccountID:   cash.ID,
		Date:        date(2025, time.January, 12),
		DebitAmount: 750,
		PostedBy:    9,
	})
	require.NoError(t, err)

	tb, err := svc.TrialBalance(ctx, 1, 1)
	require.NoError(t, err)
	require.False(t, tb.IsBalanced)
	require.Equal(t, 750.0, tb.TotalDebits)
	require.Zero(t, tb.TotalCredits)
}

func TestTrialBalanceCreditNormalWithDebitNet(t *testing.T) {
	svc, _, _ := newLedgerFixture(t)
	ctx := context.Background()

	// A revenue account driven into a debit position still reports on
	// the debit column.
	sales := mustAccount(t, svc, "4000", AccountTypeRevenue, BalanceSideCredit)
	_, err := svc.PostEntry(ctx, EntryInput{
		CompanyID:   1,
		PeriodID:    1,
		AccountID:   sales.ID,
		Date:        date(2025, time.January, 15),
		DebitAmount: 40,
		PostedBy:    9,
	})
	require.NoError(t, err)

	tb, err := svc.TrialBalance(ctx, 1, 1)
	require.NoError(t, err)
	require.Equal(t, 40.0, tb.Rows[0].DebitBalance)
	require.Zero(t, tb.Rows[0].CreditBalance)
}

func TestDeleteAccountHardThenSoft(t *testing.T) {
	svc, repo, _ := newLedgerFixture(t)
	ctx := context.Background()

	clean := mustAccount(t, svc, "1100", AccountTypeAssets, BalanceSideDebit)
	used := mustAccount(t, svc, "1200", AccountTypeAssets, BalanceSideDebit)

	_, err := svc.PostEntry(ctx, EntryInput{
		CompanyID:   1,
		PeriodID:    1,
		AccountID:   used.ID,
		Date:        date(2025, time.January, 3),
		DebitAmount: 10,
		PostedBy:    9,
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteAccount(ctx, 1, clean.ID, 9))
	_, err = svc.GetAccount(ctx, 1, clean.ID)
	require.ErrorIs(t, err, ErrAccountNotFound)

	require.NoError(t, svc.DeleteAccount(ctx, 1, used.ID, 9))
	kept, err := svc.GetAccount(ctx, 1, used.ID)
	require.NoError(t, err)
	require.False(t, kept.IsActive)
	require.Len(t, repo.entries, 1)
}
