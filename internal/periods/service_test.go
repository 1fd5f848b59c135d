package periods

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryPeriodRepo struct {
	periods map[int64]Period
	refs    map[int64]ReferenceCounts
	nextID  int64
}

type memoryPeriodTx struct {
	repo *memoryPeriodRepo
}

func newMemoryPeriodRepo() *memoryPeriodRepo {
	return &memoryPeriodRepo{
		periods: make(map[int64]Period),
		refs:    make(map[int64]ReferenceCounts),
	}
}

func (r *memoryPeriodRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryPeriodTx{repo: r})
}

func (r *memoryPeriodRepo) GetPeriod(ctx context.Context, companyID, id int64) (Period, error) {
	p, ok := r.periods[id]
	if !ok || p.CompanyID != companyID {
		return Period{}, ErrNotFound
	}
	return p, nil
}

func (r *memoryPeriodRepo) ListPeriods(ctx context.Context, companyID int64) ([]Period, error) {
	var out []Period
	for _, p := range r.periods {
		if p.CompanyID == companyID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryPeriodRepo) ResolvePeriod(ctx context.Context, companyID int64, date time.Time) (Period, error) {
	for _, p := range r.periods {
		if p.CompanyID == companyID && p.Contains(date) {
			return p, nil
		}
	}
	return Period{}, ErrNotFound
}

func (tx *memoryPeriodTx) InsertPeriod(ctx context.Context, in CreatePeriodInput) (Period, error) {
	tx.repo.nextID++
	p := Period{
		ID:            tx.repo.nextID,
		CompanyID:     in.CompanyID,
		Name:          in.Name,
		StartDate:     in.StartDate,
		EndDate:       in.EndDate,
		FinancialYear: in.FinancialYear,
		CreatedAt:     time.Now(),
	}
	tx.repo.periods[p.ID] = p
	return p, nil
}

func (tx *memoryPeriodTx) RangeConflict(ctx context.Context, companyID int64, start, end time.Time) (bool, error) {
	for _, p := range tx.repo.periods {
		if p.CompanyID != companyID {
			continue
		}
		if !p.StartDate.After(end) && !p.EndDate.Before(start) {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryPeriodTx) GetPeriodForUpdate(ctx context.Context, companyID, id int64) (Period, error) {
	return tx.repo.GetPeriod(ctx, companyID, id)
}

func (tx *memoryPeriodTx) SetClosed(ctx context.Context, id int64, closed bool) error {
	p := tx.repo.periods[id]
	p.IsClosed = closed
	tx.repo.periods[id] = p
	return nil
}

func (tx *memoryPeriodTx) DeletePeriod(ctx context.Context, id int64) error {
	delete(tx.repo.periods, id)
	return nil
}

func (tx *memoryPeriodTx) CountReferences(ctx context.Context, periodID int64) (ReferenceCounts, error) {
	return tx.repo.refs[periodID], nil
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func janInput() CreatePeriodInput {
	return CreatePeriodInput{
		CompanyID:     1,
		Name:          "January 2025",
		StartDate:     date(2025, time.January, 1),
		EndDate:       date(2025, time.January, 31),
		FinancialYear: 2025,
		ActorID:       9,
	}
}

func TestCreatePeriodRejectsReversedDates(t *testing.T) {
	svc := NewService(newMemoryPeriodRepo(), nil)
	in := janInput()
	in.StartDate, in.EndDate = in.EndDate, in.StartDate

	_, err := svc.Create(context.Background(), in)
	require.ErrorIs(t, err, ErrDatesReversed)

	in.EndDate = in.StartDate
	_, err = svc.Create(context.Background(), in)
	require.ErrorIs(t, err, ErrDatesReversed)
}

func TestCreatePeriodRejectsOverlapBothDirections(t *testing.T) {
	svc := NewService(newMemoryPeriodRepo(), nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, janInput())
	require.NoError(t, err)

	// New range starts inside the existing period.
	in := janInput()
	in.Name = "Mid-January"
	in.StartDate = date(2025, time.January, 15)
	in.EndDate = date(2025, time.February, 15)
	_, err = svc.Create(ctx, in)
	require.ErrorIs(t, err, ErrOverlap)

	// New range fully envelops the existing period.
	in = janInput()
	in.Name = "Quarter"
	in.StartDate = date(2024, time.December, 1)
	in.EndDate = date(2025, time.March, 31)
	_, err = svc.Create(ctx, in)
	require.ErrorIs(t, err, ErrOverlap)

	// Adjacent ranges are fine.
	in = janInput()
	in.Name = "February 2025"
	in.StartDate = date(2025, time.February, 1)
	in.EndDate = date(2025, time.February, 28)
	_, err = svc.Create(ctx, in)
	require.NoError(t, err)
}

func TestResolveFindsContainingPeriod(t *testing.T) {
	svc := NewService(newMemoryPeriodRepo(), nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, janInput())
	require.NoError(t, err)

	found, err := svc.Resolve(ctx, 1, date(2025, time.January, 20))
	require.NoError(t, err)
	require.Equal(t, created.ID, found.ID)

	_, err = svc.Resolve(ctx, 1, date(2025, time.March, 1))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCloseReopenStateMachine(t *testing.T) {
	svc := NewService(newMemoryPeriodRepo(), nil)
	ctx := context.Background()

	p, err := svc.Create(ctx, janInput())
	require.NoError(t, err)

	_, err = svc.Reopen(ctx, 1, p.ID, 9)
	require.ErrorIs(t, err, ErrNotClosed)

	closed, err := svc.Close(ctx, 1, p.ID, 9)
	require.NoError(t, err)
	require.True(t, closed.IsClosed)

	_, err = svc.Close(ctx, 1, p.ID, 9)
	require.ErrorIs(t, err, ErrAlreadyClosed)

	reopened, err := svc.Reopen(ctx, 1, p.ID, 9)
	require.NoError(t, err)
	require.False(t, reopened.IsClosed)
}

func TestEnsureOpenForPosting(t *testing.T) {
	svc := NewService(newMemoryPeriodRepo(), nil)
	ctx := context.Background()

	p, err := svc.Create(ctx, janInput())
	require.NoError(t, err)
	require.NoError(t, svc.EnsureOpenForPosting(ctx, 1, p.ID))

	_, err = svc.Close(ctx, 1, p.ID, 9)
	require.NoError(t, err)
	require.ErrorIs(t, svc.EnsureOpenForPosting(ctx, 1, p.ID), ErrClosed)

	require.ErrorIs(t, svc.EnsureOpenForPosting(ctx, 1, 999), ErrNotFound)
}

func TestDeleteBlockedWhenReferenced(t *testing.T) {
	repo := newMemoryPeriodRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	p, err := svc.Create(ctx, janInput())
	require.NoError(t, err)

	repo.refs[p.ID] = ReferenceCounts{Subledger: 2}
	require.ErrorIs(t, svc.Delete(ctx, 1, p.ID, 9), ErrReferenced)
	_, err = svc.Get(ctx, 1, p.ID)
	require.NoError(t, err)

	repo.refs[p.ID] = ReferenceCounts{}
	require.NoError(t, svc.Delete(ctx, 1, p.ID, 9))
	_, err = svc.Get(ctx, 1, p.ID)
	require.ErrorIs(t, err, ErrNotFound)
}
