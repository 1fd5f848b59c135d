package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// TxRepository exposes transactional operations on periods.
type TxRepository interface {
	InsertPeriod(ctx context.Context, in CreatePeriodInput) (Period, error)
	RangeConflict(ctx context.Context, companyID int64, start, end time.Time) (bool, error)
	GetPeriodForUpdate(ctx context.Context, companyID, id int64) (Period, error)
	SetClosed(ctx context.Context, id int64, closed bool) error
	DeletePeriod(ctx context.Context, id int64) error
	CountReferences(ctx context.Context, periodID int64) (ReferenceCounts, error)
}

// Repository persists periods in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a database transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const periodColumns = `id, company_id, name, start_date, end_date, financial_year, is_closed, created_at`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.CompanyID, &p.Name, &p.StartDate, &p.EndDate, &p.FinancialYear, &p.IsClosed, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, ErrNotFound
	}
	if err != nil {
		return Period{}, err
	}
	return p, nil
}

// GetPeriod loads one period scoped to a company.
func (r *Repository) GetPeriod(ctx context.Context, companyID, id int64) (Period, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+periodColumns+` FROM accounting_periods WHERE id = $1 AND company_id = $2`, id, companyID)
	return scanPeriod(row)
}

// ListPeriods returns the company's periods ordered by start date.
func (r *Repository) ListPeriods(ctx context.Context, companyID int64) ([]Period, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+periodColumns+` FROM accounting_periods WHERE company_id = $1 ORDER BY start_date`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		var p Period
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.Name, &p.StartDate, &p.EndDate, &p.FinancialYear, &p.IsClosed, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ResolvePeriod finds the period whose range contains date.
func (r *Repository) ResolvePeriod(ctx context.Context, companyID int64, date time.Time) (Period, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+periodColumns+` FROM accounting_periods WHERE company_id = $1 AND start_date <= $2 AND end_date >= $2`,
		companyID, date)
	return scanPeriod(row)
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertPeriod(ctx context.Context, in CreatePeriodInput) (Period, error) {
	row := r.tx.QueryRow(ctx,
		`INSERT INTO accounting_periods (company_id, name, start_date, end_date, financial_year, is_closed, created_at)
		 VALUES ($1, $2, $3, $4, $5, FALSE, NOW())
		 RETURNING `+periodColumns,
		in.CompanyID, in.Name, in.StartDate, in.EndDate, in.FinancialYear)
	return scanPeriod(row)
}

func (r *txRepository) RangeConflict(ctx context.Context, companyID int64, start, end time.Time) (bool, error) {
	// Overlap in either direction: an existing period starting inside the
	// new range, or the new range starting inside an existing period.
	var conflict bool
	err := r.tx.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM accounting_periods
			WHERE company_id = $1 AND start_date <= $3 AND end_date >= $2
		)`, companyID, start, end).Scan(&conflict)
	return conflict, err
}

func (r *txRepository) GetPeriodForUpdate(ctx context.Context, companyID, id int64) (Period, error) {
	row := r.tx.QueryRow(ctx,
		`SELECT `+periodColumns+` FROM accounting_periods WHERE id = $1 AND company_id = $2 FOR UPDATE`, id, companyID)
	return scanPeriod(row)
}

func (r *txRepository) SetClosed(ctx context.Context, id int64, closed bool) error {
	_, err := r.tx.Exec(ctx, `UPDATE accounting_periods SET is_closed = $2 WHERE id = $1`, id, closed)
	return err
}

func (r *txRepository) DeletePeriod(ctx context.Context, id int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM accounting_periods WHERE id = $1`, id)
	return err
}

func (r *txRepository) CountReferences(ctx context.Context, periodID int64) (ReferenceCounts, error) {
	var refs ReferenceCounts
	err := r.tx.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM gl_transactions WHERE period_id = $1),
			(SELECT COUNT(*) FROM subledger_transactions WHERE period_id = $1),
			(SELECT COUNT(*) FROM inventory_movements WHERE period_id = $1)`,
		periodID).Scan(&refs.Ledger, &refs.Subledger, &refs.Inventory)
	return refs, err
}
