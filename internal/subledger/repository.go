package subledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// TxRepository exposes transactional subledger operations.
type TxRepository interface {
	InsertCounterpart(ctx context.Context, in CreateCounterpartInput) (Counterpart, error)
	InsertType(ctx context.Context, in CreateTypeInput) (TransactionType, error)
	InsertTransaction(ctx context.Context, in CreateTransactionInput) (Transaction, error)
	GetTransactionForUpdate(ctx context.Context, companyID, id int64) (Transaction, error)
	UpdateDraft(ctx context.Context, txn Transaction) error
	MarkPosted(ctx context.Context, id, postedBy int64, postedAt time.Time) error
	AdjustCounterpartBalance(ctx context.Context, companyID, counterpartID int64, delta float64) error
	DecrementOutstanding(ctx context.Context, id int64, amount float64) error
	InsertAllocation(ctx context.Context, in AllocateInput, counterpartID int64) (Allocation, error)
}

// Repository persists subledger entities in PostgreSQL.
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

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateCode
	}
	return err
}

const counterpartColumns = `id, company_id, side, code, name, credit_limit, current_balance, is_active, created_at`

func scanCounterpart(row pgx.Row) (Counterpart, error) {
	var cp Counterpart
	err := row.Scan(&cp.ID, &cp.CompanyID, &cp.Side, &cp.Code, &cp.Name, &cp.CreditLimit, &cp.CurrentBalance, &cp.IsActive, &cp.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Counterpart{}, ErrCounterpartNotFound
	}
	if err != nil {
		return Counterpart{}, err
	}
	return cp, nil
}

// GetCounterpart loads one counterpart scoped to a company.
func (r *Repository) GetCounterpart(ctx context.Context, companyID, id int64) (Counterpart, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+counterpartColumns+` FROM subledger_counterparts WHERE id = $1 AND company_id = $2`, id, companyID)
	return scanCounterpart(row)
}

// ListCounterparts returns counterparts ordered by code with optional filters.
func (r *Repository) ListCounterparts(ctx context.Context, companyID int64, filter CounterpartFilter) ([]Counterpart, error) {
	query := `SELECT ` + counterpartColumns + ` FROM subledger_counterparts WHERE company_id = $1`
	args := []any{companyID}
	if filter.Side != "" {
		args = append(args, filter.Side)
		query += fmt.Sprintf(" AND side = $%d", len(args))
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		query += fmt.Sprintf(" AND is_active = $%d", len(args))
	}
	query += " ORDER BY code"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Counterpart
	for rows.Next() {
		var cp Counterpart
		if err := rows.Scan(&cp.ID, &cp.CompanyID, &cp.Side, &cp.Code, &cp.Name, &cp.CreditLimit, &cp.CurrentBalance, &cp.IsActive, &cp.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

const typeColumns = `id, company_id, side, code, name, description, control_account_id, affects_balance, is_active, created_at`

func scanType(row pgx.Row) (TransactionType, error) {
	var t TransactionType
	err := row.Scan(&t.ID, &t.CompanyID, &t.Side, &t.Code, &t.Name, &t.Description, &t.ControlAccountID, &t.AffectsBalance, &t.IsActive, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return TransactionType{}, ErrTypeNotFound
	}
	if err != nil {
		return TransactionType{}, err
	}
	return t, nil
}

// GetType loads one transaction type scoped to a company.
func (r *Repository) GetType(ctx context.Context, companyID, id int64) (TransactionType, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+typeColumns+` FROM subledger_transaction_types WHERE id = $1 AND company_id = $2`, id, companyID)
	return scanType(row)
}

// ListTypes returns one side's transaction types ordered by code.
func (r *Repository) ListTypes(ctx context.Context, companyID int64, side Side) ([]TransactionType, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+typeColumns+` FROM subledger_transaction_types WHERE company_id = $1 AND side = $2 ORDER BY code`,
		companyID, side)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TransactionType
	for rows.Next() {
		var t TransactionType
		if err := rows.Scan(&t.ID, &t.CompanyID, &t.Side, &t.Code, &t.Name, &t.Description, &t.ControlAccountID, &t.AffectsBalance, &t.IsActive, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const transactionColumns = `id, company_id, counterpart_id, type_id, period_id, transaction_date, due_date, reference_number, description, gross_amount, tax_amount, discount_amount, net_amount, outstanding_amount, is_posted, posted_by, posted_at, created_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.CompanyID, &t.CounterpartID, &t.TypeID, &t.PeriodID, &t.TransactionDate, &t.DueDate, &t.ReferenceNumber, &t.Description, &t.GrossAmount, &t.TaxAmount, &t.DiscountAmount, &t.NetAmount, &t.OutstandingAmount, &t.IsPosted, &t.PostedBy, &t.PostedAt, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrTransactionNotFound
	}
	if err != nil {
		return Transaction{}, err
	}
	return t, nil
}

// GetTransaction loads one transaction scoped to a company.
func (r *Repository) GetTransaction(ctx context.Context, companyID, id int64) (Transaction, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM subledger_transactions WHERE id = $1 AND company_id = $2`, id, companyID)
	return scanTransaction(row)
}

// ListTransactions returns transactions matching the filter, newest first.
func (r *Repository) ListTransactions(ctx context.Context, companyID int64, filter TransactionFilter) ([]Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM subledger_transactions WHERE company_id = $1`
	args := []any{companyID}
	if filter.CounterpartID != 0 {
		args = append(args, filter.CounterpartID)
		query += fmt.Sprintf(" AND counterpart_id = $%d", len(args))
	}
	if filter.TypeID != 0 {
		args = append(args, filter.TypeID)
		query += fmt.Sprintf(" AND type_id = $%d", len(args))
	}
	if filter.PeriodID != 0 {
		args = append(args, filter.PeriodID)
		query += fmt.Sprintf(" AND period_id = $%d", len(args))
	}
	if filter.ReferenceNumber != "" {
		args = append(args, filter.ReferenceNumber)
		query += fmt.Sprintf(" AND reference_number = $%d", len(args))
	}
	if filter.Posted != nil {
		args = append(args, *filter.Posted)
		query += fmt.Sprintf(" AND is_posted = $%d", len(args))
	}
	query += " ORDER BY transaction_date DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// Outstanding returns posted, balance-increasing transactions with an
// unsettled amount, oldest first. The (company, counterpart, posted,
// outstanding) covering index keeps this hot path cheap.
func (r *Repository) Outstanding(ctx context.Context, companyID int64, side Side, counterpartID int64) ([]Transaction, error) {
	query := `
		SELECT t.id, t.company_id, t.counterpart_id, t.type_id, t.period_id, t.transaction_date, t.due_date, t.reference_number, t.description, t.gross_amount, t.tax_amount, t.discount_amount, t.net_amount, t.outstanding_amount, t.is_posted, t.posted_by, t.posted_at, t.created_at
		FROM subledger_transactions t
		JOIN subledger_transaction_types tt ON tt.id = t.type_id
		WHERE t.company_id = $1 AND tt.side = $2 AND tt.affects_balance = $3
		  AND t.is_posted AND t.outstanding_amount > 0`
	args := []any{companyID, side, side.IncreasingEffect()}
	if counterpartID != 0 {
		args = append(args, counterpartID)
		query += fmt.Sprintf(" AND t.counterpart_id = $%d", len(args))
	}
	query += " ORDER BY t.transaction_date ASC, t.id ASC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

const allocationColumns = `id, company_id, counterpart_id, settling_id, settled_id, amount, allocation_date, posted_by, created_at`

// AllocationsFor returns rows where the transaction is settling or settled.
func (r *Repository) AllocationsFor(ctx context.Context, companyID, transactionID int64) ([]Allocation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+allocationColumns+` FROM subledger_allocations
		 WHERE company_id = $1 AND (settling_id = $2 OR settled_id = $2)
		 ORDER BY created_at ASC, id ASC`, companyID, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Allocation
	for rows.Next() {
		var a Allocation
		if err := rows.Scan(&a.ID, &a.CompanyID, &a.CounterpartID, &a.SettlingID, &a.SettledID, &a.Amount, &a.Date, &a.PostedBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func collectTransactions(rows pgx.Rows) ([]Transaction, error) {
	var out []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.CompanyID, &t.CounterpartID, &t.TypeID, &t.PeriodID, &t.TransactionDate, &t.DueDate, &t.ReferenceNumber, &t.Description, &t.GrossAmount, &t.TaxAmount, &t.DiscountAmount, &t.NetAmount, &t.OutstandingAmount, &t.IsPosted, &t.PostedBy, &t.PostedAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertCounterpart(ctx context.Context, in CreateCounterpartInput) (Counterpart, error) {
	row := r.tx.QueryRow(ctx,
		`INSERT INTO subledger_counterparts (company_id, side, code, name, credit_limit, current_balance, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, 0, TRUE, NOW())
		 RETURNING `+counterpartColumns,
		in.CompanyID, in.Side, in.Code, in.Name, in.CreditLimit)
	cp, err := scanCounterpart(row)
	if err != nil {
		return Counterpart{}, mapUniqueViolation(err)
	}
	return cp, nil
}

func (r *txRepository) InsertType(ctx context.Context, in CreateTypeInput) (TransactionType, error) {
	row := r.tx.QueryRow(ctx,
		`INSERT INTO subledger_transaction_types (company_id, side, code, name, description, control_account_id, affects_balance, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, NOW())
		 RETURNING `+typeColumns,
		in.CompanyID, in.Side, in.Code, in.Name, in.Description, in.ControlAccountID, in.AffectsBalance)
	typ, err := scanType(row)
	if err != nil {
		return TransactionType{}, mapUniqueViolation(err)
	}
	return typ, nil
}

func (r *txRepository) InsertTransaction(ctx context.Context, in CreateTransactionInput) (Transaction, error) {
	net := in.Net()
	row := r.tx.QueryRow(ctx,
		`INSERT INTO subledger_transactions (company_id, counterpart_id, type_id, period_id, transaction_date, due_date, reference_number, description, gross_amount, tax_amount, discount_amount, net_amount, outstanding_amount, is_posted, posted_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12, FALSE, 0, NOW())
		 RETURNING `+transactionColumns,
		in.CompanyID, in.CounterpartID, in.TypeID, in.PeriodID, in.TransactionDate, in.DueDate,
		in.ReferenceNumber, in.Description, in.GrossAmount, in.TaxAmount, in.DiscountAmount, net)
	return scanTransaction(row)
}

func (r *txRepository) GetTransactionForUpdate(ctx context.Context, companyID, id int64) (Transaction, error) {
	row := r.tx.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM subledger_transactions WHERE id = $1 AND company_id = $2 FOR UPDATE`, id, companyID)
	return scanTransaction(row)
}

func (r *txRepository) UpdateDraft(ctx context.Context, txn Transaction) error {
	_, err := r.tx.Exec(ctx,
		`UPDATE subledger_transactions
		 SET transaction_date = $2, due_date = $3, reference_number = $4, description = $5,
		     gross_amount = $6, tax_amount = $7, discount_amount = $8, net_amount = $9, outstanding_amount = $10
		 WHERE id = $1 AND NOT is_posted`,
		txn.ID, txn.TransactionDate, txn.DueDate, txn.ReferenceNumber, txn.Description,
		txn.GrossAmount, txn.TaxAmount, txn.DiscountAmount, txn.NetAmount, txn.OutstandingAmount)
	return err
}

func (r *txRepository) MarkPosted(ctx context.Context, id, postedBy int64, postedAt time.Time) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE subledger_transactions SET is_posted = TRUE, posted_by = $2, posted_at = $3 WHERE id = $1 AND NOT is_posted`,
		id, postedBy, postedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyPosted
	}
	return nil
}

func (r *txRepository) AdjustCounterpartBalance(ctx context.Context, companyID, counterpartID int64, delta float64) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE subledger_counterparts SET current_balance = current_balance + $3 WHERE id = $1 AND company_id = $2`,
		counterpartID, companyID, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCounterpartNotFound
	}
	return nil
}

func (r *txRepository) DecrementOutstanding(ctx context.Context, id int64, amount float64) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE subledger_transactions SET outstanding_amount = outstanding_amount - $2
		 WHERE id = $1 AND outstanding_amount >= $2`,
		id, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOverAllocation
	}
	return nil
}

func (r *txRepository) InsertAllocation(ctx context.Context, in AllocateInput, counterpartID int64) (Allocation, error) {
	row := r.tx.QueryRow(ctx,
		`INSERT INTO subledger_allocations (company_id, counterpart_id, settling_id, settled_id, amount, allocation_date, posted_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 RETURNING `+allocationColumns,
		in.CompanyID, counterpartID, in.SettlingID, in.SettledID, in.Amount, in.Date, in.PostedBy)
	var a Allocation
	err := row.Scan(&a.ID, &a.CompanyID, &a.CounterpartID, &a.SettlingID, &a.SettledID, &a.Amount, &a.Date, &a.PostedBy, &a.CreatedAt)
	if err != nil {
		return Allocation{}, err
	}
	return a, nil
}
