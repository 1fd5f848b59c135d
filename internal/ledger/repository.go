package ledger

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

// TxRepository exposes transactional ledger operations.
type TxRepository interface {
	AccountCodeExists(ctx context.Context, companyID int64, code string) (bool, error)
	InsertAccount(ctx context.Context, in CreateAccountInput) (Account, error)
	GetAccountForUpdate(ctx context.Context, companyID, id int64) (Account, error)
	UpdateAccount(ctx context.Context, account Account) error
	DeleteAccount(ctx context.Context, id int64) error
	CountEntriesForAccount(ctx context.Context, accountID int64) (int64, error)
	InsertEntry(ctx context.Context, in EntryInput, postedAt time.Time) (Entry, error)
}

// Repository persists ledger entities in PostgreSQL.
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

const accountColumns = `id, company_id, code, name, type, normal_balance, parent_id, is_control_account, is_active, created_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.CompanyID, &a.Code, &a.Name, &a.Type, &a.NormalBalance, &a.ParentID, &a.IsControlAccount, &a.IsActive, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		return Account{}, err
	}
	return a, nil
}

// GetAccount loads one account scoped to a company.
func (r *Repository) GetAccount(ctx context.Context, companyID, id int64) (Account, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM gl_accounts WHERE id = $1 AND company_id = $2`, id, companyID)
	return scanAccount(row)
}

// GetAccountByCode loads one account by code.
func (r *Repository) GetAccountByCode(ctx context.Context, companyID int64, code string) (Account, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM gl_accounts WHERE company_id = $1 AND code = $2`, companyID, code)
	return scanAccount(row)
}

// ListAccounts returns accounts ordered by code with optional filters.
func (r *Repository) ListAccounts(ctx context.Context, companyID int64, filter AccountFilter) ([]Account, error) {
	query := `SELECT ` + accountColumns + ` FROM gl_accounts WHERE company_id = $1`
	args := []any{companyID}
	if filter.Type != "" {
		args = append(args, filter.Type)
		query += fmt.Sprintf(" AND type = $%d", len(args))
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
	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.CompanyID, &a.Code, &a.Name, &a.Type, &a.NormalBalance, &a.ParentID, &a.IsControlAccount, &a.IsActive, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const entryColumns = `id, company_id, period_id, account_id, transaction_date, reference_number, description, debit_amount, credit_amount, source_module, source_document_id, posted_by, posted_at`

// ListEntries returns journal rows matching the filter, newest first.
func (r *Repository) ListEntries(ctx context.Context, companyID int64, filter EntryFilter) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM gl_transactions WHERE company_id = $1`
	args := []any{companyID}
	if filter.AccountID != 0 {
		args = append(args, filter.AccountID)
		query += fmt.Sprintf(" AND account_id = $%d", len(args))
	}
	if filter.PeriodID != 0 {
		args = append(args, filter.PeriodID)
		query += fmt.Sprintf(" AND period_id = $%d", len(args))
	}
	if !filter.DateFrom.IsZero() {
		args = append(args, filter.DateFrom)
		query += fmt.Sprintf(" AND transaction_date >= $%d", len(args))
	}
	if !filter.DateTo.IsZero() {
		args = append(args, filter.DateTo)
		query += fmt.Sprintf(" AND transaction_date <= $%d", len(args))
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
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.PeriodID, &e.AccountID, &e.Date, &e.ReferenceNumber, &e.Description, &e.DebitAmount, &e.CreditAmount, &e.SourceModule, &e.SourceDocumentID, &e.PostedBy, &e.PostedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AccountTotals sums debits and credits per account for the period.
func (r *Repository) AccountTotals(ctx context.Context, companyID, periodID int64) ([]AccountTotals, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.code, a.name, a.type, a.normal_balance,
			COALESCE(SUM(t.debit_amount), 0), COALESCE(SUM(t.credit_amount), 0)
		FROM gl_accounts a
		JOIN gl_transactions t ON t.account_id = a.id
		WHERE a.company_id = $1 AND t.period_id = $2 AND a.is_active
		GROUP BY a.id, a.code, a.name, a.type, a.normal_balance
		ORDER BY a.code`, companyID, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountTotals
	for rows.Next() {
		var t AccountTotals
		if err := rows.Scan(&t.AccountID, &t.AccountCode, &t.AccountName, &t.AccountType, &t.NormalBalance, &t.TotalDebits, &t.TotalCredits); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) AccountCodeExists(ctx context.Context, companyID int64, code string) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM gl_accounts WHERE company_id = $1 AND code = $2)`, companyID, code).Scan(&exists)
	return exists, err
}

func (r *txRepository) InsertAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	row := r.tx.QueryRow(ctx,
		`INSERT INTO gl_accounts (company_id, code, name, type, normal_balance, parent_id, is_control_account, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, NOW())
		 RETURNING `+accountColumns,
		in.CompanyID, in.Code, in.Name, in.Type, in.NormalBalance, in.ParentID, in.IsControlAccount)
	account, err := scanAccount(row)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return Account{}, ErrDuplicateCode
	}
	return account, err
}

func (r *txRepository) GetAccountForUpdate(ctx context.Context, companyID, id int64) (Account, error) {
	row := r.tx.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM gl_accounts WHERE id = $1 AND company_id = $2 FOR UPDATE`, id, companyID)
	return scanAccount(row)
}

func (r *txRepository) UpdateAccount(ctx context.Context, account Account) error {
	_, err := r.tx.Exec(ctx,
		`UPDATE gl_accounts SET name = $2, parent_id = $3, is_control_account = $4, is_active = $5 WHERE id = $1`,
		account.ID, account.Name, account.ParentID, account.IsControlAccount, account.IsActive)
	return err
}

func (r *txRepository) DeleteAccount(ctx context.Context, id int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM gl_accounts WHERE id = $1`, id)
	return err
}

func (r *txRepository) CountEntriesForAccount(ctx context.Context, accountID int64) (int64, error) {
	var count int64
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM gl_transactions WHERE account_id = $1`, accountID).Scan(&count)
	return count, err
}

func (r *txRepository) InsertEntry(ctx context.Context, in EntryInput, postedAt time.Time) (Entry, error) {
	row := r.tx.QueryRow(ctx,
		`INSERT INTO gl_transactions (company_id, period_id, account_id, transaction_date, reference_number, description, debit_amount, credit_amount, source_module, source_document_id, posted_by, posted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING `+entryColumns,
		in.CompanyID, in.PeriodID, in.AccountID, in.Date, in.ReferenceNumber, in.Description,
		in.DebitAmount, in.CreditAmount, in.SourceModule, in.SourceDocumentID, in.PostedBy, postedAt)
	var e Entry
	err := row.Scan(&e.ID, &e.CompanyID, &e.PeriodID, &e.AccountID, &e.Date, &e.ReferenceNumber, &e.Description, &e.DebitAmount, &e.CreditAmount, &e.SourceModule, &e.SourceDocumentID, &e.PostedBy, &e.PostedAt)
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}
