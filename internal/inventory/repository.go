package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// TxRepository exposes transactional inventory operations. InsertGLEntries
// writes journal rows inside the same transaction so a movement and its
// ledger pair can never commit separately.
type TxRepository interface {
	InsertItem(ctx context.Context, in CreateItemInput) (Item, error)
	GetItemForUpdate(ctx context.Context, companyID, id int64) (Item, error)
	UpdateItem(ctx context.Context, item Item) error
	UpdateItemStock(ctx context.Context, itemID int64, quantityOnHand, costPrice float64) error
	InsertMovementType(ctx context.Context, in CreateMovementTypeInput) (MovementType, error)
	InsertMovement(ctx context.Context, in PostMovementInput, unitCost, totalCost float64, postedAt time.Time) (Movement, error)
	InsertGLEntries(ctx context.Context, entries []ledger.EntryInput, postedAt time.Time) error
}

// Repository persists inventory entities in PostgreSQL.
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

const itemColumns = `id, company_id, code, description, unit_of_measure, cost_price, quantity_on_hand, asset_account_id, expense_account_id, revenue_account_id, reorder_level, is_active, created_at`

func scanItem(row pgx.Row) (Item, error) {
	var i Item
	err := row.Scan(&i.ID, &i.CompanyID, &i.Code, &i.Description, &i.UnitOfMeasure, &i.CostPrice, &i.QuantityOnHand, &i.AssetAccountID, &i.ExpenseAccountID, &i.RevenueAccountID, &i.ReorderLevel, &i.IsActive, &i.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	if err != nil {
		return Item{}, err
	}
	return i, nil
}

// GetItem loads one item scoped to a company.
func (r *Repository) GetItem(ctx context.Context, companyID, id int64) (Item, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM inventory_items WHERE id = $1 AND company_id = $2`, id, companyID)
	return scanItem(row)
}

// ListItems returns items ordered by code.
func (r *Repository) ListItems(ctx context.Context, companyID int64, activeOnly bool) ([]Item, error) {
	query := `SELECT ` + itemColumns + ` FROM inventory_items WHERE company_id = $1`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY code`

	rows, err := r.pool.Query(ctx, query, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Item
	for rows.Next() {
		var i Item
		if err := rows.Scan(&i.ID, &i.CompanyID, &i.Code, &i.Description, &i.UnitOfMeasure, &i.CostPrice, &i.QuantityOnHand, &i.AssetAccountID, &i.ExpenseAccountID, &i.RevenueAccountID, &i.ReorderLevel, &i.IsActive, &i.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

const movementTypeColumns = `id, company_id, code, name, affects_quantity, is_active, created_at`

// GetMovementType loads one movement type scoped to a company.
func (r *Repository) GetMovementType(ctx context.Context, companyID, id int64) (MovementType, error) {
	var t MovementType
	err := r.pool.QueryRow(ctx,
		`SELECT `+movementTypeColumns+` FROM inventory_movement_types WHERE id = $1 AND company_id = $2`, id, companyID).
		Scan(&t.ID, &t.CompanyID, &t.Code, &t.Name, &t.AffectsQuantity, &t.IsActive, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return MovementType{}, ErrTypeNotFound
	}
	if err != nil {
		return MovementType{}, err
	}
	return t, nil
}

const movementColumns = `id, company_id, item_id, type_id, period_id, movement_date, reference_number, description, quantity, unit_cost, total_cost, source_module, source_document_id, posted_by, posted_at, is_posted`

// ListMovements returns movements matching the filter, newest first.
func (r *Repository) ListMovements(ctx context.Context, companyID int64, filter MovementFilter) ([]Movement, error) {
	query := `SELECT ` + movementColumns + ` FROM inventory_movements WHERE company_id = $1`
	args := []any{companyID}
	if filter.ItemID != 0 {
		args = append(args, filter.ItemID)
		query += fmt.Sprintf(" AND item_id = $%d", len(args))
	}
	if filter.TypeID != 0 {
		args = append(args, filter.TypeID)
		query += fmt.Sprintf(" AND type_id = $%d", len(args))
	}
	if filter.PeriodID != 0 {
		args = append(args, filter.PeriodID)
		query += fmt.Sprintf(" AND period_id = $%d", len(args))
	}
	if !filter.DateFrom.IsZero() {
		args = append(args, filter.DateFrom)
		query += fmt.Sprintf(" AND movement_date >= $%d", len(args))
	}
	if !filter.DateTo.IsZero() {
		args = append(args, filter.DateTo)
		query += fmt.Sprintf(" AND movement_date <= $%d", len(args))
	}
	query += " ORDER BY movement_date DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.CompanyID, &m.ItemID, &m.TypeID, &m.PeriodID, &m.Date, &m.ReferenceNumber, &m.Description, &m.Quantity, &m.UnitCost, &m.TotalCost, &m.SourceModule, &m.SourceDocumentID, &m.PostedBy, &m.PostedAt, &m.IsPosted); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertItem(ctx context.Context, in CreateItemInput) (Item, error) {
	row := r.tx.QueryRow(ctx,
		`INSERT INTO inventory_items (company_id, code, description, unit_of_measure, cost_price, quantity_on_hand, asset_account_id, expense_account_id, revenue_account_id, reorder_level, is_active, created_at)
		 VALUES ($1, $2, $3, $4, 0, 0, $5, $6, $7, $8, TRUE, NOW())
		 RETURNING `+itemColumns,
		in.CompanyID, in.Code, in.Description, in.UnitOfMeasure,
		in.AssetAccountID, in.ExpenseAccountID, in.RevenueAccountID, in.ReorderLevel)
	item, err := scanItem(row)
	if err != nil {
		return Item{}, mapUniqueViolation(err)
	}
	return item, nil
}

func (r *txRepository) GetItemForUpdate(ctx context.Context, companyID, id int64) (Item, error) {
	row := r.tx.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM inventory_items WHERE id = $1 AND company_id = $2 FOR UPDATE`, id, companyID)
	return scanItem(row)
}

func (r *txRepository) UpdateItem(ctx context.Context, item Item) error {
	_, err := r.tx.Exec(ctx,
		`UPDATE inventory_items
		 SET description = $2, unit_of_measure = $3, asset_account_id = $4, expense_account_id = $5,
		     revenue_account_id = $6, reorder_level = $7, is_active = $8
		 WHERE id = $1`,
		item.ID, item.Description, item.UnitOfMeasure, item.AssetAccountID, item.ExpenseAccountID,
		item.RevenueAccountID, item.ReorderLevel, item.IsActive)
	return err
}

func (r *txRepository) UpdateItemStock(ctx context.Context, itemID int64, quantityOnHand, costPrice float64) error {
	_, err := r.tx.Exec(ctx,
		`UPDATE inventory_items SET quantity_on_hand = $2, cost_price = $3 WHERE id = $1`,
		itemID, quantityOnHand, costPrice)
	return err
}

func (r *txRepository) InsertMovementType(ctx context.Context, in CreateMovementTypeInput) (MovementType, error) {
	var t MovementType
	err := r.tx.QueryRow(ctx,
		`INSERT INTO inventory_movement_types (company_id, code, name, affects_quantity, is_active, created_at)
		 VALUES ($1, $2, $3, $4, TRUE, NOW())
		 RETURNING `+movementTypeColumns,
		in.CompanyID, in.Code, in.Name, in.AffectsQuantity).
		Scan(&t.ID, &t.CompanyID, &t.Code, &t.Name, &t.AffectsQuantity, &t.IsActive, &t.CreatedAt)
	if err != nil {
		return MovementType{}, mapUniqueViolation(err)
	}
	return t, nil
}

func (r *txRepository) InsertMovement(ctx context.Context, in PostMovementInput, unitCost, totalCost float64, postedAt time.Time) (Movement, error) {
	row := r.tx.QueryRow(ctx,
		`INSERT INTO inventory_movements (company_id, item_id, type_id, period_id, movement_date, reference_number, description, quantity, unit_cost, total_cost, source_module, source_document_id, posted_by, posted_at, is_posted)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, TRUE)
		 RETURNING `+movementColumns,
		in.CompanyID, in.ItemID, in.TypeID, in.PeriodID, in.Date, in.ReferenceNumber, in.Description,
		in.Quantity, unitCost, totalCost, in.SourceModule, in.SourceDocumentID, in.PostedBy, postedAt)
	var m Movement
	err := row.Scan(&m.ID, &m.CompanyID, &m.ItemID, &m.TypeID, &m.PeriodID, &m.Date, &m.ReferenceNumber, &m.Description, &m.Quantity, &m.UnitCost, &m.TotalCost, &m.SourceModule, &m.SourceDocumentID, &m.PostedBy, &m.PostedAt, &m.IsPosted)
	if err != nil {
		return Movement{}, err
	}
	return m, nil
}

func (r *txRepository) InsertGLEntries(ctx context.Context, entries []ledger.EntryInput, postedAt time.Time) error {
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return err
		}
		_, err := r.tx.Exec(ctx,
			`INSERT INTO gl_transactions (company_id, period_id, account_id, transaction_date, reference_number, description, debit_amount, credit_amount, source_module, source_document_id, posted_by, posted_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			e.CompanyID, e.PeriodID, e.AccountID, e.Date, e.ReferenceNumber, e.Description,
			e.DebitAmount, e.CreditAmount, e.SourceModule, e.SourceDocumentID, e.PostedBy, postedAt)
		if err != nil {
			return err
		}
	}
	return nil
}
