package inventory

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Direction is the quantity effect of a movement type.
type Direction string

const (
	DirectionIncrease Direction = "INCREASE"
	DirectionDecrease Direction = "DECREASE"
)

func validDirection(d Direction) bool {
	return d == DirectionIncrease || d == DirectionDecrease
}

// SourceInventory marks movements originated by the inventory module
// itself. Self-sourced movements emit their own GL pair; movements fed
// from the subledgers leave GL posting to the owning module.
const SourceInventory = "INV"

// Item is a stocked good. CostPrice is the weighted average of all
// received stock and only moves on increases; decreases issue at the
// current average.
type Item struct {
	ID               int64
	CompanyID        int64
	Code             string
	Description      string
	UnitOfMeasure    string
	CostPrice        float64
	QuantityOnHand   float64
	AssetAccountID   int64
	ExpenseAccountID int64
	RevenueAccountID int64
	ReorderLevel     float64
	IsActive         bool
	CreatedAt        time.Time
}

// MovementType classifies stock movements.
type MovementType struct {
	ID              int64
	CompanyID       int64
	Code            string
	Name            string
	AffectsQuantity Direction
	IsActive        bool
	CreatedAt       time.Time
}

// Movement is one posted stock mutation. TotalCost is always valued at
// the cost the stock actually moved at.
type Movement struct {
	ID               int64
	CompanyID        int64
	ItemID           int64
	TypeID           int64
	PeriodID         int64
	Date             time.Time
	ReferenceNumber  string
	Description      string
	Quantity         float64
	UnitCost         float64
	TotalCost        float64
	SourceModule     string
	SourceDocumentID uuid.UUID
	PostedBy         int64
	PostedAt         time.Time
	IsPosted         bool
}

// HistoryRow is one movement with running totals after it applied.
type HistoryRow struct {
	Movement        Movement
	RunningQuantity float64
	RunningValue    float64
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// CreateItemInput groups fields for a new stocked item.
type CreateItemInput struct {
	CompanyID        int64   `validate:"required"`
	Code             string  `validate:"required"`
	Description      string  `validate:"required"`
	UnitOfMeasure    string  `validate:"required"`
	AssetAccountID   int64   `validate:"required"`
	ExpenseAccountID int64   `validate:"required"`
	RevenueAccountID int64   `validate:"required"`
	ReorderLevel     float64 `validate:"gte=0"`
}

// Validate checks item creation fields.
func (in CreateItemInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return shared.Validation("inventory: " + err.Error())
	}
	return nil
}

// UpdateItemInput patches mutable item fields; nil means unchanged.
// Quantity and cost never move through here, only through movements.
type UpdateItemInput struct {
	Description      *string
	UnitOfMeasure    *string
	AssetAccountID   *int64
	ExpenseAccountID *int64
	RevenueAccountID *int64
	ReorderLevel     *float64
	IsActive         *bool
}

// CreateMovementTypeInput groups fields for a new movement type.
type CreateMovementTypeInput struct {
	CompanyID       int64     `validate:"required"`
	Code            string    `validate:"required"`
	Name            string    `validate:"required"`
	AffectsQuantity Direction `validate:"required"`
}

// Validate checks movement type creation fields.
func (in CreateMovementTypeInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return shared.Validation("inventory: " + err.Error())
	}
	if !validDirection(in.AffectsQuantity) {
		return ErrUnknownDirection
	}
	return nil
}

// PostMovementInput describes one stock movement to post. UnitCost is
// honoured for increases only; decreases always issue at the item's
// current average.
type PostMovementInput struct {
	CompanyID        int64     `validate:"required"`
	ItemID           int64     `validate:"required"`
	TypeID           int64     `validate:"required"`
	PeriodID         int64     `validate:"required"`
	Date             time.Time `validate:"required"`
	ReferenceNumber  string    `validate:"-"`
	Description      string    `validate:"-"`
	Quantity         float64   `validate:"gt=0"`
	UnitCost         float64   `validate:"gte=0"`
	SourceModule     string    `validate:"required"`
	SourceDocumentID uuid.UUID `validate:"-"`
	PostedBy         int64     `validate:"required"`
}

// Validate checks movement posting fields.
func (in PostMovementInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return shared.Validation("inventory: " + err.Error())
	}
	return nil
}

// MovementFilter narrows movement listings.
type MovementFilter struct {
	ItemID   int64
	TypeID   int64
	PeriodID int64
	DateFrom time.Time
	DateTo   time.Time
	Limit    int
}

var (
	// ErrItemNotFound indicates a missing item.
	ErrItemNotFound = shared.NotFound("inventory: item not found")
	// ErrTypeNotFound indicates a missing movement type.
	ErrTypeNotFound = shared.NotFound("inventory: movement type not found")
	// ErrDuplicateCode indicates the (company, code) pair already exists.
	ErrDuplicateCode = shared.Conflict("inventory: code already in use")
	// ErrUnknownDirection rejects directions other than INCREASE and DECREASE.
	ErrUnknownDirection = shared.Validation("inventory: affects quantity must be INCREASE or DECREASE")
	// ErrInsufficientStock rejects decreases below zero on hand.
	ErrInsufficientStock = shared.State("inventory: insufficient stock on hand")
	// ErrItemInactive rejects movements against deactivated items.
	ErrItemInactive = shared.State("inventory: item is inactive")
	// ErrTypeInactive rejects movements against deactivated types.
	ErrTypeInactive = shared.State("inventory: movement type is inactive")
	// ErrDateOutsidePeriod rejects movements dated outside their period window.
	ErrDateOutsidePeriod = shared.Validation("inventory: date outside period")
)
