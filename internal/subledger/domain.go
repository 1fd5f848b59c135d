package subledger

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Side splits the subledger into receivable and payable books. Both
// sides share one transaction shape; only the balance sign convention
// differs.
type Side string

const (
	SideReceivable Side = "AR"
	SidePayable    Side = "AP"
)

// BalanceEffect is the direction a transaction type moves the control
// account when posted.
type BalanceEffect string

const (
	EffectDebit  BalanceEffect = "DEBIT"
	EffectCredit BalanceEffect = "CREDIT"
)

// IncreasingEffect returns the effect that grows a counterpart balance
// on this side. Receivables grow on debits, payables on credits.
func (s Side) IncreasingEffect() BalanceEffect {
	if s == SidePayable {
		return EffectCredit
	}
	return EffectDebit
}

func validSide(s Side) bool {
	return s == SideReceivable || s == SidePayable
}

func validEffect(e BalanceEffect) bool {
	return e == EffectDebit || e == EffectCredit
}

// TransactionType classifies subledger documents (invoice, payment,
// credit note). AffectsBalance is the sole source of the posting sign;
// call sites never hard-code it.
type TransactionType struct {
	ID               int64
	CompanyID        int64
	Side             Side
	Code             string
	Name             string
	Description      string
	ControlAccountID int64
	AffectsBalance   BalanceEffect
	IsActive         bool
	CreatedAt        time.Time
}

// Counterpart is a customer (AR) or supplier (AP). CurrentBalance is
// maintained incrementally at posting time and must equal the sum of
// signed net amounts over posted transactions.
type Counterpart struct {
	ID             int64
	CompanyID      int64
	Side           Side
	Code           string
	Name           string
	CreditLimit    float64
	CurrentBalance float64
	IsActive       bool
	CreatedAt      time.Time
}

// Transaction is one AR or AP document. Drafts are editable; posting
// freezes every financial field, after which only OutstandingAmount
// moves, and only through allocation.
type Transaction struct {
	ID                int64
	CompanyID         int64
	CounterpartID     int64
	TypeID            int64
	PeriodID          int64
	TransactionDate   time.Time
	DueDate           time.Time
	ReferenceNumber   string
	Description       string
	GrossAmount       float64
	TaxAmount         float64
	DiscountAmount    float64
	NetAmount         float64
	OutstandingAmount float64
	IsPosted          bool
	PostedBy          int64
	PostedAt          *time.Time
	CreatedAt         time.Time
}

// Allocation settles part of one posted transaction against another.
// Rows are written once and never mutated; reversal happens by posting
// an offsetting document, never by editing history.
type Allocation struct {
	ID            int64
	CompanyID     int64
	CounterpartID int64
	SettlingID    int64
	SettledID     int64
	Amount        float64
	Date          time.Time
	PostedBy      int64
	CreatedAt     time.Time
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// CreateCounterpartInput groups fields for a new customer or supplier.
type CreateCounterpartInput struct {
	CompanyID   int64   `validate:"required"`
	Side        Side    `validate:"required"`
	Code        string  `validate:"required"`
	Name        string  `validate:"required"`
	CreditLimit float64 `validate:"gte=0"`
}

// Validate checks counterpart creation fields.
func (in CreateCounterpartInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return shared.Validation("subledger: " + err.Error())
	}
	if !validSide(in.Side) {
		return ErrUnknownSide
	}
	return nil
}

// CreateTypeInput groups fields for a new transaction type.
type CreateTypeInput struct {
	CompanyID        int64         `validate:"required"`
	Side             Side          `validate:"required"`
	Code             string        `validate:"required"`
	Name             string        `validate:"required"`
	Description      string        `validate:"-"`
	ControlAccountID int64         `validate:"required"`
	AffectsBalance   BalanceEffect `validate:"required"`
}

// Validate checks type creation fields.
func (in CreateTypeInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return shared.Validation("subledger: " + err.Error())
	}
	if !validSide(in.Side) {
		return ErrUnknownSide
	}
	if !validEffect(in.AffectsBalance) {
		return ErrUnknownEffect
	}
	return nil
}

// CreateTransactionInput describes a draft document. Net and
// outstanding are derived, never supplied.
type CreateTransactionInput struct {
	CompanyID       int64     `validate:"required"`
	CounterpartID   int64     `validate:"required"`
	TypeID          int64     `validate:"required"`
	PeriodID        int64     `validate:"required"`
	TransactionDate time.Time `validate:"required"`
	DueDate         time.Time `validate:"-"`
	ReferenceNumber string    `validate:"-"`
	Description     string    `validate:"-"`
	GrossAmount     float64   `validate:"gte=0"`
	TaxAmount       float64   `validate:"gte=0"`
	DiscountAmount  float64   `validate:"gte=0"`
	CreatedBy       int64     `validate:"required"`
}

// Validate checks draft creation fields and the derived net amount.
func (in CreateTransactionInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return shared.Validation("subledger: " + err.Error())
	}
	if in.Net() <= 0 {
		return ErrNonPositiveAmount
	}
	return nil
}

// Net derives the settleable value of the document.
func (in CreateTransactionInput) Net() float64 {
	return in.GrossAmount + in.TaxAmount - in.DiscountAmount
}

// UpdateTransactionInput patches a draft; nil means unchanged. Any
// amount change recomputes net and outstanding together.
type UpdateTransactionInput struct {
	TransactionDate *time.Time
	DueDate         *time.Time
	ReferenceNumber *string
	Description     *string
	GrossAmount     *float64
	TaxAmount       *float64
	DiscountAmount  *float64
}

func (in UpdateTransactionInput) touchesAmounts() bool {
	return in.GrossAmount != nil || in.TaxAmount != nil || in.DiscountAmount != nil
}

// AllocateInput matches a settling transaction against a settled one.
type AllocateInput struct {
	CompanyID  int64     `validate:"required"`
	SettlingID int64     `validate:"required"`
	SettledID  int64     `validate:"required"`
	Amount     float64   `validate:"gt=0"`
	Date       time.Time `validate:"required"`
	PostedBy   int64     `validate:"required"`
}

// Validate checks allocation fields.
func (in AllocateInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return shared.Validation("subledger: " + err.Error())
	}
	if in.SettlingID == in.SettledID {
		return ErrSelfAllocation
	}
	return nil
}

// TransactionFilter narrows transaction listings.
type TransactionFilter struct {
	CounterpartID   int64
	TypeID          int64
	PeriodID        int64
	ReferenceNumber string
	Posted          *bool
	Limit           int
}

// CounterpartFilter narrows counterpart listings.
type CounterpartFilter struct {
	Side     Side
	IsActive *bool
}

var (
	// ErrTransactionNotFound indicates a missing transaction.
	ErrTransactionNotFound = shared.NotFound("subledger: transaction not found")
	// ErrCounterpartNotFound indicates a missing counterpart.
	ErrCounterpartNotFound = shared.NotFound("subledger: counterpart not found")
	// ErrTypeNotFound indicates a missing transaction type.
	ErrTypeNotFound = shared.NotFound("subledger: transaction type not found")
	// ErrDuplicateCode indicates the (company, code) pair already exists.
	ErrDuplicateCode = shared.Conflict("subledger: code already in use")
	// ErrUnknownSide rejects sides other than AR and AP.
	ErrUnknownSide = shared.Validation("subledger: side must be AR or AP")
	// ErrUnknownEffect rejects balance effects other than DEBIT and CREDIT.
	ErrUnknownEffect = shared.Validation("subledger: affects balance must be DEBIT or CREDIT")
	// ErrSideMismatch rejects a type whose side differs from the counterpart's.
	ErrSideMismatch = shared.Validation("subledger: transaction type side does not match counterpart side")
	// ErrNonPositiveAmount rejects documents whose net is zero or negative.
	ErrNonPositiveAmount = shared.Validation("subledger: net amount must be positive")
	// ErrAlreadyPosted indicates the transaction was posted before.
	ErrAlreadyPosted = shared.State("subledger: transaction already posted")
	// ErrNotPosted indicates the operation needs a posted transaction.
	ErrNotPosted = shared.State("subledger: transaction not posted")
	// ErrImmutableOncePosted rejects edits to posted financial fields.
	ErrImmutableOncePosted = shared.State("subledger: posted transactions are immutable")
	// ErrOverAllocation rejects settling beyond either side's outstanding.
	ErrOverAllocation = shared.State("subledger: allocation exceeds outstanding amount")
	// ErrCounterpartMismatch rejects allocations across counterparts.
	ErrCounterpartMismatch = shared.Validation("subledger: transactions belong to different counterparts")
	// ErrSelfAllocation rejects settling a transaction against itself.
	ErrSelfAllocation = shared.Validation("subledger: cannot allocate a transaction against itself")
	// ErrCounterpartInactive rejects drafts against deactivated counterparts.
	ErrCounterpartInactive = shared.State("subledger: counterpart is inactive")
	// ErrTypeInactive rejects drafts against deactivated types.
	ErrTypeInactive = shared.State("subledger: transaction type is inactive")
)
