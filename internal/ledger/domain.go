package ledger

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// AccountType enumerates chart of accounts categories.
type AccountType string

const (
	AccountTypeAssets      AccountType = "ASSETS"
	AccountTypeLiabilities AccountType = "LIABILITIES"
	AccountTypeEquity      AccountType = "EQUITY"
	AccountTypeRevenue     AccountType = "REVENUE"
	AccountTypeExpenses    AccountType = "EXPENSES"
)

// BalanceSide marks an account's natural increase direction.
type BalanceSide string

const (
	BalanceSideDebit  BalanceSide = "DEBIT"
	BalanceSideCredit BalanceSide = "CREDIT"
)

func validAccountType(t AccountType) bool {
	switch t {
	case AccountTypeAssets, AccountTypeLiabilities, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpenses:
		return true
	}
	return false
}

func validBalanceSide(s BalanceSide) bool {
	return s == BalanceSideDebit || s == BalanceSideCredit
}

// Account models a chart of accounts node. Parents are referenced by id
// only; no bidirectional object links.
type Account struct {
	ID               int64
	CompanyID        int64
	Code             string
	Name             string
	Type             AccountType
	NormalBalance    BalanceSide
	ParentID         *int64
	IsControlAccount bool
	IsActive         bool
	CreatedAt        time.Time
}

// Entry is one append-only journal row carrying exactly one of debit or
// credit. Entries are never updated or deleted once written.
type Entry struct {
	ID               int64
	CompanyID        int64
	PeriodID         int64
	AccountID        int64
	Date             time.Time
	ReferenceNumber  string
	Description      string
	DebitAmount      float64
	CreditAmount     float64
	SourceModule     string
	SourceDocumentID uuid.UUID
	PostedBy         int64
	PostedAt         time.Time
}

// CreateAccountInput groups fields for a new account.
type CreateAccountInput struct {
	CompanyID        int64
	Code             string
	Name             string
	Type             AccountType
	NormalBalance    BalanceSide
	ParentID         *int64
	IsControlAccount bool
}

// Validate checks account creation fields.
func (in CreateAccountInput) Validate() error {
	if in.CompanyID == 0 {
		return shared.Validation("ledger: company id required")
	}
	if strings.TrimSpace(in.Code) == "" {
		return shared.Validation("ledger: account code required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return shared.Validation("ledger: account name required")
	}
	if !validAccountType(in.Type) {
		return shared.Validation("ledger: unknown account type")
	}
	if !validBalanceSide(in.NormalBalance) {
		return shared.Validation("ledger: normal balance must be DEBIT or CREDIT")
	}
	return nil
}

// UpdateAccountInput patches mutable account fields; nil means unchanged.
type UpdateAccountInput struct {
	Name             *string
	ParentID         *int64
	IsControlAccount *bool
	IsActive         *bool
}

// EntryInput describes one journal row for posting.
type EntryInput struct {
	CompanyID        int64
	PeriodID         int64
	AccountID        int64
	Date             time.Time
	ReferenceNumber  string
	Description      string
	DebitAmount      float64
	CreditAmount     float64
	SourceModule     string
	SourceDocumentID uuid.UUID
	PostedBy         int64
}

// Validate enforces the single-sided entry rule.
func (in EntryInput) Validate() error {
	if in.CompanyID == 0 {
		return shared.Validation("ledger: company id required")
	}
	if in.PeriodID == 0 {
		return shared.Validation("ledger: period id required")
	}
	if in.AccountID == 0 {
		return shared.Validation("ledger: account id required")
	}
	if in.Date.IsZero() {
		return shared.Validation("ledger: transaction date required")
	}
	if in.DebitAmount < 0 || in.CreditAmount < 0 {
		return ErrNegativeAmount
	}
	if (in.DebitAmount > 0) == (in.CreditAmount > 0) {
		return ErrDebitCreditExclusive
	}
	return nil
}

// EntryFilter narrows journal listings.
type EntryFilter struct {
	AccountID int64
	PeriodID  int64
	DateFrom  time.Time
	DateTo    time.Time
	Limit     int
}

// AccountFilter narrows chart of accounts listings.
type AccountFilter struct {
	Type     AccountType
	IsActive *bool
}

// AccountTotals carries per-account debit/credit sums for one period.
type AccountTotals struct {
	AccountID     int64
	AccountCode   string
	AccountName   string
	AccountType   AccountType
	NormalBalance BalanceSide
	TotalDebits   float64
	TotalCredits  float64
}

// TrialBalanceRow is one account's folded balance.
type TrialBalanceRow struct {
	AccountID     int64
	AccountCode   string
	AccountName   string
	AccountType   AccountType
	DebitBalance  float64
	CreditBalance float64
}

// TrialBalance aggregates a period's journal by account.
type TrialBalance struct {
	CompanyID    int64
	PeriodID     int64
	Rows         []TrialBalanceRow
	TotalDebits  float64
	TotalCredits float64
	IsBalanced   bool
}

// fold nets totals into the account's natural presentation column.
func (t AccountTotals) fold() TrialBalanceRow {
	row := TrialBalanceRow{
		AccountID:   t.AccountID,
		AccountCode: t.AccountCode,
		AccountName: t.AccountName,
		AccountType: t.AccountType,
	}
	net := t.TotalDebits - t.TotalCredits
	if t.NormalBalance == BalanceSideDebit {
		if net >= 0 {
			row.DebitBalance = net
		} else {
			row.CreditBalance = math.Abs(net)
		}
		return row
	}
	if net <= 0 {
		row.CreditBalance = math.Abs(net)
	} else {
		row.DebitBalance = net
	}
	return row
}

var (
	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = shared.NotFound("ledger: account not found")
	// ErrEntryNotFound indicates a missing journal entry.
	ErrEntryNotFound = shared.NotFound("ledger: entry not found")
	// ErrDuplicateCode indicates the (company, code) pair already exists.
	ErrDuplicateCode = shared.Conflict("ledger: account code already in use")
	// ErrDebitCreditExclusive enforces the single-sided entry rule.
	ErrDebitCreditExclusive = shared.Validation("ledger: entry must have either a debit amount or a credit amount, but not both")
	// ErrNegativeAmount rejects negative debit or credit values.
	ErrNegativeAmount = shared.Validation("ledger: amounts cannot be negative")
	// ErrUnbalancedBatch rejects multi-row postings whose sides differ.
	ErrUnbalancedBatch = shared.Validation("ledger: batch debits and credits must balance")
	// ErrDateOutsidePeriod rejects entries dated outside their period window.
	ErrDateOutsidePeriod = shared.Validation("ledger: date outside period")
	// ErrEmptyBatch rejects a batch with no rows.
	ErrEmptyBatch = shared.Validation("ledger: batch requires at least one entry")
)
