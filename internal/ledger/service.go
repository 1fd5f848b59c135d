package ledger

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/periods"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// defaultEpsilon is the rounding tolerance for trial balance equality.
const defaultEpsilon = 0.01

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetAccount(ctx context.Context, companyID, id int64) (Account, error)
	GetAccountByCode(ctx context.Context, companyID int64, code string) (Account, error)
	ListAccounts(ctx context.Context, companyID int64, filter AccountFilter) ([]Account, error)
	ListEntries(ctx context.Context, companyID int64, filter EntryFilter) ([]Entry, error)
	AccountTotals(ctx context.Context, companyID, periodID int64) ([]AccountTotals, error)
}

// PeriodGuard gates journal postings on the accounting period state.
type PeriodGuard interface {
	EnsureOpenForPosting(ctx context.Context, companyID, periodID int64) error
	Get(ctx context.Context, companyID, periodID int64) (periods.Period, error)
}

// AuditPort records ledger events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the chart of accounts and the double-entry journal.
type Service struct {
	repo    RepositoryPort
	guard   PeriodGuard
	audit   AuditPort
	metrics *observability.Metrics
	epsilon float64
	now     func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, guard PeriodGuard, audit AuditPort, metrics *observability.Metrics) *Service {
	return &Service{
		repo:    repo,
		guard:   guard,
		audit:   audit,
		metrics: metrics,
		epsilon: defaultEpsilon,
		now:     time.Now,
	}
}

// WithEpsilon overrides the balance tolerance.
func (s *Service) WithEpsilon(epsilon float64) {
	if epsilon > 0 {
		s.epsilon = epsilon
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateAccount inserts a chart of accounts node, rejecting duplicate codes.
func (s *Service) CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	if err := in.Validate(); err != nil {
		return Account{}, err
	}
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		exists, err := tx.AccountCodeExists(ctx, in.CompanyID, in.Code)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateCode
		}
		account, err = tx.InsertAccount(ctx, in)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

// GetAccount loads one account.
func (s *Service) GetAccount(ctx context.Context, companyID, id int64) (Account, error) {
	return s.repo.GetAccount(ctx, companyID, id)
}

// GetAccountByCode loads one account by its code.
func (s *Service) GetAccountByCode(ctx context.Context, companyID int64, code string) (Account, error) {
	return s.repo.GetAccountByCode(ctx, companyID, code)
}

// ListAccounts returns accounts filtered by type and active state.
func (s *Service) ListAccounts(ctx context.Context, companyID int64, filter AccountFilter) ([]Account, error) {
	return s.repo.ListAccounts(ctx, companyID, filter)
}

// UpdateAccount patches mutable fields of an account.
func (s *Service) UpdateAccount(ctx context.Context, companyID, id int64, patch UpdateAccountInput) (Account, error) {
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetAccountForUpdate(ctx, companyID, id)
		if err != nil {
			return err
		}
		if patch.Name != nil {
			current.Name = *patch.Name
		}
		if patch.ParentID != nil {
			current.ParentID = patch.ParentID
		}
		if patch.IsControlAccount != nil {
			current.IsControlAccount = *patch.IsControlAccount
		}
		if patch.IsActive != nil {
			current.IsActive = *patch.IsActive
		}
		if err := tx.UpdateAccount(ctx, current); err != nil {
			return err
		}
		account = current
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

// DeleteAccount hard-deletes an account with no journal activity and
// soft-deletes (deactivates) one that has any.
func (s *Service) DeleteAccount(ctx context.Context, companyID, id, actorID int64) error {
	var hard bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetAccountForUpdate(ctx, companyID, id)
		if err != nil {
			return err
		}
		count, err := tx.CountEntriesForAccount(ctx, account.ID)
		if err != nil {
			return err
		}
		if count == 0 {
			hard = true
			return tx.DeleteAccount(ctx, account.ID)
		}
		account.IsActive = false
		return tx.UpdateAccount(ctx, account)
	})
	if err != nil {
		return err
	}
	if s.audit != nil {
		action := "gl.account.deactivate"
		if hard {
			action = "gl.account.delete"
		}
		_ = s.audit.Record(ctx, shared.AuditLog{
			CompanyID: companyID,
			ActorID:   actorID,
			Action:    action,
			Entity:    "gl_account",
			EntityID:  fmt.Sprintf("%d", id),
			At:        s.now(),
		})
	}
	return nil
}

// PostEntry appends a single journal row.
func (s *Service) PostEntry(ctx context.Context, in EntryInput) (Entry, error) {
	entries, err := s.PostEntries(ctx, []EntryInput{in})
	if err != nil {
		return Entry{}, err
	}
	return entries[0], nil
}

// PostEntries appends a batch of journal rows in one atomic unit. Single
// rows pass through unchecked for balance; batches of two or more must
// net to zero within the configured tolerance.
func (s *Service) PostEntries(ctx context.Context, inputs []EntryInput) ([]Entry, error) {
	if len(inputs) == 0 {
		return nil, ErrEmptyBatch
	}
	companyID := inputs[0].CompanyID
	periodID := inputs[0].PeriodID
	var debits, credits float64
	for _, in := range inputs {
		if err := in.Validate(); err != nil {
			s.fail()
			return nil, err
		}
		if in.CompanyID != companyID || in.PeriodID != periodID {
			s.fail()
			return nil, shared.Validation("ledger: batch entries must share company and period")
		}
		debits += in.DebitAmount
		credits += in.CreditAmount
	}
	if len(inputs) > 1 && math.Abs(debits-credits) >= s.epsilon {
		s.fail()
		return nil, ErrUnbalancedBatch
	}
	if err := s.guard.EnsureOpenForPosting(ctx, companyID, periodID); err != nil {
		s.fail()
		return nil, err
	}
	period, err := s.guard.Get(ctx, companyID, periodID)
	if err != nil {
		s.fail()
		return nil, err
	}
	for _, in := range inputs {
		if !period.Contains(in.Date) {
			s.fail()
			return nil, ErrDateOutsidePeriod
		}
	}

	postedAt := s.now()
	var entries []Entry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entries = entries[:0]
		for _, in := range inputs {
			entry, err := tx.InsertEntry(ctx, in, postedAt)
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		s.fail()
		return nil, err
	}
	s.metrics.RecordPosting("gl")
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			CompanyID: companyID,
			ActorID:   inputs[0].PostedBy,
			Action:    "gl.post",
			Entity:    "gl_transaction",
			EntityID:  fmt.Sprintf("%d", entries[0].ID),
			Meta: map[string]any{
				"rows":          len(entries),
				"source_module": inputs[0].SourceModule,
			},
			At: postedAt,
		})
	}
	return entries, nil
}

// ListEntries returns journal rows matching the filter.
func (s *Service) ListEntries(ctx context.Context, companyID int64, filter EntryFilter) ([]Entry, error) {
	return s.repo.ListEntries(ctx, companyID, filter)
}

// TrialBalance nets each account's activity for the period and folds it
// into debit or credit presentation per the account's normal balance.
func (s *Service) TrialBalance(ctx context.Context, companyID, periodID int64) (TrialBalance, error) {
	if _, err := s.guard.Get(ctx, companyID, periodID); err != nil {
		return TrialBalance{}, err
	}
	totals, err := s.repo.AccountTotals(ctx, companyID, periodID)
	if err != nil {
		return TrialBalance{}, err
	}
	tb := TrialBalance{CompanyID: companyID, PeriodID: periodID}
	for _, t := range totals {
		row := t.fold()
		tb.Rows = append(tb.Rows, row)
		tb.TotalDebits += row.DebitBalance
		tb.TotalCredits += row.CreditBalance
	}
	tb.IsBalanced = math.Abs(tb.TotalDebits-tb.TotalCredits) < s.epsilon
	return tb, nil
}

func (s *Service) fail() {
	s.metrics.RecordPostingFailure("gl")
}
