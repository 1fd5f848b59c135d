package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIntegrityBalances recomputes counterpart balances from posted
	// transactions and compares them with the stored running balances.
	TaskIntegrityBalances = "integrity:balances"
	// TaskIntegrityTrialBalance asserts the journal balances per open period.
	TaskIntegrityTrialBalance = "integrity:trialbalance"
)

// BalanceIntegrityPayload scopes the balance scan. A zero company id
// spans every company.
type BalanceIntegrityPayload struct {
	CompanyID int64 `json:"company_id"`
}

// NewBalanceIntegrityTask constructs an Asynq task for the balance scan.
func NewBalanceIntegrityTask(companyID int64) (*asynq.Task, error) {
	body, err := json.Marshal(BalanceIntegrityPayload{CompanyID: companyID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIntegrityBalances, body, asynq.Queue(QueueDefault)), nil
}

// TrialBalanceIntegrityPayload scopes the trial balance scan.
type TrialBalanceIntegrityPayload struct {
	CompanyID int64 `json:"company_id"`
}

// NewTrialBalanceIntegrityTask constructs an Asynq task for the journal scan.
func NewTrialBalanceIntegrityTask(companyID int64) (*asynq.Task, error) {
	body, err := json.Marshal(TrialBalanceIntegrityPayload{CompanyID: companyID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIntegrityTrialBalance, body, asynq.Queue(QueueDefault)), nil
}
