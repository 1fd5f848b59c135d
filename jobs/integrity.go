package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/observability"
)

// driftTolerance is the default rounding allowance when comparing
// recomputed and stored figures. Deployments override it through
// TRIAL_BALANCE_EPSILON.
const driftTolerance = 0.01

// BalanceIntegrityJob recomputes each counterpart's balance as the sum
// of signed net amounts over posted transactions and flags any drift
// from the incrementally maintained running balance.
type BalanceIntegrityJob struct {
	Pool      *pgxpool.Pool
	Logger    *slog.Logger
	Metrics   *observability.Metrics
	tolerance float64
	clock     func() time.Time
}

// NewBalanceIntegrityJob wires dependencies for the balance scan.
func NewBalanceIntegrityJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *observability.Metrics) *BalanceIntegrityJob {
	return &BalanceIntegrityJob{
		Pool:      pool,
		Logger:    logger,
		Metrics:   metrics,
		tolerance: driftTolerance,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// WithTolerance overrides the drift tolerance.
func (j *BalanceIntegrityJob) WithTolerance(tolerance float64) {
	if j != nil && tolerance > 0 {
		j.tolerance = tolerance
	}
}

type balanceDrift struct {
	CounterpartID int64
	CompanyID     int64
	Code          string
	Stored        float64
	Recomputed    float64
}

// Handle executes the balance scan.
func (j *BalanceIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("balance integrity: pool not configured")
	}
	var payload BalanceIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := j.now()
	logger := j.logger()
	logger.Info("starting balance integrity scan", slog.Int64("company_id", payload.CompanyID))

	drifts, scanned, err := j.scan(ctx, payload.CompanyID)
	if err != nil {
		logger.Error("balance scan failed", slog.Any("error", err))
		return err
	}

	for _, d := range drifts {
		logger.Warn("counterpart balance drift",
			slog.Int64("company_id", d.CompanyID),
			slog.Int64("counterpart_id", d.CounterpartID),
			slog.String("code", d.Code),
			slog.Float64("stored", d.Stored),
			slog.Float64("recomputed", d.Recomputed),
			slog.Float64("delta", d.Stored-d.Recomputed),
		)
	}
	j.Metrics.SetIntegrityDrift("counterpart", float64(len(drifts)))

	logger.Info("completed balance integrity scan",
		slog.Int("counterparts", scanned),
		slog.Int("drifts", len(drifts)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *BalanceIntegrityJob) scan(ctx context.Context, companyID int64) ([]balanceDrift, int, error) {
	query := `
		SELECT c.id, c.company_id, c.code, c.current_balance,
			COALESCE(SUM(CASE
				WHEN tt.affects_balance = (CASE c.side WHEN 'AR' THEN 'DEBIT' ELSE 'CREDIT' END)
				THEN t.net_amount ELSE -t.net_amount END), 0)
		FROM subledger_counterparts c
		LEFT JOIN subledger_transactions t ON t.counterpart_id = c.id AND t.is_posted
		LEFT JOIN subledger_transaction_types tt ON tt.id = t.type_id
		WHERE ($1 = 0 OR c.company_id = $1)
		GROUP BY c.id, c.company_id, c.code, c.current_balance
		ORDER BY c.company_id, c.id`
	rows, err := j.Pool.Query(ctx, query, companyID)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var drifts []balanceDrift
	scanned := 0
	for rows.Next() {
		var d balanceDrift
		if err := rows.Scan(&d.CounterpartID, &d.CompanyID, &d.Code, &d.Stored, &d.Recomputed); err != nil {
			return nil, 0, err
		}
		scanned++
		if math.Abs(d.Stored-d.Recomputed) >= j.tolerance {
			drifts = append(drifts, d)
		}
	}
	return drifts, scanned, rows.Err()
}

func (j *BalanceIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskIntegrityBalances))
	}
	return slog.Default().With(slog.String("job", TaskIntegrityBalances))
}

func (j *BalanceIntegrityJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *BalanceIntegrityJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}

// TrialBalanceIntegrityJob sums journal debits and credits per open
// period and flags any period whose sides no longer net to zero.
type TrialBalanceIntegrityJob struct {
	Pool      *pgxpool.Pool
	Logger    *slog.Logger
	Metrics   *observability.Metrics
	tolerance float64
	clock     func() time.Time
}

// NewTrialBalanceIntegrityJob wires dependencies for the journal scan.
func NewTrialBalanceIntegrityJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *observability.Metrics) *TrialBalanceIntegrityJob {
	return &TrialBalanceIntegrityJob{
		Pool:      pool,
		Logger:    logger,
		Metrics:   metrics,
		tolerance: driftTolerance,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// WithTolerance overrides the drift tolerance.
func (j *TrialBalanceIntegrityJob) WithTolerance(tolerance float64) {
	if j != nil && tolerance > 0 {
		j.tolerance = tolerance
	}
}

// Handle executes the journal scan.
func (j *TrialBalanceIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("trial balance integrity: pool not configured")
	}
	var payload TrialBalanceIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := j.now()
	logger := j.logger()
	logger.Info("starting trial balance scan", slog.Int64("company_id", payload.CompanyID))

	rows, err := j.Pool.Query(ctx, `
		SELECT p.company_id, p.id, p.name,
			COALESCE(SUM(t.debit_amount), 0), COALESCE(SUM(t.credit_amount), 0)
		FROM accounting_periods p
		LEFT JOIN gl_transactions t ON t.period_id = p.id
		WHERE NOT p.is_closed AND ($1 = 0 OR p.company_id = $1)
		GROUP BY p.company_id, p.id, p.name
		ORDER BY p.company_id, p.id`, payload.CompanyID)
	if err != nil {
		logger.Error("trial balance scan failed", slog.Any("error", err))
		return err
	}
	defer rows.Close()

	periods := 0
	unbalanced := 0
	for rows.Next() {
		var companyID, periodID int64
		var name string
		var debits, credits float64
		if err := rows.Scan(&companyID, &periodID, &name, &debits, &credits); err != nil {
			return err
		}
		periods++
		if math.Abs(debits-credits) >= j.tolerance {
			unbalanced++
			logger.Warn("period out of balance",
				slog.Int64("company_id", companyID),
				slog.Int64("period_id", periodID),
				slog.String("period", name),
				slog.Float64("debits", debits),
				slog.Float64("credits", credits),
			)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	j.Metrics.SetIntegrityDrift("trial_balance", float64(unbalanced))

	logger.Info("completed trial balance scan",
		slog.Int("periods", periods),
		slog.Int("unbalanced", unbalanced),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *TrialBalanceIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskIntegrityTrialBalance))
	}
	return slog.Default().With(slog.String("job", TaskIntegrityTrialBalance))
}

func (j *TrialBalanceIntegrityJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
