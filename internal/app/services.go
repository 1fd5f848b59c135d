package app

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/periods"
	"github.com/meridian-erp/meridian-erp/internal/reporting"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/subledger"
)

// Services is the wired posting-core graph. Boundary layers embed it
// instead of assembling repositories, guards and lockers themselves.
type Services struct {
	Periods   *periods.Service
	Ledger    *ledger.Service
	Subledger *subledger.Service
	Inventory *inventory.Service
	Reporting *reporting.Service
	Locker    *shared.EntityLocker
	Audit     *shared.AuditLogger
}

// BuildServices assembles the service graph from configuration.
// Config tunables the services expose as setters are applied here and
// nowhere else.
func BuildServices(cfg *Config, pool *pgxpool.Pool, redisClient *redis.Client, metrics *observability.Metrics) *Services {
	audit := shared.NewAuditLogger(pool)
	locker := shared.NewEntityLocker(redisClient).WithTimings(cfg.LockTTL, cfg.LockMaxWait)

	periodsSvc := periods.NewService(periods.NewRepository(pool), audit)
	ledgerSvc := ledger.NewService(ledger.NewRepository(pool), periodsSvc, audit, metrics)
	ledgerSvc.WithEpsilon(cfg.TrialBalanceEpsilon)
	subledgerSvc := subledger.NewService(subledger.NewRepository(pool), periodsSvc, locker, audit, metrics)
	inventorySvc := inventory.NewService(inventory.NewRepository(pool), periodsSvc, locker, audit, metrics)

	return &Services{
		Periods:   periodsSvc,
		Ledger:    ledgerSvc,
		Subledger: subledgerSvc,
		Inventory: inventorySvc,
		Reporting: reporting.NewService(subledgerSvc, inventorySvc),
		Locker:    locker,
		Audit:     audit,
	}
}
