package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuildServicesWiresFullGraph(t *testing.T) {
	cfg := &Config{
		TrialBalanceEpsilon: 0.05,
		LockTTL:             2 * time.Second,
		LockMaxWait:         time.Second,
	}

	svcs := BuildServices(cfg, nil, nil, nil)
	require.NotNil(t, svcs.Periods)
	require.NotNil(t, svcs.Ledger)
	require.NotNil(t, svcs.Subledger)
	require.NotNil(t, svcs.Inventory)
	require.NotNil(t, svcs.Reporting)
	require.NotNil(t, svcs.Locker)
	require.NotNil(t, svcs.Audit)
}
