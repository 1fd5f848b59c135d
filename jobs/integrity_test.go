package jobs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBalanceIntegrityHandleRequiresPool(t *testing.T) {
	j := NewBalanceIntegrityJob(nil, nil, nil)
	task, err := NewBalanceIntegrityTask(0)
	require.NoError(t, err)
	require.Error(t, j.Handle(context.Background(), task))
}

func TestIntegrityToleranceOverride(t *testing.T) {
	balance := NewBalanceIntegrityJob(nil, nil, nil)
	require.Equal(t, driftTolerance, balance.tolerance)
	balance.WithTolerance(0.5)
	require.Equal(t, 0.5, balance.tolerance)
	balance.WithTolerance(0)
	require.Equal(t, 0.5, balance.tolerance)

	trial := NewTrialBalanceIntegrityJob(nil, nil, nil)
	trial.WithTolerance(0.25)
	require.Equal(t, 0.25, trial.tolerance)
}
