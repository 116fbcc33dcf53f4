package domain

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		status   Status
		active   bool
		terminal bool
	}{
		{status: StatusEmpty},
		{status: StatusProposed},
		{status: StatusApproved, active: true},
		{status: StatusProxiesInitiated, active: true},
		{status: StatusCompleted, terminal: true},
		{status: StatusCancelled, terminal: true},
		{status: StatusFailed, terminal: true},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			require.Equal(t, tt.active, tt.status.Active())
			require.Equal(t, tt.terminal, tt.status.Terminal())
		})
	}
}

func TestExecutedFromFlags(t *testing.T) {
	state := DeploymentState{Executed: ExecutedFromFlags([]bool{true, false, true})}

	require.True(t, state.IsExecuted(0))
	require.False(t, state.IsExecuted(1))
	require.True(t, state.IsExecuted(2))
	require.False(t, state.IsExecuted(3))
	require.False(t, (&DeploymentState{}).IsExecuted(0))
}

func TestErrors(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("execute: %w", &NetworkError{Op: "send transaction", Err: cause})
	require.ErrorIs(t, err, cause)

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	require.Equal(t, "send transaction", netErr.Op)

	funds := &InsufficientFundsError{Available: big.NewInt(10), Required: big.NewInt(25)}
	require.Equal(t, big.NewInt(15), funds.Shortfall())
}
