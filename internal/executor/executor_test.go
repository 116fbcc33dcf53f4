package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/compose-network/bundle-deployer/internal/actions"
	"github.com/compose-network/bundle-deployer/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func flatEstimator(gas map[common.Address]uint64, perAction uint64) *StaticGasEstimator {
	return &StaticGasEstimator{DeployGas: gas, DeployOverhead: perAction, SetStorageGas: perAction}
}

func TestExecute_DeploysBeforeWrites(t *testing.T) {
	d, gas := makeDeployment(t, 2, 1, false)
	manager := newFakeManager(d, domain.StatusApproved)

	result, err := NewExecutor(manager, flatEstimator(gas, 100), 200, nil).Execute(context.Background(), d)
	require.NoError(t, err)

	require.Equal(t, []int{2, 1}, manager.batchSizes())
	require.Equal(t, []uint64{0, 1}, manager.batches[0])
	require.Equal(t, actions.ActionDeployContract, result.Batches[0].Kind)
	require.Equal(t, actions.ActionSetStorage, result.Batches[1].Kind)
	require.Equal(t, uint64(200), result.Batches[0].Gas)
	require.Equal(t, domain.StatusCompleted, result.Status)
}

func TestExecute_WithoutTargetsSkipsUpgradeSteps(t *testing.T) {
	d, gas := makeDeployment(t, 1, 2, false)
	manager := newFakeManager(d, domain.StatusApproved)

	result, err := NewExecutor(manager, flatEstimator(gas, 100), 1000, nil).Execute(context.Background(), d)
	require.NoError(t, err)

	require.Zero(t, manager.initiated)
	require.Zero(t, manager.finalized)
	require.Zero(t, result.InitiateTx)
	require.Zero(t, result.FinalizeTx)
}

func TestExecute_WithTargets(t *testing.T) {
	d, gas := makeDeployment(t, 2, 3, true)
	manager := newFakeManager(d, domain.StatusApproved)

	result, err := NewExecutor(manager, flatEstimator(gas, 100), 200, nil).Execute(context.Background(), d)
	require.NoError(t, err)

	require.Equal(t, []int{2, 2, 1}, manager.batchSizes())
	require.Equal(t, 1, manager.initiated)
	require.Equal(t, 1, manager.finalized)
	require.NotZero(t, result.InitiateTx)
	require.NotZero(t, result.FinalizeTx)
	require.Equal(t, domain.StatusCompleted, result.Status)
}

func TestExecute_CompletedSendsNothing(t *testing.T) {
	d, gas := makeDeployment(t, 2, 2, true)
	manager := newFakeManager(d, domain.StatusCompleted)

	result, err := NewExecutor(manager, flatEstimator(gas, 100), 1000, nil).Execute(context.Background(), d)
	require.NoError(t, err)

	require.Zero(t, manager.txs)
	require.Empty(t, result.Batches)
	require.Equal(t, 4, result.Skipped)
}

func TestExecute_Resume(t *testing.T) {
	d, gas := makeDeployment(t, 2, 2, true)
	manager := newFakeManager(d, domain.StatusProxiesInitiated)
	manager.executed[0] = true
	manager.executed[1] = true
	manager.executed[2] = true

	result, err := NewExecutor(manager, flatEstimator(gas, 100), 1000, nil).Execute(context.Background(), d)
	require.NoError(t, err)

	require.Equal(t, 3, result.Skipped)
	require.Equal(t, [][]uint64{{3}}, manager.batches)
	require.Zero(t, manager.initiated)
	require.Equal(t, 1, manager.finalized)
}

func TestExecute_BatchSizing(t *testing.T) {
	const g = 100

	for _, m := range []int{1, 2, 7, 10, 33} {
		for _, perBatch := range []int{1, 2, 3, 5, 40} {
			t.Run(fmt.Sprintf("m=%d,per_batch=%d", m, perBatch), func(t *testing.T) {
				d, gas := makeDeployment(t, 0, m, false)
				manager := newFakeManager(d, domain.StatusApproved)
				estimator := &countingEstimator{GasEstimator: flatEstimator(gas, g)}

				_, err := NewExecutor(manager, estimator, uint64(perBatch*g), nil).Execute(context.Background(), d)
				require.NoError(t, err)

				var want []int
				for left := m; left > 0; left -= perBatch {
					want = append(want, min(left, perBatch))
				}
				require.Equal(t, want, manager.batchSizes())

				// Each batch is one fast path estimate plus a bounded search.
				require.LessOrEqual(t, estimator.estimates, len(want)*maxEstimates(m))
			})
		}
	}
}

func TestBatchSize_EstimateBound(t *testing.T) {
	for _, m := range []int{2, 3, 8, 100, 1000} {
		t.Run(fmt.Sprintf("m=%d", m), func(t *testing.T) {
			d, gas := makeDeployment(t, 0, m, false)
			estimator := &countingEstimator{GasEstimator: flatEstimator(gas, 10)}
			e := NewExecutor(newFakeManager(d, domain.StatusApproved), estimator, 10, nil)

			size, gasUsed, err := e.batchSize(context.Background(), d.ID, d.Actions.Actions)
			require.NoError(t, err)
			require.Equal(t, 1, size)
			require.Equal(t, uint64(10), gasUsed)
			require.LessOrEqual(t, estimator.estimates, maxEstimates(m))
		})
	}
}

func TestExecute_BatchTooLarge(t *testing.T) {
	for _, m := range []int{1, 4} {
		t.Run(fmt.Sprintf("m=%d", m), func(t *testing.T) {
			d, gas := makeDeployment(t, m, 0, false)
			manager := newFakeManager(d, domain.StatusApproved)

			_, err := NewExecutor(manager, flatEstimator(gas, 500), 300, nil).Execute(context.Background(), d)

			var tooLarge *BatchTooLargeError
			require.ErrorAs(t, err, &tooLarge)
			require.Equal(t, uint64(500), tooLarge.Gas)
			require.Equal(t, "C0", tooLarge.ReferenceName)
			require.Zero(t, manager.txs)
		})
	}
}

func TestExecute_StopsOnFailure(t *testing.T) {
	d, gas := makeDeployment(t, 2, 2, true)
	manager := newFakeManager(d, domain.StatusApproved)
	manager.failOnBatch = 1

	result, err := NewExecutor(manager, flatEstimator(gas, 100), 100, nil).Execute(context.Background(), d)

	var revert *domain.ExecutionRevertError
	require.ErrorAs(t, err, &revert)
	require.Equal(t, d.ID, revert.DeploymentID)
	require.Equal(t, result.Batches[0].TxHash, revert.TxHash)
	require.Equal(t, 1, manager.txs)
	require.Zero(t, manager.initiated)
}

func TestExecute_RevertedBatchReadsState(t *testing.T) {
	d, gas := makeDeployment(t, 2, 2, true)
	manager := newFakeManager(d, domain.StatusApproved)
	manager.revertOnBatch = 1

	result, err := NewExecutor(manager, flatEstimator(gas, 100), 100, nil).Execute(context.Background(), d)

	var revert *domain.ExecutionRevertError
	require.ErrorAs(t, err, &revert)
	require.ErrorContains(t, err, "failed to execute deploy-contract batch")
	require.NotNil(t, result)
	require.Equal(t, domain.StatusFailed, result.Status)
	require.Empty(t, result.Batches)
	require.Zero(t, manager.initiated)
}

func TestExecute_TerminalStatuses(t *testing.T) {
	tests := []struct {
		status domain.Status
		check  func(t *testing.T, err error)
	}{
		{status: domain.StatusCancelled, check: func(t *testing.T, err error) { require.ErrorIs(t, err, domain.ErrCancelled) }},
		{status: domain.StatusFailed, check: func(t *testing.T, err error) {
			var revert *domain.ExecutionRevertError
			require.ErrorAs(t, err, &revert)
		}},
		{status: domain.StatusProposed, check: func(t *testing.T, err error) { require.ErrorContains(t, err, "expected it to be approved") }},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			d, gas := makeDeployment(t, 1, 1, false)
			manager := newFakeManager(d, tt.status)

			_, err := NewExecutor(manager, flatEstimator(gas, 100), 1000, nil).Execute(context.Background(), d)
			tt.check(t, err)
			require.Zero(t, manager.txs)
		})
	}
}

func TestExecute_NoProgress(t *testing.T) {
	d, gas := makeDeployment(t, 2, 0, false)
	manager := newFakeManager(d, domain.StatusApproved)
	manager.ignoreBatches = true

	_, err := NewExecutor(manager, flatEstimator(gas, 100), 1000, nil).Execute(context.Background(), d)
	require.ErrorContains(t, err, "no progress")
	require.Equal(t, 1, manager.txs)
}

func TestExecute_StateReadError(t *testing.T) {
	d, gas := makeDeployment(t, 1, 0, false)
	manager := newFakeManager(d, domain.StatusApproved)
	cause := &domain.NetworkError{Op: "read deployment", Err: errors.New("timeout")}
	manager.stateErr = cause

	_, err := NewExecutor(manager, flatEstimator(gas, 100), 1000, nil).Execute(context.Background(), d)
	require.ErrorIs(t, err, cause)
}
