// Package executor applies an action bundle to the chain in gas bounded
// batches, resuming from whatever the chain reports as already executed.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/compose-network/bundle-deployer/internal/actions"
	"github.com/compose-network/bundle-deployer/internal/bundle"
	"github.com/compose-network/bundle-deployer/internal/domain"
	"github.com/compose-network/bundle-deployer/internal/logger"
	"github.com/ethereum/go-ethereum/common"
)

type (
	// Manager is the deployment manager contract. Every transaction method
	// returns once the transaction is confirmed.
	Manager interface {
		State(ctx context.Context, id common.Hash) (*domain.DeploymentState, error)
		ExecuteActions(ctx context.Context, id common.Hash, batch []bundle.BundledAction) (common.Hash, error)
		InitiateUpgrade(ctx context.Context, id common.Hash, targets *bundle.TargetBundle) (common.Hash, error)
		FinalizeUpgrade(ctx context.Context, id common.Hash, targets *bundle.TargetBundle) (common.Hash, error)
	}

	GasEstimator interface {
		EstimateBatch(ctx context.Context, id common.Hash, batch []bundle.BundledAction) (uint64, error)
	}

	Metricer interface {
		RecordBatch(kind string, size int, gas uint64)
		RecordEstimate()
		RecordUpgradeStep(step string)
	}

	Executor struct {
		manager    Manager
		estimator  GasEstimator
		gasCeiling uint64
		metrics    Metricer
		logger     *slog.Logger
	}

	Batch struct {
		Kind   actions.ActionType
		Size   int
		Gas    uint64
		TxHash common.Hash
	}

	Result struct {
		// Skipped counts actions the chain already reported as executed.
		Skipped    int
		Batches    []Batch
		InitiateTx common.Hash
		FinalizeTx common.Hash
		Status     domain.Status
	}
)

func NewExecutor(manager Manager, estimator GasEstimator, gasCeiling uint64, metrics Metricer) *Executor {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Executor{
		manager:    manager,
		estimator:  estimator,
		gasCeiling: gasCeiling,
		metrics:    metrics,
		logger:     logger.Named("executor"),
	}
}

// Execute submits every action of d that the chain has not executed yet.
// Deploy actions all go before storage writes; when d has targets the proxies
// are initiated before the first write and finalized after the last one.
func (e *Executor) Execute(ctx context.Context, d *bundle.Deployment) (*Result, error) {
	log := e.logger.With("deployment_id", d.ID.Hex())

	state, err := e.manager.State(ctx, d.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read deployment state: %w", err)
	}

	result := &Result{Status: state.Status}
	switch state.Status {
	case domain.StatusCompleted:
		result.Skipped = len(d.Actions.Actions)
		log.Info("Deployment already completed, nothing to execute")
		return result, nil
	case domain.StatusApproved, domain.StatusProxiesInitiated:
	default:
		if err := statusError(d.ID, common.Hash{}, state.Status); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("deployment %s is %s, expected it to be approved", d.ID.Hex(), state.Status)
	}

	pending := pendingActions(d.Actions.Actions, state)
	result.Skipped = len(d.Actions.Actions) - len(pending)
	deploys, writes := partition(pending)

	log.
		With("pending", len(pending)).
		With("skipped", result.Skipped).
		With("gas_ceiling", e.gasCeiling).
		Info("Executing deployment")

	if state, err = e.runBatches(ctx, d.ID, actions.ActionDeployContract, deploys, state, result); err != nil {
		return result, err
	}

	hasTargets := d.Targets != nil && len(d.Targets.Targets) > 0
	if hasTargets && state.Status == domain.StatusApproved {
		tx, err := e.manager.InitiateUpgrade(ctx, d.ID, d.Targets)
		if err != nil {
			return result, fmt.Errorf("failed to initiate upgrade: %w", err)
		}
		result.InitiateTx = tx
		e.metrics.RecordUpgradeStep("initiate")
		log.With("tx_hash", tx.Hex()).Info("Proxies initiated")

		if state, err = e.refresh(ctx, d.ID, tx); err != nil {
			if state != nil {
				result.Status = state.Status
			}
			return result, err
		}
	}

	if state, err = e.runBatches(ctx, d.ID, actions.ActionSetStorage, writes, state, result); err != nil {
		return result, err
	}

	if hasTargets && state.Status == domain.StatusProxiesInitiated {
		tx, err := e.manager.FinalizeUpgrade(ctx, d.ID, d.Targets)
		if err != nil {
			return result, fmt.Errorf("failed to finalize upgrade: %w", err)
		}
		result.FinalizeTx = tx
		e.metrics.RecordUpgradeStep("finalize")
		log.With("tx_hash", tx.Hex()).Info("Upgrade finalized")

		if state, err = e.refresh(ctx, d.ID, tx); err != nil {
			if state != nil {
				result.Status = state.Status
			}
			return result, err
		}
	}

	result.Status = state.Status
	log.
		With("batches", len(result.Batches)).
		With("status", state.Status.String()).
		Info("Execution finished")

	return result, nil
}

// runBatches submits items in consecutive batches. What remains after each
// batch is taken from the chain, never from local bookkeeping.
func (e *Executor) runBatches(
	ctx context.Context,
	id common.Hash,
	kind actions.ActionType,
	items []bundle.BundledAction,
	state *domain.DeploymentState,
	result *Result,
) (*domain.DeploymentState, error) {
	for len(items) > 0 {
		size, gas, err := e.batchSize(ctx, id, items)
		if err != nil {
			return state, err
		}

		batch := items[:size]
		tx, err := e.manager.ExecuteActions(ctx, id, batch)
		if err != nil {
			execErr := fmt.Errorf("failed to execute %s batch of %d: %w", kind, size, err)
			// A reverted batch may still have moved the deployment; report what the chain says.
			confirmed, stateErr := e.manager.State(ctx, id)
			if stateErr != nil {
				return state, errors.Join(execErr, fmt.Errorf("failed to read deployment state: %w", stateErr))
			}
			result.Status = confirmed.Status
			return confirmed, execErr
		}
		result.Batches = append(result.Batches, Batch{Kind: kind, Size: size, Gas: gas, TxHash: tx})
		e.metrics.RecordBatch(kind.String(), size, gas)

		e.logger.
			With("deployment_id", id.Hex()).
			With("kind", kind.String()).
			With("batch_size", size).
			With("gas", gas).
			With("tx_hash", tx.Hex()).
			Info("Batch executed")

		if state, err = e.refresh(ctx, id, tx); err != nil {
			if state != nil {
				result.Status = state.Status
			}
			return state, err
		}
		result.Status = state.Status

		remaining := pendingActions(items, state)
		if len(remaining) == len(items) {
			return state, fmt.Errorf("batch %s executed but the chain reports no progress", tx.Hex())
		}
		items = remaining
	}
	return state, nil
}

// refresh re-reads the state after tx and stops on a cancelled or failed deployment.
func (e *Executor) refresh(ctx context.Context, id, tx common.Hash) (*domain.DeploymentState, error) {
	state, err := e.manager.State(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read deployment state: %w", err)
	}
	if err := statusError(id, tx, state.Status); err != nil {
		return state, err
	}
	return state, nil
}

func statusError(id, tx common.Hash, status domain.Status) error {
	switch status {
	case domain.StatusFailed:
		return &domain.ExecutionRevertError{DeploymentID: id, TxHash: tx, Reason: "deployment status is failed"}
	case domain.StatusCancelled:
		return domain.ErrCancelled
	default:
		return nil
	}
}

func pendingActions(items []bundle.BundledAction, state *domain.DeploymentState) []bundle.BundledAction {
	pending := make([]bundle.BundledAction, 0, len(items))
	for _, item := range items {
		if !state.IsExecuted(item.Proof.Index) {
			pending = append(pending, item)
		}
	}
	return pending
}

func partition(items []bundle.BundledAction) (deploys, writes []bundle.BundledAction) {
	for _, item := range items {
		if item.Action.Type() == actions.ActionDeployContract {
			deploys = append(deploys, item)
		} else {
			writes = append(writes, item)
		}
	}
	return deploys, writes
}

type noopMetrics struct{}

func (noopMetrics) RecordBatch(string, int, uint64) {}
func (noopMetrics) RecordEstimate()                 {}
func (noopMetrics) RecordUpgradeStep(string)        {}
