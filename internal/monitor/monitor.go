// Package monitor follows an approved deployment on chain until it reaches a
// terminal state, reporting phase changes and underfunding along the way.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/compose-network/bundle-deployer/internal/actions"
	"github.com/compose-network/bundle-deployer/internal/bundle"
	"github.com/compose-network/bundle-deployer/internal/domain"
	"github.com/compose-network/bundle-deployer/internal/logger"
	"github.com/ethereum/go-ethereum/common"
)

type Phase string

const (
	PhaseDeployingContracts Phase = "deploying-contracts"
	PhaseSettingStorage     Phase = "setting-storage"
	PhaseCompletingUpgrade  Phase = "completing-upgrade"
)

type (
	Chain interface {
		State(ctx context.Context, id common.Hash) (*domain.DeploymentState, error)
		AvailableFunds(ctx context.Context) (*big.Int, error)
		SuggestGasPrice(ctx context.Context) (*big.Int, error)
		CompletionTx(ctx context.Context, id common.Hash) (common.Hash, error)
	}

	CostEstimator interface {
		EstimateAction(a actions.Action) uint64
	}

	Metricer interface {
		RecordPhase(phase string)
		RecordFundingShortfall()
	}

	PhaseEvent struct {
		Phase       Phase
		ActionIndex uint64
	}

	Config struct {
		PollInterval time.Duration
		// FinalizeGas is the cost of the finalize transaction, added to the
		// remaining cost when the deployment upgrades proxies.
		FinalizeGas uint64
		OnPhase     func(PhaseEvent)
	}

	Monitor struct {
		chain     Chain
		estimator CostEstimator
		config    Config
		metrics   Metricer
		logger    *slog.Logger
	}
)

func NewMonitor(chain Chain, estimator CostEstimator, config Config, metrics Metricer) *Monitor {
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Monitor{
		chain:     chain,
		estimator: estimator,
		config:    config,
		metrics:   metrics,
		logger:    logger.Named("monitor"),
	}
}

// Run polls until d completes and returns the hash of the completing
// transaction. Polls never overlap.
func (m *Monitor) Run(ctx context.Context, d *bundle.Deployment) (common.Hash, error) {
	log := m.logger.With("deployment_id", d.ID.Hex())
	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	var current Phase
	for {
		state, err := m.chain.State(ctx, d.ID)
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to read deployment state: %w", err)
		}

		switch state.Status {
		case domain.StatusCompleted:
			tx, err := m.chain.CompletionTx(ctx, d.ID)
			if err != nil {
				return common.Hash{}, fmt.Errorf("failed to find completion transaction: %w", err)
			}
			log.With("tx_hash", tx.Hex()).Info("Deployment completed")
			return tx, nil

		case domain.StatusCancelled:
			return common.Hash{}, domain.ErrCancelled

		case domain.StatusFailed:
			return common.Hash{}, &domain.ExecutionRevertError{DeploymentID: d.ID, Reason: "deployment status is failed"}

		case domain.StatusApproved, domain.StatusProxiesInitiated:
			if err := m.checkFunds(ctx, d, state); err != nil {
				return common.Hash{}, err
			}

			phase, index := CurrentPhase(d, state)
			if phase != current {
				current = phase
				m.metrics.RecordPhase(string(phase))
				log.With("phase", string(phase)).With("action_index", index).Info("Deployment phase changed")
				if m.config.OnPhase != nil {
					m.config.OnPhase(PhaseEvent{Phase: phase, ActionIndex: index})
				}
			}

		default:
			return common.Hash{}, fmt.Errorf("deployment %s is %s, expected it to be approved", d.ID.Hex(), state.Status)
		}

		select {
		case <-ctx.Done():
			return common.Hash{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// CurrentPhase is decided by the first action the chain has not executed.
func CurrentPhase(d *bundle.Deployment, state *domain.DeploymentState) (Phase, uint64) {
	for _, item := range d.Actions.Actions {
		if state.IsExecuted(item.Proof.Index) {
			continue
		}
		if item.Action.Type() == actions.ActionDeployContract {
			return PhaseDeployingContracts, item.Proof.Index
		}
		return PhaseSettingStorage, item.Proof.Index
	}
	return PhaseCompletingUpgrade, uint64(len(d.Actions.Actions))
}

func (m *Monitor) checkFunds(ctx context.Context, d *bundle.Deployment, state *domain.DeploymentState) error {
	var gas uint64
	for _, item := range d.Actions.Actions {
		if !state.IsExecuted(item.Proof.Index) {
			gas += m.estimator.EstimateAction(item.Action)
		}
	}
	if d.Targets != nil && len(d.Targets.Targets) > 0 {
		gas += m.config.FinalizeGas
	}
	if gas == 0 {
		return nil
	}

	price, err := m.chain.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("failed to get gas price: %w", err)
	}
	available, err := m.chain.AvailableFunds(ctx)
	if err != nil {
		return fmt.Errorf("failed to get manager funds: %w", err)
	}

	required := new(big.Int).Mul(new(big.Int).SetUint64(gas), price)
	if available.Cmp(required) < 0 {
		m.metrics.RecordFundingShortfall()
		return &domain.InsufficientFundsError{Available: available, Required: required}
	}
	return nil
}

type noopMetrics struct{}

func (noopMetrics) RecordPhase(string)      {}
func (noopMetrics) RecordFundingShortfall() {}
