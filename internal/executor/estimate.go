package executor

import (
	"context"

	"github.com/compose-network/bundle-deployer/internal/actions"
	"github.com/compose-network/bundle-deployer/internal/bundle"
	"github.com/ethereum/go-ethereum/common"
)

// StaticGasEstimator prices a batch from compiler creation estimates and
// flat per-action costs, without touching the chain.
type StaticGasEstimator struct {
	// DeployGas is the creation estimate per deployed address.
	DeployGas      map[common.Address]uint64
	DeployOverhead uint64
	SetStorageGas  uint64
}

func (s *StaticGasEstimator) EstimateAction(a actions.Action) uint64 {
	switch action := a.(type) {
	case *actions.DeployContract:
		return s.DeployGas[action.Address] + s.DeployOverhead
	case *actions.SetStorage:
		return s.SetStorageGas
	default:
		return 0
	}
}

func (s *StaticGasEstimator) EstimateBatch(_ context.Context, _ common.Hash, batch []bundle.BundledAction) (uint64, error) {
	var total uint64
	for _, item := range batch {
		total += s.EstimateAction(item.Action)
	}
	return total, nil
}
