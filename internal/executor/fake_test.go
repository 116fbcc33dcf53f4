package executor

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"testing"

	"github.com/compose-network/bundle-deployer/internal/actions"
	"github.com/compose-network/bundle-deployer/internal/bundle"
	"github.com/compose-network/bundle-deployer/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

// fakeManager applies batches the way the manager contract does: it marks the
// actions executed, moves through the upgrade states and completes the
// deployment once nothing is left.
type fakeManager struct {
	status     domain.Status
	executed   []bool
	hasTargets bool

	batches   [][]uint64
	initiated int
	finalized int
	txs       int

	// failOnBatch marks the deployment failed when the given batch (1-based) runs.
	failOnBatch int
	// revertOnBatch fails the deployment and returns a revert error from the
	// given batch (1-based), the way a reverted receipt surfaces.
	revertOnBatch int
	// ignoreBatches leaves the mask untouched, as if the batch had no effect.
	ignoreBatches bool
	stateErr      error
}

func newFakeManager(d *bundle.Deployment, status domain.Status) *fakeManager {
	return &fakeManager{
		status:     status,
		executed:   make([]bool, len(d.Actions.Actions)),
		hasTargets: len(d.Targets.Targets) > 0,
	}
}

func (f *fakeManager) State(_ context.Context, _ common.Hash) (*domain.DeploymentState, error) {
	if f.stateErr != nil {
		return nil, f.stateErr
	}
	flags := make([]bool, len(f.executed))
	copy(flags, f.executed)
	return &domain.DeploymentState{Status: f.status, Executed: domain.ExecutedFromFlags(flags)}, nil
}

func (f *fakeManager) ExecuteActions(_ context.Context, _ common.Hash, batch []bundle.BundledAction) (common.Hash, error) {
	f.txs++
	if f.revertOnBatch == len(f.batches)+1 {
		f.batches = append(f.batches, nil)
		f.status = domain.StatusFailed
		return common.Hash{}, &domain.ExecutionRevertError{TxHash: f.tx(), Reason: "execution reverted"}
	}
	indexes := make([]uint64, len(batch))
	for i, item := range batch {
		indexes[i] = item.Proof.Index
		if !f.ignoreBatches {
			f.executed[item.Proof.Index] = true
		}
	}
	f.batches = append(f.batches, indexes)

	if f.failOnBatch == len(f.batches) {
		f.status = domain.StatusFailed
		return f.tx(), nil
	}
	if f.allExecuted() && !f.hasTargets {
		f.status = domain.StatusCompleted
	}
	return f.tx(), nil
}

func (f *fakeManager) InitiateUpgrade(_ context.Context, _ common.Hash, _ *bundle.TargetBundle) (common.Hash, error) {
	f.txs++
	f.initiated++
	f.status = domain.StatusProxiesInitiated
	return f.tx(), nil
}

func (f *fakeManager) FinalizeUpgrade(_ context.Context, _ common.Hash, _ *bundle.TargetBundle) (common.Hash, error) {
	f.txs++
	f.finalized++
	f.status = domain.StatusCompleted
	return f.tx(), nil
}

func (f *fakeManager) allExecuted() bool {
	for _, done := range f.executed {
		if !done {
			return false
		}
	}
	return true
}

func (f *fakeManager) tx() common.Hash {
	return crypto.Keccak256Hash([]byte(fmt.Sprintf("tx-%d", f.txs)))
}

func (f *fakeManager) batchSizes() []int {
	sizes := make([]int, len(f.batches))
	for i, b := range f.batches {
		sizes[i] = len(b)
	}
	return sizes
}

type countingEstimator struct {
	GasEstimator
	estimates int
}

func (c *countingEstimator) EstimateBatch(ctx context.Context, id common.Hash, batch []bundle.BundledAction) (uint64, error) {
	c.estimates++
	return c.GasEstimator.EstimateBatch(ctx, id, batch)
}

func makeDeployment(t *testing.T, deploys, writes int, withTarget bool) (*bundle.Deployment, map[common.Address]uint64) {
	t.Helper()
	plan := &actions.Plan{}
	gas := make(map[common.Address]uint64)
	proxy := common.HexToAddress("0xe1")

	for i := 0; i < deploys; i++ {
		addr := common.BigToAddress(big.NewInt(int64(100 + i)))
		plan.Actions = append(plan.Actions, &actions.DeployContract{
			ReferenceName: fmt.Sprintf("C%d", i),
			Address:       addr,
			InitCode:      []byte{0x60, byte(i)},
		})
		gas[addr] = 0
	}
	for i := 0; i < writes; i++ {
		plan.Actions = append(plan.Actions, &actions.SetStorage{
			ReferenceName: "C0",
			Address:       proxy,
			Slot:          common.BigToHash(big.NewInt(int64(i))),
			Value:         []byte{byte(i + 1)},
		})
	}
	if withTarget {
		plan.Targets = []actions.Target{{ProjectName: "demo", ReferenceName: "C0", Address: proxy}}
	}

	d, err := bundle.Make(plan, "uri")
	require.NoError(t, err)
	return d, gas
}

func maxEstimates(m int) int {
	return int(math.Ceil(math.Log2(float64(m)))) + 1
}
