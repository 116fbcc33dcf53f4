package deployer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/compose-network/bundle-deployer/internal/bundle"
	"github.com/compose-network/bundle-deployer/internal/domain"
	"github.com/compose-network/bundle-deployer/internal/report"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// fakeChain plays the manager contract for one deployment.
type fakeChain struct {
	mu sync.Mutex

	status     domain.Status
	executed   []bool
	hasTargets bool

	ceiling      uint64
	ceilingCalls int
	rpcEstimates int
	batches      int
	txs          int
	// failBatches marks the deployment failed on its first batch.
	failBatches bool
}

var completionTx = crypto.Keccak256Hash([]byte("completed"))

func newFakeChain(d *bundle.Deployment, status domain.Status) *fakeChain {
	return &fakeChain{
		status:     status,
		executed:   make([]bool, len(d.Actions.Actions)),
		hasTargets: len(d.Targets.Targets) > 0,
		ceiling:    10_000_000,
	}
}

func (f *fakeChain) State(context.Context, common.Hash) (*domain.DeploymentState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	flags := make([]bool, len(f.executed))
	copy(flags, f.executed)
	return &domain.DeploymentState{Status: f.status, Executed: domain.ExecutedFromFlags(flags)}, nil
}

func (f *fakeChain) ExecuteActions(_ context.Context, _ common.Hash, batch []bundle.BundledAction) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs++
	f.batches++
	if f.failBatches {
		f.status = domain.StatusFailed
		return f.tx(), nil
	}
	for _, item := range batch {
		f.executed[item.Proof.Index] = true
	}
	if !f.hasTargets && f.allExecuted() {
		f.status = domain.StatusCompleted
	}
	return f.tx(), nil
}

func (f *fakeChain) InitiateUpgrade(context.Context, common.Hash, *bundle.TargetBundle) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs++
	f.status = domain.StatusProxiesInitiated
	return f.tx(), nil
}

func (f *fakeChain) FinalizeUpgrade(context.Context, common.Hash, *bundle.TargetBundle) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs++
	f.status = domain.StatusCompleted
	return f.tx(), nil
}

func (f *fakeChain) EstimateBatch(_ context.Context, _ common.Hash, batch []bundle.BundledAction) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rpcEstimates++
	return uint64(len(batch)) * 50_000, nil
}

func (f *fakeChain) GasCeiling(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ceilingCalls++
	return f.ceiling, nil
}

func (f *fakeChain) AvailableFunds(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000_000), nil
}

func (f *fakeChain) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (f *fakeChain) CompletionTx(context.Context, common.Hash) (common.Hash, error) {
	return completionTx, nil
}

func (f *fakeChain) allExecuted() bool {
	for _, done := range f.executed {
		if !done {
			return false
		}
	}
	return true
}

func (f *fakeChain) tx() common.Hash {
	return crypto.Keccak256Hash([]byte(fmt.Sprintf("tx-%d", f.txs)))
}

type fakeReports struct {
	mu     sync.Mutex
	inputs []report.Input
	err    error
}

func (f *fakeReports) Generate(in report.Input) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.inputs = append(f.inputs, in)
	return in.Name + ".yaml", nil
}

type fakeMetrics struct {
	noopMetrics
	mu          sync.Mutex
	deployments []string
}

func (f *fakeMetrics) RecordDeployment(result string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deployments = append(f.deployments, result)
}

var errDial = errors.New("dial refused")
