package deployer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/compose-network/bundle-deployer/configs"
	"github.com/compose-network/bundle-deployer/internal/actions"
	"github.com/compose-network/bundle-deployer/internal/bundle"
	"github.com/compose-network/bundle-deployer/internal/domain"
	"github.com/compose-network/bundle-deployer/internal/executor"
	"github.com/compose-network/bundle-deployer/internal/infra/filesystem"
	"github.com/compose-network/bundle-deployer/internal/monitor"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

const managerHex = "0x00000000000000000000000000000000000000c0"

func testDeployment(name, projectFile string) configs.Deployment {
	return configs.Deployment{
		Name:           name,
		ProjectFile:    projectFile,
		ArtifactsDir:   "../artifacts/testdata",
		ManagerAddress: managerHex,
		ArtifactURI:    "ipfs://demo",
	}
}

func testSettings() Settings {
	return Settings{
		GasCeiling:        1_000_000,
		GasEstimator:      configs.GasEstimatorStatic,
		SetStorageGas:     60_000,
		DeployOverheadGas: 40_000,
		FinalizeGas:       100_000,
		PollInterval:      time.Millisecond,
	}
}

func TestPlan(t *testing.T) {
	s := NewService(testDeployment("demo", "testdata/project.yaml"), testSettings(), filesystem.NewOS(), nil, nil)

	p, err := s.Plan()
	require.NoError(t, err)

	require.Equal(t, "demo", p.Name)
	require.Equal(t, "demo", p.Project)
	require.Equal(t, common.HexToAddress(managerHex), p.Manager)
	require.Equal(t, 2, p.Plan.Count(actions.ActionDeployContract))
	require.Equal(t, 2, p.Plan.Count(actions.ActionSetStorage))
	require.Len(t, p.Deployment.Targets.Targets, 1)
	require.Equal(t, uint64(1), p.Deployment.NumImmutableContracts)
	require.Equal(t, "ipfs://demo", p.Deployment.ArtifactURI)

	target := p.Deployment.Targets.Targets[0].Target
	require.Equal(t, "demo", target.ProjectName)
	require.Equal(t, "Counter", target.ReferenceName)
	require.Equal(t, common.HexToAddress("0xe1"), target.Address)

	for _, item := range p.Deployment.Actions.Actions {
		require.True(t, bundle.VerifyProof(item.Leaf, item.Proof, p.Deployment.Actions.Root))
	}

	again, err := s.Plan()
	require.NoError(t, err)
	require.Equal(t, p.Deployment.ID, again.Deployment.ID)
}

func TestPlanProjectNameOverride(t *testing.T) {
	base := NewService(testDeployment("demo", "testdata/project.yaml"), testSettings(), filesystem.NewOS(), nil, nil)
	d := testDeployment("demo", "testdata/project.yaml")
	d.ProjectName = "renamed"
	renamed := NewService(d, testSettings(), filesystem.NewOS(), nil, nil)

	p1, err := base.Plan()
	require.NoError(t, err)
	p2, err := renamed.Plan()
	require.NoError(t, err)

	require.Equal(t, "renamed", p2.Project)
	require.Equal(t, "renamed", p2.Deployment.Targets.Targets[0].Target.ProjectName)
	require.NotEqual(t, p1.Deployment.Targets.Root, p2.Deployment.Targets.Root)
	require.NotEqual(t, p1.Deployment.ID, p2.Deployment.ID)
}

func TestPlanReportsEveryProblem(t *testing.T) {
	s := NewService(testDeployment("broken", "testdata/broken.yaml"), testSettings(), filesystem.NewOS(), nil, nil)

	_, err := s.Plan()
	require.Error(t, err)
	require.ErrorContains(t, err, "failed to load artifact Nope")
	require.ErrorContains(t, err, "proxy has no address and no proxy creation code is configured")
}

func TestPlanMissingProject(t *testing.T) {
	s := NewService(testDeployment("gone", "testdata/gone.yaml"), testSettings(), filesystem.NewOS(), nil, nil)

	_, err := s.Plan()
	require.ErrorContains(t, err, "failed to read project file")
}

func TestExecute(t *testing.T) {
	reports := &fakeReports{}
	m := &fakeMetrics{}
	s := NewService(testDeployment("demo", "testdata/project.yaml"), testSettings(), filesystem.NewOS(), reports, m)

	p, err := s.Plan()
	require.NoError(t, err)
	chain := newFakeChain(p.Deployment, domain.StatusApproved)

	in, err := s.Execute(context.Background(), chain)
	require.NoError(t, err)

	require.Equal(t, domain.StatusCompleted, in.Result.Status)
	require.NotEmpty(t, in.Result.Batches)
	require.NotEqual(t, common.Hash{}, in.Result.InitiateTx)
	require.NotEqual(t, common.Hash{}, in.Result.FinalizeTx)
	require.Equal(t, completionTx, in.CompletionTx)
	require.True(t, chain.allExecuted())
	require.Zero(t, chain.ceilingCalls)
	require.Zero(t, chain.rpcEstimates)

	require.Len(t, reports.inputs, 1)
	require.Equal(t, p.Deployment.ID, reports.inputs[0].Deployment.ID)
	require.Equal(t, []string{"completed"}, m.deployments)
}

func TestExecuteGasSettings(t *testing.T) {
	tests := []struct {
		name             string
		mutate           func(*Settings)
		wantCeilingCalls int
		wantRPCEstimates bool
	}{
		{
			name:   "configured ceiling and static estimates",
			mutate: func(*Settings) {},
		},
		{
			name:             "derived ceiling",
			mutate:           func(s *Settings) { s.GasCeiling = 0 },
			wantCeilingCalls: 1,
		},
		{
			name:             "rpc estimates",
			mutate:           func(s *Settings) { s.GasEstimator = configs.GasEstimatorRPC },
			wantRPCEstimates: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := testSettings()
			tt.mutate(&settings)
			s := NewService(testDeployment("demo", "testdata/project.yaml"), settings, filesystem.NewOS(), nil, nil)

			p, err := s.Plan()
			require.NoError(t, err)
			chain := newFakeChain(p.Deployment, domain.StatusApproved)

			in, err := s.Execute(context.Background(), chain)
			require.NoError(t, err)
			require.Equal(t, domain.StatusCompleted, in.Result.Status)
			require.Equal(t, tt.wantCeilingCalls, chain.ceilingCalls)
			require.Equal(t, tt.wantRPCEstimates, chain.rpcEstimates > 0)
		})
	}
}

func TestExecuteFailureStillReports(t *testing.T) {
	reports := &fakeReports{}
	m := &fakeMetrics{}
	s := NewService(testDeployment("demo", "testdata/project.yaml"), testSettings(), filesystem.NewOS(), reports, m)

	p, err := s.Plan()
	require.NoError(t, err)
	chain := newFakeChain(p.Deployment, domain.StatusApproved)
	chain.failBatches = true

	in, err := s.Execute(context.Background(), chain)
	require.Error(t, err)

	var revert *domain.ExecutionRevertError
	require.ErrorAs(t, err, &revert)
	require.Equal(t, 1, chain.batches)
	require.NotNil(t, in)
	require.Len(t, reports.inputs, 1)
	require.Equal(t, []string{"reverted"}, m.deployments)
}

func TestExecuteInvalidProject(t *testing.T) {
	m := &fakeMetrics{}
	s := NewService(testDeployment("broken", "testdata/broken.yaml"), testSettings(), filesystem.NewOS(), nil, m)

	_, err := s.Execute(context.Background(), &fakeChain{})
	require.Error(t, err)
	require.Equal(t, []string{"invalid"}, m.deployments)
}

func TestMonitor(t *testing.T) {
	reports := &fakeReports{}
	s := NewService(testDeployment("demo", "testdata/project.yaml"), testSettings(), filesystem.NewOS(), reports, nil)

	p, err := s.Plan()
	require.NoError(t, err)
	chain := newFakeChain(p.Deployment, domain.StatusCompleted)

	var events []monitor.PhaseEvent
	in, err := s.Monitor(context.Background(), chain, func(e monitor.PhaseEvent) { events = append(events, e) })
	require.NoError(t, err)
	require.Equal(t, completionTx, in.CompletionTx)
	require.Empty(t, events)
	require.Len(t, reports.inputs, 1)
}

func TestMonitorCancelled(t *testing.T) {
	s := NewService(testDeployment("demo", "testdata/project.yaml"), testSettings(), filesystem.NewOS(), nil, nil)

	p, err := s.Plan()
	require.NoError(t, err)
	chain := newFakeChain(p.Deployment, domain.StatusCancelled)

	_, err = s.Monitor(context.Background(), chain, nil)
	require.ErrorIs(t, err, domain.ErrCancelled)
}

func TestResultLabel(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "completed"},
		{domain.ErrCancelled, "cancelled"},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), "cancelled"},
		{&domain.InsufficientFundsError{}, "insufficient_funds"},
		{&domain.ExecutionRevertError{}, "reverted"},
		{&executor.BatchTooLargeError{}, "batch_too_large"},
		{&domain.NetworkError{Op: "call", Err: errDial}, "network_error"},
		{errors.New("boom"), "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			require.Equal(t, tt.want, resultLabel(tt.err))
		})
	}
}
