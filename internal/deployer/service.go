// Package deployer turns a configured deployment into a bundle and drives it
// through the manager contract.
package deployer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/compose-network/bundle-deployer/configs"
	"github.com/compose-network/bundle-deployer/internal/actions"
	"github.com/compose-network/bundle-deployer/internal/artifacts"
	"github.com/compose-network/bundle-deployer/internal/bundle"
	"github.com/compose-network/bundle-deployer/internal/diagnostics"
	"github.com/compose-network/bundle-deployer/internal/domain"
	"github.com/compose-network/bundle-deployer/internal/executor"
	"github.com/compose-network/bundle-deployer/internal/infra/filesystem"
	"github.com/compose-network/bundle-deployer/internal/logger"
	"github.com/compose-network/bundle-deployer/internal/monitor"
	"github.com/compose-network/bundle-deployer/internal/project"
	"github.com/compose-network/bundle-deployer/internal/report"
	"github.com/ethereum/go-ethereum/common"
)

type (
	// Chain is everything a run needs from the manager contract.
	Chain interface {
		executor.Manager
		monitor.Chain
		EstimateBatch(ctx context.Context, id common.Hash, batch []bundle.BundledAction) (uint64, error)
		GasCeiling(ctx context.Context) (uint64, error)
	}

	ArtifactProvider interface {
		Load(name string) (*artifacts.Artifact, error)
	}

	ReportGenerator interface {
		Generate(in report.Input) (string, error)
	}

	Metricer interface {
		executor.Metricer
		monitor.Metricer
		RecordDeployment(result string)
	}

	Settings struct {
		GasCeiling        uint64
		GasEstimator      configs.GasEstimatorName
		SetStorageGas     uint64
		DeployOverheadGas uint64
		FinalizeGas       uint64
		PollInterval      time.Duration
	}

	// Planned is a deployment ready to be proposed or executed.
	Planned struct {
		Name       string
		Project    string
		Manager    common.Address
		Plan       *actions.Plan
		Deployment *bundle.Deployment
		Warnings   []string
	}

	Service struct {
		deployment configs.Deployment
		settings   Settings
		reader     filesystem.Reader
		artifacts  ArtifactProvider
		reports    ReportGenerator
		metrics    Metricer
		logger     *slog.Logger
	}
)

// SettingsFromConfig picks the run settings out of the application config.
func SettingsFromConfig(c configs.Config) Settings {
	return Settings{
		GasCeiling:        c.GasCeiling,
		GasEstimator:      c.GasEstimator,
		SetStorageGas:     c.SetStorageGas,
		DeployOverheadGas: c.DeployOverheadGas,
		FinalizeGas:       c.FinalizeGas,
		PollInterval:      c.PollInterval,
	}
}

// NewService reads artifacts from the deployment's artifacts dir. reports and
// metrics may be nil.
func NewService(
	deployment configs.Deployment,
	settings Settings,
	reader filesystem.Reader,
	reports ReportGenerator,
	metrics Metricer,
) *Service {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Service{
		deployment: deployment,
		settings:   settings,
		reader:     reader,
		artifacts:  artifacts.NewFileProvider(deployment.ArtifactsDir, reader),
		reports:    reports,
		metrics:    metrics,
		logger:     logger.Named("deployer").With("deployment", deployment.Name),
	}
}

func (s *Service) Name() string { return s.deployment.Name }

func (s *Service) manager() common.Address {
	return common.HexToAddress(s.deployment.ManagerAddress)
}

// Plan loads the project and its artifacts and builds the bundle. Every
// problem found on the way is reported, not only the first.
func (s *Service) Plan() (*Planned, error) {
	proj, err := project.Load(s.deployment.ProjectFile, s.reader)
	if err != nil {
		return nil, err
	}
	if s.deployment.ProjectName != "" {
		proj.Name = s.deployment.ProjectName
	}

	diags := diagnostics.New()
	proj.Validate(diags)
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid project %s: %w", s.deployment.ProjectFile, diags.Err())
	}

	manager := s.manager()
	contracts := s.resolveContracts(proj.ContractList(), diags)
	proxyInitCode, proxyGas := s.proxyCode(manager, diags)

	plan := actions.NewBuilder(manager, proj.Name, proxyInitCode, proxyGas).Build(contracts, diags)
	for _, warning := range diags.Warnings() {
		s.logger.With("warning", warning).Warn("Deployment plan warning")
	}
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to build deployment %s: %w", s.deployment.Name, diags.Err())
	}

	d, err := bundle.Make(plan, s.deployment.ArtifactURI)
	if err != nil {
		return nil, fmt.Errorf("failed to bundle deployment %s: %w", s.deployment.Name, err)
	}

	s.logger.
		With("deployment_id", d.ID.Hex()).
		With("action_root", d.Actions.Root.Hex()).
		With("target_root", d.Targets.Root.Hex()).
		With("actions", len(d.Actions.Actions)).
		With("targets", len(d.Targets.Targets)).
		Info("Deployment planned")

	return &Planned{
		Name:       s.deployment.Name,
		Project:    proj.Name,
		Manager:    manager,
		Plan:       plan,
		Deployment: d,
		Warnings:   diags.Warnings(),
	}, nil
}

func (s *Service) resolveContracts(list []project.Contract, diags *diagnostics.Diagnostics) []actions.Contract {
	out := make([]actions.Contract, 0, len(list))
	for _, c := range list {
		scope := "contracts." + c.ReferenceName

		artifact, err := s.artifacts.Load(c.Artifact)
		if err != nil {
			diags.Add(scope, err)
			continue
		}
		initCode, err := artifact.InitCode(c.ConstructorArgs)
		if err != nil {
			diags.Add(scope, err)
			continue
		}

		var address common.Address
		if c.Address != "" {
			address = common.HexToAddress(c.Address)
		}
		out = append(out, actions.Contract{
			ReferenceName: c.ReferenceName,
			Kind:          actions.Kind(c.Kind),
			Address:       address,
			Salt:          c.Salt,
			InitCode:      initCode,
			DeployGas:     artifact.CreationGas,
			Layout:        artifact.Layout,
			Variables:     c.Variables,
		})
	}
	return out
}

// proxyCode loads the proxy artifact. Its constructor receives the manager
// address when it takes one argument.
func (s *Service) proxyCode(manager common.Address, diags *diagnostics.Diagnostics) ([]byte, uint64) {
	if s.deployment.ProxyArtifact == "" {
		return nil, 0
	}

	artifact, err := s.artifacts.Load(s.deployment.ProxyArtifact)
	if err != nil {
		diags.Add("proxy-artifact", err)
		return nil, 0
	}

	var args []any
	if len(artifact.ABI.Constructor.Inputs) == 1 {
		args = []any{manager.Hex()}
	}
	initCode, err := artifact.InitCode(args)
	if err != nil {
		diags.Add("proxy-artifact", err)
		return nil, 0
	}
	return initCode, artifact.CreationGas
}

func (s *Service) estimators(chain Chain, p *Planned) (executor.GasEstimator, *executor.StaticGasEstimator) {
	static := &executor.StaticGasEstimator{
		DeployGas:      p.Plan.DeployGas,
		DeployOverhead: s.settings.DeployOverheadGas,
		SetStorageGas:  s.settings.SetStorageGas,
	}
	if s.settings.GasEstimator == configs.GasEstimatorRPC {
		return chain, static
	}
	return static, static
}

func (s *Service) gasCeiling(ctx context.Context, chain Chain) (uint64, error) {
	if s.settings.GasCeiling > 0 {
		return s.settings.GasCeiling, nil
	}
	ceiling, err := chain.GasCeiling(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to derive gas ceiling: %w", err)
	}
	return ceiling, nil
}

// Execute submits every pending action of the planned deployment, then writes
// the report. A report is written for failed runs too.
func (s *Service) Execute(ctx context.Context, chain Chain) (*report.Input, error) {
	p, err := s.Plan()
	if err != nil {
		s.metrics.RecordDeployment("invalid")
		return nil, err
	}

	ceiling, err := s.gasCeiling(ctx, chain)
	if err != nil {
		s.metrics.RecordDeployment(resultLabel(err))
		return nil, err
	}
	estimator, _ := s.estimators(chain, p)

	in := s.reportInput(p)
	result, runErr := executor.NewExecutor(chain, estimator, ceiling, s.metrics).Execute(ctx, p.Deployment)
	in.Result = result

	if runErr == nil && result.Status == domain.StatusCompleted {
		if in.CompletionTx, err = chain.CompletionTx(ctx, p.Deployment.ID); err != nil {
			s.logger.With("err", err.Error()).Warn("Could not find completion transaction")
		}
	}

	s.metrics.RecordDeployment(resultLabel(runErr))
	s.writeReport(in)

	if runErr != nil {
		return in, fmt.Errorf("deployment %s failed: %w", s.deployment.Name, runErr)
	}
	return in, nil
}

// Monitor watches a deployment someone else executes until it completes.
func (s *Service) Monitor(ctx context.Context, chain Chain, onPhase func(monitor.PhaseEvent)) (*report.Input, error) {
	p, err := s.Plan()
	if err != nil {
		return nil, err
	}
	_, static := s.estimators(chain, p)

	m := monitor.NewMonitor(chain, static, monitor.Config{
		PollInterval: s.settings.PollInterval,
		FinalizeGas:  s.settings.FinalizeGas,
		OnPhase:      onPhase,
	}, s.metrics)

	in := s.reportInput(p)
	tx, runErr := m.Run(ctx, p.Deployment)
	in.CompletionTx = tx

	s.metrics.RecordDeployment(resultLabel(runErr))
	if runErr != nil {
		return in, fmt.Errorf("monitoring %s failed: %w", s.deployment.Name, runErr)
	}
	s.writeReport(in)
	return in, nil
}

func (s *Service) reportInput(p *Planned) *report.Input {
	return &report.Input{
		Name:       p.Name,
		Project:    p.Project,
		Manager:    p.Manager,
		Deployment: p.Deployment,
	}
}

func (s *Service) writeReport(in *report.Input) {
	if s.reports == nil {
		return
	}
	path, err := s.reports.Generate(*in)
	if err != nil {
		s.logger.With("err", err.Error()).Error("Failed to write deployment report")
		return
	}
	s.logger.With("path", path).Info("Deployment report written")
}

func resultLabel(err error) string {
	var (
		funds  *domain.InsufficientFundsError
		revert *domain.ExecutionRevertError
		size   *executor.BatchTooLargeError
		netErr *domain.NetworkError
	)
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, domain.ErrCancelled), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.As(err, &funds):
		return "insufficient_funds"
	case errors.As(err, &revert):
		return "reverted"
	case errors.As(err, &size):
		return "batch_too_large"
	case errors.As(err, &netErr):
		return "network_error"
	default:
		return "failed"
	}
}

type noopMetrics struct{}

func (noopMetrics) RecordBatch(string, int, uint64) {}
func (noopMetrics) RecordEstimate()                 {}
func (noopMetrics) RecordUpgradeStep(string)        {}
func (noopMetrics) RecordPhase(string)              {}
func (noopMetrics) RecordFundingShortfall()         {}
func (noopMetrics) RecordDeployment(string)         {}
