package deployer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/compose-network/bundle-deployer/configs"
	"github.com/compose-network/bundle-deployer/internal/infra/filesystem"
	"github.com/compose-network/bundle-deployer/internal/metrics"
	"github.com/compose-network/bundle-deployer/internal/monitor"
	"github.com/compose-network/bundle-deployer/internal/report"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const deploymentFlag = "deployment"

var (
	PlanCMD = &cobra.Command{
		Use:   "plan",
		Short: "Build deployment bundles and print their IDs and roots",
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Info("starting plan command. Validating config")

			if err := configs.Values.Validate(); err != nil {
				return err
			}
			services, err := newServices(cmd, configs.Values, nil)
			if err != nil {
				return err
			}

			for _, s := range services {
				p, err := s.Plan()
				if err != nil {
					return err
				}
				printPlan(cmd, p)
			}
			return nil
		},
	}

	ExecuteCMD = &cobra.Command{
		Use:   "execute",
		Short: "Execute approved deployments through their manager contracts",
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Info("starting execute command. Validating config")

			if err := configs.Values.ValidateChain(true); err != nil {
				return err
			}

			return runWithMetrics(cmd, func(ctx context.Context, m *metrics.Metrics) error {
				services, err := newServices(cmd, configs.Values, m)
				if err != nil {
					return err
				}
				runner := NewRunner(DialConnector(configs.Values.RPCURL, configs.Values.PrivateKey), configs.Values.MaxParallel)
				return runner.RunAll(ctx, services, func(ctx context.Context, s *Service, c Chain) error {
					in, err := s.Execute(ctx, c)
					if err != nil {
						return err
					}
					cmd.Printf("%s: %s, %d batches, %d already executed\n",
						s.Name(), in.Result.Status, len(in.Result.Batches), in.Result.Skipped)
					return nil
				})
			})
		},
	}

	MonitorCMD = &cobra.Command{
		Use:   "monitor",
		Short: "Follow deployments until they complete",
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Info("starting monitor command. Validating config")

			if err := configs.Values.ValidateChain(false); err != nil {
				return err
			}

			return runWithMetrics(cmd, func(ctx context.Context, m *metrics.Metrics) error {
				services, err := newServices(cmd, configs.Values, m)
				if err != nil {
					return err
				}
				runner := NewRunner(DialConnector(configs.Values.RPCURL, ""), configs.Values.MaxParallel)
				return runner.RunAll(ctx, services, func(ctx context.Context, s *Service, c Chain) error {
					in, err := s.Monitor(ctx, c, func(e monitor.PhaseEvent) {
						cmd.Printf("%s: %s (action %d)\n", s.Name(), e.Phase, e.ActionIndex)
					})
					if err != nil {
						return err
					}
					cmd.Printf("%s: completed in %s\n", s.Name(), in.CompletionTx.Hex())
					return nil
				})
			})
		},
	}
)

func init() {
	for _, cmd := range []*cobra.Command{PlanCMD, ExecuteCMD, MonitorCMD} {
		cmd.Flags().StringSlice(deploymentFlag, nil, "Run only the named deployments")
	}
}

func newServices(cmd *cobra.Command, cfg configs.Config, m *metrics.Metrics) ([]*Service, error) {
	names, err := cmd.Flags().GetStringSlice(deploymentFlag)
	if err != nil {
		return nil, err
	}
	deployments, err := cfg.Select(names)
	if err != nil {
		return nil, err
	}

	fs := filesystem.NewOS()
	var reports ReportGenerator
	if cfg.ReportPath != "" {
		reports = report.NewGenerator(cfg.ReportPath, fs)
	}
	var metricer Metricer
	if m != nil {
		metricer = m
	}

	settings := SettingsFromConfig(cfg)
	services := make([]*Service, 0, len(deployments))
	for _, d := range deployments {
		services = append(services, NewService(d, settings, fs, reports, metricer))
	}
	return services, nil
}

// runWithMetrics runs fn while serving metrics when an address is configured.
func runWithMetrics(cmd *cobra.Command, fn func(ctx context.Context, m *metrics.Metrics) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	if configs.Values.MetricsAddr == "" {
		return fn(ctx, m)
	}

	serveCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(serveCtx)
	g.Go(func() error {
		return metrics.Serve(gctx, reg, configs.Values.MetricsAddr)
	})
	g.Go(func() error {
		defer stop()
		return fn(gctx, m)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	return nil
}

func printPlan(cmd *cobra.Command, p *Planned) {
	d := p.Deployment
	cmd.Printf("%s (%s)\n", p.Name, p.Project)
	cmd.Printf("  deployment id:  %s\n", d.ID.Hex())
	cmd.Printf("  action root:    %s\n", d.Actions.Root.Hex())
	cmd.Printf("  target root:    %s\n", d.Targets.Root.Hex())
	cmd.Printf("  actions:        %d\n", len(d.Actions.Actions))
	cmd.Printf("  targets:        %d\n", len(d.Targets.Targets))
	cmd.Printf("  immutable:      %d\n", d.NumImmutableContracts)
	for _, w := range p.Warnings {
		cmd.Printf("  warning: %s\n", w)
	}
}
