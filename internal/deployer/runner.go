package deployer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/compose-network/bundle-deployer/internal/chain"
	"github.com/compose-network/bundle-deployer/internal/logger"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

type (
	// Connector opens a manager client for one deployment. The returned func
	// releases it.
	Connector func(ctx context.Context, manager common.Address) (Chain, func(), error)

	// Task is one unit of work run against a deployment's manager.
	Task func(ctx context.Context, s *Service, c Chain) error

	// Runner runs independent deployments in parallel, each against its own
	// manager client.
	Runner struct {
		connect     Connector
		maxParallel int
		logger      *slog.Logger
	}
)

func NewRunner(connect Connector, maxParallel int) *Runner {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Runner{
		connect:     connect,
		maxParallel: maxParallel,
		logger:      logger.Named("runner"),
	}
}

// DialConnector connects to rpcURL once per deployment.
func DialConnector(rpcURL, privateKey string) Connector {
	return func(ctx context.Context, manager common.Address) (Chain, func(), error) {
		m, closeFn, err := chain.Dial(ctx, rpcURL, manager, privateKey)
		if err != nil {
			return nil, nil, err
		}
		return m, closeFn, nil
	}
}

// RunAll runs task for every service. A failing deployment does not stop the
// others; all failures are returned joined.
func (r *Runner) RunAll(ctx context.Context, services []*Service, task Task) error {
	var g errgroup.Group
	g.SetLimit(r.maxParallel)

	errs := make([]error, len(services))
	for i, s := range services {
		g.Go(func() error {
			errs[i] = r.run(ctx, s, task)
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		return err
	}
	r.logger.With("deployments", len(services)).Info("All deployments finished")
	return nil
}

func (r *Runner) run(ctx context.Context, s *Service, task Task) error {
	log := r.logger.With("deployment", s.Name())

	c, release, err := r.connect(ctx, s.manager())
	if err != nil {
		log.With("err", err.Error()).Error("Failed to connect to manager")
		return fmt.Errorf("%s: %w", s.Name(), err)
	}
	defer release()

	if err := task(ctx, s, c); err != nil {
		log.With("err", err.Error()).Error("Deployment failed")
		return fmt.Errorf("%s: %w", s.Name(), err)
	}
	return nil
}
