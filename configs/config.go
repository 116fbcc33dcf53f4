package configs

import (
	"errors"
	"fmt"
	"time"

	"github.com/compose-network/bundle-deployer/internal/logger"
	"github.com/ethereum/go-ethereum/common"
)

var Values Config

type (
	GasEstimatorName string

	Config struct {
		LogLevel   string `mapstructure:"log-level"`
		RPCURL     string `mapstructure:"rpc-url"`
		PrivateKey string `mapstructure:"private-key"`

		PollInterval time.Duration `mapstructure:"poll-interval"`
		// GasCeiling of zero is derived from the latest block gas limit.
		GasCeiling        uint64           `mapstructure:"gas-ceiling"`
		GasEstimator      GasEstimatorName `mapstructure:"gas-estimator"`
		SetStorageGas     uint64           `mapstructure:"set-storage-gas"`
		DeployOverheadGas uint64           `mapstructure:"deploy-overhead-gas"`
		FinalizeGas       uint64           `mapstructure:"finalize-gas"`

		MetricsAddr string `mapstructure:"metrics-addr"`
		ReportPath  string `mapstructure:"report-path"`
		// MaxParallel bounds how many deployments run at once.
		MaxParallel int `mapstructure:"max-parallel"`

		Deployments []Deployment `mapstructure:"deployments"`
	}

	Deployment struct {
		Name           string `mapstructure:"name"`
		ProjectFile    string `mapstructure:"project-file"`
		ArtifactsDir   string `mapstructure:"artifacts-dir"`
		ManagerAddress string `mapstructure:"manager-address"`
		// ProjectName overrides the name declared in the project file.
		ProjectName string `mapstructure:"project-name"`
		ArtifactURI string `mapstructure:"artifact-uri"`
		// ProxyArtifact is needed only when the project declares proxies
		// without an address.
		ProxyArtifact string `mapstructure:"proxy-artifact"`
	}
)

const (
	GasEstimatorStatic GasEstimatorName = "static"
	GasEstimatorRPC    GasEstimatorName = "rpc"
)

// Validate checks everything building a plan needs.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log-level: %w", err))
	}
	if c.PollInterval < 0 {
		errs = append(errs, errors.New("poll-interval must not be negative"))
	}
	switch c.GasEstimator {
	case GasEstimatorStatic, GasEstimatorRPC:
	default:
		errs = append(errs, fmt.Errorf("gas-estimator must be either 'static' or 'rpc', got '%s'", c.GasEstimator))
	}
	if c.MaxParallel < 1 {
		errs = append(errs, errors.New("max-parallel must be at least 1"))
	}
	if c.SetStorageGas == 0 {
		errs = append(errs, errors.New("set-storage-gas is required"))
	}

	if len(c.Deployments) == 0 {
		errs = append(errs, errors.New("at least one deployment is required"))
	}
	seen := make(map[string]bool, len(c.Deployments))
	for i, d := range c.Deployments {
		scope := fmt.Sprintf("deployments[%d]", i)
		if d.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", scope))
		} else if seen[d.Name] {
			errs = append(errs, fmt.Errorf("%s.name '%s' is used more than once", scope, d.Name))
		}
		seen[d.Name] = true

		if d.ProjectFile == "" {
			errs = append(errs, fmt.Errorf("%s.project-file is required", scope))
		}
		if d.ArtifactsDir == "" {
			errs = append(errs, fmt.Errorf("%s.artifacts-dir is required", scope))
		}
		if d.ManagerAddress == "" {
			errs = append(errs, fmt.Errorf("%s.manager-address is required", scope))
		} else if !common.IsHexAddress(d.ManagerAddress) {
			errs = append(errs, fmt.Errorf("%s.manager-address '%s' is not an address", scope, d.ManagerAddress))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}

	return nil
}

// ValidateChain additionally requires a node to talk to, and a key when
// transactions are sent.
func (c *Config) ValidateChain(withKey bool) error {
	var errs []error
	if err := c.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.RPCURL == "" {
		errs = append(errs, errors.New("rpc-url is required"))
	}
	if withKey && c.PrivateKey == "" {
		errs = append(errs, errors.New("private-key is required"))
	}
	return errors.Join(errs...)
}

// Select returns the deployments named in names, or all of them when names is
// empty.
func (c *Config) Select(names []string) ([]Deployment, error) {
	if len(names) == 0 {
		return c.Deployments, nil
	}

	byName := make(map[string]Deployment, len(c.Deployments))
	for _, d := range c.Deployments {
		byName[d.Name] = d
	}

	out := make([]Deployment, 0, len(names))
	for _, name := range names {
		d, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("no deployment named '%s' in configuration", name)
		}
		out = append(out, d)
	}
	return out, nil
}
