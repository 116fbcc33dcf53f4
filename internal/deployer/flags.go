package deployer

import (
	"github.com/compose-network/bundle-deployer/configs"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// flagDef defines a command-line flag with its configuration.
type (
	flagType interface {
		string | int | bool
	}

	flagDef[T flagType] struct {
		name         string
		viperKey     string
		defaultValue T
		description  string
	}
)

var (
	defaults = configs.MustDefaultConfig()

	stringFlags = []flagDef[string]{
		{"log-level", "log-level", defaults.LogLevel, "Log level (debug, info, warn, error)"},

		// Chain
		{"rpc-url", "rpc-url", defaults.RPCURL, "RPC URL of the chain the manager lives on"},
		{"private-key", "private-key", defaults.PrivateKey, "Private key of the executor account"},

		// Execution
		{"poll-interval", "poll-interval", defaults.PollInterval.String(), "Interval between deployment state polls"},
		{"gas-estimator", "gas-estimator", string(defaults.GasEstimator), "Batch gas estimator (static or rpc)"},

		// Outputs
		{"metrics-addr", "metrics-addr", defaults.MetricsAddr, "Address to serve /metrics on, empty disables it"},
		{"report-path", "report-path", defaults.ReportPath, "Directory deployment reports are written to"},
	}

	intFlags = []flagDef[int]{
		{"gas-ceiling", "gas-ceiling", int(defaults.GasCeiling), "Gas ceiling per batch, 0 derives it from the block gas limit"},
		{"set-storage-gas", "set-storage-gas", int(defaults.SetStorageGas), "Estimated gas per storage write"},
		{"deploy-overhead-gas", "deploy-overhead-gas", int(defaults.DeployOverheadGas), "Gas added to each contract creation estimate"},
		{"finalize-gas", "finalize-gas", int(defaults.FinalizeGas), "Estimated gas of the upgrade finalize transaction"},
		{"max-parallel", "max-parallel", defaults.MaxParallel, "Maximum number of deployments run at once"},
	}

	boolFlags = []flagDef[bool]{}
)

// BindFlags declares the configuration flags on cmd, shared by its
// subcommands, and binds them to viper keys.
func BindFlags(cmd *cobra.Command) error {
	if err := declareFlags(cmd, stringFlags); err != nil {
		return err
	}
	if err := declareFlags(cmd, intFlags); err != nil {
		return err
	}
	return declareFlags(cmd, boolFlags)
}

// declareFlags declares multiple flags and binds them to viper configuration keys.
func declareFlags[T flagType](cmd *cobra.Command, flags []flagDef[T]) error {
	for _, flag := range flags {
		if err := declareFlag(cmd, flag.name, flag.viperKey, flag.defaultValue, flag.description); err != nil {
			return err
		}
	}
	return nil
}

// declareFlag declares a single persistent flag and binds it to a viper
// configuration key. The type parameter T determines the flag type.
func declareFlag[T flagType](cmd *cobra.Command, flagName, viperKey string, defaultValue T, description string) error {
	var zero T
	switch any(zero).(type) {
	case string:
		cmd.PersistentFlags().String(flagName, any(defaultValue).(string), description)
	case int:
		cmd.PersistentFlags().Int(flagName, any(defaultValue).(int), description)
	case bool:
		cmd.PersistentFlags().Bool(flagName, any(defaultValue).(bool), description)
	}
	return viper.BindPFlag(viperKey, cmd.PersistentFlags().Lookup(flagName))
}
