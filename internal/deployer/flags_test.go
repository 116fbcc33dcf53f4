package deployer

import (
	"testing"

	"github.com/compose-network/bundle-deployer/configs"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func TestBindFlagsUsesEmbeddedDefaults(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	require.NoError(t, BindFlags(cmd))

	def := configs.MustDefaultConfig()
	flags := cmd.PersistentFlags()

	tests := []struct {
		flag string
		want string
	}{
		{"log-level", def.LogLevel},
		{"poll-interval", def.PollInterval.String()},
		{"gas-estimator", string(def.GasEstimator)},
		{"report-path", def.ReportPath},
		{"set-storage-gas", "60000"},
		{"finalize-gas", "150000"},
		{"max-parallel", "4"},
	}
	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			f := flags.Lookup(tt.flag)
			require.NotNil(t, f)
			require.Equal(t, tt.want, f.DefValue)
		})
	}
}
