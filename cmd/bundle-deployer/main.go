package main

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/compose-network/bundle-deployer/configs"
	"github.com/compose-network/bundle-deployer/internal/deployer"
	"github.com/compose-network/bundle-deployer/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const appName = "bundle-deployer"

var rootCmd = &cobra.Command{
	Use:          appName,
	Short:        "CLI for planning and executing bundled contract deployments",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger.Initialize(slog.LevelInfo)

		viper.SetConfigName("config")
		viper.SetConfigType("yaml")

		if execPath, err := os.Executable(); err == nil {
			execDir := filepath.Dir(execPath)
			viper.AddConfigPath(execDir)
		}
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")

		// Flags alone can carry everything except the deployment list
		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				slog.Debug("no config file found, will rely on flags and defaults")
			} else {
				const errMsg = "error reading config file"
				slog.With("err", err.Error()).Error(errMsg)
				return errors.Join(err, errors.New(errMsg))
			}
		} else {
			slog.With("config_file", viper.ConfigFileUsed()).Debug("config file loaded")
		}

		if err := viper.Unmarshal(&configs.Values); err != nil {
			const errMsg = "unable to decode application config"
			slog.With("err", err.Error()).Error(errMsg)
			return errors.Join(err, errors.New(errMsg))
		}

		level, err := logger.ParseLevel(configs.Values.LogLevel)
		if err != nil {
			return err
		}
		logger.Initialize(level)

		slog.With("deployments", len(configs.Values.Deployments)).Debug("configuration loaded")

		return nil
	},
}

func main() {
	if err := deployer.BindFlags(rootCmd); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(deployer.PlanCMD)
	rootCmd.AddCommand(deployer.ExecuteCMD)
	rootCmd.AddCommand(deployer.MonitorCMD)

	if err := rootCmd.Execute(); err != nil {
		slog.With("err", err.Error()).Error("failed to execute root command")
		os.Exit(1)
	}
}
