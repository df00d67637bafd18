package main

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/compose-network/xdomain-relayer/configs"
	"github.com/compose-network/xdomain-relayer/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const appName = "xdomain-relayer"

var rootCmd = &cobra.Command{
	Use:           appName,
	Short:         "Cross-domain message relayer for an optimistic rollup",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := configs.LoadDefaults(viper.GetViper()); err != nil {
			return err
		}

		if path := viper.GetString(configFileKey); path != "" {
			viper.SetConfigFile(path)
		} else {
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")

			if execPath, err := os.Executable(); err == nil {
				viper.AddConfigPath(filepath.Dir(execPath))
			}
			viper.AddConfigPath(".")
			viper.AddConfigPath("./configs")
		}

		// Defaults come from the embedded example, so a missing file is fine.
		configErr := viper.MergeInConfig()
		var notFound viper.ConfigFileNotFoundError
		if configErr != nil && !errors.As(configErr, &notFound) {
			return errors.Join(configErr, errors.New("error reading config file"))
		}

		if err := viper.Unmarshal(&configs.Values); err != nil {
			return errors.Join(err, errors.New("unable to decode application config"))
		}

		logger.Initialize(logger.ParseLevel(configs.Values.Log.Level), configs.Values.Log.Format)
		if configErr == nil {
			slog.With("config_file", viper.ConfigFileUsed()).Debug("config file loaded")
		} else {
			slog.Debug("no config file found, relying on flags and defaults")
		}

		return nil
	},
}

func main() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(correlateCmd)
	rootCmd.AddCommand(awaitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(proveCmd)
	rootCmd.AddCommand(batchCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.With("err", err.Error()).Error("failed to execute root command")
		os.Exit(1)
	}
}
