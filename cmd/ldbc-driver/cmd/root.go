package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ldbc/driver/internal/common"
	commonconfig "github.com/ldbc/driver/internal/common/config"
	"github.com/ldbc/driver/internal/driver/configuration"
)

const (
	CustomConfigLocation string = "config"
	defaultConfigPath    string = "./config/ldbc-driver"
)

func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "ldbc-driver",
		SilenceUsage: true,
		Short:        "Runs benchmark workloads against a database",
	}

	cmd.PersistentFlags().StringSlice(
		CustomConfigLocation,
		[]string{},
		"Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)")
	if err := viper.BindPFlag(CustomConfigLocation, cmd.PersistentFlags().Lookup(CustomConfigLocation)); err != nil {
		panic(err)
	}

	cmd.AddCommand(
		runCmd(),
		workloadStatsCmd(),
		validateWorkloadCmd(),
		validateDbCmd(),
	)

	return cmd
}

func loadConfig() (configuration.DriverConfiguration, error) {
	var config configuration.DriverConfiguration
	userSpecifiedConfigs := viper.GetStringSlice(CustomConfigLocation)

	if _, err := common.LoadConfig(&config, defaultConfigPath, userSpecifiedConfigs); err != nil {
		return config, err
	}

	config.ApplyDefaults()
	err := config.Validate()
	if err != nil {
		commonconfig.LogValidationErrors(err)
	}
	return config, err
}
