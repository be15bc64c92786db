package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ldbc/driver/internal/common/app"
	"github.com/ldbc/driver/internal/driver"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Executes the configured workload and reports the results",
		RunE:  runBenchmark,
	}
	return cmd
}

func runBenchmark(_ *cobra.Command, _ []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	_, err = driver.Run(app.CreateContextWithShutdown(), config)
	return err
}
