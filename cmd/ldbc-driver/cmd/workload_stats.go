package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ldbc/driver/internal/driver"
)

func workloadStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workload-stats",
		Short: "Prints statistics of the configured workload without executing it",
		RunE:  printWorkloadStatistics,
	}
	return cmd
}

func printWorkloadStatistics(cmd *cobra.Command, _ []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	stats, err := driver.CalculateWorkloadStatistics(config)
	if err != nil {
		return err
	}
	stats.Print(cmd.OutOrStdout())
	return nil
}
