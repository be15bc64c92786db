package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ldbc/driver/internal/common/app"
	"github.com/ldbc/driver/internal/driver"
)

func validateWorkloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate-workload",
		Short: "Checks the configured workload is well formed and supported by the configured database",
		RunE:  validateWorkload,
	}
	return cmd
}

func validateWorkload(cmd *cobra.Command, _ []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	result, err := driver.ValidateWorkload(config)
	if result != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Checked %d operations, found %d violations\n", result.OperationCount, result.ViolationCount)
	}
	return err
}

func validateDbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate-db",
		Short: "Executes each operation type once against the configured database and checks the results",
		RunE:  validateDb,
	}
	return cmd
}

func validateDb(cmd *cobra.Command, _ []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	result, err := driver.ValidateDb(app.CreateContextWithShutdown(), config)
	if result != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Executed %d operations, %d failed\n", result.Executed, result.Failed)
	}
	return err
}
