package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"taskcal/internal/pipeline"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Build the calendar once and publish it to every enabled sink",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	runner, err := pipeline.New(cfg)
	if err != nil {
		return err
	}

	res, err := runner.Run(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d events from %d tasks\n", res.Events, res.Tasks)
	return nil
}
