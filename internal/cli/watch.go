package cli

import (
	"github.com/spf13/cobra"

	appLog "taskcal/internal/log"
	"taskcal/internal/pipeline"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Export on the configured cron schedule until interrupted",
	Long: `Runs one export immediately, then re-exports on the "refresh" cron schedule
from the config file until SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	runner, err := pipeline.New(cfg)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	if _, err := runner.Run(ctx); err != nil {
		appLog.Error("initial export failed", err)
	}
	return runner.Schedule(ctx, cfg.RefreshCron, loc)
}
