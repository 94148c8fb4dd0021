package cli

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	appLog "taskcal/internal/log"
	"taskcal/internal/pipeline"
	"taskcal/internal/web"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the calendar over HTTP and export on schedule",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "HTTP listen address (overrides config if set)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Listen = listenAddr
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

	scheduleDone := make(chan error, 1)
	go func() { scheduleDone <- runner.Schedule(ctx, cfg.RefreshCron, loc) }()

	err = web.NewServer(cfg, runner).ListenAndServe(ctx)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	// The server can fail before ctx is done, e.g. when the port is taken.
	cancel()
	return errors.Join(err, <-scheduleDone)
}
