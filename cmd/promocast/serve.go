package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"promocast/internal/app"
	logx "promocast/pkg/logx"
)

func newServeCmd() *cobra.Command {
	var stopTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, scheduler and config watcher until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := app.New(cfgFile)
			if err != nil {
				return err
			}
			if err := a.Start(ctx); err != nil {
				_ = a.Close()
				return fmt.Errorf("start: %w", err)
			}

			reason := app.StopSignal
			select {
			case <-ctx.Done():
			case <-a.Done():
				if a.Err() != nil {
					reason = app.StopFatalError
				}
			}
			fatal := a.Err()
			if fatal != nil {
				a.Logger().Error("fatal error", logx.Err(fatal))
			}

			stopCtx, stop := context.WithTimeout(context.Background(), stopTimeout)
			defer stop()
			if err := a.Stop(stopCtx, reason); err != nil {
				return err
			}
			return fatal
		},
	}
	cmd.Flags().DurationVar(&stopTimeout, "stop-timeout", 15*time.Second, "upper bound for graceful shutdown")
	return cmd
}
