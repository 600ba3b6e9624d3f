package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LucaNori/arrranger/internal/api"
	"github.com/LucaNori/arrranger/internal/scheduler"
	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and operational HTTP server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	a.logger.Info("Starting arrranger")

	// Runs abandoned by a previous process stay visible, never auto-resumed
	if abandoned, err := a.db.UnsealedRuns(); err == nil && len(abandoned) > 0 {
		a.logger.WithField("count", len(abandoned)).Warn("Found incomplete runs from a previous process")
	}

	a.probeInstances()

	sched := scheduler.NewScheduler(a.db, a.backupCtrl, a.syncCtrl, a.logger)
	for _, entry := range a.defs.Entries {
		if err := sched.Add(entry); err != nil {
			return err
		}
	}
	sched.Start()
	defer sched.Stop()

	server := api.NewServer(a.cfg.ServerPort, a.db, sched, a.logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverErrChan := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil {
			serverErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	a.logger.Info("arrranger is running")

	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		a.logger.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
		if err := server.Shutdown(context.Background()); err != nil {
			a.logger.WithError(err).Error("Error during server shutdown")
		}
	}

	a.logger.Info("arrranger stopped")
	return nil
}

// probeInstances checks each configured instance is reachable before the
// scheduler starts firing. Retries live here, not in the client; an
// instance that stays unreachable is a warning, not a startup failure.
func (a *app) probeInstances() {
	for _, inst := range a.defs.Registry {
		client := a.clients(inst)
		policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)

		err := backoff.Retry(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return client.Ping(ctx)
		}, policy)

		if err != nil {
			a.logger.WithField("instance", inst.Name).WithError(err).Warn("Instance unreachable")
		} else {
			a.logger.WithField("instance", inst.Name).Info("Instance reachable")
		}
	}
}
