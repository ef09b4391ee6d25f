package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cashbook/internal/router"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the scheduler",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.cfg.JWT.Secret == "" {
		a.log.Warn("jwt.secret is empty, the API is not authenticated")
	}

	done := make(chan struct{})
	if a.cfg.Scheduler.Enabled {
		go func() {
			defer close(done)
			a.log.WithField("interval", a.cfg.Scheduler.Interval.String()).Info("scheduler started")
			if err := a.scheduler.Run(ctx, a.cfg.Scheduler.Interval); err != nil && !errors.Is(err, context.Canceled) {
				a.log.WithError(err).Error("scheduler stopped")
			}
		}()
	} else {
		close(done)
	}

	addr := fmt.Sprintf("%s:%d", a.cfg.Server.Address, a.cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.SetupRouter(a.cfg, a.deps()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.WithFields(logrus.Fields{"addr": addr}).Info("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		stop()
		<-done
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("run server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	<-done
	return err
}
