package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"time"

	"github.com/zynqcloud/photo-storage/internal/cleanup"
	"github.com/zynqcloud/photo-storage/internal/handler"
	"github.com/zynqcloud/photo-storage/internal/store"
)

// serve runs the HTTP service until one of shutdownSignals arrives.
func (a *app) serve(parent context.Context) error {
	cfg, logger := a.cfg, a.logger

	if cfg.Server.ServiceToken == "" {
		logger.Warn("PHOTO_SERVER_SERVICE_TOKEN is not set, all requests will be accepted (dev mode only)")
	}

	st, err := a.openStore()
	if err != nil {
		return err
	}
	if err := st.CreateDirectory(st.Path(), true, store.DefaultDirMode); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, shutdownSignals...)
	defer stop()

	cleanup.RunPeriodic(ctx, st.Fs(), cfg.Storage.Spool(), cfg.Cleanup.TTL, cfg.Cleanup.Interval, a.libLogger("cleanup"))

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: handler.New(cfg, st, logger),
		// Large timeouts accommodate slow disks and large originals.
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("photo storage starting",
			"port", cfg.Server.Port,
			"save_dir", st.Path(),
			"base_url", cfg.Storage.BaseURL,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received, draining connections")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
		return err
	}
	logger.Info("photo storage stopped")
	return nil
}
