package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/app"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/pkg/utilities"
)

func main() {
	// .env is loaded inside config.Load; missing file is fine
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// init logger
	lg, err := utilities.Init(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Infow("starting service-hostlink", "addr", cfg.HTTPAddr, "store", cfg.StoreBackend)

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancelStart := context.WithTimeout(ctx, 15*time.Second)
	a, err := app.New(startCtx, cfg, sugar)
	cancelStart()
	if err != nil {
		sugar.Fatalf("backends: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			sugar.Warnf("closing backends: %v", err)
		}
	}()
	if cfg.AdminAPIKey == "" {
		sugar.Warn("ADMIN_API_KEY not set; maintenance routes accept admin credentials only")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.RegisterRoutes(a, cfg.AdminAPIKey, sugar),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// run server in background
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	sugar.Info("service is running; press Ctrl+C to stop")
	<-ctx.Done()

	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}
