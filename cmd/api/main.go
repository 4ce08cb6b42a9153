package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"Lee_Timeline/internal/app"
	"Lee_Timeline/internal/config"
	"Lee_Timeline/internal/pkg/logger"
	"Lee_Timeline/internal/router"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(*configPath)
	log := logger.Setup(cfg.Env)
	slog.SetDefault(log)
	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("app_init_failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("app_close_failed", "err", err)
		}
	}()

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      router.New(a, log),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Relayer.Run(gctx)
		return nil
	})
	g.Go(func() error {
		a.Reconciler.Run(gctx)
		return nil
	})
	g.Go(func() error {
		a.Purger.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info("http_listen", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown_started")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server_stopped", "err", err)
		return
	}
	log.Info("shutdown_complete")
}
