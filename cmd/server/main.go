package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/consult/internal/adapters/http"
	wsignal "github.com/dkeye/consult/internal/adapters/signal"
	"github.com/dkeye/consult/internal/app"
	"github.com/dkeye/consult/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	rooms := app.NewRoomManager()
	reg := app.NewRegistry()
	dir := app.NewDirectory(cfg.Server.Tenant, cfg.Server.AccountList())
	ctrl := wsignal.NewSignalWSController(rooms, reg, dir)
	if cfg.Server.ReadLimit > 0 {
		ctrl.ReadLimit = cfg.Server.ReadLimit
	}
	if cfg.Server.PingPeriod > 0 {
		ctrl.PingPeriod = cfg.Server.PingPeriod
	}

	r := router.SetupRouter(ctx, &cfg.Server, dir, reg, ctrl)
	addr := fmt.Sprintf(":%d", cfg.Server.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Consult relay started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
