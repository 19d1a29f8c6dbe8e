package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/noviso123/Inovar-Refrigeracao-sub000/internal/config"
	"github.com/noviso123/Inovar-Refrigeracao-sub000/internal/dispatch"
	httpapi "github.com/noviso123/Inovar-Refrigeracao-sub000/internal/http"
	"github.com/noviso123/Inovar-Refrigeracao-sub000/internal/status"
	"github.com/noviso123/Inovar-Refrigeracao-sub000/internal/storage"
	"github.com/noviso123/Inovar-Refrigeracao-sub000/internal/wa"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	store, err := storage.Open(cfg.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("open store")
	}
	defer store.Close()

	ctx := context.Background()
	manager, err := wa.NewManager(ctx, cfg.DSN, logger, cfg.SendRatePerMin)
	if err != nil {
		logger.Fatal().Err(err).Msg("init transport")
	}
	defer manager.Close()

	reporter := status.New(store, manager, logger)
	reporter.Start()

	// Session known from a previous run: reconnect in the background so
	// the connected event reaches the status row without operator help.
	if manager.Paired() {
		go func() {
			if err := manager.Connect(); err != nil {
				logger.Warn().Err(err).Msg("reconnect on boot")
			}
		}()
	}

	janitor, err := dispatch.NewJanitor(store, cfg.ClaimSweepEvery, cfg.ClaimStaleAfter, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("init janitor")
	}
	janitor.Start()

	instanceID := uuid.NewString()
	loop := dispatch.New(store, manager, instanceID, cfg.CountryPrefix, cfg.SendTimeout, logger)
	loop.Start()

	router := httpapi.NewRouter(store, manager, cfg.CountryPrefix)
	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: router}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	stop, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	<-stop.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)

	loop.Stop()
	janitor.Stop()
	reporter.Stop()
}
