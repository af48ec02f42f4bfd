package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"smsdispatch/internal/app"
	"smsdispatch/internal/config"
	"smsdispatch/internal/handler"
	"smsdispatch/internal/logger"
	"smsdispatch/internal/queue"
	"smsdispatch/internal/service"
)

func main() {
	// Load .env file (ignore error in production)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("failed to load config")
	}
	log := logger.New(cfg.Log).With().Str("service", "api").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := app.OpenDatabase(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("database unavailable")
	}
	defer db.Close()
	log.Info().Msg("connected to database")

	rdb, err := app.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("redis unavailable")
	}
	if rdb != nil {
		defer rdb.Close()
	}

	// Triggers only shorten the worker's wait, so the API runs without them
	var triggers service.TriggerPublisher = service.NoopTriggers
	rabbitURL := cfg.GetRabbitMQURL()
	if rabbitURL != "" {
		conn, err := queue.NewConnection(rabbitURL, log)
		if err != nil {
			log.Warn().Err(err).Msg("rabbitmq unavailable, dispatch triggers disabled")
		} else {
			defer conn.Close()
			publisher, err := queue.NewPublisher(conn, cfg.RabbitMQ.TriggerQueue, cfg.RabbitMQ.EventsTopic)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to create publisher")
			}
			triggers = publisher
		}
	}

	svc := app.NewServices(cfg, app.NewRepositories(db), triggers, log)

	router := handler.NewRouter(handler.Handlers{
		Campaigns:  handler.NewCampaignHandler(svc.Campaigns),
		QuickSends: handler.NewQuickSendHandler(svc.QuickSend),
		Accounts:   handler.NewAccountHandler(svc.Ledger, svc.Overrides),
		Webhooks:   handler.NewWebhookHandler(svc.Delivery),
		Health:     handler.NewHealthHandler(service.NewHealthService(db, rabbitURL, rdb, svc.Router, app.Version)),
	}, log)

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("env", cfg.Env).
			Str("primary_gateway", cfg.Gateways.Primary).
			Msg("api server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("api server stopped")
}
