package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"smsdispatch/internal/app"
	"smsdispatch/internal/config"
	"smsdispatch/internal/dispatch"
	"smsdispatch/internal/logger"
	"smsdispatch/internal/models"
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
	log := logger.New(cfg.Log).With().Str("service", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := app.OpenDatabase(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("database unavailable")
	}
	defer db.Close()
	log.Info().Msg("connected to database")

	var pacer dispatch.Pacer
	rdb, err := app.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("redis unavailable")
	}
	if rdb != nil {
		defer rdb.Close()
		pacer = dispatch.NewRedisPacer(rdb, cfg.Redis.Prefix)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("pacing sends through redis")
	}

	var (
		events   dispatch.Publisher
		triggers <-chan models.DispatchTrigger
		consumer *queue.Consumer
	)
	if url := cfg.GetRabbitMQURL(); url != "" {
		conn, err := queue.NewConnection(url, log)
		if err != nil {
			log.Fatal().Err(err).Msg("rabbitmq unavailable")
		}
		defer conn.Close()

		publisher, err := queue.NewPublisher(conn, cfg.RabbitMQ.TriggerQueue, cfg.RabbitMQ.EventsTopic)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create publisher")
		}
		events = publisher

		consumer, err = queue.NewConsumer(conn, cfg.RabbitMQ.TriggerQueue, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create consumer")
		}
		if err := consumer.Start(); err != nil {
			log.Fatal().Err(err).Msg("failed to start consumer")
		}
		triggers = consumer.Triggers()
	}

	svc := app.NewServices(cfg, app.NewRepositories(db), service.NoopTriggers, log)
	scheduler := app.NewScheduler(cfg, svc, pacer, events, log)

	log.Info().
		Dur("poll_interval", cfg.Dispatch.PollInterval).
		Int("batch_size", cfg.Dispatch.BatchSize).
		Int("max_tries", cfg.Dispatch.MaxTries).
		Msg("worker started")

	if err := scheduler.Run(ctx, triggers); err != nil {
		log.Error().Err(err).Msg("scheduler stopped with error")
	}

	log.Info().Msg("shutting down")
	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			log.Error().Err(err).Msg("error stopping consumer")
		}
	}

	log.Info().Msg("worker stopped")
}
