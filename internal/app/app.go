// Package app wires repositories, services and gateways for the binaries.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"smsdispatch/internal/config"
	"smsdispatch/internal/dispatch"
	"smsdispatch/internal/gateway"
	"smsdispatch/internal/phone"
	"smsdispatch/internal/repository"
	"smsdispatch/internal/service"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// Repositories groups the Postgres-backed stores
type Repositories struct {
	Accounts  repository.AccountRepository
	Ledger    repository.LedgerRepository
	Contacts  repository.ContactRepository
	Campaigns repository.CampaignRepository
	Targets   repository.TargetRepository
	Jobs      repository.JobRepository
	Overrides repository.OverrideRepository
	Pricing   repository.PricingRepository
	Reports   repository.DeliveryReportRepository
}

// NewRepositories builds every repository over db
func NewRepositories(db *sql.DB) Repositories {
	return Repositories{
		Accounts:  repository.NewAccountRepository(db),
		Ledger:    repository.NewLedgerRepository(db),
		Contacts:  repository.NewContactRepository(db),
		Campaigns: repository.NewCampaignRepository(db),
		Targets:   repository.NewTargetRepository(db),
		Jobs:      repository.NewJobRepository(db),
		Overrides: repository.NewOverrideRepository(db),
		Pricing:   repository.NewPricingRepository(db),
		Reports:   repository.NewDeliveryReportRepository(db),
	}
}

// Services holds the domain services shared by the API and the worker
type Services struct {
	Repos     Repositories
	Registry  *gateway.Registry
	Router    *gateway.Router
	Audience  *service.AudienceService
	Planner   *service.Planner
	Pricing   *service.PricingService
	Ledger    *service.LedgerService
	Overrides *service.OverrideService
	Campaigns *service.CampaignService
	QuickSend *service.QuickSendService
	Delivery  *service.DeliveryService
}

// NewServices wires the services. triggers may be nil.
func NewServices(cfg *config.Config, repos Repositories, triggers service.TriggerPublisher, log zerolog.Logger) *Services {
	registry := NewGateways(cfg.Gateways)
	router := gateway.NewRouter(registry, gateway.RouterConfig{
		Primary:         cfg.Gateways.Primary,
		Secondary:       cfg.Gateways.Secondary,
		FallbackEnabled: cfg.Gateways.FallbackEnabled,
		BreakerFailures: cfg.Gateways.BreakerFailures,
		BreakerReset:    cfg.Gateways.BreakerReset,
	}, log)

	audience := service.NewAudienceService(repos.Contacts, phone.NewNormalizer(nil), cfg.Dispatch.DefaultCountry, log)
	planner := service.NewPlanner(service.NewTemplateService())
	pricing := service.NewPricingService(repos.Pricing)

	return &Services{
		Repos:     repos,
		Registry:  registry,
		Router:    router,
		Audience:  audience,
		Planner:   planner,
		Pricing:   pricing,
		Ledger:    service.NewLedgerService(repos.Ledger, repos.Accounts, log),
		Overrides: service.NewOverrideService(repos.Overrides, registry.Names(), log),
		Campaigns: service.NewCampaignService(repos.Campaigns, repos.Targets, repos.Accounts, audience, planner, triggers, log),
		QuickSend: service.NewQuickSendService(repos.Jobs, repos.Accounts, audience, planner, pricing, triggers, log),
		Delivery:  service.NewDeliveryService(registry, repos.Reports, repos.Targets, log),
	}
}

// NewGateways registers both real providers and the simulator
func NewGateways(cfg config.GatewayConfig) *gateway.Registry {
	return gateway.NewRegistry(
		gateway.NewBulkGate(gateway.BulkGateConfig{
			URL:              cfg.BulkGateURL,
			ApplicationID:    cfg.BulkGateAppID,
			ApplicationToken: cfg.BulkGateAppToken,
			DefaultSender:    cfg.BulkGateSender,
			Timeout:          cfg.Timeout,
		}),
		gateway.NewOmbala(gateway.OmbalaConfig{
			URL:           cfg.OmbalaURL,
			Token:         cfg.OmbalaToken,
			DefaultSender: cfg.OmbalaSender,
			Timeout:       cfg.Timeout,
		}),
		gateway.NewMockGateway(gateway.MockName, cfg.MockSuccessRate, 50*time.Millisecond, 200*time.Millisecond),
	)
}

// NewScheduler builds the dispatch scheduler over the shared services
func NewScheduler(cfg *config.Config, svc *Services, pacer dispatch.Pacer, events dispatch.Publisher, log zerolog.Logger) *dispatch.Scheduler {
	return dispatch.New(dispatch.Deps{
		Campaigns: svc.Repos.Campaigns,
		Targets:   svc.Repos.Targets,
		Jobs:      svc.Repos.Jobs,
		Accounts:  svc.Repos.Accounts,
		Audience:  svc.Audience,
		Planner:   svc.Planner,
		Pricing:   svc.Pricing,
		Ledger:    svc.Ledger,
		Overrides: svc.Overrides,
		Router:    svc.Router,
		Pacer:     pacer,
		Events:    events,
	}, dispatch.Config{
		PollInterval:    cfg.Dispatch.PollInterval,
		BatchSize:       cfg.Dispatch.BatchSize,
		MaxTries:        cfg.Dispatch.MaxTries,
		RatePerSecond:   cfg.Dispatch.RatePerSecond,
		StaleClaimAfter: cfg.Dispatch.StaleClaimAfter,
	}, log)
}

// OpenDatabase opens and pings Postgres
func OpenDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.GetDatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpen)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// OpenRedis returns nil when no address is configured
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}
