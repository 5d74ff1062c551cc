package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/sirupsen/logrus"

	"aviator/config"
	"aviator/database"
	"aviator/engine"
	"aviator/events"
	"aviator/infrastructure"
	"aviator/jobs"
	"aviator/repository"
	"aviator/service"
)

// Run initializes and starts the game engine and its supporting workers
func Run(ctx context.Context) error {
	log.Println("Starting aviator engine...")

	// Load configuration
	cfg := config.Get()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}

	// Initialize database connection
	log.Println("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	log.Println("Database connection established successfully")

	// Initialize event bus
	eventBus := events.NewBus()

	// Bridge domain events to NATS when configured
	var tickPublisher infrastructure.TickPublisher
	if cfg.NATSServers != "" {
		log.Println("Connecting to NATS...")
		natsClient := infrastructure.NewNATSClient(cfg.NATSServers)
		if err := natsClient.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer natsClient.Close()

		publisher := infrastructure.NewNATSEventPublisher(natsClient, infrastructure.NewEventSubjectMapper())
		if err := publisher.EnsureEventStream(); err != nil {
			return fmt.Errorf("failed to ensure event stream: %w", err)
		}
		publisher.BridgeBus(eventBus)
		tickPublisher = publisher
	} else {
		log.Println("NATS_SERVERS not set, event publishing disabled")
		tickPublisher = infrastructure.NewNoopEventPublisher()
	}

	// Connect the live state store when configured
	var liveStore infrastructure.LiveStore
	if cfg.RedisAddr != "" {
		redisLive, err := infrastructure.NewRedisLive(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisLive.Close()
		liveStore = redisLive
	} else {
		log.Println("REDIS_ADDR not set, live state store disabled")
	}

	// Initialize unit of work factory and services
	uowFactory := repository.NewUnitOfWorkFactory(db, eventBus)
	roundService := service.NewRoundService(uowFactory)
	bettingService := service.NewBettingService(uowFactory, service.BetLimits{
		MinStake:       cfg.MinBet,
		MaxStake:       cfg.MaxBet,
		MinAutoCashout: cfg.MinAutoCashout,
	})

	// Payment provider sandbox delivers verdicts back into the service
	provider := infrastructure.NewMpesaSandbox(cfg.MpesaCallbackDelay)
	paymentService := service.NewPaymentService(uowFactory, provider, service.PaymentLimits{
		MinDeposit:    cfg.MinDeposit,
		MaxDeposit:    cfg.MaxDeposit,
		MinWithdrawal: cfg.MinWithdrawal,
	})
	provider.OnDeposit(paymentService.HandleDepositCallback)
	provider.OnWithdrawal(paymentService.HandleWithdrawalCallback)

	// Crash point strategy
	var generator engine.Generator
	var rotator jobs.SeedRotator
	switch cfg.CrashStrategy {
	case "fair":
		fair := engine.NewFairGenerator(cfg.ClientSeed)
		generator = fair
		rotator = fair
	default:
		generator = engine.NewWeightedGenerator()
	}

	// Settle whatever a previous process left unresolved before playing
	recovery := engine.NewRecovery(uowFactory, roundService, bettingService)
	if reconciled, err := recovery.Run(ctx); err != nil {
		return fmt.Errorf("failed to recover unresolved rounds: %w", err)
	} else if reconciled > 0 {
		log.Printf("Recovered %d unresolved rounds", reconciled)
	}

	// Fan live snapshots out to Redis, NATS and the round row
	broadcaster := infrastructure.NewLiveBroadcaster(liveStore, tickPublisher, repository.NewRoundRepository(db))
	stopBroadcaster := broadcaster.Start(ctx)
	defer stopBroadcaster()

	// Start the round engine
	eng := engine.New(engine.Config{
		WaitingDuration:   cfg.WaitingDuration,
		TickInterval:      cfg.TickInterval,
		CooldownDuration:  cfg.CooldownDuration,
		Curve:             engine.Curve{GrowthRate: cfg.GrowthRate, Exponent: cfg.Exponent},
		SettlementWorkers: cfg.SettlementWorkers,
	}, roundService, bettingService, generator, broadcaster)
	stopEngine := eng.Start(ctx)
	defer stopEngine()

	// Background maintenance jobs
	scheduler := jobs.NewScheduler(paymentService, rotator, cfg.PaymentExpiry)
	scheduler.Start()
	defer scheduler.Stop()

	log.Printf("Engine is running in %s mode...", cfg.Environment)
	<-ctx.Done()

	log.Println("Shutting down engine...")
	return nil
}
