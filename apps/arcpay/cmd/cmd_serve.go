package main

import (
	"context"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"arcpay/apps/arcpay/internal/api"
	"arcpay/apps/arcpay/internal/config"
	"arcpay/apps/arcpay/internal/event_publisher"
	"arcpay/apps/arcpay/internal/scheduler"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, relay API and event publisher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	})
}

func serve(parent context.Context) error {
	cfg, err := config.NewConfig()
	if err != nil {
		return err
	}

	logger.Info("Starting application with configuration",
		zap.String("kafka_broker", cfg.KafkaBroker),
		zap.String("kafka_topic", cfg.KafkaTopic),
		zap.Int("api_port", cfg.APIPort),
		zap.String("source_chain", string(cfg.SourceChain)),
		zap.Duration("tick_interval", cfg.TickInterval),
		zap.Duration("pacing_delay", cfg.PacingDelay),
	)

	a, err := newApp(parent, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sched := scheduler.New(scheduler.Config{
		TickInterval: cfg.TickInterval,
		PacingDelay:  cfg.PacingDelay,
		SourceChain:  cfg.SourceChain,
	}, a.transfers, a.executions, a.orchestrator, a.state, a.clock, logger)

	// Settle whatever a previous process left pending before taking new work
	if err := sched.Recover(ctx); err != nil {
		logger.Error("Some pending executions could not be recovered", zap.Error(err))
	}

	producer, err := event_publisher.NewKafkaProducer(cfg.KafkaBroker, cfg.KafkaTopic)
	if err != nil {
		return err
	}
	publisher := event_publisher.NewEventPublisher(producer, a.outbox, logger)
	defer publisher.Close()

	server := api.NewServer(cfg.APIPort,
		api.NewRelayHandler(a.orchestrator, logger),
		api.NewExecutionHandler(a.executions, a.orchestrator, logger),
		api.NewInfoHandler(a.relayer, cfg.SourceChain, a.registry.All(), logger),
		a.state, a.clock, logger)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		publisher.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := sched.Run(ctx); err != nil {
			logger.Error("Scheduler failed", zap.Error(err))
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal, starting graceful shutdown...")
	case runErr = <-serverErr:
		logger.Error("API server stopped", zap.Error(runErr))
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("Error shutting down API server", zap.Error(err))
	}

	// An in-flight scheduled transfer runs to completion before the scheduler returns
	wg.Wait()

	logger.Info("Application shutdown complete")
	return runErr
}
