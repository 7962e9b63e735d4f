package main

import (
	"context"
	"crypto/ecdsa"
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"arcpay/apps/arcpay/internal/attestation"
	"arcpay/apps/arcpay/internal/chains"
	"arcpay/apps/arcpay/internal/clock"
	"arcpay/apps/arcpay/internal/config"
	"arcpay/apps/arcpay/internal/errs"
	"arcpay/apps/arcpay/internal/evm"
	"arcpay/apps/arcpay/internal/orchestrator"
	"arcpay/apps/arcpay/internal/repository"
)

// app holds everything a command needs to move funds
type app struct {
	cfg          *config.Config
	db           *sql.DB
	registry     *chains.Registry
	gateways     *evm.Gateways
	relayer      common.Address
	executions   *repository.ExecutionRepository
	transfers    *repository.RecurringTransferRepository
	outbox       *repository.OutboxRepository
	state        *repository.SchedulerStateRepository
	orchestrator *orchestrator.Orchestrator
	clock        clock.Clock
}

func openDatabase(ctx context.Context, dbURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := repository.InitMigration(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, nil
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	chainConfigs, err := cfg.ChainConfigs()
	if err != nil {
		return nil, err
	}
	registry, err := chains.NewRegistry(chainConfigs)
	if err != nil {
		return nil, err
	}
	if _, err := registry.Get(cfg.SourceChain); err != nil {
		return nil, errs.Configuration("load config", "scheduler source chain %s is not enabled", cfg.SourceChain)
	}

	key, err := evm.ParsePrivateKey(cfg.RelayerPrivateKey)
	if err != nil {
		return nil, err
	}

	db, err := openDatabase(ctx, cfg.DbURL)
	if err != nil {
		return nil, err
	}

	gateways, err := evm.DialGateways(ctx, registry, key, cfg.ConfirmationTimeout, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	byKey := make(map[chains.Key]orchestrator.ChainGateway)
	for _, k := range gateways.Keys() {
		gw, err := gateways.Get(k)
		if err != nil {
			gateways.Close()
			db.Close()
			return nil, err
		}
		byKey[k] = gw
	}

	clk := clock.New()
	poller := attestation.NewPoller(
		attestation.NewClient(cfg.AttestationBaseURL, cfg.AttestationRPS),
		clk, cfg.AttestationInterval, cfg.AttestationAttempts, logger)

	a := &app{
		cfg:        cfg,
		db:         db,
		registry:   registry,
		gateways:   gateways,
		relayer:    addressOf(key),
		executions: repository.NewExecutionRepository(db, logger),
		transfers:  repository.NewRecurringTransferRepository(db, logger),
		outbox:     repository.NewOutboxRepository(db, logger),
		state:      repository.NewSchedulerStateRepository(db, logger),
		clock:      clk,
	}
	a.orchestrator = orchestrator.New(byKey, poller, a.executions, clk, logger)

	logger.Info("Connected",
		zap.String("relayer", a.relayer.Hex()),
		zap.Int("chains", len(byKey)),
		zap.String("attestation_base_url", cfg.AttestationBaseURL))
	return a, nil
}

func (a *app) Close() {
	a.gateways.Close()
	if err := a.db.Close(); err != nil {
		logger.Error("Failed to close database", zap.Error(err))
	}
}

func addressOf(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}
