package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"arcpay/apps/arcpay/internal/chains"
	"arcpay/apps/arcpay/internal/clock"
	"arcpay/apps/arcpay/internal/metrics"
	"arcpay/apps/arcpay/internal/model"
	"arcpay/apps/arcpay/internal/orchestrator"
)

const abandonReason = "interrupted before the burn was confirmed"

type TransferStore interface {
	ListDue(ctx context.Context, now time.Time) ([]model.RecurringTransfer, error)
	MarkExecuted(ctx context.Context, id string, executedAt, nextDueAt time.Time) error
}

type ExecutionHistory interface {
	LatestForTransfer(ctx context.Context, transferID string) (*model.TransferExecution, error)
	ListPending(ctx context.Context) ([]model.TransferExecution, error)
}

// Executor is the part of the orchestrator the scheduler drives
type Executor interface {
	Execute(ctx context.Context, req orchestrator.Request) (*model.TransferExecution, error)
	Resume(ctx context.Context, executionID string) (*model.TransferExecution, error)
	Abandon(ctx context.Context, executionID, reason string) (*model.TransferExecution, error)
}

type StateStore interface {
	RecordTick(ctx context.Context, at time.Time) error
}

type Config struct {
	TickInterval time.Duration
	PacingDelay  time.Duration
	SourceChain  chains.Key
}

// Scheduler fires due recurring transfers one at a time
type Scheduler struct {
	config    Config
	transfers TransferStore
	history   ExecutionHistory
	executor  Executor
	state     StateStore
	clock     clock.Clock
	logger    *zap.Logger
}

func New(cfg Config, transfers TransferStore, history ExecutionHistory, executor Executor, state StateStore, clk clock.Clock, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		config:    cfg,
		transfers: transfers,
		history:   history,
		executor:  executor,
		state:     state,
		clock:     clk,
		logger:    logger.With(zap.String("component", "scheduler")),
	}
}

// Run ticks until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("Starting scheduler",
		zap.Duration("tick_interval", s.config.TickInterval),
		zap.Duration("pacing_delay", s.config.PacingDelay),
		zap.String("source_chain", string(s.config.SourceChain)))

	for {
		if err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("Scheduler tick failed", zap.Error(err))
		}
		if err := s.clock.Sleep(ctx, s.config.TickInterval); err != nil {
			s.logger.Info("Scheduler stopped")
			return nil
		}
	}
}

// Tick processes every transfer due at the current time. A failed transfer keeps its
// nextDueAt and is picked up again on a later tick.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.clock.Now()
	defer func() {
		metrics.SchedulerTickDuration.Observe(s.clock.Now().Sub(now).Seconds())
	}()

	if err := s.state.RecordTick(ctx, now); err != nil {
		s.logger.Warn("Failed to record scheduler tick", zap.Error(err))
	}

	due, err := s.transfers.ListDue(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to list due transfers: %w", err)
	}
	metrics.SchedulerDueTransfers.Set(float64(len(due)))

	if len(due) == 0 {
		return nil
	}
	s.logger.Info("Found due transfers", zap.Int("count", len(due)))

	for i := range due {
		if i > 0 {
			if err := s.clock.Sleep(ctx, s.config.PacingDelay); err != nil {
				return err
			}
		}
		s.process(ctx, &due[i])
	}
	return nil
}

// process runs one transfer to completion even if ctx is cancelled mid-flight, so a
// shutdown never interrupts a burn between broadcast and bookkeeping
func (s *Scheduler) process(ctx context.Context, t *model.RecurringTransfer) {
	ctx = context.WithoutCancel(ctx)
	logger := s.logger.With(zap.String("transfer_id", t.ID), zap.String("owner", t.Owner))

	exec, err := s.fire(ctx, t)
	if err != nil {
		attrs := []zap.Field{zap.Error(err)}
		if exec != nil {
			attrs = append(attrs, zap.String("execution_id", exec.ID))
		}
		logger.Error("Recurring transfer failed", attrs...)
		return
	}

	executedAt := s.clock.Now()
	next := t.Cadence.NextDue(executedAt)
	if err := s.transfers.MarkExecuted(ctx, t.ID, executedAt, next); err != nil {
		// The execution is already recorded; the transfer fires again on the next tick
		logger.Error("Failed to advance recurring transfer", zap.String("execution_id", exec.ID), zap.Error(err))
		return
	}

	logger.Info("Recurring transfer executed", zap.String("execution_id", exec.ID), zap.Time("next_due_at", next))
}

// fire resumes the transfer's stranded burn if it has one, otherwise starts a new execution.
// Custody funds a failed attempt already released are spent instead of released again.
func (s *Scheduler) fire(ctx context.Context, t *model.RecurringTransfer) (*model.TransferExecution, error) {
	latest, err := s.history.LatestForTransfer(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest execution: %w", err)
	}
	if latest != nil && latest.Stranded() && latest.Status != model.ExecutionSuccess {
		s.logger.Info("Resuming stranded burn", zap.String("transfer_id", t.ID), zap.String("execution_id", latest.ID))
		return s.executor.Resume(ctx, latest.ID)
	}

	id := t.ID
	req := orchestrator.Request{
		Owner:               t.Owner,
		SourceChain:         s.config.SourceChain,
		DestinationChain:    chains.Key(t.DestinationChain),
		Recipient:           t.Recipient,
		Amount:              t.Amount,
		FundingWallet:       t.CustodyWallet,
		RecurringTransferID: &id,
	}
	if latest != nil && latest.UnspentRelease() {
		s.logger.Info("Reusing custody funds released by a failed attempt",
			zap.String("transfer_id", t.ID),
			zap.String("execution_id", latest.ID),
			zap.String("release_tx_hash", *latest.ReleaseTxHash))
		req.ReleaseTxHash = *latest.ReleaseTxHash
	}
	return s.executor.Execute(ctx, req)
}

// Recover settles executions left pending by a previous process. Those with a recorded
// burn are resumed; the rest never burned and are failed.
func (s *Scheduler) Recover(ctx context.Context) error {
	pending, err := s.history.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pending executions: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	s.logger.Info("Recovering pending executions", zap.Int("count", len(pending)))

	var errList []error
	for i := range pending {
		e := &pending[i]
		var err error
		if e.Stranded() {
			_, err = s.executor.Resume(ctx, e.ID)
		} else {
			_, err = s.executor.Abandon(ctx, e.ID, abandonReason)
		}
		if err != nil {
			s.logger.Error("Failed to recover execution", zap.String("execution_id", e.ID), zap.Error(err))
			errList = append(errList, fmt.Errorf("execution %s: %w", e.ID, err))
		}
		if ctx.Err() != nil {
			break
		}
	}
	return errors.Join(errList...)
}
