package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"arcpay/apps/arcpay/internal/chains"
	"arcpay/apps/arcpay/internal/errs"
	"arcpay/apps/arcpay/internal/model"
)

// Resume finishes an execution whose burn is confirmed but whose mint never happened. A
// pending execution is continued in place; a failed one is retried under a new execution
// carrying the same burn hash. The burn is never repeated.
func (o *Orchestrator) Resume(ctx context.Context, executionID string) (*model.TransferExecution, error) {
	const op = "resume execution"

	prior, err := o.store.Get(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load execution: %w", err)
	}
	if prior == nil {
		return nil, errs.Validation(op, "execution %s not found", executionID)
	}
	if !prior.Stranded() {
		return nil, errs.Validation(op, "execution %s has no burn awaiting mint", executionID)
	}
	if prior.SourceChain == nil {
		return nil, errs.Validation(op, "execution %s has no source chain", executionID)
	}

	src, err := o.gateway(chains.Key(*prior.SourceChain))
	if err != nil {
		return nil, err
	}
	dst, err := o.gateway(chains.Key(prior.DestinationChain))
	if err != nil {
		return nil, err
	}

	exec := prior
	switch prior.Status {
	case model.ExecutionPending:
	case model.ExecutionFailed:
		exec = &model.TransferExecution{
			Owner:               prior.Owner,
			RecurringTransferID: prior.RecurringTransferID,
			Recipient:           prior.Recipient,
			Amount:              prior.Amount,
			Fee:                 prior.Fee,
			SourceChain:         prior.SourceChain,
			DestinationChain:    prior.DestinationChain,
			ReleaseTxHash:       prior.ReleaseTxHash,
			BurnTxHash:          prior.BurnTxHash,
		}
		if err := o.store.Create(ctx, exec); err != nil {
			return nil, fmt.Errorf("failed to record execution: %w", err)
		}
	default:
		return nil, errs.Validation(op, "execution %s is %s", executionID, prior.Status)
	}

	o.logger.Info("Resuming transfer",
		zap.String("execution_id", exec.ID),
		zap.String("resumed_from", prior.ID),
		zap.String("burn_tx_hash", *exec.BurnTxHash))

	start := o.clock.Now()
	result, _, runErr := o.mint(ctx, *exec.BurnTxHash, src.Chain(), dst)
	return o.finish(ctx, exec, flowResume, start, result, runErr)
}

// Abandon fails a pending execution that never recorded a burn, e.g. one interrupted by a
// restart before its burn confirmed
func (o *Orchestrator) Abandon(ctx context.Context, executionID, reason string) (*model.TransferExecution, error) {
	exec, err := o.store.Get(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load execution: %w", err)
	}
	if exec == nil {
		return nil, errs.Validation("abandon execution", "execution %s not found", executionID)
	}
	if exec.Status != model.ExecutionPending || exec.Stranded() {
		return nil, errs.Validation("abandon execution", "execution %s cannot be abandoned", executionID)
	}

	o.logger.Warn("Abandoning execution", zap.String("execution_id", executionID), zap.String("reason", reason))
	return o.store.Fail(ctx, executionID, reason)
}
