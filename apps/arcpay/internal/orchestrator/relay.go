package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"arcpay/apps/arcpay/internal/amount"
	"arcpay/apps/arcpay/internal/attestation"
	"arcpay/apps/arcpay/internal/chains"
	"arcpay/apps/arcpay/internal/errs"
	"arcpay/apps/arcpay/internal/model"
)

// RelayOwner labels executions created through the relay endpoint without an owner
const RelayOwner = "relay"

// RelayRequest asks for the mint half of a transfer whose burn happened elsewhere. Either
// the attestation is supplied or SourceChain is set so it can be polled.
type RelayRequest struct {
	BurnTxHash       string
	DestinationChain chains.Key
	SourceChain      chains.Key
	Message          string
	Attestation      string
	Owner            string
}

type RelayResult struct {
	Execution   *model.TransferExecution
	MintTxHash  string
	BlockNumber uint64
}

// Relay submits the mint for an existing burn and records it as an execution
func (o *Orchestrator) Relay(ctx context.Context, req RelayRequest) (*RelayResult, error) {
	const op = "relay"

	burnHash := strings.TrimSpace(req.BurnTxHash)
	if raw, err := hexutil.Decode(burnHash); err != nil || len(raw) != 32 {
		return nil, errs.Validation(op, "invalid burn transaction hash %q", req.BurnTxHash)
	}

	dst, err := o.gateway(req.DestinationChain)
	if err != nil {
		return nil, err
	}

	att, err := o.relayAttestation(ctx, burnHash, req)
	if err != nil {
		return nil, err
	}

	if err := checkDestination(att.Message, dst.Chain()); err != nil {
		return nil, err
	}
	decoded, _ := attestation.DecodeBurnMessage(att.Message)

	owner := strings.TrimSpace(req.Owner)
	if owner == "" {
		owner = RelayOwner
	}

	exec := &model.TransferExecution{
		Owner:            owner,
		Recipient:        decoded.MintRecipient.Hex(),
		Amount:           amount.Format(decoded.Amount),
		DestinationChain: string(dst.Chain().Key),
		BurnTxHash:       &burnHash,
	}
	if src, ok := o.chainForDomain(decoded.SourceDomain); ok {
		source := string(src)
		exec.SourceChain = &source
	}

	if err := o.store.Create(ctx, exec); err != nil {
		return nil, fmt.Errorf("failed to record execution: %w", err)
	}

	o.logger.Info("Relaying mint", zap.String("execution_id", exec.ID), zap.String("burn_tx_hash", burnHash), zap.String("destination_chain", exec.DestinationChain))

	start := o.clock.Now()
	var result model.ExecutionResult
	tx, runErr := dst.ReceiveMessage(ctx, att.Message, att.Attestation)
	if runErr == nil {
		result.MintTxHash = tx.Hash.Hex()
	}

	stored, err := o.finish(ctx, exec, flowRelay, start, result, runErr)
	if err != nil {
		return &RelayResult{Execution: stored}, err
	}
	return &RelayResult{Execution: stored, MintTxHash: result.MintTxHash, BlockNumber: tx.BlockNumber}, nil
}

func (o *Orchestrator) relayAttestation(ctx context.Context, burnHash string, req RelayRequest) (*attestation.Attestation, error) {
	const op = "relay"

	if req.Message != "" || req.Attestation != "" {
		message, err := hexutil.Decode(req.Message)
		if err != nil {
			return nil, errs.Validation(op, "invalid message hex")
		}
		signature, err := hexutil.Decode(req.Attestation)
		if err != nil {
			return nil, errs.Validation(op, "invalid attestation hex")
		}
		return &attestation.Attestation{Message: message, Attestation: signature, Status: attestation.StatusComplete}, nil
	}

	if req.SourceChain == "" {
		return nil, errs.Validation(op, "either an attestation or the source chain is required")
	}
	src, err := o.gateway(req.SourceChain)
	if err != nil {
		return nil, err
	}
	return o.attestations.Await(ctx, burnHash, src.Chain().Domain)
}

func (o *Orchestrator) chainForDomain(domain uint32) (chains.Key, bool) {
	for key, gw := range o.gateways {
		if gw.Chain().Domain == domain {
			return key, true
		}
	}
	return "", false
}
