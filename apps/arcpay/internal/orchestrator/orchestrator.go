package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"arcpay/apps/arcpay/internal/amount"
	"arcpay/apps/arcpay/internal/attestation"
	"arcpay/apps/arcpay/internal/chains"
	"arcpay/apps/arcpay/internal/clock"
	"arcpay/apps/arcpay/internal/errs"
	"arcpay/apps/arcpay/internal/evm"
	"arcpay/apps/arcpay/internal/metrics"
	"arcpay/apps/arcpay/internal/model"
)

const (
	flowSameChain  = "same_chain"
	flowCrossChain = "cross_chain"
	flowResume     = "resume"
	flowRelay      = "relay"
)

// ExecutionStore is the ledger the orchestrator records every attempt in
type ExecutionStore interface {
	Create(ctx context.Context, e *model.TransferExecution) error
	RecordRelease(ctx context.Context, id, releaseTxHash string) error
	RecordBurn(ctx context.Context, id, burnTxHash string) error
	Complete(ctx context.Context, id string, result model.ExecutionResult) (*model.TransferExecution, error)
	Fail(ctx context.Context, id, message string) (*model.TransferExecution, error)
	Get(ctx context.Context, id string) (*model.TransferExecution, error)
}

// ChainGateway submits the hot wallet's transactions on one chain
type ChainGateway interface {
	Chain() *chains.Config
	Address() common.Address
	TokenBalance(ctx context.Context, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	ApproveMessenger(ctx context.Context) (*evm.TxResult, error)
	Transfer(ctx context.Context, to common.Address, amount *big.Int) (*evm.TxResult, error)
	DepositForBurn(ctx context.Context, params evm.BurnParams) (*evm.TxResult, error)
	ReceiveMessage(ctx context.Context, message, attestation []byte) (*evm.TxResult, error)
	ReleaseCustody(ctx context.Context, custody common.Address, amount *big.Int) (*evm.TxResult, error)
}

// AttestationSource resolves a burn into a mint-ready attestation
type AttestationSource interface {
	Await(ctx context.Context, txHash string, sourceDomain uint32) (*attestation.Attestation, error)
}

// Request describes one transfer. FundingWallet, when set, is a custody contract on the
// source chain that is drained into the hot wallet before the transfer. ReleaseTxHash names
// a release an earlier failed attempt already made for the same payment; the funds it moved
// are spent from the hot wallet instead of releasing again.
type Request struct {
	Owner               string
	SourceChain         chains.Key
	DestinationChain    chains.Key
	Recipient           string
	Amount              string
	FundingWallet       string
	ReleaseTxHash       string
	RecurringTransferID *string
}

// Orchestrator runs transfers end to end and records each one in the ledger
type Orchestrator struct {
	gateways     map[chains.Key]ChainGateway
	attestations AttestationSource
	store        ExecutionStore
	clock        clock.Clock
	logger       *zap.Logger
}

func New(gateways map[chains.Key]ChainGateway, attestations AttestationSource, store ExecutionStore, clk clock.Clock, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		gateways:     gateways,
		attestations: attestations,
		store:        store,
		clock:        clk,
		logger:       logger.With(zap.String("component", "orchestrator")),
	}
}

type plan struct {
	src       ChainGateway
	dst       ChainGateway
	recipient common.Address
	funding   *common.Address
	subunits  *big.Int
	bridged   *big.Int
	fee       *big.Int
}

func (p *plan) sameChain() bool {
	return p.src.Chain().Key == p.dst.Chain().Key
}

// Execute validates req, records a pending execution and moves the funds. Validation
// failures return before anything is recorded. Any later failure marks the execution failed
// and is returned together with the stored record.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (*model.TransferExecution, error) {
	p, err := o.validate(req)
	if err != nil {
		return nil, err
	}

	source := string(req.SourceChain)
	exec := &model.TransferExecution{
		Owner:               req.Owner,
		RecurringTransferID: req.RecurringTransferID,
		Recipient:           p.recipient.Hex(),
		Amount:              strings.TrimSpace(req.Amount),
		SourceChain:         &source,
		DestinationChain:    string(req.DestinationChain),
	}

	if req.ReleaseTxHash != "" {
		released := req.ReleaseTxHash
		exec.ReleaseTxHash = &released
	}

	flow := flowSameChain
	if !p.sameChain() {
		flow = flowCrossChain
		fee := amount.Format(p.fee)
		exec.Fee = &fee
	}

	if err := o.store.Create(ctx, exec); err != nil {
		return nil, fmt.Errorf("failed to record execution: %w", err)
	}

	o.logger.Info("Starting transfer",
		zap.String("execution_id", exec.ID),
		zap.String("flow", flow),
		zap.String("source_chain", source),
		zap.String("destination_chain", exec.DestinationChain),
		zap.String("amount", exec.Amount))

	start := o.clock.Now()
	result, runErr := o.run(ctx, exec, p)
	return o.finish(ctx, exec, flow, start, result, runErr)
}

func (o *Orchestrator) validate(req Request) (*plan, error) {
	const op = "validate transfer"

	if strings.TrimSpace(req.Owner) == "" {
		return nil, errs.Validation(op, "owner is required")
	}

	recipient, err := parseAddress(req.Recipient, "recipient")
	if err != nil {
		return nil, err
	}

	d, err := amount.Parse(req.Amount)
	if err != nil {
		return nil, err
	}

	src, err := o.gateway(req.SourceChain)
	if err != nil {
		return nil, err
	}
	dst, err := o.gateway(req.DestinationChain)
	if err != nil {
		return nil, err
	}

	p := &plan{src: src, dst: dst, recipient: recipient, subunits: amount.ToSubunits(d)}

	if req.FundingWallet != "" {
		funding, err := parseAddress(req.FundingWallet, "funding wallet")
		if err != nil {
			return nil, err
		}
		p.funding = &funding
	}

	if !p.sameChain() {
		p.bridged, p.fee = amount.SplitFee(p.subunits)
		if p.bridged.Cmp(big.NewInt(evm.MaxBurnFee)) <= 0 {
			return nil, errs.Validation(op, "amount %s is too small to bridge", req.Amount)
		}
	}

	return p, nil
}

func (o *Orchestrator) gateway(key chains.Key) (ChainGateway, error) {
	if _, err := chains.ParseKey(string(key)); err != nil {
		return nil, err
	}
	gw, ok := o.gateways[key]
	if !ok {
		return nil, errs.Validation("gateway", "chain %q is not configured", key)
	}
	return gw, nil
}

func parseAddress(s, field string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, errs.Validation("validate transfer", "invalid %s address %q", field, s)
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, errs.Validation("validate transfer", "%s cannot be the zero address", field)
	}
	return addr, nil
}

func (o *Orchestrator) run(ctx context.Context, exec *model.TransferExecution, p *plan) (model.ExecutionResult, error) {
	if p.funding != nil && exec.ReleaseTxHash == nil {
		if err := o.releaseFunding(ctx, exec, p); err != nil {
			return model.ExecutionResult{}, err
		}
	}

	if err := o.ensureHotWalletBalance(ctx, p); err != nil {
		return model.ExecutionResult{}, err
	}

	if p.sameChain() {
		tx, err := p.src.Transfer(ctx, p.recipient, p.subunits)
		if err != nil {
			return model.ExecutionResult{}, err
		}
		return model.ExecutionResult{TxHash: tx.Hash.Hex()}, nil
	}

	if err := o.ensureAllowance(ctx, p); err != nil {
		return model.ExecutionResult{}, err
	}

	burn, err := p.src.DepositForBurn(ctx, evm.BurnParams{
		Amount:            p.bridged,
		DestinationDomain: p.dst.Chain().Domain,
		Recipient:         p.recipient,
	})
	if err != nil {
		// A broadcast burn may still land; once recorded it is only ever resumed
		if sent, ok := evm.SentHash(err); ok {
			if recErr := o.recordBurn(ctx, exec, sent.Hex()); recErr != nil {
				return model.ExecutionResult{}, errors.Join(err, recErr)
			}
		}
		return model.ExecutionResult{}, err
	}

	burnHash := burn.Hash.Hex()
	if err := o.recordBurn(ctx, exec, burnHash); err != nil {
		return model.ExecutionResult{}, err
	}

	o.logger.Info("Burn recorded", zap.String("execution_id", exec.ID), zap.String("burn_tx_hash", burnHash), zap.String("bridged", amount.Format(p.bridged)))

	result, _, err := o.mint(ctx, burnHash, p.src.Chain(), p.dst)
	return result, err
}

func (o *Orchestrator) releaseFunding(ctx context.Context, exec *model.TransferExecution, p *plan) error {
	balance, err := p.src.TokenBalance(ctx, *p.funding)
	if err != nil {
		return err
	}
	if balance.Cmp(p.subunits) < 0 {
		return errs.InsufficientFunds("release funding", "custody wallet %s holds %s, needs %s",
			p.funding.Hex(), amount.Format(balance), amount.Format(p.subunits)).OnChain(string(p.src.Chain().Key))
	}

	tx, err := p.src.ReleaseCustody(ctx, *p.funding, p.subunits)
	if err != nil {
		if sent, ok := evm.SentHash(err); ok {
			if recErr := o.recordRelease(ctx, exec, sent.Hex()); recErr != nil {
				return errors.Join(err, recErr)
			}
		}
		return err
	}

	if err := o.recordRelease(ctx, exec, tx.Hash.Hex()); err != nil {
		return err
	}

	o.logger.Info("Released custody funds", zap.String("execution_id", exec.ID), zap.String("custody_wallet", p.funding.Hex()), zap.String("tx_hash", tx.Hash.Hex()))
	return nil
}

// recordRelease and recordBurn persist hashes of transactions already on the wire, so they
// ignore cancellation of the caller's context
func (o *Orchestrator) recordRelease(ctx context.Context, exec *model.TransferExecution, hash string) error {
	if err := o.store.RecordRelease(context.WithoutCancel(ctx), exec.ID, hash); err != nil {
		o.logger.Error("Custody release sent but not recorded", zap.String("execution_id", exec.ID), zap.String("release_tx_hash", hash), zap.Error(err))
		return fmt.Errorf("custody release %s sent but not recorded: %w", hash, err)
	}
	exec.ReleaseTxHash = &hash
	return nil
}

func (o *Orchestrator) recordBurn(ctx context.Context, exec *model.TransferExecution, hash string) error {
	if err := o.store.RecordBurn(context.WithoutCancel(ctx), exec.ID, hash); err != nil {
		o.logger.Error("Burn sent but not recorded", zap.String("execution_id", exec.ID), zap.String("burn_tx_hash", hash), zap.Error(err))
		return fmt.Errorf("burn %s sent but not recorded: %w", hash, err)
	}
	exec.BurnTxHash = &hash
	return nil
}

func (o *Orchestrator) ensureHotWalletBalance(ctx context.Context, p *plan) error {
	balance, err := p.src.TokenBalance(ctx, p.src.Address())
	if err != nil {
		return err
	}
	if balance.Cmp(p.subunits) < 0 {
		return errs.InsufficientFunds("check balance", "hot wallet holds %s, needs %s",
			amount.Format(balance), amount.Format(p.subunits)).OnChain(string(p.src.Chain().Key))
	}
	return nil
}

func (o *Orchestrator) ensureAllowance(ctx context.Context, p *plan) error {
	allowance, err := p.src.Allowance(ctx, p.src.Address(), p.src.Chain().TokenMessenger)
	if err != nil {
		return err
	}
	if allowance.Cmp(p.bridged) >= 0 {
		return nil
	}

	tx, err := p.src.ApproveMessenger(ctx)
	if err != nil {
		return err
	}
	o.logger.Info("Approved token messenger", zap.String("chain", string(p.src.Chain().Key)), zap.String("tx_hash", tx.Hash.Hex()))
	return nil
}

// mint waits for the burn's attestation and submits it on the destination chain
func (o *Orchestrator) mint(ctx context.Context, burnHash string, src *chains.Config, dst ChainGateway) (model.ExecutionResult, *evm.TxResult, error) {
	att, err := o.attestations.Await(ctx, burnHash, src.Domain)
	if err != nil {
		return model.ExecutionResult{}, nil, err
	}

	if err := checkDestination(att.Message, dst.Chain()); err != nil {
		return model.ExecutionResult{}, nil, err
	}

	tx, err := dst.ReceiveMessage(ctx, att.Message, att.Attestation)
	if err != nil {
		return model.ExecutionResult{}, nil, err
	}
	return model.ExecutionResult{MintTxHash: tx.Hash.Hex()}, tx, nil
}

func checkDestination(message []byte, dst *chains.Config) error {
	decoded, err := attestation.DecodeBurnMessage(message)
	if err != nil {
		return errs.Wrap(errs.KindValidation, "check attestation", err, "malformed bridge message")
	}
	if decoded.DestinationDomain != dst.Domain {
		return errs.Validation("check attestation", "message targets domain %d, not %s (domain %d)", decoded.DestinationDomain, dst.Key, dst.Domain)
	}
	return nil
}

// finish writes the single terminal update for exec
func (o *Orchestrator) finish(ctx context.Context, exec *model.TransferExecution, flow string, start time.Time, result model.ExecutionResult, runErr error) (*model.TransferExecution, error) {
	// The terminal update must land even when the caller's context was cancelled mid-flow
	ctx = context.WithoutCancel(ctx)

	metrics.ExecutionDuration.WithLabelValues(flow).Observe(o.clock.Now().Sub(start).Seconds())

	if runErr != nil {
		metrics.ExecutionsTotal.WithLabelValues(flow, string(model.ExecutionFailed)).Inc()
		o.logger.Error("Transfer failed",
			zap.String("execution_id", exec.ID),
			zap.String("flow", flow),
			zap.String("kind", string(errs.KindOf(runErr))),
			zap.Error(runErr))

		stored, err := o.store.Fail(ctx, exec.ID, runErr.Error())
		if err != nil {
			o.logger.Error("Failed to mark execution failed", zap.String("execution_id", exec.ID), zap.Error(err))
			return exec, errors.Join(runErr, err)
		}
		return stored, runErr
	}

	metrics.ExecutionsTotal.WithLabelValues(flow, string(model.ExecutionSuccess)).Inc()

	stored, err := o.store.Complete(ctx, exec.ID, result)
	if err != nil {
		o.logger.Error("Failed to mark execution succeeded", zap.String("execution_id", exec.ID), zap.Error(err))
		return exec, fmt.Errorf("transfer succeeded but was not recorded: %w", err)
	}

	o.logger.Info("Transfer succeeded",
		zap.String("execution_id", exec.ID),
		zap.String("flow", flow),
		zap.String("mint_tx_hash", result.MintTxHash),
		zap.String("tx_hash", result.TxHash))
	return stored, nil
}
