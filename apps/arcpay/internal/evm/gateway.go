package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"arcpay/apps/arcpay/internal/chains"
	"arcpay/apps/arcpay/internal/errs"
	"arcpay/apps/arcpay/internal/metrics"
)

const (
	// MaxBurnFee caps the fast-transfer fee the bridge may take, in token subunits
	MaxBurnFee = 500

	// MinFinalityThreshold requests fast (soft finality) attestation
	MinFinalityThreshold = 1000

	gasBumpPercent = 120
)

// Backend is the subset of *ethclient.Client the gateway uses
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// TxResult identifies a confirmed transaction
type TxResult struct {
	Hash        common.Hash
	BlockNumber uint64
}

// UnconfirmedError reports a transaction that was broadcast but whose receipt was never
// seen. The transaction may still be mined.
type UnconfirmedError struct {
	Hash common.Hash
	Err  error
}

func (e *UnconfirmedError) Error() string {
	return fmt.Sprintf("transaction %s sent but not confirmed: %v", e.Hash.Hex(), e.Err)
}

func (e *UnconfirmedError) Unwrap() error {
	return e.Err
}

// SentHash returns the hash of a broadcast transaction whose outcome is unknown
func SentHash(err error) (common.Hash, bool) {
	var unconfirmed *UnconfirmedError
	if errors.As(err, &unconfirmed) {
		return unconfirmed.Hash, true
	}
	return common.Hash{}, false
}

// BurnParams describes one depositForBurn call
type BurnParams struct {
	Amount            *big.Int
	DestinationDomain uint32
	Recipient         common.Address
}

// Gateway signs and submits the relayer hot wallet's transactions on one chain. Writes are
// serialized from nonce lookup through confirmation so nonces are used strictly in order.
type Gateway struct {
	chain          *chains.Config
	backend        Backend
	key            *ecdsa.PrivateKey
	from           common.Address
	signer         types.Signer
	confirmTimeout time.Duration
	logger         *zap.Logger
	mu             sync.Mutex
}

func NewGateway(chain *chains.Config, backend Backend, key *ecdsa.PrivateKey, confirmTimeout time.Duration, logger *zap.Logger) *Gateway {
	return &Gateway{
		chain:          chain,
		backend:        backend,
		key:            key,
		from:           crypto.PubkeyToAddress(key.PublicKey),
		signer:         types.LatestSignerForChainID(big.NewInt(chain.ChainID)),
		confirmTimeout: confirmTimeout,
		logger:         logger.With(zap.String("component", "gateway"), zap.String("chain", string(chain.Key))),
	}
}

// ParsePrivateKey decodes a hex private key, with or without 0x prefix
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, "parse relayer key", err, "invalid private key")
	}
	return key, nil
}

func (g *Gateway) Chain() *chains.Config {
	return g.chain
}

// Address is the hot wallet address
func (g *Gateway) Address() common.Address {
	return g.from
}

func (g *Gateway) TokenBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	return g.callUint(ctx, g.chain.Token, erc20ABI, "balanceOf", owner)
}

func (g *Gateway) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return g.callUint(ctx, g.chain.Token, erc20ABI, "allowance", owner, spender)
}

// ApproveMessenger grants the token messenger an unlimited allowance
func (g *Gateway) ApproveMessenger(ctx context.Context) (*TxResult, error) {
	return g.transact(ctx, g.chain.Token, erc20ABI, "approve", g.chain.TokenMessenger, math.MaxBig256)
}

func (g *Gateway) Transfer(ctx context.Context, to common.Address, amount *big.Int) (*TxResult, error) {
	return g.transact(ctx, g.chain.Token, erc20ABI, "transfer", to, amount)
}

// DepositForBurn burns tokens for minting to params.Recipient on the destination domain.
// Any address may complete the mint.
func (g *Gateway) DepositForBurn(ctx context.Context, params BurnParams) (*TxResult, error) {
	var recipient [32]byte
	copy(recipient[:], common.LeftPadBytes(params.Recipient.Bytes(), 32))

	return g.transact(ctx, g.chain.TokenMessenger, tokenMessengerABI, "depositForBurn",
		params.Amount,
		params.DestinationDomain,
		recipient,
		g.chain.Token,
		[32]byte{},
		big.NewInt(MaxBurnFee),
		uint32(MinFinalityThreshold),
	)
}

func (g *Gateway) ReceiveMessage(ctx context.Context, message, attestation []byte) (*TxResult, error) {
	return g.transact(ctx, g.chain.MessageTransmitter, messageTransmitterABI, "receiveMessage", message, attestation)
}

// ReleaseCustody moves amount of the chain's token from a custody contract to the hot wallet
func (g *Gateway) ReleaseCustody(ctx context.Context, custody common.Address, amount *big.Int) (*TxResult, error) {
	return g.transact(ctx, custody, custodyWalletABI, "release", g.chain.Token, g.from, amount)
}

func (g *Gateway) callUint(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) (*big.Int, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, errs.Wrap(errs.KindValidation, method, err, "failed to pack call")
	}

	out, err := g.backend.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, errs.ChainCall(method, err, "call %s failed", contract.Hex()).OnChain(string(g.chain.Key))
	}

	values, err := contractABI.Unpack(method, out)
	if err != nil || len(values) == 0 {
		return nil, errs.ChainCall(method, err, "unexpected return data from %s", contract.Hex()).OnChain(string(g.chain.Key))
	}

	value, ok := values[0].(*big.Int)
	if !ok {
		return nil, errs.ChainCall(method, nil, "unexpected return type %T", values[0]).OnChain(string(g.chain.Key))
	}
	return value, nil
}

func (g *Gateway) transact(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...interface{}) (*TxResult, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, errs.Wrap(errs.KindValidation, method, err, "failed to pack transaction")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	result, err := g.sendAndWait(ctx, to, method, data)
	status := "success"
	if err != nil {
		status = "failed"
	}
	metrics.ChainTransactionsTotal.WithLabelValues(string(g.chain.Key), method, status).Inc()

	if err != nil {
		return nil, errs.ChainCall(method, err, "transaction to %s failed", to.Hex()).OnChain(string(g.chain.Key))
	}
	return result, nil
}

func (g *Gateway) sendAndWait(ctx context.Context, to common.Address, method string, data []byte) (*TxResult, error) {
	nonce, err := g.backend.PendingNonceAt(ctx, g.from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := g.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	gasPrice = bump(gasPrice)

	gasLimit, err := g.backend.EstimateGas(ctx, ethereum.CallMsg{From: g.from, To: &to, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to estimate gas: %w", err)
	}
	gasLimit = gasLimit * gasBumpPercent / 100

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &to,
		Value:    big.NewInt(0),
		Data:     data,
	})

	signed, err := types.SignTx(tx, g.signer, g.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := g.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}

	g.logger.Info("Submitted transaction",
		zap.String("method", method),
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce))

	waitCtx, cancel := context.WithTimeout(ctx, g.confirmTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, g.backend, signed)
	if err != nil {
		return nil, &UnconfirmedError{Hash: signed.Hash(), Err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("transaction %s reverted", signed.Hash().Hex())
	}

	g.logger.Info("Transaction confirmed",
		zap.String("method", method),
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.Uint64("block_number", receipt.BlockNumber.Uint64()))

	return &TxResult{Hash: signed.Hash(), BlockNumber: receipt.BlockNumber.Uint64()}, nil
}

func bump(v *big.Int) *big.Int {
	out := new(big.Int).Mul(v, big.NewInt(gasBumpPercent))
	return out.Div(out, big.NewInt(100))
}
