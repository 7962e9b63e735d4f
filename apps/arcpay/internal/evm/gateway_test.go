package evm

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"arcpay/apps/arcpay/internal/chains"
	"arcpay/apps/arcpay/internal/errs"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

// ============================================
// Fake backend
// ============================================

type fakeBackend struct {
	mu        sync.Mutex
	sent      []*types.Transaction
	receipts  map[common.Hash]*types.Receipt
	revert    bool
	unmined   bool
	sendErr   error
	callOut   []byte
	callErr   error
	lastCall  ethereum.CallMsg
	nonceSeen []uint64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{receipts: make(map[common.Hash]*types.Receipt)}
}

func (f *fakeBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCall = call
	return f.callOut, f.callErr
}

func (f *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.sent)), nil
}

func (f *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

func (f *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	f.nonceSeen = append(f.nonceSeen, tx.Nonce())
	if f.unmined {
		return nil
	}

	status := types.ReceiptStatusSuccessful
	if f.revert {
		status = types.ReceiptStatusFailed
	}
	f.receipts[tx.Hash()] = &types.Receipt{
		Status:      status,
		TxHash:      tx.Hash(),
		BlockNumber: big.NewInt(int64(100 + len(f.sent))),
	}
	return nil
}

func (f *fakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.receipts[txHash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (f *fakeBackend) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x1}, nil
}

func (f *fakeBackend) lastSent(t *testing.T) *types.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

func newTestGateway(t *testing.T, backend Backend) *Gateway {
	registry, err := chains.NewRegistry(chains.Defaults())
	require.NoError(t, err)
	arc, err := registry.Get(chains.Arc)
	require.NoError(t, err)

	key, err := ParsePrivateKey(testKey)
	require.NoError(t, err)

	return NewGateway(arc, backend, key, 5*time.Second, zap.NewNop())
}

// ============================================
// Writes
// ============================================

func TestDepositForBurnEncodesArguments(t *testing.T) {
	backend := newFakeBackend()
	gw := newTestGateway(t, backend)
	recipient := common.HexToAddress("0x2222222222222222222222222222222222222222")

	result, err := gw.DepositForBurn(context.Background(), BurnParams{
		Amount:            big.NewInt(9_995_000),
		DestinationDomain: 0,
		Recipient:         recipient,
	})
	require.NoError(t, err)

	tx := backend.lastSent(t)
	assert.Equal(t, tx.Hash(), result.Hash)
	assert.Equal(t, uint64(101), result.BlockNumber)
	assert.Equal(t, gw.Chain().TokenMessenger, *tx.To())
	assert.Equal(t, uint64(120_000), tx.Gas())
	assert.Equal(t, big.NewInt(1_200_000_000), tx.GasPrice())

	method, err := tokenMessengerABI.MethodById(tx.Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "depositForBurn", method.Name)

	args, err := method.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	require.Len(t, args, 7)

	var padded [32]byte
	copy(padded[12:], recipient.Bytes())

	assert.Equal(t, big.NewInt(9_995_000), args[0])
	assert.Equal(t, uint32(0), args[1])
	assert.Equal(t, padded, args[2])
	assert.Equal(t, gw.Chain().Token, args[3])
	assert.Equal(t, [32]byte{}, args[4])
	assert.Equal(t, big.NewInt(MaxBurnFee), args[5])
	assert.Equal(t, uint32(MinFinalityThreshold), args[6])

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(gw.Chain().ChainID)), tx)
	require.NoError(t, err)
	assert.Equal(t, gw.Address(), sender)
}

func TestApproveMessengerIsUnlimited(t *testing.T) {
	backend := newFakeBackend()
	gw := newTestGateway(t, backend)

	_, err := gw.ApproveMessenger(context.Background())
	require.NoError(t, err)

	tx := backend.lastSent(t)
	assert.Equal(t, gw.Chain().Token, *tx.To())

	args, err := erc20ABI.Methods["approve"].Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, gw.Chain().TokenMessenger, args[0])
	assert.Equal(t, math.MaxBig256, args[1])
}

func TestReleaseCustodyPaysHotWallet(t *testing.T) {
	backend := newFakeBackend()
	gw := newTestGateway(t, backend)
	custody := common.HexToAddress("0x3333333333333333333333333333333333333333")

	_, err := gw.ReleaseCustody(context.Background(), custody, big.NewInt(10_000_000))
	require.NoError(t, err)

	tx := backend.lastSent(t)
	assert.Equal(t, custody, *tx.To())

	args, err := custodyWalletABI.Methods["release"].Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, gw.Chain().Token, args[0])
	assert.Equal(t, gw.Address(), args[1])
	assert.Equal(t, big.NewInt(10_000_000), args[2])
}

func TestRevertedTransactionIsChainCallError(t *testing.T) {
	backend := newFakeBackend()
	backend.revert = true
	gw := newTestGateway(t, backend)

	_, err := gw.ReceiveMessage(context.Background(), []byte{0x1}, []byte{0x2})

	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindChainCall))
	assert.Contains(t, err.Error(), "reverted")
	assert.Contains(t, err.Error(), "arc")
}

func TestUnminedTransactionReportsSentHash(t *testing.T) {
	backend := newFakeBackend()
	backend.unmined = true
	gw := newTestGateway(t, backend)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := gw.DepositForBurn(ctx, BurnParams{
		Amount:            big.NewInt(9_995_000),
		DestinationDomain: 0,
		Recipient:         common.HexToAddress("0x1111111111111111111111111111111111111111"),
	})

	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindChainCall))
	hash, ok := SentHash(err)
	require.True(t, ok)
	assert.Equal(t, backend.lastSent(t).Hash(), hash)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRevertedTransactionHasNoSentHash(t *testing.T) {
	backend := newFakeBackend()
	backend.revert = true
	gw := newTestGateway(t, backend)

	_, err := gw.Transfer(context.Background(), common.HexToAddress("0x4444444444444444444444444444444444444444"), big.NewInt(1))

	require.Error(t, err)
	_, ok := SentHash(err)
	assert.False(t, ok)
}

func TestSendFailureIsChainCallError(t *testing.T) {
	backend := newFakeBackend()
	backend.sendErr = errors.New("nonce too low")
	gw := newTestGateway(t, backend)

	_, err := gw.Transfer(context.Background(), common.HexToAddress("0x4444444444444444444444444444444444444444"), big.NewInt(1))

	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindChainCall))
	assert.Contains(t, err.Error(), "nonce too low")
}

func TestConcurrentWritesUseSequentialNonces(t *testing.T) {
	backend := newFakeBackend()
	gw := newTestGateway(t, backend)
	to := common.HexToAddress("0x5555555555555555555555555555555555555555")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := gw.Transfer(context.Background(), to, big.NewInt(1))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, []uint64{0, 1, 2, 3, 4, 5, 6, 7}, backend.nonceSeen)
}

// ============================================
// Reads
// ============================================

func TestTokenBalance(t *testing.T) {
	backend := newFakeBackend()
	out, err := erc20ABI.Methods["balanceOf"].Outputs.Pack(big.NewInt(42_000_000))
	require.NoError(t, err)
	backend.callOut = out

	gw := newTestGateway(t, backend)
	owner := common.HexToAddress("0x6666666666666666666666666666666666666666")

	balance, err := gw.TokenBalance(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(42_000_000), balance)
	assert.Equal(t, gw.Chain().Token, *backend.lastCall.To)
}

func TestAllowanceCallFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.callErr = errors.New("connection refused")
	gw := newTestGateway(t, backend)

	_, err := gw.Allowance(context.Background(), gw.Address(), gw.Chain().TokenMessenger)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindChainCall))
}

func TestParsePrivateKey(t *testing.T) {
	key, err := ParsePrivateKey("0x" + testKey)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"), crypto.PubkeyToAddress(key.PublicKey))

	_, err = ParsePrivateKey("nope")
	assert.True(t, errs.IsKind(err, errs.KindConfiguration))
}

func TestGatewaySetLookup(t *testing.T) {
	gw := newTestGateway(t, newFakeBackend())
	set := NewGatewaySet(gw)

	got, err := set.Get(chains.Arc)
	require.NoError(t, err)
	assert.Same(t, gw, got)
	assert.Equal(t, []chains.Key{chains.Arc}, set.Keys())

	_, err = set.Get(chains.Sepolia)
	assert.True(t, errs.IsKind(err, errs.KindValidation))
	set.Close()
}
