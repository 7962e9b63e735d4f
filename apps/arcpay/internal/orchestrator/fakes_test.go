package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"arcpay/apps/arcpay/internal/attestation"
	"arcpay/apps/arcpay/internal/chains"
	"arcpay/apps/arcpay/internal/clock"
	"arcpay/apps/arcpay/internal/errs"
	"arcpay/apps/arcpay/internal/evm"
	"arcpay/apps/arcpay/internal/model"
)

var (
	hotWallet = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	recipient = common.HexToAddress("0x1111111111111111111111111111111111111111")
	custody   = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

// ============================================
// Fake gateway
// ============================================

type fakeGateway struct {
	mu        sync.Mutex
	chain     *chains.Config
	balances  map[common.Address]*big.Int
	allowance *big.Int
	calls     []string
	burns     []evm.BurnParams
	transfers []*big.Int
	minted    map[string]bool
	failOn    map[string]error
	hashSeq   int
	onBurn    func()
}

func newFakeGateway(chain *chains.Config) *fakeGateway {
	return &fakeGateway{
		chain:     chain,
		balances:  make(map[common.Address]*big.Int),
		allowance: big.NewInt(0),
		minted:    make(map[string]bool),
		failOn:    make(map[string]error),
	}
}

func (g *fakeGateway) record(method string) (*evm.TxResult, error) {
	g.calls = append(g.calls, method)
	if err := g.failOn[method]; err != nil {
		return nil, err
	}
	g.hashSeq++
	hash := common.BytesToHash([]byte(fmt.Sprintf("%s-%s-%d", g.chain.Key, method, g.hashSeq)))
	return &evm.TxResult{Hash: hash, BlockNumber: uint64(1000 + g.hashSeq)}, nil
}

func (g *fakeGateway) balance(addr common.Address) *big.Int {
	if b, ok := g.balances[addr]; ok {
		return b
	}
	return big.NewInt(0)
}

func (g *fakeGateway) Chain() *chains.Config   { return g.chain }
func (g *fakeGateway) Address() common.Address { return hotWallet }

func (g *fakeGateway) TokenBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, "balanceOf")
	if err := g.failOn["balanceOf"]; err != nil {
		return nil, err
	}
	return new(big.Int).Set(g.balance(owner)), nil
}

func (g *fakeGateway) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, "allowance")
	return new(big.Int).Set(g.allowance), nil
}

func (g *fakeGateway) ApproveMessenger(ctx context.Context) (*evm.TxResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	res, err := g.record("approve")
	if err == nil {
		g.allowance = new(big.Int).Lsh(big.NewInt(1), 255)
	}
	return res, err
}

func (g *fakeGateway) Transfer(ctx context.Context, to common.Address, amount *big.Int) (*evm.TxResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	res, err := g.record("transfer")
	if err == nil {
		g.transfers = append(g.transfers, amount)
		g.balances[hotWallet] = new(big.Int).Sub(g.balance(hotWallet), amount)
		g.balances[to] = new(big.Int).Add(g.balance(to), amount)
	}
	return res, err
}

func (g *fakeGateway) DepositForBurn(ctx context.Context, params evm.BurnParams) (*evm.TxResult, error) {
	g.mu.Lock()
	res, err := g.record("depositForBurn")
	if err == nil {
		g.burns = append(g.burns, params)
		g.balances[hotWallet] = new(big.Int).Sub(g.balance(hotWallet), params.Amount)
	}
	hook := g.onBurn
	g.mu.Unlock()

	if hook != nil {
		hook()
	}
	return res, err
}

func (g *fakeGateway) ReceiveMessage(ctx context.Context, message, signature []byte) (*evm.TxResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := hexutil.Encode(message)
	if g.minted[key] {
		g.calls = append(g.calls, "receiveMessage")
		return nil, errs.ChainCall("receiveMessage", errors.New("execution reverted: Nonce already used"), "transaction failed").OnChain(string(g.chain.Key))
	}
	res, err := g.record("receiveMessage")
	if err == nil {
		g.minted[key] = true
	}
	return res, err
}

func (g *fakeGateway) ReleaseCustody(ctx context.Context, from common.Address, amount *big.Int) (*evm.TxResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	res, err := g.record("release")
	if err == nil {
		g.balances[from] = new(big.Int).Sub(g.balance(from), amount)
		g.balances[hotWallet] = new(big.Int).Add(g.balance(hotWallet), amount)
	}
	return res, err
}

func (g *fakeGateway) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func (g *fakeGateway) count(method string) int {
	n := 0
	for _, c := range g.Calls() {
		if c == method {
			n++
		}
	}
	return n
}

// ============================================
// Fake attestation source
// ============================================

type fakeAttestations struct {
	mu       sync.Mutex
	requests []string
	err      error
	dstFor   func(txHash string) uint32
	onAwait  func(txHash string)
}

func (f *fakeAttestations) Await(ctx context.Context, txHash string, sourceDomain uint32) (*attestation.Attestation, error) {
	f.mu.Lock()
	f.requests = append(f.requests, txHash)
	err := f.err
	hook := f.onAwait
	f.mu.Unlock()

	if hook != nil {
		hook(txHash)
	}
	if err != nil {
		return nil, err
	}

	dst := uint32(0)
	if f.dstFor != nil {
		dst = f.dstFor(txHash)
	}
	return &attestation.Attestation{
		Message: attestation.EncodeBurnMessage(attestation.BurnMessage{
			SourceDomain:      sourceDomain,
			DestinationDomain: dst,
			MintRecipient:     recipient,
			Amount:            big.NewInt(9_995_000),
		}),
		Attestation: []byte("sig:" + txHash),
		Status:      attestation.StatusComplete,
	}, nil
}

func (f *fakeAttestations) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

// ============================================
// Fake ledger
// ============================================

var errNotPending = errors.New("execution is not pending")

type fakeStore struct {
	mu    sync.Mutex
	now   time.Time
	byID  map[string]*model.TransferExecution
	order []string
	log   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{byID: make(map[string]*model.TransferExecution), now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (s *fakeStore) tick() time.Time {
	s.now = s.now.Add(time.Second)
	return s.now
}

func (s *fakeStore) Create(ctx context.Context, e *model.TransferExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.Status = model.ExecutionPending
	e.CreatedAt = s.tick()
	e.UpdatedAt = e.CreatedAt
	stored := *e
	s.byID[e.ID] = &stored
	s.order = append(s.order, e.ID)
	s.log = append(s.log, "create:"+e.ID)
	return nil
}

func (s *fakeStore) RecordRelease(ctx context.Context, id, releaseTxHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	e, ok := s.byID[id]
	if !ok || e.Status != model.ExecutionPending {
		return errNotPending
	}
	e.ReleaseTxHash = &releaseTxHash
	s.log = append(s.log, "release:"+id)
	return nil
}

func (s *fakeStore) RecordBurn(ctx context.Context, id, burnTxHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	e, ok := s.byID[id]
	if !ok || e.Status != model.ExecutionPending {
		return errNotPending
	}
	e.BurnTxHash = &burnTxHash
	s.log = append(s.log, "burn:"+id)
	return nil
}

func (s *fakeStore) Complete(ctx context.Context, id string, result model.ExecutionResult) (*model.TransferExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok || e.Status != model.ExecutionPending {
		return nil, errNotPending
	}
	e.Status = model.ExecutionSuccess
	if result.MintTxHash != "" {
		v := result.MintTxHash
		e.MintTxHash = &v
	}
	if result.TxHash != "" {
		v := result.TxHash
		e.TxHash = &v
	}
	done := s.tick()
	e.CompletedAt = &done
	s.log = append(s.log, "complete:"+id)
	out := *e
	return &out, nil
}

func (s *fakeStore) Fail(ctx context.Context, id, message string) (*model.TransferExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok || e.Status != model.ExecutionPending {
		return nil, errNotPending
	}
	e.Status = model.ExecutionFailed
	e.ErrorMessage = &message
	done := s.tick()
	e.CompletedAt = &done
	s.log = append(s.log, "fail:"+id)
	out := *e
	return &out, nil
}

func (s *fakeStore) Get(ctx context.Context, id string) (*model.TransferExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	out := *e
	return &out, nil
}

func (s *fakeStore) all() []model.TransferExecution {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.TransferExecution, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.byID[id])
	}
	return out
}

func (s *fakeStore) hasBurn(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	return ok && e.BurnTxHash != nil
}

// ============================================
// Fixture
// ============================================

type fixture struct {
	orchestrator *Orchestrator
	arc          *fakeGateway
	sepolia      *fakeGateway
	attestations *fakeAttestations
	store        *fakeStore
}

func newFixture(t *testing.T) *fixture {
	registry, err := chains.NewRegistry(chains.Defaults())
	require.NoError(t, err)
	arcCfg, err := registry.Get(chains.Arc)
	require.NoError(t, err)
	sepoliaCfg, err := registry.Get(chains.Sepolia)
	require.NoError(t, err)

	f := &fixture{
		arc:          newFakeGateway(arcCfg),
		sepolia:      newFakeGateway(sepoliaCfg),
		attestations: &fakeAttestations{},
		store:        newFakeStore(),
	}
	f.arc.balances[hotWallet] = big.NewInt(1_000_000_000)

	gateways := map[chains.Key]ChainGateway{chains.Arc: f.arc, chains.Sepolia: f.sepolia}
	f.orchestrator = New(gateways, f.attestations, f.store, clock.NewManual(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)), zaptest.NewLogger(t))
	return f
}

// unconfirmed builds the error a gateway returns when a transaction was broadcast but its
// receipt never arrived
func unconfirmed(method string, hash common.Hash) error {
	return errs.ChainCall(method, &evm.UnconfirmedError{Hash: hash, Err: context.DeadlineExceeded}, "transaction failed")
}

func crossChainRequest() Request {
	return Request{
		Owner:            "alice",
		SourceChain:      chains.Arc,
		DestinationChain: chains.Sepolia,
		Recipient:        recipient.Hex(),
		Amount:           "10.00",
	}
}
