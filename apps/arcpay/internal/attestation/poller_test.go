package attestation

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"arcpay/apps/arcpay/internal/clock"
	"arcpay/apps/arcpay/internal/errs"
)

const burnHash = "0x8c5a5cb0b4f1d1b6d6a8c6a0f0d4c8e2f2f1b2c3d4e5f60718293a4b5c6d7e8f"

// ============================================
// Test helpers
// ============================================

type iris struct {
	t         *testing.T
	calls     atomic.Int32
	notFound  int32
	respond   func(call int32) (int, interface{})
	lastQuery atomic.Value
}

func (s *iris) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := s.calls.Add(1)
		s.lastQuery.Store(r.URL.Path + "?" + r.URL.RawQuery)

		if call <= s.notFound {
			http.NotFound(w, r)
			return
		}

		code, body := s.respond(call)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		assert.NoError(s.t, json.NewEncoder(w).Encode(body))
	})
}

func completeBody() interface{} {
	return map[string]interface{}{
		"messages": []map[string]interface{}{
			{"message": "0x0102", "attestation": "0xaabb", "status": "pending_confirmations"},
			{"message": "0x0a0b0c", "attestation": "0xdeadbeef", "status": "complete"},
		},
	}
}

func newTestPoller(t *testing.T, baseURL string, clk clock.Clock) *Poller {
	return NewPoller(NewClient(baseURL, 1000), clk, DefaultInterval, DefaultMaxAttempts, zaptest.NewLogger(t))
}

// ============================================
// Poller
// ============================================

func TestAwaitRetriesNotFoundThenSucceeds(t *testing.T) {
	fake := &iris{t: t, notFound: 3, respond: func(int32) (int, interface{}) { return http.StatusOK, completeBody() }}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	clk := clock.NewManual(time.Unix(0, 0))
	result, err := newTestPoller(t, server.URL, clk).Await(context.Background(), burnHash, 26)

	require.NoError(t, err)
	assert.Equal(t, []byte{0x0a, 0x0b, 0x0c}, result.Message)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, result.Attestation)
	assert.Equal(t, StatusComplete, result.Status)
	assert.Equal(t, int32(4), fake.calls.Load())
	assert.Equal(t, []time.Duration{DefaultInterval, DefaultInterval, DefaultInterval}, clk.Sleeps())
	assert.Equal(t, "/v2/messages/26?transactionHash="+burnHash, fake.lastQuery.Load())
}

func TestAwaitTimesOut(t *testing.T) {
	fake := &iris{t: t, respond: func(int32) (int, interface{}) {
		return http.StatusOK, map[string]interface{}{
			"messages": []map[string]interface{}{{"message": "0x", "attestation": "PENDING", "status": "pending_confirmations"}},
		}
	}}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	clk := clock.NewManual(time.Unix(0, 0))
	_, err := newTestPoller(t, server.URL, clk).Await(context.Background(), burnHash, 0)

	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindAttestationTimeout))
	assert.Contains(t, err.Error(), "timeout")
	assert.Equal(t, int32(DefaultMaxAttempts), fake.calls.Load())
	assert.Len(t, clk.Sleeps(), DefaultMaxAttempts-1)
}

func TestAwaitRetriesServerErrors(t *testing.T) {
	fake := &iris{t: t, respond: func(call int32) (int, interface{}) {
		if call < 3 {
			return http.StatusInternalServerError, map[string]string{"error": "boom"}
		}
		return http.StatusOK, completeBody()
	}}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	result, err := newTestPoller(t, server.URL, clock.NewManual(time.Unix(0, 0))).Await(context.Background(), burnHash, 3)

	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, result.Attestation)
	assert.Equal(t, int32(3), fake.calls.Load())
}

func TestAwaitCancelledIsResumable(t *testing.T) {
	fake := &iris{t: t, notFound: 100}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	clk := clock.NewManual(time.Unix(0, 0))
	clk.OnSleep = func(n int) {
		if n == 2 {
			cancel()
		}
	}

	_, err := newTestPoller(t, server.URL, clk).Await(ctx, burnHash, 26)
	require.Error(t, err)
	assert.True(t, errs.IsResumable(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "attestation wait cancelled after 2 attempts")
	assert.NotContains(t, err.Error(), "timeout after")
}

// ============================================
// Client
// ============================================

func TestClientStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer server.Close()

	_, err := NewClient(server.URL+"/", 1000).FetchMessages(context.Background(), 0, burnHash)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Equal(t, "slow down", statusErr.Body)
}

// ============================================
// Burn message
// ============================================

func TestBurnMessageRoundTrip(t *testing.T) {
	recipient := common.HexToAddress("0x1111111111111111111111111111111111111111")
	raw := EncodeBurnMessage(BurnMessage{
		SourceDomain:      26,
		DestinationDomain: 0,
		MintRecipient:     recipient,
		Amount:            big.NewInt(9_995_000),
	})

	decoded, err := DecodeBurnMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, uint32(26), decoded.SourceDomain)
	assert.Equal(t, uint32(0), decoded.DestinationDomain)
	assert.Equal(t, recipient, decoded.MintRecipient)
	assert.Equal(t, big.NewInt(9_995_000), decoded.Amount)

	_, err = DecodeBurnMessage(hexutil.MustDecode("0x0102"))
	assert.Error(t, err)
}
