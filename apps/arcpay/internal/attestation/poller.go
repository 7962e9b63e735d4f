package attestation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"arcpay/apps/arcpay/internal/clock"
	"arcpay/apps/arcpay/internal/errs"
	"arcpay/apps/arcpay/internal/metrics"
	"arcpay/apps/arcpay/internal/retry"
)

const (
	StatusComplete = "complete"

	DefaultInterval    = 5 * time.Second
	DefaultMaxAttempts = 60
)

// Attestation is a signed message that can be submitted to the destination chain
type Attestation struct {
	Message     []byte
	Attestation []byte
	Status      string
}

// Fetcher is implemented by Client
type Fetcher interface {
	FetchMessages(ctx context.Context, sourceDomain uint32, txHash string) ([]Message, error)
}

// Poller resolves a burn transaction into its attestation
type Poller struct {
	fetcher     Fetcher
	clock       clock.Clock
	interval    time.Duration
	maxAttempts int
	logger      *zap.Logger
}

func NewPoller(fetcher Fetcher, clk clock.Clock, interval time.Duration, maxAttempts int, logger *zap.Logger) *Poller {
	return &Poller{
		fetcher:     fetcher,
		clock:       clk,
		interval:    interval,
		maxAttempts: maxAttempts,
		logger:      logger.With(zap.String("component", "attestation_poller")),
	}
}

// Await polls until the service reports a complete attestation for txHash. Not-found
// responses are retried silently; other failures are logged and retried. Running out of
// attempts yields an attestation timeout error, and polling again with the same hash is safe.
func (p *Poller) Await(ctx context.Context, txHash string, sourceDomain uint32) (*Attestation, error) {
	policy := retry.Policy[*Attestation]{
		Interval:    p.interval,
		MaxAttempts: p.maxAttempts,
		Done:        func(a *Attestation) bool { return a != nil },
	}

	attempts := 0
	result, err := retry.Poll(ctx, p.clock, policy, func(ctx context.Context, attempt int) (*Attestation, error) {
		attempts = attempt

		messages, err := p.fetcher.FetchMessages(ctx, sourceDomain, txHash)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			p.logger.Warn("Attestation request failed",
				zap.String("tx_hash", txHash),
				zap.Uint32("source_domain", sourceDomain),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return nil, err
		}

		attestation, err := firstComplete(messages)
		if err != nil {
			p.logger.Warn("Malformed attestation response", zap.String("tx_hash", txHash), zap.Int("attempt", attempt), zap.Error(err))
			return nil, err
		}
		return attestation, nil
	})

	metrics.AttestationPollAttempts.Observe(float64(attempts))

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, errs.AttestationTimeout("await attestation", err, "attestation wait cancelled after %d attempts for %s", attempts, txHash)
		}

		metrics.AttestationTimeouts.Inc()
		cause := err
		if errors.Is(err, retry.ErrExhausted) {
			cause = errors.Unwrap(err)
		}
		return nil, errs.AttestationTimeout("await attestation", cause, "attestation timeout after %d attempts for %s", attempts, txHash)
	}

	p.logger.Info("Attestation complete", zap.String("tx_hash", txHash), zap.Int("attempts", attempts))
	return result, nil
}

func firstComplete(messages []Message) (*Attestation, error) {
	for _, m := range messages {
		if m.Status != StatusComplete {
			continue
		}

		message, err := hexutil.Decode(m.Message)
		if err != nil {
			return nil, fmt.Errorf("failed to decode message: %w", err)
		}
		attestation, err := hexutil.Decode(m.Attestation)
		if err != nil {
			return nil, fmt.Errorf("failed to decode attestation: %w", err)
		}

		return &Attestation{Message: message, Attestation: attestation, Status: m.Status}, nil
	}
	return nil, nil
}
