package evm

import (
	"context"
	"crypto/ecdsa"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"arcpay/apps/arcpay/internal/chains"
	"arcpay/apps/arcpay/internal/errs"
)

// Gateways holds one Gateway per configured chain
type Gateways struct {
	byKey   map[chains.Key]*Gateway
	clients []*ethclient.Client
}

// DialGateways connects to every chain in the registry with the same hot wallet key
func DialGateways(ctx context.Context, registry *chains.Registry, key *ecdsa.PrivateKey, confirmTimeout time.Duration, logger *zap.Logger) (*Gateways, error) {
	gateways := &Gateways{byKey: make(map[chains.Key]*Gateway)}

	for _, k := range registry.Keys() {
		cfg, err := registry.Get(k)
		if err != nil {
			gateways.Close()
			return nil, err
		}

		client, err := ethclient.DialContext(ctx, cfg.RPCURL)
		if err != nil {
			gateways.Close()
			return nil, errs.ChainCall("dial", err, "failed to connect to %s", cfg.Name).OnChain(string(k))
		}

		gateways.clients = append(gateways.clients, client)
		gateways.byKey[k] = NewGateway(cfg, client, key, confirmTimeout, logger)
	}

	return gateways, nil
}

// NewGatewaySet wraps already constructed gateways
func NewGatewaySet(gateways ...*Gateway) *Gateways {
	set := &Gateways{byKey: make(map[chains.Key]*Gateway)}
	for _, g := range gateways {
		set.byKey[g.chain.Key] = g
	}
	return set
}

func (g *Gateways) Get(key chains.Key) (*Gateway, error) {
	if gw, ok := g.byKey[key]; ok {
		return gw, nil
	}
	return nil, errs.Validation("gateway", "no gateway for chain %q", key)
}

// Keys returns the chains with a gateway
func (g *Gateways) Keys() []chains.Key {
	keys := make([]chains.Key, 0, len(g.byKey))
	for k := range g.byKey {
		keys = append(keys, k)
	}
	return keys
}

func (g *Gateways) Close() {
	for _, c := range g.clients {
		c.Close()
	}
}
