package chains

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"arcpay/apps/arcpay/internal/errs"
)

// Key identifies one of the supported chains
type Key string

const (
	Arc             Key = "arc"
	Sepolia         Key = "sepolia"
	AvalancheFuji   Key = "avalanche-fuji"
	OptimismSepolia Key = "optimism-sepolia"
	ArbitrumSepolia Key = "arbitrum-sepolia"
	BaseSepolia     Key = "base-sepolia"
)

// AllKeys is the closed set of chain keys
var AllKeys = []Key{Arc, Sepolia, AvalancheFuji, OptimismSepolia, ArbitrumSepolia, BaseSepolia}

// CCTP V2 contracts share their addresses across the EVM testnets
const (
	tokenMessengerV2     = "0x8FE6B999Dc680CcFDD5Bf7EB0974218be2542DAA"
	messageTransmitterV2 = "0xE737e5cEBEEBa77EFE34D4aa090756590b1CE275"
)

// ParseKey resolves a user supplied chain name to a Key
func ParseKey(s string) (Key, error) {
	normalized := Key(strings.ToLower(strings.TrimSpace(s)))
	for _, k := range AllKeys {
		if k == normalized {
			return k, nil
		}
	}
	return "", errs.Validation("parse chain", "unsupported chain %q", s)
}

// Config holds everything needed to talk to one chain
type Config struct {
	Key                Key            `json:"key"`
	Name               string         `json:"name"`
	ChainID            int64          `json:"chain_id"`
	RPCURL             string         `json:"-"`
	Token              common.Address `json:"token"`
	TokenMessenger     common.Address `json:"token_messenger"`
	MessageTransmitter common.Address `json:"message_transmitter"`
	Domain             uint32         `json:"domain"`
	ExplorerURL        string         `json:"explorer_url"`
}

// TxURL returns the block explorer link for a transaction hash
func (c *Config) TxURL(txHash string) string {
	return strings.TrimRight(c.ExplorerURL, "/") + "/tx/" + txHash
}

// Defaults returns the built-in testnet table
func Defaults() []Config {
	return []Config{
		{
			Key:         Arc,
			Name:        "Arc Testnet",
			ChainID:     5042002,
			RPCURL:      "https://rpc.testnet.arc.network",
			Token:       common.HexToAddress("0x3600000000000000000000000000000000000000"),
			Domain:      26,
			ExplorerURL: "https://testnet.arcscan.app",
		},
		{
			Key:         Sepolia,
			Name:        "Ethereum Sepolia",
			ChainID:     11155111,
			RPCURL:      "https://ethereum-sepolia-rpc.publicnode.com",
			Token:       common.HexToAddress("0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"),
			Domain:      0,
			ExplorerURL: "https://sepolia.etherscan.io",
		},
		{
			Key:         AvalancheFuji,
			Name:        "Avalanche Fuji",
			ChainID:     43113,
			RPCURL:      "https://api.avax-test.network/ext/bc/C/rpc",
			Token:       common.HexToAddress("0x5425890298aed601595a70AB815c96711a31Bc65"),
			Domain:      1,
			ExplorerURL: "https://testnet.snowtrace.io",
		},
		{
			Key:         OptimismSepolia,
			Name:        "OP Sepolia",
			ChainID:     11155420,
			RPCURL:      "https://sepolia.optimism.io",
			Token:       common.HexToAddress("0x5fd84259d66Cd46123540766Be93DFE6D43130D7"),
			Domain:      2,
			ExplorerURL: "https://sepolia-optimism.etherscan.io",
		},
		{
			Key:         ArbitrumSepolia,
			Name:        "Arbitrum Sepolia",
			ChainID:     421614,
			RPCURL:      "https://sepolia-rollup.arbitrum.io/rpc",
			Token:       common.HexToAddress("0x75faf114eafb1BDbe2F0316DF893fd58CE46AA4d"),
			Domain:      3,
			ExplorerURL: "https://sepolia.arbiscan.io",
		},
		{
			Key:         BaseSepolia,
			Name:        "Base Sepolia",
			ChainID:     84532,
			RPCURL:      "https://sepolia.base.org",
			Token:       common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e"),
			Domain:      6,
			ExplorerURL: "https://sepolia.basescan.org",
		},
	}
}

// withBridgeContracts sets the shared CCTP contracts where a config leaves them empty
func withBridgeContracts(c Config) Config {
	if c.TokenMessenger == (common.Address{}) {
		c.TokenMessenger = common.HexToAddress(tokenMessengerV2)
	}
	if c.MessageTransmitter == (common.Address{}) {
		c.MessageTransmitter = common.HexToAddress(messageTransmitterV2)
	}
	return c
}

// Registry holds the validated chain table
type Registry struct {
	byKey    map[Key]*Config
	byDomain map[uint32]*Config
}

// NewRegistry validates every config once and indexes them. Any problem is a
// configuration error.
func NewRegistry(configs []Config) (*Registry, error) {
	registry := &Registry{
		byKey:    make(map[Key]*Config),
		byDomain: make(map[uint32]*Config),
	}

	for i := range configs {
		cfg := withBridgeContracts(configs[i])
		if err := validate(&cfg); err != nil {
			return nil, err
		}
		if _, exists := registry.byKey[cfg.Key]; exists {
			return nil, errs.Configuration("chain registry", "duplicate chain %s", cfg.Key)
		}
		if other, exists := registry.byDomain[cfg.Domain]; exists {
			return nil, errs.Configuration("chain registry", "domain %d used by both %s and %s", cfg.Domain, other.Key, cfg.Key)
		}

		registry.byKey[cfg.Key] = &cfg
		registry.byDomain[cfg.Domain] = &cfg
	}

	if len(registry.byKey) == 0 {
		return nil, errs.Configuration("chain registry", "no chains configured")
	}

	return registry, nil
}

func validate(cfg *Config) error {
	op := fmt.Sprintf("chain %s", cfg.Key)

	if _, err := ParseKey(string(cfg.Key)); err != nil {
		return errs.Configuration(op, "unsupported chain key")
	}
	if cfg.ChainID <= 0 {
		return errs.Configuration(op, "chain id must be positive")
	}
	if cfg.RPCURL == "" {
		return errs.Configuration(op, "rpc url is required")
	}
	if u, err := url.Parse(cfg.RPCURL); err != nil || u.Scheme == "" || u.Host == "" {
		return errs.Configuration(op, "invalid rpc url %q", cfg.RPCURL)
	}

	zero := common.Address{}
	if cfg.Token == zero {
		return errs.Configuration(op, "token address is required")
	}
	if cfg.TokenMessenger == zero || cfg.MessageTransmitter == zero {
		return errs.Configuration(op, "bridge contract addresses are required")
	}

	return nil
}

// Get returns the config for key or a validation error for an unknown chain
func (r *Registry) Get(key Key) (*Config, error) {
	if cfg, ok := r.byKey[key]; ok {
		return cfg, nil
	}
	return nil, errs.Validation("chain registry", "chain %q is not configured", key)
}

// ByDomain returns the chain registered for a bridge domain id
func (r *Registry) ByDomain(domain uint32) (*Config, bool) {
	cfg, ok := r.byDomain[domain]
	return cfg, ok
}

// Keys returns the configured chain keys in sorted order
func (r *Registry) Keys() []Key {
	keys := make([]Key, 0, len(r.byKey))
	for k := range r.byKey {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// All returns the configured chains ordered by key
func (r *Registry) All() []*Config {
	keys := r.Keys()
	out := make([]*Config, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.byKey[k])
	}
	return out
}
