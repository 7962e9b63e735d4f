package chains

import (
	"os"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"arcpay/apps/arcpay/internal/errs"
)

// Override replaces selected fields of a default chain config. Empty fields keep the default.
type Override struct {
	Name               string  `yaml:"name"`
	ChainID            int64   `yaml:"chain-id"`
	RPCURL             string  `yaml:"rpc-url"`
	Token              string  `yaml:"token"`
	TokenMessenger     string  `yaml:"token-messenger"`
	MessageTransmitter string  `yaml:"message-transmitter"`
	Domain             *uint32 `yaml:"domain"`
	ExplorerURL        string  `yaml:"explorer-url"`
}

type overridesFile struct {
	Chains map[string]Override `yaml:"chains"`
}

// LoadOverrides reads a YAML file of the form
//
//	chains:
//	  arc:
//	    rpc-url: https://...
func LoadOverrides(path string) (map[Key]Override, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, "load chain overrides", err, path)
	}
	return ParseOverrides(raw)
}

// ParseOverrides decodes override YAML, rejecting unknown chain keys
func ParseOverrides(raw []byte) (map[Key]Override, error) {
	var file overridesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, "parse chain overrides", err, "invalid yaml")
	}

	out := make(map[Key]Override, len(file.Chains))
	for name, o := range file.Chains {
		key, err := ParseKey(name)
		if err != nil {
			return nil, errs.Configuration("parse chain overrides", "unsupported chain %q", name)
		}
		for _, addr := range []string{o.Token, o.TokenMessenger, o.MessageTransmitter} {
			if addr != "" && !common.IsHexAddress(addr) {
				return nil, errs.Configuration("parse chain overrides", "%s: invalid address %q", key, addr)
			}
		}
		out[key] = o
	}

	return out, nil
}

// Apply merges overrides and per-chain RPC urls into the defaults. Only chains in
// enabled are returned; a nil enabled keeps every default chain.
func Apply(defaults []Config, overrides map[Key]Override, rpcURLs map[Key]string, enabled []Key) []Config {
	want := make(map[Key]bool, len(enabled))
	for _, k := range enabled {
		want[k] = true
	}

	out := make([]Config, 0, len(defaults))
	for _, cfg := range defaults {
		if enabled != nil && !want[cfg.Key] {
			continue
		}

		if o, ok := overrides[cfg.Key]; ok {
			if o.Name != "" {
				cfg.Name = o.Name
			}
			if o.ChainID != 0 {
				cfg.ChainID = o.ChainID
			}
			if o.RPCURL != "" {
				cfg.RPCURL = o.RPCURL
			}
			if o.Token != "" {
				cfg.Token = common.HexToAddress(o.Token)
			}
			if o.TokenMessenger != "" {
				cfg.TokenMessenger = common.HexToAddress(o.TokenMessenger)
			}
			if o.MessageTransmitter != "" {
				cfg.MessageTransmitter = common.HexToAddress(o.MessageTransmitter)
			}
			if o.Domain != nil {
				cfg.Domain = *o.Domain
			}
			if o.ExplorerURL != "" {
				cfg.ExplorerURL = o.ExplorerURL
			}
		}

		if rpc, ok := rpcURLs[cfg.Key]; ok && rpc != "" {
			cfg.RPCURL = rpc
		}

		out = append(out, cfg)
	}

	return out
}
