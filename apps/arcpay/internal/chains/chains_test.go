package chains

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arcpay/apps/arcpay/internal/errs"
)

func TestDefaultRegistry(t *testing.T) {
	registry, err := NewRegistry(Defaults())
	require.NoError(t, err)

	assert.Len(t, registry.Keys(), len(AllKeys))

	arc, err := registry.Get(Arc)
	require.NoError(t, err)
	assert.Equal(t, uint32(26), arc.Domain)
	assert.Equal(t, common.HexToAddress(tokenMessengerV2), arc.TokenMessenger)
	assert.Equal(t, common.HexToAddress(messageTransmitterV2), arc.MessageTransmitter)

	sepolia, ok := registry.ByDomain(0)
	require.True(t, ok)
	assert.Equal(t, Sepolia, sepolia.Key)
	assert.Equal(t, "https://sepolia.etherscan.io/tx/0xabc", sepolia.TxURL("0xabc"))
}

func TestRegistryGetUnknown(t *testing.T) {
	registry, err := NewRegistry(Defaults()[:1])
	require.NoError(t, err)

	_, err = registry.Get(Sepolia)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindValidation))
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		input       string
		expected    Key
		expectError bool
	}{
		{input: "arc", expected: Arc},
		{input: " Sepolia ", expected: Sepolia},
		{input: "BASE-SEPOLIA", expected: BaseSepolia},
		{input: "mainnet", expectError: true},
		{input: "", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			key, err := ParseKey(tt.input)
			if tt.expectError {
				assert.True(t, errs.IsKind(err, errs.KindValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, key)
		})
	}
}

func TestNewRegistryValidation(t *testing.T) {
	valid := Defaults()[0]

	tests := []struct {
		name   string
		mutate func(cfgs []Config) []Config
	}{
		{
			name: "missing rpc",
			mutate: func(cfgs []Config) []Config {
				cfgs[0].RPCURL = ""
				return cfgs
			},
		},
		{
			name: "malformed rpc",
			mutate: func(cfgs []Config) []Config {
				cfgs[0].RPCURL = "not a url"
				return cfgs
			},
		},
		{
			name: "zero token",
			mutate: func(cfgs []Config) []Config {
				cfgs[0].Token = common.Address{}
				return cfgs
			},
		},
		{
			name: "unknown key",
			mutate: func(cfgs []Config) []Config {
				cfgs[0].Key = "mainnet"
				return cfgs
			},
		},
		{
			name: "duplicate domain",
			mutate: func(cfgs []Config) []Config {
				other := Defaults()[1]
				other.Domain = cfgs[0].Domain
				return append(cfgs, other)
			},
		},
		{
			name: "empty",
			mutate: func(cfgs []Config) []Config {
				return nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.mutate([]Config{valid}))
			require.Error(t, err)
			assert.True(t, errs.IsKind(err, errs.KindConfiguration))
		})
	}
}

func TestOverrides(t *testing.T) {
	raw := []byte(`
chains:
  arc:
    rpc-url: https://arc.example.org
    explorer-url: https://explorer.example.org
  sepolia:
    domain: 0
    token: "0x0000000000000000000000000000000000000001"
`)

	overrides, err := ParseOverrides(raw)
	require.NoError(t, err)
	require.Len(t, overrides, 2)

	configs := Apply(Defaults(), overrides, map[Key]string{Sepolia: "https://rpc.sepolia.example.org"}, []Key{Arc, Sepolia})
	require.Len(t, configs, 2)

	registry, err := NewRegistry(configs)
	require.NoError(t, err)

	arc, err := registry.Get(Arc)
	require.NoError(t, err)
	assert.Equal(t, "https://arc.example.org", arc.RPCURL)
	assert.Equal(t, "https://explorer.example.org", arc.ExplorerURL)

	sepolia, err := registry.Get(Sepolia)
	require.NoError(t, err)
	assert.Equal(t, "https://rpc.sepolia.example.org", sepolia.RPCURL)
	assert.Equal(t, common.HexToAddress("0x0000000000000000000000000000000000000001"), sepolia.Token)

	_, err = registry.Get(BaseSepolia)
	assert.Error(t, err)
}

func TestParseOverridesRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "unknown chain", raw: "chains:\n  mainnet:\n    rpc-url: https://x.org\n"},
		{name: "bad address", raw: "chains:\n  arc:\n    token: nope\n"},
		{name: "bad yaml", raw: "chains: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseOverrides([]byte(tt.raw))
			require.Error(t, err)
			assert.True(t, errs.IsKind(err, errs.KindConfiguration))
		})
	}
}

func TestRegistryAllIsOrderedByKey(t *testing.T) {
	registry, err := NewRegistry(Defaults())
	require.NoError(t, err)

	all := registry.All()
	require.Len(t, all, len(AllKeys))
	for i := 1; i < len(all); i++ {
		assert.Less(t, string(all[i-1].Key), string(all[i].Key))
	}
}
