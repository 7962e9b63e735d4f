package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"arcpay/apps/arcpay/internal/chains"
	"arcpay/apps/arcpay/internal/errs"
)

const DefaultAttestationBaseURL = "https://iris-api-sandbox.circle.com"

type Config struct {
	DbURL       string
	KafkaBroker string
	KafkaTopic  string
	APIPort     int

	RelayerPrivateKey string

	AttestationBaseURL  string
	AttestationRPS      float64
	AttestationInterval time.Duration
	AttestationAttempts int

	SourceChain         chains.Key
	TickInterval        time.Duration
	PacingDelay         time.Duration
	ConfirmationTimeout time.Duration

	ChainsFile    string
	EnabledChains []chains.Key
	RPCURLs       map[chains.Key]string
}

// NewConfig loads configuration from environment variables, reading a .env file first when
// one exists. Every missing or malformed value is reported as a configuration error.
func NewConfig() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	l := &loader{}
	cfg := &Config{
		DbURL:       l.getEnvRequired("DB_URL"),
		KafkaBroker: l.getEnvRequired("KAFKA_BROKER"),
		KafkaTopic:  getEnvString("KAFKA_TOPIC", "transfer-executions"),
		APIPort:     l.getEnvInt("API_PORT", 8080),

		RelayerPrivateKey: l.getEnvRequired("RELAYER_PRIVATE_KEY"),

		AttestationBaseURL:  getEnvString("ATTESTATION_BASE_URL", DefaultAttestationBaseURL),
		AttestationRPS:      l.getEnvFloat("ATTESTATION_RPS", 10),
		AttestationInterval: l.getEnvDuration("ATTESTATION_INTERVAL", 5*time.Second),
		AttestationAttempts: l.getEnvInt("ATTESTATION_ATTEMPTS", 60),

		TickInterval:        l.getEnvDuration("SCHEDULER_TICK", time.Minute),
		PacingDelay:         l.getEnvDuration("SCHEDULER_PACING", 5*time.Second),
		ConfirmationTimeout: l.getEnvDuration("CONFIRMATION_TIMEOUT", 3*time.Minute),

		ChainsFile: os.Getenv("CHAINS_FILE"),
		RPCURLs:    make(map[chains.Key]string),
	}

	if key, err := chains.ParseKey(getEnvString("SCHEDULER_SOURCE_CHAIN", string(chains.Arc))); err != nil {
		l.fail("SCHEDULER_SOURCE_CHAIN", "unsupported chain")
	} else {
		cfg.SourceChain = key
	}

	if enabled := os.Getenv("ENABLED_CHAINS"); enabled != "" {
		for _, name := range strings.Split(enabled, ",") {
			key, err := chains.ParseKey(name)
			if err != nil {
				l.fail("ENABLED_CHAINS", "unsupported chain "+strings.TrimSpace(name))
				continue
			}
			cfg.EnabledChains = append(cfg.EnabledChains, key)
		}
	}

	for _, key := range chains.AllKeys {
		if rpc := os.Getenv(RPCEnvKey(key)); rpc != "" {
			cfg.RPCURLs[key] = rpc
		}
	}

	if cfg.AttestationAttempts < 1 {
		l.fail("ATTESTATION_ATTEMPTS", "must be at least 1")
	}
	if cfg.AttestationRPS <= 0 {
		l.fail("ATTESTATION_RPS", "must be positive")
	}

	if err := l.err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabaseURL reads only DB_URL, for commands that touch nothing but the database
func LoadDatabaseURL() (string, error) {
	if err := loadDotEnv(); err != nil {
		return "", err
	}

	l := &loader{}
	dbURL := l.getEnvRequired("DB_URL")
	if err := l.err(); err != nil {
		return "", err
	}
	return dbURL, nil
}

func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errs.Wrap(errs.KindConfiguration, "load .env", err, "could not read .env file")
	}
	return nil
}

// ChainConfigs merges the built-in chain table with the overrides file and RPC env vars
func (c *Config) ChainConfigs() ([]chains.Config, error) {
	overrides := map[chains.Key]chains.Override{}
	if c.ChainsFile != "" {
		loaded, err := chains.LoadOverrides(c.ChainsFile)
		if err != nil {
			return nil, err
		}
		overrides = loaded
	}

	return chains.Apply(chains.Defaults(), overrides, c.RPCURLs, c.EnabledChains), nil
}

// RPCEnvKey is the variable that overrides a chain's RPC endpoint, e.g. RPC_URL_BASE_SEPOLIA
func RPCEnvKey(key chains.Key) string {
	return "RPC_URL_" + strings.ToUpper(strings.ReplaceAll(string(key), "-", "_"))
}

type loader struct {
	problems []string
}

func (l *loader) fail(key, reason string) {
	l.problems = append(l.problems, key+": "+reason)
}

func (l *loader) err() error {
	if len(l.problems) == 0 {
		return nil
	}
	return errs.Configuration("load config", "%s", strings.Join(l.problems, "; "))
}

func (l *loader) getEnvRequired(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	l.fail(key, "not set")
	return ""
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (l *loader) getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			l.fail(key, "not an integer")
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func (l *loader) getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			l.fail(key, "not a number")
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func (l *loader) getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil || parsed <= 0 {
			l.fail(key, "not a positive duration")
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}
