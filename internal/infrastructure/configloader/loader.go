package configloader

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Environment variables that override secrets and endpoints from the YAML file.
const (
	EnvBirdeyeAPIKey = "BIRDEYE_API_KEY"
	EnvSolanaRPCURL  = "SOLANA_RPC_URL"
	EnvLogLevel      = "LOG_LEVEL"
)

// Oracle providers.
const (
	OracleDEXScreener = "dexscreener"
	OracleBirdeye     = "birdeye"
)

// ServerConfig holds the server-specific configuration.
type ServerConfig struct {
	Port                   string   `yaml:"port"`
	ReadTimeoutSeconds     int      `yaml:"readTimeoutSeconds"`
	WriteTimeoutSeconds    int      `yaml:"writeTimeoutSeconds"`
	IdleTimeoutSeconds     int      `yaml:"idleTimeoutSeconds"`
	ShutdownTimeoutSeconds int      `yaml:"shutdownTimeoutSeconds"`
	CORSAllowOrigins       []string `yaml:"corsAllowOrigins"`
}

// LoggingConfig holds the configuration for logging.
type LoggingConfig struct {
	Level      string `yaml:"level"` // e.g., "debug", "info", "warn", "error"
	File       string `yaml:"file"`  // empty disables the rotating JSON file
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// ChainConfig selects the Solana cluster and its RPC endpoints.
type ChainConfig struct {
	Cluster          string   `yaml:"cluster"` // "mainnet-beta" or "devnet"
	RPCURL           string   `yaml:"rpcURL"`
	FallbackRPCURLs  []string `yaml:"fallbackRPCURLs"`
	RPCTimeoutMs     int64    `yaml:"rpcTimeoutMs"`
	MaxRetries       int      `yaml:"maxRetries"`
	IncludeToken2022 bool     `yaml:"includeToken2022"`
}

// OracleConfig holds settings shared by every price oracle.
type OracleConfig struct {
	Provider             string  `yaml:"provider"` // "dexscreener" or "birdeye"
	RequestTimeoutMillis int64   `yaml:"requestTimeoutMillis"`
	MaxTokensPerBatch    int     `yaml:"maxTokensPerBatch"`
	RateLimitPerSecond   float64 `yaml:"rateLimitPerSecond"`
	RateLimitBurst       int     `yaml:"rateLimitBurst"`
}

// DEXScreenerConfig holds the configuration for the DEX Screener client.
type DEXScreenerConfig struct {
	BaseURL              string `yaml:"baseURL"`
	RequestTimeoutMillis int64  `yaml:"requestTimeoutMillis"`
}

// BirdeyeConfig holds the configuration for the Birdeye client.
type BirdeyeConfig struct {
	BaseURL              string `yaml:"baseURL"`
	APIKey               string `yaml:"apiKey"`
	RequestTimeoutMillis int64  `yaml:"requestTimeoutMillis"`
}

// ValuationConfig holds every threshold, TTL and bound of the valuation engine.
type ValuationConfig struct {
	DustThresholdUSD     float64 `yaml:"dustThresholdUSD"`
	LiquidityFloorUSD    float64 `yaml:"liquidityFloorUSD"`
	MaxStalenessSec      int64   `yaml:"maxStalenessSec"`
	CooldownMinutes      int64   `yaml:"cooldownMinutes"`
	CooldownMaxEntries   int     `yaml:"cooldownMaxEntries"`
	StablePriceUSD       float64 `yaml:"stablePriceUSD"`
	FallbackConcurrency  int     `yaml:"fallbackConcurrency"`
	MaxFallbackMints     int     `yaml:"maxFallbackMints"`
	FallbackTimeoutMs    int64   `yaml:"fallbackTimeoutMs"`
	BatchTimeoutMs       int64   `yaml:"batchTimeoutMs"`
	BalanceTimeoutMs     int64   `yaml:"balanceTimeoutMs"`
	NativePriceTTLSec    int64   `yaml:"nativePriceTTLSec"`
	ResultCacheTTLMs     int64   `yaml:"resultCacheTTLMs"`
	ResultCacheMaxKeys   int     `yaml:"resultCacheMaxKeys"`
	MetadataCacheTTLMin  int64   `yaml:"metadataCacheTTLMin"`
	MetadataCacheMaxKeys int     `yaml:"metadataCacheMaxKeys"`
	DefaultMinValueUSD   float64 `yaml:"defaultMinValueUSD"`
}

// TokensConfig points at the static token list.
type TokensConfig struct {
	ListFile string `yaml:"listFile"`
}

// SwaggerConfig holds configuration for Swagger UI.
type SwaggerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// PprofConfig toggles the /debug/pprof routes.
type PprofConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Chain       ChainConfig       `yaml:"chain"`
	Oracle      OracleConfig      `yaml:"oracle"`
	DEXScreener DEXScreenerConfig `yaml:"dexScreener"`
	Birdeye     BirdeyeConfig     `yaml:"birdeye"`
	Valuation   ValuationConfig   `yaml:"valuation"`
	Tokens      TokensConfig      `yaml:"tokens"`
	Swagger     SwaggerConfig     `yaml:"swagger"`
	Pprof       PprofConfig       `yaml:"pprof"`
}

// LoadDotEnv loads variables from the given .env files into the process environment.
// Missing files are not an error; existing variables are never overwritten.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			logrus.Warnf("Failed to load env file %s: %v", f, err)
			continue
		}
		logrus.Infof("Loaded environment from %s", f)
	}
}

// Load reads the YAML configuration file from the given path, applies env overrides and defaults, and validates it.
func Load(path string) (*Config, error) {
	logrus.Infof("Loading configuration from path: %s", path)
	data, err := os.ReadFile(path)
	if err != nil {
		logrus.Errorf("Failed to read config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a Config from raw YAML.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		logrus.Errorf("Failed to unmarshal config data: %v", err)
		return nil, fmt.Errorf("failed to unmarshal config data: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logrus.Info("Configuration loaded successfully.")
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvBirdeyeAPIKey)); v != "" {
		cfg.Birdeye.APIKey = v
		logrus.Infof("Birdeye API key taken from %s", EnvBirdeyeAPIKey)
	}
	if v := strings.TrimSpace(os.Getenv(EnvSolanaRPCURL)); v != "" {
		cfg.Chain.RPCURL = v
		logrus.Infof("Chain.RPCURL taken from %s", EnvSolanaRPCURL)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Server.ReadTimeoutSeconds <= 0 {
		cfg.Server.ReadTimeoutSeconds = 10
	}
	if cfg.Server.WriteTimeoutSeconds <= 0 {
		cfg.Server.WriteTimeoutSeconds = 15
	}
	if cfg.Server.IdleTimeoutSeconds <= 0 {
		cfg.Server.IdleTimeoutSeconds = 60
	}
	if cfg.Server.ShutdownTimeoutSeconds <= 0 {
		cfg.Server.ShutdownTimeoutSeconds = 10
	}
	if len(cfg.Server.CORSAllowOrigins) == 0 {
		cfg.Server.CORSAllowOrigins = []string{"*"}
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.MaxSizeMB <= 0 {
		cfg.Logging.MaxSizeMB = 100
	}
	if cfg.Logging.MaxBackups <= 0 {
		cfg.Logging.MaxBackups = 3
	}
	if cfg.Logging.MaxAgeDays <= 0 {
		cfg.Logging.MaxAgeDays = 28
	}

	if cfg.Chain.Cluster == "" {
		cfg.Chain.Cluster = "mainnet-beta"
		logrus.Infof("Chain.Cluster not set, defaulting to %s", cfg.Chain.Cluster)
	}
	if cfg.Chain.RPCTimeoutMs <= 0 {
		cfg.Chain.RPCTimeoutMs = 5000
	}
	if cfg.Chain.MaxRetries <= 0 {
		cfg.Chain.MaxRetries = 3
	}

	if cfg.Oracle.Provider == "" {
		cfg.Oracle.Provider = OracleDEXScreener
		logrus.Infof("Oracle.Provider not set, defaulting to %s", cfg.Oracle.Provider)
	}
	cfg.Oracle.Provider = strings.ToLower(cfg.Oracle.Provider)
	if cfg.Oracle.RequestTimeoutMillis <= 0 {
		cfg.Oracle.RequestTimeoutMillis = 5000
	}
	if cfg.Oracle.MaxTokensPerBatch <= 0 {
		cfg.Oracle.MaxTokensPerBatch = 30 // DEXScreener limit
		logrus.Infof("Oracle.MaxTokensPerBatch not set, defaulting to %d", cfg.Oracle.MaxTokensPerBatch)
	}
	if cfg.Oracle.RateLimitPerSecond <= 0 {
		cfg.Oracle.RateLimitPerSecond = 5
	}
	if cfg.Oracle.RateLimitBurst <= 0 {
		cfg.Oracle.RateLimitBurst = 5
	}

	if cfg.DEXScreener.BaseURL == "" {
		cfg.DEXScreener.BaseURL = "https://api.dexscreener.com"
		logrus.Infof("DEXScreener.BaseURL not set, defaulting to %s", cfg.DEXScreener.BaseURL)
	}
	// Inherit request timeouts from the shared oracle settings if not set
	if cfg.DEXScreener.RequestTimeoutMillis <= 0 {
		cfg.DEXScreener.RequestTimeoutMillis = cfg.Oracle.RequestTimeoutMillis
	}
	if cfg.Birdeye.BaseURL == "" {
		cfg.Birdeye.BaseURL = "https://public-api.birdeye.so"
	}
	if cfg.Birdeye.RequestTimeoutMillis <= 0 {
		cfg.Birdeye.RequestTimeoutMillis = cfg.Oracle.RequestTimeoutMillis
	}

	v := &cfg.Valuation
	if v.DustThresholdUSD <= 0 {
		v.DustThresholdUSD = 0.05
	}
	if v.LiquidityFloorUSD <= 0 {
		v.LiquidityFloorUSD = 1000
	}
	if v.MaxStalenessSec <= 0 {
		v.MaxStalenessSec = 21600
	}
	if v.CooldownMinutes <= 0 {
		v.CooldownMinutes = 1440
	}
	if v.CooldownMaxEntries <= 0 {
		v.CooldownMaxEntries = 10000
	}
	if v.StablePriceUSD <= 0 {
		v.StablePriceUSD = 1.0
	}
	if v.FallbackConcurrency <= 0 {
		v.FallbackConcurrency = 4
	}
	if v.MaxFallbackMints <= 0 {
		v.MaxFallbackMints = 8
	}
	if v.FallbackTimeoutMs <= 0 {
		v.FallbackTimeoutMs = 1500
	}
	if v.BatchTimeoutMs <= 0 {
		v.BatchTimeoutMs = 4000
	}
	if v.BalanceTimeoutMs <= 0 {
		v.BalanceTimeoutMs = 5000
	}
	if v.NativePriceTTLSec <= 0 {
		v.NativePriceTTLSec = 30
	}
	if v.ResultCacheTTLMs <= 0 {
		v.ResultCacheTTLMs = 1000
	}
	if v.ResultCacheMaxKeys <= 0 {
		v.ResultCacheMaxKeys = 1024
	}
	if v.MetadataCacheTTLMin <= 0 {
		v.MetadataCacheTTLMin = 10
	}
	if v.MetadataCacheMaxKeys <= 0 {
		v.MetadataCacheMaxKeys = 4096
	}
	// DefaultMinValueUSD stays 0 unless configured: the API filter is opt-in.

	if cfg.Tokens.ListFile == "" {
		cfg.Tokens.ListFile = "data/tokens/solana.json"
	}
	if cfg.Swagger.Path == "" {
		cfg.Swagger.Path = "docs/swagger.yaml"
	}
}

// Validate checks the configuration for values that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error
	switch c.Oracle.Provider {
	case OracleDEXScreener:
	case OracleBirdeye:
		if c.Birdeye.APIKey == "" {
			errs = append(errs, fmt.Errorf("birdeye oracle selected but no API key set (yaml birdeye.apiKey or %s)", EnvBirdeyeAPIKey))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown oracle provider %q", c.Oracle.Provider))
	}
	if c.Valuation.DefaultMinValueUSD < 0 {
		errs = append(errs, errors.New("valuation.defaultMinValueUSD must not be negative"))
	}
	if c.Oracle.MaxTokensPerBatch > 30 && c.Oracle.Provider == OracleDEXScreener {
		logrus.Warnf("Oracle.MaxTokensPerBatch=%d exceeds the DEXScreener limit of 30 addresses per request", c.Oracle.MaxTokensPerBatch)
	}
	if c.Chain.RPCURL == "" {
		logrus.Warnf("Chain.RPCURL is empty, the public endpoint of cluster %s will be used", c.Chain.Cluster)
	}
	return errors.Join(errs...)
}
