package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	NATS         NATSConfig         `yaml:"nats"`
	Blockchain   BlockchainConfig   `yaml:"blockchain"`
	Subgraph     SubgraphConfig     `yaml:"subgraph"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Paymaster    PaymasterConfig    `yaml:"paymaster"`
	CORS         CORSConfig         `yaml:"cors"`
	Auth         AuthConfig         `yaml:"auth"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig database configuration
type DatabaseConfig struct {
	DSN    string `yaml:"dsn"`
	Driver string `yaml:"driver"`
}

// NATSConfig NATS message server configuration
type NATSConfig struct {
	URL           string `yaml:"url"`
	Timeout       int    `yaml:"timeout"`
	ReconnectWait int    `yaml:"reconnect_wait"`
	MaxReconnects int    `yaml:"max_reconnects"`
	StreamName    string `yaml:"stream_name"`
}

// BlockchainConfig blockchain configuration
type BlockchainConfig struct {
	Networks map[string]NetworkConfig `yaml:"networks"`
}

// NetworkConfig per-network configuration
type NetworkConfig struct {
	ChainID         int64    `yaml:"chainId"`
	Name            string   `yaml:"name"`
	RPCEndpoints    []string `yaml:"rpcEndpoints"`
	BundlerURL      string   `yaml:"bundlerUrl"`
	EntryPoint      string   `yaml:"entryPoint"`
	DiamondContract string   `yaml:"diamondContract"`
	FactoryContract string   `yaml:"factoryContract"`
	DAIContract     string   `yaml:"daiContract"`
	USDCContract    string   `yaml:"usdcContract"`
	MembershipLock  string   `yaml:"membershipLock"` // Unlock lock checked for gas sponsorship eligibility
	Enabled         bool     `yaml:"enabled"`
}

// SubgraphConfig MeTokens subgraph configuration
type SubgraphConfig struct {
	URL     string `yaml:"url"`
	APIKey  string `yaml:"apiKey"`
	Timeout int    `yaml:"timeout"` // request timeout (seconds)
}

// OrchestratorConfig timing knobs for the creation orchestrator.
// Zero values fall back to the defaults below; tests shrink these aggressively.
type OrchestratorConfig struct {
	SubmitTimeout       int    `yaml:"submitTimeout"`       // seconds to obtain an operation handle (default 60)
	ConfirmTimeout      int    `yaml:"confirmTimeout"`      // seconds to wait for a receipt (default 120)
	PollInterval        int    `yaml:"pollInterval"`        // seconds between fallback polls (default 10)
	PollMaxAttempts     int    `yaml:"pollMaxAttempts"`     // fallback poll budget (default 30)
	RecoveryAttempts    int    `yaml:"recoveryAttempts"`    // reduced poll budget for recovery (default 3)
	RecoveryInterval    int    `yaml:"recoveryInterval"`    // minutes between reconciliation passes (default 10)
	PendingMaxAgeHours  int    `yaml:"pendingMaxAgeHours"`  // ledger entry expiry (default 24)
	MinGasWei           string `yaml:"minGasWei"`           // minimum native balance for self-funded gas (default 0.001 ETH)
	AllowanceRetries    int    `yaml:"allowanceRetries"`    // approval verification read retries (default 5)
	SubgraphIndexLagSec int    `yaml:"subgraphIndexLagSec"` // grace wait before the first fallback poll (default 5)
}

// Defaulted accessors. Unset knobs get the production values; tests set tiny
// ones through the struct directly.

func (o OrchestratorConfig) SubmitTimeoutDuration() time.Duration {
	return secondsOr(o.SubmitTimeout, 60)
}

func (o OrchestratorConfig) ConfirmTimeoutDuration() time.Duration {
	return secondsOr(o.ConfirmTimeout, 120)
}

func (o OrchestratorConfig) PollIntervalDuration() time.Duration {
	return secondsOr(o.PollInterval, 10)
}

func (o OrchestratorConfig) PollBudget() int {
	if o.PollMaxAttempts > 0 {
		return o.PollMaxAttempts
	}
	return 30
}

func (o OrchestratorConfig) RecoveryBudget() int {
	if o.RecoveryAttempts > 0 {
		return o.RecoveryAttempts
	}
	return 3
}

func (o OrchestratorConfig) RecoveryIntervalDuration() time.Duration {
	if o.RecoveryInterval > 0 {
		return time.Duration(o.RecoveryInterval) * time.Minute
	}
	return 10 * time.Minute
}

func (o OrchestratorConfig) PendingMaxAge() time.Duration {
	if o.PendingMaxAgeHours > 0 {
		return time.Duration(o.PendingMaxAgeHours) * time.Hour
	}
	return 24 * time.Hour
}

// MinGas returns the minimum native balance required for self-funded gas.
// Default is 0.001 ETH.
func (o OrchestratorConfig) MinGas() *big.Int {
	if o.MinGasWei != "" {
		if v, ok := new(big.Int).SetString(o.MinGasWei, 10); ok {
			return v
		}
	}
	return big.NewInt(1_000_000_000_000_000)
}

func (o OrchestratorConfig) AllowanceRetryCount() int {
	if o.AllowanceRetries > 0 {
		return o.AllowanceRetries
	}
	return 5
}

func (o OrchestratorConfig) SubgraphIndexLag() time.Duration {
	return secondsOr(o.SubgraphIndexLagSec, 5)
}

func secondsOr(v, def int) time.Duration {
	if v > 0 {
		return time.Duration(v) * time.Second
	}
	return time.Duration(def) * time.Second
}

// PaymasterConfig gas sponsorship policy configuration
type PaymasterConfig struct {
	SponsoredPolicyID string `yaml:"sponsoredPolicyId"` // full sponsorship for members
	USDCPolicyID      string `yaml:"usdcPolicyId"`      // ERC-20 gas payment for non-members
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"`
}

// AuthConfig JWT configuration for the API surface
type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret"`
}

var AppConfig *Config

// LoadConfig loads the configuration file, preferring config.local.yaml when present.
func LoadConfig(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	overrideFromEnv(&config)

	AppConfig = &config
	return nil
}

// overrideFromEnv applies environment variable overrides on top of the YAML file.
func overrideFromEnv(config *Config) {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}

	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}

	if subgraphURL := os.Getenv("METOKENS_SUBGRAPH_URL"); subgraphURL != "" {
		config.Subgraph.URL = subgraphURL
	}
	if apiKey := os.Getenv("METOKENS_SUBGRAPH_API_KEY"); apiKey != "" {
		config.Subgraph.APIKey = apiKey
	}

	if policyID := os.Getenv("ALCHEMY_PAYMASTER_POLICY_ID"); policyID != "" {
		config.Paymaster.SponsoredPolicyID = stripQuotes(policyID)
	}
	if policyID := os.Getenv("ANYTOKEN_POLICY_ID"); policyID != "" {
		config.Paymaster.USDCPolicyID = stripQuotes(policyID)
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.Auth.JWTSecret = secret
	}

	for networkName, networkConfig := range config.Blockchain.Networks {
		prefix := strings.ToUpper(networkName)

		if rpcEndpoints := os.Getenv(prefix + "_RPC_ENDPOINTS"); rpcEndpoints != "" {
			networkConfig.RPCEndpoints = strings.Split(rpcEndpoints, ",")
		}
		if bundler := os.Getenv(prefix + "_BUNDLER_URL"); bundler != "" {
			networkConfig.BundlerURL = bundler
		}
		if diamond := os.Getenv("METOKENS_DIAMOND"); diamond != "" {
			networkConfig.DiamondContract = diamond
		}
		if factory := os.Getenv("METOKENS_FACTORY"); factory != "" {
			networkConfig.FactoryContract = factory
		}
		if dai := os.Getenv(prefix + "_DAI"); dai != "" {
			networkConfig.DAIContract = dai
		}
		if lock := os.Getenv("MEMBERSHIP_LOCK"); lock != "" {
			networkConfig.MembershipLock = lock
		}

		config.Blockchain.Networks[networkName] = networkConfig
	}

	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		origins := strings.Split(corsOrigins, ",")
		config.CORS.AllowedOrigins = make([]string, 0, len(origins))
		for _, origin := range origins {
			trimmed := strings.TrimSpace(origin)
			if trimmed != "" {
				config.CORS.AllowedOrigins = append(config.CORS.AllowedOrigins, trimmed)
			}
		}
	}
}

// stripQuotes removes surrounding quotes that leak in from .env files.
func stripQuotes(s string) string {
	return strings.Trim(s, `"'`)
}

// GetNetworkConfig returns a named, enabled network configuration.
func GetNetworkConfig(networkName string) (*NetworkConfig, error) {
	if AppConfig == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	network, exists := AppConfig.Blockchain.Networks[networkName]
	if !exists {
		return nil, fmt.Errorf("network %s not found in config", networkName)
	}

	if !network.Enabled {
		return nil, fmt.Errorf("network %s is disabled", networkName)
	}

	ApplyContractDefaults(&network)
	return &network, nil
}

// GetNetworkConfigByChainID returns the enabled network with the given chain ID.
func GetNetworkConfigByChainID(chainID int64) (*NetworkConfig, error) {
	if AppConfig == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	for _, network := range AppConfig.Blockchain.Networks {
		if network.ChainID == chainID && network.Enabled {
			ApplyContractDefaults(&network)
			return &network, nil
		}
	}

	return nil, fmt.Errorf("network with chainID %d not found or disabled", chainID)
}
