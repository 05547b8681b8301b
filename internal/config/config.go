package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Chain     ChainConfig
	Paymaster PaymasterConfig
	Pinning   PinningConfig
	Mint      MintConfig
	Redis     RedisConfig
	Server    ServerConfig
}

type ChainConfig struct {
	RPCURL           string `mapstructure:"rpc_url"`
	ChainID          int64  `mapstructure:"chain_id"`
	NetworkName      string `mapstructure:"network_name"`
	ContractAddress  string `mapstructure:"contract_address"`
	WalletPrivateKey string `mapstructure:"wallet_private_key"`
	ExplorerURL      string `mapstructure:"explorer_url"`
}

type PaymasterConfig struct {
	APIURL string `mapstructure:"api_url"`
	APIKey string `mapstructure:"api_key"`
}

type PinningConfig struct {
	APIURL string `mapstructure:"api_url"`
	APIKey string `mapstructure:"api_key"`
}

type MintConfig struct {
	FallbackPriceWei string `mapstructure:"fallback_price_wei"`
	FallbackGasLimit uint64 `mapstructure:"fallback_gas_limit"`
	StatusTTLSec     int64  `mapstructure:"status_ttl_sec"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("chain.chain_id", 8453)
	v.SetDefault("chain.network_name", "Base Mainnet")
	v.SetDefault("chain.explorer_url", "https://basescan.org")
	v.SetDefault("paymaster.api_url", "https://paymaster.base.org")
	// 0.001 ETH — the public mint price, substituted when the on-chain read fails
	v.SetDefault("mint.fallback_price_wei", "1000000000000000")
	v.SetDefault("mint.fallback_gas_limit", 300000)
	v.SetDefault("mint.status_ttl_sec", 3600)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	_ = v.ReadInConfig()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit env bindings
	bindings := map[string]string{
		"chain.rpc_url":            "RPC_URL",
		"chain.chain_id":           "CHAIN_ID",
		"chain.network_name":       "NETWORK_NAME",
		"chain.contract_address":   "MINT_CONTRACT",
		"chain.wallet_private_key": "WALLET_SIGNING_KEY",
		"chain.explorer_url":       "EXPLORER_URL",
		"paymaster.api_url":        "PAYMASTER_API_URL",
		"paymaster.api_key":        "PAYMASTER_API_KEY",
		"pinning.api_url":          "PINNING_API_URL",
		"pinning.api_key":          "PINNING_API_KEY",
		"mint.fallback_price_wei":  "MINT_FALLBACK_PRICE_WEI",
		"mint.fallback_gas_limit":  "MINT_FALLBACK_GAS_LIMIT",
		"mint.status_ttl_sec":      "MINT_STATUS_TTL_SEC",
		"redis.addr":               "REDIS_ADDR",
		"redis.password":           "REDIS_PASSWORD",
		"server.port":              "PORT",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	type req struct {
		val  string
		name string
	}
	for _, r := range []req{
		{c.Chain.RPCURL, "RPC_URL"},
		{c.Chain.ContractAddress, "MINT_CONTRACT"},
		{c.Chain.WalletPrivateKey, "WALLET_SIGNING_KEY"},
		{c.Paymaster.APIURL, "PAYMASTER_API_URL"},
		{c.Paymaster.APIKey, "PAYMASTER_API_KEY"},
		{c.Pinning.APIURL, "PINNING_API_URL"},
		{c.Pinning.APIKey, "PINNING_API_KEY"},
	} {
		if r.val == "" {
			return fmt.Errorf("required config missing: %s", r.name)
		}
	}
	if c.Chain.ChainID == 0 {
		return fmt.Errorf("required config missing: CHAIN_ID")
	}
	return nil
}
