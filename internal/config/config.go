// Package config resolves the watchdog configuration. Resolution order,
// later wins: built-in defaults, config.toml, COLLATOR_-prefixed environment
// variables (optionally loaded from a .env file), CLI flags.
package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/watchdot/watchdot/internal/chain"
	"github.com/watchdot/watchdot/internal/logger"
	"github.com/watchdot/watchdot/internal/registry"
)

// RedactedPlaceholder replaces the proxy seed in any printed configuration.
const RedactedPlaceholder = "***REDACTED***"

// DefaultCheckIntervalSecs is the watch period when none is configured.
const DefaultCheckIntervalSecs = 3600

// ChainOverride is the per-chain configuration block under chains.<id>.
type ChainOverride struct {
	Enabled        *bool   `mapstructure:"enabled"`
	RPCURL         string  `mapstructure:"rpc_url"`
	BondReserve    *uint64 `mapstructure:"bond_reserve"` // smallest units
	NodeMetricsURL string  `mapstructure:"node_metrics_url"`
}

// Config is the resolved application configuration.
type Config struct {
	PolkadotCollatorAddress string `mapstructure:"polkadot_collator_address"`
	KusamaCollatorAddress   string `mapstructure:"kusama_collator_address"`
	ProxySeed               string `mapstructure:"proxy_seed"`
	SlackWebhookURL         string `mapstructure:"slack_webhook_url"`
	CheckIntervalSecs       uint64 `mapstructure:"check_interval_secs"`
	MetricsListenAddr       string `mapstructure:"metrics_listen_addr"`

	Chains map[string]ChainOverride `mapstructure:"chains"`
}

// SetupViper wires file, env-file, and environment sources onto a viper
// instance. Called once from the root command before any subcommand runs.
func SetupViper(v *viper.Viper, cfgFile string) {
	// .env style files never override variables already exported.
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		_ = gotenv.Load(envFile)
	} else if _, err := os.Stat("config/.env"); err == nil {
		_ = gotenv.Load("config/.env")
	} else {
		_ = gotenv.Load()
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("collator")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key needs a default so AutomaticEnv values survive Unmarshal.
	v.SetDefault("polkadot_collator_address", "")
	v.SetDefault("kusama_collator_address", "")
	v.SetDefault("proxy_seed", "")
	v.SetDefault("slack_webhook_url", "")
	v.SetDefault("metrics_listen_addr", "")
	v.SetDefault("check_interval_secs", DefaultCheckIntervalSecs)

	if err := v.ReadInConfig(); err == nil {
		logger.Debug("using config file", "path", v.ConfigFileUsed())
	}
}

// Load unmarshals the resolved configuration from a viper instance.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse configuration: %w", err)
	}
	if cfg.CheckIntervalSecs == 0 {
		cfg.CheckIntervalSecs = DefaultCheckIntervalSecs
	}
	return &cfg, nil
}

// Validate checks the configuration for a given command. The proxy seed is
// only mandatory for commands that submit transactions.
func (c *Config) Validate(requireSeed bool) error {
	if c.PolkadotCollatorAddress == "" && c.KusamaCollatorAddress == "" {
		return fmt.Errorf("no collator address configured for any ecosystem")
	}
	if requireSeed && c.ProxySeed == "" {
		return fmt.Errorf("proxy_seed is required for this command")
	}
	return nil
}

// CheckInterval returns the configured watch period.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSecs) * time.Second
}

// CollatorAddress returns the configured address for an ecosystem, empty
// when the ecosystem is not configured.
func (c *Config) CollatorAddress(eco registry.Ecosystem) string {
	if eco == registry.Kusama {
		return c.KusamaCollatorAddress
	}
	return c.PolkadotCollatorAddress
}

// Collators parses the configured addresses. Ecosystems without an address
// are absent from the map; the caller disables their chains.
func (c *Config) Collators() (map[registry.Ecosystem]chain.Address, error) {
	out := make(map[registry.Ecosystem]chain.Address)
	for _, eco := range []registry.Ecosystem{registry.Polkadot, registry.Kusama} {
		addr := c.CollatorAddress(eco)
		if addr == "" {
			continue
		}
		parsed, err := chain.ParseAddress(addr)
		if err != nil {
			return nil, fmt.Errorf("%s collator address: %w", eco, err)
		}
		out[eco] = parsed
	}
	return out, nil
}

// ResolvedChain couples a catalog entry with its config-only extras.
type ResolvedChain struct {
	registry.ChainSpec
	NodeMetricsURL string
}

// ResolvedChains applies per-chain overrides to the registry and drops
// chains that are disabled, either explicitly or because their ecosystem
// has no collator address. Order follows the registry.
func (c *Config) ResolvedChains() []ResolvedChain {
	out := make([]ResolvedChain, 0)
	for _, spec := range registry.All() {
		if c.CollatorAddress(spec.Ecosystem) == "" {
			logger.Warn("no collator address for ecosystem, chain disabled",
				"chain", spec.ID, "ecosystem", string(spec.Ecosystem))
			continue
		}
		ov := c.Chains[spec.ID]
		if ov.Enabled != nil && !*ov.Enabled {
			logger.Info("chain disabled by configuration", "chain", spec.ID)
			continue
		}
		if ov.RPCURL != "" {
			spec.RPCURL = ov.RPCURL
		}
		if ov.BondReserve != nil {
			spec.BondReserve = new(big.Int).SetUint64(*ov.BondReserve)
		}
		out = append(out, ResolvedChain{ChainSpec: spec, NodeMetricsURL: ov.NodeMetricsURL})
	}
	return out
}

// Specs strips the config extras for callers that only need the catalog
// view of the resolved chains.
func Specs(resolved []ResolvedChain) []registry.ChainSpec {
	out := make([]registry.ChainSpec, 0, len(resolved))
	for _, r := range resolved {
		out = append(out, r.ChainSpec)
	}
	return out
}

// Describe renders the resolved configuration for show-config with the
// proxy seed redacted. It must never contain the seed itself.
func (c *Config) Describe() string {
	var b strings.Builder
	write := func(key, value string) {
		fmt.Fprintf(&b, "%s = %q\n", key, value)
	}

	write("polkadot_collator_address", c.PolkadotCollatorAddress)
	write("kusama_collator_address", c.KusamaCollatorAddress)
	seed := ""
	if c.ProxySeed != "" {
		seed = RedactedPlaceholder
	}
	write("proxy_seed", seed)
	write("slack_webhook_url", c.SlackWebhookURL)
	fmt.Fprintf(&b, "check_interval_secs = %d\n", c.CheckIntervalSecs)
	if c.MetricsListenAddr != "" {
		write("metrics_listen_addr", c.MetricsListenAddr)
	}

	for _, rc := range c.ResolvedChains() {
		fmt.Fprintf(&b, "\n[chains.%s]\n", rc.ID)
		write("rpc_url", rc.RPCURL)
		fmt.Fprintf(&b, "bond_reserve = %s\n", rc.BondReserve.String())
		fmt.Fprintf(&b, "supports_proxy_registration = %t\n", rc.SupportsProxyRegistration)
		if rc.NodeMetricsURL != "" {
			write("node_metrics_url", rc.NodeMetricsURL)
		}
	}
	return b.String()
}
