// Copyright © 2025 Attestant Limited.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/watchdot/watchdot/internal/chain"
	"github.com/watchdot/watchdot/internal/chain/substrate"
	"github.com/watchdot/watchdot/internal/config"
	"github.com/watchdot/watchdot/internal/logger"
	"github.com/watchdot/watchdot/internal/monitor"
	"github.com/watchdot/watchdot/internal/notify"
	"github.com/watchdot/watchdot/internal/signer"
)

// Exit codes. 1 is reserved for check finding scan errors.
const (
	exitOK            = 0
	exitScanErrors    = 1
	exitConfigError   = 2
	exitStartupFailed = 3
)

var (
	cfgFile  string
	logLevel string
)

// exitError carries a process exit code up through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func exitWith(code int, err error) error {
	return &exitError{code: code, err: err}
}

var rootCmd = &cobra.Command{
	Use:   "watchdot",
	Short: "Watchdog for collators on Polkadot and Kusama system chains",
	Long: `watchdot keeps a collator account registered and competitively bonded on
Polkadot and Kusama system parachains. It re-registers the collator when it
falls out of the candidate set, grows the candidacy bond toward the maximum
the free balance supports, and alerts the operator over Slack. All
transactions are signed by a NonTransfer proxy account, never by the
collator key itself.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(exitConfigError)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (error, warn, info, debug, trace); overrides COLLATOR_LOG_LEVEL")
}

func initConfig() {
	level := logLevel
	if level == "" {
		level = os.Getenv("COLLATOR_LOG_LEVEL")
	}
	if level == "" {
		level = "info"
	}
	logger.Init(level)

	config.SetupViper(viper.GetViper(), cfgFile)
}

// loadConfig resolves and validates the configuration for a command.
func loadConfig(requireSeed bool) (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, exitWith(exitConfigError, err)
	}
	if err := cfg.Validate(requireSeed); err != nil {
		return nil, exitWith(exitConfigError, err)
	}
	return cfg, nil
}

// buildOrchestrator assembles the scanner and orchestrator from the
// configuration. The proxy seed is derived here; with requireSeed unset a
// missing seed leaves the scanner without a proxy, so only read-only scans
// (Orchestrator.Status) can use it.
func buildOrchestrator(cfg *config.Config, requireSeed bool) (*monitor.Orchestrator, []config.ResolvedChain, error) {
	collators, err := cfg.Collators()
	if err != nil {
		return nil, nil, exitWith(exitConfigError, err)
	}

	var proxy *signer.Proxy
	if cfg.ProxySeed != "" {
		proxy, err = signer.New(cfg.ProxySeed)
		if err != nil {
			return nil, nil, exitWith(exitStartupFailed, err)
		}
	} else if requireSeed {
		return nil, nil, exitWith(exitConfigError, errors.New("proxy_seed is required for this command"))
	}

	resolved := cfg.ResolvedChains()
	if len(resolved) == 0 {
		return nil, nil, exitWith(exitConfigError, errors.New("no chains enabled"))
	}

	scanner := &monitor.Scanner{
		Dial:      chain.Dialer(substrate.Dial),
		Proxy:     proxy,
		Notifier:  notify.New(cfg.SlackWebhookURL),
		Collators: collators,
	}

	return monitor.NewOrchestrator(scanner, config.Specs(resolved)), resolved, nil
}
