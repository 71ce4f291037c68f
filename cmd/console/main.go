// Command console runs the trading-bot dashboard core: it polls the
// trading process, consumes its push stream when available, reconciles
// the equity history, and serves the rendered state plus operator
// actions over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcheng-dev/botconsole/internal/config"
	"github.com/rcheng-dev/botconsole/internal/equity"
	"github.com/rcheng-dev/botconsole/internal/loop"
	"github.com/rcheng-dev/botconsole/internal/observ"
	"github.com/rcheng-dev/botconsole/internal/transport"
	"github.com/rcheng-dev/botconsole/internal/upstream"
)

var version = "dev" // set via -ldflags

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		baseURL    string
		addr       string
		noPush     bool
	)

	root := &cobra.Command{
		Use:     "console",
		Short:   "Dashboard core for an automated BTC futures trading process",
		Version: version,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if baseURL != "" {
				cfg.Upstream.BaseURL = baseURL
				cfg.Push.Wire.BaseURL = baseURL
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if noPush {
				cfg.Push.Enabled = false
			}
			return run(cmd.Context(), cfg)
		},
	}

	root.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (optional, env vars and defaults apply without one)")
	root.Flags().StringVar(&baseURL, "base-url", "", "override the trading process base URL")
	root.Flags().StringVar(&addr, "addr", "", "override the listen address")
	root.Flags().BoolVar(&noPush, "no-push", false, "disable the push channel, poll only")
	return root
}

func run(ctx context.Context, cfg config.Root) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	observ.SetVersion(version)
	observ.Log("console_start", map[string]any{
		"version":  version,
		"upstream": cfg.Upstream.BaseURL,
		"push":     cfg.Push.Enabled,
	})

	client, err := upstream.NewClient(cfg.Upstream)
	if err != nil {
		return err
	}

	var push <-chan transport.EventEnvelope
	var wire transport.Client
	if cfg.Push.Enabled {
		wire, err = transport.NewClient(cfg.Push.Wire)
		if err != nil {
			return fmt.Errorf("push channel: %w", err)
		}
		push, err = wire.Start(ctx)
		if err != nil {
			// Polling alone still renders everything; push is an upgrade.
			observ.Log("push_start_failed", map[string]any{"error": err.Error()})
			push = nil
		} else {
			defer wire.Close()
		}
	}

	store := loop.NewStore()
	l := loop.New(loop.Config{
		FastInterval: time.Duration(cfg.Poll.FastIntervalMs) * time.Millisecond,
		SlowInterval: time.Duration(cfg.Poll.SlowIntervalMs) * time.Millisecond,
		EquityRange:  cfg.Equity.DefaultRange,
		Risk:         cfg.Risk,
	}, client, equity.NewReconciler(client), store, push)

	go l.Run(ctx)

	return serveHTTP(ctx, cfg.Server.Addr, l, store)
}
