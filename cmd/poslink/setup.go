package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/attunepos/poslink/internal/bridge"
	"github.com/attunepos/poslink/internal/device/goble"
	"github.com/attunepos/poslink/internal/platform"
	"github.com/attunepos/poslink/pkg/config"
	"github.com/attunepos/poslink/pkg/poslink"
)

// loadConfig reads the config file named by --config, or the defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// newSession assembles the full stack: transport, authority, bridge, façade.
func newSession(cfg *config.Config, logger *logrus.Logger) *poslink.Session {
	transport := goble.NewTransport(logger)
	authority := platform.NewSystemAuthority(cfg.Adapter)
	b := bridge.New(transport, authority, logger)

	return poslink.NewSession(b, poslink.Options{
		Service:        cfg.Link.Service,
		Characteristic: cfg.Link.Characteristic,
		ScanTimeout:    cfg.Scan.Timeout,
		MTU:            cfg.Link.MTU,
	}, logger)
}

// connectTarget connects by address when given, otherwise by advertised name
// (flag first, config fallback).
func connectTarget(ctx context.Context, session *poslink.Session, address, name string, cfg *config.Config) (*bridge.ConnectResult, error) {
	if address != "" {
		return session.ConnectByAddress(ctx, address)
	}
	if name == "" {
		name = cfg.Scan.Name
	}
	if name == "" {
		return nil, fmt.Errorf("no target: pass --device or --name, or set scan.name in the config")
	}
	return session.ConnectByName(ctx, name)
}

// signalContext returns a context cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
