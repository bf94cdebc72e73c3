// Package daemon assembles and runs the gvmbridge service: it wires the
// engine dialer, the scan registry with its optional PostgreSQL store, the
// orchestrator, the background poller and the HTTP API, and coordinates
// graceful shutdown.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anstrom/gvmbridge/internal/api"
	"github.com/anstrom/gvmbridge/internal/config"
	"github.com/anstrom/gvmbridge/internal/gmp"
	"github.com/anstrom/gvmbridge/internal/logging"
	"github.com/anstrom/gvmbridge/internal/metrics"
	"github.com/anstrom/gvmbridge/internal/poller"
	"github.com/anstrom/gvmbridge/internal/registry"
	"github.com/anstrom/gvmbridge/internal/scan"
)

const (
	systemMetricsInterval = 15 * time.Second
	storeConnectTimeout   = 10 * time.Second
)

// Daemon represents the running gvmbridge service.
type Daemon struct {
	config       *config.Config
	registry     *registry.Registry
	store        *registry.SQLStore
	orchestrator *scan.Orchestrator
	poller       *poller.Poller
	apiServer    *api.Server
	logger       *logging.Logger
	ctx          context.Context
	cancel       context.CancelFunc
}

// New creates a daemon from a validated configuration.
func New(cfg *config.Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:  logging.LogLevel(cfg.Logging.Level),
		Format: logging.LogFormat(cfg.Logging.Format),
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	logging.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		config: cfg,
		logger: logger.WithComponent("daemon"),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Run starts the service and blocks until a shutdown signal arrives or a
// component fails.
func (d *Daemon) Run() error {
	d.logger.Info("Starting gvmbridge",
		"engine", d.config.GetEngineAddress(),
		"api", d.config.GetAPIAddress(),
		"persistence", d.config.IsPersistenceEnabled())

	if err := d.initRegistry(); err != nil {
		return err
	}
	d.initOrchestrator()

	go metrics.GetGlobalMetrics().StartPeriodicUpdates(d.ctx, systemMetricsInterval)

	if d.config.Poller.Enabled {
		d.poller = poller.New(d.orchestrator, poller.Config{
			Schedule:    d.config.Poller.Schedule,
			Concurrency: d.config.Poller.Concurrency,
			PollTimeout: d.config.Poller.PollTimeout,
		})
		if err := d.poller.Start(); err != nil {
			return fmt.Errorf("failed to start poller: %w", err)
		}
	}

	var pinger api.StorePinger
	if d.store != nil {
		pinger = d.store
	}
	d.apiServer = api.New(d.config, d.orchestrator, pinger)

	d.setupSignalHandlers()

	err := d.apiServer.Start(d.ctx)
	d.shutdown()
	return err
}

// Stop triggers a graceful shutdown.
func (d *Daemon) Stop() {
	d.cancel()
}

// initRegistry builds the scan registry, attaching and hydrating from the
// PostgreSQL store when persistence is enabled.
func (d *Daemon) initRegistry() error {
	opts := []registry.Option{}

	if d.config.IsPersistenceEnabled() {
		ctx, cancel := context.WithTimeout(d.ctx, storeConnectTimeout)
		defer cancel()

		store, err := registry.ConnectStore(ctx, d.config.Registry.Database)
		if err != nil {
			return fmt.Errorf("failed to connect registry store: %w", err)
		}
		d.store = store
		opts = append(opts, registry.WithStore(store))
	}

	d.registry = registry.New(opts...)

	if d.store != nil {
		if err := d.registry.LoadFromStore(d.ctx); err != nil {
			d.logger.Error("Failed to hydrate registry from store", "error", err)
		}
		metrics.GetGlobalMetrics().SetRegistryRecords(d.registry.Count())
	}
	return nil
}

// initOrchestrator wires the GMP dialer into the orchestration core. Every
// operation acquires its own session through the dialer.
func (d *Daemon) initOrchestrator() {
	var transport gmp.Transport
	if d.config.GVM.Transport == "tls" {
		transport = &gmp.TLSTransport{
			Host:               d.config.GVM.Host,
			Port:               d.config.GVM.Port,
			InsecureSkipVerify: d.config.GVM.InsecureSkipVerify,
		}
	} else {
		transport = &gmp.UnixTransport{Path: d.config.GVM.SocketPath}
	}

	dialer := gmp.NewDialer(transport, gmp.Config{
		Username:       d.config.GVM.Username,
		Password:       d.config.GVM.Password,
		ConnectTimeout: d.config.GVM.ConnectTimeout,
		CommandTimeout: d.config.GVM.CommandTimeout,
	})

	factory := func(ctx context.Context) (scan.Engine, error) {
		return dialer.Dial(ctx)
	}

	d.orchestrator = scan.New(factory, d.registry, scan.Config{
		PortListID:   d.config.Scanning.PortListID,
		ConfigName:   d.config.Scanning.ConfigName,
		ScannerName:  d.config.Scanning.ScannerName,
		ReportFilter: d.config.Scanning.ReportFilter,
		Retry: scan.RetryPolicy{
			MaxRetries: d.config.Scanning.Retry.MaxRetries,
			Delay:      d.config.Scanning.Retry.RetryDelay,
			Multiplier: d.config.Scanning.Retry.BackoffMultiplier,
		},
	})
}

// setupSignalHandlers cancels the daemon context on SIGINT/SIGTERM.
func (d *Daemon) setupSignalHandlers() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			d.logger.Info("Received shutdown signal", "signal", sig.String())
			d.cancel()
		case <-d.ctx.Done():
		}
	}()
}

// shutdown stops components in reverse start order.
func (d *Daemon) shutdown() {
	if d.poller != nil {
		d.poller.Stop()
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.logger.Error("Failed to close registry store", "error", err)
		}
	}
	d.logger.Info("gvmbridge stopped")
}
