// Package poller drives the scan status polling cadence. The orchestration
// core stays pull-based; the poller is an external scheduler that sweeps
// the registry's active scans on a cron schedule with bounded concurrency.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/anstrom/gvmbridge/internal/logging"
	"github.com/anstrom/gvmbridge/internal/metrics"
	"github.com/anstrom/gvmbridge/internal/scan"
)

const (
	defaultConcurrency = 4
	defaultPollTimeout = 30 * time.Second
)

// Config holds poller settings.
type Config struct {
	// Schedule is a cron spec such as "@every 1m".
	Schedule string

	// Concurrency caps how many scans are polled in parallel per sweep.
	Concurrency int

	// PollTimeout bounds each individual status poll.
	PollTimeout time.Duration
}

// Poller periodically refreshes the status of every active scan.
type Poller struct {
	orchestrator *scan.Orchestrator
	config       Config
	cron         *cron.Cron
	logger       *logging.Logger
	metrics      *metrics.Metrics

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a poller bound to the given orchestrator.
func New(orchestrator *scan.Orchestrator, cfg Config) *Poller {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		orchestrator: orchestrator,
		config:       cfg,
		cron:         cron.New(),
		logger:       logging.Default().WithComponent("poller"),
		metrics:      metrics.GetGlobalMetrics(),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start schedules the sweep and begins polling.
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("poller is already running")
	}

	if _, err := p.cron.AddFunc(p.config.Schedule, p.sweep); err != nil {
		return fmt.Errorf("invalid poll schedule %q: %w", p.config.Schedule, err)
	}

	p.cron.Start()
	p.running = true
	p.logger.Info("Poller started", "schedule", p.config.Schedule, "concurrency", p.config.Concurrency)
	return nil
}

// Stop halts the schedule and waits for in-flight polls to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	stopCtx := p.cron.Stop()
	p.cancel()
	<-stopCtx.Done()
	p.wg.Wait()
	p.logger.Info("Poller stopped")
}

// Running reports whether the poller is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// sweep polls every active scan, at most Concurrency at a time. Failures
// on individual scans are logged and never stop the sweep.
func (p *Poller) sweep() {
	active := p.orchestrator.Registry().Active()
	if len(active) == 0 {
		return
	}

	p.logger.Debug("Poll sweep starting", "scans", len(active))
	sem := make(chan struct{}, p.config.Concurrency)

	for _, scanID := range active {
		if p.ctx.Err() != nil {
			return
		}

		sem <- struct{}{}
		p.wg.Add(1)
		go func(scanID string) {
			defer p.wg.Done()
			defer func() { <-sem }()
			p.pollOne(scanID)
		}(scanID)
	}

	// Drain so one sweep finishes before the next starts stacking up.
	for i := 0; i < cap(sem); i++ {
		sem <- struct{}{}
	}
}

func (p *Poller) pollOne(scanID string) {
	ctx, cancel := context.WithTimeout(p.ctx, p.config.PollTimeout)
	defer cancel()

	if _, err := p.orchestrator.PollStatus(ctx, scanID); err != nil {
		p.logger.ErrorScan("Background poll failed", scanID, err)
	}
}
