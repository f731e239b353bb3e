package chromedriver

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Pool manages Chrome instances with a FIFO queue of available IDs, so the
// CLI runner can execute scenarios in parallel browsers.
type Pool struct {
	config *Config
	logger *zap.Logger

	mu        sync.RWMutex
	instances []*Instance
	queue     chan int

	totalRuns     atomic.Int64
	totalRestarts atomic.Int64
}

// NewPool starts the configured number of Chrome instances.
func NewPool(config *Config, logger *zap.Logger) (*Pool, error) {
	size := config.ResolvePoolSize()
	logger.Info("Initializing Chrome pool", zap.Int("pool_size", size))

	p := &Pool{
		config:    config,
		logger:    logger,
		instances: make([]*Instance, size),
		queue:     make(chan int, size),
	}

	for i := 0; i < size; i++ {
		inst, err := NewInstance(i, config, logger)
		if err != nil {
			p.Shutdown()
			return nil, fmt.Errorf("chromedriver: creating pool: %w", err)
		}
		p.instances[i] = inst
		p.queue <- i
	}
	return p, nil
}

// Acquire blocks until an instance is free and returns a driver bound to it.
// Release the driver with Release when the scenario finishes.
func (p *Pool) Acquire(ctx context.Context) (*Driver, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("chromedriver: acquiring instance: %w", ctx.Err())
	case id := <-p.queue:
		p.mu.RLock()
		inst := p.instances[id]
		p.mu.RUnlock()
		return NewDriver(inst, p.config, p.logger), nil
	}
}

// Release returns the driver's instance to the queue, recycling it first
// when the restart policies say so.
func (p *Pool) Release(d *Driver) {
	inst := d.inst
	inst.MarkRunDone()
	p.totalRuns.Add(1)

	if inst.ShouldRestart(p.config) || !inst.IsAlive() {
		if err := inst.Restart(p.config); err != nil {
			p.logger.Error("Failed to restart Chrome instance",
				zap.Int("instance_id", inst.ID),
				zap.Error(err))
		} else {
			p.totalRestarts.Add(1)
		}
	}
	p.queue <- inst.ID
}

// TotalRuns reports scenarios completed across all instances.
func (p *Pool) TotalRuns() int64 {
	return p.totalRuns.Load()
}

// Shutdown terminates every instance.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, inst := range p.instances {
		if inst != nil {
			inst.Terminate()
		}
	}
	p.logger.Info("Chrome pool shut down",
		zap.Int64("total_runs", p.totalRuns.Load()),
		zap.Int64("total_restarts", p.totalRestarts.Load()))
}
