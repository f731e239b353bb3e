// Package chromedriver implements browser.Driver on headless Chrome via
// chromedp, with a pooled instance lifecycle (warmup, restart policies)
// for parallel scenario runs against a live deployment.
package chromedriver

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Instance is one pooled Chrome process.
type Instance struct {
	ID     int
	logger *zap.Logger

	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	ctx             context.Context
	cancel          context.CancelFunc

	createdAt time.Time
	runsDone  int32
	inUse     int32
}

// NewInstance starts a Chrome process and verifies it responds.
func NewInstance(id int, config *Config, logger *zap.Logger) (*Instance, error) {
	inst := &Instance{
		ID:        id,
		logger:    logger,
		createdAt: time.Now().UTC(),
	}
	if err := inst.startBrowser(config); err != nil {
		return nil, fmt.Errorf("chromedriver: starting instance %d: %w", id, err)
	}

	logger.Info("Chrome instance started", zap.Int("instance_id", id))
	return inst, nil
}

func (in *Instance) startBrowser(config *Config) error {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.Flag("headless", config.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("mute-audio", true),
		chromedp.WindowSize(1280, 1024),
	}

	allocatorOpts := append(chromedp.DefaultExecAllocatorOptions[:], opts...)
	in.allocatorCtx, in.allocatorCancel = chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	in.ctx, in.cancel = chromedp.NewContext(in.allocatorCtx)

	if err := chromedp.Run(in.ctx); err != nil {
		return fmt.Errorf("launching Chrome: %w", err)
	}
	return nil
}

// IsAlive probes the browser with a version query.
func (in *Instance) IsAlive() bool {
	ctx, cancel := context.WithTimeout(in.ctx, 5*time.Second)
	defer cancel()

	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, _, _, _, err := cdpbrowser.GetVersion().Do(ctx)
		return err
	}))
	return err == nil
}

// Age reports how long the instance has been running.
func (in *Instance) Age() time.Duration {
	return time.Now().UTC().Sub(in.createdAt)
}

// ShouldRestart applies the recycle policies.
func (in *Instance) ShouldRestart(config *Config) bool {
	if int(atomic.LoadInt32(&in.runsDone)) >= config.RestartAfterCount {
		return true
	}
	return in.Age() >= config.RestartAfterTime
}

// Restart tears the browser down and starts a fresh one.
func (in *Instance) Restart(config *Config) error {
	in.logger.Info("Restarting Chrome instance",
		zap.Int("instance_id", in.ID),
		zap.Int32("runs_done", atomic.LoadInt32(&in.runsDone)),
		zap.Duration("age", in.Age()))

	in.Terminate()
	atomic.StoreInt32(&in.runsDone, 0)
	in.createdAt = time.Now().UTC()

	if err := in.startBrowser(config); err != nil {
		return fmt.Errorf("chromedriver: restarting instance %d: %w", in.ID, err)
	}
	return nil
}

// Terminate shuts the browser down.
func (in *Instance) Terminate() {
	if in.cancel != nil {
		in.cancel()
	}
	if in.allocatorCancel != nil {
		in.allocatorCancel()
	}
}

// MarkRunDone counts a completed scenario for restart accounting.
func (in *Instance) MarkRunDone() {
	atomic.AddInt32(&in.runsDone, 1)
}
