// Package harness ties the pieces of one test run together: browser driver,
// REST client, flow-runner defaults, and the transfer interceptor. One
// Harness is owned by one test run; nothing here is process-global.
package harness

import (
	"time"

	"go.uber.org/zap"

	"github.com/probelab/uidriver/internal/restclient"
	"github.com/probelab/uidriver/pkg/browser"
	"github.com/probelab/uidriver/pkg/flow"
	"github.com/probelab/uidriver/pkg/transfer"
)

// Options configures a Harness.
type Options struct {
	// BaseURL is the root of the application under test.
	BaseURL string

	// Driver is the browser capability scenarios act through.
	Driver browser.Driver

	// Client is the REST client for the application's API. When nil, one is
	// created from BaseURL + "/api/v1".
	Client *restclient.Client

	// Logger defaults to a no-op logger.
	Logger *zap.Logger

	// Observer receives step lifecycle events (the metrics collector
	// implements this).
	Observer flow.Observer

	// PollInterval and WaitTimeout override the flow defaults for every
	// runner the harness creates.
	PollInterval time.Duration
	WaitTimeout  time.Duration
}

// Harness is the explicit context object scenarios hang off.
type Harness struct {
	BaseURL string
	Driver  browser.Driver
	Client  *restclient.Client
	Logger  *zap.Logger

	observer     flow.Observer
	pollInterval time.Duration
	waitTimeout  time.Duration

	interceptor *transfer.Interceptor
}

// New builds a harness for one test run.
func New(opts Options) *Harness {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	client := opts.Client
	if client == nil {
		client = restclient.NewClient(opts.BaseURL+"/api/v1", logger)
	}
	return &Harness{
		BaseURL:      opts.BaseURL,
		Driver:       opts.Driver,
		Client:       client,
		Logger:       logger,
		observer:     opts.Observer,
		pollInterval: opts.PollInterval,
		waitTimeout:  opts.WaitTimeout,
	}
}

// NewFlow creates a step runner with the harness defaults applied.
func (h *Harness) NewFlow() *flow.Runner {
	opts := []flow.Option{flow.WithLogger(h.Logger)}
	if h.pollInterval > 0 {
		opts = append(opts, flow.WithPollInterval(h.pollInterval))
	}
	if h.waitTimeout > 0 {
		opts = append(opts, flow.WithWaitTimeout(h.waitTimeout))
	}
	if h.observer != nil {
		opts = append(opts, flow.WithObserver(h.observer))
	}
	return flow.NewRunner(opts...)
}

// InstallInterceptor wraps the harness's uploader with the transfer
// interceptor. Installing twice returns the same interceptor; the second
// call has no further effect.
func (h *Harness) InstallInterceptor() *transfer.Interceptor {
	if h.interceptor == nil {
		h.interceptor = transfer.NewInterceptor(h.Client, h.Logger)
		h.Logger.Debug("Transfer interceptor installed")
	}
	return h.interceptor
}

// Uploader returns the chunk uploader scenarios should use: the interceptor
// when installed, the plain REST client otherwise.
func (h *Harness) Uploader() transfer.Uploader {
	if h.interceptor != nil {
		return h.interceptor
	}
	return h.Client
}
