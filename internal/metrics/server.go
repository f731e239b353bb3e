package metrics

import (
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// StartServer exposes the collector on its own fasthttp listener. Returns
// nil when metrics are disabled; callers shut the server down via
// fasthttp.Server.Shutdown.
func StartServer(enabled bool, listen, path string, c *Collector, logger *zap.Logger) (*fasthttp.Server, error) {
	if !enabled {
		logger.Info("Metrics collection disabled")
		return nil, nil
	}
	if path == "" {
		path = "/metrics"
	}

	handler := c.HTTPHandler()
	srv := &fasthttp.Server{
		Name:               "uidriver-metrics",
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       10 * time.Second,
		MaxRequestBodySize: 1024,
		Handler: func(ctx *fasthttp.RequestCtx) {
			if string(ctx.Path()) == path {
				handler(ctx)
				return
			}
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			ctx.SetBodyString("Not Found")
		},
	}

	go func() {
		logger.Info("Metrics server listening",
			zap.String("listen", listen),
			zap.String("path", path))
		if err := srv.ListenAndServe(listen); err != nil {
			logger.Error("Metrics server stopped",
				zap.String("listen", listen),
				zap.Error(err))
		}
	}()

	return srv, nil
}
