package main

import (
	"context"
	"net/http"

	"github.com/datawire/dlib/dlog"

	"github.com/jakmeier/osnet/pkg/rmetrics"
)

// serveMetrics starts a background HTTP server exposing m until ctx is
// cancelled, using a small dedicated mux serving /metrics rather than
// the default global registry handler.
func serveMetrics(ctx context.Context, addr string, m *rmetrics.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	go func() {
		dlog.Infof(ctx, "serving metrics on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			dlog.Errorf(ctx, "metrics server: %v", err)
		}
	}()
}
