/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Router exposes /metrics and /healthz.
func Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return r
}

// MetricsServer serves Router on addr for the lifetime of a command.
type MetricsServer struct {
	srv    *http.Server
	logger zerolog.Logger
}

// StartMetricsServer begins listening in the background. An empty addr returns
// a server whose Shutdown is a no-op.
func StartMetricsServer(addr string, logger zerolog.Logger) *MetricsServer {
	ms := &MetricsServer{logger: logger.With().Str("component", "metrics").Logger()}
	if addr == "" {
		return ms
	}

	ms.srv = &http.Server{
		Addr:              addr,
		Handler:           Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		ms.logger.Info().Str("addr", addr).Msg("metrics listening")
		if err := ms.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ms.logger.Error().Err(err).Msg("metrics server error")
		}
	}()
	return ms
}

// Shutdown stops the listener.
func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	if ms == nil || ms.srv == nil {
		return nil
	}
	return ms.srv.Shutdown(ctx)
}
