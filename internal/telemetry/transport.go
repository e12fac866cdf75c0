/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// metricsTransport records upstream request metrics around a RoundTripper.
type metricsTransport struct {
	next http.RoundTripper
}

func (t *metricsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)

	status := "error"
	if err == nil {
		status = strconv.Itoa(resp.StatusCode)
	}

	host := req.URL.Host
	UpstreamRequestDuration.WithLabelValues(host, req.Method).Observe(time.Since(start).Seconds())
	UpstreamRequestsTotal.WithLabelValues(host, req.Method, status).Inc()

	return resp, err
}

// NewHTTPClient returns a client whose requests are traced and counted.
// A zero timeout leaves the client unbounded, which large archive downloads need.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: WrapTransport(http.DefaultTransport),
	}
}

// WrapTransport instruments base with OpenTelemetry spans and metrics.
func WrapTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return otelhttp.NewTransport(&metricsTransport{next: base})
}
