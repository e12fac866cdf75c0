/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHTTPClientCountsUpstreamRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	host := mustHost(t, srv.URL)
	before := testutil.ToFloat64(UpstreamRequestsTotal.WithLabelValues(host, http.MethodPost, "202"))

	client := NewHTTPClient(5 * time.Second)
	resp, err := client.Post(srv.URL+"/resources/reanalysis-era5-single-levels", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	after := testutil.ToFloat64(UpstreamRequestsTotal.WithLabelValues(host, http.MethodPost, "202"))
	if after-before != 1 {
		t.Fatalf("expected one counted request, got %v", after-before)
	}
}

func TestRouterServesHealthAndMetrics(t *testing.T) {
	srv := httptest.NewServer(Router())
	defer srv.Close()

	for _, path := range []string{"/healthz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, resp.StatusCode)
		}
		if path == "/metrics" && !strings.Contains(string(body), "nwpcycle_") && !strings.Contains(string(body), "go_goroutines") {
			t.Errorf("metrics output missing expected series")
		}
	}
}

func mustHost(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return u.Host
}
