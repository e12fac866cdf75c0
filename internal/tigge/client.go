/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package tigge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cw3e/nwpcycle/internal/fetch"
	"github.com/cw3e/nwpcycle/internal/telemetry"
)

// DefaultURL is the public ECMWF Web API.
const DefaultURL = "https://api.ecmwf.int/v1"

// ErrNoCredentials is returned when neither the environment nor ~/.ecmwfapirc
// provide an API key.
var ErrNoCredentials = errors.New("no ECMWF API credentials")

// ErrAborted is returned when the ECMWF queue aborts a request.
var ErrAborted = errors.New("ECMWF request aborted")

// Credentials identify an ECMWF account.
type Credentials struct {
	URL   string `json:"url"`
	Key   string `json:"key"`
	Email string `json:"email"`
}

// ResolveCredentials prefers explicit values and falls back to the JSON rc
// file at rcPath (normally ~/.ecmwfapirc). An empty rcPath selects the default.
func ResolveCredentials(explicit Credentials, rcPath string) (Credentials, error) {
	if explicit.Key != "" && explicit.Email != "" {
		if explicit.URL == "" {
			explicit.URL = DefaultURL
		}
		return explicit, nil
	}

	if rcPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Credentials{}, fmt.Errorf("%w: %v", ErrNoCredentials, err)
		}
		rcPath = filepath.Join(home, ".ecmwfapirc")
	}

	data, err := os.ReadFile(rcPath)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrNoCredentials, err)
	}
	var rc Credentials
	if err := json.Unmarshal(data, &rc); err != nil {
		return Credentials{}, fmt.Errorf("parse %s: %w", rcPath, err)
	}
	if rc.Key == "" || rc.Email == "" {
		return Credentials{}, fmt.Errorf("%w: %s lacks key or email", ErrNoCredentials, rcPath)
	}
	if rc.URL == "" {
		rc.URL = explicit.URL
	}
	if rc.URL == "" {
		rc.URL = DefaultURL
	}
	return rc, nil
}

// Status is the queue view of a submitted request.
type Status struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Href   string `json:"href"`
	Size   int64  `json:"size"`
	Reason string `json:"reason"`
	Error  string `json:"error"`
}

// Client speaks the ECMWF Web API dataset endpoints.
type Client struct {
	creds Credentials
	http  *http.Client
	poll  time.Duration
}

// NewClient creates a client. httpClient may be nil.
func NewClient(creds Credentials, httpClient *http.Client, poll time.Duration) *Client {
	if httpClient == nil {
		httpClient = telemetry.NewHTTPClient(0)
	}
	if poll <= 0 {
		poll = time.Minute
	}
	creds.URL = strings.TrimRight(creds.URL, "/")
	return &Client{creds: creds, http: httpClient, poll: poll}
}

// Submit queues req and returns the status resource to poll.
func (c *Client) Submit(ctx context.Context, req Request) (Status, error) {
	body, err := json.Marshal(req.Body)
	if err != nil {
		return Status{}, fmt.Errorf("encode request: %w", err)
	}
	endpoint := c.creds.URL + "/datasets/" + tiggeDataset + "/requests"
	st, code, err := c.call(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return Status{}, err
	}
	if code != http.StatusAccepted && code != http.StatusOK && code != http.StatusSeeOther {
		return Status{}, fmt.Errorf("submit %s: unexpected status %d", req.Kind, code)
	}
	if st.Href == "" {
		return Status{}, fmt.Errorf("submit %s: response has no href", req.Kind)
	}
	return st, nil
}

// Wait polls st until the request is complete and returns the final status,
// whose Href points at the data.
func (c *Client) Wait(ctx context.Context, st Status) (Status, error) {
	statusURL := c.resolve(st.Href)
	for {
		switch st.Status {
		case "complete":
			return st, nil
		case "aborted":
			return st, fmt.Errorf("%w: %s %s", ErrAborted, st.Name, strings.TrimSpace(st.Reason+" "+st.Error))
		}

		t := time.NewTimer(c.poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return st, ctx.Err()
		case <-t.C:
		}

		next, _, err := c.call(ctx, http.MethodGet, statusURL, nil)
		if err != nil {
			return st, err
		}
		if next.Href == "" {
			next.Href = st.Href
		}
		st = next
	}
}

// Download streams the completed result to path.
func (c *Client) Download(ctx context.Context, st Status, path string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(st.Href), nil)
	if err != nil {
		return 0, err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", st.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download %s: unexpected status %d", st.Name, resp.StatusCode)
	}

	n, err := fetch.WriteFile(ctx, path, resp.Body)
	if err != nil {
		return n, err
	}
	if st.Size > 0 && n != st.Size {
		_ = os.Remove(path)
		return n, fmt.Errorf("download %s: got %d bytes, expected %d", st.Name, n, st.Size)
	}
	return n, nil
}

func (c *Client) call(ctx context.Context, method, endpoint string, body []byte) (Status, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return Status{}, 0, err
	}
	c.authorize(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Status{}, 0, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Status{}, resp.StatusCode, fmt.Errorf("%s %s: status %d: %s", method, endpoint, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return Status{}, resp.StatusCode, fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	if st.Href == "" {
		st.Href = resp.Header.Get("Location")
	}
	return st, resp.StatusCode, nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("From", c.creds.Email)
	req.Header.Set("X-ECMWF-KEY", c.creds.Key)
}

func (c *Client) resolve(href string) string {
	ref, err := url.Parse(href)
	if err != nil || ref.IsAbs() {
		return href
	}
	base, err := url.Parse(c.creds.URL + "/")
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
