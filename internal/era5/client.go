/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package era5

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cw3e/nwpcycle/internal/fetch"
	"github.com/cw3e/nwpcycle/internal/telemetry"
)

// Task states reported by the CDS.
const (
	StateQueued    = "queued"
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// ErrTaskFailed is returned when the CDS reports a failed task.
var ErrTaskFailed = errors.New("CDS task failed")

// Task is the CDS view of a submitted request.
type Task struct {
	ID            string     `json:"request_id"`
	State         string     `json:"state"`
	Location      string     `json:"location"`
	ContentLength int64      `json:"content_length"`
	Error         *TaskError `json:"error,omitempty"`
}

// TaskError is the CDS explanation attached to a failed task.
type TaskError struct {
	Message string `json:"message"`
	Reason  string `json:"reason"`
}

// Active reports whether the task counts against the per-key queue limit.
func (t Task) Active() bool {
	return t.State == StateQueued || t.State == StateRunning
}

// Client speaks the CDS v2 task API.
type Client struct {
	baseURL string
	http    *http.Client
	poll    time.Duration
}

// NewClient creates a client for baseURL, e.g. https://cds.climate.copernicus.eu/api/v2.
// httpClient may be nil.
func NewClient(baseURL string, httpClient *http.Client, poll time.Duration) *Client {
	if httpClient == nil {
		httpClient = telemetry.NewHTTPClient(0)
	}
	if poll <= 0 {
		poll = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		poll:    poll,
	}
}

// Tasks lists the tasks owned by key.
func (c *Client) Tasks(ctx context.Context, key string) ([]Task, error) {
	var tasks []Task
	if err := c.do(ctx, key, http.MethodGet, c.baseURL+"/tasks/", nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// Submit posts req and returns the created task.
func (c *Client) Submit(ctx context.Context, key string, req Request) (Task, error) {
	body, err := json.Marshal(req.Body)
	if err != nil {
		return Task{}, fmt.Errorf("encode request: %w", err)
	}
	var task Task
	if err := c.do(ctx, key, http.MethodPost, c.baseURL+"/resources/"+req.Dataset, body, &task); err != nil {
		return Task{}, err
	}
	return task, nil
}

// Task fetches the current state of id.
func (c *Client) Task(ctx context.Context, key, id string) (Task, error) {
	var task Task
	if err := c.do(ctx, key, http.MethodGet, c.baseURL+"/tasks/"+url.PathEscape(id), nil, &task); err != nil {
		return Task{}, err
	}
	return task, nil
}

// Wait polls task until it completes or fails.
func (c *Client) Wait(ctx context.Context, key string, task Task) (Task, error) {
	for {
		switch task.State {
		case StateCompleted:
			return task, nil
		case StateFailed:
			msg := "no reason given"
			if task.Error != nil {
				msg = strings.TrimSpace(task.Error.Message + " " + task.Error.Reason)
			}
			return task, fmt.Errorf("%w: %s: %s", ErrTaskFailed, task.ID, msg)
		}

		t := time.NewTimer(c.poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return task, ctx.Err()
		case <-t.C:
		}

		next, err := c.Task(ctx, key, task.ID)
		if err != nil {
			return task, err
		}
		task = next
	}
}

// Download streams the result at location into path.
func (c *Client) Download(ctx context.Context, location, path string) (int64, error) {
	ref, err := url.Parse(location)
	if err != nil {
		return 0, fmt.Errorf("parse location: %w", err)
	}
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return 0, fmt.Errorf("parse base url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.ResolveReference(ref).String(), nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", location, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download %s: unexpected status %d", location, resp.StatusCode)
	}
	return fetch.WriteFile(ctx, path, resp.Body)
}

func (c *Client) do(ctx context.Context, key, method, endpoint string, body []byte, out any) error {
	uid, secret, ok := strings.Cut(key, ":")
	if !ok {
		return fmt.Errorf("CDS key must be uid:apikey")
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(uid, secret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", method, endpoint, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}
