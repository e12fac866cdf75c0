/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package era5 retrieves ERA5 reanalysis from the Copernicus Climate Data Store.
package era5

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cw3e/nwpcycle/internal/fetch"
	"github.com/cw3e/nwpcycle/internal/models"
	"github.com/cw3e/nwpcycle/internal/telemetry"
)

// maxActiveTasks is the CDS queue depth above which a key is passed over.
const maxActiveTasks = 5

// ErrNoKeys is returned when no CDS credentials are configured.
var ErrNoKeys = errors.New("no CDS keys configured")

// Rotator hands out the least loaded CDS key. Acquire is serialized so
// concurrent workers never race for the same queue slot.
type Rotator struct {
	client *Client
	keys   []string
	wait   time.Duration
	logger zerolog.Logger

	mu sync.Mutex
}

// NewRotator creates a rotator over keys. wait is how long to sleep when every
// key is saturated.
func NewRotator(client *Client, keys []string, wait time.Duration, logger zerolog.Logger) (*Rotator, error) {
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}
	if wait <= 0 {
		wait = time.Hour
	}
	return &Rotator{
		client: client,
		keys:   append([]string(nil), keys...),
		wait:   wait,
		logger: logger,
	}, nil
}

// Acquire blocks until some key has fewer than five queued or running tasks.
func (r *Rotator) Acquire(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		if key := r.pick(ctx); key != "" {
			return key, nil
		}

		r.logger.Warn().Dur("wait", r.wait).Msg("every CDS key is saturated, waiting")
		t := time.NewTimer(r.wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		case <-t.C:
		}
	}
}

func (r *Rotator) pick(ctx context.Context) string {
	rand.Shuffle(len(r.keys), func(i, j int) { r.keys[i], r.keys[j] = r.keys[j], r.keys[i] })

	for _, key := range r.keys {
		tasks, err := r.client.Tasks(ctx, key)
		if err != nil {
			r.logger.Warn().Err(err).Str("uid", uid(key)).Msg("list CDS tasks failed")
			continue
		}
		active := 0
		for _, t := range tasks {
			if t.Active() {
				active++
			}
		}
		r.logger.Debug().
			Str("uid", uid(key)).
			Int("tasks", len(tasks)).
			Int("active", active).
			Msg("CDS queue depth")
		if active < maxActiveTasks {
			return key
		}
	}
	return ""
}

// uid strips the secret half of a key for logging.
func uid(key string) string {
	id, _, _ := strings.Cut(key, ":")
	return id
}

// Options configures a download run.
type Options struct {
	Call         Call
	Start        time.Time
	Stop         time.Time
	StartHour    int
	HourInterval int
	DayInterval  int
	Root         string // files land in Root/<call>/
	Workers      int
	Spacing      time.Duration
}

// Downloader submits one CDS request per day chunk.
type Downloader struct {
	client  *Client
	rotator *Rotator
	ledger  fetch.Ledger
	opts    Options
	logger  zerolog.Logger
}

// New creates a downloader. ledger may be nil.
func New(client *Client, rotator *Rotator, ledger fetch.Ledger, opts Options, logger zerolog.Logger) *Downloader {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Downloader{
		client:  client,
		rotator: rotator,
		ledger:  ledger,
		opts:    opts,
		logger:  logger.With().Str("component", "era5").Str("call", string(opts.Call)).Logger(),
	}
}

// Dir is the directory receiving this run's files.
func (d *Downloader) Dir() string {
	return filepath.Join(d.opts.Root, string(d.opts.Call))
}

// Jobs builds one job per chunk whose target is not already present.
func (d *Downloader) Jobs(ctx context.Context) ([]fetch.Job, []fetch.Outcome, error) {
	hours, err := Hours(d.opts.StartHour, d.opts.HourInterval)
	if err != nil {
		return nil, nil, err
	}
	chunks, err := Chunks(d.opts.Start, d.opts.Stop, d.opts.DayInterval)
	if err != nil {
		return nil, nil, err
	}

	d.logger.Info().
		Str("from", d.opts.Start.Format(dateLayout)).
		Str("to", d.opts.Stop.Format(dateLayout)).
		Str("hours", hours).
		Str("dir", d.Dir()).
		Msg("planning requests")

	var (
		jobs    []fetch.Job
		skipped []fetch.Outcome
	)
	for _, c := range chunks {
		req, err := NewRequest(d.opts.Call, c.From, c.To, hours)
		if err != nil {
			return nil, nil, err
		}
		name := c.TargetName(d.opts.Call)
		path := filepath.Join(d.Dir(), name)

		// A CDS retrieval is never clobbered: re-requesting costs hours of queue time.
		done, err := fetch.AlreadyFetched(ctx, d.ledger, models.SourceERA5, name, path, false)
		if err != nil {
			return nil, nil, err
		}
		if done {
			d.logger.Info().Str("path", path).Msg("file already found, skipping")
			telemetry.FetchJobsTotal.WithLabelValues(models.SourceERA5, telemetry.ResultSkipped).Inc()
			skipped = append(skipped, fetch.Outcome{Name: name, Result: fetch.Result{Status: fetch.StatusSkipped, Path: path}})
			continue
		}
		jobs = append(jobs, &chunkJob{d: d, chunk: c, req: req, name: name, path: path})
	}
	return jobs, skipped, nil
}

// Run submits the outstanding chunks, Spacing apart, to at most Workers
// concurrent retrievals.
func (d *Downloader) Run(ctx context.Context) (fetch.Summary, error) {
	if err := os.MkdirAll(d.Dir(), 0o755); err != nil {
		return fetch.Summary{}, fmt.Errorf("create download directory: %w", err)
	}

	jobs, skipped, err := d.Jobs(ctx)
	if err != nil {
		return fetch.Summary{}, err
	}

	pool := fetch.Pool{
		Source:  models.SourceERA5,
		Workers: d.opts.Workers,
		Spacing: d.opts.Spacing,
		Logger:  d.logger,
	}
	summary := pool.Run(ctx, jobs)
	summary.Skipped += len(skipped)
	summary.Outcomes = append(skipped, summary.Outcomes...)
	return summary, summary.Err()
}

type chunkJob struct {
	d     *Downloader
	chunk Chunk
	req   Request
	name  string
	path  string
}

func (j *chunkJob) Name() string { return j.name }

func (j *chunkJob) Run(ctx context.Context) (fetch.Result, error) {
	res := fetch.Result{Path: j.path}
	var err error
	res.Bytes, err = j.retrieve(ctx)
	if recErr := fetch.Record(ctx, j.d.ledger, models.SourceERA5, j.name, j.chunk.From, 0, res, err); recErr != nil {
		j.d.logger.Warn().Err(recErr).Str("target", j.name).Msg("ledger update failed")
	}
	return res, err
}

func (j *chunkJob) retrieve(ctx context.Context) (int64, error) {
	key, err := j.d.rotator.Acquire(ctx)
	if err != nil {
		return 0, err
	}

	task, err := j.d.client.Submit(ctx, key, j.req)
	if err != nil {
		return 0, err
	}
	j.d.logger.Info().
		Str("target", j.name).
		Str("uid", uid(key)).
		Str("task", task.ID).
		Str("state", task.State).
		Msg("request submitted")

	task, err = j.d.client.Wait(ctx, key, task)
	if err != nil {
		return 0, err
	}

	n, err := j.d.client.Download(ctx, task.Location, j.path)
	if err != nil {
		return n, err
	}
	ok, err := fetch.IsGRIB(j.path)
	if err != nil {
		return n, err
	}
	if !ok {
		_ = os.Remove(j.path)
		return n, fmt.Errorf("%s: %w", j.name, fetch.ErrNotGRIB)
	}
	return n, nil
}
