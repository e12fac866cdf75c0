/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package tigge retrieves GEFS ensemble forecasts from the ECMWF TIGGE archive.
// All perturbations for a cycle are combined in one file per level type, to be
// split in post-processing.
package tigge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/cw3e/nwpcycle/internal/cycle"
	"github.com/cw3e/nwpcycle/internal/fetch"
	"github.com/cw3e/nwpcycle/internal/models"
)

// Options configures a download run.
type Options struct {
	Root    string
	Members int
	Control bool
	Clobber bool
	Workers int
}

// Downloader queues one request per cycle and template.
type Downloader struct {
	client *Client
	ledger fetch.Ledger
	opts   Options
	logger zerolog.Logger
}

// New creates a downloader. ledger may be nil.
func New(client *Client, ledger fetch.Ledger, opts Options, logger zerolog.Logger) *Downloader {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Downloader{
		client: client,
		ledger: ledger,
		opts:   opts,
		logger: logger.With().Str("component", "tigge").Logger(),
	}
}

// Requests builds every request for plan, ordered by init then kind.
func (d *Downloader) Requests(plan cycle.Plan) ([]Request, error) {
	var reqs []Request
	for _, init := range plan.Inits {
		for _, kind := range Kinds(d.opts.Control) {
			req, err := NewRequest(kind, init, plan.Leads, d.opts.Members, d.opts.Root)
			if err != nil {
				return nil, err
			}
			reqs = append(reqs, req)
		}
	}
	return reqs, nil
}

// Run retrieves every request on a bounded pool.
func (d *Downloader) Run(ctx context.Context, plan cycle.Plan) (fetch.Summary, error) {
	reqs, err := d.Requests(plan)
	if err != nil {
		return fetch.Summary{}, err
	}

	jobs := make([]fetch.Job, 0, len(reqs))
	for _, req := range reqs {
		d.logger.Debug().
			Str("kind", string(req.Kind)).
			Str("target", req.Target).
			Interface("request", req.Body).
			Msg("request prepared")
		jobs = append(jobs, &requestJob{d: d, req: req})
	}

	pool := fetch.Pool{Source: models.SourceTIGGE, Workers: d.opts.Workers, Logger: d.logger}
	summary := pool.Run(ctx, jobs)
	return summary, summary.Err()
}

type requestJob struct {
	d   *Downloader
	req Request
}

func (j *requestJob) Name() string { return filepath.Base(j.req.Target) }

func (j *requestJob) Run(ctx context.Context) (fetch.Result, error) {
	res := fetch.Result{Path: j.req.Target}
	key := j.Name()

	skip, err := fetch.AlreadyFetched(ctx, j.d.ledger, models.SourceTIGGE, key, j.req.Target, j.d.opts.Clobber)
	if err != nil {
		return res, err
	}
	if skip {
		res.Status = fetch.StatusSkipped
		return res, nil
	}

	res.Bytes, err = j.retrieve(ctx)
	if recErr := fetch.Record(ctx, j.d.ledger, models.SourceTIGGE, key, j.req.Init, 0, res, err); recErr != nil {
		j.d.logger.Warn().Err(recErr).Str("target", key).Msg("ledger update failed")
	}
	return res, err
}

func (j *requestJob) retrieve(ctx context.Context) (int64, error) {
	st, err := j.d.client.Submit(ctx, j.req)
	if err != nil {
		return 0, err
	}
	j.d.logger.Info().Str("target", j.Name()).Str("status", st.Status).Msg("request queued")

	st, err = j.d.client.Wait(ctx, st)
	if err != nil {
		return 0, err
	}

	n, err := j.d.client.Download(ctx, st, j.req.Target)
	if err != nil {
		return n, err
	}
	ok, err := fetch.IsGRIB(j.req.Target)
	if err != nil {
		return n, err
	}
	if !ok {
		_ = os.Remove(j.req.Target)
		return n, fmt.Errorf("%s: %w", j.Name(), fetch.ErrNotGRIB)
	}
	return n, nil
}
