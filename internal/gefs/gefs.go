/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package gefs downloads GEFS ensemble GRIB files from the NOAA open-data
// bucket on AWS.
package gefs

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cw3e/nwpcycle/internal/cycle"
	"github.com/cw3e/nwpcycle/internal/fetch"
	"github.com/cw3e/nwpcycle/internal/models"
	"github.com/cw3e/nwpcycle/internal/storage"
)

// DefaultBucket is the public GEFS bucket.
const DefaultBucket = "noaa-gefs-pds"

// excluded substrings: aerosol and wave ensembles, ensemble mean and spread
// products, and the quarter-degree grids.
var excluded = []string{"chem", "wave", "geavg", "gespr", "0p25"}

// Filter selects object keys for a set of forecast hours.
type Filter struct {
	Leads         []int
	Control       bool
	Perturbations bool
}

// Match returns the lead whose f{HH} or f{HHH} suffix ends rel, and whether
// rel passes the member and product exclusions. rel is the key relative to
// the cycle prefix.
func (f Filter) Match(rel string) (int, bool) {
	for _, ex := range excluded {
		if strings.Contains(rel, ex) {
			return 0, false
		}
	}
	if !f.Control && strings.Contains(rel, "gec") {
		return 0, false
	}
	if !f.Perturbations && strings.Contains(rel, "gep") {
		return 0, false
	}
	for _, lead := range f.Leads {
		if strings.HasSuffix(rel, "f"+cycle.PadLead(lead, 2)) || strings.HasSuffix(rel, "f"+cycle.PadLead(lead, 3)) {
			return lead, true
		}
	}
	return 0, false
}

// Prefix is the bucket prefix holding every product of one cycle. Its layout
// beneath the cycle hour changed in 2018 and 2020; listing is recursive so
// all eras resolve the same way.
func Prefix(init time.Time) string {
	return fmt.Sprintf("gefs.%s/%s/", init.Format("20060102"), init.Format("15"))
}

// Options configures a download run.
type Options struct {
	Root          string
	Control       bool
	Perturbations bool
	Clobber       bool
	Workers       int
}

// Downloader copies GEFS objects into Root/YYYYMMDD/<basename>.
type Downloader struct {
	store  storage.ObjectStore
	ledger fetch.Ledger
	opts   Options
	logger zerolog.Logger
}

// New creates a downloader. ledger may be nil.
func New(store storage.ObjectStore, ledger fetch.Ledger, opts Options, logger zerolog.Logger) *Downloader {
	return &Downloader{
		store:  store,
		ledger: ledger,
		opts:   opts,
		logger: logger.With().Str("component", "gefs").Logger(),
	}
}

// Jobs lists the bucket for every init in plan and returns one job per
// selected object, ordered by key.
func (d *Downloader) Jobs(ctx context.Context, plan cycle.Plan) ([]fetch.Job, error) {
	filter := Filter{Leads: plan.Leads, Control: d.opts.Control, Perturbations: d.opts.Perturbations}

	var jobs []fetch.Job
	for _, init := range plan.Inits {
		prefix := Prefix(init)
		objects, err := d.store.List(ctx, prefix)
		if err != nil {
			return nil, err
		}
		sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })

		dir := filepath.Join(d.opts.Root, init.Format("20060102"))
		seen := make(map[string]string)
		n := 0
		for _, obj := range objects {
			lead, ok := filter.Match(strings.TrimPrefix(obj.Key, prefix))
			if !ok {
				continue
			}
			base := path.Base(obj.Key)
			if prev, dup := seen[base]; dup {
				d.logger.Warn().Str("key", obj.Key).Str("kept", prev).Msg("duplicate basename, skipping")
				continue
			}
			seen[base] = obj.Key
			jobs = append(jobs, &objectJob{
				d:    d,
				key:  obj.Key,
				init: init,
				lead: lead,
				path: filepath.Join(dir, base),
			})
			n++
		}

		d.logger.Info().
			Str("init", init.Format(time.RFC3339)).
			Int("listed", len(objects)).
			Int("selected", n).
			Msg("cycle listed")
	}
	return jobs, nil
}

// Run downloads every selected object on a bounded pool.
func (d *Downloader) Run(ctx context.Context, plan cycle.Plan) (fetch.Summary, error) {
	jobs, err := d.Jobs(ctx, plan)
	if err != nil {
		return fetch.Summary{}, err
	}
	pool := fetch.Pool{Source: models.SourceGEFS, Workers: d.opts.Workers, Logger: d.logger}
	summary := pool.Run(ctx, jobs)
	return summary, summary.Err()
}

type objectJob struct {
	d    *Downloader
	key  string
	init time.Time
	lead int
	path string
}

func (j *objectJob) Name() string { return j.key }

func (j *objectJob) Run(ctx context.Context) (fetch.Result, error) {
	res := fetch.Result{Path: j.path}

	skip, err := fetch.AlreadyFetched(ctx, j.d.ledger, models.SourceGEFS, j.key, j.path, j.d.opts.Clobber)
	if err != nil {
		return res, err
	}
	if skip {
		res.Status = fetch.StatusSkipped
		return res, nil
	}

	res.Bytes, err = j.fetch(ctx)
	if recErr := fetch.Record(ctx, j.d.ledger, models.SourceGEFS, j.key, j.init, j.lead, res, err); recErr != nil {
		j.d.logger.Warn().Err(recErr).Str("key", j.key).Msg("ledger update failed")
	}
	return res, err
}

func (j *objectJob) fetch(ctx context.Context) (int64, error) {
	body, err := j.d.store.Open(ctx, j.key)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	n, err := fetch.WriteFile(ctx, j.path, body)
	if err != nil {
		return n, err
	}

	ok, err := fetch.IsGRIB(j.path)
	if err != nil {
		return n, err
	}
	if !ok {
		_ = os.Remove(j.path)
		return n, fmt.Errorf("%s: %w", j.key, fetch.ErrNotGRIB)
	}
	return n, nil
}
