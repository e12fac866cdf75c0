/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package fetch runs retrieval jobs on a bounded worker pool and provides the
// file helpers shared by the archive downloaders.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/cw3e/nwpcycle/internal/telemetry"
)

// Status is the outcome of one job.
type Status string

const (
	StatusOK      Status = telemetry.ResultOK
	StatusSkipped Status = telemetry.ResultSkipped
	StatusFailed  Status = telemetry.ResultFailed
)

// Result describes what a job produced.
type Result struct {
	Status Status
	Path   string
	Bytes  int64
}

// Job is one unit of retrieval work.
type Job interface {
	Name() string
	Run(ctx context.Context) (Result, error)
}

// Outcome pairs a job name with its result.
type Outcome struct {
	Name   string
	Result Result
	Err    error
}

// Summary aggregates the outcomes of a pool run.
type Summary struct {
	OK       int
	Skipped  int
	Failed   int
	Bytes    int64
	Outcomes []Outcome
}

// Err joins the errors of every failed job, or returns nil.
func (s Summary) Err() error {
	var errs []error
	for _, o := range s.Outcomes {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.Name, o.Err))
		}
	}
	return errors.Join(errs...)
}

// Pool runs jobs with at most Workers in flight. Spacing, when positive, is the
// delay between consecutive submissions.
type Pool struct {
	Source  string
	Workers int
	Spacing time.Duration
	Logger  zerolog.Logger
}

// Run submits every job and waits for those submitted to finish. Submission
// stops when ctx is cancelled; jobs not yet submitted are absent from the
// summary. Completion order is not guaranteed.
func (p Pool) Run(ctx context.Context, jobs []Job) Summary {
	workers := p.Workers
	if workers <= 0 {
		workers = 1
	}

	logger := p.Logger.With().Str("source", p.Source).Logger()

	var (
		mu      sync.Mutex
		summary Summary
		g       errgroup.Group
	)
	g.SetLimit(workers)

	for i, job := range jobs {
		if ctx.Err() != nil {
			logger.Warn().Int("remaining", len(jobs)-i).Msg("context cancelled, stopping submission")
			break
		}
		if i > 0 && p.Spacing > 0 {
			if !sleep(ctx, p.Spacing) {
				logger.Warn().Int("remaining", len(jobs)-i).Msg("context cancelled, stopping submission")
				break
			}
		}

		job := job
		g.Go(func() error {
			out := p.runOne(ctx, job, logger)
			mu.Lock()
			summary.add(out)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	logger.Info().
		Int("ok", summary.OK).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Int64("bytes", summary.Bytes).
		Msg("retrieval finished")

	return summary
}

func (p Pool) runOne(ctx context.Context, job Job, logger zerolog.Logger) Outcome {
	ctx, span := telemetry.StartSpan(ctx, p.Source, "job", attribute.String("job", job.Name()))

	telemetry.FetchInFlight.WithLabelValues(p.Source).Inc()
	start := time.Now()
	res, err := job.Run(ctx)
	telemetry.FetchDuration.WithLabelValues(p.Source).Observe(time.Since(start).Seconds())
	telemetry.FetchInFlight.WithLabelValues(p.Source).Dec()

	if err != nil {
		res.Status = StatusFailed
	}
	if res.Status == "" {
		res.Status = StatusOK
	}
	telemetry.FetchJobsTotal.WithLabelValues(p.Source, string(res.Status)).Inc()
	if res.Status == StatusOK {
		telemetry.FetchBytesTotal.WithLabelValues(p.Source).Add(float64(res.Bytes))
	}
	telemetry.EndSpan(span, err)

	switch res.Status {
	case StatusFailed:
		logger.Error().Err(err).Str("job", job.Name()).Msg("retrieval failed")
	case StatusSkipped:
		logger.Info().Str("job", job.Name()).Str("path", res.Path).Msg("already present, skipping")
	default:
		logger.Info().
			Str("job", job.Name()).
			Str("path", res.Path).
			Int64("bytes", res.Bytes).
			Dur("elapsed", time.Since(start)).
			Msg("retrieved")
	}

	return Outcome{Name: job.Name(), Result: res, Err: err}
}

func (s *Summary) add(o Outcome) {
	switch o.Result.Status {
	case StatusOK:
		s.OK++
		s.Bytes += o.Result.Bytes
	case StatusSkipped:
		s.Skipped++
	default:
		s.Failed++
	}
	s.Outcomes = append(s.Outcomes, o)
}

// sleep waits for d or ctx, reporting whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
