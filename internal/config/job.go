/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cw3e/nwpcycle/internal/cycle"
)

// isoLayouts are the timestamp forms accepted in job files and flags.
var isoLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006010215",
}

// ParseTime parses an ISO-8601 timestamp. Values without a zone are UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse time %q: not an ISO-8601 timestamp", s)
}

// Job describes one run of a downloader or workflow action, as read from YAML.
type Job struct {
	Start         string               `yaml:"start"`
	End           string               `yaml:"end"`
	CycleInterval int                  `yaml:"cycle_interval"`
	Forecast      cycle.ForecastWindow `yaml:"forecast"`
	DataRoot      string               `yaml:"data_root"`
	Workers       int                  `yaml:"workers"`

	GEFS   GEFSJob   `yaml:"gefs"`
	ERA5   ERA5Job   `yaml:"era5"`
	TIGGE  TIGGEJob  `yaml:"tigge"`
	Rocoto RocotoJob `yaml:"rocoto"`
}

// GEFSJob selects ensemble members for the AWS download.
type GEFSJob struct {
	Control       bool `yaml:"control"`
	Perturbations bool `yaml:"perturbations"`
	Clobber       bool `yaml:"clobber"`
}

// ERA5Job configures the CDS reanalysis download.
type ERA5Job struct {
	Call           string        `yaml:"call"`
	StartHour      int           `yaml:"start_hour"`
	HourInterval   int           `yaml:"hour_interval"`
	DayInterval    int           `yaml:"day_interval"`
	SubmitSpacing  time.Duration `yaml:"submit_spacing"`
	CredentialWait time.Duration `yaml:"credential_wait"`
}

// TIGGEJob configures the TIGGE ensemble download.
type TIGGEJob struct {
	Members int  `yaml:"members"`
	Control bool `yaml:"control"`
	Clobber bool `yaml:"clobber"`
}

// RocotoJob names the workflows to act on.
type RocotoJob struct {
	Cases  []string      `yaml:"cases"`
	Flows  []string      `yaml:"flows"`
	Cycles []string      `yaml:"cycles"`
	Tasks  []string      `yaml:"tasks"`
	Until  string        `yaml:"until"`
	Every  time.Duration `yaml:"every"`
}

// DefaultJob returns the defaults applied before a job file is decoded.
func DefaultJob() Job {
	return Job{
		CycleInterval: 6,
		Forecast:      cycle.ForecastWindow{Min: 0, Max: 12, Step: 3},
		Workers:       4,
		GEFS:          GEFSJob{Perturbations: true, Clobber: true},
		ERA5: ERA5Job{
			Call:           "pres_levels",
			HourInterval:   1,
			DayInterval:    1,
			SubmitSpacing:  15 * time.Second,
			CredentialWait: time.Hour,
		},
		TIGGE:  TIGGEJob{Members: 20},
		Rocoto: RocotoJob{Every: time.Minute},
	}
}

// LoadJob reads a YAML job file over DefaultJob.
func LoadJob(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job file: %w", err)
	}
	job := DefaultJob()
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("parse job file %s: %w", path, err)
	}
	return &job, nil
}

// Window parses the job's start and end. An empty end means the start.
func (j *Job) Window() (cycle.Window, error) {
	start, err := ParseTime(j.Start)
	if err != nil {
		return cycle.Window{}, fmt.Errorf("job start: %w", err)
	}
	end := start
	if j.End != "" {
		if end, err = ParseTime(j.End); err != nil {
			return cycle.Window{}, fmt.Errorf("job end: %w", err)
		}
	}
	return cycle.Window{Start: start, End: end}, nil
}

// CycleConfig converts the job into an enumerator config.
func (j *Job) CycleConfig() (cycle.Config, error) {
	w, err := j.Window()
	if err != nil {
		return cycle.Config{}, err
	}
	return cycle.Config{
		Window:        w,
		IntervalHours: j.CycleInterval,
		Forecast:      j.Forecast,
	}, nil
}
