/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cycle enumerates forecast initialization times and forecast-hour
// offsets for cycling download and workflow jobs.
package cycle

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidWindow is returned when the window ends before it starts.
	ErrInvalidWindow = errors.New("invalid time window")

	// ErrInvalidForecastWindow is returned when the forecast-hour window is empty
	// or has a non-positive step.
	ErrInvalidForecastWindow = errors.New("invalid forecast window")

	// ErrTooManyLeads is returned when a forecast window holds more than
	// MaxLeads forecast hours.
	ErrTooManyLeads = errors.New("too many forecast hours")

	// ErrInvalidInterval is returned for a negative cycle interval.
	ErrInvalidInterval = errors.New("invalid cycle interval")
)

// Window is an inclusive pair of instants at hourly resolution.
type Window struct {
	Start time.Time
	End   time.Time
}

// Hours returns the whole number of hours spanned by the window.
func (w Window) Hours() int {
	return int(w.End.Sub(w.Start) / time.Hour)
}

// ForecastWindow describes forecast-hour offsets as min, max and step, in hours.
type ForecastWindow struct {
	Min  int `yaml:"min"`
	Max  int `yaml:"max"`
	Step int `yaml:"step"`
}

// Validate checks Min <= Max and Step > 0.
func (f ForecastWindow) Validate() error {
	if f.Step <= 0 {
		return fmt.Errorf("%w: step %d must be positive", ErrInvalidForecastWindow, f.Step)
	}
	if f.Max < f.Min {
		return fmt.Errorf("%w: max %d is below min %d", ErrInvalidForecastWindow, f.Max, f.Min)
	}
	return nil
}

// MaxLeads bounds the number of forecast hours one window may produce.
const MaxLeads = 1 << 20

// count returns the number of forecast hours in a validated window. The span
// is taken as unsigned so windows crossing the whole int range do not wrap.
func (f ForecastWindow) count() (int, error) {
	steps := (uint(f.Max) - uint(f.Min)) / uint(f.Step)
	if steps >= MaxLeads {
		return 0, fmt.Errorf("%w: %d..%d every %d exceeds %d", ErrTooManyLeads, f.Min, f.Max, f.Step, MaxLeads)
	}
	return int(steps) + 1, nil
}

// Leads returns Min, Min+Step, ... up to and including Max, never beyond it.
func (f ForecastWindow) Leads() ([]int, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	n, err := f.count()
	if err != nil {
		return nil, err
	}
	leads := make([]int, n)
	for i := range leads {
		leads[i] = f.Min + i*f.Step
	}
	return leads, nil
}

// Config is everything Enumerate needs. Callers build it explicitly; nothing is
// read from process state.
type Config struct {
	Window        Window
	IntervalHours int
	Forecast      ForecastWindow
}

// Validate reports the first invalid field of the config.
func (c Config) Validate() error {
	if c.Window.End.Before(c.Window.Start) {
		return fmt.Errorf("%w: end %s is before start %s", ErrInvalidWindow,
			c.Window.End.Format(time.RFC3339), c.Window.Start.Format(time.RFC3339))
	}
	if c.IntervalHours < 0 {
		return fmt.Errorf("%w: %d hours", ErrInvalidInterval, c.IntervalHours)
	}
	return c.Forecast.Validate()
}

// Plan holds the ordered initialization instants and forecast-hour offsets
// produced for one config.
type Plan struct {
	Inits []time.Time
	Leads []int
}

// Enumerate builds the plan for cfg.
//
// With a zero interval, or a window whose start equals its end, the only
// initialization instant is the start. Otherwise instants are spaced
// IntervalHours apart from the start and the last one never passes the end.
func Enumerate(cfg Config) (Plan, error) {
	if err := cfg.Validate(); err != nil {
		return Plan{}, err
	}

	var inits []time.Time
	if cfg.IntervalHours == 0 || cfg.Window.End.Equal(cfg.Window.Start) {
		inits = []time.Time{cfg.Window.Start}
	} else {
		steps := cfg.Window.Hours() / cfg.IntervalHours
		inits = make([]time.Time, 0, steps+1)
		for k := 0; k <= steps; k++ {
			inits = append(inits, cfg.Window.Start.Add(time.Duration(k*cfg.IntervalHours)*time.Hour))
		}
	}

	leads, err := cfg.Forecast.Leads()
	if err != nil {
		return Plan{}, err
	}

	return Plan{Inits: inits, Leads: leads}, nil
}

// Request is one (initialization instant, forecast hour) pair.
type Request struct {
	Init time.Time
	Lead int
}

// Valid returns the instant the forecast hour verifies at.
func (r Request) Valid() time.Time {
	return r.Init.Add(time.Duration(r.Lead) * time.Hour)
}

func (r Request) String() string {
	return fmt.Sprintf("%s+f%s", r.Init.Format("2006010215"), PadLead(r.Lead, 3))
}

// Requests returns the full cross product of the plan, ordered by init and then
// by lead.
func (p Plan) Requests() []Request {
	out := make([]Request, 0, len(p.Inits)*len(p.Leads))
	for _, init := range p.Inits {
		for _, lead := range p.Leads {
			out = append(out, Request{Init: init, Lead: lead})
		}
	}
	return out
}

// MaxLead returns the last forecast hour of the plan, or 0 when there are none.
func (p Plan) MaxLead() int {
	if len(p.Leads) == 0 {
		return 0
	}
	return p.Leads[len(p.Leads)-1]
}

// PadLead zero-pads a forecast hour to width digits.
func PadLead(lead, width int) string {
	if lead < 0 {
		return "-" + PadLead(-lead, width-1)
	}
	s := strconv.Itoa(lead)
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

// JoinLeads renders leads separated by sep, e.g. "0/6/12".
func JoinLeads(leads []int, sep string) string {
	parts := make([]string, len(leads))
	for i, l := range leads {
		parts[i] = strconv.Itoa(l)
	}
	return strings.Join(parts, sep)
}
