/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package spinup charts WRF surface pressure and column mass tendencies across
// consecutive forecasts to show model spin-up after each initialization.
package spinup

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/guptarohit/asciigraph"
)

var requiredColumns = []string{"wrf_time", "xtime", "dpsdt", "dmudt"}

// Series is the diagnostic time series of one domain.
type Series struct {
	Times []string
	XTime []float64 // minutes since the forecast's initialization
	DPSDT []float64 // hPa/3hr
	DMUDT []float64 // mb/3hr
}

// Tick marks the first output of a forecast.
type Tick struct {
	Index int
	Label string
}

// Read parses a CSV with wrf_time, xtime, dpsdt and dmudt columns in any order.
func Read(r io.Reader) (*Series, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("missing column %q", c)
		}
	}

	s := &Series{}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		xt, err := strconv.ParseFloat(rec[cols["xtime"]], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: xtime: %w", line, err)
		}
		ps, err := strconv.ParseFloat(rec[cols["dpsdt"]], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: dpsdt: %w", line, err)
		}
		mu, err := strconv.ParseFloat(rec[cols["dmudt"]], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: dmudt: %w", line, err)
		}

		s.Times = append(s.Times, rec[cols["wrf_time"]])
		s.XTime = append(s.XTime, xt)
		s.DPSDT = append(s.DPSDT, ps)
		s.DMUDT = append(s.DMUDT, mu)
	}
	if len(s.Times) == 0 {
		return nil, errors.New("no rows")
	}
	return s, nil
}

// Ticks returns the start of every forecast: the first row and each row where
// xtime drops below its predecessor.
func (s *Series) Ticks() []Tick {
	if len(s.XTime) == 0 {
		return nil
	}
	ticks := []Tick{{Index: 0, Label: hourLabel(s.Times[0])}}
	for i := 1; i < len(s.XTime); i++ {
		if s.XTime[i] < s.XTime[i-1] {
			ticks = append(ticks, Tick{Index: i, Label: hourLabel(s.Times[i])})
		}
	}
	return ticks
}

var timeLayouts = []string{"2006-01-02 15:04:05", "2006-01-02_15:04:05", time.RFC3339, "2006-01-02T15:04:05"}

// hourLabel renders a WRF timestamp as YYYY-MM-DDTHH.
func hourLabel(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02T15")
		}
	}
	date, _, _ := strings.Cut(s, ":")
	return strings.Join(strings.Fields(date), "T")
}

// Options size the chart.
type Options struct {
	Width  int
	Height int
	Color  bool
}

// Render writes one chart per tendency, stacked, followed by the forecast
// start ticks.
func Render(w io.Writer, s *Series, opts Options) error {
	if opts.Width < 20 {
		opts.Width = 100
	}
	if opts.Height < 3 {
		opts.Height = 12
	}

	panels := []struct {
		data    []float64
		caption string
		colour  asciigraph.AnsiColor
	}{
		{s.DPSDT, "dps/dt (hPa/3hr)", asciigraph.DarkOrange},
		{s.DMUDT, "dmu/dt (mb/3hr)", asciigraph.SlateBlue},
	}

	for _, p := range panels {
		chartOpts := []asciigraph.Option{
			asciigraph.Height(opts.Height),
			asciigraph.Width(opts.Width),
			asciigraph.Caption(p.caption),
		}
		if opts.Color {
			chartOpts = append(chartOpts, asciigraph.SeriesColors(p.colour))
		}
		if _, err := fmt.Fprintln(w, asciigraph.Plot(p.data, chartOpts...)); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintln(w, "forecast starts:"); err != nil {
		return err
	}
	for _, t := range s.Ticks() {
		if _, err := fmt.Fprintf(w, "  %6d  %s\n", t.Index, t.Label); err != nil {
			return err
		}
	}
	return nil
}
