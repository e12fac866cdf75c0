/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package verify

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ErrNoRows is returned when no row matches the verification mask.
var ErrNoRows = errors.New("no rows for mask")

// Heatmap holds two statistics on a shared thresholds × leads grid.
// Values[k][i][j] is Stats[k] at Thresholds[i] and Leads[j]; cells without
// data are NaN.
type Heatmap struct {
	Mask       string
	Stats      [2]string
	Thresholds []string
	Leads      []string
	Values     [2][][]float64
	Min, Max   float64
}

// Scale returns the colour range for a pair of statistics. Gilbert skill
// scores are bounded below by -1/3; everything else plotted here lies in [0, 1].
func Scale(stats [2]string) (float64, float64) {
	for _, s := range stats {
		switch strings.ToUpper(s) {
		case "GSS", "BAGSS":
			return -1.0 / 3.0, 1
		}
	}
	return 0, 1
}

// LeadLabel drops the trailing MMSS of an [H]HHMMSS lead, leaving its hours.
func LeadLabel(lead string) string {
	if len(lead) >= 6 {
		return lead[:len(lead)-4]
	}
	return lead
}

// Build filters t to mask and arranges stats by threshold (ascending) and
// lead (descending).
func Build(t *Table, mask string, stats [2]string) (*Heatmap, error) {
	maskCol, err := t.Column("VX_MASK")
	if err != nil {
		return nil, err
	}
	leadCol, err := t.Column("FCST_LEAD")
	if err != nil {
		return nil, err
	}
	threshCol, err := t.Column("FCST_THRESH")
	if err != nil {
		return nil, err
	}
	var statCols [2]int
	for k, s := range stats {
		if statCols[k], err = t.Column(s); err != nil {
			return nil, err
		}
	}

	var rows [][]string
	threshSet := map[string]bool{}
	leadSet := map[string]bool{}
	for _, row := range t.Rows {
		if row[maskCol] != mask {
			continue
		}
		rows = append(rows, row)
		threshSet[row[threshCol]] = true
		leadSet[row[leadCol]] = true
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w %q", ErrNoRows, mask)
	}

	h := &Heatmap{
		Mask:       mask,
		Stats:      stats,
		Thresholds: sortedKeys(threshSet, thresholdLess),
		Leads:      sortedKeys(leadSet, func(a, b string) bool { return leadLess(b, a) }),
	}
	h.Min, h.Max = Scale(stats)

	ti := indexOf(h.Thresholds)
	li := indexOf(h.Leads)
	for k := range stats {
		grid := make([][]float64, len(h.Thresholds))
		for i := range grid {
			grid[i] = make([]float64, len(h.Leads))
			for j := range grid[i] {
				grid[i][j] = math.NaN()
			}
		}
		for _, row := range rows {
			v, err := strconv.ParseFloat(row[statCols[k]], 64)
			if err != nil {
				continue
			}
			grid[ti[row[threshCol]]][li[row[leadCol]]] = v
		}
		h.Values[k] = grid
	}
	return h, nil
}

// Norm maps v onto [0, 1] within the heatmap's scale.
func (h *Heatmap) Norm(v float64) float64 {
	if h.Max == h.Min {
		return 0
	}
	n := (v - h.Min) / (h.Max - h.Min)
	return math.Max(0, math.Min(1, n))
}

func sortedKeys(set map[string]bool, less func(a, b string) bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func indexOf(keys []string) map[string]int {
	m := make(map[string]int, len(keys))
	for i, k := range keys {
		m[k] = i
	}
	return m
}

// thresholdLess orders MET thresholds such as ">=0.254" or "gt10.0" by value.
func thresholdLess(a, b string) bool {
	va, oka := thresholdValue(a)
	vb, okb := thresholdValue(b)
	if oka && okb && va != vb {
		return va < vb
	}
	return a < b
}

func thresholdValue(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimLeft(s, "<>=!gtlenq"), 64)
	return v, err == nil
}

// leadLess orders HHMMSS leads numerically so 1200000 follows 240000.
func leadLess(a, b string) bool {
	va, erra := strconv.Atoi(a)
	vb, errb := strconv.Atoi(b)
	if erra == nil && errb == nil {
		return va < vb
	}
	return a < b
}
