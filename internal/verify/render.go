/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package verify

import (
	"fmt"
	"io"
	"math"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
)

// Labels annotate a rendered heatmap.
type Labels struct {
	Title  string
	XLabel string
	YLabel string
}

func (l Labels) withDefaults(h *Heatmap) Labels {
	if l.Title == "" {
		l.Title = fmt.Sprintf("%s / %s", h.Stats[0], h.Stats[1])
	}
	if l.XLabel == "" {
		l.XLabel = "Forecast lead hrs"
	}
	if l.YLabel == "" {
		l.YLabel = "Threshold"
	}
	return l
}

// Colour returns the cubehelix colour for a normalized value, darkest at 1.
func Colour(n float64) (r, g, b int) {
	const (
		start = 0.75
		rot   = 1.5
		hue   = 0.8
		dark  = 0.25
		light = 0.85
	)
	x := light - (light-dark)*math.Max(0, math.Min(1, n))
	angle := 2 * math.Pi * (start/3 + 1 + rot*x)
	amp := hue * x * (1 - x) / 2
	cos, sin := math.Cos(angle), math.Sin(angle)

	channel := func(v float64) int {
		return int(math.Round(255 * math.Max(0, math.Min(1, v))))
	}
	return channel(x + amp*(-0.14861*cos+1.78277*sin)),
		channel(x + amp*(-0.29227*cos-0.90649*sin)),
		channel(x + amp*(1.97294*cos))
}

// WritePDF renders both statistics side by side with a shared colour bar.
func WritePDF(w io.Writer, h *Heatmap, labels Labels) error {
	labels = labels.withDefaults(h)

	const (
		pageW, pageH = 297.0, 210.0
		left         = 28.0
		top          = 38.0
		gap          = 6.0
		barW         = 8.0
		barGap       = 10.0
		plotH        = 135.0
	)
	panelW := (pageW - left - gap - barGap - barW - 22) / 2
	cellW := panelW / float64(len(h.Leads))
	cellH := plotH / float64(len(h.Thresholds))

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.SetXY(0, 10)
	pdf.CellFormat(pageW, 7, labels.Title, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 12)
	pdf.CellFormat(pageW, 7, "Verification region: "+h.Mask, "", 1, "C", false, 0, "")

	for k := range h.Stats {
		x0 := left + float64(k)*(panelW+gap)

		pdf.SetFont("Arial", "B", 11)
		pdf.SetXY(x0, top-7)
		pdf.CellFormat(panelW, 6, h.Stats[k], "", 0, "C", false, 0, "")

		pdf.SetFont("Arial", "", 7)
		for i := range h.Thresholds {
			for j := range h.Leads {
				x, y := x0+float64(j)*cellW, top+float64(i)*cellH
				v := h.Values[k][i][j]
				if math.IsNaN(v) {
					pdf.SetFillColor(235, 235, 235)
				} else {
					pdf.SetFillColor(Colour(h.Norm(v)))
				}
				pdf.SetDrawColor(255, 255, 255)
				pdf.Rect(x, y, cellW, cellH, "FD")

				if math.IsNaN(v) {
					continue
				}
				if h.Norm(v) > 0.5 {
					pdf.SetTextColor(255, 255, 255)
				} else {
					pdf.SetTextColor(0, 0, 0)
				}
				pdf.SetXY(x, y)
				pdf.CellFormat(cellW, cellH, fmt.Sprintf("%.2f", v), "", 0, "C", false, 0, "")
			}
		}
		pdf.SetTextColor(0, 0, 0)

		pdf.SetFont("Arial", "", 9)
		for j, lead := range h.Leads {
			pdf.SetXY(x0+float64(j)*cellW, top+plotH+1)
			pdf.CellFormat(cellW, 5, LeadLabel(lead), "", 0, "C", false, 0, "")
		}
		if k == 0 {
			for i, th := range h.Thresholds {
				pdf.SetXY(left-22, top+float64(i)*cellH)
				pdf.CellFormat(21, cellH, th, "", 0, "R", false, 0, "")
			}
		}
	}

	// colour bar
	barX := left + 2*panelW + gap + barGap
	const steps = 40
	for s := 0; s < steps; s++ {
		n := 1 - (float64(s)+0.5)/steps
		pdf.SetFillColor(Colour(n))
		pdf.Rect(barX, top+float64(s)*plotH/steps, barW, plotH/steps+0.1, "F")
	}
	pdf.SetFont("Arial", "", 9)
	for _, tick := range []float64{0, 0.25, 0.5, 0.75, 1} {
		v := h.Min + tick*(h.Max-h.Min)
		y := top + (1-tick)*plotH
		pdf.SetXY(barX+barW+1, y-2.5)
		pdf.CellFormat(14, 5, fmt.Sprintf("%.2f", v), "", 0, "L", false, 0, "")
	}

	pdf.SetFont("Arial", "", 11)
	pdf.SetXY(left, top+plotH+8)
	pdf.CellFormat(2*panelW+gap, 6, labels.XLabel, "", 0, "C", false, 0, "")
	pdf.TransformBegin()
	pdf.TransformRotate(90, 8, top+plotH/2)
	pdf.Text(8-float64(len(labels.YLabel))*1.1, top+plotH/2, labels.YLabel)
	pdf.TransformEnd()

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return nil
}

// WriteXLSX writes one sheet per statistic with the grid coloured as in the PDF.
func WriteXLSX(w io.Writer, h *Heatmap, labels Labels) error {
	labels = labels.withDefaults(h)

	f := excelize.NewFile()
	defer f.Close()

	styles := map[[3]int]int{}
	styleFor := func(n float64) (int, error) {
		r, g, b := Colour(n)
		key := [3]int{r, g, b}
		if id, ok := styles[key]; ok {
			return id, nil
		}
		font := "000000"
		if n > 0.5 {
			font = "FFFFFF"
		}
		id, err := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{fmt.Sprintf("%02X%02X%02X", r, g, b)}},
			Font:      &excelize.Font{Color: font},
			NumFmt:    2,
			Alignment: &excelize.Alignment{Horizontal: "center"},
		})
		if err != nil {
			return 0, err
		}
		styles[key] = id
		return id, nil
	}

	for k, stat := range h.Stats {
		sheet := stat
		if k == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return err
			}
		} else if stat == h.Stats[0] {
			sheet = stat + "_2"
			if _, err := f.NewSheet(sheet); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return err
		}

		if err := f.SetCellValue(sheet, "A1", labels.Title); err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, "A2", "Verification region"); err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, "B2", h.Mask); err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, "A4", labels.YLabel+" \\ "+labels.XLabel); err != nil {
			return err
		}

		for j, lead := range h.Leads {
			cell, err := excelize.CoordinatesToCellName(j+2, 4)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, LeadLabel(lead)); err != nil {
				return err
			}
		}
		for i, th := range h.Thresholds {
			row := i + 5
			cell, err := excelize.CoordinatesToCellName(1, row)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, th); err != nil {
				return err
			}

			for j := range h.Leads {
				v := h.Values[k][i][j]
				cell, err := excelize.CoordinatesToCellName(j+2, row)
				if err != nil {
					return err
				}
				if math.IsNaN(v) {
					if err := f.SetCellValue(sheet, cell, "NA"); err != nil {
						return err
					}
					continue
				}
				if err := f.SetCellValue(sheet, cell, v); err != nil {
					return err
				}
				id, err := styleFor(h.Norm(v))
				if err != nil {
					return fmt.Errorf("cell style: %w", err)
				}
				if err := f.SetCellStyle(sheet, cell, cell, id); err != nil {
					return err
				}
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}
