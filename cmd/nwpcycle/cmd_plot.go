/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cw3e/nwpcycle/internal/spinup"
	"github.com/cw3e/nwpcycle/internal/verify"
)

// Plot flags
var (
	plotInput  string
	plotOutput string
	plotMask   string
	plotStats  []string
	plotXLSX   string
	plotTitle  string
	plotWidth  int
	plotHeight int
	plotColor  bool
)

var plotCmd = &cobra.Command{
	Use:   "plot",
	Short: "Render verification and spin-up diagnostics",
}

var plotHeatmapCmd = &cobra.Command{
	Use:   "heatmap",
	Short: "Render a two-panel threshold × lead heatmap from an MET CTS table",
	Long: `Reads a whitespace separated contingency table statistics file and draws one
panel per statistic, thresholds on the y axis and lead times on the x axis,
for the rows of the given verification mask.

Examples:
  nwpcycle plot heatmap --input cts.txt --mask CA_All --pdf heatmap.pdf
  nwpcycle plot heatmap --input cts.txt --mask CA_All --stats FBIAS,ETS --xlsx heatmap.xlsx`,
	RunE: runPlotHeatmap,
}

var plotSpinupCmd = &cobra.Command{
	Use:   "spinup",
	Short: "Plot surface pressure and column mass tendencies over forecast time",
	Long: `Reads the spin-up diagnostics CSV (times, xtime, dpsdt, dmudt) and draws
both tendency series as terminal line charts, marking each forecast start.`,
	RunE: runPlotSpinup,
}

func init() {
	rootCmd.AddCommand(plotCmd)
	plotCmd.AddCommand(plotHeatmapCmd, plotSpinupCmd)

	plotCmd.PersistentFlags().StringVar(&plotInput, "input", "", "Input table (required)")

	plotHeatmapCmd.Flags().StringVar(&plotMask, "mask", "", "Verification mask (VX_MASK) to plot (required)")
	plotHeatmapCmd.Flags().StringSliceVar(&plotStats, "stats", []string{"CSI", "GSS"}, "Two statistics to plot, left then right")
	plotHeatmapCmd.Flags().StringVar(&plotOutput, "pdf", "", "Write the heatmap as PDF")
	plotHeatmapCmd.Flags().StringVar(&plotXLSX, "xlsx", "", "Write the heatmap as an XLSX workbook")
	plotHeatmapCmd.Flags().StringVar(&plotTitle, "title", "", "Figure title")
	_ = plotHeatmapCmd.MarkFlagRequired("mask")

	plotSpinupCmd.Flags().StringVar(&plotOutput, "out", "", "Write the chart to a file instead of stdout")
	plotSpinupCmd.Flags().IntVar(&plotWidth, "width", 80, "Chart width in columns")
	plotSpinupCmd.Flags().IntVar(&plotHeight, "height", 12, "Chart height per panel in rows")
	plotSpinupCmd.Flags().BoolVar(&plotColor, "color", false, "Colour the series with ANSI escapes")
}

func runPlotHeatmap(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if plotInput == "" {
		return errors.New("--input is required")
	}
	if len(plotStats) != 2 {
		return fmt.Errorf("--stats needs exactly two statistics, got %d", len(plotStats))
	}
	if plotOutput == "" && plotXLSX == "" {
		return errors.New("set --pdf, --xlsx or both")
	}

	f, err := os.Open(plotInput)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	table, err := verify.ReadTable(f)
	if err != nil {
		return err
	}
	stats := [2]string{strings.ToUpper(plotStats[0]), strings.ToUpper(plotStats[1])}
	h, err := verify.Build(table, plotMask, stats)
	if err != nil {
		return err
	}
	labels := verify.Labels{Title: plotTitle}

	if plotOutput != "" {
		if err := writeFile(plotOutput, func(w io.Writer) error { return verify.WritePDF(w, h, labels) }); err != nil {
			return err
		}
		logger.Info().Str("path", plotOutput).Str("mask", plotMask).Msg("heatmap pdf written")
	}
	if plotXLSX != "" {
		if err := writeFile(plotXLSX, func(w io.Writer) error { return verify.WriteXLSX(w, h, labels) }); err != nil {
			return err
		}
		logger.Info().Str("path", plotXLSX).Str("mask", plotMask).Msg("heatmap workbook written")
	}
	return nil
}

func runPlotSpinup(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if plotInput == "" {
		return errors.New("--input is required")
	}

	f, err := os.Open(plotInput)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	series, err := spinup.Read(f)
	if err != nil {
		return err
	}
	opts := spinup.Options{Width: plotWidth, Height: plotHeight, Color: plotColor}

	if plotOutput == "" {
		return spinup.Render(cmd.OutOrStdout(), series, opts)
	}
	return writeFile(plotOutput, func(w io.Writer) error { return spinup.Render(w, series, opts) })
}

// writeFile creates path and hands it to write, closing it afterwards.
func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
