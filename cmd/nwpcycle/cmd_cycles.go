/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cw3e/nwpcycle/internal/config"
	"github.com/cw3e/nwpcycle/internal/cycle"
)

// Window flags, shared by every command that enumerates cycles.
var (
	windowStart    string
	windowEnd      string
	windowInterval int
	fcstMin        int
	fcstMax        int
	fcstStep       int
)

var cyclesRequests bool

var cyclesCmd = &cobra.Command{
	Use:   "cycles",
	Short: "Print the initialization times and forecast hours for a window",
	Long: `Enumerates the cycle plan that the downloaders iterate over: initialization
instants from --start to --end every --interval hours, and forecast hours from
--fcst-min to --fcst-max every --fcst-step hours (inclusive).

Flags override the corresponding fields of --job.

Examples:
  nwpcycle cycles --start 2019-02-08T18:00 --end 2019-02-10T18:00 --interval 6
  nwpcycle cycles --job tigge.yaml --requests`,
	RunE: runCycles,
}

func init() {
	rootCmd.AddCommand(cyclesCmd)
	addWindowFlags(cyclesCmd)
	cyclesCmd.Flags().BoolVar(&cyclesRequests, "requests", false, "List every (init, lead) pair with its valid time")
}

// addWindowFlags registers the cycle window flags on cmd.
func addWindowFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&windowStart, "start", "", "First initialization time (ISO-8601, UTC)")
	cmd.Flags().StringVar(&windowEnd, "end", "", "Last initialization time (defaults to --start)")
	cmd.Flags().IntVar(&windowInterval, "interval", 6, "Hours between initializations; 0 uses only --start")
	cmd.Flags().IntVar(&fcstMin, "fcst-min", 0, "First forecast hour")
	cmd.Flags().IntVar(&fcstMax, "fcst-max", 12, "Last forecast hour")
	cmd.Flags().IntVar(&fcstStep, "fcst-step", 3, "Forecast hour step")
}

// applyWindowFlags copies explicitly set window flags onto job.
func applyWindowFlags(cmd *cobra.Command, job *config.Job) {
	flags := cmd.Flags()
	if flags.Changed("start") {
		job.Start = windowStart
	}
	if flags.Changed("end") {
		job.End = windowEnd
	}
	if flags.Changed("interval") {
		job.CycleInterval = windowInterval
	}
	if flags.Changed("fcst-min") {
		job.Forecast.Min = fcstMin
	}
	if flags.Changed("fcst-max") {
		job.Forecast.Max = fcstMax
	}
	if flags.Changed("fcst-step") {
		job.Forecast.Step = fcstStep
	}
}

// planFor resolves the job and flags into a cycle plan.
func planFor(cmd *cobra.Command) (*config.Job, cycle.Plan, error) {
	job, err := loadJob()
	if err != nil {
		return nil, cycle.Plan{}, err
	}
	applyWindowFlags(cmd, job)
	if job.Start == "" {
		return nil, cycle.Plan{}, fmt.Errorf("a start time is required (--start or start: in --job)")
	}

	cc, err := job.CycleConfig()
	if err != nil {
		return nil, cycle.Plan{}, err
	}
	plan, err := cycle.Enumerate(cc)
	if err != nil {
		return nil, cycle.Plan{}, err
	}
	return job, plan, nil
}

func runCycles(cmd *cobra.Command, args []string) error {
	_, plan, err := planFor(cmd)
	if err != nil {
		return err
	}
	printPlan(cmd.OutOrStdout(), plan, cyclesRequests)
	return nil
}

func printPlan(w io.Writer, plan cycle.Plan, requests bool) {
	if requests {
		for _, r := range plan.Requests() {
			fmt.Fprintf(w, "%s  valid %s\n", r, r.Valid().Format("2006-01-02T15:04Z"))
		}
		return
	}

	fmt.Fprintf(w, "Initializations (%d):\n", len(plan.Inits))
	for _, t := range plan.Inits {
		fmt.Fprintf(w, "  %s\n", t.Format("2006-01-02T15:04Z"))
	}
	fmt.Fprintf(w, "Forecast hours (%d): %s\n", len(plan.Leads), cycle.JoinLeads(plan.Leads, " "))
}
