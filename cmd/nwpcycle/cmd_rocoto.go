/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cw3e/nwpcycle/internal/config"
	"github.com/cw3e/nwpcycle/internal/rocoto"
)

// Rocoto flags
var (
	rocotoCases  []string
	rocotoFlows  []string
	rocotoCycles []string
	rocotoTasks  []string
	rocotoUntil  string
	rocotoEvery  time.Duration
)

var rocotoCmd = &cobra.Command{
	Use:   "rocoto",
	Short: "Drive Rocoto workflows for case studies and control flows",
	Long: `Wraps rocotorun, rocotostat, rocotoboot and rocotorewind for every
case × control flow pair. Workflow definitions are read from
$NWPCYCLE_WORKFLOW_HOME/simulation_settings and databases and status tables
are kept in $NWPCYCLE_WORKFLOW_HOME/workflow_status.

Rocoto runs natively from NWPCYCLE_ROCOTO_HOME, or inside the Singularity
image named by NWPCYCLE_ROCOTO_IMAGE.

Examples:
  nwpcycle rocoto run --case DeepDive --flow 2022122800_valid_date_wrf_ensemble
  nwpcycle rocoto rewind --job deepdive.yaml --cycle 202212271800 --task wrf_ens_00
  nwpcycle rocoto monitor --job deepdive.yaml --until 2023-01-02T00:00 --every 5m`,
}

var rocotoRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Advance each workflow once and refresh its status table",
	RunE:  runRocoto(rocotoActionRun),
}

var rocotoStatCmd = &cobra.Command{
	Use:   "stat",
	Short: "Refresh and summarize each workflow's status table",
	RunE:  runRocoto(rocotoActionStat),
}

var rocotoBootCmd = &cobra.Command{
	Use:   "boot",
	Short: "Force submission of the given cycles and tasks",
	RunE:  runRocoto(rocotoActionBoot),
}

var rocotoRewindCmd = &cobra.Command{
	Use:   "rewind",
	Short: "Rewind the given cycles and tasks so they run again",
	RunE:  runRocoto(rocotoActionRewind),
}

var rocotoMonitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Advance the workflows on a fixed interval until a deadline",
	RunE:  runRocoto(rocotoActionMonitor),
}

type rocotoAction int

const (
	rocotoActionRun rocotoAction = iota
	rocotoActionStat
	rocotoActionBoot
	rocotoActionRewind
	rocotoActionMonitor
)

func init() {
	rootCmd.AddCommand(rocotoCmd)
	rocotoCmd.AddCommand(rocotoRunCmd, rocotoStatCmd, rocotoBootCmd, rocotoRewindCmd, rocotoMonitorCmd)

	rocotoCmd.PersistentFlags().StringSliceVar(&rocotoCases, "case", nil, "Case study names (repeatable)")
	rocotoCmd.PersistentFlags().StringSliceVar(&rocotoFlows, "flow", nil, "Control flow names (repeatable)")

	for _, c := range []*cobra.Command{rocotoBootCmd, rocotoRewindCmd} {
		c.Flags().StringSliceVar(&rocotoCycles, "cycle", nil, "Cycles as YYYYMMDDHHMM (repeatable)")
		c.Flags().StringSliceVar(&rocotoTasks, "task", nil, "Task names (repeatable)")
	}

	rocotoMonitorCmd.Flags().StringVar(&rocotoUntil, "until", "", "Stop once the wall clock passes this time (ISO-8601, UTC)")
	rocotoMonitorCmd.Flags().DurationVar(&rocotoEvery, "every", 0, "Interval between passes (default from job, then 1m)")
}

// rocotoJob merges the flags over the job's rocoto section.
func rocotoJob(cmd *cobra.Command) (config.RocotoJob, error) {
	job, err := loadJob()
	if err != nil {
		return config.RocotoJob{}, err
	}
	rj := job.Rocoto

	flags := cmd.Flags()
	if flags.Changed("case") {
		rj.Cases = rocotoCases
	}
	if flags.Changed("flow") {
		rj.Flows = rocotoFlows
	}
	if flags.Changed("cycle") {
		rj.Cycles = rocotoCycles
	}
	if flags.Changed("task") {
		rj.Tasks = rocotoTasks
	}
	if flags.Changed("until") {
		rj.Until = rocotoUntil
	}
	if flags.Changed("every") {
		rj.Every = rocotoEvery
	}

	if len(rj.Cases) == 0 || len(rj.Flows) == 0 {
		return rj, errors.New("at least one --case and one --flow are required")
	}
	return rj, nil
}

func runRocoto(action rocotoAction) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		rj, err := rocotoJob(cmd)
		if err != nil {
			return err
		}

		ctx, stop, err := startRuntime()
		if err != nil {
			return err
		}
		defer stop()

		if cfg.WorkflowHome == "" {
			return errors.New("NWPCYCLE_WORKFLOW_HOME is not set")
		}
		client, err := rocoto.New(rocoto.Options{
			Layout: rocoto.NewLayout(cfg.WorkflowHome),
			Home:   cfg.RocotoHome,
			Image:  cfg.RocotoImage,
			Binds:  cfg.RocotoBinds,
		}, nil, logger)
		if err != nil {
			return err
		}

		wfs := rocoto.Workflows(rj.Cases, rj.Flows)

		switch action {
		case rocotoActionRun:
			return client.Run(ctx, wfs)
		case rocotoActionStat:
			statuses, err := client.Stat(ctx, wfs)
			printStatuses(cmd, wfs, statuses)
			return err
		case rocotoActionBoot:
			return client.Boot(ctx, wfs, rj.Cycles, rj.Tasks)
		case rocotoActionRewind:
			return client.Rewind(ctx, wfs, rj.Cycles, rj.Tasks)
		case rocotoActionMonitor:
			if rj.Until == "" {
				return errors.New("--until is required")
			}
			until, err := config.ParseTime(rj.Until)
			if err != nil {
				return err
			}
			return client.Monitor(ctx, wfs, until, rj.Every)
		}
		return fmt.Errorf("unknown rocoto action %d", action)
	}
}

func printStatuses(cmd *cobra.Command, wfs []rocoto.Workflow, statuses map[string]rocoto.Status) {
	out := cmd.OutOrStdout()
	names := make([]string, 0, len(wfs))
	for _, w := range wfs {
		names = append(names, w.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		st, ok := statuses[name]
		if !ok {
			fmt.Fprintf(out, "%s: no status\n", name)
			continue
		}
		parts := make([]string, 0, len(st.Counts))
		for _, state := range st.States() {
			parts = append(parts, fmt.Sprintf("%s=%d", state, st.Counts[state]))
		}
		fmt.Fprintf(out, "%s: %d tasks (%s)\n", name, len(st.Tasks), strings.Join(parts, ", "))
	}
}
