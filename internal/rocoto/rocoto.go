/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package rocoto drives the Rocoto workflow manager for cycling experiments,
// natively or from a Singularity image.
package rocoto

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cw3e/nwpcycle/internal/telemetry"
)

// Tool names.
const (
	ToolRun    = "rocotorun"
	ToolStat   = "rocotostat"
	ToolBoot   = "rocotoboot"
	ToolRewind = "rocotorewind"
)

const (
	containerSettings = "/settings"
	containerDBs      = "/dbs"
	containerBin      = "/opt/rocoto-develop/bin"
)

// Workflow is one control flow of one case study.
type Workflow struct {
	Case string
	Flow string
}

// Name is the stem shared by the workflow's database and status files.
func (w Workflow) Name() string {
	return w.Case + "-" + w.Flow
}

// Workflows returns every case × flow pair, cases outermost.
func Workflows(cases, flows []string) []Workflow {
	out := make([]Workflow, 0, len(cases)*len(flows))
	for _, c := range cases {
		for _, f := range flows {
			out = append(out, Workflow{Case: c, Flow: f})
		}
	}
	return out
}

// Layout locates control flows and databases on the host.
type Layout struct {
	Settings string
	DBs      string
}

// NewLayout uses the template clone's simulation_settings and workflow_status directories.
func NewLayout(workflowHome string) Layout {
	return Layout{
		Settings: filepath.Join(workflowHome, "simulation_settings"),
		DBs:      filepath.Join(workflowHome, "workflow_status"),
	}
}

// StatusFile is where rocotostat output for w is kept.
func (l Layout) StatusFile(w Workflow) string {
	return filepath.Join(l.DBs, w.Name()+"_workflow_status.txt")
}

// Runner executes a command, writing its standard output to stdout.
type Runner interface {
	Run(ctx context.Context, name string, args []string, stdout io.Writer) error
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run starts name with args and waits for it. Standard error is folded into
// the returned error.
func (ExecRunner) Run(ctx context.Context, name string, args []string, stdout io.Writer) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("%s: %w", filepath.Base(name), err)
		}
		return fmt.Errorf("%s: %w: %s", filepath.Base(name), err, msg)
	}
	return nil
}

// Options selects how Rocoto is invoked. A non-empty Image runs the tools in
// Singularity; otherwise Home/bin holds the native tools.
type Options struct {
	Layout Layout
	Home   string
	Image  string
	Binds  []string // extra singularity binds, src:dst[:mode]
}

// Client wraps the Rocoto command line tools.
type Client struct {
	opts   Options
	runner Runner
	logger zerolog.Logger
}

// New creates a client. runner may be nil for os/exec.
func New(opts Options, runner Runner, logger zerolog.Logger) (*Client, error) {
	if opts.Layout.Settings == "" || opts.Layout.DBs == "" {
		return nil, errors.New("rocoto: workflow home is not configured")
	}
	if opts.Image == "" && opts.Home == "" {
		return nil, errors.New("rocoto: set a rocoto home or a singularity image")
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Client{
		opts:   opts,
		runner: runner,
		logger: logger.With().Str("component", "rocoto").Logger(),
	}, nil
}

// Command builds the program and arguments for tool acting on w.
func (c *Client) Command(tool string, w Workflow, extra ...string) (string, []string) {
	settings, dbs := c.opts.Layout.Settings, c.opts.Layout.DBs
	if c.opts.Image != "" {
		settings, dbs = containerSettings, containerDBs
	}

	wfArgs := []string{
		"-w", filepath.Join(settings, w.Case, w.Flow, "ctr_flw.xml"),
		"-d", filepath.Join(dbs, w.Name()+".store"),
	}
	wfArgs = append(wfArgs, extra...)

	if c.opts.Image == "" {
		return filepath.Join(c.opts.Home, "bin", tool), wfArgs
	}

	args := []string{"exec", "-B", strings.Join(c.binds(), ","), c.opts.Image, containerBin + "/" + tool}
	return "singularity", append(args, wfArgs...)
}

func (c *Client) binds() []string {
	binds := append([]string(nil), c.opts.Binds...)
	return append(binds,
		c.opts.Layout.Settings+":"+containerSettings+":ro",
		c.opts.Layout.DBs+":"+containerDBs+":rw",
	)
}

func (c *Client) invoke(ctx context.Context, tool string, w Workflow, stdout io.Writer, extra ...string) error {
	name, args := c.Command(tool, w, extra...)
	c.logger.Info().Str("workflow", w.Name()).Str("cmd", name).Strs("args", args).Msg(tool)

	if stdout == nil {
		stdout = io.Discard
	}
	err := c.runner.Run(ctx, name, args, stdout)

	result := telemetry.ResultOK
	if err != nil {
		result = telemetry.ResultFailed
		c.logger.Error().Err(err).Str("workflow", w.Name()).Msg(tool + " failed")
	}
	telemetry.RocotoInvocationsTotal.WithLabelValues(tool, result).Inc()
	return err
}

// Run advances every workflow once and refreshes their status files.
func (c *Client) Run(ctx context.Context, wfs []Workflow) error {
	var errs []error
	for _, w := range wfs {
		if err := c.invoke(ctx, ToolRun, w, nil, "-v", "10"); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := c.Stat(ctx, wfs); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Stat writes the full rocotostat table of each workflow to its status file
// and returns the parsed tables keyed by workflow name.
func (c *Client) Stat(ctx context.Context, wfs []Workflow) (map[string]Status, error) {
	if err := os.MkdirAll(c.opts.Layout.DBs, 0o755); err != nil {
		return nil, fmt.Errorf("create status directory: %w", err)
	}

	out := make(map[string]Status, len(wfs))
	var errs []error
	for _, w := range wfs {
		var buf bytes.Buffer
		runErr := c.invoke(ctx, ToolStat, w, &buf, "-c", "all")

		if err := os.WriteFile(c.opts.Layout.StatusFile(w), buf.Bytes(), 0o644); err != nil {
			errs = append(errs, fmt.Errorf("write status for %s: %w", w.Name(), err))
		}
		if runErr != nil {
			errs = append(errs, runErr)
			continue
		}

		st := ParseStatus(&buf)
		st.Export(w.Name())
		out[w.Name()] = st
	}
	return out, errors.Join(errs...)
}

// Boot forces every cycle × task of each workflow to submit, then refreshes status.
func (c *Client) Boot(ctx context.Context, wfs []Workflow, cycles, tasks []string) error {
	return c.each(ctx, ToolBoot, wfs, cycles, tasks)
}

// Rewind resets every cycle × task of each workflow, then refreshes status.
func (c *Client) Rewind(ctx context.Context, wfs []Workflow, cycles, tasks []string) error {
	return c.each(ctx, ToolRewind, wfs, cycles, tasks)
}

func (c *Client) each(ctx context.Context, tool string, wfs []Workflow, cycles, tasks []string) error {
	if len(cycles) == 0 || len(tasks) == 0 {
		return fmt.Errorf("%s needs at least one cycle and one task", tool)
	}

	var errs []error
	for _, w := range wfs {
		for _, cyc := range cycles {
			for _, task := range tasks {
				if err := c.invoke(ctx, tool, w, nil, "-c", cyc, "-t", task); err != nil {
					errs = append(errs, err)
				}
			}
		}
	}
	if _, err := c.Stat(ctx, wfs); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Monitor calls Run every interval until the wall clock reaches until or ctx
// is cancelled. Failed passes are logged and do not stop the loop.
func (c *Client) Monitor(ctx context.Context, wfs []Workflow, until time.Time, every time.Duration) error {
	if every <= 0 {
		every = time.Minute
	}

	for time.Now().Before(until) {
		if err := c.Run(ctx, wfs); err != nil {
			c.logger.Warn().Err(err).Msg("monitor pass had errors")
		}

		t := time.NewTimer(every)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}

	c.logger.Info().Time("until", until).Msg("monitor window elapsed")
	return nil
}
