/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rocoto

import (
	"bufio"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cw3e/nwpcycle/internal/telemetry"
)

// StateNotSubmitted labels rows that rocotostat prints with a "-" state.
const StateNotSubmitted = "NOT_SUBMITTED"

// Task is one row of a rocotostat table.
type Task struct {
	Cycle    string
	Name     string
	JobID    string
	State    string
	Exit     string
	Tries    int
	Duration float64
}

// Status is a parsed rocotostat table.
type Status struct {
	Tasks  []Task
	Counts map[string]int
}

// States returns the observed states in lexical order.
func (s Status) States() []string {
	states := make([]string, 0, len(s.Counts))
	for k := range s.Counts {
		states = append(states, k)
	}
	sort.Strings(states)
	return states
}

// ParseStatus reads rocotostat -c all output. Header and rule lines are
// skipped, as are rows too short to hold a cycle, task, job id and state.
func ParseStatus(r io.Reader) Status {
	st := Status{Counts: make(map[string]int)}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "CYCLE") || strings.HasPrefix(line, "=") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}

		t := Task{
			Cycle: fields[0],
			Name:  fields[1],
			JobID: fields[2],
			State: fields[3],
		}
		if t.State == "-" {
			t.State = StateNotSubmitted
		}
		if len(fields) > 4 {
			t.Exit = fields[4]
		}
		if len(fields) > 5 {
			t.Tries, _ = strconv.Atoi(fields[5])
		}
		if len(fields) > 6 {
			t.Duration, _ = strconv.ParseFloat(fields[6], 64)
		}

		st.Tasks = append(st.Tasks, t)
		st.Counts[t.State]++
	}
	return st
}

// Export replaces the workflow's task gauges with the counts in s.
func (s Status) Export(workflow string) {
	telemetry.RocotoTasks.DeletePartialMatch(prometheus.Labels{"workflow": workflow})
	for state, n := range s.Counts {
		telemetry.RocotoTasks.WithLabelValues(workflow, state).Set(float64(n))
	}
}
