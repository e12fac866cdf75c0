package rocoto

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/cw3e/nwpcycle/internal/telemetry"
)

const statTable = `       CYCLE                    TASK                       JOBID               STATE         EXIT STATUS     TRIES      DURATION
================================================================================================================================
201902081800              ungrib_ens_00                      3181512           SUCCEEDED                   0         1          42.0
201902081800              ungrib_ens_01                      3181513             RUNNING                   -         1           0.0
201902081800                    real                              -                   -                   -         -           0.0
`

type call struct {
	name string
	args []string
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []call
	fail  string
}

func (f *fakeRunner) Run(_ context.Context, name string, args []string, stdout io.Writer) error {
	f.mu.Lock()
	f.calls = append(f.calls, call{name: name, args: args})
	f.mu.Unlock()

	joined := strings.Join(args, " ")
	if f.fail != "" && strings.Contains(joined, f.fail) {
		return errors.New("exit status 1")
	}
	if strings.HasSuffix(name, ToolStat) || strings.Contains(joined, ToolStat) {
		_, _ = io.WriteString(stdout, statTable)
	}
	return nil
}

func newClient(t *testing.T, opts Options, r Runner) *Client {
	t.Helper()
	c, err := New(opts, r, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestCommandNative(t *testing.T) {
	layout := NewLayout("/home/wx/Ensemble-DA-Cycling-Template")
	c := newClient(t, Options{Layout: layout, Home: "/opt/rocoto"}, &fakeRunner{})

	name, args := c.Command(ToolRun, Workflow{Case: "DeepDive", Flow: "wrf_ensemble"}, "-v", "10")
	if name != "/opt/rocoto/bin/rocotorun" {
		t.Fatalf("unexpected program %s", name)
	}
	want := "-w /home/wx/Ensemble-DA-Cycling-Template/simulation_settings/DeepDive/wrf_ensemble/ctr_flw.xml " +
		"-d /home/wx/Ensemble-DA-Cycling-Template/workflow_status/DeepDive-wrf_ensemble.store -v 10"
	if got := strings.Join(args, " "); got != want {
		t.Fatalf("unexpected args:\n got %s\nwant %s", got, want)
	}
}

func TestCommandSingularity(t *testing.T) {
	layout := Layout{Settings: "/clone/simulation_settings", DBs: "/clone/workflow_status"}
	c := newClient(t, Options{
		Layout: layout,
		Image:  "/soft/rocoto.sif",
		Binds:  []string{"/expanse:/expanse:rw", "/run/munge:/run/munge:ro"},
	}, &fakeRunner{})

	name, args := c.Command(ToolStat, Workflow{Case: "DeepDive", Flow: "mpas"}, "-c", "all")
	if name != "singularity" {
		t.Fatalf("unexpected program %s", name)
	}
	want := "exec -B /expanse:/expanse:rw,/run/munge:/run/munge:ro,/clone/simulation_settings:/settings:ro,/clone/workflow_status:/dbs:rw " +
		"/soft/rocoto.sif /opt/rocoto-develop/bin/rocotostat -w /settings/DeepDive/mpas/ctr_flw.xml -d /dbs/DeepDive-mpas.store -c all"
	if got := strings.Join(args, " "); got != want {
		t.Fatalf("unexpected args:\n got %s\nwant %s", got, want)
	}
}

func TestRunRefreshesStatusFiles(t *testing.T) {
	dir := t.TempDir()
	layout := Layout{Settings: filepath.Join(dir, "settings"), DBs: filepath.Join(dir, "dbs")}
	r := &fakeRunner{}
	c := newClient(t, Options{Layout: layout, Home: "/opt/rocoto"}, r)

	wfs := Workflows([]string{"DeepDive"}, []string{"a", "b"})
	if err := c.Run(context.Background(), wfs); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(r.calls) != 4 {
		t.Fatalf("expected 2 run + 2 stat calls, got %d", len(r.calls))
	}
	for i, tool := range []string{ToolRun, ToolRun, ToolStat, ToolStat} {
		if filepath.Base(r.calls[i].name) != tool {
			t.Errorf("call %d: expected %s, got %s", i, tool, r.calls[i].name)
		}
	}

	data, err := os.ReadFile(layout.StatusFile(wfs[1]))
	if err != nil {
		t.Fatalf("read status file: %v", err)
	}
	if string(data) != statTable {
		t.Fatalf("status file should hold the raw table")
	}
	if got := testutil.ToFloat64(telemetry.RocotoTasks.WithLabelValues("DeepDive-b", "SUCCEEDED")); got != 1 {
		t.Fatalf("expected gauge 1 for SUCCEEDED, got %v", got)
	}
}

func TestBootCoversEveryCycleAndTask(t *testing.T) {
	dir := t.TempDir()
	r := &fakeRunner{fail: "ungrib_ens_01"}
	c := newClient(t, Options{Layout: Layout{Settings: dir, DBs: dir}, Home: "/opt/rocoto"}, r)

	tasks := []string{"ungrib_ens_00", "ungrib_ens_01", "ungrib_ens_02"}
	err := c.Boot(context.Background(), Workflows([]string{"c"}, []string{"f"}), []string{"201902081800", "201902090000"}, tasks)
	if err == nil || !strings.Contains(err.Error(), "exit status 1") {
		t.Fatalf("expected joined failure, got %v", err)
	}

	var boots int
	for _, cl := range r.calls {
		if filepath.Base(cl.name) == ToolBoot {
			boots++
		}
	}
	if boots != 6 {
		t.Fatalf("expected 6 boot calls, got %d", boots)
	}
	if last := r.calls[len(r.calls)-1]; filepath.Base(last.name) != ToolStat {
		t.Fatalf("expected status refresh last, got %s", last.name)
	}

	if err := c.Rewind(context.Background(), nil, nil, tasks); err == nil {
		t.Fatal("expected rewind without cycles to fail")
	}
}

func TestMonitorStopsAtDeadline(t *testing.T) {
	dir := t.TempDir()
	r := &fakeRunner{}
	c := newClient(t, Options{Layout: Layout{Settings: dir, DBs: dir}, Home: "/opt/rocoto"}, r)

	wfs := Workflows([]string{"c"}, []string{"f"})
	if err := c.Monitor(context.Background(), wfs, time.Now().Add(-time.Second), time.Millisecond); err != nil {
		t.Fatalf("expired monitor: %v", err)
	}
	if len(r.calls) != 0 {
		t.Fatalf("expected no calls past the deadline, got %d", len(r.calls))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := c.Monitor(ctx, wfs, time.Now().Add(time.Hour), 5*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline, got %v", err)
	}
	if len(r.calls) < 2 {
		t.Fatalf("expected at least one pass, got %d calls", len(r.calls))
	}
}

func TestParseStatus(t *testing.T) {
	st := ParseStatus(strings.NewReader(statTable))
	if len(st.Tasks) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(st.Tasks))
	}
	if st.Tasks[0].Tries != 1 || st.Tasks[0].Duration != 42 {
		t.Fatalf("unexpected first row %+v", st.Tasks[0])
	}
	if st.Tasks[2].State != StateNotSubmitted {
		t.Fatalf("expected dash state to normalize, got %q", st.Tasks[2].State)
	}
	if got := strings.Join(st.States(), ","); got != "NOT_SUBMITTED,RUNNING,SUCCEEDED" {
		t.Fatalf("unexpected states %s", got)
	}
}

func TestNewRequiresLocations(t *testing.T) {
	if _, err := New(Options{Home: "/opt/rocoto"}, nil, zerolog.Nop()); err == nil {
		t.Error("expected missing layout to fail")
	}
	if _, err := New(Options{Layout: NewLayout("/clone")}, nil, zerolog.Nop()); err == nil {
		t.Error("expected missing home and image to fail")
	}
}
