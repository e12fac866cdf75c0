package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/cw3e/nwpcycle/internal/models"
)

type funcJob struct {
	name string
	run  func(ctx context.Context) (Result, error)
}

func (j funcJob) Name() string                            { return j.name }
func (j funcJob) Run(ctx context.Context) (Result, error) { return j.run(ctx) }

func TestPoolRespectsWorkerLimit(t *testing.T) {
	var inFlight, peak int32
	jobs := make([]Job, 12)
	for i := range jobs {
		jobs[i] = funcJob{name: fmt.Sprintf("job-%d", i), run: func(ctx context.Context) (Result, error) {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return Result{Bytes: 10}, nil
		}}
	}

	summary := Pool{Source: "test", Workers: 3, Logger: zerolog.Nop()}.Run(context.Background(), jobs)

	if summary.OK != 12 || summary.Bytes != 120 {
		t.Fatalf("expected 12 ok jobs with 120 bytes, got %+v", summary)
	}
	if peak > 3 {
		t.Fatalf("expected at most 3 concurrent jobs, saw %d", peak)
	}
	if summary.Err() != nil {
		t.Fatalf("expected no errors, got %v", summary.Err())
	}
}

func TestPoolCollectsOutcomes(t *testing.T) {
	boom := errors.New("boom")
	jobs := []Job{
		funcJob{name: "ok", run: func(context.Context) (Result, error) { return Result{Status: StatusOK, Bytes: 5}, nil }},
		funcJob{name: "skip", run: func(context.Context) (Result, error) { return Result{Status: StatusSkipped}, nil }},
		funcJob{name: "fail", run: func(context.Context) (Result, error) { return Result{}, boom }},
	}

	summary := Pool{Source: "test", Workers: 2, Logger: zerolog.Nop()}.Run(context.Background(), jobs)

	if summary.OK != 1 || summary.Skipped != 1 || summary.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if !errors.Is(summary.Err(), boom) {
		t.Fatalf("expected joined error to wrap boom, got %v", summary.Err())
	}
	if !strings.Contains(summary.Err().Error(), "fail:") {
		t.Fatalf("expected job name in error, got %v", summary.Err())
	}
}

func TestPoolStopsSubmittingOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var mu sync.Mutex
	var ran []string

	jobs := make([]Job, 5)
	for i := range jobs {
		name := fmt.Sprintf("job-%d", i)
		jobs[i] = funcJob{name: name, run: func(context.Context) (Result, error) {
			mu.Lock()
			ran = append(ran, name)
			mu.Unlock()
			cancel()
			return Result{}, nil
		}}
	}

	summary := Pool{Source: "test", Workers: 1, Spacing: 50 * time.Millisecond, Logger: zerolog.Nop()}.Run(ctx, jobs)

	if len(summary.Outcomes) != 1 || len(ran) != 1 {
		t.Fatalf("expected one job before cancellation, ran %v", ran)
	}
}

func TestIsGRIB(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.grib2")
	bad := filepath.Join(dir, "bad.grib2")
	short := filepath.Join(dir, "short")

	if err := os.WriteFile(good, []byte("GRIB\x00\x00\x02"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte("<html>error</html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(short, []byte("GR"), 0o644); err != nil {
		t.Fatal(err)
	}

	for path, want := range map[string]bool{good: true, bad: false, short: false} {
		got, err := IsGRIB(path)
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		if got != want {
			t.Errorf("%s: expected %v, got %v", filepath.Base(path), want, got)
		}
	}

	if _, err := IsGRIB(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestWriteFileIsAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "20190208", "gep01.t18z.pgrb2af006")

	n, err := WriteFile(context.Background(), path, strings.NewReader("GRIB payload"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if n != 12 {
		t.Fatalf("expected 12 bytes, got %d", n)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != filepath.Base(path) {
		t.Fatalf("expected only the target file, got %v", entries)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	other := filepath.Join(filepath.Dir(path), "cancelled")
	if _, err := WriteFile(ctx, other, strings.NewReader("GRIB")); err == nil {
		t.Fatal("expected cancelled write to fail")
	}
	if Exists(other) {
		t.Fatal("cancelled write must not leave a target file")
	}
}

type memLedger struct {
	mu   sync.Mutex
	done map[string]bool
	recs []models.DownloadRecord
}

func (m *memLedger) Done(_ context.Context, source, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done[source+"/"+key], nil
}

func (m *memLedger) Record(_ context.Context, rec models.DownloadRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func TestAlreadyFetched(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present")
	if err := os.WriteFile(present, []byte("GRIB"), 0o644); err != nil {
		t.Fatal(err)
	}
	l := &memLedger{done: map[string]bool{"gefs/recorded": true}}
	ctx := context.Background()

	cases := []struct {
		name    string
		key     string
		path    string
		clobber bool
		want    bool
	}{
		{"clobber always fetches", "recorded", present, true, false},
		{"file on disk", "other", present, false, true},
		{"ledger entry", "recorded", filepath.Join(dir, "moved"), false, true},
		{"nothing known", "new", filepath.Join(dir, "new"), false, false},
	}
	for _, tc := range cases {
		got, err := AlreadyFetched(ctx, l, "gefs", tc.key, tc.path, tc.clobber)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestRecordMarksFailures(t *testing.T) {
	l := &memLedger{}
	init := time.Date(2019, 2, 8, 18, 0, 0, 0, time.UTC)

	if err := Record(context.Background(), l, "era5", "a.grib", init, 0, Result{Path: "/x/a.grib", Bytes: 3}, nil); err != nil {
		t.Fatal(err)
	}
	if err := Record(context.Background(), l, "era5", "b.grib", init, 0, Result{}, errors.New("task failed")); err != nil {
		t.Fatal(err)
	}
	if err := Record(context.Background(), nil, "era5", "c.grib", init, 0, Result{}, nil); err != nil {
		t.Fatalf("nil ledger should be a no-op: %v", err)
	}

	if len(l.recs) != 2 {
		t.Fatalf("expected two records, got %d", len(l.recs))
	}
	if l.recs[0].Status != models.DownloadComplete || l.recs[1].Status != models.DownloadFailed {
		t.Fatalf("unexpected statuses: %s, %s", l.recs[0].Status, l.recs[1].Status)
	}
	if l.recs[1].Error != "task failed" {
		t.Fatalf("expected error text, got %q", l.recs[1].Error)
	}
}
