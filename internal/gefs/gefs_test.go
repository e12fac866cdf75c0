package gefs

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cw3e/nwpcycle/internal/cycle"
	"github.com/cw3e/nwpcycle/internal/db"
	"github.com/cw3e/nwpcycle/internal/ledger"
	"github.com/cw3e/nwpcycle/internal/models"
	"github.com/cw3e/nwpcycle/internal/storage"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	opened  []string
}

func (m *memStore) List(_ context.Context, prefix string) ([]storage.Object, error) {
	var out []storage.Object
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, storage.Object{Key: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

func (m *memStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	m.opened = append(m.opened, key)
	m.mu.Unlock()
	return io.NopCloser(bytes.NewReader(m.objects[key])), nil
}

func newLedger(t *testing.T) *ledger.Store {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return ledger.New(gdb, zerolog.Nop())
}

func TestFilterMatch(t *testing.T) {
	f := Filter{Leads: []int{0, 6, 120}, Perturbations: true}

	cases := []struct {
		rel  string
		lead int
		ok   bool
	}{
		{"atmos/pgrb2ap5/gep01.t18z.pgrb2a.0p50.f006", 6, true},
		{"atmos/pgrb2bp5/gep20.t18z.pgrb2b.0p50.f000", 0, true},
		{"pgrb2a/gep05.t18z.pgrb2af06", 6, true},
		{"pgrb2a/gep05.t18z.pgrb2af120", 120, true},
		{"atmos/pgrb2ap5/gep01.t18z.pgrb2a.0p50.f006.idx", 0, false},
		{"atmos/pgrb2ap5/gep01.t18z.pgrb2a.0p50.f009", 0, false},
		{"atmos/pgrb2sp25/gep01.t18z.pgrb2s.0p25.f006", 0, false},
		{"atmos/pgrb2ap5/geavg.t18z.pgrb2a.0p50.f006", 0, false},
		{"atmos/pgrb2ap5/gespr.t18z.pgrb2a.0p50.f006", 0, false},
		{"chem/pgrb2ap25/gefs.chem.t18z.a2d_0p25.f006", 0, false},
		{"wave/gridded/gefs.wave.t18z.p01.global.0p25.f006", 0, false},
		{"atmos/pgrb2ap5/gec00.t18z.pgrb2a.0p50.f006", 0, false},
	}
	for _, tc := range cases {
		lead, ok := f.Match(tc.rel)
		if ok != tc.ok || (ok && lead != tc.lead) {
			t.Errorf("%s: expected (%d, %v), got (%d, %v)", tc.rel, tc.lead, tc.ok, lead, ok)
		}
	}

	ctrlOnly := Filter{Leads: []int{6}, Control: true}
	if _, ok := ctrlOnly.Match("atmos/pgrb2ap5/gec00.t18z.pgrb2a.0p50.f006"); !ok {
		t.Error("control member should be kept when requested")
	}
	if _, ok := ctrlOnly.Match("atmos/pgrb2ap5/gep01.t18z.pgrb2a.0p50.f006"); ok {
		t.Error("perturbations should be dropped when not requested")
	}
}

func TestPrefix(t *testing.T) {
	init := time.Date(2021, 1, 26, 6, 0, 0, 0, time.UTC)
	if got := Prefix(init); got != "gefs.20210126/06/" {
		t.Fatalf("unexpected prefix %q", got)
	}
}

func TestDownloaderFlattensAndSkips(t *testing.T) {
	grib := []byte("GRIB\x00\x00\x00\x02")
	store := &memStore{objects: map[string][]byte{
		"gefs.20210126/00/atmos/pgrb2ap5/gep01.t00z.pgrb2a.0p50.f000":     grib,
		"gefs.20210126/00/atmos/pgrb2ap5/gep01.t00z.pgrb2a.0p50.f003":     grib,
		"gefs.20210126/00/atmos/pgrb2ap5/gep01.t00z.pgrb2a.0p50.f003.idx": []byte("index"),
		"gefs.20210126/00/atmos/pgrb2ap5/gec00.t00z.pgrb2a.0p50.f003":     grib,
		"gefs.20210126/06/atmos/pgrb2bp5/gep02.t06z.pgrb2b.0p50.f003":     grib,
		"gefs.20210126/12/atmos/pgrb2ap5/gep01.t12z.pgrb2a.0p50.f003":     grib,
	}}

	root := t.TempDir()
	l := newLedger(t)
	plan, err := cycle.Enumerate(cycle.Config{
		Window:        cycle.Window{Start: time.Date(2021, 1, 26, 0, 0, 0, 0, time.UTC), End: time.Date(2021, 1, 26, 6, 0, 0, 0, time.UTC)},
		IntervalHours: 6,
		Forecast:      cycle.ForecastWindow{Min: 0, Max: 3, Step: 3},
	})
	if err != nil {
		t.Fatal(err)
	}

	d := New(store, l, Options{Root: root, Perturbations: true, Workers: 2}, zerolog.Nop())
	summary, err := d.Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.OK != 3 {
		t.Fatalf("expected 3 downloads, got %+v", summary)
	}

	entries, err := os.ReadDir(filepath.Join(root, "20210126"))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			t.Fatalf("expected a flat directory, found %s", e.Name())
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	want := []string{"gep01.t00z.pgrb2a.0p50.f000", "gep01.t00z.pgrb2a.0p50.f003", "gep02.t06z.pgrb2b.0p50.f003"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected files %v", names)
	}

	recs, err := l.List(context.Background(), models.SourceGEFS)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 ledger rows, got %d", len(recs))
	}

	// Second run without clobber touches nothing.
	store.opened = nil
	d = New(store, l, Options{Root: root, Perturbations: true, Workers: 2}, zerolog.Nop())
	summary, err = d.Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if summary.Skipped != 3 || len(store.opened) != 0 {
		t.Fatalf("expected all skipped, got %+v opened=%v", summary, store.opened)
	}
}

func TestDownloaderRejectsNonGRIB(t *testing.T) {
	store := &memStore{objects: map[string][]byte{
		"gefs.20210126/00/atmos/pgrb2ap5/gep01.t00z.pgrb2a.0p50.f000": []byte("<Error>AccessDenied</Error>"),
	}}
	root := t.TempDir()
	plan := cycle.Plan{Inits: []time.Time{time.Date(2021, 1, 26, 0, 0, 0, 0, time.UTC)}, Leads: []int{0}}

	d := New(store, nil, Options{Root: root, Perturbations: true, Clobber: true, Workers: 1}, zerolog.Nop())
	summary, err := d.Run(context.Background(), plan)
	if err == nil || summary.Failed != 1 {
		t.Fatalf("expected one failure, got %+v err=%v", summary, err)
	}
	if _, statErr := os.Stat(filepath.Join(root, "20210126", "gep01.t00z.pgrb2a.0p50.f000")); !os.IsNotExist(statErr) {
		t.Fatal("invalid download should be removed")
	}
}
