package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cw3e/nwpcycle/internal/cycle"
)

func TestLoadDefaultsToSQLiteUnderDataRoot(t *testing.T) {
	t.Setenv("NWPCYCLE_DATA_ROOT", "/scratch/data")
	t.Setenv("NWPCYCLE_DB_BACKEND", "")
	t.Setenv("NWPCYCLE_DB_DSN", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBBackend != DatabaseSQLite {
		t.Fatalf("expected sqlite backend, got %q", cfg.DBBackend)
	}
	if cfg.DBDSN != filepath.Join("/scratch/data", "nwpcycle.db") {
		t.Fatalf("unexpected dsn: %q", cfg.DBDSN)
	}
	if cfg.S3Bucket != "noaa-gefs-pds" {
		t.Fatalf("unexpected bucket: %q", cfg.S3Bucket)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("NWPCYCLE_DB_BACKEND", "oracle")

	if _, err := Load(); err == nil {
		t.Fatal("expected unsupported backend to fail")
	}
}

func TestLoadRequiresDSNForPostgres(t *testing.T) {
	t.Setenv("NWPCYCLE_DB_BACKEND", "postgres")
	t.Setenv("NWPCYCLE_DB_DSN", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected missing postgres dsn to fail")
	}
}

func TestLoadSplitsCDSKeysAndReportsLegacyKeys(t *testing.T) {
	t.Setenv("NWPCYCLE_CDS_KEYS", "1234:aaaa, 5678:bbbb ,")
	t.Setenv("RCT", "/opt/rocoto")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.CDSKeys) != 2 || cfg.CDSKeys[1] != "5678:bbbb" {
		t.Fatalf("unexpected cds keys: %v", cfg.CDSKeys)
	}
	if cfg.RocotoHome != "/opt/rocoto" {
		t.Fatalf("expected legacy RCT fallback, got %q", cfg.RocotoHome)
	}
	if len(cfg.LegacyEnvWarnings) == 0 {
		t.Fatal("expected legacy env warnings")
	}
}

func TestLoadRejectsSampleRateOutOfRange(t *testing.T) {
	t.Setenv("NWPCYCLE_TRACING_SAMPLE_RATE", "1.5")

	if _, err := Load(); err == nil {
		t.Fatal("expected out of range sample rate to fail")
	}
}

func TestParseTime(t *testing.T) {
	want := time.Date(2019, 2, 8, 18, 0, 0, 0, time.UTC)
	for _, in := range []string{"2019-02-08T18:00:00", "2019-02-08T18:00", "2019-02-08T18:00:00Z", "2019020818", " 2019-02-08 18:00:00 "} {
		got, err := ParseTime(in)
		if err != nil {
			t.Errorf("%q: %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("%q: expected %s, got %s", in, want, got)
		}
	}
	if _, err := ParseTime("yesterday"); err == nil {
		t.Error("expected error for non ISO input")
	}
}

func TestLoadJob(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tigge.yaml")
	body := `
start: 2019-02-08T18:00:00
end: 2019-02-10T18:00:00
cycle_interval: 6
forecast:
  min: 0
  max: 6
  step: 6
tigge:
  members: 20
era5:
  call: surf_levels
  submit_spacing: 5s
rocoto:
  cases: [DeepDive]
  flows: [2022122800_valid_date_wrf_ensemble]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write job: %v", err)
	}

	job, err := LoadJob(path)
	if err != nil {
		t.Fatalf("load job: %v", err)
	}
	if job.Workers != 4 {
		t.Errorf("expected default workers 4, got %d", job.Workers)
	}
	if job.ERA5.Call != "surf_levels" || job.ERA5.SubmitSpacing != 5*time.Second {
		t.Errorf("unexpected era5 section: %+v", job.ERA5)
	}
	if job.ERA5.CredentialWait != time.Hour {
		t.Errorf("expected default credential wait, got %s", job.ERA5.CredentialWait)
	}
	if len(job.Rocoto.Cases) != 1 || job.Rocoto.Cases[0] != "DeepDive" {
		t.Errorf("unexpected rocoto cases: %v", job.Rocoto.Cases)
	}

	cfg, err := job.CycleConfig()
	if err != nil {
		t.Fatalf("cycle config: %v", err)
	}
	plan, err := cycle.Enumerate(cfg)
	if err != nil {
		t.Fatalf("enumerate: %v", err)
	}
	if len(plan.Inits) != 9 || len(plan.Leads) != 2 {
		t.Errorf("expected 9 inits x 2 leads, got %d x %d", len(plan.Inits), len(plan.Leads))
	}
}

func TestJobWindowRejectsReversedRange(t *testing.T) {
	job := DefaultJob()
	job.Start = "2019-02-10T18:00:00"
	job.End = "2019-02-08T18:00:00"

	cfg, err := job.CycleConfig()
	if err != nil {
		t.Fatalf("cycle config: %v", err)
	}
	if _, err := cycle.Enumerate(cfg); !errors.Is(err, cycle.ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
}
