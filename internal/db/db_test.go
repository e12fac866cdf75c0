package db

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/cw3e/nwpcycle/internal/config"
	"github.com/cw3e/nwpcycle/internal/models"
	"github.com/cw3e/nwpcycle/internal/telemetry"
)

func TestConnectSQLiteMigratesAndTimesQueries(t *testing.T) {
	cfg := &config.Config{DBBackend: config.DatabaseSQLite, DBDSN: ":memory:", Environment: "test"}

	database, err := Connect(cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer Close(database)

	if err := Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	rec := models.DownloadRecord{
		ID:          "9b2f6c1e-3c1a-4f6e-9a53-6d0f3b1c2a10",
		Source:      models.SourceTIGGE,
		ObjectKey:   "TIGGE_gec_pl_zh_2019-02-08_18_fcst_hrs_0-6.grib",
		Status:      models.DownloadComplete,
		CompletedAt: time.Now().UTC(),
	}
	if err := database.Create(&rec).Error; err != nil {
		t.Fatalf("create: %v", err)
	}

	var count int64
	if err := database.Model(&models.DownloadRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	if n := testutil.CollectAndCount(telemetry.LedgerQueryDuration); n == 0 {
		t.Fatal("expected ledger query timings to be observed")
	}
}

func TestConnectRejectsUnknownBackend(t *testing.T) {
	if _, err := Connect(&config.Config{DBBackend: "oracle", DBDSN: "x"}); err == nil {
		t.Fatal("expected unknown backend to fail")
	}
}
