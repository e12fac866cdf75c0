/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Database backend selection for the download ledger.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	LogLevel    string // zerolog level name; empty follows Environment
	DataRoot    string
	DBBackend   DatabaseBackend
	DBDSN       string
	MetricsBind string // empty disables the metrics listener

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// S3 configuration for the GEFS open-data bucket or a mirror of it
	S3Region          string
	S3Bucket          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3UsePathStyle    bool

	// Copernicus Climate Data Store
	CDSURL  string
	CDSKeys []string // uid:apikey pairs, rotated by queue depth

	// ECMWF Web API (TIGGE)
	ECMWFURL   string
	ECMWFKey   string
	ECMWFEmail string

	// Rocoto workflow manager
	RocotoHome   string // native install, contains bin/rocotorun
	RocotoImage  string // singularity image; takes precedence over RocotoHome when set
	RocotoBinds  []string
	WorkflowHome string // clone containing simulation_settings/ and workflow_status/

	LegacyEnvWarnings []string
}

// Load reads .env files and environment variables, applies defaults, and
// validates the result.
func Load() (*Config, error) {
	for _, path := range envPaths() {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			break
		}
	}

	cfg := &Config{
		Environment: getEnvAny([]string{"NWPCYCLE_ENV"}, "production"),
		LogLevel:    getEnvAny([]string{"NWPCYCLE_LOG_LEVEL"}, ""),
		DataRoot:    getEnvAny([]string{"NWPCYCLE_DATA_ROOT", "DATA_ROOT"}, "./data"),
		DBBackend:   DatabaseBackend(getEnvAny([]string{"NWPCYCLE_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:       getEnvAny([]string{"NWPCYCLE_DB_DSN"}, ""),
		MetricsBind: getEnvAny([]string{"NWPCYCLE_METRICS_BIND"}, ""),

		TracingEnabled:    getEnvBoolAny([]string{"NWPCYCLE_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"NWPCYCLE_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"NWPCYCLE_TRACING_SAMPLE_RATE"}, 1.0),

		S3Region:          getEnvAny([]string{"NWPCYCLE_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnvAny([]string{"NWPCYCLE_S3_BUCKET"}, "noaa-gefs-pds"),
		S3Endpoint:        getEnvAny([]string{"NWPCYCLE_S3_ENDPOINT"}, ""),
		S3AccessKeyID:     getEnvAny([]string{"NWPCYCLE_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"NWPCYCLE_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3UsePathStyle:    getEnvBoolAny([]string{"NWPCYCLE_S3_USE_PATH_STYLE"}, false),

		CDSURL:  getEnvAny([]string{"NWPCYCLE_CDS_URL", "CDSAPI_URL"}, "https://cds.climate.copernicus.eu/api/v2"),
		CDSKeys: splitList(getEnvAny([]string{"NWPCYCLE_CDS_KEYS", "CDSAPI_KEY"}, "")),

		ECMWFURL:   getEnvAny([]string{"NWPCYCLE_ECMWF_URL", "ECMWF_API_URL"}, "https://api.ecmwf.int/v1"),
		ECMWFKey:   getEnvAny([]string{"NWPCYCLE_ECMWF_KEY", "ECMWF_API_KEY"}, ""),
		ECMWFEmail: getEnvAny([]string{"NWPCYCLE_ECMWF_EMAIL", "ECMWF_API_EMAIL"}, ""),

		RocotoHome:   getEnvAny([]string{"NWPCYCLE_ROCOTO_HOME", "RCT"}, ""),
		RocotoImage:  getEnvAny([]string{"NWPCYCLE_ROCOTO_IMAGE"}, ""),
		RocotoBinds:  splitList(getEnvAny([]string{"NWPCYCLE_ROCOTO_BINDS"}, "")),
		WorkflowHome: getEnvAny([]string{"NWPCYCLE_WORKFLOW_HOME", "USR_HME"}, ""),
	}

	if cfg.DBDSN == "" && cfg.DBBackend == DatabaseSQLite {
		cfg.DBDSN = filepath.Join(cfg.DataRoot, "nwpcycle.db")
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("NWPCYCLE_DB_DSN must be provided for the %s backend", cfg.DBBackend)
	}

	if cfg.TracingSampleRate < 0 || cfg.TracingSampleRate > 1 {
		return nil, fmt.Errorf("NWPCYCLE_TRACING_SAMPLE_RATE must be within [0, 1], got %g", cfg.TracingSampleRate)
	}

	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

// envPaths returns the .env locations checked by Load, first match wins.
func envPaths() []string {
	var paths []string
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".env"))
	}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "nwpcycle", ".env"))
	}
	return paths
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"DATA_ROOT": "use NWPCYCLE_DATA_ROOT",
		"RCT":       "use NWPCYCLE_ROCOTO_HOME",
		"USR_HME":   "use NWPCYCLE_WORKFLOW_HOME",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
