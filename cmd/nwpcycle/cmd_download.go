/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/cw3e/nwpcycle/internal/config"
	"github.com/cw3e/nwpcycle/internal/db"
	"github.com/cw3e/nwpcycle/internal/era5"
	"github.com/cw3e/nwpcycle/internal/fetch"
	"github.com/cw3e/nwpcycle/internal/gefs"
	"github.com/cw3e/nwpcycle/internal/storage"
	"github.com/cw3e/nwpcycle/internal/telemetry"
	"github.com/cw3e/nwpcycle/internal/tigge"
)

// Download flags
var (
	downloadRoot    string
	downloadWorkers int
	downloadClobber bool
	downloadPoll    time.Duration
	era5Call        string
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Retrieve forecast and reanalysis input data",
	Long: `Retrieves model input for every cycle of the window. Completed files are
recorded in the download ledger and skipped on the next run unless --clobber
is given.

Examples:
  nwpcycle download gefs --start 2019-02-08T00 --end 2019-02-09T00 --fcst-max 24
  nwpcycle download era5 --job era5.yaml --call surf_levels
  nwpcycle download tigge --job tigge.yaml --workers 2`,
}

var downloadGEFSCmd = &cobra.Command{
	Use:   "gefs",
	Short: "Copy GEFS GRIB2 files from the NOAA open-data bucket",
	RunE:  runDownloadGEFS,
}

var downloadERA5Cmd = &cobra.Command{
	Use:   "era5",
	Short: "Request ERA5 reanalysis from the Copernicus Climate Data Store",
	Long: `Splits the window into day chunks and submits one CDS request per chunk,
spreading them over the configured NWPCYCLE_CDS_KEYS so no key has more than
five requests in flight.`,
	RunE: runDownloadERA5,
}

var downloadTIGGECmd = &cobra.Command{
	Use:   "tigge",
	Short: "Request ECMWF ensemble forecasts from the TIGGE archive",
	Long: `Submits pressure-level, surface and static requests for every cycle, plus
control-member requests when tigge.control is set in the job. Credentials come
from NWPCYCLE_ECMWF_KEY/NWPCYCLE_ECMWF_EMAIL or ~/.ecmwfapirc.`,
	RunE: runDownloadTIGGE,
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	downloadCmd.AddCommand(downloadGEFSCmd, downloadERA5Cmd, downloadTIGGECmd)

	for _, c := range []*cobra.Command{downloadGEFSCmd, downloadERA5Cmd, downloadTIGGECmd} {
		addWindowFlags(c)
		c.Flags().StringVar(&downloadRoot, "root", "", "Download root (default <data root>/<source>)")
		c.Flags().IntVar(&downloadWorkers, "workers", 0, "Concurrent retrievals (default from job)")
	}
	downloadGEFSCmd.Flags().BoolVar(&downloadClobber, "clobber", false, "Download files even when already present")
	downloadTIGGECmd.Flags().BoolVar(&downloadClobber, "clobber", false, "Request files even when already present")
	downloadTIGGECmd.Flags().DurationVar(&downloadPoll, "poll", 30*time.Second, "Status poll interval")
	downloadERA5Cmd.Flags().DurationVar(&downloadPoll, "poll", 30*time.Second, "Status poll interval")
	downloadERA5Cmd.Flags().StringVar(&era5Call, "call", "", "model_levels, pres_levels or surf_levels (default from job)")
}

// downloadRootFor picks --root, then the job's data root, then the configured one.
func downloadRootFor(job *config.Job, source string) string {
	if downloadRoot != "" {
		return downloadRoot
	}
	root := cfg.DataRoot
	if job.DataRoot != "" {
		root = job.DataRoot
	}
	return filepath.Join(root, source)
}

func workersFor(job *config.Job) int {
	if downloadWorkers > 0 {
		return downloadWorkers
	}
	return job.Workers
}

func runDownloadGEFS(cmd *cobra.Command, args []string) error {
	job, plan, err := planFor(cmd)
	if err != nil {
		return err
	}
	ctx, stop, err := startRuntime()
	if err != nil {
		return err
	}
	defer stop()

	database, store, err := openLedger()
	if err != nil {
		return err
	}
	defer db.Close(database)

	bucket, err := storage.NewS3Store(ctx, storage.S3Config{
		Region:          cfg.S3Region,
		Bucket:          cfg.S3Bucket,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		UsePathStyle:    cfg.S3UsePathStyle,
	})
	if err != nil {
		return fmt.Errorf("open bucket: %w", err)
	}

	d := gefs.New(bucket, store, gefs.Options{
		Root:          downloadRootFor(job, "gefs"),
		Control:       job.GEFS.Control,
		Perturbations: job.GEFS.Perturbations,
		Clobber:       job.GEFS.Clobber || downloadClobber,
		Workers:       workersFor(job),
	}, logger)

	summary, err := d.Run(ctx, plan)
	report(cmd, "gefs", summary)
	return err
}

func runDownloadERA5(cmd *cobra.Command, args []string) error {
	job, err := loadJob()
	if err != nil {
		return err
	}
	applyWindowFlags(cmd, job)
	if era5Call != "" {
		job.ERA5.Call = era5Call
	}
	call, err := era5.ParseCall(job.ERA5.Call)
	if err != nil {
		return err
	}
	window, err := job.Window()
	if err != nil {
		return err
	}

	ctx, stop, err := startRuntime()
	if err != nil {
		return err
	}
	defer stop()

	database, store, err := openLedger()
	if err != nil {
		return err
	}
	defer db.Close(database)

	client := era5.NewClient(cfg.CDSURL, telemetry.NewHTTPClient(0), downloadPoll)
	rotator, err := era5.NewRotator(client, cfg.CDSKeys, job.ERA5.CredentialWait, logger)
	if err != nil {
		return err
	}

	d := era5.New(client, rotator, store, era5.Options{
		Call:         call,
		Start:        window.Start,
		Stop:         window.End,
		StartHour:    job.ERA5.StartHour,
		HourInterval: job.ERA5.HourInterval,
		DayInterval:  job.ERA5.DayInterval,
		Root:         downloadRootFor(job, "era5"),
		Workers:      workersFor(job),
		Spacing:      job.ERA5.SubmitSpacing,
	}, logger)

	summary, err := d.Run(ctx)
	report(cmd, "era5", summary)
	return err
}

func runDownloadTIGGE(cmd *cobra.Command, args []string) error {
	job, plan, err := planFor(cmd)
	if err != nil {
		return err
	}
	ctx, stop, err := startRuntime()
	if err != nil {
		return err
	}
	defer stop()

	creds, err := tigge.ResolveCredentials(tigge.Credentials{
		URL:   cfg.ECMWFURL,
		Key:   cfg.ECMWFKey,
		Email: cfg.ECMWFEmail,
	}, "")
	if err != nil {
		return err
	}

	database, store, err := openLedger()
	if err != nil {
		return err
	}
	defer db.Close(database)

	client := tigge.NewClient(creds, telemetry.NewHTTPClient(0), downloadPoll)
	d := tigge.New(client, store, tigge.Options{
		Root:    downloadRootFor(job, "tigge"),
		Members: job.TIGGE.Members,
		Control: job.TIGGE.Control,
		Clobber: job.TIGGE.Clobber || downloadClobber,
		Workers: workersFor(job),
	}, logger)

	summary, err := d.Run(ctx, plan)
	report(cmd, "tigge", summary)
	return err
}

// report logs and prints a run summary.
func report(cmd *cobra.Command, source string, s fetch.Summary) {
	logger.Info().
		Str("source", source).
		Int("ok", s.OK).
		Int("skipped", s.Skipped).
		Int("failed", s.Failed).
		Int64("bytes", s.Bytes).
		Msg("download finished")

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d downloaded, %d skipped, %d failed (%d bytes)\n",
		source, s.OK, s.Skipped, s.Failed, s.Bytes)
	for _, o := range s.Outcomes {
		if o.Err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "  FAILED %s: %v\n", o.Name, o.Err)
		}
	}
}
