/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cw3e/nwpcycle/internal/db"
)

// Ledger flags
var (
	ledgerSource string
	ledgerKey    string
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect or edit the download ledger",
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded downloads for a source",
	RunE:  runLedgerList,
}

var ledgerForgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Remove a ledger entry so the next download run fetches it again",
	Long: `Removes one ledger entry. Files already on disk are still skipped unless the
download runs with --clobber.

Examples:
  nwpcycle ledger forget --source era5 --key 2019-02-08--2019-02-09_surf_levels.grib`,
	RunE: runLedgerForget,
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerListCmd, ledgerForgetCmd)

	ledgerCmd.PersistentFlags().StringVar(&ledgerSource, "source", "", "gefs, era5 or tigge (required)")
	_ = ledgerCmd.MarkPersistentFlagRequired("source")
	ledgerForgetCmd.Flags().StringVar(&ledgerKey, "key", "", "Object key of the entry (required)")
	_ = ledgerForgetCmd.MarkFlagRequired("key")
}

func runLedgerList(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	database, store, err := openLedger()
	if err != nil {
		return err
	}
	defer db.Close(database)

	records, err := store.List(cmd.Context(), ledgerSource)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INIT\tLEAD\tSTATUS\tBYTES\tKEY")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%s\n", r.InitTime.Format("2006-01-02T15Z"), r.Lead, r.Status, r.Bytes, r.ObjectKey)
	}
	return tw.Flush()
}

func runLedgerForget(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	database, store, err := openLedger()
	if err != nil {
		return err
	}
	defer db.Close(database)

	if err := store.Forget(cmd.Context(), ledgerSource, ledgerKey); err != nil {
		return err
	}
	logger.Info().Str("source", ledgerSource).Str("key", ledgerKey).Msg("ledger entry removed")
	return nil
}
