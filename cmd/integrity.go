package cmd

import (
	"errors"

	"receipt-ledger/feature/integrity"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var fixFlag bool

var errChecksFailed = errors.New("integrity checks reported problems")

// integrityCmd represents the integrity command
var integrityCmd = &cobra.Command{
	Use:   "integrity",
	Short: "Perform integrity checks on the ledger",
	Long:  `Checks the ledger schema, every receipt's version history and audit trail, and the upload archive.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIntegrityChecks(cmd, true, true, true)
	},
}

// schemaCmd represents the integrity schema command
var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Check the ledger tables and columns",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIntegrityChecks(cmd, true, false, false)
	},
}

// ledgerCmd represents the integrity ledger command
var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Check version histories and audit trails",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIntegrityChecks(cmd, false, true, false)
	},
}

// storageCmd represents the integrity storage command
var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Check and fix the upload archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIntegrityChecks(cmd, false, false, true)
	},
}

func init() {
	RootCmd.AddCommand(integrityCmd)
	integrityCmd.AddCommand(schemaCmd, ledgerCmd, storageCmd)

	storageCmd.Flags().BoolVar(&fixFlag, "fix", false, "Remove orphaned uploads")
}

func runIntegrityChecks(cmd *cobra.Command, runSchema, runLedger, runStorage bool) error {
	ctx := cmd.Context()

	rt, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	logg := rt.log

	svc := integrity.NewService(rt.db, rt.store, rt.archive, logg)
	healthy := true

	if runSchema {
		logg.Info("Checking ledger schema...")
		switch report, err := svc.CheckSchema(); {
		case rt.db == nil:
			logg.Info("Schema check skipped, the in-memory ledger has no schema")
		case err != nil:
			return err
		case report.Matched:
			logg.Info("Schema is intact.")
		default:
			healthy = false
			logg.Warn("Schema mismatch detected", zap.Any("tables", report.Tables), zap.Strings("errors", report.Errors))
		}
	}

	if runLedger {
		logg.Info("Checking ledger history (this might take a while)...")
		report, err := svc.CheckLedger(ctx)
		if err != nil {
			return err
		}
		if report.Matched {
			logg.Info("Ledger is consistent.", zap.Int("receipts", report.Receipts), zap.Int("versions", report.Versions))
		} else {
			healthy = false
			for _, issue := range report.Issues {
				logg.Warn("Ledger issue", zap.String("receipt_number", issue.Identifier), zap.String("problem", issue.Problem))
			}
		}
	}

	if runStorage {
		logg.Info("Checking upload archive...")
		report, err := svc.CheckStorage(ctx)
		switch {
		case errors.Is(err, integrity.ErrStorageDisabled):
			logg.Info("Storage check skipped, the upload archive is disabled")
		case err != nil:
			return err
		case report.Matched():
			logg.Info("Archive is consistent.", zap.Int("objects", report.Objects))
		default:
			if len(report.MissingSources) > 0 {
				healthy = false
				logg.Warn("Batches with missing uploads", zap.Strings("batches", report.MissingSources))
			}
			if len(report.Orphans) > 0 {
				logg.Warn("Orphaned uploads detected", zap.Strings("orphans", report.Orphans))
				if fixFlag {
					logg.Info("Removing orphaned uploads...")
					if err := svc.FixStorage(ctx, report.Orphans); err != nil {
						return err
					}
					logg.Info("Orphaned uploads removed.")
				} else {
					healthy = false
				}
			}
		}
	}

	if !healthy {
		return errChecksFailed
	}
	return nil
}
