package cmd

import (
	"fmt"

	"receipt-ledger/core/config"
	"receipt-ledger/core/database"
	"receipt-ledger/core/ledger/gormstore"
	"receipt-ledger/core/logger"
	"receipt-ledger/feature/integrity/checks"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the ledger tables",
	Long:  `Auto-migrates the receipts, receipt_versions, audit_logs and upload_batches tables and verifies the result.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(".")
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if cfg.Database.Driver == "memory" {
			return fmt.Errorf("the memory driver has no schema to migrate")
		}

		logg, err := logger.New(&cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		defer logg.Sync()

		db, err := database.Connect(cfg.Database)
		if err != nil {
			return fmt.Errorf("database connection required: %w", err)
		}

		logg.Info("Migrating ledger schema", zap.String("driver", cfg.Database.Driver), zap.String("database", cfg.Database.Name))
		if err := gormstore.New(db).Migrate(cmd.Context()); err != nil {
			return err
		}

		report, err := checks.CheckSchema(db, gormstore.Columns)
		if err != nil {
			return err
		}
		if !report.Matched {
			logg.Error("Schema is incomplete after migration", zap.Any("tables", report.Tables), zap.Strings("errors", report.Errors))
			return fmt.Errorf("schema check failed")
		}
		logg.Info("Schema is up to date", zap.Int("tables", len(report.Tables)))
		return nil
	},
}

func init() {
	RootCmd.AddCommand(migrateCmd)
}
