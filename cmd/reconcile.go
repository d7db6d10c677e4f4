package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"receipt-ledger/core/reconcile"
	"receipt-ledger/feature/receipts"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Flags for reconcile upload command
	uploadActor  string
	uploadLabel  string
	uploadDryRun bool
)

// reconcileCmd is the parent command for all reconcile operations.
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile receipt spreadsheets into the ledger",
}

// uploadReconcileCmd runs one batch from a local workbook.
var uploadReconcileCmd = &cobra.Command{
	Use:   "upload <file.xlsx>",
	Short: "Reconcile a workbook as one batch and print the tally",
	Long: `Reconcile a workbook against the ledger as one atomic batch.

Rows that fail validation are reported and skipped. A storage failure rolls
the whole batch back.

Examples:
  # Reconcile and commit
  reconcile upload march.xlsx --actor office

  # Preview the outcome without saving anything
  reconcile upload march.xlsx --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runUploadReconcile,
}

func init() {
	reconcileCmd.AddCommand(uploadReconcileCmd)

	uploadReconcileCmd.Flags().StringVar(&uploadActor, "actor", "", "Recorded author of the changes (defaults to server.default_actor)")
	uploadReconcileCmd.Flags().StringVar(&uploadLabel, "label", "", "Batch label (defaults to the file name)")
	uploadReconcileCmd.Flags().BoolVar(&uploadDryRun, "dry-run", false, "Roll the batch back and only report the tally")

	RootCmd.AddCommand(reconcileCmd)
}

func runUploadReconcile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	startTime := time.Now()

	rt, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	path := args[0]
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	svc := receipts.NewService(rt.engine, rt.archive, rt.log, rt.cfg.Server)
	result, err := svc.Upload(ctx, receipts.UploadInput{
		Filename: filepath.Base(path),
		Label:    uploadLabel,
		Size:     info.Size(),
		Body:     f,
		Actor:    uploadActor,
		DryRun:   uploadDryRun,
	})
	if result == nil {
		return err
	}

	printTally(result, time.Since(startTime))
	if err != nil {
		return err
	}
	if result.Failed > 0 {
		rt.log.Warn("Some records were rejected", zap.Int("failed", result.Failed))
	}
	return nil
}

func printTally(r *reconcile.BatchResult, elapsed time.Duration) {
	title := "Batch"
	if r.DryRun {
		title = "Dry Run"
	}
	fmt.Printf("\n=== %s %s ===\n", title, r.Label)
	if r.BatchID != "" {
		fmt.Printf("Batch ID: %s\n", r.BatchID)
	}
	fmt.Printf("Status: %s\n", r.Status)
	fmt.Printf("Inserted: %d\n", r.Inserted)
	fmt.Printf("Updated: %d\n", r.Updated)
	fmt.Printf("Unchanged: %d\n", r.Unchanged)
	fmt.Printf("Failed: %d\n", r.Failed)
	for _, f := range r.Failures {
		switch {
		case f.Line > 0:
			fmt.Printf("  line %d (%s): %s\n", f.Line, f.Identifier, f.Reason)
		default:
			fmt.Printf("  %s\n", f.Reason)
		}
	}
	fmt.Printf("Execution Time: %s\n", elapsed.String())
}
