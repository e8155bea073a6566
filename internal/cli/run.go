package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/vantagesec/socqa/internal/telemetry"
)

// RunCmd returns the run command
func RunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one QA pass over closed incidents",
		Long: "Fetch closed incidents since the watermark, generate a QA report " +
			"for each, deliver the reports, and advance the watermark. " +
			"With --earliest/--latest the pass re-reviews an explicit window " +
			"without moving the watermark.",
		RunE: runRun,
	}

	cmd.Flags().String("earliest", "", "Window start (RFC3339); re-review mode")
	cmd.Flags().String("latest", "", "Window end (RFC3339); defaults to now in re-review mode")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	shutdownTelemetry := initTelemetry()
	defer shutdownTelemetry()

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	app, cleanup, err := newApp(ctx, !noMigrate)
	if err != nil {
		return err
	}
	defer cleanup()

	pipeline, err := app.newPipeline()
	if err != nil {
		return err
	}

	spanCtx, span := telemetry.StartTransaction(ctx, "qa run", "pipeline.run")
	defer span.End()

	earliestFlag, _ := cmd.Flags().GetString("earliest")
	latestFlag, _ := cmd.Flags().GetString("latest")

	if earliestFlag == "" && latestFlag == "" {
		summary, err := pipeline.Run(spanCtx)
		if err != nil {
			span.SetError(err)
			return err
		}
		printSummary(cmd, summary.Processed, summary.Succeeded, summary.Failed)
		return nil
	}

	if earliestFlag == "" {
		return fmt.Errorf("--earliest is required when --latest is set")
	}
	earliest, err := time.Parse(time.RFC3339, earliestFlag)
	if err != nil {
		return fmt.Errorf("invalid --earliest: %w", err)
	}

	latest := time.Now().UTC()
	if latestFlag != "" {
		latest, err = time.Parse(time.RFC3339, latestFlag)
		if err != nil {
			return fmt.Errorf("invalid --latest: %w", err)
		}
	}
	if !latest.After(earliest) {
		return fmt.Errorf("--latest must be after --earliest")
	}

	// Explicit windows never advance the watermark.
	summary, err := pipeline.RunWindow(spanCtx, earliest, latest, false)
	if err != nil {
		span.SetError(err)
		return err
	}
	printSummary(cmd, summary.Processed, summary.Succeeded, summary.Failed)
	return nil
}

func printSummary(cmd *cobra.Command, processed, succeeded, failed int) {
	cmd.Printf("processed=%d succeeded=%d failed=%d\n", processed, succeeded, failed)
}
