package cli

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/vantagesec/socqa/internal/domain"
)

// StatusCmd returns the status command
func StatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the watermark, store freshness, and last run",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, cleanup, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer cleanup()

	watermark, found, err := app.watermark.Get(ctx)
	if err != nil {
		return err
	}
	if found {
		cmd.Printf("watermark: %s\n", watermark.UTC().Format(time.RFC3339))
	} else {
		cmd.Println("watermark: none (no pass completed yet)")
	}

	for _, store := range []domain.StoreName{domain.StoreProcedures, domain.StoreAttack} {
		count, err := app.chunks.CountChunks(ctx, store)
		if err != nil {
			return err
		}
		meta, err := app.chunks.GetStore(ctx, store)
		if err != nil {
			return err
		}
		if meta != nil {
			cmd.Printf("%s: %d chunks, model %s, updated %s\n",
				store, count, meta.EmbeddingModel, meta.LastUpdatedAt.UTC().Format(time.RFC3339))
		} else {
			cmd.Printf("%s: %d chunks, never ingested\n", store, count)
		}
	}

	last, err := app.runs.Latest(ctx)
	if err != nil {
		return err
	}
	if last == nil {
		cmd.Println("last run: none")
		return nil
	}

	cmd.Printf("last run: %s finished %s window [%s, %s) processed=%d succeeded=%d failed=%d\n",
		last.ID,
		last.FinishedAt.UTC().Format(time.RFC3339),
		last.WindowStart.UTC().Format(time.RFC3339),
		last.WindowEnd.UTC().Format(time.RFC3339),
		last.Processed, last.Succeeded, last.Failed)
	return nil
}
