package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vantagesec/socqa/internal/domain"
	"github.com/vantagesec/socqa/internal/sources"
	"github.com/vantagesec/socqa/internal/telemetry"
)

// IngestCmd returns the ingest command and its store subcommands
func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Update the knowledge stores",
		Long: "Fetch source documents, chunk and embed changed content, and " +
			"commit it to the selected knowledge store.",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "procedures",
			Short: "Refresh the SOC procedures store",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runIngest(cmd, domain.StoreProcedures)
			},
		},
		&cobra.Command{
			Use:   "attack",
			Short: "Refresh the MITRE ATT&CK store",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runIngest(cmd, domain.StoreAttack)
			},
		},
		&cobra.Command{
			Use:   "all",
			Short: "Refresh both knowledge stores",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := runIngest(cmd, domain.StoreProcedures); err != nil {
					return err
				}
				return runIngest(cmd, domain.StoreAttack)
			},
		},
	)

	return cmd
}

func runIngest(cmd *cobra.Command, store domain.StoreName) error {
	ctx := cmd.Context()

	shutdownTelemetry := initTelemetry()
	defer shutdownTelemetry()

	app, cleanup, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer cleanup()

	return ingestStore(ctx, app, cmd, store)
}

func ingestStore(ctx context.Context, app *app, cmd *cobra.Command, store domain.StoreName) error {
	ingestor, err := app.newIngestor()
	if err != nil {
		return err
	}

	spanCtx, span := telemetry.StartSpan(ctx, "knowledge ingest", telemetry.SpanAttributes{
		Store:     string(store),
		Operation: "ingest",
	})
	defer span.End()

	docs, err := fetchDocuments(spanCtx, app, store)
	if err != nil {
		span.SetError(err)
		return err
	}

	result, err := ingestor.Ingest(spanCtx, docs, store)
	if err != nil {
		span.SetError(err)
		return err
	}

	cmd.Printf("%s: documents added=%d skipped=%d failed=%d, chunks added=%d skipped=%d\n",
		store, result.DocumentsAdded, result.DocumentsSkipped, result.DocumentsFailed,
		result.ChunksAdded, result.ChunksSkipped)
	return nil
}

// fetchDocuments picks the document source for a store: Confluence
// (or the S3 export fallback) for procedures, the STIX bundle for
// attack.
func fetchDocuments(ctx context.Context, app *app, store domain.StoreName) ([]domain.RawDocument, error) {
	switch store {
	case domain.StoreProcedures:
		if app.cfg.HasConfluence() {
			source := sources.NewConfluenceSource(sources.ConfluenceConfig{
				BaseURL:  app.cfg.ConfluenceURL,
				Username: app.cfg.ConfluenceUsername,
				Token:    app.cfg.ConfluenceToken,
				SpaceKey: app.cfg.ConfluenceSpaceKey,
			})
			return source.FetchDocuments(ctx)
		}
		if app.cfg.HasS3() {
			source, err := sources.NewS3Source(ctx, sources.S3SourceConfig{
				Endpoint:        app.cfg.S3Endpoint,
				Region:          app.cfg.S3Region,
				AccessKeyID:     app.cfg.S3AccessKey,
				SecretAccessKey: app.cfg.S3SecretKey,
				Bucket:          app.cfg.S3Bucket,
				Prefix:          app.cfg.S3Prefix,
			})
			if err != nil {
				return nil, err
			}
			return source.FetchDocuments(ctx)
		}
		return nil, fmt.Errorf("no procedures source configured: set Confluence or S3 credentials")

	case domain.StoreAttack:
		source := sources.NewAttackSource(sources.AttackConfig{
			BundleURL: app.cfg.AttackStixURL,
		})
		return source.FetchDocuments(ctx)

	default:
		return nil, fmt.Errorf("unknown knowledge store %q", store)
	}
}
