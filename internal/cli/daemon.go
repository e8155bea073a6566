package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/vantagesec/socqa/internal/api/handlers"
	"github.com/vantagesec/socqa/internal/domain"
	"github.com/vantagesec/socqa/internal/jobs"
	"github.com/vantagesec/socqa/internal/server"
)

// DaemonCmd returns the daemon command
func DaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run scheduled QA passes and knowledge refreshes",
		Long: "Long-running mode: trigger QA passes and low-frequency knowledge " +
			"refreshes on their configured intervals, and serve health/status " +
			"endpoints.",
		RunE: runDaemon,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides SOCQA_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	shutdownTelemetry := initTelemetry()
	defer shutdownTelemetry()

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	app, cleanup, err := newApp(ctx, !noMigrate)
	if err != nil {
		return err
	}
	defer cleanup()

	if portFlag, _ := cmd.Flags().GetString("port"); portFlag != "" {
		app.cfg.Port = portFlag
	}

	pipeline, err := app.newPipeline()
	if err != nil {
		return err
	}

	qaWorker := jobs.NewWorker("qa", jobs.TaskFunc(func(ctx context.Context) error {
		_, err := pipeline.Run(ctx)
		return err
	}), time.Duration(app.cfg.QAIntervalMinutes)*time.Minute)
	go qaWorker.Start(ctx)

	ingestWorker := jobs.NewWorker("knowledge-refresh", jobs.TaskFunc(func(ctx context.Context) error {
		if err := ingestStore(ctx, app, cmd, domain.StoreProcedures); err != nil {
			log.Printf("daemon: procedures refresh failed: %v", err)
		}
		return ingestStore(ctx, app, cmd, domain.StoreAttack)
	}), time.Duration(app.cfg.IngestIntervalHours)*time.Hour)
	go ingestWorker.Start(ctx)

	statusHandler := handlers.NewStatusHandler(app.watermark, app.runs, app.chunks)
	router := server.NewRouter(server.RouterConfig{StatusHandler: statusHandler})

	srv := &http.Server{
		Addr:    ":" + app.cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting status server on port %s", app.cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	qaWorker.Stop()
	ingestWorker.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Println("daemon exited")
	return nil
}
