package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"paperlens-backend/app"
	"paperlens-backend/config"
	"paperlens-backend/models"
	"paperlens-backend/service"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const pageSize = 100

var (
	reprocessAll     bool
	reprocessSession string
	reprocessStatus  string
	reprocessTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "reprocess [document-id...]",
	Short: "Re-run the document pipeline for stored documents",
	Long: `Re-run the document pipeline for stored documents.

Derived results of each document are cleared and its sections and chunks are
rebuilt with the current chunking and embedding configuration.

Examples:
  reprocess 3f2b7c1e-8d0a-4b59-9b6e-2f1d2c3a4b5c
  reprocess --all
  reprocess --all --session abc123 --status rejected`,
	RunE:         runReprocess,
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().BoolVar(&reprocessAll, "all", false, "reprocess every stored document")
	rootCmd.Flags().StringVar(&reprocessSession, "session", "", "with --all, only documents of this session")
	rootCmd.Flags().StringVar(&reprocessStatus, "status", "", "with --all, only documents in this status (unprocessed, processed, rejected)")
	rootCmd.Flags().DurationVar(&reprocessTimeout, "timeout", 10*time.Minute, "how long to wait for each document")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runReprocess(cmd *cobra.Command, args []string) error {
	if reprocessAll == (len(args) > 0) {
		return errors.New("pass document ids or --all, not both")
	}
	if reprocessStatus != "" {
		switch models.DocumentStatus(reprocessStatus) {
		case models.DocumentUnprocessed, models.DocumentProcessed, models.DocumentRejected:
		default:
			return fmt.Errorf("unknown status %q", reprocessStatus)
		}
	}

	config.LoadDotEnv()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer closeLog()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ids, err := documentIDs(ctx, a.Documents, args)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("No documents to reprocess.")
		return nil
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	workersDone := make(chan error, 1)
	go func() {
		workersDone <- a.Tasks.Start(workerCtx)
	}()
	defer func() {
		stopWorkers()
		<-workersDone
	}()

	var failed int
	tasks := make(map[uuid.UUID]uuid.UUID, len(ids))
	for _, id := range ids {
		task, err := a.Documents.Reprocess(ctx, id)
		if errors.Is(err, service.ErrDocumentBusy) {
			failed++
			fmt.Printf("… %s: skipped, %v\n", id, err)
			continue
		}
		if err != nil {
			return fmt.Errorf("reprocess %s: %w", id, err)
		}
		tasks[id] = task.ID
	}

	for _, id := range ids {
		if _, ok := tasks[id]; !ok {
			continue
		}
		task, err := a.Tasks.Await(ctx, tasks[id], reprocessTimeout)
		if err != nil {
			return fmt.Errorf("wait for %s: %w", id, err)
		}
		switch task.Status {
		case models.TaskCompleted:
			fmt.Printf("✓ %s\n", id)
		case models.TaskFailed:
			failed++
			fmt.Printf("✗ %s: %s\n", id, deref(task.ErrorMessage))
		default:
			failed++
			fmt.Printf("… %s: still %s after %s\n", id, task.Status, reprocessTimeout)
		}
	}

	fmt.Printf("\nReprocessed %d of %d documents\n", len(ids)-failed, len(ids))
	if failed > 0 {
		return fmt.Errorf("%d documents did not complete", failed)
	}
	return nil
}

func documentIDs(ctx context.Context, documents *service.DocumentService, args []string) ([]uuid.UUID, error) {
	if !reprocessAll {
		ids := make([]uuid.UUID, 0, len(args))
		for _, arg := range args {
			id, err := uuid.Parse(arg)
			if err != nil {
				return nil, fmt.Errorf("invalid document id %q", arg)
			}
			ids = append(ids, id)
		}
		return ids, nil
	}

	var ids []uuid.UUID
	for offset := 0; ; offset += pageSize {
		docs, err := documents.ListDocuments(ctx, service.ListDocumentsRequest{
			SessionID: reprocessSession,
			Limit:     pageSize,
			Offset:    offset,
		})
		if err != nil {
			return nil, fmt.Errorf("list documents: %w", err)
		}
		for _, doc := range docs {
			if reprocessStatus == "" || doc.Status == models.DocumentStatus(reprocessStatus) {
				ids = append(ids, doc.ID)
			}
		}
		if len(docs) < pageSize {
			return ids, nil
		}
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
