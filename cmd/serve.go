package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/santolucito/neural/internal/server"
	"github.com/santolucito/neural/internal/store"
	"github.com/spf13/cobra"
)

var (
	serveAddr      string
	serveDataDir   string
	serveStoreKind string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP job server",
	Long: `Serves the job API: POST /api/v1/jobs starts a background search,
GET /api/v1/jobs/{id}/stream follows its progress over SSE, and
checkpoints let interrupted jobs be resumed later.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "./data", "Directory for checkpoints and traces")
	serveCmd.Flags().StringVar(&serveStoreKind, "store", "fs", "Checkpoint store backend (fs, sqlite)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	storePath := serveDataDir
	if serveStoreKind == "sqlite" {
		if err := os.MkdirAll(serveDataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		storePath = filepath.Join(serveDataDir, "checkpoints.db")
	}

	checkpointStore, err := store.NewStore(serveStoreKind, storePath)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	defer store.CloseIfSupported(checkpointStore)

	srv := server.NewServer(serveAddr, serveDataDir, checkpointStore)

	// Shut down cleanly on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Start()
	}()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
