package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/lehigh-university-libraries/inventar-eval/internal/config"
	"github.com/lehigh-university-libraries/inventar-eval/internal/handlers"
	"github.com/lehigh-university-libraries/inventar-eval/internal/observability"
	"github.com/lehigh-university-libraries/inventar-eval/internal/storage"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var port string
	var history bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the evaluation HTTP service",
		Long: `Starts the evaluation service on the specified port.

POST a multipart form with "reference" and "hypothesis" CSV files to
/api/evaluate to receive the JSON report. Runs are kept in the history
database and listed under /api/runs. Prometheus metrics are served on /metrics.`,
		Example: `  # Start server on default port 8888
  inventar-eval serve

  # Start server on custom port without run history
  inventar-eval serve --port 3000 --history=false

  # Evaluate two tables
  curl -F reference=@annotations.csv -F hypothesis=@predictions.csv http://localhost:8888/api/evaluate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}

			var store *storage.RunStore
			if history {
				store, err = storage.Open(cfg.DatabasePath)
				if err != nil {
					return err
				}
				defer store.Close()
			}

			metrics := observability.NewMetrics()
			handler := handlers.New(cfg, store, metrics)

			// Set up routes
			mux := http.NewServeMux()
			mux.HandleFunc("/api/evaluate", handler.HandleEvaluate)
			mux.HandleFunc("/api/runs", handler.HandleRuns)
			mux.HandleFunc("/api/runs/", handler.HandleRunDetail)
			mux.Handle("/metrics", metrics.Handler())
			mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
				if _, err := w.Write([]byte("OK")); err != nil {
					slog.Error("Unable to write healthcheck", "err", err)
				}
			})

			addr := ":" + cfg.Port
			server := &http.Server{
				Addr:              addr,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Evaluation service available", "addr", addr, "url", "http://localhost"+addr, "history", history)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				// Give server 5 seconds to shut down gracefully
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "8888", "Port to listen on")
	cmd.Flags().BoolVar(&history, "history", true, "Keep evaluated runs in the history database")

	return cmd
}
