package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/lehigh-university-libraries/figurebench/internal/handlers"
	"github.com/lehigh-university-libraries/figurebench/internal/workflow"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var port string
	var allowPrivateURLs bool
	var flags providerFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the diagram session API",
		Long: `Starts the FigureBench JSON API on the specified port.

Each session walks a paper through analysis, diagram generation and
refinement. See /api/sessions for the available commands.`,
		Example: `  # Start server on default port 8888
  figurebench serve

  # Analyze with a local Ollama model, render with Gemini
  figurebench serve --analysis-provider ollama --render-provider gemini

  # Start server on custom port
  figurebench serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.config(cmd)
			if err != nil {
				return err
			}
			gateway, err := buildGateway(cfg)
			if err != nil {
				return err
			}

			handler := handlers.New(gateway, workflow.WithTimeout(cfg.Timeout))
			handler.AllowPrivateURLs(allowPrivateURLs)

			addr := ":" + port
			server := &http.Server{
				Addr:    addr,
				Handler: handler.Routes(),
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("FigureBench API available", "addr", addr, "url", "http://localhost"+addr,
					"analysis_provider", cfg.AnalysisProvider, "render_provider", cfg.RenderProvider)
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
	cmd.Flags().BoolVar(&allowPrivateURLs, "allow-private-urls", false, "Allow URL analysis to fetch from loopback and private addresses")
	flags.register(cmd)

	return cmd
}
