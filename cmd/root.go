package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/lehigh-university-libraries/figurebench/internal/models"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "figurebench",
		Short: "Turn research papers into publication-ready method diagrams",
		Long: `FigureBench reads a research paper, distills its methodology into a visual
blueprint, renders a conference-style architecture diagram from it, and lets
you refine that diagram with natural-language edits.

It ships a JSON web API for interactive sessions and a headless pipeline for
scripted runs.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
			setupLogging(verbose)
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging (or set LOG_LEVEL=debug)")

	// Add subcommands
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newBatchCmd())
	cmd.AddCommand(newPromptCmd())
	cmd.AddCommand(newInspectCmd())

	return cmd
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose || strings.EqualFold(os.Getenv("LOG_LEVEL"), "debug") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// conferenceUsage appends the supported venues to a flag description.
func conferenceUsage(desc string) string {
	names := make([]string, 0, len(models.Conferences()))
	for _, c := range models.Conferences() {
		names = append(names, string(c))
	}
	return desc + " (" + strings.Join(names, ", ") + ")"
}
