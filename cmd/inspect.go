package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/figurebench/internal/export"
	"github.com/lehigh-university-libraries/figurebench/internal/models"
	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	var (
		archivePath string
		extractDir  string
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List the versions stored in a history archive",
		Long: `Reads a Parquet history archive written by run, batch or the
archive.parquet endpoint and prints one line per diagram version, newest
first. With --extract every version is also written out as an image file.`,
		Example: `  # List versions
  figurebench inspect --archive history.parquet

  # Dump every version to ./versions
  figurebench inspect --archive history.parquet --extract versions`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeInspect(cmd.OutOrStdout(), archivePath, extractDir)
		},
	}

	cmd.Flags().StringVar(&archivePath, "archive", "", "Path to a Parquet history archive (required)")
	cmd.Flags().StringVar(&extractDir, "extract", "", "Write each version's image into this directory")
	_ = cmd.MarkFlagRequired("archive")

	return cmd
}

func executeInspect(w io.Writer, archivePath, extractDir string) error {
	rows, err := export.ReadArchive(archivePath)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("archive %s has no rows", archivePath)
	}

	fmt.Fprintf(w, "Paper: %s\nVenue: %s\nVersions: %d\n\n", rows[0].Title, rows[0].Conference, len(rows))
	for _, row := range rows {
		version := len(rows) - row.Position
		prompt := strings.ReplaceAll(row.Prompt, "\n", " ")
		fmt.Fprintf(w, "[v%d] %s  %-10s %7d bytes  %s\n",
			version, time.Unix(0, row.Timestamp).UTC().Format(time.RFC3339), row.MIMEType, len(row.Image), prompt)

		if extractDir != "" {
			path := filepath.Join(extractDir, fmt.Sprintf("v%d%s", version, models.ImageExtension(row.MIMEType)))
			if err := writeImage(path, row.HistoryItem().ImageURL); err != nil {
				return err
			}
		}
	}
	return nil
}
