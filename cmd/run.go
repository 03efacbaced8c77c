package cmd

import (
	"fmt"
	"log/slog"

	"github.com/lehigh-university-libraries/figurebench/internal/models"
	"github.com/lehigh-university-libraries/figurebench/internal/workflow"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var (
		paperPath   string
		textPath    string
		conference  string
		refinements []string
		out         pipelineOutputs
		flags       providerFlags
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate a diagram for one paper without the web API",
		Long: `Runs the full pipeline for a single paper: analysis, initial diagram and
any number of refinements, applied in the order given.

Artifacts are written for every stage that completed, even if a later
stage fails.`,
		Example: `  # Analyze a PDF and save the diagram
  figurebench run --paper paper.pdf --out diagram.png

  # Pasted methodology text for ACL, two edits, full export
  figurebench run --text method.txt --conference ACL \
    --refine "make the encoder blue" --refine "add a legend" \
    --out diagram.png --analysis-out analysis.yaml \
    --archive history.parquet --report report.html`,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := models.ParseConference(conference)
			if err != nil {
				return err
			}
			doc, err := loadDocument(paperPath, textPath)
			if err != nil {
				return err
			}
			cfg, err := flags.config(cmd)
			if err != nil {
				return err
			}
			gateway, err := buildGateway(cfg)
			if err != nil {
				return err
			}

			session := workflow.New(gateway, workflow.WithTimeout(cfg.Timeout))
			slog.Info("Starting pipeline", "document", doc.Filename, "mime_type", doc.MIMEType, "conference", conf, "refinements", len(refinements))

			st, err := runPipeline(cmd.Context(), session, doc, conf, refinements, out)
			printSummary(cmd, st)
			if err != nil {
				return fmt.Errorf("pipeline stopped at %s: %w", st.Stage, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&paperPath, "paper", "", "Paper file to analyze (PDF, image or text)")
	cmd.Flags().StringVar(&textPath, "text", "", "Plain-text file with the methodology section")
	cmd.Flags().StringVarP(&conference, "conference", "c", string(models.DefaultConference), conferenceUsage("Target venue"))
	cmd.Flags().StringArrayVarP(&refinements, "refine", "r", nil, "Refinement instruction (repeatable, applied in order)")
	cmd.Flags().StringVarP(&out.image, "out", "o", "diagram.png", "Where to write the final diagram")
	cmd.Flags().StringVar(&out.analysis, "analysis-out", "", "Write the paper analysis as YAML")
	cmd.Flags().StringVar(&out.archive, "archive", "", "Write every generated image to a Parquet archive")
	cmd.Flags().StringVar(&out.report, "report", "", "Write an HTML report")
	flags.register(cmd)

	return cmd
}

func printSummary(cmd *cobra.Command, st models.WorkflowState) {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "========================================")
	if st.Analysis != nil {
		fmt.Fprintf(w, "Title:      %s\n", st.Analysis.Title)
		fmt.Fprintf(w, "Layout:     %s\n", st.Analysis.LayoutStrategy)
		fmt.Fprintf(w, "Components: %d\n", len(st.Analysis.KeyComponents))
	}
	fmt.Fprintf(w, "Venue:      %s\n", st.Conference)
	fmt.Fprintf(w, "Stage:      %s\n", st.Stage)
	fmt.Fprintf(w, "Versions:   %d\n", len(st.History))
	if st.LastError != "" {
		fmt.Fprintf(w, "Error:      %s\n", st.LastError)
	}
	fmt.Fprintln(w, "========================================")
}
