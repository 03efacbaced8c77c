package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/lehigh-university-libraries/figurebench/internal/export"
	"github.com/lehigh-university-libraries/figurebench/internal/models"
	"github.com/lehigh-university-libraries/figurebench/internal/prompts"
	"github.com/spf13/cobra"
)

func newPromptCmd() *cobra.Command {
	var (
		conference    string
		blueprint     string
		blueprintFile string
		instruction   string
	)

	cmd := &cobra.Command{
		Use:       "prompt analysis|generation|refinement",
		Short:     "Print the prompt sent to the backend for a stage",
		ValidArgs: []string{"analysis", "generation", "refinement"},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		Example: `  # Analysis prompt framed for CVPR
  figurebench prompt analysis --conference CVPR

  # Refinement prompt for a saved analysis
  figurebench prompt refinement --blueprint-file analysis.yaml --instruction "make the encoder blue"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			bp, err := resolveBlueprint(blueprint, blueprintFile)
			if err != nil {
				return err
			}

			var prompt string
			switch args[0] {
			case "analysis":
				conf, err := models.ParseConference(conference)
				if err != nil {
					return err
				}
				prompt = prompts.BuildAnalysisPrompt(conf)
			case "generation":
				if bp == "" {
					return fmt.Errorf("--blueprint or --blueprint-file is required")
				}
				prompt = prompts.BuildGenerationPrompt(bp)
			case "refinement":
				if bp == "" || strings.TrimSpace(instruction) == "" {
					return fmt.Errorf("--instruction and a blueprint are required")
				}
				prompt = prompts.BuildRefinementPrompt(instruction, bp)
			}

			fmt.Fprintln(cmd.OutOrStdout(), prompt)
			return nil
		},
	}

	cmd.Flags().StringVarP(&conference, "conference", "c", string(models.DefaultConference), conferenceUsage("Target venue for the analysis prompt"))
	cmd.Flags().StringVar(&blueprint, "blueprint", "", "Architecture blueprint text")
	cmd.Flags().StringVar(&blueprintFile, "blueprint-file", "", "Analysis YAML (from run --analysis-out) or a plain-text blueprint")
	cmd.Flags().StringVar(&instruction, "instruction", "", "Edit instruction for the refinement prompt")

	return cmd
}

// resolveBlueprint prefers the inline flag. A file is read as an analysis
// YAML first and as raw blueprint text otherwise.
func resolveBlueprint(inline, path string) (string, error) {
	if inline != "" || path == "" {
		return inline, nil
	}
	if analysis, err := export.ReadAnalysisYAML(path); err == nil && analysis.ArchitectureBlueprint != "" {
		return analysis.ArchitectureBlueprint, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read blueprint file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
