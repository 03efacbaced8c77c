package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/lehigh-university-libraries/figurebench/internal/models"
	"github.com/lehigh-university-libraries/figurebench/internal/providers"
	"github.com/lehigh-university-libraries/figurebench/internal/workflow"
	"github.com/spf13/cobra"
)

type batchResult struct {
	paper string
	state models.WorkflowState
	err   error
}

func newBatchCmd() *cobra.Command {
	var (
		inputDir    string
		outputDir   string
		conference  string
		concurrency int
		flags       providerFlags
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Generate diagrams for every paper in a directory",
		Long: `Runs the analysis and generation pipeline for each paper in a directory.

Every paper gets its own session and its own output folder holding the
diagram, analysis YAML, history archive and HTML report.`,
		Example: `  # Four papers at a time
  figurebench batch --input papers/ --output figures/ --concurrency 4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := models.ParseConference(conference)
			if err != nil {
				return err
			}
			if concurrency < 1 {
				return fmt.Errorf("--concurrency must be at least 1")
			}
			papers, err := listPapers(inputDir)
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

			results := executeBatch(cmd.Context(), gateway, papers, outputDir, conf, concurrency, cfg)

			failed := 0
			for _, r := range results {
				status := "ok"
				if r.err != nil {
					failed++
					status = r.err.Error()
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-40s %-14s %s\n", filepath.Base(r.paper), r.state.Stage, status)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nResults saved to: %s\n", outputDir)
			if failed > 0 {
				return fmt.Errorf("%d of %d papers failed", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&inputDir, "input", "i", "", "Directory of papers (required)")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "figures", "Output directory")
	cmd.Flags().StringVarP(&conference, "conference", "c", string(models.DefaultConference), conferenceUsage("Target venue"))
	cmd.Flags().IntVar(&concurrency, "concurrency", 2, "Papers processed in parallel")
	flags.register(cmd)
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

// listPapers returns the regular files in dir, sorted by name.
func listPapers(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory: %w", err)
	}
	var papers []string
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			papers = append(papers, filepath.Join(dir, e.Name()))
		}
	}
	if len(papers) == 0 {
		return nil, fmt.Errorf("no papers found in %s", dir)
	}
	return papers, nil
}

func executeBatch(ctx context.Context, gateway providers.Gateway, papers []string, outputDir string, conference models.Conference, concurrency int, cfg providers.Config) []batchResult {
	slog.Info("Processing papers", "count", len(papers), "concurrency", concurrency)

	names := outputNames(papers)

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, concurrency)
	resultsChan := make(chan batchResult, len(papers))

	for i, paper := range papers {
		wg.Add(1)
		go func(idx int, paper string) {
			defer wg.Done()
			semaphore <- struct{}{}        // Acquire
			defer func() { <-semaphore }() // Release

			slog.Info("Processing paper", "paper", paper, "progress", fmt.Sprintf("%d/%d", idx+1, len(papers)))
			resultsChan <- processPaper(ctx, gateway, paper, filepath.Join(outputDir, names[paper]), conference, cfg)
		}(i, paper)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	results := make([]batchResult, 0, len(papers))
	for r := range resultsChan {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].paper < results[j].paper })
	return results
}

// outputNames maps each paper to its output folder name. Folders are named
// after the file without its extension unless two papers share that stem, in
// which case the full file name is used.
func outputNames(papers []string) map[string]string {
	stems := make(map[string]int, len(papers))
	for _, paper := range papers {
		stems[paperStem(paper)]++
	}
	names := make(map[string]string, len(papers))
	for _, paper := range papers {
		name := paperStem(paper)
		if stems[name] > 1 {
			name = filepath.Base(paper)
		}
		names[paper] = name
	}
	return names
}

func paperStem(paper string) string {
	return strings.TrimSuffix(filepath.Base(paper), filepath.Ext(paper))
}

func processPaper(ctx context.Context, gateway providers.Gateway, paper, dir string, conference models.Conference, cfg providers.Config) batchResult {
	result := batchResult{paper: paper, state: models.DefaultState()}

	doc, err := loadDocument(paper, "")
	if err != nil {
		result.err = err
		return result
	}

	out := pipelineOutputs{
		image:    filepath.Join(dir, "diagram.png"),
		analysis: filepath.Join(dir, "analysis.yaml"),
		archive:  filepath.Join(dir, "history.parquet"),
		report:   filepath.Join(dir, "report.html"),
	}

	session := workflow.New(gateway,
		workflow.WithTimeout(cfg.Timeout),
		workflow.WithLogger(slog.Default().With("paper", filepath.Base(paper))),
	)
	result.state, result.err = runPipeline(ctx, session, doc, conference, nil, out)
	if result.err != nil {
		slog.Error("Paper failed", "paper", paper, "err", result.err, "retryable", workflow.IsRetryable(result.err))
	}
	return result
}
