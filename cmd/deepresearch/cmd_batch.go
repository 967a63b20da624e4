package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Lin-Guanguo/my-deep-research/internal/workflow"
)

var batchFlags struct {
	parallel int
	noStore  bool
}

var batchCmd = &cobra.Command{
	Use:   "batch <questions.yaml>",
	Short: "Research a list of questions in parallel",
	Long: `Runs every question of a YAML list as an independent, auto-accepted run.

Example file:
  - question: State of solid-state batteries
    locale: en-US
  - question: 固态电池的商业化进展
    context: focus on 2024`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().IntVar(&batchFlags.parallel, "parallel", 0, "Runs in flight at once (default from config)")
	batchCmd.Flags().BoolVar(&batchFlags.noStore, "no-store", false, "Do not persist the runs")
}

func loadQuestions(path string) ([]workflow.Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var questions []workflow.Question
	if err := yaml.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	kept := questions[:0]
	for _, q := range questions {
		if q.Topic = strings.TrimSpace(q.Topic); q.Topic != "" {
			kept = append(kept, q)
		}
	}
	if len(kept) == 0 {
		return nil, errors.New("no questions found")
	}
	return kept, nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	questions, err := loadQuestions(args[0])
	if err != nil {
		return err
	}

	planner, err := newPlanner()
	if err != nil {
		return err
	}
	researcher, closeResearcher, err := newResearcher()
	if err != nil {
		return err
	}
	defer closeResearcher()

	parallel := batchFlags.parallel
	if parallel <= 0 {
		parallel = cfg.Runtime.BatchParallel
	}

	engine := workflow.NewEngine(planner, researcher, workflow.AutoAccept, engineOptions(), logger)
	results := engine.RunBatch(ctx, questions, parallel)

	out := cmd.OutOrStdout()
	reportDir := filepath.Join(cfg.Storage.OutputDir, "reports")
	failed := 0
	for i, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(out, "%2d. FAIL  %s\n      %v\n", i+1, r.Question.Topic, r.Err)
			continue
		}
		st := r.Result.State
		path := filepath.Join(reportDir, st.RunID+".md")
		if err := writeReport(path, r.Result.Report); err != nil {
			logger.Warn("write report failed", zap.String("path", path), zap.Error(err))
		}
		fmt.Fprintf(out, "%2d. OK    %s\n      %s, report %s\n", i+1, r.Question.Topic, st.Metadata.ResearcherStatus, path)

		if !batchFlags.noStore {
			if err := persistRun(ctx, st); err != nil {
				logger.Warn("persist run failed", zap.String("run_id", st.RunID), zap.Error(err))
			}
		}
	}

	fmt.Fprintf(out, "\n%d/%d runs finished.\n", len(results)-failed, len(results))
	if failed > 0 {
		return fmt.Errorf("%d run(s) failed", failed)
	}
	return nil
}

func writeReport(path, md string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(md), 0644)
}
