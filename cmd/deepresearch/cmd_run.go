package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Lin-Guanguo/my-deep-research/internal/observability"
	"github.com/Lin-Guanguo/my-deep-research/internal/report"
	"github.com/Lin-Guanguo/my-deep-research/internal/workflow"
)

var runFlags struct {
	question      string
	locale        string
	context       string
	autoAccept    bool
	noStore       bool
	maxIterations int
	degradation   string
	reviewer      string
	htmlPath      string
}

var runCmd = &cobra.Command{
	Use:   "run [question]",
	Short: "Research a single question",
	Long: `Runs one question through planner, human review, researcher and reporter.

Review actions:
  ACCEPT_PLAN      research the proposed plan
  REQUEST_CHANGES  send feedback to the planner and re-plan
  ABORT            stop without a report`,
	Args: cobra.ArbitraryArgs,
	RunE: runResearch,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runFlags.question, "question", "q", "", "Research question to plan")
	f.StringVar(&runFlags.locale, "locale", "", "Locale for prompts (default from config)")
	f.StringVar(&runFlags.context, "context", "", "Additional context hints for the planner")
	f.BoolVar(&runFlags.autoAccept, "auto-accept", false, "Skip manual review")
	f.BoolVar(&runFlags.noStore, "no-store", false, "Do not persist the run")
	f.IntVar(&runFlags.maxIterations, "max-iterations", 0, "Maximum researcher iterations (default from config)")
	f.StringVar(&runFlags.degradation, "degradation", "", "Degradation hint, e.g. low_cost")
	f.StringVar(&runFlags.reviewer, "reviewer", "", "Plan reviewer: console, telegram or auto")
	f.StringVar(&runFlags.htmlPath, "html", "", "Also write the report as HTML to this path")
}

func runResearch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	if observability.IsTerminal() {
		observability.PrintBanner(out)
	}

	question := strings.TrimSpace(runFlags.question)
	if question == "" {
		question = strings.TrimSpace(strings.Join(args, " "))
	}
	if question == "" {
		fmt.Fprint(out, "Enter research question: ")
		line, _ := stdin.ReadString('\n')
		question = strings.TrimSpace(line)
	}
	if question == "" {
		return errors.New("question is required")
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

	kind := runFlags.reviewer
	if runFlags.autoAccept {
		kind = "auto"
	}
	reviewer, closeReviewer, err := newReviewer(kind)
	if err != nil {
		return err
	}
	defer closeReviewer()

	opts := engineOptions()
	if runFlags.locale != "" {
		opts.Locale = runFlags.locale
	}
	if cmd.Flags().Changed("max-iterations") {
		opts.MaxIterations = runFlags.maxIterations
	}
	if runFlags.degradation != "" {
		opts.DegradationHint = runFlags.degradation
	}

	engine := workflow.NewEngine(planner, researcher, reviewer, opts, logger)
	st := workflow.NewState(question, opts.Locale, runFlags.context)
	res, err := engine.Run(ctx, st)
	if err != nil {
		if msg := interruptNotice(err); msg != "" {
			fmt.Fprintln(out, msg)
		}
		return err
	}
	if res.Aborted {
		fmt.Fprintln(out, "[info] Workflow aborted by reviewer.")
		return nil
	}

	printMarkdown(out, res.Report)
	fmt.Fprintf(out, "\n[success] Run %s finished (%s).\n", st.RunID, st.Metadata.ResearcherStatus)
	if errs := st.Metadata.ResearcherErrors; len(errs) > 0 {
		fmt.Fprintf(out, "[warn] %d research step(s) blocked:\n", len(errs))
		for _, e := range errs {
			fmt.Fprintf(out, "  - %s\n", e)
		}
	}

	if runFlags.htmlPath != "" {
		page := report.RenderHTML(st.Plan.Topic, res.Report)
		if err := writeReport(runFlags.htmlPath, string(page)); err != nil {
			return fmt.Errorf("write html report: %w", err)
		}
		fmt.Fprintf(out, "HTML report written to %s\n", runFlags.htmlPath)
	}

	if !runFlags.noStore {
		if err := persistRun(ctx, st); err != nil {
			return err
		}
		fmt.Fprintf(out, "Run stored in %s and %s\n", cfg.Storage.PlansPath, cfg.Storage.DBPath)
	}
	return nil
}

// interruptNotice reports the node an interrupted run stopped in. It returns
// "" when err is not a cancellation.
func interruptNotice(err error) string {
	if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return ""
	}
	stage, task, since := observability.GetStatus()
	return fmt.Sprintf("[warn] Run interrupted in %s (%s), stage entered %s ago.",
		stage, task, time.Since(since).Round(time.Second))
}
