package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Lin-Guanguo/my-deep-research/internal/report"
	"github.com/Lin-Guanguo/my-deep-research/internal/store"
	"github.com/Lin-Guanguo/my-deep-research/internal/telemetry"
)

var (
	runsLimit int
	showJSON  bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect runs stored in SQLite",
	RunE:  runRunsList,
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Render the report of a stored run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

func init() {
	runsCmd.PersistentFlags().IntVar(&runsLimit, "limit", 20, "Maximum runs to list (0 for all)")
	runsShowCmd.Flags().BoolVar(&showJSON, "json", false, "Print the stored record as JSON")
	runsCmd.AddCommand(runsListCmd, runsShowCmd)
}

func runRunsList(cmd *cobra.Command, args []string) error {
	runs, err := store.NewRunStore(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer runs.Close()

	list, err := runs.ListRuns(cmd.Context(), runsLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "No stored runs found.")
		return nil
	}
	fmt.Fprintln(out, strings.Repeat("─", 72))
	for _, r := range list {
		fmt.Fprintf(out, "%s  %s  %-6s %-16s %d steps\n", r.ID, r.CreatedAt.Format("2006-01-02 15:04"), r.Locale, r.Status, r.StepCount)
		fmt.Fprintf(out, "    %s\n", r.Question)
	}
	fmt.Fprintln(out, strings.Repeat("─", 72))
	fmt.Fprintf(out, "Total: %d runs\n", len(list))
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	runs, err := store.NewRunStore(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer runs.Close()

	rec, err := runs.GetRun(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if showJSON {
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	var metrics *telemetry.Metrics
	if rec.Telemetry != nil {
		metrics = rec.Telemetry.Researcher
	}
	summary := telemetry.Summarize(rec.Plan, metrics)
	printMarkdown(out, report.RenderMarkdown(rec.Plan, &summary, rec.Locale))
	return nil
}
