package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Lin-Guanguo/my-deep-research/internal/store"
)

const (
	validateOutputFile = "validate_review_log_output.json"
	replayOutputFile   = "replay_review_log_output.json"
)

var (
	logPath     string
	outputDir   string
	replayIndex int
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate persisted run records",
	RunE:  runValidate,
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Summarize one persisted run",
	Long: `Loads the run log and summarizes the selected record. --index counts from
the start, negative values count from the end, and out-of-range values are
clamped. Without --index the latest record is used.`,
	RunE: runReplay,
}

func init() {
	for _, c := range []*cobra.Command{validateCmd, replayCmd} {
		c.Flags().StringVar(&logPath, "log-path", "", "Run log JSONL file (default from config)")
		c.Flags().StringVar(&outputDir, "output-dir", "", "Directory for the JSON summary (default from config)")
	}
	replayCmd.Flags().IntVar(&replayIndex, "index", -1, "Record index to replay")
}

func logPaths() (string, string) {
	path, dir := logPath, outputDir
	if path == "" {
		path = cfg.Storage.PlansPath
	}
	if dir == "" {
		dir = cfg.Storage.OutputDir
	}
	return path, dir
}

func runValidate(cmd *cobra.Command, args []string) error {
	path, dir := logPaths()
	summary, err := store.ValidateLog(path)
	if err != nil {
		return err
	}
	written, err := store.WriteSummary(dir, validateOutputFile, summary)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Validated %d / %d records in %s.\n", summary.Valid, summary.Total, summary.LogPath)
	switch {
	case len(summary.Invalid) > 0:
		fmt.Fprintf(out, "Found %d invalid entries; see %s for details.\n", len(summary.Invalid), written)
	case summary.MissingFile:
		fmt.Fprintf(out, "Log file not found at %s. Summary saved to %s.\n", summary.LogPath, written)
	default:
		fmt.Fprintf(out, "Summary saved to %s\n", written)
	}
	return nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	path, dir := logPaths()
	var index *int
	if cmd.Flags().Changed("index") {
		index = &replayIndex
	}

	summary, err := store.Replay(path, index)
	if err != nil {
		return err
	}
	written, err := store.WriteSummary(dir, replayOutputFile, summary)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch {
	case summary.MissingFile:
		fmt.Fprintf(out, "Log file not found at %s.\n", summary.LogPath)
	case summary.SelectedRecord == nil:
		fmt.Fprintf(out, "No valid records in %s (%d invalid).\n", summary.LogPath, len(summary.ValidationErrors))
	default:
		rec := summary.SelectedRecord
		fmt.Fprintf(out, "Record %d of %d: %s (%s)\n", *summary.SelectedIndex+1, summary.RecordsAvailable, rec.Question, rec.Locale)
		fmt.Fprintf(out, "Goal: %s\n", rec.PlanGoal)
		for _, s := range rec.Steps {
			fmt.Fprintf(out, "  %s [%s] %s: %s, %d notes\n", s.ID, s.StepType, s.Title, s.Status, s.NoteCount)
		}
		for _, a := range rec.ReviewActions {
			fmt.Fprintf(out, "  review #%d %s %s\n", a.Attempt, a.Action, a.Feedback)
		}
	}
	fmt.Fprintf(out, "Summary saved to %s\n", written)
	return nil
}
