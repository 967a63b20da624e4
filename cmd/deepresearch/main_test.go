package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lin-Guanguo/my-deep-research/internal/observability"
	"github.com/Lin-Guanguo/my-deep-research/internal/plan"
	"github.com/Lin-Guanguo/my-deep-research/internal/store"
	"github.com/Lin-Guanguo/my-deep-research/internal/workflow"
	"github.com/Lin-Guanguo/my-deep-research/pkg/config"
)

func TestLoadQuestions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- question: "  Solid-state batteries "
  locale: en-US
- question: ""
- question: 固态电池
  context: focus on 2024
`), 0644))

	qs, err := loadQuestions(path)
	require.NoError(t, err)
	assert.Equal(t, []workflow.Question{
		{Topic: "Solid-state batteries", Locale: "en-US"},
		{Topic: "固态电池", Context: "focus on 2024"},
	}, qs)

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("[]\n"), 0644))
	_, err = loadQuestions(empty)
	assert.Error(t, err)
}

func TestEngineOptions(t *testing.T) {
	cfg = config.Default()
	notes := 2
	cfg.Search.MaxNotes = &notes
	cfg.Runtime.Degradation = "low_cost"

	opts := engineOptions()
	assert.Equal(t, "zh-CN", opts.Locale)
	assert.True(t, opts.HumanReview)
	assert.Equal(t, 6, opts.MaxIterations)
	assert.Equal(t, 3, opts.MaxResults)
	assert.Equal(t, &notes, opts.MaxNotes)
	assert.Equal(t, "low_cost", opts.DegradationHint)
}

func TestNewReviewer(t *testing.T) {
	cfg = config.Default()
	logger = observability.NewNop()

	r, cleanup, err := newReviewer("auto")
	require.NoError(t, err)
	cleanup()
	assert.NotNil(t, r)

	_, _, err = newReviewer("telegram")
	assert.Error(t, err, "telegram needs a token and chat id")

	_, _, err = newReviewer("email")
	assert.Error(t, err)
}

func TestValidateAndReplayCommands(t *testing.T) {
	dir := t.TempDir()
	cfg = config.Default()
	cfg.Storage.PlansPath = filepath.Join(dir, "plans.jsonl")
	cfg.Storage.OutputDir = dir
	logPath, outputDir = "", ""

	var out bytes.Buffer
	validateCmd.SetOut(&out)
	require.NoError(t, runValidate(validateCmd, nil))
	assert.Contains(t, out.String(), "Log file not found")
	assert.FileExists(t, filepath.Join(dir, validateOutputFile))

	out.Reset()
	replayCmd.SetOut(&out)
	require.NoError(t, runReplay(replayCmd, nil))
	assert.Contains(t, out.String(), "Log file not found")
	assert.FileExists(t, filepath.Join(dir, replayOutputFile))
}

func TestInterruptNotice(t *testing.T) {
	observability.SetStatus(observability.Stage("researcher"), "Solid-state batteries")

	msg := interruptNotice(fmt.Errorf("researcher node failed: %w", context.Canceled))
	assert.Contains(t, msg, "interrupted in researcher (Solid-state batteries)")

	assert.Empty(t, interruptNotice(errors.New("planner failed")))
}

func TestPersistRun(t *testing.T) {
	dir := t.TempDir()
	cfg = config.Default()
	cfg.Storage.PlansPath = filepath.Join(dir, "plans.jsonl")
	cfg.Storage.DBPath = filepath.Join(dir, "db", "runs.db")
	logger = observability.NewNop()

	st := workflow.NewState("Solid-state batteries", "en-US", "")
	st.Plan = &plan.Plan{
		Topic: "Solid-state batteries",
		Goal:  "Summarize status",
		Steps: []plan.Step{{
			ID:              "step-1",
			Title:           "Survey",
			StepType:        plan.StepResearch,
			ExpectedOutcome: "Vendor list",
			Status:          plan.StatusPending,
		}},
	}
	st.Metadata.ResearcherStatus = workflow.ResearcherCompletedStep

	require.NoError(t, persistRun(context.Background(), st))

	records, bad, err := store.LoadJSONL(cfg.Storage.PlansPath)
	require.NoError(t, err)
	assert.Empty(t, bad)
	require.Len(t, records, 1)
	assert.Equal(t, "Survey", records[0].Plan.Steps[0].Title)

	runs, err := store.NewRunStore(cfg.Storage.DBPath)
	require.NoError(t, err)
	defer runs.Close()
	list, err := runs.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, workflow.ResearcherCompletedStep, list[0].Status)
}
