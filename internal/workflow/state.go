package workflow

import (
	"time"

	"github.com/google/uuid"

	"github.com/Lin-Guanguo/my-deep-research/internal/plan"
	"github.com/Lin-Guanguo/my-deep-research/internal/report"
	"github.com/Lin-Guanguo/my-deep-research/internal/telemetry"
)

// DefaultLocale is used when neither the caller nor the options pick one.
const DefaultLocale = "zh-CN"

// Researcher node outcomes recorded in Metadata.ResearcherStatus.
const (
	ResearcherMissingPlan    = "missing_plan"
	ResearcherNoPendingSteps = "no_pending_steps"
	ResearcherCompletedStep  = "completed_step"
	ResearcherBlocked        = "blocked"
	ResearcherIterationLimit = "iteration_limit"
)

// HistoryEntry records one successful researcher invocation.
type HistoryEntry struct {
	StepID          string  `json:"step_id"`
	Query           string  `json:"query"`
	NoteCount       int     `json:"note_count"`
	DurationSeconds float64 `json:"duration_seconds"`
	DegradationMode string  `json:"degradation_mode,omitempty"`
}

// Metadata is the run-level bookkeeping shared by the nodes.
type Metadata struct {
	Context           string           `json:"context"`
	ReviewLog         []ReviewLogEntry `json:"review_log"`
	LastReviewAction  ReviewAction     `json:"last_review_action,omitempty"`
	ApprovalTimestamp *time.Time       `json:"approval_timestamp,omitempty"`

	ResearcherStatus      string             `json:"researcher_status,omitempty"`
	ResearcherErrors      []string           `json:"researcher_errors,omitempty"`
	ResearcherHistory     []HistoryEntry     `json:"researcher_history,omitempty"`
	ResearcherMetrics     *telemetry.Metrics `json:"researcher_metrics,omitempty"`
	ResearcherLastQuery   string             `json:"researcher_last_query,omitempty"`
	LastResearcherStep    string             `json:"last_researcher_step,omitempty"`
	ResearcherDegradation string             `json:"researcher_degradation,omitempty"`

	ReporterSummary *telemetry.Summary         `json:"reporter_summary,omitempty"`
	ReportMarkdown  string                     `json:"report_markdown,omitempty"`
	ReportIssues    []report.Issue             `json:"report_issues,omitempty"`
	ReportFlags     []report.LowConfidenceFlag `json:"report_flags,omitempty"`

	// Extra holds host-supplied keys the workflow does not interpret.
	Extra map[string]string `json:"extra,omitempty"`
}

// State is the single object threaded through every node of a run.
type State struct {
	RunID              string              `json:"run_id"`
	Topic              string              `json:"topic"`
	Locale             string              `json:"locale"`
	Plan               *plan.Plan          `json:"plan,omitempty"`
	CurrentStepID      string              `json:"current_step_id,omitempty"`
	Scratchpad         []plan.ResearchNote `json:"scratchpad"`
	PendingHumanReview bool                `json:"pending_human_review"`
	Metadata           Metadata            `json:"metadata"`
}

// NewState seeds the state for a new run.
func NewState(topic, locale, context string) *State {
	return &State{
		RunID:      uuid.NewString(),
		Topic:      topic,
		Locale:     locale,
		Scratchpad: []plan.ResearchNote{},
		Metadata:   Metadata{Context: context},
	}
}

// SelectNextStep picks the step the researcher should execute: the current
// step if it is not yet COMPLETED, otherwise the first non-COMPLETED step in
// plan order. It returns nil when every step is COMPLETED.
func SelectNextStep(p *plan.Plan, currentStepID string) *plan.Step {
	if p == nil {
		return nil
	}
	if currentStepID != "" {
		if s, err := p.Step(currentStepID); err == nil && s.Status != plan.StatusCompleted {
			return s
		}
	}
	for i := range p.Steps {
		if p.Steps[i].Status != plan.StatusCompleted {
			return &p.Steps[i]
		}
	}
	return nil
}

// MergeContext appends reviewer feedback to the planner context.
func MergeContext(existing, feedback string) string {
	existing = trim(existing)
	feedback = trim(feedback)
	switch {
	case existing == "":
		return feedback
	case feedback == "":
		return existing
	}
	return existing + "\nReviewer feedback: " + feedback
}
