// Package workflow drives a research run through its five nodes:
// coordinator, planner, human_review, researcher and reporter.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Lin-Guanguo/my-deep-research/internal/agent"
	"github.com/Lin-Guanguo/my-deep-research/internal/observability"
	"github.com/Lin-Guanguo/my-deep-research/internal/plan"
	"github.com/Lin-Guanguo/my-deep-research/internal/report"
	"github.com/Lin-Guanguo/my-deep-research/internal/telemetry"
)

// Node identifies a workflow node.
type Node int

const (
	NodeCoordinator Node = iota
	NodePlanner
	NodeHumanReview
	NodeResearcher
	NodeReporter
	NodeEnd
)

func (n Node) String() string {
	switch n {
	case NodeCoordinator:
		return "coordinator"
	case NodePlanner:
		return "planner"
	case NodeHumanReview:
		return "human_review"
	case NodeResearcher:
		return "researcher"
	case NodeReporter:
		return "reporter"
	case NodeEnd:
		return "end"
	}
	return fmt.Sprintf("node(%d)", int(n))
}

// Next returns the node that follows n given the state n left behind.
func Next(n Node, st *State) Node {
	switch n {
	case NodeCoordinator:
		return NodePlanner
	case NodePlanner:
		return NodeHumanReview
	case NodeHumanReview:
		switch st.Metadata.LastReviewAction {
		case ActionRequestChanges:
			return NodePlanner
		case ActionAbort:
			return NodeEnd
		}
		return NodeResearcher
	case NodeResearcher:
		if st.Metadata.ResearcherStatus == ResearcherCompletedStep &&
			SelectNextStep(st.Plan, st.CurrentStepID) != nil {
			return NodeResearcher
		}
		return NodeReporter
	}
	return NodeEnd
}

// Planner produces a plan for a topic.
type Planner interface {
	GeneratePlan(ctx context.Context, topic, locale, contextText string) (*plan.Plan, error)
}

// Researcher executes one plan step.
type Researcher interface {
	RunStep(ctx context.Context, rc agent.ResearchContext) (*agent.ResearchResult, error)
}

// NodeError is a fatal failure inside a node.
type NodeError struct {
	Node Node
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s node failed: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// Options are the runtime knobs of the engine.
type Options struct {
	Locale      string
	HumanReview bool
	// MaxIterations caps researcher invocations per run.
	MaxIterations   int
	MaxResults      int
	SearchTimeout   time.Duration
	MaxNotes        *int
	DegradationHint string
}

// DefaultOptions mirrors the default runtime configuration.
func DefaultOptions() Options {
	return Options{
		Locale:        DefaultLocale,
		HumanReview:   true,
		MaxIterations: 6,
		MaxResults:    3,
		SearchTimeout: 8 * time.Second,
	}
}

// Result is the outcome of a run. The state is handed back to the caller.
type Result struct {
	State   *State
	Aborted bool
	Report  string
}

// Engine runs the workflow. An Engine holds no per-run state and may run
// several independent states concurrently.
type Engine struct {
	Planner    Planner
	Researcher Researcher
	Reviewer   Reviewer
	Options    Options
	Logger     *observability.Logger

	now func() time.Time
}

func NewEngine(planner Planner, researcher Researcher, reviewer Reviewer, opts Options, logger *observability.Logger) *Engine {
	return &Engine{
		Planner:    planner,
		Researcher: researcher,
		Reviewer:   reviewer,
		Options:    opts,
		Logger:     logger,
		now:        time.Now,
	}
}

// Run takes ownership of st and drives it until the reporter finishes or
// the reviewer aborts. Only planner and reviewer failures are fatal. On
// failure the process status keeps the node the run stopped in.
func (e *Engine) Run(ctx context.Context, st *State) (*Result, error) {
	ctx = observability.WithRunID(ctx, st.RunID)

	researchCalls := 0
	node := NodeCoordinator
	for node != NodeEnd {
		if node == NodeResearcher && researchCalls >= e.maxIterations() {
			e.log().Warn("researcher iteration limit reached",
				zap.String("run_id", st.RunID),
				zap.Int("limit", e.maxIterations()))
			st.Metadata.ResearcherStatus = ResearcherIterationLimit
			node = NodeReporter
		}

		observability.SetStatus(observability.Stage(node.String()), st.Topic)
		if err := ctx.Err(); err != nil {
			return nil, &NodeError{Node: node, Err: err}
		}
		e.log().LogNode(st.RunID, node.String())

		var err error
		switch node {
		case NodeCoordinator:
			e.coordinator(st)
		case NodePlanner:
			err = e.planner(ctx, st)
		case NodeHumanReview:
			err = e.humanReview(ctx, st)
		case NodeResearcher:
			researchCalls++
			err = e.researcher(ctx, st)
		case NodeReporter:
			e.reporter(st)
		}
		if err != nil {
			return nil, &NodeError{Node: node, Err: err}
		}
		node = Next(node, st)
	}

	observability.SetStatus(observability.StageIdle, "")
	res := &Result{
		State:   st,
		Aborted: st.Metadata.LastReviewAction == ActionAbort,
		Report:  st.Metadata.ReportMarkdown,
	}
	return res, nil
}

func (e *Engine) log() *observability.Logger {
	if e.Logger == nil {
		return observability.NewNop()
	}
	return e.Logger
}

func (e *Engine) reviewer() Reviewer {
	if e.Reviewer == nil {
		return AutoAccept
	}
	return e.Reviewer
}

func (e *Engine) clock() time.Time {
	if e.now == nil {
		return time.Now()
	}
	return e.now()
}

func (e *Engine) maxIterations() int {
	if e.Options.MaxIterations <= 0 {
		return DefaultOptions().MaxIterations
	}
	return e.Options.MaxIterations
}

func (e *Engine) locale(st *State) string {
	if st.Locale != "" {
		return st.Locale
	}
	if e.Options.Locale != "" {
		return e.Options.Locale
	}
	return DefaultLocale
}

func (e *Engine) coordinator(st *State) {
	st.Locale = e.locale(st)
	if st.Metadata.ReviewLog == nil {
		st.Metadata.ReviewLog = []ReviewLogEntry{}
	}
	if st.Scratchpad == nil {
		st.Scratchpad = []plan.ResearchNote{}
	}
	if st.Metadata.ResearcherDegradation == "" {
		st.Metadata.ResearcherDegradation = e.Options.DegradationHint
	}
}

func (e *Engine) planner(ctx context.Context, st *State) error {
	p, err := e.Planner.GeneratePlan(ctx, st.Topic, e.locale(st), st.Metadata.Context)
	if err != nil {
		return err
	}
	st.Plan = p
	st.CurrentStepID = ""
	st.PendingHumanReview = e.Options.HumanReview
	st.Metadata.LastReviewAction = ""
	return nil
}

func (e *Engine) humanReview(ctx context.Context, st *State) error {
	if !e.Options.HumanReview || !st.PendingHumanReview {
		st.Metadata.LastReviewAction = ActionAcceptPlan
		st.PendingHumanReview = false
		return nil
	}

	attempt := len(st.Metadata.ReviewLog) + 1
	decision, err := e.reviewer().Review(ctx, ReviewRequest{
		RunID:   st.RunID,
		Topic:   st.Topic,
		Locale:  st.Locale,
		Context: st.Metadata.Context,
		Attempt: attempt,
		Plan:    st.Plan.Clone(),
	})
	if err != nil {
		return fmt.Errorf("review attempt %d: %w", attempt, err)
	}
	if !decision.Action.Valid() {
		e.log().Warn("unrecognized review action, accepting plan",
			zap.String("run_id", st.RunID),
			zap.Int("attempt", attempt),
			zap.String("action", string(decision.Action)))
		decision.Action = ActionAcceptPlan
	}

	feedback := trim(decision.Feedback)
	st.Metadata.ReviewLog = append(st.Metadata.ReviewLog, ReviewLogEntry{
		Attempt:  attempt,
		Action:   decision.Action,
		Feedback: feedback,
	})
	st.Metadata.LastReviewAction = decision.Action
	st.PendingHumanReview = false
	e.log().LogReview(st.RunID, attempt, string(decision.Action), feedback)

	switch decision.Action {
	case ActionRequestChanges:
		if feedback != "" {
			st.Metadata.Context = MergeContext(st.Metadata.Context, feedback)
		}
	case ActionAcceptPlan:
		if st.Metadata.ApprovalTimestamp == nil {
			ts := e.clock().UTC()
			st.Metadata.ApprovalTimestamp = &ts
		}
	case ActionAbort:
		st.Plan = nil
	}
	return nil
}

// researcher executes exactly one step. Research failures block the step
// and are recorded; they never abort the run.
func (e *Engine) researcher(ctx context.Context, st *State) error {
	if st.Plan == nil {
		st.Metadata.ResearcherStatus = ResearcherMissingPlan
		return nil
	}
	step := SelectNextStep(st.Plan, st.CurrentStepID)
	if step == nil {
		st.Metadata.ResearcherStatus = ResearcherNoPendingSteps
		return nil
	}

	stepID := step.ID
	st.CurrentStepID = stepID
	if err := st.Plan.MarkStepStatus(stepID, plan.StatusInProgress); err != nil {
		return err
	}
	e.log().LogStep(st.RunID, stepID, string(plan.StatusInProgress), len(step.Notes), "")

	rc := agent.ResearchContext{
		Topic:                 st.Topic,
		Locale:                e.locale(st),
		Step:                  *step,
		MaxResults:            e.Options.MaxResults,
		Timeout:               e.Options.SearchTimeout,
		MaxNotes:              e.Options.MaxNotes,
		BudgetTokensRemaining: st.Plan.Metadata.BudgetTokens,
		BudgetCostLimit:       st.Plan.Metadata.BudgetCostUSD,
		DegradationHint:       st.Metadata.ResearcherDegradation,
	}

	res, err := e.Researcher.RunStep(ctx, rc)
	if err == nil && len(res.Notes) == 0 {
		err = &agent.ResearcherError{StepID: stepID, Msg: "researcher returned no notes"}
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return e.blockStep(st, stepID, err)
	}

	for i, note := range res.Notes {
		ref := ""
		if i < len(res.References) {
			ref = res.References[i]
		}
		if err := st.Plan.AppendNote(stepID, note, ref); err != nil {
			return err
		}
		st.Scratchpad = append(st.Scratchpad, note)
	}
	if err := st.Plan.MarkStepStatus(stepID, plan.StatusCompleted); err != nil {
		return err
	}
	_ = st.Plan.SetExecutionResult(stepID, fmt.Sprintf("%d notes from %d results", len(res.Notes), res.TotalResults))

	if st.Metadata.ResearcherMetrics == nil {
		st.Metadata.ResearcherMetrics = &telemetry.Metrics{}
	}
	st.Metadata.ResearcherMetrics.Record(telemetry.Call{
		StepID:          stepID,
		Query:           res.Query,
		NoteCount:       len(res.Notes),
		Measured:        true,
		Duration:        res.Duration,
		ResultCount:     res.TotalResults,
		DegradationMode: res.DegradationMode,
	})
	st.Metadata.ResearcherHistory = append(st.Metadata.ResearcherHistory, HistoryEntry{
		StepID:          stepID,
		Query:           res.Query,
		NoteCount:       len(res.Notes),
		DurationSeconds: res.Duration.Seconds(),
		DegradationMode: res.DegradationMode,
	})
	st.Metadata.ResearcherStatus = ResearcherCompletedStep
	st.Metadata.ResearcherLastQuery = res.Query
	st.Metadata.LastResearcherStep = stepID
	if res.DegradationMode != "" {
		st.Metadata.ResearcherDegradation = res.DegradationMode
	}

	e.log().LogStep(st.RunID, stepID, string(plan.StatusCompleted), len(res.Notes), res.Query)
	return nil
}

func (e *Engine) blockStep(st *State, stepID string, cause error) error {
	if err := st.Plan.MarkStepStatus(stepID, plan.StatusBlocked); err != nil {
		return err
	}
	msg := cause.Error()
	_ = st.Plan.SetExecutionResult(stepID, msg)
	st.Metadata.ResearcherErrors = append(st.Metadata.ResearcherErrors, msg)
	st.Metadata.ResearcherStatus = ResearcherBlocked

	var rerr *agent.ResearcherError
	timeout := errors.As(cause, &rerr) && rerr.Timeout()
	e.log().Warn("research step blocked",
		zap.String("run_id", st.RunID),
		zap.String("step_id", stepID),
		zap.Bool("timeout", timeout),
		zap.Error(cause))
	e.log().LogStep(st.RunID, stepID, string(plan.StatusBlocked), 0, msg)
	return nil
}

func (e *Engine) reporter(st *State) {
	summary := telemetry.Summarize(st.Plan, st.Metadata.ResearcherMetrics)
	st.Metadata.ReporterSummary = &summary

	if st.Plan != nil {
		st.Metadata.ReportIssues, st.Metadata.ReportFlags = report.ValidatePlan(st.Plan, telemetry.LowConfidenceThreshold)
		st.Metadata.ReportMarkdown = report.RenderMarkdown(st.Plan, &summary, e.locale(st))
	}
	e.log().LogReport(st.RunID, summary.TotalNotes, summary.BlockedSteps)
}
