package plan

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrStepNotFound      = errors.New("step not found")
	ErrInvalidTransition = errors.New("invalid step status transition")
	ErrEmptySource       = errors.New("note source must not be empty")
)

// StepType tells the researcher how a step should be handled.
type StepType string

const (
	StepResearch   StepType = "RESEARCH"
	StepProcess    StepType = "PROCESS"
	StepSynthesize StepType = "SYNTHESIZE"
	StepReview     StepType = "REVIEW"
)

func (t StepType) Valid() bool {
	switch t {
	case StepResearch, StepProcess, StepSynthesize, StepReview:
		return true
	}
	return false
}

// StepStatus is the runtime execution status of a step.
type StepStatus string

const (
	StatusPending    StepStatus = "PENDING"
	StatusInProgress StepStatus = "IN_PROGRESS"
	StatusCompleted  StepStatus = "COMPLETED"
	StatusBlocked    StepStatus = "BLOCKED"
)

func (s StepStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusBlocked:
		return true
	}
	return false
}

// CanTransition reports whether a step may move from s to next.
// Identity moves are always allowed; COMPLETED is terminal and BLOCKED
// may only be resumed.
func (s StepStatus) CanTransition(next StepStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusPending:
		return next == StatusInProgress
	case StatusInProgress:
		return next == StatusCompleted || next == StatusBlocked
	case StatusBlocked:
		return next == StatusInProgress
	}
	return false
}

// ResearchNote is one piece of evidence captured for a step.
type ResearchNote struct {
	Source     string   `json:"source"`
	Claim      string   `json:"claim"`
	Evidence   *string  `json:"evidence,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Todo       *string  `json:"todo,omitempty"`
}

// NoteOption sets an optional field on a note under construction.
type NoteOption func(*ResearchNote)

func WithEvidence(evidence string) NoteOption {
	return func(n *ResearchNote) {
		if evidence != "" {
			n.Evidence = &evidence
		}
	}
}

func WithConfidence(confidence float64) NoteOption {
	return func(n *ResearchNote) {
		n.Confidence = &confidence
	}
}

func WithTodo(todo string) NoteOption {
	return func(n *ResearchNote) {
		if todo != "" {
			n.Todo = &todo
		}
	}
}

// NewNote builds a note, rejecting an empty source or a confidence outside [0, 1].
func NewNote(source, claim string, opts ...NoteOption) (ResearchNote, error) {
	if strings.TrimSpace(source) == "" {
		return ResearchNote{}, ErrEmptySource
	}
	n := ResearchNote{Source: source, Claim: claim}
	for _, opt := range opts {
		opt(&n)
	}
	if n.Confidence != nil && (*n.Confidence < 0 || *n.Confidence > 1) {
		return ResearchNote{}, fmt.Errorf("note confidence %.2f outside [0, 1]", *n.Confidence)
	}
	return n, nil
}

// EvidenceText returns the evidence excerpt or "".
func (n ResearchNote) EvidenceText() string {
	if n.Evidence == nil {
		return ""
	}
	return *n.Evidence
}

// Step is a single actionable unit of a plan.
type Step struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	StepType        StepType       `json:"step_type"`
	ExpectedOutcome string         `json:"expected_outcome"`
	Status          StepStatus     `json:"status"`
	Notes           []ResearchNote `json:"notes"`
	References      []string       `json:"references"`
	ExecutionResult *string        `json:"execution_result,omitempty"`
}

// Metadata carries auxiliary plan attributes.
type Metadata struct {
	Locale        string   `json:"locale,omitempty"`
	Reviewer      *string  `json:"reviewer,omitempty"`
	BudgetTokens  *int     `json:"budget_tokens,omitempty"`
	BudgetCostUSD *float64 `json:"budget_cost_usd,omitempty"`
}

// Plan is the structured output of the planning stage.
type Plan struct {
	Topic       string   `json:"topic"`
	Goal        string   `json:"goal"`
	Steps       []Step   `json:"steps"`
	Assumptions []string `json:"assumptions"`
	Risks       []string `json:"risks"`
	Metadata    Metadata `json:"metadata"`
}

// Step returns the step with the given id. The pointer aliases the plan's
// storage, so mutations through it are visible on the plan.
func (p *Plan) Step(id string) (*Step, error) {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrStepNotFound, id)
}

// MarkStepStatus moves a step to status, rejecting illegal transitions.
func (p *Plan) MarkStepStatus(id string, status StepStatus) error {
	step, err := p.Step(id)
	if err != nil {
		return err
	}
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}
	if !step.Status.CanTransition(status) {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, id, step.Status, status)
	}
	step.Status = status
	return nil
}

// AppendNote attaches a note and, when non-empty, a reference to a step.
// Notes and references are independent sequences.
func (p *Plan) AppendNote(id string, note ResearchNote, reference string) error {
	step, err := p.Step(id)
	if err != nil {
		return err
	}
	step.Notes = append(step.Notes, note)
	if reference != "" {
		step.References = append(step.References, reference)
	}
	return nil
}

// SetExecutionResult records a free-form summary of what happened on a step.
func (p *Plan) SetExecutionResult(id, result string) error {
	step, err := p.Step(id)
	if err != nil {
		return err
	}
	step.ExecutionResult = &result
	return nil
}

// NoteCount returns the number of notes across all steps.
func (p *Plan) NoteCount() int {
	total := 0
	for _, s := range p.Steps {
		total += len(s.Notes)
	}
	return total
}

// Clone returns a deep copy of the plan.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Assumptions = append([]string(nil), p.Assumptions...)
	cp.Risks = append([]string(nil), p.Risks...)
	cp.Steps = make([]Step, len(p.Steps))
	for i, s := range p.Steps {
		s.Notes = append([]ResearchNote(nil), s.Notes...)
		s.References = append([]string(nil), s.References...)
		cp.Steps[i] = s
	}
	return &cp
}
