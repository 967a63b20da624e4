package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/Lin-Guanguo/my-deep-research/internal/plan"
)

// ReviewAction is a reviewer's directive for a proposed plan.
type ReviewAction string

const (
	ActionAcceptPlan     ReviewAction = "ACCEPT_PLAN"
	ActionRequestChanges ReviewAction = "REQUEST_CHANGES"
	ActionAbort          ReviewAction = "ABORT"
)

// ParseReviewAction accepts an action name in any case.
func ParseReviewAction(s string) (ReviewAction, error) {
	a := ReviewAction(strings.ToUpper(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", fmt.Errorf("unknown review action %q", s)
	}
	return a, nil
}

func (a ReviewAction) Valid() bool {
	switch a {
	case ActionAcceptPlan, ActionRequestChanges, ActionAbort:
		return true
	}
	return false
}

// ReviewLogEntry is one reviewer decision. Attempt is 1-indexed.
type ReviewLogEntry struct {
	Attempt  int          `json:"attempt"`
	Action   ReviewAction `json:"action"`
	Feedback string       `json:"feedback"`
}

// Decision is what a reviewer returns.
type Decision struct {
	Action   ReviewAction
	Feedback string
}

// ReviewRequest is the reviewer's view of the run. Plan is a copy.
type ReviewRequest struct {
	RunID   string
	Topic   string
	Locale  string
	Context string
	Attempt int
	Plan    *plan.Plan
}

// Reviewer gates a proposed plan. Review may block on user input.
type Reviewer interface {
	Review(ctx context.Context, req ReviewRequest) (Decision, error)
}

// ReviewerFunc adapts a function to Reviewer.
type ReviewerFunc func(ctx context.Context, req ReviewRequest) (Decision, error)

func (f ReviewerFunc) Review(ctx context.Context, req ReviewRequest) (Decision, error) {
	return f(ctx, req)
}

// AutoAccept approves every plan.
var AutoAccept Reviewer = ReviewerFunc(func(context.Context, ReviewRequest) (Decision, error) {
	return Decision{Action: ActionAcceptPlan}, nil
})

// ExceededAttemptsFeedback is the feedback recorded when LimitAttempts aborts.
const ExceededAttemptsFeedback = "Exceeded max iterations"

// LimitAttempts aborts the run once more than n reviews have been requested.
func LimitAttempts(r Reviewer, n int) Reviewer {
	return ReviewerFunc(func(ctx context.Context, req ReviewRequest) (Decision, error) {
		if req.Attempt > n {
			return Decision{Action: ActionAbort, Feedback: ExceededAttemptsFeedback}, nil
		}
		return r.Review(ctx, req)
	})
}

func trim(s string) string { return strings.TrimSpace(s) }
