package gateway

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lin-Guanguo/my-deep-research/internal/plan"
	"github.com/Lin-Guanguo/my-deep-research/internal/workflow"
)

func reviewRequest() workflow.ReviewRequest {
	return workflow.ReviewRequest{
		RunID:   "run-1",
		Topic:   "Solid-state batteries",
		Locale:  "en-US",
		Attempt: 1,
		Plan: &plan.Plan{
			Topic: "Solid-state batteries",
			Goal:  "Summarize status",
			Steps: []plan.Step{{ID: "step-1", Title: "Survey", StepType: plan.StepResearch, ExpectedOutcome: "Vendor list"}},
		},
	}
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		in       string
		action   workflow.ReviewAction
		feedback string
	}{
		{"accept", workflow.ActionAcceptPlan, ""},
		{"  ACCEPT_PLAN ", workflow.ActionAcceptPlan, ""},
		{"/approve", workflow.ActionAcceptPlan, ""},
		{"changes: add more detail", workflow.ActionRequestChanges, "add more detail"},
		{"REQUEST_CHANGES cover costs\nand timelines", workflow.ActionRequestChanges, "cover costs\nand timelines"},
		{"abort off topic", workflow.ActionAbort, "off topic"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := ParseDecision(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.action, d.Action)
			assert.Equal(t, tt.feedback, d.Feedback)
		})
	}

	_, err := ParseDecision("maybe later")
	assert.Error(t, err)
	_, err = ParseDecision("")
	assert.Error(t, err)
}

type fakeMessenger struct {
	replies []string
	sent    []string
}

func (f *fakeMessenger) Send(_ context.Context, text string) error {
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeMessenger) Receive(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(f.replies) == 0 {
		return "", ErrNoDecision
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r, nil
}

func TestChatReviewer(t *testing.T) {
	m := &fakeMessenger{replies: []string{"hmm", "changes", "changes: add costs"}}
	r := NewChatReviewer(m, nil)

	d, err := r.Review(context.Background(), reviewRequest())
	require.NoError(t, err)
	assert.Equal(t, workflow.Decision{Action: workflow.ActionRequestChanges, Feedback: "add costs"}, d)

	require.Len(t, m.sent, 4)
	assert.Contains(t, m.sent[0], "Plan review #1")
	assert.Contains(t, m.sent[0], "step-1 [RESEARCH] Survey")
	assert.Contains(t, m.sent[1], "unknown review action")
	assert.Contains(t, m.sent[2], "changes need feedback")
	assert.Equal(t, "Recorded REQUEST_CHANGES", m.sent[3])
}

func TestChatReviewer_ReceiveError(t *testing.T) {
	r := NewChatReviewer(&fakeMessenger{}, nil)
	_, err := r.Review(context.Background(), reviewRequest())
	assert.True(t, errors.Is(err, ErrNoDecision))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Review(ctx, reviewRequest())
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestConsoleReviewer(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  workflow.Decision
		warns int
	}{
		{"accept", "accept_plan\n", workflow.Decision{Action: workflow.ActionAcceptPlan}, 0},
		{"reprompt", "yes\n\nabort\n", workflow.Decision{Action: workflow.ActionAbort}, 2},
		{"feedback", "REQUEST_CHANGES\n  add costs \nand risks\n\nignored\n",
			workflow.Decision{Action: workflow.ActionRequestChanges, Feedback: "add costs\nand risks"}, 0},
		{"feedback at eof", "request_changes\nonly line", workflow.Decision{Action: workflow.ActionRequestChanges, Feedback: "only line"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			c := NewConsoleReviewer(strings.NewReader(tt.input), &out)
			d, err := c.Review(context.Background(), reviewRequest())
			require.NoError(t, err)
			assert.Equal(t, tt.want, d)
			assert.Contains(t, out.String(), "Goal: Summarize status")
			assert.Equal(t, tt.warns, strings.Count(out.String(), "Invalid action"))
		})
	}
}

func TestConsoleReviewer_EOF(t *testing.T) {
	c := NewConsoleReviewer(strings.NewReader("nope\n"), &bytes.Buffer{})
	_, err := c.Review(context.Background(), reviewRequest())
	assert.True(t, errors.Is(err, ErrNoDecision))
}
