package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Lin-Guanguo/my-deep-research/internal/observability"
	"github.com/Lin-Guanguo/my-deep-research/internal/report"
	"github.com/Lin-Guanguo/my-deep-research/internal/workflow"
)

// Messenger is a chat transport that a reviewer talks through (Telegram, etc.)
type Messenger interface {
	// Send delivers text to the review chat
	Send(ctx context.Context, text string) error
	// Receive blocks until the next reply arrives or ctx is done
	Receive(ctx context.Context) (string, error)
}

// ErrNoDecision is returned when a reviewer runs out of input before choosing an action.
var ErrNoDecision = errors.New("reviewer gave no decision")

var actionAliases = map[string]workflow.ReviewAction{
	"accept":          workflow.ActionAcceptPlan,
	"accept_plan":     workflow.ActionAcceptPlan,
	"approve":         workflow.ActionAcceptPlan,
	"changes":         workflow.ActionRequestChanges,
	"request_changes": workflow.ActionRequestChanges,
	"revise":          workflow.ActionRequestChanges,
	"abort":           workflow.ActionAbort,
	"cancel":          workflow.ActionAbort,
}

// ParseDecision reads a reply of the form "<action>[:] [feedback]". The action
// is matched case-insensitively against the review actions and their short
// aliases; a leading slash (chat command) is ignored.
func ParseDecision(text string) (workflow.Decision, error) {
	text = strings.TrimSpace(text)
	head, rest, _ := strings.Cut(text, "\n")
	word, feedback := head, ""
	if i := strings.IndexAny(head, " \t:"); i >= 0 {
		word, feedback = head[:i], head[i+1:]
	}
	if rest != "" {
		feedback += "\n" + rest
	}

	key := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(word), "/"))
	action, ok := actionAliases[key]
	if !ok {
		return workflow.Decision{}, fmt.Errorf("unknown review action %q", word)
	}
	return workflow.Decision{Action: action, Feedback: strings.TrimSpace(feedback)}, nil
}

// ChatReviewer runs plan review over a Messenger. Invalid replies are
// answered with usage help and the reviewer keeps waiting.
type ChatReviewer struct {
	Messenger Messenger
	Logger    *observability.Logger
}

func NewChatReviewer(m Messenger, logger *observability.Logger) *ChatReviewer {
	return &ChatReviewer{Messenger: m, Logger: logger}
}

const chatUsage = "Reply with one of:\n" +
	"  accept\n" +
	"  changes <feedback>\n" +
	"  abort [reason]"

func (r *ChatReviewer) Review(ctx context.Context, req workflow.ReviewRequest) (workflow.Decision, error) {
	msg := fmt.Sprintf("Plan review #%d (run %s, locale %s)\n\n%s\n%s",
		req.Attempt, req.RunID, req.Locale, report.PlanOutline(req.Plan), chatUsage)
	if err := r.Messenger.Send(ctx, msg); err != nil {
		return workflow.Decision{}, fmt.Errorf("send plan: %w", err)
	}

	for {
		reply, err := r.Messenger.Receive(ctx)
		if err != nil {
			return workflow.Decision{}, err
		}
		d, err := ParseDecision(reply)
		if err == nil && d.Action == workflow.ActionRequestChanges && d.Feedback == "" {
			err = errors.New("changes need feedback")
		}
		if err != nil {
			r.log().Warn("invalid review reply", zap.String("reply", reply), zap.Error(err))
			if err := r.Messenger.Send(ctx, err.Error()+"\n"+chatUsage); err != nil {
				return workflow.Decision{}, fmt.Errorf("send usage: %w", err)
			}
			continue
		}
		if err := r.Messenger.Send(ctx, "Recorded "+string(d.Action)); err != nil {
			r.log().Warn("ack failed", zap.Error(err))
		}
		return d, nil
	}
}

func (r *ChatReviewer) log() *observability.Logger {
	if r.Logger == nil {
		return observability.NewNop()
	}
	return r.Logger
}
