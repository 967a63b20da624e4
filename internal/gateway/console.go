package gateway

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Lin-Guanguo/my-deep-research/internal/report"
	"github.com/Lin-Guanguo/my-deep-research/internal/workflow"
)

const actionPrompt = "Select action [ACCEPT_PLAN | REQUEST_CHANGES | ABORT]: "

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444444")).Padding(0, 1)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
)

// ConsoleReviewer asks for a decision on a terminal. It re-prompts until a
// valid action is entered; REQUEST_CHANGES reads feedback lines up to the
// first blank line.
type ConsoleReviewer struct {
	in  *bufio.Reader
	out io.Writer
}

func NewConsoleReviewer(in io.Reader, out io.Writer) *ConsoleReviewer {
	return &ConsoleReviewer{in: bufio.NewReader(in), out: out}
}

func (c *ConsoleReviewer) Review(ctx context.Context, req workflow.ReviewRequest) (workflow.Decision, error) {
	header := headerStyle.Render(fmt.Sprintf("Proposed Plan (attempt %d)", req.Attempt))
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, boxStyle.Render(header+"\n"+strings.TrimRight(report.PlanOutline(req.Plan), "\n")))

	var action workflow.ReviewAction
	for {
		if err := ctx.Err(); err != nil {
			return workflow.Decision{}, err
		}
		fmt.Fprint(c.out, actionPrompt)
		line, err := c.readLine()
		if err != nil {
			return workflow.Decision{}, err
		}
		if action, err = workflow.ParseReviewAction(line); err == nil {
			break
		}
		fmt.Fprintln(c.out, warnStyle.Render("[warn] Invalid action. Please choose ACCEPT_PLAN, REQUEST_CHANGES, or ABORT."))
	}

	d := workflow.Decision{Action: action}
	if action != workflow.ActionRequestChanges {
		return d, nil
	}

	fmt.Fprintln(c.out, "Enter feedback (finish with empty line):")
	var lines []string
	for {
		line, err := c.readLine()
		if err != nil && !errors.Is(err, ErrNoDecision) {
			return workflow.Decision{}, err
		}
		if err != nil || strings.TrimSpace(line) == "" {
			break
		}
		lines = append(lines, strings.TrimSpace(line))
	}
	d.Feedback = strings.Join(lines, "\n")
	return d, nil
}

// readLine returns the next input line. ErrNoDecision marks end of input.
func (c *ConsoleReviewer) readLine() (string, error) {
	line, err := c.in.ReadString('\n')
	if err == io.EOF {
		if line == "" {
			return "", ErrNoDecision
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
