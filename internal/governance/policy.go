package governance

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request contains the search about to be issued for a plan step.
type Request struct {
	Provider string
	Query    string
	StepID   string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine evaluates outgoing search queries against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// DefaultPolicyEngine denies whole providers or queries matching a pattern.
type DefaultPolicyEngine struct {
	DeniedProviders map[string]bool
	DeniedRegex     []*regexp.Regexp
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		DeniedProviders: make(map[string]bool),
		DeniedRegex:     make([]*regexp.Regexp, 0),
	}
}

// NewPolicyEngine builds an engine from the configured denied providers and
// query patterns. Both are matched case-insensitively.
func NewPolicyEngine(providers, patterns []string) (*DefaultPolicyEngine, error) {
	e := NewDefaultPolicyEngine()
	for _, name := range providers {
		if name = strings.TrimSpace(name); name != "" {
			e.DenyProvider(name)
		}
	}
	for _, p := range patterns {
		if err := e.DenyQueries(p); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *DefaultPolicyEngine) DenyProvider(name string) {
	e.DeniedProviders[strings.ToLower(name)] = true
}

func (e *DefaultPolicyEngine) DenyQueries(pattern string) error {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return fmt.Errorf("invalid deny pattern %q: %w", pattern, err)
	}
	e.DeniedRegex = append(e.DeniedRegex, re)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	if e.DeniedProviders[strings.ToLower(req.Provider)] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Provider '%s' is restricted by search policy", req.Provider),
		}, nil
	}

	for _, re := range e.DeniedRegex {
		if re.MatchString(req.Query) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("Query matches restricted pattern: %s", strings.TrimPrefix(re.String(), "(?i)")),
			}, nil
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "Approved by default policy",
	}, nil
}
