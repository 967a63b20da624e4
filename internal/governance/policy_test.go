package governance

import (
	"context"
	"testing"
)

func TestDefaultPolicyEngine_Evaluate(t *testing.T) {
	engine := NewDefaultPolicyEngine()
	ctx := context.Background()

	// Test Allow (Default)
	res1, err := engine.Evaluate(ctx, Request{Provider: "tavily", Query: "battery chemistry"})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res1.Effect != EffectAllow {
		t.Errorf("Expected EffectAllow, got %s", res1.Effect)
	}

	// Test Deny provider
	engine.DenyProvider("DuckDuckGo")
	res2, err := engine.Evaluate(ctx, Request{Provider: "duckduckgo", Query: "anything"})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res2.Effect != EffectDeny {
		t.Errorf("Expected EffectDeny, got %s", res2.Effect)
	}
}

func TestNewPolicyEngine_Patterns(t *testing.T) {
	engine, err := NewPolicyEngine(nil, []string{`social\s+security`, `passport`})
	if err != nil {
		t.Fatalf("NewPolicyEngine failed: %v", err)
	}

	res, _ := engine.Evaluate(context.Background(), Request{Query: "Find my Social  Security number"})
	if res.Effect != EffectDeny {
		t.Errorf("Expected EffectDeny, got %s", res.Effect)
	}
	if res.Reason != `Query matches restricted pattern: social\s+security` {
		t.Errorf("Unexpected reason: %s", res.Reason)
	}

	if _, err := NewPolicyEngine(nil, []string{"("}); err == nil {
		t.Error("Expected error for invalid pattern")
	}
}

func TestNewPolicyEngine_Providers(t *testing.T) {
	engine, err := NewPolicyEngine([]string{" DuckDuckGo ", ""}, nil)
	if err != nil {
		t.Fatalf("NewPolicyEngine failed: %v", err)
	}

	res, _ := engine.Evaluate(context.Background(), Request{Provider: "duckduckgo", Query: "battery"})
	if res.Effect != EffectDeny {
		t.Errorf("Expected EffectDeny, got %s", res.Effect)
	}
	res, _ = engine.Evaluate(context.Background(), Request{Provider: "tavily", Query: "battery"})
	if res.Effect != EffectAllow {
		t.Errorf("Expected EffectAllow, got %s", res.Effect)
	}
}
