package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPromptManager_GetPlannerPrompt(t *testing.T) {
	tempDir := t.TempDir()

	files := map[string]string{
		"planner_system.md": "System Content",
		"locale.md":         "Locale Content",
		"constraints.md":    "Constraints Content",
		"extra.md":          "Extra Content",
		"notes.txt":         "Ignored Content",
	}

	for name, content := range files {
		err := os.WriteFile(filepath.Join(tempDir, name), []byte(content), 0644)
		if err != nil {
			t.Fatal(err)
		}
	}

	pm := NewPromptManager(tempDir)
	prompt, err := pm.GetPlannerPrompt()
	if err != nil {
		t.Fatal(err)
	}

	for _, part := range []string{"System Content", "Locale Content", "Constraints Content", "Extra Content"} {
		if !strings.Contains(prompt, part) {
			t.Errorf("Prompt missing expected part: %s", part)
		}
	}
	if strings.Contains(prompt, "Ignored Content") {
		t.Error("Non-markdown files should be skipped")
	}

	// Verify order
	if strings.Index(prompt, "System Content") >= strings.Index(prompt, "Locale Content") {
		t.Error("System should be before Locale")
	}
	if strings.Index(prompt, "Locale Content") >= strings.Index(prompt, "Constraints Content") {
		t.Error("Locale should be before Constraints")
	}
	if strings.Index(prompt, "Constraints Content") >= strings.Index(prompt, "Extra Content") {
		t.Error("Constraints should be before Extra")
	}
}

func TestPromptManager_Defaults(t *testing.T) {
	pm := NewPromptManager(filepath.Join(t.TempDir(), "missing"))

	prompt, err := pm.GetPlannerPrompt()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(prompt, "Planner agent") {
		t.Errorf("expected built-in system prompt, got %q", prompt)
	}

	user, err := pm.RenderPlannerUser("Why is the sky blue?", "en-US", "")
	if err != nil {
		t.Fatal(err)
	}
	want := "User Question: Why is the sky blue?\nLocale: en-US\nContext Hints: (none)"
	if user != want {
		t.Errorf("got %q, want %q", user, want)
	}
}

func TestPromptManager_SystemFallbackWithExtras(t *testing.T) {
	tempDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tempDir, "constraints.md"), []byte("Only peer-reviewed sources"), 0644); err != nil {
		t.Fatal(err)
	}

	prompt, err := NewPromptManager(tempDir).GetPlannerPrompt()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(prompt, "You are the Planner agent") {
		t.Errorf("built-in system prompt should lead, got %q", prompt[:40])
	}
	if !strings.HasSuffix(prompt, "Only peer-reviewed sources") {
		t.Error("extra prompt file should follow the system prompt")
	}
}
