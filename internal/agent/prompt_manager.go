package agent

import (
	"bytes"
	"embed"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
)

//go:embed prompts/planner_system.md prompts/planner_user.tmpl
var defaultPrompts embed.FS

const (
	plannerSystemFile = "planner_system.md"
	plannerUserFile   = "planner_user.tmpl"
)

// PromptManager loads planner prompts from a directory, falling back to the
// built-in prompts for anything the directory does not provide.
type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

// GetPlannerPrompt returns the system prompt: planner_system.md followed by
// any other markdown files in the directory (locale.md and constraints.md
// first, then alphabetical).
func (pm *PromptManager) GetPlannerPrompt() (string, error) {
	files, err := os.ReadDir(pm.Directory)
	if err != nil {
		if os.IsNotExist(err) || pm.Directory == "" {
			return readDefault(plannerSystemFile)
		}
		return "", fmt.Errorf("failed to read prompts directory: %w", err)
	}

	order := map[string]int{
		plannerSystemFile: 1,
		"locale.md":       2,
		"constraints.md":  3,
	}

	sort.Slice(files, func(i, j int) bool {
		oi, okI := order[files[i].Name()]
		oj, okJ := order[files[j].Name()]
		if okI && okJ {
			return oi < oj
		}
		if okI {
			return true
		}
		if okJ {
			return false
		}
		return files[i].Name() < files[j].Name()
	})

	var contents []string
	hasSystem := false
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".md") {
			continue
		}
		path := filepath.Join(pm.Directory, f.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Warning: Failed to read prompt file %s: %v", path, err)
			continue
		}
		if f.Name() == plannerSystemFile {
			hasSystem = true
		}
		contents = append(contents, strings.TrimSpace(string(data)))
	}

	if !hasSystem {
		def, err := readDefault(plannerSystemFile)
		if err != nil {
			return "", err
		}
		contents = append([]string{def}, contents...)
	}

	return strings.Join(contents, "\n\n---\n\n"), nil
}

// RenderPlannerUser renders the user prompt for a planning request.
func (pm *PromptManager) RenderPlannerUser(topic, locale, context string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(pm.Directory, plannerUserFile))
	if err != nil {
		def, derr := readDefault(plannerUserFile)
		if derr != nil {
			return "", derr
		}
		raw = []byte(def)
	}

	tmpl, err := template.New(plannerUserFile).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return "", fmt.Errorf("failed to parse planner user template: %w", err)
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, struct {
		Topic, Locale, Context string
	}{topic, locale, strings.TrimSpace(context)})
	if err != nil {
		return "", fmt.Errorf("failed to render planner user template: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func readDefault(name string) (string, error) {
	data, err := defaultPrompts.ReadFile("prompts/" + name)
	if err != nil {
		return "", fmt.Errorf("failed to read built-in prompt %s: %w", name, err)
	}
	return strings.TrimSpace(string(data)), nil
}
