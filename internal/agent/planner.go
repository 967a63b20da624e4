package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/Lin-Guanguo/my-deep-research/internal/observability"
	"github.com/Lin-Guanguo/my-deep-research/internal/plan"
)

const proposePlanTool = "propose_plan"

// Generation stages reported by GenerationError.
const (
	StageLLM      = "llm"
	StageParse    = "parse"
	StageValidate = "validate"
)

// GenerationError is returned when the planner cannot produce a valid plan.
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("plan generation failed (%s): %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// LLMPlanner asks a chat model for a research plan.
type LLMPlanner struct {
	Model       llms.Model
	ModelName   string
	Temperature float64
	// UseTools offers the propose_plan function. Models that ignore it may
	// still answer with plain JSON, which is accepted as well.
	UseTools bool
	Prompts  *PromptManager
	Logger   *observability.Logger
}

func NewLLMPlanner(model llms.Model, modelName string, prompts *PromptManager, logger *observability.Logger) *LLMPlanner {
	return &LLMPlanner{
		Model:     model,
		ModelName: modelName,
		UseTools:  true,
		Prompts:   prompts,
		Logger:    logger,
	}
}

// GeneratePlan returns a validated plan for topic. Steps start PENDING and
// metadata.locale falls back to the requested locale.
func (p *LLMPlanner) GeneratePlan(ctx context.Context, topic, locale, contextText string) (*plan.Plan, error) {
	prompts := p.Prompts
	if prompts == nil {
		prompts = NewPromptManager("")
	}
	system, err := prompts.GetPlannerPrompt()
	if err != nil {
		return nil, err
	}
	user, err := prompts.RenderPlannerUser(topic, locale, contextText)
	if err != nil {
		return nil, err
	}

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(system)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(user)},
		},
	}

	opts := []llms.CallOption{llms.WithTemperature(p.Temperature)}
	if p.ModelName != "" {
		opts = append(opts, llms.WithModel(p.ModelName))
	}
	if p.UseTools {
		opts = append(opts, llms.WithTools(plannerTools()))
	}

	p.log().Debug("requesting plan",
		zap.String("model", p.ModelName),
		zap.String("topic", topic),
		zap.String("locale", locale),
		zap.Bool("tools", p.UseTools))

	resp, err := p.Model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, &GenerationError{Stage: StageLLM, Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &GenerationError{Stage: StageLLM, Err: errors.New("model returned no choices")}
	}
	choice := resp.Choices[0]

	runID := observability.RunID(ctx)
	p.log().LogLLM(runID, user, choice.Content, choice.ToolCalls)
	p.logCost(runID, choice.GenerationInfo)

	raw := ""
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall != nil && tc.FunctionCall.Name == proposePlanTool {
			raw = tc.FunctionCall.Arguments
			break
		}
	}
	if raw == "" {
		raw = plan.ExtractJSON(choice.Content)
	}
	if strings.TrimSpace(raw) == "" {
		return nil, &GenerationError{Stage: StageParse, Err: errors.New("planner returned an empty response")}
	}

	result, err := plan.Parse([]byte(raw))
	if err != nil {
		var verr *plan.ValidationError
		if errors.As(err, &verr) {
			return nil, &GenerationError{Stage: StageValidate, Err: err}
		}
		return nil, &GenerationError{Stage: StageParse, Err: err}
	}
	if result.Metadata.Locale == "" {
		result.Metadata.Locale = locale
	}

	p.log().LogPlan(runID, result.Topic, result.Metadata.Locale, len(result.Steps))
	return result, nil
}

func (p *LLMPlanner) logCost(runID string, info map[string]any) {
	if info == nil {
		return
	}
	prompt, _ := info["PromptTokens"].(int)
	completion, _ := info["CompletionTokens"].(int)
	if prompt == 0 && completion == 0 {
		return
	}
	p.log().LogCost(runID, prompt, completion, p.ModelName)
}

func (p *LLMPlanner) log() *observability.Logger {
	if p.Logger == nil {
		return observability.NewNop()
	}
	return p.Logger
}

func plannerTools() []llms.Tool {
	str := map[string]any{"type": "string"}
	strList := map[string]any{"type": "array", "items": str}
	return []llms.Tool{
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        proposePlanTool,
				Description: "Submit a structured research plan for the user's question.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"topic":       str,
						"goal":        str,
						"assumptions": strList,
						"risks":       strList,
						"steps": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"id":    str,
									"title": str,
									"step_type": map[string]any{
										"type": "string",
										"enum": []string{
											string(plan.StepResearch),
											string(plan.StepProcess),
											string(plan.StepSynthesize),
											string(plan.StepReview),
										},
									},
									"expected_outcome": str,
								},
								"required": []string{"id", "title", "step_type", "expected_outcome"},
							},
						},
						"metadata": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"locale":          str,
								"budget_tokens":   map[string]any{"type": "integer"},
								"budget_cost_usd": map[string]any{"type": "number"},
								"reviewer":        map[string]any{"type": []string{"string", "null"}},
							},
						},
					},
					"required": []string{"topic", "goal", "steps"},
				},
			},
		},
	}
}
