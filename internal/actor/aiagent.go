package actor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/lyzr/workflow-engine/internal/graph"
	"github.com/lyzr/workflow-engine/internal/token"
	"google.golang.org/api/option"
)

// geminiAPIKeyEnv is the model credential env var named by the existing
// tooling (§6 "Environment variables"); its absence triggers simulation
// mode.
const geminiAPIKeyEnv = "GEMINI_API_KEY"

// generativeClient is the subset of the Gemini SDK the AI-agent strategy
// needs, mirroring dshills-langgraph-go's googleClient seam so the real
// call can be swapped out in tests.
type generativeClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type geminiClient struct {
	apiKey string
	model  string
}

func (c *geminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return "", fmt.Errorf("create gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(c.model)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
	}
	return sb.String(), nil
}

// AIAgentStrategy composes a prompt from an activity's description,
// resolved inputs and skills, and delegates to a language model; absent a
// credential it runs in simulation mode (§4.5).
type AIAgentStrategy struct {
	client generativeClient
	model  string
}

// NewAIAgentStrategy builds an AI-agent strategy from the process
// environment: GEMINI_API_KEY present selects the real Gemini backend,
// otherwise the strategy always simulates.
func NewAIAgentStrategy() *AIAgentStrategy {
	apiKey := os.Getenv(geminiAPIKeyEnv)
	if apiKey == "" {
		return &AIAgentStrategy{}
	}
	return &AIAgentStrategy{client: &geminiClient{apiKey: apiKey, model: "gemini-2.5-flash"}}
}

func (s *AIAgentStrategy) Execute(ctx context.Context, activity *graph.Activity, tok *token.Token, view *ContextView) (Outcome, error) {
	rm := captureStart()
	prompt := composePrompt(activity, tok, view)

	if s.client == nil {
		outputs := synthesizeOutputs(activity.OutputSchema)
		metrics := rm.finalize()
		metrics["simulated"] = true
		metrics["prompt_chars"] = len(prompt)
		return Outcome{Status: StatusOK, Outputs: outputs, Metrics: metrics}, nil
	}

	raw, err := s.client.Generate(ctx, prompt)
	if err != nil {
		return Outcome{Status: StatusFailed, Metrics: rm.finalize(), Err: err}, nil
	}

	outputs := parseModelResponse(raw)
	metrics := rm.finalize()
	metrics["simulated"] = false
	metrics["prompt_chars"] = len(prompt)
	metrics["response_chars"] = len(raw)
	return Outcome{Status: StatusOK, Outputs: outputs, Metrics: metrics}, nil
}

func composePrompt(activity *graph.Activity, tok *token.Token, view *ContextView) string {
	var sb strings.Builder
	sb.WriteString(activity.Description)
	sb.WriteString("\n\nInputs:\n")
	for _, key := range activity.Inputs {
		if v, ok := tok.Data[key]; ok {
			fmt.Fprintf(&sb, "- %s: %v\n", key, v)
		}
	}
	if len(activity.Skills) > 0 {
		sb.WriteString("\nSkills: " + strings.Join(activity.Skills, ", ") + "\n")
	}
	if len(activity.ToolRequirements) > 0 {
		sb.WriteString("Tools required: " + strings.Join(activity.ToolRequirements, ", ") + "\n")
	}
	return sb.String()
}

// parseModelResponse parses a structured-output response into the
// outputs map the activity's schema expects; a non-JSON response is
// carried verbatim under "text" rather than failing the activity.
func parseModelResponse(raw string) map[string]interface{} {
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &out); err == nil {
		return out
	}
	return map[string]interface{}{"text": raw}
}
