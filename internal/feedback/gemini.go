package feedback

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/adaptiq/adaptiq-engine/internal/attempt"
	"github.com/adaptiq/adaptiq-engine/internal/quiz"
)

// Generator produces human-readable feedback for a completed attempt. It is
// an opaque external collaborator: it may fail, in which case feedback is
// simply omitted from the attempt.
type Generator interface {
	Generate(ctx context.Context, qz quiz.Quiz, a attempt.Attempt) (string, error)
}

type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGemini(ctx context.Context, apiKey, modelName string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if modelName == "" {
		modelName = "gemini-2.0-flash"
	}
	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.4)
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Close() { g.client.Close() }

func (g *Gemini) Generate(ctx context.Context, qz quiz.Quiz, a attempt.Attempt) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(buildPrompt(qz, a)))
	if err != nil {
		return "", fmt.Errorf("generate feedback: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("generate feedback: empty response")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", fmt.Errorf("generate feedback: no text parts")
	}
	return out, nil
}

func buildPrompt(qz quiz.Quiz, a attempt.Attempt) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a tutor. A learner finished the quiz %q scoring %d/%d (passed: %v).\n",
		qz.Title, a.Score, a.MaxScore, a.Passed)
	sb.WriteString("Per-question results:\n")
	if a.Result != nil {
		for _, row := range a.Result.Breakdown {
			q, _ := qz.QuestionByID(row.QuestionID)
			fmt.Fprintf(&sb, "- %s (answered=%v, correct=%v, partial=%v, %d/%d points)\n",
				q.Prompt, row.Answered, row.Correct, row.PartialCredit, row.EarnedPoints, row.PossiblePoints)
		}
	}
	sb.WriteString("Write 3-5 sentences of encouraging, specific feedback on what to review next. Plain text only.")
	return sb.String()
}
