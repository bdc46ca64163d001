package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/examquiz/internal/grader"
	"github.com/pavelanni/examquiz/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// ChoiceResult holds the LLM's assessment of a single selection.
type ChoiceResult struct {
	IsCorrect *bool  `json:"is_correct"`
	Feedback  string `json:"feedback"`
}

// QuestionLookup resolves question IDs for prompt building.
type QuestionLookup interface {
	GetQuestion(id string) (model.Question, error)
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api       *openai.Client
	model     string
	questions QuestionLookup
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string, questions QuestionLookup) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:       openai.NewClientWithConfig(config),
		model:     modelName,
		questions: questions,
	}
}

// Grade implements grader.Remote by asking the model to judge the selection.
func (c *Client) Grade(ctx context.Context, questionID string, answer model.Symbol) (grader.RemoteResult, error) {
	q, err := c.questions.GetQuestion(questionID)
	if err != nil {
		return grader.RemoteResult{}, fmt.Errorf("lookup question %s: %w", questionID, err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: buildGradePrompt(q)},
			{Role: openai.ChatMessageRoleUser, Content: "Selected answer: " + string(answer)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		return grader.RemoteResult{}, fmt.Errorf("LLM grading API call: %w", err)
	}

	if len(resp.Choices) == 0 {
		return grader.RemoteResult{}, fmt.Errorf("LLM returned no choices for grading")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "question_id", questionID, "raw", raw)

	var result ChoiceResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return grader.RemoteResult{}, fmt.Errorf("parse grading response: %w (raw: %s)", err, raw)
	}
	verdict := "none"
	if result.IsCorrect != nil {
		verdict = fmt.Sprint(*result.IsCorrect)
	}
	slog.Debug("LLM verdict",
		"question_id", questionID,
		"answer", answer,
		"is_correct", verdict,
		"feedback", result.Feedback,
	)
	return grader.RemoteResult{IsCorrect: result.IsCorrect}, nil
}

// Ping checks that the endpoint answers a model listing.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func buildGradePrompt(q model.Question) string {
	var sb strings.Builder
	sb.WriteString("You are grading a multiple-choice exam question.\n\n")
	sb.WriteString("QUESTION: " + q.QuestionText + "\n\n")
	if q.SourceMaterial != "" {
		sb.WriteString("SOURCE MATERIAL:\n" + q.SourceMaterial + "\n\n")
	}
	sb.WriteString("CHOICES:\n")
	for _, sym := range model.Symbols {
		if text, ok := q.Choices[sym]; ok {
			sb.WriteString(string(sym) + " " + text + "\n")
		}
	}
	if key := q.Answer(); key != "" {
		sb.WriteString("\nANSWER KEY: " + string(key) + "\n")
		sb.WriteString("Accept a different choice only if it is equally correct.\n")
	}
	sb.WriteString("\nRespond ONLY with a JSON object:\n")
	sb.WriteString(`{"is_correct": <true/false>, "feedback": "<one sentence>"}`)
	sb.WriteString("\n")
	return sb.String()
}
