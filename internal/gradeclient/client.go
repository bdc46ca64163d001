// Package gradeclient calls a remote grading endpoint over HTTP.
package gradeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pavelanni/examquiz/internal/grader"
	"github.com/pavelanni/examquiz/internal/model"
)

const defaultTimeout = 10 * time.Second

type gradeRequest struct {
	QuestionID string       `json:"question_id"`
	UserAnswer model.Symbol `json:"user_answer"`
}

type gradeResponse struct {
	IsCorrect *bool `json:"is_correct"`
}

// Client posts answers to {baseURL}/grade.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client. A nil httpClient uses one with a default timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// Grade implements grader.Remote.
func (c *Client) Grade(ctx context.Context, questionID string, answer model.Symbol) (grader.RemoteResult, error) {
	body, err := json.Marshal(gradeRequest{QuestionID: questionID, UserAnswer: answer})
	if err != nil {
		return grader.RemoteResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/grade", bytes.NewReader(body))
	if err != nil {
		return grader.RemoteResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return grader.RemoteResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return grader.RemoteResult{}, fmt.Errorf("grading endpoint returned status %d", resp.StatusCode)
	}

	var payload gradeResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return grader.RemoteResult{}, fmt.Errorf("decode grading response: %w", err)
	}
	return grader.RemoteResult{IsCorrect: payload.IsCorrect}, nil
}
