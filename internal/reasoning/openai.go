package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"

	maxAttempts      = 3
	initialBackoff   = 2 * time.Second
	maxBackoff       = 10 * time.Second
	costPer1KInput   = 0.00015
	costPer1KOutput  = 0.0006
	approxCharsToken = 4
)

// OpenAIOption configures the OpenAI client.
type OpenAIOption func(*OpenAIClient)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) OpenAIOption {
	return func(c *OpenAIClient) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithModel sets the model to request.
func WithModel(model string) OpenAIOption {
	return func(c *OpenAIClient) {
		c.model = model
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) OpenAIOption {
	return func(c *OpenAIClient) {
		c.httpClient = httpClient
	}
}

// OpenAIClient talks to an OpenAI-compatible chat-completions endpoint in
// strict-JSON response mode.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
	retryDelay time.Duration
}

var _ Client = (*OpenAIClient)(nil)

// NewOpenAI creates a reasoning client.
func NewOpenAI(apiKey string, logger *slog.Logger, opts ...OpenAIOption) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}
	c := &OpenAIClient{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
		retryDelay: initialBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *OpenAIClient) Model() string { return c.model }

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Propose sends the mismatch context to the service with retry on transient
// failure: up to 3 attempts, exponential backoff starting at 2s capped at
// 10s. A well-formed answer is returned as-is, including can_heal=false.
func (c *OpenAIClient) Propose(ctx context.Context, req *Request) (*Proposal, error) {
	prompt := buildUserPrompt(req)

	var lastErr error
	backoff := c.retryDelay

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			c.logger.Warn("retrying reasoning call",
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		content, retryable, err := c.complete(ctx, prompt)
		if err != nil {
			lastErr = err
			if !retryable {
				return nil, err
			}
			continue
		}

		proposal, err := parseProposal([]byte(content))
		if err != nil {
			return nil, err
		}
		proposal.Cost = estimateCost(len(systemPrompt)+len(prompt), len(content))
		return proposal, nil
	}

	return nil, fmt.Errorf("reasoning service unavailable after %d attempts: %w", maxAttempts, lastErr)
}

// complete performs one chat-completions call. The second return reports
// whether the failure is transient and worth retrying.
func (c *OpenAIClient) complete(ctx context.Context, prompt string) (string, bool, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature:    0.1,
		ResponseFormat: &respFormat{Type: "json_object"},
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", true, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return "", retryable, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", false, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", false, fmt.Errorf("response contained no choices")
	}

	return result.Choices[0].Message.Content, false, nil
}

// estimateCost approximates spend from character counts (roughly four
// characters per token).
func estimateCost(inputChars, outputChars int) float64 {
	inputTokens := float64(inputChars / approxCharsToken)
	outputTokens := float64(outputChars / approxCharsToken)
	cost := inputTokens/1000*costPer1KInput + outputTokens/1000*costPer1KOutput
	return float64(int(cost*1e6+0.5)) / 1e6
}
