// Package llm implements the text-understanding collaborator over an
// OpenAI-compatible chat-completions endpoint (LMStudio, Ollama, or any
// hosted provider exposing the same shape). One external call per
// interpretation, caller-supplied deadline, zero automatic retries: a failed
// or slow call surfaces as a typed error for the clinician to retry by hand,
// because silent retries on an inference backend risk duplicate clinical
// suggestions.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/wardround/wardround/internal/domain/wardupdate"
)

// Config holds the collaborator endpoint settings.
type Config struct {
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
}

// Client calls the chat-completions endpoint and parses the structured diff
// out of the model's reply. Implements wardupdate.Interpreter.
type Client struct {
	cfg    Config
	http   *http.Client
	logger zerolog.Logger
}

// NewClient creates a collaborator client. Timeout <= 0 defaults to 60s;
// this is the transport ceiling — callers still control the per-call
// deadline through context.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// interpretationPayload is the JSON object the model is instructed to emit.
type interpretationPayload struct {
	Diff             *wardupdate.Diff `json:"diff"`
	AssistantMessage string           `json:"assistant_message"`
	HumanSummary     string           `json:"human_summary"`
}

// Interpret makes the single collaborator call for one turn.
func (c *Client) Interpret(ctx context.Context, req wardupdate.InterpretRequest) (*wardupdate.Interpretation, error) {
	messages, err := c.buildMessages(req)
	if err != nil {
		return nil, &wardupdate.InterpretError{Reason: "building prompt", Err: err}
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: 0.1,
	})
	if err != nil {
		return nil, &wardupdate.InterpretError{Reason: "encoding request", Err: err}
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &wardupdate.InterpretError{Reason: "building request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w after %s", wardupdate.ErrInterpretTimeout, time.Since(start).Round(time.Millisecond))
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &wardupdate.InterpretError{Reason: "calling model endpoint", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &wardupdate.InterpretError{Reason: "reading response", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &wardupdate.InterpretError{
			Reason: fmt.Sprintf("model endpoint returned status %d", resp.StatusCode),
		}
	}

	var chat chatResponse
	if err := json.Unmarshal(raw, &chat); err != nil {
		return nil, &wardupdate.InterpretError{Reason: "decoding response", Err: err}
	}
	if chat.Error != nil {
		return nil, &wardupdate.InterpretError{Reason: chat.Error.Message}
	}
	if len(chat.Choices) == 0 {
		return nil, &wardupdate.InterpretError{Reason: "model returned no choices"}
	}

	payload, err := parsePayload(chat.Choices[0].Message.Content)
	if err != nil {
		return nil, &wardupdate.InterpretError{Reason: "model output is not a valid diff payload", Err: err}
	}

	c.logger.Debug().
		Dur("latency", time.Since(start)).
		Bool("has_diff", payload.Diff != nil).
		Msg("interpretation complete")

	return &wardupdate.Interpretation{
		Diff:             payload.Diff,
		AssistantMessage: payload.AssistantMessage,
		HumanSummary:     payload.HumanSummary,
	}, nil
}

// parsePayload extracts the JSON object from the model reply, tolerating
// markdown code fences and surrounding prose.
func parsePayload(content string) (*interpretationPayload, error) {
	content = strings.TrimSpace(content)
	if i := strings.Index(content, "```"); i >= 0 {
		content = content[i+3:]
		content = strings.TrimPrefix(content, "json")
		if j := strings.Index(content, "```"); j >= 0 {
			content = content[:j]
		}
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in model output")
	}

	var payload interpretationPayload
	if err := json.Unmarshal([]byte(content[start:end+1]), &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
