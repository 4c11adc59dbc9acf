package llama

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

	"golang.org/x/time/rate"
)

// defaultTimeout bounds a single completion request. Callers usually pass a
// tighter deadline on the context.
const defaultTimeout = 10 * time.Minute

// ErrTokenLimit reports that the server rejected a request because prompt
// plus requested output did not fit the model's context window. Callers
// shrink the input and retry.
var ErrTokenLimit = errors.New("request exceeds model context window")

// Client talks to a llama-server instance over its native completion API.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.httpClient = h
	}
}

// WithRateLimit caps outbound requests per second. Zero or negative means
// no limit.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// NewClient returns a client for the server at baseURL. The model name
// selects the chat template and sampling defaults.
func NewClient(baseURL, model string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

type completionRequest struct {
	Prompt          string   `json:"prompt"`
	NPredict        int      `json:"n_predict"`
	Temperature     float64  `json:"temperature"`
	Stop            []string `json:"stop,omitempty"`
	TopP            float64  `json:"top_p,omitempty"`
	TopK            int      `json:"top_k,omitempty"`
	PresencePenalty float64  `json:"presence_penalty,omitempty"`
	RepeatPenalty   float64  `json:"repeat_penalty,omitempty"`
	CachePrompt     bool     `json:"cache_prompt,omitempty"`
}

type completionResponse struct {
	Content string `json:"content"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate renders the chat template for the configured model, posts a
// completion request, and returns the raw model output.
func (c *Client) Generate(ctx context.Context, system, user string, maxTokens int, temperature float64) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}

	tmpl := templateFor(c.model)
	reqBody := completionRequest{
		Prompt:          tmpl.Render(system, user),
		NPredict:        maxTokens,
		Temperature:     temperature,
		Stop:            tmpl.Stop,
		TopP:            tmpl.TopP,
		TopK:            tmpl.TopK,
		PresencePenalty: tmpl.PresencePenalty,
		RepeatPenalty:   tmpl.RepeatPenalty,
		CachePrompt:     tmpl.CachePrompt,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/completion", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read completion response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if isTokenLimit(body) {
			return "", fmt.Errorf("completion status %d: %w", resp.StatusCode, ErrTokenLimit)
		}
		return "", fmt.Errorf("completion status %d: %s", resp.StatusCode, summarize(body))
	}

	var result completionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	return scrubThink(result.Content), nil
}

// scrubThink drops reasoning blocks that some models emit even in
// non-thinking mode, including an unclosed trailing block.
func scrubThink(s string) string {
	for {
		open := strings.Index(s, "<think>")
		if open < 0 {
			break
		}
		rest := s[open+len("<think>"):]
		end := strings.Index(rest, "</think>")
		if end < 0 {
			s = s[:open]
			break
		}
		s = s[:open] + rest[end+len("</think>"):]
	}
	return strings.TrimSpace(strings.ReplaceAll(s, "/no_think", ""))
}

// Health probes the server's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// isTokenLimit recognizes llama-server context overflow errors, which arrive
// as 400 or 500 responses mentioning the context size.
func isTokenLimit(body []byte) bool {
	msg := string(body)
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error.Message != "" {
		msg = er.Error.Message
	}
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "context") || strings.Contains(msg, "exceed") || strings.Contains(msg, "too many tokens")
}

func summarize(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		s = "empty body"
	}
	return s
}
