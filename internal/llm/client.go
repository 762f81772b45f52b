// Package llm asks an OpenAI-compatible chat completions endpoint to rewrite
// a failing SQL statement.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"salesql/internal/observability"
)

const (
	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultModel      = "gpt-4o"
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
)

var (
	// ErrDisabled is returned when no endpoint is configured.
	ErrDisabled = errors.New("llm repair is disabled")
	// ErrTimeout is returned when the call exceeds its deadline.
	ErrTimeout = errors.New("llm request timed out")
	// ErrEmptyResponse is returned when the model answers with no SQL.
	ErrEmptyResponse = errors.New("llm returned an empty response")
)

const systemPrompt = "You are an expert SQL fixer for PostgreSQL. " +
	"Given a user intent, a HARD allowlist of tables, the failing SQL, and the error, " +
	"return ONLY a corrected SQL query. Do not include explanations or comments.\n" +
	"RULES:\n" +
	"1) Reference tables EXCLUSIVELY from tables_allowed. No other tables.\n" +
	"2) Prefer existing numeric measures in the chosen fact table. Do not invent columns.\n" +
	"3) If product naming needs the product master, use base_pack_design_name in tbl_product_master.\n" +
	"4) Return a single SELECT statement compatible with PostgreSQL."

// Config configures the client.
type Config struct {
	Enabled    bool          `mapstructure:"enabled"`
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	APIKeyFile string        `mapstructure:"api_key_file"`
	Model      string        `mapstructure:"model"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// RepairRequest is the user payload sent to the model.
type RepairRequest struct {
	UserIntent    string   `json:"user_intent"`
	TablesAllowed []string `json:"tables_allowed"`
	PreviousSQL   string   `json:"previous_sql"`
	ErrorMessage  string   `json:"error_message"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Client calls the chat completions API. A nil *Client is disabled.
type Client struct {
	cfg        Config
	httpClient *http.Client
	newBackOff func() backoff.BackOff
}

// New creates a client. It returns nil when the config is disabled.
func New(cfg Config, httpClient *http.Client) *Client {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

// RepairSQL returns a corrected statement for the failing SQL.
func (c *Client) RepairSQL(ctx context.Context, req RepairRequest) (string, error) {
	if c == nil {
		return "", ErrDisabled
	}
	ctx, span := otel.Tracer("salesql/llm").Start(ctx, "llm.repair_sql")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", c.cfg.Model))

	start := time.Now()
	sql, err := c.repair(ctx, req)
	observability.AssistantMetricsFromContext(ctx).RecordLLMCall(ctx, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return sql, err
}

func (c *Client) repair(ctx context.Context, req RepairRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal repair payload: %w", err)
	}
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(payload)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := backoff.Retry(ctx, func() (*chatResponse, error) {
		return c.post(ctx, body)
	},
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(c.cfg.MaxRetries)),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", ErrTimeout
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	sql := StripFences(resp.Choices[0].Message.Content)
	if sql == "" {
		return "", ErrEmptyResponse
	}
	return sql, nil
}

func (c *Client) post(ctx context.Context, body []byte) (*chatResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("llm endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if shouldRetry(resp.StatusCode) {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode llm response: %w", err))
	}
	return &out, nil
}

func shouldRetry(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

var fencePattern = regexp.MustCompile("(?i)```(?:sql|postgresql|postgres)?")

// StripFences removes markdown code fences and surrounding whitespace.
func StripFences(s string) string {
	return strings.TrimSpace(fencePattern.ReplaceAllString(s, ""))
}
