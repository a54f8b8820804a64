// Package httpadapter implements a single, configuration-driven Adapter
// for OpenAI-compatible HTTP backends, generalizing the openailike
// pattern so that one adapter implementation serves many vendors
// without hard-coding any one wire format.
package httpadapter

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/arcrelay/gateway/internal/httputil"
	gwerrors "github.com/arcrelay/gateway/pkg/errors"
	"github.com/arcrelay/gateway/pkg/gateway"
)

// Config describes one configuration-driven HTTP backend.
type Config struct {
	ProviderID   string
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	Models       []gateway.ModelSpec
	Capabilities []string
}

// Adapter is an OpenAI-compatible chat-completions client. It never
// retries and never emits its own telemetry — both are the reliability
// envelope's and the telemetry store's responsibility.
type Adapter struct {
	cfg    Config
	client *http.Client
}

// New creates an Adapter for one configured HTTP backend.
func New(cfg Config) *Adapter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Adapter{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

func (a *Adapter) ID() string { return a.cfg.ProviderID }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	TopP        float64       `json:"top_p,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

// Invoke sends one chat-completions call and maps the result or error
// into the gateway's standardized shapes.
func (a *Adapter) Invoke(ctx context.Context, req *gateway.InferenceRequest) (*gateway.InferenceResult, error) {
	body := chatRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      false,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindInternal, a.cfg.ProviderID, "marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindInternal, a.cfg.ProviderID, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}

	start := time.Now()
	resp, err := a.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return nil, gwerrors.Wrap(gwerrors.KindCancelled, a.cfg.ProviderID, "request cancelled", ctx.Err())
		}
		return nil, gwerrors.Wrap(gwerrors.KindTimeout, a.cfg.ProviderID, "request failed", err)
	}
	defer resp.Body.Close()

	rawBody, err := httputil.ReadLimitedBody(resp.Body, httputil.DefaultMaxResponseBodyBytes)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindInternal, a.cfg.ProviderID, "read response body", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, a.mapError(resp.StatusCode, rawBody)
	}

	var parsed chatResponse
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindInternal, a.cfg.ProviderID, "parse response", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, gwerrors.New(gwerrors.KindTransient, a.cfg.ProviderID, "empty choices in response")
	}

	return &gateway.InferenceResult{
		Text:         parsed.Choices[0].Message.Content,
		Model:        parsed.Model,
		FinishReason: parsed.Choices[0].FinishReason,
		LatencyMS:    latency.Milliseconds(),
		Success:      true,
		Usage: gateway.Usage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
			TotalTokens:  parsed.Usage.TotalTokens,
		},
	}, nil
}

func (a *Adapter) mapError(statusCode int, body []byte) error {
	msg := fmt.Sprintf("status %d: %s", statusCode, string(body))
	switch {
	case statusCode == http.StatusTooManyRequests:
		return gwerrors.New(gwerrors.KindRateLimit, a.cfg.ProviderID, msg)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return gwerrors.New(gwerrors.KindAuth, a.cfg.ProviderID, msg)
	case statusCode == http.StatusRequestTimeout:
		return gwerrors.New(gwerrors.KindTimeout, a.cfg.ProviderID, msg)
	case statusCode >= 500:
		return gwerrors.New(gwerrors.KindTransient, a.cfg.ProviderID, msg)
	case statusCode >= 400:
		return gwerrors.New(gwerrors.KindPermanent, a.cfg.ProviderID, msg)
	default:
		return gwerrors.New(gwerrors.KindInternal, a.cfg.ProviderID, msg)
	}
}

// HealthCheck issues a lightweight GET against the backend's model list
// endpoint. It does not pass through the circuit breaker.
func (a *Adapter) HealthCheck(ctx context.Context) (gateway.HealthStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/models", nil)
	if err != nil {
		return gateway.HealthUnhealthy, err
	}
	if a.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return gateway.HealthUnhealthy, nil
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return gateway.HealthHealthy, nil
	case resp.StatusCode >= 500:
		return gateway.HealthUnhealthy, nil
	default:
		return gateway.HealthDegraded, nil
	}
}

// EstimateCost is pure: pricing from config times a conservative token
// estimate (4 characters per token, rounded up) plus the requested
// MaxTokens for the output side.
func (a *Adapter) EstimateCost(req *gateway.InferenceRequest) float64 {
	model, ok := modelByName(a.cfg.Models, req.Model)
	if !ok {
		return 0
	}

	var chars int
	for _, m := range req.Messages {
		chars += len(m.Content)
	}
	inputTokens := (chars + 3) / 4

	return float64(inputTokens)*model.CostPerTokenIn + float64(req.MaxTokens)*model.CostPerTokenOut
}

func modelByName(models []gateway.ModelSpec, name string) (gateway.ModelSpec, bool) {
	for _, m := range models {
		if m.Name == name {
			return m, true
		}
	}
	return gateway.ModelSpec{}, false
}

// ListModels returns the statically configured model list. Callers may
// cache this for minutes.
func (a *Adapter) ListModels(ctx context.Context) ([]gateway.ModelSpec, error) {
	return a.cfg.Models, nil
}

func (a *Adapter) Capabilities() []string { return a.cfg.Capabilities }
