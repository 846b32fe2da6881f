// Package aigen provides the text-generation backends behind domain.TextGenerator:
// an Ollama-compatible HTTP client, a disabled stub, an LRU response cache,
// and the parser that turns model output into quest templates.
package aigen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/questforge/questforge/internal/domain"
	"github.com/questforge/questforge/internal/infra/metrics"
)

// DefaultBaseURL is the local Ollama server.
const DefaultBaseURL = "http://localhost:11434"

// Config configures the Ollama generator.
type Config struct {
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Temperature float64
}

// OllamaGenerator calls an Ollama-compatible /api/chat endpoint.
type OllamaGenerator struct {
	httpClient *http.Client
	baseURL    string
	model      string
	temp       float64
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *chatOptions  `json:"options,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
}

type chatResponse struct {
	Model   string      `json:"model"`
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error,omitempty"`
}

// NewOllamaGenerator creates a generator. It does not contact the server.
func NewOllamaGenerator(cfg Config) *OllamaGenerator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &OllamaGenerator{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		temp:       cfg.Temperature,
	}
}

// Generate sends one non-streaming chat request and returns the reply text.
func (g *OllamaGenerator) Generate(ctx context.Context, req domain.GenerateRequest) (string, error) {
	body := chatRequest{Model: g.model, Stream: false}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.Prompt})
	if g.temp > 0 {
		body.Options = &chatOptions{Temperature: g.temp}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := g.httpClient.Do(httpReq)
	metrics.AILatency.WithLabelValues(g.model).Observe(time.Since(start).Seconds())
	if err != nil {
		reason := "transport"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		metrics.AIFailures.WithLabelValues(reason).Inc()
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("[aigen] close response body: %v", err)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.AIFailures.WithLabelValues("read").Inc()
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.AIFailures.WithLabelValues("status").Inc()
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		metrics.AIFailures.WithLabelValues("decode").Inc()
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Error != "" {
		metrics.AIFailures.WithLabelValues("status").Inc()
		return "", fmt.Errorf("ollama error: %s", out.Error)
	}
	return out.Message.Content, nil
}

// Probe checks that the server answers GET /api/tags.
func (g *OllamaGenerator) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	return nil
}

// ─── Disabled ───────────────────────────────────────────────────────────────

// Disabled is the generator used when AI is turned off. Every call fails
// with domain.ErrGeneratorDisabled so callers take the template path.
type Disabled struct{}

// Generate always returns domain.ErrGeneratorDisabled.
func (Disabled) Generate(context.Context, domain.GenerateRequest) (string, error) {
	return "", domain.ErrGeneratorDisabled
}
