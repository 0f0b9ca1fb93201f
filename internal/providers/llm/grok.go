package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cardforge/internal/infra"
)

const (
	grokDefaultTimeout = 300 * time.Second
	grokDefaultBaseURL = "https://api.x.ai/v1"
	grokDefaultModel   = "grok-3"
)

// GrokOptions configures the xAI Grok adapter.
type GrokOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// GrokGenerator streams card definitions from the xAI chat completions API.
// Unlike the OpenAI adapter it treats the response as raw line-delimited
// JSON: every non-empty line is one event, with an optional "data:" prefix
// stripped for gateways that re-frame the stream as SSE.
type GrokGenerator struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	logger  *infra.Logger
}

// NewGrokGenerator constructs the adapter, applying defaults for model, base
// URL, and HTTP client.
func NewGrokGenerator(opts GrokOptions) *GrokGenerator {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = grokDefaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = grokDefaultModel
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: grokDefaultTimeout}
	}
	return &GrokGenerator{
		apiKey:  opts.APIKey,
		model:   model,
		baseURL: baseURL,
		client:  client,
		logger:  opts.Logger,
	}
}

func (g *GrokGenerator) Generate(ctx context.Context, payload string, onStream StreamFunc) (string, Usage, error) {
	if g.apiKey == "" {
		return "", nil, fmt.Errorf("grok: %w", ErrMissingAPIKey)
	}

	req := chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: BuildSystemPrompt()},
			{Role: "user", Content: BuildUserPrompt(payload)},
		},
		Temperature: 0.3,
		Stream:      true,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", nil, fmt.Errorf("grok: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", nil, fmt.Errorf("grok: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	if g.logger != nil {
		g.logger.Debug().Str("provider", ProviderGrok).Str("model", g.model).Msg("llm call started")
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", nil, fmt.Errorf("grok: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", nil, fmt.Errorf("grok: api error %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var sb strings.Builder
	var usage Usage

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if line == "" {
			continue
		}
		if line == "[DONE]" {
			break
		}
		var event streamEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}
		if len(event.Choices) > 0 {
			if delta := event.Choices[0].Delta.Content; delta != "" {
				sb.WriteString(delta)
				if onStream != nil {
					onStream(delta)
				}
			}
		}
		if u := numericUsage(event.Usage); u != nil {
			usage = u
		}
	}
	if err := scanner.Err(); err != nil {
		return "", nil, fmt.Errorf("grok: read stream: %w", err)
	}

	if g.logger != nil {
		g.logger.Debug().Str("provider", ProviderGrok).Int("chars", sb.Len()).Msg("llm call finished")
	}
	return strings.TrimSpace(sb.String()), usage, nil
}

var _ Generator = (*GrokGenerator)(nil)
