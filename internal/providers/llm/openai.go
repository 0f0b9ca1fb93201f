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
	openAIDefaultTimeout = 300 * time.Second
	openAIDefaultBaseURL = "https://api.openai.com/v1"
	openAIDefaultModel   = "gpt-5.1"
)

// OpenAIOptions configures the OpenAI chat completions adapter.
type OpenAIOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// OpenAIGenerator streams card definitions from the OpenAI chat completions
// API. The wire format is server-sent events: "data:"-prefixed frames
// terminated by a [DONE] sentinel, with usage on the final frame when
// stream_options.include_usage is set.
type OpenAIGenerator struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	logger  *infra.Logger
}

// NewOpenAIGenerator constructs the adapter, applying defaults for model,
// base URL, and HTTP client. A missing API key is tolerated here and
// reported on the first Generate call, so the registry can always be built.
func NewOpenAIGenerator(opts OpenAIOptions) *OpenAIGenerator {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = openAIDefaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = openAIDefaultModel
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: openAIDefaultTimeout}
	}
	return &OpenAIGenerator{
		apiKey:  opts.APIKey,
		model:   model,
		baseURL: baseURL,
		client:  client,
		logger:  opts.Logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	Stream         bool          `json:"stream"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
	StreamOptions *struct {
		IncludeUsage bool `json:"include_usage"`
	} `json:"stream_options,omitempty"`
}

// streamEvent is the shared delta-event shape of chat completion streams.
type streamEvent struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage map[string]any `json:"usage"`
}

func (g *OpenAIGenerator) Generate(ctx context.Context, payload string, onStream StreamFunc) (string, Usage, error) {
	if g.apiKey == "" {
		return "", nil, fmt.Errorf("openai: %w", ErrMissingAPIKey)
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
	req.ResponseFormat = &struct {
		Type string `json:"type"`
	}{Type: "json_object"}
	req.StreamOptions = &struct {
		IncludeUsage bool `json:"include_usage"`
	}{IncludeUsage: true}

	body, err := json.Marshal(req)
	if err != nil {
		return "", nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", nil, fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	if g.logger != nil {
		g.logger.Debug().Str("provider", ProviderOpenAI).Str("model", g.model).Msg("llm call started")
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", nil, fmt.Errorf("openai: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", nil, fmt.Errorf("openai: api error %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	text, usage, err := g.consumeStream(resp.Body, onStream)
	if err != nil {
		return "", nil, err
	}
	if g.logger != nil {
		g.logger.Debug().Str("provider", ProviderOpenAI).Int("chars", len(text)).Msg("llm call finished")
	}
	return strings.TrimSpace(text), usage, nil
}

// consumeStream reads SSE frames until the [DONE] sentinel or EOF. Frames
// that are not data lines (comments, event names) are skipped, as are data
// payloads that fail to decode, matching the tolerant behavior expected of
// long-lived model streams.
func (g *OpenAIGenerator) consumeStream(r io.Reader, onStream StreamFunc) (string, Usage, error) {
	var sb strings.Builder
	var usage Usage

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			break
		}
		var event streamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
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
		return "", nil, fmt.Errorf("openai: read stream: %w", err)
	}
	return sb.String(), usage, nil
}

var _ Generator = (*OpenAIGenerator)(nil)
