package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/CuriosityQuantified/atlas/invoke"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
)

// HTTPOptions configures the raw HTTP backend.
type HTTPOptions struct {
	APIKey  string
	BaseURL string
	// MaxTokens applies when a request does not specify a completion cap.
	MaxTokens int64
	// HTTPClient overrides the default client, e.g. for proxying in tests.
	HTTPClient *http.Client
}

// HTTPBackend calls the Anthropic Messages API directly over HTTP. It is the
// lightweight call path used when the SDK strategy is not preferred.
type HTTPBackend struct {
	apiKey     string
	baseURL    string
	maxTokens  int64
	httpClient *http.Client
}

// NewHTTP creates a raw HTTP backend. The API key falls back to the
// ANTHROPIC_API_KEY environment variable.
func NewHTTP(optFns ...func(o *HTTPOptions)) *HTTPBackend {
	opts := HTTPOptions{
		BaseURL:   defaultBaseURL,
		MaxTokens: defaultMaxTokens,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.APIKey == "" {
		opts.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &HTTPBackend{
		apiKey:     opts.APIKey,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		maxTokens:  opts.MaxTokens,
		httpClient: opts.HTTPClient,
	}
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Model         string        `json:"model"`
	MaxTokens     int64         `json:"max_tokens"`
	System        string        `json:"system,omitempty"`
	Messages      []wireMessage `json:"messages"`
	Temperature   *float64      `json:"temperature,omitempty"`
	TopP          *float64      `json:"top_p,omitempty"`
	StopSequences []string      `json:"stop_sequences,omitempty"`
}

type wireResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete implements invoke.Backend against the Messages API over raw HTTP.
func (b *HTTPBackend) Complete(ctx context.Context, req invoke.Request) (invoke.Result, error) {
	if b.apiKey == "" {
		return invoke.Result{}, invoke.NewError(invoke.ErrorKindConfig, "anthropic api key is not configured")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = b.maxTokens
	}

	body := wireRequest{
		Model:         req.Model,
		MaxTokens:     maxTokens,
		System:        req.Instructions,
		StopSequences: req.StopSequences,
	}
	if req.Temperature > 0 {
		body.Temperature = &req.Temperature
	}
	if req.TopP > 0 {
		body.TopP = &req.TopP
	}
	for _, m := range req.History {
		role := m.Role
		if role != "assistant" {
			if role == "system" {
				continue
			}
			role = "user"
		}
		body.Messages = append(body.Messages, wireMessage{Role: role, Content: m.Text})
	}
	if req.Prompt != "" {
		body.Messages = append(body.Messages, wireMessage{Role: "user", Content: req.Prompt})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return invoke.Result{}, invoke.NewError(invoke.ErrorKindConfig, "failed to encode request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return invoke.Result{}, invoke.NewError(invoke.ErrorKindConfig, "failed to build request: %v", err)
	}
	httpReq.Header.Set("x-api-key", b.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return invoke.Result{}, err // transport or context error, classified upstream
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return invoke.Result{}, invoke.NewError(invoke.ErrorKindProvider,
			"anthropic returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var decoded wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return invoke.Result{}, invoke.NewError(invoke.ErrorKindProvider, "failed to decode response: %v", err)
	}

	var text string
	for _, block := range decoded.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return invoke.Result{
		Text: text,
		Usage: invoke.Usage{
			InputUnits:  decoded.Usage.InputTokens,
			OutputUnits: decoded.Usage.OutputTokens,
			TotalUnits:  decoded.Usage.InputTokens + decoded.Usage.OutputTokens,
		},
		Raw: decoded,
	}, nil
}
