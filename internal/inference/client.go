// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package inference calls an OpenAI-compatible chat-completion endpoint
// (Ollama by default) and returns the generated text.
package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/pdiddy/ocr-batch/internal/httputil"
	"github.com/pdiddy/ocr-batch/pkg/types"
)

// Generation parameters tuned for Typhoon OCR. They are fixed for every request.
const (
	MaxTokens         = 16000
	Temperature       = 0.1
	TopP              = 0.6
	RepetitionPenalty = 1.2
)

const completionsPath = "/v1/chat/completions"

// ErrEmptyResponse is returned when the model produces no usable text.
var ErrEmptyResponse = errors.New("empty response from model")

// chatRequest is the request body for the chat completions API. Ollama reads
// repetition_penalty from the top level, next to the standard sampling fields.
type chatRequest struct {
	Model             string          `json:"model"`
	Messages          []types.Message `json:"messages"`
	MaxTokens         int             `json:"max_tokens"`
	Temperature       float64         `json:"temperature"`
	TopP              float64         `json:"top_p"`
	RepetitionPenalty float64         `json:"repetition_penalty"`
	Stream            bool            `json:"stream"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
}

// Client sends prepared OCR messages to the model endpoint. It is safe for
// concurrent use; the underlying http.Client pools connections.
type Client struct {
	url    string
	model  string
	apiKey string
	http   *http.Client
}

// NewClient builds a Client for cfg. httpClient may be nil, in which case one
// is built from cfg.HTTPConfig with a single pooled connection.
func NewClient(cfg types.InferenceConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = httputil.NewClient(cfg.HTTPConfig, 1)
	}
	return &Client{
		url:    cfg.BaseURL() + completionsPath,
		model:  cfg.Model,
		apiKey: cfg.APIKey,
		http:   httpClient,
	}
}

// URL returns the full chat completions URL the client posts to.
func (c *Client) URL() string {
	return c.url
}

// Generate sends messages to the model and returns the trimmed content of the
// first choice. It waits for the complete response and never retries.
func (c *Client) Generate(ctx context.Context, messages []types.Message) (string, error) {
	req := chatRequest{
		Model:             c.model,
		Messages:          messages,
		MaxTokens:         MaxTokens,
		Temperature:       Temperature,
		TopP:              TopP,
		RepetitionPenalty: RepetitionPenalty,
	}

	var headers map[string]string
	if c.apiKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + c.apiKey}
	}

	var resp chatResponse
	if err := httputil.PostJSON(ctx, c.http, c.url, headers, req, &resp); err != nil {
		return "", fmt.Errorf("calling %s: %w", c.model, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices", c.model)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
