package openai_compat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chatrecall/internal/providers"
)

const (
	Name         = "LM Studio"
	endpointPath = "/v1/chat/completions"
)

type Config struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// Client talks to a local OpenAI-compatible server (LM Studio and friends).
// No API key is sent.
type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{cfg: cfg}
}

var _ providers.Provider = (*Client)(nil)

func (c *Client) Complete(ctx context.Context, systemInstruction, userMessage string) (providers.Result, error) {
	body, endpointURL, err := c.buildPayload(systemInstruction, userMessage)
	if err != nil {
		return providers.Result{}, err
	}
	return c.callOnce(ctx, endpointURL, body)
}

func (c *Client) buildPayload(systemInstruction, userMessage string) ([]byte, string, error) {
	endpointURL, err := c.buildEndpointURL()
	if err != nil {
		return nil, "", err
	}

	payload := map[string]any{
		"model": c.cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": systemInstruction},
			{"role": "user", "content": userMessage},
		},
		"stream": false,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("marshal chat completion payload: %w", err)
	}
	return b, endpointURL, nil
}

func (c *Client) callOnce(ctx context.Context, endpointURL string, body []byte) (providers.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(body))
	if err != nil {
		return providers.Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return providers.Result{}, providers.TransportError(Name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return providers.Result{}, providers.TransportError(Name, fmt.Errorf("read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return providers.Result{}, &providers.UpstreamError{
			Provider:   Name,
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
		}
	}

	res, err := parseChatCompletions(respBody)
	if err != nil {
		return providers.Result{}, &providers.UpstreamError{
			Provider:   Name,
			StatusCode: resp.StatusCode,
			Message:    err.Error(),
			Err:        err,
		}
	}
	res.Model = c.cfg.Model
	return res, nil
}

func (c *Client) buildEndpointURL() (string, error) {
	base := strings.TrimSpace(c.cfg.BaseURL)
	if base == "" {
		return "", fmt.Errorf("base url is empty")
	}
	if strings.HasSuffix(base, endpointPath) {
		return base, nil
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + endpointPath
	return u.String(), nil
}

func parseChatCompletions(body []byte) (providers.Result, error) {
	var resp struct {
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
			Text string `json:"text"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return providers.Result{}, fmt.Errorf("decode chat completion response: %w", err)
	}

	res := providers.Result{
		PromptTokens:     providers.Tokens(resp.Usage.PromptTokens),
		CompletionTokens: providers.Tokens(resp.Usage.CompletionTokens),
		TotalTokens:      providers.Tokens(resp.Usage.TotalTokens),
	}
	if len(resp.Choices) == 0 {
		return res, nil
	}
	if content := anyToText(resp.Choices[0].Message.Content); content != "" {
		res.Answer = content
	} else {
		res.Answer = resp.Choices[0].Text
	}
	return res, nil
}

func anyToText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				if txt, ok := m["text"].(string); ok {
					parts = append(parts, txt)
				}
			}
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}
